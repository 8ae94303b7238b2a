package api

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"

	"walkerevo/internal/events"
	"walkerevo/internal/ga"
	"walkerevo/internal/sim"
	"walkerevo/internal/snapshot"
	"walkerevo/internal/store"
)

// frame is the per-tick live feed payload.
type frame struct {
	Status  runStatus        `json:"status"`
	Walkers []sim.WalkerView `json:"walkers,omitempty"`
}

// Run ticks the live run at the configured rate and serves the live feed
// until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	go s.hub.Run(ctx)
	t := time.NewTicker(s.tickEvery)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if err := s.Tick(ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.log.Error("tick failed, run paused", "err", err)
			}
		}
	}
}

// Tick advances the live run once. New generations are recorded in the
// store, published and counted; a failed tick pauses the run and is
// returned.
func (s *Server) Tick(ctx context.Context) error {
	s.mu.Lock()
	err := s.ctrl.Tick(ctx)
	if err != nil {
		s.ctrl.Pause()
		s.lastError = err.Error()
	}

	eng := s.ctrl.Engine()
	var recs []ga.Record
	if gen := eng.Generation(); gen != s.seenGen {
		for _, r := range eng.History() {
			if r.Generation >= s.seenGen {
				recs = append(recs, r)
			}
		}
		s.seenGen = gen
	}

	var best *ga.Walker
	if w, ok := eng.BestEver(); ok && (!s.hasBest || w.Fitness > s.bestEver) {
		best, s.bestEver, s.hasBest = w, w.Fitness, true
	}

	var checkpoint *snapshot.Snapshot
	if len(recs) > 0 && s.checkpointEvery > 0 && s.seenGen%s.checkpointEvery == 0 {
		snap := s.ctrl.Export()
		checkpoint = &snap
	}

	var elapsed time.Duration
	if len(recs) > 0 {
		elapsed = time.Since(s.genStart)
		s.genStart = time.Now()
	}

	f := frame{Status: s.statusLocked()}
	if s.hub.Count() > 0 {
		views, verr := s.ctrl.Views()
		if verr != nil {
			s.log.Warn("walker views", "err", verr)
		}
		f.Walkers = views
	}
	s.mu.Unlock()

	if err != nil {
		s.metrics.RoundDone(err)
		s.hub.Broadcast("error", gin.H{"error": err.Error()})
	}
	for _, r := range recs {
		s.metrics.RoundDone(nil)
		s.metrics.ObserveRecord(r, elapsed)
		s.publish(ctx, events.Generation(s.runID, r))
		s.hub.Broadcast("generation", r)
	}
	if len(recs) > 0 {
		if serr := s.store.AppendHistory(ctx, s.runID, recs...); serr != nil {
			s.metrics.StoreErrors.Inc()
			s.log.Warn("store history", "err", serr)
		}
		s.metrics.LiveWalkers.Set(float64(f.Status.Population))
	}
	if best != nil {
		s.metrics.ObserveBest(best.Fitness)
		s.publish(ctx, events.NewBest(s.runID, best))
	}
	if checkpoint != nil {
		rec := &store.SnapshotRecord{RunID: s.runID, Snapshot: *checkpoint}
		if serr := s.store.SaveSnapshot(ctx, rec); serr != nil {
			s.metrics.StoreErrors.Inc()
			s.log.Warn("store checkpoint", "generation", checkpoint.Generation, "err", serr)
		} else {
			s.log.Info("checkpoint stored", "generation", checkpoint.Generation, "id", rec.ID)
		}
	}
	if s.hub.Count() > 0 {
		s.hub.Broadcast("frame", f)
	}
	return err
}

// Package api serves the walker store and a live evolution run over HTTP,
// with a websocket feed of the run.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"walkerevo/internal/events"
	"walkerevo/internal/ga"
	"walkerevo/internal/genome"
	"walkerevo/internal/metrics"
	"walkerevo/internal/sim"
	"walkerevo/internal/snapshot"
	"walkerevo/internal/store"
)

const maxBody = 8 << 20

// Options configures a Server. Zero values fall back to in-memory or no-op
// implementations.
type Options struct {
	Store     store.Store
	Publisher events.Publisher
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
	// RNG draws the walkers handed out by /api/generate.
	RNG *rand.Rand
	// RunID tags stored snapshots and history of the live run.
	RunID string
	// TicksPerSecond paces Run. Zero means 60.
	TicksPerSecond int
	// CheckpointEvery stores a snapshot every n generations. Zero disables it.
	CheckpointEvery int
}

// Server owns a live run. Every access to the controller goes through mu;
// Run is the only caller of Tick.
type Server struct {
	mu   sync.Mutex
	ctrl *sim.Controller
	rng  *rand.Rand

	store   store.Store
	pub     events.Publisher
	metrics *metrics.Metrics
	log     *slog.Logger
	hub     *Hub
	router  *gin.Engine

	runID           string
	tickEvery       time.Duration
	checkpointEvery int

	seenGen   int
	bestEver  float64
	hasBest   bool
	genStart  time.Time
	lastError string
}

// New wires the routes for ctrl.
func New(ctrl *sim.Controller, opts Options) *Server {
	if opts.Store == nil {
		opts.Store = store.NewMemoryStore()
		_ = opts.Store.Init(context.Background())
	}
	if opts.Publisher == nil {
		opts.Publisher = events.Nop{}
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(math.MaxInt)}))
	}
	if opts.RNG == nil {
		opts.RNG = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}
	if opts.TicksPerSecond < 1 {
		opts.TicksPerSecond = 60
	}

	s := &Server{
		ctrl:            ctrl,
		rng:             opts.RNG,
		store:           opts.Store,
		pub:             opts.Publisher,
		metrics:         opts.Metrics,
		log:             opts.Logger,
		hub:             NewHub(),
		runID:           opts.RunID,
		tickEvery:       time.Second / time.Duration(opts.TicksPerSecond),
		checkpointEvery: opts.CheckpointEvery,
		seenGen:         ctrl.Engine().Generation(),
		genStart:        time.Now(),
	}
	s.hub.onCount = func(n int) { s.metrics.WSClients.Set(float64(n)) }
	s.router = s.routes()
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// Hub returns the live feed hub.
func (s *Server) Hub() *Hub { return s.hub }

// RunID identifies the live run in the store.
func (s *Server) RunID() string { return s.runID }

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/", s.home)
	r.GET("/health", s.health)
	r.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	r.GET("/ws", s.serveWS)

	api := r.Group("/api")
	api.GET("/genomes", s.listGenomes)
	api.POST("/genomes", s.postGenomes)
	api.GET("/genomes/:id", s.getGenomes)
	api.GET("/results", s.listResults)
	api.POST("/results", s.postResult)
	api.POST("/generate", s.generate)

	run := api.Group("/run")
	run.GET("", s.status)
	run.POST("/pause", s.pause)
	run.POST("/resume", s.resume)
	run.POST("/reset", s.reset)
	run.POST("/import", s.importRun)
	run.GET("/export", s.exportRun)
	run.GET("/history", s.history)
	run.GET("/population", s.population)
	return r
}

func (s *Server) home(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "walkerevo genome API",
		"endpoints": gin.H{
			"/api/genomes":  "GET lists stored populations, POST stores one",
			"/api/results":  "GET lists results, POST stores one",
			"/api/generate": "POST returns a random walker",
			"/api/run":      "GET live run status; pause, resume, reset, import, export, history, population",
			"/ws":           "live run feed",
		},
	})
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "connections": s.hub.Count()})
}

func readSnapshot(c *gin.Context) (snapshot.Snapshot, bool) {
	snap, err := snapshot.Read(io.LimitReader(c.Request.Body, maxBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return snapshot.Snapshot{}, false
	}
	return snap, true
}

func (s *Server) listGenomes(c *gin.Context) {
	recs, err := s.store.ListSnapshots(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"genomes": recs})
}

func (s *Server) postGenomes(c *gin.Context) {
	snap, ok := readSnapshot(c)
	if !ok {
		return
	}
	rec := &store.SnapshotRecord{Snapshot: snap}
	if err := s.store.SaveSnapshot(c.Request.Context(), rec); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "genomes stored", "id": rec.ID})
}

func (s *Server) getGenomes(c *gin.Context) {
	rec, err := s.store.GetSnapshot(c.Request.Context(), c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "genome set not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Server) listResults(c *gin.Context) {
	rs, err := s.store.ListResults(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": rs})
}

func (s *Server) postResult(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var head struct {
		Fitness    *float64 `json:"fitness"`
		Generation int      `json:"generation"`
		RunID      string   `json:"runId"`
	}
	if err := json.Unmarshal(body, &head); err != nil || head.Fitness == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid data: a numeric fitness is required"})
		return
	}
	if math.IsNaN(*head.Fitness) || math.IsInf(*head.Fitness, 0) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid data: fitness must be finite"})
		return
	}
	r := &store.Result{
		RunID:      head.RunID,
		Generation: head.Generation,
		Fitness:    *head.Fitness,
		Payload:    body,
	}
	if err := s.store.SaveResult(c.Request.Context(), r); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "result stored", "id": r.ID})
}

func (s *Server) generate(c *gin.Context) {
	s.mu.Lock()
	g := genome.Random(s.rng)
	name := ga.RandomName(s.rng)
	s.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{"walker": snapshot.Entry{Name: name, Score: 0, Genome: g}})
}

type runStatus struct {
	sim.Status
	RunID     string `json:"runId"`
	LastError string `json:"lastError,omitempty"`
}

func (s *Server) statusLocked() runStatus {
	return runStatus{Status: s.ctrl.Status(), RunID: s.runID, LastError: s.lastError}
}

func (s *Server) status(c *gin.Context) {
	s.mu.Lock()
	st := s.statusLocked()
	s.mu.Unlock()
	c.JSON(http.StatusOK, st)
}

func (s *Server) pause(c *gin.Context) {
	s.mu.Lock()
	s.ctrl.Pause()
	st := s.statusLocked()
	s.mu.Unlock()
	s.hub.Broadcast("status", st)
	c.JSON(http.StatusOK, st)
}

func (s *Server) resume(c *gin.Context) {
	s.mu.Lock()
	s.ctrl.Resume()
	s.lastError = ""
	st := s.statusLocked()
	s.mu.Unlock()
	s.hub.Broadcast("status", st)
	c.JSON(http.StatusOK, st)
}

func (s *Server) reset(c *gin.Context) {
	s.mu.Lock()
	err := s.ctrl.Reset()
	s.resetTracking()
	st := s.statusLocked()
	s.mu.Unlock()
	if err != nil {
		s.log.Warn("release round on reset", "err", err)
	}
	s.publish(c.Request.Context(), events.Event{Type: events.TypeReset, RunID: s.runID, Time: time.Now().UTC()})
	s.hub.Broadcast("status", st)
	c.JSON(http.StatusOK, st)
}

// resetTracking forgets per-run progress after the population was replaced.
func (s *Server) resetTracking() {
	s.seenGen = s.ctrl.Engine().Generation()
	s.hasBest = false
	s.bestEver = 0
	s.genStart = time.Now()
	s.lastError = ""
}

func (s *Server) importRun(c *gin.Context) {
	snap, ok := readSnapshot(c)
	if !ok {
		return
	}
	s.mu.Lock()
	err := s.ctrl.Import(snap)
	if err == nil {
		s.resetTracking()
	}
	st := s.statusLocked()
	s.mu.Unlock()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.publish(c.Request.Context(), events.Event{Type: events.TypeImport, RunID: s.runID, Time: time.Now().UTC()})
	s.hub.Broadcast("status", st)
	c.JSON(http.StatusOK, st)
}

func (s *Server) exportRun(c *gin.Context) {
	s.mu.Lock()
	snap := s.ctrl.Export()
	s.mu.Unlock()
	data, err := snapshot.Encode(snap)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="walkers_gen_%d.json"`, snap.Generation))
	c.Data(http.StatusOK, "application/json", data)
}

func (s *Server) history(c *gin.Context) {
	s.mu.Lock()
	hist := s.ctrl.Engine().History()
	s.mu.Unlock()
	if hist == nil {
		hist = []ga.Record{}
	}
	c.JSON(http.StatusOK, gin.H{"history": hist})
}

func (s *Server) population(c *gin.Context) {
	s.mu.Lock()
	views, err := s.ctrl.Views()
	s.mu.Unlock()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"walkers": views})
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

func (s *Server) serveWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	cl := &client{conn: conn, send: make(chan []byte, sendBuffer), hub: s.hub}
	select {
	case s.hub.register <- cl:
	case <-s.hub.done:
		conn.Close()
		return
	}
	go cl.writePump()
	cl.readPump()
}

func (s *Server) publish(ctx context.Context, ev events.Event) {
	if err := s.pub.Publish(ctx, ev); err != nil {
		s.log.Warn("publish event", "type", ev.Type, "err", err)
	}
}

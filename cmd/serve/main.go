package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"walkerevo/internal/api"
	"walkerevo/internal/config"
	"walkerevo/internal/events"
	"walkerevo/internal/logging"
	"walkerevo/internal/metrics"
	"walkerevo/internal/physics"
	"walkerevo/internal/sim"
	"walkerevo/internal/store"
)

func main() {
	configPath := flag.String("config", "", "path to config file (embedded defaults when empty)")
	addr := flag.String("addr", "", "listen address, overrides server.addr")
	paused := flag.Bool("paused", false, "start with the live run paused")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	level, err := cfg.Logging.SlogLevel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error in config: %v\n", err)
		os.Exit(1)
	}
	log, err := logging.NewSlog(level, cfg.Logging.Format, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}
	if level > slog.LevelDebug {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := serve(cfg, *paused, log); err != nil {
		log.Error("server failed", "err", err)
		os.Exit(1)
	}
}

func serve(cfg *config.Config, paused bool, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, cfg.Store.Kind, cfg.Store.DSN)
	if err != nil {
		return err
	}
	defer st.Close()

	pub, err := events.Open(cfg.Events.NATSURL, cfg.Events.Subject, log)
	if err != nil {
		return err
	}
	defer pub.Close()

	world, err := physics.New(cfg.Physics)
	if err != nil {
		return err
	}
	defer world.Close()
	ctrl, err := sim.NewController(cfg.Controller(), rand.New(rand.NewSource(cfg.Seed)), world,
		sim.WithControllerLogger(log),
		sim.WithRoundOptions(
			sim.WithMotor(cfg.Motor),
			sim.WithFitness(cfg.Fitness),
			sim.WithNoiseSeed(cfg.Seed+2),
		),
	)
	if err != nil {
		return err
	}
	if paused {
		ctrl.Pause()
	}

	srv := api.New(ctrl, api.Options{
		Store:           st,
		Publisher:       pub,
		Metrics:         metrics.New(),
		Logger:          log,
		RNG:             rand.New(rand.NewSource(cfg.Seed + 1)),
		TicksPerSecond:  cfg.Server.TicksPerSecond,
		CheckpointEvery: cfg.Store.CheckpointEvery,
	})

	httpSrv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", cfg.Server.Addr, "run", srv.RunID(), "store", cfg.Store.Kind)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		if err := srv.Run(ctx); err != nil {
			log.Error("live run stopped", "err", err)
		}
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	log.Info("shutting down")
	stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = httpSrv.Shutdown(shutdownCtx)
	<-runDone
	return errors.Join(serveErr, err)
}

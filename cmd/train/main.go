package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"

	"walkerevo/internal/config"
	"walkerevo/internal/events"
	"walkerevo/internal/logging"
	"walkerevo/internal/metrics"
	"walkerevo/internal/runner"
	"walkerevo/internal/store"
)

func main() {
	configPath := flag.String("config", "", "path to config file (embedded defaults when empty)")
	generations := flag.Int("generations", 0, "number of generations to run, overrides ga.generations")
	out := flag.String("out", "", "output directory, defaults to <logging.dir>/<run id>")
	metricsAddr := flag.String("metrics", "", "serve Prometheus metrics on this address while training")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if *generations > 0 {
		cfg.GA.Generations = *generations
	}
	if cfg.GA.Generations < 1 && cfg.GA.ConvergenceWindow < 1 {
		cfg.GA.Generations = 100
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

	if err := run(cfg, *out, *metricsAddr, log); err != nil {
		log.Error("training failed", "err", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, out, metricsAddr string, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runID := uuid.NewString()
	if out == "" {
		out = filepath.Join(cfg.Logging.Dir, runID)
	}

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

	m := metrics.New()
	if metricsAddr != "" {
		srv := &http.Server{Addr: metricsAddr, Handler: m.Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server", "err", err)
			}
		}()
		defer srv.Close()
		log.Info("serving metrics", "addr", metricsAddr)
	}

	r := runner.New(cfg, out, runner.Options{
		Store:     st,
		Publisher: pub,
		Metrics:   m,
		Logger:    log,
		RunID:     runID,
	})
	sum, err := r.Run(ctx)
	if errors.Is(err, context.Canceled) {
		log.Warn("training interrupted", "generations", sum.Generations)
		err = nil
	}
	if err != nil {
		return err
	}

	fmt.Println("---")
	fmt.Printf("Training complete! %d generations in %v\n", sum.Generations, sum.Elapsed.Round(time.Millisecond))
	if sum.Best != nil {
		fmt.Printf("Best ever: %s, Fitness=%.2f\n", sum.Best.Name, sum.Best.Fitness)
	}
	fmt.Printf("Artifacts in %s\n", out)
	return nil
}

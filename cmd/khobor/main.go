// Command khobor fetches news, tags articles with taxonomy topics, stores them
// and serves them over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Adda-Baaj/khobor-topics/internal/api"
	"github.com/Adda-Baaj/khobor-topics/internal/config"
	"github.com/Adda-Baaj/khobor-topics/internal/logger"
	"github.com/Adda-Baaj/khobor-topics/internal/pipeline"
	"github.com/Adda-Baaj/khobor-topics/internal/store"
	"github.com/Adda-Baaj/khobor-topics/internal/taxonomy"
	"github.com/Adda-Baaj/khobor-topics/pkg/publishers"
)

const (
	modeAll      = "all"
	modeAPI      = "api"
	modePipeline = "pipeline"

	shutdownTimeout = 10 * time.Second
)

func main() {
	mode := flag.String("mode", modeAll, "what to run: all, api or pipeline")
	once := flag.Bool("once", false, "run the pipeline a single time instead of on RUN_INTERVAL")
	envFile := flag.String("env", ".env", "dotenv file to read when present")
	configFile := flag.String("config", "", "optional YAML or JSON settings file (overrides CONFIG_FILE)")
	flag.Parse()

	if err := run(*mode, *once, *envFile, *configFile); err != nil {
		fmt.Fprintf(os.Stderr, "khobor: %v\n", err)
		os.Exit(1)
	}
}

func run(mode string, once bool, envFile, configFile string) error {
	switch mode {
	case modeAll, modeAPI, modePipeline:
	default:
		return fmt.Errorf("unknown mode %q", mode)
	}

	loader := config.NewLoader()
	loader.EnvFile = envFile
	loader.ConfigFile = configFile

	snap, err := loader.Load()
	if err != nil {
		return err
	}
	settings := snap.Settings

	log, err := logger.New(settings.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// One process owns the store: bbolt holds an exclusive file lock.
	st, err := store.Open(settings.StoreBackend, settings.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			log.ErrorObj("store close failed", "store_close_error", map[string]any{"error": cerr.Error()})
		}
	}()

	log.InfoObj("khobor starting", "startup", map[string]any{
		"mode":           mode,
		"once":           once,
		"store_backend":  settings.StoreBackend,
		"config_version": snap.Version,
	})

	c, err := build(ctx, mode, settings, loader, st, log)
	if err != nil {
		return err
	}
	defer c.close()

	g, gctx := errgroup.WithContext(ctx)
	if c.srv != nil {
		g.Go(func() error { return serve(gctx, c.srv, log) })
	}
	if c.runner != nil {
		g.Go(func() error { return schedule(gctx, c.runner, settings.RunInterval, once, log) })
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.InfoObj("khobor stopped", "shutdown", nil)
	return nil
}

// components are the parts run starts once every one of them is built.
type components struct {
	srv        *http.Server
	runner     *pipeline.Runner
	dispatcher *publishers.Dispatcher
}

// build constructs everything mode needs without starting any of it, so a
// setup failure never leaves a server running against the store.
func build(ctx context.Context, mode string, settings config.Settings, loader pipeline.SnapshotLoader, st store.Store, log logger.Logger) (*components, error) {
	c := &components{}

	if mode == modeAll || mode == modeAPI {
		srv, err := newHTTPServer(settings, st, log)
		if err != nil {
			return nil, err
		}
		c.srv = srv
	}

	if mode == modeAll || mode == modePipeline {
		dispatcher, err := publishers.Setup(ctx, settings.PublishersFile, nil, log)
		if err != nil {
			return nil, err
		}
		c.dispatcher = dispatcher
		c.runner = pipeline.NewRunner(pipeline.Deps{
			Config:    loader,
			Store:     st,
			Publisher: dispatcher,
			Log:       log,
		})
	}
	return c, nil
}

func (c *components) close() {
	if c.dispatcher != nil {
		_ = c.dispatcher.Close()
	}
}

func newHTTPServer(s config.Settings, st store.Store, log logger.Logger) (*http.Server, error) {
	tx, err := taxonomy.LoadOrDefault(s.TaxonomyFile)
	if err != nil {
		return nil, err
	}
	return &http.Server{
		Addr:              s.HTTPAddr,
		Handler:           api.NewServer(st, tx, log).Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}, nil
}

// serve runs srv until ctx ends, then shuts it down gracefully.
func serve(ctx context.Context, srv *http.Server, log logger.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		log.InfoObj("http server listening", "http_listen", map[string]any{"addr": srv.Addr})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

// schedule runs the pipeline immediately and then every interval. A failed run
// is logged and retried on the next tick.
func schedule(ctx context.Context, runner *pipeline.Runner, interval time.Duration, once bool, log logger.Logger) error {
	runOnce := func() {
		if _, err := runner.Run(ctx); err != nil {
			log.ErrorObj("pipeline run failed", "run_error", map[string]any{"error": err.Error()})
		}
	}

	runOnce()
	if once {
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			runOnce()
		}
	}
}

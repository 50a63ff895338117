package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vizionai/vizion/internal/auth"
	"github.com/vizionai/vizion/internal/cache"
	"github.com/vizionai/vizion/internal/chain"
	"github.com/vizionai/vizion/internal/engine"
	"github.com/vizionai/vizion/internal/logging"
	"github.com/vizionai/vizion/internal/metrics"
	"github.com/vizionai/vizion/internal/scheduler"
	"github.com/vizionai/vizion/internal/server"
	"github.com/vizionai/vizion/internal/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := openDB(cfg)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	m := metrics.New("")
	eng := engine.New(db, log)
	eng.Metrics = m

	feedCache := cache.Open(ctx, cfg.Redis.URL, log)
	defer feedCache.Close()

	objects, err := storage.New(ctx, cfg.Storage, log)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}

	deps := server.Deps{
		DB:      db,
		Engine:  eng,
		Cache:   feedCache,
		Auth:    auth.NewAuthenticator(db),
		Storage: objects,
		Metrics: m,
		Log:     log,
		Config:  cfg,
		Version: VersionString(),
	}
	if cfg.Chain.RPCURL != "" {
		v, err := chain.Dial(ctx, cfg.Chain.RPCURL, log)
		if err != nil {
			log.WithError(err).Warn("chain rpc unavailable, tips stay unverified")
		} else {
			defer v.Close()
			deps.Verifier = v
		}
	}

	sched := scheduler.New(log)
	if err := sched.Register(scheduler.Schedules{
		Scores:         cfg.Schedules.Scores,
		StoriesCleanup: cfg.Schedules.StoriesCleanup,
	}, eng, db); err != nil {
		return err
	}
	sched.Start()

	srv := server.New(deps)
	srv.StartBackground(ctx)

	addr := cfg.ListenAddr()
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.WithFields(logging.Fields{
			"addr":    addr,
			"db":      db.Path,
			"storage": cfg.Storage.Backend,
			"cache":   feedCache.Enabled(),
			"version": VersionString(),
		}).Info("vizion serving")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
	case <-ctx.Done():
	}
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err = httpServer.Shutdown(shutdownCtx)
	select {
	case <-sched.Stop().Done():
	case <-shutdownCtx.Done():
		log.Warn("scheduled jobs still running at shutdown")
	}
	return err
}

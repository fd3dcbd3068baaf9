package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"stickerserver/internal/events"
	"stickerserver/internal/mirror"
	"stickerserver/internal/packs"
	"stickerserver/pkg/objectstore"
	"stickerserver/pkg/utils"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, err := utils.LoadConfig()
	if err != nil {
		return err
	}

	addr := flag.String("addr", cfg.ListenAddr, "HTTP listen address")
	level := flag.String("log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	flag.Parse()

	if err := setupLogging(*level); err != nil {
		return err
	}
	gin.SetMode(gin.ReleaseMode)

	store, err := objectstore.Open(cfg.Store)
	if err != nil {
		return err
	}

	hub := events.NewHub()
	syncer := mirror.New(mirror.Options{
		RepoURL:       cfg.Mirror.RepoURL,
		Branch:        cfg.Mirror.Branch,
		SnapshotGrace: cfg.Mirror.SnapshotGrace,
		OnUpdate: func(prev, next mirror.Snapshot) {
			hub.BroadcastJSON(events.MirrorEvent{
				Type:     events.MirrorUpdated,
				Commit:   next.Commit,
				Previous: prev.Commit,
				At:       next.CreatedAt,
			})
		},
	})
	defer func() {
		if err := syncer.Close(); err != nil {
			log.WithError(err).Warn("failed to clean up mirror")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// no fallback content: the server only starts with a complete clone
	initCtx, cancel := context.WithTimeout(ctx, cfg.Mirror.RefreshTimeout)
	err = syncer.Initialize(initCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("failed to download repository: %w", err)
	}

	router := newRouter(routerDeps{
		Packs:  packs.NewRepo(store, cfg.Homeserver),
		Mirror: syncer,
		Hub:    hub,
		Static: mirror.StaticHandler(syncer.CurrentDir()),
	})
	httpSrv := &http.Server{
		Addr:              *addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	scheduler := mirror.NewScheduler(syncer, cfg.Mirror.RefreshInterval, cfg.Mirror.RefreshTimeout)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return scheduler.Run(gctx)
	})
	g.Go(func() error {
		return hub.Run(gctx)
	})
	g.Go(func() error {
		log.WithField("addr", *addr).Info("HTTP server listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	log.Info("server stopped")
	return nil
}

func setupLogging(level string) error {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("parse log level: %w", err)
	}
	log.SetLevel(lvl)
	log.SetOutput(os.Stderr)
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
	})
	return nil
}

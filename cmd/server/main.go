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

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/mkempf/covert-duel-backend/internal/archive"
	"github.com/mkempf/covert-duel-backend/internal/config"
	"github.com/mkempf/covert-duel-backend/internal/httpapi"
	"github.com/mkempf/covert-duel-backend/internal/hub"
)

func main() {
	cfg, err := config.LoadServer()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log, err := newLogger(cfg.Verbosity)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	docs, err := config.LoadDocuments(cfg)
	if err != nil {
		log.Fatal("configuration load failed", zap.Error(err))
	}

	var store *archive.Store
	if cfg.ArchiveDSN != "" {
		store, err = archive.Open(cfg.ArchiveDSN)
		if err != nil {
			log.Fatal("archive unavailable", zap.Error(err))
		}
		log.Info("match archive enabled")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	h := hub.NewHub(ctx, docs, log, store)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: httpapi.SetupRoutes(h, log),
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		h.Inbox() <- hub.ShutdownHub{}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatal("server exited", zap.Error(err))
	}
}

func newLogger(verbosity string) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(verbosity)
	if err != nil {
		return nil, fmt.Errorf("bad verbosity %q: %w", verbosity, err)
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(level)
	return zcfg.Build()
}

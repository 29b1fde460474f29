// SPDX-License-Identifier: MIT
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/huddleworks/livesession/internal/adapters"
	"github.com/huddleworks/livesession/internal/bus"
	"github.com/huddleworks/livesession/internal/config"
	lslog "github.com/huddleworks/livesession/internal/log"
	"github.com/huddleworks/livesession/internal/persistence/sqlite"
	"github.com/huddleworks/livesession/internal/session/clock"
	"github.com/huddleworks/livesession/internal/session/coordinator"
	"github.com/huddleworks/livesession/internal/session/model"
	"github.com/huddleworks/livesession/internal/session/store"
)

var (
	version   = "v0.3.0"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("sessiond %s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	if err := run(); err != nil {
		mainLog := lslog.WithComponent("main")
		mainLog.Error().Err(err).Msg("sessiond exited with error")
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}

	lslog.Configure(lslog.Config{Level: cfg.LogLevel, Service: "sessiond"})
	logger := lslog.WithSession("main", cfg.SessionID, cfg.Role)
	logger.Info().Str("version", version).Msg("starting sessiond")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	// Approval store, checked for corruption before any session resumes
	// from it.
	dbPath := filepath.Join(cfg.DataDir, "approvals.db")
	if _, statErr := os.Stat(dbPath); statErr == nil {
		issues, verr := sqlite.VerifyIntegrity(dbPath, "quick")
		if verr != nil {
			return fmt.Errorf("approval store verification: %w", verr)
		}
		if len(issues) > 0 {
			return fmt.Errorf("approval store %s is corrupt: %v", dbPath, issues)
		}
	}
	approvals, err := store.NewSqliteStore(dbPath)
	if err != nil {
		return fmt.Errorf("open approval store: %w", err)
	}
	defer func() { _ = approvals.Close() }()

	durations, err := clock.OpenBadgerCache(filepath.Join(cfg.DataDir, "durations"))
	if err != nil {
		return fmt.Errorf("open duration cache: %w", err)
	}
	defer func() { _ = durations.Close() }()

	controlBus, err := bus.NewRedisBus(bus.RedisConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, lslog.WithComponent("bus"))
	if err != nil {
		return fmt.Errorf("connect broadcast channel: %w", err)
	}
	defer func() { _ = controlBus.Close() }()

	files, err := adapters.NewDirFileStore(filepath.Join(cfg.DataDir, "deliverables"))
	if err != nil {
		return err
	}

	co, err := coordinator.New(coordinator.Config{
		SessionID:     cfg.SessionID,
		Role:          model.Role(cfg.Role),
		SelfName:      cfg.SelfName,
		PeerName:      cfg.PeerName,
		HostID:        cfg.HostID,
		ParticipantID: cfg.ParticipantID,
		TaxRate:       cfg.TaxRate,
	}, coordinator.Deps{
		Bus:       controlBus,
		Media:     adapters.NewLoopbackMedia(lslog.WithComponent("media")),
		Payments:  adapters.NewLedgerPayments(lslog.WithComponent("payments")),
		Files:     files,
		Profiles:  adapters.StaticProfiles{Rate: cfg.DefaultRate},
		Approvals: approvals,
		Durations: durations,
	})
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := co.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		// The session reaching a terminal phase ends the process too.
		stop()
		return err
	})

	opsServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           opsRouter(co),
		ReadHeaderTimeout: 5 * time.Second,
	}
	g.Go(func() error {
		logger.Info().Str("addr", cfg.ListenAddr).Msg("ops server listening")
		if err := opsServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return opsServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info().Str("phase", string(co.Snapshot().Phase)).Msg("sessiond stopped")
	return nil
}

// opsRouter exposes liveness and metrics plus a read-only session view.
func opsRouter(co *coordinator.Coordinator) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/session", func(w http.ResponseWriter, _ *http.Request) {
		s := co.Snapshot()
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"sessionId":%q,"phase":%q,"durationSeconds":%d,"clock":%q,"presentation":%q}`+"\n",
			s.SessionID, s.Phase, s.DurationSeconds, s.ClockState, s.Presentation)
	})
	r.Handle("/metrics", promhttp.Handler())
	return r
}

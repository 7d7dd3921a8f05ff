// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Taskbrief — Intake Service
//
// Entry point for the inbound message admission pipeline. It:
//  1. Loads agent and queue configuration from config.yaml
//  2. Connects to PostgreSQL and Redis (both optional; in-memory fallbacks)
//  3. Registers the built-in security policies and agent configs
//  4. Starts the bounded-concurrency admission queue
//  5. Serves the intake HTTP endpoints (inbound, status, validate, metrics)
//  6. Handles graceful shutdown on SIGTERM/SIGINT
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/taskbrief/intake/internal/analysis"
	"github.com/taskbrief/intake/internal/config"
	"github.com/taskbrief/intake/internal/dedup"
	"github.com/taskbrief/intake/internal/delivery"
	"github.com/taskbrief/intake/internal/events"
	"github.com/taskbrief/intake/internal/metrics"
	"github.com/taskbrief/intake/internal/notify"
	"github.com/taskbrief/intake/internal/queue"
	"github.com/taskbrief/intake/internal/router"
	"github.com/taskbrief/intake/internal/security"
	"github.com/taskbrief/intake/internal/store"
	"github.com/taskbrief/intake/internal/webhook"
)

func main() {
	// Structured JSON logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	slog.Info("starting taskbrief intake service")

	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("configuration loaded",
		"agents", len(cfg.Agents),
		"max_concurrent_jobs", cfg.Queue.MaxConcurrentJobs,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Storage (Postgres, or in-memory without DATABASE_URL) ---
	var storage store.Storage
	if cfg.DatabaseURL != "" {
		pgPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			slog.Error("failed to create Postgres pool", "error", err)
			os.Exit(1)
		}
		defer pgPool.Close()

		if err := pgPool.Ping(ctx); err != nil {
			slog.Error("failed to connect to PostgreSQL", "error", err)
			os.Exit(1)
		}

		pg, err := store.NewPostgres(ctx, pgPool)
		if err != nil {
			slog.Error("failed to initialise postgres store", "error", err)
			os.Exit(1)
		}
		storage = pg
		slog.Info("connected to PostgreSQL")
	} else {
		storage = store.NewMemory()
		slog.Warn("DATABASE_URL not set — using in-memory storage")
	}

	// --- Processed-message records (Redis, or bounded in-memory) ---
	var records dedup.Store
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			slog.Error("invalid REDIS_URL", "error", err)
			os.Exit(1)
		}
		rs := dedup.NewRedisStore(redis.NewClient(opt))
		if err := rs.Ping(ctx); err != nil {
			slog.Error("failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		records = rs
		slog.Info("connected to Redis")
	} else {
		records = dedup.NewMemoryStore(0)
		slog.Warn("REDIS_URL not set — using in-memory dedup records")
	}

	// --- Security pipeline ---
	registry := security.NewRegistry()
	windows := security.NewRateWindows()
	if err := security.RegisterBuiltins(registry, windows, store.TrustAdapter{Storage: storage}); err != nil {
		slog.Error("failed to register security policies", "error", err)
		os.Exit(1)
	}

	pipeline := security.NewPipeline(registry)
	agents := router.NewAgentRegistry()
	for _, a := range cfg.Agents {
		if err := pipeline.Configure(a.SecurityFor()); err != nil {
			slog.Error("invalid agent security config", "agent", a.Name, "error", err)
			os.Exit(1)
		}
		agents.Register(router.Agent{
			Name:       a.Name,
			Kind:       router.AgentKind(a.Kind),
			OwnerID:    a.OwnerID,
			OwnerEmail: a.OwnerEmail,
		})
	}

	// --- Collaborators ---
	analyzer := analysis.NewClient(&http.Client{Timeout: 30 * time.Second}, cfg.AnalysisURL)
	sender := delivery.NewHTTPSender(ctx, delivery.Config{
		Endpoint:     cfg.Delivery.Endpoint,
		TokenURL:     cfg.Delivery.TokenURL,
		ClientID:     cfg.Delivery.ClientID,
		ClientSecret: cfg.Delivery.ClientSecret,
	})
	notifier := notify.New(storage, sender)

	// --- Metrics ---
	m := metrics.New()
	pipeline.SetVerdictObserver(m.RecordValidation)

	// --- Admission queue ---
	bus := events.NewBus()
	m.Observe(bus)

	rt := router.New(agents, pipeline, storage, analyzer, notifier)
	q := queue.New(queue.Config{
		MaxConcurrentJobs: cfg.Queue.MaxConcurrentJobs,
		Capacity:          cfg.Queue.Capacity,
		HistoryLimit:      cfg.Queue.HistoryLimit,
	}, records, bus, rt.Process)
	q.Start(ctx)

	// --- HTTP surface ---
	// The server gets its own context so shutdown can stop admissions
	// before the queue drains.
	srvCtx, srvCancel := context.WithCancel(ctx)
	defer srvCancel()

	handler := webhook.NewHandler(q, pipeline, agents, m.Handler())
	ready, err := webhook.Serve(srvCtx, cfg.Port, handler)
	if err != nil {
		slog.Error("failed to start intake server", "error", err)
		os.Exit(1)
	}
	<-ready

	slog.Info("intake service ready", "port", cfg.Port)

	// --- Graceful shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigCh

	slog.Info("shutdown signal received", "signal", sig.String())
	srvCancel()
	q.Close()
	cancel()
	slog.Info("intake service stopped")
}

package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"github.com/rs/cors"

	"github.com/famquest/backend/internal/auth"
	"github.com/famquest/backend/internal/children"
	"github.com/famquest/backend/internal/config"
	"github.com/famquest/backend/internal/dashboard"
	"github.com/famquest/backend/internal/database"
	"github.com/famquest/backend/internal/ledger"
	"github.com/famquest/backend/internal/maintenance"
	"github.com/famquest/backend/internal/missions"
	"github.com/famquest/backend/internal/pin"
	"github.com/famquest/backend/internal/punishments"
	"github.com/famquest/backend/internal/rewards"
	"github.com/famquest/backend/internal/router"
	"github.com/famquest/backend/internal/services"
	"github.com/famquest/backend/internal/session"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("Unable to create database pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		slog.Error("Cannot reach PostgreSQL. Ensure Postgres is running, e.g. docker-compose up -d", "error", err)
		os.Exit(1)
	}
	slog.Info("Connected to PostgreSQL")

	if err := database.Bootstrap(ctx, pool); err != nil {
		slog.Error("Schema bootstrap failed", "error", err)
		os.Exit(1)
	}

	// River migrations
	migrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
	if err != nil {
		slog.Error("Failed to create River migrator", "error", err)
		os.Exit(1)
	}
	if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
		slog.Error("River migrate up failed", "error", err)
		os.Exit(1)
	}

	sessions := session.NewManager(cfg.GraceWindow, cfg.BackgroundThreshold, nil)

	authRepo := auth.NewRepository(pool)
	authSvc := auth.NewService(authRepo, cfg.JWTSecret)

	pinRepo := pin.NewRepository(pool)
	pinSvc := pin.NewService(pinRepo, pin.Policy{
		PinLength:   cfg.PinLength,
		MaxAttempts: cfg.MaxPinAttempts,
		Cooldown:    cfg.LockoutCooldown,
	}, nil)

	ledgerRepo := ledger.NewRepository(pool)
	ledgerSvc := ledger.NewService(ledgerRepo, ledgerRepo, ledgerRepo, sessions)

	childrenRepo := children.NewRepository(pool)
	childrenSvc := children.NewService(childrenRepo, ledgerSvc, sessions)

	missionsRepo := missions.NewRepository(pool)
	missionsSvc := missions.NewService(missionsRepo, ledgerSvc, sessions, nil)

	punishmentsRepo := punishments.NewRepository(pool)
	punishmentsSvc := punishments.NewService(punishmentsRepo, ledgerSvc, sessions, nil)

	rewardsRepo := rewards.NewRepository(pool)
	rewardsSvc := rewards.NewService(rewardsRepo, ledgerSvc, childrenRepo, punishmentsSvc, sessions)

	validator, err := services.NewValidator()
	if err != nil {
		slog.Error("Schema validator init failed", "error", err)
		os.Exit(1)
	}

	handlers := router.Handlers{
		Auth:        auth.NewHandler(authSvc, logger),
		Pin:         pin.NewHandler(pinSvc, sessions, logger),
		Session:     session.NewHandler(sessions),
		Children:    children.NewHandler(childrenSvc, logger),
		Ledger:      ledger.NewHandler(ledgerSvc, logger),
		Missions:    missions.NewHandler(missionsSvc, validator, logger),
		Rewards:     rewards.NewHandler(rewardsSvc, validator, logger),
		Punishments: punishments.NewHandler(punishmentsSvc, validator, logger),
		Dashboard:   dashboard.NewHandler(childrenSvc, missionsRepo, rewardsSvc, punishmentsSvc, logger),
	}

	apiRouter := router.New(handlers, authSvc, childrenRepo)

	// Background sweep keeps stored instance state close to what
	// readers derive lazily.
	workers := river.NewWorkers()
	river.AddWorker(workers, maintenance.NewExpireInstancesWorker(missionsSvc, logger))

	riverClient, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: 5},
		},
		Workers: workers,
		PeriodicJobs: []*river.PeriodicJob{
			river.NewPeriodicJob(
				river.PeriodicInterval(15*time.Minute),
				func() (river.JobArgs, *river.InsertOpts) {
					return maintenance.ExpireInstancesArgs{}, nil
				},
				&river.PeriodicJobOpts{RunOnStart: true},
			),
		},
	})
	if err != nil {
		slog.Error("Failed to create River client", "error", err)
		os.Exit(1)
	}

	riverCtx, stopRiver := context.WithCancel(ctx)
	defer stopRiver()
	go func() {
		if err := riverClient.Start(riverCtx); err != nil && riverCtx.Err() == nil {
			slog.Error("River client stopped", "error", err)
		}
	}()

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}).Handler(apiRouter)

	addr := "0.0.0.0:" + cfg.Port
	slog.Info("Starting HTTP server", "addr", addr)
	if err := http.ListenAndServe(addr, corsHandler); err != nil {
		slog.Error("HTTP server failed", "error", err)
		os.Exit(1)
	}
}

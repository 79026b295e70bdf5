package main

import (
	"context"
	"time"

	"github.com/cppla/hitcount/config"
	"github.com/cppla/hitcount/hitcount"
	"github.com/cppla/hitcount/routes"
	"github.com/cppla/hitcount/utils"
)

func main() {
	cfg := config.Load()

	// Initialize logger early
	if err := utils.InitLogger(cfg); err != nil {
		panic(err)
	}

	db := config.InitDatabase(cfg)

	svc, err := hitcount.NewService(db, cfg.HitCount(), hitcount.Options{
		Logger:     utils.Logger,
		SweepBatch: cfg.SweepBatchSize,
	})
	if err != nil {
		utils.Sugar.Fatalf("invalid hitcount configuration: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Purge hits past KeepHitInDatabase in the background; a negative interval disables it
	if cfg.SweepIntervalMinutes > 0 {
		retention, err := cfg.KeepHitInDatabase.Duration()
		if err != nil {
			utils.Sugar.Fatalf("invalid KeepHitInDatabase: %v", err)
		}
		utils.StartHitSweeper(ctx, svc.Sweeper, time.Duration(cfg.SweepIntervalMinutes)*time.Minute, retention)
	}

	r := routes.SetupRouter(routes.Deps{
		Config:   cfg,
		DB:       db,
		Service:  svc,
		Sessions: utils.NewSessionStore(cfg.SessionStore),
		Logger:   utils.Logger,
	})

	utils.Sugar.Infof("Starting server on port %s (graceful)", cfg.AppPort)
	if err := utils.GraceServer(":"+cfg.AppPort, r, cancel); err != nil {
		utils.Sugar.Fatalf("server stopped with error: %v", err)
	}
}

// Command hitcount-cleanup removes hits older than KeepHitInDatabase.
//
// Usage:
//
//	hitcount-cleanup --config config/config.json
//	hitcount-cleanup --dry-run
//	hitcount-cleanup --retention weeks=8 --batch 500
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"go.uber.org/zap"

	"github.com/cppla/hitcount/config"
	"github.com/cppla/hitcount/hitcount"
)

// CLI defines the command-line interface.
type CLI struct {
	Config    string `short:"c" help:"Path to config file." type:"path" default:"config/config.json"`
	Retention string `help:"Override KeepHitInDatabase, e.g. days=30 or weeks=8." placeholder:"SPAN"`
	Batch     int    `help:"Rows deleted per transaction (0 = configured SweepBatchSize)."`
	DryRun    bool   `name:"dry-run" help:"Only report how many hits would be removed."`
	LogLevel  string `help:"Log level (debug, info, warn, error)." default:"info"`
}

func (c *CLI) Run() error {
	cfg, err := config.LoadFile(c.Config)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg.LogLevel = c.LogLevel

	retention := cfg.KeepHitInDatabase
	if c.Retention != "" {
		if retention, err = hitcount.ParseSpan(c.Retention); err != nil {
			return err
		}
	}
	d, err := retention.Duration()
	if err != nil {
		return err
	}

	zcfg := zap.NewProductionConfig()
	zcfg.Level = levelOf(c.LogLevel)
	logger, err := zcfg.Build()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	db, err := config.OpenDatabase(cfg)
	if err != nil {
		return err
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	batch := c.Batch
	if batch <= 0 {
		batch = cfg.SweepBatchSize
	}
	sw := hitcount.NewSweeper(db, batch, nil, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if c.DryRun {
		n, err := sw.Pending(ctx, d)
		if err != nil {
			return err
		}
		fmt.Printf("%d Hits older than %s would be removed\n", n, retention)
		return nil
	}

	removed, err := sw.Sweep(ctx, d)
	if err != nil {
		// batches already committed stay deleted
		return fmt.Errorf("removed %d Hits before failing: %w", removed, err)
	}
	fmt.Printf("Successfully removed %d Hits\n", removed)
	return nil
}

func levelOf(s string) zap.AtomicLevel {
	lvl, err := zap.ParseAtomicLevel(s)
	if err != nil {
		return zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return lvl
}

func main() {
	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("hitcount-cleanup"),
		kong.Description("Purge stored hits past the retention window. Counter totals are left untouched."),
		kong.UsageOnError(),
	)
	if err := ctx.Run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

package main

import (
	"context"
	"log/slog"

	"github.com/alejandrodnm/dipbot/config"
	"github.com/alejandrodnm/dipbot/internal/adapters/notify"
	"github.com/alejandrodnm/dipbot/internal/adapters/storage"
	"github.com/alejandrodnm/dipbot/internal/application/engine/live"
)

const reportHistoryRows = 20

// runReconcile polls every pending order once, persists the result and
// prints the report. It never places or cancels orders.
func runReconcile(ctx context.Context, engine *live.Engine, store *storage.SQLiteStorage, console *notify.Console, cfg *config.Config) error {
	slog.Info("=== OFFLINE RECONCILE ===", "monitors", len(engine.Monitors()))

	result, err := engine.Reconcile(ctx)
	if err != nil {
		return err
	}
	logCycle("reconcile complete", 1, result)

	runReport(ctx, engine, store, console, cfg)
	return nil
}

func runReport(ctx context.Context, engine *live.Engine, store *storage.SQLiteStorage, console *notify.Console, cfg *config.Config) {
	history, err := store.BankrollHistory(ctx, reportHistoryRows)
	if err != nil {
		slog.Warn("failed to load bankroll history", "err", err)
	}

	console.PrintReport(notify.ReportInput{
		Ledger:   engine.Ledger().Snapshot(),
		Starting: cfg.Trading.Bankroll,
		DryRun:   cfg.Risk.DryRun,
		Monitors: engine.Monitors(),
		History:  history,
	})
}

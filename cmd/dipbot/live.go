package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/alejandrodnm/dipbot/config"
	"github.com/alejandrodnm/dipbot/internal/application/engine/live"
)

func runLive(ctx context.Context, engine *live.Engine, cfg *config.Config, once bool) {
	mode := "LIVE (REAL MONEY)"
	if cfg.Risk.DryRun {
		mode = "DRY-RUN"
	}
	slog.Info("=== TRADING MODE: "+mode+" ===",
		"bankroll", fmt.Sprintf("$%.2f", cfg.Trading.Bankroll),
		"max_total_exposure", fmt.Sprintf("$%.2f", cfg.Safety.MaxTotalExposure),
		"max_markets", cfg.Safety.MaxConcurrentMarkets,
		"ladder", len(cfg.Trading.Ladder),
	)

	cycle := 1
	runLiveCycle(ctx, engine, cycle)
	if once {
		return
	}

	stopFile := cfg.Monitoring.StopFile
	ticker := time.NewTicker(cfg.PollInterval())
	defer ticker.Stop()

	slog.Info("trading started — press Ctrl+C or create the stop file to exit", "stop_file", stopFile)

	for {
		select {
		case <-ctx.Done():
			slog.Info("trading stopped (signal)", "total_cycles", cycle)
			return
		case <-ticker.C:
			if _, err := os.Stat(stopFile); err == nil {
				slog.Info("stop file detected — shutting down", "file", stopFile, "total_cycles", cycle)
				os.Remove(stopFile)
				return
			}
			cycle++
			runLiveCycle(ctx, engine, cycle)
		}
	}
}

func runLiveCycle(ctx context.Context, engine *live.Engine, cycle int) {
	result, err := engine.RunOnce(ctx)
	if err != nil {
		slog.Error("cycle failed", "cycle", cycle, "err", err)
		return
	}
	logCycle("cycle complete", cycle, result)
}

func logCycle(msg string, cycle int, result *live.CycleResult) {
	slog.Info(msg,
		"cycle", cycle,
		"active", result.Active,
		"discovered", result.Discovered,
		"orders", result.OrdersPlaced,
		"fills", result.Fills,
		"cancels", result.Cancels,
		"opened", result.PositionsOpened,
		"closed", result.PositionsClosed,
		"markets_closed", result.MarketsClosed,
		"pnl", fmt.Sprintf("$%.2f", result.RealizedPnL),
		"bankroll", fmt.Sprintf("$%.2f", result.Bankroll),
		"exposure", fmt.Sprintf("$%.2f", result.Exposure),
	)
	for _, w := range result.Warnings {
		slog.Warn("engine: warning", "msg", w)
	}
}

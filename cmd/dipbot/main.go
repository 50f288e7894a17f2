package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alejandrodnm/dipbot/config"
	"github.com/alejandrodnm/dipbot/internal/adapters/dryrun"
	"github.com/alejandrodnm/dipbot/internal/adapters/kalshi"
	"github.com/alejandrodnm/dipbot/internal/adapters/notify"
	"github.com/alejandrodnm/dipbot/internal/adapters/schedule"
	"github.com/alejandrodnm/dipbot/internal/adapters/storage"
	"github.com/alejandrodnm/dipbot/internal/adapters/telemetry"
	"github.com/alejandrodnm/dipbot/internal/application/engine/live"
	"github.com/alejandrodnm/dipbot/internal/domain"
	"github.com/alejandrodnm/dipbot/internal/ports"
)

func main() {
	os.Exit(run())
}

// run devuelve el exit code; os.Exit solo en main para que los defers
// (store, telemetría) se ejecuten siempre.
func run() int {
	configPath := flag.String("config", "config/config.yaml", "path to config file (.yaml or .toml)")
	once := flag.Bool("once", false, "run one tick and exit")
	dryRun := flag.Bool("dry-run", false, "simulate fills locally, never send mutating calls")
	reconcile := flag.Bool("reconcile", false, "poll pending orders once, persist, print report and exit")
	report := flag.Bool("report", false, "print bankroll, history, monitors and positions, then exit")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	flag.Parse()

	// antes de Load, para que Validate vea los valores de los flags
	applyFlagOverrides(*dryRun, *verbose, *logFormat)
	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		return 1
	}
	setupLogger(cfg.Log)

	slog.Info("dipbot starting",
		"config", *configPath,
		"interval", cfg.PollInterval(),
		"dry_run", cfg.Risk.DryRun,
		"dsn", cfg.Storage.DSN,
		"once", *once,
		"reconcile", *reconcile,
		"report", *report,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := storage.NewSQLiteStorage(cfg.Storage.DSN)
	if err != nil {
		slog.Error("failed to open storage", "err", err, "dsn", cfg.Storage.DSN)
		return 1
	}
	defer store.Close()

	exchange, err := buildExchange(ctx, cfg, *report)
	if err != nil {
		slog.Error("failed to set up exchange", "err", err)
		return 1
	}

	var events ports.TelemetrySink
	if !*report {
		sink, err := telemetry.Build(ctx, telemetryConfig(cfg))
		if err != nil {
			slog.Error("failed to set up telemetry", "err", err)
			return 1
		}
		defer func() {
			if err := sink.Close(); err != nil {
				slog.Warn("telemetry close", "err", err)
			}
			if n := sink.Dropped(); n > 0 {
				slog.Warn("telemetry: events dropped", "count", n)
			}
		}()
		events = sink
	}

	engine := live.New(exchange, schedule.NewCSVSource(cfg.Schedule.Files...), store, events, engineConfig(cfg))
	if err := engine.Restore(ctx); err != nil {
		if errors.Is(err, ports.ErrModeMismatch) {
			slog.Error("state file belongs to the other mode, set storage.dsn to a separate file", "err", err, "dsn", cfg.Storage.DSN)
			return 1
		}
		slog.Error("failed to restore state", "err", err)
		return 1
	}

	console := notify.NewConsole()

	switch {
	case *report:
		runReport(ctx, engine, store, console, cfg)
	case *reconcile:
		if err := runReconcile(ctx, engine, store, console, cfg); err != nil {
			slog.Error("reconcile failed", "err", err)
			return 1
		}
	default:
		runLive(ctx, engine, cfg, *once)
	}

	slog.Info("dipbot stopped cleanly")
	return 0
}

// applyFlagOverrides pasa los flags de la línea de comandos como variables
// de entorno, que Load aplica antes de defaults y Validate.
func applyFlagOverrides(dryRun, verbose bool, logFormat string) {
	if dryRun {
		os.Setenv("DIPBOT_DRY_RUN", "true")
	}
	if verbose {
		os.Setenv("LOG_LEVEL", "debug")
	}
	if logFormat != "" {
		os.Setenv("LOG_FORMAT", logFormat)
	}
}

// buildExchange creates the Kalshi client and, in dry-run, wraps it so no
// mutating call reaches the exchange. In live mode the balance probe must
// succeed: bad credentials stop the process here.
func buildExchange(ctx context.Context, cfg *config.Config, reportOnly bool) (ports.Exchange, error) {
	client := kalshi.NewClient(cfg.API.BaseURL, cfg.CallDelay())
	if cfg.API.KeyID != "" && cfg.API.PrivateKeyPath != "" {
		if err := client.WithCredentials(cfg.API.KeyID, cfg.API.PrivateKeyPath); err != nil {
			return nil, err
		}
	}

	if cfg.Risk.DryRun {
		slog.Info("dry-run: fills are simulated locally", "balance", fmt.Sprintf("$%.2f", cfg.Trading.Bankroll))
		return dryrun.New(client, cfg.Trading.Bankroll), nil
	}
	if reportOnly {
		return client, nil
	}

	balance, err := client.GetBalance(ctx)
	if err != nil {
		if errors.Is(err, ports.ErrUnauthorized) {
			return nil, fmt.Errorf("balance probe rejected, check KALSHI_API_KEY_ID and key file: %w", err)
		}
		return nil, fmt.Errorf("balance probe: %w", err)
	}
	slog.Info("kalshi: authenticated", "balance", fmt.Sprintf("$%.2f", balance))
	if balance < cfg.Trading.Bankroll {
		slog.Warn("kalshi: exchange balance below configured bankroll",
			"balance", fmt.Sprintf("$%.2f", balance),
			"bankroll", fmt.Sprintf("$%.2f", cfg.Trading.Bankroll))
	}
	return client, nil
}

func engineConfig(cfg *config.Config) live.Config {
	ladder := make([]domain.LadderLevel, len(cfg.Trading.Ladder))
	for i, l := range cfg.Trading.Ladder {
		ladder[i] = domain.LadderLevel{PriceCents: l.PriceCents, Multiplier: l.Multiplier}
	}
	mode := live.ModeLive
	if cfg.Risk.DryRun {
		mode = live.ModeDryRun
	}
	return live.Config{
		Bankroll:             cfg.Trading.Bankroll,
		KellyFraction:        cfg.Trading.KellyFraction,
		MaxExposurePct:       cfg.Trading.MaxExposurePct,
		MaxTotalExposure:     cfg.Safety.MaxTotalExposure,
		MaxConcurrentMarkets: cfg.Safety.MaxConcurrentMarkets,
		Ladder:               ladder,
		RevertFraction:       cfg.Trading.RevertFraction,
		ThresholdCents:       cfg.Trading.CheckpointThreshold,
		VolumeFloor:          cfg.Trading.VolumeFloor,
		VolumeWindowDays:     cfg.Trading.VolumeWindowDays,
		InPlayWindow:         cfg.InPlayWindow(),
		Lookahead:            cfg.Lookahead(),
		Mode:                 mode,
	}
}

func telemetryConfig(cfg *config.Config) telemetry.Config {
	t := cfg.Telemetry
	return telemetry.Config{
		Sinks:        t.Sinks,
		Buffer:       t.Buffer,
		PostgresDSN:  t.PostgresDSN,
		RedisAddr:    t.RedisAddr,
		RedisStream:  t.RedisStream,
		KafkaBrokers: t.KafkaBrokers,
		KafkaTopic:   t.KafkaTopic,
	}
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Config selects and configures the sinks.
type Config struct {
	Sinks        []string // log | postgres | redis | kafka
	Buffer       int
	PostgresDSN  string
	RedisAddr    string
	RedisStream  string
	KafkaBrokers []string
	KafkaTopic   string
}

// Build connects every configured sink and wraps them in a fan-out behind
// an async buffer. A sink that cannot connect is logged and left out: the
// bot trades without it. An unknown sink name is a configuration error.
func Build(ctx context.Context, cfg Config) (*Async, error) {
	fan := NewFanout()
	for _, name := range cfg.Sinks {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "log":
			fan.Add("log", LogSink{})
		case "postgres":
			s, err := NewPostgresSink(ctx, cfg.PostgresDSN)
			if err != nil {
				slog.Warn("telemetry: postgres sink disabled", "err", err)
				continue
			}
			fan.Add("postgres", s)
		case "redis":
			s, err := NewRedisSink(ctx, cfg.RedisAddr, cfg.RedisStream)
			if err != nil {
				slog.Warn("telemetry: redis sink disabled", "err", err)
				continue
			}
			fan.Add("redis", s)
		case "kafka":
			fan.Add("kafka", NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaTopic))
		default:
			fan.Close()
			return nil, fmt.Errorf("telemetry.Build: unknown sink %q", name)
		}
	}
	if fan.Len() == 0 {
		fan.Add("log", LogSink{})
	}

	slog.Info("telemetry: sinks ready", "sinks", fan.Len(), "buffer", cfg.Buffer)
	return NewAsync(fan, cfg.Buffer), nil
}

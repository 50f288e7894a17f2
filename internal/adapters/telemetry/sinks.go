package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"

	"github.com/alejandrodnm/dipbot/internal/domain"
)

// ── Log ────────────────────────────────────────────────────────────────────

// LogSink writes events to slog at debug level.
type LogSink struct{}

func (LogSink) Publish(_ context.Context, ev domain.Event) error {
	slog.Debug("telemetry: event", "type", ev.Type, "ticker", ev.Ticker, "data", ev.Data)
	return nil
}

func (LogSink) Close() error { return nil }

// ── Postgres ───────────────────────────────────────────────────────────────

const pgSchema = `
CREATE TABLE IF NOT EXISTS dipbot_events (
    id          BIGSERIAL PRIMARY KEY,
    event_type  TEXT        NOT NULL,
    ticker      TEXT        NOT NULL DEFAULT '',
    occurred_at TIMESTAMPTZ NOT NULL,
    data        JSONB       NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_dipbot_events_ticker ON dipbot_events(ticker, occurred_at);
`

const pgInsert = `INSERT INTO dipbot_events (event_type, ticker, occurred_at, data) VALUES ($1, $2, $3, $4)`

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresSink appends events to a table a dashboard can read.
type PostgresSink struct {
	db    execer
	close func()
}

// NewPostgresSink connects, pings and creates the events table.
func NewPostgresSink(ctx context.Context, dsn string) (*PostgresSink, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("telemetry.NewPostgresSink: parse dsn: %w", err)
	}
	cfg.MaxConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("telemetry.NewPostgresSink: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("telemetry.NewPostgresSink: ping: %w", err)
	}
	if _, err := pool.Exec(ctx, pgSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("telemetry.NewPostgresSink: apply schema: %w", err)
	}
	return &PostgresSink{db: pool, close: pool.Close}, nil
}

func (s *PostgresSink) Publish(ctx context.Context, ev domain.Event) error {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		return fmt.Errorf("postgres: marshal data: %w", err)
	}
	if _, err := s.db.Exec(ctx, pgInsert, string(ev.Type), ev.Ticker, ev.At.UTC(), data); err != nil {
		return fmt.Errorf("postgres: insert %s: %w", ev.Type, err)
	}
	return nil
}

func (s *PostgresSink) Close() error {
	if s.close != nil {
		s.close()
	}
	return nil
}

// ── Redis ──────────────────────────────────────────────────────────────────

const streamMaxLen = 10000

type streamAdder interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
	Close() error
}

// RedisSink appends events to a capped Redis stream.
type RedisSink struct {
	rdb    streamAdder
	stream string
}

// NewRedisSink connects and pings the server.
func NewRedisSink(ctx context.Context, addr, stream string) (*RedisSink, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("telemetry.NewRedisSink: ping %s: %w", addr, err)
	}
	return &RedisSink{rdb: rdb, stream: stream}, nil
}

func (s *RedisSink) Publish(ctx context.Context, ev domain.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("redis: marshal event: %w", err)
	}
	args := &redis.XAddArgs{
		Stream: s.stream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]any{
			"type":    string(ev.Type),
			"ticker":  ev.Ticker,
			"payload": payload,
		},
	}
	if err := s.rdb.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("redis: stream append %s: %w", s.stream, err)
	}
	return nil
}

func (s *RedisSink) Close() error {
	return s.rdb.Close()
}

// ── Kafka ──────────────────────────────────────────────────────────────────

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes events keyed by ticker, so one market's events stay
// ordered within a partition.
type KafkaSink struct {
	w messageWriter
}

// NewKafkaSink creates the writer. kafka-go connects lazily on first write.
func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	return &KafkaSink{w: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 100 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}}
}

func (s *KafkaSink) Publish(ctx context.Context, ev domain.Event) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("kafka: marshal event: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(ev.Ticker),
		Value: value,
		Time:  ev.At,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(ev.Type)},
		},
	}
	if err := s.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka: write %s: %w", ev.Type, err)
	}
	return nil
}

func (s *KafkaSink) Close() error {
	return s.w.Close()
}

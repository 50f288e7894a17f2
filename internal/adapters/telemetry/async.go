// Package telemetry publishes engine lifecycle events to external sinks.
// Nothing here may slow down or fail a trading tick: the engine publishes
// into a bounded buffer and a background goroutine does the I/O.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alejandrodnm/dipbot/internal/domain"
	"github.com/alejandrodnm/dipbot/internal/ports"
)

const (
	defaultBuffer  = 256
	publishTimeout = 5 * time.Second
)

var _ ports.TelemetrySink = (*Async)(nil)

// Async decouples the engine from a slow sink. Publish never blocks: when
// the buffer is full the event is dropped and counted.
type Async struct {
	next    ports.TelemetrySink
	events  chan domain.Event
	dropped atomic.Int64

	closeOnce sync.Once
	done      chan struct{}
}

// NewAsync starts the drain goroutine. Close must be called to flush.
func NewAsync(next ports.TelemetrySink, buffer int) *Async {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	a := &Async{
		next:   next,
		events: make(chan domain.Event, buffer),
		done:   make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *Async) Publish(_ context.Context, ev domain.Event) error {
	select {
	case a.events <- ev:
	default:
		n := a.dropped.Add(1)
		slog.Warn("telemetry: buffer full, event dropped", "type", ev.Type, "ticker", ev.Ticker, "dropped", n)
	}
	return nil
}

// Dropped returns how many events were discarded because the buffer was full.
func (a *Async) Dropped() int64 {
	return a.dropped.Load()
}

// Close stops accepting events, drains the buffer and closes the sink.
// Publish must not be called after Close.
func (a *Async) Close() error {
	var err error
	a.closeOnce.Do(func() {
		close(a.events)
		<-a.done
		err = a.next.Close()
	})
	return err
}

func (a *Async) run() {
	defer close(a.done)
	for ev := range a.events {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		if err := a.next.Publish(ctx, ev); err != nil {
			slog.Warn("telemetry: publish failed", "type", ev.Type, "ticker", ev.Ticker, "err", err)
		}
		cancel()
	}
}

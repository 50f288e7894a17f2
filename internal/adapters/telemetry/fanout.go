package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/alejandrodnm/dipbot/internal/domain"
	"github.com/alejandrodnm/dipbot/internal/ports"
)

// Fanout publishes every event to all sinks concurrently.
type Fanout struct {
	sinks []namedSink
}

type namedSink struct {
	name string
	sink ports.TelemetrySink
}

// NewFanout creates an empty fan-out; sinks are added with Add.
func NewFanout() *Fanout {
	return &Fanout{}
}

// Add registers a sink under name, used in error messages.
func (f *Fanout) Add(name string, s ports.TelemetrySink) {
	f.sinks = append(f.sinks, namedSink{name: name, sink: s})
}

// Len returns the number of registered sinks.
func (f *Fanout) Len() int {
	return len(f.sinks)
}

// Publish waits for every sink. One failing sink does not stop the others;
// the errors are joined.
func (f *Fanout) Publish(ctx context.Context, ev domain.Event) error {
	errs := make([]error, len(f.sinks))
	var g errgroup.Group
	for i, s := range f.sinks {
		g.Go(func() error {
			if err := s.sink.Publish(ctx, ev); err != nil {
				errs[i] = fmt.Errorf("%s: %w", s.name, err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

func (f *Fanout) Close() error {
	var errs []error
	for _, s := range f.sinks {
		if err := s.sink.Close(); err != nil {
			slog.Warn("telemetry: error closing sink", "sink", s.name, "err", err)
			errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
		}
	}
	return errors.Join(errs...)
}

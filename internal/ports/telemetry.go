package ports

import (
	"context"

	"github.com/alejandrodnm/dipbot/internal/domain"
)

// TelemetrySink receives lifecycle events for dashboards. Nothing written
// here is ever read back into trading decisions.
type TelemetrySink interface {
	// Publish delivers one event. Errors are logged by the caller and dropped.
	Publish(ctx context.Context, ev domain.Event) error

	// Close flushes and releases the sink.
	Close() error
}

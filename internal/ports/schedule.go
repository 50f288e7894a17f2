package ports

import (
	"context"
	"time"

	"github.com/alejandrodnm/dipbot/internal/domain"
)

// ScheduleSource yields candidate markets. It performs whatever matching is
// needed upstream; the engine only consumes ticker/kickoff pairs.
type ScheduleSource interface {
	// Upcoming returns markets whose kickoff falls in (now, now+lookahead].
	Upcoming(ctx context.Context, now time.Time, lookahead time.Duration) ([]domain.ScheduledMarket, error)
}

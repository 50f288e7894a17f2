package ports

import (
	"context"
	"errors"

	"github.com/alejandrodnm/dipbot/internal/domain"
)

var (
	// ErrNotFound is returned when the exchange does not know an order.
	// For status lookups it is ambiguous: the order may have filled.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized is returned for rejected credentials.
	ErrUnauthorized = errors.New("unauthorized")
)

// Exchange places, cancels, and monitors orders on the exchange and reads
// market data. Implementations are not expected to be reliable: every call
// may fail transiently.
type Exchange interface {
	// GetQuote returns the top of book for both sides of the market.
	GetQuote(ctx context.Context, ticker string) (domain.Quote, error)

	// PlaceOrder submits a limit order. The report may already say the
	// order executed.
	PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderReport, error)

	// CancelOrder cancels a resting order. Returns ErrNotFound when the order
	// is no longer resting.
	CancelOrder(ctx context.Context, orderID string) error

	// GetOrderStatus returns the exchange's view of the order, or ErrNotFound.
	GetOrderStatus(ctx context.Context, orderID string) (domain.OrderReport, error)

	// GetTrailingVolume returns the dollar volume traded over the last days.
	GetTrailingVolume(ctx context.Context, ticker string, days int) (float64, error)

	// GetBalance returns the available cash balance in dollars.
	GetBalance(ctx context.Context) (float64, error)
}

package dryrun_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/dipbot/internal/adapters/dryrun"
	"github.com/alejandrodnm/dipbot/internal/domain"
	"github.com/alejandrodnm/dipbot/internal/ports"
)

// readOnly fails every mutating call so the test proves none reach it.
type readOnly struct {
	quote domain.Quote
}

var errMutating = errors.New("mutating call reached the real exchange")

func (r readOnly) GetQuote(context.Context, string) (domain.Quote, error) { return r.quote, nil }
func (r readOnly) GetTrailingVolume(context.Context, string, int) (float64, error) {
	return 4200, nil
}
func (readOnly) PlaceOrder(context.Context, domain.OrderRequest) (domain.OrderReport, error) {
	return domain.OrderReport{}, errMutating
}
func (readOnly) CancelOrder(context.Context, string) error { return errMutating }
func (readOnly) GetOrderStatus(context.Context, string) (domain.OrderReport, error) {
	return domain.OrderReport{}, errMutating
}
func (readOnly) GetBalance(context.Context) (float64, error) { return 0, errMutating }

func TestGateway_PassesMarketData(t *testing.T) {
	q := domain.Quote{YesAsk: 60, NoAsk: 42}
	g := dryrun.New(readOnly{quote: q}, 100)

	got, err := g.GetQuote(context.Background(), "KX-A")
	require.NoError(t, err)
	assert.Equal(t, q, got)

	vol, err := g.GetTrailingVolume(context.Background(), "KX-A", 30)
	require.NoError(t, err)
	assert.Equal(t, 4200.0, vol)
}

func TestGateway_SimulatesImmediateFills(t *testing.T) {
	ctx := context.Background()
	g := dryrun.New(readOnly{}, 100)

	buy, err := g.PlaceOrder(ctx, domain.OrderRequest{
		Ticker: "KX-A", Side: domain.SideYes, Action: domain.ActionBuy, Count: 20, PriceCents: 49,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ReportExecuted, buy.State)
	assert.Equal(t, 20, buy.FilledCount)
	assert.Equal(t, 49, buy.FillPriceCents)
	assert.Contains(t, buy.OrderID, "dry-")

	status, err := g.GetOrderStatus(ctx, buy.OrderID)
	require.NoError(t, err)
	assert.Equal(t, buy, status)

	_, err = g.PlaceOrder(ctx, domain.OrderRequest{
		Ticker: "KX-A", Side: domain.SideYes, Action: domain.ActionSell, Count: 20, PriceCents: 55,
	})
	require.NoError(t, err)

	bal, err := g.GetBalance(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 101.20, bal, 1e-9)
}

func TestGateway_NeverRests(t *testing.T) {
	ctx := context.Background()
	g := dryrun.New(readOnly{}, 0)

	assert.ErrorIs(t, g.CancelOrder(ctx, "anything"), ports.ErrNotFound)
	_, err := g.GetOrderStatus(ctx, "unknown")
	assert.ErrorIs(t, err, ports.ErrNotFound)

	_, err = g.PlaceOrder(ctx, domain.OrderRequest{Count: 0})
	assert.Error(t, err)
}

// Package dryrun simulates order execution on top of a real exchange.
// Market data goes to the wrapped gateway; nothing that mutates the account
// ever reaches it.
package dryrun

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/alejandrodnm/dipbot/internal/domain"
	"github.com/alejandrodnm/dipbot/internal/ports"
)

var _ ports.Exchange = (*Gateway)(nil)

// Gateway fills every order immediately at its limit price.
type Gateway struct {
	inner ports.Exchange

	mu      sync.Mutex
	orders  map[string]domain.OrderReport
	balance float64
}

// New wraps inner. balance seeds the simulated cash balance.
func New(inner ports.Exchange, balance float64) *Gateway {
	return &Gateway{
		inner:   inner,
		orders:  make(map[string]domain.OrderReport),
		balance: balance,
	}
}

func (g *Gateway) GetQuote(ctx context.Context, ticker string) (domain.Quote, error) {
	return g.inner.GetQuote(ctx, ticker)
}

func (g *Gateway) GetTrailingVolume(ctx context.Context, ticker string, days int) (float64, error) {
	return g.inner.GetTrailingVolume(ctx, ticker, days)
}

// PlaceOrder records a simulated execution and moves the simulated balance.
func (g *Gateway) PlaceOrder(_ context.Context, req domain.OrderRequest) (domain.OrderReport, error) {
	if req.Count <= 0 {
		return domain.OrderReport{}, fmt.Errorf("dryrun.PlaceOrder: non-positive count %d", req.Count)
	}
	report := domain.OrderReport{
		OrderID:        "dry-" + uuid.New().String(),
		State:          domain.ReportExecuted,
		FilledCount:    req.Count,
		FillPriceCents: domain.ClampPrice(req.PriceCents),
	}
	cash := domain.CentsToDollars(report.FillPriceCents) * float64(req.Count)

	g.mu.Lock()
	g.orders[report.OrderID] = report
	if req.Action == domain.ActionBuy {
		g.balance -= cash
	} else {
		g.balance += cash
	}
	g.mu.Unlock()

	slog.Info("dryrun: simulated fill",
		"ticker", req.Ticker,
		"action", req.Action,
		"side", req.Side,
		"size", req.Count,
		"price", report.FillPriceCents,
		"post_only", req.PostOnly,
	)
	return report, nil
}

// CancelOrder always answers not found: simulated orders never rest.
func (g *Gateway) CancelOrder(_ context.Context, orderID string) error {
	return fmt.Errorf("dryrun.CancelOrder %s: %w", orderID, ports.ErrNotFound)
}

func (g *Gateway) GetOrderStatus(_ context.Context, orderID string) (domain.OrderReport, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	r, ok := g.orders[orderID]
	if !ok {
		return domain.OrderReport{}, fmt.Errorf("dryrun.GetOrderStatus %s: %w", orderID, ports.ErrNotFound)
	}
	return r, nil
}

// GetBalance returns the simulated balance; the real account is never read.
func (g *Gateway) GetBalance(context.Context) (float64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.balance, nil
}

package live

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/dipbot/internal/domain"
)

// settlePositions archives every position that is fully sold and can no
// longer grow, booking its P&L exactly once.
func (le *Engine) settlePositions(ctx context.Context, m *domain.MarketMonitor, now time.Time) {
	for _, p := range append([]*domain.Position(nil), m.Positions...) {
		if p.Unsold() > 0 || m.LiveSell(p) != nil {
			continue
		}
		if entry := m.OrderByID(p.EntryOrderID); entry != nil && !entry.Status.IsTerminal() {
			continue
		}
		le.closePosition(ctx, m, p, now)
	}
}

// closePosition archivea la posición, libera su exposición y actualiza el
// bankroll con el P&L realizado.
func (le *Engine) closePosition(ctx context.Context, m *domain.MarketMonitor, p *domain.Position, now time.Time) {
	closedAt := now
	p.ClosedAt = &closedAt
	m.Archive(p)

	committed := p.CostBasis()
	if entry := m.OrderByID(p.EntryOrderID); entry != nil {
		committed = domain.CentsToDollars(entry.PriceCents) * float64(p.Size)
	}
	le.ledger.Release(committed, now)

	pnl := p.RealizedPnL()
	bankroll := le.ledger.Realize(pnl, now)
	le.result.PositionsClosed++
	le.result.RealizedPnL += pnl

	slog.Info("engine: position closed",
		"ticker", m.Ticker,
		"side", p.Side,
		"entry", p.EntryPriceCents,
		"size", p.Size,
		"pnl", fmt.Sprintf("$%.2f", pnl),
		"bankroll", fmt.Sprintf("$%.2f", bankroll),
	)
	le.emit(ctx, domain.EventPositionClosed, m.Ticker, positionData(p))

	change := domain.BankrollChange{
		Ticker:    m.Ticker,
		Reason:    "position_closed",
		Delta:     pnl,
		Balance:   bankroll,
		ChangedAt: now,
	}
	le.emit(ctx, domain.EventBankrollChanged, m.Ticker, map[string]any{
		"reason":  change.Reason,
		"delta":   change.Delta,
		"balance": change.Balance,
	})
	if le.store != nil {
		if err := le.store.RecordBankrollChange(ctx, change); err != nil {
			slog.Warn("engine: error recording bankroll change", "ticker", m.Ticker, "err", err)
		}
	}
}

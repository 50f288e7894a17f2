package live

import (
	"context"
	"log/slog"
	"time"

	"github.com/alejandrodnm/dipbot/internal/domain"
)

// revertIfBracketFilled moves the market to REVERTING once any bracket sell
// has a fill, and cancels the remaining buys. The check reads order state,
// so it also fires after a restart or an offline reconcile.
func (le *Engine) revertIfBracketFilled(ctx context.Context, m *domain.MarketMonitor, now time.Time) bool {
	if m.Phase != domain.PhaseNoPosition && m.Phase != domain.PhaseBracketed {
		return false
	}
	filled := false
	for _, o := range m.Orders {
		if o.Role == domain.RoleBracket && o.FilledCount > 0 {
			filled = true
			break
		}
	}
	if !filled {
		return false
	}

	le.setPhase(ctx, m, domain.PhaseReverting, now)
	le.cancelBuys(ctx, m, now)
	return true
}

// ensureBrackets keeps exactly one bracket sell per position, sized to its
// unsold quantity.
func (le *Engine) ensureBrackets(ctx context.Context, m *domain.MarketMonitor, now time.Time) {
	if m.Phase != domain.PhaseBracketed {
		return
	}
	for _, p := range m.Positions {
		le.ensureBracket(ctx, m, p, now)
	}
}

func (le *Engine) ensureBracket(ctx context.Context, m *domain.MarketMonitor, p *domain.Position, now time.Time) {
	if p.Unsold() == 0 {
		return
	}
	if live := m.LiveSell(p); live != nil {
		if live.Remaining() == p.Unsold() {
			return
		}
		// The position grew since the bracket was placed: replace it.
		if !le.cancelOrder(ctx, m, live, now) || p.Unsold() == 0 {
			return
		}
	}

	pregame := m.PregameCents
	if pregame == 0 {
		pregame = p.EntryPriceCents
	}
	price := domain.BracketPrice(p.EntryPriceCents, pregame, le.cfg.RevertFraction)

	o, err := le.placeOrder(ctx, m, orderParams{
		side:       p.Side,
		action:     domain.ActionSell,
		role:       domain.RoleBracket,
		price:      price,
		size:       p.Unsold(),
		positionID: p.ID,
	}, now)
	if err != nil {
		slog.Warn("engine: error placing bracket, retried next tick",
			"ticker", m.Ticker, "position", p.ID, "err", err)
		le.warn("%s: bracket failed: %v", m.Ticker, err)
		return
	}
	p.SellOrderID = o.ID
}

// flatten runs the deadline exit. Buys are cancelled first, then brackets,
// then every position with unsold contracts and no live sell gets one
// post-only sell priced off the current book. Repeating it on a later tick
// only fills the gaps.
func (le *Engine) flatten(ctx context.Context, m *domain.MarketMonitor, now time.Time) {
	le.cancelBuys(ctx, m, now)

	var quote *domain.Quote
	for _, p := range m.Positions {
		if live := m.LiveSell(p); live != nil {
			if live.Role == domain.RoleFlatten && live.Remaining() == p.Unsold() {
				continue
			}
			if !le.cancelOrder(ctx, m, live, now) {
				continue
			}
		}
		if p.Unsold() == 0 {
			continue
		}

		if quote == nil {
			q, err := le.exchange.GetQuote(ctx, m.Ticker)
			if err != nil {
				slog.Warn("engine: quote failed, flatten retried next tick", "ticker", m.Ticker, "err", err)
				return
			}
			quote = &q
		}
		price, ok := domain.MakerSellPrice(quote.Bid(p.Side), quote.Ask(p.Side))
		if !ok {
			slog.Warn("engine: empty book, flatten retried next tick", "ticker", m.Ticker, "side", p.Side)
			return
		}

		o, err := le.placeOrder(ctx, m, orderParams{
			side:       p.Side,
			action:     domain.ActionSell,
			role:       domain.RoleFlatten,
			price:      price,
			size:       p.Unsold(),
			positionID: p.ID,
		}, now)
		if err != nil {
			slog.Warn("engine: error placing flatten sell, retried next tick",
				"ticker", m.Ticker, "position", p.ID, "err", err)
			le.warn("%s: flatten failed: %v", m.Ticker, err)
			continue
		}
		p.SellOrderID = o.ID
	}
}

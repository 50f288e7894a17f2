package live

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/dipbot/internal/domain"
	"github.com/alejandrodnm/dipbot/internal/ports"
)

// orderParams describes an order before it exists.
type orderParams struct {
	side       domain.Side
	action     domain.OrderAction
	role       domain.OrderRole
	price      int
	size       int
	positionID string
}

// placeOrder submits one limit order and records it on the monitor. When
// the exchange reports the order already executed, the fill is applied at
// once so the order never sits in the pending set.
func (le *Engine) placeOrder(ctx context.Context, m *domain.MarketMonitor, op orderParams, now time.Time) (*domain.Order, error) {
	if op.size <= 0 {
		return nil, fmt.Errorf("place %s %s: non-positive size %d", op.action, op.role, op.size)
	}
	o := &domain.Order{
		ID:            le.newID(),
		Ticker:        m.Ticker,
		Side:          op.side,
		Action:        op.action,
		Role:          op.role,
		PriceCents:    domain.ClampPrice(op.price),
		RequestedSize: op.size,
		Status:        domain.StatusPending,
		PositionID:    op.positionID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	report, err := le.exchange.PlaceOrder(ctx, domain.OrderRequest{
		ClientOrderID: o.ID,
		Ticker:        o.Ticker,
		Side:          o.Side,
		Action:        o.Action,
		Count:         o.RequestedSize,
		PriceCents:    o.PriceCents,
		PostOnly:      op.role == domain.RoleFlatten,
	})
	if err != nil {
		return nil, fmt.Errorf("place %s %s %d@%d¢: %w", o.Action, o.Role, o.RequestedSize, o.PriceCents, err)
	}
	o.ExchangeID = report.OrderID
	m.Orders = append(m.Orders, o)
	if o.Action == domain.ActionBuy {
		le.ledger.Commit(o.Notional(), now)
	}
	le.result.OrdersPlaced++

	slog.Info("engine: order placed",
		"ticker", o.Ticker,
		"action", o.Action,
		"role", o.Role,
		"side", o.Side,
		"price", o.PriceCents,
		"size", o.RequestedSize,
		"exchange_id", o.ExchangeID,
		"state", report.State,
	)
	le.emit(ctx, domain.EventOrderPlaced, o.Ticker, orderData(o))

	if report.State == domain.ReportExecuted || report.FilledCount > 0 {
		le.applyDecision(ctx, m, o, domain.Reconcile(*o, &report), now)
	}
	return o, nil
}

// pollPendingOrders queries every non-terminal order once and applies the
// reconciliation decision. Safe to call repeatedly: terminal orders are
// skipped and fills are applied as deltas against the local record.
func (le *Engine) pollPendingOrders(ctx context.Context, m *domain.MarketMonitor, now time.Time) {
	for _, o := range m.PendingOrders() {
		if o.ExchangeID == "" {
			continue
		}

		report, err := le.exchange.GetOrderStatus(ctx, o.ExchangeID)
		var reportPtr *domain.OrderReport
		switch {
		case errors.Is(err, ports.ErrNotFound):
			reportPtr = nil
		case err != nil:
			slog.Warn("engine: order status failed, retried next tick",
				"ticker", m.Ticker, "exchange_id", o.ExchangeID, "err", err)
			continue
		default:
			reportPtr = &report
		}

		d := domain.Reconcile(*o, reportPtr)
		if d.Unresolved {
			slog.Warn("engine: order not found and size unknown; left pending for manual review",
				"ticker", m.Ticker, "exchange_id", o.ExchangeID)
			le.warn("%s: order %s unresolved", m.Ticker, o.ExchangeID)
			le.emit(ctx, domain.EventReconcileUnresolved, m.Ticker, orderData(o))
			continue
		}
		if d.Inferred {
			slog.Info("engine: fill inferred from local record",
				"ticker", m.Ticker, "exchange_id", o.ExchangeID, "reason", d.Reason, "size", d.FilledCount)
		}
		le.applyDecision(ctx, m, o, d, now)
	}
}

// applyDecision writes a reconciliation decision to the order and turns new
// fills into position changes.
func (le *Engine) applyDecision(ctx context.Context, m *domain.MarketMonitor, o *domain.Order, d domain.Decision, now time.Time) {
	if !d.Changed {
		return
	}
	delta := d.FilledCount - o.FilledCount
	wasTerminal := o.Status.IsTerminal()

	o.Status = d.Status
	o.FilledCount = d.FilledCount
	o.FillPriceCents = d.FillPriceCents
	o.UpdatedAt = now

	if delta > 0 {
		le.result.Fills++
		slog.Info("engine: order filled",
			"ticker", o.Ticker,
			"action", o.Action,
			"role", o.Role,
			"new", delta,
			"filled", o.FilledCount,
			"requested", o.RequestedSize,
			"price", o.EffectiveFillPrice(),
		)
		data := orderData(o)
		data["new_fills"] = delta
		le.emit(ctx, domain.EventOrderFilled, o.Ticker, data)

		switch o.Action {
		case domain.ActionBuy:
			le.recordEntryFill(ctx, m, o, delta, now)
		case domain.ActionSell:
			le.recordExitFill(m, o, delta)
		}
	}

	if wasTerminal || !o.Status.IsTerminal() {
		return
	}
	if o.Action == domain.ActionBuy && o.Remaining() > 0 {
		le.ledger.Release(domain.CentsToDollars(o.PriceCents)*float64(o.Remaining()), now)
	}
	if o.Status == domain.StatusCancelled {
		le.result.Cancels++
		le.emit(ctx, domain.EventOrderCancelled, o.Ticker, orderData(o))
	}
}

// recordEntryFill opens the position for a buy order on its first fill and
// grows it on later ones. Positions are matched by entry order id, so a
// re-polled order never opens a second one.
func (le *Engine) recordEntryFill(ctx context.Context, m *domain.MarketMonitor, o *domain.Order, delta int, now time.Time) {
	if m.FavoriteSide != "" && o.Side != m.FavoriteSide {
		slog.Error("engine: buy fill on non-favorite side ignored",
			"ticker", m.Ticker, "side", o.Side, "favorite", m.FavoriteSide)
		return
	}

	p := m.PositionForEntry(o.ID)
	if p == nil {
		p = &domain.Position{
			ID:           le.newID(),
			Ticker:       m.Ticker,
			Side:         o.Side,
			EntryOrderID: o.ID,
			EntryTime:    now,
		}
		m.Positions = append(m.Positions, p)
		o.PositionID = p.ID
		le.result.PositionsOpened++
		defer func() {
			slog.Info("engine: position opened",
				"ticker", m.Ticker, "side", p.Side, "entry", p.EntryPriceCents, "size", p.Size)
			le.emit(ctx, domain.EventPositionOpened, m.Ticker, positionData(p))
		}()
		if m.Phase == domain.PhaseNoPosition {
			le.setPhase(ctx, m, domain.PhaseBracketed, now)
		}
	}
	p.Size += delta
	p.EntryPriceCents = o.EffectiveFillPrice()
}

// recordExitFill credits a sell fill to its position.
func (le *Engine) recordExitFill(m *domain.MarketMonitor, o *domain.Order, delta int) {
	p := m.PositionByID(o.PositionID)
	if p == nil {
		slog.Warn("engine: sell fill for unknown position",
			"ticker", m.Ticker, "exchange_id", o.ExchangeID, "position", o.PositionID)
		return
	}
	p.RecordSale(delta, o.EffectiveFillPrice())
}

// cancelOrder cancels one order and reports whether it is terminal
// afterwards. Terminal orders are a no-op. A "not found" answer means the
// order already left the book; it is logged, not retried, and the
// reconciler resolves it on a later poll.
func (le *Engine) cancelOrder(ctx context.Context, m *domain.MarketMonitor, o *domain.Order, now time.Time) bool {
	if o.Status.IsTerminal() {
		return true
	}
	if o.CancelAttempted {
		return false
	}

	err := le.exchange.CancelOrder(ctx, o.ExchangeID)
	switch {
	case errors.Is(err, ports.ErrNotFound):
		o.CancelAttempted = true
		o.UpdatedAt = now
		slog.Info("engine: cancel found nothing resting; awaiting reconciliation",
			"ticker", m.Ticker, "exchange_id", o.ExchangeID, "role", o.Role)
		return false
	case err != nil:
		slog.Warn("engine: cancel failed, retried next tick",
			"ticker", m.Ticker, "exchange_id", o.ExchangeID, "err", err)
		return false
	}

	// Read back the final fill count. Our cancel succeeded, so anything but
	// an explicit execution is a cancellation.
	final := domain.OrderReport{State: domain.ReportCanceled, FilledCount: o.FilledCount}
	if report, err := le.exchange.GetOrderStatus(ctx, o.ExchangeID); err == nil {
		final = report
		if final.State != domain.ReportExecuted {
			final.State = domain.ReportCanceled
		}
	}
	le.applyDecision(ctx, m, o, domain.Reconcile(*o, &final), now)
	return o.Status.IsTerminal()
}

// cancelBuys cancels every pending entry order. Returns true when none
// remain pending.
func (le *Engine) cancelBuys(ctx context.Context, m *domain.MarketMonitor, now time.Time) bool {
	done := true
	for _, o := range m.PendingBuys() {
		if !le.cancelOrder(ctx, m, o, now) {
			done = false
		}
	}
	return done
}

func orderData(o *domain.Order) map[string]any {
	return map[string]any{
		"order_id":    o.ID,
		"exchange_id": o.ExchangeID,
		"side":        string(o.Side),
		"action":      string(o.Action),
		"role":        string(o.Role),
		"price_cents": o.PriceCents,
		"size":        o.RequestedSize,
		"filled":      o.FilledCount,
		"status":      string(o.Status),
	}
}

func positionData(p *domain.Position) map[string]any {
	return map[string]any{
		"position_id": p.ID,
		"side":        string(p.Side),
		"entry_cents": p.EntryPriceCents,
		"size":        p.Size,
		"sold":        p.SoldCount,
		"pnl_usd":     p.RealizedPnL(),
	}
}

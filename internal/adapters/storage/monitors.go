package storage

// monitors.go: persistencia de monitores con sus órdenes y posiciones.
//
// SaveMonitor escribe el agregado completo en una transacción: el engine lo
// llama una vez por mercado y tick, así que tras un crash el estado en disco
// es como mucho un tick más viejo que el real.

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/alejandrodnm/dipbot/internal/domain"
)

// ─── Monitors ────────────────────────────────────────────────────────────────

// SaveMonitor hace upsert del monitor, sus órdenes y sus posiciones.
func (s *SQLiteStorage) SaveMonitor(ctx context.Context, m *domain.MarketMonitor) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.SaveMonitor: begin tx: %w", err)
	}
	defer tx.Rollback()

	var cps [6]any
	for i, k := range domain.CheckpointKinds {
		if c := m.Checkpoint(k); c != nil {
			cps[2*i] = c.PriceCents
			cps[2*i+1] = c.CapturedAt.UTC()
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO monitors
		  (ticker, event_ticker, title, kickoff, deadline,
		   cp_6h_cents, cp_6h_at, cp_3h_cents, cp_3h_at, cp_30m_cents, cp_30m_at,
		   eligibility, favorite_side, pregame_cents, phase, rejection,
		   discovered_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		m.Ticker, m.EventTicker, m.Title, m.Kickoff.UTC(), m.Deadline.UTC(),
		cps[0], cps[1], cps[2], cps[3], cps[4], cps[5],
		m.Eligibility.String(), string(m.FavoriteSide), m.PregameCents, string(m.Phase), m.Rejection,
		m.DiscoveredAt.UTC(), m.UpdatedAt.UTC(),
	); err != nil {
		return fmt.Errorf("storage.SaveMonitor: upsert %s: %w", m.Ticker, err)
	}

	for _, o := range m.Orders {
		if err := saveOrder(ctx, tx, o); err != nil {
			return fmt.Errorf("storage.SaveMonitor: order %s: %w", o.ID, err)
		}
	}
	for _, p := range m.Positions {
		if err := savePosition(ctx, tx, p); err != nil {
			return fmt.Errorf("storage.SaveMonitor: position %s: %w", p.ID, err)
		}
	}
	for _, p := range m.Archived {
		if err := savePosition(ctx, tx, p); err != nil {
			return fmt.Errorf("storage.SaveMonitor: position %s: %w", p.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.SaveMonitor: commit: %w", err)
	}
	return nil
}

// LoadActiveMonitors devuelve los monitores no cerrados, por kickoff.
func (s *SQLiteStorage) LoadActiveMonitors(ctx context.Context) ([]*domain.MarketMonitor, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ticker, event_ticker, title, kickoff, deadline,
		       cp_6h_cents, cp_6h_at, cp_3h_cents, cp_3h_at, cp_30m_cents, cp_30m_at,
		       eligibility, favorite_side, pregame_cents, phase, rejection,
		       discovered_at, updated_at
		FROM monitors
		WHERE phase != ?
		ORDER BY kickoff ASC, ticker ASC`, string(domain.PhaseClosed))
	if err != nil {
		return nil, fmt.Errorf("storage.LoadActiveMonitors: query: %w", err)
	}

	var monitors []*domain.MarketMonitor
	for rows.Next() {
		m, err := scanMonitor(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("storage.LoadActiveMonitors: scan row: %w", err)
		}
		monitors = append(monitors, m)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage.LoadActiveMonitors: %w", err)
	}

	// Las órdenes y posiciones se cargan después de cerrar el cursor:
	// con una sola conexión no se pueden anidar queries.
	for _, m := range monitors {
		if m.Orders, err = s.queryOrders(ctx, m.Ticker); err != nil {
			return nil, fmt.Errorf("storage.LoadActiveMonitors: orders %s: %w", m.Ticker, err)
		}
		positions, err := s.queryPositions(ctx, m.Ticker)
		if err != nil {
			return nil, fmt.Errorf("storage.LoadActiveMonitors: positions %s: %w", m.Ticker, err)
		}
		for _, p := range positions {
			if p.IsClosed() {
				m.Archived = append(m.Archived, p)
			} else {
				m.Positions = append(m.Positions, p)
			}
		}
	}
	return monitors, nil
}

// ClosedTickers devuelve los tickers en CLOSED.
func (s *SQLiteStorage) ClosedTickers(ctx context.Context) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ticker FROM monitors WHERE phase = ?`, string(domain.PhaseClosed))
	if err != nil {
		return nil, fmt.Errorf("storage.ClosedTickers: query: %w", err)
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("storage.ClosedTickers: scan row: %w", err)
		}
		out[t] = true
	}
	return out, rows.Err()
}

func scanMonitor(rows *sql.Rows) (*domain.MarketMonitor, error) {
	var m domain.MarketMonitor
	var cpCents [3]sql.NullInt64
	var cpAt [3]sql.NullTime
	var eligibility, side, phase string

	err := rows.Scan(
		&m.Ticker, &m.EventTicker, &m.Title, &m.Kickoff, &m.Deadline,
		&cpCents[0], &cpAt[0], &cpCents[1], &cpAt[1], &cpCents[2], &cpAt[2],
		&eligibility, &side, &m.PregameCents, &phase, &m.Rejection,
		&m.DiscoveredAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	for i, k := range domain.CheckpointKinds {
		if cpCents[i].Valid {
			m.Checkpoints[k] = &domain.Checkpoint{
				PriceCents: int(cpCents[i].Int64),
				CapturedAt: cpAt[i].Time,
			}
		}
	}
	m.Eligibility = domain.ParseEligibility(eligibility)
	m.FavoriteSide = domain.Side(side)
	m.Phase = domain.Phase(phase)
	return &m, nil
}

// ─── Orders ──────────────────────────────────────────────────────────────────

func saveOrder(ctx context.Context, tx *sql.Tx, o *domain.Order) error {
	_, err := tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO orders
		  (id, exchange_id, ticker, side, action, role, price_cents, requested_size,
		   filled_count, fill_price_cents, status, position_id, cancel_attempted,
		   created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		o.ID, o.ExchangeID, o.Ticker, string(o.Side), string(o.Action), string(o.Role),
		o.PriceCents, o.RequestedSize, o.FilledCount, o.FillPriceCents, string(o.Status),
		o.PositionID, boolToInt(o.CancelAttempted), o.CreatedAt.UTC(), o.UpdatedAt.UTC(),
	)
	return err
}

func (s *SQLiteStorage) queryOrders(ctx context.Context, ticker string) ([]*domain.Order, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, exchange_id, ticker, side, action, role, price_cents, requested_size,
		       filled_count, fill_price_cents, status, position_id, cancel_attempted,
		       created_at, updated_at
		FROM orders WHERE ticker = ?
		ORDER BY created_at ASC, rowid ASC`, ticker)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []*domain.Order
	for rows.Next() {
		var o domain.Order
		var side, action, role, status string
		var cancelAttempted int
		if err := rows.Scan(
			&o.ID, &o.ExchangeID, &o.Ticker, &side, &action, &role,
			&o.PriceCents, &o.RequestedSize, &o.FilledCount, &o.FillPriceCents, &status,
			&o.PositionID, &cancelAttempted, &o.CreatedAt, &o.UpdatedAt,
		); err != nil {
			return nil, err
		}
		o.Side = domain.Side(side)
		o.Action = domain.OrderAction(action)
		o.Role = domain.OrderRole(role)
		o.Status = domain.OrderStatus(status)
		o.CancelAttempted = cancelAttempted != 0
		orders = append(orders, &o)
	}
	return orders, rows.Err()
}

// ─── Positions ───────────────────────────────────────────────────────────────

func savePosition(ctx context.Context, tx *sql.Tx, p *domain.Position) error {
	_, err := tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO positions
		  (id, ticker, side, entry_order_id, entry_price_cents, size, sold_count,
		   proceeds_cents, entry_time, sell_order_id, closed_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		p.ID, p.Ticker, string(p.Side), p.EntryOrderID, p.EntryPriceCents, p.Size, p.SoldCount,
		p.ProceedsCents, p.EntryTime.UTC(), p.SellOrderID, nullTime(p.ClosedAt),
	)
	return err
}

func (s *SQLiteStorage) queryPositions(ctx context.Context, ticker string) ([]*domain.Position, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, ticker, side, entry_order_id, entry_price_cents, size, sold_count,
		       proceeds_cents, entry_time, sell_order_id, closed_at
		FROM positions WHERE ticker = ?
		ORDER BY entry_time ASC, rowid ASC`, ticker)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var positions []*domain.Position
	for rows.Next() {
		var p domain.Position
		var side string
		var closedAt sql.NullTime
		if err := rows.Scan(
			&p.ID, &p.Ticker, &side, &p.EntryOrderID, &p.EntryPriceCents, &p.Size, &p.SoldCount,
			&p.ProceedsCents, &p.EntryTime, &p.SellOrderID, &closedAt,
		); err != nil {
			return nil, err
		}
		p.Side = domain.Side(side)
		if closedAt.Valid {
			t := closedAt.Time
			p.ClosedAt = &t
		}
		positions = append(positions, &p)
	}
	return positions, rows.Err()
}

package storage_test

import (
	"context"
	"testing"
	"time"

	"github.com/alejandrodnm/dipbot/internal/adapters/storage"
	"github.com/alejandrodnm/dipbot/internal/domain"
	"github.com/alejandrodnm/dipbot/internal/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var kickoff = time.Date(2025, 10, 19, 20, 25, 0, 0, time.UTC)

func makeMonitor(ticker string) *domain.MarketMonitor {
	now := kickoff.Add(-6 * time.Hour)
	m := domain.NewMarketMonitor(domain.ScheduledMarket{
		Ticker:      ticker,
		EventTicker: "KXNFLGAME-25OCT19KCLV",
		Title:       "Kansas City at Las Vegas",
		Kickoff:     kickoff,
	}, 90*time.Minute, now)

	m.ObserveFavorite(domain.SideYes)
	m.CaptureCheckpoint(domain.Checkpoint6h, 65, now)
	m.CaptureCheckpoint(domain.Checkpoint30m, 60, kickoff.Add(-20*time.Minute))
	m.SetEligibility(domain.EligibilityEligible)
	m.Phase = domain.PhaseBracketed

	entry := &domain.Order{
		ID: "local-1", ExchangeID: "ex-1", Ticker: ticker, Side: domain.SideYes,
		Action: domain.ActionBuy, Role: domain.RoleEntry, PriceCents: 49, RequestedSize: 20,
		FilledCount: 20, FillPriceCents: 49, Status: domain.StatusFilled, PositionID: "pos-1",
		CreatedAt: now, UpdatedAt: now,
	}
	resting := &domain.Order{
		ID: "local-2", ExchangeID: "ex-2", Ticker: ticker, Side: domain.SideYes,
		Action: domain.ActionBuy, Role: domain.RoleEntry, PriceCents: 45, RequestedSize: 33,
		Status: domain.StatusPending, CancelAttempted: true,
		CreatedAt: now.Add(time.Second), UpdatedAt: now,
	}
	bracket := &domain.Order{
		ID: "local-3", ExchangeID: "ex-3", Ticker: ticker, Side: domain.SideYes,
		Action: domain.ActionSell, Role: domain.RoleBracket, PriceCents: 57, RequestedSize: 20,
		FilledCount: 5, Status: domain.StatusPartiallyFilled, PositionID: "pos-1",
		CreatedAt: now.Add(2 * time.Second), UpdatedAt: now,
	}
	m.Orders = []*domain.Order{entry, resting, bracket}
	m.Positions = []*domain.Position{{
		ID: "pos-1", Ticker: ticker, Side: domain.SideYes, EntryOrderID: "local-1",
		EntryPriceCents: 49, Size: 20, SoldCount: 5, ProceedsCents: 285,
		EntryTime: now, SellOrderID: "local-3",
	}}
	return m
}

func TestSQLiteStorage_MonitorRoundTrip(t *testing.T) {
	db, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	defer db.Close()
	ctx := context.Background()

	want := makeMonitor("KX-KC")
	require.NoError(t, db.SaveMonitor(ctx, want))

	got, err := db.LoadActiveMonitors(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	m := got[0]

	assert.Equal(t, want.Ticker, m.Ticker)
	assert.Equal(t, want.Title, m.Title)
	assert.True(t, want.Kickoff.Equal(m.Kickoff))
	assert.True(t, want.Deadline.Equal(m.Deadline))
	assert.Equal(t, domain.EligibilityEligible, m.Eligibility)
	assert.Equal(t, domain.SideYes, m.FavoriteSide)
	assert.Equal(t, 65, m.PregameCents)
	assert.Equal(t, domain.PhaseBracketed, m.Phase)

	require.NotNil(t, m.Checkpoint(domain.Checkpoint6h))
	assert.Equal(t, 65, m.Checkpoint(domain.Checkpoint6h).PriceCents)
	assert.Nil(t, m.Checkpoint(domain.Checkpoint3h))
	require.NotNil(t, m.Checkpoint(domain.Checkpoint30m))
	assert.Equal(t, 60, m.Checkpoint(domain.Checkpoint30m).PriceCents)

	require.Len(t, m.Orders, 3)
	assert.Equal(t, []string{"local-1", "local-2", "local-3"},
		[]string{m.Orders[0].ID, m.Orders[1].ID, m.Orders[2].ID})
	assert.Equal(t, domain.StatusPartiallyFilled, m.Orders[2].Status)
	assert.Equal(t, domain.RoleBracket, m.Orders[2].Role)
	assert.True(t, m.Orders[1].CancelAttempted)
	assert.Len(t, m.PendingOrders(), 2)

	require.Len(t, m.Positions, 1)
	p := m.Positions[0]
	assert.Equal(t, 15, p.Unsold())
	assert.Equal(t, "local-3", p.SellOrderID)
	assert.False(t, p.IsClosed())
}

func TestSQLiteStorage_ArchivedPositionsAndClosedTickers(t *testing.T) {
	db, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	defer db.Close()
	ctx := context.Background()

	open := makeMonitor("KX-OPEN")
	closedAt := kickoff.Add(time.Hour)
	open.Positions[0].ClosedAt = &closedAt
	open.Archive(open.Positions[0])
	require.NoError(t, db.SaveMonitor(ctx, open))

	done := makeMonitor("KX-DONE")
	done.Phase = domain.PhaseClosed
	require.NoError(t, db.SaveMonitor(ctx, done))

	active, err := db.LoadActiveMonitors(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "KX-OPEN", active[0].Ticker)
	assert.Empty(t, active[0].Positions)
	require.Len(t, active[0].Archived, 1)
	assert.True(t, active[0].Archived[0].IsClosed())

	closed, err := db.ClosedTickers(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"KX-DONE": true}, closed)
}

func TestSQLiteStorage_SaveMonitorIsUpsert(t *testing.T) {
	db, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	defer db.Close()
	ctx := context.Background()

	m := makeMonitor("KX-KC")
	require.NoError(t, db.SaveMonitor(ctx, m))

	m.Orders[1].Status = domain.StatusCancelled
	m.Phase = domain.PhaseReverting
	require.NoError(t, db.SaveMonitor(ctx, m))

	got, err := db.LoadActiveMonitors(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Len(t, got[0].Orders, 3)
	assert.Equal(t, domain.StatusCancelled, got[0].Orders[1].Status)
	assert.Equal(t, domain.PhaseReverting, got[0].Phase)
}

func TestSQLiteStorage_Ledger(t *testing.T) {
	db, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	defer db.Close()
	ctx := context.Background()

	_, ok, err := db.LoadLedger(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, db.SaveLedger(ctx, domain.LedgerSnapshot{Bankroll: 1000, Exposure: 24.65, UpdatedAt: kickoff}))
	require.NoError(t, db.SaveLedger(ctx, domain.LedgerSnapshot{Bankroll: 1001.2, Exposure: 0, UpdatedAt: kickoff}))

	snap, ok, err := db.LoadLedger(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 1001.2, snap.Bankroll, 1e-9)
	assert.Equal(t, 0.0, snap.Exposure)
}

func TestSQLiteStorage_BindMode(t *testing.T) {
	db, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	defer db.Close()
	ctx := context.Background()

	require.NoError(t, db.BindMode(ctx, "dry-run"))
	require.NoError(t, db.BindMode(ctx, "dry-run"))

	err = db.BindMode(ctx, "live")
	require.ErrorIs(t, err, ports.ErrModeMismatch)
	assert.Contains(t, err.Error(), `"dry-run"`)
}

func TestSQLiteStorage_BankrollHistory(t *testing.T) {
	db, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	defer db.Close()
	ctx := context.Background()

	for i, delta := range []float64{1.2, -3.4, 2.0} {
		require.NoError(t, db.RecordBankrollChange(ctx, domain.BankrollChange{
			Ticker:    "KX-KC",
			Reason:    "position_closed",
			Delta:     delta,
			Balance:   1000 + delta,
			ChangedAt: kickoff.Add(time.Duration(i) * time.Minute),
		}))
	}

	history, err := db.BankrollHistory(ctx, 2)
	require.NoError(t, err)
	require.Len(t, history, 2)
	// Más reciente primero
	assert.InDelta(t, 2.0, history[0].Delta, 1e-9)
	assert.InDelta(t, -3.4, history[1].Delta, 1e-9)
	assert.Equal(t, "position_closed", history[0].Reason)
}

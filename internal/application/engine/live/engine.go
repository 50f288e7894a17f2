package live

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/alejandrodnm/dipbot/internal/domain"
	"github.com/alejandrodnm/dipbot/internal/ports"
)

const (
	defaultInPlayWindow     = 90 * time.Minute
	defaultLookahead        = 24 * time.Hour
	defaultThresholdCents   = 57
	defaultRevertFraction   = 0.5
	defaultMaxConcurrent    = 3
	defaultVolumeWindowDays = 30
)

// Run modes recorded in the state store.
const (
	ModeLive   = "live"
	ModeDryRun = "dry-run"
)

// Config holds configuration for the trading engine.
type Config struct {
	Bankroll             float64
	KellyFraction        float64
	MaxExposurePct       float64 // per-market ladder cap, fraction of bankroll
	MaxTotalExposure     float64 // safety ceiling in dollars across all markets; 0 disables
	MaxConcurrentMarkets int
	Ladder               []domain.LadderLevel
	RevertFraction       float64
	ThresholdCents       int
	VolumeFloor          float64 // trailing dollar volume floor; 0 disables
	VolumeWindowDays     int
	InPlayWindow         time.Duration
	Lookahead            time.Duration
	Mode                 string // "live" or "dry-run"; restored state must match
}

// CycleResult contains everything produced by one engine tick.
type CycleResult struct {
	Active          int
	Discovered      int
	OrdersPlaced    int
	Fills           int
	Cancels         int
	PositionsOpened int
	PositionsClosed int
	MarketsClosed   int
	RealizedPnL     float64
	Bankroll        float64
	Exposure        float64
	Warnings        []string
}

// Engine drives one state machine per market on every tick. All mutation of
// monitors and the ledger happens inside RunOnce / Reconcile, which must not
// be called concurrently.
type Engine struct {
	exchange ports.Exchange
	schedule ports.ScheduleSource
	store    ports.StateStorage
	events   ports.TelemetrySink
	cfg      Config
	ledger   *domain.RiskLedger

	monitors map[string]*domain.MarketMonitor
	closed   map[string]bool

	now    func() time.Time
	newID  func() string
	result *CycleResult
}

// New creates the engine. store and events may be nil.
func New(
	exchange ports.Exchange,
	schedule ports.ScheduleSource,
	store ports.StateStorage,
	events ports.TelemetrySink,
	cfg Config,
) *Engine {
	if cfg.InPlayWindow <= 0 {
		cfg.InPlayWindow = defaultInPlayWindow
	}
	if cfg.Lookahead <= 0 {
		cfg.Lookahead = defaultLookahead
	}
	if cfg.ThresholdCents <= 0 {
		cfg.ThresholdCents = defaultThresholdCents
	}
	if cfg.RevertFraction <= 0 {
		cfg.RevertFraction = defaultRevertFraction
	}
	if cfg.MaxConcurrentMarkets <= 0 {
		cfg.MaxConcurrentMarkets = defaultMaxConcurrent
	}
	if cfg.VolumeWindowDays <= 0 {
		cfg.VolumeWindowDays = defaultVolumeWindowDays
	}

	return &Engine{
		exchange: exchange,
		schedule: schedule,
		store:    store,
		events:   events,
		cfg:      cfg,
		ledger:   domain.NewRiskLedger(cfg.Bankroll),
		monitors: make(map[string]*domain.MarketMonitor),
		closed:   make(map[string]bool),
		now:      time.Now,
		newID:    func() string { return uuid.New().String() },
	}
}

// Ledger exposes the risk ledger for reporting.
func (le *Engine) Ledger() *domain.RiskLedger {
	return le.ledger
}

// Monitors returns the active monitors ordered by kickoff.
func (le *Engine) Monitors() []*domain.MarketMonitor {
	out := make([]*domain.MarketMonitor, 0, len(le.monitors))
	for _, m := range le.monitors {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kickoff.Equal(out[j].Kickoff) {
			return out[i].Ticker < out[j].Ticker
		}
		return out[i].Kickoff.Before(out[j].Kickoff)
	})
	return out
}

// Restore loads persisted monitors and ledger so a restarted process picks
// up where the previous one stopped. State written under the other run mode
// is refused, so simulated P&L never sizes real orders.
func (le *Engine) Restore(ctx context.Context) error {
	if le.store == nil {
		return nil
	}

	if le.cfg.Mode != "" {
		if err := le.store.BindMode(ctx, le.cfg.Mode); err != nil {
			return fmt.Errorf("live.Restore: %w", err)
		}
	}

	snap, ok, err := le.store.LoadLedger(ctx)
	if err != nil {
		return fmt.Errorf("live.Restore: load ledger: %w", err)
	}
	if ok {
		le.ledger.Restore(snap)
	}

	closed, err := le.store.ClosedTickers(ctx)
	if err != nil {
		return fmt.Errorf("live.Restore: closed tickers: %w", err)
	}
	for t := range closed {
		le.closed[t] = true
	}

	monitors, err := le.store.LoadActiveMonitors(ctx)
	if err != nil {
		return fmt.Errorf("live.Restore: load monitors: %w", err)
	}
	for _, m := range monitors {
		le.monitors[m.Ticker] = m
		if m.Phase != domain.PhaseWatching {
			le.ledger.OpenMarket(m.Ticker)
		}
	}

	snap = le.ledger.Snapshot()
	slog.Info("engine: state restored",
		"monitors", len(monitors),
		"closed", len(closed),
		"bankroll", fmt.Sprintf("$%.2f", snap.Bankroll),
		"exposure", fmt.Sprintf("$%.2f", snap.Exposure),
	)
	return nil
}

// RunOnce executes one tick: discovery, then every market's state machine in
// kickoff order, then persistence.
func (le *Engine) RunOnce(ctx context.Context) (*CycleResult, error) {
	le.result = &CycleResult{}
	now := le.now()

	// 1. Discovery
	le.discover(ctx, now)

	// 2. Advance each market. A failure in one never stops the others.
	for _, m := range le.Monitors() {
		if err := ctx.Err(); err != nil {
			return le.finish(ctx), err
		}
		le.advance(ctx, m, now)
		le.persist(ctx, m)
		le.evictIfClosed(m)
	}

	return le.finish(ctx), nil
}

// Reconcile polls every pending order once and settles positions without
// placing or cancelling anything. Used offline after a crash.
func (le *Engine) Reconcile(ctx context.Context) (*CycleResult, error) {
	le.result = &CycleResult{}
	now := le.now()

	for _, m := range le.Monitors() {
		if err := ctx.Err(); err != nil {
			return le.finish(ctx), err
		}
		le.pollPendingOrders(ctx, m, now)
		le.settlePositions(ctx, m, now)
		le.closeIfSettled(ctx, m, now)
		le.persist(ctx, m)
		le.evictIfClosed(m)
	}

	return le.finish(ctx), nil
}

// advance moves one market's state machine forward.
func (le *Engine) advance(ctx context.Context, m *domain.MarketMonitor, now time.Time) {
	// 1. Deadline wins over every other state
	if !m.Phase.AtOrPastDeadline() && !now.Before(m.Deadline) {
		le.setPhase(ctx, m, domain.PhaseFlattening, now)
	}

	// 2. Reconcile outstanding orders
	le.pollPendingOrders(ctx, m, now)

	// 3. Phase work
	switch m.Phase {
	case domain.PhaseWatching:
		le.watch(ctx, m, now)
	case domain.PhaseNoPosition, domain.PhaseBracketed:
		if !le.revertIfBracketFilled(ctx, m, now) {
			le.ensureBrackets(ctx, m, now)
			le.revertIfBracketFilled(ctx, m, now)
		}
	case domain.PhaseReverting:
		le.cancelBuys(ctx, m, now)
	case domain.PhaseFlattening:
		le.flatten(ctx, m, now)
	}

	// 4. Bookkeeping
	le.settlePositions(ctx, m, now)
	le.closeIfSettled(ctx, m, now)
	m.UpdatedAt = now
}

// discover seeds monitors for new markets from the schedule.
func (le *Engine) discover(ctx context.Context, now time.Time) {
	if le.schedule == nil {
		return
	}
	markets, err := le.schedule.Upcoming(ctx, now, le.cfg.Lookahead)
	if err != nil {
		slog.Warn("engine: schedule lookup failed", "err", err)
		le.warn("schedule lookup failed: %v", err)
		return
	}

	for _, mk := range markets {
		if _, ok := le.monitors[mk.Ticker]; ok || le.closed[mk.Ticker] {
			continue
		}
		m := domain.NewMarketMonitor(mk, le.cfg.InPlayWindow, now)
		le.monitors[m.Ticker] = m
		le.result.Discovered++

		slog.Info("engine: market discovered",
			"ticker", m.Ticker,
			"title", m.Title,
			"kickoff", m.Kickoff.Format(time.RFC3339),
			"deadline", m.Deadline.Format(time.RFC3339),
		)
		le.emit(ctx, domain.EventMarketDiscovered, m.Ticker, map[string]any{
			"title":    m.Title,
			"kickoff":  m.Kickoff,
			"deadline": m.Deadline,
		})
	}
}

// setPhase records a phase transition.
func (le *Engine) setPhase(ctx context.Context, m *domain.MarketMonitor, p domain.Phase, now time.Time) {
	if m.Phase == p {
		return
	}
	from := m.Phase
	m.Phase = p
	m.UpdatedAt = now

	slog.Info("engine: phase change", "ticker", m.Ticker, "from", from, "to", p)
	le.emit(ctx, domain.EventPhaseChanged, m.Ticker, map[string]any{
		"from": string(from),
		"to":   string(p),
	})
}

// closeIfSettled moves a market to Closed once nothing remains outstanding.
func (le *Engine) closeIfSettled(ctx context.Context, m *domain.MarketMonitor, now time.Time) {
	switch {
	case m.Phase == domain.PhaseClosed:
		return
	case m.Phase == domain.PhaseWatching:
		if m.Eligibility != domain.EligibilityIneligible {
			return
		}
	case !m.Settled():
		return
	}
	le.setPhase(ctx, m, domain.PhaseClosed, now)
	le.result.MarketsClosed++
}

func (le *Engine) evictIfClosed(m *domain.MarketMonitor) {
	if m.Phase != domain.PhaseClosed {
		return
	}
	delete(le.monitors, m.Ticker)
	le.closed[m.Ticker] = true
	le.ledger.CloseMarket(m.Ticker)
}

func (le *Engine) persist(ctx context.Context, m *domain.MarketMonitor) {
	if le.store == nil {
		return
	}
	if err := le.store.SaveMonitor(ctx, m); err != nil {
		slog.Warn("engine: error saving monitor", "ticker", m.Ticker, "err", err)
	}
}

func (le *Engine) finish(ctx context.Context) *CycleResult {
	snap := le.ledger.Snapshot()
	if le.store != nil {
		if err := le.store.SaveLedger(ctx, snap); err != nil {
			slog.Warn("engine: error saving ledger", "err", err)
		}
	}
	r := le.result
	r.Active = len(le.monitors)
	r.Bankroll = snap.Bankroll
	r.Exposure = snap.Exposure
	return r
}

// emit forwards a lifecycle event. Telemetry failures never affect trading.
func (le *Engine) emit(ctx context.Context, typ domain.EventType, ticker string, data map[string]any) {
	if le.events == nil {
		return
	}
	ev := domain.Event{Type: typ, Ticker: ticker, At: le.now(), Data: data}
	if err := le.events.Publish(ctx, ev); err != nil {
		slog.Debug("engine: telemetry publish failed", "type", typ, "err", err)
	}
}

func (le *Engine) warn(format string, args ...any) {
	le.result.Warnings = append(le.result.Warnings, fmt.Sprintf(format, args...))
}

package domain

import "time"

// Side is one outcome of a binary contract.
type Side string

const (
	SideYes Side = "yes"
	SideNo  Side = "no"
)

// Opposite returns the other outcome.
func (s Side) Opposite() Side {
	if s == SideYes {
		return SideNo
	}
	return SideYes
}

// Valid reports whether s is a known side.
func (s Side) Valid() bool {
	return s == SideYes || s == SideNo
}

// Eligibility is the three-valued trading verdict for a market.
// It leaves Unknown exactly once and never changes afterwards.
type Eligibility int

const (
	EligibilityUnknown Eligibility = iota
	EligibilityEligible
	EligibilityIneligible
)

func (e Eligibility) String() string {
	switch e {
	case EligibilityEligible:
		return "eligible"
	case EligibilityIneligible:
		return "ineligible"
	default:
		return "unknown"
	}
}

// ParseEligibility is the inverse of String. Unrecognised values map to Unknown.
func ParseEligibility(s string) Eligibility {
	switch s {
	case "eligible":
		return EligibilityEligible
	case "ineligible":
		return EligibilityIneligible
	default:
		return EligibilityUnknown
	}
}

// Phase is the lifecycle state of a MarketMonitor.
type Phase string

const (
	PhaseWatching   Phase = "WATCHING"    // checkpoints being captured, no orders yet
	PhaseNoPosition Phase = "NO_POSITION" // ladder resting, nothing filled
	PhaseBracketed  Phase = "BRACKETED"   // at least one position with a bracket sell
	PhaseReverting  Phase = "REVERTING"   // a bracket sell filled; buys cancelled
	PhaseFlattening Phase = "FLATTENING_AT_DEADLINE"
	PhaseClosed     Phase = "CLOSED"
)

// AtOrPastDeadline reports whether the phase already handled the deadline.
func (p Phase) AtOrPastDeadline() bool {
	return p == PhaseFlattening || p == PhaseClosed
}

// CheckpointKind identifies one of the pre-kickoff sampling windows.
type CheckpointKind int

const (
	Checkpoint6h CheckpointKind = iota
	Checkpoint3h
	Checkpoint30m
	numCheckpoints
)

// CheckpointKinds lists the windows in priority order.
var CheckpointKinds = [numCheckpoints]CheckpointKind{Checkpoint6h, Checkpoint3h, Checkpoint30m}

// Window is the time-to-kickoff at which the checkpoint window opens.
func (k CheckpointKind) Window() time.Duration {
	switch k {
	case Checkpoint6h:
		return 6 * time.Hour
	case Checkpoint3h:
		return 3 * time.Hour
	default:
		return 30 * time.Minute
	}
}

func (k CheckpointKind) String() string {
	switch k {
	case Checkpoint6h:
		return "6h"
	case Checkpoint3h:
		return "3h"
	default:
		return "30m"
	}
}

// ActiveCheckpoint returns the checkpoint window that contains timeToKickoff.
// Windows do not overlap: 6h covers (3h, 6h], 3h covers (30m, 3h] and 30m
// covers (0, 30m]. Once the market has started no window is active.
func ActiveCheckpoint(timeToKickoff time.Duration) (CheckpointKind, bool) {
	switch {
	case timeToKickoff <= 0:
		return 0, false
	case timeToKickoff <= Checkpoint30m.Window():
		return Checkpoint30m, true
	case timeToKickoff <= Checkpoint3h.Window():
		return Checkpoint3h, true
	case timeToKickoff <= Checkpoint6h.Window():
		return Checkpoint6h, true
	default:
		return 0, false
	}
}

// Checkpoint is a favorite-price sample taken inside one window.
type Checkpoint struct {
	PriceCents int
	CapturedAt time.Time
}

// ScheduledMarket is a candidate market produced by the schedule source.
type ScheduledMarket struct {
	Ticker      string
	EventTicker string
	Title       string
	Kickoff     time.Time
}

// MarketMonitor is the per-market state machine owned by the engine.
type MarketMonitor struct {
	Ticker       string
	EventTicker  string
	Title        string
	Kickoff      time.Time
	Deadline     time.Time
	Checkpoints  [numCheckpoints]*Checkpoint
	Eligibility  Eligibility
	FavoriteSide Side // empty until the first quote
	PregameCents int  // baseline for bracket pricing
	Phase        Phase
	Rejection    string // last admission rejection, to log each reason once
	Orders       []*Order
	Positions    []*Position
	Archived     []*Position
	DiscoveredAt time.Time
	UpdatedAt    time.Time
}

// NewMarketMonitor seeds a monitor for a scheduled market. The deadline is
// kickoff plus the in-play window.
func NewMarketMonitor(m ScheduledMarket, inPlay time.Duration, now time.Time) *MarketMonitor {
	return &MarketMonitor{
		Ticker:       m.Ticker,
		EventTicker:  m.EventTicker,
		Title:        m.Title,
		Kickoff:      m.Kickoff,
		Deadline:     m.Kickoff.Add(inPlay),
		Phase:        PhaseWatching,
		DiscoveredAt: now,
		UpdatedAt:    now,
	}
}

// Checkpoint returns the sample for kind, or nil when not captured.
func (m *MarketMonitor) Checkpoint(kind CheckpointKind) *Checkpoint {
	return m.Checkpoints[kind]
}

// CaptureCheckpoint records a sample. It is a no-op when the window was
// already captured. The 6h sample, or the first one taken when 6h was
// missed, seeds the pregame baseline.
func (m *MarketMonitor) CaptureCheckpoint(kind CheckpointKind, priceCents int, at time.Time) bool {
	if m.Checkpoints[kind] != nil {
		return false
	}
	m.Checkpoints[kind] = &Checkpoint{PriceCents: priceCents, CapturedAt: at}
	if kind == Checkpoint6h || m.PregameCents == 0 {
		m.PregameCents = priceCents
	}
	return true
}

// ObserveFavorite fixes the favorite side on first observation.
func (m *MarketMonitor) ObserveFavorite(side Side) {
	if m.FavoriteSide == "" && side.Valid() {
		m.FavoriteSide = side
	}
}

// SetEligibility moves eligibility out of Unknown. Later calls are ignored.
func (m *MarketMonitor) SetEligibility(e Eligibility) bool {
	if m.Eligibility != EligibilityUnknown || e == EligibilityUnknown {
		return false
	}
	m.Eligibility = e
	return true
}

// PendingOrders returns the orders that are not yet terminal.
func (m *MarketMonitor) PendingOrders() []*Order {
	var out []*Order
	for _, o := range m.Orders {
		if !o.Status.IsTerminal() {
			out = append(out, o)
		}
	}
	return out
}

// PendingBuys returns the non-terminal entry orders.
func (m *MarketMonitor) PendingBuys() []*Order {
	var out []*Order
	for _, o := range m.Orders {
		if o.Action == ActionBuy && !o.Status.IsTerminal() {
			out = append(out, o)
		}
	}
	return out
}

// OrderByID finds an order by local id.
func (m *MarketMonitor) OrderByID(id string) *Order {
	if id == "" {
		return nil
	}
	for _, o := range m.Orders {
		if o.ID == id {
			return o
		}
	}
	return nil
}

// PositionForEntry finds the open position created by the given buy order.
func (m *MarketMonitor) PositionForEntry(orderID string) *Position {
	for _, p := range m.Positions {
		if p.EntryOrderID == orderID {
			return p
		}
	}
	return nil
}

// PositionByID finds an open position by id.
func (m *MarketMonitor) PositionByID(id string) *Position {
	for _, p := range m.Positions {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// LiveSell returns the non-terminal sell order linked to p, if any.
func (m *MarketMonitor) LiveSell(p *Position) *Order {
	o := m.OrderByID(p.SellOrderID)
	if o == nil || o.Status.IsTerminal() {
		return nil
	}
	return o
}

// HasCommittedCapital reports whether the market holds resting buys or
// open positions.
func (m *MarketMonitor) HasCommittedCapital() bool {
	return len(m.PendingBuys()) > 0 || len(m.Positions) > 0
}

// Archive moves p from the open set to the archive.
func (m *MarketMonitor) Archive(p *Position) {
	for i, open := range m.Positions {
		if open.ID == p.ID {
			m.Positions = append(m.Positions[:i], m.Positions[i+1:]...)
			break
		}
	}
	m.Archived = append(m.Archived, p)
}

// Settled reports whether nothing remains outstanding: no pending orders
// and no open positions.
func (m *MarketMonitor) Settled() bool {
	return len(m.PendingOrders()) == 0 && len(m.Positions) == 0
}

// RealizedPnL sums the realized P&L of archived positions.
func (m *MarketMonitor) RealizedPnL() float64 {
	var total float64
	for _, p := range m.Archived {
		total += p.RealizedPnL()
	}
	return total
}

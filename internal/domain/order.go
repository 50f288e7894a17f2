package domain

import "time"

// OrderAction is buy or sell.
type OrderAction string

const (
	ActionBuy  OrderAction = "buy"
	ActionSell OrderAction = "sell"
)

// OrderRole tells why an order exists.
type OrderRole string

const (
	RoleEntry   OrderRole = "entry"   // ladder buy
	RoleBracket OrderRole = "bracket" // reversion target sell
	RoleFlatten OrderRole = "flatten" // deadline maker-only sell
)

// OrderStatus is the last known local status of an order.
type OrderStatus string

const (
	StatusPending         OrderStatus = "pending"
	StatusPartiallyFilled OrderStatus = "partially_filled"
	StatusFilled          OrderStatus = "filled"
	StatusCancelled       OrderStatus = "cancelled"
	StatusUnknown         OrderStatus = "unknown"
)

// IsTerminal reports whether the status can no longer change.
func (s OrderStatus) IsTerminal() bool {
	return s == StatusFilled || s == StatusCancelled
}

// rank orders statuses so they only ever advance.
func (s OrderStatus) rank() int {
	switch s {
	case StatusPartiallyFilled:
		return 1
	case StatusFilled, StatusCancelled:
		return 2
	default:
		return 0
	}
}

// Order is an order this process placed on the exchange.
type Order struct {
	ID              string // UUID (local tracking, also sent as client_order_id)
	ExchangeID      string
	Ticker          string
	Side            Side
	Action          OrderAction
	Role            OrderRole
	PriceCents      int
	RequestedSize   int
	FilledCount     int
	FillPriceCents  int
	Status          OrderStatus
	PositionID      string // sells: position being closed; buys: position opened
	CancelAttempted bool   // cancel answered "not found"; the reconciler resolves it
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Remaining is the unfilled quantity.
func (o *Order) Remaining() int {
	if r := o.RequestedSize - o.FilledCount; r > 0 {
		return r
	}
	return 0
}

// Notional is the dollar value of the full requested size at the limit price.
func (o *Order) Notional() float64 {
	return CentsToDollars(o.PriceCents) * float64(o.RequestedSize)
}

// EffectiveFillPrice is the reported fill price, or the limit price when the
// exchange did not report one.
func (o *Order) EffectiveFillPrice() int {
	if o.FillPriceCents > 0 {
		return o.FillPriceCents
	}
	return o.PriceCents
}

// OrderRequest is what the engine asks the exchange to place.
type OrderRequest struct {
	ClientOrderID string
	Ticker        string
	Side          Side
	Action        OrderAction
	Count         int
	PriceCents    int
	PostOnly      bool
}

// ReportState is the exchange-side order state, normalised.
type ReportState string

const (
	ReportResting  ReportState = "resting"
	ReportExecuted ReportState = "executed"
	ReportCanceled ReportState = "canceled"
	ReportUnknown  ReportState = "unknown"
)

// OrderReport is the exchange's view of an order, as returned by placement
// and by status lookups.
type OrderReport struct {
	OrderID        string
	State          ReportState
	FilledCount    int
	RemainingCount int
	FillPriceCents int // 0 when the payload omits it
}

// Quote is the top of book for both sides of a market, in cents.
// A zero ask or bid means that side of the book is empty.
type Quote struct {
	Ticker string
	YesBid int
	YesAsk int
	NoBid  int
	NoAsk  int
}

// Ask returns the best ask for side.
func (q Quote) Ask(side Side) int {
	if side == SideNo {
		return q.NoAsk
	}
	return q.YesAsk
}

// Bid returns the best bid for side.
func (q Quote) Bid(side Side) int {
	if side == SideNo {
		return q.NoBid
	}
	return q.YesBid
}

// Favorite returns the side priced higher and its ask. ok is false when
// neither side has an ask.
func (q Quote) Favorite() (side Side, priceCents int, ok bool) {
	if q.YesAsk == 0 && q.NoAsk == 0 {
		return "", 0, false
	}
	if q.YesAsk >= q.NoAsk {
		return SideYes, q.YesAsk, true
	}
	return SideNo, q.NoAsk, true
}

// CentsToDollars converts a contract price in cents to dollars.
func CentsToDollars(c int) float64 {
	return float64(c) / 100
}

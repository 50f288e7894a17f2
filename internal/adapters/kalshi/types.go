package kalshi

// ── Markets ────────────────────────────────────────────────────────────────

type marketResponse struct {
	Market market `json:"market"`
}

type market struct {
	Ticker      string `json:"ticker"`
	EventTicker string `json:"event_ticker"`
	Title       string `json:"title"`
	Status      string `json:"status"`
	YesBid      int    `json:"yes_bid"`
	YesAsk      int    `json:"yes_ask"`
	NoBid       int    `json:"no_bid"`
	NoAsk       int    `json:"no_ask"`
	LastPrice   int    `json:"last_price"`
	Volume      int64  `json:"volume"`
}

type tradesResponse struct {
	Trades []trade `json:"trades"`
	Cursor string  `json:"cursor"`
}

type trade struct {
	TradeID     string `json:"trade_id"`
	Ticker      string `json:"ticker"`
	Count       int    `json:"count"`
	YesPrice    int    `json:"yes_price"`
	NoPrice     int    `json:"no_price"`
	TakerSide   string `json:"taker_side"`
	CreatedTime string `json:"created_time"`
}

// ── Orders ─────────────────────────────────────────────────────────────────

type createOrderRequest struct {
	Ticker        string `json:"ticker"`
	ClientOrderID string `json:"client_order_id"`
	Action        string `json:"action"` // "buy" | "sell"
	Side          string `json:"side"`   // "yes" | "no"
	Type          string `json:"type"`   // siempre "limit"
	Count         int    `json:"count"`
	YesPrice      *int   `json:"yes_price,omitempty"`
	NoPrice       *int   `json:"no_price,omitempty"`
	PostOnly      bool   `json:"post_only,omitempty"`
}

type ordersResponse struct {
	Orders []order `json:"orders"`
	Cursor string  `json:"cursor"`
}

type orderResponse struct {
	Order order `json:"order"`
}

type order struct {
	OrderID        string `json:"order_id"`
	ClientOrderID  string `json:"client_order_id"`
	Ticker         string `json:"ticker"`
	Status         string `json:"status"` // "resting", "canceled", "executed", "pending"
	Action         string `json:"action"`
	Side           string `json:"side"`
	YesPrice       int    `json:"yes_price"`
	NoPrice        int    `json:"no_price"`
	InitialCount   int    `json:"initial_count"`
	FillCount      int    `json:"fill_count"`
	RemainingCount int    `json:"remaining_count"`
	TakerFillCount int    `json:"taker_fill_count"`
	MakerFillCount int    `json:"maker_fill_count"`
	TakerFillCost  int    `json:"taker_fill_cost"`
	MakerFillCost  int    `json:"maker_fill_cost"`
}

// ── Portfolio ──────────────────────────────────────────────────────────────

type balanceResponse struct {
	Balance int64 `json:"balance"` // centavos
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

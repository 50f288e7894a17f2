package live

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/alejandrodnm/dipbot/internal/domain"
	"github.com/alejandrodnm/dipbot/internal/ports"
)

type fakeOrder struct {
	id     string
	req    domain.OrderRequest
	filled int
	state  domain.ReportState
}

// fakeExchange is an in-memory exchange. Orders rest until the test fills
// or cancels them.
type fakeExchange struct {
	mu        sync.Mutex
	quote     domain.Quote
	quoteErr  error
	volume    float64
	volumeErr error
	placeErr  error
	executeOn func(domain.OrderRequest) bool
	notFound  map[string]bool

	orders  []*fakeOrder
	cancels []string
	polls   map[string]int
}

func newFakeExchange(q domain.Quote) *fakeExchange {
	return &fakeExchange{
		quote:    q,
		notFound: make(map[string]bool),
		polls:    make(map[string]int),
	}
}

func (f *fakeExchange) GetQuote(_ context.Context, ticker string) (domain.Quote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.quoteErr != nil {
		return domain.Quote{}, f.quoteErr
	}
	q := f.quote
	q.Ticker = ticker
	return q, nil
}

func (f *fakeExchange) PlaceOrder(_ context.Context, req domain.OrderRequest) (domain.OrderReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.placeErr != nil {
		return domain.OrderReport{}, f.placeErr
	}
	o := &fakeOrder{id: fmt.Sprintf("ex-%d", len(f.orders)+1), req: req, state: domain.ReportResting}
	if f.executeOn != nil && f.executeOn(req) {
		o.state = domain.ReportExecuted
		o.filled = req.Count
	}
	f.orders = append(f.orders, o)
	return f.report(o), nil
}

func (f *fakeExchange) CancelOrder(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	o := f.byID(id)
	if o == nil || o.state != domain.ReportResting {
		return ports.ErrNotFound
	}
	o.state = domain.ReportCanceled
	f.cancels = append(f.cancels, id)
	return nil
}

func (f *fakeExchange) GetOrderStatus(_ context.Context, id string) (domain.OrderReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls[id]++
	o := f.byID(id)
	if o == nil || f.notFound[id] {
		return domain.OrderReport{}, ports.ErrNotFound
	}
	return f.report(o), nil
}

func (f *fakeExchange) GetTrailingVolume(context.Context, string, int) (float64, error) {
	return f.volume, f.volumeErr
}

func (f *fakeExchange) GetBalance(context.Context) (float64, error) {
	return 1000, nil
}

func (f *fakeExchange) report(o *fakeOrder) domain.OrderReport {
	return domain.OrderReport{
		OrderID:        o.id,
		State:          o.state,
		FilledCount:    o.filled,
		RemainingCount: o.req.Count - o.filled,
		FillPriceCents: o.req.PriceCents,
	}
}

func (f *fakeExchange) byID(id string) *fakeOrder {
	for _, o := range f.orders {
		if o.id == id {
			return o
		}
	}
	return nil
}

// fill executes n more contracts of the order.
func (f *fakeExchange) fill(id string, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o := f.byID(id)
	o.filled = min(o.filled+n, o.req.Count)
	if o.filled == o.req.Count {
		o.state = domain.ReportExecuted
	}
}

// find returns the id of the first order matching action and price.
func (f *fakeExchange) find(action domain.OrderAction, price int) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, o := range f.orders {
		if o.req.Action == action && o.req.PriceCents == price {
			return o.id
		}
	}
	return ""
}

func (f *fakeExchange) placed(action domain.OrderAction) []domain.OrderRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.OrderRequest
	for _, o := range f.orders {
		if o.req.Action == action {
			out = append(out, o.req)
		}
	}
	return out
}

func (f *fakeExchange) state(id string) domain.ReportState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byID(id).state
}

type staticSchedule []domain.ScheduledMarket

func (s staticSchedule) Upcoming(_ context.Context, now time.Time, lookahead time.Duration) ([]domain.ScheduledMarket, error) {
	var out []domain.ScheduledMarket
	for _, m := range s {
		if m.Kickoff.After(now) && !m.Kickoff.After(now.Add(lookahead)) {
			out = append(out, m)
		}
	}
	return out, nil
}

type recordingSink struct {
	mu     sync.Mutex
	events []domain.Event
}

func (r *recordingSink) Publish(_ context.Context, ev domain.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recordingSink) Close() error { return nil }

func (r *recordingSink) count(typ domain.EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Type == typ {
			n++
		}
	}
	return n
}

func (r *recordingSink) phases(ticker string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, ev := range r.events {
		if ev.Type == domain.EventPhaseChanged && ev.Ticker == ticker {
			out = append(out, ev.Data["to"].(string))
		}
	}
	return out
}

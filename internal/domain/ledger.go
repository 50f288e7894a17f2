package domain

import (
	"sync"
	"time"
)

// LedgerSnapshot is a point-in-time copy of the RiskLedger.
type LedgerSnapshot struct {
	Bankroll    float64
	Exposure    float64
	OpenMarkets int
	UpdatedAt   time.Time
}

// RiskLedger tracks bankroll, committed notional and the markets holding
// capital. The engine loop is the only writer; the mutex lets reporting
// and telemetry read a consistent snapshot.
type RiskLedger struct {
	mu          sync.Mutex
	bankroll    float64
	exposure    float64
	openMarkets map[string]struct{}
	updatedAt   time.Time
}

// NewRiskLedger creates a ledger with the starting bankroll.
func NewRiskLedger(bankroll float64) *RiskLedger {
	return &RiskLedger{
		bankroll:    bankroll,
		openMarkets: make(map[string]struct{}),
	}
}

// Restore replaces bankroll and exposure with persisted values.
func (l *RiskLedger) Restore(s LedgerSnapshot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.bankroll = s.Bankroll
	l.exposure = s.Exposure
	l.updatedAt = s.UpdatedAt
}

// Snapshot returns a copy of the current state.
func (l *RiskLedger) Snapshot() LedgerSnapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return LedgerSnapshot{
		Bankroll:    l.bankroll,
		Exposure:    l.exposure,
		OpenMarkets: len(l.openMarkets),
		UpdatedAt:   l.updatedAt,
	}
}

// Bankroll returns the current bankroll.
func (l *RiskLedger) Bankroll() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.bankroll
}

// Commit adds notional to the running exposure.
func (l *RiskLedger) Commit(notional float64, now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.exposure += notional
	l.updatedAt = now
}

// Release removes notional from the running exposure, never below zero.
func (l *RiskLedger) Release(notional float64, now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.exposure -= notional
	if l.exposure < 1e-9 {
		l.exposure = 0
	}
	l.updatedAt = now
}

// Realize books a closed position's P&L and returns the new bankroll.
func (l *RiskLedger) Realize(pnl float64, now time.Time) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.bankroll += pnl
	l.updatedAt = now
	return l.bankroll
}

// OpenMarket marks a market as holding committed capital.
func (l *RiskLedger) OpenMarket(ticker string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.openMarkets[ticker] = struct{}{}
}

// CloseMarket releases the market's concurrency slot.
func (l *RiskLedger) CloseMarket(ticker string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.openMarkets, ticker)
}

// OpenMarkets returns how many markets hold committed capital.
func (l *RiskLedger) OpenMarkets() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.openMarkets)
}

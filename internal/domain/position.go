package domain

import "time"

// Position is the inventory bought by one entry order. It grows with later
// fills of that order and shrinks as its sells fill.
type Position struct {
	ID              string
	Ticker          string
	Side            Side
	EntryOrderID    string
	EntryPriceCents int
	Size            int
	SoldCount       int
	ProceedsCents   int // Σ sell fill price × quantity
	EntryTime       time.Time
	SellOrderID     string // live sell (bracket or flatten); empty until placed
	ClosedAt        *time.Time
}

// Unsold is the quantity still held.
func (p *Position) Unsold() int {
	if u := p.Size - p.SoldCount; u > 0 {
		return u
	}
	return 0
}

// CostBasis is the dollar cost of the whole position.
func (p *Position) CostBasis() float64 {
	return CentsToDollars(p.EntryPriceCents) * float64(p.Size)
}

// RecordSale credits qty contracts sold at priceCents.
func (p *Position) RecordSale(qty, priceCents int) {
	if qty <= 0 {
		return
	}
	p.SoldCount += qty
	p.ProceedsCents += qty * priceCents
}

// RealizedPnL is (fill − entry) × sold, in dollars.
func (p *Position) RealizedPnL() float64 {
	return CentsToDollars(p.ProceedsCents - p.EntryPriceCents*p.SoldCount)
}

// IsClosed reports whether the position has been archived.
func (p *Position) IsClosed() bool {
	return p.ClosedAt != nil
}

// BankrollChange is one entry of the bankroll history.
type BankrollChange struct {
	Ticker    string
	Reason    string
	Delta     float64
	Balance   float64
	ChangedAt time.Time
}

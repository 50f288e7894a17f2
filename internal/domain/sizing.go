package domain

import "math"

// LadderLevel is one configured entry price with its Kelly multiplier.
type LadderLevel struct {
	PriceCents int
	Multiplier float64
}

// SizedLevel is a ladder level with its contract count.
type SizedLevel struct {
	PriceCents int
	Contracts  int
}

// Notional is the dollar cost of the level if fully filled.
func (s SizedLevel) Notional() float64 {
	return CentsToDollars(s.PriceCents) * float64(s.Contracts)
}

// LadderNotional sums the notional of every level.
func LadderNotional(levels []SizedLevel) float64 {
	var total float64
	for _, l := range levels {
		total += l.Notional()
	}
	return total
}

// SizeLadder converts ladder levels into contract counts.
//
// Each level gets floor(bankroll×kelly / price) × multiplier contracts, at
// least one. When the ladder's total notional exceeds bankroll×maxExposure
// every level is scaled by the same factor and floored back to at least one
// contract, so relative sizes survive but the ceiling can be overshot by up
// to one contract per level.
func SizeLadder(bankroll, kellyFraction, maxExposurePct float64, levels []LadderLevel) []SizedLevel {
	if len(levels) == 0 {
		return nil
	}

	budget := bankroll * kellyFraction
	ideal := make([]SizedLevel, 0, len(levels))
	var total float64
	for _, lvl := range levels {
		price := CentsToDollars(lvl.PriceCents)
		if price <= 0 {
			continue
		}
		base := math.Floor(budget / price)
		contracts := max(1, int(math.Floor(base*lvl.Multiplier)))
		s := SizedLevel{PriceCents: lvl.PriceCents, Contracts: contracts}
		ideal = append(ideal, s)
		total += s.Notional()
	}

	capital := bankroll * maxExposurePct
	if total <= capital {
		return ideal
	}

	scale := capital / total
	scaled := make([]SizedLevel, len(ideal))
	for i, s := range ideal {
		scaled[i] = SizedLevel{
			PriceCents: s.PriceCents,
			Contracts:  max(1, int(math.Floor(float64(s.Contracts)*scale))),
		}
	}
	return scaled
}

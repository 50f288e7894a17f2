package domain

import "math"

// Exchange price bounds for a binary contract, in cents.
const (
	MinPriceCents = 1
	MaxPriceCents = 99
)

// ClampPrice clips c to the tradable range.
func ClampPrice(c int) int {
	return min(max(c, MinPriceCents), MaxPriceCents)
}

// BracketPrice is the measured-move exit target: entry plus revertFraction
// of the drop from the pregame baseline. It is at least one tick above entry.
func BracketPrice(entryCents, pregameCents int, revertFraction float64) int {
	target := float64(entryCents) + revertFraction*float64(pregameCents-entryCents)
	c := int(math.Round(target))
	if c <= entryCents {
		c = entryCents + 1
	}
	return ClampPrice(c)
}

// MakerSellPrice picks a resting sell price for the deadline exit: one tick
// inside the best ask when that still clears the bid, else at the ask. With
// an empty ask side it rests one tick above the bid. ok is false when the
// book is empty.
func MakerSellPrice(bestBid, bestAsk int) (int, bool) {
	switch {
	case bestAsk > 0:
		p := bestAsk - 1
		if p <= bestBid {
			p = max(bestAsk, bestBid+1)
		}
		return ClampPrice(p), true
	case bestBid > 0:
		return ClampPrice(bestBid + 1), true
	default:
		return 0, false
	}
}

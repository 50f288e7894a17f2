package live

import (
	"context"
	"log/slog"
	"time"

	"github.com/alejandrodnm/dipbot/internal/domain"
)

// watch handles a market before entry: checkpoints, eligibility, then the
// ladder once the market is eligible and has not started.
func (le *Engine) watch(ctx context.Context, m *domain.MarketMonitor, now time.Time) {
	if m.Eligibility == domain.EligibilityUnknown {
		le.captureCheckpoint(ctx, m, now)
		le.decideEligibility(ctx, m, now)
	}

	if m.Eligibility == domain.EligibilityEligible && now.Before(m.Kickoff) {
		le.enterMarket(ctx, m, now)
	}
}

// captureCheckpoint samples the favorite price for the active window, once.
// A failed quote leaves the window open for the next tick.
func (le *Engine) captureCheckpoint(ctx context.Context, m *domain.MarketMonitor, now time.Time) {
	kind, ok := domain.ActiveCheckpoint(m.Kickoff.Sub(now))
	if !ok || m.Checkpoint(kind) != nil {
		return
	}

	quote, err := le.exchange.GetQuote(ctx, m.Ticker)
	if err != nil {
		slog.Warn("engine: quote failed, checkpoint retried next tick",
			"ticker", m.Ticker, "checkpoint", kind.String(), "err", err)
		return
	}
	side, price, ok := quote.Favorite()
	if !ok {
		slog.Debug("engine: empty book, checkpoint retried next tick",
			"ticker", m.Ticker, "checkpoint", kind.String())
		return
	}

	m.ObserveFavorite(side)
	m.CaptureCheckpoint(kind, price, now)

	slog.Info("engine: checkpoint captured",
		"ticker", m.Ticker,
		"checkpoint", kind.String(),
		"favorite", m.FavoriteSide,
		"price", price,
	)
	le.emit(ctx, domain.EventCheckpointCaptured, m.Ticker, map[string]any{
		"checkpoint":  kind.String(),
		"price_cents": price,
		"side":        string(side),
	})
}

// decideEligibility stamps the verdict once the 30m checkpoint exists. The
// volume veto only runs for markets the price rule accepted; a failed volume
// lookup leaves the verdict Unknown.
func (le *Engine) decideEligibility(ctx context.Context, m *domain.MarketMonitor, now time.Time) {
	verdict := domain.DecideEligibility(m.Checkpoints, le.cfg.ThresholdCents)
	if verdict == domain.EligibilityUnknown {
		return
	}

	var volume float64
	if verdict == domain.EligibilityEligible && le.cfg.VolumeFloor > 0 {
		v, err := le.exchange.GetTrailingVolume(ctx, m.Ticker, le.cfg.VolumeWindowDays)
		if err != nil {
			slog.Warn("engine: volume lookup failed, eligibility retried next tick",
				"ticker", m.Ticker, "err", err)
			return
		}
		volume = v
		if domain.VolumeVeto(v, le.cfg.VolumeFloor) {
			verdict = domain.EligibilityIneligible
		}
	}

	if !m.SetEligibility(verdict) {
		return
	}
	m.UpdatedAt = now

	prices := make(map[string]any, len(domain.CheckpointKinds))
	for _, k := range domain.CheckpointKinds {
		if c := m.Checkpoint(k); c != nil {
			prices[k.String()] = c.PriceCents
		}
	}
	slog.Info("engine: eligibility decided",
		"ticker", m.Ticker,
		"eligibility", verdict.String(),
		"checkpoints", prices,
		"volume", volume,
	)
	le.emit(ctx, domain.EventEligibilityDecided, m.Ticker, map[string]any{
		"eligibility": verdict.String(),
		"checkpoints": prices,
		"volume_usd":  volume,
	})
}

package live

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/dipbot/internal/domain"
)

type skipReason int

const (
	skipReasonNone skipReason = iota
	skipReasonNoFavorite
	skipReasonConcurrency
	skipReasonEmptyLadder
	skipReasonSafetyCeiling
)

func (r skipReason) String() string {
	switch r {
	case skipReasonNoFavorite:
		return "favorite side unknown"
	case skipReasonConcurrency:
		return "concurrency cap reached"
	case skipReasonEmptyLadder:
		return "ladder sized to nothing"
	case skipReasonSafetyCeiling:
		return "ladder exceeds safety ceiling"
	default:
		return ""
	}
}

// gateCheck aplica los controles de admisión antes de dimensionar el ladder.
func (le *Engine) gateCheck(m *domain.MarketMonitor) skipReason {
	if !m.FavoriteSide.Valid() {
		return skipReasonNoFavorite
	}
	if le.ledger.OpenMarkets() >= le.cfg.MaxConcurrentMarkets {
		return skipReasonConcurrency
	}
	return skipReasonNone
}

// enterMarket dimensiona el ladder y coloca todas las compras de una vez.
// Todo o nada: si el notional total supera el techo de seguridad no se
// envía ninguna orden. Si ninguna orden llega al exchange el mercado sigue
// en WATCHING y se reintenta en el siguiente tick.
func (le *Engine) enterMarket(ctx context.Context, m *domain.MarketMonitor, now time.Time) {
	if reason := le.gateCheck(m); reason != skipReasonNone {
		le.reject(ctx, m, reason, nil)
		return
	}

	snap := le.ledger.Snapshot()
	levels := domain.SizeLadder(snap.Bankroll, le.cfg.KellyFraction, le.cfg.MaxExposurePct, le.cfg.Ladder)
	if len(levels) == 0 {
		le.reject(ctx, m, skipReasonEmptyLadder, nil)
		return
	}

	notional := domain.LadderNotional(levels)
	if le.cfg.MaxTotalExposure > 0 && snap.Exposure+notional > le.cfg.MaxTotalExposure {
		le.reject(ctx, m, skipReasonSafetyCeiling, map[string]any{
			"ladder_usd":   notional,
			"exposure_usd": snap.Exposure,
			"ceiling_usd":  le.cfg.MaxTotalExposure,
		})
		return
	}

	slog.Info("engine: PLACING LADDER",
		"ticker", m.Ticker,
		"side", m.FavoriteSide,
		"levels", len(levels),
		"notional", fmt.Sprintf("$%.2f", notional),
		"bankroll", fmt.Sprintf("$%.2f", snap.Bankroll),
	)

	placed := 0
	for _, lvl := range levels {
		_, err := le.placeOrder(ctx, m, orderParams{
			side:   m.FavoriteSide,
			action: domain.ActionBuy,
			role:   domain.RoleEntry,
			price:  lvl.PriceCents,
			size:   lvl.Contracts,
		}, now)
		if err != nil {
			slog.Warn("engine: error placing ladder level",
				"ticker", m.Ticker, "price", lvl.PriceCents, "contracts", lvl.Contracts, "err", err)
			le.warn("%s: ladder level %d¢ failed: %v", m.Ticker, lvl.PriceCents, err)
			continue
		}
		placed++
	}
	if placed == 0 {
		return
	}

	m.Rejection = ""
	le.ledger.OpenMarket(m.Ticker)
	le.setPhase(ctx, m, domain.PhaseNoPosition, now)

	// Levels that executed at placement already opened positions.
	if len(m.Positions) > 0 {
		le.setPhase(ctx, m, domain.PhaseBracketed, now)
		le.ensureBrackets(ctx, m, now)
	}
}

// reject logs an admission rejection once per distinct reason.
func (le *Engine) reject(ctx context.Context, m *domain.MarketMonitor, reason skipReason, data map[string]any) {
	if m.Rejection == reason.String() {
		return
	}
	m.Rejection = reason.String()

	slog.Info("engine: entry skipped", "ticker", m.Ticker, "reason", m.Rejection)
	if data == nil {
		data = map[string]any{}
	}
	data["reason"] = m.Rejection
	le.emit(ctx, domain.EventAdmissionRejected, m.Ticker, data)
}

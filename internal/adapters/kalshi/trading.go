package kalshi

// trading.go: implementa ports.Exchange sobre la API REST de Kalshi.
//
// Todos los precios viajan en centavos. Las órdenes son siempre limit; las
// ventas de cierre por deadline se envían post_only.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/alejandrodnm/dipbot/internal/domain"
	"github.com/alejandrodnm/dipbot/internal/ports"
)

const tradesPageSize = 1000

var _ ports.Exchange = (*Client)(nil)

// GetQuote devuelve el top of book de ambos lados del mercado.
func (c *Client) GetQuote(ctx context.Context, ticker string) (domain.Quote, error) {
	var resp marketResponse
	if err := c.get(ctx, "/markets/"+url.PathEscape(ticker), &resp); err != nil {
		return domain.Quote{}, fmt.Errorf("kalshi.GetQuote %s: %w", ticker, err)
	}
	m := resp.Market
	return domain.Quote{
		Ticker: ticker,
		YesBid: m.YesBid,
		YesAsk: m.YesAsk,
		NoBid:  m.NoBid,
		NoAsk:  m.NoAsk,
	}, nil
}

// PlaceOrder envía una orden limit. El client_order_id es el id local, así
// el exchange deduplica reenvíos tras un timeout. Si un reintento choca con
// ese duplicado, la orden original se busca por client_order_id y se adopta.
func (c *Client) PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderReport, error) {
	body := createOrderRequest{
		Ticker:        req.Ticker,
		ClientOrderID: req.ClientOrderID,
		Action:        string(req.Action),
		Side:          string(req.Side),
		Type:          "limit",
		Count:         req.Count,
		PostOnly:      req.PostOnly,
	}
	price := domain.ClampPrice(req.PriceCents)
	if req.Side == domain.SideNo {
		body.NoPrice = &price
	} else {
		body.YesPrice = &price
	}

	var resp orderResponse
	err := c.do(ctx, http.MethodPost, "/portfolio/orders", body, &resp)
	if errors.Is(err, errDuplicateOrder) {
		o, findErr := c.findByClientID(ctx, req.Ticker, req.ClientOrderID)
		if findErr == nil {
			slog.Info("kalshi: adopted order accepted by an earlier attempt",
				"client_order_id", req.ClientOrderID, "order_id", o.OrderID)
			return toReport(o), nil
		}
		err = fmt.Errorf("%w (lookup: %v)", err, findErr)
	}
	if err != nil {
		return domain.OrderReport{}, fmt.Errorf("kalshi.PlaceOrder %s %s %d@%d: %w",
			req.Action, req.Side, req.Count, price, err)
	}
	return toReport(resp.Order), nil
}

// CancelOrder cancela una orden resting. Un 404 significa que ya no está en
// el libro.
func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	if err := c.do(ctx, http.MethodDelete, "/portfolio/orders/"+url.PathEscape(orderID), nil, nil); err != nil {
		return fmt.Errorf("kalshi.CancelOrder %s: %w", orderID, err)
	}
	return nil
}

// GetOrderStatus consulta el estado de una orden.
func (c *Client) GetOrderStatus(ctx context.Context, orderID string) (domain.OrderReport, error) {
	var resp orderResponse
	if err := c.get(ctx, "/portfolio/orders/"+url.PathEscape(orderID), &resp); err != nil {
		return domain.OrderReport{}, fmt.Errorf("kalshi.GetOrderStatus %s: %w", orderID, err)
	}
	return toReport(resp.Order), nil
}

// findByClientID recorre las órdenes del mercado buscando la que lleva
// clientID.
func (c *Client) findByClientID(ctx context.Context, ticker, clientID string) (order, error) {
	cursor := ""
	for {
		q := url.Values{}
		q.Set("ticker", ticker)
		q.Set("client_order_id", clientID)
		if cursor != "" {
			q.Set("cursor", cursor)
		}

		var resp ordersResponse
		if err := c.get(ctx, "/portfolio/orders?"+q.Encode(), &resp); err != nil {
			return order{}, fmt.Errorf("list orders: %w", err)
		}
		for _, o := range resp.Orders {
			if o.ClientOrderID == clientID {
				return o, nil
			}
		}
		if resp.Cursor == "" || len(resp.Orders) == 0 {
			return order{}, fmt.Errorf("client_order_id %s: %w", clientID, ports.ErrNotFound)
		}
		cursor = resp.Cursor
	}
}

// GetTrailingVolume suma el volumen en dólares de los trades de los últimos
// days días, paginando con cursor.
func (c *Client) GetTrailingVolume(ctx context.Context, ticker string, days int) (float64, error) {
	minTS := time.Now().Add(-time.Duration(days) * 24 * time.Hour).Unix()

	var total float64
	cursor := ""
	for {
		q := url.Values{}
		q.Set("ticker", ticker)
		q.Set("min_ts", strconv.FormatInt(minTS, 10))
		q.Set("limit", strconv.Itoa(tradesPageSize))
		if cursor != "" {
			q.Set("cursor", cursor)
		}

		var resp tradesResponse
		if err := c.get(ctx, "/markets/trades?"+q.Encode(), &resp); err != nil {
			return 0, fmt.Errorf("kalshi.GetTrailingVolume %s: %w", ticker, err)
		}
		for _, t := range resp.Trades {
			total += tradeNotional(t)
		}
		if resp.Cursor == "" || len(resp.Trades) == 0 {
			return total, nil
		}
		cursor = resp.Cursor
	}
}

// GetBalance devuelve el saldo disponible en dólares.
func (c *Client) GetBalance(ctx context.Context) (float64, error) {
	var resp balanceResponse
	if err := c.get(ctx, "/portfolio/balance", &resp); err != nil {
		return 0, fmt.Errorf("kalshi.GetBalance: %w", err)
	}
	return float64(resp.Balance) / 100, nil
}

// ── mapping ────────────────────────────────────────────────────────────────

func toReport(o order) domain.OrderReport {
	filled := o.FillCount
	if filled == 0 {
		filled = o.TakerFillCount + o.MakerFillCount
	}

	r := domain.OrderReport{
		OrderID:        o.OrderID,
		State:          toState(o.Status),
		FilledCount:    filled,
		RemainingCount: o.RemainingCount,
	}
	if cost := o.TakerFillCost + o.MakerFillCost; filled > 0 && cost > 0 {
		r.FillPriceCents = (cost + filled/2) / filled
	}
	return r
}

func toState(status string) domain.ReportState {
	switch status {
	case "resting", "pending":
		return domain.ReportResting
	case "executed":
		return domain.ReportExecuted
	case "canceled", "cancelled":
		return domain.ReportCanceled
	default:
		return domain.ReportUnknown
	}
}

// tradeNotional es el dinero que cambió de manos en el lado del taker.
func tradeNotional(t trade) float64 {
	price := t.YesPrice
	if t.TakerSide == "no" {
		price = t.NoPrice
	}
	return float64(t.Count) * float64(price) / 100
}

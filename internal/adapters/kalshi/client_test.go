package kalshi

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/dipbot/internal/domain"
	"github.com/alejandrodnm/dipbot/internal/ports"
)

func newTestClient(srv *httptest.Server) *Client {
	c := NewClient(srv.URL, time.Millisecond)
	c.retryWait = time.Millisecond
	return c
}

func TestGetQuote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/markets/KXNFLGAME-25OCT19KCLV-KC", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"market":{"ticker":"KXNFLGAME-25OCT19KCLV-KC","status":"active",
			"yes_bid":63,"yes_ask":65,"no_bid":35,"no_ask":37}}`))
	}))
	defer srv.Close()

	q, err := newTestClient(srv).GetQuote(context.Background(), "KXNFLGAME-25OCT19KCLV-KC")
	require.NoError(t, err)
	assert.Equal(t, domain.Quote{Ticker: "KXNFLGAME-25OCT19KCLV-KC", YesBid: 63, YesAsk: 65, NoBid: 35, NoAsk: 37}, q)

	side, price, ok := q.Favorite()
	assert.True(t, ok)
	assert.Equal(t, domain.SideYes, side)
	assert.Equal(t, 65, price)
}

func TestPlaceOrder_SendsLimitWithClientID(t *testing.T) {
	var got createOrderRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/portfolio/orders", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"order":{"order_id":"ord-1","status":"resting","remaining_count":20}}`))
	}))
	defer srv.Close()

	report, err := newTestClient(srv).PlaceOrder(context.Background(), domain.OrderRequest{
		ClientOrderID: "local-1",
		Ticker:        "KX-A",
		Side:          domain.SideNo,
		Action:        domain.ActionSell,
		Count:         20,
		PriceCents:    59,
		PostOnly:      true,
	})
	require.NoError(t, err)

	assert.Equal(t, "ord-1", report.OrderID)
	assert.Equal(t, domain.ReportResting, report.State)
	assert.Equal(t, 20, report.RemainingCount)

	assert.Equal(t, "local-1", got.ClientOrderID)
	assert.Equal(t, "limit", got.Type)
	assert.Equal(t, "sell", got.Action)
	assert.Equal(t, "no", got.Side)
	assert.True(t, got.PostOnly)
	assert.Nil(t, got.YesPrice)
	require.NotNil(t, got.NoPrice)
	assert.Equal(t, 59, *got.NoPrice)
}

func TestGetOrderStatus_Mapping(t *testing.T) {
	cases := []struct {
		name string
		body string
		want domain.OrderReport
	}{
		{
			name: "executed with fill cost",
			body: `{"order":{"order_id":"o","status":"executed","fill_count":20,"taker_fill_cost":500,"maker_fill_cost":480}}`,
			want: domain.OrderReport{OrderID: "o", State: domain.ReportExecuted, FilledCount: 20, FillPriceCents: 49},
		},
		{
			name: "resting partial from split counts",
			body: `{"order":{"order_id":"o","status":"resting","taker_fill_count":3,"maker_fill_count":2,"remaining_count":15,"maker_fill_cost":225}}`,
			want: domain.OrderReport{OrderID: "o", State: domain.ReportResting, FilledCount: 5, RemainingCount: 15, FillPriceCents: 45},
		},
		{
			name: "canceled",
			body: `{"order":{"order_id":"o","status":"canceled"}}`,
			want: domain.OrderReport{OrderID: "o", State: domain.ReportCanceled},
		},
		{
			name: "unknown status",
			body: `{"order":{"order_id":"o","status":"weird"}}`,
			want: domain.OrderReport{OrderID: "o", State: domain.ReportUnknown},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			got, err := newTestClient(srv).GetOrderStatus(context.Background(), "o")
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusNotFound, ports.ErrNotFound},
		{http.StatusUnauthorized, ports.ErrUnauthorized},
		{http.StatusForbidden, ports.ErrUnauthorized},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
			w.Write([]byte(`{"error":{"code":"x","message":"nope"}}`))
		}))

		err := newTestClient(srv).CancelOrder(context.Background(), "o")
		assert.ErrorIs(t, err, tc.want, "status %d", tc.status)
		srv.Close()
	}
}

func TestClientError_NotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"code":"invalid_order","message":"price out of range"}}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv).GetBalance(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "price out of range")
	assert.Equal(t, int32(1), calls.Load())
}

func TestRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"balance":123456}`))
	}))
	defer srv.Close()

	bal, err := newTestClient(srv).GetBalance(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 1234.56, bal, 1e-9)
	assert.Equal(t, int32(3), calls.Load())
}

func TestPlaceOrder_AdoptsOrderAcceptedBeforeRetry(t *testing.T) {
	var posts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/portfolio/orders":
			if posts.Add(1) == 1 {
				// accepted, but the response is lost
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			w.WriteHeader(http.StatusConflict)
			w.Write([]byte(`{"error":{"code":"order_already_exists","message":"duplicate client_order_id"}}`))
		case r.Method == http.MethodGet && r.URL.Path == "/portfolio/orders":
			assert.Equal(t, "KX-A", r.URL.Query().Get("ticker"))
			assert.Equal(t, "local-7", r.URL.Query().Get("client_order_id"))
			w.Write([]byte(`{"orders":[
				{"order_id":"ord-other","client_order_id":"local-3","status":"resting"},
				{"order_id":"ord-7","client_order_id":"local-7","status":"resting","remaining_count":20}
			],"cursor":""}`))
		default:
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
	}))
	defer srv.Close()

	report, err := newTestClient(srv).PlaceOrder(context.Background(), domain.OrderRequest{
		ClientOrderID: "local-7",
		Ticker:        "KX-A",
		Side:          domain.SideYes,
		Action:        domain.ActionBuy,
		Count:         20,
		PriceCents:    49,
	})
	require.NoError(t, err)
	assert.Equal(t, "ord-7", report.OrderID)
	assert.Equal(t, domain.ReportResting, report.State)
	assert.Equal(t, 20, report.RemainingCount)
	assert.Equal(t, int32(2), posts.Load())
}

func TestPlaceOrder_DuplicateWithoutMatchFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			w.WriteHeader(http.StatusConflict)
			w.Write([]byte(`{"error":{"code":"order_already_exists","message":"duplicate"}}`))
			return
		}
		w.Write([]byte(`{"orders":[],"cursor":""}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv).PlaceOrder(context.Background(), domain.OrderRequest{
		ClientOrderID: "local-8", Ticker: "KX-A", Side: domain.SideYes, Action: domain.ActionBuy, Count: 1, PriceCents: 49,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, errDuplicateOrder)
}

func TestRetriesExhausted(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := newTestClient(srv).GetBalance(context.Background())
	require.Error(t, err)
	assert.Equal(t, int32(maxRetries+1), calls.Load())
}

func TestGetTrailingVolume_Paginates(t *testing.T) {
	var pages atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/markets/trades", r.URL.Path)
		assert.Equal(t, "KX-A", r.URL.Query().Get("ticker"))
		assert.NotEmpty(t, r.URL.Query().Get("min_ts"))

		switch r.URL.Query().Get("cursor") {
		case "":
			pages.Add(1)
			w.Write([]byte(`{"trades":[
				{"count":100,"yes_price":60,"no_price":40,"taker_side":"yes"},
				{"count":50,"yes_price":60,"no_price":40,"taker_side":"no"}
			],"cursor":"p2"}`))
		case "p2":
			pages.Add(1)
			w.Write([]byte(`{"trades":[{"count":10,"yes_price":50,"no_price":50,"taker_side":"yes"}],"cursor":""}`))
		default:
			t.Errorf("unexpected cursor %q", r.URL.Query().Get("cursor"))
		}
	}))
	defer srv.Close()

	vol, err := newTestClient(srv).GetTrailingVolume(context.Background(), "KX-A", 30)
	require.NoError(t, err)
	assert.InDelta(t, 60+20+5, vol, 1e-9)
	assert.Equal(t, int32(2), pages.Load())
}

func TestSignedRequests(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "kalshi.pem")
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), 0o600))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key-123", r.Header.Get("KALSHI-ACCESS-KEY"))
		ts := r.Header.Get("KALSHI-ACCESS-TIMESTAMP")
		sig, err := base64.StdEncoding.DecodeString(r.Header.Get("KALSHI-ACCESS-SIGNATURE"))
		assert.NoError(t, err)

		hash := sha256.Sum256([]byte(ts + r.Method + r.URL.Path))
		assert.NoError(t, rsa.VerifyPSS(&key.PublicKey, crypto.SHA256, hash[:], sig,
			&rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash}))
		w.Write([]byte(`{"balance":100}`))
	}))
	defer srv.Close()

	c := newTestClient(srv)
	assert.False(t, c.Authenticated())
	require.NoError(t, c.WithCredentials("key-123", path))
	assert.True(t, c.Authenticated())

	_, err = c.GetBalance(context.Background())
	require.NoError(t, err)
}

func TestWithCredentials_BadKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.pem")
	require.NoError(t, os.WriteFile(path, []byte("not a key"), 0o600))

	err := NewClient("", 0).WithCredentials("k", path)
	assert.ErrorContains(t, err, "no PEM block")
}

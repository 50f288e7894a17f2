package kalshi

import (
	"bytes"
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/alejandrodnm/dipbot/internal/ports"
)

const (
	defaultBaseURL   = "https://api.elections.kalshi.com/trade-api/v2"
	defaultCallDelay = 100 * time.Millisecond

	maxRetries    = 3
	baseRetryWait = 500 * time.Millisecond
)

// errDuplicateOrder es la respuesta del exchange a un client_order_id ya
// usado: un reintento de un POST que sí llegó a aceptarse.
var errDuplicateOrder = errors.New("duplicate client_order_id")

// Client es el HTTP client de Kalshi con rate limiting, retries y firma
// RSA-PSS opcional. Sin clave privada sólo sirve para endpoints públicos.
type Client struct {
	http       *http.Client
	baseURL    string
	keyID      string
	privateKey *rsa.PrivateKey
	limiter    *rate.Limiter
	retryWait  time.Duration
}

// NewClient crea un Client. callDelay es el espacio mínimo entre llamadas;
// si es cero se usa el default.
func NewClient(baseURL string, callDelay time.Duration) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if callDelay <= 0 {
		callDelay = defaultCallDelay
	}
	return &Client{
		http:      &http.Client{Timeout: 10 * time.Second},
		baseURL:   baseURL,
		limiter:   rate.NewLimiter(rate.Every(callDelay), 1),
		retryWait: baseRetryWait,
	}
}

// WithCredentials carga la clave privada PEM (PKCS8 o PKCS1) desde path.
func (c *Client) WithCredentials(keyID, path string) error {
	pemBytes, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("kalshi: read private key: %w", err)
	}
	key, err := parsePrivateKey(pemBytes)
	if err != nil {
		return err
	}
	c.keyID = keyID
	c.privateKey = key
	return nil
}

// Authenticated reports whether requests are signed.
func (c *Client) Authenticated() bool {
	return c.privateKey != nil
}

func parsePrivateKey(pemBytes []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("kalshi: no PEM block found in private key")
	}

	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		pkcs1Key, pkcs1Err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if pkcs1Err != nil {
			return nil, fmt.Errorf("kalshi: parse private key: %w (pkcs1: %v)", err, pkcs1Err)
		}
		return pkcs1Key, nil
	}
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("kalshi: expected RSA private key, got %T", key)
	}
	return rsaKey, nil
}

// get hace un GET con rate limiting y retries.
func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

// do construye, firma y envía la request. El body se serializa una vez y se
// reenvía en cada reintento.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
		payload = b
	}

	return c.doWithRetry(ctx, func() (*http.Response, error) {
		var r io.Reader
		if payload != nil {
			r = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
		if err != nil {
			return nil, err
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("Accept", "application/json")
		if err := c.sign(req); err != nil {
			return nil, err
		}
		return c.http.Do(req)
	}, out)
}

// doWithRetry ejecuta la función con backoff exponencial. 429 y 5xx se
// reintentan; 404 y 401/403 se traducen a los errores de ports.
func (c *Client) doWithRetry(ctx context.Context, fn func() (*http.Response, error), out any) error {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		resp, err := fn()
		if err != nil {
			if attempt == maxRetries || ctx.Err() != nil {
				return fmt.Errorf("request failed after %d retries: %w", attempt, err)
			}
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			resp.Body.Close()
			slog.Warn("kalshi: rate limited by API", "attempt", attempt+1)
			if attempt == maxRetries {
				return fmt.Errorf("rate limited after %d retries", maxRetries)
			}
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode >= 500 {
			resp.Body.Close()
			if attempt == maxRetries {
				return fmt.Errorf("server error %d after %d retries", resp.StatusCode, maxRetries)
			}
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode >= 400 {
			b, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			return statusError(resp.StatusCode, b)
		}

		defer resp.Body.Close()
		if out == nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}
	return fmt.Errorf("exhausted %d retries", maxRetries)
}

func statusError(code int, body []byte) error {
	var apiErr errorResponse
	_ = json.Unmarshal(body, &apiErr)
	msg := apiErr.Error.Message
	if msg == "" {
		msg = string(body)
	}

	switch {
	case code == http.StatusConflict, strings.Contains(apiErr.Error.Code, "already_exists"):
		return fmt.Errorf("%w: %s", errDuplicateOrder, msg)
	}

	switch code {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", ports.ErrNotFound, msg)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", ports.ErrUnauthorized, msg)
	default:
		return fmt.Errorf("client error %d: %s", code, msg)
	}
}

// sign añade las cabeceras de autenticación: RSA-PSS SHA256 sobre
// timestamp + método + path (sin query string).
func (c *Client) sign(req *http.Request) error {
	if c.privateKey == nil {
		return nil
	}
	ts := strconv.FormatInt(time.Now().UnixMilli(), 10)
	msg := ts + req.Method + req.URL.Path

	hash := sha256.Sum256([]byte(msg))
	sig, err := rsa.SignPSS(rand.Reader, c.privateKey, crypto.SHA256, hash[:], &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthEqualsHash,
	})
	if err != nil {
		return fmt.Errorf("kalshi: RSA sign: %w", err)
	}

	req.Header.Set("KALSHI-ACCESS-KEY", c.keyID)
	req.Header.Set("KALSHI-ACCESS-SIGNATURE", base64.StdEncoding.EncodeToString(sig))
	req.Header.Set("KALSHI-ACCESS-TIMESTAMP", ts)
	return nil
}

// sleep espera con backoff exponencial, respetando el contexto.
func (c *Client) sleep(ctx context.Context, attempt int) {
	wait := time.Duration(math.Pow(2, float64(attempt))) * c.retryWait
	select {
	case <-time.After(wait):
	case <-ctx.Done():
	}
}

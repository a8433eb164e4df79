package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"MomentumTrader/internal/metrics"
	"MomentumTrader/internal/model"
	"MomentumTrader/internal/order"
)

// Client talks to the Binance spot REST API.
type Client struct {
	baseURL    string
	apiKey     string
	apiSecret  string
	http       *http.Client
	offset     time.Duration
	recvWindow int64
	backoff    time.Duration
	now        func() time.Time
	log        zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithTimestampOffset shifts signed request timestamps, compensating for a local
// clock that runs ahead of the exchange.
func WithTimestampOffset(d time.Duration) Option {
	return func(c *Client) { c.offset = d }
}

// WithRecvWindow sets how long a signed request stays valid on the exchange side.
func WithRecvWindow(ms int64) Option {
	return func(c *Client) { c.recvWindow = ms }
}

// WithRetryBackoff sets the wait before the single retry of a transient failure.
func WithRetryBackoff(d time.Duration) Option {
	return func(c *Client) { c.backoff = d }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// NewClient creates a REST client with optional proxy support.
func NewClient(baseURL, apiKey, apiSecret, proxyURL string, log zerolog.Logger, opts ...Option) *Client {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		apiSecret:  apiSecret,
		http:       &http.Client{Timeout: 30 * time.Second, Transport: transport},
		recvWindow: 5000,
		backoff:    time.Minute,
		now:        time.Now,
		log:        log.With().Str("component", "binance").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type symbolInfo struct {
	Symbol                 string   `json:"symbol"`
	Status                 string   `json:"status"`
	BaseAsset              string   `json:"baseAsset"`
	QuoteAsset             string   `json:"quoteAsset"`
	BaseAssetPrecision     int32    `json:"baseAssetPrecision"`
	QuotePrecision         int32    `json:"quotePrecision"`
	IsSpotTradingAllowed   bool     `json:"isSpotTradingAllowed"`
	IsMarginTradingAllowed bool     `json:"isMarginTradingAllowed"`
	Permissions            []string `json:"permissions"`
	Filters                []struct {
		FilterType string          `json:"filterType"`
		MinQty     decimal.Decimal `json:"minQty"`
		MaxQty     decimal.Decimal `json:"maxQty"`
		StepSize   decimal.Decimal `json:"stepSize"`
	} `json:"filters"`
}

type exchangeInfo struct {
	Symbols []symbolInfo `json:"symbols"`
}

// ListTradableSymbols returns the symbols currently trading against quote, in
// exchange order.
func (c *Client) ListTradableSymbols(ctx context.Context, quote string) ([]string, error) {
	var info exchangeInfo
	if err := c.get(ctx, "/api/v3/exchangeInfo", nil, &info); err != nil {
		return nil, fmt.Errorf("list symbols: %w", err)
	}
	var out []string
	for _, s := range info.Symbols {
		if s.Status != "TRADING" || s.QuoteAsset != quote || !s.IsSpotTradingAllowed {
			continue
		}
		out = append(out, s.Symbol)
	}
	return out, nil
}

// SymbolMeta returns precision and lot-size constraints for symbol.
func (c *Client) SymbolMeta(ctx context.Context, symbol string) (model.Asset, error) {
	var info exchangeInfo
	if err := c.get(ctx, "/api/v3/exchangeInfo", url.Values{"symbol": {symbol}}, &info); err != nil {
		return model.Asset{}, fmt.Errorf("symbol meta %s: %w", symbol, err)
	}
	for _, s := range info.Symbols {
		if s.Symbol != symbol {
			continue
		}
		a := model.Asset{
			Symbol:         s.Symbol,
			Base:           s.BaseAsset,
			Quote:          s.QuoteAsset,
			BasePrecision:  s.BaseAssetPrecision,
			QuotePrecision: s.QuotePrecision,
			SpotAllowed:    s.IsSpotTradingAllowed,
			MarginAllowed:  s.IsMarginTradingAllowed,
			Permissions:    s.Permissions,
		}
		for _, f := range s.Filters {
			if f.FilterType == "LOT_SIZE" {
				a.MinQty, a.MaxQty, a.StepSize = f.MinQty, f.MaxQty, f.StepSize
				break
			}
		}
		if !a.StepSize.IsPositive() {
			return model.Asset{}, fmt.Errorf("symbol meta %s: missing LOT_SIZE filter", symbol)
		}
		return a, nil
	}
	return model.Asset{}, fmt.Errorf("symbol meta %s: not listed", symbol)
}

// Klines returns up to limit bars of the given interval, oldest first.
func (c *Client) Klines(ctx context.Context, symbol, interval string, limit int) ([]model.OHLCV, error) {
	params := url.Values{
		"symbol":   {symbol},
		"interval": {interval},
		"limit":    {strconv.Itoa(limit)},
	}
	var rows [][]any
	if err := c.get(ctx, "/api/v3/klines", params, &rows); err != nil {
		return nil, fmt.Errorf("klines %s: %w", symbol, err)
	}
	bars := make([]model.OHLCV, 0, len(rows))
	for _, r := range rows {
		if len(r) < 6 {
			continue
		}
		openTime, _ := r[0].(float64)
		bars = append(bars, model.OHLCV{
			Time:   time.UnixMilli(int64(openTime)),
			Open:   number(r[1]),
			High:   number(r[2]),
			Low:    number(r[3]),
			Close:  number(r[4]),
			Volume: number(r[5]),
		})
	}
	return bars, nil
}

// number reads a kline field, which the exchange encodes as a string.
func number(v any) float64 {
	switch t := v.(type) {
	case string:
		f, _ := strconv.ParseFloat(t, 64)
		return f
	case float64:
		return t
	}
	return 0
}

// RecentPrice returns the last traded price of symbol.
func (c *Client) RecentPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	var res struct {
		Price decimal.Decimal `json:"price"`
	}
	if err := c.get(ctx, "/api/v3/ticker/price", url.Values{"symbol": {symbol}}, &res); err != nil {
		return decimal.Zero, fmt.Errorf("recent price %s: %w", symbol, err)
	}
	return res.Price, nil
}

type orderResponse struct {
	OrderID       int64  `json:"orderId"`
	ClientOrderID string `json:"clientOrderId"`
	Status        string `json:"status"`
	Fills         []struct {
		Price           decimal.Decimal `json:"price"`
		Qty             decimal.Decimal `json:"qty"`
		Commission      decimal.Decimal `json:"commission"`
		CommissionAsset string          `json:"commissionAsset"`
	} `json:"fills"`
}

// Submit places a MARKET order for req.Qty and returns its fills. The client
// order id makes a resend after a pre-execution rejection safe.
func (c *Client) Submit(ctx context.Context, req order.Request) ([]model.Fill, error) {
	if c.apiKey == "" || c.apiSecret == "" {
		return nil, errors.New("submit order: api credentials not configured")
	}
	params := url.Values{
		"symbol":           {req.Symbol},
		"side":             {string(req.Side)},
		"type":             {"MARKET"},
		"quantity":         {req.Qty.String()},
		"newOrderRespType": {"FULL"},
	}
	if req.ID != "" {
		params.Set("newClientOrderId", req.ID)
	}
	metrics.OrdersTotal.WithLabelValues(req.Symbol, string(req.Side)).Inc()

	var res orderResponse
	if err := c.do(ctx, http.MethodPost, "/api/v3/order", params, true, false, &res); err != nil {
		return nil, fmt.Errorf("submit %s %s: %w", req.Side, req.Symbol, err)
	}
	fills := make([]model.Fill, len(res.Fills))
	for i, f := range res.Fills {
		fills[i] = model.Fill{
			Price:           f.Price,
			Qty:             f.Qty,
			Commission:      f.Commission,
			CommissionAsset: f.CommissionAsset,
		}
	}
	c.log.Info().Int64("order_id", res.OrderID).Str("symbol", req.Symbol).
		Str("side", string(req.Side)).Str("status", res.Status).Int("fills", len(fills)).Msg("order placed")
	return fills, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	return c.do(ctx, http.MethodGet, path, params, false, true, out)
}

// do sends one request, retrying once after the backoff when the failure is
// classified as transient for this kind of request.
func (c *Client) do(ctx context.Context, method, path string, params url.Values, signed, idempotent bool, out any) error {
	err := c.send(ctx, method, path, params, signed, out)
	if err == nil || !retryable(err, idempotent) {
		return err
	}
	c.log.Warn().Err(err).Str("path", path).Dur("backoff", c.backoff).Msg("transient exchange error, retrying")
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(c.backoff):
	}
	return c.send(ctx, method, path, params, signed, out)
}

func (c *Client) send(ctx context.Context, method, path string, params url.Values, signed bool, out any) error {
	q := url.Values{}
	for k, v := range params {
		q[k] = v
	}
	if signed {
		q.Set("timestamp", strconv.FormatInt(c.now().Add(c.offset).UnixMilli(), 10))
		q.Set("recvWindow", strconv.FormatInt(c.recvWindow, 10))
	}
	query := q.Encode()
	if signed {
		query += "&signature=" + c.sign(query)
	}
	endpoint := c.baseURL + path
	if query != "" {
		endpoint += "?" + query
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return err
	}
	if c.apiKey != "" {
		req.Header.Set("X-MBX-APIKEY", c.apiKey)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{Status: resp.StatusCode}
		if json.Unmarshal(body, apiErr) != nil || apiErr.Msg == "" {
			apiErr.Msg = strings.TrimSpace(string(body))
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// sign returns the hex HMAC-SHA256 of payload under the API secret.
func (c *Client) sign(payload string) string {
	mac := hmac.New(sha256.New, []byte(c.apiSecret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"papertrade/internal/domain"
)

// Default configuration values.
const (
	DefaultRESTEndpoint = "https://api.binance.com"
	DefaultTimeout      = 30 * time.Second
	DefaultMaxRetries   = 3
	DefaultRetryDelay   = 1 * time.Second
	DefaultMaxDelay     = 10 * time.Second
	DefaultBackoffMult  = 2.0

	// DefaultInterval is the candle interval used when the caller passes none.
	DefaultInterval = "1m"

	// maxKlineLimit is the exchange's per-request candle cap.
	maxKlineLimit = 1000
)

// RESTClient fetches spot prices and candles over the exchange REST API.
type RESTClient struct {
	endpoint    string
	client      *http.Client
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
}

// RESTOption configures RESTClient.
type RESTOption func(*RESTClient)

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) RESTOption {
	return func(c *RESTClient) {
		c.client.Timeout = d
	}
}

// WithMaxRetries sets maximum retry attempts.
func WithMaxRetries(n int) RESTOption {
	return func(c *RESTClient) {
		c.maxRetries = n
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) RESTOption {
	return func(c *RESTClient) {
		c.client = client
	}
}

// NewRESTClient creates an exchange REST client. An empty endpoint selects
// the public production API.
func NewRESTClient(endpoint string, opts ...RESTOption) *RESTClient {
	if endpoint == "" {
		endpoint = DefaultRESTEndpoint
	}
	c := &RESTClient{
		endpoint:    endpoint,
		client:      &http.Client{Timeout: DefaultTimeout},
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		maxDelay:    DefaultMaxDelay,
		backoffMult: DefaultBackoffMult,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// get performs a GET with retries and exponential backoff and decodes the
// JSON body into result.
func (c *RESTClient) get(ctx context.Context, path string, query url.Values, result interface{}) error {
	u := c.endpoint + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	delay := c.retryDelay
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay = time.Duration(float64(delay) * c.backoffMult)
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("http request: %w", err)
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("rate limited (429)")
			continue
		}

		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
			continue
		}

		if err := json.Unmarshal(body, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
		return nil
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

// tickerPriceResponse is the /api/v3/ticker/price payload.
type tickerPriceResponse struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

// GetPrice returns the latest trade price for a symbol.
func (c *RESTClient) GetPrice(ctx context.Context, symbol string) (float64, time.Time, error) {
	query := url.Values{"symbol": {symbol}}

	var resp tickerPriceResponse
	if err := c.get(ctx, "/api/v3/ticker/price", query, &resp); err != nil {
		return 0, time.Time{}, err
	}

	price, err := strconv.ParseFloat(resp.Price, 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("parse price %q: %w", resp.Price, err)
	}
	return price, time.Now().UTC(), nil
}

// GetKlines returns up to count closed candles for a symbol, oldest first.
// Each kline is decoded into a PricePoint carrying the close price and the
// candle close time.
func (c *RESTClient) GetKlines(ctx context.Context, symbol, interval string, count int) ([]*domain.PricePoint, error) {
	if interval == "" {
		interval = DefaultInterval
	}
	if count <= 0 || count > maxKlineLimit {
		count = maxKlineLimit
	}

	query := url.Values{
		"symbol":   {symbol},
		"interval": {interval},
		"limit":    {strconv.Itoa(count)},
	}

	// Klines arrive as positional arrays:
	// [openTime, open, high, low, close, volume, closeTime, ...]
	var raw [][]json.RawMessage
	if err := c.get(ctx, "/api/v3/klines", query, &raw); err != nil {
		return nil, err
	}

	points := make([]*domain.PricePoint, 0, len(raw))
	for _, k := range raw {
		if len(k) < 7 {
			return nil, fmt.Errorf("malformed kline: %d fields", len(k))
		}

		var closeStr string
		if err := json.Unmarshal(k[4], &closeStr); err != nil {
			return nil, fmt.Errorf("unmarshal close: %w", err)
		}
		closePrice, err := strconv.ParseFloat(closeStr, 64)
		if err != nil {
			return nil, fmt.Errorf("parse close %q: %w", closeStr, err)
		}

		var closeTime int64
		if err := json.Unmarshal(k[6], &closeTime); err != nil {
			return nil, fmt.Errorf("unmarshal close time: %w", err)
		}

		points = append(points, &domain.PricePoint{
			Symbol:      symbol,
			TimestampMs: closeTime,
			Price:       closePrice,
		})
	}
	return points, nil
}

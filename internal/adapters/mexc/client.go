package mexc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker/v2"

	"github.com/prxgr4mmer/spread-tracker/internal/domain"
	"github.com/prxgr4mmer/spread-tracker/internal/ports"
	"github.com/prxgr4mmer/spread-tracker/pkg/retry"
)

const (
	defaultBaseURL = "https://contract.mexc.com/api/v1/contract/index_price"
	quoteSuffix    = "_USDT"
	defaultTimeout = 5 * time.Second
	userAgent      = "SpreadTracker/1.0"
	probeSymbol    = "BTC"
)

// Client implements the CEXSource interface for MEXC contract index prices
type Client struct {
	httpClient *http.Client
	baseURL    string
	timeout    time.Duration
	retryConf  retry.Config
	breaker    *gobreaker.CircuitBreaker[decimal.Decimal]
	logger     *slog.Logger
}

// ClientOption configures the client
type ClientOption func(*Client)

// WithBaseURL sets the base URL
func WithBaseURL(url string) ClientOption {
	return func(c *Client) {
		if url != "" {
			c.baseURL = strings.TrimRight(url, "/")
		}
	}
}

// WithHTTPClient shares an HTTP client between sources
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout bounds each price lookup, retries included
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithRetry configures retry behavior
func WithRetry(maxRetries int, backoff time.Duration) ClientOption {
	return func(c *Client) {
		c.retryConf.MaxRetries = maxRetries
		c.retryConf.InitialBackoff = backoff
	}
}

// WithBreakerSettings replaces the default circuit breaker settings
func WithBreakerSettings(st gobreaker.Settings) ClientOption {
	return func(c *Client) {
		c.breaker = gobreaker.NewCircuitBreaker[decimal.Decimal](st)
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger.With("component", "mexc_client")
	}
}

// NewClient creates a new MEXC client
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    defaultBaseURL,
		timeout:    defaultTimeout,
		retryConf:  retry.DefaultConfig(),
		logger:     slog.Default().With("component", "mexc_client"),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.breaker == nil {
		c.breaker = gobreaker.NewCircuitBreaker[decimal.Decimal](gobreaker.Settings{
			Name:        "mexc",
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 10
			},
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, domain.ErrInvalidResponse)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				c.logger.Warn("circuit breaker state changed",
					"breaker", name,
					"from", from.String(),
					"to", to.String())
			},
		})
	}

	return c
}

// GetPrice returns the USDT index price of the contract for symbol
func (c *Client) GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	price, err := c.breaker.Execute(func() (decimal.Decimal, error) {
		return retry.DoWithResult(ctx, c.retryConf, func(ctx context.Context) (decimal.Decimal, error) {
			return c.fetchIndexPrice(ctx, symbol)
		})
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return decimal.Zero, fmt.Errorf("%w: %v", domain.ErrSourceUnavailable, err)
		}
		return decimal.Zero, err
	}

	c.logger.Debug("cex price found", "symbol", symbol, "price", price.String())
	return price, nil
}

func (c *Client) fetchIndexPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	endpoint := c.baseURL + "/" + url.PathEscape(strings.ToUpper(symbol)+quoteSuffix)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return decimal.Zero, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return decimal.Zero, fmt.Errorf("%w: %v", domain.ErrSourceUnavailable, err)
		}
		return decimal.Zero, retry.NewRetryableError(fmt.Errorf("%w: %v", domain.ErrSourceUnavailable, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		c.logger.Warn("rate limited by mexc")
		return decimal.Zero, retry.NewRetryableError(domain.ErrRateLimited)
	}

	if retry.RetryableStatus(resp.StatusCode) {
		return decimal.Zero, retry.NewRetryableError(fmt.Errorf("%w: status %d", domain.ErrSourceUnavailable, resp.StatusCode))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decimal.Zero, fmt.Errorf("%w: status %d", domain.ErrInvalidResponse, resp.StatusCode)
	}

	var body indexPriceResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return decimal.Zero, fmt.Errorf("%w: decode index price: %v", domain.ErrInvalidResponse, err)
	}

	if body.Data == nil || body.Data.IndexPrice == nil {
		return decimal.Zero, fmt.Errorf("%w: no index price for %s (code %d)", domain.ErrInvalidResponse, symbol, body.Code)
	}

	return *body.Data.IndexPrice, nil
}

// Ping checks if MEXC answers for a well-known contract
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+probeSymbol+quoteSuffix, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: status %d", domain.ErrSourceUnavailable, resp.StatusCode)
	}

	return nil
}

// Ensure Client implements CEXSource
var _ ports.CEXSource = (*Client)(nil)

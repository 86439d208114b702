package dexscreener

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker/v2"

	"github.com/prxgr4mmer/spread-tracker/internal/domain"
	"github.com/prxgr4mmer/spread-tracker/internal/ports"
	"github.com/prxgr4mmer/spread-tracker/pkg/retry"
)

const (
	defaultBaseURL = "https://api.dexscreener.com/latest/dex"
	tokensPath     = "/tokens/"
	defaultTimeout = 10 * time.Second
	userAgent      = "SpreadTracker/1.0"

	// WETH on Ethereum, used for health probes
	probeAddress = "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2"
)

// Client implements the DEXSource interface for DexScreener
type Client struct {
	httpClient *http.Client
	baseURL    string
	timeout    time.Duration
	criteria   domain.PairCriteria
	retryConf  retry.Config
	breaker    *gobreaker.CircuitBreaker[[]byte]
	logger     *slog.Logger
}

// ClientOption configures the client
type ClientOption func(*Client)

// WithBaseURL sets the base URL
func WithBaseURL(url string) ClientOption {
	return func(c *Client) {
		if url != "" {
			c.baseURL = url
		}
	}
}

// WithHTTPClient shares an HTTP client (and its connection pool) between sources
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

// WithCriteria sets the pair selection thresholds
func WithCriteria(criteria domain.PairCriteria) ClientOption {
	return func(c *Client) {
		c.criteria = criteria
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
		c.breaker = gobreaker.NewCircuitBreaker[[]byte](st)
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger.With("component", "dexscreener_client")
	}
}

// NewClient creates a new DexScreener client
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    defaultBaseURL,
		timeout:    defaultTimeout,
		criteria:   domain.DefaultPairCriteria(),
		retryConf:  retry.DefaultConfig(),
		logger:     slog.Default().With("component", "dexscreener_client"),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.breaker == nil {
		c.breaker = gobreaker.NewCircuitBreaker[[]byte](defaultBreakerSettings(c.logger))
	}

	return c
}

func defaultBreakerSettings(logger *slog.Logger) gobreaker.Settings {
	return gobreaker.Settings{
		Name:        "dexscreener",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 10
		},
		// a 4xx for one token says nothing about the source's health
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, domain.ErrInvalidResponse)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String())
		},
	}
}

// GetPrice returns the USD price of the best qualifying pair for the token address
func (c *Client) GetPrice(ctx context.Context, address string) (decimal.Decimal, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := c.breaker.Execute(func() ([]byte, error) {
		return retry.DoWithResult(ctx, c.retryConf, func(ctx context.Context) ([]byte, error) {
			return c.fetchPairs(ctx, address)
		})
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return decimal.Zero, fmt.Errorf("%w: %v", domain.ErrSourceUnavailable, err)
		}
		return decimal.Zero, err
	}

	var resp tokenPairsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return decimal.Zero, fmt.Errorf("%w: decode pairs: %v", domain.ErrInvalidResponse, err)
	}

	if len(resp.Pairs) == 0 {
		return decimal.Zero, domain.ErrNoPairs
	}

	best, ok := domain.SelectBestPair(toCandidates(resp.Pairs), c.criteria)
	if !ok {
		return decimal.Zero, fmt.Errorf("%w (min_liquidity=$%.0f, min_volume=$%.0f)",
			domain.ErrNoQualifyingPairs, c.criteria.MinLiquidityUSD, c.criteria.MinVolumeUSD)
	}

	price, err := decimal.NewFromString(best.PriceUSD)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: price %q: %v", domain.ErrInvalidResponse, best.PriceUSD, err)
	}

	c.logger.Debug("dex price found",
		"address", address,
		"price", price.String(),
		"pair", best.BaseSymbol+"/"+best.QuoteSymbol,
		"dex", best.DEXID,
		"liquidity_usd", best.LiquidityUSD,
		"score", best.Score,
	)

	return price, nil
}

func (c *Client) fetchPairs(ctx context.Context, address string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+tokensPath+url.PathEscape(address), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrSourceUnavailable, err)
		}
		c.logger.Debug("request failed, will retry", "error", err)
		return nil, retry.NewRetryableError(fmt.Errorf("%w: %v", domain.ErrSourceUnavailable, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		c.logger.Warn("rate limited by dexscreener")
		return nil, retry.NewRetryableError(domain.ErrRateLimited)
	}

	if retry.RetryableStatus(resp.StatusCode) {
		return nil, retry.NewRetryableError(fmt.Errorf("%w: status %d", domain.ErrSourceUnavailable, resp.StatusCode))
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", domain.ErrInvalidResponse, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, retry.NewRetryableError(fmt.Errorf("%w: read body: %v", domain.ErrSourceUnavailable, err))
	}

	return body, nil
}

// Ping checks if DexScreener answers for a well-known token
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+tokensPath+probeAddress, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", domain.ErrSourceUnavailable, resp.StatusCode)
	}

	return nil
}

func toCandidates(pairs []pairData) []domain.PairCandidate {
	candidates := make([]domain.PairCandidate, 0, len(pairs))
	for _, p := range pairs {
		var liquidityUSD float64
		if p.Liquidity != nil {
			liquidityUSD = p.Liquidity.Usd
		}

		candidates = append(candidates, domain.PairCandidate{
			ChainID:      p.ChainID,
			DEXID:        p.DexID,
			PairAddress:  p.PairAddress,
			BaseSymbol:   p.BaseToken.Symbol,
			QuoteSymbol:  p.QuoteToken.Symbol,
			LiquidityUSD: liquidityUSD,
			Volume24hUSD: p.Volume.H24,
			PriceUSD:     p.PriceUsd,
		})
	}
	return candidates
}

// Ensure Client implements DEXSource
var _ ports.DEXSource = (*Client)(nil)

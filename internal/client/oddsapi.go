package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"oddsline/ingestion/internal/metrics"
	"oddsline/ingestion/internal/models"

	"github.com/rs/zerolog/log"
)

// Options controls which odds the provider returns
type Options struct {
	Regions    string // e.g. "us"
	Markets    string // e.g. "h2h,spreads,totals"
	OddsFormat string // "american"
}

// OddsClient is The Odds API client
type OddsClient struct {
	baseURL     string
	apiKey      string
	opts        Options
	httpClient  *http.Client
	rateLimiter chan struct{} // concurrent request semaphore
	maxRetries  int
	retryDelay  time.Duration
}

// statusError carries a non-200 response so callers can classify it
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("API returned status %d: %s", e.code, e.body)
}

// NewOddsClient creates a new odds provider client
func NewOddsClient(baseURL, apiKey string, timeout time.Duration, opts Options) *OddsClient {
	// Max 10 in-flight requests
	rateLimiter := make(chan struct{}, 10)
	for i := 0; i < 10; i++ {
		rateLimiter <- struct{}{}
	}

	if opts.Regions == "" {
		opts.Regions = "us"
	}
	if opts.Markets == "" {
		opts.Markets = "h2h,spreads,totals"
	}
	if opts.OddsFormat == "" {
		opts.OddsFormat = "american"
	}

	return &OddsClient{
		baseURL:     baseURL,
		apiKey:      apiKey,
		opts:        opts,
		rateLimiter: rateLimiter,
		maxRetries:  3,
		retryDelay:  1 * time.Second,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// SetRetryPolicy overrides the retry count and base backoff
func (c *OddsClient) SetRetryPolicy(maxRetries int, retryDelay time.Duration) {
	c.maxRetries = maxRetries
	c.retryDelay = retryDelay
}

// get performs a GET request with retry logic and rate limiting
func (c *OddsClient) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	endpoint := fmt.Sprintf("%s/%s", c.baseURL, path)

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			// Exponential backoff: 1s, 2s, 4s
			backoff := c.retryDelay * time.Duration(1<<uint(attempt-1))
			log.Info().
				Str("url", endpoint).
				Int("attempt", attempt).
				Dur("backoff", backoff).
				Msg("Retrying odds request after backoff")

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		body, retry, err := c.do(ctx, endpoint, params, attempt)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !retry || attempt == c.maxRetries {
			return nil, lastErr
		}
	}

	return nil, lastErr
}

// do performs a single attempt and reports whether the failure is retryable
func (c *OddsClient) do(ctx context.Context, endpoint string, params url.Values, attempt int) ([]byte, bool, error) {
	select {
	case <-ctx.Done():
		return nil, false, ctx.Err()
	case <-c.rateLimiter:
	}
	defer func() { c.rateLimiter <- struct{}{} }()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create request: %w", err)
	}

	q := url.Values{}
	for key, values := range params {
		for _, v := range values {
			q.Add(key, v)
		}
	}
	q.Set("apiKey", c.apiKey)
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Accept", "application/json")

	log.Debug().
		Str("url", endpoint).
		Int("attempt", attempt+1).
		Msg("Making odds API request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}
		return nil, true, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("failed to read response body: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		log.Debug().
			Str("url", endpoint).
			Int("size", len(body)).
			Str("requests_remaining", resp.Header.Get("x-requests-remaining")).
			Msg("Odds API request successful")
		return body, false, nil

	case http.StatusTooManyRequests, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		log.Warn().
			Str("url", endpoint).
			Int("status", resp.StatusCode).
			Int("attempt", attempt+1).
			Msg("Received retryable error")
		return nil, true, &statusError{code: resp.StatusCode, body: string(body)}

	default:
		// Auth and other client errors are not retried
		return nil, false, &statusError{code: resp.StatusCode, body: string(body)}
	}
}

// FetchOdds fetches every event the provider currently offers for a league,
// with nested bookmakers, markets and outcomes.
func (c *OddsClient) FetchOdds(ctx context.Context, league models.League) ([]models.EventSnapshot, error) {
	start := time.Now()
	path := fmt.Sprintf("sports/%s/odds", url.PathEscape(league.SportKey))

	params := url.Values{}
	params.Set("regions", c.opts.Regions)
	params.Set("markets", c.opts.Markets)
	params.Set("oddsFormat", c.opts.OddsFormat)
	params.Set("dateFormat", "iso")

	body, err := c.get(ctx, path, params)
	if err != nil {
		metrics.RecordAPICall("odds", "error", time.Since(start).Seconds())
		return nil, classify(league.Code, err)
	}

	var events []models.EventSnapshot
	if err := json.Unmarshal(body, &events); err != nil {
		metrics.RecordAPICall("odds", "error", time.Since(start).Seconds())
		return nil, &ProviderError{
			League: league.Code,
			Kind:   ProviderUnavailable,
			Err:    fmt.Errorf("failed to unmarshal odds: %w", err),
		}
	}
	metrics.RecordAPICall("odds", "success", time.Since(start).Seconds())

	models.SortSnapshots(events)
	return events, nil
}

func classify(league string, err error) error {
	pe := &ProviderError{League: league, Kind: ProviderUnavailable, Err: err}

	var se *statusError
	if errors.As(err, &se) {
		pe.StatusCode = se.code
		if se.code == http.StatusTooManyRequests {
			pe.Kind = ProviderRateLimited
		}
	}
	return pe
}

// Package metrics talks to the external keyword-metrics provider: batch
// lookups of volume, difficulty, cpc, trend, and SERP context, under the
// provider's rate limit.
package metrics

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultBatchSize          = 100
	DefaultRateLimitPerMinute = 45
	metricsPath               = "/v1/keywords/metrics"
)

// KeywordMetrics is one enriched keyword as returned by the provider.
type KeywordMetrics struct {
	Keyword           string   `json:"keyword"`
	Volume            int      `json:"volume"`
	Difficulty        float64  `json:"difficulty"`
	CPC               float64  `json:"cpc"`
	Trend             float64  `json:"trend"`
	SERPKeywords      []string `json:"serp_keywords,omitempty"`
	CompetitorDomains []string `json:"competitor_domains,omitempty"`
}

// Provider is the contract the pipeline requires from a metrics backend.
// Implementations must accept at most BatchSize keywords per call.
type Provider interface {
	GetMetrics(ctx context.Context, kws []string, market string) ([]KeywordMetrics, error)
	BatchSize() int
	CostPerCall() float64
}

// Config for the HTTP provider.
type Config struct {
	APIKey             string
	BaseURL            string
	BatchSize          int
	RateLimitPerMinute int
	CostPerBatch       float64
	HTTPClient         *http.Client
}

// HTTPProvider implements Provider against a JSON batch endpoint. A shared
// ticker enforces the provider rate limit across all concurrent callers.
type HTTPProvider struct {
	cfg    Config
	ticker *time.Ticker
}

func NewHTTPProvider(cfg Config) (*HTTPProvider, error) {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	if cfg.APIKey == "" {
		return nil, errors.New("METRICS_API_KEY not configured")
	}
	if cfg.BaseURL == "" {
		return nil, errors.New("metrics base URL not configured")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.RateLimitPerMinute <= 0 {
		cfg.RateLimitPerMinute = DefaultRateLimitPerMinute
	}
	if cfg.CostPerBatch <= 0 {
		cfg.CostPerBatch = 0.02
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	interval := time.Minute / time.Duration(cfg.RateLimitPerMinute)
	return &HTTPProvider{cfg: cfg, ticker: time.NewTicker(interval)}, nil
}

func (p *HTTPProvider) BatchSize() int       { return p.cfg.BatchSize }
func (p *HTTPProvider) CostPerCall() float64 { return p.cfg.CostPerBatch }

// Close stops the rate-limit ticker. The provider must not be used after.
func (p *HTTPProvider) Close() { p.ticker.Stop() }

type metricsAPIResponse struct {
	Error    bool             `json:"error"`
	Message  string           `json:"message"`
	Keywords []KeywordMetrics `json:"keywords"`
}

func (p *HTTPProvider) GetMetrics(ctx context.Context, kws []string, market string) ([]KeywordMetrics, error) {
	if len(kws) == 0 {
		return nil, nil
	}
	if len(kws) > p.cfg.BatchSize {
		return nil, fmt.Errorf("batch of %d exceeds provider batch size %d", len(kws), p.cfg.BatchSize)
	}
	if err := p.waitRateLimit(ctx); err != nil {
		return nil, err
	}
	resp, _, err := p.executeWithRetry(ctx, map[string]any{"keywords": kws, "market": market})
	if err != nil {
		return nil, err
	}
	return resp.Keywords, nil
}

func (p *HTTPProvider) waitRateLimit(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.ticker.C:
		return nil
	}
}

func (p *HTTPProvider) executeWithRetry(ctx context.Context, body map[string]any) (metricsAPIResponse, int, error) {
	var lastErr error
	statusCode := 0
	for attempt := 1; attempt <= 4; attempt++ {
		resp, code, retryAfter, err := p.executeOnce(ctx, body)
		statusCode = code
		if err == nil {
			return resp, statusCode, nil
		}
		lastErr = err

		if code == http.StatusBadRequest || code == http.StatusForbidden || code == http.StatusUnauthorized {
			return metricsAPIResponse{}, statusCode, err
		}
		if attempt == 4 {
			break
		}
		if code == http.StatusTooManyRequests {
			sleep := retryAfter
			if sleep <= 0 {
				sleep = backoffDelay(attempt)
			}
			if err := sleepCtx(ctx, sleep); err != nil {
				return metricsAPIResponse{}, statusCode, err
			}
			continue
		}
		if code >= 500 || code == 0 || errors.Is(err, context.DeadlineExceeded) {
			if err := sleepCtx(ctx, backoffDelay(attempt)); err != nil {
				return metricsAPIResponse{}, statusCode, err
			}
			continue
		}
		return metricsAPIResponse{}, statusCode, err
	}
	return metricsAPIResponse{}, statusCode, lastErr
}

func (p *HTTPProvider) executeOnce(ctx context.Context, body map[string]any) (metricsAPIResponse, int, time.Duration, error) {
	payload, _ := json.Marshal(body)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(p.cfg.BaseURL, "/")+metricsPath, bytes.NewReader(payload))
	if err != nil {
		return metricsAPIResponse{}, 0, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", p.cfg.APIKey)

	res, err := p.cfg.HTTPClient.Do(req)
	if err != nil {
		return metricsAPIResponse{}, 0, 0, err
	}
	defer res.Body.Close()
	b, _ := io.ReadAll(io.LimitReader(res.Body, 2<<20))

	retryAfter := parseRetryAfter(res.Header.Get("Retry-After"))
	if res.StatusCode >= 400 {
		return metricsAPIResponse{}, res.StatusCode, retryAfter, fmt.Errorf("status code: %d body=%s", res.StatusCode, truncate(string(b), 200))
	}

	var parsed metricsAPIResponse
	if err := json.Unmarshal(b, &parsed); err != nil {
		return metricsAPIResponse{}, res.StatusCode, retryAfter, err
	}
	if parsed.Error {
		return metricsAPIResponse{}, res.StatusCode, retryAfter, fmt.Errorf("provider error flag set message=%q", parsed.Message)
	}
	return parsed, res.StatusCode, retryAfter, nil
}

func parseRetryAfter(v string) time.Duration {
	if strings.TrimSpace(v) == "" {
		return 0
	}
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err == nil {
		return time.Duration(secs) * time.Second
	}
	return 0
}

func backoffDelay(attempt int) time.Duration {
	switch attempt {
	case 1:
		return 1 * time.Second
	case 2:
		return 2 * time.Second
	default:
		return 4 * time.Second
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

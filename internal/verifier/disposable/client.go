// Package disposable verifies candidate email addresses against a
// third-party disposable-address checker.
//
// The pipeline treats this check as fail-closed: a disposable verdict, an
// unreachable service, and a malformed response all refuse the registration.
// This adapter owns the resiliency around the single blocking round trip: a
// bounded request timeout, an optional Redis verdict cache, and an optional
// circuit breaker that fails closed fast while the service is known bad.
package disposable

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"

	"gatehouse/pkg/platform/circuit"
)

var (
	checkDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "gatehouse_disposable_check_duration_seconds",
		Help:    "Latency of disposable-email checks",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	})
	checkOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gatehouse_disposable_check_outcomes_total",
		Help: "Disposable-email check outcomes",
	}, []string{"outcome"})
)

const (
	outcomeClean       = "clean"
	outcomeDisposable  = "disposable"
	outcomeError       = "error"
	outcomeCacheHit    = "cache_hit"
	outcomeCircuitOpen = "circuit_open"

	cacheKeyPrefix = "disposable:email:"
)

// Client calls the disposable-email checker service.
type Client struct {
	baseURL  string
	apiToken string
	http     *http.Client
	cache    redis.Cmdable
	cacheTTL time.Duration
	breaker  *circuit.Breaker
	logger   *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client (tests).
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.http = httpClient
		}
	}
}

// WithCache enables verdict caching in Redis. Only definitive verdicts are
// cached; failures are not.
func WithCache(cache redis.Cmdable, ttl time.Duration) Option {
	return func(c *Client) {
		c.cache = cache
		if ttl > 0 {
			c.cacheTTL = ttl
		}
	}
}

// WithBreaker installs a circuit breaker. While the circuit is open, checks
// fail immediately without a round trip.
func WithBreaker(breaker *circuit.Breaker) Option {
	return func(c *Client) {
		c.breaker = breaker
	}
}

// WithLogger sets a logger for non-fatal diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// New creates a checker client. timeout bounds each round trip; the service
// contract itself specifies no timeout, so this guards the calling goroutine.
func New(baseURL, apiToken string, timeout time.Duration, opts ...Option) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	c := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		apiToken: apiToken,
		http:     &http.Client{Timeout: timeout},
		cacheTTL: time.Hour,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type checkResponse struct {
	Disposable string `json:"disposable"`
}

// Check reports whether the address is disposable. A non-nil error means the
// check could not produce a definitive verdict; callers must treat that as a
// block, not a pass.
func (c *Client) Check(ctx context.Context, email string) (bool, error) {
	if cached, ok := c.cachedVerdict(ctx, email); ok {
		checkOutcomes.WithLabelValues(outcomeCacheHit).Inc()
		return cached, nil
	}

	if c.breaker != nil && !c.breaker.Allow() {
		checkOutcomes.WithLabelValues(outcomeCircuitOpen).Inc()
		return false, fmt.Errorf("disposable checker circuit open")
	}

	start := time.Now()
	disposable, err := c.roundTrip(ctx, email)
	checkDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		if c.breaker != nil {
			c.breaker.RecordFailure()
		}
		checkOutcomes.WithLabelValues(outcomeError).Inc()
		return false, err
	}

	if c.breaker != nil {
		c.breaker.RecordSuccess()
	}
	if disposable {
		checkOutcomes.WithLabelValues(outcomeDisposable).Inc()
	} else {
		checkOutcomes.WithLabelValues(outcomeClean).Inc()
	}
	c.storeVerdict(ctx, email, disposable)
	return disposable, nil
}

func (c *Client) roundTrip(ctx context.Context, email string) (bool, error) {
	endpoint := fmt.Sprintf("%s/v1/checkers/proxy/email/?email=%s", c.baseURL, url.QueryEscape(email))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, fmt.Errorf("build disposable check request: %w", err)
	}
	req.Header.Set("APITOKEN", c.apiToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("disposable check request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return false, fmt.Errorf("disposable check returned status %d", resp.StatusCode)
	}

	var body checkResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false, fmt.Errorf("decode disposable check response: %w", err)
	}

	return strings.EqualFold(body.Disposable, "yes"), nil
}

func (c *Client) cachedVerdict(ctx context.Context, email string) (bool, bool) {
	if c.cache == nil {
		return false, false
	}
	val, err := c.cache.Get(ctx, cacheKey(email)).Result()
	if err != nil {
		if err != redis.Nil {
			c.logger.WarnContext(ctx, "disposable verdict cache read failed", "error", err)
		}
		return false, false
	}
	return val == "yes", true
}

func (c *Client) storeVerdict(ctx context.Context, email string, disposable bool) {
	if c.cache == nil {
		return
	}
	val := "no"
	if disposable {
		val = "yes"
	}
	if err := c.cache.Set(ctx, cacheKey(email), val, c.cacheTTL).Err(); err != nil {
		c.logger.WarnContext(ctx, "disposable verdict cache write failed", "error", err)
	}
}

func cacheKey(email string) string {
	return cacheKeyPrefix + strings.ToLower(strings.TrimSpace(email))
}

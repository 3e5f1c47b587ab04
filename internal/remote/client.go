package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"

	"planbridge/internal/domain"
	"planbridge/internal/metrics"
)

const (
	defaultReadTimeout       = 8 * time.Second
	defaultMonteCarloTimeout = 45 * time.Second
	defaultMaxAttempts       = 3
	defaultRetryBaseDelay    = time.Second
)

// AuthError is a 401/403 from the remote service. Never retried; the
// dispatcher reacts with a one-time tier re-probe.
type AuthError struct {
	StatusCode int
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("remote rejected API key (HTTP %d)", e.StatusCode)
}

// TransientError is a network failure or 5xx that survived the retry budget.
type TransientError struct {
	StatusCode int // 0 for transport-level failures
	Attempts   int
	Last       error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("remote unavailable after %d attempt(s): %v", e.Attempts, e.Last)
}

func (e *TransientError) Unwrap() error { return e.Last }

// Response is the raw remote outcome a successful exchange produces. Any
// status below 500 is a response, not an error; classification is the
// normalizer's job.
type Response struct {
	StatusCode int
	Body       []byte
}

// Config tunes the client. Zero values take the production defaults;
// RetryBaseDelay exists so tests can retry without sleeping for real.
type Config struct {
	BaseURL           string
	APIKey            string
	ReadTimeout       time.Duration
	MonteCarloTimeout time.Duration
	MaxAttempts       int
	RetryBaseDelay    time.Duration
	Logger            *slog.Logger
}

// Client performs the HTTP exchange with the computation service. Read-style
// operations run under a short timeout and a bounded exponential-backoff
// retry; Monte Carlo runs are long, expensive, and never retried.
type Client struct {
	cfg  Config
	http *http.Client
}

func New(cfg Config) *Client {
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = defaultReadTimeout
	}
	if cfg.MonteCarloTimeout <= 0 {
		cfg.MonteCarloTimeout = defaultMonteCarloTimeout
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = defaultRetryBaseDelay
	}
	transport := &http.Transport{
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Transport: transport},
	}
}

// Do executes a built request. The per-operation time budget covers all
// retry attempts together, so a timeout means the budget expired no matter
// which attempt was in flight.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeoutFor(req.Operation))
	defer cancel()

	attempts := 1
	if req.Operation.ReadStyle() {
		attempts = c.cfg.MaxAttempts
	}

	var body []byte
	if req.Body != nil {
		var err error
		body, err = json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("marshal %s request: %w", req.Operation, err)
		}
	}

	metrics.Collector.Counter("planbridge_remote_calls_total",
		"Remote computation calls by operation", `operation="`+string(req.Operation)+`"`).Inc()

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			if err := c.backoff(ctx, attempt); err != nil {
				return nil, err
			}
			metrics.Collector.Counter("planbridge_remote_retries_total",
				"Remote retry attempts", "").Inc()
		}

		resp, err := c.once(ctx, req, body)
		if err == nil {
			return resp, nil
		}
		if _, ok := err.(*AuthError); ok {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
		c.cfg.Logger.Warn("remote call failed",
			"operation", req.Operation, "attempt", attempt, "err", err)
	}

	var status int
	if te, ok := lastErr.(*transientStatus); ok {
		status = te.code
	}
	return nil, &TransientError{StatusCode: status, Attempts: attempts, Last: lastErr}
}

// transientStatus marks a retryable 5xx within the retry loop.
type transientStatus struct {
	code int
	body string
}

func (e *transientStatus) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.code, e.body)
}

func (c *Client) once(ctx context.Context, req *Request, body []byte) (*Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, c.cfg.BaseURL+req.Path, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("X-API-Key", c.cfg.APIKey)
	httpReq.Header.Set("X-Request-ID", uuid.NewString())
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, &AuthError{StatusCode: resp.StatusCode}
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return nil, &transientStatus{code: resp.StatusCode, body: string(respBody)}
	}

	return &Response{StatusCode: resp.StatusCode, Body: respBody}, nil
}

// backoff sleeps attempt²·base plus jitter, honoring cancellation.
func (c *Client) backoff(ctx context.Context, attempt int) error {
	n := attempt - 1
	base := time.Duration(n*n) * c.cfg.RetryBaseDelay
	jitter := time.Duration(rand.Int64N(int64(base/2 + 1)))
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(base + jitter):
		return nil
	}
}

func (c *Client) timeoutFor(op domain.Operation) time.Duration {
	if op == domain.OpMonteCarlo {
		return c.cfg.MonteCarloTimeout
	}
	return c.cfg.ReadTimeout
}

// ProbeTier asks the service which tier the configured key belongs to. An
// auth rejection is a definitive answer (invalid), not an error.
func (c *Client) ProbeTier(ctx context.Context) (domain.Tier, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.ReadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+pathKeyInfo, nil)
	if err != nil {
		return domain.TierUnknown, err
	}
	req.Header.Set("X-API-Key", c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.TierUnknown, fmt.Errorf("key-info: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return domain.TierInvalid, nil
	}
	if resp.StatusCode != http.StatusOK {
		return domain.TierUnknown, fmt.Errorf("key-info returned HTTP %d", resp.StatusCode)
	}

	var info struct {
		Tier string `json:"tier"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return domain.TierUnknown, fmt.Errorf("decode key-info: %w", err)
	}
	switch domain.Tier(info.Tier) {
	case domain.TierDemo, domain.TierPremium:
		return domain.Tier(info.Tier), nil
	}
	return domain.TierUnknown, fmt.Errorf("key-info reported unknown tier %q", info.Tier)
}

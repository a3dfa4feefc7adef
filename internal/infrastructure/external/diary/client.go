package diary

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/dnevnik-hub/dnevnik-homework-bot/internal/domain/homework"
	"github.com/dnevnik-hub/dnevnik-homework-bot/internal/domain/shared"
	"github.com/dnevnik-hub/dnevnik-homework-bot/pkg/circuitbreaker"
	"github.com/dnevnik-hub/dnevnik-homework-bot/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

const (
	// DefaultBaseURL is the regional diary portal host.
	DefaultBaseURL = "https://authedu.mosreg.ru"

	// homeworksPath is the family web endpoint that serves homework entries.
	homeworksPath = "/api/family/web/v1/homeworks"

	// defaultUserAgent mimics a desktop browser. The portal serves the family
	// web subsystem only to browser-looking clients.
	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"

	// DefaultProfileType is the profile role the bot acts as.
	DefaultProfileType = "student"

	// DefaultSubsystem is the portal subsystem the endpoint belongs to.
	DefaultSubsystem = "familyweb"
)

// ClientConfig contains configuration for the diary API client.
type ClientConfig struct {
	// BaseURL is the diary portal base URL
	BaseURL string

	// BearerToken is the authorization token issued by the portal.
	// It expires periodically and has to be refreshed by hand.
	BearerToken string

	// StudentID identifies the student whose homework is fetched
	StudentID string

	// ProfileID is the profile identifier sent in the Profile-Id header
	ProfileID string

	// ProfileType is the profile role, usually "student"
	ProfileType string

	// Subsystem is the X-mes-subsystem header value, usually "familyweb"
	Subsystem string

	// Cookie is an optional raw Cookie header; some portal deployments
	// require the session cookie alongside the bearer token
	Cookie string

	// UserAgent overrides the User-Agent header
	UserAgent string

	// Timeout is the HTTP request timeout
	Timeout time.Duration

	// MaxRetries is the number of attempts for network-level failures
	MaxRetries int

	// RetryInitialDelay is the delay before the first retry; subsequent
	// delays double
	RetryInitialDelay time.Duration

	// RateLimiterConfig for client-side request pacing
	RateLimiterConfig RateLimiterConfig

	// OnBreakerStateChange is called when the circuit breaker changes state
	OnBreakerStateChange func(name string, from, to circuitbreaker.State)

	// Logger for structured logging
	Logger *slog.Logger

	// Debug enables debug logging of requests
	Debug bool
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		BaseURL:           DefaultBaseURL,
		ProfileType:       DefaultProfileType,
		Subsystem:         DefaultSubsystem,
		UserAgent:         defaultUserAgent,
		Timeout:           30 * time.Second,
		MaxRetries:        3,
		RetryInitialDelay: 1 * time.Second,
		RateLimiterConfig: DefaultRateLimiterConfig(),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Client is the diary API client. It implements homework.Fetcher.
type Client struct {
	config      ClientConfig
	httpClient  *http.Client
	logger      *slog.Logger
	rateLimiter *RateLimiter
	breaker     *circuitbreaker.CircuitBreaker
	retrier     *retry.Retrier
	mapper      *Mapper
}

// NewClient creates a new diary API client.
func NewClient(config ClientConfig) *Client {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.ProfileType == "" {
		config.ProfileType = DefaultProfileType
	}
	if config.Subsystem == "" {
		config.Subsystem = DefaultSubsystem
	}
	if config.UserAgent == "" {
		config.UserAgent = defaultUserAgent
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.RateLimiterConfig.RequestsPerSecond <= 0 {
		config.RateLimiterConfig = DefaultRateLimiterConfig()
	}

	logger := config.Logger.With("component", "diary_client")

	// Zero-valued overrides fall back to the preset defaults.
	retrier := retry.DiaryAPIRetrier(
		retry.WithMaxAttempts(config.MaxRetries),
		retry.WithInitialDelay(config.RetryInitialDelay),
		retry.WithOnRetry(func(attempt int, err error, delay time.Duration) {
			logger.Warn("diary api request failed, retrying",
				"attempt", attempt,
				"delay", delay,
				"error", err)
		}),
	)

	onStateChange := config.OnBreakerStateChange
	if onStateChange == nil {
		onStateChange = func(name string, from, to circuitbreaker.State) {
			logger.Warn("circuit breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String())
		}
	}

	return &Client{
		config:      config,
		httpClient:  &http.Client{Timeout: config.Timeout},
		logger:      logger,
		rateLimiter: NewRateLimiter(config.RateLimiterConfig),
		breaker:     circuitbreaker.DiaryAPIBreaker(onStateChange),
		retrier:     retrier,
		mapper:      NewMapper(logger),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// HOMEWORK OPERATIONS
// ══════════════════════════════════════════════════════════════════════════════

// FetchHomework fetches homework entries for the given period.
//
// Request flow: the circuit breaker wraps the whole fetch, so an exhausted
// retry loop counts as a single breaker failure. Inside the loop the rate
// limiter paces each attempt. Only network-level failures are retried;
// any HTTP error status ends the fetch immediately.
func (c *Client) FetchHomework(ctx context.Context, period homework.Period) ([]homework.Record, error) {
	var records []homework.Record

	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.retrier.Do(ctx, func(ctx context.Context) error {
			if err := c.rateLimiter.Allow(ctx); err != nil {
				return retry.Permanent(err)
			}

			body, err := c.doSingleRequest(ctx, period)
			if err != nil {
				return err
			}

			recs, err := c.parseRecords(body)
			if err != nil {
				return retry.Permanent(err)
			}

			records = recs
			return nil
		})
	})
	if err != nil {
		return nil, c.classifyFetchError(err)
	}

	c.logger.Info("homework fetched",
		"period", period.String(),
		"records", len(records))

	return records, nil
}

// doSingleRequest performs a single HTTP request and returns the raw body.
// Errors are classified for the retry loop: network failures come back
// wrapped in retry.Retryable, HTTP error statuses in retry.Permanent.
func (c *Client) doSingleRequest(ctx context.Context, period homework.Period) ([]byte, error) {
	params := url.Values{}
	params.Set("from", period.From.String())
	params.Set("to", period.To.String())
	params.Set("student_id", c.config.StudentID)

	fullURL := c.config.BaseURL + homeworksPath + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("create request: %w", err))
	}

	req.Header.Set("Authorization", "Bearer "+c.config.BearerToken)
	req.Header.Set("Profile-Id", c.config.ProfileID)
	req.Header.Set("Profile-Type", c.config.ProfileType)
	req.Header.Set("X-mes-subsystem", c.config.Subsystem)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json;charset=UTF-8")
	req.Header.Set("User-Agent", c.config.UserAgent)
	if c.config.Cookie != "" {
		req.Header.Set("Cookie", c.config.Cookie)
	}

	if c.config.Debug {
		c.logger.Debug("diary api request",
			"from", period.From.String(),
			"to", period.To.String())
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, retry.Retryable(fmt.Errorf("http request: %w", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, retry.Retryable(fmt.Errorf("read response: %w", err))
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, retry.Permanent(shared.ErrDiaryCredentials)

	case resp.StatusCode == http.StatusForbidden:
		return nil, retry.Permanent(shared.ErrDiaryForbidden)

	case resp.StatusCode == http.StatusTooManyRequests:
		// The portal asked us to back off. Teach the limiter, but do not
		// retry within this fetch.
		retryAfter := time.Duration(0)
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if seconds, err := strconv.Atoi(ra); err == nil {
				retryAfter = time.Duration(seconds) * time.Second
			}
		}
		c.rateLimiter.RecordRateLimitHit(retryAfter)
		return nil, retry.Permanent(&APIError{
			StatusCode: resp.StatusCode,
			Body:       bodyPrefix(respBody),
		})

	case resp.StatusCode >= 400:
		return nil, retry.Permanent(&APIError{
			StatusCode: resp.StatusCode,
			Body:       bodyPrefix(respBody),
		})
	}

	return respBody, nil
}

// parseRecords decodes the response body into sorted domain records.
func (c *Client) parseRecords(body []byte) ([]homework.Record, error) {
	items, recognized, err := decodeItems(body)
	if err != nil {
		return nil, err
	}
	if !recognized {
		c.logger.Warn("unexpected diary payload shape, treating as empty",
			"body_prefix", bodyPrefix(body))
		return []homework.Record{}, nil
	}

	return c.mapper.RecordsFromItems(items), nil
}

// classifyFetchError translates retry/breaker plumbing errors into domain
// errors the handlers know how to present.
func (c *Client) classifyFetchError(err error) error {
	// Breaker rejected the call without touching the network.
	if errors.Is(err, circuitbreaker.ErrCircuitOpen) || errors.Is(err, circuitbreaker.ErrTooManyRequests) {
		return shared.WrapError("diary", "Fetch", shared.ErrDiaryUnreachable,
			"circuit breaker rejected the request", err)
	}

	// Client-side rate limit wait timed out.
	var rateLimitErr *RateLimitError
	if errors.As(err, &rateLimitErr) {
		return shared.WrapError("diary", "Fetch", shared.ErrRateLimited,
			"client-side rate limit exceeded", err)
	}

	// Already classified by doSingleRequest or parseRecords.
	if errors.Is(err, shared.ErrDiaryCredentials) ||
		errors.Is(err, shared.ErrDiaryForbidden) ||
		errors.Is(err, shared.ErrDiaryBadPayload) {
		return err
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return err
	}

	// Caller gave up before the first attempt.
	if errors.Is(err, context.Canceled) {
		return err
	}

	// Network failure that survived every retry.
	return shared.WrapError("diary", "Fetch", shared.ErrDiaryUnreachable,
		fmt.Sprintf("giving up after %d attempts", c.retryAttempts()), err)
}

// retryAttempts reports the configured attempt count for error messages.
func (c *Client) retryAttempts() int {
	if c.config.MaxRetries > 0 {
		return c.config.MaxRetries
	}
	return 3
}

// bodyPrefix returns a short prefix of a response body for diagnostics.
func bodyPrefix(body []byte) string {
	const maxLen = 200
	if len(body) > maxLen {
		return string(body[:maxLen]) + "..."
	}
	return string(body)
}

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH AND STATUS
// ══════════════════════════════════════════════════════════════════════════════

// ClientStatus is a point-in-time view of the client internals.
type ClientStatus struct {
	RateLimiter  RateLimiterStatus
	BreakerState circuitbreaker.State
	BreakerName  string
}

// Status returns the current status of the client.
func (c *Client) Status() ClientStatus {
	return ClientStatus{
		RateLimiter:  c.rateLimiter.Status(),
		BreakerState: c.breaker.State(),
		BreakerName:  c.breaker.Name(),
	}
}

// Reset resets the rate limiter and circuit breaker.
func (c *Client) Reset() {
	c.rateLimiter.Reset()
	c.breaker.Reset()
}

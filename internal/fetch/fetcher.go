package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"menuscrape/internal/metrics"

	"golang.org/x/time/rate"
)

// DefaultUserAgent is sent when Options.UserAgent is empty.
const DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

// maxErrorBody bounds how much of a non-2xx body is kept for debugging.
const maxErrorBody = 4096

// Options configures a Fetcher.
type Options struct {
	Client    *http.Client // nil builds a pooled client
	Policy    Policy
	UserAgent string
	Timeout   time.Duration // per attempt; <= 0 means 20s

	// RequestsPerSecond paces attempts across the Fetcher; 0 disables pacing.
	RequestsPerSecond float64
	Burst             int

	Logger  *slog.Logger
	Metrics *metrics.Recorder
}

// Fetcher performs HTTP GETs under a retry Policy. It is safe for
// concurrent use; retry state is local to each Fetch call.
type Fetcher struct {
	client    *http.Client
	policy    Policy
	userAgent string
	timeout   time.Duration
	limiter   *rate.Limiter
	logger    *slog.Logger
	metrics   *metrics.Recorder
}

// New builds a Fetcher from opts.
func New(opts Options) *Fetcher {
	client := opts.Client
	if client == nil {
		client = newHTTPClient()
	}
	ua := strings.TrimSpace(opts.UserAgent)
	if ua == "" {
		ua = DefaultUserAgent
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	var limiter *rate.Limiter
	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}

	policy := opts.Policy
	if policy.Logger == nil {
		policy.Logger = logger
	}
	if policy.Metrics == nil {
		policy.Metrics = opts.Metrics
	}

	return &Fetcher{
		client:    client,
		policy:    policy,
		userAgent: ua,
		timeout:   timeout,
		limiter:   limiter,
		logger:    logger,
		metrics:   opts.Metrics,
	}
}

// Policy returns the retry policy the Fetcher runs under.
func (f *Fetcher) Policy() Policy { return f.policy }

// Fetch returns the body of url as a string.
//
// Errors:
//   - *ExhaustedError when retries ran out or the status is not retryable;
//     the cause is a *StatusError or the last transport error.
//   - the wrapped context error when ctx ends.
func (f *Fetcher) Fetch(ctx context.Context, url string) (string, error) {
	var body string
	err := f.policy.Do(ctx, url, func(ctx context.Context, attempt int) error {
		b, err := f.attempt(ctx, url, attempt)
		if err != nil {
			return err
		}
		body = b
		return nil
	})
	if err != nil {
		return "", err
	}
	return body, nil
}

func (f *Fetcher) attempt(ctx context.Context, url string, attempt int) (string, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limit wait: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", Permanent(fmt.Errorf("new request: %w", err))
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		f.metrics.RecordHTTP(0, err, -1, -1)
		return "", fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()
	requestDur := time.Since(start)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		_, _ = io.Copy(io.Discard, resp.Body)
		f.metrics.RecordHTTP(resp.StatusCode, nil, requestDur, int64(len(snippet)))

		se := &StatusError{
			URL:  url,
			Code: resp.StatusCode,
			Body: strings.TrimSpace(string(snippet)),
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			se.RetryAfter = parseRetryAfter(resp.Header)
		}
		return "", se
	}

	b, err := io.ReadAll(resp.Body)
	f.metrics.RecordHTTP(resp.StatusCode, err, requestDur, int64(len(b)))
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}

	f.logger.Debug("fetched", "url", url, "attempt", attempt, "status", resp.StatusCode, "bytes", len(b))
	return string(b), nil
}

// parseRetryAfter reads a Retry-After header as delta-seconds or HTTP-date.
func parseRetryAfter(h http.Header) time.Duration {
	ra := strings.TrimSpace(h.Get("Retry-After"))
	if ra == "" {
		return 0
	}
	if secs, err := strconv.Atoi(ra); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(ra); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

func newHTTPClient() *http.Client {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		IdleConnTimeout:     90 * time.Second,
		MaxIdleConns:        64,
		MaxIdleConnsPerHost: 16,
	}
	return &http.Client{Transport: transport}
}

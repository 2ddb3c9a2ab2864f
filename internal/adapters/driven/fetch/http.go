package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
	"github.com/custodia-labs/sercha-ingest/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-ingest/internal/logger"
	"github.com/custodia-labs/sercha-ingest/internal/retry"
)

// Ensure HTTPFetcher implements the interface.
var _ driven.Fetcher = (*HTTPFetcher)(nil)

// Default configuration values.
const (
	DefaultTimeout   = 30 * time.Second
	DefaultMaxBytes  = 64 << 20
	DefaultUserAgent = "sercha-ingest"

	errorSnippetBytes = 512
)

// HTTPFetcher downloads sources with GET, retrying rate limits, server
// errors and connection failures under its policy.
type HTTPFetcher struct {
	client    *http.Client
	policy    retry.Policy
	limiter   *retry.Limiter
	userAgent string
	maxBytes  int64
	now       func() time.Time
}

// HTTPOption configures an HTTPFetcher.
type HTTPOption func(*HTTPFetcher)

// WithHTTPClient replaces the HTTP client. Its timeout is left untouched.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(f *HTTPFetcher) {
		f.client = c
	}
}

// WithRetryPolicy sets the retry policy. The default makes a single attempt.
func WithRetryPolicy(p retry.Policy) HTTPOption {
	return func(f *HTTPFetcher) {
		f.policy = p
	}
}

// WithLimiter paces requests across all fetches.
func WithLimiter(l *retry.Limiter) HTTPOption {
	return func(f *HTTPFetcher) {
		f.limiter = l
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) HTTPOption {
	return func(f *HTTPFetcher) {
		f.userAgent = ua
	}
}

// WithMaxBytes bounds the response size.
func WithMaxBytes(n int64) HTTPOption {
	return func(f *HTTPFetcher) {
		if n > 0 {
			f.maxBytes = n
		}
	}
}

// NewHTTPFetcher creates a fetcher whose requests each time out after
// timeout (DefaultTimeout when zero).
func NewHTTPFetcher(timeout time.Duration, opts ...HTTPOption) *HTTPFetcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	f := &HTTPFetcher{
		client:    &http.Client{Timeout: timeout},
		policy:    retry.Policy{MaxAttempts: 1},
		userAgent: DefaultUserAgent,
		maxBytes:  DefaultMaxBytes,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch downloads source.URI. A 404 wraps domain.ErrNotFound; other
// non-2xx responses are returned as *retry.StatusError.
func (f *HTTPFetcher) Fetch(ctx context.Context, source domain.Source) (*domain.FetchResult, error) {
	policy := f.policy
	policy.OnRetry = func(attempt int, err error) {
		logger.Warn("fetch: %s attempt %d failed: %v", source.URI, attempt, err)
	}

	var result *domain.FetchResult
	attempts, err := policy.Do(ctx, func(ctx context.Context) error {
		var err error
		result, err = f.fetchOnce(ctx, source.URI)
		return err
	})
	if err != nil {
		if attempts > 1 {
			return nil, fmt.Errorf("fetch %s after %d attempts: %w", source.URI, attempts, err)
		}
		return nil, fmt.Errorf("fetch %s: %w", source.URI, err)
	}
	return result, nil
}

func (f *HTTPFetcher) fetchOnce(ctx context.Context, uri string) (*domain.FetchResult, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, errorSnippetBytes))
		statusErr := retry.NewStatusError(resp, strings.TrimSpace(string(snippet)))
		if f.limiter != nil && statusErr.RetryAfter > 0 {
			f.limiter.Backoff(statusErr.RetryAfter)
		}
		if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
			return nil, fmt.Errorf("%w: %w", domain.ErrNotFound, statusErr)
		}
		return nil, statusErr
	}

	content, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(content)) > f.maxBytes {
		return nil, fmt.Errorf("%w: response exceeds %d bytes", domain.ErrInvalidInput, f.maxBytes)
	}

	return &domain.FetchResult{
		Content:     content,
		MIMEType:    DetectMIME(resp.Header.Get("Content-Type"), resp.Request.URL.Path, content),
		Fingerprint: Fingerprint(content),
		FetchedAt:   f.now(),
	}, nil
}

package retry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
)

func fastPolicy(attempts int) Policy {
	return Policy{MaxAttempts: attempts, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Jitter: 0.1}
}

func TestPolicy_SucceedsFirstTime(t *testing.T) {
	attempts, err := fastPolicy(3).Do(context.Background(), func(context.Context) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, 1, attempts)
}

func TestPolicy_RetriesTransient(t *testing.T) {
	calls := 0
	var retried []int
	p := fastPolicy(4)
	p.OnRetry = func(attempt int, _ error) { retried = append(retried, attempt) }

	attempts, err := p.Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return fmt.Errorf("upstream: %w", domain.ErrTransient)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, []int{1, 2}, retried)
}

func TestPolicy_ExhaustsAttempts(t *testing.T) {
	calls := 0
	attempts, err := fastPolicy(3).Do(context.Background(), func(context.Context) error {
		calls++
		return domain.ErrRateLimited
	})
	assert.ErrorIs(t, err, domain.ErrRateLimited)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, 3, calls)
}

func TestPolicy_StopsOnPermanentError(t *testing.T) {
	permanent := errors.New("bad request")
	attempts, err := fastPolicy(5).Do(context.Background(), func(context.Context) error { return permanent })
	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, attempts)
}

func TestPolicy_ZeroAttemptsMeansOne(t *testing.T) {
	attempts, err := Policy{}.Do(context.Background(), func(context.Context) error { return domain.ErrTransient })
	assert.ErrorIs(t, err, domain.ErrTransient)
	assert.Equal(t, 1, attempts)
}

func TestPolicy_CustomClassifier(t *testing.T) {
	p := fastPolicy(2)
	p.Retryable = func(error) bool { return true }

	attempts, _ := p.Do(context.Background(), func(context.Context) error { return errors.New("anything") })
	assert.Equal(t, 2, attempts)
}

func TestPolicy_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := Policy{MaxAttempts: 5, BaseDelay: time.Hour, MaxDelay: time.Hour}

	attempts, err := p.Do(ctx, func(context.Context) error {
		cancel()
		return domain.ErrTransient
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
}

func TestFromSettings(t *testing.T) {
	s := domain.DefaultSettings().Embedding.Retry
	p := FromSettings(s)
	assert.Equal(t, s.MaxAttempts, p.MaxAttempts)
	assert.Equal(t, s.BaseDelay, p.BaseDelay)
	assert.Equal(t, s.MaxDelay, p.MaxDelay)
	assert.InDelta(t, s.Jitter, p.Jitter, 1e-9)
}

func TestStatusError(t *testing.T) {
	tests := []struct {
		code      int
		rateLimit bool
		transient bool
	}{
		{http.StatusTooManyRequests, true, false},
		{http.StatusInternalServerError, false, true},
		{http.StatusBadGateway, false, true},
		{http.StatusBadRequest, false, false},
		{http.StatusUnauthorized, false, false},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.code), func(t *testing.T) {
			err := fmt.Errorf("embed: %w", &StatusError{StatusCode: tt.code})
			assert.Equal(t, tt.rateLimit, errors.Is(err, domain.ErrRateLimited))
			assert.Equal(t, tt.transient, errors.Is(err, domain.ErrTransient))
			assert.Equal(t, tt.rateLimit || tt.transient, Retryable(err))
		})
	}
}

func TestNewStatusError_RetryAfter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/embeddings")
	require.NoError(t, err)
	defer resp.Body.Close()

	statusErr := NewStatusError(resp, "slow down")
	assert.Equal(t, 7*time.Second, statusErr.RetryAfter)
	assert.Equal(t, 7*time.Second, RetryAfter(fmt.Errorf("wrapped: %w", statusErr)))
	assert.Contains(t, statusErr.Error(), "/v1/embeddings")
}

func TestRetryable_Context(t *testing.T) {
	assert.False(t, Retryable(nil))
	assert.False(t, Retryable(context.Canceled))
	assert.False(t, Retryable(fmt.Errorf("call: %w", context.DeadlineExceeded)))
}

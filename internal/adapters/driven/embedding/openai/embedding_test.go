package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
	"github.com/custodia-labs/sercha-ingest/internal/retry"
)

func newTestService(t *testing.T, handler http.HandlerFunc, cfg Config) *EmbeddingService {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg.BaseURL = srv.URL + "/"
	if cfg.APIKey == "" {
		cfg.APIKey = "sk-test"
	}
	s, err := NewEmbeddingService(cfg)
	require.NoError(t, err)
	return s
}

func TestNewEmbeddingService(t *testing.T) {
	_, err := NewEmbeddingService(Config{})
	assert.ErrorIs(t, err, domain.ErrEmbeddingUnavailable)

	s, err := NewEmbeddingService(Config{APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, DefaultModel, s.ModelName())
	assert.Equal(t, 1536, s.Dimensions())
	assert.Equal(t, DefaultBaseURL, s.baseURL)

	s, err = NewEmbeddingService(Config{APIKey: "k", Model: "text-embedding-3-large"})
	require.NoError(t, err)
	assert.Equal(t, 3072, s.Dimensions())

	s, err = NewEmbeddingService(Config{APIKey: "k", Model: "custom", Dimensions: 42})
	require.NoError(t, err)
	assert.Equal(t, 42, s.Dimensions())
}

func TestEmbedBatch_Success(t *testing.T) {
	var got embeddingRequest
	s := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		// Out of order on purpose.
		fmt.Fprint(w, `{"data":[{"index":1,"embedding":[0.3,0.4]},{"index":0,"embedding":[0.1,0.2]}]}`)
	}, Config{Dimensions: 2})

	vecs, err := s.EmbedBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{0.1, 0.2}, {0.3, 0.4}}, vecs)
	assert.Equal(t, []string{"a", "b"}, got.Input)
	assert.Equal(t, DefaultModel, got.Model)
	assert.Equal(t, 2, got.Dimensions)
}

func TestEmbedBatch_NoDimensionsForLegacyModels(t *testing.T) {
	var raw map[string]any
	s := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		fmt.Fprint(w, `{"data":[{"index":0,"embedding":[1]}]}`)
	}, Config{Model: "text-embedding-ada-002"})

	_, err := s.EmbedBatch(context.Background(), []string{"a"})
	require.NoError(t, err)
	assert.NotContains(t, raw, "dimensions")
}

func TestEmbedBatch_Empty(t *testing.T) {
	s := newTestService(t, func(w http.ResponseWriter, _ *http.Request) {
		t.Error("no request expected")
	}, Config{})

	vecs, err := s.EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, vecs)
}

func TestEmbedBatch_StatusErrors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		retryable bool
		message   string
	}{
		{"rate limited", http.StatusTooManyRequests, `{"error":{"message":"slow down"}}`, true, "slow down"},
		{"server error", http.StatusInternalServerError, "oops", true, "oops"},
		{"unauthorized", http.StatusUnauthorized, `{"error":{"message":"bad key"}}`, false, "bad key"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestService(t, func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Retry-After", "2")
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}, Config{})

			_, err := s.EmbedBatch(context.Background(), []string{"a"})
			require.Error(t, err)

			var statusErr *retry.StatusError
			require.True(t, errors.As(err, &statusErr))
			assert.Equal(t, tt.status, statusErr.StatusCode)
			assert.Equal(t, tt.message, statusErr.Message)
			assert.Equal(t, tt.retryable, retry.Retryable(err))
		})
	}
}

func TestEmbedBatch_MalformedResponses(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", "{"},
		{"short", `{"data":[{"index":0,"embedding":[1]}]}`},
		{"bad index", `{"data":[{"index":0,"embedding":[1]},{"index":5,"embedding":[1]}]}`},
		{"duplicate index", `{"data":[{"index":0,"embedding":[1]},{"index":0,"embedding":[1]}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestService(t, func(w http.ResponseWriter, _ *http.Request) {
				fmt.Fprint(w, tt.body)
			}, Config{})

			_, err := s.EmbedBatch(context.Background(), []string{"a", "b"})
			assert.ErrorIs(t, err, domain.ErrTransient)
		})
	}
}

func TestPing(t *testing.T) {
	ok := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models", r.URL.Path)
		fmt.Fprint(w, `{"data":[]}`)
	}, Config{})
	require.NoError(t, ok.Ping(context.Background()))

	denied := newTestService(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}, Config{})
	err := denied.Ping(context.Background())
	var statusErr *retry.StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusUnauthorized, statusErr.StatusCode)

	assert.NoError(t, ok.Close())
}

package analyzer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/mmk-analysis-api/internal/core"
	apperrors "github.com/target/mmk-analysis-api/internal/errors"
)

var sampleRequest = core.AnalyzeRequest{
	JobID:         "job-1",
	RepositoryURL: "https://github.com/acme/widgets",
	Branch:        "main",
	CommitSHA:     "9fceb02d0ae598e95dc970b74767f19372d61af8",
}

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := NewClient(Config{URL: srv.URL + "/v1/analyze", Token: "secret-token", Timeout: 5 * time.Second})
	require.NoError(t, err)
	return c
}

func TestNewClient_RequiresURL(t *testing.T) {
	_, err := NewClient(Config{URL: "  "})
	require.Error(t, err)
}

func TestAnalyze_Success(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/analyze", r.URL.Path)
		assert.Equal(t, "Bearer secret-token", r.Header.Get("Authorization"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, map[string]string{
			"jobId":         "job-1",
			"repositoryUrl": "https://github.com/acme/widgets",
			"branch":        "main",
			"commitSha":     "9fceb02d0ae598e95dc970b74767f19372d61af8",
		}, body)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"score":87,"findings":[]}`))
	})

	res, err := c.Analyze(context.Background(), sampleRequest)
	require.NoError(t, err)
	assert.JSONEq(t, `{"score":87,"findings":[]}`, string(res))
}

func TestAnalyze_StatusClassification(t *testing.T) {
	tests := []struct {
		status    int
		kind      apperrors.ProcessingKind
		retryable bool
	}{
		{http.StatusBadRequest, apperrors.KindAnalysisRejected, false},
		{http.StatusUnprocessableEntity, apperrors.KindAnalysisRejected, false},
		{http.StatusTooManyRequests, apperrors.KindRateLimited, true},
		{http.StatusGatewayTimeout, apperrors.KindProcessingTimeout, true},
		{http.StatusInternalServerError, apperrors.KindProviderError, true},
		{http.StatusServiceUnavailable, apperrors.KindProviderError, true},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "nope", tt.status)
			})
			_, err := c.Analyze(context.Background(), sampleRequest)
			pe, ok := apperrors.AsProcessingError(err)
			require.True(t, ok)
			assert.Equal(t, tt.kind, pe.Kind)
			assert.Equal(t, tt.retryable, pe.Retryable)
			assert.Contains(t, pe.Error(), "nope")
		})
	}
}

func TestAnalyze_InvalidJSON(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"score":`))
	})
	_, err := c.Analyze(context.Background(), sampleRequest)
	pe, ok := apperrors.AsProcessingError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.KindProviderError, pe.Kind)
}

func TestAnalyze_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := NewClient(Config{URL: url, Timeout: time.Second})
	require.NoError(t, err)
	_, err = c.Analyze(context.Background(), sampleRequest)
	pe, ok := apperrors.AsProcessingError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.KindNetworkError, pe.Kind)
	assert.True(t, pe.Retryable)
}

func TestAnalyze_DeadlineIsNotTagged(t *testing.T) {
	release := make(chan struct{})
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.Analyze(ctx, sampleRequest)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	_, tagged := apperrors.AsProcessingError(err)
	assert.False(t, tagged)
}

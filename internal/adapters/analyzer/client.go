// Package analyzer calls the external analysis provider over HTTP.
package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/target/mmk-analysis-api/internal/core"
	apperrors "github.com/target/mmk-analysis-api/internal/errors"
)

// maxResultBytes caps the provider response kept as the job result.
const maxResultBytes = 8 << 20

// Config configures the provider client.
type Config struct {
	URL     string
	Token   string
	Timeout time.Duration
	Client  *http.Client
	Logger  *slog.Logger
}

// Client posts analysis requests to the provider and returns its JSON result verbatim.
type Client struct {
	url    string
	token  string
	client *http.Client
	logger *slog.Logger
}

var _ core.Analyzer = (*Client)(nil)

type analyzeBody struct {
	JobID         string `json:"jobId"`
	RepositoryURL string `json:"repositoryUrl"`
	Branch        string `json:"branch,omitempty"`
	CommitSHA     string `json:"commitSha,omitempty"`
}

// NewClient builds an analyzer client.
func NewClient(cfg Config) (*Client, error) {
	u := strings.TrimSpace(cfg.URL)
	if u == "" {
		return nil, errors.New("analyzer url is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	hc := cfg.Client
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		url:    u,
		token:  strings.TrimSpace(cfg.Token),
		client: hc,
		logger: logger.With("component", "analyzer_client"),
	}, nil
}

// Analyze implements core.Analyzer. Failures are tagged with a ProcessingKind,
// except when ctx ended first, in which case the context error is returned as is.
func (c *Client) Analyze(ctx context.Context, in core.AnalyzeRequest) (json.RawMessage, error) {
	body, err := json.Marshal(analyzeBody(in))
	if err != nil {
		return nil, fmt.Errorf("encode analyze request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, apperrors.Permanent(apperrors.KindUnknown, err, "create analyze request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, apperrors.Transient(apperrors.KindNetworkError, err, "network error contacting analysis provider")
	}
	defer resp.Body.Close()

	raw, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResultBytes+1))
	c.logger.DebugContext(ctx, "analysis provider responded",
		"job_id", in.JobID, "status", resp.StatusCode, "duration_ms", time.Since(start).Milliseconds())

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, classifyStatus(resp.StatusCode, strings.TrimSpace(string(truncate(raw, 512))))
	}
	if readErr != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, apperrors.Transient(apperrors.KindNetworkError, readErr, "read analysis result")
	}
	if len(raw) > maxResultBytes {
		return nil, apperrors.Permanent(apperrors.KindAnalysisRejected, nil,
			"analysis result exceeds %d bytes", maxResultBytes)
	}
	if !json.Valid(raw) {
		return nil, apperrors.Transient(apperrors.KindProviderError, nil, "analysis provider returned invalid JSON")
	}
	return json.RawMessage(raw), nil
}

func classifyStatus(status int, detail string) error {
	msg := fmt.Sprintf("analysis provider returned status %d", status)
	if detail != "" {
		msg += ": " + detail
	}
	switch {
	case status == http.StatusTooManyRequests:
		return apperrors.Transient(apperrors.KindRateLimited, nil, "%s", msg)
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return apperrors.Transient(apperrors.KindProcessingTimeout, nil, "%s", msg)
	case status >= 500:
		return apperrors.Transient(apperrors.KindProviderError, nil, "%s", msg)
	default:
		return apperrors.Permanent(apperrors.KindAnalysisRejected, nil, "%s", msg)
	}
}

func truncate(b []byte, n int) []byte {
	if len(b) > n {
		return b[:n]
	}
	return b
}

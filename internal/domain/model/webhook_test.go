package model

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestCreateWebhookRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		req     CreateWebhookRequest
		wantErr string
	}{
		{
			name: "valid https",
			req:  CreateWebhookRequest{URL: "https://hooks.example.com/analysis"},
		},
		{
			name: "valid http with events",
			req: CreateWebhookRequest{
				URL:    "http://localhost:9000/cb",
				Events: []WebhookEvent{EventAnalysisStarted, EventWebhookTest},
			},
		},
		{
			name:    "ftp rejected",
			req:     CreateWebhookRequest{URL: "ftp://example.com/hook"},
			wantErr: "http or https",
		},
		{
			name:    "missing host",
			req:     CreateWebhookRequest{URL: "https:///path"},
			wantErr: "host",
		},
		{
			name:    "empty url",
			req:     CreateWebhookRequest{URL: "  "},
			wantErr: "url is required",
		},
		{
			name: "unknown event",
			req: CreateWebhookRequest{
				URL:    "https://example.com",
				Events: []WebhookEvent{"analysis.exploded"},
			},
			wantErr: "unsupported event",
		},
		{
			name: "secret too long",
			req: CreateWebhookRequest{
				URL:    "https://example.com",
				Secret: strPtr(strings.Repeat("s", maxWebhookSecretLen+1)),
			},
			wantErr: "secret",
		},
		{
			name: "secret with surrounding whitespace",
			req: CreateWebhookRequest{
				URL:    "https://example.com",
				Secret: strPtr(" s3cr3t\n"),
			},
			wantErr: "whitespace",
		},
		{
			name: "blank secret",
			req: CreateWebhookRequest{
				URL:    "https://example.com",
				Secret: strPtr("   "),
			},
			wantErr: "whitespace",
		},
		{
			name: "inner whitespace kept",
			req: CreateWebhookRequest{
				URL:    "https://example.com",
				Secret: strPtr("two words"),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.req.Normalize()
			err := tt.req.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestCreateWebhookRequest_NormalizeDefaults(t *testing.T) {
	req := CreateWebhookRequest{
		URL:    " https://example.com/hook ",
		Secret: strPtr(""),
	}
	req.Normalize()

	assert.Equal(t, "https://example.com/hook", req.URL)
	assert.Equal(t, []WebhookEvent{EventAnalysisCompleted, EventAnalysisFailed}, req.Events)
	assert.Nil(t, req.Secret, "empty secret means unsigned")

	padded := CreateWebhookRequest{URL: "https://example.com", Secret: strPtr(" s3cr3t ")}
	padded.Normalize()
	assert.Equal(t, " s3cr3t ", *padded.Secret, "secret is never rewritten")

	dup := CreateWebhookRequest{
		URL:    "https://example.com",
		Events: []WebhookEvent{"Analysis.Completed", EventAnalysisCompleted, EventAnalysisFailed},
	}
	dup.Normalize()
	assert.Equal(t, []WebhookEvent{EventAnalysisCompleted, EventAnalysisFailed}, dup.Events)
}

func TestUpdateWebhookRequest_Validate(t *testing.T) {
	t.Run("empty patch", func(t *testing.T) {
		req := UpdateWebhookRequest{}
		require.Error(t, req.Validate())
	})

	t.Run("bad url", func(t *testing.T) {
		req := UpdateWebhookRequest{URL: strPtr("mailto:ops@example.com")}
		req.Normalize()
		require.ErrorContains(t, req.Validate(), "http or https")
	})

	t.Run("empty events", func(t *testing.T) {
		req := UpdateWebhookRequest{Events: []WebhookEvent{}}
		require.ErrorContains(t, req.Validate(), "events must not be empty")
	})

	t.Run("unknown event", func(t *testing.T) {
		req := UpdateWebhookRequest{Events: []WebhookEvent{"push"}}
		require.ErrorContains(t, req.Validate(), "unsupported event")
	})

	t.Run("padded secret", func(t *testing.T) {
		req := UpdateWebhookRequest{Secret: strPtr("s3cr3t ")}
		req.Normalize()
		require.ErrorContains(t, req.Validate(), "whitespace")
	})

	t.Run("empty secret clears", func(t *testing.T) {
		req := UpdateWebhookRequest{Secret: strPtr("")}
		req.Normalize()
		require.NoError(t, req.Validate())
	})

	t.Run("toggle active only", func(t *testing.T) {
		active := false
		req := UpdateWebhookRequest{IsActive: &active}
		require.NoError(t, req.Validate())
	})
}

func TestWebhook_Helpers(t *testing.T) {
	w := Webhook{Events: []WebhookEvent{EventAnalysisCompleted}}
	assert.True(t, w.Subscribes(EventAnalysisCompleted))
	assert.False(t, w.Subscribes(EventAnalysisFailed))
	assert.False(t, w.HasSecret())

	w.Secret = strPtr("s3cr3t")
	view := NewWebhookView(w)
	assert.True(t, view.HasSecret)
}

func TestWebhookEvent_Valid(t *testing.T) {
	for _, e := range AllWebhookEvents() {
		assert.True(t, e.Valid(), e)
	}
	assert.False(t, WebhookEvent("analysis.queued").Valid())
}

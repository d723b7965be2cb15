package service

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/target/mmk-analysis-api/internal/core"
	"github.com/target/mmk-analysis-api/internal/domain/delivery"
	"github.com/target/mmk-analysis-api/internal/domain/model"
	apperrors "github.com/target/mmk-analysis-api/internal/errors"
	"github.com/target/mmk-analysis-api/internal/observability/metrics"
	"github.com/target/mmk-analysis-api/internal/observability/statsd"
	"golang.org/x/sync/errgroup"
)

// Webhook request headers.
const (
	HeaderWebhookEvent     = "X-Webhook-Event"
	HeaderWebhookDelivery  = "X-Webhook-Delivery"
	HeaderWebhookSignature = "X-Webhook-Signature"
)

const (
	maxResponseBodyBytes    = 4 * 1024 // 4KB to avoid storing excessively large payloads
	maxResponseDrainBytes   = 64 * 1024
	defaultDeliveryTimeout  = 30 * time.Second
	defaultDeliveryAgent    = "mmk-analysis-webhooks/1.0"
	defaultDeliveryWorkers  = 8
	defaultDeliveryLease    = time.Minute
	defaultDeliveryBatch    = 32
	leaseMargin             = 5 * time.Second
	signaturePrefix         = "sha256="
	deliveryContentTypeJSON = "application/json"
)

// DeliveryDispatcherConfig tunes HTTP attempts and the due-delivery poller.
type DeliveryDispatcherConfig struct {
	Timeout     time.Duration
	UserAgent   string
	Concurrency int
	Lease       time.Duration
}

// DeliveryDispatcherOptions groups dependencies for DeliveryDispatcher.
type DeliveryDispatcherOptions struct {
	Webhooks   core.WebhookRepository  // Required
	Deliveries core.DeliveryRepository // Required
	Config     DeliveryDispatcherConfig

	HTTPClient *http.Client      // Optional: defaults to a client with Config.Timeout
	Evaluator  JMESPathEvaluator // Optional: defaults to go-jmespath
	Logger     *slog.Logger
	Metrics    statsd.Sink
	Now        func() time.Time // Optional: test clock
}

// DeliveryDispatcher creates webhook deliveries for lifecycle events and
// performs signed HTTP attempts with bounded retries.
type DeliveryDispatcher struct {
	webhooks   core.WebhookRepository
	deliveries core.DeliveryRepository
	cfg        DeliveryDispatcherConfig
	http       *http.Client
	jems       JMESPathEvaluator
	logger     *slog.Logger
	metrics    statsd.Sink
	now        func() time.Time
}

// NewDeliveryDispatcher constructs a new DeliveryDispatcher.
func NewDeliveryDispatcher(opts DeliveryDispatcherOptions) (*DeliveryDispatcher, error) {
	if opts.Webhooks == nil {
		return nil, errors.New("WebhookRepository is required")
	}
	if opts.Deliveries == nil {
		return nil, errors.New("DeliveryRepository is required")
	}

	cfg := opts.Config
	if cfg.Timeout <= 0 || cfg.Timeout > defaultDeliveryTimeout {
		cfg.Timeout = defaultDeliveryTimeout
	}
	if strings.TrimSpace(cfg.UserAgent) == "" {
		cfg.UserAgent = defaultDeliveryAgent
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultDeliveryWorkers
	}
	if cfg.Lease <= 0 {
		cfg.Lease = defaultDeliveryLease
	}
	if cfg.Lease < cfg.Timeout+leaseMargin {
		cfg.Lease = cfg.Timeout + leaseMargin
	}

	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	jems := opts.Evaluator
	if jems == nil {
		jems = jmespathLibEvaluator{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &DeliveryDispatcher{
		webhooks:   opts.Webhooks,
		deliveries: opts.Deliveries,
		cfg:        cfg,
		http:       hc,
		jems:       jems,
		logger:     logger.With("component", "delivery_dispatcher"),
		metrics:    opts.Metrics,
		now:        now,
	}, nil
}

// MustNewDeliveryDispatcher constructs a DeliveryDispatcher and panics on error.
func MustNewDeliveryDispatcher(opts DeliveryDispatcherOptions) *DeliveryDispatcher {
	d, err := NewDeliveryDispatcher(opts)
	if err != nil {
		panic(err)
	}
	return d
}

// TriggerEvent creates one pending delivery per active webhook of orgID that
// subscribes to payload.Event and whose filter matches. Creation failures for
// one webhook are logged and do not affect the others.
func (d *DeliveryDispatcher) TriggerEvent(
	ctx context.Context,
	orgID string,
	payload model.WebhookPayload,
) ([]*model.WebhookDelivery, error) {
	hooks, err := d.webhooks.ListActiveForEvent(ctx, orgID, payload.Event)
	if err != nil {
		return nil, fmt.Errorf("list webhooks for event: %w", err)
	}
	if len(hooks) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	var analysisID *string
	if payload.Event != model.EventWebhookTest && payload.Analysis.ID != "" {
		id := payload.Analysis.ID
		analysisID = &id
	}

	created := make([]*model.WebhookDelivery, 0, len(hooks))
	for _, hook := range hooks {
		if !hook.Subscribes(payload.Event) {
			continue
		}
		ok, matchErr := matchFilter(d.jems, hook, body)
		if matchErr != nil {
			d.logger.WarnContext(ctx, "webhook filter failed; skipping",
				"webhook_id", hook.ID, "event", payload.Event, "error", matchErr)
			continue
		}
		if !ok {
			d.logger.DebugContext(ctx, "webhook filter did not match", "webhook_id", hook.ID, "event", payload.Event)
			continue
		}

		dl, createErr := d.deliveries.Create(ctx, model.CreateDeliveryParams{
			WebhookID:      hook.ID,
			OrganizationID: orgID,
			AnalysisID:     analysisID,
			Event:          payload.Event,
			Payload:        body,
		})
		if createErr != nil {
			d.logger.ErrorContext(ctx, "create webhook delivery failed",
				"webhook_id", hook.ID, "event", payload.Event, "error", createErr)
			continue
		}
		created = append(created, dl)
	}
	return created, nil
}

// AttemptDelivery performs one HTTP attempt for a non-terminal delivery and
// records the outcome. Terminal deliveries are returned unchanged.
func (d *DeliveryDispatcher) AttemptDelivery(ctx context.Context, deliveryID string) (*model.WebhookDelivery, error) {
	dl, err := d.deliveries.GetByID(ctx, deliveryID)
	if err != nil {
		return nil, fmt.Errorf("get delivery: %w", err)
	}
	if dl.Status.IsTerminal() {
		return dl, nil
	}
	hook, err := d.webhooks.GetByID(ctx, dl.OrganizationID, dl.WebhookID)
	if err != nil {
		return nil, fmt.Errorf("get webhook: %w", err)
	}
	return d.attempt(ctx, hook, dl)
}

// TestWebhook sends the canonical webhook.test payload through the same path
// production events take and returns the resulting delivery record.
func (d *DeliveryDispatcher) TestWebhook(ctx context.Context, orgID, webhookID string) (*model.WebhookDelivery, error) {
	if !validID(webhookID) {
		return nil, model.ErrWebhookNotFound
	}
	hook, err := d.webhooks.GetByID(ctx, orgID, webhookID)
	if err != nil {
		return nil, fmt.Errorf("get webhook: %w", err)
	}

	body, err := json.Marshal(model.TestWebhookPayload(orgID, d.now()))
	if err != nil {
		return nil, fmt.Errorf("marshal test payload: %w", err)
	}

	// Leased on creation so the delivery runner leaves it alone while we attempt it inline.
	dl, err := d.deliveries.Create(ctx, model.CreateDeliveryParams{
		WebhookID:      hook.ID,
		OrganizationID: orgID,
		Event:          model.EventWebhookTest,
		Payload:        body,
		Lease:          d.cfg.Lease,
	})
	if err != nil {
		return nil, fmt.Errorf("create test delivery: %w", err)
	}
	return d.attempt(ctx, hook, dl)
}

// ListDeliveries returns a page of deliveries for one webhook of orgID.
func (d *DeliveryDispatcher) ListDeliveries(
	ctx context.Context,
	orgID, webhookID string,
	limit, offset int,
) ([]*model.WebhookDelivery, error) {
	if !validID(webhookID) {
		return nil, model.ErrWebhookNotFound
	}
	if _, err := d.webhooks.GetByID(ctx, orgID, webhookID); err != nil {
		return nil, fmt.Errorf("get webhook: %w", err)
	}
	limit, offset = normalizePage(limit, offset)
	list, err := d.deliveries.List(ctx, model.DeliveryListOptions{
		OrganizationID: orgID,
		WebhookID:      webhookID,
		Limit:          limit,
		Offset:         offset,
	})
	if err != nil {
		return nil, fmt.Errorf("list deliveries: %w", err)
	}
	return list, nil
}

// GetDelivery returns one delivery of orgID.
func (d *DeliveryDispatcher) GetDelivery(ctx context.Context, orgID, id string) (*model.WebhookDelivery, error) {
	if !validID(id) {
		return nil, model.ErrDeliveryNotFound
	}
	dl, err := d.deliveries.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get delivery: %w", err)
	}
	if dl.OrganizationID != orgID {
		return nil, model.ErrDeliveryNotFound
	}
	return dl, nil
}

// ProcessDue claims up to batch due deliveries and attempts them concurrently.
// It returns the number claimed. A failing delivery never affects the others.
// Claims are taken at most Concurrency at a time so every claimed delivery is
// attempted well inside its lease.
func (d *DeliveryDispatcher) ProcessDue(ctx context.Context, batch int) (int, error) {
	if batch <= 0 {
		batch = defaultDeliveryBatch
	}
	total := 0
	for total < batch {
		if err := ctx.Err(); err != nil {
			return total, nil
		}
		want := min(batch-total, d.cfg.Concurrency)
		due, err := d.deliveries.ClaimDue(ctx, want, d.cfg.Lease)
		if err != nil {
			if total > 0 {
				d.logger.ErrorContext(ctx, "claim due deliveries", "error", err)
				return total, nil
			}
			return 0, fmt.Errorf("claim due deliveries: %w", err)
		}
		d.attemptAll(ctx, due)
		total += len(due)
		if len(due) < want {
			break
		}
	}
	return total, nil
}

func (d *DeliveryDispatcher) attemptAll(ctx context.Context, due []*model.WebhookDelivery) {
	if len(due) == 0 {
		return
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, dl := range due {
		g.Go(func() error {
			hook, hookErr := d.webhooks.GetByID(gctx, dl.OrganizationID, dl.WebhookID)
			if hookErr != nil {
				d.logger.ErrorContext(gctx, "load webhook for delivery", "delivery_id", dl.ID, "error", hookErr)
				return nil
			}
			if _, attemptErr := d.attempt(gctx, hook, dl); attemptErr != nil {
				d.logger.ErrorContext(gctx, "delivery attempt", "delivery_id", dl.ID, "error", attemptErr)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// attempt POSTs dl to hook and records the outcome guarded by dl's current
// status and attempt count.
func (d *DeliveryDispatcher) attempt(
	ctx context.Context,
	hook *model.Webhook,
	dl *model.WebhookDelivery,
) (*model.WebhookDelivery, error) {
	if dl.Attempts >= model.MaxDeliveryAttempts {
		return dl, nil
	}

	start := d.now().UTC()
	resp, sendErr := d.send(ctx, hook, dl)
	resp.DurationMs = d.now().Sub(start).Milliseconds()

	var decision delivery.Decision
	if sendErr == nil {
		decision = delivery.Succeeded(dl.Attempts)
	} else {
		decision = delivery.Failed(dl.Attempts, d.now().UTC())
	}

	applied, err := d.deliveries.RecordAttempt(ctx, dl.ID, model.DeliveryOutcome{
		ExpectedStatus:   dl.Status,
		ExpectedAttempts: dl.Attempts,
		Status:           decision.Status,
		Attempts:         decision.Attempts,
		AttemptedAt:      start,
		NextAttemptAt:    decision.NextAttemptAt,
		Response:         resp,
	})
	if err != nil {
		return nil, fmt.Errorf("record delivery attempt: %w", err)
	}

	metrics.EmitDeliveryAttempt(d.metrics, metrics.DeliveryMetric{
		Event:      string(dl.Event),
		Status:     string(decision.Status),
		StatusCode: resp.StatusCode,
		Duration:   time.Duration(resp.DurationMs) * time.Millisecond,
		Err:        sendErr,
	})

	if !applied {
		// Another attempt recorded first; report what is stored.
		d.logger.WarnContext(ctx, "delivery changed during attempt; outcome discarded",
			"delivery_id", dl.ID, "expected_status", dl.Status, "expected_attempts", dl.Attempts)
		return d.deliveries.GetByID(ctx, dl.ID)
	}

	logAttrs := []any{
		"delivery_id", dl.ID,
		"webhook_id", hook.ID,
		"event", dl.Event,
		"status", decision.Status,
		"attempts", decision.Attempts,
	}
	if sendErr != nil {
		d.logger.WarnContext(ctx, "webhook delivery attempt failed", append(logAttrs, "error", sendErr)...)
	} else {
		d.logger.InfoContext(ctx, "webhook delivered", logAttrs...)
	}

	updated := *dl
	updated.Status = decision.Status
	updated.Attempts = decision.Attempts
	updated.LastAttemptAt = &start
	updated.NextAttemptAt = decision.NextAttemptAt
	updated.Response = resp
	updated.UpdatedAt = start
	return &updated, nil
}

// send performs the signed POST. The returned snapshot is never nil; the
// error is a *apperrors.DeliveryError for non-2xx responses and transport failures.
func (d *DeliveryDispatcher) send(
	ctx context.Context,
	hook *model.Webhook,
	dl *model.WebhookDelivery,
) (*model.DeliveryResponse, error) {
	snapshot := &model.DeliveryResponse{}

	ctx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(dl.Payload))
	if err != nil {
		snapshot.Error = err.Error()
		return snapshot, &apperrors.DeliveryError{Cause: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Content-Type", deliveryContentTypeJSON)
	req.Header.Set("User-Agent", d.cfg.UserAgent)
	req.Header.Set(HeaderWebhookEvent, string(dl.Event))
	req.Header.Set(HeaderWebhookDelivery, dl.ID)
	if hook.HasSecret() {
		req.Header.Set(HeaderWebhookSignature, Sign(*hook.Secret, dl.Payload))
	}

	resp, err := d.http.Do(req)
	if err != nil {
		snapshot.Error = err.Error()
		return snapshot, &apperrors.DeliveryError{Cause: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, truncated, readErr := readResponseBody(resp.Body)
	snapshot.StatusCode = resp.StatusCode
	snapshot.Headers = flattenResponseHeaders(resp.Header)
	snapshot.Body = snapshotBody(body, truncated)
	if readErr != nil {
		snapshot.Error = fmt.Sprintf("read response body: %v", readErr)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return snapshot, &apperrors.DeliveryError{StatusCode: resp.StatusCode}
	}
	return snapshot, nil
}

// Sign returns "sha256=" + hex(HMAC-SHA256(secret, body)).
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(body)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// snapshotBody keeps a JSON body as-is and stores anything else as a JSON string.
func snapshotBody(body []byte, truncated bool) json.RawMessage {
	if len(body) == 0 {
		return nil
	}
	if !truncated && json.Valid(body) {
		return json.RawMessage(body)
	}
	raw, err := json.Marshal(string(body))
	if err != nil {
		return nil
	}
	return raw
}

func flattenResponseHeaders(h http.Header) map[string]string {
	if len(h) == 0 {
		return nil
	}
	out := make(map[string]string, len(h))
	for k, values := range h {
		out[k] = strings.Join(values, ", ")
	}
	return out
}

func readResponseBody(body io.Reader) ([]byte, bool, error) {
	if body == nil {
		return nil, false, nil
	}
	limited := io.LimitReader(body, maxResponseBodyBytes+1)
	data, readErr := io.ReadAll(limited)
	truncated := len(data) > maxResponseBodyBytes
	if truncated {
		data = data[:maxResponseBodyBytes]
		// Drain a little more for connection reuse; the caller closes the rest.
		_, _ = io.Copy(io.Discard, io.LimitReader(body, maxResponseDrainBytes))
	}
	return data, truncated, readErr
}

var _ core.EventPublisher = (*DeliveryDispatcher)(nil)

package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/target/mmk-analysis-api/internal/domain/model"
	apperrors "github.com/target/mmk-analysis-api/internal/errors"
)

const webhookColumns = `id, organization_id, url, events, secret, filter, is_active, created_at, updated_at`

// WebhookRepo provides database operations for organization webhooks.
type WebhookRepo struct {
	DB           *sql.DB
	typeMap      *pgtype.Map
	timeProvider TimeProvider
	logger       *slog.Logger
}

// NewWebhookRepo creates a new WebhookRepo.
func NewWebhookRepo(db *sql.DB, cfg RepoConfig) *WebhookRepo {
	return &WebhookRepo{
		DB:           db,
		typeMap:      pgtype.NewMap(),
		timeProvider: cfg.timeProvider(),
		logger:       cfg.logger("webhook_repo"),
	}
}

// Create inserts a webhook. The request must already be normalized and validated.
func (r *WebhookRepo) Create(ctx context.Context, orgID string, req model.CreateWebhookRequest) (*model.Webhook, error) {
	if strings.TrimSpace(orgID) == "" {
		return nil, errors.New("organization is required")
	}
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	events := req.Events
	if len(events) == 0 {
		events = model.DefaultWebhookEvents()
	}

	now := r.timeProvider.Now().UTC()
	row := r.DB.QueryRowContext(ctx, `
		INSERT INTO webhooks (organization_id, url, events, secret, filter, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		RETURNING `+webhookColumns,
		orgID, req.URL, eventStrings(events), req.Secret, req.Filter, active, now)

	w, err := r.scanWebhook(row)
	if err != nil {
		return nil, fmt.Errorf("create webhook: %w", apperrors.MapDBError(err))
	}
	return w, nil
}

// GetByID returns the webhook only if it belongs to orgID.
func (r *WebhookRepo) GetByID(ctx context.Context, orgID, id string) (*model.Webhook, error) {
	row := r.DB.QueryRowContext(ctx,
		`SELECT `+webhookColumns+` FROM webhooks WHERE id = $1 AND organization_id = $2`, id, orgID)
	w, err := r.scanWebhook(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrWebhookNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get webhook: %w", apperrors.MapDBError(err))
	}
	return w, nil
}

// List returns an organization's webhooks in creation order.
func (r *WebhookRepo) List(ctx context.Context, orgID string, limit, offset int) ([]*model.Webhook, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return r.query(ctx, `
		SELECT `+webhookColumns+`
		FROM webhooks
		WHERE organization_id = $1
		ORDER BY created_at ASC, id ASC
		LIMIT $2 OFFSET $3
	`, orgID, limit, offset)
}

// ListActiveForEvent returns the active webhooks of orgID subscribed to event.
func (r *WebhookRepo) ListActiveForEvent(ctx context.Context, orgID string, event model.WebhookEvent) ([]*model.Webhook, error) {
	return r.query(ctx, `
		SELECT `+webhookColumns+`
		FROM webhooks
		WHERE organization_id = $1 AND is_active AND $2 = ANY(events)
		ORDER BY created_at ASC, id ASC
	`, orgID, string(event))
}

// Update patches the fields set in req. An empty secret or filter clears it.
func (r *WebhookRepo) Update(ctx context.Context, orgID, id string, req model.UpdateWebhookRequest) (*model.Webhook, error) {
	sets := make([]string, 0, 6)
	args := []any{id, orgID}
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if req.URL != nil {
		add("url", *req.URL)
	}
	if req.Events != nil {
		add("events", eventStrings(req.Events))
	}
	if req.Secret != nil {
		add("secret", emptyToNil(*req.Secret))
	}
	if req.Filter != nil {
		add("filter", emptyToNil(*req.Filter))
	}
	if req.IsActive != nil {
		add("is_active", *req.IsActive)
	}
	if len(sets) == 0 {
		return r.GetByID(ctx, orgID, id)
	}
	add("updated_at", r.timeProvider.Now().UTC())

	query := `UPDATE webhooks SET ` + strings.Join(sets, ", ") +
		` WHERE id = $1 AND organization_id = $2 RETURNING ` + webhookColumns
	w, err := r.scanWebhook(r.DB.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrWebhookNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update webhook: %w", apperrors.MapDBError(err))
	}
	return w, nil
}

// Delete removes the webhook and, by cascade, its deliveries.
func (r *WebhookRepo) Delete(ctx context.Context, orgID, id string) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM webhooks WHERE id = $1 AND organization_id = $2`, id, orgID)
	if err != nil {
		return false, fmt.Errorf("delete webhook: %w", apperrors.MapDBError(err))
	}
	return rowsChanged(res)
}

func (r *WebhookRepo) query(ctx context.Context, query string, args ...any) ([]*model.Webhook, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list webhooks: %w", err)
	}
	defer rows.Close()

	var out []*model.Webhook
	for rows.Next() {
		w, scanErr := r.scanWebhook(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan webhook: %w", scanErr)
		}
		out = append(out, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list webhooks: %w", err)
	}
	return out, nil
}

func (r *WebhookRepo) scanWebhook(scanner rowScanner) (*model.Webhook, error) {
	w := &model.Webhook{}
	var (
		events         []string
		secret, filter sql.NullString
	)
	if err := scanner.Scan(
		&w.ID,
		&w.OrganizationID,
		&w.URL,
		r.typeMap.SQLScanner(&events),
		&secret,
		&filter,
		&w.IsActive,
		&w.CreatedAt,
		&w.UpdatedAt,
	); err != nil {
		return nil, err
	}

	w.Events = make([]model.WebhookEvent, 0, len(events))
	for _, e := range events {
		w.Events = append(w.Events, model.WebhookEvent(e))
	}
	w.Secret = cloneNullableString(secret)
	w.Filter = cloneNullableString(filter)
	w.CreatedAt = w.CreatedAt.UTC()
	w.UpdatedAt = w.UpdatedAt.UTC()
	return w, nil
}

func eventStrings(events []model.WebhookEvent) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = string(e)
	}
	return out
}

func emptyToNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

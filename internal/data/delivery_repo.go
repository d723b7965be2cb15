package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/target/mmk-analysis-api/internal/data/database"
	"github.com/target/mmk-analysis-api/internal/data/pgxutil"
	"github.com/target/mmk-analysis-api/internal/domain/model"
	"github.com/target/mmk-analysis-api/internal/domain/queue"
	apperrors "github.com/target/mmk-analysis-api/internal/errors"
)

const deliveryColumns = `id, webhook_id, organization_id, analysis_id, event, payload, status, attempts,
  last_attempt_at, next_attempt_at, response, created_at, updated_at`

const claimDueDeliveriesSQL = `
  WITH due AS (
    SELECT id FROM webhook_deliveries
    WHERE status IN ('pending', 'retrying')
      AND next_attempt_at <= $1
      AND (locked_until IS NULL OR locked_until < $1)
    ORDER BY next_attempt_at ASC
    LIMIT $2
    FOR UPDATE SKIP LOCKED
  )
  UPDATE webhook_deliveries d
  SET locked_until = $3
  FROM due
  WHERE d.id = due.id
  RETURNING d.id, d.webhook_id, d.organization_id, d.analysis_id, d.event, d.payload, d.status, d.attempts,
    d.last_attempt_at, d.next_attempt_at, d.response, d.created_at, d.updated_at`

// DeliveryRepo provides database operations for webhook deliveries.
type DeliveryRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
	logger       *slog.Logger
}

// NewDeliveryRepo creates a new DeliveryRepo.
func NewDeliveryRepo(db *sql.DB, cfg RepoConfig) *DeliveryRepo {
	return &DeliveryRepo{
		DB:           db,
		timeProvider: cfg.timeProvider(),
		logger:       cfg.logger("delivery_repo"),
	}
}

// Create inserts a pending delivery that is due now and wakes the delivery runner.
func (r *DeliveryRepo) Create(ctx context.Context, params model.CreateDeliveryParams) (*model.WebhookDelivery, error) {
	if strings.TrimSpace(params.WebhookID) == "" {
		return nil, errors.New("webhook id is required")
	}
	if !params.Event.Valid() {
		return nil, fmt.Errorf("invalid event: %s", params.Event)
	}
	if len(params.Payload) == 0 {
		return nil, errors.New("payload is required")
	}

	var d *model.WebhookDelivery
	err := pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			now := r.timeProvider.Now().UTC()
			var lockedUntil *time.Time
			if params.Lease > 0 {
				until := now.Add(params.Lease)
				lockedUntil = &until
			}
			row := tx.QueryRowContext(ctx, `
				INSERT INTO webhook_deliveries
				  (webhook_id, organization_id, analysis_id, event, payload, status, attempts,
				   next_attempt_at, locked_until, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, 'pending', 0, $6, $7, $6, $6)
				RETURNING `+deliveryColumns,
				params.WebhookID, params.OrganizationID, params.AnalysisID, string(params.Event),
				[]byte(params.Payload), now, lockedUntil)

			created, scanErr := scanDelivery(row)
			if scanErr != nil {
				return fmt.Errorf("insert webhook delivery: %w", apperrors.MapDBError(scanErr))
			}
			if lockedUntil == nil {
				if notifyErr := notify(ctx, tx, queue.ChannelWebhookDeliveries, created.ID); notifyErr != nil {
					return notifyErr
				}
			}
			d = created
			return nil
		},
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

// GetByID retrieves a delivery by its ID.
func (r *DeliveryRepo) GetByID(ctx context.Context, id string) (*model.WebhookDelivery, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+deliveryColumns+` FROM webhook_deliveries WHERE id = $1`, id)
	d, err := scanDelivery(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDeliveryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get webhook delivery: %w", apperrors.MapDBError(err))
	}
	return d, nil
}

// List returns deliveries newest first.
func (r *DeliveryRepo) List(ctx context.Context, opts model.DeliveryListOptions) ([]*model.WebhookDelivery, error) {
	limit := opts.Limit
	if limit <= 0 || limit > 1000 {
		limit = 50
	}

	qopts := []database.ListQueryOption{
		database.WithColumns(splitColumns(deliveryColumns)...),
		database.WithOrderBy("created_at", "DESC"),
		database.WithOrderBy("id", "DESC"),
		database.WithLimit(limit),
		database.WithOffset(opts.Offset),
	}
	if opts.OrganizationID != "" {
		qopts = append(qopts, database.WithCondition(database.WhereCond("organization_id", database.Equal, opts.OrganizationID)))
	}
	if opts.WebhookID != "" {
		qopts = append(qopts, database.WithCondition(database.WhereCond("webhook_id", database.Equal, opts.WebhookID)))
	}
	if opts.Status != nil {
		qopts = append(qopts, database.WithCondition(database.WhereCond("status", database.Equal, string(*opts.Status))))
	}
	query, args := database.BuildListQuery(database.NewListQueryOptions("webhook_deliveries", qopts...))

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list webhook deliveries: %w", err)
	}
	defer rows.Close()
	return collectDeliveries(rows)
}

// ClaimDue leases up to limit due deliveries, oldest due first.
func (r *DeliveryRepo) ClaimDue(ctx context.Context, limit int, lease time.Duration) ([]*model.WebhookDelivery, error) {
	if limit <= 0 {
		return nil, nil
	}
	if lease <= 0 {
		return nil, errors.New("lease must be positive")
	}

	var out []*model.WebhookDelivery
	err := pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Opts: &sql.TxOptions{Isolation: sql.LevelReadCommitted},
		Fn: func(tx *sql.Tx) error {
			now := r.timeProvider.Now().UTC()
			rows, err := tx.QueryContext(ctx, claimDueDeliveriesSQL, now, limit, now.Add(lease))
			if err != nil {
				return fmt.Errorf("claim due deliveries: %w", err)
			}
			defer rows.Close()
			out, err = collectDeliveries(rows)
			return err
		},
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// RecordAttempt writes the outcome of one attempt if no other writer got there first.
func (r *DeliveryRepo) RecordAttempt(ctx context.Context, id string, o model.DeliveryOutcome) (bool, error) {
	if !o.Status.Valid() {
		return false, fmt.Errorf("invalid delivery status: %s", o.Status)
	}
	if o.Attempts < 1 || o.Attempts > model.MaxDeliveryAttempts {
		return false, fmt.Errorf("attempts out of range: %d", o.Attempts)
	}
	if o.Status.IsTerminal() && o.NextAttemptAt != nil {
		return false, errors.New("terminal delivery cannot be scheduled")
	}

	var response []byte
	if o.Response != nil {
		var err error
		if response, err = json.Marshal(o.Response); err != nil {
			return false, fmt.Errorf("marshal delivery response: %w", err)
		}
	}

	res, err := r.DB.ExecContext(ctx, `
		UPDATE webhook_deliveries
		SET status = $4,
		    attempts = $5,
		    last_attempt_at = $6,
		    next_attempt_at = $7,
		    response = $8,
		    locked_until = NULL,
		    updated_at = $9
		WHERE id = $1
		  AND status = $2
		  AND attempts = $3
		  AND status IN ('pending', 'retrying')
	`, id, string(o.ExpectedStatus), o.ExpectedAttempts,
		string(o.Status), o.Attempts, o.AttemptedAt.UTC(), o.NextAttemptAt, response,
		r.timeProvider.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("record delivery attempt: %w", err)
	}
	return rowsChanged(res)
}

func collectDeliveries(rows *sql.Rows) ([]*model.WebhookDelivery, error) {
	var out []*model.WebhookDelivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, fmt.Errorf("scan webhook delivery: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate webhook deliveries: %w", err)
	}
	return out, nil
}

func scanDelivery(scanner rowScanner) (*model.WebhookDelivery, error) {
	d := &model.WebhookDelivery{}
	var (
		analysisID               sql.NullString
		payload, response        []byte
		lastAttempt, nextAttempt sql.NullTime
	)
	if err := scanner.Scan(
		&d.ID,
		&d.WebhookID,
		&d.OrganizationID,
		&analysisID,
		&d.Event,
		&payload,
		&d.Status,
		&d.Attempts,
		&lastAttempt,
		&nextAttempt,
		&response,
		&d.CreatedAt,
		&d.UpdatedAt,
	); err != nil {
		return nil, err
	}

	d.AnalysisID = cloneNullableString(analysisID)
	d.Payload = cloneJSON(payload)
	d.LastAttemptAt = cloneNullableTime(lastAttempt)
	d.NextAttemptAt = cloneNullableTime(nextAttempt)
	if len(response) > 0 {
		var snap model.DeliveryResponse
		if err := json.Unmarshal(response, &snap); err != nil {
			return nil, fmt.Errorf("decode delivery response: %w", err)
		}
		d.Response = &snap
	}
	d.CreatedAt = d.CreatedAt.UTC()
	d.UpdatedAt = d.UpdatedAt.UTC()
	return d, nil
}

package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/target/mmk-analysis-api/internal/core"
	"github.com/target/mmk-analysis-api/internal/data/pgxutil"
	"github.com/target/mmk-analysis-api/internal/domain/model"
)

// Advisory lock namespace for reaper operations.
// Using two-arg pg_try_advisory_xact_lock(major, minor) for proper namespacing.
// Major key 1000 is reserved for reaper operations.
const (
	advisoryLockReaperMajor            = 1000
	advisoryLockReaperFailProcessing   = 1
	advisoryLockReaperDeleteJobs       = 2
	advisoryLockReaperDeleteDeliveries = 3
)

// RetentionRepo implements the reaper's sweeps over jobs and deliveries.
type RetentionRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
	logger       *slog.Logger
}

// NewRetentionRepo creates a new RetentionRepo.
func NewRetentionRepo(db *sql.DB, cfg RepoConfig) *RetentionRepo {
	return &RetentionRepo{
		DB:           db,
		timeProvider: cfg.timeProvider(),
		logger:       cfg.logger("retention_repo"),
	}
}

// FailStaleProcessing fails processing jobs started before now-MaxAge and returns them.
// If another reaper holds the lock nothing is done.
func (r *RetentionRepo) FailStaleProcessing(
	ctx context.Context,
	params core.FailStaleProcessingParams,
) ([]*model.AnalysisJob, error) {
	if err := validateSweep(params.MaxAge.Seconds(), params.BatchSize); err != nil {
		return nil, err
	}

	var failed []*model.AnalysisJob
	err := r.withReaperLock(ctx, advisoryLockReaperFailProcessing, func(tx *sql.Tx) error {
		now := r.timeProvider.Now().UTC()
		cutoff := now.Add(-params.MaxAge)

		rows, err := tx.QueryContext(ctx, `
			UPDATE analysis_jobs
			SET status = 'failed',
			    error = $1,
			    error_code = $2,
			    retryable = $3,
			    completed_at = $4,
			    updated_at = $4
			WHERE id IN (
				SELECT id FROM analysis_jobs
				WHERE status = 'processing'
				  AND COALESCE(started_at, updated_at) < $5
				ORDER BY seq
				LIMIT $6
				FOR UPDATE SKIP LOCKED
			)
			AND status = 'processing'
			RETURNING `+analysisJobColumns,
			params.Failure.Message, params.Failure.Code, params.Failure.Retryable, now, cutoff, params.BatchSize)
		if err != nil {
			return fmt.Errorf("fail stale processing jobs: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			job, scanErr := scanAnalysisJob(rows)
			if scanErr != nil {
				return fmt.Errorf("scan analysis job: %w", scanErr)
			}
			failed = append(failed, job)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return failed, nil
}

// DeleteJobsOlderThan deletes terminal jobs with the given status last updated before now-MaxAge.
func (r *RetentionRepo) DeleteJobsOlderThan(ctx context.Context, params core.DeleteOlderThanParams) (int64, error) {
	if !model.AnalysisStatus(params.Status).IsTerminal() {
		return 0, fmt.Errorf("refusing to delete analysis jobs in status %q", params.Status)
	}
	if err := validateSweep(params.MaxAge.Seconds(), params.BatchSize); err != nil {
		return 0, err
	}

	var deleted int64
	err := r.withReaperLock(ctx, advisoryLockReaperDeleteJobs, func(tx *sql.Tx) error {
		cutoff := r.timeProvider.Now().Add(-params.MaxAge).UTC()
		res, err := tx.ExecContext(ctx, `
			DELETE FROM analysis_jobs
			WHERE id IN (
				SELECT id FROM analysis_jobs
				WHERE status = $1
				  AND updated_at < $2
				ORDER BY updated_at
				LIMIT $3
			)
		`, params.Status, cutoff, params.BatchSize)
		if err != nil {
			return fmt.Errorf("delete old analysis jobs: %w", err)
		}
		deleted, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

// DeleteDeliveriesOlderThan deletes terminal deliveries with the given status last updated before now-MaxAge.
func (r *RetentionRepo) DeleteDeliveriesOlderThan(ctx context.Context, params core.DeleteOlderThanParams) (int64, error) {
	if !model.DeliveryStatus(params.Status).IsTerminal() {
		return 0, fmt.Errorf("refusing to delete webhook deliveries in status %q", params.Status)
	}
	if err := validateSweep(params.MaxAge.Seconds(), params.BatchSize); err != nil {
		return 0, err
	}

	var deleted int64
	err := r.withReaperLock(ctx, advisoryLockReaperDeleteDeliveries, func(tx *sql.Tx) error {
		cutoff := r.timeProvider.Now().Add(-params.MaxAge).UTC()
		res, err := tx.ExecContext(ctx, `
			DELETE FROM webhook_deliveries
			WHERE id IN (
				SELECT id FROM webhook_deliveries
				WHERE status = $1
				  AND updated_at < $2
				ORDER BY updated_at
				LIMIT $3
			)
		`, params.Status, cutoff, params.BatchSize)
		if err != nil {
			return fmt.Errorf("delete old webhook deliveries: %w", err)
		}
		deleted, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

func (r *RetentionRepo) withReaperLock(ctx context.Context, minor int, fn func(*sql.Tx) error) error {
	return pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			var locked bool
			if err := tx.QueryRowContext(ctx, "SELECT pg_try_advisory_xact_lock($1, $2)", advisoryLockReaperMajor, minor).Scan(&locked); err != nil {
				return fmt.Errorf("acquire advisory lock: %w", err)
			}
			if !locked {
				r.logger.DebugContext(ctx, "reaper lock held elsewhere", "minor", minor)
				return nil
			}
			return fn(tx)
		},
	})
}

func validateSweep(maxAgeSeconds float64, batchSize int) error {
	if batchSize <= 0 {
		return errors.New("batch size must be greater than zero")
	}
	if maxAgeSeconds <= 0 {
		return errors.New("max age must be greater than zero")
	}
	return nil
}

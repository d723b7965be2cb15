package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/target/mmk-analysis-api/internal/data/database"
	"github.com/target/mmk-analysis-api/internal/data/pgxutil"
	"github.com/target/mmk-analysis-api/internal/domain/model"
	"github.com/target/mmk-analysis-api/internal/domain/queue"
)

const analysisJobColumns = `
  id,
  seq,
  owner_id,
  organization_id,
  repository_url,
  branch,
  commit_sha,
  status,
  error,
  error_code,
  retryable,
  result,
  retry_count,
  started_at,
  completed_at,
  created_at,
  updated_at
`

// Reserves the oldest pending job. Ordering is by seq only, so a requeued job
// joins the back of the queue.
const reserveNextAnalysisSQL = `
  WITH cte AS (
    SELECT id FROM analysis_jobs
    WHERE status = 'pending'
    ORDER BY seq ASC
    LIMIT 1
    FOR UPDATE SKIP LOCKED
  )
  UPDATE analysis_jobs j
  SET
    status = 'processing',
    started_at = $1,
    updated_at = $1
  FROM cte
  WHERE j.id = cte.id
  RETURNING ` + qualifiedAnalysisJobColumns

const qualifiedAnalysisJobColumns = `j.id, j.seq, j.owner_id, j.organization_id, j.repository_url, j.branch, j.commit_sha,
  j.status, j.error, j.error_code, j.retryable, j.result, j.retry_count, j.started_at, j.completed_at,
  j.created_at, j.updated_at`

// AnalysisJobRepo provides database operations for the analysis queue.
type AnalysisJobRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
	logger       *slog.Logger
}

// NewAnalysisJobRepo creates a new AnalysisJobRepo.
func NewAnalysisJobRepo(db *sql.DB, cfg RepoConfig) *AnalysisJobRepo {
	return &AnalysisJobRepo{
		DB:           db,
		timeProvider: cfg.timeProvider(),
		logger:       cfg.logger("analysis_job_repo"),
	}
}

// Create inserts a pending job and notifies waiting workers in the same transaction.
func (r *AnalysisJobRepo) Create(ctx context.Context, params model.CreateAnalysisJobParams) (*model.AnalysisJob, error) {
	if strings.TrimSpace(params.RepositoryURL) == "" {
		return nil, errors.New("repository url is required")
	}
	if strings.TrimSpace(params.OrganizationID) == "" || strings.TrimSpace(params.OwnerID) == "" {
		return nil, errors.New("owner and organization are required")
	}

	var job *model.AnalysisJob
	err := pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			now := r.timeProvider.Now().UTC()
			row := tx.QueryRowContext(ctx, `
				INSERT INTO analysis_jobs (owner_id, organization_id, repository_url, branch, status, created_at, updated_at)
				VALUES ($1, $2, $3, $4, 'pending', $5, $5)
				RETURNING `+analysisJobColumns,
				params.OwnerID, params.OrganizationID, params.RepositoryURL, params.Branch, now)

			created, scanErr := scanAnalysisJob(row)
			if scanErr != nil {
				return fmt.Errorf("insert analysis job: %w", scanErr)
			}
			if notifyErr := notify(ctx, tx, queue.ChannelAnalysisJobs, created.ID); notifyErr != nil {
				return notifyErr
			}
			job = created
			return nil
		},
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

// GetByID retrieves a job by its ID.
func (r *AnalysisJobRepo) GetByID(ctx context.Context, id string) (*model.AnalysisJob, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+analysisJobColumns+` FROM analysis_jobs WHERE id = $1`, id)
	job, err := scanAnalysisJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAnalysisNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get analysis job: %w", err)
	}
	return job, nil
}

// List returns jobs for an organization, newest first.
func (r *AnalysisJobRepo) List(ctx context.Context, opts model.AnalysisJobListOptions) ([]*model.AnalysisJob, error) {
	limit := opts.Limit
	if limit <= 0 || limit > 1000 {
		limit = 50
	}

	qopts := []database.ListQueryOption{
		database.WithColumns(splitColumns(analysisJobColumns)...),
		database.WithOrderBy("created_at", "DESC"),
		database.WithLimit(limit),
		database.WithOffset(opts.Offset),
	}
	if opts.OrganizationID != "" {
		qopts = append(qopts, database.WithCondition(database.WhereCond("organization_id", database.Equal, opts.OrganizationID)))
	}
	if opts.Status != nil {
		qopts = append(qopts, database.WithCondition(database.WhereCond("status", database.Equal, string(*opts.Status))))
	}
	query, args := database.BuildListQuery(database.NewListQueryOptions("analysis_jobs", qopts...))

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list analysis jobs: %w", err)
	}
	defer rows.Close()

	var out []*model.AnalysisJob
	for rows.Next() {
		job, scanErr := scanAnalysisJob(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan analysis job: %w", scanErr)
		}
		out = append(out, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list analysis jobs: %w", err)
	}
	return out, nil
}

// Stats counts jobs per status. An empty orgID counts across all organizations.
func (r *AnalysisJobRepo) Stats(ctx context.Context, orgID string) (*model.AnalysisJobStats, error) {
	var s model.AnalysisJobStats
	err := r.DB.QueryRowContext(ctx, `
  SELECT
    count(*) FILTER (WHERE status = 'pending')    AS pending,
    count(*) FILTER (WHERE status = 'processing') AS processing,
    count(*) FILTER (WHERE status = 'completed')  AS completed,
    count(*) FILTER (WHERE status = 'failed')     AS failed
  FROM analysis_jobs
  WHERE $1 = '' OR organization_id = $1
  `, orgID).Scan(&s.Pending, &s.Processing, &s.Completed, &s.Failed)
	if err != nil {
		return nil, fmt.Errorf("failed to get analysis job stats: %w", err)
	}
	return &s, nil
}

// QueuePosition counts the non-terminal jobs at or ahead of id.
func (r *AnalysisJobRepo) QueuePosition(ctx context.Context, id string) (int, int, error) {
	var (
		status   model.AnalysisStatus
		position int
		total    int
	)
	err := r.DB.QueryRowContext(ctx, `
  SELECT
    t.status,
    (SELECT count(*) FROM analysis_jobs q
      WHERE q.status IN ('pending', 'processing') AND q.seq <= t.seq),
    (SELECT count(*) FROM analysis_jobs q
      WHERE q.status IN ('pending', 'processing'))
  FROM analysis_jobs t
  WHERE t.id = $1
  `, id).Scan(&status, &position, &total)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, 0, ErrAnalysisNotFound
	}
	if err != nil {
		return 0, 0, fmt.Errorf("queue position: %w", err)
	}
	if status.IsTerminal() {
		return 0, 0, ErrNotInQueue
	}
	return position, total, nil
}

// ReserveNext moves the oldest pending job to processing.
func (r *AnalysisJobRepo) ReserveNext(ctx context.Context) (*model.AnalysisJob, error) {
	var job *model.AnalysisJob
	err := pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Opts: &sql.TxOptions{Isolation: sql.LevelReadCommitted},
		Fn: func(tx *sql.Tx) error {
			now := r.timeProvider.Now().UTC()
			j, scanErr := scanAnalysisJob(tx.QueryRowContext(ctx, reserveNextAnalysisSQL, now))
			if errors.Is(scanErr, sql.ErrNoRows) {
				return model.ErrNoJobsAvailable
			}
			if scanErr != nil {
				return fmt.Errorf("reserve analysis job: %w", scanErr)
			}
			job = j
			return nil
		},
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

// SetRepositoryMetadata records the resolved branch and commit while the job is processing.
func (r *AnalysisJobRepo) SetRepositoryMetadata(ctx context.Context, id string, branch, commitSHA *string) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE analysis_jobs
		SET branch = COALESCE($2, branch),
		    commit_sha = COALESCE($3, commit_sha),
		    updated_at = $4
		WHERE id = $1 AND status = 'processing'
	`, id, branch, commitSHA, r.timeProvider.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("set repository metadata: %w", err)
	}
	return rowsChanged(res)
}

// Complete stores the result if the job is still processing.
func (r *AnalysisJobRepo) Complete(ctx context.Context, id string, result json.RawMessage) (bool, error) {
	now := r.timeProvider.Now().UTC()
	res, err := r.DB.ExecContext(ctx, `
		UPDATE analysis_jobs
		SET status = 'completed',
		    result = $2,
		    error = NULL,
		    error_code = NULL,
		    retryable = FALSE,
		    completed_at = $3,
		    updated_at = $3
		WHERE id = $1 AND status = 'processing'
	`, id, nullableJSON(result), now)
	if err != nil {
		return false, fmt.Errorf("complete analysis job: %w", err)
	}
	return rowsChanged(res)
}

// Fail moves the job to failed only if its current status equals expected.
func (r *AnalysisJobRepo) Fail(
	ctx context.Context,
	id string,
	expected model.AnalysisStatus,
	failure model.JobFailure,
) (bool, error) {
	if expected != model.AnalysisStatusPending && expected != model.AnalysisStatusProcessing {
		return false, fmt.Errorf("cannot fail analysis job from status %q", expected)
	}

	now := r.timeProvider.Now().UTC()
	res, err := r.DB.ExecContext(ctx, `
		UPDATE analysis_jobs
		SET status = 'failed',
		    error = $3,
		    error_code = $4,
		    retryable = $5,
		    result = NULL,
		    completed_at = $6,
		    updated_at = $6
		WHERE id = $1 AND status = $2
	`, id, expected, failure.Message, failure.Code, failure.Retryable, now)
	if err != nil {
		return false, fmt.Errorf("fail analysis job: %w", err)
	}
	return rowsChanged(res)
}

// Requeue moves a failed job back to pending behind every job already queued.
func (r *AnalysisJobRepo) Requeue(ctx context.Context, id string) (*model.AnalysisJob, error) {
	var job *model.AnalysisJob
	err := pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			now := r.timeProvider.Now().UTC()
			row := tx.QueryRowContext(ctx, `
				UPDATE analysis_jobs
				SET status = 'pending',
				    seq = nextval(pg_get_serial_sequence('analysis_jobs', 'seq')),
				    retry_count = retry_count + 1,
				    error = NULL,
				    error_code = NULL,
				    retryable = FALSE,
				    result = NULL,
				    started_at = NULL,
				    completed_at = NULL,
				    updated_at = $2
				WHERE id = $1 AND status = 'failed'
				RETURNING `+analysisJobColumns, id, now)

			requeued, scanErr := scanAnalysisJob(row)
			if errors.Is(scanErr, sql.ErrNoRows) {
				return ErrJobNotRequeueable
			}
			if scanErr != nil {
				return fmt.Errorf("requeue analysis job: %w", scanErr)
			}
			if notifyErr := notify(ctx, tx, queue.ChannelAnalysisJobs, requeued.ID); notifyErr != nil {
				return notifyErr
			}
			job = requeued
			return nil
		},
	})
	if errors.Is(err, ErrJobNotRequeueable) {
		if _, getErr := r.GetByID(ctx, id); errors.Is(getErr, ErrAnalysisNotFound) {
			return nil, ErrAnalysisNotFound
		}
		return nil, ErrJobNotRequeueable
	}
	if err != nil {
		return nil, err
	}
	return job, nil
}

// WaitForNotification blocks until a notification arrives on channel or ctx ends.
func (r *AnalysisJobRepo) WaitForNotification(ctx context.Context, channel queue.Channel) error {
	return waitForNotification(ctx, r.DB, channel)
}

func waitForNotification(ctx context.Context, db *sql.DB, channel queue.Channel) error {
	return pgxutil.WithPgxConn(ctx, db, func(conn *pgx.Conn) error {
		quoted := pgx.Identifier{string(channel)}.Sanitize()
		if _, err := conn.Exec(ctx, "LISTEN "+quoted); err != nil {
			return fmt.Errorf("listen %s: %w", channel, err)
		}
		defer func() {
			// Ignored: a cancelled wait closes the connection, which drops the LISTEN anyway.
			_, _ = conn.Exec(context.WithoutCancel(ctx), "UNLISTEN "+quoted)
		}()

		_, err := conn.WaitForNotification(ctx)
		return err
	})
}

func notify(ctx context.Context, tx *sql.Tx, channel queue.Channel, payload string) error {
	if _, err := tx.ExecContext(ctx, `SELECT pg_notify($1::text, $2::text)`, string(channel), payload); err != nil {
		return fmt.Errorf("send %s notification: %w", channel, err)
	}
	return nil
}

func rowsChanged(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

func splitColumns(cols string) []string {
	parts := strings.Split(cols, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

type analysisJobRowData struct {
	branch, commitSHA, errMsg, errCode sql.NullString
	result                             []byte
	startedAt, completedAt             sql.NullTime
}

func scanAnalysisJob(scanner rowScanner) (*model.AnalysisJob, error) {
	job := &model.AnalysisJob{}
	var d analysisJobRowData
	if err := scanner.Scan(
		&job.ID,
		&job.Seq,
		&job.OwnerID,
		&job.OrganizationID,
		&job.RepositoryURL,
		&d.branch,
		&d.commitSHA,
		&job.Status,
		&d.errMsg,
		&d.errCode,
		&job.Retryable,
		&d.result,
		&job.RetryCount,
		&d.startedAt,
		&d.completedAt,
		&job.CreatedAt,
		&job.UpdatedAt,
	); err != nil {
		return nil, err
	}

	job.Branch = cloneNullableString(d.branch)
	job.CommitSHA = cloneNullableString(d.commitSHA)
	job.Error = cloneNullableString(d.errMsg)
	job.ErrorCode = cloneNullableString(d.errCode)
	job.Result = cloneJSON(d.result)
	job.StartedAt = cloneNullableTime(d.startedAt)
	job.CompletedAt = cloneNullableTime(d.completedAt)
	job.CreatedAt = job.CreatedAt.UTC()
	job.UpdatedAt = job.UpdatedAt.UTC()
	return job, nil
}

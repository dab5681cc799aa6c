// Package jobs provides the PostgreSQL-backed trigger queue. Claims use
// FOR UPDATE SKIP LOCKED so concurrent workers never double-claim a live row;
// crash recovery reclaims rows whose claim outlived the visibility timeout.
package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/livebell/engine/internal/common"
	"github.com/livebell/engine/internal/dbx"
	"github.com/livebell/engine/internal/server/models"
)

// PostgresRepository implements the trigger queue over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Enqueue(ctx context.Context, job *models.NotificationJob) error {
	payload, err := json.Marshal(job.Payload)
	if err != nil {
		return fmt.Errorf("payload marshal error: %w", err)
	}

	query :=
		`INSERT INTO notification_jobs (id, payload, status)
		 VALUES ($1, $2, $3)
		 `

	if _, err := r.db.ExecContext(ctx, query, job.ID, payload, models.JobPending); err != nil {
		return fmt.Errorf("db error: %w: %w", common.ErrTransientStore, err)
	}
	job.Status = models.JobPending
	return nil
}

func (r *PostgresRepository) ClaimNext(ctx context.Context, workerID string, reclaimBefore time.Time) (*models.NotificationJob, error) {
	query :=
		`UPDATE notification_jobs
		 SET status = $1, claimed_by = $2, claimed_at = now(), updated_at = now()
		 WHERE id = (
			SELECT id FROM notification_jobs
			WHERE status = $3
			   OR (status = $1 AND claimed_at < $4)
			ORDER BY created_at
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		 )
		 RETURNING id, payload, status, retry_count, claimed_by, created_at, updated_at
		 `

	job := &models.NotificationJob{}
	var payload []byte
	err := r.db.QueryRowContext(ctx, query,
		models.JobInProgress, workerID, models.JobPending, reclaimBefore).Scan(
		&job.ID, &payload, &job.Status, &job.RetryCount, &job.ClaimedBy,
		&job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("db error: %w: %w", common.ErrTransientStore, err)
	}

	if err := json.Unmarshal(payload, &job.Payload); err != nil {
		return nil, fmt.Errorf("payload unmarshal error: %w", err)
	}
	return job, nil
}

func (r *PostgresRepository) Complete(ctx context.Context, id, workerID string) error {
	query :=
		`UPDATE notification_jobs
		 SET status = $1, updated_at = now()
		 WHERE id = $2 AND status = $3 AND claimed_by = $4
		 `

	res, err := r.db.ExecContext(ctx, query, models.JobDone, id, models.JobInProgress, workerID)
	if err != nil {
		return fmt.Errorf("db error: %w: %w", common.ErrTransientStore, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w: %w", common.ErrTransientStore, err)
	}
	if n == 0 {
		return common.ErrJobNotClaimed
	}
	return nil
}

func (r *PostgresRepository) Fail(ctx context.Context, id, workerID string, retry bool) error {
	var query string
	if retry {
		query =
			`UPDATE notification_jobs
			 SET status = $1, retry_count = retry_count + 1,
			     claimed_by = NULL, claimed_at = NULL, updated_at = now()
			 WHERE id = $2 AND status = $3 AND claimed_by = $4
			 `
	} else {
		query =
			`UPDATE notification_jobs
			 SET status = $1, updated_at = now()
			 WHERE id = $2 AND status = $3 AND claimed_by = $4
			 `
	}

	target := models.JobFailed
	if retry {
		target = models.JobPending
	}

	res, err := r.db.ExecContext(ctx, query, target, id, models.JobInProgress, workerID)
	if err != nil {
		return fmt.Errorf("db error: %w: %w", common.ErrTransientStore, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w: %w", common.ErrTransientStore, err)
	}
	if n == 0 {
		return common.ErrJobNotClaimed
	}
	return nil
}

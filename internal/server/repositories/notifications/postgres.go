// Package notifications provides the PostgreSQL-backed registry of the most
// recently delivered alert per (subject, destination).
package notifications

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/livebell/engine/internal/common"
	"github.com/livebell/engine/internal/dbx"
	"github.com/livebell/engine/internal/server/models"
)

// PostgresRepository implements the registry over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Get(ctx context.Context, subjectID, destinationID int64) (*models.NotificationState, error) {
	query :=
		`SELECT subject_id, destination_id, message_handle, delivered_at
		 FROM notification_states
		 WHERE subject_id = $1 AND destination_id = $2
		 `

	state := &models.NotificationState{}
	err := r.db.QueryRowContext(ctx, query, subjectID, destinationID).Scan(
		&state.SubjectID, &state.DestinationID, &state.MessageHandle, &state.DeliveredAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w: %w", common.ErrTransientStore, err)
	}
	return state, nil
}

func (r *PostgresRepository) Upsert(ctx context.Context, state *models.NotificationState) error {
	query :=
		`INSERT INTO notification_states (subject_id, destination_id, message_handle, delivered_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (subject_id, destination_id)
		 DO UPDATE SET
			message_handle = EXCLUDED.message_handle,
			delivered_at = EXCLUDED.delivered_at
		 `

	if _, err := r.db.ExecContext(ctx, query,
		state.SubjectID, state.DestinationID, state.MessageHandle, state.DeliveredAt); err != nil {
		return fmt.Errorf("db error: %w: %w", common.ErrTransientStore, err)
	}
	return nil
}

func (r *PostgresRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	query :=
		`DELETE FROM notification_states
		 WHERE delivered_at < $1
		 `

	res, err := r.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("db error: %w: %w", common.ErrTransientStore, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected error: %w: %w", common.ErrTransientStore, err)
	}
	return n, nil
}

// Package payments provides the PostgreSQL-backed repository for payment
// records. Completed rows are immutable evidence; the unique constraint on
// external_ref is what makes payment processing idempotent under races.
package payments

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/livebell/engine/internal/common"
	"github.com/livebell/engine/internal/dbx"
	"github.com/livebell/engine/internal/server/models"
)

// pgUniqueViolation is the PostgreSQL error code for unique_violation.
const pgUniqueViolation = "23505"

// PostgresRepository implements payment storage over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) InsertCompleted(ctx context.Context, rec *models.PaymentRecord) error {
	query :=
		`INSERT INTO payments (account_id, external_ref, package, amount, status, completed_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id
		 `

	err := r.db.QueryRowContext(ctx, query,
		rec.AccountID, rec.ExternalRef, rec.Package, rec.Amount,
		models.PaymentCompleted, rec.CompletedAt).Scan(&rec.ID)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return common.ErrDuplicatePayment
		}
		return fmt.Errorf("db error: %w: %w", common.ErrTransientStore, err)
	}

	rec.Status = models.PaymentCompleted
	return nil
}

func (r *PostgresRepository) FindByExternalRef(ctx context.Context, ref string) (*models.PaymentRecord, error) {
	query :=
		`SELECT id, account_id, external_ref, package, amount, status, created_at, completed_at
		 FROM payments
		 WHERE external_ref = $1
		 `

	rec := &models.PaymentRecord{}
	err := r.db.QueryRowContext(ctx, query, ref).Scan(
		&rec.ID, &rec.AccountID, &rec.ExternalRef, &rec.Package,
		&rec.Amount, &rec.Status, &rec.CreatedAt, &rec.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w: %w", common.ErrTransientStore, err)
	}
	return rec, nil
}

func (r *PostgresRepository) ListCompleted(ctx context.Context, accountID int64) ([]*models.PaymentRecord, error) {
	query :=
		`SELECT id, account_id, external_ref, package, amount, status, created_at, completed_at
		 FROM payments
		 WHERE account_id = $1 AND status = $2
		 ORDER BY completed_at DESC
		 `

	rows, err := r.db.QueryContext(ctx, query, accountID, models.PaymentCompleted)
	if err != nil {
		return nil, fmt.Errorf("db error: %w: %w", common.ErrTransientStore, err)
	}
	defer rows.Close()

	var result []*models.PaymentRecord
	for rows.Next() {
		rec := &models.PaymentRecord{}
		if err := rows.Scan(
			&rec.ID, &rec.AccountID, &rec.ExternalRef, &rec.Package,
			&rec.Amount, &rec.Status, &rec.CreatedAt, &rec.CompletedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

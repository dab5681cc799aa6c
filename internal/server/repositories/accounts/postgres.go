// Package accounts provides the PostgreSQL-backed repository for point
// balances. Balance mutations are expected to run inside a transaction with
// the row locked via GetForUpdate.
package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/livebell/engine/internal/common"
	"github.com/livebell/engine/internal/dbx"
	"github.com/livebell/engine/internal/server/models"
)

// PostgresRepository implements account storage over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, id int64) (*models.Account, error) {
	query :=
		`INSERT INTO accounts (id, balance)
		 VALUES ($1, 0)
		 ON CONFLICT (id) DO NOTHING
		 `

	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return nil, fmt.Errorf("db error: %w: %w", common.ErrTransientStore, err)
	}
	return r.Get(ctx, id)
}

func (r *PostgresRepository) Get(ctx context.Context, id int64) (*models.Account, error) {
	query :=
		`SELECT id, balance, created_at FROM accounts
		 WHERE id = $1
		 `

	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepository) GetForUpdate(ctx context.Context, id int64) (*models.Account, error) {
	query :=
		`SELECT id, balance, created_at FROM accounts
		 WHERE id = $1
		 FOR UPDATE
		 `

	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepository) AddBalance(ctx context.Context, id int64, delta int64) (int64, error) {
	query :=
		`UPDATE accounts SET balance = balance + $1
		 WHERE id = $2
		 RETURNING balance
		 `

	var balance int64
	err := r.db.QueryRowContext(ctx, query, delta, id).Scan(&balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, common.ErrorNotFound
		}
		return 0, fmt.Errorf("db error: %w: %w", common.ErrTransientStore, err)
	}
	return balance, nil
}

func (r *PostgresRepository) scanOne(row *sql.Row) (*models.Account, error) {
	acc := &models.Account{}
	err := row.Scan(&acc.ID, &acc.Balance, &acc.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w: %w", common.ErrTransientStore, err)
	}
	return acc, nil
}

package accounts

import (
	"context"

	"github.com/livebell/engine/internal/server/models"
)

// Repository is the storage contract for point-balance accounts.
type Repository interface {
	// Create inserts an account with a zero balance. Existing rows are left
	// untouched.
	Create(ctx context.Context, id int64) (*models.Account, error)

	// Get returns the account or common.ErrorNotFound.
	Get(ctx context.Context, id int64) (*models.Account, error)

	// GetForUpdate reads the account under a row lock. Inside a transaction
	// this serializes concurrent balance mutations per account.
	GetForUpdate(ctx context.Context, id int64) (*models.Account, error)

	// AddBalance applies a signed delta and returns the new balance.
	AddBalance(ctx context.Context, id int64, delta int64) (int64, error)
}

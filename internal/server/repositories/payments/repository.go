package payments

import (
	"context"

	"github.com/livebell/engine/internal/server/models"
)

// Repository is the storage contract for append-only payment evidence.
type Repository interface {
	// InsertCompleted appends a completed PaymentRecord. A second record with
	// the same external reference yields common.ErrDuplicatePayment.
	InsertCompleted(ctx context.Context, rec *models.PaymentRecord) error

	// FindByExternalRef returns the record for the external charge reference
	// or common.ErrorNotFound.
	FindByExternalRef(ctx context.Context, ref string) (*models.PaymentRecord, error)

	// ListCompleted returns all completed records for an account, newest first.
	ListCompleted(ctx context.Context, accountID int64) ([]*models.PaymentRecord, error)
}

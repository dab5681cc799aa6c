package notifications

import (
	"context"
	"time"

	"github.com/livebell/engine/internal/server/models"
)

// Repository is the storage contract for the per-(subject, destination)
// delivered-message registry.
type Repository interface {
	// Get returns the tracked state for the pair or common.ErrorNotFound.
	Get(ctx context.Context, subjectID, destinationID int64) (*models.NotificationState, error)

	// Upsert replaces the tracked handle for the pair. The composite primary
	// key guarantees a single row per pair; the last committed upsert wins.
	Upsert(ctx context.Context, state *models.NotificationState) error

	// DeleteOlderThan removes rows delivered before cutoff and reports how
	// many were dropped. Handles that old can no longer be retired by the
	// transport anyway.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

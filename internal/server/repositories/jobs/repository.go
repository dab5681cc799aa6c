package jobs

import (
	"context"
	"time"

	"github.com/livebell/engine/internal/server/models"
)

// Repository is the durable trigger-queue contract. Delivery is
// at-least-once: a claimed job whose claim outlives the visibility timeout
// becomes claimable again, so payload processing must be idempotent.
type Repository interface {
	// Enqueue inserts a pending job.
	Enqueue(ctx context.Context, job *models.NotificationJob) error

	// ClaimNext atomically claims the oldest claimable job for workerID and
	// returns it, or (nil, nil) when the queue is empty. Jobs already claimed
	// before reclaimBefore are considered abandoned and claimable.
	ClaimNext(ctx context.Context, workerID string, reclaimBefore time.Time) (*models.NotificationJob, error)

	// Complete marks a job done, but only while workerID still holds the
	// claim. A job reclaimed by another worker (or not in progress) yields
	// common.ErrJobNotClaimed.
	Complete(ctx context.Context, id, workerID string) error

	// Fail releases a job claimed by workerID: with retry it returns to
	// pending with an incremented retry count, otherwise it is terminally
	// failed. A job the worker no longer holds yields common.ErrJobNotClaimed.
	Fail(ctx context.Context, id, workerID string, retry bool) error
}

// Package worker drains the trigger queue. Each worker claims one job at a
// time, delivers the live alert to the payload's destinations, and settles the
// job as done or retryable. Delivery is at-least-once: the notifier's registry
// upsert makes a replayed payload converge instead of double-notifying.
package worker

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/livebell/engine/internal/logging"
	"github.com/livebell/engine/internal/server/metrics"
	"github.com/livebell/engine/internal/server/models"
	"github.com/livebell/engine/internal/server/ratelimit"
	"github.com/livebell/engine/internal/server/repositories/repomanager"
	"github.com/livebell/engine/internal/server/services"
)

// Deliverer is the slice of the notifier the worker needs.
type Deliverer interface {
	DeliverLive(ctx context.Context, subjectID int64, destinations []int64, render func(destinationID int64) string) []services.DeliveryResult
}

// Renderer produces the alert text for one destination.
type Renderer func(payload models.LivePayload, destinationID int64) string

// DefaultRenderer is the production alert text.
func DefaultRenderer(payload models.LivePayload, _ int64) string {
	return fmt.Sprintf("%s is live now!", payload.SubjectName)
}

// Options tunes a worker pool.
type Options struct {
	PollInterval      time.Duration
	VisibilityTimeout time.Duration
	MaxRetries        int
}

// Worker is a single queue consumer identified by ID.
type Worker struct {
	id          string
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	deliverer   Deliverer
	limiter     *ratelimit.Limiter
	render      Renderer
	opts        Options
	logger      logging.Logger
}

// workerNow is a seam for tests.
var workerNow = time.Now

// New constructs a worker. id must be unique within the pool so abandoned
// claims can be attributed.
func New(id string, db *sql.DB, m repomanager.RepositoryManager, d Deliverer, l *ratelimit.Limiter, render Renderer, opts Options, logger logging.Logger) *Worker {
	if render == nil {
		render = DefaultRenderer
	}
	return &Worker{
		id:          id,
		db:          db,
		repomanager: m,
		deliverer:   d,
		limiter:     l,
		render:      render,
		opts:        opts,
		logger:      logger.With("module", "worker", "worker_id", id),
	}
}

// Run polls the queue until ctx is cancelled. An empty queue backs off for
// the poll interval; a claimed job is processed immediately and the next
// claim follows without waiting.
func (w *Worker) Run(ctx context.Context) {
	t := time.NewTicker(w.opts.PollInterval)
	defer t.Stop()

	for {
		processed, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error(ctx, "claim failed", "error", err)
		}
		if processed {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

// RunOnce claims and processes at most one job. It reports whether a job was
// claimed; a false return with a nil error means the queue was empty.
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	now := workerNow()
	job, err := w.repomanager.Jobs(w.db).ClaimNext(ctx, w.id, now.Add(-w.opts.VisibilityTimeout))
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}

	w.process(ctx, job)
	return true, nil
}

func (w *Worker) process(ctx context.Context, job *models.NotificationJob) {
	jobsRepo := w.repomanager.Jobs(w.db)

	err := w.deliver(ctx, job.Payload)
	if err == nil {
		if cerr := jobsRepo.Complete(ctx, job.ID, w.id); cerr != nil {
			// Another worker reclaimed the job past the visibility timeout.
			// The delivery already converged via the registry, so just log.
			w.logger.Warn(ctx, "completed job was not ours anymore", "job_id", job.ID, "error", cerr)
			return
		}
		metrics.JobsTotal.WithLabelValues("done").Inc()
		w.logger.Info(ctx, "job done", "job_id", job.ID, "subject_id", job.Payload.SubjectID)
		return
	}

	retryable := job.RetryCount < w.opts.MaxRetries
	if ferr := jobsRepo.Fail(ctx, job.ID, w.id, retryable); ferr != nil {
		w.logger.Warn(ctx, "failed job was not ours anymore", "job_id", job.ID, "error", ferr)
		return
	}
	if retryable {
		metrics.JobsTotal.WithLabelValues("retried").Inc()
		w.logger.Warn(ctx, "job released for retry",
			"job_id", job.ID, "retry_count", job.RetryCount, "error", err)
		return
	}
	metrics.JobsTotal.WithLabelValues("failed").Inc()
	w.logger.Error(ctx, "job terminally failed",
		"job_id", job.ID, "retry_count", job.RetryCount, "error", err)
}

// deliver pushes the alert to every destination the limiter admits. Skipped
// destinations are dropped, not deferred: a live alert delayed past the
// window is noise. The push is retried with fibonacci backoff while any
// admitted destination keeps failing.
func (w *Worker) deliver(ctx context.Context, payload models.LivePayload) error {
	admitted := make([]int64, 0, len(payload.Destinations))
	now := workerNow()
	for _, dest := range payload.Destinations {
		if w.limiter != nil && !w.limiter.Allow(dest, "message", now) {
			metrics.RateLimitDenialsTotal.WithLabelValues("message").Inc()
			w.logger.Warn(ctx, "destination throttled, dropping alert",
				"subject_id", payload.SubjectID, "destination_id", dest)
			continue
		}
		admitted = append(admitted, dest)
	}
	if len(admitted) == 0 {
		return nil
	}

	pending := admitted
	backoff := retry.WithMaxRetries(3, retry.NewFibonacci(500*time.Millisecond))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		results := w.deliverer.DeliverLive(ctx, payload.SubjectID, pending, func(dest int64) string {
			return w.render(payload, dest)
		})

		var failed []int64
		for _, res := range results {
			if res.Failed() {
				failed = append(failed, res.DestinationID)
			}
		}
		if len(failed) == 0 {
			return nil
		}
		// Only the destinations that failed are retried; delivered ones are
		// tracked in the registry and must not be pushed again.
		pending = failed
		return retry.RetryableError(fmt.Errorf("delivery failed for %d of %d destinations", len(failed), len(results)))
	})
}

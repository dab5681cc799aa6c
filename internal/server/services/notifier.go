// This file implements the notification superseder: delivering a live alert
// retires the previously delivered message for the same (subject,
// destination) pair, best-effort, and the registry always tracks the latest
// attempt.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/livebell/engine/internal/common"
	"github.com/livebell/engine/internal/logging"
	"github.com/livebell/engine/internal/server/metrics"
	"github.com/livebell/engine/internal/server/models"
	"github.com/livebell/engine/internal/server/repositories/notifications"
	"github.com/livebell/engine/internal/server/repositories/repomanager"
)

// Transport is the external push-delivery capability. Send returns an opaque
// handle usable for a later Delete; both may fail independently.
type Transport interface {
	Send(ctx context.Context, destinationID int64, content string) (handle string, err error)
	Delete(ctx context.Context, destinationID int64, handle string) error
}

// DeliveryStatus classifies one destination's outcome of DeliverLive.
type DeliveryStatus string

const (
	// Delivered: the new message is out and tracked.
	Delivered DeliveryStatus = "delivered"

	// DeliveredSupersedeFailed: the new message is out and tracked, but the
	// prior message could not be retired and may remain visible.
	DeliveredSupersedeFailed DeliveryStatus = "delivered_supersede_failed"

	// DeliveryFailed: the transport rejected the send; the registry keeps
	// the prior handle.
	DeliveryFailed DeliveryStatus = "delivery_failed"
)

// DeliveryResult is the per-destination outcome of a DeliverLive call.
type DeliveryResult struct {
	DestinationID int64
	Status        DeliveryStatus
	Handle        string
	Err           error
}

// Failed reports whether the new message did not go out.
func (r DeliveryResult) Failed() bool {
	return r.Status == DeliveryFailed
}

// Notifier delivers live alerts with the at-most-one-outstanding-message
// invariant per (subject, destination).
type Notifier struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	transport   Transport
	retention   time.Duration
	logger      logging.Logger
}

// notifierNow is a seam for tests.
var notifierNow = time.Now

// NewNotifier constructs a Notifier. retention bounds how long a delivered
// handle stays tracked: past it the transport refuses deletion, so the row
// is swept instead.
func NewNotifier(db *sql.DB, m repomanager.RepositoryManager, t Transport, retention time.Duration, logger logging.Logger) *Notifier {
	return &Notifier{
		db:          db,
		repomanager: m,
		transport:   t,
		retention:   retention,
		logger:      logger.With("module", "notifier"),
	}
}

// DeliverLive delivers the rendered alert for subjectID to each destination.
// Per destination: the previously tracked message is retired best-effort
// (a failed retire is logged and never blocks the send), the new message is
// sent, and on send success the registry row is upserted regardless of the
// retire outcome. Destinations are independent; one failure does not stop
// the others.
func (s *Notifier) DeliverLive(ctx context.Context, subjectID int64, destinations []int64, render func(destinationID int64) string) []DeliveryResult {
	repo := s.repomanager.Notifications(s.db)
	results := make([]DeliveryResult, 0, len(destinations))

	for _, dest := range destinations {
		results = append(results, s.deliverOne(ctx, repo, subjectID, dest, render(dest)))
	}
	return results
}

func (s *Notifier) deliverOne(ctx context.Context, repo notifications.Repository, subjectID, dest int64, content string) DeliveryResult {
	res := DeliveryResult{DestinationID: dest, Status: Delivered}

	prior, err := repo.Get(ctx, subjectID, dest)
	if err != nil && !errors.Is(err, common.ErrorNotFound) {
		s.logger.Error(ctx, "registry read failed",
			"subject_id", subjectID, "destination_id", dest, "error", err)
		// Proceed without a prior handle: delivery must not depend on cleanup.
		prior = nil
	}

	if prior != nil {
		if err := s.transport.Delete(ctx, dest, prior.MessageHandle); err != nil {
			metrics.SupersedeFailuresTotal.Inc()
			s.logger.Warn(ctx, "failed to retire prior message",
				"subject_id", subjectID, "destination_id", dest,
				"handle", prior.MessageHandle, "error", err)
			res.Status = DeliveredSupersedeFailed
			res.Err = common.ErrSupersedeFailed
		}
	}

	handle, err := s.transport.Send(ctx, dest, content)
	if err != nil {
		metrics.DeliveriesTotal.WithLabelValues(string(DeliveryFailed)).Inc()
		s.logger.Error(ctx, "delivery failed",
			"subject_id", subjectID, "destination_id", dest, "error", err)
		return DeliveryResult{
			DestinationID: dest,
			Status:        DeliveryFailed,
			Err:           fmt.Errorf("%w: %w", common.ErrDeliveryFailed, err),
		}
	}
	res.Handle = handle

	state := &models.NotificationState{
		SubjectID:     subjectID,
		DestinationID: dest,
		MessageHandle: handle,
		DeliveredAt:   notifierNow().UTC(),
	}
	if err := repo.Upsert(ctx, state); err != nil {
		// The message is out; losing the handle only means the next delivery
		// cannot retire it. Do not fail the delivery.
		s.logger.Error(ctx, "registry upsert failed",
			"subject_id", subjectID, "destination_id", dest, "error", err)
		res.Err = err
	}

	metrics.DeliveriesTotal.WithLabelValues(string(res.Status)).Inc()
	return res
}

// SweepExpired drops registry rows older than the retention window. Their
// handles can no longer be retired by the transport.
func (s *Notifier) SweepExpired(ctx context.Context, now time.Time) error {
	n, err := s.repomanager.Notifications(s.db).DeleteOlderThan(ctx, now.Add(-s.retention))
	if err != nil {
		return err
	}
	if n > 0 {
		metrics.RegistryRowsSweptTotal.Add(float64(n))
		s.logger.Info(ctx, "swept expired registry rows", "rows", n)
	}
	return nil
}

// RunSweeper sweeps on the given cadence until ctx is cancelled.
func (s *Notifier) RunSweeper(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if err := s.SweepExpired(ctx, now); err != nil {
				s.logger.Error(ctx, "registry sweep failed", "error", err)
			}
		}
	}
}

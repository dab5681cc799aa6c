// This file implements payment validation: an incoming charge is checked
// against the immutable price catalog before it may touch entitlement data.
package services

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/livebell/engine/internal/common"
	"github.com/livebell/engine/internal/dbx"
	"github.com/livebell/engine/internal/logging"
	"github.com/livebell/engine/internal/server/catalog"
	"github.com/livebell/engine/internal/server/metrics"
	"github.com/livebell/engine/internal/server/models"
	"github.com/livebell/engine/internal/server/repositories/repomanager"
)

// ChargeResult is the outcome of validating and committing a charge.
type ChargeResult string

const (
	// ChargeAccepted: the record was appended and any points credited, in
	// one atomic unit.
	ChargeAccepted ChargeResult = "accepted"

	// ChargeDuplicate: the external reference was already recorded. Replays
	// are an idempotent no-op, never a second credit.
	ChargeDuplicate ChargeResult = "duplicate"

	// ChargeRejected: the charge failed validation; nothing was written.
	ChargeRejected ChargeResult = "rejected"

	// ChargeFailed: the store was unavailable before a verdict was reached.
	// The charge itself may be valid; the caller retries the whole call.
	ChargeFailed ChargeResult = "failed"
)

// Payments validates incoming payment claims and commits accepted ones.
type Payments struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	catalog     *catalog.Catalog
	logger      logging.Logger
}

// paymentsNow is a seam for tests.
var paymentsNow = time.Now

// NewPayments constructs the payment validator.
func NewPayments(db *sql.DB, m repomanager.RepositoryManager, c *catalog.Catalog, logger logging.Logger) *Payments {
	return &Payments{
		db:          db,
		repomanager: m,
		catalog:     c,
		logger:      logger.With("module", "payments"),
	}
}

// Process validates charge against the catalog and, when accepted, appends
// the completed PaymentRecord and credits any package points in the same
// atomic unit. A rejected charge returns ChargeRejected together with the
// sentinel describing why (common.ErrUnknownPackage, common.ErrAmountMismatch).
// A replayed external reference returns ChargeDuplicate with a nil error.
// Store unavailability returns ChargeFailed with an error matching
// common.ErrTransientStore; no verdict was reached and the caller may retry.
func (s *Payments) Process(ctx context.Context, charge models.Charge) (ChargeResult, error) {
	pkg, err := s.catalog.Lookup(charge.Package)
	if err != nil {
		metrics.PaymentsTotal.WithLabelValues(string(ChargeRejected)).Inc()
		s.logger.Warn(ctx, "charge for unknown package",
			"account_id", charge.AccountID, "package", charge.Package, "external_ref", charge.ExternalRef)
		return ChargeRejected, err
	}

	// Exact match only. Overpayment is as suspicious as underpayment and is
	// never silently accepted.
	if charge.Amount != pkg.Amount {
		metrics.PaymentsTotal.WithLabelValues(string(ChargeRejected)).Inc()
		s.logger.Warn(ctx, "charge amount mismatch",
			"account_id", charge.AccountID, "package", charge.Package,
			"want", pkg.Amount, "got", charge.Amount, "external_ref", charge.ExternalRef)
		return ChargeRejected, common.ErrAmountMismatch
	}

	if _, err := s.repomanager.Payments(s.db).FindByExternalRef(ctx, charge.ExternalRef); err == nil {
		metrics.PaymentsTotal.WithLabelValues(string(ChargeDuplicate)).Inc()
		return ChargeDuplicate, nil
	} else if !errors.Is(err, common.ErrorNotFound) {
		metrics.PaymentsTotal.WithLabelValues(string(ChargeFailed)).Inc()
		return ChargeFailed, err
	}

	rec := &models.PaymentRecord{
		AccountID:   charge.AccountID,
		ExternalRef: charge.ExternalRef,
		Package:     charge.Package,
		Amount:      charge.Amount,
		CompletedAt: sql.NullTime{Time: paymentsNow().UTC(), Valid: true},
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.Payments(tx).InsertCompleted(ctx, rec); err != nil {
			return err
		}
		if pkg.Points > 0 {
			if _, err := s.repomanager.Accounts(tx).AddBalance(ctx, charge.AccountID, pkg.Points); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		// Two validated charges can race on the same reference; the unique
		// constraint decides, and the loser is a duplicate, not a failure.
		if errors.Is(err, common.ErrDuplicatePayment) {
			metrics.PaymentsTotal.WithLabelValues(string(ChargeDuplicate)).Inc()
			return ChargeDuplicate, nil
		}
		metrics.PaymentsTotal.WithLabelValues(string(ChargeFailed)).Inc()
		s.logger.Error(ctx, "charge failed on store error",
			"account_id", charge.AccountID, "external_ref", charge.ExternalRef, "error", err)
		return ChargeFailed, err
	}

	if pkg.Points > 0 {
		metrics.CreditsTotal.WithLabelValues("purchase").Inc()
	}
	metrics.PaymentsTotal.WithLabelValues(string(ChargeAccepted)).Inc()
	s.logger.Info(ctx, "charge accepted",
		"account_id", charge.AccountID, "package", charge.Package, "external_ref", charge.ExternalRef)
	return ChargeAccepted, nil
}

// This file implements entitlement resolution. Premium status is computed
// from completed payment records and the catalog's entitlement durations;
// there is no stored "is premium" flag to drift out of sync.
package services

import (
	"context"
	"database/sql"
	"time"

	"github.com/livebell/engine/internal/logging"
	"github.com/livebell/engine/internal/server/catalog"
	"github.com/livebell/engine/internal/server/repositories/repomanager"
)

// Entitlement derives premium status and point quotas from payment history.
type Entitlement struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	catalog     *catalog.Catalog
	dailyPoints int
	logger      logging.Logger
}

// NewEntitlement constructs the resolver. dailyPoints is the free daily
// allotment and the quota denominator.
func NewEntitlement(db *sql.DB, m repomanager.RepositoryManager, c *catalog.Catalog, dailyPoints int, logger logging.Logger) *Entitlement {
	return &Entitlement{
		db:          db,
		repomanager: m,
		catalog:     c,
		dailyPoints: dailyPoints,
		logger:      logger.With("module", "entitlement"),
	}
}

// IsPremium reports whether any completed premium payment's entitlement
// window [completedAt, completedAt+duration) contains asOf.
func (s *Entitlement) IsPremium(ctx context.Context, accountID int64, asOf time.Time) (bool, error) {
	recs, err := s.repomanager.Payments(s.db).ListCompleted(ctx, accountID)
	if err != nil {
		return false, err
	}

	for _, rec := range recs {
		pkg, err := s.catalog.Lookup(rec.Package)
		if err != nil {
			// A record for a package no longer in the catalog grants nothing.
			s.logger.Warn(ctx, "payment record references unknown package",
				"account_id", accountID, "package", rec.Package)
			continue
		}
		if !pkg.Premium() || !rec.CompletedAt.Valid {
			continue
		}
		start := rec.CompletedAt.Time
		if !asOf.Before(start) && asOf.Before(start.Add(pkg.Duration)) {
			return true, nil
		}
	}
	return false, nil
}

// PremiumUntil returns the end of the furthest active entitlement window at
// asOf. ok is false when the account has no active window.
func (s *Entitlement) PremiumUntil(ctx context.Context, accountID int64, asOf time.Time) (until time.Time, ok bool, err error) {
	recs, err := s.repomanager.Payments(s.db).ListCompleted(ctx, accountID)
	if err != nil {
		return time.Time{}, false, err
	}

	for _, rec := range recs {
		pkg, lerr := s.catalog.Lookup(rec.Package)
		if lerr != nil || !pkg.Premium() || !rec.CompletedAt.Valid {
			continue
		}
		start := rec.CompletedAt.Time
		end := start.Add(pkg.Duration)
		if !asOf.Before(start) && asOf.Before(end) && end.After(until) {
			until, ok = end, true
		}
	}
	return until, ok, nil
}

// DailyAllowance returns the number of free checks an account gets per day.
// Premium accounts are unlimited, reported as a negative value.
func (s *Entitlement) DailyAllowance(premium bool) int {
	if premium {
		return -1
	}
	return s.dailyPoints
}

// QuotaShare returns balance as a fraction of the daily allotment, clamped
// to [0, 1]. A denominator configured to zero (or below) is treated as
// unlimited: the share is a full bar, and no division happens.
func (s *Entitlement) QuotaShare(balance int64) float64 {
	if s.dailyPoints <= 0 {
		return 1
	}
	share := float64(balance) / float64(s.dailyPoints)
	if share < 0 {
		return 0
	}
	if share > 1 {
		return 1
	}
	return share
}

// Package services contains the engine's business logic. This file implements
// the Ledger, which owns every mutation of a subject's point balance.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/livebell/engine/internal/common"
	"github.com/livebell/engine/internal/dbx"
	"github.com/livebell/engine/internal/logging"
	"github.com/livebell/engine/internal/server/metrics"
	"github.com/livebell/engine/internal/server/repositories/repomanager"
)

// Ledger performs atomic point-balance mutations. A spend and the action it
// funds commit together or not at all; the row lock taken by GetForUpdate
// serializes concurrent spends per account, so the balance can never go
// negative.
type Ledger struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	logger      logging.Logger
}

// NewLedger constructs a Ledger using repositories from the manager.
func NewLedger(db *sql.DB, m repomanager.RepositoryManager, logger logging.Logger) *Ledger {
	return &Ledger{
		db:          db,
		repomanager: m,
		logger:      logger.With("module", "ledger"),
	}
}

// Spend debits amount from the account if the balance is sufficient and runs
// action inside the same atomic unit. If action returns an error the whole
// unit rolls back and the balance is untouched. Returns the new balance on
// success, common.ErrInsufficientFunds when the balance is too low, or
// common.ErrAccountNotFound for unknown accounts.
func (s *Ledger) Spend(ctx context.Context, accountID, amount int64, action func(ctx context.Context) error) (int64, error) {
	if amount < 0 {
		return 0, fmt.Errorf("negative spend amount: %d", amount)
	}

	var newBalance int64
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Accounts(tx)

		acc, err := repo.GetForUpdate(ctx, accountID)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return common.ErrAccountNotFound
			}
			return err
		}

		if acc.Balance < amount {
			return common.ErrInsufficientFunds
		}

		// The funded action runs while the row is locked; its failure
		// aborts the debit before anything is observable.
		if action != nil {
			if err := action(ctx); err != nil {
				return fmt.Errorf("funded action: %w", err)
			}
		}

		newBalance, err = repo.AddBalance(ctx, accountID, -amount)
		return err
	})

	switch {
	case err == nil:
		metrics.SpendsTotal.WithLabelValues("ok").Inc()
		return newBalance, nil
	case errors.Is(err, common.ErrInsufficientFunds):
		metrics.SpendsTotal.WithLabelValues("insufficient_funds").Inc()
		return 0, err
	default:
		metrics.SpendsTotal.WithLabelValues("error").Inc()
		s.logger.Error(ctx, "spend failed", "account_id", accountID, "amount", amount, "error", err)
		return 0, err
	}
}

// Credit unconditionally adds amount to the account balance. Used for
// purchases, refunds, and referral bonuses; fails only when the store is
// unavailable or the account does not exist.
func (s *Ledger) Credit(ctx context.Context, accountID, amount int64, reason string) (int64, error) {
	if amount < 0 {
		return 0, fmt.Errorf("negative credit amount: %d", amount)
	}

	repo := s.repomanager.Accounts(s.db)
	newBalance, err := repo.AddBalance(ctx, accountID, amount)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return 0, common.ErrAccountNotFound
		}
		return 0, err
	}

	metrics.CreditsTotal.WithLabelValues(reason).Inc()
	s.logger.Info(ctx, "credited points", "account_id", accountID, "amount", amount, "reason", reason)
	return newBalance, nil
}

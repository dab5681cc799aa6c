package repomanager

import (
	"context"
	"database/sql"

	"github.com/livebell/engine/internal/dbx"
	"github.com/livebell/engine/internal/server/repositories/accounts"
	"github.com/livebell/engine/internal/server/repositories/jobs"
	"github.com/livebell/engine/internal/server/repositories/notifications"
	"github.com/livebell/engine/internal/server/repositories/payments"
)

// RepositoryManager vends repositories bound to a concrete DBTX so services
// can re-bind them to a transaction handle inside an atomic unit.
type RepositoryManager interface {
	RunMigrations(ctx context.Context, db *sql.DB) error
	Accounts(db dbx.DBTX) accounts.Repository
	Payments(db dbx.DBTX) payments.Repository
	Notifications(db dbx.DBTX) notifications.Repository
	Jobs(db dbx.DBTX) jobs.Repository
}

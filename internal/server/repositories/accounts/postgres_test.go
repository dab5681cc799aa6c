package accounts

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/livebell/engine/internal/common"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

func accountRow(id, balance int64) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "balance", "created_at"}).
		AddRow(id, balance, time.Now())
}

func TestGet_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT id, balance, created_at FROM accounts\s+WHERE id = \$1`).
		WithArgs(int64(7)).
		WillReturnRows(accountRow(7, 42))

	acc, err := repo.Get(context.Background(), 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if acc.Balance != 42 {
		t.Fatalf("want balance 42, got %d", acc.Balance)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGet_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT id, balance, created_at FROM accounts`).
		WithArgs(int64(7)).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.Get(context.Background(), 7)
	if !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want ErrorNotFound, got %v", err)
	}
}

func TestGetForUpdate_LocksRow(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := regexp.MustCompile(`SELECT id, balance, created_at FROM accounts\s+WHERE id = \$1\s+FOR UPDATE`)
	mock.ExpectQuery(q.String()).
		WithArgs(int64(7)).
		WillReturnRows(accountRow(7, 3))

	acc, err := repo.GetForUpdate(context.Background(), 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if acc.ID != 7 {
		t.Fatalf("want id 7, got %d", acc.ID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAddBalance_ReturnsNewBalance(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`UPDATE accounts SET balance = balance \+ \$1\s+WHERE id = \$2\s+RETURNING balance`).
		WithArgs(int64(-1), int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(int64(2)))

	balance, err := repo.AddBalance(context.Background(), 7, -1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if balance != 2 {
		t.Fatalf("want balance 2, got %d", balance)
	}
}

func TestAddBalance_MissingAccount(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`UPDATE accounts SET balance = balance \+ \$1`).
		WithArgs(int64(5), int64(404)).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.AddBalance(context.Background(), 404, 5)
	if !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want ErrorNotFound, got %v", err)
	}
}

func TestAddBalance_DriverErrorIsTransient(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`UPDATE accounts SET balance = balance \+ \$1`).
		WithArgs(int64(5), int64(7)).
		WillReturnError(errors.New("connection reset by peer"))

	_, err := repo.AddBalance(context.Background(), 7, 5)
	if !errors.Is(err, common.ErrTransientStore) {
		t.Fatalf("driver errors must be retryable, got %v", err)
	}
}

func TestCreate_Idempotent(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO accounts \(id, balance\)\s+VALUES \(\$1, 0\)\s+ON CONFLICT \(id\) DO NOTHING`).
		WithArgs(int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT id, balance, created_at FROM accounts`).
		WithArgs(int64(7)).
		WillReturnRows(accountRow(7, 10))

	acc, err := repo.Create(context.Background(), 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if acc.Balance != 10 {
		t.Fatalf("existing balance must survive create, got %d", acc.Balance)
	}
}

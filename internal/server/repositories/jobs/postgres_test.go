package jobs

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/livebell/engine/internal/common"
	"github.com/livebell/engine/internal/server/models"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

func TestEnqueue(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO notification_jobs \(id, payload, status\)`).
		WithArgs("j1", []byte(`{"subject_id":9,"subject_name":"streamer","destinations":[1,2]}`), string(models.JobPending)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	job := &models.NotificationJob{
		ID: "j1",
		Payload: models.LivePayload{
			SubjectID:    9,
			SubjectName:  "streamer",
			Destinations: []int64{1, 2},
		},
	}
	if err := repo.Enqueue(context.Background(), job); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job.Status != models.JobPending {
		t.Fatalf("want pending, got %s", job.Status)
	}
}

func TestClaimNext_ReturnsJob(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	reclaimBefore := now.Add(-time.Minute)
	rows := sqlmock.NewRows([]string{"id", "payload", "status", "retry_count", "claimed_by", "created_at", "updated_at"}).
		AddRow("j1", []byte(`{"subject_id":9,"destinations":[1]}`), string(models.JobInProgress), 0, "w1", now, now)

	mock.ExpectQuery(`UPDATE notification_jobs\s+SET status = \$1, claimed_by = \$2, claimed_at = now\(\).*FOR UPDATE SKIP LOCKED`).
		WithArgs(string(models.JobInProgress), "w1", string(models.JobPending), reclaimBefore).
		WillReturnRows(rows)

	job, err := repo.ClaimNext(context.Background(), "w1", reclaimBefore)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job == nil || job.ID != "j1" {
		t.Fatalf("want job j1, got %+v", job)
	}
	if job.Payload.SubjectID != 9 || len(job.Payload.Destinations) != 1 {
		t.Fatalf("payload not decoded: %+v", job.Payload)
	}
}

func TestClaimNext_EmptyQueue(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`UPDATE notification_jobs`).
		WillReturnError(sql.ErrNoRows)

	job, err := repo.ClaimNext(context.Background(), "w1", time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job != nil {
		t.Fatalf("want nil job, got %+v", job)
	}
}

func TestComplete_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`UPDATE notification_jobs\s+SET status = \$1, updated_at = now\(\)\s+WHERE id = \$2 AND status = \$3 AND claimed_by = \$4`).
		WithArgs(string(models.JobDone), "j1", string(models.JobInProgress), "w1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Complete(context.Background(), "j1", "w1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestComplete_NotClaimed(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`UPDATE notification_jobs`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Complete(context.Background(), "j1", "w1")
	if !errors.Is(err, common.ErrJobNotClaimed) {
		t.Fatalf("want ErrJobNotClaimed, got %v", err)
	}
}

func TestComplete_ReclaimedByAnotherWorker(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	// The row is in progress but claimed_by is now w2: the stale worker's
	// settle must not touch it.
	mock.ExpectExec(`UPDATE notification_jobs\s+SET status = \$1, updated_at = now\(\)\s+WHERE id = \$2 AND status = \$3 AND claimed_by = \$4`).
		WithArgs(string(models.JobDone), "j1", string(models.JobInProgress), "w1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Complete(context.Background(), "j1", "w1")
	if !errors.Is(err, common.ErrJobNotClaimed) {
		t.Fatalf("want ErrJobNotClaimed for a reclaimed job, got %v", err)
	}
}

func TestFail_WithRetryRequeues(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`UPDATE notification_jobs\s+SET status = \$1, retry_count = retry_count \+ 1.*claimed_by = \$4`).
		WithArgs(string(models.JobPending), "j1", string(models.JobInProgress), "w1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Fail(context.Background(), "j1", "w1", true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestFail_TerminalAfterRetryBudget(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`UPDATE notification_jobs\s+SET status = \$1, updated_at = now\(\)\s+WHERE id = \$2 AND status = \$3 AND claimed_by = \$4`).
		WithArgs(string(models.JobFailed), "j1", string(models.JobInProgress), "w1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Fail(context.Background(), "j1", "w1", false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestFail_ReclaimedByAnotherWorker(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`UPDATE notification_jobs`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Fail(context.Background(), "j1", "w1", false)
	if !errors.Is(err, common.ErrJobNotClaimed) {
		t.Fatalf("a stale worker must not terminally fail a reclaimed job, got %v", err)
	}
}

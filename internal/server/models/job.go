package models

import "time"

type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobInProgress JobStatus = "in_progress"
	JobDone       JobStatus = "done"
	JobFailed     JobStatus = "failed"
)

// LivePayload is the flat job payload created when a subject flips to live.
// Payloads are idempotent: processing the same payload twice is safe because
// the notifier's registry upsert is keyed per (subject, destination).
type LivePayload struct {
	SubjectID    int64   `json:"subject_id"`
	SubjectName  string  `json:"subject_name"`
	Destinations []int64 `json:"destinations"`
}

// NotificationJob is a durable queue entry consumed at-least-once by workers.
type NotificationJob struct {
	ID         string
	Payload    LivePayload
	Status     JobStatus
	RetryCount int
	ClaimedBy  string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

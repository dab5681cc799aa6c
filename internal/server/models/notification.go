package models

import "time"

// NotificationState tracks the most recently delivered alert per
// (subject, destination). The composite primary key guarantees a single live
// row per pair; a new delivery supersedes the handle stored here.
type NotificationState struct {
	SubjectID     int64
	DestinationID int64
	MessageHandle string
	DeliveredAt   time.Time
}

package model

import "time"

// FileCleanupJob asks the cleanup worker to delete a stored file that no
// thesis record will ever reference.
type FileCleanupJob struct {
	Key         string    `json:"key"`
	Reason      string    `json:"reason"`
	RequestedAt time.Time `json:"requested_at"`
}

// models/cleanup_task.go
package models

import "time"

type CleanupKind string

const (
	// CleanupReconcileMembership re-derives one (team, user) pair from the team document.
	CleanupReconcileMembership CleanupKind = "reconcile_membership"
	// CleanupDeleteRequest removes a join request row that should no longer be pending.
	CleanupDeleteRequest CleanupKind = "delete_request"
	// CleanupCompleteMembership re-applies the document writes of an accepted request.
	CleanupCompleteMembership CleanupKind = "complete_membership"
)

// CleanupTask is a compensating action recorded after a partially applied write sequence.
type CleanupTask struct {
	Kind      CleanupKind `json:"kind"`
	TeamID    string      `json:"team_id"`
	UserID    string      `json:"user_id,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
	Attempts  int         `json:"attempts"`
	LastError string      `json:"last_error,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}

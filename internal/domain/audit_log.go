package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Audit actions written by the import pipeline and the reconciliation engine.
const (
	AuditActionImportCompleted   = "import.completed"
	AuditActionImportFailed      = "import.failed"
	AuditActionVoterMerged       = "voter.merged"
	AuditActionAlertStatusChange = "merge_alert.status_changed"
)

// AuditLogEntry is an append-only record of a state change worth reviewing later.
type AuditLogEntry struct {
	ID             uuid.UUID       `json:"id"`
	OrganizationID uuid.UUID       `json:"organization_id"`
	UserID         *uuid.UUID      `json:"user_id,omitempty"`
	Action         string          `json:"action"`
	Resource       string          `json:"resource"`
	ResourceID     uuid.UUID       `json:"resource_id"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

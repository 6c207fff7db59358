package domain

import (
	"time"

	"github.com/google/uuid"
)

// MergeAlertStatus captures the review state of a duplicate candidate.
type MergeAlertStatus string

const (
	MergeAlertStatusOpen      MergeAlertStatus = "open"
	MergeAlertStatusResolved  MergeAlertStatus = "resolved"
	MergeAlertStatusDismissed MergeAlertStatus = "dismissed"
)

// Valid reports whether the status is one of the known values.
func (s MergeAlertStatus) Valid() bool {
	switch s {
	case MergeAlertStatusOpen, MergeAlertStatusResolved, MergeAlertStatusDismissed:
		return true
	}
	return false
}

// Terminal reports whether the alert can no longer change status.
func (s MergeAlertStatus) Terminal() bool {
	return s == MergeAlertStatusResolved || s == MergeAlertStatusDismissed
}

// MergeAlertReason explains why a pair was flagged.
type MergeAlertReason string

const (
	MergeAlertReasonPhoneMatch MergeAlertReason = "phone_match"
)

// MergeAlert pairs one manual lead with one imported voter in the same tenant.
type MergeAlert struct {
	ID              uuid.UUID        `json:"id"`
	OrganizationID  uuid.UUID        `json:"organization_id"`
	LeadVoterID     uuid.UUID        `json:"lead_voter_id"`
	ImportedVoterID uuid.UUID        `json:"imported_voter_id"`
	Reason          MergeAlertReason `json:"reason"`
	Status          MergeAlertStatus `json:"status"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// NewMergeAlert builds an open alert for the pair.
func NewMergeAlert(organizationID, leadID, importedID uuid.UUID, reason MergeAlertReason) MergeAlert {
	now := time.Now()
	return MergeAlert{
		ID:              uuid.New(),
		OrganizationID:  organizationID,
		LeadVoterID:     leadID,
		ImportedVoterID: importedID,
		Reason:          reason,
		Status:          MergeAlertStatusOpen,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

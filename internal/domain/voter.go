package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// VoterSource records how a voter entered the system. It never changes after creation.
type VoterSource string

const (
	VoterSourceImport VoterSource = "import"
	VoterSourceManual VoterSource = "manual"
)

// Valid reports whether the source is one of the known values.
func (s VoterSource) Valid() bool {
	return s == VoterSourceImport || s == VoterSourceManual
}

// Voter is a person record scoped to a tenant.
type Voter struct {
	ID                uuid.UUID   `json:"id"`
	OrganizationID    uuid.UUID   `json:"organization_id"`
	ExternalID        *string     `json:"external_id,omitempty"`
	Source            VoterSource `json:"source"`
	MergedIntoVoterID *uuid.UUID  `json:"merged_into_voter_id,omitempty"`

	FirstName  string  `json:"first_name"`
	MiddleName *string `json:"middle_name,omitempty"`
	LastName   string  `json:"last_name"`
	Suffix     *string `json:"suffix,omitempty"`

	Age    *int    `json:"age,omitempty"`
	Gender *string `json:"gender,omitempty"`
	Race   *string `json:"race,omitempty"`
	Party  *string `json:"party,omitempty"`

	Phone *string `json:"phone,omitempty"`
	Email *string `json:"email,omitempty"`

	Address string  `json:"address"`
	Unit    *string `json:"unit,omitempty"`
	City    string  `json:"city"`
	State   string  `json:"state"`
	Zip     string  `json:"zip"`

	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsMerged reports whether the voter has been reconciled into another voter.
func (v Voter) IsMerged() bool {
	return v.MergedIntoVoterID != nil && *v.MergedIntoVoterID != uuid.Nil
}

// PhoneValue returns the trimmed phone number, or "" when none is set.
func (v Voter) PhoneValue() string {
	if v.Phone == nil {
		return ""
	}
	return strings.TrimSpace(*v.Phone)
}

// VoterFilter narrows voter listings. Zero values mean "no constraint".
type VoterFilter struct {
	Search        string
	Source        VoterSource
	Phone         string
	IncludeMerged bool
}

// StringPtr returns nil for blank strings and a pointer to the trimmed value otherwise.
func StringPtr(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

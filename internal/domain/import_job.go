package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ImportJobType enumerates supported import job types.
type ImportJobType string

const (
	ImportJobTypeVoters ImportJobType = "voter_import"
)

// ImportJobStatus captures lifecycle state for an import job.
type ImportJobStatus string

const (
	ImportJobStatusPending    ImportJobStatus = "pending"
	ImportJobStatusProcessing ImportJobStatus = "processing"
	ImportJobStatusCompleted  ImportJobStatus = "completed"
	ImportJobStatusFailed     ImportJobStatus = "failed"
)

// Terminal reports whether no further transition is allowed out of the status.
func (s ImportJobStatus) Terminal() bool {
	return s == ImportJobStatusCompleted || s == ImportJobStatusFailed
}

// Valid reports whether the status is one of the known values.
func (s ImportJobStatus) Valid() bool {
	switch s {
	case ImportJobStatusPending, ImportJobStatusProcessing, ImportJobStatusCompleted, ImportJobStatusFailed:
		return true
	}
	return false
}

// Import phases written into job metadata while a job runs.
const (
	ImportPhaseQueued      = "queued"
	ImportPhaseDownloading = "downloading"
	ImportPhaseConverting  = "converting"
	ImportPhaseParsing     = "parsing"
	ImportPhaseImporting   = "importing"
	ImportPhaseDone        = "done"
)

// ImportJob mirrors one execution of the import pipeline.
type ImportJob struct {
	ID             uuid.UUID         `json:"id"`
	OrganizationID uuid.UUID         `json:"organization_id"`
	UserID         uuid.UUID         `json:"user_id"`
	Type           ImportJobType     `json:"type"`
	Status         ImportJobStatus   `json:"status"`
	FileKey        *string           `json:"file_key,omitempty"`
	Metadata       ImportJobMetadata `json:"metadata"`
	Result         *ImportResult     `json:"result,omitempty"`
	Error          *string           `json:"error,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	StartedAt      *time.Time        `json:"started_at,omitempty"`
	CompletedAt    *time.Time        `json:"completed_at,omitempty"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// ImportJobMetadata is the jsonb document holding progress and duplicate-file hints.
type ImportJobMetadata struct {
	Phase          string           `json:"phase,omitempty"`
	RowsProcessed  int              `json:"rowsProcessed"`
	TotalRows      int              `json:"totalRows"`
	FileName       string           `json:"fileName,omitempty"`
	FileHash       string           `json:"fileHash,omitempty"`
	IgnoredColumns []string         `json:"ignoredColumns,omitempty"`
	DuplicateOf    *DuplicateJobRef `json:"duplicateOf,omitempty"`
}

// ImportProgress is the subset of metadata rewritten at each checkpoint.
type ImportProgress struct {
	Phase         string `json:"phase"`
	RowsProcessed int    `json:"rowsProcessed"`
	TotalRows     int    `json:"totalRows"`
}

// ImportFileInfo is merged into metadata once a stored file has been read.
type ImportFileInfo struct {
	FileHash       string           `json:"fileHash,omitempty"`
	IgnoredColumns []string         `json:"ignoredColumns,omitempty"`
	DuplicateOf    *DuplicateJobRef `json:"duplicateOf,omitempty"`
}

// DuplicateJobRef points at an earlier job that imported byte-identical content.
type DuplicateJobRef struct {
	JobID     uuid.UUID       `json:"jobId"`
	Status    ImportJobStatus `json:"status"`
	CreatedAt time.Time       `json:"createdAt"`
}

// ImportResult summarises a completed import.
type ImportResult struct {
	ImportedCount            int `json:"importedCount"`
	InsertedCount            int `json:"insertedCount"`
	UpdatedCount             int `json:"updatedCount"`
	SkippedMissingExternalID int `json:"skippedMissingExternalId"`
	TotalRows                int `json:"totalRows"`

	SkippedRows []ImportRowIssue `json:"skippedRows,omitempty"`
}

// MetadataToJSON marshals metadata into the jsonb layout stored in Postgres.
func (j ImportJob) MetadataToJSON() (json.RawMessage, error) {
	return json.Marshal(j.Metadata)
}

// ImportJobMetadataFromJSON hydrates persisted metadata.
func ImportJobMetadataFromJSON(data []byte) (ImportJobMetadata, error) {
	var metadata ImportJobMetadata
	if len(data) == 0 {
		return metadata, nil
	}
	if err := json.Unmarshal(data, &metadata); err != nil {
		return ImportJobMetadata{}, err
	}
	return metadata, nil
}

// ImportResultFromJSON hydrates a persisted result, returning nil for empty input.
func ImportResultFromJSON(data []byte) (*ImportResult, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}
	var result ImportResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

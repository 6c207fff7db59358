package repository

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/rpattn/canvass/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrImportJobStatusConflict indicates a conditional status transition found
// the job in a different state than required.
var ErrImportJobStatusConflict = errors.New("import job status conflict")

// DBTX is satisfied by *pgxpool.Pool and pgx.Tx so repositories run the same
// statements inside or outside a transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// OrganizationRepository defines the interface for organization operations
type OrganizationRepository interface {
	Create(ctx context.Context, org domain.Organization) (domain.Organization, error)
	GetByID(ctx context.Context, id uuid.UUID) (domain.Organization, error)
	GetByName(ctx context.Context, name string) (domain.Organization, error)
	List(ctx context.Context) ([]domain.Organization, error)
}

// VoterRepository defines tenant-scoped voter persistence.
type VoterRepository interface {
	// UpsertImported inserts or overwrites the voter keyed by (organization, external id).
	// The boolean reports whether a new row was inserted.
	UpsertImported(ctx context.Context, voter domain.Voter) (domain.Voter, bool, error)
	CreateManual(ctx context.Context, voter domain.Voter) (domain.Voter, error)
	// Update writes contact and demographic fields. Source and merge pointer are never written.
	Update(ctx context.Context, voter domain.Voter) (domain.Voter, error)
	GetByID(ctx context.Context, organizationID, id uuid.UUID) (domain.Voter, error)
	GetByIDForUpdate(ctx context.Context, organizationID, id uuid.UUID) (domain.Voter, error)
	GetByIDs(ctx context.Context, organizationID uuid.UUID, ids []uuid.UUID) ([]domain.Voter, error)
	List(ctx context.Context, organizationID uuid.UUID, filter domain.VoterFilter, limit int, offset int) ([]domain.Voter, int, error)
	ListImportedByPhone(ctx context.Context, organizationID uuid.UUID, phone string) ([]domain.Voter, error)
	MarkMerged(ctx context.Context, organizationID, id, targetID uuid.UUID) error
}

// ImportJobRepository persists import job lifecycle state.
type ImportJobRepository interface {
	Create(ctx context.Context, job domain.ImportJob) (domain.ImportJob, error)
	GetByID(ctx context.Context, organizationID, id uuid.UUID) (domain.ImportJob, error)
	List(ctx context.Context, organizationID uuid.UUID, status *domain.ImportJobStatus, limit int, offset int) ([]domain.ImportJob, error)
	// MarkProcessing moves a pending job to processing. Any other state yields ErrImportJobStatusConflict.
	MarkProcessing(ctx context.Context, organizationID, id uuid.UUID) (domain.ImportJob, error)
	UpdateProgress(ctx context.Context, organizationID, id uuid.UUID, progress domain.ImportProgress) error
	RecordFileInfo(ctx context.Context, organizationID, id uuid.UUID, info domain.ImportFileInfo) error
	MarkCompleted(ctx context.Context, organizationID, id uuid.UUID, result domain.ImportResult) error
	MarkFailed(ctx context.Context, organizationID, id uuid.UUID, message string) error
	// FindLatestByFileHash returns the most recent other job with the same content hash, or nil.
	FindLatestByFileHash(ctx context.Context, organizationID uuid.UUID, jobType domain.ImportJobType, hash string, excludeID uuid.UUID) (*domain.ImportJob, error)
}

// MergeAlertRepository persists duplicate candidates.
type MergeAlertRepository interface {
	// CreateIfAbsent inserts the alert unless the pair already has one. The boolean reports insertion.
	CreateIfAbsent(ctx context.Context, alert domain.MergeAlert) (bool, error)
	GetByID(ctx context.Context, organizationID, id uuid.UUID) (domain.MergeAlert, error)
	List(ctx context.Context, organizationID uuid.UUID, status *domain.MergeAlertStatus, limit int, offset int) ([]domain.MergeAlert, error)
	// UpdateStatus transitions the alert only when it currently holds from. The boolean reports a match.
	UpdateStatus(ctx context.Context, organizationID, id uuid.UUID, from, to domain.MergeAlertStatus) (domain.MergeAlert, bool, error)
	ResolvePair(ctx context.Context, organizationID, leadID, importedID uuid.UUID) (int64, error)
}

// InteractionRepository covers the interaction rewiring done by merges.
type InteractionRepository interface {
	ReassignVoter(ctx context.Context, organizationID, fromVoterID, toVoterID uuid.UUID) ([]uuid.UUID, error)
}

// ListMemberRepository covers the list membership rewiring done by merges.
type ListMemberRepository interface {
	// ReassignVoter moves memberships to toVoterID. Memberships whose list already
	// contains toVoterID are deleted and returned as dropped.
	ReassignVoter(ctx context.Context, organizationID, fromVoterID, toVoterID uuid.UUID) (moved []uuid.UUID, dropped []uuid.UUID, err error)
}

// AuditLogRepository stores state changes for later review.
type AuditLogRepository interface {
	Record(ctx context.Context, entry domain.AuditLogEntry) error
	List(ctx context.Context, organizationID uuid.UUID, resource string, resourceID *uuid.UUID, limit int, offset int) ([]domain.AuditLogEntry, error)
}

// JobQueue enqueues background work on the same connection as the repositories
// it is bundled with.
type JobQueue interface {
	Enqueue(ctx context.Context, jobName string, tenantID uuid.UUID, payload json.RawMessage) (uuid.UUID, error)
}

// Repositories bundles every repository bound to one connection or transaction.
type Repositories struct {
	Organizations OrganizationRepository
	Voters        VoterRepository
	ImportJobs    ImportJobRepository
	MergeAlerts   MergeAlertRepository
	Interactions  InteractionRepository
	ListMembers   ListMemberRepository
	AuditLogs     AuditLogRepository
	Queue         JobQueue
}

// Store hands out repositories and runs units of work atomically.
type Store interface {
	Repos() Repositories
	// WithTx runs fn against repositories bound to a single transaction. A
	// returned error rolls everything back.
	WithTx(ctx context.Context, fn func(Repositories) error) error
}

package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rpattn/canvass/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const importJobColumns = `id, organization_id, user_id, type, status, file_key, metadata, result, error,
	created_at, started_at, completed_at, updated_at`

type importJobRepository struct {
	db DBTX
}

// NewImportJobRepository wires an import job repository on a pool or transaction.
func NewImportJobRepository(db DBTX) ImportJobRepository {
	return &importJobRepository{db: db}
}

func (r *importJobRepository) Create(ctx context.Context, job domain.ImportJob) (domain.ImportJob, error) {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.Status == "" {
		job.Status = domain.ImportJobStatusPending
	}
	metadata, err := job.MetadataToJSON()
	if err != nil {
		return domain.ImportJob{}, fmt.Errorf("failed to marshal import job metadata: %w", err)
	}

	row := r.db.QueryRow(
		ctx,
		`INSERT INTO import_jobs (id, organization_id, user_id, type, status, file_key, metadata, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		 RETURNING `+importJobColumns,
		job.ID,
		job.OrganizationID,
		job.UserID,
		string(job.Type),
		string(job.Status),
		job.FileKey,
		metadata,
		time.Now(),
	)
	created, err := scanImportJob(row)
	if err != nil {
		return domain.ImportJob{}, fmt.Errorf("failed to create import job: %w", err)
	}
	return created, nil
}

func (r *importJobRepository) GetByID(ctx context.Context, organizationID, id uuid.UUID) (domain.ImportJob, error) {
	row := r.db.QueryRow(ctx, `SELECT `+importJobColumns+` FROM import_jobs WHERE organization_id = $1 AND id = $2`, organizationID, id)
	job, err := scanImportJob(row)
	if err != nil {
		return domain.ImportJob{}, notFound(err, "import job")
	}
	return job, nil
}

func (r *importJobRepository) List(ctx context.Context, organizationID uuid.UUID, status *domain.ImportJobStatus, limit int, offset int) ([]domain.ImportJob, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	var statusArg any
	if status != nil {
		statusArg = string(*status)
	}

	rows, err := r.db.Query(
		ctx,
		`SELECT `+importJobColumns+`
		 FROM import_jobs
		 WHERE organization_id = $1
		   AND ($2::text IS NULL OR status = $2::text)
		 ORDER BY created_at DESC, id
		 LIMIT $3 OFFSET $4`,
		organizationID,
		statusArg,
		limit,
		offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list import jobs: %w", err)
	}
	defer rows.Close()

	jobs := []domain.ImportJob{}
	for rows.Next() {
		job, scanErr := scanImportJob(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan import job: %w", scanErr)
		}
		jobs = append(jobs, job)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate import jobs: %w", rowsErr)
	}
	return jobs, nil
}

func (r *importJobRepository) MarkProcessing(ctx context.Context, organizationID, id uuid.UUID) (domain.ImportJob, error) {
	row := r.db.QueryRow(
		ctx,
		`UPDATE import_jobs
		 SET status = 'processing',
		     started_at = now(),
		     updated_at = now()
		 WHERE organization_id = $1 AND id = $2 AND status = 'pending'
		 RETURNING `+importJobColumns,
		organizationID,
		id,
	)
	job, err := scanImportJob(row)
	if err == nil {
		return job, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.ImportJob{}, fmt.Errorf("failed to mark import job processing: %w", err)
	}

	// Distinguish a missing job from one in another state.
	if _, getErr := r.GetByID(ctx, organizationID, id); getErr != nil {
		return domain.ImportJob{}, getErr
	}
	return domain.ImportJob{}, ErrImportJobStatusConflict
}

func (r *importJobRepository) UpdateProgress(ctx context.Context, organizationID, id uuid.UUID, progress domain.ImportProgress) error {
	payload, err := json.Marshal(progress)
	if err != nil {
		return fmt.Errorf("failed to marshal import progress: %w", err)
	}
	return r.mergeMetadata(ctx, organizationID, id, payload, "progress")
}

func (r *importJobRepository) RecordFileInfo(ctx context.Context, organizationID, id uuid.UUID, info domain.ImportFileInfo) error {
	payload, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("failed to marshal import file info: %w", err)
	}
	return r.mergeMetadata(ctx, organizationID, id, payload, "file info")
}

// mergeMetadata shallow-merges patch into the metadata document of a running job.
func (r *importJobRepository) mergeMetadata(ctx context.Context, organizationID, id uuid.UUID, patch []byte, what string) error {
	tag, err := r.db.Exec(
		ctx,
		`UPDATE import_jobs
		 SET metadata = metadata || $3::jsonb,
		     updated_at = now()
		 WHERE organization_id = $1 AND id = $2 AND status = 'processing'`,
		organizationID,
		id,
		patch,
	)
	if err != nil {
		return fmt.Errorf("failed to update import job %s: %w", what, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrImportJobStatusConflict
	}
	return nil
}

func (r *importJobRepository) MarkCompleted(ctx context.Context, organizationID, id uuid.UUID, result domain.ImportResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal import result: %w", err)
	}
	progress, err := json.Marshal(domain.ImportProgress{
		Phase:         domain.ImportPhaseDone,
		RowsProcessed: result.TotalRows,
		TotalRows:     result.TotalRows,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal import progress: %w", err)
	}

	tag, err := r.db.Exec(
		ctx,
		`UPDATE import_jobs
		 SET status = 'completed',
		     result = $3::jsonb,
		     metadata = metadata || $4::jsonb,
		     error = NULL,
		     completed_at = now(),
		     updated_at = now()
		 WHERE organization_id = $1 AND id = $2 AND status = 'processing'`,
		organizationID,
		id,
		payload,
		progress,
	)
	if err != nil {
		return fmt.Errorf("failed to mark import job completed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrImportJobStatusConflict
	}
	return nil
}

func (r *importJobRepository) MarkFailed(ctx context.Context, organizationID, id uuid.UUID, message string) error {
	tag, err := r.db.Exec(
		ctx,
		`UPDATE import_jobs
		 SET status = 'failed',
		     error = $3,
		     completed_at = now(),
		     updated_at = now()
		 WHERE organization_id = $1 AND id = $2 AND status IN ('pending', 'processing')`,
		organizationID,
		id,
		message,
	)
	if err != nil {
		return fmt.Errorf("failed to mark import job failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrImportJobStatusConflict
	}
	return nil
}

func (r *importJobRepository) FindLatestByFileHash(ctx context.Context, organizationID uuid.UUID, jobType domain.ImportJobType, hash string, excludeID uuid.UUID) (*domain.ImportJob, error) {
	if hash == "" {
		return nil, nil
	}
	row := r.db.QueryRow(
		ctx,
		`SELECT `+importJobColumns+`
		 FROM import_jobs
		 WHERE organization_id = $1
		   AND type = $2
		   AND metadata->>'fileHash' = $3
		   AND id <> $4
		 ORDER BY created_at DESC
		 LIMIT 1`,
		organizationID,
		string(jobType),
		hash,
		excludeID,
	)
	job, err := scanImportJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find import job by file hash: %w", err)
	}
	return &job, nil
}

func scanImportJob(row pgx.Row) (domain.ImportJob, error) {
	var (
		job      domain.ImportJob
		jobType  string
		status   string
		metadata []byte
		result   []byte
	)
	if err := row.Scan(
		&job.ID,
		&job.OrganizationID,
		&job.UserID,
		&jobType,
		&status,
		&job.FileKey,
		&metadata,
		&result,
		&job.Error,
		&job.CreatedAt,
		&job.StartedAt,
		&job.CompletedAt,
		&job.UpdatedAt,
	); err != nil {
		return domain.ImportJob{}, err
	}

	job.Type = domain.ImportJobType(jobType)
	job.Status = domain.ImportJobStatus(status)

	parsedMetadata, err := domain.ImportJobMetadataFromJSON(metadata)
	if err != nil {
		return domain.ImportJob{}, fmt.Errorf("failed to decode import job metadata: %w", err)
	}
	job.Metadata = parsedMetadata

	parsedResult, err := domain.ImportResultFromJSON(result)
	if err != nil {
		return domain.ImportJob{}, fmt.Errorf("failed to decode import job result: %w", err)
	}
	job.Result = parsedResult

	return job, nil
}

package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/rpattn/canvass/internal/domain"
	"github.com/rpattn/canvass/internal/repository"
	"github.com/rpattn/canvass/internal/storage"
)

// SubmitRequest describes a new import. Exactly one of Voters or FileKey is
// expected; FileKey wins when both are set.
type SubmitRequest struct {
	TenantID uuid.UUID
	UserID   uuid.UUID
	Voters   []map[string]any
	FileKey  string
	FileName string
}

// Submitter creates pending jobs and enqueues them for the worker.
type Submitter struct {
	store repository.Store
}

func NewSubmitter(store repository.Store) *Submitter {
	return &Submitter{store: store}
}

// Submit writes the pending job and its queue message in one transaction, so
// a job row never exists without the message that will run it.
func (s *Submitter) Submit(ctx context.Context, req SubmitRequest) (domain.ImportJob, error) {
	fileKey := strings.TrimSpace(req.FileKey)
	if req.TenantID == uuid.Nil {
		return domain.ImportJob{}, fmt.Errorf("%w: tenant is required", domain.ErrValidation)
	}
	if fileKey == "" && len(req.Voters) == 0 {
		return domain.ImportJob{}, fmt.Errorf("%w: either voters or fileKey is required", domain.ErrValidation)
	}
	if fileKey != "" && !storage.TenantOwnsKey(req.TenantID, fileKey) {
		return domain.ImportJob{}, fmt.Errorf("%w: fileKey does not belong to this organization", domain.ErrValidation)
	}

	var created domain.ImportJob
	err := s.store.WithTx(ctx, func(repos repository.Repositories) error {
		if _, err := repos.Organizations.GetByID(ctx, req.TenantID); err != nil {
			return err
		}

		job := domain.ImportJob{
			ID:             uuid.New(),
			OrganizationID: req.TenantID,
			UserID:         req.UserID,
			Type:           domain.ImportJobTypeVoters,
			Status:         domain.ImportJobStatusPending,
			Metadata: domain.ImportJobMetadata{
				Phase:    domain.ImportPhaseQueued,
				FileName: strings.TrimSpace(req.FileName),
			},
		}
		payload := Payload{
			JobID:    job.ID,
			TenantID: req.TenantID,
			UserID:   req.UserID,
		}
		if fileKey != "" {
			job.FileKey = &fileKey
			payload.FileKey = fileKey
		} else {
			job.Metadata.TotalRows = len(req.Voters)
			payload.Voters = req.Voters
		}

		var err error
		created, err = repos.ImportJobs.Create(ctx, job)
		if err != nil {
			return err
		}

		body, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal import payload: %w", err)
		}
		if _, err := repos.Queue.Enqueue(ctx, JobName, req.TenantID, body); err != nil {
			return fmt.Errorf("failed to enqueue import job: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.ImportJob{}, err
	}
	return created, nil
}

// GetJob returns one tenant job.
func (s *Submitter) GetJob(ctx context.Context, tenantID, jobID uuid.UUID) (domain.ImportJob, error) {
	return s.store.Repos().ImportJobs.GetByID(ctx, tenantID, jobID)
}

// ListJobs returns tenant jobs, newest first.
func (s *Submitter) ListJobs(ctx context.Context, tenantID uuid.UUID, status *domain.ImportJobStatus, limit, offset int) ([]domain.ImportJob, error) {
	if status != nil && !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", domain.ErrValidation, *status)
	}
	return s.store.Repos().ImportJobs.List(ctx, tenantID, status, limit, offset)
}

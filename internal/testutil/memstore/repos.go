package memstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/rpattn/canvass/internal/domain"
	"github.com/rpattn/canvass/internal/repository"

	"github.com/google/uuid"
)

type orgRepo struct{ base }

func (r orgRepo) Create(_ context.Context, org domain.Organization) (domain.Organization, error) {
	err := r.with(func(st *state) error {
		for _, existing := range st.orgs {
			if existing.Name == org.Name {
				return fmt.Errorf("%w: organization %q already exists", domain.ErrConflict, org.Name)
			}
		}
		if org.ID == uuid.Nil {
			org.ID = uuid.New()
		}
		now := r.store.now()
		org.CreatedAt, org.UpdatedAt = now, now
		st.orgs[org.ID] = org
		return nil
	})
	return org, err
}

func (r orgRepo) GetByID(_ context.Context, id uuid.UUID) (domain.Organization, error) {
	var org domain.Organization
	err := r.with(func(st *state) error {
		found, ok := st.orgs[id]
		if !ok {
			return fmt.Errorf("organization: %w", domain.ErrNotFound)
		}
		org = found
		return nil
	})
	return org, err
}

func (r orgRepo) GetByName(_ context.Context, name string) (domain.Organization, error) {
	var org domain.Organization
	err := r.with(func(st *state) error {
		for _, found := range st.orgs {
			if found.Name == name {
				org = found
				return nil
			}
		}
		return fmt.Errorf("organization: %w", domain.ErrNotFound)
	})
	return org, err
}

func (r orgRepo) List(context.Context) ([]domain.Organization, error) {
	out := []domain.Organization{}
	_ = r.with(func(st *state) error {
		for _, org := range st.orgs {
			out = append(out, org)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

type voterRepo struct{ base }

func (r voterRepo) UpsertImported(_ context.Context, voter domain.Voter) (domain.Voter, bool, error) {
	if voter.ExternalID == nil || *voter.ExternalID == "" {
		return domain.Voter{}, false, fmt.Errorf("%w: external id is required for imported voters", domain.ErrValidation)
	}
	if hook := r.store.FailUpsert; hook != nil {
		if err := hook(voter); err != nil {
			return domain.Voter{}, false, err
		}
	}

	var (
		saved    domain.Voter
		inserted bool
	)
	err := r.with(func(st *state) error {
		now := r.store.now()
		for id, existing := range st.voters {
			if existing.OrganizationID != voter.OrganizationID || deref(existing.ExternalID) != *voter.ExternalID {
				continue
			}
			updated := voter
			updated.ID = id
			updated.Source = existing.Source
			updated.MergedIntoVoterID = existing.MergedIntoVoterID
			updated.CreatedAt = existing.CreatedAt
			updated.UpdatedAt = now
			st.voters[id] = updated
			saved = updated
			return nil
		}
		if voter.ID == uuid.Nil {
			voter.ID = uuid.New()
		}
		voter.Source = domain.VoterSourceImport
		voter.MergedIntoVoterID = nil
		voter.CreatedAt, voter.UpdatedAt = now, now
		st.voters[voter.ID] = voter
		saved = voter
		inserted = true
		return nil
	})
	return saved, inserted, err
}

func (r voterRepo) CreateManual(_ context.Context, voter domain.Voter) (domain.Voter, error) {
	err := r.with(func(st *state) error {
		if voter.ExternalID != nil {
			for _, existing := range st.voters {
				if existing.OrganizationID == voter.OrganizationID && deref(existing.ExternalID) == *voter.ExternalID {
					return fmt.Errorf("%w: external id already in use", domain.ErrConflict)
				}
			}
		}
		if voter.ID == uuid.Nil {
			voter.ID = uuid.New()
		}
		now := r.store.now()
		voter.Source = domain.VoterSourceManual
		voter.MergedIntoVoterID = nil
		voter.CreatedAt, voter.UpdatedAt = now, now
		st.voters[voter.ID] = voter
		return nil
	})
	return voter, err
}

func (r voterRepo) Update(_ context.Context, voter domain.Voter) (domain.Voter, error) {
	var saved domain.Voter
	err := r.with(func(st *state) error {
		existing, ok := st.voters[voter.ID]
		if !ok || existing.OrganizationID != voter.OrganizationID {
			return fmt.Errorf("voter: %w", domain.ErrNotFound)
		}
		updated := voter
		updated.ExternalID = existing.ExternalID
		updated.Source = existing.Source
		updated.MergedIntoVoterID = existing.MergedIntoVoterID
		updated.CreatedAt = existing.CreatedAt
		updated.UpdatedAt = r.store.now()
		st.voters[voter.ID] = updated
		saved = updated
		return nil
	})
	return saved, err
}

func (r voterRepo) GetByID(_ context.Context, organizationID, id uuid.UUID) (domain.Voter, error) {
	var voter domain.Voter
	err := r.with(func(st *state) error {
		found, ok := st.voters[id]
		if !ok || found.OrganizationID != organizationID {
			return fmt.Errorf("voter: %w", domain.ErrNotFound)
		}
		voter = found
		return nil
	})
	return voter, err
}

func (r voterRepo) GetByIDForUpdate(ctx context.Context, organizationID, id uuid.UUID) (domain.Voter, error) {
	return r.GetByID(ctx, organizationID, id)
}

func (r voterRepo) GetByIDs(_ context.Context, organizationID uuid.UUID, ids []uuid.UUID) ([]domain.Voter, error) {
	out := []domain.Voter{}
	_ = r.with(func(st *state) error {
		for _, id := range ids {
			if v, ok := st.voters[id]; ok && v.OrganizationID == organizationID {
				out = append(out, v)
			}
		}
		return nil
	})
	return out, nil
}

func (r voterRepo) List(_ context.Context, organizationID uuid.UUID, filter domain.VoterFilter, limit int, offset int) ([]domain.Voter, int, error) {
	if limit <= 0 {
		limit = 50
	}
	matches := []domain.Voter{}
	_ = r.with(func(st *state) error {
		for _, v := range st.voters {
			if v.OrganizationID != organizationID {
				continue
			}
			if !filter.IncludeMerged && v.IsMerged() {
				continue
			}
			if filter.Source != "" && v.Source != filter.Source {
				continue
			}
			if phone := strings.TrimSpace(filter.Phone); phone != "" && deref(v.Phone) != phone {
				continue
			}
			if search := strings.TrimSpace(filter.Search); search != "" && !voterMatches(v, search) {
				continue
			}
			matches = append(matches, v)
		}
		return nil
	})
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].LastName != matches[j].LastName {
			return matches[i].LastName < matches[j].LastName
		}
		if matches[i].FirstName != matches[j].FirstName {
			return matches[i].FirstName < matches[j].FirstName
		}
		return matches[i].ID.String() < matches[j].ID.String()
	})
	return paginate(matches, limit, offset), len(matches), nil
}

func voterMatches(v domain.Voter, search string) bool {
	return containsFold(v.FirstName, search) ||
		containsFold(v.LastName, search) ||
		containsFold(v.FirstName+" "+v.LastName, search) ||
		containsFold(deref(v.ExternalID), search) ||
		containsFold(deref(v.Phone), search) ||
		containsFold(v.Address, search)
}

func (r voterRepo) ListImportedByPhone(_ context.Context, organizationID uuid.UUID, phone string) ([]domain.Voter, error) {
	out := []domain.Voter{}
	_ = r.with(func(st *state) error {
		for _, v := range st.voters {
			if v.OrganizationID == organizationID && v.Source == domain.VoterSourceImport && v.Phone != nil && *v.Phone == phone {
				out = append(out, v)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r voterRepo) MarkMerged(_ context.Context, organizationID, id, targetID uuid.UUID) error {
	return r.with(func(st *state) error {
		v, ok := st.voters[id]
		if !ok || v.OrganizationID != organizationID || v.MergedIntoVoterID != nil {
			return fmt.Errorf("%w: voter already merged or missing", domain.ErrConflict)
		}
		target := targetID
		v.MergedIntoVoterID = &target
		v.UpdatedAt = r.store.now()
		st.voters[id] = v
		return nil
	})
}

type jobRepo struct{ base }

func (r jobRepo) Create(_ context.Context, job domain.ImportJob) (domain.ImportJob, error) {
	err := r.with(func(st *state) error {
		if job.ID == uuid.Nil {
			job.ID = uuid.New()
		}
		if job.Status == "" {
			job.Status = domain.ImportJobStatusPending
		}
		now := r.store.now()
		job.CreatedAt, job.UpdatedAt = now, now
		st.jobs[job.ID] = job
		return nil
	})
	return job, err
}

func (r jobRepo) GetByID(_ context.Context, organizationID, id uuid.UUID) (domain.ImportJob, error) {
	var job domain.ImportJob
	err := r.with(func(st *state) error {
		found, ok := st.jobs[id]
		if !ok || found.OrganizationID != organizationID {
			return fmt.Errorf("import job: %w", domain.ErrNotFound)
		}
		job = found
		return nil
	})
	return job, err
}

func (r jobRepo) List(_ context.Context, organizationID uuid.UUID, status *domain.ImportJobStatus, limit int, offset int) ([]domain.ImportJob, error) {
	if limit <= 0 {
		limit = 50
	}
	out := []domain.ImportJob{}
	_ = r.with(func(st *state) error {
		for _, job := range st.jobs {
			if job.OrganizationID != organizationID {
				continue
			}
			if status != nil && job.Status != *status {
				continue
			}
			out = append(out, job)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return paginate(out, limit, offset), nil
}

// update applies fn to a job of the tenant whose status is in allowed.
func (r jobRepo) update(organizationID, id uuid.UUID, allowed []domain.ImportJobStatus, fn func(*domain.ImportJob)) (domain.ImportJob, error) {
	var job domain.ImportJob
	err := r.with(func(st *state) error {
		found, ok := st.jobs[id]
		if !ok || found.OrganizationID != organizationID {
			return fmt.Errorf("import job: %w", domain.ErrNotFound)
		}
		permitted := false
		for _, s := range allowed {
			if found.Status == s {
				permitted = true
			}
		}
		if !permitted {
			return repository.ErrImportJobStatusConflict
		}
		fn(&found)
		found.UpdatedAt = r.store.now()
		st.jobs[id] = found
		job = found
		return nil
	})
	return job, err
}

func (r jobRepo) MarkProcessing(_ context.Context, organizationID, id uuid.UUID) (domain.ImportJob, error) {
	return r.update(organizationID, id, []domain.ImportJobStatus{domain.ImportJobStatusPending}, func(job *domain.ImportJob) {
		started := r.store.clock
		job.Status = domain.ImportJobStatusProcessing
		job.StartedAt = &started
	})
}

func (r jobRepo) UpdateProgress(_ context.Context, organizationID, id uuid.UUID, progress domain.ImportProgress) error {
	_, err := r.update(organizationID, id, []domain.ImportJobStatus{domain.ImportJobStatusProcessing}, func(job *domain.ImportJob) {
		job.Metadata.Phase = progress.Phase
		job.Metadata.RowsProcessed = progress.RowsProcessed
		job.Metadata.TotalRows = progress.TotalRows
	})
	return err
}

func (r jobRepo) RecordFileInfo(_ context.Context, organizationID, id uuid.UUID, info domain.ImportFileInfo) error {
	_, err := r.update(organizationID, id, []domain.ImportJobStatus{domain.ImportJobStatusProcessing}, func(job *domain.ImportJob) {
		if info.FileHash != "" {
			job.Metadata.FileHash = info.FileHash
		}
		if len(info.IgnoredColumns) > 0 {
			job.Metadata.IgnoredColumns = append([]string(nil), info.IgnoredColumns...)
		}
		if info.DuplicateOf != nil {
			dup := *info.DuplicateOf
			job.Metadata.DuplicateOf = &dup
		}
	})
	return err
}

func (r jobRepo) MarkCompleted(_ context.Context, organizationID, id uuid.UUID, result domain.ImportResult) error {
	_, err := r.update(organizationID, id, []domain.ImportJobStatus{domain.ImportJobStatusProcessing}, func(job *domain.ImportJob) {
		completed := r.store.clock
		res := result
		job.Status = domain.ImportJobStatusCompleted
		job.Result = &res
		job.Error = nil
		job.CompletedAt = &completed
		job.Metadata.Phase = domain.ImportPhaseDone
		job.Metadata.RowsProcessed = result.TotalRows
		job.Metadata.TotalRows = result.TotalRows
	})
	return err
}

func (r jobRepo) MarkFailed(_ context.Context, organizationID, id uuid.UUID, message string) error {
	allowed := []domain.ImportJobStatus{domain.ImportJobStatusPending, domain.ImportJobStatusProcessing}
	_, err := r.update(organizationID, id, allowed, func(job *domain.ImportJob) {
		completed := r.store.clock
		msg := message
		job.Status = domain.ImportJobStatusFailed
		job.Error = &msg
		job.CompletedAt = &completed
	})
	return err
}

func (r jobRepo) FindLatestByFileHash(_ context.Context, organizationID uuid.UUID, jobType domain.ImportJobType, hash string, excludeID uuid.UUID) (*domain.ImportJob, error) {
	if hash == "" {
		return nil, nil
	}
	var latest *domain.ImportJob
	_ = r.with(func(st *state) error {
		for _, job := range st.jobs {
			if job.OrganizationID != organizationID || job.Type != jobType || job.ID == excludeID || job.Metadata.FileHash != hash {
				continue
			}
			if latest == nil || job.CreatedAt.After(latest.CreatedAt) {
				found := job
				latest = &found
			}
		}
		return nil
	})
	return latest, nil
}

type alertRepo struct{ base }

func (r alertRepo) CreateIfAbsent(_ context.Context, alert domain.MergeAlert) (bool, error) {
	created := false
	err := r.with(func(st *state) error {
		for _, existing := range st.alerts {
			if existing.OrganizationID == alert.OrganizationID &&
				existing.LeadVoterID == alert.LeadVoterID &&
				existing.ImportedVoterID == alert.ImportedVoterID {
				return nil
			}
		}
		if alert.ID == uuid.Nil {
			alert.ID = uuid.New()
		}
		if alert.Status == "" {
			alert.Status = domain.MergeAlertStatusOpen
		}
		now := r.store.now()
		alert.CreatedAt, alert.UpdatedAt = now, now
		st.alerts[alert.ID] = alert
		created = true
		return nil
	})
	return created, err
}

func (r alertRepo) GetByID(_ context.Context, organizationID, id uuid.UUID) (domain.MergeAlert, error) {
	var alert domain.MergeAlert
	err := r.with(func(st *state) error {
		found, ok := st.alerts[id]
		if !ok || found.OrganizationID != organizationID {
			return fmt.Errorf("merge alert: %w", domain.ErrNotFound)
		}
		alert = found
		return nil
	})
	return alert, err
}

func (r alertRepo) List(_ context.Context, organizationID uuid.UUID, status *domain.MergeAlertStatus, limit int, offset int) ([]domain.MergeAlert, error) {
	if limit <= 0 {
		limit = 50
	}
	out := []domain.MergeAlert{}
	_ = r.with(func(st *state) error {
		for _, a := range st.alerts {
			if a.OrganizationID != organizationID {
				continue
			}
			if status != nil && a.Status != *status {
				continue
			}
			out = append(out, a)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return paginate(out, limit, offset), nil
}

func (r alertRepo) UpdateStatus(_ context.Context, organizationID, id uuid.UUID, from, to domain.MergeAlertStatus) (domain.MergeAlert, bool, error) {
	var (
		alert   domain.MergeAlert
		updated bool
	)
	err := r.with(func(st *state) error {
		found, ok := st.alerts[id]
		if !ok || found.OrganizationID != organizationID || found.Status != from {
			return nil
		}
		found.Status = to
		found.UpdatedAt = r.store.now()
		st.alerts[id] = found
		alert, updated = found, true
		return nil
	})
	return alert, updated, err
}

func (r alertRepo) ResolvePair(_ context.Context, organizationID, leadID, importedID uuid.UUID) (int64, error) {
	var n int64
	err := r.with(func(st *state) error {
		for id, a := range st.alerts {
			if a.OrganizationID == organizationID && a.LeadVoterID == leadID && a.ImportedVoterID == importedID && a.Status == domain.MergeAlertStatusOpen {
				a.Status = domain.MergeAlertStatusResolved
				a.UpdatedAt = r.store.now()
				st.alerts[id] = a
				n++
			}
		}
		return nil
	})
	return n, err
}

type interactionRepo struct{ base }

func (r interactionRepo) ReassignVoter(_ context.Context, organizationID, fromVoterID, toVoterID uuid.UUID) ([]uuid.UUID, error) {
	moved := []uuid.UUID{}
	err := r.with(func(st *state) error {
		for id, i := range st.interactions {
			if i.OrganizationID == organizationID && i.VoterID == fromVoterID {
				i.VoterID = toVoterID
				st.interactions[id] = i
				moved = append(moved, id)
			}
		}
		return nil
	})
	sortIDs(moved)
	return moved, err
}

type listMemberRepo struct{ base }

func (r listMemberRepo) ReassignVoter(_ context.Context, organizationID, fromVoterID, toVoterID uuid.UUID) ([]uuid.UUID, []uuid.UUID, error) {
	moved := []uuid.UUID{}
	dropped := []uuid.UUID{}
	err := r.with(func(st *state) error {
		targetLists := map[uuid.UUID]bool{}
		for _, m := range st.listMembers {
			if m.VoterID == toVoterID {
				targetLists[m.ListID] = true
			}
		}
		for id, m := range st.listMembers {
			if m.OrganizationID != organizationID || m.VoterID != fromVoterID {
				continue
			}
			if targetLists[m.ListID] {
				delete(st.listMembers, id)
				dropped = append(dropped, id)
				continue
			}
			m.VoterID = toVoterID
			st.listMembers[id] = m
			moved = append(moved, id)
		}
		return nil
	})
	sortIDs(moved)
	sortIDs(dropped)
	return moved, dropped, err
}

type auditRepo struct{ base }

func (r auditRepo) Record(_ context.Context, entry domain.AuditLogEntry) error {
	return r.with(func(st *state) error {
		if entry.ID == uuid.Nil {
			entry.ID = uuid.New()
		}
		entry.CreatedAt = r.store.now()
		st.audit = append(st.audit, entry)
		return nil
	})
}

func (r auditRepo) List(_ context.Context, organizationID uuid.UUID, resource string, resourceID *uuid.UUID, limit int, offset int) ([]domain.AuditLogEntry, error) {
	if limit <= 0 {
		limit = 200
	}
	out := []domain.AuditLogEntry{}
	_ = r.with(func(st *state) error {
		for i := len(st.audit) - 1; i >= 0; i-- {
			e := st.audit[i]
			if e.OrganizationID != organizationID {
				continue
			}
			if resource != "" && e.Resource != resource {
				continue
			}
			if resourceID != nil && e.ResourceID != *resourceID {
				continue
			}
			out = append(out, e)
		}
		return nil
	})
	return paginate(out, limit, offset), nil
}

type queueRepo struct{ base }

func (r queueRepo) Enqueue(_ context.Context, jobName string, tenantID uuid.UUID, payload json.RawMessage) (uuid.UUID, error) {
	if r.store.FailEnqueue != nil {
		return uuid.Nil, r.store.FailEnqueue
	}
	id := uuid.New()
	err := r.with(func(st *state) error {
		st.queue = append(st.queue, QueuedMessage{
			ID:       id,
			JobName:  jobName,
			TenantID: tenantID,
			Payload:  append(json.RawMessage(nil), payload...),
		})
		return nil
	})
	return id, err
}

func sortIDs(ids []uuid.UUID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
}

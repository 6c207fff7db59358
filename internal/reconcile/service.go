// Package reconcile flags manual leads that look like imported voters and
// merges them on request.
package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/rpattn/canvass/internal/domain"
	"github.com/rpattn/canvass/internal/metrics"
	"github.com/rpattn/canvass/internal/repository"
)

// ErrAlertClosed is returned for any transition out of resolved or dismissed.
var ErrAlertClosed = fmt.Errorf("%w: merge alert is already closed", domain.ErrConflict)

// Recorder receives reconciliation metrics.
type Recorder interface {
	Merged(idempotent bool)
	AlertsCreated(n int)
}

// MergeRequest names the manual lead and the imported voter it duplicates.
type MergeRequest struct {
	TenantID uuid.UUID
	UserID   uuid.UUID
	LeadID   uuid.UUID
	TargetID uuid.UUID
}

// MergeResult reports what a merge moved.
type MergeResult struct {
	Merged             bool `json:"merged"`
	MovedInteractions  int  `json:"movedInteractions"`
	MovedListMembers   int  `json:"movedListMembers"`
	DroppedListMembers int  `json:"droppedListMembers"`
	Idempotent         bool `json:"idempotent"`
}

type Service struct {
	store   repository.Store
	metrics Recorder
	logger  *logrus.Entry
	now     func() time.Time
}

type Option func(*Service)

func WithMetrics(recorder Recorder) Option {
	return func(s *Service) {
		if recorder != nil {
			s.metrics = recorder
		}
	}
}

func WithLogger(logger *logrus.Entry) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewService(store repository.Store, opts ...Option) *Service {
	s := &Service{
		store:   store,
		metrics: metrics.Reconcile{},
		logger:  logrus.NewEntry(logrus.StandardLogger()).WithField("component", "reconcile"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Detect raises an open phone_match alert for every imported voter sharing
// the lead's phone. It runs on the caller's repositories so alerts commit
// with the voter write. Existing pairs are left untouched.
func (s *Service) Detect(ctx context.Context, repos repository.Repositories, voter domain.Voter) (int, error) {
	phone := voter.PhoneValue()
	if voter.Source != domain.VoterSourceManual || phone == "" || voter.IsMerged() {
		return 0, nil
	}

	matches, err := repos.Voters.ListImportedByPhone(ctx, voter.OrganizationID, phone)
	if err != nil {
		return 0, fmt.Errorf("failed to find phone matches: %w", err)
	}

	created := 0
	for _, match := range matches {
		alert := domain.NewMergeAlert(voter.OrganizationID, voter.ID, match.ID, domain.MergeAlertReasonPhoneMatch)
		inserted, err := repos.MergeAlerts.CreateIfAbsent(ctx, alert)
		if err != nil {
			return created, fmt.Errorf("failed to create merge alert: %w", err)
		}
		if inserted {
			created++
		}
	}
	if created > 0 {
		s.metrics.AlertsCreated(created)
		s.logger.WithFields(logrus.Fields{
			"tenant_id": voter.OrganizationID,
			"voter_id":  voter.ID,
			"alerts":    created,
		}).Info("merge alerts raised")
	}
	return created, nil
}

// Merge folds the lead into the target in one transaction. Retrying a merge
// that already happened returns Idempotent without writing.
func (s *Service) Merge(ctx context.Context, req MergeRequest) (MergeResult, error) {
	if req.TenantID == uuid.Nil || req.LeadID == uuid.Nil || req.TargetID == uuid.Nil {
		return MergeResult{}, fmt.Errorf("%w: tenant, lead and target are required", domain.ErrValidation)
	}
	if req.LeadID == req.TargetID {
		return MergeResult{}, fmt.Errorf("%w: a voter cannot be merged into itself", domain.ErrValidation)
	}

	var result MergeResult
	err := s.store.WithTx(ctx, func(repos repository.Repositories) error {
		lead, err := repos.Voters.GetByIDForUpdate(ctx, req.TenantID, req.LeadID)
		if err != nil {
			return err
		}
		if lead.Source != domain.VoterSourceManual {
			return fmt.Errorf("%w: lead %s is not a manual voter", domain.ErrIntegrity, lead.ID)
		}

		target, err := repos.Voters.GetByID(ctx, req.TenantID, req.TargetID)
		if err != nil {
			return err
		}
		if target.Source != domain.VoterSourceImport {
			return fmt.Errorf("%w: target %s is not an imported voter", domain.ErrIntegrity, target.ID)
		}

		if lead.IsMerged() {
			if *lead.MergedIntoVoterID == target.ID {
				result = MergeResult{Merged: true, Idempotent: true}
				return nil
			}
			return fmt.Errorf("%w: lead %s is already merged into %s", domain.ErrConflict, lead.ID, *lead.MergedIntoVoterID)
		}

		interactions, err := repos.Interactions.ReassignVoter(ctx, req.TenantID, lead.ID, target.ID)
		if err != nil {
			return err
		}
		moved, dropped, err := repos.ListMembers.ReassignVoter(ctx, req.TenantID, lead.ID, target.ID)
		if err != nil {
			return err
		}
		if err := repos.Voters.MarkMerged(ctx, req.TenantID, lead.ID, target.ID); err != nil {
			return err
		}
		resolved, err := repos.MergeAlerts.ResolvePair(ctx, req.TenantID, lead.ID, target.ID)
		if err != nil {
			return err
		}

		result = MergeResult{
			Merged:             true,
			MovedInteractions:  len(interactions),
			MovedListMembers:   len(moved),
			DroppedListMembers: len(dropped),
		}

		metadata, err := json.Marshal(map[string]any{
			"targetVoterId":      target.ID,
			"interactionIds":     interactions,
			"listMemberIds":      moved,
			"droppedListMembers": dropped,
			"movedInteractions":  result.MovedInteractions,
			"movedListMembers":   result.MovedListMembers,
			"resolvedAlerts":     resolved,
		})
		if err != nil {
			return fmt.Errorf("failed to marshal merge audit metadata: %w", err)
		}
		return repos.AuditLogs.Record(ctx, s.auditEntry(req.TenantID, req.UserID, domain.AuditActionVoterMerged, "voter", lead.ID, metadata))
	})
	if err != nil {
		return MergeResult{}, err
	}

	s.metrics.Merged(result.Idempotent)
	s.logger.WithFields(logrus.Fields{
		"tenant_id":    req.TenantID,
		"lead_id":      req.LeadID,
		"target_id":    req.TargetID,
		"idempotent":   result.Idempotent,
		"interactions": result.MovedInteractions,
		"list_members": result.MovedListMembers,
	}).Info("voter merged")
	return result, nil
}

// ListAlerts returns tenant alerts, optionally filtered by status.
func (s *Service) ListAlerts(ctx context.Context, tenantID uuid.UUID, status *domain.MergeAlertStatus, limit, offset int) ([]domain.MergeAlert, error) {
	if status != nil && !status.Valid() {
		return nil, fmt.Errorf("%w: unknown alert status %q", domain.ErrValidation, *status)
	}
	return s.store.Repos().MergeAlerts.List(ctx, tenantID, status, limit, offset)
}

// UpdateAlertStatus closes an open alert as resolved or dismissed.
func (s *Service) UpdateAlertStatus(ctx context.Context, tenantID, alertID, userID uuid.UUID, to domain.MergeAlertStatus) (domain.MergeAlert, error) {
	if !to.Terminal() {
		return domain.MergeAlert{}, fmt.Errorf("%w: status must be resolved or dismissed", domain.ErrValidation)
	}

	var updated domain.MergeAlert
	err := s.store.WithTx(ctx, func(repos repository.Repositories) error {
		current, err := repos.MergeAlerts.GetByID(ctx, tenantID, alertID)
		if err != nil {
			return err
		}
		alert, ok, err := repos.MergeAlerts.UpdateStatus(ctx, tenantID, alertID, domain.MergeAlertStatusOpen, to)
		if err != nil {
			return err
		}
		if !ok {
			return ErrAlertClosed
		}
		updated = alert

		metadata, err := json.Marshal(map[string]any{
			"from":            current.Status,
			"to":              to,
			"leadVoterId":     alert.LeadVoterID,
			"importedVoterId": alert.ImportedVoterID,
		})
		if err != nil {
			return fmt.Errorf("failed to marshal alert audit metadata: %w", err)
		}
		return repos.AuditLogs.Record(ctx, s.auditEntry(tenantID, userID, domain.AuditActionAlertStatusChange, "merge_alert", alert.ID, metadata))
	})
	if err != nil {
		return domain.MergeAlert{}, err
	}
	return updated, nil
}

func (s *Service) auditEntry(tenantID, userID uuid.UUID, action, resource string, resourceID uuid.UUID, metadata json.RawMessage) domain.AuditLogEntry {
	var actor *uuid.UUID
	if userID != uuid.Nil {
		id := userID
		actor = &id
	}
	return domain.AuditLogEntry{
		ID:             uuid.New(),
		OrganizationID: tenantID,
		UserID:         actor,
		Action:         action,
		Resource:       resource,
		ResourceID:     resourceID,
		Metadata:       metadata,
		CreatedAt:      s.now(),
	}
}

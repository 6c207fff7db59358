package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rpattn/canvass/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const mergeAlertColumns = `id, organization_id, lead_voter_id, imported_voter_id, reason, status, created_at, updated_at`

type mergeAlertRepository struct {
	db DBTX
}

// NewMergeAlertRepository wires a merge alert repository on a pool or transaction.
func NewMergeAlertRepository(db DBTX) MergeAlertRepository {
	return &mergeAlertRepository{db: db}
}

func (r *mergeAlertRepository) CreateIfAbsent(ctx context.Context, alert domain.MergeAlert) (bool, error) {
	if alert.ID == uuid.Nil {
		alert.ID = uuid.New()
	}
	if alert.Status == "" {
		alert.Status = domain.MergeAlertStatusOpen
	}
	now := time.Now()

	tag, err := r.db.Exec(
		ctx,
		`INSERT INTO merge_alerts (id, organization_id, lead_voter_id, imported_voter_id, reason, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		 ON CONFLICT ON CONSTRAINT merge_alerts_pair_key DO NOTHING`,
		alert.ID,
		alert.OrganizationID,
		alert.LeadVoterID,
		alert.ImportedVoterID,
		string(alert.Reason),
		string(alert.Status),
		now,
	)
	if err != nil {
		return false, fmt.Errorf("failed to create merge alert: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *mergeAlertRepository) GetByID(ctx context.Context, organizationID, id uuid.UUID) (domain.MergeAlert, error) {
	row := r.db.QueryRow(ctx, `SELECT `+mergeAlertColumns+` FROM merge_alerts WHERE organization_id = $1 AND id = $2`, organizationID, id)
	alert, err := scanMergeAlert(row)
	if err != nil {
		return domain.MergeAlert{}, notFound(err, "merge alert")
	}
	return alert, nil
}

func (r *mergeAlertRepository) List(ctx context.Context, organizationID uuid.UUID, status *domain.MergeAlertStatus, limit int, offset int) ([]domain.MergeAlert, error) {
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
		`SELECT `+mergeAlertColumns+`
		 FROM merge_alerts
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
		return nil, fmt.Errorf("failed to list merge alerts: %w", err)
	}
	defer rows.Close()

	alerts := []domain.MergeAlert{}
	for rows.Next() {
		alert, scanErr := scanMergeAlert(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan merge alert: %w", scanErr)
		}
		alerts = append(alerts, alert)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate merge alerts: %w", rowsErr)
	}
	return alerts, nil
}

func (r *mergeAlertRepository) UpdateStatus(ctx context.Context, organizationID, id uuid.UUID, from, to domain.MergeAlertStatus) (domain.MergeAlert, bool, error) {
	row := r.db.QueryRow(
		ctx,
		`UPDATE merge_alerts
		 SET status = $4, updated_at = now()
		 WHERE organization_id = $1 AND id = $2 AND status = $3
		 RETURNING `+mergeAlertColumns,
		organizationID,
		id,
		string(from),
		string(to),
	)
	alert, err := scanMergeAlert(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.MergeAlert{}, false, nil
	}
	if err != nil {
		return domain.MergeAlert{}, false, fmt.Errorf("failed to update merge alert status: %w", err)
	}
	return alert, true, nil
}

func (r *mergeAlertRepository) ResolvePair(ctx context.Context, organizationID, leadID, importedID uuid.UUID) (int64, error) {
	tag, err := r.db.Exec(
		ctx,
		`UPDATE merge_alerts
		 SET status = 'resolved', updated_at = now()
		 WHERE organization_id = $1
		   AND lead_voter_id = $2
		   AND imported_voter_id = $3
		   AND status = 'open'`,
		organizationID,
		leadID,
		importedID,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve merge alert: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanMergeAlert(row pgx.Row) (domain.MergeAlert, error) {
	var (
		alert  domain.MergeAlert
		reason string
		status string
	)
	if err := row.Scan(
		&alert.ID,
		&alert.OrganizationID,
		&alert.LeadVoterID,
		&alert.ImportedVoterID,
		&reason,
		&status,
		&alert.CreatedAt,
		&alert.UpdatedAt,
	); err != nil {
		return domain.MergeAlert{}, err
	}
	alert.Reason = domain.MergeAlertReason(reason)
	alert.Status = domain.MergeAlertStatus(status)
	return alert, nil
}

package repository

import (
	"context"
	"fmt"

	"github.com/rpattn/canvass/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

type auditLogRepository struct {
	db DBTX
}

// NewAuditLogRepository wires an audit log repository on a pool or transaction.
func NewAuditLogRepository(db DBTX) AuditLogRepository {
	return &auditLogRepository{db: db}
}

func (r *auditLogRepository) Record(ctx context.Context, entry domain.AuditLogEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}

	var metadata any
	if len(entry.Metadata) > 0 {
		metadata = []byte(entry.Metadata)
	}

	_, err := r.db.Exec(
		ctx,
		`INSERT INTO audit_logs (id, organization_id, user_id, action, resource, resource_id, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		entry.ID,
		entry.OrganizationID,
		entry.UserID,
		entry.Action,
		entry.Resource,
		entry.ResourceID,
		metadata,
	)
	if err != nil {
		return fmt.Errorf("failed to record audit log: %w", err)
	}

	return nil
}

func (r *auditLogRepository) List(ctx context.Context, organizationID uuid.UUID, resource string, resourceID *uuid.UUID, limit int, offset int) ([]domain.AuditLogEntry, error) {
	if limit <= 0 {
		limit = 200
	}
	if offset < 0 {
		offset = 0
	}

	var resourceArg any
	if resource != "" {
		resourceArg = resource
	}

	rows, err := r.db.Query(
		ctx,
		`SELECT id, organization_id, user_id, action, resource, resource_id, metadata, created_at
		 FROM audit_logs
		 WHERE organization_id = $1
		   AND ($2::text IS NULL OR resource = $2::text)
		   AND ($3::uuid IS NULL OR resource_id = $3::uuid)
		 ORDER BY created_at DESC
		 LIMIT $4 OFFSET $5`,
		organizationID,
		resourceArg,
		resourceID,
		limit,
		offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit logs: %w", err)
	}
	defer rows.Close()

	logs := []domain.AuditLogEntry{}
	for rows.Next() {
		var (
			entry     domain.AuditLogEntry
			metadata  []byte
			createdAt pgtype.Timestamptz
		)
		if scanErr := rows.Scan(
			&entry.ID,
			&entry.OrganizationID,
			&entry.UserID,
			&entry.Action,
			&entry.Resource,
			&entry.ResourceID,
			&metadata,
			&createdAt,
		); scanErr != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", scanErr)
		}

		if len(metadata) > 0 {
			entry.Metadata = metadata
		}
		if createdAt.Valid {
			entry.CreatedAt = createdAt.Time
		}

		logs = append(logs, entry)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate audit logs: %w", rowsErr)
	}

	return logs, nil
}

package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type interactionRepository struct {
	db DBTX
}

// NewInteractionRepository wires the interaction rewiring used by merges.
func NewInteractionRepository(db DBTX) InteractionRepository {
	return &interactionRepository{db: db}
}

func (r *interactionRepository) ReassignVoter(ctx context.Context, organizationID, fromVoterID, toVoterID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.db.Query(
		ctx,
		`UPDATE interactions
		 SET voter_id = $3
		 WHERE organization_id = $1 AND voter_id = $2
		 RETURNING id`,
		organizationID,
		fromVoterID,
		toVoterID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to reassign interactions: %w", err)
	}
	return collectIDs(rows, "interaction")
}

type listMemberRepository struct {
	db DBTX
}

// NewListMemberRepository wires the list membership rewiring used by merges.
func NewListMemberRepository(db DBTX) ListMemberRepository {
	return &listMemberRepository{db: db}
}

func (r *listMemberRepository) ReassignVoter(ctx context.Context, organizationID, fromVoterID, toVoterID uuid.UUID) ([]uuid.UUID, []uuid.UUID, error) {
	// Moving a membership into a list that already holds the target would
	// violate (list_id, voter_id); those rows are dropped instead.
	rows, err := r.db.Query(
		ctx,
		`DELETE FROM list_members lm
		 WHERE lm.organization_id = $1
		   AND lm.voter_id = $2
		   AND EXISTS (
		       SELECT 1 FROM list_members existing
		       WHERE existing.list_id = lm.list_id AND existing.voter_id = $3
		   )
		 RETURNING lm.id`,
		organizationID,
		fromVoterID,
		toVoterID,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to drop duplicate list memberships: %w", err)
	}
	dropped, err := collectIDs(rows, "list membership")
	if err != nil {
		return nil, nil, err
	}

	rows, err = r.db.Query(
		ctx,
		`UPDATE list_members
		 SET voter_id = $3
		 WHERE organization_id = $1 AND voter_id = $2
		 RETURNING id`,
		organizationID,
		fromVoterID,
		toVoterID,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to reassign list memberships: %w", err)
	}
	moved, err := collectIDs(rows, "list membership")
	if err != nil {
		return nil, nil, err
	}
	return moved, dropped, nil
}

func collectIDs(rows pgx.Rows, what string) ([]uuid.UUID, error) {
	defer rows.Close()

	ids := []uuid.UUID{}
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan %s id: %w", what, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate %s ids: %w", what, err)
	}
	return ids, nil
}

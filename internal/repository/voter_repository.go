package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/rpattn/canvass/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

type voterRepository struct {
	db DBTX
}

// NewVoterRepository wires a voter repository on a pool or transaction.
func NewVoterRepository(db DBTX) VoterRepository {
	return &voterRepository{db: db}
}

func (r *voterRepository) UpsertImported(ctx context.Context, voter domain.Voter) (domain.Voter, bool, error) {
	if voter.ExternalID == nil || *voter.ExternalID == "" {
		return domain.Voter{}, false, fmt.Errorf("%w: external id is required for imported voters", domain.ErrValidation)
	}
	if voter.ID == uuid.Nil {
		voter.ID = uuid.New()
	}
	now := time.Now()

	// xmax is zero only for rows created by this statement.
	row := r.db.QueryRow(
		ctx,
		`INSERT INTO voters (
			id, organization_id, external_id, source,
			first_name, middle_name, last_name, suffix, age, gender, race, party, phone, email,
			address, unit, city, state, zip, latitude, longitude, created_at, updated_at
		) VALUES (
			$1, $2, $3, 'import',
			$4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
			$14, $15, $16, $17, $18, $19, $20, $21, $21
		)
		ON CONFLICT (organization_id, external_id) DO UPDATE SET
			first_name = EXCLUDED.first_name,
			middle_name = EXCLUDED.middle_name,
			last_name = EXCLUDED.last_name,
			suffix = EXCLUDED.suffix,
			age = EXCLUDED.age,
			gender = EXCLUDED.gender,
			race = EXCLUDED.race,
			party = EXCLUDED.party,
			phone = EXCLUDED.phone,
			email = EXCLUDED.email,
			address = EXCLUDED.address,
			unit = EXCLUDED.unit,
			city = EXCLUDED.city,
			state = EXCLUDED.state,
			zip = EXCLUDED.zip,
			latitude = EXCLUDED.latitude,
			longitude = EXCLUDED.longitude,
			updated_at = EXCLUDED.updated_at
		RETURNING `+voterColumns+`, (xmax = 0) AS inserted`,
		voter.ID,
		voter.OrganizationID,
		voter.ExternalID,
		voter.FirstName,
		voter.MiddleName,
		voter.LastName,
		voter.Suffix,
		voter.Age,
		voter.Gender,
		voter.Race,
		voter.Party,
		voter.Phone,
		voter.Email,
		voter.Address,
		voter.Unit,
		voter.City,
		voter.State,
		voter.Zip,
		voter.Latitude,
		voter.Longitude,
		now,
	)

	var inserted bool
	saved, err := scanVoter(row, &inserted)
	if err != nil {
		return domain.Voter{}, false, fmt.Errorf("failed to upsert voter: %w", err)
	}
	return saved, inserted, nil
}

func (r *voterRepository) CreateManual(ctx context.Context, voter domain.Voter) (domain.Voter, error) {
	if voter.ID == uuid.Nil {
		voter.ID = uuid.New()
	}
	now := time.Now()

	row := r.db.QueryRow(
		ctx,
		`INSERT INTO voters (
			id, organization_id, external_id, source,
			first_name, middle_name, last_name, suffix, age, gender, race, party, phone, email,
			address, unit, city, state, zip, latitude, longitude, created_at, updated_at
		) VALUES (
			$1, $2, $3, 'manual',
			$4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
			$14, $15, $16, $17, $18, $19, $20, $21, $21
		)
		RETURNING `+voterColumns,
		voter.ID,
		voter.OrganizationID,
		voter.ExternalID,
		voter.FirstName,
		voter.MiddleName,
		voter.LastName,
		voter.Suffix,
		voter.Age,
		voter.Gender,
		voter.Race,
		voter.Party,
		voter.Phone,
		voter.Email,
		voter.Address,
		voter.Unit,
		voter.City,
		voter.State,
		voter.Zip,
		voter.Latitude,
		voter.Longitude,
		now,
	)

	saved, err := scanVoter(row)
	if err != nil {
		if isUniqueViolation(err, "voters_org_external_id_key") {
			return domain.Voter{}, fmt.Errorf("%w: external id already in use", domain.ErrConflict)
		}
		return domain.Voter{}, fmt.Errorf("failed to create voter: %w", err)
	}
	return saved, nil
}

func (r *voterRepository) Update(ctx context.Context, voter domain.Voter) (domain.Voter, error) {
	row := r.db.QueryRow(
		ctx,
		`UPDATE voters SET
			first_name = $3,
			middle_name = $4,
			last_name = $5,
			suffix = $6,
			age = $7,
			gender = $8,
			race = $9,
			party = $10,
			phone = $11,
			email = $12,
			address = $13,
			unit = $14,
			city = $15,
			state = $16,
			zip = $17,
			latitude = $18,
			longitude = $19,
			updated_at = now()
		WHERE organization_id = $1 AND id = $2
		RETURNING `+voterColumns,
		voter.OrganizationID,
		voter.ID,
		voter.FirstName,
		voter.MiddleName,
		voter.LastName,
		voter.Suffix,
		voter.Age,
		voter.Gender,
		voter.Race,
		voter.Party,
		voter.Phone,
		voter.Email,
		voter.Address,
		voter.Unit,
		voter.City,
		voter.State,
		voter.Zip,
		voter.Latitude,
		voter.Longitude,
	)

	saved, err := scanVoter(row)
	if err != nil {
		return domain.Voter{}, notFound(err, "voter")
	}
	return saved, nil
}

func (r *voterRepository) GetByID(ctx context.Context, organizationID, id uuid.UUID) (domain.Voter, error) {
	row := r.db.QueryRow(ctx, `SELECT `+voterColumns+` FROM voters WHERE organization_id = $1 AND id = $2`, organizationID, id)
	voter, err := scanVoter(row)
	if err != nil {
		return domain.Voter{}, notFound(err, "voter")
	}
	return voter, nil
}

func (r *voterRepository) GetByIDForUpdate(ctx context.Context, organizationID, id uuid.UUID) (domain.Voter, error) {
	row := r.db.QueryRow(ctx, `SELECT `+voterColumns+` FROM voters WHERE organization_id = $1 AND id = $2 FOR UPDATE`, organizationID, id)
	voter, err := scanVoter(row)
	if err != nil {
		return domain.Voter{}, notFound(err, "voter")
	}
	return voter, nil
}

func (r *voterRepository) GetByIDs(ctx context.Context, organizationID uuid.UUID, ids []uuid.UUID) ([]domain.Voter, error) {
	if len(ids) == 0 {
		return []domain.Voter{}, nil
	}
	rows, err := r.db.Query(ctx, `SELECT `+voterColumns+` FROM voters WHERE organization_id = $1 AND id = ANY($2)`, organizationID, pgtype.FlatArray[uuid.UUID](ids))
	if err != nil {
		return nil, fmt.Errorf("failed to get voters: %w", err)
	}
	return collectVoters(rows)
}

func (r *voterRepository) List(ctx context.Context, organizationID uuid.UUID, filter domain.VoterFilter, limit int, offset int) ([]domain.Voter, int, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	q := newVoterQuery(organizationID).applyFilter(filter)

	countSQL, countArgs := q.countSQL()
	var total int
	if err := r.db.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count voters: %w", err)
	}

	selectSQL, selectArgs := q.selectSQL(limit, offset)
	rows, err := r.db.Query(ctx, selectSQL, selectArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list voters: %w", err)
	}
	voters, err := collectVoters(rows)
	if err != nil {
		return nil, 0, err
	}
	return voters, total, nil
}

func (r *voterRepository) ListImportedByPhone(ctx context.Context, organizationID uuid.UUID, phone string) ([]domain.Voter, error) {
	rows, err := r.db.Query(
		ctx,
		`SELECT `+voterColumns+`
		 FROM voters
		 WHERE organization_id = $1
		   AND source = 'import'
		   AND phone = $2
		 ORDER BY created_at, id`,
		organizationID,
		phone,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list voters by phone: %w", err)
	}
	return collectVoters(rows)
}

func (r *voterRepository) MarkMerged(ctx context.Context, organizationID, id, targetID uuid.UUID) error {
	tag, err := r.db.Exec(
		ctx,
		`UPDATE voters
		 SET merged_into_voter_id = $3, updated_at = now()
		 WHERE organization_id = $1 AND id = $2 AND merged_into_voter_id IS NULL`,
		organizationID,
		id,
		targetID,
	)
	if err != nil {
		return fmt.Errorf("failed to mark voter merged: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: voter already merged or missing", domain.ErrConflict)
	}
	return nil
}

func scanVoter(row pgx.Row, extra ...any) (domain.Voter, error) {
	var (
		voter  domain.Voter
		source string
	)
	dest := []any{
		&voter.ID,
		&voter.OrganizationID,
		&voter.ExternalID,
		&source,
		&voter.MergedIntoVoterID,
		&voter.FirstName,
		&voter.MiddleName,
		&voter.LastName,
		&voter.Suffix,
		&voter.Age,
		&voter.Gender,
		&voter.Race,
		&voter.Party,
		&voter.Phone,
		&voter.Email,
		&voter.Address,
		&voter.Unit,
		&voter.City,
		&voter.State,
		&voter.Zip,
		&voter.Latitude,
		&voter.Longitude,
		&voter.CreatedAt,
		&voter.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return domain.Voter{}, err
	}
	voter.Source = domain.VoterSource(source)
	return voter, nil
}

func collectVoters(rows pgx.Rows) ([]domain.Voter, error) {
	defer rows.Close()

	voters := []domain.Voter{}
	for rows.Next() {
		voter, err := scanVoter(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan voter: %w", err)
		}
		voters = append(voters, voter)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate voters: %w", err)
	}
	return voters, nil
}

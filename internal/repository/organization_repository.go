package repository

import (
	"context"
	"fmt"

	"github.com/rpattn/canvass/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// organizationRepository implements OrganizationRepository interface
type organizationRepository struct {
	db DBTX
}

// NewOrganizationRepository creates a new organization repository
func NewOrganizationRepository(db DBTX) OrganizationRepository {
	return &organizationRepository{db: db}
}

// Create creates a new organization
func (r *organizationRepository) Create(ctx context.Context, org domain.Organization) (domain.Organization, error) {
	if org.ID == uuid.Nil {
		org.ID = uuid.New()
	}
	row := r.db.QueryRow(
		ctx,
		`INSERT INTO organizations (id, name, description)
		 VALUES ($1, $2, $3)
		 RETURNING id, name, description, created_at, updated_at`,
		org.ID,
		org.Name,
		org.Description,
	)
	created, err := scanOrganization(row)
	if err != nil {
		if isUniqueViolation(err, "") {
			return domain.Organization{}, fmt.Errorf("%w: organization %q already exists", domain.ErrConflict, org.Name)
		}
		return domain.Organization{}, fmt.Errorf("failed to create organization: %w", err)
	}
	return created, nil
}

// GetByID retrieves an organization by ID
func (r *organizationRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.Organization, error) {
	row := r.db.QueryRow(ctx, `SELECT id, name, description, created_at, updated_at FROM organizations WHERE id = $1`, id)
	org, err := scanOrganization(row)
	if err != nil {
		return domain.Organization{}, notFound(err, "organization")
	}
	return org, nil
}

// GetByName retrieves an organization by name
func (r *organizationRepository) GetByName(ctx context.Context, name string) (domain.Organization, error) {
	row := r.db.QueryRow(ctx, `SELECT id, name, description, created_at, updated_at FROM organizations WHERE name = $1`, name)
	org, err := scanOrganization(row)
	if err != nil {
		return domain.Organization{}, notFound(err, "organization")
	}
	return org, nil
}

// List retrieves all organizations
func (r *organizationRepository) List(ctx context.Context) ([]domain.Organization, error) {
	rows, err := r.db.Query(ctx, `SELECT id, name, description, created_at, updated_at FROM organizations ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list organizations: %w", err)
	}
	defer rows.Close()

	organizations := []domain.Organization{}
	for rows.Next() {
		org, scanErr := scanOrganization(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan organization: %w", scanErr)
		}
		organizations = append(organizations, org)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate organizations: %w", rowsErr)
	}

	return organizations, nil
}

func scanOrganization(row pgx.Row) (domain.Organization, error) {
	var org domain.Organization
	if err := row.Scan(&org.ID, &org.Name, &org.Description, &org.CreatedAt, &org.UpdatedAt); err != nil {
		return domain.Organization{}, err
	}
	return org, nil
}

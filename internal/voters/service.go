// Package voters owns manual voter writes. Every write that sets a lead's
// phone runs duplicate detection in the same transaction.
package voters

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/rpattn/canvass/internal/domain"
	"github.com/rpattn/canvass/internal/repository"
)

// Detector raises merge alerts for a freshly written voter.
type Detector interface {
	Detect(ctx context.Context, repos repository.Repositories, voter domain.Voter) (int, error)
}

// LeadInput is a manually entered voter.
type LeadInput struct {
	ExternalID *string
	FirstName  string
	MiddleName *string
	LastName   string
	Suffix     *string
	Age        *int
	Gender     *string
	Race       *string
	Party      *string
	Phone      *string
	Email      *string
	Address    string
	Unit       *string
	City       string
	State      string
	Zip        string
	Latitude   *float64
	Longitude  *float64
}

// Patch carries the fields to change. Nil fields are left as they are.
// Source, external id and merge state cannot be patched.
type Patch struct {
	FirstName  *string
	MiddleName *string
	LastName   *string
	Suffix     *string
	Age        *int
	Gender     *string
	Race       *string
	Party      *string
	Phone      *string
	Email      *string
	Address    *string
	Unit       *string
	City       *string
	State      *string
	Zip        *string
	Latitude   *float64
	Longitude  *float64
}

// WriteResult is a saved voter plus the alerts its write raised.
type WriteResult struct {
	Voter         domain.Voter `json:"voter"`
	AlertsCreated int          `json:"alertsCreated"`
}

type Service struct {
	store    repository.Store
	detector Detector
}

func NewService(store repository.Store, detector Detector) *Service {
	return &Service{store: store, detector: detector}
}

// CreateLead stores a manual voter and flags imported voters with its phone.
func (s *Service) CreateLead(ctx context.Context, tenantID uuid.UUID, in LeadInput) (WriteResult, error) {
	if tenantID == uuid.Nil {
		return WriteResult{}, fmt.Errorf("%w: tenant is required", domain.ErrValidation)
	}
	if strings.TrimSpace(in.FirstName) == "" || strings.TrimSpace(in.LastName) == "" {
		return WriteResult{}, fmt.Errorf("%w: first and last name are required", domain.ErrValidation)
	}

	voter := domain.Voter{
		OrganizationID: tenantID,
		ExternalID:     trimmed(in.ExternalID),
		Source:         domain.VoterSourceManual,
		FirstName:      strings.TrimSpace(in.FirstName),
		MiddleName:     trimmed(in.MiddleName),
		LastName:       strings.TrimSpace(in.LastName),
		Suffix:         trimmed(in.Suffix),
		Age:            in.Age,
		Gender:         trimmed(in.Gender),
		Race:           trimmed(in.Race),
		Party:          trimmed(in.Party),
		Phone:          trimmed(in.Phone),
		Email:          trimmed(in.Email),
		Address:        orDefault(in.Address, "Unknown"),
		Unit:           trimmed(in.Unit),
		City:           orDefault(in.City, "Unknown"),
		State:          orDefault(in.State, "NA"),
		Zip:            orDefault(in.Zip, "00000"),
	}
	if in.Latitude != nil {
		voter.Latitude = *in.Latitude
	}
	if in.Longitude != nil {
		voter.Longitude = *in.Longitude
	}

	var result WriteResult
	err := s.store.WithTx(ctx, func(repos repository.Repositories) error {
		saved, err := repos.Voters.CreateManual(ctx, voter)
		if err != nil {
			return err
		}
		created, err := s.detector.Detect(ctx, repos, saved)
		if err != nil {
			return err
		}
		result = WriteResult{Voter: saved, AlertsCreated: created}
		return nil
	})
	if err != nil {
		return WriteResult{}, err
	}
	return result, nil
}

// Update applies patch. Detection re-runs only when a manual voter's phone
// changes to a non-empty value; alerts raised under an old phone stay open.
func (s *Service) Update(ctx context.Context, tenantID, voterID uuid.UUID, patch Patch) (WriteResult, error) {
	var result WriteResult
	err := s.store.WithTx(ctx, func(repos repository.Repositories) error {
		current, err := repos.Voters.GetByIDForUpdate(ctx, tenantID, voterID)
		if err != nil {
			return err
		}
		previousPhone := current.PhoneValue()

		next, err := applyPatch(current, patch)
		if err != nil {
			return err
		}
		saved, err := repos.Voters.Update(ctx, next)
		if err != nil {
			return err
		}
		result.Voter = saved

		if phone := saved.PhoneValue(); phone != "" && phone != previousPhone {
			created, err := s.detector.Detect(ctx, repos, saved)
			if err != nil {
				return err
			}
			result.AlertsCreated = created
		}
		return nil
	})
	if err != nil {
		return WriteResult{}, err
	}
	return result, nil
}

func (s *Service) Get(ctx context.Context, tenantID, voterID uuid.UUID) (domain.Voter, error) {
	return s.store.Repos().Voters.GetByID(ctx, tenantID, voterID)
}

// List returns one page of tenant voters and the total match count.
func (s *Service) List(ctx context.Context, tenantID uuid.UUID, filter domain.VoterFilter, limit, offset int) ([]domain.Voter, int, error) {
	if filter.Source != "" && !filter.Source.Valid() {
		return nil, 0, fmt.Errorf("%w: unknown source %q", domain.ErrValidation, filter.Source)
	}
	return s.store.Repos().Voters.List(ctx, tenantID, filter, limit, offset)
}

func applyPatch(v domain.Voter, p Patch) (domain.Voter, error) {
	required := func(dst *string, value *string, name string) error {
		if value == nil {
			return nil
		}
		trimmedValue := strings.TrimSpace(*value)
		if trimmedValue == "" {
			return fmt.Errorf("%w: %s cannot be blank", domain.ErrValidation, name)
		}
		*dst = trimmedValue
		return nil
	}
	for _, f := range []struct {
		dst   *string
		value *string
		name  string
	}{
		{&v.FirstName, p.FirstName, "first_name"},
		{&v.LastName, p.LastName, "last_name"},
		{&v.Address, p.Address, "address"},
		{&v.City, p.City, "city"},
		{&v.State, p.State, "state"},
		{&v.Zip, p.Zip, "zip"},
	} {
		if err := required(f.dst, f.value, f.name); err != nil {
			return domain.Voter{}, err
		}
	}

	// Optional fields: an empty string clears the value.
	for _, f := range []struct {
		dst   **string
		value *string
	}{
		{&v.MiddleName, p.MiddleName},
		{&v.Suffix, p.Suffix},
		{&v.Gender, p.Gender},
		{&v.Race, p.Race},
		{&v.Party, p.Party},
		{&v.Phone, p.Phone},
		{&v.Email, p.Email},
		{&v.Unit, p.Unit},
	} {
		if f.value != nil {
			*f.dst = domain.StringPtr(*f.value)
		}
	}

	if p.Age != nil {
		v.Age = p.Age
	}
	if p.Latitude != nil {
		v.Latitude = *p.Latitude
	}
	if p.Longitude != nil {
		v.Longitude = *p.Longitude
	}
	return v, nil
}

func trimmed(value *string) *string {
	if value == nil {
		return nil
	}
	return domain.StringPtr(*value)
}

func orDefault(value, fallback string) string {
	if t := strings.TrimSpace(value); t != "" {
		return t
	}
	return fallback
}

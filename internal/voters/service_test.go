package voters

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpattn/canvass/internal/domain"
	"github.com/rpattn/canvass/internal/reconcile"
	"github.com/rpattn/canvass/internal/testutil/memstore"
)

type nopRecorder struct{}

func (nopRecorder) Merged(bool)       {}
func (nopRecorder) AlertsCreated(int) {}

type fixture struct {
	store   *memstore.Store
	org     domain.Organization
	service *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memstore.New()
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	detector := reconcile.NewService(store, reconcile.WithMetrics(nopRecorder{}), reconcile.WithLogger(logrus.NewEntry(logger)))
	return &fixture{
		store:   store,
		org:     store.SeedOrganization("Ward 7"),
		service: NewService(store, detector),
	}
}

func (f *fixture) imported(externalID, phone string) domain.Voter {
	return f.store.SeedVoter(domain.Voter{
		OrganizationID: f.org.ID,
		ExternalID:     domain.StringPtr(externalID),
		Source:         domain.VoterSourceImport,
		FirstName:      "Imported",
		LastName:       externalID,
		Phone:          domain.StringPtr(phone),
	})
}

func ptr[T any](v T) *T { return &v }

func TestCreateLeadRaisesAlertInSameWrite(t *testing.T) {
	f := newFixture(t)
	imp := f.imported("IMP-1", "555-1111")

	result, err := f.service.CreateLead(context.Background(), f.org.ID, LeadInput{
		FirstName: " Dana ",
		LastName:  "Reyes",
		Phone:     ptr("555-1111"),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.AlertsCreated)
	assert.Equal(t, domain.VoterSourceManual, result.Voter.Source)
	assert.Equal(t, "Dana", result.Voter.FirstName)
	assert.Equal(t, "Unknown", result.Voter.Address)
	assert.Equal(t, "NA", result.Voter.State)
	assert.Equal(t, "00000", result.Voter.Zip)

	alerts := f.store.Alerts(f.org.ID)
	require.Len(t, alerts, 1)
	assert.Equal(t, result.Voter.ID, alerts[0].LeadVoterID)
	assert.Equal(t, imp.ID, alerts[0].ImportedVoterID)
}

func TestCreateLeadValidates(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.CreateLead(context.Background(), f.org.ID, LeadInput{FirstName: "Dana"})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.service.CreateLead(context.Background(), uuid.Nil, LeadInput{FirstName: "Dana", LastName: "Reyes"})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestCreateLeadRollsBackOnConflict(t *testing.T) {
	f := newFixture(t)
	f.imported("IMP-1", "555-1111")

	_, err := f.service.CreateLead(context.Background(), f.org.ID, LeadInput{
		ExternalID: ptr("IMP-1"),
		FirstName:  "Dana",
		LastName:   "Reyes",
		Phone:      ptr("555-1111"),
	})
	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.Empty(t, f.store.Alerts(f.org.ID))
	assert.Len(t, f.store.VotersByOrganization(f.org.ID), 1)
}

func TestUpdateRerunsDetectionOnlyWhenPhoneChanges(t *testing.T) {
	f := newFixture(t)
	f.imported("IMP-1", "555-1111")
	created, err := f.service.CreateLead(context.Background(), f.org.ID, LeadInput{
		FirstName: "Dana",
		LastName:  "Reyes",
		Phone:     ptr("555-9999"),
	})
	require.NoError(t, err)
	require.Zero(t, created.AlertsCreated)
	id := created.Voter.ID

	result, err := f.service.Update(context.Background(), f.org.ID, id, Patch{Phone: ptr("555-1111")})
	require.NoError(t, err)
	assert.Equal(t, 1, result.AlertsCreated)
	assert.Equal(t, "555-1111", result.Voter.PhoneValue())

	// Saving the same lead again leaves the single alert alone.
	result, err = f.service.Update(context.Background(), f.org.ID, id, Patch{FirstName: ptr("Dani"), Phone: ptr("555-1111")})
	require.NoError(t, err)
	assert.Zero(t, result.AlertsCreated)
	assert.Equal(t, "Dani", result.Voter.FirstName)

	result, err = f.service.Update(context.Background(), f.org.ID, id, Patch{Phone: ptr("")})
	require.NoError(t, err)
	assert.Nil(t, result.Voter.Phone)

	result, err = f.service.Update(context.Background(), f.org.ID, id, Patch{Phone: ptr("555-1111")})
	require.NoError(t, err)
	assert.Zero(t, result.AlertsCreated, "pair already has an alert")

	assert.Len(t, f.store.Alerts(f.org.ID), 1)
}

func TestUpdateKeepsSourceAndRejectsBlankNames(t *testing.T) {
	f := newFixture(t)
	imp := f.imported("IMP-1", "555-1111")

	result, err := f.service.Update(context.Background(), f.org.ID, imp.ID, Patch{City: ptr("Carmel"), Phone: ptr("555-2222")})
	require.NoError(t, err)
	assert.Equal(t, domain.VoterSourceImport, result.Voter.Source)
	assert.Equal(t, "Carmel", result.Voter.City)
	assert.Zero(t, result.AlertsCreated)

	_, err = f.service.Update(context.Background(), f.org.ID, imp.ID, Patch{LastName: ptr("  ")})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.service.Update(context.Background(), uuid.New(), imp.ID, Patch{City: ptr("Carmel")})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListFiltersAndValidates(t *testing.T) {
	f := newFixture(t)
	f.imported("IMP-1", "555-1111")
	_, err := f.service.CreateLead(context.Background(), f.org.ID, LeadInput{FirstName: "Dana", LastName: "Reyes"})
	require.NoError(t, err)

	voters, total, err := f.service.List(context.Background(), f.org.ID, domain.VoterFilter{Source: domain.VoterSourceManual}, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, voters, 1)
	assert.Equal(t, "Dana", voters[0].FirstName)

	_, _, err = f.service.List(context.Background(), f.org.ID, domain.VoterFilter{Source: "robot"}, 10, 0)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

package reconcile

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpattn/canvass/internal/auth"
	"github.com/rpattn/canvass/internal/domain"
)

func (f *fixture) router() http.Handler {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	r := mux.NewRouter()
	NewHandler(f.service, f.store.Repos().Voters, logrus.NewEntry(logger)).Register(r)
	return auth.Middleware(nil)(r)
}

func (f *fixture) do(role string, req *http.Request) *httptest.ResponseRecorder {
	req.Header.Set(auth.HeaderOrganizationID, f.org.ID.String())
	req.Header.Set(auth.HeaderRole, role)
	rec := httptest.NewRecorder()
	f.router().ServeHTTP(rec, req)
	return rec
}

func TestHandlerRequiresAdmin(t *testing.T) {
	f := newFixture(t)
	rec := f.do(auth.RoleCanvasser, httptest.NewRequest(http.MethodGet, "/api/merge-alerts", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHandlerListsHydratedAlerts(t *testing.T) {
	f := newFixture(t)
	imp := f.imported("IMP-1", "555-1111")
	lead := f.lead("555-1111")
	f.detect(t, lead)

	rec := f.do(auth.RoleAdmin, httptest.NewRequest(http.MethodGet, "/api/merge-alerts", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		Items []alertView `json:"items"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Items, 1)
	require.NotNil(t, body.Items[0].LeadVoter)
	require.NotNil(t, body.Items[0].ImportedVoter)
	assert.Equal(t, lead.ID, body.Items[0].LeadVoter.ID)
	assert.Equal(t, imp.ID, body.Items[0].ImportedVoter.ID)

	rec = f.do(auth.RoleAdmin, httptest.NewRequest(http.MethodGet, "/api/merge-alerts?status=nope", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerMergeAndStatus(t *testing.T) {
	f := newFixture(t)
	imp := f.imported("IMP-1", "555-1111")
	lead := f.lead("555-1111")
	f.imported("IMP-2", "555-1111")
	f.detect(t, lead)

	body := `{"targetVoterId":"` + imp.ID.String() + `"}`
	rec := f.do(auth.RoleAdmin, httptest.NewRequest(http.MethodPost, "/api/voters/"+lead.ID.String()+"/merge", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result MergeResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.True(t, result.Merged)
	assert.False(t, result.Idempotent)

	var open domain.MergeAlert
	for _, a := range f.store.Alerts(f.org.ID) {
		if a.Status == domain.MergeAlertStatusOpen {
			open = a
		}
	}
	require.NotEqual(t, domain.MergeAlert{}, open)

	statusURL := "/api/merge-alerts/" + open.ID.String() + "/status"
	rec = f.do(auth.RoleAdmin, httptest.NewRequest(http.MethodPost, statusURL, strings.NewReader(`{"status":"dismissed"}`)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(auth.RoleAdmin, httptest.NewRequest(http.MethodPost, statusURL, strings.NewReader(`{"status":"resolved"}`)))
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(auth.RoleAdmin, httptest.NewRequest(http.MethodPost, statusURL, strings.NewReader(`{"status":"open"}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerMergeValidation(t *testing.T) {
	f := newFixture(t)
	lead := f.lead("555-1111")
	url := "/api/voters/" + lead.ID.String() + "/merge"

	rec := f.do(auth.RoleAdmin, httptest.NewRequest(http.MethodPost, url, strings.NewReader(`{"targetVoterId":"nope"}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(auth.RoleAdmin, httptest.NewRequest(http.MethodPost, url, strings.NewReader(`{"targetVoterId":"`+lead.ID.String()+`"}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

package ingestion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpattn/canvass/internal/auth"
	"github.com/rpattn/canvass/internal/domain"
	"github.com/rpattn/canvass/internal/storage"
	"github.com/rpattn/canvass/internal/testutil/memstore"
)

func TestSubmitCreatesJobAndMessageTogether(t *testing.T) {
	store := memstore.New()
	org := store.SeedOrganization("Ward 7")
	user := uuid.New()

	job, err := NewSubmitter(store).Submit(context.Background(), SubmitRequest{
		TenantID: org.ID,
		UserID:   user,
		Voters:   []map[string]any{{"external_id": "IMP-1"}},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ImportJobStatusPending, job.Status)
	assert.Equal(t, domain.ImportPhaseQueued, job.Metadata.Phase)
	assert.Equal(t, 1, job.Metadata.TotalRows)

	queued := store.Queued()
	require.Len(t, queued, 1)
	assert.Equal(t, JobName, queued[0].JobName)
	assert.Equal(t, org.ID, queued[0].TenantID)

	payload, err := DecodePayload(queued[0].Payload)
	require.NoError(t, err)
	assert.Equal(t, job.ID, payload.JobID)
	assert.Equal(t, user, payload.UserID)
	assert.Len(t, payload.Voters, 1)
}

func TestSubmitRollsBackJobWhenEnqueueFails(t *testing.T) {
	store := memstore.New()
	org := store.SeedOrganization("Ward 7")
	store.FailEnqueue = errors.New("queue down")

	_, err := NewSubmitter(store).Submit(context.Background(), SubmitRequest{TenantID: org.ID, FileKey: storage.ImportKey(org.ID, "a.csv")})
	require.Error(t, err)

	jobs, err := store.Repos().ImportJobs.List(context.Background(), org.ID, nil, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, jobs)
	assert.Empty(t, store.Queued())
}

func TestSubmitValidates(t *testing.T) {
	store := memstore.New()
	org := store.SeedOrganization("Ward 7")
	s := NewSubmitter(store)

	_, err := s.Submit(context.Background(), SubmitRequest{TenantID: org.ID})
	assert.ErrorIs(t, err, domain.ErrValidation)

	missing := uuid.New()
	_, err = s.Submit(context.Background(), SubmitRequest{TenantID: missing, FileKey: storage.ImportKey(missing, "a.csv")})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = s.ListJobs(context.Background(), org.ID, ptr(domain.ImportJobStatus("bogus")), 10, 0)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestSubmitRejectsFileKeysOfOtherTenants(t *testing.T) {
	store := memstore.New()
	org := store.SeedOrganization("Ward 7")
	other := store.SeedOrganization("Ward 8")
	s := NewSubmitter(store)

	for _, key := range []string{
		storage.ImportKey(other.ID, "voters.csv"),
		"imports/" + org.ID.String() + "/../" + other.ID.String() + "/x/voters.csv",
		"imports/" + org.ID.String() + "/",
		"voters.csv",
	} {
		_, err := s.Submit(context.Background(), SubmitRequest{TenantID: org.ID, FileKey: key})
		assert.ErrorIs(t, err, domain.ErrValidation, key)
	}

	jobs, err := store.Repos().ImportJobs.List(context.Background(), org.ID, nil, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, jobs)
	assert.Empty(t, store.Queued())
}

func ptr[T any](v T) *T { return &v }

type handlerFixture struct {
	store   *memstore.Store
	org     domain.Organization
	objects *stubObjects
	router  *mux.Router
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	store := memstore.New()
	f := &handlerFixture{
		store:   store,
		org:     store.SeedOrganization("Ward 7"),
		objects: &stubObjects{files: map[string][]byte{}},
		router:  mux.NewRouter(),
	}
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	NewHandler(NewSubmitter(store), f.objects, logrus.NewEntry(logger)).Register(f.router)
	return f
}

func (f *handlerFixture) do(req *http.Request) *httptest.ResponseRecorder {
	req.Header.Set(auth.HeaderOrganizationID, f.org.ID.String())
	rec := httptest.NewRecorder()
	auth.Middleware(nil)(f.router).ServeHTTP(rec, req)
	return rec
}

func TestHandlerSubmitInline(t *testing.T) {
	f := newHandlerFixture(t)

	body := `{"voters":[{"external_id":"IMP-1","first_name":"A"}]}`
	rec := f.do(httptest.NewRequest(http.MethodPost, "/api/imports", strings.NewReader(body)))
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var resp submitResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, domain.ImportJobStatusPending, resp.Status)

	rec = f.do(httptest.NewRequest(http.MethodGet, "/api/imports/"+resp.JobID, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"pending"`)

	rec = f.do(httptest.NewRequest(http.MethodGet, "/api/imports?status=pending", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), resp.JobID)
}

func TestHandlerSubmitRequiresRows(t *testing.T) {
	f := newHandlerFixture(t)

	rec := f.do(httptest.NewRequest(http.MethodPost, "/api/imports", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "voters")

	rec = f.do(httptest.NewRequest(http.MethodPost, "/api/imports", strings.NewReader(`{not json`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerSubmitRejectsForeignFileKey(t *testing.T) {
	f := newHandlerFixture(t)
	other := f.store.SeedOrganization("Ward 8")
	foreign := storage.ImportKey(other.ID, "voters.csv")
	f.objects.files[foreign] = []byte("VOTER ID\nV1\n")

	body, err := json.Marshal(map[string]string{"fileKey": foreign})
	require.NoError(t, err)
	rec := f.do(httptest.NewRequest(http.MethodPost, "/api/imports", bytes.NewReader(body)))
	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "fileKey")
	assert.Empty(t, f.store.Queued())

	jobs, err := f.store.Repos().ImportJobs.List(context.Background(), f.org.ID, nil, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestHandlerGetIsTenantScoped(t *testing.T) {
	f := newHandlerFixture(t)
	other := f.store.SeedOrganization("Ward 8")
	job := f.store.SeedImportJob(domain.ImportJob{
		OrganizationID: other.ID,
		Type:           domain.ImportJobTypeVoters,
		Status:         domain.ImportJobStatusPending,
	})

	rec := f.do(httptest.NewRequest(http.MethodGet, "/api/imports/"+job.ID.String(), nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(httptest.NewRequest(http.MethodGet, "/api/imports/not-a-uuid", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerUploadStoresFileAndSubmits(t *testing.T) {
	f := newHandlerFixture(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "voters.csv")
	require.NoError(t, err)
	_, err = part.Write([]byte("VOTER ID\nV1\n"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/imports/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := f.do(req)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	require.Len(t, f.objects.files, 1)
	var key string
	for k := range f.objects.files {
		key = k
	}
	assert.True(t, strings.HasPrefix(key, "imports/"+f.org.ID.String()+"/"))
	assert.True(t, strings.HasSuffix(key, "/voters.csv"))

	queued := f.store.Queued()
	require.Len(t, queued, 1)
	payload, err := DecodePayload(queued[0].Payload)
	require.NoError(t, err)
	assert.Equal(t, key, payload.FileKey)
}

func TestHandlerUploadRejectsUnsupportedFiles(t *testing.T) {
	f := newHandlerFixture(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "voters.pdf")
	require.NoError(t, err)
	_, _ = part.Write([]byte("%PDF"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/imports/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := f.do(req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, f.objects.files)
}

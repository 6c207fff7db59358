package ingestion

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/rpattn/canvass/internal/api"
	"github.com/rpattn/canvass/internal/domain"
	"github.com/rpattn/canvass/internal/storage"
	"github.com/rpattn/canvass/pkg/validator"
)

const defaultMaxUploadBytes = 50 << 20

type submitRequest struct {
	Voters   []map[string]any `json:"voters" validate:"required_without=FileKey,max=100000"`
	FileKey  string           `json:"fileKey" validate:"required_without=Voters,max=1024"`
	FileName string           `json:"fileName" validate:"max=255"`
}

type submitResponse struct {
	JobID  string                 `json:"jobId"`
	Status domain.ImportJobStatus `json:"status"`
}

// Handler exposes import submission and polling over HTTP. It never runs an
// import itself.
type Handler struct {
	submitter      *Submitter
	objects        storage.ObjectStore
	validate       *validator.Validator
	logger         *logrus.Entry
	maxUploadBytes int64
}

func NewHandler(submitter *Submitter, objects storage.ObjectStore, logger *logrus.Entry) *Handler {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Handler{
		submitter:      submitter,
		objects:        objects,
		validate:       validator.New(),
		logger:         logger.WithField("component", "import_http"),
		maxUploadBytes: defaultMaxUploadBytes,
	}
}

// Register mounts the import routes on r.
func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/api/imports", h.submit).Methods(http.MethodPost)
	r.HandleFunc("/api/imports/upload", h.upload).Methods(http.MethodPost)
	r.HandleFunc("/api/imports", h.list).Methods(http.MethodGet)
	r.HandleFunc("/api/imports/{id}", h.get).Methods(http.MethodGet)
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	principal, ok := api.RequirePrincipal(w, r)
	if !ok {
		return
	}

	var req submitRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.WriteError(w, h.logger, err)
		return
	}
	if result := h.validate.Struct(req); !result.IsValid {
		api.WriteValidation(w, result)
		return
	}

	job, err := h.submitter.Submit(r.Context(), SubmitRequest{
		TenantID: principal.OrganizationID,
		UserID:   principal.UserID,
		Voters:   req.Voters,
		FileKey:  req.FileKey,
		FileName: req.FileName,
	})
	if err != nil {
		api.WriteError(w, h.logger, err)
		return
	}
	api.WriteJSON(w, http.StatusAccepted, submitResponse{JobID: job.ID.String(), Status: job.Status})
}

func (h *Handler) upload(w http.ResponseWriter, r *http.Request) {
	principal, ok := api.RequirePrincipal(w, r)
	if !ok {
		return
	}
	if h.objects == nil {
		api.WriteJSON(w, http.StatusServiceUnavailable, api.ErrorResponse{Error: "file uploads are not configured"})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			api.WriteJSON(w, http.StatusRequestEntityTooLarge, api.ErrorResponse{Error: "file too large"})
			return
		}
		api.WriteError(w, h.logger, fmt.Errorf("%w: multipart field \"file\" is required", domain.ErrValidation))
		return
	}
	defer file.Close()

	if !isSupportedUpload(header.Filename) {
		api.WriteError(w, h.logger, fmt.Errorf("%w: only .csv and .xlsx files are supported", domain.ErrValidation))
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		api.WriteError(w, h.logger, fmt.Errorf("failed to read upload: %w", err))
		return
	}

	key := storage.ImportKey(principal.OrganizationID, header.Filename)
	if err := h.objects.Put(r.Context(), key, data, header.Header.Get("Content-Type")); err != nil {
		api.WriteError(w, h.logger, err)
		return
	}

	job, err := h.submitter.Submit(r.Context(), SubmitRequest{
		TenantID: principal.OrganizationID,
		UserID:   principal.UserID,
		FileKey:  key,
		FileName: header.Filename,
	})
	if err != nil {
		api.WriteError(w, h.logger, err)
		return
	}
	api.WriteJSON(w, http.StatusAccepted, submitResponse{JobID: job.ID.String(), Status: job.Status})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	principal, ok := api.RequirePrincipal(w, r)
	if !ok {
		return
	}
	limit, offset, err := api.Page(r)
	if err != nil {
		api.WriteError(w, h.logger, err)
		return
	}

	var status *domain.ImportJobStatus
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		s := domain.ImportJobStatus(raw)
		status = &s
	}

	jobs, err := h.submitter.ListJobs(r.Context(), principal.OrganizationID, status, limit, offset)
	if err != nil {
		api.WriteError(w, h.logger, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{"items": jobs})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	principal, ok := api.RequirePrincipal(w, r)
	if !ok {
		return
	}
	id, err := api.PathUUID(r, "id")
	if err != nil {
		api.WriteError(w, h.logger, err)
		return
	}
	job, err := h.submitter.GetJob(r.Context(), principal.OrganizationID, id)
	if err != nil {
		api.WriteError(w, h.logger, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, job)
}

func isSupportedUpload(name string) bool {
	switch strings.ToLower(path.Ext(name)) {
	case ".csv", ".xlsx":
		return true
	}
	return false
}

package reconcile

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/rpattn/canvass/internal/api"
	"github.com/rpattn/canvass/internal/auth"
	"github.com/rpattn/canvass/internal/domain"
	"github.com/rpattn/canvass/internal/middleware"
	"github.com/rpattn/canvass/internal/repository"
	"github.com/rpattn/canvass/internal/voterloader"
	"github.com/rpattn/canvass/pkg/validator"
)

type mergeRequest struct {
	TargetVoterID string `json:"targetVoterId" validate:"required,uuid"`
}

type statusRequest struct {
	Status string `json:"status" validate:"required,oneof=resolved dismissed"`
}

// alertView is an alert with both voters attached.
type alertView struct {
	domain.MergeAlert
	LeadVoter     *domain.Voter `json:"lead_voter,omitempty"`
	ImportedVoter *domain.Voter `json:"imported_voter,omitempty"`
}

// Handler exposes merges and alert review. Every route requires the admin role.
type Handler struct {
	service  *Service
	voters   repository.VoterRepository
	validate *validator.Validator
	logger   *logrus.Entry
}

func NewHandler(service *Service, voters repository.VoterRepository, logger *logrus.Entry) *Handler {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Handler{
		service:  service,
		voters:   voters,
		validate: validator.New(),
		logger:   logger.WithField("component", "reconcile_http"),
	}
}

// Register mounts the reconciliation routes on r.
func (h *Handler) Register(r *mux.Router) {
	r.Handle("/api/voters/{id}/merge", auth.RequireAdmin(http.HandlerFunc(h.merge))).Methods(http.MethodPost)
	r.Handle("/api/merge-alerts", auth.RequireAdmin(http.HandlerFunc(h.listAlerts))).Methods(http.MethodGet)
	r.Handle("/api/merge-alerts/{id}/status", auth.RequireAdmin(http.HandlerFunc(h.updateStatus))).Methods(http.MethodPost)
}

func (h *Handler) merge(w http.ResponseWriter, r *http.Request) {
	principal, ok := api.RequirePrincipal(w, r)
	if !ok {
		return
	}
	leadID, err := api.PathUUID(r, "id")
	if err != nil {
		api.WriteError(w, h.logger, err)
		return
	}

	var req mergeRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.WriteError(w, h.logger, err)
		return
	}
	if result := h.validate.Struct(req); !result.IsValid {
		api.WriteValidation(w, result)
		return
	}

	result, err := h.service.Merge(r.Context(), MergeRequest{
		TenantID: principal.OrganizationID,
		UserID:   principal.UserID,
		LeadID:   leadID,
		TargetID: uuid.MustParse(req.TargetVoterID),
	})
	if err != nil {
		api.WriteError(w, h.logger, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) listAlerts(w http.ResponseWriter, r *http.Request) {
	principal, ok := api.RequirePrincipal(w, r)
	if !ok {
		return
	}
	limit, offset, err := api.Page(r)
	if err != nil {
		api.WriteError(w, h.logger, err)
		return
	}

	status := domain.MergeAlertStatusOpen
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		status = domain.MergeAlertStatus(raw)
	}

	alerts, err := h.service.ListAlerts(r.Context(), principal.OrganizationID, &status, limit, offset)
	if err != nil {
		api.WriteError(w, h.logger, err)
		return
	}
	views, err := h.hydrate(r.Context(), alerts)
	if err != nil {
		api.WriteError(w, h.logger, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{"items": views})
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	principal, ok := api.RequirePrincipal(w, r)
	if !ok {
		return
	}
	alertID, err := api.PathUUID(r, "id")
	if err != nil {
		api.WriteError(w, h.logger, err)
		return
	}

	var req statusRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.WriteError(w, h.logger, err)
		return
	}
	if result := h.validate.Struct(req); !result.IsValid {
		api.WriteValidation(w, result)
		return
	}

	alert, err := h.service.UpdateAlertStatus(r.Context(), principal.OrganizationID, alertID, principal.UserID, domain.MergeAlertStatus(req.Status))
	if err != nil {
		api.WriteError(w, h.logger, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, alert)
}

// hydrate attaches both voters to each alert through the request loader so
// the page costs one voter query instead of two per alert.
func (h *Handler) hydrate(ctx context.Context, alerts []domain.MergeAlert) ([]alertView, error) {
	loader := middleware.VoterLoaderFromContext(ctx)
	if loader == nil {
		loader = voterloader.NewVoterLoader(h.voters)
	}

	type pending struct {
		lead, imported func() (interface{}, error)
	}
	thunks := make([]pending, len(alerts))
	for i, a := range alerts {
		thunks[i] = pending{
			lead:     loader.Loader.Load(ctx, voterloader.Key{OrganizationID: a.OrganizationID, VoterID: a.LeadVoterID}),
			imported: loader.Loader.Load(ctx, voterloader.Key{OrganizationID: a.OrganizationID, VoterID: a.ImportedVoterID}),
		}
	}

	views := make([]alertView, len(alerts))
	for i, a := range alerts {
		lead, err := voterFromThunk(thunks[i].lead)
		if err != nil {
			return nil, err
		}
		imported, err := voterFromThunk(thunks[i].imported)
		if err != nil {
			return nil, err
		}
		views[i] = alertView{MergeAlert: a, LeadVoter: lead, ImportedVoter: imported}
	}
	return views, nil
}

func voterFromThunk(thunk func() (interface{}, error)) (*domain.Voter, error) {
	data, err := thunk()
	if err != nil {
		return nil, err
	}
	v, ok := data.(domain.Voter)
	if !ok {
		return nil, nil
	}
	return &v, nil
}


package voters

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/rpattn/canvass/internal/api"
	"github.com/rpattn/canvass/internal/domain"
	"github.com/rpattn/canvass/pkg/validator"
)

type createRequest struct {
	ExternalID *string  `json:"external_id" validate:"omitempty,max=128"`
	FirstName  string   `json:"first_name" validate:"required,max=128"`
	MiddleName *string  `json:"middle_name" validate:"omitempty,max=128"`
	LastName   string   `json:"last_name" validate:"required,max=128"`
	Suffix     *string  `json:"suffix" validate:"omitempty,max=32"`
	Age        *int     `json:"age" validate:"omitempty,min=0,max=150"`
	Gender     *string  `json:"gender" validate:"omitempty,max=32"`
	Race       *string  `json:"race" validate:"omitempty,max=64"`
	Party      *string  `json:"party" validate:"omitempty,max=64"`
	Phone      *string  `json:"phone" validate:"omitempty,max=32"`
	Email      *string  `json:"email" validate:"omitempty,email"`
	Address    string   `json:"address" validate:"max=256"`
	Unit       *string  `json:"unit" validate:"omitempty,max=64"`
	City       string   `json:"city" validate:"max=128"`
	State      string   `json:"state" validate:"max=32"`
	Zip        string   `json:"zip" validate:"max=16"`
	Latitude   *float64 `json:"latitude" validate:"omitempty,latitude"`
	Longitude  *float64 `json:"longitude" validate:"omitempty,longitude"`
}

type updateRequest struct {
	FirstName  *string  `json:"first_name" validate:"omitempty,max=128"`
	MiddleName *string  `json:"middle_name" validate:"omitempty,max=128"`
	LastName   *string  `json:"last_name" validate:"omitempty,max=128"`
	Suffix     *string  `json:"suffix" validate:"omitempty,max=32"`
	Age        *int     `json:"age" validate:"omitempty,min=0,max=150"`
	Gender     *string  `json:"gender" validate:"omitempty,max=32"`
	Race       *string  `json:"race" validate:"omitempty,max=64"`
	Party      *string  `json:"party" validate:"omitempty,max=64"`
	Phone      *string  `json:"phone" validate:"omitempty,max=32"`
	Email      *string  `json:"email" validate:"omitempty,max=256"`
	Address    *string  `json:"address" validate:"omitempty,max=256"`
	Unit       *string  `json:"unit" validate:"omitempty,max=64"`
	City       *string  `json:"city" validate:"omitempty,max=128"`
	State      *string  `json:"state" validate:"omitempty,max=32"`
	Zip        *string  `json:"zip" validate:"omitempty,max=16"`
	Latitude   *float64 `json:"latitude" validate:"omitempty,latitude"`
	Longitude  *float64 `json:"longitude" validate:"omitempty,longitude"`
}

type listResponse struct {
	Items []domain.Voter `json:"items"`
	Total int            `json:"total"`
}

type Handler struct {
	service  *Service
	validate *validator.Validator
	logger   *logrus.Entry
}

func NewHandler(service *Service, logger *logrus.Entry) *Handler {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Handler{service: service, validate: validator.New(), logger: logger.WithField("component", "voter_http")}
}

// Register mounts the voter routes on r.
func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/api/voters", h.create).Methods(http.MethodPost)
	r.HandleFunc("/api/voters", h.list).Methods(http.MethodGet)
	r.HandleFunc("/api/voters/{id}", h.get).Methods(http.MethodGet)
	r.HandleFunc("/api/voters/{id}", h.update).Methods(http.MethodPatch)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	principal, ok := api.RequirePrincipal(w, r)
	if !ok {
		return
	}
	var req createRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.WriteError(w, h.logger, err)
		return
	}
	if result := h.validate.Struct(req); !result.IsValid {
		api.WriteValidation(w, result)
		return
	}

	result, err := h.service.CreateLead(r.Context(), principal.OrganizationID, LeadInput{
		ExternalID: req.ExternalID,
		FirstName:  req.FirstName,
		MiddleName: req.MiddleName,
		LastName:   req.LastName,
		Suffix:     req.Suffix,
		Age:        req.Age,
		Gender:     req.Gender,
		Race:       req.Race,
		Party:      req.Party,
		Phone:      req.Phone,
		Email:      req.Email,
		Address:    req.Address,
		Unit:       req.Unit,
		City:       req.City,
		State:      req.State,
		Zip:        req.Zip,
		Latitude:   req.Latitude,
		Longitude:  req.Longitude,
	})
	if err != nil {
		api.WriteError(w, h.logger, err)
		return
	}
	api.WriteJSON(w, http.StatusCreated, result)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	principal, ok := api.RequirePrincipal(w, r)
	if !ok {
		return
	}
	id, err := api.PathUUID(r, "id")
	if err != nil {
		api.WriteError(w, h.logger, err)
		return
	}
	var req updateRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.WriteError(w, h.logger, err)
		return
	}
	if result := h.validate.Struct(req); !result.IsValid {
		api.WriteValidation(w, result)
		return
	}

	result, err := h.service.Update(r.Context(), principal.OrganizationID, id, Patch(req))
	if err != nil {
		api.WriteError(w, h.logger, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, result)
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
	voter, err := h.service.Get(r.Context(), principal.OrganizationID, id)
	if err != nil {
		api.WriteError(w, h.logger, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, voter)
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
	q := r.URL.Query()
	includeMerged, _ := strconv.ParseBool(q.Get("include_merged"))
	filter := domain.VoterFilter{
		Search:        strings.TrimSpace(q.Get("search")),
		Source:        domain.VoterSource(strings.TrimSpace(q.Get("source"))),
		Phone:         strings.TrimSpace(q.Get("phone")),
		IncludeMerged: includeMerged,
	}

	voters, total, err := h.service.List(r.Context(), principal.OrganizationID, filter, limit, offset)
	if err != nil {
		api.WriteError(w, h.logger, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, listResponse{Items: voters, Total: total})
}

package user

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"layoo/cmd/internal/httpx"
)

// Handler wires account endpoints.
type Handler struct {
	log *slog.Logger
	svc *Service
}

// NewHandler constructs a Handler. A nil svc makes every route answer 503.
func NewHandler(log *slog.Logger, svc *Service) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{log: log, svc: svc}
}

// Register wires user routes onto the provided mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mux.HandleFunc("POST /api/auth/register", h.handleRegister)
	mux.HandleFunc("PUT /api/auth/update", h.handleUpdate)
	mux.HandleFunc("POST /api/user/check-contacts", h.handleCheckContacts)
	mux.HandleFunc("PATCH /api/companies/{userID}/companies", h.handleAddCompany)
	mux.HandleFunc("GET /api/companies/{userID}/companies", h.handleCompanies)
}

func (h *Handler) writeErr(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrInvalidInput):
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", strings.TrimPrefix(err.Error(), ErrInvalidInput.Error()+": "))
	case errors.Is(err, ErrDuplicate):
		httpx.WriteError(w, http.StatusConflict, "handle_taken", "try again")
	case errors.Is(err, ErrNotFound):
		httpx.WriteError(w, http.StatusNotFound, "user_not_found", "user not found")
	default:
		h.log.Error(op+".fail", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "internal", "internal server error")
	}
}

func (h *Handler) available(w http.ResponseWriter) bool {
	if h.svc == nil {
		httpx.WriteUnavailable(w)
		return false
	}
	return true
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}
	var req RegisterInput
	if err := httpx.DecodeJSON(w, r, httpx.DefaultMaxBodyBytes, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	u, err := h.svc.Register(r.Context(), req)
	if err != nil {
		h.writeErr(w, "user.register", err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, map[string]any{"message": "registered", "user": u})
}

type updateRequest struct {
	UserID string `json:"userId"`
	Update
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}
	var req updateRequest
	if err := httpx.DecodeJSON(w, r, httpx.DefaultMaxBodyBytes, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	u, err := h.svc.Update(r.Context(), req.UserID, req.Update)
	if err != nil {
		h.writeErr(w, "user.update", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"message": "profile updated", "user": u})
}

func (h *Handler) handleCheckContacts(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}
	var req struct {
		Phones []string `json:"phones"`
	}
	if err := httpx.DecodeJSON(w, r, httpx.DefaultMaxBodyBytes, &req); err != nil || req.Phones == nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "phones must be an array")
		return
	}
	matches, err := h.svc.CheckContacts(r.Context(), req.Phones)
	if err != nil {
		h.writeErr(w, "user.check_contacts", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"matches": matches})
}

func (h *Handler) handleAddCompany(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}
	var req struct {
		CompanyID string `json:"companyID"`
	}
	if err := httpx.DecodeJSON(w, r, httpx.DefaultMaxBodyBytes, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	companies, err := h.svc.AddCompany(r.Context(), r.PathValue("userID"), req.CompanyID)
	if err != nil {
		h.writeErr(w, "user.companies.add", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"companies": companies})
}

func (h *Handler) handleCompanies(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}
	companies, err := h.svc.Companies(r.Context(), r.PathValue("userID"))
	if err != nil {
		h.writeErr(w, "user.companies.list", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"companies": companies})
}

package gift

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"layoo/cmd/internal/httpx"
	"layoo/cmd/internal/media"
)

// Handler wires gift endpoints.
type Handler struct {
	log    *slog.Logger
	svc    *Service
	intake *media.Intake
}

// NewHandler constructs a Handler. A nil svc makes every route answer 503.
func NewHandler(log *slog.Logger, svc *Service, intake *media.Intake) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{log: log, svc: svc, intake: intake}
}

// Register wires gift routes onto the provided mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mux.HandleFunc("POST /api/gift", h.handleCreate)
	mux.HandleFunc("GET /api/gift/received/{userId}", h.handleReceived)
	mux.HandleFunc("POST /api/gift/{id}/like", h.handleReact(Like, "gift liked"))
	mux.HandleFunc("POST /api/gift/{id}/dislike", h.handleReact(Dislike, "gift disliked"))
	mux.HandleFunc("POST /api/gift/{id}/read", h.handleRead)
}

func (h *Handler) writeErr(w http.ResponseWriter, op string, err error) {
	if status, code, ok := media.HTTPStatus(err); ok {
		if status >= 500 {
			h.log.Error(op+".fail", "err", err)
			httpx.WriteError(w, status, code, "media upload failed")
			return
		}
		httpx.WriteError(w, status, code, err.Error())
		return
	}
	switch {
	case errors.Is(err, ErrInvalidInput):
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", strings.TrimPrefix(err.Error(), ErrInvalidInput.Error()+": "))
	case errors.Is(err, ErrNotFound):
		httpx.WriteError(w, http.StatusNotFound, "gift_not_found", "gift not found")
	case errors.Is(err, ErrUnknownUser):
		httpx.WriteError(w, http.StatusNotFound, "user_not_found", "user not found")
	default:
		h.log.Error(op+".fail", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "internal", "internal server error")
	}
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	if h.svc == nil || h.intake == nil {
		httpx.WriteUnavailable(w)
		return
	}
	if err := h.intake.ParseForm(w, r, 1); err != nil {
		h.writeErr(w, "gift.create", err)
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	in := CreateInput{
		Owner:   r.FormValue("ownerId"),
		Type:    Type(r.FormValue("type")),
		Content: r.FormValue("content"),
		Caption: r.FormValue("caption"),
	}
	if raw := r.FormValue("recipientIds"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &in.Recipients); err != nil {
			h.writeErr(w, "gift.create", fmt.Errorf("%w: recipientIds must be a JSON array", ErrInvalidInput))
			return
		}
	}
	if len(r.MultipartForm.File["file"]) > 0 {
		f, err := h.intake.SaveField(r, "file")
		if err != nil {
			h.writeErr(w, "gift.create", err)
			return
		}
		in.File = &f
	}

	g, err := h.svc.Create(r.Context(), in)
	if err != nil {
		h.writeErr(w, "gift.create", err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, g)
}

func (h *Handler) handleReceived(w http.ResponseWriter, r *http.Request) {
	if h.svc == nil {
		httpx.WriteUnavailable(w)
		return
	}
	list, err := h.svc.Received(r.Context(), r.PathValue("userId"))
	if err != nil {
		h.writeErr(w, "gift.received", err)
		return
	}
	if list == nil {
		list = []Gift{}
	}
	httpx.WriteJSON(w, http.StatusOK, list)
}

type userRequest struct {
	UserID string `json:"userId"`
}

func (h *Handler) handleReact(reaction Reaction, okMsg string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.svc == nil {
			httpx.WriteUnavailable(w)
			return
		}
		var req userRequest
		if err := httpx.DecodeJSON(w, r, httpx.DefaultMaxBodyBytes, &req); err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
			return
		}
		if err := h.svc.React(r.Context(), r.PathValue("id"), req.UserID, reaction); err != nil {
			h.writeErr(w, "gift."+string(reaction), err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"message": okMsg})
	}
}

func (h *Handler) handleRead(w http.ResponseWriter, r *http.Request) {
	if h.svc == nil {
		httpx.WriteUnavailable(w)
		return
	}
	var req userRequest
	if err := httpx.DecodeJSON(w, r, httpx.DefaultMaxBodyBytes, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	viewers, err := h.svc.MarkRead(r.Context(), r.PathValue("id"), req.UserID)
	if err != nil {
		h.writeErr(w, "gift.read", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"message": "gift marked as read", "viewedBy": viewers})
}

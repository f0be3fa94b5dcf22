package post

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

// Handler wires post endpoints.
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

// Register wires post routes onto the provided mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mux.HandleFunc("POST /api/post", h.handleCreate)
	mux.HandleFunc("GET /api/post/received/{userID}", h.handleReceived)
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
	if err := h.intake.ParseForm(w, r, MaxFiles); err != nil {
		h.writeErr(w, "post.create", err)
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	in := CreateInput{
		Owner:          r.FormValue("userID"),
		Type:           Type(r.FormValue("type")),
		Title:          r.FormValue("title"),
		Content:        r.FormValue("contentText"),
		Visibility:     r.FormValue("visibility"),
		AppearOnSearch: r.FormValue("appearOnSearch") == "true",
		Name:           r.FormValue("name"),
		ProfileImage:   r.FormValue("profileImage"),
	}
	if raw := r.FormValue("contentFlags"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &in.ContentFlags); err != nil {
			h.writeErr(w, "post.create", fmt.Errorf("%w: contentFlags must be a JSON object of booleans", ErrInvalidInput))
			return
		}
	}
	if n := len(r.MultipartForm.File["files"]); n > MaxFiles {
		h.writeErr(w, "post.create", fmt.Errorf("%w: at most %d files", ErrInvalidInput, MaxFiles))
		return
	}

	files, err := h.intake.SaveAll(r, "files")
	if err != nil {
		h.writeErr(w, "post.create", err)
		return
	}
	in.Files = files

	p, err := h.svc.Create(r.Context(), in)
	if err != nil {
		h.writeErr(w, "post.create", err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, p)
}

func (h *Handler) handleReceived(w http.ResponseWriter, r *http.Request) {
	if h.svc == nil {
		httpx.WriteUnavailable(w)
		return
	}
	list, err := h.svc.Received(r.Context(), r.PathValue("userID"))
	if err != nil {
		h.writeErr(w, "post.received", err)
		return
	}
	if list == nil {
		list = []Post{}
	}
	httpx.WriteJSON(w, http.StatusOK, list)
}

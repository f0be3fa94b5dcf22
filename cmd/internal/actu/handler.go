package actu

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

// maxFiles bounds the number of files in one create request.
const maxFiles = 10

// Handler wires actu endpoints.
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

// Register wires actu routes onto the provided mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mux.HandleFunc("POST /api/actu", h.handleCreate)
	mux.HandleFunc("GET /api/actu/received/{userId}", h.handleReceived)
	mux.HandleFunc("POST /api/actu/mark-read", h.handleMarkRead)
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
		httpx.WriteError(w, http.StatusNotFound, "actu_not_found", "actu not found")
	default:
		h.log.Error(op+".fail", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "internal", "internal server error")
	}
}

// parseCreate reads the form fields of a create request. The legacy single-content form
// (content, caption, type) is turned into one part.
func parseCreate(r *http.Request) (CreateInput, error) {
	in := CreateInput{Owner: r.FormValue("owner")}

	if raw := r.FormValue("recipientIds"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &in.Recipients); err != nil {
			return in, fmt.Errorf("%w: recipientIds must be a JSON array", ErrInvalidInput)
		}
		if in.Recipients == nil {
			in.Recipients = []string{}
		}
	}

	if raw := r.FormValue("parts"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &in.Parts); err != nil {
			return in, fmt.Errorf("%w: parts is not valid JSON", ErrInvalidInput)
		}
		return in, nil
	}

	if content := r.FormValue("content"); content != "" {
		typ := PartType(r.FormValue("type"))
		if typ == "" {
			typ = PartPhoto
		}
		in.Parts = []PartInput{{Type: typ, Text: r.FormValue("caption"), URL: content}}
		return in, nil
	}
	return in, fmt.Errorf("%w: no content provided", ErrInvalidInput)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	if h.svc == nil || h.intake == nil {
		httpx.WriteUnavailable(w)
		return
	}
	if err := h.intake.ParseForm(w, r, maxFiles); err != nil {
		h.writeErr(w, "actu.create", err)
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	in, err := parseCreate(r)
	if err != nil {
		h.writeErr(w, "actu.create", err)
		return
	}

	in.Files = make(map[string]media.File)
	for field, headers := range r.MultipartForm.File {
		if !strings.HasPrefix(field, "file") || len(headers) == 0 {
			continue
		}
		if len(in.Files) >= maxFiles {
			media.Remove(filePaths(in.Files)...)
			httpx.WriteError(w, http.StatusBadRequest, "too_many_files", "too many files")
			return
		}
		f, err := h.intake.Save(field, headers[0])
		if err != nil {
			media.Remove(filePaths(in.Files)...)
			h.writeErr(w, "actu.create", err)
			return
		}
		in.Files[field] = f
	}

	sum, err := h.svc.Create(r.Context(), in)
	if err != nil {
		h.writeErr(w, "actu.create", err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, sum)
}

func (h *Handler) handleReceived(w http.ResponseWriter, r *http.Request) {
	if h.svc == nil {
		httpx.WriteUnavailable(w)
		return
	}
	list, err := h.svc.Received(r.Context(), r.PathValue("userId"))
	if err != nil {
		h.writeErr(w, "actu.received", err)
		return
	}
	if list == nil {
		list = []Summary{}
	}
	httpx.WriteJSON(w, http.StatusOK, list)
}

func (h *Handler) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	if h.svc == nil {
		httpx.WriteUnavailable(w)
		return
	}
	var req struct {
		ActuID string `json:"actuId"`
		UserID string `json:"userId"`
	}
	if err := httpx.DecodeJSON(w, r, httpx.DefaultMaxBodyBytes, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	if err := h.svc.MarkRead(r.Context(), req.ActuID, req.UserID); err != nil {
		h.writeErr(w, "actu.mark_read", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"message": "actu marked as read"})
}

package chat

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"layoo/cmd/internal/httpx"
	"layoo/cmd/internal/media"
)

// Handler wires the chat and conversation HTTP endpoints to a Service.
type Handler struct {
	log    *slog.Logger
	svc    *Service
	intake *media.Intake
}

// NewHandler constructs a Handler. intake may be nil, in which case file sends answer 503.
func NewHandler(log *slog.Logger, svc *Service, intake *media.Intake) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{log: log, svc: svc, intake: intake}
}

// Register wires chat routes onto the provided mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mux.HandleFunc("POST /api/chat/send", h.handleSendText)
	mux.HandleFunc("POST /api/chat/send-audio", h.fileSender("audioFile", h.svc.SendAudio, "Audio sent successfully"))
	mux.HandleFunc("POST /api/chat/send-document", h.fileSender("documentFile", h.svc.SendDocument, "Document sent successfully"))
	mux.HandleFunc("POST /api/chat/send-media", h.fileSender("mediaFile", h.svc.SendMedia, "Media sent successfully"))
	mux.HandleFunc("POST /api/chat/send-contact", h.handleSendContact)

	mux.HandleFunc("GET /api/conversations/{userID}", h.handleListConversations)
	mux.HandleFunc("POST /api/conversations", h.handleCreateConversation)
	mux.HandleFunc("GET /api/conversations/messages/unread/{userID}", h.handleUnread)
	mux.HandleFunc("PATCH /api/conversations/messages/seen", h.handleMarkSeen)
}

type sendResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	MessageID string `json:"messageId"`
	Duplicate bool   `json:"duplicate,omitempty"`
	AudioURL  string `json:"audioUrl,omitempty"`
	FileURL   string `json:"fileUrl,omitempty"`
	MediaURL  string `json:"mediaUrl,omitempty"`
}

func (h *Handler) writeSent(w http.ResponseWriter, res SendResult, okMsg string) {
	if res.Duplicate {
		httpx.WriteJSON(w, http.StatusOK, sendResponse{Message: "Message already processed", MessageID: res.MessageID, Duplicate: true})
		return
	}
	out := sendResponse{Success: true, Message: okMsg, MessageID: res.MessageID}
	switch res.Message.Type {
	case TypeAudio:
		out.AudioURL = res.URL
	case TypeDocument:
		out.FileURL = res.URL
	case TypeImage, TypeVideo:
		out.MediaURL = res.URL
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

// writeServiceError maps service and intake errors onto responses.
func (h *Handler) writeServiceError(w http.ResponseWriter, op string, err error) {
	if status, code, ok := media.HTTPStatus(err); ok {
		if status >= 500 {
			h.log.Error(op+".fail", "err", err)
			httpx.WriteError(w, status, code, "upload failed")
			return
		}
		httpx.WriteError(w, status, code, err.Error())
		return
	}
	switch {
	case errors.Is(err, ErrInvalidInput):
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", strings.TrimPrefix(err.Error(), ErrInvalidInput.Error()+": "))
	case errors.Is(err, ErrConversationNotFound):
		httpx.WriteError(w, http.StatusNotFound, "conversation_not_found", "conversation not found")
	default:
		h.log.Error(op+".fail", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "internal", "internal server error")
	}
}

func (h *Handler) handleSendText(w http.ResponseWriter, r *http.Request) {
	var req SendInput
	if err := httpx.DecodeJSON(w, r, httpx.DefaultMaxBodyBytes, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	res, err := h.svc.SendText(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, "chat.send", err)
		return
	}
	h.writeSent(w, res, "Message sent successfully")
}

func (h *Handler) handleSendContact(w http.ResponseWriter, r *http.Request) {
	var req SendInput
	if err := httpx.DecodeJSON(w, r, httpx.DefaultMaxBodyBytes, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	res, err := h.svc.SendContact(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, "chat.send_contact", err)
		return
	}
	h.writeSent(w, res, "Contact sent successfully")
}

// fileSender handles a multipart send: the message envelope is a JSON string in messageData
// and the file is in field.
func (h *Handler) fileSender(field string, send func(ctx context.Context, in SendInput, f media.File) (SendResult, error), okMsg string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.intake == nil {
			httpx.WriteError(w, http.StatusServiceUnavailable, "uploads_unavailable", "uploads not configured")
			return
		}
		if err := h.intake.ParseForm(w, r, 1); err != nil {
			h.writeServiceError(w, "chat.upload", err)
			return
		}
		defer func() { _ = r.MultipartForm.RemoveAll() }()

		var in SendInput
		raw := r.FormValue("messageData")
		if strings.TrimSpace(raw) == "" {
			httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "missing messageData")
			return
		}
		if err := json.Unmarshal([]byte(raw), &in); err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "invalid_json", "messageData is not valid JSON")
			return
		}

		f, err := h.intake.SaveField(r, field)
		if err != nil {
			h.writeServiceError(w, "chat.upload", err)
			return
		}

		res, err := send(r.Context(), in, f)
		if err != nil {
			h.writeServiceError(w, "chat.send_"+strings.TrimSuffix(field, "File"), err)
			return
		}
		h.writeSent(w, res, okMsg)
	}
}

func (h *Handler) handleListConversations(w http.ResponseWriter, r *http.Request) {
	sums, err := h.svc.ListSummaries(r.Context(), r.PathValue("userID"))
	if err != nil {
		h.writeServiceError(w, "chat.conversations.list", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"conversations": sums})
}

type createConversationRequest struct {
	UserID    string `json:"userID"`
	ContactID string `json:"contactID"`
}

type createConversationResponse struct {
	ConversationID string `json:"conversationID"`
	ContactID      string `json:"contactID"`
	IsFriend       bool   `json:"isFriend"`
}

func (h *Handler) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	var req createConversationRequest
	if err := httpx.DecodeJSON(w, r, httpx.DefaultMaxBodyBytes, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	res, err := h.svc.CreateOrGet(r.Context(), req.UserID, req.ContactID)
	if err != nil {
		h.writeServiceError(w, "chat.conversations.create", err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, createConversationResponse{
		ConversationID: res.Conversation.ID,
		ContactID:      res.ContactID,
		IsFriend:       true,
	})
}

func (h *Handler) handleUnread(w http.ResponseWriter, r *http.Request) {
	unread, err := h.svc.Unread(r.Context(), r.PathValue("userID"))
	if err != nil {
		h.writeServiceError(w, "chat.unread", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"unread": unread})
}

type markSeenRequest struct {
	ConversationID string `json:"conversationID"`
	UserID         string `json:"userID"`
}

func (h *Handler) handleMarkSeen(w http.ResponseWriter, r *http.Request) {
	var req markSeenRequest
	if err := httpx.DecodeJSON(w, r, httpx.DefaultMaxBodyBytes, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	n, err := h.svc.MarkSeen(r.Context(), req.ConversationID, req.UserID)
	if err != nil {
		h.writeServiceError(w, "chat.seen", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "updated": n})
}

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NotificationsHandler handles inbox and device registration requests. Every
// route acts on the caller's own records.
type NotificationsHandler struct {
	deps NotificationDependencies
}

// NewNotificationsHandler creates a new notifications handler.
func NewNotificationsHandler(deps NotificationDependencies) *NotificationsHandler {
	return &NotificationsHandler{deps: deps}
}

type deviceTokenRequest struct {
	Token string `json:"token"`
}

type markAllResponse struct {
	Updated int64 `json:"updated"`
}

// HandleInbox handles GET /notifications?page=&size=.
func (h *NotificationsHandler) HandleInbox(w http.ResponseWriter, r *http.Request) {
	const op = "api.inbox"
	id, ok := requireActor(w, r, op)
	if !ok {
		return
	}
	page, err := queryInt(r, "page")
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	size, err := queryInt(r, "size")
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	inbox, err := h.deps.Inbox(r.Context(), id, page, size)
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, inbox)
}

// HandleMarkRead handles POST /notifications/{id}/read.
func (h *NotificationsHandler) HandleMarkRead(w http.ResponseWriter, r *http.Request) {
	const op = "api.mark_read"
	id, ok := requireActor(w, r, op)
	if !ok {
		return
	}
	if err := h.deps.MarkRead(r.Context(), chi.URLParam(r, "id"), id); err != nil {
		writeServiceError(w, op, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleMarkAllRead handles POST /notifications/read-all.
func (h *NotificationsHandler) HandleMarkAllRead(w http.ResponseWriter, r *http.Request) {
	const op = "api.mark_all_read"
	id, ok := requireActor(w, r, op)
	if !ok {
		return
	}
	n, err := h.deps.MarkAllRead(r.Context(), id)
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, markAllResponse{Updated: n})
}

// HandleDeviceToken handles PUT /users/me/device-token.
func (h *NotificationsHandler) HandleDeviceToken(w http.ResponseWriter, r *http.Request) {
	const op = "api.device_token"
	id, ok := requireActor(w, r, op)
	if !ok {
		return
	}
	var req deviceTokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := h.deps.RegisterDeviceToken(r.Context(), id, req.Token); err != nil {
		writeServiceError(w, op, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

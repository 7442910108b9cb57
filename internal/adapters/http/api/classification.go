package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/okian/civicflow/internal/domain/types"
)

var errMissingReportID = errors.New("reportId is required")

// ClassificationHandler handles the classifier callback and backlog reads.
type ClassificationHandler struct {
	deps ClassificationDependencies
}

// NewClassificationHandler creates a new classification handler.
func NewClassificationHandler(deps ClassificationDependencies) *ClassificationHandler {
	return &ClassificationHandler{deps: deps}
}

// HandleWebhook handles POST /webhooks/classification. A report resolved or
// deleted before the result arrives still gets the classification fields.
func (h *ClassificationHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	const op = "api.classification_webhook"
	var req types.ClassificationWebhook
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	id := strings.TrimSpace(req.ReportID)
	if id == "" {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, errMissingReportID))
		return
	}
	rep, err := h.deps.MergeClassification(r.Context(), id, req.Classification)
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// HandleQueueStatus handles GET /classification/queue.
func (h *ClassificationHandler) HandleQueueStatus(w http.ResponseWriter, r *http.Request) {
	st, err := h.deps.QueueStatus(r.Context())
	if err != nil {
		writeServiceError(w, "api.classification_queue", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

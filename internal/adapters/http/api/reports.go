package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/okian/civicflow/internal/domain/model"
	"github.com/okian/civicflow/internal/domain/types"
)

// ReportsHandler handles report lifecycle and read requests.
type ReportsHandler struct {
	deps ReportDependencies
}

// NewReportsHandler creates a new reports handler.
func NewReportsHandler(deps ReportDependencies) *ReportsHandler {
	return &ReportsHandler{deps: deps}
}

func errInvalidParam(name string) error {
	return fmt.Errorf("invalid %s", name)
}

func queryInt(r *http.Request, name string) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, errInvalidParam(name)
	}
	return n, nil
}

func queryFloat(r *http.Request, name string, required bool) (float64, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		if required {
			return 0, fmt.Errorf("missing %s", name)
		}
		return 0, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, errInvalidParam(name)
	}
	return f, nil
}

// HandleSubmit handles POST /reports.
func (h *ReportsHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	const op = "api.submit_report"
	id, ok := requireActor(w, r, op)
	if !ok {
		return
	}
	var req types.SubmitReport
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	req.SubmittedBy = id
	rep, err := h.deps.Submit(r.Context(), req)
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	writeJSON(w, http.StatusCreated, rep)
}

// HandleList handles GET /reports?status=&department=&severity=&mine=&page=&limit=.
func (h *ReportsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_reports"
	q := r.URL.Query()
	page, err := queryInt(r, "page")
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	f := model.ReportFilter{
		Status:     model.Status(strings.ToUpper(q.Get("status"))),
		Department: q.Get("department"),
		Severity:   strings.ToUpper(q.Get("severity")),
	}
	if q.Get("mine") == "true" {
		id, ok := requireActor(w, r, op)
		if !ok {
			return
		}
		f.SubmittedBy = id
	}
	out, err := h.deps.ListReports(r.Context(), f, page, limit)
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleNearby handles GET /reports/nearby?lat=&lng=&radius=&department=.
func (h *ReportsHandler) HandleNearby(w http.ResponseWriter, r *http.Request) {
	const op = "api.nearby_reports"
	lat, err := queryFloat(r, "lat", true)
	if err == nil {
		var lng, radius float64
		if lng, err = queryFloat(r, "lng", true); err == nil {
			if radius, err = queryFloat(r, "radius", false); err == nil {
				out, err := h.deps.Nearby(r.Context(), lat, lng, radius, r.URL.Query().Get("department"))
				if err != nil {
					writeServiceError(w, op, err)
					return
				}
				writeJSON(w, http.StatusOK, out)
				return
			}
		}
	}
	writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
}

// HandleBounds handles GET /reports/bounds?swLat=&swLng=&neLat=&neLng=.
func (h *ReportsHandler) HandleBounds(w http.ResponseWriter, r *http.Request) {
	const op = "api.reports_in_bounds"
	var corners [4]float64
	for i, name := range []string{"swLat", "swLng", "neLat", "neLng"} {
		v, err := queryFloat(r, name, true)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
			return
		}
		corners[i] = v
	}
	out, err := h.deps.InBounds(r.Context(), corners[0], corners[1], corners[2], corners[3])
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleStats handles GET /reports/stats.
func (h *ReportsHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	st, err := h.deps.Stats(r.Context())
	if err != nil {
		writeServiceError(w, "api.report_stats", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// HandleGet handles GET /reports/{id}.
func (h *ReportsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	rep, err := h.deps.GetReport(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, "api.get_report", err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// HandleAudit handles GET /reports/{id}/audit.
func (h *ReportsHandler) HandleAudit(w http.ResponseWriter, r *http.Request) {
	entries, err := h.deps.AuditTrail(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, "api.audit_trail", err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// HandleAcknowledge handles POST /reports/{id}/acknowledge. Admin only.
func (h *ReportsHandler) HandleAcknowledge(w http.ResponseWriter, r *http.Request) {
	const op = "api.acknowledge_report"
	id, ok := requireActor(w, r, op)
	if !ok {
		return
	}
	if !isAdmin(r) {
		writeError(w, http.StatusForbidden, "forbidden", Wrap(op, ErrAdminOnly))
		return
	}
	rep, err := h.deps.Acknowledge(r.Context(), chi.URLParam(r, "id"), id)
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// HandleResolve handles POST /reports/{id}/resolve.
func (h *ReportsHandler) HandleResolve(w http.ResponseWriter, r *http.Request) {
	const op = "api.resolve_report"
	id, ok := requireActor(w, r, op)
	if !ok {
		return
	}
	rep, err := h.deps.Resolve(r.Context(), chi.URLParam(r, "id"), id, isAdmin(r))
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// HandleDelete handles DELETE /reports/{id}. Owners and admins only.
func (h *ReportsHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	const op = "api.delete_report"
	id, ok := requireActor(w, r, op)
	if !ok {
		return
	}
	reportID := chi.URLParam(r, "id")
	if !isAdmin(r) {
		rep, err := h.deps.GetReport(r.Context(), reportID)
		if err != nil {
			writeServiceError(w, op, err)
			return
		}
		if rep.SubmittedBy != id {
			writeServiceError(w, op, fmt.Errorf("%w: only the submitter may delete report %s", model.ErrForbidden, reportID))
			return
		}
	}
	ack, err := h.deps.Delete(r.Context(), reportID, id)
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, ack)
}

// HandleUpvote handles POST /reports/{id}/upvote.
func (h *ReportsHandler) HandleUpvote(w http.ResponseWriter, r *http.Request) {
	const op = "api.toggle_upvote"
	id, ok := requireActor(w, r, op)
	if !ok {
		return
	}
	res, err := h.deps.ToggleUpvote(r.Context(), chi.URLParam(r, "id"), id)
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/okian/civicflow/internal/domain/model"
)

const maxBodyBytes = 1 << 20

// Sentinel kinds for API errors.
var (
	ErrBadRequest   = errors.New("bad request")
	ErrUnauthorized = errors.New("missing actor identity")
	ErrAdminOnly    = errors.New("admin role required")
)

// Wrap prefixes err with the handler operation name.
func Wrap(op string, err error) error {
	return fmt.Errorf("%s: %w", op, err)
}

// WrapKind tags a cause with an API sentinel kind.
func WrapKind(op string, kind, cause error) error {
	return fmt.Errorf("%s: %w: %w", op, kind, cause)
}

// writeServiceError maps the service error taxonomy onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, op string, err error) {
	status, code := http.StatusInternalServerError, "internal_error"
	switch {
	case errors.Is(err, model.ErrNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, model.ErrConflict):
		status, code = http.StatusConflict, "conflict"
	case errors.Is(err, model.ErrInvalidTransition):
		status, code = http.StatusConflict, "invalid_transition"
	case errors.Is(err, model.ErrForbidden):
		status, code = http.StatusForbidden, "forbidden"
	case errors.Is(err, model.ErrInvalidState):
		status, code = http.StatusUnprocessableEntity, "invalid_state"
	case errors.Is(err, model.ErrInvalidInput), errors.Is(err, ErrBadRequest):
		status, code = http.StatusBadRequest, "bad_request"
	case errors.Is(err, model.ErrDownstreamDegraded):
		status, code = http.StatusServiceUnavailable, "degraded"
	}
	writeError(w, status, code, Wrap(op, err))
}

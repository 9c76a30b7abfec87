package olympus

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/minos-eval/minos/pkg/domain"
	"github.com/minos-eval/minos/pkg/erebus"
	"github.com/minos-eval/minos/pkg/hermes"
	"github.com/minos-eval/minos/pkg/ingest"
)

var (
	// ErrBadRequest marks a malformed request body or form.
	ErrBadRequest = errors.New("bad request")
	// ErrUnauthorized marks a missing or wrong API key.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrDatasetNotFound marks a store prefix without a predictions file.
	ErrDatasetNotFound = errors.New("dataset not found")
)

type authError struct{ msg string }

func (e authError) Error() string { return e.msg }
func (e authError) Unwrap() error { return ErrUnauthorized }

func errUnauthorized(msg string) error { return authError{msg: msg} }

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// statusFor maps an error to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrRateLimitExceeded):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, domain.ErrSchemaMismatch),
		errors.Is(err, domain.ErrInvalidParameter),
		errors.Is(err, erebus.ErrInvalidKey):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrEmptyInput):
		return http.StatusUnprocessableEntity
	case errors.Is(err, erebus.ErrNotFound), errors.Is(err, ErrDatasetNotFound):
		return http.StatusNotFound
	case errors.Is(err, ingest.ErrSourceUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	writeJSON(w, status, ErrorResponse{Error: msg, RequestID: hermes.RequestID(r.Context())})
}

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/sandeepkv93/trackd/internal/model"
	"github.com/sandeepkv93/trackd/internal/reconcile"
	"github.com/sandeepkv93/trackd/internal/status"
	"github.com/sandeepkv93/trackd/internal/storage"
)

var errNameRequired = fmt.Errorf("%w: name is required", model.ErrInvalidName)

type ErrorCode string

const (
	ErrCodeUnauthorized ErrorCode = "unauthorized"
	ErrCodeForbidden    ErrorCode = "forbidden"
	ErrCodeNotFound     ErrorCode = "not_found"
	ErrCodeValidation   ErrorCode = "validation_error"
	ErrCodeInternal     ErrorCode = "internal"
)

type apiError struct {
	Code    ErrorCode `json:"error_code"`
	Message string    `json:"error"`
}

func (e *apiError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func httpStatusFor(code ErrorCode) int {
	switch code {
	case ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case ErrCodeForbidden:
		return http.StatusForbidden
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, code ErrorCode, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatusFor(code))
	_ = json.NewEncoder(w).Encode(apiError{Code: code, Message: message})
}

// writeFailure maps domain errors onto the wire taxonomy. Validation errors
// carry their own message; unexpected errors are logged and reported opaquely.
func (s *Server) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		s.writeError(w, ErrCodeNotFound, "not found")
	case errors.Is(err, errMalformedBody),
		errors.Is(err, reconcile.ErrIncompleteAggregate),
		errors.Is(err, status.ErrEmptyUpdates),
		errors.Is(err, model.ErrInvalidStatus),
		errors.Is(err, model.ErrInvalidDate),
		errors.Is(err, model.ErrInvalidName):
		s.writeError(w, ErrCodeValidation, err.Error())
	default:
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		s.writeError(w, ErrCodeInternal, "internal error")
	}
}

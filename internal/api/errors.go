package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/storefront-telemetry/internal/ingestion"
)

// Error is the JSON body of every error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes.
const (
	ErrCodeBadRequest    = "bad_request"
	ErrCodeNotFound      = "not_found"
	ErrCodeUnknownDevice = "unknown_device"
	ErrCodeInternal      = "internal_error"
	ErrCodeValidation    = "validation_error"
	ErrCodeUnavailable   = "persistence_failure"
	ErrCodeTimeout       = "ingestion_timeout"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // client may have gone away
		json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{Status: status, Code: code, Message: message})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeIngestionError maps the ingestion taxonomy onto HTTP statuses.
func writeIngestionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ingestion.ErrInvalidSubmission):
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
	case errors.Is(err, ingestion.ErrUnknownDevice):
		writeError(w, http.StatusNotFound, ErrCodeUnknownDevice, err.Error())
	case errors.Is(err, ingestion.ErrIngestionTimeout):
		writeError(w, http.StatusGatewayTimeout, ErrCodeTimeout, "ingestion timed out, retry the submission")
	case errors.Is(err, ingestion.ErrPersistenceFailure):
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "reading could not be stored")
	default:
		writeInternalError(w, "ingestion failed")
	}
}

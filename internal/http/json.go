package httpx

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	apperrors "github.com/target/sessionguard/internal/errors"
	"github.com/target/sessionguard/internal/service/timeout"
)

// DecodeJSON decodes JSON from the request body into the destination and handles errors.
// Returns true if successful, false if there was an error (error response already written).
// An empty body leaves dst untouched.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.Body == nil || r.ContentLength == 0 {
		return true
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_json", Err: err})
		return false
	}

	return true
}

// WriteJSON writes a JSON response with the given status code and data.
func WriteJSON(w http.ResponseWriter, code int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err := buf.WriteTo(w); err != nil {
		// Response writer errors (e.g., client disconnect) can't be recovered from here.
		return
	}
}

// ErrorParams groups parameters for WriteError.
type ErrorParams struct {
	Code    int
	ErrCode string
	Err     error
}

// WriteError writes a JSON error response using ErrorParams.
func WriteError(w http.ResponseWriter, p ErrorParams) {
	WriteJSON(w, p.Code, map[string]string{"error": p.ErrCode, "message": p.Err.Error()})
}

// WriteServiceError maps application error codes onto HTTP statuses.
func WriteServiceError(w http.ResponseWriter, err error) {
	p := ErrorParams{Code: http.StatusInternalServerError, ErrCode: "internal", Err: err}
	switch {
	case errors.Is(err, timeout.ErrNotRunning):
		p.Code, p.ErrCode = http.StatusConflict, "not_running"
	case apperrors.IsValidation(err):
		p.Code, p.ErrCode = http.StatusBadRequest, string(apperrors.ErrCodeValidation)
	case apperrors.IsUnauthenticated(err), apperrors.IsNotFound(err):
		p.Code, p.ErrCode = http.StatusUnauthorized, "authentication_required"
	case apperrors.IsConflict(err):
		p.Code, p.ErrCode = http.StatusForbidden, string(apperrors.ErrCodeConflict)
	case apperrors.IsNoTenantIdentifier(err):
		p.Code, p.ErrCode = http.StatusConflict, string(apperrors.ErrCodeNoTenantIdentifier)
	case apperrors.IsConfigurationLost(err):
		p.Code, p.ErrCode = http.StatusServiceUnavailable, string(apperrors.ErrCodeConfigurationLost)
	case apperrors.IsTimeout(err):
		p.Code, p.ErrCode = http.StatusGatewayTimeout, string(apperrors.ErrCodeTimeout)
	}
	if p.Code == http.StatusInternalServerError {
		// Internal details stay in the logs.
		p.Err = errors.New("internal error")
	}
	WriteError(w, p)
}

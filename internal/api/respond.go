package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dharsanguruparan/filevault/internal/admission"
	"github.com/dharsanguruparan/filevault/internal/auth"
	"github.com/dharsanguruparan/filevault/internal/catalog"
	"github.com/dharsanguruparan/filevault/internal/users"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// requestError is a malformed request detected by a handler.
type requestError struct {
	msg string
}

func (e *requestError) Error() string { return e.msg }

func badRequest(msg string) error { return &requestError{msg: msg} }

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Default().Warn("encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", "Bearer")
	}
	respondJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: message}})
}

// writeError maps err to a status and error envelope. Server-side failures
// are logged and their detail is withheld from the client.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message := classify(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	respondError(w, status, code, message)
}

func classify(err error) (status int, code, message string) {
	var reqErr *requestError
	var rejected *admission.RejectedError
	switch {
	case errors.As(err, &reqErr):
		return http.StatusBadRequest, "bad_request", reqErr.msg
	case errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid_credentials", "Invalid credentials"
	case errors.Is(err, auth.ErrUnauthenticated):
		return http.StatusUnauthorized, "unauthenticated", "Not authenticated"
	case errors.As(err, &rejected):
		status = http.StatusBadRequest
		if rejected.Code == admission.CodeVisibilityNotAllowed {
			status = http.StatusForbidden
		}
		return status, strings.ToLower(string(rejected.Code)), rejected.Error()
	case errors.Is(err, users.ErrNotFound):
		return http.StatusNotFound, "not_found", "User not found"
	case errors.Is(err, users.ErrForbidden):
		return http.StatusForbidden, "forbidden", err.Error()
	case errors.Is(err, users.ErrInvalid):
		return http.StatusBadRequest, "bad_request", err.Error()
	case errors.Is(err, users.ErrEmailTaken):
		return http.StatusBadRequest, "email_taken", "Email already exists"
	}

	switch catalog.Classify(err) {
	case catalog.NotFound:
		return http.StatusNotFound, "not_found", "File not found"
	case catalog.Forbidden:
		return http.StatusForbidden, "forbidden", "Forbidden"
	case catalog.Rejected:
		return http.StatusBadRequest, "rejected", err.Error()
	case catalog.Unavailable:
		return http.StatusBadGateway, "storage_unavailable", "Object storage unavailable"
	default:
		return http.StatusInternalServerError, "internal", "Internal server error"
	}
}

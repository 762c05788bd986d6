package web

// errors.go provides unified error response handling for the web layer.
//
// Infrastructure errors are logged with the request id and technical detail,
// then returned as the mapped user message (core.MapError). Field validation
// failures are not errors here: they are rendered as 422 with one message per
// field.

import (
	"net/http"
	"strings"

	"github.com/JonMunkholm/contacts/internal/core"
	"github.com/JonMunkholm/contacts/internal/logging"
	"github.com/JonMunkholm/contacts/internal/web/templates"
)

// ErrorResponse represents the JSON structure for API error responses.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// FieldErrorResponse is the 422 body for a contact that failed validation.
type FieldErrorResponse struct {
	Errors  map[string]string `json:"errors"`
	Contact core.Contact      `json:"contact"`
}

// respondError logs err and writes the mapped user message as an htmx
// fragment, JSON or plain text depending on the request.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error, statusCode int) {
	userMsg := core.MapError(err)

	logger := logging.FromContext(r.Context())
	attrs := []any{
		"path", r.URL.Path,
		"method", r.Method,
		"status", statusCode,
		"error", err.Error(),
		"code", userMsg.Code,
	}
	if statusCode >= http.StatusInternalServerError {
		logger.Error("request error", attrs...)
	} else {
		logger.Warn("request error", attrs...)
	}

	switch {
	case isHTMX(r):
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(statusCode)
		templates.ErrorAlert(userMsg.Message, userMsg.Action, userMsg.Code).Render(r.Context(), w)
	case wantsJSON(r):
		writeJSON(w, statusCode, ErrorResponse{
			Error:   userMsg.Message,
			Message: userMsg.Message,
			Action:  userMsg.Action,
			Code:    userMsg.Code,
		})
	default:
		http.Error(w, userMsg.Message+" ("+userMsg.Code+")", statusCode)
	}
}

// respondFieldErrors writes a contact's validation failures.
func respondFieldErrors(w http.ResponseWriter, c core.Contact, errs core.ContactErrors) {
	writeJSON(w, http.StatusUnprocessableEntity, FieldErrorResponse{
		Errors:  errs.Fields(),
		Contact: c,
	})
}

// isHTMX checks if the request is an htmx request.
func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}

// wantsJSON reports whether the client asked for or sent JSON.
func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json") ||
		strings.Contains(r.Header.Get("Content-Type"), "application/json")
}

// Package api implements the REST surface of spec.md §6 (C9): a
// Bearer-authenticated, chi-routed JSON API consumed by edge workers and
// the admin UI. Grounded on the teacher's error-returning-handler +
// ErrorHandler decorator pattern: handlers return (interface{}, error)
// instead of writing the response body directly, so error-shape and status
// mapping live in exactly one place.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/sunrayhq/control-plane/internal/apierrors"
	"github.com/sunrayhq/control-plane/internal/logger"
)

// HandlerFunc is an API handler that returns either a JSON-serializable
// response body or an error; ErrorHandler takes care of status mapping and
// body shape for both cases.
type HandlerFunc func(w http.ResponseWriter, r *http.Request) (any, error)

// ErrorHandler adapts a HandlerFunc to http.HandlerFunc, writing the
// returned value as a 200 JSON body or, on error, the `{error: <message>}`
// shape spec.md §7 contracts at the status apierrors.Code maps the error to.
func ErrorHandler(h HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := h(w, r)
		if err != nil {
			writeError(w, err)
			return
		}
		if body == nil {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeJSON(w, http.StatusOK, body)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := apierrors.Code(err)
	if status >= 500 {
		logger.Errorf("api: handler error: %v", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Errorf("api: encode response: %v", err)
	}
}

func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apierrors.NewValidationError("malformed JSON body", err)
	}
	return nil
}

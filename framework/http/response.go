// Package http holds the JSON response helpers used by framework endpoints.
package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/km-arc/go-boot/framework/container"
)

// ── Response ─────────────────────────────────────────────────────────────────

// Response wraps http.ResponseWriter with JSON helpers.
type Response struct {
	w http.ResponseWriter
}

// NewResponse wraps a ResponseWriter.
func NewResponse(w http.ResponseWriter) *Response {
	return &Response{w: w}
}

// Raw returns the underlying ResponseWriter.
func (res *Response) Raw() http.ResponseWriter { return res.w }

type envelope map[string]any

// ── JSON responses ────────────────────────────────────────────────────────────

// JSON sends a JSON response.
//
//	res.JSON(http.StatusOK, map[string]any{"message": "ok"})
func (res *Response) JSON(status int, data any) {
	res.w.Header().Set("Content-Type", "application/json")
	res.w.WriteHeader(status)
	_ = json.NewEncoder(res.w).Encode(data)
}

// Success sends 200 JSON: {"data": v}
func (res *Response) Success(v any) {
	res.JSON(http.StatusOK, envelope{"data": v})
}

// NoContent sends 204 with no body.
func (res *Response) NoContent() {
	res.w.WriteHeader(http.StatusNoContent)
}

// Error sends a JSON error response.
//
//	res.Error(http.StatusNotFound, "Resource not found")
func (res *Response) Error(status int, message string) {
	res.JSON(status, envelope{"message": message})
}

// NotFound sends 404.
func (res *Response) NotFound(message ...string) {
	res.Error(http.StatusNotFound, first(message, "Not found."))
}

// ServerError sends 500.
func (res *Response) ServerError(message ...string) {
	res.Error(http.StatusInternalServerError, first(message, "Server Error."))
}

// DependencyError reports a failed resolution. A dependency that never
// appeared is 503, anything else (ambiguity, missing scope, factory errors)
// is a 500.
//
//	svc, err := container.ResolveByType[*UserService](r.Context(), reg, loc)
//	if err != nil {
//	    gohttp.NewResponse(w).DependencyError(err)
//	    return
//	}
func (res *Response) DependencyError(err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, container.ErrDependencyNotFound) {
		status = http.StatusServiceUnavailable
	}
	res.Error(status, err.Error())
}

func first(ss []string, fallback string) string {
	if len(ss) > 0 && ss[0] != "" {
		return ss[0]
	}
	return fallback
}

package http_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/km-arc/go-boot/framework/container"
	gohttp "github.com/km-arc/go-boot/framework/http"
)

// ── helpers ──────────────────────────────────────────────────────────────────

func newResponse(t *testing.T) (*gohttp.Response, *httptest.ResponseRecorder) {
	t.Helper()
	rr := httptest.NewRecorder()
	return gohttp.NewResponse(rr), rr
}

func decodeJSON(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.NewDecoder(rr.Body).Decode(&m); err != nil {
		t.Fatalf("decodeJSON: %v", err)
	}
	return m
}

// ── JSON ──────────────────────────────────────────────────────────────────────

func TestResponse_JSON(t *testing.T) {
	res, rr := newResponse(t)
	res.JSON(http.StatusOK, map[string]any{"key": "val"})

	if rr.Code != http.StatusOK {
		t.Errorf("status: got %d want 200", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: got %q want application/json", ct)
	}
	m := decodeJSON(t, rr)
	if m["key"] != "val" {
		t.Errorf("body key: got %v want val", m["key"])
	}
}

func TestResponse_Success(t *testing.T) {
	res, rr := newResponse(t)
	res.Success([]string{"a", "b"})

	m := decodeJSON(t, rr)
	data, ok := m["data"].([]any)
	if !ok || len(data) != 2 {
		t.Fatalf("expected data envelope with 2 items, got %v", m["data"])
	}
}

func TestResponse_NoContent(t *testing.T) {
	res, rr := newResponse(t)
	res.NoContent()
	if rr.Code != http.StatusNoContent {
		t.Errorf("status: got %d want 204", rr.Code)
	}
	if rr.Body.Len() != 0 {
		t.Errorf("expected empty body, got %q", rr.Body.String())
	}
}

func TestResponse_ErrorHelpers(t *testing.T) {
	tests := []struct {
		name string
		call func(*gohttp.Response)
		code int
		msg  string
	}{
		{"Error", func(r *gohttp.Response) { r.Error(http.StatusTeapot, "short and stout") }, http.StatusTeapot, "short and stout"},
		{"NotFound default", func(r *gohttp.Response) { r.NotFound() }, http.StatusNotFound, "Not found."},
		{"NotFound custom", func(r *gohttp.Response) { r.NotFound("no user") }, http.StatusNotFound, "no user"},
		{"ServerError", func(r *gohttp.Response) { r.ServerError() }, http.StatusInternalServerError, "Server Error."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, rr := newResponse(t)
			tt.call(res)
			if rr.Code != tt.code {
				t.Errorf("status: got %d want %d", rr.Code, tt.code)
			}
			if m := decodeJSON(t, rr); m["message"] != tt.msg {
				t.Errorf("message: got %v want %q", m["message"], tt.msg)
			}
		})
	}
}

func TestResponse_DependencyError(t *testing.T) {
	res, rr := newResponse(t)
	res.DependencyError(&container.DependencyNotFoundError{Scope: "web"})
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("not found: got %d want 503", rr.Code)
	}

	res, rr = newResponse(t)
	res.DependencyError(&container.AmbiguousDependencyError{})
	if rr.Code != http.StatusInternalServerError {
		t.Errorf("ambiguous: got %d want 500", rr.Code)
	}

	res, rr = newResponse(t)
	res.DependencyError(errors.New("other"))
	if rr.Code != http.StatusInternalServerError {
		t.Errorf("other: got %d want 500", rr.Code)
	}
}

func TestResponse_Raw(t *testing.T) {
	res, rr := newResponse(t)
	if res.Raw() != rr {
		t.Error("Raw() should return the wrapped writer")
	}
}

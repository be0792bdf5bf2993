package httputil

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestWriteJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	if err := WriteJSON(rec, http.StatusTeapot, map[string]string{"k": "v"}); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	if rec.Code != http.StatusTeapot {
		t.Errorf("expected 418, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected application/json, got %q", ct)
	}
	if !strings.Contains(rec.Body.String(), `"k":"v"`) {
		t.Errorf("unexpected body: %s", rec.Body.String())
	}
}

func TestErrorWriters(t *testing.T) {
	tests := []struct {
		name    string
		write   func(http.ResponseWriter)
		status  int
		message string
	}{
		{"bad request", func(w http.ResponseWriter) { WriteBadRequest(w, "nope") }, 400, "nope"},
		{"unauthorized", func(w http.ResponseWriter) { WriteUnauthorized(w, "authentication required") }, 401, "authentication required"},
		{"forbidden", func(w http.ResponseWriter) { WriteForbidden(w, "insufficient permissions") }, 403, "insufficient permissions"},
		{"not found", func(w http.ResponseWriter) { WriteNotFound(w, "user not found") }, 404, "user not found"},
		{"conflict", func(w http.ResponseWriter) { WriteConflict(w, "already exists") }, 409, "already exists"},
		{"too many requests", func(w http.ResponseWriter) { WriteTooManyRequests(w, "slow down") }, 429, "slow down"},
		{"bad gateway", func(w http.ResponseWriter) { WriteBadGateway(w, "upstream unavailable") }, 502, "upstream unavailable"},
		{"error value", func(w http.ResponseWriter) { WriteError(w, 400, errors.New("boom")) }, 400, "boom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.write(rec)
			if rec.Code != tt.status {
				t.Fatalf("expected %d, got %d", tt.status, rec.Code)
			}
			var resp ErrorResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Error != tt.message {
				t.Errorf("expected %q, got %q", tt.message, resp.Error)
			}
		})
	}
}

// 500 responses must not leak internals
func TestWriteInternalErrorIsGeneric(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteInternalError(rec)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	var resp ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Error != "internal server error" {
		t.Errorf("unexpected message: %q", resp.Error)
	}
}

func TestWriteDetailedError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteDetailedError(rec, http.StatusForbidden, "insufficient permissions", map[string]string{
		"missing": "delete:users",
	})
	var resp ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Details["missing"] != "delete:users" {
		t.Errorf("expected missing detail, got %v", resp.Details)
	}
}

func TestWriteNoContent(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteNoContent(rec)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Errorf("expected empty body, got %s", rec.Body.String())
	}
}

func TestWriteCreated(t *testing.T) {
	rec := httptest.NewRecorder()
	if err := WriteCreated(rec, map[string]string{"id": "x"}); err != nil {
		t.Fatalf("WriteCreated: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
}

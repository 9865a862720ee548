package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestRespondJSON_SetsStatusCode(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
	}{
		{"OK", http.StatusOK},
		{"BadRequest", http.StatusBadRequest},
		{"Conflict", http.StatusConflict},
		{"InternalServerError", http.StatusInternalServerError},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			recorder := httptest.NewRecorder()
			respondJSON(recorder, tc.statusCode, nil)

			assertStatusCode(t, recorder, tc.statusCode)
			assertContentType(t, recorder, "application/json")
			if recorder.Body.Len() != 0 {
				t.Errorf("expected empty body for nil data, got %q", recorder.Body.String())
			}
		})
	}
}

func TestRespondError(t *testing.T) {
	recorder := httptest.NewRecorder()
	respondError(recorder, http.StatusBadRequest, "bad input")

	assertStatusCode(t, recorder, http.StatusBadRequest)
	assertJSONError(t, recorder, "bad input")
}

func TestDecodeJSON(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
		want    int
	}{
		{"valid", `{"camera_index": 2}`, false, 2},
		{"empty body", ``, false, 0},
		{"malformed", `{"camera_index":`, true, 0},
		{"wrong type", `{"camera_index": "two"}`, true, 0},
		{"too large", `{"pad":"` + strings.Repeat("x", 2<<20) + `"}`, true, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			var dst ToggleRequest
			err := decodeJSON(httptest.NewRecorder(), req, &dst)
			if (err != nil) != tt.wantErr {
				t.Fatalf("decodeJSON() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && dst.CameraIndex != tt.want {
				t.Errorf("CameraIndex = %d, want %d", dst.CameraIndex, tt.want)
			}
		})
	}
}

func TestClockOrNA(t *testing.T) {
	at := time.Date(2026, 3, 2, 8, 5, 9, 0, time.UTC)
	if got := clockOrNA(&at, time.UTC); got != "08:05:09" {
		t.Errorf("clockOrNA = %q", got)
	}
	if got := clockOrNA(nil, time.UTC); got != "N/A" {
		t.Errorf("clockOrNA(nil, time.UTC) = %q", got)
	}
}

func TestSanitizeForLog(t *testing.T) {
	if got := sanitizeForLog("E001\r\nforged line"); got != "E001forged line" {
		t.Errorf("sanitizeForLog = %q", got)
	}
}

func TestHealthCheck(t *testing.T) {
	recorder := httptest.NewRecorder()
	HealthCheck(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	assertStatusCode(t, recorder, http.StatusOK)
	var result map[string]string
	parseJSONResponse(t, recorder, &result)
	if result["status"] != "ok" {
		t.Errorf("expected status ok, got %q", result["status"])
	}
}

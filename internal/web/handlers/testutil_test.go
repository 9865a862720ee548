package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/attendance-kiosk/internal/attendance"
	"github.com/kozaktomas/attendance-kiosk/internal/database"
	"github.com/kozaktomas/attendance-kiosk/internal/database/mock"
)

// testDay is the fixed "today" of handler tests.
var testDay = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

// newTestTracker creates a tracker on a mock store with a fixed clock.
func newTestTracker(t *testing.T) (*attendance.Tracker, *mock.MockStore) {
	t.Helper()
	store := mock.NewMockStore()
	tracker := attendance.NewTracker(store, nil, attendance.Config{Location: time.UTC})
	tracker.SetClock(func() time.Time { return testDay })
	return tracker, store
}

// addPerson enrolls a person in the mock store.
func addPerson(t *testing.T, store *mock.MockStore, id, name string) {
	t.Helper()
	if err := store.AddPerson(context.Background(), database.Person{ID: id, Name: name}); err != nil {
		t.Fatalf("failed to add person: %v", err)
	}
}

// checkIn records a login on the test day.
func checkIn(t *testing.T, store *mock.MockStore, id string, at time.Time) {
	t.Helper()
	if _, _, err := store.CheckIn(context.Background(), id, database.DateOf(testDay), at); err != nil {
		t.Fatalf("failed to check in: %v", err)
	}
}

// jsonRequest creates a request with a JSON body
func jsonRequest(t *testing.T, method, path string, body any) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// parseJSONResponse parses a JSON response body into the target type
func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nBody: %s", err, recorder.Body.String())
	}
}

// assertStatusCode checks if the response has the expected status code
func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Errorf("expected status %d, got %d\nBody: %s", expected, recorder.Code, recorder.Body.String())
	}
}

// assertContentType checks if the response has the expected content type
func assertContentType(t *testing.T, recorder *httptest.ResponseRecorder, expected string) {
	t.Helper()
	ct := recorder.Header().Get("Content-Type")
	if ct != expected {
		t.Errorf("expected Content-Type '%s', got '%s'", expected, ct)
	}
}

// assertJSONError checks if the response is a JSON error with the expected message
func assertJSONError(t *testing.T, recorder *httptest.ResponseRecorder, expectedMessage string) {
	t.Helper()
	var result map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse error response: %v\nBody: %s", err, recorder.Body.String())
	}
	if result["error"] != expectedMessage {
		t.Errorf("expected error '%s', got '%s'", expectedMessage, result["error"])
	}
}

// assertResult checks a {success, message} response.
func assertResult(t *testing.T, recorder *httptest.ResponseRecorder, success bool, message string) {
	t.Helper()
	var result struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	parseJSONResponse(t, recorder, &result)
	if result.Success != success || result.Message != message {
		t.Errorf("expected {success:%v message:%q}, got {success:%v message:%q}",
			success, message, result.Success, result.Message)
	}
}

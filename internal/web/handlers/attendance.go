package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/attendance-kiosk/internal/attendance"
	"github.com/kozaktomas/attendance-kiosk/internal/constants"
	"github.com/kozaktomas/attendance-kiosk/internal/database"
)

// AttendanceHandler serves the dashboard statistics and daily records.
type AttendanceHandler struct {
	store   database.AttendanceStore
	tracker *attendance.Tracker
}

// NewAttendanceHandler creates a new attendance handler
func NewAttendanceHandler(store database.AttendanceStore, tracker *attendance.Tracker) *AttendanceHandler {
	return &AttendanceHandler{store: store, tracker: tracker}
}

// StatsResponse is the dashboard summary.
type StatsResponse struct {
	TotalRegistered int      `json:"total_registered"`
	PresentToday    int      `json:"present_today"`
	Logs            []string `json:"logs"`
}

// RecordResponse is one attendance record of today.
type RecordResponse struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Login  string `json:"login"`
	Logout string `json:"logout"`
	Status string `json:"status"`
}

// Stats handles GET /api/stats.
func (h *AttendanceHandler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	stats, err := h.store.GetStatistics(ctx, h.tracker.Today())
	if err != nil {
		slog.Error("failed to load statistics", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to load statistics")
		return
	}
	entries, err := h.store.GetRecentLogs(ctx, constants.StatsLogLimit)
	if err != nil {
		slog.Error("failed to load recent logs", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to load recent logs")
		return
	}

	loc := h.tracker.Now().Location()
	logs := make([]string, 0, min(len(entries), constants.StatsLogLimit))
	for _, e := range entries[:min(len(entries), constants.StatsLogLimit)] {
		logs = append(logs, fmt.Sprintf("%s - %s (%s)", e.At.In(loc).Format(time.DateTime), e.Name, e.PersonID))
	}

	respondJSON(w, http.StatusOK, StatsResponse{
		TotalRegistered: stats.TotalPersons,
		PresentToday:    stats.PresentToday,
		Logs:            logs,
	})
}

// Records handles GET /api/records.
func (h *AttendanceHandler) Records(w http.ResponseWriter, r *http.Request) {
	rows, err := h.store.GetDailyAttendance(r.Context(), h.tracker.Today())
	if err != nil {
		slog.Error("failed to load attendance", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to load attendance")
		return
	}

	loc := h.tracker.Now().Location()
	records := make([]RecordResponse, len(rows))
	for i, row := range rows {
		records[i] = RecordResponse{
			ID:     row.PersonID,
			Name:   row.Name,
			Login:  clockOrNA(row.Login, loc),
			Logout: clockOrNA(row.Logout, loc),
			Status: string(row.Status),
		}
	}
	respondJSON(w, http.StatusOK, records)
}

// CheckOutResponse reports an explicit checkout.
type CheckOutResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Logout  string `json:"logout,omitempty"`
}

// CheckOut handles POST /api/attendance/{id}/checkout.
func (h *AttendanceHandler) CheckOut(w http.ResponseWriter, r *http.Request) {
	personID := chi.URLParam(r, "id")
	if personID == "" {
		respondError(w, http.StatusBadRequest, "missing person ID")
		return
	}

	rec, err := h.tracker.CheckOut(r.Context(), personID, h.tracker.Now())
	if errors.Is(err, attendance.ErrNotPresent) {
		respondJSON(w, http.StatusConflict, CheckOutResponse{
			Message: fmt.Sprintf("Person %s is not checked in", personID),
		})
		return
	}
	if err != nil {
		slog.Error("checkout failed", "person_id", sanitizeForLog(personID), "error", err)
		respondError(w, http.StatusInternalServerError, "checkout failed")
		return
	}

	respondJSON(w, http.StatusOK, CheckOutResponse{
		Success: true,
		Message: "Checked out",
		Logout:  clockOrNA(rec.LogoutTime, h.tracker.Now().Location()),
	})
}

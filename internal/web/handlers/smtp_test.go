package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kozaktomas/attendance-kiosk/internal/config"
	"github.com/kozaktomas/attendance-kiosk/internal/notify"
)

type fakeMailer struct {
	err       error
	notices   []notify.AttendanceNotice
	summaries []notify.Summary
	late      []notify.LateAlert
	absences  []notify.AbsenceAlert
}

func (f *fakeMailer) TestConnection(context.Context) error { return f.err }

func (f *fakeMailer) SendAttendanceNotification(_ context.Context, n notify.AttendanceNotice) error {
	f.notices = append(f.notices, n)
	return f.err
}

func (f *fakeMailer) SendDailySummary(_ context.Context, s notify.Summary) error {
	f.summaries = append(f.summaries, s)
	return f.err
}

func (f *fakeMailer) SendLateArrivalAlert(_ context.Context, a notify.LateAlert) error {
	f.late = append(f.late, a)
	return f.err
}

func (f *fakeMailer) SendAbsenceAlert(_ context.Context, a notify.AbsenceAlert) error {
	f.absences = append(f.absences, a)
	return f.err
}

func newSMTPHandler(t *testing.T, cfg config.SMTPConfig, mailer notify.Mailer) *SMTPHandler {
	t.Helper()
	_, store := newTestTracker(t)
	addPerson(t, store, "E001", "Alice")
	checkIn(t, store, "E001", testDay)
	addPerson(t, store, "E002", "Bob")

	dispatcher := notify.NewDispatcher(mailer)
	return NewSMTPHandler(cfg, dispatcher, notify.NewReports(store, dispatcher, time.UTC))
}

func TestSMTPHandler_NotConfigured(t *testing.T) {
	handler := newSMTPHandler(t, config.SMTPConfig{}, nil)

	endpoints := map[string]http.HandlerFunc{
		"/api/smtp/test":               handler.Test,
		"/api/smtp/send_notification":  handler.SendNotification,
		"/api/smtp/send_summary":       handler.SendSummary,
		"/api/smtp/send_late_alert":    handler.SendLateAlert,
		"/api/smtp/send_absence_alert": handler.SendAbsenceAlert,
	}
	for path, h := range endpoints {
		t.Run(path, func(t *testing.T) {
			recorder := httptest.NewRecorder()
			h(recorder, jsonRequest(t, http.MethodPost, path, map[string]string{}))

			assertStatusCode(t, recorder, http.StatusOK)
			assertResult(t, recorder, false, "SMTP not configured")
		})
	}
}

func TestSMTPHandler_Config(t *testing.T) {
	tests := []struct {
		name   string
		cfg    config.SMTPConfig
		mailer notify.Mailer
		want   SMTPConfigResponse
	}{
		{
			name: "disabled",
			want: SMTPConfigResponse{SMTPServer: "Not configured", SenderEmail: "Not configured"},
		},
		{
			name:   "enabled",
			cfg:    config.SMTPConfig{Enabled: true, Host: "smtp.example.com", Sender: "kiosk@example.com", Password: "secret"},
			mailer: &fakeMailer{},
			want:   SMTPConfigResponse{Enabled: true, Configured: true, SMTPServer: "smtp.example.com", SenderEmail: "kiosk@example.com"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := newSMTPHandler(t, tt.cfg, tt.mailer)
			recorder := httptest.NewRecorder()
			handler.Config(recorder, httptest.NewRequest(http.MethodGet, "/api/smtp/config", nil))

			assertStatusCode(t, recorder, http.StatusOK)
			var got SMTPConfigResponse
			parseJSONResponse(t, recorder, &got)
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestSMTPHandler_SendNotification(t *testing.T) {
	mailer := &fakeMailer{}
	handler := newSMTPHandler(t, config.SMTPConfig{Enabled: true}, mailer)

	missing := httptest.NewRecorder()
	handler.SendNotification(missing, jsonRequest(t, http.MethodPost, "/api/smtp/send_notification",
		map[string]string{"person_name": "Alice", "person_id": "E001"}))
	assertResult(t, missing, false, "Missing required fields")

	ok := httptest.NewRecorder()
	handler.SendNotification(ok, jsonRequest(t, http.MethodPost, "/api/smtp/send_notification",
		map[string]string{"person_name": "Alice", "person_id": "E001", "recipient_email": "alice@example.com"}))
	assertResult(t, ok, true, "Notification sent to alice@example.com")

	if len(mailer.notices) != 1 || mailer.notices[0].EventType != "arrival" || mailer.notices[0].Timestamp == "" {
		t.Errorf("unexpected notices %+v", mailer.notices)
	}
}

func TestSMTPHandler_SendSummary(t *testing.T) {
	tests := []struct {
		name        string
		admin       string
		body        map[string]string
		wantSuccess bool
		wantMessage string
		wantTo      string
	}{
		{"explicit recipient", "", map[string]string{"recipient_email": "hr@example.com", "date": "2026-03-02"}, true, "Daily summary sent to hr@example.com", "hr@example.com"},
		{"admin default", "boss@example.com", map[string]string{"date": "2026-03-02"}, true, "Daily summary sent to boss@example.com", "boss@example.com"},
		{"no recipient", "", map[string]string{}, false, "No recipient email provided", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mailer := &fakeMailer{}
			handler := newSMTPHandler(t, config.SMTPConfig{Enabled: true, Admin: tt.admin}, mailer)

			recorder := httptest.NewRecorder()
			handler.SendSummary(recorder, jsonRequest(t, http.MethodPost, "/api/smtp/send_summary", tt.body))
			assertResult(t, recorder, tt.wantSuccess, tt.wantMessage)

			if tt.wantTo == "" {
				return
			}
			s := mailer.summaries[0]
			if s.Recipient != tt.wantTo || s.TotalRegistered != 2 || s.PresentToday != 1 {
				t.Errorf("unexpected summary %+v", s)
			}
		})
	}
}

func TestSMTPHandler_SendLateAlert(t *testing.T) {
	mailer := &fakeMailer{}
	handler := newSMTPHandler(t, config.SMTPConfig{Enabled: true}, mailer)

	missing := httptest.NewRecorder()
	handler.SendLateAlert(missing, jsonRequest(t, http.MethodPost, "/api/smtp/send_late_alert", map[string]string{
		"person_name": "Alice", "person_id": "E001", "recipient_email": "boss@example.com", "arrival_time": "09:20",
	}))
	assertResult(t, missing, false, "Missing required fields")

	mailer.err = errors.New("554 transaction failed")
	failed := httptest.NewRecorder()
	handler.SendLateAlert(failed, jsonRequest(t, http.MethodPost, "/api/smtp/send_late_alert", map[string]string{
		"person_name": "Alice", "person_id": "E001", "recipient_email": "boss@example.com",
		"arrival_time": "09:20", "expected_time": "09:00",
	}))
	assertStatusCode(t, failed, http.StatusOK)
	assertResult(t, failed, false, "554 transaction failed")
}

func TestSMTPHandler_SendAbsenceAlert(t *testing.T) {
	mailer := &fakeMailer{}
	handler := newSMTPHandler(t, config.SMTPConfig{Enabled: true}, mailer)

	recorder := httptest.NewRecorder()
	handler.SendAbsenceAlert(recorder, jsonRequest(t, http.MethodPost, "/api/smtp/send_absence_alert", map[string]string{
		"person_name": "Bob", "person_id": "E002", "recipient_email": "bob@example.com",
	}))
	assertResult(t, recorder, true, "Absence alert sent to bob@example.com")

	if len(mailer.absences) != 1 || mailer.absences[0].Date == "" || mailer.absences[0].Department != "" {
		t.Errorf("unexpected absence alerts %+v", mailer.absences)
	}
}

func TestSMTPHandler_Test(t *testing.T) {
	mailer := &fakeMailer{}
	handler := newSMTPHandler(t, config.SMTPConfig{Enabled: true}, mailer)

	recorder := httptest.NewRecorder()
	handler.Test(recorder, httptest.NewRequest(http.MethodPost, "/api/smtp/test", nil))
	assertResult(t, recorder, true, "SMTP connection successful")
}

package handlers

import (
	"net/http"

	"github.com/kozaktomas/attendance-kiosk/internal/config"
	"github.com/kozaktomas/attendance-kiosk/internal/notify"
)

const notConfigured = "Not configured"

// SMTPHandler exposes the notification dispatcher.
type SMTPHandler struct {
	cfg        config.SMTPConfig
	dispatcher *notify.Dispatcher
	reports    *notify.Reports
}

// NewSMTPHandler creates a new SMTP handler
func NewSMTPHandler(cfg config.SMTPConfig, dispatcher *notify.Dispatcher, reports *notify.Reports) *SMTPHandler {
	return &SMTPHandler{cfg: cfg, dispatcher: dispatcher, reports: reports}
}

// decodeNotification parses the body; the caller answers 400 on false.
func decodeNotification(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := decodeJSON(w, r, dst); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return false
	}
	return true
}

// Test handles POST /api/smtp/test.
func (h *SMTPHandler) Test(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.dispatcher.TestConnection(r.Context()))
}

// SendNotification handles POST /api/smtp/send_notification.
func (h *SMTPHandler) SendNotification(w http.ResponseWriter, r *http.Request) {
	if !h.dispatcher.Configured() {
		respondJSON(w, http.StatusOK, notify.Result{Message: notify.MsgNotConfigured})
		return
	}
	var n notify.AttendanceNotice
	if !decodeNotification(w, r, &n) {
		return
	}
	respondJSON(w, http.StatusOK, h.dispatcher.SendAttendanceNotification(r.Context(), n))
}

type summaryRequest struct {
	Recipient string `json:"recipient_email"`
	Date      string `json:"date"`
}

// SendSummary handles POST /api/smtp/send_summary. The recipient defaults to
// the configured admin address.
func (h *SMTPHandler) SendSummary(w http.ResponseWriter, r *http.Request) {
	if !h.dispatcher.Configured() {
		respondJSON(w, http.StatusOK, notify.Result{Message: notify.MsgNotConfigured})
		return
	}
	var req summaryRequest
	if !decodeNotification(w, r, &req) {
		return
	}
	if req.Recipient == "" {
		req.Recipient = h.cfg.Admin
	}
	respondJSON(w, http.StatusOK, h.reports.SendDailySummary(r.Context(), req.Recipient, req.Date))
}

// SendLateAlert handles POST /api/smtp/send_late_alert.
func (h *SMTPHandler) SendLateAlert(w http.ResponseWriter, r *http.Request) {
	if !h.dispatcher.Configured() {
		respondJSON(w, http.StatusOK, notify.Result{Message: notify.MsgNotConfigured})
		return
	}
	var a notify.LateAlert
	if !decodeNotification(w, r, &a) {
		return
	}
	respondJSON(w, http.StatusOK, h.dispatcher.SendLateArrivalAlert(r.Context(), a))
}

// SendAbsenceAlert handles POST /api/smtp/send_absence_alert.
func (h *SMTPHandler) SendAbsenceAlert(w http.ResponseWriter, r *http.Request) {
	if !h.dispatcher.Configured() {
		respondJSON(w, http.StatusOK, notify.Result{Message: notify.MsgNotConfigured})
		return
	}
	var a notify.AbsenceAlert
	if !decodeNotification(w, r, &a) {
		return
	}
	if a.Date == "" {
		a.Date = h.reports.Today()
	}
	respondJSON(w, http.StatusOK, h.dispatcher.SendAbsenceAlert(r.Context(), a))
}

// SMTPConfigResponse describes the mail setup without secrets.
type SMTPConfigResponse struct {
	Enabled     bool   `json:"enabled"`
	Configured  bool   `json:"configured"`
	SMTPServer  string `json:"smtp_server"`
	SenderEmail string `json:"sender_email"`
}

// Config handles GET /api/smtp/config.
func (h *SMTPHandler) Config(w http.ResponseWriter, r *http.Request) {
	resp := SMTPConfigResponse{
		Enabled:     h.cfg.Enabled,
		Configured:  h.dispatcher.Configured(),
		SMTPServer:  h.cfg.Host,
		SenderEmail: h.cfg.Sender,
	}
	if resp.SMTPServer == "" {
		resp.SMTPServer = notConfigured
	}
	if resp.SenderEmail == "" {
		resp.SenderEmail = notConfigured
	}
	respondJSON(w, http.StatusOK, resp)
}

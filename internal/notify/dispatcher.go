package notify

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// ErrNotConfigured is returned when email notifications are disabled.
var ErrNotConfigured = errors.New("SMTP not configured")

// Messages returned to API callers.
const (
	MsgNotConfigured = "SMTP not configured"
	MsgMissingFields = "Missing required fields"
	MsgNoRecipient   = "No recipient email provided"
)

// Result is the outcome of one notification.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Dispatcher turns notification requests into mailer calls and reports the
// outcome as a Result. Failures are reported, never raised.
type Dispatcher struct {
	mailer Mailer
}

// NewDispatcher creates a dispatcher. A nil mailer means SMTP is not configured.
func NewDispatcher(mailer Mailer) *Dispatcher {
	return &Dispatcher{mailer: mailer}
}

// Configured reports whether a mailer is available.
func (d *Dispatcher) Configured() bool {
	return d != nil && d.mailer != nil
}

func notConfigured() Result {
	return Result{Message: MsgNotConfigured}
}

func outcome(kind string, err error, okMsg string) Result {
	if err != nil {
		slog.Warn("notification failed", "kind", kind, "error", err)
		return Result{Message: err.Error()}
	}
	return Result{Success: true, Message: okMsg}
}

// TestConnection checks the SMTP server.
func (d *Dispatcher) TestConnection(ctx context.Context) Result {
	if !d.Configured() {
		return notConfigured()
	}
	return outcome("test", d.mailer.TestConnection(ctx), "SMTP connection successful")
}

// SendAttendanceNotification requires name, ID and recipient.
func (d *Dispatcher) SendAttendanceNotification(ctx context.Context, n AttendanceNotice) Result {
	if !d.Configured() {
		return notConfigured()
	}
	if n.PersonName == "" || n.PersonID == "" || n.Recipient == "" {
		return Result{Message: MsgMissingFields}
	}
	if n.EventType == "" {
		n.EventType = "arrival"
	}
	if n.Timestamp == "" {
		n.Timestamp = time.Now().Format(time.DateTime)
	}
	return outcome("attendance", d.mailer.SendAttendanceNotification(ctx, n), "Notification sent to "+n.Recipient)
}

// SendDailySummary requires a recipient.
func (d *Dispatcher) SendDailySummary(ctx context.Context, s Summary) Result {
	if !d.Configured() {
		return notConfigured()
	}
	if s.Recipient == "" {
		return Result{Message: MsgNoRecipient}
	}
	return outcome("summary", d.mailer.SendDailySummary(ctx, s), "Daily summary sent to "+s.Recipient)
}

// SendLateArrivalAlert requires every field.
func (d *Dispatcher) SendLateArrivalAlert(ctx context.Context, a LateAlert) Result {
	if !d.Configured() {
		return notConfigured()
	}
	if a.PersonName == "" || a.PersonID == "" || a.Recipient == "" || a.ArrivalTime == "" || a.ExpectedTime == "" {
		return Result{Message: MsgMissingFields}
	}
	return outcome("late", d.mailer.SendLateArrivalAlert(ctx, a), "Late arrival alert sent to "+a.Recipient)
}

// SendAbsenceAlert requires name, ID and recipient.
func (d *Dispatcher) SendAbsenceAlert(ctx context.Context, a AbsenceAlert) Result {
	if !d.Configured() {
		return notConfigured()
	}
	if a.PersonName == "" || a.PersonID == "" || a.Recipient == "" {
		return Result{Message: MsgMissingFields}
	}
	if a.Date == "" {
		a.Date = time.Now().Format(time.DateOnly)
	}
	return outcome("absence", d.mailer.SendAbsenceAlert(ctx, a), "Absence alert sent to "+a.Recipient)
}

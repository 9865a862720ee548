// Package notify sends attendance emails.
package notify

import (
	"context"
	"strings"
)

// AttendanceNotice reports an arrival or departure.
type AttendanceNotice struct {
	PersonName string `json:"person_name"`
	PersonID   string `json:"person_id"`
	Recipient  string `json:"recipient_email"`
	EventType  string `json:"event_type"`
	Timestamp  string `json:"timestamp"`
}

// EventLabel is the capitalized event type used in subjects.
func (n AttendanceNotice) EventLabel() string {
	if n.EventType == "" {
		return ""
	}
	return strings.ToUpper(n.EventType[:1]) + n.EventType[1:]
}

// SummaryRow is one line of the daily summary.
type SummaryRow struct {
	PersonID string
	Name     string
	Login    string
	Logout   string
	Status   string
}

// Summary is the daily attendance report.
type Summary struct {
	Recipient       string
	Date            string
	TotalRegistered int
	PresentToday    int
	Rows            []SummaryRow
}

// Absent is the number of registered persons without a record.
func (s Summary) Absent() int {
	return max(s.TotalRegistered-s.PresentToday, 0)
}

// LateAlert reports an arrival after the shift start.
type LateAlert struct {
	PersonName   string `json:"person_name"`
	PersonID     string `json:"person_id"`
	Recipient    string `json:"recipient_email"`
	ArrivalTime  string `json:"arrival_time"`
	ExpectedTime string `json:"expected_time"`
}

// AbsenceAlert reports a person without attendance on a date.
type AbsenceAlert struct {
	PersonName string `json:"person_name"`
	PersonID   string `json:"person_id"`
	Recipient  string `json:"recipient_email"`
	Date       string `json:"date"`
	Department string `json:"department"`
}

// Mailer delivers the notification emails.
type Mailer interface {
	TestConnection(ctx context.Context) error
	SendAttendanceNotification(ctx context.Context, n AttendanceNotice) error
	SendDailySummary(ctx context.Context, s Summary) error
	SendLateArrivalAlert(ctx context.Context, a LateAlert) error
	SendAbsenceAlert(ctx context.Context, a AbsenceAlert) error
}

package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/kozaktomas/attendance-kiosk/internal/constants"
	"github.com/kozaktomas/attendance-kiosk/internal/database"
)

// ReportStore is the read access reports need.
type ReportStore interface {
	ListPersons(ctx context.Context) ([]database.Person, error)
	GetStatistics(ctx context.Context, date string) (database.Statistics, error)
	GetDailyAttendance(ctx context.Context, date string) ([]database.DailyRow, error)
}

// Reports builds the daily summary and absence alerts from the store.
type Reports struct {
	store      ReportStore
	dispatcher *Dispatcher
	loc        *time.Location
	now        func() time.Time
}

// NewReports creates the report sender. loc is the zone of the calendar day.
func NewReports(store ReportStore, d *Dispatcher, loc *time.Location) *Reports {
	if loc == nil {
		loc = time.Local
	}
	return &Reports{store: store, dispatcher: d, loc: loc, now: time.Now}
}

// Today returns the current date in the report zone.
func (r *Reports) Today() string {
	return database.DateOf(r.now().In(r.loc))
}

// SendDailySummary mails the statistics and records of date. An empty date means today.
func (r *Reports) SendDailySummary(ctx context.Context, recipient, date string) Result {
	if !r.dispatcher.Configured() {
		return notConfigured()
	}
	if recipient == "" {
		return Result{Message: MsgNoRecipient}
	}
	if date == "" {
		date = r.Today()
	}

	stats, err := r.store.GetStatistics(ctx, date)
	if err != nil {
		return Result{Message: fmt.Sprintf("Failed to load statistics: %v", err)}
	}
	rows, err := r.store.GetDailyAttendance(ctx, date)
	if err != nil {
		return Result{Message: fmt.Sprintf("Failed to load attendance: %v", err)}
	}

	s := Summary{
		Recipient:       recipient,
		Date:            date,
		TotalRegistered: stats.TotalPersons,
		PresentToday:    stats.PresentToday,
		Rows:            make([]SummaryRow, len(rows)),
	}
	for i, row := range rows {
		s.Rows[i] = SummaryRow{
			PersonID: row.PersonID,
			Name:     row.Name,
			Login:    FormatClock(row.Login),
			Logout:   FormatClock(row.Logout),
			Status:   string(row.Status),
		}
	}
	return r.dispatcher.SendDailySummary(ctx, s)
}

// AbsenceReport is the outcome of one absence run.
type AbsenceReport struct {
	Date    string
	Absent  int
	Sent    int
	Skipped int // absent persons without an email address and no override recipient
	Results []Result
}

// SendAbsenceAlerts sends one alert per enrolled person without a record on
// date. recipient overrides the person's own address when set.
func (r *Reports) SendAbsenceAlerts(ctx context.Context, date, recipient string) (AbsenceReport, error) {
	if date == "" {
		date = r.Today()
	}
	report := AbsenceReport{Date: date}
	if !r.dispatcher.Configured() {
		return report, ErrNotConfigured
	}

	persons, err := r.store.ListPersons(ctx)
	if err != nil {
		return report, fmt.Errorf("list persons: %w", err)
	}
	rows, err := r.store.GetDailyAttendance(ctx, date)
	if err != nil {
		return report, fmt.Errorf("daily attendance: %w", err)
	}
	seen := make(map[string]bool, len(rows))
	for _, row := range rows {
		seen[row.PersonID] = true
	}

	for _, p := range persons {
		if seen[p.ID] {
			continue
		}
		report.Absent++
		to := recipient
		if to == "" {
			to = p.Email
		}
		if to == "" {
			report.Skipped++
			continue
		}
		res := r.dispatcher.SendAbsenceAlert(ctx, AbsenceAlert{
			PersonName: p.Name,
			PersonID:   p.ID,
			Recipient:  to,
			Date:       date,
			Department: p.Department,
		})
		if res.Success {
			report.Sent++
		}
		report.Results = append(report.Results, res)
	}
	return report, nil
}

// FormatClock renders a time of day or "N/A".
func FormatClock(t *time.Time) string {
	if t == nil {
		return constants.NotAvailable
	}
	return t.Format(time.TimeOnly)
}

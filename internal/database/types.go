package database

import (
	"errors"
	"fmt"
	"time"
)

// DateLayout is the calendar date format used for attendance keys.
const DateLayout = "2006-01-02"

var (
	// ErrDuplicatePerson is returned when a person with the same ID already exists.
	ErrDuplicatePerson = errors.New("person already exists")
	// ErrNotFound is returned when a referenced person does not exist.
	ErrNotFound = errors.New("not found")
)

// Status is the attendance state of a person for one calendar day.
type Status string

// Status constants. A day without a record is implicitly "unseen".
const (
	StatusPresent    Status = "Present"
	StatusCheckedOut Status = "CheckedOut"
)

// Person represents an enrolled identity.
type Person struct {
	ID         string
	Name       string
	Email      string
	Department string
	ShiftStart string // "15:04", empty if not set
	ShiftEnd   string // "15:04", empty if not set
	Embedding  []float32
	CreatedAt  time.Time
}

// ShiftStartOn returns the shift start on the given day, false if no shift is set.
func (p *Person) ShiftStartOn(day time.Time) (time.Time, bool) {
	return clockOn(p.ShiftStart, day)
}

// ShiftEndOn returns the shift end on the given day, false if no shift is set.
func (p *Person) ShiftEndOn(day time.Time) (time.Time, bool) {
	return clockOn(p.ShiftEnd, day)
}

func clockOn(clock string, day time.Time) (time.Time, bool) {
	if clock == "" {
		return time.Time{}, false
	}
	t, err := ParseClock(clock)
	if err != nil {
		return time.Time{}, false
	}
	y, m, d := day.Date()
	return time.Date(y, m, d, t.Hour(), t.Minute(), 0, 0, day.Location()), true
}

// ParseClock parses a wall clock time in "15:04" or "15:04:05" form.
func ParseClock(s string) (time.Time, error) {
	for _, layout := range []string{"15:04", "15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid clock time %q", s)
}

// DateOf returns the calendar date key of t in its own location.
func DateOf(t time.Time) string {
	return t.Format(DateLayout)
}

// AttendanceRecord is the single record of a person for a calendar day.
type AttendanceRecord struct {
	PersonID   string
	Date       string
	LoginTime  *time.Time
	LogoutTime *time.Time
	Status     Status
}

// Statistics contains aggregate counts for the dashboard.
type Statistics struct {
	TotalPersons int
	PresentToday int
}

// DailyRow is one line of the daily attendance report.
type DailyRow struct {
	PersonID string
	Name     string
	Login    *time.Time
	Logout   *time.Time
	Status   Status
}

// LogEntry is an attendance event in the recent activity log.
type LogEntry struct {
	PersonID string
	Name     string
	Event    string // "login" or "logout"
	At       time.Time
}

// Event types written to the activity log.
const (
	EventLogin  = "login"
	EventLogout = "logout"
)

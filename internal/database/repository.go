package database

import (
	"context"
	"time"
)

// PersonReader provides read-only access to enrolled persons
type PersonReader interface {
	// GetPerson retrieves a person by ID, returns nil if not found
	GetPerson(ctx context.Context, id string) (*Person, error)
	// ListPersons returns all enrolled persons ordered by ID, embeddings included
	ListPersons(ctx context.Context) ([]Person, error)
	// FindPersonsByName returns persons whose normalized name matches.
	// Names are compared lowercase, without diacritics and with dashes as spaces.
	FindPersonsByName(ctx context.Context, name string) ([]Person, error)
	// CountPersons returns the number of enrolled persons
	CountPersons(ctx context.Context) (int, error)
}

// PersonWriter provides write access to enrolled persons
type PersonWriter interface {
	PersonReader

	// AddPerson stores a new person. Returns ErrDuplicatePerson if the ID is taken.
	AddPerson(ctx context.Context, p Person) error
	// DeletePerson removes a person and their attendance history
	DeletePerson(ctx context.Context, id string) error
}

// AttendanceStore persists the per-day attendance records.
//
// CheckIn and CheckOut must be atomic per (person, date): concurrent calls for the
// same key produce at most one login and at most one logout.
type AttendanceStore interface {
	// CheckIn creates the day's record with status Present if none exists.
	// Returns the current record and whether it was created by this call.
	CheckIn(ctx context.Context, personID, date string, at time.Time) (AttendanceRecord, bool, error)
	// CheckOut sets the logout time on a Present record.
	// Returns the current record (nil if none) and whether this call changed it.
	CheckOut(ctx context.Context, personID, date string, at time.Time) (*AttendanceRecord, bool, error)
	// GetRecord returns the record for a person and date, nil if none exists
	GetRecord(ctx context.Context, personID, date string) (*AttendanceRecord, error)
	// OpenRecords returns all Present records of a date
	OpenRecords(ctx context.Context, date string) ([]AttendanceRecord, error)
	// GetStatistics returns enrolled and present counts for a date
	GetStatistics(ctx context.Context, date string) (Statistics, error)
	// GetDailyAttendance returns the records of a date joined with person names, ordered by login time
	GetDailyAttendance(ctx context.Context, date string) ([]DailyRow, error)
	// GetRecentLogs returns the latest attendance events, newest first
	GetRecentLogs(ctx context.Context, limit int) ([]LogEntry, error)
}

// Store is the full persistence collaborator used by the kiosk.
type Store interface {
	PersonWriter
	AttendanceStore

	// Close releases the underlying connection pool
	Close() error
}

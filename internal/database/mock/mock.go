// Package mock provides an in-memory implementation of database.Store for
// tests and the storage-less demo mode.
package mock

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kozaktomas/attendance-kiosk/internal/database"
	"github.com/kozaktomas/attendance-kiosk/internal/facematch"
)

type recordKey struct {
	personID string
	date     string
}

// MockStore is an in-memory database.Store with error injection.
type MockStore struct {
	mu      sync.RWMutex
	persons map[string]database.Person
	records map[recordKey]database.AttendanceRecord
	events  []database.LogEntry

	// Error injection
	AddPersonError   error
	GetPersonError   error
	ListPersonsError error
	CheckInError     error
	CheckOutError    error
	StatisticsError  error
	DailyError       error
	LogsError        error

	// CheckInCalls counts calls to CheckIn that reached the store.
	CheckInCalls atomic.Int64
	// CheckOutCalls counts calls to CheckOut that reached the store.
	CheckOutCalls atomic.Int64
	closed        atomic.Bool
}

// NewMockStore creates an empty store.
func NewMockStore() *MockStore {
	return &MockStore{
		persons: make(map[string]database.Person),
		records: make(map[recordKey]database.AttendanceRecord),
	}
}

// Closed reports whether Close was called.
func (m *MockStore) Closed() bool {
	return m.closed.Load()
}

// Close marks the store closed.
func (m *MockStore) Close() error {
	m.closed.Store(true)
	return nil
}

// AddPerson stores a copy of the person.
func (m *MockStore) AddPerson(ctx context.Context, p database.Person) error {
	if m.AddPersonError != nil {
		return m.AddPersonError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.persons[p.ID]; ok {
		return fmt.Errorf("person %s: %w", p.ID, database.ErrDuplicatePerson)
	}
	p.Embedding = slices.Clone(p.Embedding)
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	m.persons[p.ID] = p
	return nil
}

// DeletePerson removes a person with their records and events.
func (m *MockStore) DeletePerson(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.persons[id]; !ok {
		return fmt.Errorf("person %s: %w", id, database.ErrNotFound)
	}
	delete(m.persons, id)
	for k := range m.records {
		if k.personID == id {
			delete(m.records, k)
		}
	}
	m.events = slices.DeleteFunc(m.events, func(e database.LogEntry) bool { return e.PersonID == id })
	return nil
}

// GetPerson returns a person by ID, nil if not found.
func (m *MockStore) GetPerson(ctx context.Context, id string) (*database.Person, error) {
	if m.GetPersonError != nil {
		return nil, m.GetPersonError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.persons[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

// ListPersons returns all persons ordered by ID.
func (m *MockStore) ListPersons(ctx context.Context) ([]database.Person, error) {
	if m.ListPersonsError != nil {
		return nil, m.ListPersonsError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	persons := make([]database.Person, 0, len(m.persons))
	for _, p := range m.persons {
		persons = append(persons, p)
	}
	sort.Slice(persons, func(i, j int) bool { return persons[i].ID < persons[j].ID })
	return persons, nil
}

// FindPersonsByName matches normalized names.
func (m *MockStore) FindPersonsByName(ctx context.Context, name string) ([]database.Person, error) {
	persons, err := m.ListPersons(ctx)
	if err != nil {
		return nil, err
	}
	want := facematch.NormalizePersonName(strings.TrimSpace(name))
	var matched []database.Person
	for _, p := range persons {
		if facematch.NormalizePersonName(p.Name) == want {
			matched = append(matched, p)
		}
	}
	return matched, nil
}

// CountPersons returns the number of persons.
func (m *MockStore) CountPersons(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.persons), nil
}

// CheckIn creates the record if absent.
func (m *MockStore) CheckIn(
	ctx context.Context, personID, date string, at time.Time,
) (database.AttendanceRecord, bool, error) {
	m.CheckInCalls.Add(1)
	if m.CheckInError != nil {
		return database.AttendanceRecord{}, false, m.CheckInError
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.persons[personID]; !ok {
		return database.AttendanceRecord{}, false, fmt.Errorf("person %s: %w", personID, database.ErrNotFound)
	}
	key := recordKey{personID, date}
	if rec, ok := m.records[key]; ok {
		return rec, false, nil
	}
	rec := database.AttendanceRecord{
		PersonID:  personID,
		Date:      date,
		LoginTime: &at,
		Status:    database.StatusPresent,
	}
	m.records[key] = rec
	m.events = append(m.events, database.LogEntry{
		PersonID: personID, Name: m.persons[personID].Name, Event: database.EventLogin, At: at,
	})
	return rec, true, nil
}

// CheckOut closes a Present record.
func (m *MockStore) CheckOut(
	ctx context.Context, personID, date string, at time.Time,
) (*database.AttendanceRecord, bool, error) {
	m.CheckOutCalls.Add(1)
	if m.CheckOutError != nil {
		return nil, false, m.CheckOutError
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	key := recordKey{personID, date}
	rec, ok := m.records[key]
	if !ok {
		return nil, false, nil
	}
	if rec.Status != database.StatusPresent {
		return &rec, false, nil
	}
	rec.LogoutTime = &at
	rec.Status = database.StatusCheckedOut
	m.records[key] = rec
	m.events = append(m.events, database.LogEntry{
		PersonID: personID, Name: m.persons[personID].Name, Event: database.EventLogout, At: at,
	})
	return &rec, true, nil
}

// GetRecord returns the record for a person and date.
func (m *MockStore) GetRecord(ctx context.Context, personID, date string) (*database.AttendanceRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[recordKey{personID, date}]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

// OpenRecords returns Present records of a date ordered by person ID.
func (m *MockStore) OpenRecords(ctx context.Context, date string) ([]database.AttendanceRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var open []database.AttendanceRecord
	for k, rec := range m.records {
		if k.date == date && rec.Status == database.StatusPresent {
			open = append(open, rec)
		}
	}
	sort.Slice(open, func(i, j int) bool { return open[i].PersonID < open[j].PersonID })
	return open, nil
}

// GetStatistics counts persons and records of a date.
func (m *MockStore) GetStatistics(ctx context.Context, date string) (database.Statistics, error) {
	if m.StatisticsError != nil {
		return database.Statistics{}, m.StatisticsError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	stats := database.Statistics{TotalPersons: len(m.persons)}
	for k := range m.records {
		if k.date == date {
			stats.PresentToday++
		}
	}
	return stats, nil
}

// GetDailyAttendance returns the rows of a date ordered by login time.
func (m *MockStore) GetDailyAttendance(ctx context.Context, date string) ([]database.DailyRow, error) {
	if m.DailyError != nil {
		return nil, m.DailyError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var rows []database.DailyRow
	for k, rec := range m.records {
		if k.date != date {
			continue
		}
		rows = append(rows, database.DailyRow{
			PersonID: rec.PersonID,
			Name:     m.persons[rec.PersonID].Name,
			Login:    rec.LoginTime,
			Logout:   rec.LogoutTime,
			Status:   rec.Status,
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].Login.Equal(*rows[j].Login) {
			return rows[i].Login.Before(*rows[j].Login)
		}
		return rows[i].PersonID < rows[j].PersonID
	})
	return rows, nil
}

// GetRecentLogs returns the latest events, newest first.
func (m *MockStore) GetRecentLogs(ctx context.Context, limit int) ([]database.LogEntry, error) {
	if m.LogsError != nil {
		return nil, m.LogsError
	}
	if limit <= 0 {
		limit = database.RecentLogLimit
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	logs := make([]database.LogEntry, 0, min(limit, len(m.events)))
	for i := len(m.events) - 1; i >= 0 && len(logs) < limit; i-- {
		logs = append(logs, m.events[i])
	}
	return logs, nil
}

var _ database.Store = (*MockStore)(nil)

package mariadb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kozaktomas/attendance-kiosk/internal/database"
	"github.com/kozaktomas/attendance-kiosk/internal/facematch"
)

// Store is the MariaDB implementation of database.Store.
type Store struct {
	pool *Pool
}

// NewStore creates a store on top of an open pool.
func NewStore(pool *Pool) *Store {
	return &Store{pool: pool}
}

// Close closes the underlying pool.
func (s *Store) Close() error {
	return s.pool.Close()
}

const personColumns = `id, name, email, department, shift_start, shift_end, embedding, created_at`

func (s *Store) AddPerson(ctx context.Context, p database.Person) error {
	if len(p.Embedding) == 0 {
		return errors.New("person embedding is required")
	}

	_, err := s.pool.db.ExecContext(ctx, `
		INSERT INTO persons (id, name, email, department, shift_start, shift_end, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, p.ID, p.Name, p.Email, p.Department, p.ShiftStart, p.ShiftEnd, encodeEmbedding(p.Embedding))
	if err != nil {
		if isMySQLError(err, erDupEntry) {
			return fmt.Errorf("person %s: %w", p.ID, database.ErrDuplicatePerson)
		}
		return fmt.Errorf("insert person: %w", err)
	}
	return nil
}

func (s *Store) DeletePerson(ctx context.Context, id string) error {
	res, err := s.pool.db.ExecContext(ctx, "DELETE FROM persons WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete person: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("person %s: %w", id, database.ErrNotFound)
	}
	return nil
}

func (s *Store) GetPerson(ctx context.Context, id string) (*database.Person, error) {
	row := s.pool.db.QueryRowContext(ctx, "SELECT "+personColumns+" FROM persons WHERE id = ?", id)
	p, err := scanPerson(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) ListPersons(ctx context.Context) ([]database.Person, error) {
	rows, err := s.pool.db.QueryContext(ctx, "SELECT "+personColumns+" FROM persons ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("query persons: %w", err)
	}
	defer rows.Close()

	var persons []database.Person
	for rows.Next() {
		p, err := scanPerson(rows)
		if err != nil {
			return nil, err
		}
		persons = append(persons, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate persons: %w", err)
	}
	return persons, nil
}

// FindPersonsByName compares normalized names in Go; MariaDB has no
// equivalent of unaccent that also folds dashes.
func (s *Store) FindPersonsByName(ctx context.Context, name string) ([]database.Person, error) {
	persons, err := s.ListPersons(ctx)
	if err != nil {
		return nil, err
	}
	want := facematch.NormalizePersonName(name)
	var matched []database.Person
	for _, p := range persons {
		if facematch.NormalizePersonName(p.Name) == want {
			matched = append(matched, p)
		}
	}
	return matched, nil
}

func (s *Store) CountPersons(ctx context.Context) (int, error) {
	var count int
	if err := s.pool.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM persons").Scan(&count); err != nil {
		return 0, fmt.Errorf("count persons: %w", err)
	}
	return count, nil
}

// CheckIn relies on INSERT IGNORE against the (person_id, date) primary key.
// INSERT IGNORE also downgrades a foreign key failure to a warning, so a zero
// row count with no existing record means the person is unknown.
func (s *Store) CheckIn(
	ctx context.Context, personID, date string, at time.Time,
) (database.AttendanceRecord, bool, error) {
	at = at.UTC()

	tx, err := s.pool.db.BeginTx(ctx, nil)
	if err != nil {
		return database.AttendanceRecord{}, false, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	res, err := tx.ExecContext(ctx, `
		INSERT IGNORE INTO attendance (person_id, date, login_time, status)
		VALUES (?, ?, ?, ?)
	`, personID, date, at, string(database.StatusPresent))
	if err != nil {
		return database.AttendanceRecord{}, false, fmt.Errorf("insert attendance: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return database.AttendanceRecord{}, false, fmt.Errorf("rows affected: %w", err)
	}

	if n == 0 {
		rec, err := getRecord(ctx, tx, personID, date)
		if err != nil {
			return database.AttendanceRecord{}, false, err
		}
		if rec == nil {
			return database.AttendanceRecord{}, false, fmt.Errorf("person %s: %w", personID, database.ErrNotFound)
		}
		return *rec, false, tx.Commit()
	}

	if err := insertEvent(ctx, tx, personID, database.EventLogin, at); err != nil {
		return database.AttendanceRecord{}, false, err
	}
	if err := tx.Commit(); err != nil {
		return database.AttendanceRecord{}, false, fmt.Errorf("commit check-in: %w", err)
	}
	return database.AttendanceRecord{
		PersonID:  personID,
		Date:      date,
		LoginTime: &at,
		Status:    database.StatusPresent,
	}, true, nil
}

func (s *Store) CheckOut(
	ctx context.Context, personID, date string, at time.Time,
) (*database.AttendanceRecord, bool, error) {
	at = at.UTC()

	tx, err := s.pool.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	res, err := tx.ExecContext(ctx, `
		UPDATE attendance
		SET logout_time = ?, status = ?
		WHERE person_id = ? AND date = ? AND status = ?
	`, at, string(database.StatusCheckedOut), personID, date, string(database.StatusPresent))
	if err != nil {
		return nil, false, fmt.Errorf("update attendance: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("rows affected: %w", err)
	}

	if n > 0 {
		if err := insertEvent(ctx, tx, personID, database.EventLogout, at); err != nil {
			return nil, false, err
		}
	}
	rec, err := getRecord(ctx, tx, personID, date)
	if err != nil {
		return nil, false, err
	}
	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("commit check-out: %w", err)
	}
	return rec, n > 0, nil
}

func (s *Store) GetRecord(ctx context.Context, personID, date string) (*database.AttendanceRecord, error) {
	return getRecord(ctx, s.pool.db, personID, date)
}

func (s *Store) OpenRecords(ctx context.Context, date string) ([]database.AttendanceRecord, error) {
	rows, err := s.pool.db.QueryContext(ctx, `
		SELECT person_id, date, login_time, logout_time, status
		FROM attendance
		WHERE date = ? AND status = ?
		ORDER BY person_id
	`, date, string(database.StatusPresent))
	if err != nil {
		return nil, fmt.Errorf("query open records: %w", err)
	}
	defer rows.Close()

	var records []database.AttendanceRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate open records: %w", err)
	}
	return records, nil
}

func (s *Store) GetStatistics(ctx context.Context, date string) (database.Statistics, error) {
	var stats database.Statistics
	err := s.pool.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM persons),
			(SELECT COUNT(*) FROM attendance WHERE date = ?)
	`, date).Scan(&stats.TotalPersons, &stats.PresentToday)
	if err != nil {
		return stats, fmt.Errorf("query statistics: %w", err)
	}
	return stats, nil
}

func (s *Store) GetDailyAttendance(ctx context.Context, date string) ([]database.DailyRow, error) {
	rows, err := s.pool.db.QueryContext(ctx, `
		SELECT a.person_id, p.name, a.login_time, a.logout_time, a.status
		FROM attendance a
		JOIN persons p ON p.id = a.person_id
		WHERE a.date = ?
		ORDER BY a.login_time, a.person_id
	`, date)
	if err != nil {
		return nil, fmt.Errorf("query daily attendance: %w", err)
	}
	defer rows.Close()

	var result []database.DailyRow
	for rows.Next() {
		var row database.DailyRow
		var login, logout sql.NullTime
		var status string
		if err := rows.Scan(&row.PersonID, &row.Name, &login, &logout, &status); err != nil {
			return nil, fmt.Errorf("scan daily row: %w", err)
		}
		row.Login = nullTimePtr(login)
		row.Logout = nullTimePtr(logout)
		row.Status = database.Status(status)
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate daily attendance: %w", err)
	}
	return result, nil
}

func (s *Store) GetRecentLogs(ctx context.Context, limit int) ([]database.LogEntry, error) {
	if limit <= 0 {
		limit = database.RecentLogLimit
	}
	rows, err := s.pool.db.QueryContext(ctx, `
		SELECT e.person_id, p.name, e.event, e.at
		FROM attendance_events e
		JOIN persons p ON p.id = e.person_id
		ORDER BY e.at DESC, e.id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent logs: %w", err)
	}
	defer rows.Close()

	var logs []database.LogEntry
	for rows.Next() {
		var entry database.LogEntry
		if err := rows.Scan(&entry.PersonID, &entry.Name, &entry.Event, &entry.At); err != nil {
			return nil, fmt.Errorf("scan log entry: %w", err)
		}
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recent logs: %w", err)
	}
	return logs, nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getRecord(ctx context.Context, q queryer, personID, date string) (*database.AttendanceRecord, error) {
	row := q.QueryRowContext(ctx, `
		SELECT person_id, date, login_time, logout_time, status
		FROM attendance
		WHERE person_id = ? AND date = ?
	`, personID, date)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func scanPerson(scanner interface{ Scan(...any) error }) (database.Person, error) {
	var p database.Person
	var blob []byte
	err := scanner.Scan(&p.ID, &p.Name, &p.Email, &p.Department, &p.ShiftStart, &p.ShiftEnd, &blob, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return p, err
		}
		return p, fmt.Errorf("scan person: %w", err)
	}
	if p.Embedding, err = decodeEmbedding(blob); err != nil {
		return p, fmt.Errorf("person %s: %w", p.ID, err)
	}
	return p, nil
}

func scanRecord(scanner interface{ Scan(...any) error }) (database.AttendanceRecord, error) {
	var rec database.AttendanceRecord
	var date time.Time
	var login, logout sql.NullTime
	var status string
	if err := scanner.Scan(&rec.PersonID, &date, &login, &logout, &status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return rec, err
		}
		return rec, fmt.Errorf("scan attendance record: %w", err)
	}
	rec.Date = date.Format(database.DateLayout)
	rec.LoginTime = nullTimePtr(login)
	rec.LogoutTime = nullTimePtr(logout)
	rec.Status = database.Status(status)
	return rec, nil
}

func insertEvent(ctx context.Context, tx *sql.Tx, personID, event string, at time.Time) error {
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO attendance_events (person_id, event, at) VALUES (?, ?, ?)",
		personID, event, at); err != nil {
		return fmt.Errorf("insert attendance event: %w", err)
	}
	return nil
}

func nullTimePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

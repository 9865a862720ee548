package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kozaktomas/attendance-kiosk/internal/database"
)

// CheckIn inserts the day's record if absent. The insert and its log event
// share a transaction; ON CONFLICT makes concurrent check-ins collapse into one.
func (s *Store) CheckIn(
	ctx context.Context, personID, date string, at time.Time,
) (database.AttendanceRecord, bool, error) {
	tx, err := s.pool.BeginTx(ctx, nil)
	if err != nil {
		return database.AttendanceRecord{}, false, err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	var login time.Time
	err = tx.QueryRowContext(ctx, `
		INSERT INTO attendance (person_id, date, login_time, status)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (person_id, date) DO NOTHING
		RETURNING login_time
	`, personID, date, at, string(database.StatusPresent)).Scan(&login)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		rec, err := getRecord(ctx, tx, personID, date)
		if err != nil {
			return database.AttendanceRecord{}, false, err
		}
		if rec == nil {
			return database.AttendanceRecord{}, false, fmt.Errorf("attendance record %s/%s vanished", personID, date)
		}
		return *rec, false, tx.Commit()
	case err != nil:
		if isPQError(err, pqForeignKeyViolation) {
			return database.AttendanceRecord{}, false, fmt.Errorf("person %s: %w", personID, database.ErrNotFound)
		}
		return database.AttendanceRecord{}, false, fmt.Errorf("insert attendance: %w", err)
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
		LoginTime: &login,
		Status:    database.StatusPresent,
	}, true, nil
}

// CheckOut closes a Present record. The WHERE clause on status makes the
// transition happen at most once.
func (s *Store) CheckOut(
	ctx context.Context, personID, date string, at time.Time,
) (*database.AttendanceRecord, bool, error) {
	tx, err := s.pool.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	var login, logout sql.NullTime
	err = tx.QueryRowContext(ctx, `
		UPDATE attendance
		SET logout_time = $3, status = $4
		WHERE person_id = $1 AND date = $2 AND status = $5
		RETURNING login_time, logout_time
	`, personID, date, at, string(database.StatusCheckedOut), string(database.StatusPresent)).Scan(&login, &logout)

	if errors.Is(err, sql.ErrNoRows) {
		rec, err := getRecord(ctx, tx, personID, date)
		if err != nil {
			return nil, false, err
		}
		return rec, false, tx.Commit()
	}
	if err != nil {
		return nil, false, fmt.Errorf("update attendance: %w", err)
	}

	if err := insertEvent(ctx, tx, personID, database.EventLogout, at); err != nil {
		return nil, false, err
	}
	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("commit check-out: %w", err)
	}

	return &database.AttendanceRecord{
		PersonID:   personID,
		Date:       date,
		LoginTime:  nullTimePtr(login),
		LogoutTime: nullTimePtr(logout),
		Status:     database.StatusCheckedOut,
	}, true, nil
}

// GetRecord returns the record of a person for a date, nil if none exists.
func (s *Store) GetRecord(ctx context.Context, personID, date string) (*database.AttendanceRecord, error) {
	return getRecord(ctx, s.pool.db, personID, date)
}

// OpenRecords returns the records still Present on a date.
func (s *Store) OpenRecords(ctx context.Context, date string) ([]database.AttendanceRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT person_id, date, login_time, logout_time, status
		FROM attendance
		WHERE date = $1 AND status = $2
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

// GetStatistics counts enrolled persons and persons with a record on date.
func (s *Store) GetStatistics(ctx context.Context, date string) (database.Statistics, error) {
	var stats database.Statistics
	err := s.pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM persons),
			(SELECT COUNT(*) FROM attendance WHERE date = $1)
	`, date).Scan(&stats.TotalPersons, &stats.PresentToday)
	if err != nil {
		return stats, fmt.Errorf("query statistics: %w", err)
	}
	return stats, nil
}

// GetDailyAttendance returns the records of a date with person names.
func (s *Store) GetDailyAttendance(ctx context.Context, date string) ([]database.DailyRow, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT a.person_id, p.name, a.login_time, a.logout_time, a.status
		FROM attendance a
		JOIN persons p ON p.id = a.person_id
		WHERE a.date = $1
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

// GetRecentLogs returns the latest login/logout events, newest first.
func (s *Store) GetRecentLogs(ctx context.Context, limit int) ([]database.LogEntry, error) {
	if limit <= 0 {
		limit = database.RecentLogLimit
	}
	rows, err := s.pool.Query(ctx, `
		SELECT e.person_id, p.name, e.event, e.at
		FROM attendance_events e
		JOIN persons p ON p.id = e.person_id
		ORDER BY e.at DESC, e.id DESC
		LIMIT $1
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
		WHERE person_id = $1 AND date = $2
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
	_, err := tx.ExecContext(ctx,
		"INSERT INTO attendance_events (person_id, event, at) VALUES ($1, $2, $3)",
		personID, event, at)
	if err != nil {
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

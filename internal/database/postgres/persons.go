package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kozaktomas/attendance-kiosk/internal/database"
	"github.com/kozaktomas/attendance-kiosk/internal/facematch"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
)

const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
)

// Store is the PostgreSQL implementation of database.Store.
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

// AddPerson stores a new person with their face embedding.
func (s *Store) AddPerson(ctx context.Context, p database.Person) error {
	if len(p.Embedding) == 0 {
		return errors.New("person embedding is required")
	}

	_, err := s.pool.db.ExecContext(ctx, `
		INSERT INTO persons (id, name, email, department, shift_start, shift_end, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, p.ID, p.Name, p.Email, p.Department, p.ShiftStart, p.ShiftEnd, pgvector.NewVector(p.Embedding))
	if err != nil {
		if isPQError(err, pqUniqueViolation) {
			return fmt.Errorf("person %s: %w", p.ID, database.ErrDuplicatePerson)
		}
		return fmt.Errorf("insert person: %w", err)
	}
	return nil
}

// DeletePerson removes a person. Attendance rows cascade.
func (s *Store) DeletePerson(ctx context.Context, id string) error {
	res, err := s.pool.Exec(ctx, "DELETE FROM persons WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete person: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("person %s: %w", id, database.ErrNotFound)
	}
	return nil
}

// GetPerson returns the person with the given ID, nil if not found.
func (s *Store) GetPerson(ctx context.Context, id string) (*database.Person, error) {
	row := s.pool.QueryRow(ctx, "SELECT "+personColumns+" FROM persons WHERE id = $1", id)
	p, err := scanPerson(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListPersons returns all persons ordered by ID.
func (s *Store) ListPersons(ctx context.Context) ([]database.Person, error) {
	rows, err := s.pool.Query(ctx, "SELECT "+personColumns+" FROM persons ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("query persons: %w", err)
	}
	defer rows.Close()
	return scanPersons(rows)
}

// FindPersonsByName matches names after normalization (lowercase, no diacritics, dashes to spaces).
func (s *Store) FindPersonsByName(ctx context.Context, name string) ([]database.Person, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+personColumns+`
		FROM persons
		WHERE LOWER(REPLACE(unaccent(name), '-', ' ')) = $1
		ORDER BY id
	`, facematch.NormalizePersonName(name))
	if err != nil {
		return nil, fmt.Errorf("query persons by name: %w", err)
	}
	defer rows.Close()
	return scanPersons(rows)
}

// CountPersons returns the number of enrolled persons.
func (s *Store) CountPersons(ctx context.Context) (int, error) {
	var count int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM persons").Scan(&count); err != nil {
		return 0, fmt.Errorf("count persons: %w", err)
	}
	return count, nil
}

// FindNearest returns the enrolled persons closest to embedding by cosine distance,
// together with their similarity. Used for offline duplicate checks.
func (s *Store) FindNearest(ctx context.Context, embedding []float32, limit int) ([]database.Person, []float64, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+personColumns+`, embedding <=> $1::vector AS distance
		FROM persons
		ORDER BY embedding <=> $1::vector
		LIMIT $2
	`, pgvector.NewVector(embedding), limit)
	if err != nil {
		return nil, nil, fmt.Errorf("query nearest persons: %w", err)
	}
	defer rows.Close()

	var persons []database.Person
	var similarities []float64
	for rows.Next() {
		var distance float64
		p, err := scanPerson(rows, &distance)
		if err != nil {
			return nil, nil, err
		}
		persons = append(persons, p)
		similarities = append(similarities, 1-distance)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate nearest persons: %w", err)
	}
	return persons, similarities, nil
}

// scanPerson scans the person columns plus optional extra destinations.
func scanPerson(scanner interface{ Scan(...any) error }, extraDest ...any) (database.Person, error) {
	var p database.Person
	var vec pgvector.Vector

	dest := make([]any, 0, 8+len(extraDest))
	dest = append(dest,
		&p.ID,
		&p.Name,
		&p.Email,
		&p.Department,
		&p.ShiftStart,
		&p.ShiftEnd,
		&vec,
		&p.CreatedAt,
	)
	dest = append(dest, extraDest...)

	if err := scanner.Scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return p, err
		}
		return p, fmt.Errorf("scan person: %w", err)
	}
	p.Embedding = vec.Slice()
	return p, nil
}

func scanPersons(rows *sql.Rows) ([]database.Person, error) {
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

func isPQError(err error, code pq.ErrorCode) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == code
}

//go:build integration

package postgres

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/kozaktomas/attendance-kiosk/internal/config"
	"github.com/kozaktomas/attendance-kiosk/internal/database"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupTestContainer(t *testing.T) (*Pool, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "pgvector/pgvector:pg16",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("Docker not available or container failed to start, skipping integration test: %v", err)
		return nil, func() {}
	}
	if container == nil {
		t.Skip("Docker not available, skipping integration test")
		return nil, func() {}
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	dbURL := fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port())

	cfg := &config.DatabaseConfig{
		URL:          dbURL,
		MaxOpenConns: 5,
		MaxIdleConns: 2,
	}

	pool, err := NewPool(cfg)
	if err != nil {
		container.Terminate(ctx)
		t.Fatalf("Failed to create pool: %v", err)
	}

	// Run migrations
	if err := pool.Migrate(ctx); err != nil {
		pool.Close()
		container.Terminate(ctx)
		t.Fatalf("Failed to run migrations: %v", err)
	}

	cleanup := func() {
		pool.Close()
		container.Terminate(ctx)
	}

	return pool, cleanup
}

func testEmbedding(seed float32) []float32 {
	emb := make([]float32, 128)
	for i := range emb {
		emb[i] = seed + float32(i)/128.0
	}
	return emb
}

func TestPersons(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	store := NewStore(pool)

	alice := database.Person{
		ID:         "E001",
		Name:       "Alžběta Nováková",
		Email:      "alice@example.com",
		Department: "QA",
		ShiftStart: "09:00",
		ShiftEnd:   "17:00",
		Embedding:  testEmbedding(1),
	}

	t.Run("AddAndGet", func(t *testing.T) {
		if err := store.AddPerson(ctx, alice); err != nil {
			t.Fatalf("AddPerson failed: %v", err)
		}
		got, err := store.GetPerson(ctx, "E001")
		if err != nil {
			t.Fatalf("GetPerson failed: %v", err)
		}
		if got == nil {
			t.Fatal("expected person, got nil")
		}
		if got.Name != alice.Name || got.ShiftStart != "09:00" {
			t.Errorf("unexpected person: %+v", got)
		}
		if len(got.Embedding) != 128 {
			t.Errorf("expected 128-dim embedding, got %d", len(got.Embedding))
		}
	})

	t.Run("Duplicate", func(t *testing.T) {
		err := store.AddPerson(ctx, alice)
		if !errors.Is(err, database.ErrDuplicatePerson) {
			t.Errorf("expected ErrDuplicatePerson, got %v", err)
		}
	})

	t.Run("GetMissing", func(t *testing.T) {
		got, err := store.GetPerson(ctx, "missing")
		if err != nil || got != nil {
			t.Errorf("expected (nil, nil), got (%v, %v)", got, err)
		}
	})

	t.Run("FindByName", func(t *testing.T) {
		found, err := store.FindPersonsByName(ctx, "alzbeta-novakova")
		if err != nil {
			t.Fatalf("FindPersonsByName failed: %v", err)
		}
		if len(found) != 1 || found[0].ID != "E001" {
			t.Errorf("expected E001, got %v", found)
		}
	})

	t.Run("FindNearest", func(t *testing.T) {
		persons, sims, err := store.FindNearest(ctx, testEmbedding(1), 1)
		if err != nil {
			t.Fatalf("FindNearest failed: %v", err)
		}
		if len(persons) != 1 || persons[0].ID != "E001" {
			t.Fatalf("expected E001, got %v", persons)
		}
		if sims[0] < 0.999 {
			t.Errorf("expected similarity ~1, got %v", sims[0])
		}
	})

	t.Run("Count", func(t *testing.T) {
		count, err := store.CountPersons(ctx)
		if err != nil {
			t.Fatalf("CountPersons failed: %v", err)
		}
		if count != 1 {
			t.Errorf("expected 1 person, got %d", count)
		}
	})
}

func TestAttendance(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	store := NewStore(pool)
	if err := store.AddPerson(ctx, database.Person{ID: "E001", Name: "Alice", Embedding: testEmbedding(1)}); err != nil {
		t.Fatalf("AddPerson failed: %v", err)
	}

	date := "2026-03-02"
	first := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	t.Run("CheckInOnce", func(t *testing.T) {
		rec, created, err := store.CheckIn(ctx, "E001", date, first)
		if err != nil {
			t.Fatalf("CheckIn failed: %v", err)
		}
		if !created || rec.Status != database.StatusPresent {
			t.Fatalf("expected new Present record, got created=%v %+v", created, rec)
		}

		rec, created, err = store.CheckIn(ctx, "E001", date, first.Add(2*time.Second))
		if err != nil {
			t.Fatalf("second CheckIn failed: %v", err)
		}
		if created {
			t.Error("second CheckIn must not create a record")
		}
		if rec.LoginTime == nil || !rec.LoginTime.Equal(first) {
			t.Errorf("login time changed: %v", rec.LoginTime)
		}
	})

	t.Run("ConcurrentCheckIn", func(t *testing.T) {
		var wg sync.WaitGroup
		var mu sync.Mutex
		createdCount := 0
		for i := range 10 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, created, err := store.CheckIn(ctx, "E001", "2026-03-03", first.Add(time.Duration(i)*time.Second))
				if err != nil {
					t.Errorf("CheckIn failed: %v", err)
					return
				}
				if created {
					mu.Lock()
					createdCount++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		if createdCount != 1 {
			t.Errorf("expected exactly one created record, got %d", createdCount)
		}
	})

	t.Run("CheckOut", func(t *testing.T) {
		rec, changed, err := store.CheckOut(ctx, "E001", date, first.Add(8*time.Hour))
		if err != nil {
			t.Fatalf("CheckOut failed: %v", err)
		}
		if !changed || rec.Status != database.StatusCheckedOut || rec.LogoutTime == nil {
			t.Fatalf("expected CheckedOut record, got %+v", rec)
		}

		_, changed, err = store.CheckOut(ctx, "E001", date, first.Add(9*time.Hour))
		if err != nil {
			t.Fatalf("second CheckOut failed: %v", err)
		}
		if changed {
			t.Error("second CheckOut must not change the record")
		}
	})

	t.Run("CheckInUnknownPerson", func(t *testing.T) {
		_, _, err := store.CheckIn(ctx, "nobody", date, first)
		if !errors.Is(err, database.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("Reports", func(t *testing.T) {
		stats, err := store.GetStatistics(ctx, date)
		if err != nil {
			t.Fatalf("GetStatistics failed: %v", err)
		}
		if stats.TotalPersons != 1 || stats.PresentToday != 1 {
			t.Errorf("unexpected statistics: %+v", stats)
		}

		rows, err := store.GetDailyAttendance(ctx, date)
		if err != nil {
			t.Fatalf("GetDailyAttendance failed: %v", err)
		}
		if len(rows) != 1 || rows[0].Name != "Alice" || rows[0].Status != database.StatusCheckedOut {
			t.Errorf("unexpected daily rows: %+v", rows)
		}

		logs, err := store.GetRecentLogs(ctx, 10)
		if err != nil {
			t.Fatalf("GetRecentLogs failed: %v", err)
		}
		if len(logs) < 2 || logs[0].Event != database.EventLogout {
			t.Errorf("expected newest event to be logout, got %+v", logs)
		}

		open, err := store.OpenRecords(ctx, "2026-03-03")
		if err != nil {
			t.Fatalf("OpenRecords failed: %v", err)
		}
		if len(open) != 1 || open[0].Date != "2026-03-03" {
			t.Errorf("unexpected open records: %+v", open)
		}
	})
}

func TestMigrations(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()

	// Second run must be a no-op
	if err := pool.Migrate(ctx); err != nil {
		t.Fatalf("Re-running migrations failed: %v", err)
	}

	expectedMigrations := []string{"001_init.sql"}

	applied, err := pool.MigrationsApplied(ctx)
	if err != nil {
		t.Fatalf("Failed to get applied migrations: %v", err)
	}
	if len(applied) != len(expectedMigrations) {
		t.Errorf("Expected %d migrations, got %d", len(expectedMigrations), len(applied))
	}

	for i, expected := range expectedMigrations {
		if i < len(applied) && applied[i] != expected {
			t.Errorf("Migration %d: expected '%s', got '%s'", i, expected, applied[i])
		}
	}
}

package cmd

import (
	"context"
	"testing"

	"github.com/kozaktomas/attendance-kiosk/internal/config"
	"github.com/kozaktomas/attendance-kiosk/internal/database"
)

func TestNearestLinear(t *testing.T) {
	persons := []database.Person{
		{ID: "E001", Embedding: []float32{1, 0, 0}},
		{ID: "E002", Embedding: []float32{0, 1, 0}},
		{ID: "E003", Embedding: []float32{0.9, 0.1, 0}},
	}

	got, sims := nearestLinear(persons, []float32{1, 0, 0}, 2)
	if len(got) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(got))
	}
	if got[0].ID != "E001" || got[1].ID != "E003" {
		t.Errorf("unexpected order %s, %s", got[0].ID, got[1].ID)
	}
	if sims[0] < 0.999 || sims[1] <= 0.9 || sims[1] >= 1 {
		t.Errorf("unexpected similarities %v", sims)
	}
}

func TestOpenBackends_RejectUnknown(t *testing.T) {
	ctx := context.Background()
	if _, err := openStore(ctx, &config.DatabaseConfig{Driver: "sqlite"}); err == nil {
		t.Error("expected error for unknown database driver")
	}
	if _, err := openStore(ctx, &config.DatabaseConfig{Driver: "postgres"}); err == nil {
		t.Error("expected error for postgres without DATABASE_URL")
	}
	if _, err := openExtractor(&config.RecognitionConfig{Extractor: "onnx"}); err == nil {
		t.Error("expected error for unknown extractor")
	}
	if _, err := openCamera(&config.CameraConfig{Backend: "v4l"}); err == nil {
		t.Error("expected error for unknown camera backend")
	}
}

func TestOpenStore_Memory(t *testing.T) {
	t.Cleanup(database.Reset)

	ctx := context.Background()
	store, err := openStore(ctx, &config.DatabaseConfig{Driver: "memory"})
	if err != nil {
		t.Fatalf("openStore failed: %v", err)
	}

	if database.Backend() != "memory" {
		t.Errorf("Backend() = %q, want memory", database.Backend())
	}
	registered, err := database.GetStore(ctx)
	if err != nil || registered != store {
		t.Errorf("GetStore() = %v, %v; want the opened store", registered, err)
	}

	closeStore(store)
	if database.IsInitialized() {
		t.Error("expected the registry to be cleared after closeStore")
	}
	if _, err := database.GetStore(ctx); err == nil {
		t.Error("expected GetStore to fail after closeStore")
	}
}

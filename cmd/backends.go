package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kozaktomas/attendance-kiosk/internal/camera"
	"github.com/kozaktomas/attendance-kiosk/internal/camera/gst"
	"github.com/kozaktomas/attendance-kiosk/internal/config"
	"github.com/kozaktomas/attendance-kiosk/internal/database"
	"github.com/kozaktomas/attendance-kiosk/internal/database/mariadb"
	"github.com/kozaktomas/attendance-kiosk/internal/database/mock"
	"github.com/kozaktomas/attendance-kiosk/internal/database/postgres"
	"github.com/kozaktomas/attendance-kiosk/internal/fingerprint"
	"github.com/kozaktomas/attendance-kiosk/internal/fingerprint/dlib"
)

// openStore connects the configured storage backend, applies migrations and
// returns the store registered in the database provider.
func openStore(ctx context.Context, cfg *config.DatabaseConfig) (database.Store, error) {
	if database.IsInitialized() {
		slog.Warn("replacing registered storage backend", "backend", database.Backend())
	}
	if err := connectBackend(ctx, cfg); err != nil {
		return nil, err
	}
	return database.GetStore(ctx)
}

// closeStore closes the store and clears the provider registry.
func closeStore(store database.Store) {
	if err := store.Close(); err != nil {
		slog.Warn("failed to close storage backend", "backend", database.Backend(), "error", err)
	}
	database.Reset()
}

// connectBackend opens the backend named by cfg.Driver and registers it.
func connectBackend(ctx context.Context, cfg *config.DatabaseConfig) error {
	switch cfg.Driver {
	case "postgres":
		if cfg.URL == "" {
			return errors.New("DATABASE_URL environment variable is required")
		}
		fmt.Printf("Connecting to PostgreSQL database...\n")
		if _, err := postgres.Initialize(ctx, cfg); err != nil {
			return fmt.Errorf("failed to initialize PostgreSQL: %w", err)
		}
		return nil
	case "mariadb":
		if cfg.URL == "" {
			return errors.New("DATABASE_URL environment variable is required")
		}
		fmt.Printf("Connecting to MariaDB database...\n")
		if _, err := mariadb.EnsureDatabase(ctx, cfg.URL); err != nil {
			return fmt.Errorf("failed to reach MariaDB: %w", err)
		}
		if _, err := mariadb.Initialize(ctx, cfg); err != nil {
			return fmt.Errorf("failed to initialize MariaDB: %w", err)
		}
		return nil
	case "memory":
		fmt.Printf("Using in-memory storage, nothing will be persisted\n")
		database.RegisterBackend("memory", mock.NewMockStore())
		return nil
	default:
		return fmt.Errorf("unknown DATABASE_DRIVER %q (postgres, mariadb or memory)", cfg.Driver)
	}
}

// extractor is a face extractor that may hold native resources.
type extractor interface {
	fingerprint.Extractor
	Close()
}

type httpExtractor struct{ *fingerprint.EmbeddingClient }

func (httpExtractor) Close() {}

func openExtractor(cfg *config.RecognitionConfig) (extractor, error) {
	switch cfg.Extractor {
	case "http":
		return httpExtractor{fingerprint.NewEmbeddingClient(cfg.EmbeddingURL)}, nil
	case "dlib":
		ex, err := dlib.NewExtractor(cfg.DlibModelsDir)
		if err != nil {
			return nil, err
		}
		return ex, nil
	default:
		return nil, fmt.Errorf("unknown EXTRACTOR %q (http or dlib)", cfg.Extractor)
	}
}

func openCamera(cfg *config.CameraConfig) (camera.Opener, error) {
	switch cfg.Backend {
	case "gstreamer":
		return gst.NewOpener(gst.Config{
			DevicePattern: cfg.DevicePattern,
			Width:         cfg.Width,
			Height:        cfg.Height,
			JPEGQuality:   cfg.JPEGQuality,
		}), nil
	case "synthetic":
		slog.Warn("using synthetic camera frames")
		return camera.SyntheticOpener{Devices: 4, Width: cfg.Width, Height: cfg.Height, Rate: time.Second / 15}, nil
	default:
		return nil, fmt.Errorf("unknown CAMERA_BACKEND %q (gstreamer or synthetic)", cfg.Backend)
	}
}

// saveHNSWIndex saves the matcher HNSW index to disk during shutdown.
func saveHNSWIndex() {
	if rebuilder := database.GetHNSWRebuilder(); rebuilder != nil {
		if err := rebuilder.SaveHNSWIndex(); err != nil {
			fmt.Printf("Warning: failed to save matcher HNSW index: %v\n", err)
		} else {
			fmt.Println("Matcher HNSW index saved to disk")
		}
	}
}

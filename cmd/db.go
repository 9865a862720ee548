package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/attendance-kiosk/internal/config"
	"github.com/kozaktomas/attendance-kiosk/internal/database"
	"github.com/kozaktomas/attendance-kiosk/internal/database/mariadb"
)

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Database maintenance",
}

var dbInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Connect to the database and apply pending migrations",
	Long: `Connect to the configured database and apply pending migrations.
For MariaDB the database named in the DSN is created when it does not exist.`,
	RunE: runDBInit,
}

func init() {
	rootCmd.AddCommand(dbCmd)
	dbCmd.AddCommand(dbInitCmd)

	dbInitCmd.Flags().Duration("timeout", 30*time.Second, "Time allowed for connecting and migrating")
}

func runDBInit(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	ctx, cancel := context.WithTimeout(context.Background(), mustGetDuration(cmd, "timeout"))
	defer cancel()

	if cfg.Database.Driver == "mariadb" && cfg.Database.URL != "" {
		result, err := mariadb.EnsureDatabase(ctx, cfg.Database.URL)
		if errors.Is(err, mariadb.ErrAccessDenied) {
			return fmt.Errorf("MariaDB rejected the credentials in DATABASE_URL: %w", err)
		}
		if err != nil {
			return fmt.Errorf("failed to reach MariaDB: %w", err)
		}
		if result.Created {
			fmt.Printf("Created database %s\n", result.Database)
		}
	}

	store, err := openStore(ctx, &cfg.Database)
	if err != nil {
		return err
	}
	defer closeStore(store)

	count, err := store.CountPersons(ctx)
	if err != nil {
		return fmt.Errorf("failed to query persons: %w", err)
	}
	fmt.Printf("Database ready (%s backend, %d persons enrolled)\n", database.Backend(), count)
	return nil
}

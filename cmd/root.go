package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/attendance-kiosk/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "attendance-kiosk",
	Short: "Face recognition attendance kiosk",
	Long: `Attendance Kiosk watches a camera, recognizes enrolled persons and
records one arrival per person per day. It serves the live feed and the
attendance dashboard API, enrolls new persons and sends email notifications.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
	slog.SetDefault(config.NewLogger(config.Load().Log, os.Stderr))
}

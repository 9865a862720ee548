package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/attendance-kiosk/internal/config"
	"github.com/kozaktomas/attendance-kiosk/internal/notify"
)

var notifyCmd = &cobra.Command{
	Use:   "notify",
	Short: "Send attendance emails",
	Long: `Send attendance emails through the configured SMTP server.
Requires EMAIL_NOTIFICATIONS_ENABLED, SMTP_SERVER and SMTP_SENDER_EMAIL.`,
}

var notifyTestCmd = &cobra.Command{
	Use:   "test",
	Short: "Check the SMTP connection and credentials",
	RunE:  runNotifyTest,
}

var notifySummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Email the daily attendance summary",
	Long: `Email the attendance summary of a day. The recipient defaults to
SMTP_ADMIN_EMAIL.

Examples:
  attendance-kiosk notify summary
  attendance-kiosk notify summary --date 2026-03-02 --to hr@example.com`,
	RunE: runNotifySummary,
}

var notifyAbsencesCmd = &cobra.Command{
	Use:   "absences",
	Short: "Email every enrolled person without a record for the day",
	Long: `Send an absence alert for each enrolled person who was not seen on the
day. Alerts go to the person's own email unless --to is given; persons
without an email are skipped.`,
	RunE: runNotifyAbsences,
}

func init() {
	rootCmd.AddCommand(notifyCmd)
	notifyCmd.AddCommand(notifyTestCmd, notifySummaryCmd, notifyAbsencesCmd)

	notifySummaryCmd.Flags().String("date", "", "Day to summarize as YYYY-MM-DD (defaults to today)")
	notifySummaryCmd.Flags().String("to", "", "Recipient (defaults to SMTP_ADMIN_EMAIL)")

	notifyAbsencesCmd.Flags().String("date", "", "Day to check as YYYY-MM-DD (defaults to today)")
	notifyAbsencesCmd.Flags().String("to", "", "Send every alert to this address instead")
}

func requireDispatcher(cfg *config.Config) (*notify.Dispatcher, error) {
	dispatcher, err := newDispatcher(&cfg.SMTP)
	if err != nil {
		return nil, err
	}
	if !dispatcher.Configured() {
		return nil, notify.ErrNotConfigured
	}
	return dispatcher, nil
}

func resultError(res notify.Result) error {
	if res.Success {
		fmt.Println(res.Message)
		return nil
	}
	return errors.New(res.Message)
}

func runNotifyTest(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	dispatcher, err := requireDispatcher(cfg)
	if err != nil {
		return err
	}
	return resultError(dispatcher.TestConnection(context.Background()))
}

func runNotifySummary(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	cfg := config.Load()

	dispatcher, err := requireDispatcher(cfg)
	if err != nil {
		return err
	}
	store, err := openStore(ctx, &cfg.Database)
	if err != nil {
		return err
	}
	defer closeStore(store)

	recipient := mustGetString(cmd, "to")
	if recipient == "" {
		recipient = cfg.SMTP.Admin
	}
	reports := notify.NewReports(store, dispatcher, cfg.Attendance.Location)
	return resultError(reports.SendDailySummary(ctx, recipient, mustGetString(cmd, "date")))
}

func runNotifyAbsences(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	cfg := config.Load()

	dispatcher, err := requireDispatcher(cfg)
	if err != nil {
		return err
	}
	store, err := openStore(ctx, &cfg.Database)
	if err != nil {
		return err
	}
	defer closeStore(store)

	reports := notify.NewReports(store, dispatcher, cfg.Attendance.Location)
	report, err := reports.SendAbsenceAlerts(ctx, mustGetString(cmd, "date"), mustGetString(cmd, "to"))
	if err != nil {
		return fmt.Errorf("failed to send absence alerts: %w", err)
	}

	for _, res := range report.Results {
		if !res.Success {
			fmt.Printf("  failed: %s\n", res.Message)
		}
	}
	fmt.Printf("Absent on %s: %d, alerts sent: %d, without email: %d\n",
		report.Date, report.Absent, report.Sent, report.Skipped)
	if failed := len(report.Results) - report.Sent; failed > 0 {
		return fmt.Errorf("%d alerts failed", failed)
	}
	return nil
}

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/attendance-kiosk/internal/attendance"
	"github.com/kozaktomas/attendance-kiosk/internal/config"
	"github.com/kozaktomas/attendance-kiosk/internal/database"
	"github.com/kozaktomas/attendance-kiosk/internal/notify"
)

var attendanceCmd = &cobra.Command{
	Use:   "attendance",
	Short: "Inspect and correct attendance records",
}

var attendanceDayCmd = &cobra.Command{
	Use:   "day",
	Short: "Show the attendance of a day",
	RunE:  runAttendanceDay,
}

var attendanceCheckoutCmd = &cobra.Command{
	Use:   "checkout <person-id>",
	Short: "Record a departure for a person who is present",
	Args:  cobra.ExactArgs(1),
	RunE:  runAttendanceCheckout,
}

var attendanceCloseShiftsCmd = &cobra.Command{
	Use:   "close-shifts",
	Short: "Check out everyone whose shift has ended",
	Long: `Check out every person still present after their shift ended, and every
record left open from yesterday. The kiosk runs this periodically; use the
command when it was not running.`,
	RunE: runAttendanceCloseShifts,
}

func init() {
	rootCmd.AddCommand(attendanceCmd)
	attendanceCmd.AddCommand(attendanceDayCmd, attendanceCheckoutCmd, attendanceCloseShiftsCmd)

	attendanceDayCmd.Flags().String("date", "", "Day to show as YYYY-MM-DD (defaults to today)")
}

// openTracker connects the store and builds a tracker without event sinks.
func openTracker(ctx context.Context, cfg *config.Config) (*attendance.Tracker, database.Store, error) {
	store, err := openStore(ctx, &cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	tracker := attendance.NewTracker(store, nil, attendance.Config{
		LateGrace: cfg.Attendance.LateGrace,
		Location:  cfg.Attendance.Location,
	})
	return tracker, store, nil
}

func runAttendanceDay(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	cfg := config.Load()

	tracker, store, err := openTracker(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore(store)

	date := mustGetString(cmd, "date")
	if date == "" {
		date = tracker.Today()
	} else if _, err := time.Parse(database.DateLayout, date); err != nil {
		return fmt.Errorf("invalid --date %q, expected YYYY-MM-DD", date)
	}

	stats, err := store.GetStatistics(ctx, date)
	if err != nil {
		return fmt.Errorf("failed to load statistics: %w", err)
	}
	rows, err := store.GetDailyAttendance(ctx, date)
	if err != nil {
		return fmt.Errorf("failed to load attendance: %w", err)
	}

	fmt.Printf("Attendance on %s\n\n", date)
	if len(rows) > 0 {
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tLOGIN\tLOGOUT\tSTATUS")
		fmt.Fprintln(w, "--\t----\t-----\t------\t------")
		for i := range rows {
			r := &rows[i]
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", r.PersonID, r.Name,
				notify.FormatClock(inZone(r.Login, cfg.Attendance.Location)),
				notify.FormatClock(inZone(r.Logout, cfg.Attendance.Location)), r.Status)
		}
		w.Flush()
		fmt.Println()
	}

	fmt.Printf("Registered: %d  Present: %d  Absent: %d\n",
		stats.TotalPersons, stats.PresentToday, stats.TotalPersons-len(rows))
	return nil
}

func inZone(t *time.Time, loc *time.Location) *time.Time {
	if t == nil {
		return nil
	}
	local := t.In(loc)
	return &local
}

func runAttendanceCheckout(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	cfg := config.Load()

	tracker, store, err := openTracker(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore(store)

	rec, err := tracker.CheckOut(ctx, args[0], tracker.Now())
	if err != nil {
		if errors.Is(err, attendance.ErrNotPresent) {
			return fmt.Errorf("person %s is not checked in", args[0])
		}
		return fmt.Errorf("failed to check out: %w", err)
	}

	fmt.Printf("Checked out %s at %s\n", args[0], notify.FormatClock(inZone(rec.LogoutTime, cfg.Attendance.Location)))
	return nil
}

func runAttendanceCloseShifts(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	cfg := config.Load()

	tracker, store, err := openTracker(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore(store)

	closed, err := attendance.NewShiftCloser(tracker, 0).CloseShifts(ctx)
	if err != nil {
		return fmt.Errorf("failed to close shifts: %w", err)
	}

	fmt.Printf("Closed %d open records\n", closed)
	return nil
}

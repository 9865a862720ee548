package attendance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kozaktomas/attendance-kiosk/internal/database"
)

// ShiftCloser checks out everyone still present after their shift ended.
type ShiftCloser struct {
	tracker  *Tracker
	interval time.Duration
}

// NewShiftCloser creates a closer running every interval.
func NewShiftCloser(tracker *Tracker, interval time.Duration) *ShiftCloser {
	return &ShiftCloser{tracker: tracker, interval: interval}
}

// Run closes shifts on every tick until ctx is cancelled.
func (s *ShiftCloser) Run(ctx context.Context) {
	if s.interval <= 0 {
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.CloseShifts(ctx); err != nil && ctx.Err() == nil {
				slog.Error("failed to close shifts", "error", err)
			}
		}
	}
}

// CloseShifts checks out today's open records whose shift end has passed and
// every record still open from yesterday. The logout time is the shift end,
// or the end of the day for a person without a shift. Returns the number of
// records closed.
func (s *ShiftCloser) CloseShifts(ctx context.Context) (int, error) {
	t := s.tracker
	now := t.now().In(t.cfg.Location)
	yesterday := now.AddDate(0, 0, -1)

	closed := 0
	for _, day := range []time.Time{yesterday, now} {
		n, err := s.closeDay(ctx, day, now)
		closed += n
		if err != nil {
			return closed, err
		}
	}
	if closed > 0 {
		slog.Info("closed shifts", "count", closed)
	}
	return closed, nil
}

func (s *ShiftCloser) closeDay(ctx context.Context, day, now time.Time) (int, error) {
	date := database.DateOf(day)
	open, err := s.tracker.store.OpenRecords(ctx, date)
	if err != nil {
		return 0, fmt.Errorf("open records of %s: %w", date, err)
	}

	past := date != database.DateOf(now)
	closed := 0
	for _, rec := range open {
		p, err := s.tracker.store.GetPerson(ctx, rec.PersonID)
		if err != nil {
			return closed, fmt.Errorf("get person %s: %w", rec.PersonID, err)
		}

		var (
			at, end  time.Time
			hasShift bool
		)
		if p != nil {
			end, hasShift = p.ShiftEndOn(day)
		}
		switch {
		case hasShift && !now.Before(end):
			at = end
		case past:
			at = endOfDay(day)
		default:
			continue
		}
		if rec.LoginTime != nil && at.Before(*rec.LoginTime) {
			// Arrived after the shift ended.
			if !past {
				continue
			}
			at = endOfDay(day)
		}

		if _, err := s.tracker.CheckOut(ctx, rec.PersonID, at); err != nil {
			if errors.Is(err, ErrNotPresent) {
				continue
			}
			return closed, err
		}
		closed++
	}
	return closed, nil
}

func endOfDay(day time.Time) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, 23, 59, 59, 0, day.Location())
}

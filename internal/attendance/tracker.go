// Package attendance turns recognitions into daily attendance records.
//
// Each person moves through Unseen → Present → CheckedOut once per calendar
// day. The first recognition of the day creates the record; later ones are
// absorbed by an in-memory guard and never reach the store.
package attendance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kozaktomas/attendance-kiosk/internal/database"
	"github.com/kozaktomas/attendance-kiosk/internal/events"
	"github.com/kozaktomas/attendance-kiosk/internal/recognition"
)

// ErrNotPresent is returned by CheckOut when the person has no open record today.
var ErrNotPresent = errors.New("person is not checked in")

// Outcome describes what a recognition did to the record.
type Outcome int

const (
	Ignored Outcome = iota
	LoggedIn
	AlreadyPresent
	AlreadyCheckedOut
)

func (o Outcome) String() string {
	switch o {
	case LoggedIn:
		return "logged_in"
	case AlreadyPresent:
		return "already_present"
	case AlreadyCheckedOut:
		return "already_checked_out"
	default:
		return "ignored"
	}
}

// Store is the persistence the tracker needs.
type Store interface {
	GetPerson(ctx context.Context, id string) (*database.Person, error)
	CheckIn(ctx context.Context, personID, date string, at time.Time) (database.AttendanceRecord, bool, error)
	CheckOut(ctx context.Context, personID, date string, at time.Time) (*database.AttendanceRecord, bool, error)
	OpenRecords(ctx context.Context, date string) ([]database.AttendanceRecord, error)
}

// Config tunes late detection and the calendar.
type Config struct {
	LateGrace time.Duration
	Location  *time.Location // zone of the calendar day, defaults to time.Local
}

// checkIn is a check-in in progress. Recognitions of the same person that
// arrive meanwhile wait for it instead of issuing their own.
type checkIn struct {
	done   chan struct{}
	status database.Status
	err    error
}

// Tracker is the attendance state machine.
type Tracker struct {
	store Store
	sink  events.Sink
	cfg   Config
	now   func() time.Time

	mu       sync.Mutex
	day      string
	settled  map[string]database.Status
	inflight map[string]*checkIn // keyed by inflightKey
}

// NewTracker creates a tracker. sink may be nil.
func NewTracker(store Store, sink events.Sink, cfg Config) *Tracker {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if sink == nil {
		sink = events.Discard{}
	}
	return &Tracker{
		store:    store,
		sink:     sink,
		cfg:      cfg,
		now:      time.Now,
		settled:  make(map[string]database.Status),
		inflight: make(map[string]*checkIn),
	}
}

// SetClock replaces the time source.
func (t *Tracker) SetClock(now func() time.Time) {
	t.now = now
}

// Observe implements recognition.Observer.
func (t *Tracker) Observe(ctx context.Context, r recognition.Result) {
	outcome, err := t.OnRecognized(ctx, r)
	if err != nil {
		if ctx.Err() == nil {
			slog.Error("failed to record attendance", "person_id", r.PersonID, "error", err)
		}
		return
	}
	if outcome == LoggedIn {
		slog.Info("attendance recorded", "person_id", r.PersonID, "name", r.Name, "similarity", r.Similarity)
	}
}

// OnRecognized applies one recognition. Only the first recognition of the day
// writes to the store; everything after it is answered from memory.
func (t *Tracker) OnRecognized(ctx context.Context, r recognition.Result) (Outcome, error) {
	if !r.Recognized() {
		return Ignored, nil
	}
	now := t.now().In(t.cfg.Location)
	date := database.DateOf(now)

	t.mu.Lock()
	t.rollover(date)
	if st, ok := t.settled[r.PersonID]; ok {
		t.mu.Unlock()
		return repeatOutcome(r.PersonID, st), nil
	}
	key := inflightKey(r.PersonID, date)
	if c, ok := t.inflight[key]; ok {
		t.mu.Unlock()
		select {
		case <-c.done:
		case <-ctx.Done():
			return Ignored, ctx.Err()
		}
		if c.err != nil {
			return Ignored, c.err
		}
		return repeatOutcome(r.PersonID, c.status), nil
	}
	c := &checkIn{done: make(chan struct{})}
	t.inflight[key] = c
	t.mu.Unlock()

	rec, created, err := t.store.CheckIn(ctx, r.PersonID, date, now)

	t.mu.Lock()
	delete(t.inflight, key)
	if err == nil && t.day == date {
		t.settled[r.PersonID] = rec.Status
	}
	t.mu.Unlock()
	c.status, c.err = rec.Status, err
	close(c.done)

	if err != nil {
		return Ignored, fmt.Errorf("check in %s: %w", r.PersonID, err)
	}
	if !created {
		return repeatOutcome(r.PersonID, rec.Status), nil
	}

	login := now
	if rec.LoginTime != nil {
		login = *rec.LoginTime
	}
	t.announceArrival(ctx, r, login)
	return LoggedIn, nil
}

// inflightKey scopes a pending check-in to its day, so a check-in still
// running across midnight does not answer for the next day.
func inflightKey(personID, date string) string {
	return personID + "|" + date
}

func repeatOutcome(personID string, st database.Status) Outcome {
	if st == database.StatusCheckedOut {
		// Re-entry after checkout leaves the record as is.
		slog.Debug("recognized after checkout, ignoring", "person_id", personID)
		return AlreadyCheckedOut
	}
	return AlreadyPresent
}

// rollover forgets the guard of previous days. Must be called with mu held.
func (t *Tracker) rollover(date string) {
	if t.day == date {
		return
	}
	if t.day != "" {
		slog.Info("attendance day rollover", "from", t.day, "to", date, "pruned", len(t.settled))
	}
	t.day = date
	t.settled = make(map[string]database.Status)
}

func (t *Tracker) announceArrival(ctx context.Context, r recognition.Result, login time.Time) {
	e := events.New(events.Arrival, r.PersonID, r.Name, login)

	p, err := t.store.GetPerson(ctx, r.PersonID)
	if err != nil {
		slog.Warn("failed to load person for arrival event", "person_id", r.PersonID, "error", err)
	}
	if p != nil {
		e.Name, e.Email, e.Department, e.ShiftStart = p.Name, p.Email, p.Department, p.ShiftStart
	}
	t.sink.Publish(ctx, e)

	if p == nil {
		return
	}
	start, ok := p.ShiftStartOn(login.In(t.cfg.Location))
	if ok && login.After(start.Add(t.cfg.LateGrace)) {
		late := events.New(events.Late, r.PersonID, e.Name, login)
		late.Email, late.Department, late.ShiftStart = e.Email, e.Department, e.ShiftStart
		slog.Info("late arrival", "person_id", r.PersonID, "shift_start", p.ShiftStart, "login", login.Format(time.TimeOnly))
		t.sink.Publish(ctx, late)
	}
}

// CheckOut records the departure of a present person. The date is taken from at.
func (t *Tracker) CheckOut(ctx context.Context, personID string, at time.Time) (database.AttendanceRecord, error) {
	at = at.In(t.cfg.Location)
	date := database.DateOf(at)

	rec, changed, err := t.store.CheckOut(ctx, personID, date, at)
	if err != nil {
		return database.AttendanceRecord{}, fmt.Errorf("check out %s: %w", personID, err)
	}
	if rec == nil || !changed {
		return database.AttendanceRecord{}, fmt.Errorf("%s on %s: %w", personID, date, ErrNotPresent)
	}

	t.mu.Lock()
	if t.day == date {
		t.settled[personID] = database.StatusCheckedOut
	}
	t.mu.Unlock()

	e := events.New(events.Departure, personID, "", at)
	if p, err := t.store.GetPerson(ctx, personID); err == nil && p != nil {
		e.Name, e.Email, e.Department = p.Name, p.Email, p.Department
	}
	t.sink.Publish(ctx, e)
	slog.Info("checked out", "person_id", personID, "date", date)
	return *rec, nil
}

// Now returns the tracker's current time in its location.
func (t *Tracker) Now() time.Time {
	return t.now().In(t.cfg.Location)
}

// Today returns the current calendar date of the tracker.
func (t *Tracker) Today() string {
	return database.DateOf(t.Now())
}

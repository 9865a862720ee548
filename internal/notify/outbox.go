package notify

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/kozaktomas/attendance-kiosk/internal/events"
)

// OutboxConfig selects which events become emails.
type OutboxConfig struct {
	Size            int    // pending events before new ones are dropped
	NotifyArrival   bool   // email the person on arrival and departure
	AdminRecipient  string // receives late alerts, falls back to the person
	TimestampLayout string // defaults to "2006-01-02 15:04:05"
}

// Outbox queues attendance events and mails them from a single worker, so
// the recognition path never waits on SMTP.
type Outbox struct {
	dispatcher *Dispatcher
	cfg        OutboxConfig
	queue      chan events.Event
	dropped    atomic.Int64
}

// NewOutbox creates an outbox. Call Run to start delivering.
func NewOutbox(d *Dispatcher, cfg OutboxConfig) *Outbox {
	if cfg.Size <= 0 {
		cfg.Size = 64
	}
	if cfg.TimestampLayout == "" {
		cfg.TimestampLayout = time.DateTime
	}
	return &Outbox{dispatcher: d, cfg: cfg, queue: make(chan events.Event, cfg.Size)}
}

// Publish implements events.Sink. It never blocks; a full queue drops the event.
func (o *Outbox) Publish(_ context.Context, e events.Event) {
	if !o.dispatcher.Configured() {
		return
	}
	select {
	case o.queue <- e:
	default:
		o.dropped.Add(1)
		slog.Warn("notification outbox full, dropping event", "event_id", e.ID, "type", e.Type, "person_id", e.PersonID)
	}
}

// Dropped returns the number of events dropped because the queue was full.
func (o *Outbox) Dropped() int64 {
	return o.dropped.Load()
}

// Run delivers queued events until ctx is cancelled.
func (o *Outbox) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-o.queue:
			o.deliver(ctx, e)
		}
	}
}

func (o *Outbox) deliver(ctx context.Context, e events.Event) {
	var res Result
	switch e.Type {
	case events.Arrival, events.Departure:
		if !o.cfg.NotifyArrival || e.Email == "" {
			return
		}
		res = o.dispatcher.SendAttendanceNotification(ctx, AttendanceNotice{
			PersonName: e.Name,
			PersonID:   e.PersonID,
			Recipient:  e.Email,
			EventType:  string(e.Type),
			Timestamp:  e.At.Format(o.cfg.TimestampLayout),
		})
	case events.Late:
		recipient := o.cfg.AdminRecipient
		if recipient == "" {
			recipient = e.Email
		}
		if recipient == "" {
			return
		}
		res = o.dispatcher.SendLateArrivalAlert(ctx, LateAlert{
			PersonName:   e.Name,
			PersonID:     e.PersonID,
			Recipient:    recipient,
			ArrivalTime:  e.At.Format(time.TimeOnly),
			ExpectedTime: e.ShiftStart,
		})
	default:
		return
	}

	if !res.Success {
		slog.Warn("notification not delivered", "event_id", e.ID, "type", e.Type, "message", res.Message)
	}
}

package camera

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// FrameReader is the physical read the broadcaster fans out.
type FrameReader interface {
	ReadFrame(ctx context.Context) (Frame, error)
}

// BroadcastConfig holds the reader timings.
type BroadcastConfig struct {
	ReadRetry time.Duration // sleep after a failed read, defaults to 100ms
}

// Broadcaster reads the camera from a single goroutine and hands every frame
// to all subscribers. The reader runs only while at least one subscriber
// exists. Each subscriber has a one-frame mailbox; a slow subscriber skips
// frames instead of delaying the others.
type Broadcaster struct {
	source FrameReader
	cfg    BroadcastConfig

	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	cancel context.CancelFunc
	seq    uint64 // guarded by mu

	readers atomic.Int64
}

// NewBroadcaster creates a broadcaster. No read happens before the first Subscribe.
func NewBroadcaster(source FrameReader, cfg BroadcastConfig) *Broadcaster {
	if cfg.ReadRetry <= 0 {
		cfg.ReadRetry = 100 * time.Millisecond
	}
	return &Broadcaster{source: source, cfg: cfg, subs: make(map[*Subscription]struct{})}
}

// Subscription receives the frames of a Broadcaster until Close.
type Subscription struct {
	b       *Broadcaster
	ch      chan Frame
	once    sync.Once
	dropped atomic.Int64
}

// Subscribe registers a viewer, starting the reader for the first one.
func (b *Broadcaster) Subscribe() *Subscription {
	sub := &Subscription{b: b, ch: make(chan Frame, 1)}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[sub] = struct{}{}
	if b.cancel == nil {
		ctx, cancel := context.WithCancel(context.Background())
		b.cancel = cancel
		b.readers.Add(1)
		go b.run(ctx)
	}
	return sub
}

// Viewers returns the number of open subscriptions.
func (b *Broadcaster) Viewers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// C delivers frames. It is never closed.
func (s *Subscription) C() <-chan Frame {
	return s.ch
}

// Dropped returns the frames this subscriber skipped.
func (s *Subscription) Dropped() int64 {
	return s.dropped.Load()
}

// Close unregisters the subscriber; the last one stops the reader.
func (s *Subscription) Close() {
	s.once.Do(func() {
		b := s.b
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs, s)
		if len(b.subs) == 0 && b.cancel != nil {
			b.cancel()
			b.cancel = nil
		}
	})
}

func (b *Broadcaster) run(ctx context.Context) {
	defer b.readers.Add(-1)

	failing := false
	for ctx.Err() == nil {
		frame, err := b.source.ReadFrame(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if !failing {
				slog.Warn("camera read failed, retrying", "error", err)
				failing = true
			}
			t := time.NewTimer(b.cfg.ReadRetry)
			select {
			case <-ctx.Done():
				t.Stop()
				return
			case <-t.C:
			}
			continue
		}
		if failing {
			slog.Info("camera read recovered")
			failing = false
		}
		b.publish(ctx, frame)
	}
}

// publish renumbers the frame so Seq stays monotonic across camera switches
// and offers it to every mailbox.
func (b *Broadcaster) publish(ctx context.Context, frame Frame) {
	b.mu.Lock()
	defer b.mu.Unlock()

	// A reader cancelled while reading must not publish next to its successor.
	if ctx.Err() != nil {
		return
	}
	b.seq++
	frame.Seq = b.seq
	for sub := range b.subs {
		select {
		case sub.ch <- frame:
		default:
			select {
			case <-sub.ch:
				sub.dropped.Add(1)
			default:
			}
			select {
			case sub.ch <- frame:
			default:
			}
		}
	}
}

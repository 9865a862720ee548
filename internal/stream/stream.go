// Package stream produces the MJPEG video feeds of the dashboard and the
// registration page.
package stream

import (
	"context"
	"iter"
	"log/slog"
	"sync"
	"time"

	"github.com/kozaktomas/attendance-kiosk/internal/camera"
	"github.com/kozaktomas/attendance-kiosk/internal/recognition"
)

// Mode selects what a stream does with each frame.
type Mode int

const (
	// Dashboard runs recognition, annotates frames and honours the streaming toggle.
	Dashboard Mode = iota
	// Registration passes frames through untouched, even when streaming is off.
	Registration
)

func (m Mode) String() string {
	if m == Registration {
		return "registration"
	}
	return "dashboard"
}

// FrameHub fans the camera frames out to the viewers.
type FrameHub interface {
	Subscribe() *camera.Subscription
}

// Processor runs recognition on a dashboard frame.
type Processor interface {
	Process(ctx context.Context, frame []byte, ts time.Time) ([]recognition.Result, error)
}

// Config holds the stream timings.
type Config struct {
	IdlePoll    time.Duration // how often the streaming toggle is re-checked
	JPEGQuality int           // quality of annotated frames
}

// Stream is a feed shared by its viewers. Every call to Frames starts a fresh
// sequence on its own subscription; in Dashboard mode a frame is recognized
// once no matter how many viewers receive it.
type Stream struct {
	mode      Mode
	hub       FrameHub
	state     *camera.RunState
	processor Processor
	cfg       Config

	mu     sync.Mutex
	recent [recentFrames]recognizedFrame // ring of the latest dashboard outputs
	next   int
}

// recentFrames is how far a slow viewer may lag and still reuse a result.
const recentFrames = 4

type recognizedFrame struct {
	seq uint64
	out []byte
}

// New creates a stream. processor is only used in Dashboard mode.
func New(mode Mode, hub FrameHub, state *camera.RunState, processor Processor, cfg Config) *Stream {
	if cfg.IdlePoll <= 0 {
		cfg.IdlePoll = 100 * time.Millisecond
	}
	if cfg.JPEGQuality <= 0 {
		cfg.JPEGQuality = 80
	}
	return &Stream{mode: mode, hub: hub, state: state, processor: processor, cfg: cfg}
}

// Frames returns the JPEG frames of the feed. The sequence never ends on its
// own; it stops only when ctx is cancelled or the consumer stops ranging.
// A dashboard viewer drops its subscription while streaming is disabled so an
// idle dashboard does not keep the camera open.
func (s *Stream) Frames(ctx context.Context) iter.Seq[[]byte] {
	return func(yield func([]byte) bool) {
		var sub *camera.Subscription
		defer func() {
			if sub != nil {
				sub.Close()
			}
		}()

		poll := time.NewTicker(s.cfg.IdlePoll)
		defer poll.Stop()

		for ctx.Err() == nil {
			if s.mode == Dashboard && !s.state.StreamingEnabled() {
				if sub != nil {
					sub.Close()
					sub = nil
				}
				if !sleep(ctx, s.cfg.IdlePoll) {
					return
				}
				continue
			}
			if sub == nil {
				sub = s.hub.Subscribe()
			}

			var frame camera.Frame
			select {
			case <-ctx.Done():
				return
			case <-poll.C:
				continue
			case frame = <-sub.C():
			}

			out := frame.Data
			if s.mode == Dashboard && s.processor != nil {
				out = s.recognizeOnce(ctx, frame)
			}
			if !yield(out) {
				return
			}
		}
	}
}

// recognizeOnce returns the annotated frame, running recognition only for
// the first viewer that asks for a given frame.
func (s *Stream) recognizeOnce(ctx context.Context, frame camera.Frame) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.recent {
		if r.out != nil && r.seq == frame.Seq {
			return r.out
		}
	}
	out := s.recognize(ctx, frame)
	s.recent[s.next] = recognizedFrame{seq: frame.Seq, out: out}
	s.next = (s.next + 1) % recentFrames
	return out
}

// recognize annotates the frame with the recognition results. On any failure
// the raw frame is returned.
func (s *Stream) recognize(ctx context.Context, frame camera.Frame) []byte {
	results, err := s.processor.Process(ctx, frame.Data, frame.CapturedAt)
	if err != nil {
		if ctx.Err() == nil {
			slog.Warn("recognition failed", "error", err)
		}
		return frame.Data
	}
	if len(results) == 0 {
		return frame.Data
	}
	annotated, err := Annotate(frame.Data, results, s.cfg.JPEGQuality)
	if err != nil {
		slog.Warn("failed to annotate frame", "error", err)
		return frame.Data
	}
	return annotated
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

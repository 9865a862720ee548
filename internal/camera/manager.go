package camera

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Config bounds device opening.
type Config struct {
	OpenRetries    int           // attempts per Acquire, at least 1
	OpenRetryDelay time.Duration // sleep between attempts on ErrNotReady
}

// Status is a snapshot of the session for the API.
type Status struct {
	Open     bool  `json:"open"`
	Index    int   `json:"index"`
	Active   int   `json:"active_index"`
	Running  bool  `json:"running"`
	Reads    int64 `json:"reads"`
	Failures int64 `json:"failures"`
}

// Manager is the single owner of the capture handle. Opens, reads and closes
// are serialized on mu. The video feeds read through a Broadcaster; the
// enrollment flow calls ReadFrame directly for its snapshot.
type Manager struct {
	opener Opener
	state  *RunState
	cfg    Config

	mu     sync.Mutex
	dev    Device
	devIdx int

	switchPending atomic.Bool
	reads         atomic.Int64
	failures      atomic.Int64
}

// NewManager creates a manager. No device is opened until the first read.
func NewManager(opener Opener, state *RunState, cfg Config) *Manager {
	if cfg.OpenRetries < 1 {
		cfg.OpenRetries = 1
	}
	return &Manager{opener: opener, state: state, cfg: cfg}
}

// State returns the run state shared with the video feeds.
func (m *Manager) State() *RunState {
	return m.state
}

// Acquire makes sure the device at index is open and healthy.
func (m *Manager) Acquire(ctx context.Context, index int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.acquireLocked(ctx, index)
}

func (m *Manager) acquireLocked(ctx context.Context, index int) error {
	if m.dev != nil && m.devIdx == index && !m.switchPending.Load() && m.dev.Healthy() {
		return nil
	}
	m.switchPending.Store(false)
	m.releaseLocked()

	var lastErr error
	for attempt := 1; attempt <= m.cfg.OpenRetries; attempt++ {
		dev, err := m.opener.Open(ctx, index)
		if err == nil {
			m.dev = dev
			m.devIdx = index
			slog.Info("camera opened", "camera_index", index, "attempt", attempt)
			return nil
		}
		lastErr = err
		if !errors.Is(err, ErrNotReady) || attempt == m.cfg.OpenRetries {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", ErrCameraUnavailable, ctx.Err())
		case <-time.After(m.cfg.OpenRetryDelay):
		}
	}
	return fmt.Errorf("%w: index %d: %w", ErrCameraUnavailable, index, lastErr)
}

// Switch selects a new camera. The current handle is released by the next
// read, never underneath one in progress.
func (m *Manager) Switch(index int) {
	m.state.SetActiveIndex(index)
	m.switchPending.Store(true)
	slog.Info("camera switch requested", "camera_index", index)
}

// Release closes the handle. Calling it with no open device is a no-op.
func (m *Manager) Release() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.releaseLocked()
}

func (m *Manager) releaseLocked() {
	if m.dev == nil {
		return
	}
	dev := m.dev
	m.dev = nil
	if err := dev.Close(); err != nil {
		slog.Warn("failed to close camera", "camera_index", m.devIdx, "error", err)
		return
	}
	slog.Info("camera released", "camera_index", m.devIdx)
}

// ReadFrame reads one frame from the active camera, opening or swapping the
// device as needed. A read failure on an unhealthy device releases it so the
// next call reopens.
func (m *Manager) ReadFrame(ctx context.Context) (Frame, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.acquireLocked(ctx, m.state.ActiveIndex()); err != nil {
		m.failures.Add(1)
		return Frame{}, err
	}

	frame, err := m.dev.Read(ctx)
	if err != nil {
		m.failures.Add(1)
		if !m.dev.Healthy() {
			m.releaseLocked()
		}
		return Frame{}, fmt.Errorf("%w: read: %w", ErrCameraUnavailable, err)
	}
	m.reads.Add(1)
	return frame, nil
}

// Status returns the current session state.
func (m *Manager) Status() Status {
	m.mu.Lock()
	open, idx := m.dev != nil, m.devIdx
	m.mu.Unlock()

	return Status{
		Open:     open,
		Index:    idx,
		Active:   m.state.ActiveIndex(),
		Running:  m.state.StreamingEnabled(),
		Reads:    m.reads.Load(),
		Failures: m.failures.Load(),
	}
}

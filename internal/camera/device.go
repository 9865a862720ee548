// Package camera owns the single capture device shared by every video feed
// and the enrollment flow.
package camera

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotReady is returned by an Opener when the device exists but is still
	// initializing. The manager retries it.
	ErrNotReady = errors.New("camera not ready")
	// ErrCameraUnavailable means the device could not be opened or read.
	ErrCameraUnavailable = errors.New("camera unavailable")
)

// Frame is one JPEG encoded capture.
type Frame struct {
	Data       []byte
	Seq        uint64
	CapturedAt time.Time
}

// Device is an open capture handle. Implementations need not be safe for
// concurrent use; the Manager serializes every call.
type Device interface {
	Read(ctx context.Context) (Frame, error)
	Healthy() bool
	Close() error
}

// Opener opens the device at an index.
type Opener interface {
	Open(ctx context.Context, index int) (Device, error)
}

// OpenerFunc adapts a function to the Opener interface.
type OpenerFunc func(ctx context.Context, index int) (Device, error)

// Open calls f.
func (f OpenerFunc) Open(ctx context.Context, index int) (Device, error) {
	return f(ctx, index)
}

package camera

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeDevice struct {
	index   int
	closes  atomic.Int32
	healthy atomic.Bool
	readErr error
	inRead  *atomic.Int32
}

func (d *fakeDevice) Read(context.Context) (Frame, error) {
	if d.inRead != nil {
		if d.inRead.Add(1) > 1 {
			panic("concurrent device read")
		}
		defer d.inRead.Add(-1)
		time.Sleep(time.Millisecond)
	}
	if d.readErr != nil {
		return Frame{}, d.readErr
	}
	return Frame{Data: []byte{byte(d.index)}}, nil
}

func (d *fakeDevice) Healthy() bool { return d.healthy.Load() }

func (d *fakeDevice) Close() error {
	d.closes.Add(1)
	return nil
}

type fakeOpener struct {
	mu       sync.Mutex
	devices  []*fakeDevice
	notReady int // remaining ErrNotReady results
	fail     error
	opens    int
	inRead   *atomic.Int32
}

func (o *fakeOpener) Open(_ context.Context, index int) (Device, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.opens++
	if o.notReady > 0 {
		o.notReady--
		return nil, ErrNotReady
	}
	if o.fail != nil {
		return nil, o.fail
	}
	d := &fakeDevice{index: index, inRead: o.inRead}
	d.healthy.Store(true)
	o.devices = append(o.devices, d)
	return d, nil
}

func newTestManager(o *fakeOpener, retries int) *Manager {
	return NewManager(o, NewRunState(0), Config{OpenRetries: retries, OpenRetryDelay: time.Millisecond})
}

func TestManager_ReusesHealthyDevice(t *testing.T) {
	o := &fakeOpener{}
	m := newTestManager(o, 3)
	ctx := context.Background()

	for range 3 {
		if _, err := m.ReadFrame(ctx); err != nil {
			t.Fatalf("ReadFrame failed: %v", err)
		}
	}
	if o.opens != 1 {
		t.Errorf("expected a single open, got %d", o.opens)
	}
	if st := m.Status(); !st.Open || st.Reads != 3 {
		t.Errorf("unexpected status %+v", st)
	}
}

func TestManager_SwitchReleasesExactlyOnce(t *testing.T) {
	o := &fakeOpener{}
	m := newTestManager(o, 3)
	ctx := context.Background()

	if _, err := m.ReadFrame(ctx); err != nil {
		t.Fatalf("ReadFrame failed: %v", err)
	}
	m.Switch(1)

	frame, err := m.ReadFrame(ctx)
	if err != nil {
		t.Fatalf("ReadFrame after switch failed: %v", err)
	}
	if frame.Data[0] != 1 {
		t.Errorf("expected frame from camera 1, got %d", frame.Data[0])
	}
	if _, err := m.ReadFrame(ctx); err != nil {
		t.Fatalf("ReadFrame failed: %v", err)
	}
	m.Release()
	m.Release()

	if len(o.devices) != 2 {
		t.Fatalf("expected 2 opened devices, got %d", len(o.devices))
	}
	for _, d := range o.devices {
		if n := d.closes.Load(); n != 1 {
			t.Errorf("device %d closed %d times, want 1", d.index, n)
		}
	}
}

func TestManager_SwitchToSameIndexReopens(t *testing.T) {
	o := &fakeOpener{}
	m := newTestManager(o, 1)
	ctx := context.Background()

	_, _ = m.ReadFrame(ctx)
	m.Switch(0)
	_, _ = m.ReadFrame(ctx)

	if o.opens != 2 || o.devices[0].closes.Load() != 1 {
		t.Errorf("expected reopen after switch: opens=%d closes=%d", o.opens, o.devices[0].closes.Load())
	}
}

func TestManager_OpenRetries(t *testing.T) {
	tests := []struct {
		name      string
		notReady  int
		fail      error
		retries   int
		wantErr   bool
		wantOpens int
	}{
		{"ready after retries", 2, nil, 3, false, 3},
		{"retry bound exceeded", 5, nil, 3, true, 3},
		{"hard failure is not retried", 0, errors.New("no such device"), 3, true, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := &fakeOpener{notReady: tt.notReady, fail: tt.fail}
			m := newTestManager(o, tt.retries)

			err := m.Acquire(context.Background(), 0)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Acquire error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrCameraUnavailable) {
				t.Errorf("expected ErrCameraUnavailable, got %v", err)
			}
			if o.opens != tt.wantOpens {
				t.Errorf("opens = %d, want %d", o.opens, tt.wantOpens)
			}
		})
	}
}

func TestManager_UnhealthyDeviceIsReopened(t *testing.T) {
	o := &fakeOpener{}
	m := newTestManager(o, 1)
	ctx := context.Background()

	_, _ = m.ReadFrame(ctx)
	first := o.devices[0]
	first.healthy.Store(false)
	first.readErr = errors.New("device lost")

	if _, err := m.ReadFrame(ctx); err != nil {
		t.Fatalf("expected reopen on unhealthy device, got %v", err)
	}
	if first.closes.Load() != 1 || o.opens != 2 {
		t.Errorf("expected old device closed once and a new open: closes=%d opens=%d",
			first.closes.Load(), o.opens)
	}
}

func TestManager_ReadFailureReleasesUnhealthy(t *testing.T) {
	o := &fakeOpener{}
	m := newTestManager(o, 1)
	ctx := context.Background()

	_, _ = m.ReadFrame(ctx)
	d := o.devices[0]
	d.readErr = errors.New("timeout")

	// Still healthy: the handle is kept.
	if _, err := m.ReadFrame(ctx); !errors.Is(err, ErrCameraUnavailable) {
		t.Fatalf("expected ErrCameraUnavailable, got %v", err)
	}
	if !m.Status().Open {
		t.Fatal("healthy device must stay open after a failed read")
	}

	d.healthy.Store(false)
	o.fail = errors.New("gone")
	_, _ = m.ReadFrame(ctx)
	if m.Status().Open {
		t.Error("unhealthy device must be released")
	}
	if d.closes.Load() != 1 {
		t.Errorf("device closed %d times, want 1", d.closes.Load())
	}
	if m.Status().Failures < 2 {
		t.Errorf("expected failures to be counted, got %d", m.Status().Failures)
	}
}

func TestManager_ConcurrentReadsAreSerialized(t *testing.T) {
	var inRead atomic.Int32
	o := &fakeOpener{inRead: &inRead}
	m := newTestManager(o, 1)

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 10 {
				if i == 0 {
					m.Switch(1)
				}
				if _, err := m.ReadFrame(context.Background()); err != nil {
					t.Errorf("ReadFrame failed: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()
	m.Release()

	for _, d := range o.devices {
		if d.closes.Load() != 1 {
			t.Errorf("device closed %d times, want 1", d.closes.Load())
		}
	}
}

func TestSyntheticOpener(t *testing.T) {
	o := SyntheticOpener{Devices: 2}
	ctx := context.Background()

	if _, err := o.Open(ctx, 2); err == nil {
		t.Error("expected error for missing device")
	}

	dev, err := o.Open(ctx, 1)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	f, err := dev.Read(ctx)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(f.Data) < 2 || f.Data[0] != 0xFF || f.Data[1] != 0xD8 {
		t.Error("expected JPEG frame")
	}
	if err := dev.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if dev.Healthy() {
		t.Error("closed device reports healthy")
	}
	if _, err := dev.Read(ctx); err == nil {
		t.Error("expected read error after close")
	}
}

// Package gst opens V4L2 cameras through a GStreamer pipeline:
//
//	v4l2src → videoconvert → videoscale → capsfilter → jpegenc → appsink
//
// The appsink keeps only the latest frame; Read waits for the next one.
package gst

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/kozaktomas/attendance-kiosk/internal/camera"
)

// Config describes the capture pipeline.
type Config struct {
	DevicePattern string // e.g. /dev/video%d
	Width         int
	Height        int
	JPEGQuality   int
	ReadTimeout   time.Duration // defaults to 2s
	StartTimeout  time.Duration // defaults to 3s
}

// Opener opens GStreamer backed devices.
type Opener struct {
	cfg Config
}

// NewOpener initializes GStreamer and returns an opener.
func NewOpener(cfg Config) *Opener {
	gst.Init(nil)
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 2 * time.Second
	}
	if cfg.StartTimeout <= 0 {
		cfg.StartTimeout = 3 * time.Second
	}
	if cfg.JPEGQuality <= 0 {
		cfg.JPEGQuality = 80
	}
	return &Opener{cfg: cfg}
}

// Open builds and starts the pipeline for the device at index. A pipeline
// that does not deliver its first frame within StartTimeout is reported as
// camera.ErrNotReady.
func (o *Opener) Open(ctx context.Context, index int) (camera.Device, error) {
	device := fmt.Sprintf(o.cfg.DevicePattern, index)

	d, err := newDevice(device, o.cfg)
	if err != nil {
		return nil, err
	}

	if err := d.pipeline.SetState(gst.StatePlaying); err != nil {
		_ = d.Close()
		return nil, fmt.Errorf("failed to start pipeline for %s: %w", device, err)
	}

	startCtx, cancel := context.WithTimeout(ctx, o.cfg.StartTimeout)
	defer cancel()
	select {
	case <-d.started:
	case <-d.done:
		_ = d.Close()
		return nil, fmt.Errorf("pipeline for %s stopped: %w", device, d.err())
	case <-startCtx.Done():
		_ = d.Close()
		return nil, fmt.Errorf("%s: %w", device, camera.ErrNotReady)
	}

	slog.Info("gstreamer camera started", "device", device, "camera_index", index)
	return d, nil
}

type device struct {
	name     string
	pipeline *gst.Pipeline
	sink     *app.Sink
	timeout  time.Duration

	frames  chan camera.Frame
	started chan struct{}
	done    chan struct{}
	stop    chan struct{}

	seq       atomic.Uint64
	healthy   atomic.Bool
	startOnce sync.Once
	closeOnce sync.Once

	mu      sync.Mutex
	lastErr error
}

func newDevice(name string, cfg Config) (*device, error) {
	pipeline, err := gst.NewPipeline("")
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline: %w", err)
	}

	src, err := gst.NewElement("v4l2src")
	if err != nil {
		return nil, fmt.Errorf("failed to create v4l2src: %w", err)
	}
	src.SetProperty("device", name)

	convert, err := gst.NewElement("videoconvert")
	if err != nil {
		return nil, fmt.Errorf("failed to create videoconvert: %w", err)
	}
	scale, err := gst.NewElement("videoscale")
	if err != nil {
		return nil, fmt.Errorf("failed to create videoscale: %w", err)
	}

	capsfilter, err := gst.NewElement("capsfilter")
	if err != nil {
		return nil, fmt.Errorf("failed to create capsfilter: %w", err)
	}
	caps := "video/x-raw"
	if cfg.Width > 0 && cfg.Height > 0 {
		caps = fmt.Sprintf("video/x-raw,width=%d,height=%d", cfg.Width, cfg.Height)
	}
	capsfilter.SetProperty("caps", gst.NewCapsFromString(caps))

	enc, err := gst.NewElement("jpegenc")
	if err != nil {
		return nil, fmt.Errorf("failed to create jpegenc: %w", err)
	}
	enc.SetProperty("quality", cfg.JPEGQuality)

	sink, err := app.NewAppSink()
	if err != nil {
		return nil, fmt.Errorf("failed to create appsink: %w", err)
	}
	sink.SetProperty("sync", false)
	sink.SetProperty("max-buffers", 1)
	sink.SetProperty("drop", true)

	if err := pipeline.AddMany(src, convert, scale, capsfilter, enc, sink.Element); err != nil {
		return nil, fmt.Errorf("failed to add elements to pipeline: %w", err)
	}
	if err := gst.ElementLinkMany(src, convert, scale, capsfilter, enc, sink.Element); err != nil {
		return nil, fmt.Errorf("failed to link pipeline elements: %w", err)
	}

	d := &device{
		name:     name,
		pipeline: pipeline,
		sink:     sink,
		timeout:  cfg.ReadTimeout,
		frames:   make(chan camera.Frame, 1),
		started:  make(chan struct{}),
		done:     make(chan struct{}),
		stop:     make(chan struct{}),
	}
	d.healthy.Store(true)

	sink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: d.onNewSample,
	})
	go d.watchBus()
	return d, nil
}

// onNewSample copies the JPEG out of the buffer and replaces any frame not
// yet consumed.
func (d *device) onNewSample(sink *app.Sink) gst.FlowReturn {
	sample := sink.PullSample()
	if sample == nil {
		return gst.FlowEOS
	}
	buffer := sample.GetBuffer()
	if buffer == nil {
		return gst.FlowOK
	}

	mapInfo := buffer.Map(gst.MapRead)
	data := mapInfo.Bytes()
	if len(data) == 0 {
		buffer.Unmap()
		return gst.FlowOK
	}
	frameData := make([]byte, len(data))
	copy(frameData, data)
	buffer.Unmap()

	frame := camera.Frame{Data: frameData, Seq: d.seq.Add(1), CapturedAt: time.Now()}
	select {
	case <-d.frames:
	default:
	}
	select {
	case d.frames <- frame:
	default:
	}
	d.startOnce.Do(func() { close(d.started) })
	return gst.FlowOK
}

func (d *device) watchBus() {
	defer close(d.done)
	bus := d.pipeline.GetPipelineBus()
	for {
		select {
		case <-d.stop:
			return
		default:
		}

		msg := bus.TimedPop(50 * time.Millisecond)
		if msg == nil {
			continue
		}
		switch msg.Type() {
		case gst.MessageEOS:
			d.fail(errors.New("end of stream"))
			return
		case gst.MessageError:
			gerr := msg.ParseError()
			slog.Error("gstreamer pipeline error", "device", d.name, "error", gerr.Error(), "debug", gerr.DebugString())
			d.fail(gerr)
			return
		}
	}
}

func (d *device) fail(err error) {
	d.mu.Lock()
	d.lastErr = err
	d.mu.Unlock()
	d.healthy.Store(false)
}

func (d *device) err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lastErr == nil {
		return errors.New("pipeline stopped")
	}
	return d.lastErr
}

func (d *device) Read(ctx context.Context) (camera.Frame, error) {
	timer := time.NewTimer(d.timeout)
	defer timer.Stop()

	select {
	case f := <-d.frames:
		return f, nil
	case <-d.done:
		return camera.Frame{}, d.err()
	case <-timer.C:
		return camera.Frame{}, fmt.Errorf("no frame from %s within %s", d.name, d.timeout)
	case <-ctx.Done():
		return camera.Frame{}, ctx.Err()
	}
}

func (d *device) Healthy() bool {
	return d.healthy.Load()
}

func (d *device) Close() error {
	var err error
	d.closeOnce.Do(func() {
		d.healthy.Store(false)
		close(d.stop)
		err = d.pipeline.SetState(gst.StateNull)
		<-d.done
	})
	return err
}

package camera

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// SyntheticOpener produces test-pattern devices for demo mode and tests.
// Every index in [0, Devices) opens; other indexes are unavailable.
type SyntheticOpener struct {
	Devices int
	Width   int
	Height  int
	Rate    time.Duration // delay per frame, 0 returns immediately
}

// Open returns a synthetic device.
func (o SyntheticOpener) Open(_ context.Context, index int) (Device, error) {
	if index < 0 || index >= o.Devices {
		return nil, fmt.Errorf("no synthetic device %d", index)
	}
	w, h := o.Width, o.Height
	if w <= 0 || h <= 0 {
		w, h = 320, 240
	}
	return &syntheticDevice{index: index, width: w, height: h, rate: o.Rate}, nil
}

type syntheticDevice struct {
	index         int
	width, height int
	rate          time.Duration
	seq           uint64
	closed        bool
}

func (d *syntheticDevice) Read(ctx context.Context) (Frame, error) {
	if d.closed {
		return Frame{}, fmt.Errorf("synthetic device %d closed", d.index)
	}
	if d.rate > 0 {
		select {
		case <-ctx.Done():
			return Frame{}, ctx.Err()
		case <-time.After(d.rate):
		}
	}
	d.seq++

	img := image.NewRGBA(image.Rect(0, 0, d.width, d.height))
	shade := uint8(d.seq * 8)
	for y := range d.height {
		for x := range d.width {
			img.SetRGBA(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: shade, A: 255})
		}
	}
	drawer := &font.Drawer{
		Dst:  img,
		Src:  image.White,
		Face: basicfont.Face7x13,
		Dot:  fixed.P(8, 16),
	}
	drawer.DrawString(fmt.Sprintf("camera %d frame %d", d.index, d.seq))

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 75}); err != nil {
		return Frame{}, fmt.Errorf("encode synthetic frame: %w", err)
	}
	return Frame{Data: buf.Bytes(), Seq: d.seq, CapturedAt: time.Now()}, nil
}

func (d *syntheticDevice) Healthy() bool { return !d.closed }

func (d *syntheticDevice) Close() error {
	d.closed = true
	return nil
}

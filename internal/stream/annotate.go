package stream

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/kozaktomas/attendance-kiosk/internal/facematch"
	"github.com/kozaktomas/attendance-kiosk/internal/recognition"
)

var (
	knownColor   = color.RGBA{G: 200, A: 255}
	unknownColor = color.RGBA{R: 220, A: 255}
)

const boxThickness = 2

// Annotate draws a box and a label for every result onto the JPEG frame.
func Annotate(frame []byte, results []recognition.Result, quality int) ([]byte, error) {
	src, err := jpeg.Decode(bytes.NewReader(frame))
	if err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	img := image.NewRGBA(src.Bounds())
	draw.Draw(img, img.Bounds(), src, src.Bounds().Min, draw.Src)

	face := basicfont.Face7x13
	for _, r := range results {
		rect := facematch.BBoxToRect(r.BBox, img.Bounds())
		if rect.Empty() {
			continue
		}
		c := unknownColor
		if r.Recognized() {
			c = knownColor
		}
		drawBox(img, rect, c)

		label := r.Label()
		width := font.MeasureString(face, label).Ceil() + 4
		height := face.Height + 2
		top := max(rect.Min.Y-height, img.Bounds().Min.Y)
		bg := image.Rect(rect.Min.X, top, rect.Min.X+width, top+height).Intersect(img.Bounds())
		draw.Draw(img, bg, image.NewUniform(c), image.Point{}, draw.Src)

		d := &font.Drawer{
			Dst:  img,
			Src:  image.White,
			Face: face,
			Dot:  fixed.P(rect.Min.X+2, top+face.Ascent+1),
		}
		d.DrawString(label)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	return buf.Bytes(), nil
}

func drawBox(img *image.RGBA, r image.Rectangle, c color.Color) {
	u := image.NewUniform(c)
	t := boxThickness
	for _, edge := range []image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+t),
		image.Rect(r.Min.X, r.Max.Y-t, r.Max.X, r.Max.Y),
		image.Rect(r.Min.X, r.Min.Y, r.Min.X+t, r.Max.Y),
		image.Rect(r.Max.X-t, r.Min.Y, r.Max.X, r.Max.Y),
	} {
		draw.Draw(img, edge.Intersect(r), u, image.Point{}, draw.Src)
	}
}

package fingerprint

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"testing"
)

func TestHammingDistance(t *testing.T) {
	tests := []struct {
		name     string
		a, b     uint64
		expected int
	}{
		{"identical", 0xFFFF, 0xFFFF, 0},
		{"one bit", 0b1000, 0b0000, 1},
		{"all bits", 0, ^uint64(0), 64},
		{"alternating", 0xAAAAAAAAAAAAAAAA, 0x5555555555555555, 64},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HammingDistance(tt.a, tt.b); got != tt.expected {
				t.Errorf("HammingDistance(%x, %x) = %d, want %d", tt.a, tt.b, got, tt.expected)
			}
		})
	}
}

func TestFrameHash_StableForSameScene(t *testing.T) {
	a := createGradientImage(64, 48)
	b := createGradientImage(64, 48)
	if d := HammingDistance(FrameHash(a), FrameHash(b)); d != 0 {
		t.Errorf("identical frames should hash identically, distance %d", d)
	}

	flat := createTestImage(64, 48, color.White)
	if FrameHash(a) == FrameHash(flat) {
		t.Error("gradient and flat frames should hash differently")
	}
}

func TestDownscale(t *testing.T) {
	data := encodeJPEG(createTestImage(400, 200, color.White))

	out, scale, err := Downscale(data, 100)
	if err != nil {
		t.Fatalf("Downscale failed: %v", err)
	}
	if scale != 4 {
		t.Errorf("expected scale 4, got %v", scale)
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if cfg.Width != 100 || cfg.Height != 50 {
		t.Errorf("expected 100x50, got %dx%d", cfg.Width, cfg.Height)
	}
}

func TestDownscale_NoResizeNeeded(t *testing.T) {
	data := encodeJPEG(createTestImage(80, 60, color.White))
	out, scale, err := Downscale(data, 100)
	if err != nil {
		t.Fatalf("Downscale failed: %v", err)
	}
	if scale != 1 || !bytes.Equal(out, data) {
		t.Error("small frames must be returned unchanged")
	}
}

func TestDownscale_InvalidImage(t *testing.T) {
	if _, _, err := Downscale([]byte("not an image"), 100); err == nil {
		t.Error("Downscale should fail for invalid image data")
	}
}

type stubExtractor struct {
	faces []Face
	err   error
}

func (s stubExtractor) DetectFaces(context.Context, []byte) ([]Face, error) {
	return s.faces, s.err
}

func TestExtract(t *testing.T) {
	good := Face{BBox: []float64{0, 0, 10, 10}, DetScore: 0.9, Embedding: []float32{1, 2}}
	transport := errors.New("connection refused")

	tests := []struct {
		name    string
		ex      stubExtractor
		wantErr error
	}{
		{"single face", stubExtractor{faces: []Face{good}}, nil},
		{"no face", stubExtractor{}, ErrNoFaceDetected},
		{"two faces", stubExtractor{faces: []Face{good, good}}, ErrAmbiguousFaces},
		{"low score", stubExtractor{faces: []Face{{DetScore: 0.2, Embedding: []float32{1}}}}, ErrLowQuality},
		{"transport", stubExtractor{err: transport}, transport},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			emb, err := Extract(context.Background(), tt.ex, nil, 0.5)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Extract error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr == nil && len(emb) != 2 {
				t.Errorf("expected embedding, got %v", emb)
			}
		})
	}
}

func TestExtractionFailureMessages(t *testing.T) {
	if ErrNoFaceDetected.Error() != "No face detected" {
		t.Errorf("unexpected message %q", ErrNoFaceDetected.Error())
	}
	if !IsExtractionFailure(ErrAmbiguousFaces) || IsExtractionFailure(errors.New("timeout")) {
		t.Error("IsExtractionFailure misclassified")
	}
}

// Helper functions

func createTestImage(width, height int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func createGradientImage(width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			gray := uint8((x + y) * 255 / (width + height))
			img.Set(x, y, color.RGBA{gray, gray, gray, 255})
		}
	}
	return img
}

func encodeJPEG(img image.Image) []byte {
	var buf bytes.Buffer
	jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90})
	return buf.Bytes()
}

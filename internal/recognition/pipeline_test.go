package recognition

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"sync"
	"testing"
	"time"

	"github.com/kozaktomas/attendance-kiosk/internal/facematch"
	"github.com/kozaktomas/attendance-kiosk/internal/fingerprint"
)

type fakeExtractor struct {
	mu    sync.Mutex
	faces []fingerprint.Face
	err   error
	calls int
}

func (f *fakeExtractor) DetectFaces(context.Context, []byte) ([]fingerprint.Face, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.faces, f.err
}

type recorder struct {
	mu      sync.Mutex
	results []Result
}

func (r *recorder) Observe(_ context.Context, res Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, res)
}

func newMatcher(t *testing.T) *facematch.Matcher {
	t.Helper()
	m := facematch.NewMatcher(facematch.Config{})
	if err := m.Add("E001", "Alice", []float32{1, 0, 0}); err != nil {
		t.Fatal(err)
	}
	if err := m.Add("E002", "Bob", []float32{0, 1, 0}); err != nil {
		t.Fatal(err)
	}
	return m
}

func testJPEG(t *testing.T, shade uint8) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for y := range 32 {
		for x := range 32 {
			img.SetRGBA(x, y, color.RGBA{R: uint8(x * 8), G: shade, B: uint8(y * 8), A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestPipeline_Process(t *testing.T) {
	ts := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		faces    []fingerprint.Face
		wantIDs  []string
		observed int
	}{
		{
			name:     "no faces",
			faces:    nil,
			wantIDs:  []string{},
			observed: 0,
		},
		{
			name: "known and unknown",
			faces: []fingerprint.Face{
				{BBox: []float64{0, 0, 10, 10}, DetScore: 0.9, Embedding: []float32{1, 0, 0}},
				{BBox: []float64{50, 50, 60, 60}, DetScore: 0.8, Embedding: []float32{0, 0, 1}},
			},
			wantIDs:  []string{"E001", ""},
			observed: 1,
		},
		{
			name: "overlapping detections collapse",
			faces: []fingerprint.Face{
				{BBox: []float64{0, 0, 10, 10}, DetScore: 0.7, Embedding: []float32{1, 0, 0}},
				{BBox: []float64{0, 0, 10, 11}, DetScore: 0.9, Embedding: []float32{0, 1, 0}},
			},
			wantIDs:  []string{"E002"},
			observed: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recorder{}
			p := NewPipeline(&fakeExtractor{faces: tt.faces}, newMatcher(t), rec, Config{Threshold: 0.6})

			results, err := p.Process(context.Background(), []byte("frame"), ts)
			if err != nil {
				t.Fatalf("Process failed: %v", err)
			}
			if results == nil {
				t.Fatal("expected non-nil result slice")
			}
			if len(results) != len(tt.wantIDs) {
				t.Fatalf("got %d results, want %d", len(results), len(tt.wantIDs))
			}
			for i, id := range tt.wantIDs {
				if results[i].PersonID != id {
					t.Errorf("result %d: PersonID = %q, want %q", i, results[i].PersonID, id)
				}
				if !results[i].FrameTimestamp.Equal(ts) {
					t.Errorf("result %d: timestamp not propagated", i)
				}
			}
			if len(rec.results) != tt.observed {
				t.Errorf("observed %d results, want %d", len(rec.results), tt.observed)
			}
		})
	}
}

func TestPipeline_ExtractorError(t *testing.T) {
	p := NewPipeline(&fakeExtractor{err: errors.New("connection refused")}, newMatcher(t), nil, Config{Threshold: 0.6})
	if _, err := p.Process(context.Background(), []byte("frame"), time.Now()); err == nil {
		t.Error("expected error from failing extractor")
	}
}

func TestPipeline_ChangeGate(t *testing.T) {
	ex := &fakeExtractor{faces: []fingerprint.Face{
		{BBox: []float64{0, 0, 10, 10}, DetScore: 0.9, Embedding: []float32{1, 0, 0}},
	}}
	rec := &recorder{}
	p := NewPipeline(ex, newMatcher(t), rec, Config{Threshold: 0.6, ChangeBits: 2})

	frame := testJPEG(t, 10)
	for range 3 {
		results, err := p.Process(context.Background(), frame, time.Now())
		if err != nil {
			t.Fatalf("Process failed: %v", err)
		}
		if len(results) != 1 || results[0].PersonID != "E001" {
			t.Fatalf("unexpected results %+v", results)
		}
	}
	if ex.calls != 1 {
		t.Errorf("static scene should be extracted once, got %d calls", ex.calls)
	}
	if len(rec.results) != 1 {
		t.Errorf("reused results must not be observed again, got %d", len(rec.results))
	}
}

func TestResult_Label(t *testing.T) {
	if got := (Result{}).Label(); got != "Unknown" {
		t.Errorf("Label() = %q", got)
	}
	if got := (Result{PersonID: "E1", Name: "Alice", Similarity: 0.8123}).Label(); got != "Alice (0.81)" {
		t.Errorf("Label() = %q", got)
	}
}

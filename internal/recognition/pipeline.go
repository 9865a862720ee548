// Package recognition identifies the faces in dashboard frames.
package recognition

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	"log/slog"
	"sync"
	"time"

	"github.com/kozaktomas/attendance-kiosk/internal/constants"
	"github.com/kozaktomas/attendance-kiosk/internal/facematch"
	"github.com/kozaktomas/attendance-kiosk/internal/fingerprint"
)

// Result is the outcome for one face in a frame. PersonID is empty for an
// unknown face.
type Result struct {
	PersonID       string
	Name           string
	Similarity     float64
	BBox           []float64
	FrameTimestamp time.Time
}

// Recognized reports whether the face matched an enrolled person.
func (r Result) Recognized() bool {
	return r.PersonID != ""
}

// Label is the text drawn next to the face box.
func (r Result) Label() string {
	if !r.Recognized() {
		return "Unknown"
	}
	return fmt.Sprintf("%s (%.2f)", r.Name, r.Similarity)
}

// Observer receives every recognized face.
type Observer interface {
	Observe(ctx context.Context, r Result)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, r Result)

// Observe calls f.
func (f ObserverFunc) Observe(ctx context.Context, r Result) { f(ctx, r) }

// Config tunes the pipeline.
type Config struct {
	Threshold float64 // minimum similarity for a match
	// ChangeBits enables the static-scene gate: a frame whose hash is within
	// ChangeBits of the last processed frame reuses its results. 0 disables.
	ChangeBits int
}

// Pipeline runs extraction and matching for each frame.
type Pipeline struct {
	extractor fingerprint.Extractor
	matcher   *facematch.Matcher
	observer  Observer
	cfg       Config

	mu       sync.Mutex
	lastHash uint64
	hasLast  bool
	last     []Result
}

// NewPipeline creates a pipeline. observer may be nil.
func NewPipeline(ex fingerprint.Extractor, m *facematch.Matcher, observer Observer, cfg Config) *Pipeline {
	return &Pipeline{extractor: ex, matcher: m, observer: observer, cfg: cfg}
}

// Process returns one result per distinct face in the JPEG frame. A frame
// without faces yields an empty slice and a nil error; an error means the
// extractor itself failed.
func (p *Pipeline) Process(ctx context.Context, frame []byte, ts time.Time) ([]Result, error) {
	hash, reuse := p.gate(frame)
	if reuse != nil {
		return reuse, nil
	}

	faces, err := p.extractor.DetectFaces(ctx, frame)
	if err != nil {
		return nil, fmt.Errorf("detect faces: %w", err)
	}

	boxes := make([][]float64, len(faces))
	scores := make([]float64, len(faces))
	for i, f := range faces {
		boxes[i] = f.BBox
		scores[i] = f.DetScore
	}
	keep := facematch.SuppressOverlaps(boxes, scores, constants.OverlapIoUThreshold)

	results := make([]Result, 0, len(keep))
	for _, i := range keep {
		if len(faces[i].Embedding) == 0 {
			continue
		}
		m := p.matcher.Match(faces[i].Embedding, p.cfg.Threshold)
		r := Result{
			PersonID:       m.PersonID,
			Name:           m.Name,
			Similarity:     m.Similarity,
			BBox:           faces[i].BBox,
			FrameTimestamp: ts,
		}
		results = append(results, r)
		if r.Recognized() && p.observer != nil {
			p.observer.Observe(ctx, r)
		}
	}

	if p.cfg.ChangeBits > 0 {
		p.mu.Lock()
		p.lastHash, p.hasLast, p.last = hash, true, results
		p.mu.Unlock()
	}
	if len(results) > 0 {
		slog.Debug("frame processed", "faces", len(faces), "results", len(results))
	}
	return results, nil
}

// gate returns the cached results when the frame shows the same scene as the
// last processed one.
func (p *Pipeline) gate(frame []byte) (uint64, []Result) {
	if p.cfg.ChangeBits <= 0 {
		return 0, nil
	}
	img, _, err := image.Decode(bytes.NewReader(frame))
	if err != nil {
		return 0, nil
	}
	hash := fingerprint.FrameHash(img)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.hasLast && fingerprint.HammingDistance(hash, p.lastHash) <= p.cfg.ChangeBits {
		out := make([]Result, len(p.last))
		copy(out, p.last)
		return hash, out
	}
	return hash, nil
}

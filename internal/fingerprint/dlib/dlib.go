// Package dlib provides a local face extractor on top of dlib (Kagami/go-face).
// It needs the dlib model files (shape_predictor_5_face_landmarks.dat,
// dlib_face_recognition_resnet_model_v1.dat, mmod_human_face_detector.dat)
// in the models directory.
package dlib

import (
	"context"
	"fmt"
	"image"
	"sync"

	"github.com/Kagami/go-face"
	"github.com/kozaktomas/attendance-kiosk/internal/constants"
	"github.com/kozaktomas/attendance-kiosk/internal/facematch"
	"github.com/kozaktomas/attendance-kiosk/internal/fingerprint"
)

// Extractor runs dlib face detection and the ResNet descriptor model in-process.
// The recognizer is not safe for concurrent use, calls are serialized.
type Extractor struct {
	mu      sync.Mutex
	rec     *face.Recognizer
	maxSize int
}

// NewExtractor loads the models from modelsDir.
func NewExtractor(modelsDir string) (*Extractor, error) {
	rec, err := face.NewRecognizer(modelsDir)
	if err != nil {
		return nil, fmt.Errorf("initialize dlib recognizer from %s: %w", modelsDir, err)
	}
	return &Extractor{rec: rec, maxSize: constants.MaxImageSize}, nil
}

// DetectFaces returns one Face per detection with a 128-d descriptor.
// dlib reports no detector confidence, so DetScore is 1.
func (e *Extractor) DetectFaces(ctx context.Context, frame []byte) ([]fingerprint.Face, error) {
	data, scale, err := fingerprint.Downscale(frame, e.maxSize)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	faces, err := e.rec.Recognize(data)
	e.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("dlib recognize: %w", err)
	}

	result := make([]fingerprint.Face, 0, len(faces))
	for _, f := range faces {
		result = append(result, fingerprint.Face{
			BBox:      facematch.ScaleBBox(rectToBBox(f.Rectangle), scale),
			DetScore:  1,
			Embedding: f.Descriptor[:],
		})
	}
	return result, nil
}

// Close frees the dlib models.
func (e *Extractor) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rec.Close()
}

func rectToBBox(r image.Rectangle) []float64 {
	return []float64{float64(r.Min.X), float64(r.Min.Y), float64(r.Max.X), float64(r.Max.Y)}
}

var _ fingerprint.Extractor = (*Extractor)(nil)

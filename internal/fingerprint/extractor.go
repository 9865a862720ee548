// Package fingerprint turns camera frames into face embeddings.
package fingerprint

import (
	"context"
	"errors"
)

// Extraction failures reported to the enrolling operator. The messages are
// shown verbatim.
//
//nolint:staticcheck // capitalized user-facing reasons
var (
	ErrNoFaceDetected = errors.New("No face detected")
	ErrAmbiguousFaces = errors.New("Multiple faces detected")
	ErrLowQuality     = errors.New("Face quality too low")
)

// Face is one detected face with its embedding.
type Face struct {
	BBox      []float64 // [x1, y1, x2, y2] in frame pixels
	DetScore  float64
	Embedding []float32
}

// Extractor detects faces in a JPEG frame and computes their embeddings.
// A frame without faces yields an empty slice and a nil error.
type Extractor interface {
	DetectFaces(ctx context.Context, jpeg []byte) ([]Face, error)
}

// Extract returns the embedding of the single face in the frame.
// It fails with ErrNoFaceDetected, ErrAmbiguousFaces or ErrLowQuality
// (detector confidence below minDetScore).
func Extract(ctx context.Context, ex Extractor, jpeg []byte, minDetScore float64) ([]float32, error) {
	faces, err := ex.DetectFaces(ctx, jpeg)
	if err != nil {
		return nil, err
	}

	switch len(faces) {
	case 0:
		return nil, ErrNoFaceDetected
	case 1:
	default:
		return nil, ErrAmbiguousFaces
	}

	face := faces[0]
	if face.DetScore < minDetScore {
		return nil, ErrLowQuality
	}
	if len(face.Embedding) == 0 {
		return nil, ErrNoFaceDetected
	}
	return face.Embedding, nil
}

// IsExtractionFailure reports whether err is a face-quality failure rather than a transport error.
func IsExtractionFailure(err error) bool {
	return errors.Is(err, ErrNoFaceDetected) || errors.Is(err, ErrAmbiguousFaces) || errors.Is(err, ErrLowQuality)
}

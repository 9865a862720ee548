// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

// Face matching constants
const (
	// OverlapIoUThreshold is the Intersection over Union above which two
	// detections in one frame are treated as the same face
	OverlapIoUThreshold = 0.5

	// DefaultDedupCheckLimit is the number of nearest persons listed by the
	// offline duplicate check
	DefaultDedupCheckLimit = 5
)

// Processing constants
const (
	// WorkerPoolSize is the default number of parallel workers for batch enrollment extraction
	WorkerPoolSize = 4

	// MaxImageSize is the maximum dimension (width or height) sent to the extractor
	MaxImageSize = 1280
)

// Stream constants
const (
	// MJPEGBoundary separates the parts of a multipart/x-mixed-replace video feed
	MJPEGBoundary = "frame"
)

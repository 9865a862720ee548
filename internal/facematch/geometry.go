package facematch

import (
	"image"
	"math"
	"sort"
)

// ComputeIoU calculates Intersection over Union between two bounding boxes.
// bbox1 and bbox2 are [x1, y1, x2, y2] in the same coordinate system.
func ComputeIoU(bbox1, bbox2 []float64) float64 {
	if len(bbox1) != 4 || len(bbox2) != 4 {
		return 0
	}

	x1 := max(bbox1[0], bbox2[0])
	y1 := max(bbox1[1], bbox2[1])
	x2 := min(bbox1[2], bbox2[2])
	y2 := min(bbox1[3], bbox2[3])

	if x2 <= x1 || y2 <= y1 {
		return 0
	}

	intersection := (x2 - x1) * (y2 - y1)
	area1 := (bbox1[2] - bbox1[0]) * (bbox1[3] - bbox1[1])
	area2 := (bbox2[2] - bbox2[0]) * (bbox2[3] - bbox2[1])
	union := area1 + area2 - intersection

	if union <= 0 {
		return 0
	}
	return intersection / union
}

// SuppressOverlaps returns the indices of boxes to keep, highest score first.
// A box is dropped when it overlaps an already kept box by more than iouThreshold.
func SuppressOverlaps(boxes [][]float64, scores []float64, iouThreshold float64) []int {
	order := make([]int, len(boxes))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scoreAt(scores, order[a]) > scoreAt(scores, order[b])
	})

	var kept []int
	for _, i := range order {
		overlaps := false
		for _, k := range kept {
			if ComputeIoU(boxes[i], boxes[k]) > iouThreshold {
				overlaps = true
				break
			}
		}
		if !overlaps {
			kept = append(kept, i)
		}
	}
	return kept
}

func scoreAt(scores []float64, i int) float64 {
	if i < len(scores) {
		return scores[i]
	}
	return 0
}

// BBoxToRect converts a pixel bbox [x1, y1, x2, y2] to a rectangle clipped to bounds.
// Returns an empty rectangle for malformed input.
func BBoxToRect(bbox []float64, bounds image.Rectangle) image.Rectangle {
	if len(bbox) != 4 {
		return image.Rectangle{}
	}
	r := image.Rect(
		int(math.Floor(bbox[0])),
		int(math.Floor(bbox[1])),
		int(math.Ceil(bbox[2])),
		int(math.Ceil(bbox[3])),
	)
	return r.Intersect(bounds)
}

// ScaleBBox multiplies every coordinate by factor. Used to map boxes found on a
// downscaled frame back to the original resolution.
func ScaleBBox(bbox []float64, factor float64) []float64 {
	if factor == 1 || len(bbox) == 0 {
		return bbox
	}
	out := make([]float64, len(bbox))
	for i, v := range bbox {
		out[i] = v * factor
	}
	return out
}

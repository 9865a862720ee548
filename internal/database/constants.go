package database

// HNSW index parameters for person embeddings
const (
	// HNSWMaxNeighbors (M) is the maximum number of neighbors per node.
	// Higher values improve recall but increase memory and build time.
	HNSWMaxNeighbors = 16

	// HNSWEfSearch is the search candidate pool size.
	// Higher values improve recall but slow down search.
	HNSWEfSearch = 100

	// HNSWSearchMultiplier is the factor to request more candidates from HNSW
	// so the exact re-scoring sees enough neighbours.
	HNSWSearchMultiplier = 3
)

// RecentLogLimit is the default number of events returned by the activity log.
const RecentLogLimit = 10

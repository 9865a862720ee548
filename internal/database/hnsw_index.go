package database

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/coder/hnsw"
)

// HNSWIndexMetadata stores metadata for validating cached HNSW indexes.
type HNSWIndexMetadata struct {
	PersonCount int       `json:"person_count"`
	BuildTime   time.Time `json:"build_time"`
	Version     int       `json:"version"` // For future compatibility
}

const hnswMetadataVersion = 2

// HNSWIndex wraps the HNSW graph for person embedding search.
// Keys are person IDs. Deleted persons stay in the graph but are filtered
// out of search results through the live set.
type HNSWIndex struct {
	graph *hnsw.Graph[string]
	live  map[string]struct{}
	mu    sync.RWMutex
	path  string // Path to save/load index
}

// NewHNSWIndex creates a new empty HNSW index.
func NewHNSWIndex() *HNSWIndex {
	return &HNSWIndex{
		live: make(map[string]struct{}),
	}
}

func newPersonGraph() *hnsw.Graph[string] {
	g := hnsw.NewGraph[string]()
	g.M = HNSWMaxNeighbors
	g.Ml = 1.0 / float64(HNSWMaxNeighbors) // Standard HNSW formula
	g.EfSearch = HNSWEfSearch
	g.Distance = hnsw.CosineDistance
	return g
}

// BuildFromPersons builds the index from a slice of persons.
func (h *HNSWIndex) BuildFromPersons(persons []Person) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.live = make(map[string]struct{}, len(persons))
	if len(persons) == 0 {
		h.graph = nil
		return
	}

	g := newPersonGraph()
	for i := range persons {
		if len(persons[i].Embedding) == 0 {
			continue
		}
		g.Add(hnsw.MakeNode(persons[i].ID, persons[i].Embedding))
		h.live[persons[i].ID] = struct{}{}
	}
	h.graph = g
}

// Add adds a single person embedding to the index.
func (h *HNSWIndex) Add(id string, embedding []float32) {
	if len(embedding) == 0 {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.graph == nil {
		h.graph = newPersonGraph()
	}
	// The graph panics on a duplicate key; re-enrollment replaces the node.
	if _, ok := h.graph.Lookup(id); ok {
		h.graph.Delete(id)
	}
	h.graph.Add(hnsw.MakeNode(id, embedding))
	h.live[id] = struct{}{}
}

// Delete removes a person from search results.
func (h *HNSWIndex) Delete(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.live, id)
}

// Search finds the k nearest live neighbours to the query embedding.
// Returns person IDs and their cosine distances.
func (h *HNSWIndex) Search(query []float32, k int) ([]string, []float64, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.graph == nil {
		return nil, nil, errors.New("index not initialized")
	}

	neighbors := h.graph.Search(query, k)
	ids := make([]string, 0, len(neighbors))
	distances := make([]float64, 0, len(neighbors))
	for _, n := range neighbors {
		if _, ok := h.live[n.Key]; !ok {
			continue
		}
		ids = append(ids, n.Key)
		distances = append(distances, CosineDistance(query, n.Value))
	}
	return ids, distances, nil
}

// Count returns the number of live persons in the index.
func (h *HNSWIndex) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.live)
}

// SetPath sets the path for saving/loading the index.
func (h *HNSWIndex) SetPath(path string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.path = path
}

// Save persists the index to its configured path along with metadata for staleness detection.
func (h *HNSWIndex) Save() error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.path == "" {
		return nil
	}

	if h.graph == nil {
		// Remove existing files if index is empty (best-effort cleanup).
		_ = os.Remove(h.path)
		_ = os.Remove(h.path + ".meta")
		return nil
	}

	f, err := os.Create(h.path) //nolint:gosec // path is from trusted config
	if err != nil {
		return fmt.Errorf("failed to create HNSW index file: %w", err)
	}
	defer f.Close()

	if err := h.graph.Export(f); err != nil {
		return fmt.Errorf("exporting HNSW graph: %w", err)
	}

	metaData, err := json.Marshal(HNSWIndexMetadata{
		PersonCount: len(h.live),
		BuildTime:   time.Now(),
		Version:     hnswMetadataVersion,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := os.WriteFile(h.path+".meta", metaData, 0600); err != nil {
		return fmt.Errorf("failed to write metadata file: %w", err)
	}
	return nil
}

// LoadHNSWMetadata loads metadata from a separate .meta file.
func LoadHNSWMetadata(path string) (HNSWIndexMetadata, error) {
	var metadata HNSWIndexMetadata

	data, err := os.ReadFile(path + ".meta") //nolint:gosec // path is from trusted config
	if err != nil {
		return metadata, fmt.Errorf("failed to read metadata file: %w", err)
	}
	if err := json.Unmarshal(data, &metadata); err != nil {
		return metadata, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	return metadata, nil
}

// Load loads a previously saved graph. The live set is taken from persons,
// which must be the currently persisted gallery. Returns false when the
// cache is missing or stale and the caller should rebuild instead.
func (h *HNSWIndex) Load(path string, persons []Person) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.path = path

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return false, nil
	}

	metadata, err := LoadHNSWMetadata(path)
	if err != nil || metadata.Version != hnswMetadataVersion || metadata.PersonCount != len(persons) {
		return false, nil //nolint:nilerr // stale cache is rebuilt, not an error
	}

	saved, err := hnsw.LoadSavedGraph[string](path)
	if err != nil {
		return false, fmt.Errorf("failed to load HNSW index: %w", err)
	}

	h.graph = saved.Graph
	h.live = make(map[string]struct{}, len(persons))
	for i := range persons {
		h.live[persons[i].ID] = struct{}{}
	}
	return true, nil
}

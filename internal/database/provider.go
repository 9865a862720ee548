package database

import (
	"context"
	"errors"
	"sync"
)

// HNSWRebuilder is an interface for components that keep an HNSW index over person embeddings
type HNSWRebuilder interface {
	// RebuildHNSW rebuilds the in-memory HNSW index
	RebuildHNSW(ctx context.Context) error
	// HNSWCount returns the number of items in the HNSW index
	HNSWCount() int
	// SaveHNSWIndex saves the current index to disk (if path configured)
	SaveHNSWIndex() error
}

var (
	registryMu    sync.RWMutex
	activeStore   Store
	activeBackend string
	hnswRebuilder HNSWRebuilder
)

// RegisterBackend registers the active storage backend.
// This is called by the backend packages to avoid import cycles.
func RegisterBackend(name string, store Store) {
	registryMu.Lock()
	defer registryMu.Unlock()
	activeStore = store
	activeBackend = name
}

// RegisterHNSWRebuilder registers the component owning the person HNSW index.
func RegisterHNSWRebuilder(rebuilder HNSWRebuilder) {
	registryMu.Lock()
	defer registryMu.Unlock()
	hnswRebuilder = rebuilder
}

// GetHNSWRebuilder returns the registered HNSW rebuilder, or nil if not registered.
func GetHNSWRebuilder() HNSWRebuilder {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return hnswRebuilder
}

// IsInitialized returns whether a storage backend has been registered.
func IsInitialized() bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return activeStore != nil
}

// Backend returns the name of the registered backend ("" if none).
func Backend() string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return activeBackend
}

// GetStore returns the registered storage backend
func GetStore(ctx context.Context) (Store, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	if activeStore == nil {
		return nil, errors.New("storage backend not initialized: DATABASE_URL is required")
	}
	return activeStore, nil
}

// Reset clears the registry. Used by tests and on shutdown.
func Reset() {
	registryMu.Lock()
	defer registryMu.Unlock()
	activeStore = nil
	activeBackend = ""
	hnswRebuilder = nil
}

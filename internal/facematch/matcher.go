// Package facematch provides the in-memory face gallery used for live
// recognition and enrollment duplicate checks, plus name helpers.
package facematch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/kozaktomas/attendance-kiosk/internal/database"
)

var (
	// ErrAlreadyEnrolled is returned by Add when the person ID is already in the gallery.
	ErrAlreadyEnrolled = errors.New("person already in gallery")
	// ErrEmptyEmbedding is returned for a missing embedding.
	ErrEmptyEmbedding = errors.New("embedding is empty")
	// ErrDimensionMismatch is returned when an embedding does not match the gallery dimension.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// Entry is one enrolled identity in the gallery.
type Entry struct {
	PersonID  string
	Name      string
	Embedding []float32
}

// Match is the best gallery candidate for a query embedding.
// PersonID is empty when the best similarity is below the threshold;
// Similarity is reported either way.
type Match struct {
	PersonID   string
	Name       string
	Similarity float64
}

// Matched reports whether a person was identified.
func (m Match) Matched() bool {
	return m.PersonID != ""
}

// gallery is an immutable snapshot. Entries are sorted by PersonID.
type gallery struct {
	entries []Entry
	dim     int
	hnsw    *database.HNSWIndex // nil below the HNSW size threshold
}

func (g *gallery) find(id string) (int, bool) {
	return sort.Find(len(g.entries), func(i int) int {
		switch {
		case id < g.entries[i].PersonID:
			return -1
		case id > g.entries[i].PersonID:
			return 1
		}
		return 0
	})
}

// Config controls the optional HNSW acceleration.
type Config struct {
	// HNSWMinSize is the gallery size above which HNSW candidates are used; 0 disables HNSW.
	HNSWMinSize int
	// HNSWIndexPath persists the HNSW graph between restarts when set.
	HNSWIndexPath string
}

// Matcher identifies faces against the enrolled gallery.
//
// Readers never block: Match loads the current snapshot. Writers serialize on
// mu and publish a new snapshot, so a reader sees either the old or the new
// gallery, never a partially inserted entry.
type Matcher struct {
	cfg  Config
	mu   sync.Mutex
	snap atomic.Pointer[gallery]
}

// NewMatcher creates an empty matcher.
func NewMatcher(cfg Config) *Matcher {
	m := &Matcher{cfg: cfg}
	m.snap.Store(&gallery{})
	return m
}

// Load replaces the gallery with the persons from the store.
func (m *Matcher) Load(ctx context.Context, reader database.PersonReader) error {
	persons, err := reader.ListPersons(ctx)
	if err != nil {
		return fmt.Errorf("list persons: %w", err)
	}

	entries := make([]Entry, 0, len(persons))
	dim := 0
	for _, p := range persons {
		if len(p.Embedding) == 0 {
			slog.Warn("skipping person without embedding", "person_id", p.ID)
			continue
		}
		if dim == 0 {
			dim = len(p.Embedding)
		}
		if len(p.Embedding) != dim {
			slog.Warn("skipping person with mismatched embedding dimension",
				"person_id", p.ID, "dim", len(p.Embedding), "expected", dim)
			continue
		}
		entries = append(entries, Entry{PersonID: p.ID, Name: p.Name, Embedding: p.Embedding})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].PersonID < entries[j].PersonID })

	m.mu.Lock()
	defer m.mu.Unlock()

	g := &gallery{entries: entries, dim: dim}
	if m.hnswEnabled(len(entries)) {
		g.hnsw = m.loadOrBuildHNSW(entries)
	}
	m.snap.Store(g)
	return nil
}

// Len returns the number of enrolled entries.
func (m *Matcher) Len() int {
	return len(m.snap.Load().entries)
}

// Dim returns the embedding dimension of the gallery, 0 when empty.
func (m *Matcher) Dim() int {
	return m.snap.Load().dim
}

// Entries returns a copy of the gallery entries sorted by person ID.
func (m *Matcher) Entries() []Entry {
	return slices.Clone(m.snap.Load().entries)
}

// Match returns the most similar entry. Ties resolve to the smallest person ID.
func (m *Matcher) Match(query []float32, threshold float64) Match {
	g := m.snap.Load()
	if len(g.entries) == 0 || len(query) == 0 {
		return Match{}
	}

	var best Match
	if g.hnsw != nil {
		best = g.matchHNSW(query)
	} else {
		best = g.matchLinear(query)
	}

	if best.Similarity < threshold {
		best.PersonID = ""
		best.Name = ""
	}
	return best
}

func (g *gallery) matchLinear(query []float32) Match {
	best := Match{Similarity: -1}
	first := true
	for i := range g.entries {
		e := &g.entries[i]
		sim := database.CosineSimilarity(query, e.Embedding)
		// Entries are in ID order; only a strictly greater score replaces the best.
		if first || sim > best.Similarity {
			best = Match{PersonID: e.PersonID, Name: e.Name, Similarity: sim}
			first = false
		}
	}
	return best
}

func (g *gallery) matchHNSW(query []float32) Match {
	k := 10 * database.HNSWSearchMultiplier
	ids, _, err := g.hnsw.Search(query, k)
	if err != nil || len(ids) == 0 {
		return g.matchLinear(query)
	}

	sort.Strings(ids)
	best := Match{Similarity: -1}
	first := true
	for _, id := range ids {
		i, ok := g.find(id)
		if !ok {
			continue
		}
		e := &g.entries[i]
		sim := database.CosineSimilarity(query, e.Embedding)
		if first || sim > best.Similarity {
			best = Match{PersonID: e.PersonID, Name: e.Name, Similarity: sim}
			first = false
		}
	}
	if first {
		return g.matchLinear(query)
	}
	return best
}

// Add inserts a new entry and publishes the new snapshot.
func (m *Matcher) Add(personID, name string, embedding []float32) error {
	if len(embedding) == 0 {
		return ErrEmptyEmbedding
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	old := m.snap.Load()
	if old.dim != 0 && len(embedding) != old.dim {
		return fmt.Errorf("%w: got %d, gallery has %d", ErrDimensionMismatch, len(embedding), old.dim)
	}
	pos, found := old.find(personID)
	if found {
		return fmt.Errorf("%s: %w", personID, ErrAlreadyEnrolled)
	}

	entry := Entry{PersonID: personID, Name: name, Embedding: slices.Clone(embedding)}
	g := &gallery{
		entries: slices.Insert(slices.Clone(old.entries), pos, entry),
		dim:     len(embedding),
		hnsw:    old.hnsw,
	}
	m.updateHNSW(g, func(idx *database.HNSWIndex) { idx.Add(personID, entry.Embedding) })
	m.snap.Store(g)
	return nil
}

// Replace sets the embedding and name of an entry, adding it when absent.
func (m *Matcher) Replace(personID, name string, embedding []float32) error {
	if len(embedding) == 0 {
		return ErrEmptyEmbedding
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	old := m.snap.Load()
	if old.dim != 0 && len(embedding) != old.dim && !(len(old.entries) == 1 && old.entries[0].PersonID == personID) {
		return fmt.Errorf("%w: got %d, gallery has %d", ErrDimensionMismatch, len(embedding), old.dim)
	}

	entry := Entry{PersonID: personID, Name: name, Embedding: slices.Clone(embedding)}
	entries := slices.Clone(old.entries)
	if pos, found := old.find(personID); found {
		entries[pos] = entry
	} else {
		entries = slices.Insert(entries, pos, entry)
	}

	g := &gallery{entries: entries, dim: len(embedding), hnsw: old.hnsw}
	m.updateHNSW(g, func(idx *database.HNSWIndex) {
		idx.Delete(personID)
		idx.Add(personID, entry.Embedding)
	})
	m.snap.Store(g)
	return nil
}

// Remove deletes an entry. Returns false if it was not enrolled.
func (m *Matcher) Remove(personID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	old := m.snap.Load()
	pos, found := old.find(personID)
	if !found {
		return false
	}

	g := &gallery{
		entries: slices.Delete(slices.Clone(old.entries), pos, pos+1),
		dim:     old.dim,
		hnsw:    old.hnsw,
	}
	if len(g.entries) == 0 {
		g.dim = 0
	}
	m.updateHNSW(g, func(idx *database.HNSWIndex) { idx.Delete(personID) })
	m.snap.Store(g)
	return true
}

func (m *Matcher) hnswEnabled(size int) bool {
	return m.cfg.HNSWMinSize > 0 && size > m.cfg.HNSWMinSize
}

// updateHNSW keeps the index in step with the new snapshot g. It builds the
// index when the gallery grows past the threshold and drops it below.
// Must be called with mu held, before g is published.
func (m *Matcher) updateHNSW(g *gallery, apply func(*database.HNSWIndex)) {
	switch {
	case !m.hnswEnabled(len(g.entries)):
		g.hnsw = nil
	case g.hnsw == nil:
		g.hnsw = buildHNSW(g.entries, m.cfg.HNSWIndexPath)
	default:
		apply(g.hnsw)
	}
}

func buildHNSW(entries []Entry, path string) *database.HNSWIndex {
	idx := database.NewHNSWIndex()
	idx.SetPath(path)
	idx.BuildFromPersons(entriesToPersons(entries))
	return idx
}

func (m *Matcher) loadOrBuildHNSW(entries []Entry) *database.HNSWIndex {
	if m.cfg.HNSWIndexPath != "" {
		idx := database.NewHNSWIndex()
		ok, err := idx.Load(m.cfg.HNSWIndexPath, entriesToPersons(entries))
		if err != nil {
			slog.Warn("failed to load HNSW index, rebuilding", "path", m.cfg.HNSWIndexPath, "error", err)
		}
		if ok {
			slog.Info("loaded HNSW index", "path", m.cfg.HNSWIndexPath, "persons", idx.Count())
			return idx
		}
	}
	idx := buildHNSW(entries, m.cfg.HNSWIndexPath)
	slog.Info("built HNSW index", "persons", idx.Count())
	return idx
}

func entriesToPersons(entries []Entry) []database.Person {
	persons := make([]database.Person, len(entries))
	for i, e := range entries {
		persons[i] = database.Person{ID: e.PersonID, Name: e.Name, Embedding: e.Embedding}
	}
	return persons
}

// RebuildHNSW rebuilds the HNSW index from the current gallery.
func (m *Matcher) RebuildHNSW(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	old := m.snap.Load()
	g := &gallery{entries: old.entries, dim: old.dim}
	if m.hnswEnabled(len(old.entries)) {
		g.hnsw = buildHNSW(old.entries, m.cfg.HNSWIndexPath)
	}
	m.snap.Store(g)
	return nil
}

// HNSWCount returns the number of live entries in the HNSW index, 0 when disabled.
func (m *Matcher) HNSWCount() int {
	if idx := m.snap.Load().hnsw; idx != nil {
		return idx.Count()
	}
	return 0
}

// SaveHNSWIndex persists the HNSW index if it is active and a path is configured.
func (m *Matcher) SaveHNSWIndex() error {
	idx := m.snap.Load().hnsw
	if idx == nil || m.cfg.HNSWIndexPath == "" {
		return nil
	}
	if err := idx.Save(); err != nil {
		return fmt.Errorf("save HNSW index: %w", err)
	}
	return nil
}

var _ database.HNSWRebuilder = (*Matcher)(nil)

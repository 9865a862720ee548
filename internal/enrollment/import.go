package enrollment

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/kozaktomas/attendance-kiosk/internal/constants"
	"github.com/kozaktomas/attendance-kiosk/internal/fingerprint"
)

// Manifest lists persons to enroll from photos.
//
//	persons:
//	  - pid: E001
//	    name: Alice Novak
//	    email: alice@example.com
//	    department: Sales
//	    shift_start: "08:30"
//	    shift_end: "17:00"
//	    photo: photos/alice.jpg
type Manifest struct {
	Persons []ManifestEntry `yaml:"persons"`
}

// ManifestEntry is one person of the manifest. Photo is relative to the manifest file.
type ManifestEntry struct {
	PersonID   string `yaml:"pid"`
	Name       string `yaml:"name"`
	Email      string `yaml:"email"`
	Department string `yaml:"department"`
	ShiftStart string `yaml:"shift_start"`
	ShiftEnd   string `yaml:"shift_end"`
	Photo      string `yaml:"photo"`
}

func (e *ManifestEntry) request() Request {
	return Request{
		PersonID:   e.PersonID,
		Name:       e.Name,
		Email:      e.Email,
		Department: e.Department,
		ShiftStart: e.ShiftStart,
		ShiftEnd:   e.ShiftEnd,
	}
}

// LoadManifest reads a YAML manifest and resolves photo paths.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is given by the operator
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	dir := filepath.Dir(path)
	for i := range m.Persons {
		if m.Persons[i].Photo != "" && !filepath.IsAbs(m.Persons[i].Photo) {
			m.Persons[i].Photo = filepath.Join(dir, m.Persons[i].Photo)
		}
	}
	return &m, nil
}

// ImportResult is the outcome for one manifest entry.
type ImportResult struct {
	PersonID string
	Response Response
}

// ImportOptions controls a batch import.
type ImportOptions struct {
	Concurrency int    // parallel extractions, defaults to constants.WorkerPoolSize
	OnProgress  func() // called after each entry
}

// Import enrolls every manifest entry. Embeddings are extracted in parallel;
// registration runs in manifest order so the duplicate check also covers
// faces earlier in the same manifest.
func (s *Service) Import(ctx context.Context, m *Manifest, opts ImportOptions) []ImportResult {
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = constants.WorkerPoolSize
	}

	type extracted struct {
		embedding []float32
		resp      *Response
	}
	results := make([]extracted, len(m.Persons))

	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	for i := range m.Persons {
		wg.Add(1)
		go func(idx int, e ManifestEntry) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			req := e.request()
			if err := req.Validate(); err != nil {
				r := failure(err, MsgMissingFields)
				results[idx].resp = &r
				return
			}
			data, err := os.ReadFile(e.Photo)
			if err != nil {
				r := failure(err, fmt.Sprintf("Cannot read photo: %v", err))
				results[idx].resp = &r
				return
			}
			emb, err := fingerprint.Extract(ctx, s.extractor, data, s.cfg.MinDetScore)
			if err != nil {
				r := failure(err, err.Error())
				results[idx].resp = &r
				return
			}
			results[idx].embedding = emb
		}(i, m.Persons[i])
	}
	wg.Wait()

	out := make([]ImportResult, len(m.Persons))
	for i := range m.Persons {
		e := &m.Persons[i]
		var resp Response
		switch {
		case results[i].resp != nil:
			resp = *results[i].resp
		case ctx.Err() != nil:
			resp = failure(ctx.Err(), ctx.Err().Error())
		default:
			resp = s.Register(ctx, e.request(), results[i].embedding)
		}
		out[i] = ImportResult{PersonID: e.PersonID, Response: resp}
		if opts.OnProgress != nil {
			opts.OnProgress()
		}
	}
	return out
}

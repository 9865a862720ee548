// Package enrollment registers new persons by face.
package enrollment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/kozaktomas/attendance-kiosk/internal/camera"
	"github.com/kozaktomas/attendance-kiosk/internal/database"
	"github.com/kozaktomas/attendance-kiosk/internal/events"
	"github.com/kozaktomas/attendance-kiosk/internal/facematch"
	"github.com/kozaktomas/attendance-kiosk/internal/fingerprint"
)

// Messages returned to the enrolling operator.
const (
	MsgSuccess       = "Registration Successful"
	MsgCameraFailed  = "Camera failed"
	MsgMissingFields = "Missing required fields"
	msgDuplicateFmt  = "Face already registered as %s"
)

var (
	// ErrDuplicateIdentity means the face already belongs to an enrolled person.
	ErrDuplicateIdentity = errors.New("face already registered")
	// ErrInvalidRequest means required fields are missing or malformed.
	ErrInvalidRequest = errors.New("invalid enrollment request")
)

// Request describes the person to enroll.
type Request struct {
	PersonID   string `json:"pid"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	Department string `json:"department"`
	ShiftStart string `json:"shiftStart"`
	ShiftEnd   string `json:"shiftEnd"`
}

// Validate checks required fields and shift times.
func (r *Request) Validate() error {
	if strings.TrimSpace(r.PersonID) == "" || strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("%w: pid and name are required", ErrInvalidRequest)
	}
	for _, s := range []string{r.ShiftStart, r.ShiftEnd} {
		if s == "" {
			continue
		}
		if _, err := database.ParseClock(s); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
		}
	}
	return nil
}

func (r *Request) person(embedding []float32) database.Person {
	return database.Person{
		ID:         strings.TrimSpace(r.PersonID),
		Name:       facematch.CleanDisplayName(r.Name),
		Email:      strings.TrimSpace(r.Email),
		Department: strings.TrimSpace(r.Department),
		ShiftStart: r.ShiftStart,
		ShiftEnd:   r.ShiftEnd,
		Embedding:  embedding,
	}
}

// Response is the operator facing result.
type Response struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	PersonID string `json:"-"`
	Err      error  `json:"-"`
}

func failure(err error, msg string) Response {
	return Response{Message: msg, Err: err}
}

// FrameSource provides the frame to enroll from.
type FrameSource interface {
	ReadFrame(ctx context.Context) (camera.Frame, error)
}

// Config holds the enrollment thresholds.
type Config struct {
	DedupThreshold float64 // similarity above which a face counts as already enrolled
	MinDetScore    float64
}

// Service enrolls persons. Enrollments are serialized so two requests with
// the same face cannot both pass the duplicate check.
type Service struct {
	frames    FrameSource
	extractor fingerprint.Extractor
	matcher   *facematch.Matcher
	store     database.PersonWriter
	sink      events.Sink
	cfg       Config

	mu sync.Mutex
}

// NewService creates the service. sink may be nil.
func NewService(frames FrameSource, ex fingerprint.Extractor, m *facematch.Matcher, store database.PersonWriter, sink events.Sink, cfg Config) *Service {
	if sink == nil {
		sink = events.Discard{}
	}
	return &Service{frames: frames, extractor: ex, matcher: m, store: store, sink: sink, cfg: cfg}
}

// Enroll captures a frame from the active camera and enrolls the face in it.
func (s *Service) Enroll(ctx context.Context, req Request) Response {
	if err := req.Validate(); err != nil {
		return failure(err, MsgMissingFields)
	}

	frame, err := s.frames.ReadFrame(ctx)
	if err != nil {
		slog.Warn("enrollment camera read failed", "person_id", req.PersonID, "error", err)
		return failure(err, MsgCameraFailed)
	}
	return s.EnrollImage(ctx, req, frame.Data)
}

// EnrollImage enrolls the single face in a JPEG or PNG image.
func (s *Service) EnrollImage(ctx context.Context, req Request, image []byte) Response {
	if err := req.Validate(); err != nil {
		return failure(err, MsgMissingFields)
	}

	embedding, err := fingerprint.Extract(ctx, s.extractor, image, s.cfg.MinDetScore)
	if err != nil {
		if fingerprint.IsExtractionFailure(err) {
			return failure(err, err.Error())
		}
		slog.Error("face extraction failed", "person_id", req.PersonID, "error", err)
		return failure(err, "Face extraction failed: "+err.Error())
	}
	return s.Register(ctx, req, embedding)
}

// Register runs the duplicate check on an extracted embedding and persists
// the person. The matcher only learns the embedding after the store accepted it.
func (s *Service) Register(ctx context.Context, req Request, embedding []float32) Response {
	if err := req.Validate(); err != nil {
		return failure(err, MsgMissingFields)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if m := s.matcher.Match(embedding, s.cfg.DedupThreshold); m.Matched() && m.Similarity > s.cfg.DedupThreshold {
		slog.Info("duplicate face rejected", "person_id", req.PersonID,
			"existing_id", m.PersonID, "similarity", m.Similarity)
		return failure(fmt.Errorf("%w: %s", ErrDuplicateIdentity, m.PersonID), fmt.Sprintf(msgDuplicateFmt, m.Name))
	}

	if dim := s.matcher.Dim(); dim != 0 && len(embedding) != dim {
		err := fmt.Errorf("%w: got %d, gallery has %d", facematch.ErrDimensionMismatch, len(embedding), dim)
		return failure(err, "Embedding does not match the enrolled gallery")
	}

	p := req.person(embedding)
	if err := s.store.AddPerson(ctx, p); err != nil {
		slog.Error("failed to persist person", "person_id", p.ID, "error", err)
		if errors.Is(err, database.ErrDuplicatePerson) {
			return failure(err, fmt.Sprintf("Person ID %s already exists", p.ID))
		}
		return failure(err, err.Error())
	}

	if err := s.matcher.Add(p.ID, p.Name, embedding); err != nil {
		// The store has the person; the next gallery reload picks it up.
		slog.Error("failed to add person to matcher", "person_id", p.ID, "error", err)
	}

	e := events.New(events.Enrolled, p.ID, p.Name, time.Now())
	e.Email, e.Department, e.ShiftStart = p.Email, p.Department, p.ShiftStart
	s.sink.Publish(ctx, e)

	slog.Info("person enrolled", "person_id", p.ID, "name", p.Name)
	return Response{Success: true, Message: MsgSuccess, PersonID: p.ID}
}

package handlers

import (
	"context"
	"iter"
	"log/slog"
	"net/http"
	"time"

	"github.com/kozaktomas/attendance-kiosk/internal/stream"
)

// FrameFeed produces the JPEG frames of one viewer.
type FrameFeed interface {
	Frames(ctx context.Context) iter.Seq[[]byte]
}

// FeedHandler serves the MJPEG video feeds.
type FeedHandler struct {
	dashboard    FrameFeed
	registration FrameFeed
}

// NewFeedHandler creates a new feed handler
func NewFeedHandler(dashboard, registration FrameFeed) *FeedHandler {
	return &FeedHandler{dashboard: dashboard, registration: registration}
}

// Dashboard streams the annotated recognition feed.
func (h *FeedHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	serveMJPEG(w, r, h.dashboard, "dashboard")
}

// Registration streams the raw camera feed used while enrolling.
func (h *FeedHandler) Registration(w http.ResponseWriter, r *http.Request) {
	serveMJPEG(w, r, h.registration, "registration")
}

func serveMJPEG(w http.ResponseWriter, r *http.Request, feed FrameFeed, name string) {
	if _, ok := w.(http.Flusher); !ok {
		respondError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	// The feed is unbounded; lift the server write deadline for this response.
	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil {
		slog.Debug("cannot clear write deadline", "feed", name, "error", err)
	}

	w.Header().Set("Content-Type", stream.ContentType)
	w.Header().Set("Cache-Control", "no-cache, no-store")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	slog.Debug("viewer connected", "feed", name, "remote", sanitizeForLog(r.RemoteAddr))
	if err := stream.WriteMJPEG(w, feed.Frames(r.Context())); err != nil {
		slog.Debug("viewer disconnected", "feed", name, "error", err)
		return
	}
	slog.Debug("viewer disconnected", "feed", name)
}

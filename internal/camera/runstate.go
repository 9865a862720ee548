package camera

import "sync/atomic"

// RunState holds the operator controlled flags read by every video feed.
type RunState struct {
	streaming   atomic.Bool
	activeIndex atomic.Int64
}

// NewRunState returns a state with streaming enabled on the given camera.
func NewRunState(index int) *RunState {
	s := &RunState{}
	s.streaming.Store(true)
	s.activeIndex.Store(int64(index))
	return s
}

func (s *RunState) StreamingEnabled() bool { return s.streaming.Load() }
func (s *RunState) SetStreaming(enabled bool) { s.streaming.Store(enabled) }
func (s *RunState) ActiveIndex() int { return int(s.activeIndex.Load()) }
func (s *RunState) SetActiveIndex(index int) { s.activeIndex.Store(int64(index)) }

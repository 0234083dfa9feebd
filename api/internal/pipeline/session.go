package pipeline

import (
	"fmt"
	"sync"

	"jlpt-snap/api/internal/analysis"
)

type State string

const (
	StateUpload    State = "upload"
	StateCrop      State = "crop"
	StateAnalyzing State = "analyzing"
	StateResult    State = "result"
)

type TransitionError struct {
	From, To State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid transition %s -> %s", e.From, e.To)
}

// Session is one user's upload -> crop -> analyzing -> result workflow.
// Only one analysis runs at a time: Begin refuses while one is in flight.
type Session struct {
	mu     sync.Mutex
	state  State
	image  string
	result *analysis.Result
	err    error
}

func NewSession() *Session {
	return &Session{state: StateUpload}
}

// Snapshot is a consistent copy of a session.
type Snapshot struct {
	State  State
	Image  string
	Result *analysis.Result
	Err    error
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{State: s.state, Image: s.image, Err: s.err}
	if s.result != nil {
		r := *s.result
		snap.Result = &r
	}
	return snap
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Upload stores the image and moves to crop.
func (s *Session) Upload(image string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateUpload {
		return &TransitionError{From: s.state, To: StateCrop}
	}
	s.image = image
	s.err = nil
	s.state = StateCrop
	return nil
}

// Replace installs a fresh image from any state except analyzing, dropping
// any previous result, and moves to crop.
func (s *Session) Replace(image string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateAnalyzing {
		return &TransitionError{From: s.state, To: StateCrop}
	}
	s.image = image
	s.result = nil
	s.err = nil
	s.state = StateCrop
	return nil
}

// UploadFailed records a failure to read the image; the session stays on
// upload.
func (s *Session) UploadFailed(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateUpload {
		s.err = err
	}
}

// Recrop replaces the image while on crop.
func (s *Session) Recrop(image string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateCrop {
		return &TransitionError{From: s.state, To: StateCrop}
	}
	s.image = image
	return nil
}

// Begin moves crop -> analyzing and returns the image to analyze.
func (s *Session) Begin() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateCrop {
		return "", &TransitionError{From: s.state, To: StateAnalyzing}
	}
	s.state = StateAnalyzing
	s.err = nil
	return s.image, nil
}

func (s *Session) Complete(res analysis.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateAnalyzing {
		return &TransitionError{From: s.state, To: StateResult}
	}
	s.result = &res
	s.state = StateResult
	return nil
}

// Fail returns to crop keeping the image so the user can retry.
func (s *Session) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateAnalyzing {
		return
	}
	s.err = err
	s.state = StateCrop
}

// Reset discards everything and returns to upload from any state.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateUpload
	s.image = ""
	s.result = nil
	s.err = nil
}

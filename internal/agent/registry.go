package agent

import (
	"sync"
	"time"
)

// Registry maps call ids to live sessions. It is the only structure shared
// across calls; it never touches session state itself.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	reapers  map[string]*time.Timer
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		reapers:  make(map[string]*time.Timer),
	}
}

// GetOrCreate returns the session for callID, building it with create when
// absent. The bool reports whether create was called.
func (r *Registry) GetOrCreate(callID string, create func() *Session) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[callID]; ok {
		return s, false
	}
	s := create()
	r.sessions[callID] = s
	return s, true
}

// Lookup returns the session for callID if it is still held.
func (r *Registry) Lookup(callID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[callID]
	return s, ok
}

// ScheduleRemoval drops callID after d so late callbacks can still find it.
func (r *Registry) ScheduleRemoval(callID string, d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.reapers[callID]; ok {
		t.Stop()
	}
	if d <= 0 {
		delete(r.sessions, callID)
		delete(r.reapers, callID)
		return
	}
	r.reapers[callID] = time.AfterFunc(d, func() { r.Remove(callID) })
}

// Remove drops callID immediately.
func (r *Registry) Remove(callID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.reapers[callID]; ok {
		t.Stop()
		delete(r.reapers, callID)
	}
	delete(r.sessions, callID)
}

// Len returns the number of held sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// AttachRecording routes recording metadata to the session for callID.
func (r *Registry) AttachRecording(callID string, rec Recording) bool {
	s, ok := r.Lookup(callID)
	if !ok {
		return false
	}
	s.AttachRecording(rec)
	return true
}

package engine

import "sync"

// Stage is where a user currently is in a conversational flow.
type Stage int

const (
	StageIdle Stage = iota
	StageAwaitingCategory
	StageAwaitingConfessionText
	StageAwaitingCommentText
)

// Session is the transient per-user conversation state. The zero value is an
// idle session. Lost on restart, which is acceptable: the user just starts
// the flow again.
type Session struct {
	Stage        Stage
	Category     string
	ConfessionID int64 // bound confession for the comment flow
}

// Sessions is the in-memory session store keyed by user id. A user's own
// updates arrive in order, so per-key serialization beyond the map lock is
// not needed; the lock only keeps users from corrupting each other's entries.
type Sessions struct {
	mu sync.Mutex
	m  map[int64]Session
}

// NewSessions creates an empty session store.
func NewSessions() *Sessions {
	return &Sessions{m: make(map[int64]Session)}
}

// Get returns the user's session, or an idle one if none exists.
func (s *Sessions) Get(userID int64) Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.m[userID]
}

// Set stores the user's session.
func (s *Sessions) Set(userID int64, sess Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[userID] = sess
}

// Clear resets the user to idle. Clearing an already-idle session is a no-op.
func (s *Sessions) Clear(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, userID)
}

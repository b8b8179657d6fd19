// Package session holds per-sender conversational state: the rolling history
// window handed to the generator, the persona mode, and the last-seen markers
// the admission pipeline uses for cooldown and duplicate suppression.
//
// All state is process-local. A restart forgets everything; that is a
// documented property of the relay, not a bug.
package session

import (
	"sync"
	"time"
)

// Role tags a history turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one role-tagged message in a session's history.
type Turn struct {
	Role Role
	Text string
}

// Mode selects the persona used when prompting the generator.
type Mode string

const (
	ModeDefault Mode = "default"
	ModeLight   Mode = "light"
	ModeFlirty  Mode = "flirty"
)

// Session is the per-sender state. Fields are guarded by the owning Store's
// lock; callers only touch a Session through Store methods or inside
// Store.With.
type Session struct {
	LastEventAt time.Time
	LastText    string
	History     []Turn
	Mode        Mode
}

// Store maps senders to sessions behind a single lock. Contention is low (one
// webhook delivery at a time per sender in practice), so one lock for the
// whole table keeps the invariants easy to reason about.
type Store struct {
	mu         sync.Mutex
	sessions   map[string]*Session
	historyMax int
	idleTTL    time.Duration
}

// NewStore creates a store keeping at most historyMax turns per session.
// Sessions idle longer than idleTTL are dropped during Sweep; zero disables
// idle eviction.
func NewStore(historyMax int, idleTTL time.Duration) *Store {
	if historyMax <= 0 {
		historyMax = 10
	}
	return &Store{
		sessions:   make(map[string]*Session),
		historyMax: historyMax,
		idleTTL:    idleTTL,
	}
}

// get returns the session for sender, creating it lazily. Caller holds mu.
func (s *Store) get(sender string) *Session {
	sess, ok := s.sessions[sender]
	if !ok {
		sess = &Session{Mode: ModeDefault}
		s.sessions[sender] = sess
	}
	return sess
}

// With runs fn against the sender's session under the store lock. fn must not
// block; network calls stay outside.
func (s *Store) With(sender string, fn func(*Session)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.get(sender))
}

// Snapshot returns a copy of the sender's history and mode for building a
// generation request outside the lock.
func (s *Store) Snapshot(sender string) ([]Turn, Mode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.get(sender)
	history := make([]Turn, len(sess.History))
	copy(history, sess.History)
	return history, sess.Mode
}

// Mode returns the sender's current persona mode.
func (s *Store) Mode(sender string) Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.get(sender).Mode
}

// SetMode switches the sender's persona mode.
func (s *Store) SetMode(sender string, mode Mode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.get(sender).Mode = mode
}

// AppendExchange records one user/assistant pair and trims the window to the
// most recent turns. Trimming drops whole pairs from the front so the window
// never starts mid-exchange.
func (s *Store) AppendExchange(sender, userText, assistantText string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.get(sender)
	sess.History = append(sess.History,
		Turn{Role: RoleUser, Text: userText},
		Turn{Role: RoleAssistant, Text: assistantText},
	)
	if over := len(sess.History) - s.historyMax; over > 0 {
		if over%2 != 0 {
			over++
		}
		sess.History = append(sess.History[:0], sess.History[over:]...)
	}
}

// ResetMarkers clears the admission markers (cooldown timestamp, last input)
// on every session. History and mode survive; the daily reset prices usage,
// it does not end conversations. Sessions idle past the TTL are dropped
// entirely.
func (s *Store) ResetMarkers(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for sender, sess := range s.sessions {
		if s.idleTTL > 0 && !sess.LastEventAt.IsZero() && now.Sub(sess.LastEventAt) > s.idleTTL {
			delete(s.sessions, sender)
			continue
		}
		sess.LastEventAt = time.Time{}
		sess.LastText = ""
	}
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

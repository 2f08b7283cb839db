// Package session tracks which persona each user is talking to.
package session

import "sync"

// Session is the per-user record of the selected persona.
type Session struct {
	PersonaID    string
	CustomName   string
	VoiceMode    bool
	AwaitingName bool
}

// Store is safe for concurrent use. Sessions are returned by value.
type Store struct {
	mu       sync.RWMutex
	sessions map[int64]Session
}

func NewStore() *Store {
	return &Store{sessions: make(map[int64]Session)}
}

func (s *Store) Get(userID int64) (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[userID]
	return sess, ok
}

// Select starts a fresh session with personaID, replacing any previous one.
// Selecting the persona that is already active keeps the session as it is,
// except that a nameable persona still without a name asks for one again.
// It returns the persona that was active before, if any.
func (s *Store) Select(userID int64, personaID string, awaitingName bool) (previous string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.sessions[userID]
	if ok && cur.PersonaID == personaID {
		if awaitingName && cur.CustomName == "" {
			cur.AwaitingName = true
			s.sessions[userID] = cur
		}
		return personaID
	}
	s.sessions[userID] = Session{PersonaID: personaID, AwaitingName: awaitingName}
	return cur.PersonaID
}

// SetCustomName stores the user's name for the current persona and leaves
// the awaiting-name state. It reports false when the user has no session.
func (s *Store) SetCustomName(userID int64, name string) bool {
	return s.update(userID, func(sess *Session) {
		sess.CustomName = name
		sess.AwaitingName = false
	})
}

func (s *Store) AwaitName(userID int64) bool {
	return s.update(userID, func(sess *Session) { sess.AwaitingName = true })
}

func (s *Store) SetVoiceMode(userID int64, on bool) bool {
	return s.update(userID, func(sess *Session) { sess.VoiceMode = on })
}

// End drops the session and returns what it held.
func (s *Store) End(userID int64) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[userID]
	delete(s.sessions, userID)
	return sess, ok
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (s *Store) update(userID int64, fn func(*Session)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[userID]
	if !ok {
		return false
	}
	fn(&sess)
	s.sessions[userID] = sess
	return true
}

package history

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"role-chatter/internal/llm"
)

const (
	DefaultMaxLength = 50
	DefaultExpiry    = 24 * time.Hour
)

type entry struct {
	msg llm.Message
	at  time.Time
}

// Store keeps the message history of every (user, persona) pair in memory.
//
// Two independent bounds apply on every append and read: a conversation
// never holds more than maxLen messages, and no message older than expiry is
// ever returned. Expired messages are swept lazily when their conversation
// is touched; emptied conversations and users are dropped on the spot.
type Store struct {
	mu       sync.Mutex
	maxLen   int
	expiry   time.Duration
	sessions map[int64]map[string][]entry
	now      func() time.Time
	log      zerolog.Logger
}

func NewStore(maxLen int, expiry time.Duration, log zerolog.Logger) *Store {
	if maxLen <= 0 {
		maxLen = DefaultMaxLength
	}
	if expiry <= 0 {
		expiry = DefaultExpiry
	}
	return &Store{
		maxLen:   maxLen,
		expiry:   expiry,
		sessions: make(map[int64]map[string][]entry),
		now:      time.Now,
		log:      log.With().Str("component", "history").Logger(),
	}
}

func (s *Store) AppendUser(userID int64, personaID, content string) {
	s.Append(userID, personaID, llm.RoleUser, content)
}

func (s *Store) AppendAssistant(userID int64, personaID, content string) {
	s.Append(userID, personaID, llm.RoleAssistant, content)
}

// Append records a message stamped with the current time, dropping the
// oldest messages once the conversation is over its length cap.
func (s *Store) Append(userID int64, personaID, role, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	convs := s.sessions[userID]
	if convs == nil {
		convs = make(map[string][]entry)
		s.sessions[userID] = convs
	}
	es := append(convs[personaID], entry{msg: llm.Message{Role: role, Content: content}, at: s.now()})
	if over := len(es) - s.maxLen; over > 0 {
		es = append(es[:0], es[over:]...)
	}
	convs[personaID] = es

	s.sweepLocked(userID, personaID)
}

// Get returns the live messages of a conversation, oldest first. The slice
// is a copy.
func (s *Store) Get(userID int64, personaID string) []llm.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweepLocked(userID, personaID)
	es := s.sessions[userID][personaID]
	out := make([]llm.Message, 0, len(es))
	for _, e := range es {
		out = append(out, e.msg)
	}
	return out
}

func (s *Store) Len(userID int64, personaID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked(userID, personaID)
	return len(s.sessions[userID][personaID])
}

// Clear drops one conversation. Clearing a missing conversation is a no-op.
func (s *Store) Clear(userID int64, personaID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	convs, ok := s.sessions[userID]
	if !ok {
		return
	}
	if _, ok := convs[personaID]; !ok {
		return
	}
	delete(convs, personaID)
	if len(convs) == 0 {
		delete(s.sessions, userID)
	}
	s.log.Info().Int64("user_id", userID).Str("persona", personaID).Msg("conversation cleared")
}

// ClearUser drops every conversation of the user.
func (s *Store) ClearUser(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[userID]; !ok {
		return
	}
	delete(s.sessions, userID)
	s.log.Info().Int64("user_id", userID).Msg("all conversations cleared")
}

// Users reports how many users currently hold at least one conversation.
func (s *Store) Users() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Store) sweepLocked(userID int64, personaID string) {
	convs, ok := s.sessions[userID]
	if !ok {
		return
	}
	es, ok := convs[personaID]
	if !ok {
		return
	}

	now := s.now()
	live := es[:0]
	for _, e := range es {
		if now.Sub(e.at) < s.expiry {
			live = append(live, e)
		}
	}
	if dropped := len(es) - len(live); dropped > 0 {
		s.log.Info().Int64("user_id", userID).Str("persona", personaID).Int("expired", dropped).Msg("expired messages removed")
	}

	if len(live) > 0 {
		convs[personaID] = live
		return
	}
	delete(convs, personaID)
	if len(convs) == 0 {
		delete(s.sessions, userID)
	}
}

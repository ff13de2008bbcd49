// Package conversation keeps the bounded chat history that feeds the
// language model and counts the turns that drive cooldown.
package conversation

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

const DefaultHistoryLimit = 10

// Utterance is one recorded chat line. It is never modified after Add.
type Utterance struct {
	ID         string
	Author     string
	Content    string
	IsBotReply bool
	At         time.Time
}

// Store is safe for concurrent use. The inbound loop and response
// goroutines both append to it.
type Store struct {
	history []Utterance
	limit   int
	turns   int
	now     func() time.Time
	mu      sync.RWMutex
}

func NewStore(limit int) *Store {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &Store{
		history: make([]Utterance, 0, limit),
		limit:   limit,
		now:     time.Now,
	}
}

// Add appends an utterance. Only non-bot utterances count as turns.
func (s *Store) Add(author, content string, isBotReply bool) Utterance {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.appendLocked(author, content, isBotReply)
	if !isBotReply {
		s.turns++
	}
	return u
}

// Record appends an inbound utterance without counting a turn.
func (s *Store) Record(author, content string) Utterance {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendLocked(author, content, false)
}

func (s *Store) appendLocked(author, content string, isBotReply bool) Utterance {
	u := Utterance{
		ID:         uuid.NewString(),
		Author:     author,
		Content:    content,
		IsBotReply: isBotReply,
		At:         s.now(),
	}
	s.history = append(s.history, u)
	if over := len(s.history) - s.limit; over > 0 {
		trimmed := make([]Utterance, s.limit)
		copy(trimmed, s.history[over:])
		s.history = trimmed
	}
	return u
}

func (s *Store) TurnCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.turns
}

func (s *Store) ShouldCoolDown(maxTurns int) bool {
	return s.TurnCount() >= maxTurns
}

// ResetTurns zeroes the turn counter and keeps history.
func (s *Store) ResetTurns() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = 0
}

// Clear drops history and the turn counter together.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = make([]Utterance, 0, s.limit)
	s.turns = 0
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.history)
}

func (s *Store) Limit() int {
	return s.limit
}

// Snapshot returns a copy of the history, oldest first.
func (s *Store) Snapshot() []Utterance {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Utterance, len(s.history))
	copy(out, s.history)
	return out
}

package repository

import (
	"context"
	"sync"
	"time"

	"agent-relay/internal/domain"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore keeps the log in process memory and tracks a read cursor per
// agent. Delivery is one-shot: every query moves the agent's cursor to the end
// of the log, so entries skipped by the sender filter are never revisited.
type MemoryStore struct {
	mu       sync.Mutex
	messages []domain.Message
	cursors  map[string]int
	now      func() time.Time
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		cursors: make(map[string]int),
		now:     time.Now,
	}
}

func (s *MemoryStore) Append(_ context.Context, sender, content string) (domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg := domain.Message{
		ID:        int64(len(s.messages) + 1),
		Sender:    sender,
		Content:   content,
		CreatedAt: s.now().UTC(),
	}
	s.messages = append(s.messages, msg)
	return msg, nil
}

func (s *MemoryStore) UnreadFor(_ context.Context, agentID string) ([]domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := s.cursors[agentID]
	var unread []domain.Message
	for _, msg := range s.messages[start:] {
		if msg.Sender != agentID {
			unread = append(unread, msg)
		}
	}
	s.cursors[agentID] = len(s.messages)
	return unread, nil
}

// Cursor reports how far into the log the agent has read.
func (s *MemoryStore) Cursor(agentID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursors[agentID]
}

// Len returns the number of messages in the log.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

// Close is a no-op; the log lives as long as the process.
func (s *MemoryStore) Close() error {
	return nil
}

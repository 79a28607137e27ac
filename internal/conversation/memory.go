package conversation

import (
	"context"
	"sync"
)

// MemoryStore keeps turns in process.
type MemoryStore struct {
	mu    sync.RWMutex
	turns map[string][]Turn
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{turns: map[string][]Turn{}}
}

func (s *MemoryStore) Load(_ context.Context, userID, conversationID string) (History, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return NewHistory(conversationID, s.turns[memoryKey(userID, conversationID)]...), nil
}

func (s *MemoryStore) Append(_ context.Context, userID, conversationID string, turn Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := memoryKey(userID, conversationID)
	s.turns[key] = append(s.turns[key], turn)
	return nil
}

func memoryKey(userID, conversationID string) string {
	return userID + "\x00" + conversationID
}

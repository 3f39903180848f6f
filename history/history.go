// Package history keeps the recent chat turns of each agent so the relay can
// send conversational context upstream.
package history

import (
	"context"
	"sync"
)

// Roles used in Message.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Store is the chat history backend.
type Store interface {
	// Recent returns up to n of the latest messages, oldest first.
	Recent(ctx context.Context, agentID int64, n int) ([]Message, error)
	Append(ctx context.Context, agentID int64, msgs ...Message) error
	Clear(ctx context.Context, agentID int64) error
}

// MemoryStore is a process-local Store capped per agent.
type MemoryStore struct {
	mu          sync.Mutex
	maxMessages int
	byAgent     map[int64][]Message
}

// NewMemoryStore keeps at most maxMessages per agent (<= 0 means unbounded).
func NewMemoryStore(maxMessages int) *MemoryStore {
	return &MemoryStore{maxMessages: maxMessages, byAgent: make(map[int64][]Message)}
}

func (m *MemoryStore) Recent(_ context.Context, agentID int64, n int) ([]Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msgs := m.byAgent[agentID]
	if n >= 0 && len(msgs) > n {
		msgs = msgs[len(msgs)-n:]
	}
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (m *MemoryStore) Append(_ context.Context, agentID int64, msgs ...Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := append(m.byAgent[agentID], msgs...)
	if m.maxMessages > 0 && len(all) > m.maxMessages {
		trimmed := make([]Message, m.maxMessages)
		copy(trimmed, all[len(all)-m.maxMessages:])
		all = trimmed
	}
	m.byAgent[agentID] = all
	return nil
}

func (m *MemoryStore) Clear(_ context.Context, agentID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byAgent, agentID)
	return nil
}

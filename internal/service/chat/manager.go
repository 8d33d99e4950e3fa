package chat

import (
	"context"
	"fmt"
	"log"
	"sync"
)

// Manager hands out one Conversation per owner, restoring persisted
// workspaces on first use.
type Manager struct {
	mu            sync.Mutex
	conversations map[string]*Conversation
	answerer      Answerer
	snapshots     Snapshots
}

// NewManager creates a manager. snapshots may be nil for purely in-memory use.
func NewManager(answerer Answerer, snapshots Snapshots) *Manager {
	return &Manager{
		conversations: make(map[string]*Conversation),
		answerer:      answerer,
		snapshots:     snapshots,
	}
}

// Open returns the owner's conversation, loading it if needed.
func (m *Manager) Open(ctx context.Context, owner string) (*Conversation, error) {
	if owner == "" {
		return nil, fmt.Errorf("owner is required")
	}

	m.mu.Lock()
	conv, ok := m.conversations[owner]
	m.mu.Unlock()
	if ok {
		return conv, nil
	}

	// Load without holding the lock so one slow owner does not block others.
	store := NewStore()
	if m.snapshots != nil {
		ws, err := m.snapshots.Load(ctx, owner)
		if err != nil {
			return nil, fmt.Errorf("load workspace: %w", err)
		}
		if ws != nil {
			store = Restore(*ws)
			log.Printf("[chat] restored %d sessions for owner=%s", len(ws.Sessions), owner)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// A concurrent Open for the same owner may have won the race.
	if existing, ok := m.conversations[owner]; ok {
		return existing, nil
	}
	conv = NewConversation(owner, store, m.answerer, m.snapshots)
	m.conversations[owner] = conv
	return conv, nil
}

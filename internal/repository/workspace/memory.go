package workspace

import (
	"context"
	"sync"

	"github.com/zhouzirui/rag-chat/backend/internal/model/chat"
)

// MemoryStore keeps workspaces in process memory.
type MemoryStore struct {
	mu         sync.RWMutex
	workspaces map[string]chat.Workspace
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{workspaces: make(map[string]chat.Workspace)}
}

// Load implements Store.
func (s *MemoryStore) Load(_ context.Context, owner string) (*chat.Workspace, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ws, ok := s.workspaces[owner]
	if !ok {
		return nil, nil
	}
	out := clone(ws)
	return &out, nil
}

// Save implements Store.
func (s *MemoryStore) Save(_ context.Context, owner string, ws chat.Workspace) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.workspaces[owner] = clone(ws)
	return nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.workspaces = make(map[string]chat.Workspace)
	return nil
}

func clone(ws chat.Workspace) chat.Workspace {
	out := chat.Workspace{ActiveID: ws.ActiveID, Sessions: make([]chat.Session, len(ws.Sessions))}
	for i, session := range ws.Sessions {
		out.Sessions[i] = session.Clone()
	}
	return out
}

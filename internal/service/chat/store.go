package chat

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zhouzirui/rag-chat/backend/internal/model/chat"
)

// titleLimit is the number of characters of the first message kept as the session title.
const titleLimit = 30

var (
	ErrEmptyMessage    = errors.New("message text or attachment is required")
	ErrSendInFlight    = errors.New("a message is already awaiting a reply in this session")
	ErrSessionNotFound = errors.New("session not found")
)

// Store owns the chat sessions of one user plus the active session reference.
// All values it returns are copies; callers never share memory with the store.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*chat.Session
	order    []string
	activeID string
	pending  map[string]struct{}

	now   func() time.Time
	newID func() string
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		sessions: make(map[string]*chat.Session),
		pending:  make(map[string]struct{}),
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
	}
}

// Restore rebuilds a store from a persisted workspace. A session whose last
// message is still a user message lost its reply (the process stopped while
// the ask was in flight); it gets an error reply so the turn is resolved.
func Restore(ws chat.Workspace) *Store {
	s := NewStore()
	for _, session := range ws.Sessions {
		if session.ID == "" {
			continue
		}
		cloned := session.Clone()
		if n := len(cloned.Messages); n > 0 && cloned.Messages[n-1].Role == chat.RoleUser {
			s.appendLocked(&cloned, chat.RoleBot, interruptedReply, nil)
		}
		s.sessions[cloned.ID] = &cloned
		s.order = append(s.order, cloned.ID)
	}
	if _, ok := s.sessions[ws.ActiveID]; ok {
		s.activeID = ws.ActiveID
	}
	return s
}

const interruptedReply = "Failed to get response from AI service: the request was interrupted before an answer arrived. Please send your message again."

// SendUserMessage appends a user message to the active session, creating the
// session first when none is active. The session is marked pending until
// AppendResponse is called for it.
func (s *Store) SendUserMessage(text string, attachment *chat.Attachment) (chat.Session, chat.Message, error) {
	if strings.TrimSpace(text) == "" && attachment == nil {
		return chat.Session{}, chat.Message{}, ErrEmptyMessage
	}

	content := text
	if content == "" {
		content = "Uploaded file: " + attachment.Name
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[s.activeID]
	if ok {
		if _, busy := s.pending[session.ID]; busy {
			return chat.Session{}, chat.Message{}, ErrSendInFlight
		}
	} else {
		now := s.now()
		session = &chat.Session{
			ID:        s.newID(),
			Title:     deriveTitle(text, attachment),
			Messages:  make([]chat.Message, 0, 8),
			CreatedAt: now,
			UpdatedAt: now,
		}
		s.sessions[session.ID] = session
		s.order = append([]string{session.ID}, s.order...)
	}

	var att *chat.Attachment
	if attachment != nil {
		copied := *attachment
		att = &copied
	}
	msg := s.appendLocked(session, chat.RoleUser, content, att)
	s.activeID = session.ID
	s.pending[session.ID] = struct{}{}

	return session.Clone(), msg, nil
}

// AppendResponse appends a bot message to the session captured at send time,
// regardless of which session is active now.
func (s *Store) AppendResponse(sessionID, content string) (chat.Session, chat.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return chat.Session{}, chat.Message{}, ErrSessionNotFound
	}

	msg := s.appendLocked(session, chat.RoleBot, content, nil)
	delete(s.pending, sessionID)

	return session.Clone(), msg, nil
}

// SelectSession makes id the active session. Unknown ids leave the active
// session unchanged and return ErrSessionNotFound.
func (s *Store) SelectSession(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return ErrSessionNotFound
	}
	s.activeID = id
	return nil
}

// NewSession clears the active session. The next send creates a new one.
func (s *Store) NewSession() {
	s.mu.Lock()
	s.activeID = ""
	s.mu.Unlock()
}

// Active returns the active session, if any.
func (s *Store) Active() (chat.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[s.activeID]
	if !ok {
		return chat.Session{}, false
	}
	return session.Clone(), true
}

// ActiveID returns the active session id or "".
func (s *Store) ActiveID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeID
}

// Session returns the session with the given id.
func (s *Store) Session(id string) (chat.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[id]
	if !ok {
		return chat.Session{}, ErrSessionNotFound
	}
	return session.Clone(), nil
}

// Pending reports whether a send on the session is awaiting its reply.
func (s *Store) Pending(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.pending[id]
	return ok
}

// Sessions lists sessions by most recent activity first. Sessions updated at
// the same instant keep collection order (newest created first).
func (s *Store) Sessions() []chat.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]chat.Session, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.sessions[id].Clone())
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out
}

// Snapshot captures the store for persistence.
func (s *Store) Snapshot() chat.Workspace {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ws := chat.Workspace{
		Sessions: make([]chat.Session, 0, len(s.order)),
		ActiveID: s.activeID,
	}
	for _, id := range s.order {
		ws.Sessions = append(ws.Sessions, s.sessions[id].Clone())
	}
	return ws
}

// appendLocked must be called with s.mu held.
func (s *Store) appendLocked(session *chat.Session, role chat.Role, content string, att *chat.Attachment) chat.Message {
	msg := chat.Message{
		ID:         s.newID(),
		Role:       role,
		Content:    content,
		Timestamp:  s.now(),
		Attachment: att,
	}
	session.Messages = append(session.Messages, msg)
	session.LastMessage = msg.Content
	session.UpdatedAt = msg.Timestamp
	return msg
}

func deriveTitle(text string, attachment *chat.Attachment) string {
	if text == "" && attachment != nil {
		return "File: " + attachment.Name
	}
	runes := []rune(text)
	if len(runes) > titleLimit {
		return string(runes[:titleLimit]) + "..."
	}
	return text
}

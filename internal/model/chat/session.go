package chat

import "time"

// Session is a titled, append-only log of messages for one conversation thread.
type Session struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Messages    []Message `json:"messages"`
	LastMessage string    `json:"lastMessage"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"timestamp"`
}

// Clone returns a copy that shares no mutable state with s.
func (s Session) Clone() Session {
	out := s
	out.Messages = make([]Message, len(s.Messages))
	for i, msg := range s.Messages {
		if msg.Attachment != nil {
			att := *msg.Attachment
			msg.Attachment = &att
		}
		out.Messages[i] = msg
	}
	return out
}

// Summary is the list-preview projection of a session.
type Summary struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	LastMessage  string    `json:"lastMessage"`
	MessageCount int       `json:"messageCount"`
	UpdatedAt    time.Time `json:"timestamp"`
}

// Summarize builds the preview for s.
func (s Session) Summarize() Summary {
	return Summary{
		ID:           s.ID,
		Title:        s.Title,
		LastMessage:  s.LastMessage,
		MessageCount: len(s.Messages),
		UpdatedAt:    s.UpdatedAt,
	}
}

// Workspace is the persisted state of one user's session store. Sessions are
// kept in collection order (newest created first).
type Workspace struct {
	Sessions []Session `json:"sessions"`
	ActiveID string    `json:"activeId,omitempty"`
}

package chat

import "time"

// Role identifies who authored a message.
type Role string

const (
	RoleUser Role = "user"
	RoleBot  Role = "bot"
)

// Attachment describes a file the user picked. Only metadata is kept; the bytes
// are never uploaded or forwarded to the answer backend.
type Attachment struct {
	Name      string `json:"name"`
	Size      int64  `json:"size"`
	MediaType string `json:"type"`
}

// Message is one immutable turn inside a session.
type Message struct {
	ID         string      `json:"id"`
	Role       Role        `json:"type"`
	Content    string      `json:"content"`
	Timestamp  time.Time   `json:"timestamp"`
	Attachment *Attachment `json:"file,omitempty"`
}

package chat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/zhouzirui/rag-chat/backend/internal/model/chat"
	"github.com/zhouzirui/rag-chat/backend/internal/service/answer"
)

// Answerer produces an answer for a question. *answer.Client implements it.
type Answerer interface {
	Ask(ctx context.Context, question string) (string, error)
}

// Snapshots persists workspaces by owner. Load returns (nil, nil) when the
// owner has nothing stored yet.
type Snapshots interface {
	Load(ctx context.Context, owner string) (*chat.Workspace, error)
	Save(ctx context.Context, owner string, ws chat.Workspace) error
}

// Turn is the outcome of one send: the user message and the bot reply that
// resolved it. AskErr is set when the reply describes a failed ask.
type Turn struct {
	Session chat.Session `json:"session"`
	User    chat.Message `json:"userMessage"`
	Bot     chat.Message `json:"botMessage"`
	AskErr  error        `json:"-"`
}

// Conversation drives a Store through send → ask → append.
type Conversation struct {
	owner     string
	store     *Store
	answerer  Answerer
	snapshots Snapshots

	// persistMu orders snapshot+save pairs so a stale snapshot never
	// overwrites a newer one.
	persistMu sync.Mutex
}

// NewConversation binds a store to an answerer. snapshots may be nil.
func NewConversation(owner string, store *Store, answerer Answerer, snapshots Snapshots) *Conversation {
	return &Conversation{
		owner:     owner,
		store:     store,
		answerer:  answerer,
		snapshots: snapshots,
	}
}

// Store exposes the underlying session store for reads.
func (c *Conversation) Store() *Store {
	return c.store
}

// Send appends the user message, asks the backend and appends exactly one bot
// message to the same session. Backend failures become the bot message; only
// ErrEmptyMessage and ErrSendInFlight are returned.
//
// The ask is not cancelled when ctx is; it runs until the backend answers or
// the answerer's own timeout fires.
func (c *Conversation) Send(ctx context.Context, text string, attachment *chat.Attachment) (Turn, error) {
	pending, err := c.Begin(ctx, text, attachment)
	if err != nil {
		return Turn{}, err
	}
	return c.Complete(ctx, pending)
}

// PendingTurn is a send whose user message is stored but whose reply is not.
type PendingTurn struct {
	Session chat.Session
	User    chat.Message
}

// Begin performs the optimistic half of a send: the user message is appended
// and the session is marked pending. Every successful Begin must be followed
// by exactly one Complete.
func (c *Conversation) Begin(ctx context.Context, text string, attachment *chat.Attachment) (PendingTurn, error) {
	session, userMsg, err := c.store.SendUserMessage(text, attachment)
	if err != nil {
		return PendingTurn{}, err
	}
	c.persist(ctx)
	return PendingTurn{Session: session, User: userMsg}, nil
}

// Complete asks the backend and appends the reply to the session captured by
// Begin, whichever session is active by then.
func (c *Conversation) Complete(ctx context.Context, p PendingTurn) (Turn, error) {
	content, askErr := c.answerer.Ask(context.WithoutCancel(ctx), p.User.Content)
	if askErr != nil {
		log.Printf("[chat] ask failed for session=%s: %v", p.Session.ID, askErr)
		content = DescribeError(askErr)
	}

	session, botMsg, err := c.store.AppendResponse(p.Session.ID, content)
	if err != nil {
		// Sessions are never deleted, so the captured id always resolves.
		return Turn{}, fmt.Errorf("append response: %w", err)
	}
	c.persist(ctx)

	return Turn{Session: session, User: p.User, Bot: botMsg, AskErr: askErr}, nil
}

// Select makes id the active session.
func (c *Conversation) Select(ctx context.Context, id string) error {
	if err := c.store.SelectSession(id); err != nil {
		return err
	}
	c.persist(ctx)
	return nil
}

// New clears the active session.
func (c *Conversation) New(ctx context.Context) {
	c.store.NewSession()
	c.persist(ctx)
}

func (c *Conversation) persist(ctx context.Context) {
	if c.snapshots == nil {
		return
	}

	c.persistMu.Lock()
	defer c.persistMu.Unlock()
	if err := c.snapshots.Save(context.WithoutCancel(ctx), c.owner, c.store.Snapshot()); err != nil {
		log.Printf("[chat] failed to persist workspace for owner=%s: %v", c.owner, err)
	}
}

// DescribeError turns an ask failure into the text shown as the bot reply.
func DescribeError(err error) string {
	const prefix = "Failed to get response from AI service: "

	var answerErr *answer.Error
	switch {
	case errors.Is(err, answer.ErrInvalidInput):
		return prefix + "the question was empty."
	case errors.Is(err, answer.ErrBackendUnavailable):
		return prefix + "the answer service could not be reached. Please try again."
	case errors.Is(err, answer.ErrBackendRejected):
		if errors.As(err, &answerErr) && answerErr.Message != "" {
			return prefix + "the answer service declined the question (" + answerErr.Message + ")."
		}
		return prefix + "the answer service declined the question."
	case errors.Is(err, answer.ErrBackendError):
		if errors.As(err, &answerErr) && answerErr.Status != 0 {
			return fmt.Sprintf("%sthe answer service responded with status %d.", prefix, answerErr.Status)
		}
		return prefix + "the answer service returned an unexpected response."
	default:
		return prefix + err.Error()
	}
}

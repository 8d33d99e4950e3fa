package chat

import (
	"context"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/zhouzirui/rag-chat/backend/internal/model/chat"
	chatService "github.com/zhouzirui/rag-chat/backend/internal/service/chat"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	writeWait  = 10 * time.Second
)

type inboundMessage struct {
	Type       string           `json:"type"`
	Text       string           `json:"text,omitempty"`
	Attachment *chat.Attachment `json:"attachment,omitempty"`
	SessionID  string           `json:"sessionId,omitempty"`
}

type outgoingMessage struct {
	Type      string      `json:"type"`
	SessionID string      `json:"sessionId,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// wsConn 串行化同一连接上的写操作，回复在后台协程中写出
type wsConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (c *wsConn) send(msg outgoingMessage) {
	msg.Timestamp = time.Now().Unix()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteJSON(msg); err != nil {
		log.Printf("[ws] write %s failed: %v", msg.Type, err)
	}
}

func (c *wsConn) sendError(message string) {
	c.send(outgoingMessage{Type: "error", Data: map[string]string{"message": message}})
}

func (c *wsConn) ping() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// handleWebSocket 处理WebSocket连接
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conv, ok := h.conversation(w, r)
	if !ok {
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[ws] upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Replies still being fetched are written before the socket closes.
	var inflight sync.WaitGroup
	defer inflight.Wait()

	c := &wsConn{conn: conn}

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go h.pingLoop(ctx, c)

	c.send(outgoingMessage{Type: "sessions", Data: listSessions(conv.Store())})

	for {
		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[ws] read error: %v", err)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))

		h.handleMessage(ctx, c, conv, &msg, &inflight)
	}
}

func (h *Handler) handleMessage(ctx context.Context, c *wsConn, conv *chatService.Conversation, msg *inboundMessage, inflight *sync.WaitGroup) {
	switch msg.Type {
	case "send":
		pending, err := conv.Begin(ctx, msg.Text, msg.Attachment)
		if err != nil {
			c.sendError(err.Error())
			return
		}
		c.send(outgoingMessage{Type: "user", SessionID: pending.Session.ID, Data: pending.User})

		inflight.Add(1)
		go func() {
			defer inflight.Done()
			turn, err := conv.Complete(ctx, pending)
			if err != nil {
				c.sendError(err.Error())
				return
			}
			c.send(outgoingMessage{Type: "bot", SessionID: turn.Session.ID, Data: turn.Bot})
			c.send(outgoingMessage{Type: "sessions", Data: listSessions(conv.Store())})
		}()
	case "select":
		if err := conv.Select(ctx, msg.SessionID); err != nil {
			if errors.Is(err, chatService.ErrSessionNotFound) {
				c.sendError("session not found: " + msg.SessionID)
				return
			}
			c.sendError(err.Error())
			return
		}
		c.send(outgoingMessage{Type: "sessions", Data: listSessions(conv.Store())})
	case "new":
		conv.New(ctx)
		c.send(outgoingMessage{Type: "sessions", Data: listSessions(conv.Store())})
	case "list":
		c.send(outgoingMessage{Type: "sessions", Data: listSessions(conv.Store())})
	default:
		c.sendError("unsupported message type: " + msg.Type)
	}
}

// pingLoop 定期发送ping消息
func (h *Handler) pingLoop(ctx context.Context, c *wsConn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.ping(); err != nil {
				return
			}
		}
	}
}

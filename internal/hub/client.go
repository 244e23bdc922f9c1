package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"nhooyr.io/websocket"

	"github.com/user/ptyhub/internal/session"
)

const (
	maxMessageSize = 1 << 20
	pingInterval   = 30 * time.Second
)

// Client is one viewer connection.
type Client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	hub  *Hub
	// subs is owned by the hub's reactor and guarded by hub.mu.
	subs map[string]struct{}
}

func newClient(conn *websocket.Conn, hub *Hub) *Client {
	return &Client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, hub.sendBuffer),
		hub:  hub,
		subs: make(map[string]struct{}),
	}
}

func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.hub.unregisterClient(c)
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	c.conn.SetReadLimit(maxMessageSize)

	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway && ctx.Err() == nil {
				slog.Debug("viewer read failed", "conn", c.id, "error", err)
			}
			return
		}
		c.handle(data)
	}
}

func (c *Client) handle(data []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.sendError(fmt.Sprintf("JSON parse error: %v", err))
		return
	}

	switch msg.Type {
	case TypeSubscribe:
		if _, ok := c.hub.sessions.Get(msg.SessionID); !ok {
			c.sendError(notFoundMessage(msg.SessionID))
			return
		}
		c.hub.subscribe(c, msg.SessionID, SubscriptionMessage{Type: TypeSubscribed, SessionID: msg.SessionID})

	case TypeUnsubscribe:
		c.hub.unsubscribe(c, msg.SessionID)

	case TypeSessionList:
		sessions := c.hub.sessions.List()
		if sessions == nil {
			sessions = []session.Info{}
		}
		c.hub.reply(c, SessionListMessage{Type: TypeSessionList, Sessions: sessions})

	case TypeSpawn:
		var ready func(session.Info)
		if msg.Subscribe {
			ready = func(info session.Info) { c.hub.subscribe(c, info.ID, nil) }
		}
		if _, err := c.hub.sessions.SpawnWith(msg.SpawnOptions, ready); err != nil {
			if errors.Is(err, session.ErrInvalidInput) {
				c.sendError("Command is required")
				return
			}
			c.sendError(fmt.Sprintf("Failed to spawn session: %v", err))
		}

	case TypeInput:
		if msg.Data == nil {
			c.sendError("Data field is required and must be a string")
			return
		}
		if !c.hub.sessions.Write(msg.SessionID, *msg.Data) {
			c.sendError(notFoundMessage(msg.SessionID))
		}

	case TypeReadRaw:
		raw, ok := c.hub.sessions.RawBuffer(msg.SessionID)
		if !ok {
			c.sendError(notFoundMessage(msg.SessionID))
			return
		}
		c.hub.reply(c, ReadRawResponseMessage{Type: TypeReadRawResponse, SessionID: msg.SessionID, RawData: raw.Raw})

	default:
		c.sendError(fmt.Sprintf("Unknown message type %s", msg.Type))
	}
}

func (c *Client) sendError(message string) {
	c.hub.reply(c, newErrorMessage(message))
}

func notFoundMessage(id string) string {
	return fmt.Sprintf("Session %s not found", id)
}

func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.conn.Ping(ctx); err != nil {
				return
			}
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.Write(ctx, websocket.MessageText, msg); err != nil {
				return
			}
		}
	}
}

package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"whiteboard/internal/config"
	"whiteboard/internal/models"
	"whiteboard/internal/session"
	"whiteboard/pkg/logger"

	"github.com/gorilla/websocket"
)

const joinTimeout = 10 * time.Second

// Client is the server side of one websocket connection. It satisfies
// session.Peer.
type Client struct {
	router    *Router
	conn      *websocket.Conn
	send      chan []byte
	sessionID string
	identity  string
	cfg       config.RealtimeConfig

	mu     sync.Mutex
	closed bool
}

func NewClient(router *Router, conn *websocket.Conn, identity string, cfg config.RealtimeConfig) *Client {
	return &Client{
		router:    router,
		conn:      conn,
		send:      make(chan []byte, cfg.SendBuffer),
		sessionID: session.NewSessionID(),
		identity:  identity,
		cfg:       cfg,
	}
}

func (c *Client) ID() string { return c.sessionID }

func (c *Client) Identity() string { return c.identity }

// Send enqueues msg for the write pump. When the buffer is full the
// connection is closed; the peer resyncs from a snapshot on reconnect.
func (c *Client) Send(msg []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		logger.Warn("Send buffer full for session %s, closing connection", c.sessionID)
		c.closed = true
		close(c.send)
		return false
	}
}

func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// Welcome tells the peer its session id, identity and reconnect token.
func (c *Client) Welcome(token string) {
	c.reply(models.Event{
		Type:     models.EventWelcome,
		Session:  c.sessionID,
		Identity: c.identity,
		Token:    token,
	})
}

// Join puts the client into roomID as if it had sent a join event.
func (c *Client) Join(roomID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), joinTimeout)
	defer cancel()
	_, err := c.router.OnJoin(ctx, c.sessionID, roomID)
	return err
}

func (c *Client) ReadPump() {
	defer func() {
		c.router.OnDisconnect(c.sessionID)
		c.closeSend()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.cfg.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Error("WebSocket error: %v", err)
			}
			break
		}

		var ev models.Event
		if err := json.Unmarshal(message, &ev); err != nil {
			c.reply(models.ErrorEvent("", fmt.Errorf("%w: %v", models.ErrInvalidEvent, err)))
			continue
		}
		c.dispatch(ev)
	}
}

func (c *Client) dispatch(ev models.Event) {
	var err error
	switch ev.Type {
	case models.EventJoin:
		if err = ev.Validate(); err == nil {
			err = c.Join(ev.Room)
		}
	case models.EventLeave:
		c.router.OnLeave(c.sessionID)
	case models.EventClear:
		err = c.router.OnClearRequest(c.sessionID, ev.Room)
	default:
		err = c.router.OnDrawEvent(c.sessionID, ev)
	}

	switch {
	case err == nil:
	case errors.Is(err, models.ErrRoomMismatch):
		// stale event from a room the session already left
		logger.Debug("Dropped %s from session %s: %v", ev.Type, c.sessionID, err)
	default:
		logger.Warn("Rejected %s from session %s: %v", ev.Type, c.sessionID, err)
		c.reply(models.ErrorEvent(ev.Room, err))
	}
}

func (c *Client) reply(ev models.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		logger.Error("Error marshaling %s reply: %v", ev.Type, err)
		return
	}
	c.Send(data)
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(c.cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				logger.Error("Write error: %v", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

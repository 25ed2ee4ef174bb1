// Package client is a Go participant for the whiteboard server. It keeps a
// reconciled replica of one room and relays local edits over a websocket.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"whiteboard/internal/models"
	"whiteboard/internal/reconciler"
	"whiteboard/pkg/logger"

	"github.com/gorilla/websocket"
)

var (
	ErrOffline      = errors.New("client is offline")
	ErrBackpressure = errors.New("outbound buffer full")
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	writeWait               = 10 * time.Second
	outboundBuffer          = 256
)

type Option func(*Client)

// WithToken reuses a participant token from an earlier session.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

func WithUndoDepth(depth int) Option {
	return func(c *Client) { c.undoDepth = depth }
}

func WithDialer(d *websocket.Dialer) Option {
	return func(c *Client) { c.dialer = d }
}

type Client struct {
	serverURL string
	room      string
	dialer    *websocket.Dialer
	undoDepth int
	replica   *reconciler.Reconciler

	mu        sync.Mutex
	link      *link
	sessionID string
	identity  string
	token     string
}

// Dial connects to serverURL, joins roomID and returns once the welcome and
// the room snapshot have been received.
func Dial(ctx context.Context, serverURL, roomID string, opts ...Option) (*Client, error) {
	c := &Client{
		serverURL: serverURL,
		room:      roomID,
		dialer:    websocket.DefaultDialer,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.replica = reconciler.New(roomID, "", c.undoDepth, offline)

	if err := c.connect(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func offline(models.Event) error { return ErrOffline }

// Replica is the local view. Edits made through it are sent to the room.
func (c *Client) Replica() *reconciler.Reconciler { return c.replica }

func (c *Client) Room() string { return c.room }

func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

func (c *Client) Identity() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identity
}

func (c *Client) Token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

func (c *Client) Online() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.link != nil && !c.link.closed()
}

// Close goes offline. Later local edits stay in the replica and are
// discarded by the snapshot on Reconnect.
func (c *Client) Close() error {
	c.mu.Lock()
	l := c.link
	c.link = nil
	c.mu.Unlock()

	c.replica.SetSender(offline)
	if l == nil {
		return nil
	}
	l.close()
	l.wg.Wait()
	return nil
}

// Reconnect opens a new connection with the stored token, so the
// participant keeps its identity, and replaces the replica with the
// server's snapshot.
func (c *Client) Reconnect(ctx context.Context) error {
	c.Close()
	return c.connect(ctx)
}

func (c *Client) endpoint() (string, error) {
	u, err := url.Parse(c.serverURL)
	if err != nil {
		return "", fmt.Errorf("invalid server url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"

	q := url.Values{}
	q.Set("room", c.room)
	c.mu.Lock()
	if c.token != "" {
		q.Set("token", c.token)
	}
	c.mu.Unlock()
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *Client) connect(ctx context.Context) error {
	endpoint, err := c.endpoint()
	if err != nil {
		return err
	}

	conn, _, err := c.dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", endpoint, err)
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(defaultHandshakeTimeout)
	}
	conn.SetReadDeadline(deadline)

	welcome, snap, err := handshake(conn)
	if err != nil {
		conn.Close()
		return err
	}
	conn.SetReadDeadline(time.Time{})

	c.mu.Lock()
	c.sessionID = welcome.Session
	c.identity = welcome.Identity
	if welcome.Token != "" {
		c.token = welcome.Token
	}
	c.mu.Unlock()

	c.replica.SetIdentity(welcome.Identity)
	if err := c.replica.ApplyRemote(snap); err != nil {
		conn.Close()
		return err
	}

	l := newLink(conn)
	c.mu.Lock()
	c.link = l
	c.mu.Unlock()
	c.replica.SetSender(l.send)

	l.wg.Add(2)
	go l.writeLoop()
	go c.readLoop(l)

	logger.Debug("Session %s connected to room %s as %s", welcome.Session, c.room, welcome.Identity)
	return nil
}

// handshake reads until the welcome and the first snapshot have arrived.
// Room events before the snapshot are already contained in it.
func handshake(conn *websocket.Conn) (welcome, snap models.Event, err error) {
	for {
		var ev models.Event
		if err := conn.ReadJSON(&ev); err != nil {
			return welcome, snap, fmt.Errorf("handshake: %w", err)
		}
		switch ev.Type {
		case models.EventWelcome:
			welcome = ev
		case models.EventSnapshot:
			if welcome.Type == "" {
				return welcome, snap, errors.New("handshake: snapshot before welcome")
			}
			return welcome, ev, nil
		case models.EventError:
			return welcome, snap, fmt.Errorf("handshake: server error: %s", ev.Message)
		case models.EventRoomClosed:
			return welcome, snap, fmt.Errorf("handshake: %w", models.ErrRoomNotFound)
		}
	}
}

func (c *Client) readLoop(l *link) {
	defer func() {
		l.close()
		c.mu.Lock()
		if c.link == l {
			c.link = nil
			c.replica.SetSender(offline)
		}
		c.mu.Unlock()
		l.wg.Done()
	}()

	for {
		_, msg, err := l.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) && !l.closed() {
				logger.Warn("Connection to room %s lost: %v", c.room, err)
			}
			return
		}

		var ev models.Event
		if err := json.Unmarshal(msg, &ev); err != nil {
			logger.Warn("Malformed event from server: %v", err)
			continue
		}
		if ev.Type == models.EventError {
			logger.Warn("Server rejected an edit: %s", ev.Message)
			continue
		}
		if err := c.replica.ApplyRemote(ev); err != nil {
			logger.Warn("Could not apply %s from %s: %v", ev.Type, ev.Sender, err)
		}
	}
}

// link is one websocket connection and its writer goroutine.
type link struct {
	conn *websocket.Conn
	out  chan []byte
	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

func newLink(conn *websocket.Conn) *link {
	return &link{
		conn: conn,
		out:  make(chan []byte, outboundBuffer),
		done: make(chan struct{}),
	}
}

func (l *link) closed() bool {
	select {
	case <-l.done:
		return true
	default:
		return false
	}
}

func (l *link) send(ev models.Event) error {
	if l.closed() {
		return ErrOffline
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	select {
	case l.out <- data:
		return nil
	default:
		return ErrBackpressure
	}
}

func (l *link) writeLoop() {
	defer l.wg.Done()
	for {
		select {
		case data := <-l.out:
			l.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := l.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				l.shutdown()
				return
			}
		case <-l.done:
			return
		}
	}
}

func (l *link) shutdown() {
	l.once.Do(func() {
		close(l.done)
		l.conn.Close()
	})
}

// close sends a close frame and tears the connection down.
func (l *link) close() {
	if !l.closed() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		l.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	}
	l.shutdown()
}

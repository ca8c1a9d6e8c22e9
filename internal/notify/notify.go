// Package notify maintains the live websocket channel to the backend and keeps
// the query cache consistent with the task lifecycle events it delivers.
//
// Every valid message is written to the cache under ("notifications", id) and
// its id appended to an ordered list. A successful analyze_playlist task also
// invalidates ("browser", "playlists", playlist_id) so open views refetch.
package notify

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tunedeck/internal/models"
	"github.com/desertthunder/tunedeck/internal/querycache"
	"github.com/desertthunder/tunedeck/internal/shared"
	"github.com/gorilla/websocket"
)

// Path is the notification endpoint on the backend origin.
const Path = "/ws/notifications"

// IDsKey is the cache key of the ordered notification id list. It lives
// outside the "notifications" namespace so no server-assigned id can collide
// with it.
var IDsKey = querycache.NewKey("notification-ids")

// NotificationKey is the cache key of one received message.
func NotificationKey(id string) querycache.Key {
	return querycache.NewKey("notifications", id)
}

// PlaylistKey is the cache key prefix of everything shown for one playlist.
func PlaylistKey(id string) querycache.Key {
	return querycache.NewKey("browser", "playlists", id)
}

// NotificationURL derives the websocket endpoint from an http(s) origin.
func NotificationURL(origin string) (string, error) {
	u, err := url.Parse(origin)
	if err != nil {
		return "", fmt.Errorf("%w: invalid origin %q: %v", shared.ErrInvalidConfig, origin, err)
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("%w: origin %q must be http or https", shared.ErrInvalidConfig, origin)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: origin %q has no host", shared.ErrInvalidConfig, origin)
	}

	u.Path = strings.TrimRight(u.Path, "/") + Path
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}

// Channel is one live connection to the notification endpoint.
type Channel struct {
	url    string
	cache  *querycache.Cache
	dialer *websocket.Dialer
	header http.Header
	logger *log.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	ids       []string
	subs      map[int]chan models.Message
	nextSub   int
	closed    bool
	ready     chan struct{}
	readyOnce sync.Once
}

// Option configures a [Channel].
type Option func(*Channel)

// WithDialer replaces [websocket.DefaultDialer].
func WithDialer(d *websocket.Dialer) Option {
	return func(c *Channel) { c.dialer = d }
}

// WithHeader sets headers sent with the upgrade request.
func WithHeader(h http.Header) Option {
	return func(c *Channel) { c.header = h }
}

// WithLogger sets the channel logger.
func WithLogger(l *log.Logger) Option {
	return func(c *Channel) { c.logger = l }
}

// New creates a channel for the backend at origin. Nothing is dialed until [Channel.Connect].
func New(origin string, cache *querycache.Cache, opts ...Option) (*Channel, error) {
	if cache == nil {
		return nil, fmt.Errorf("%w: query cache is required", shared.ErrInvalidConfig)
	}

	endpoint, err := NotificationURL(origin)
	if err != nil {
		return nil, err
	}

	c := &Channel{
		url:    endpoint,
		cache:  cache,
		dialer: websocket.DefaultDialer,
		subs:   make(map[int]chan models.Message),
		ready:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = shared.NewLogger(nil)
	}
	return c, nil
}

// URL returns the websocket endpoint.
func (c *Channel) URL() string { return c.url }

// Connect opens the connection. It may succeed at most once per Channel.
func (c *Channel) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return shared.ErrChannelClosed
	}
	if c.conn != nil {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	conn, resp, err := c.dialer.DialContext(ctx, c.url, c.header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("failed to connect to %s: %s: %w", c.url, resp.Status, err)
		}
		return fmt.Errorf("failed to connect to %s: %w", c.url, err)
	}

	c.mu.Lock()
	if c.closed || c.conn != nil {
		c.mu.Unlock()
		conn.Close()
		if c.closed {
			return shared.ErrChannelClosed
		}
		return nil
	}
	c.conn = conn
	c.mu.Unlock()

	c.readyOnce.Do(func() { close(c.ready) })
	c.logger.Debug("notification channel ready", "url", c.url)
	return nil
}

// Ready is closed once the connection is open.
func (c *Channel) Ready() <-chan struct{} { return c.ready }

// Listen reads frames until the connection drops, ctx is cancelled or the
// channel is closed. A dropped connection is not redialed.
func (c *Channel) Listen(ctx context.Context) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("%w: not connected", shared.ErrChannelClosed)
	}

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if c.isClosed() {
				return nil
			}
			c.logger.Warn("notification channel dropped", "url", c.url, "error", err)
			return fmt.Errorf("%w: %v", shared.ErrChannelClosed, err)
		}
		c.HandleMessage(data)
	}
}

// HandleMessage applies one raw frame to the cache. Malformed frames are
// logged and dropped.
func (c *Channel) HandleMessage(raw []byte) {
	msg, err := models.ParseMessage(raw)
	if err != nil {
		c.logger.Warn("dropping notification", "error", err)
		return
	}

	n := msg.Notification
	c.cache.Set(NotificationKey(n.ID), *msg)

	c.mu.Lock()
	c.ids = append(c.ids, n.ID)
	ids := append([]string(nil), c.ids...)
	c.mu.Unlock()

	c.cache.Set(IDsKey, ids)

	if shouldInvalidate(n) {
		key := PlaylistKey(n.Extras.PlaylistID())
		count := c.cache.Invalidate(key)
		c.logger.Debug("invalidated playlist after analysis", "playlist_id", n.Extras.PlaylistID(), "entries", count)
	}

	c.logger.Debug("notification received", "id", n.ID, "task_id", n.TaskID, "status", n.TaskStatus)

	c.mu.Lock()
	for _, ch := range c.subs {
		sendMessage(ch, *msg)
	}
	c.mu.Unlock()
}

func shouldInvalidate(n *models.Notification) bool {
	return n.Extras.TaskType() == models.TaskTypeAnalyzePlaylist &&
		n.Extras.PlaylistID() != "" &&
		n.TaskStatus == models.StatusSuccess
}

// IDs returns the received notification ids in arrival order. Ids received
// more than once appear more than once.
func (c *Channel) IDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.ids...)
}

// IDsQuery is the derived query over [Channel.IDs]. It is enabled only once
// at least one id has been received.
func (c *Channel) IDsQuery() querycache.Query {
	return querycache.Query{
		Key:     IDsKey,
		Enabled: len(c.IDs()) > 0,
		Fn: func(context.Context) (any, error) {
			return c.IDs(), nil
		},
	}
}

// Subscribe delivers every valid message received after the call. Slow
// subscribers miss messages. The channel is closed by cancel or [Channel.Close].
func (c *Channel) Subscribe() (<-chan models.Message, func()) {
	ch := make(chan models.Message, 64)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	c.mu.Unlock()

	return ch, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if sub, ok := c.subs[id]; ok {
			delete(c.subs, id)
			close(sub)
		}
	}
}

// Close tears the connection down. It is safe to call more than once.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	for id, ch := range c.subs {
		delete(c.subs, id)
		close(ch)
	}
	c.mu.Unlock()

	if conn == nil {
		return nil
	}

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = conn.WriteMessage(websocket.CloseMessage, msg)
	if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}

func (c *Channel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// sendMessage delivers without blocking the read loop.
func sendMessage(ch chan<- models.Message, msg models.Message) {
	select {
	case ch <- msg:
	default:
	}
}

package channel

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"smajobb/internal/app/dto"
	"smajobb/internal/domain/chat"
)

const maxBackoffUnits = 12

// Handler receives every decoded message at least once. Duplicates are the
// receiver's problem; Thread dedups by id.
type Handler func(chat.Message)

// wsConn is the slice of *websocket.Conn the client needs. Tests substitute
// scripted connections through DialFunc.
type wsConn interface {
	ReadMessage() (int, []byte, error)
	Close() error
}

type DialFunc func(rawURL string, header http.Header) (wsConn, error)

func gorillaDial(rawURL string, header http.Header) (wsConn, error) {
	conn, _, err := websocket.DefaultDialer.Dial(rawURL, header)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Client maintains one realtime connection per conversation. Connect is
// idempotent for the same conversation and switches cleanly for a different
// one; Disconnect suppresses any further automatic reconnect.
type Client struct {
	BaseURL string
	Token   string
	Handler Handler
	Logger  *slog.Logger

	// Unit scales backoff delays; production leaves it at one second.
	Unit time.Duration
	Dial DialFunc

	mu             sync.Mutex
	conversationID string
	conn           wsConn
	generation     uint64
	attempt        int
	retryTimer     *time.Timer
	active         bool
}

func New(baseURL, token string, handler Handler, logger *slog.Logger) *Client {
	return &Client{
		BaseURL: baseURL,
		Token:   token,
		Handler: handler,
		Logger:  logger,
		Unit:    time.Second,
		Dial:    gorillaDial,
	}
}

// Connect attaches to the conversation's channel. Calling it again with the
// same id while attached (or retrying) is a no-op; a different id tears the
// old attachment down first. The retry counter starts fresh either way.
func (c *Client) Connect(conversationID string) {
	c.mu.Lock()
	if c.active && c.conversationID == conversationID {
		c.mu.Unlock()
		return
	}
	c.teardownLocked()
	c.conversationID = conversationID
	c.active = true
	c.attempt = 0
	gen := c.generation
	c.mu.Unlock()

	go c.dial(gen)
}

// Disconnect closes the connection and cancels any pending retry. Safe to
// call repeatedly and while disconnected.
func (c *Client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active = false
	c.teardownLocked()
}

// Connected reports whether a live connection is currently attached.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// teardownLocked invalidates the current generation so in-flight dials,
// read loops and timers all become stale.
func (c *Client) teardownLocked() {
	c.generation++
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

func (c *Client) dial(gen uint64) {
	c.mu.Lock()
	if gen != c.generation || !c.active {
		c.mu.Unlock()
		return
	}
	rawURL := c.channelURL(c.conversationID)
	dial := c.Dial
	c.mu.Unlock()

	conn, err := dial(rawURL, nil)

	c.mu.Lock()
	if gen != c.generation || !c.active {
		c.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return
	}
	if err != nil {
		c.scheduleReconnectLocked(gen)
		c.mu.Unlock()
		if c.Logger != nil {
			c.Logger.Debug("channel dial failed", "error", err)
		}
		return
	}
	c.conn = conn
	c.mu.Unlock()

	go c.readLoop(conn, gen)
}

// readLoop delivers frames until the connection dies, then hands control to
// the reconnect path unless the client was detached meanwhile.
func (c *Client) readLoop(conn wsConn, gen uint64) {
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			break
		}
		var envelope dto.ChannelEnvelope
		if jsonErr := json.Unmarshal(payload, &envelope); jsonErr != nil {
			continue
		}
		if envelope.Message.ID == 0 {
			continue
		}
		if c.Handler != nil {
			c.Handler(envelope.Message.ToDomain())
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation || !c.active {
		return
	}
	c.conn = nil
	c.scheduleReconnectLocked(gen)
}

func (c *Client) scheduleReconnectLocked(gen uint64) {
	c.attempt++
	delay := backoffDelay(c.attempt, c.Unit)
	c.retryTimer = time.AfterFunc(delay, func() {
		c.mu.Lock()
		stale := gen != c.generation || !c.active
		c.mu.Unlock()
		if stale {
			return
		}
		c.dial(gen)
	})
}

// backoffDelay doubles per attempt and caps at twelve units:
// 2, 4, 8, 12, 12, ...
func backoffDelay(attempt int, unit time.Duration) time.Duration {
	units := int64(1) << uint(attempt)
	if attempt > 3 || units > maxBackoffUnits {
		units = maxBackoffUnits
	}
	return time.Duration(units) * unit
}

func (c *Client) channelURL(conversationID string) string {
	u := c.BaseURL + "/ws/conversations/" + url.PathEscape(conversationID)
	if c.Token != "" {
		u += "?token=" + url.QueryEscape(c.Token)
	}
	return u
}

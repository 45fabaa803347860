package websocket

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"counsel-chat-be/internal/dto"
	"counsel-chat-be/internal/pkg/logger"

	"github.com/gofiber/websocket/v2"
)

var (
	ErrSendBufferFull = errors.New("send buffer full")
	ErrClientClosed   = errors.New("client closed")
)

type ClientConfig struct {
	SendBufferSize int
	MaxMessageSize int64
	PongWait       time.Duration
	WriteWait      time.Duration
}

func (c ClientConfig) pingPeriod() time.Duration {
	return (c.PongWait * 9) / 10
}

// Client is a middleman between the websocket connection and the gateway. It
// implements presence.Conn.
type Client struct {
	id     string
	conn   *websocket.Conn
	cfg    ClientConfig
	logger logger.ILogger

	// Buffered channel of outbound frames, closed exactly once by Close.
	send   chan []byte
	mu     sync.Mutex
	closed bool
}

func NewClient(id string, conn *websocket.Conn, cfg ClientConfig, log logger.ILogger) *Client {
	return &Client{
		id:     id,
		conn:   conn,
		cfg:    cfg,
		logger: log,
		send:   make(chan []byte, cfg.SendBufferSize),
	}
}

func (c *Client) ID() string {
	return c.id
}

// Push queues env for the write pump. A client that cannot keep up is closed rather
// than allowed to stall the sender.
func (c *Client) Push(env dto.WsEnvelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClientClosed
	}
	select {
	case c.send <- data:
		return nil
	default:
		c.logger.Warn("WS_CLIENT", "Send buffer full, closing client", map[string]interface{}{"conn_id": c.id})
		c.closeLocked()
		return ErrSendBufferFull
	}
}

func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
}

func (c *Client) closeLocked() {
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// readPump pumps frames from the websocket connection to handle until the connection
// fails or times out.
func (c *Client) readPump(handle func(raw []byte)) {
	c.conn.SetReadLimit(c.cfg.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.logger.Warn("WS_CLIENT", "Unexpected close", map[string]interface{}{"conn_id": c.id, "error": err.Error()})
			}
			return
		}
		handle(message)
	}
}

// writePump pumps frames from the send buffer to the websocket connection, one
// envelope per frame.
func (c *Client) writePump() {
	ticker := time.NewTicker(c.cfg.pingPeriod())
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if !ok {
				// The client was closed.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Debug("WS_CLIENT", "Write failed", map[string]interface{}{"conn_id": c.id, "error": err.Error()})
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Debug("WS_CLIENT", "Ping failed", map[string]interface{}{"conn_id": c.id, "error": err.Error()})
				return
			}
		}
	}
}

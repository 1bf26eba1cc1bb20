package chat

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"VoiceGate/logger"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var (
	ErrClientClosed = errors.New("client closed")
	ErrQueueFull    = errors.New("send queue full")
)

// ClientOptions tunes one websocket connection.
type ClientOptions struct {
	SendQueueSize int
	WriteTimeout  time.Duration
	PongWait      time.Duration
}

func (o *ClientOptions) norm() {
	if o.SendQueueSize <= 0 {
		o.SendQueueSize = 64
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 5 * time.Second
	}
	if o.PongWait <= 0 {
		o.PongWait = 60 * time.Second
	}
}

// pingPeriod must be shorter than PongWait.
func (o ClientOptions) pingPeriod() time.Duration { return o.PongWait * 9 / 10 }

type outbound struct {
	data []byte
	done chan error // nil for fire-and-forget
}

// WsClient is the Handle for one websocket connection. All writes go through a
// single writer goroutine (writePump), as gorilla/websocket allows one writer.
type WsClient struct {
	ClientID string

	ws   *websocket.Conn
	opts ClientOptions
	send chan outbound

	closeOnce sync.Once
	closed    chan struct{}
}

func NewWsClient(clientID string, ws *websocket.Conn, opts ClientOptions) *WsClient {
	opts.norm()
	return &WsClient{
		ClientID: clientID,
		ws:       ws,
		opts:     opts,
		send:     make(chan outbound, opts.SendQueueSize),
		closed:   make(chan struct{}),
	}
}

// SendJSON queues v and waits until the writer has put it on the wire.
func (c *WsClient) SendJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	ob := outbound{data: data, done: make(chan error, 1)}
	if err := c.enqueue(ob); err != nil {
		return err
	}
	select {
	case err := <-ob.done:
		return err
	case <-c.closed:
		select {
		case err := <-ob.done:
			return err
		default:
			return ErrClientClosed
		}
	}
}

// Post queues v without waiting for the write. Used for session replies so the
// read loop never blocks on its own writer.
func (c *WsClient) Post(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.enqueue(outbound{data: data})
}

func (c *WsClient) enqueue(ob outbound) error {
	select {
	case <-c.closed:
		return ErrClientClosed
	default:
	}
	select {
	case c.send <- ob:
		return nil
	case <-c.closed:
		return ErrClientClosed
	default:
		return ErrQueueFull
	}
}

// Close sends a close frame and closes the socket. Safe to call repeatedly.
func (c *WsClient) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(c.opts.WriteTimeout))
		err = c.ws.Close()
	})
	return err
}

func (c *WsClient) Done() <-chan struct{} { return c.closed }

// writePump drains the send queue and keeps the peer alive with pings.
// A write error closes the client, which ends the read loop too.
func (c *WsClient) writePump() {
	ticker := time.NewTicker(c.opts.pingPeriod())
	defer ticker.Stop()

	for {
		select {
		case ob := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
			err := c.ws.WriteMessage(websocket.TextMessage, ob.data)
			if ob.done != nil {
				ob.done <- err
			}
			if err != nil {
				logger.Info("[WS] write failed", zap.String("clientId", c.ClientID), zap.Error(err))
				_ = c.Close()
				c.failPending()
				return
			}
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.opts.WriteTimeout)); err != nil {
				logger.Debug("[WS] ping failed", zap.String("clientId", c.ClientID), zap.Error(err))
				_ = c.Close()
				c.failPending()
				return
			}
		case <-c.closed:
			c.failPending()
			return
		}
	}
}

func (c *WsClient) failPending() {
	for {
		select {
		case ob := <-c.send:
			if ob.done != nil {
				ob.done <- ErrClientClosed
			}
		default:
			return
		}
	}
}

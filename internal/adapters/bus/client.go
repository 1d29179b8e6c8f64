// Package bus is the websocket client for the signaling message bus. It owns
// dialing, read/write pumps and reconnection; the engine only sees envelopes
// and up/down transitions.
package bus

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/signal"
)

const (
	writeTimeout         = 5 * time.Second
	initialRedialBackoff = 500 * time.Millisecond
	maxRedialBackoff     = 30 * time.Second
	sendQueueSize        = 64
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrNotConnected = errors.New("bus not connected")
)

type Client struct {
	url    string
	dialer *websocket.Dialer

	events chan signal.Envelope
	states chan core.BusState

	mu     sync.RWMutex
	send   chan []byte // nil while disconnected
	closed bool
}

func NewClient(url string) *Client {
	return &Client{
		url:    url,
		dialer: websocket.DefaultDialer,
		events: make(chan signal.Envelope, sendQueueSize),
		states: make(chan core.BusState, 4),
	}
}

func (c *Client) Events() <-chan signal.Envelope { return c.events }
func (c *Client) States() <-chan core.BusState   { return c.states }

func (c *Client) Publish(event string, payload any) error {
	frame, err := signal.Encode(event, payload)
	if err != nil {
		return err
	}
	c.mu.RLock()
	send := c.send
	c.mu.RUnlock()
	if send == nil {
		return ErrNotConnected
	}
	select {
	case send <- frame:
		return nil
	default:
		return ErrBackpressure
	}
}

func (c *Client) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

// Run dials and redials until ctx is canceled. Blocking; run in a goroutine.
func (c *Client) Run(ctx context.Context) {
	backoff := initialRedialBackoff
	for {
		if ctx.Err() != nil || c.isClosed() {
			return
		}
		conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
		if err != nil {
			log.Warn().Err(err).Str("module", "bus").Dur("retry_in", backoff).Msg("dial failed")
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, maxRedialBackoff)
			continue
		}
		backoff = initialRedialBackoff
		log.Info().Str("module", "bus").Str("url", c.url).Msg("connected")
		c.runConn(ctx, conn)
		if ctx.Err() == nil && !c.isClosed() {
			c.notify(core.BusDown)
		}
	}
}

func (c *Client) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// runConn services one connection until either pump dies.
func (c *Client) runConn(ctx context.Context, conn *websocket.Conn) {
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer conn.Close()

	send := make(chan []byte, sendQueueSize)
	c.mu.Lock()
	c.send = send
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.send = nil
		c.mu.Unlock()
	}()

	c.notify(core.BusUp)

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.readPump(connCtx, conn)
		// A dead read side must take the write pump down with it, or the
		// redial loop never runs.
		cancel()
	}()
	c.writePump(connCtx, conn, send)
	<-done
}

func (c *Client) writePump(ctx context.Context, conn *websocket.Conn, send chan []byte) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame := <-send:
			if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
				log.Error().Err(err).Str("module", "bus").Msg("writePump set deadline")
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				log.Error().Err(err).Str("module", "bus").Msg("writePump write error")
				return
			}
		}
	}
}

func (c *Client) readPump(ctx context.Context, conn *websocket.Conn) {
	defer conn.Close()
	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				log.Warn().Err(err).Str("module", "bus").Msg("readPump read error")
			}
			return
		}
		env, err := signal.Decode(frame)
		if err != nil {
			log.Error().Err(err).Str("module", "bus").Msg("bad frame")
			continue
		}
		select {
		case c.events <- env:
		case <-ctx.Done():
			return
		}
	}
}

func (c *Client) notify(s core.BusState) {
	select {
	case c.states <- s:
	default:
		log.Warn().Str("module", "bus").Msg("state channel full, dropping notice")
	}
}

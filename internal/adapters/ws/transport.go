// Package ws implements the signaling transport over a gorilla
// WebSocket connection: dial, read/write pumps, and reconnection with
// exponential backoff. Frames and connection-state changes are
// delivered on channels so the session manager stays single-threaded.
package ws

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/rmendes/huddle/internal/core"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrNotConnected = errors.New("not connected")
)

const (
	writeWait   = 5 * time.Second
	dialTimeout = 10 * time.Second
	maxBackoff  = 60 * time.Second
)

type Transport struct {
	url       string
	readLimit int64

	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.RWMutex
	conn *websocket.Conn
	send chan core.Frame

	inbound chan core.Frame
	states  chan core.ConnEvent

	reconnecting   bool
	reconnectMutex sync.Mutex
}

func NewTransport(url string, readLimit int64) *Transport {
	return &Transport{
		url:       url,
		readLimit: readLimit,
		inbound:   make(chan core.Frame, 64),
		states:    make(chan core.ConnEvent, 4),
	}
}

func (t *Transport) Inbound() <-chan core.Frame    { return t.inbound }
func (t *Transport) States() <-chan core.ConnEvent { return t.states }

// Connect dials the server. A failed first dial moves to the backoff
// loop instead of failing the caller; the session manager only reacts
// to state events anyway.
func (t *Transport) Connect(ctx context.Context) error {
	t.ctx, t.cancel = context.WithCancel(ctx)
	if err := t.connectOnce(); err != nil {
		log.Warn().Err(err).Str("module", "ws").Msg("initial dial failed, retrying in background")
		go t.reconnect()
	}
	return nil
}

func (t *Transport) connectOnce() error {
	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = dialTimeout

	conn, _, err := dialer.DialContext(t.ctx, t.url, nil)
	if err != nil {
		return err
	}
	if t.readLimit > 0 {
		conn.SetReadLimit(t.readLimit)
	}

	send := make(chan core.Frame, 32)
	t.mu.Lock()
	t.conn = conn
	t.send = send
	t.mu.Unlock()

	go t.writePump(conn, send)
	go t.readPump(conn)

	log.Info().Str("module", "ws").Str("url", t.url).Msg("connected")
	t.pushState(core.ConnEvent{State: core.ConnConnected})
	return nil
}

// Send queues one outbound frame for the write pump. The single write
// goroutine is what keeps frames from interleaving.
func (t *Transport) Send(f core.Frame) error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.conn == nil {
		return ErrNotConnected
	}
	select {
	case t.send <- f:
		return nil
	default:
		return ErrBackpressure
	}
}

func (t *Transport) writePump(conn *websocket.Conn, send <-chan core.Frame) {
	for {
		select {
		case <-t.ctx.Done():
			return
		case frame, ok := <-send:
			if !ok {
				return
			}
			if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "ws").Msg("writePump set deadline")
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				log.Error().Err(err).Str("module", "ws").Msg("writePump write error")
				return
			}
		}
	}
}

func (t *Transport) readPump(conn *websocket.Conn) {
	for {
		select {
		case <-t.ctx.Done():
			return
		default:
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			if t.ctx.Err() == nil {
				log.Warn().Err(err).Str("module", "ws").Msg("readPump read error")
				t.pushState(core.ConnEvent{State: core.ConnDisconnected, Err: err})
				go t.reconnect()
			}
			return
		}
		select {
		case t.inbound <- core.Frame(data):
		case <-t.ctx.Done():
			return
		}
	}
}

// reconnect dials until it succeeds, doubling the wait each attempt.
func (t *Transport) reconnect() {
	t.reconnectMutex.Lock()
	if t.reconnecting {
		t.reconnectMutex.Unlock()
		return
	}
	t.reconnecting = true
	t.reconnectMutex.Unlock()

	defer func() {
		t.reconnectMutex.Lock()
		t.reconnecting = false
		t.reconnectMutex.Unlock()
	}()

	t.dropConn()

	backoff := time.Second
	for attempt := 1; ; attempt++ {
		select {
		case <-t.ctx.Done():
			return
		case <-time.After(backoff):
		}
		log.Info().Str("module", "ws").Int("attempt", attempt).Msg("reconnecting")
		err := t.connectOnce()
		if err == nil {
			return
		}
		log.Warn().Err(err).Str("module", "ws").Dur("next_in", backoff).Msg("reconnect failed")
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func (t *Transport) dropConn() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn != nil {
		_ = t.conn.Close()
		t.conn = nil
	}
}

func (t *Transport) pushState(ev core.ConnEvent) {
	select {
	case t.states <- ev:
	case <-t.ctx.Done():
	}
}

func (t *Transport) Close() {
	if t.cancel != nil {
		t.cancel()
	}
	t.dropConn()
	log.Info().Str("module", "ws").Msg("transport closed")
}

package websocket

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

var (
	ErrTransportClosed = errors.New("transport closed")
	ErrSendQueueFull   = errors.New("send queue full")
)

// Close codes used by the server.
const (
	CloseNormal    = websocket.CloseNormalClosure
	CloseGoingAway = websocket.CloseGoingAway
)

// Transport is the capability a Connection needs from its duplex channel.
// Send must not block on a slow peer.
type Transport interface {
	Send(data []byte) error
	Ping() error
	Close(code int, reason string) error
	Closed() bool
}

const (
	defaultSendBuffer = 64
	defaultWriteWait  = 10 * time.Second
)

// WSTransport adapts a gorilla connection. A single writer goroutine drains
// the send queue, which keeps per-connection delivery order.
type WSTransport struct {
	conn      *websocket.Conn
	writeWait time.Duration

	mu      sync.RWMutex
	send    chan []byte
	closing bool

	closeCode   int
	closeReason string
	closeOnce   sync.Once
	broken      atomic.Bool
	done        chan struct{}
}

func NewWSTransport(conn *websocket.Conn, sendBuffer int, writeWait time.Duration) *WSTransport {
	if sendBuffer <= 0 {
		sendBuffer = defaultSendBuffer
	}
	if writeWait <= 0 {
		writeWait = defaultWriteWait
	}
	t := &WSTransport{
		conn:      conn,
		writeWait: writeWait,
		send:      make(chan []byte, sendBuffer),
		done:      make(chan struct{}),
	}
	go t.writePump()
	return t
}

func (t *WSTransport) Send(data []byte) error {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.closing || t.broken.Load() {
		return ErrTransportClosed
	}
	select {
	case t.send <- data:
		return nil
	default:
		return ErrSendQueueFull
	}
}

func (t *WSTransport) Ping() error {
	if t.Closed() {
		return ErrTransportClosed
	}
	return t.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(t.writeWait))
}

// Close flushes queued frames, sends a close frame and closes the socket.
// It is idempotent and returns once the writer has exited.
func (t *WSTransport) Close(code int, reason string) error {
	t.closeOnce.Do(func() {
		t.mu.Lock()
		t.closing = true
		t.closeCode = code
		t.closeReason = reason
		close(t.send)
		t.mu.Unlock()
	})
	<-t.done
	return nil
}

func (t *WSTransport) Closed() bool {
	if t.broken.Load() {
		return true
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.closing
}

func (t *WSTransport) writePump() {
	defer close(t.done)

	for msg := range t.send {
		if t.broken.Load() {
			continue
		}
		t.conn.SetWriteDeadline(time.Now().Add(t.writeWait))
		if err := t.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			slog.Debug("Error writing message", "error", err)
			t.broken.Store(true)
			t.conn.Close()
		}
	}

	if !t.broken.Load() {
		t.mu.RLock()
		code, reason := t.closeCode, t.closeReason
		t.mu.RUnlock()
		frame := websocket.FormatCloseMessage(code, reason)
		if err := t.conn.WriteControl(websocket.CloseMessage, frame, time.Now().Add(t.writeWait)); err != nil {
			slog.Debug("Error writing close frame", "error", err)
		}
	}
	t.conn.Close()
}

package websocket

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

var errFakeSend = errors.New("fake send failure")

// fakeTransport records everything written to it.
type fakeTransport struct {
	mu         sync.Mutex
	sent       [][]byte
	pings      int
	closes     int
	closeCode  int
	closed     bool
	failSend   bool
	failPing   bool
	pingSignal chan struct{}
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{pingSignal: make(chan struct{}, 16)}
}

func (f *fakeTransport) Send(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrTransportClosed
	}
	if f.failSend {
		return errFakeSend
	}
	f.sent = append(f.sent, data)
	return nil
}

func (f *fakeTransport) Ping() error {
	f.mu.Lock()
	f.pings++
	fail := f.failPing
	f.mu.Unlock()

	select {
	case f.pingSignal <- struct{}{}:
	default:
	}
	if fail {
		return errFakeSend
	}
	return nil
}

func (f *fakeTransport) Close(code int, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	f.closeCode = code
	f.closed = true
	return nil
}

func (f *fakeTransport) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeTransport) setFailSend(fail bool) {
	f.mu.Lock()
	f.failSend = fail
	f.mu.Unlock()
}

// markBroken simulates a peer that went away without the server closing it.
func (f *fakeTransport) markBroken() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

func (f *fakeTransport) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes
}

func (f *fakeTransport) pingCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pings
}

// messages decodes every frame sent so far.
func (f *fakeTransport) messages(t *testing.T) []map[string]interface{} {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]map[string]interface{}, 0, len(f.sent))
	for _, raw := range f.sent {
		var m map[string]interface{}
		require.NoError(t, json.Unmarshal(raw, &m))
		out = append(out, m)
	}
	return out
}

func (f *fakeTransport) types(t *testing.T) []string {
	t.Helper()
	var types []string
	for _, m := range f.messages(t) {
		types = append(types, m["type"].(string))
	}
	return types
}

func (f *fakeTransport) last(t *testing.T) map[string]interface{} {
	t.Helper()
	msgs := f.messages(t)
	require.NotEmpty(t, msgs)
	return msgs[len(msgs)-1]
}

func (f *fakeTransport) waitPing(t *testing.T) {
	t.Helper()
	select {
	case <-f.pingSignal:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for heartbeat ping")
	}
}

// newTestRegistry uses a fake clock so heartbeats only fire when advanced.
func newTestRegistry(opts ...Option) (*Registry, *clockwork.FakeClock) {
	clock := clockwork.NewFakeClock()
	all := append([]Option{WithClock(clock), WithHeartbeat(HeartbeatConfig{
		Interval:        30 * time.Second,
		Timeout:         10 * time.Second,
		JanitorInterval: 60 * time.Second,
	})}, opts...)
	return NewRegistry(all...), clock
}

package websocket

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Connection is one live duplex session plus its identity, subscription and
// liveness state. The Registry is the only writer of its channel set.
type Connection struct {
	id          string
	userID      string
	transport   Transport
	connectedAt time.Time

	mu       sync.Mutex
	channels map[string]struct{}
	alive    bool
	state    HeartbeatState

	// pong carries liveness evidence to the heartbeat loop.
	pong          chan struct{}
	stopHeartbeat context.CancelFunc
}

func newConnection(id, userID string, transport Transport, now time.Time) *Connection {
	return &Connection{
		id:          id,
		userID:      userID,
		transport:   transport,
		connectedAt: now,
		channels:    make(map[string]struct{}),
		alive:       true,
		state:       StateAwaitingProbe,
		pong:        make(chan struct{}, 1),
	}
}

func (c *Connection) ID() string {
	return c.id
}

// UserID returns the authenticated user id, or "" for anonymous connections.
func (c *Connection) UserID() string {
	return c.userID
}

func (c *Connection) Authenticated() bool {
	return c.userID != ""
}

func (c *Connection) Transport() Transport {
	return c.transport
}

// Channels returns a sorted snapshot of the subscribed channel keys.
func (c *Connection) Channels() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	channels := make([]string, 0, len(c.channels))
	for key := range c.channels {
		channels = append(channels, key)
	}
	sort.Strings(channels)
	return channels
}

func (c *Connection) addChannel(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.channels[key]; ok {
		return false
	}
	c.channels[key] = struct{}{}
	return true
}

func (c *Connection) removeChannel(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.channels[key]; !ok {
		return false
	}
	delete(c.channels, key)
	return true
}

func (c *Connection) channelKeys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]string, 0, len(c.channels))
	for key := range c.channels {
		keys = append(keys, key)
	}
	return keys
}

// HeartbeatState reports where the connection is in the probe cycle.
func (c *Connection) HeartbeatState() HeartbeatState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Connection) isAlive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.alive
}

// markAlive records liveness evidence and wakes the heartbeat loop.
func (c *Connection) markAlive() {
	c.mu.Lock()
	c.alive = true
	c.mu.Unlock()

	select {
	case c.pong <- struct{}{}:
	default:
	}
}

// beginProbe clears the alive flag for a new probe. It returns false when the
// previous probe was never answered.
func (c *Connection) beginProbe() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.alive {
		return false
	}
	c.alive = false
	c.state = StateProbeSent
	return true
}

// confirmAlive moves a probed connection to Alive if evidence arrived.
func (c *Connection) confirmAlive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.alive {
		return false
	}
	c.state = StateAlive
	return true
}

func (c *Connection) setState(s HeartbeatState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Connection) cancelHeartbeat() {
	c.mu.Lock()
	stop := c.stopHeartbeat
	c.stopHeartbeat = nil
	c.mu.Unlock()
	if stop != nil {
		stop()
	}
}

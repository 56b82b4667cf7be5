package websocket

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
)

const (
	DefaultHeartbeatInterval = 30 * time.Second
	DefaultHeartbeatTimeout  = 10 * time.Second
	DefaultJanitorInterval   = 60 * time.Second
)

// HeartbeatState is the per-connection probe state.
type HeartbeatState int

const (
	StateAwaitingProbe HeartbeatState = iota
	StateProbeSent
	StateAlive
	StateTimedOut
)

func (s HeartbeatState) String() string {
	switch s {
	case StateAwaitingProbe:
		return "awaiting_probe"
	case StateProbeSent:
		return "probe_sent"
	case StateAlive:
		return "alive"
	case StateTimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// EvictReason labels why the server removed a connection.
type EvictReason string

const (
	ReasonTimeout         EvictReason = "heartbeat_timeout"
	ReasonPingFailed      EvictReason = "ping_failed"
	ReasonSendFailed      EvictReason = "send_failed"
	ReasonTransportClosed EvictReason = "transport_closed"
)

// HeartbeatConfig holds the probe and janitor timings.
type HeartbeatConfig struct {
	Interval        time.Duration
	Timeout         time.Duration
	JanitorInterval time.Duration
}

func DefaultHeartbeatConfig() HeartbeatConfig {
	return HeartbeatConfig{
		Interval:        DefaultHeartbeatInterval,
		Timeout:         DefaultHeartbeatTimeout,
		JanitorInterval: DefaultJanitorInterval,
	}
}

// Supervisor runs one probe loop per connection plus a slower janitor that
// drops connections whose transport is already closed.
type Supervisor struct {
	clock    clockwork.Clock
	cfg      HeartbeatConfig
	evict    func(id string, reason EvictReason) bool
	snapshot func() []*Connection
}

func newSupervisor(clock clockwork.Clock, cfg HeartbeatConfig, evict func(string, EvictReason) bool, snapshot func() []*Connection) *Supervisor {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultHeartbeatInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultHeartbeatTimeout
	}
	if cfg.JanitorInterval <= 0 {
		cfg.JanitorInterval = DefaultJanitorInterval
	}
	return &Supervisor{clock: clock, cfg: cfg, evict: evict, snapshot: snapshot}
}

// watch arms the probe ticker synchronously so that no clock advance between
// registration and the loop start is lost.
func (s *Supervisor) watch(c *Connection) {
	ctx, cancel := context.WithCancel(context.Background())
	ticker := s.clock.NewTicker(s.cfg.Interval)

	c.mu.Lock()
	c.stopHeartbeat = cancel
	c.mu.Unlock()

	go s.probeLoop(ctx, c, ticker)
}

func (s *Supervisor) probeLoop(ctx context.Context, c *Connection, ticker clockwork.Ticker) {
	var timeout clockwork.Timer
	var timeoutCh <-chan time.Time
	disarm := func() {
		if timeout != nil {
			timeout.Stop()
		}
		timeout, timeoutCh = nil, nil
	}
	defer func() {
		ticker.Stop()
		disarm()
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.Chan():
			disarm()
			if !c.beginProbe() {
				s.timedOut(c)
				return
			}
			// Armed before the ping so the deadline exists once the peer can answer.
			timeout = s.clock.NewTimer(s.cfg.Timeout)
			timeoutCh = timeout.Chan()
			if err := c.transport.Ping(); err != nil {
				slog.Debug("Heartbeat ping failed", "connectionID", c.id, "error", err)
				s.evict(c.id, ReasonPingFailed)
				return
			}

		case <-c.pong:
			if c.confirmAlive() {
				disarm()
			}

		case <-timeoutCh:
			timeout, timeoutCh = nil, nil
			if !c.isAlive() {
				s.timedOut(c)
				return
			}
		}
	}
}

func (s *Supervisor) timedOut(c *Connection) {
	c.setState(StateTimedOut)
	slog.Info("Heartbeat timed out, evicting connection", "connectionID", c.id, "userID", c.userID)
	s.evict(c.id, ReasonTimeout)
}

// RunJanitor sweeps on the janitor interval until ctx is cancelled.
func (s *Supervisor) RunJanitor(ctx context.Context) {
	ticker := s.clock.NewTicker(s.cfg.JanitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if n := s.Sweep(); n > 0 {
				slog.Info("Janitor removed closed connections", "count", n)
			}
		}
	}
}

// Sweep evicts every connection whose transport reports closed and returns
// how many were removed.
func (s *Supervisor) Sweep() int {
	removed := 0
	for _, c := range s.snapshot() {
		if c.transport.Closed() && s.evict(c.id, ReasonTransportClosed) {
			removed++
		}
	}
	return removed
}

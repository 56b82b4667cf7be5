package websocket

import (
	"context"
	"log/slog"
	"sync"

	"expense-service/internal/metrics"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// Registry is the authoritative store of live connections. The user and
// channel indices are maintained under the same lock as the primary map.
type Registry struct {
	mu        sync.RWMutex
	conns     map[string]*Connection
	byUser    map[string]map[string]struct{}
	byChannel map[string]map[string]struct{}
	closing   bool

	clock      clockwork.Clock
	supervisor *Supervisor
	presence   *presenceQueue
	metrics    *metrics.RealtimeMetrics
}

type Option func(*registryOptions)

type registryOptions struct {
	clock     clockwork.Clock
	heartbeat HeartbeatConfig
	presence  Presence
	metrics   *metrics.RealtimeMetrics
}

func WithClock(clock clockwork.Clock) Option {
	return func(o *registryOptions) { o.clock = clock }
}

func WithHeartbeat(cfg HeartbeatConfig) Option {
	return func(o *registryOptions) { o.heartbeat = cfg }
}

func WithPresence(p Presence) Option {
	return func(o *registryOptions) { o.presence = p }
}

func WithMetrics(m *metrics.RealtimeMetrics) Option {
	return func(o *registryOptions) { o.metrics = m }
}

func NewRegistry(opts ...Option) *Registry {
	o := registryOptions{
		clock:     clockwork.NewRealClock(),
		heartbeat: DefaultHeartbeatConfig(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	r := &Registry{
		conns:     make(map[string]*Connection),
		byUser:    make(map[string]map[string]struct{}),
		byChannel: make(map[string]map[string]struct{}),
		clock:     o.clock,
		presence:  newPresenceQueue(o.presence),
		metrics:   o.metrics,
	}
	r.supervisor = newSupervisor(o.clock, o.heartbeat, r.Evict, r.snapshot)
	return r
}

// Register stores a new connection and starts its heartbeat. userID may be
// empty for anonymous connections. Registration during shutdown closes the
// transport immediately.
func (r *Registry) Register(transport Transport, userID string) string {
	id := uuid.NewString()
	conn := newConnection(id, userID, transport, r.clock.Now())

	r.mu.Lock()
	if r.closing {
		r.mu.Unlock()
		transport.Close(CloseGoingAway, "server shutting down")
		return id
	}
	r.conns[id] = conn
	firstForUser := false
	if userID != "" {
		if r.byUser[userID] == nil {
			r.byUser[userID] = make(map[string]struct{})
			firstForUser = true
		}
		r.byUser[userID][id] = struct{}{}
	}
	r.supervisor.watch(conn)
	if firstForUser {
		r.presence.set(userID, true)
	}
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.ActiveConnections.Inc()
	}

	slog.Info("Connection registered", "connectionID", id, "userID", userID)
	return id
}

// Unregister removes a connection from every index and cancels its heartbeat.
// It returns true only for the call that actually removed the entry.
func (r *Registry) Unregister(id string) bool {
	r.mu.Lock()
	conn, ok := r.conns[id]
	if !ok {
		r.mu.Unlock()
		return false
	}
	delete(r.conns, id)
	removedSubs := 0
	for _, key := range conn.channelKeys() {
		r.dropChannelIndex(key, id)
		removedSubs++
	}
	if conn.userID != "" {
		if ids, exists := r.byUser[conn.userID]; exists {
			delete(ids, id)
			if len(ids) == 0 {
				delete(r.byUser, conn.userID)
				r.presence.set(conn.userID, false)
			}
		}
	}
	conn.cancelHeartbeat()
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.ActiveConnections.Dec()
		r.metrics.Subscriptions.Sub(float64(removedSubs))
	}

	slog.Info("Connection unregistered", "connectionID", id, "userID", conn.userID, "connectedFor", r.clock.Since(conn.connectedAt))
	return true
}

// Evict unregisters the connection and force-closes its transport. Only the
// caller that wins the removal closes the transport.
func (r *Registry) Evict(id string, reason EvictReason) bool {
	conn := r.Get(id)
	if conn == nil || !r.Unregister(id) {
		return false
	}
	if r.metrics != nil {
		r.metrics.Evictions.WithLabelValues(string(reason)).Inc()
	}
	slog.Info("Connection evicted", "connectionID", id, "userID", conn.userID, "reason", reason)
	if err := conn.transport.Close(CloseGoingAway, string(reason)); err != nil {
		slog.Debug("Error closing evicted transport", "connectionID", id, "error", err)
	}
	return true
}

// Get returns the connection or nil when it is not registered.
func (r *Registry) Get(id string) *Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.conns[id]
}

func (r *Registry) Subscribe(id, key string) bool {
	r.mu.Lock()
	conn, ok := r.conns[id]
	if !ok {
		r.mu.Unlock()
		return false
	}
	added := conn.addChannel(key)
	if added {
		if r.byChannel[key] == nil {
			r.byChannel[key] = make(map[string]struct{})
		}
		r.byChannel[key][id] = struct{}{}
	}
	r.mu.Unlock()

	if added && r.metrics != nil {
		r.metrics.Subscriptions.Inc()
	}
	slog.Debug("Connection subscribed", "connectionID", id, "channel", key)
	return true
}

func (r *Registry) Unsubscribe(id, key string) bool {
	r.mu.Lock()
	conn, ok := r.conns[id]
	if !ok {
		r.mu.Unlock()
		return false
	}
	removed := conn.removeChannel(key)
	if removed {
		r.dropChannelIndex(key, id)
	}
	r.mu.Unlock()

	if removed && r.metrics != nil {
		r.metrics.Subscriptions.Dec()
	}
	return true
}

// dropChannelIndex must be called with r.mu held.
func (r *Registry) dropChannelIndex(key, id string) {
	if ids, ok := r.byChannel[key]; ok {
		delete(ids, id)
		if len(ids) == 0 {
			delete(r.byChannel, key)
		}
	}
}

// MarkAlive records liveness evidence (a pong or an application ping).
func (r *Registry) MarkAlive(id string) bool {
	conn := r.Get(id)
	if conn == nil {
		return false
	}
	conn.markAlive()
	return true
}

// Send delivers msg to one connection. A transport refusal evicts the
// connection and returns false; it is never retried.
func (r *Registry) Send(id string, msg Outbound) bool {
	conn := r.Get(id)
	if conn == nil {
		return false
	}
	data, err := encode(msg)
	if err != nil {
		slog.Error("Failed to encode message", "type", msg.MessageType(), "error", err)
		return false
	}
	return r.deliver(conn, msg.MessageType(), data)
}

func (r *Registry) deliver(conn *Connection, mt MessageType, data []byte) bool {
	if err := conn.transport.Send(data); err != nil {
		slog.Warn("Send failed, evicting connection", "connectionID", conn.id, "userID", conn.userID, "type", mt, "error", err)
		if r.metrics != nil {
			r.metrics.SendFailures.WithLabelValues(string(mt)).Inc()
		}
		go r.Evict(conn.id, ReasonSendFailed)
		return false
	}
	if r.metrics != nil {
		r.metrics.MessagesSent.WithLabelValues(string(mt)).Inc()
	}
	return true
}

// BroadcastToUser delivers to every connection authenticated as userID.
func (r *Registry) BroadcastToUser(userID string, msg Outbound) int {
	if userID == "" {
		return 0
	}
	r.mu.RLock()
	targets := r.collect(r.byUser[userID])
	r.mu.RUnlock()
	return r.fanout(targets, msg)
}

// BroadcastToChannel delivers to every connection subscribed to key.
func (r *Registry) BroadcastToChannel(key string, msg Outbound) int {
	r.mu.RLock()
	targets := r.collect(r.byChannel[key])
	r.mu.RUnlock()
	return r.fanout(targets, msg)
}

// BroadcastToAll delivers to every registered connection, anonymous or not.
func (r *Registry) BroadcastToAll(msg Outbound) int {
	return r.fanout(r.snapshot(), msg)
}

// collect must be called with r.mu held.
func (r *Registry) collect(ids map[string]struct{}) []*Connection {
	targets := make([]*Connection, 0, len(ids))
	for id := range ids {
		if conn, ok := r.conns[id]; ok {
			targets = append(targets, conn)
		}
	}
	return targets
}

// fanout encodes once and hands the frame to each transport independently.
func (r *Registry) fanout(targets []*Connection, msg Outbound) int {
	if len(targets) == 0 {
		return 0
	}
	data, err := encode(msg)
	if err != nil {
		slog.Error("Failed to encode broadcast", "type", msg.MessageType(), "error", err)
		return 0
	}
	delivered := 0
	for _, conn := range targets {
		if r.deliver(conn, msg.MessageType(), data) {
			delivered++
		}
	}
	return delivered
}

// CloseAll sends msg to every connection, closes every transport and empties
// the registry. New registrations are refused from the moment it starts.
func (r *Registry) CloseAll(msg Outbound) {
	r.mu.Lock()
	r.closing = true
	conns := make([]*Connection, 0, len(r.conns))
	for _, conn := range r.conns {
		conns = append(conns, conn)
		conn.cancelHeartbeat()
	}
	r.mu.Unlock()

	slog.Info("Closing all connections", "count", len(conns))

	if data, err := encode(msg); err != nil {
		slog.Error("Failed to encode shutdown message", "error", err)
	} else {
		for _, conn := range conns {
			if err := conn.transport.Send(data); err != nil {
				slog.Debug("Shutdown notice not delivered", "connectionID", conn.id, "error", err)
			}
		}
	}

	var wg sync.WaitGroup
	for _, conn := range conns {
		wg.Add(1)
		go func(c *Connection) {
			defer wg.Done()
			if err := c.transport.Close(CloseGoingAway, "server shutdown"); err != nil {
				slog.Debug("Error closing transport", "connectionID", c.id, "error", err)
			}
		}(conn)
	}
	wg.Wait()

	for _, conn := range conns {
		r.Unregister(conn.id)
	}

	r.mu.Lock()
	r.conns = make(map[string]*Connection)
	r.byUser = make(map[string]map[string]struct{})
	r.byChannel = make(map[string]map[string]struct{})
	r.mu.Unlock()
}

// RunJanitor blocks, periodically removing connections with closed transports.
func (r *Registry) RunJanitor(ctx context.Context) {
	r.supervisor.RunJanitor(ctx)
}

// Sweep runs a single janitor pass.
func (r *Registry) Sweep() int {
	return r.supervisor.Sweep()
}

func (r *Registry) snapshot() []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conns := make([]*Connection, 0, len(r.conns))
	for _, conn := range r.conns {
		conns = append(conns, conn)
	}
	return conns
}

// Stats is a point-in-time summary of the registry.
type Stats struct {
	Connections   int `json:"connections"`
	Authenticated int `json:"authenticated"`
	Users         int `json:"users"`
	Channels      int `json:"channels"`
	Tables        int `json:"tables"`
}

func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := Stats{Connections: len(r.conns), Users: len(r.byUser)}
	for _, conn := range r.conns {
		if conn.Authenticated() {
			s.Authenticated++
		}
	}
	for key := range r.byChannel {
		s.Channels++
		if IsTableChannel(key) {
			s.Tables++
		}
	}
	return s
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// ChannelSize returns how many connections are subscribed to key.
func (r *Registry) ChannelSize(key string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byChannel[key])
}

// UserConnections returns how many connections userID currently holds.
func (r *Registry) UserConnections(userID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[userID])
}

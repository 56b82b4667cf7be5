package websocket

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"expense-service/internal/auth"
	"expense-service/internal/changefeed"

	"github.com/gorilla/websocket"
)

const (
	errAuthRequired       = "Authentication required to subscribe to notifications"
	errInvalidSubscribe   = "Invalid subscription request: channel or table is required"
	errInvalidUnsubscribe = "Invalid unsubscribe request: channel or table is required"
	errInvalidFormat      = "Invalid message format"

	authorizeTimeout = 5 * time.Second
)

// ResourceAuthorizer decides whether a user may follow a resource channel.
type ResourceAuthorizer interface {
	CanSubscribe(ctx context.Context, userID, resourceID string) (bool, error)
}

// ChangeSource is the legacy table change feed.
type ChangeSource interface {
	Subscribe(table string, handler changefeed.Handler) (cancel func())
}

type GatewayConfig struct {
	SendBufferSize int
	WriteWait      time.Duration
	MaxMessageSize int64
	AllowedOrigins []string
}

// Gateway accepts websocket upgrades and drives each connection's protocol.
type Gateway struct {
	registry   *Registry
	verifier   auth.TokenVerifier
	changes    ChangeSource
	authorizer ResourceAuthorizer
	cfg        GatewayConfig
	upgrader   websocket.Upgrader
}

type GatewayOption func(*Gateway)

func WithChangeSource(src ChangeSource) GatewayOption {
	return func(g *Gateway) { g.changes = src }
}

// WithResourceAuthorizer makes receipt/resource subscriptions require a
// successful authorization check.
func WithResourceAuthorizer(a ResourceAuthorizer) GatewayOption {
	return func(g *Gateway) { g.authorizer = a }
}

func NewGateway(registry *Registry, verifier auth.TokenVerifier, cfg GatewayConfig, opts ...GatewayOption) *Gateway {
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = 4096
	}
	g := &Gateway{
		registry: registry,
		verifier: verifier,
		cfg:      cfg,
		upgrader: NewUpgrader(cfg.AllowedOrigins),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// ServeHTTP upgrades the request and runs the read loop until the peer goes
// away or the connection is evicted.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("Failed to upgrade WebSocket connection", "error", err)
		return
	}

	identity := g.authenticate(r)
	transport := NewWSTransport(conn, g.cfg.SendBufferSize, g.cfg.WriteWait)
	session := g.Open(transport, identity)

	conn.SetReadLimit(g.cfg.MaxMessageSize)
	conn.SetPongHandler(func(string) error {
		g.registry.MarkAlive(session.ID())
		return nil
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("WebSocket read error", "connectionID", session.ID(), "error", err)
			}
			break
		}
		session.Handle(data)
	}

	session.Close()
}

func (g *Gateway) authenticate(r *http.Request) *auth.Identity {
	token := auth.TokenFromRequest(r)
	if token == "" || g.verifier == nil {
		return nil
	}
	identity, err := g.verifier.Verify(token)
	if err != nil {
		slog.Debug("WebSocket token rejected, continuing anonymously", "error", err)
		return nil
	}
	return identity
}

// Open registers the transport and sends the connected greeting. identity
// may be nil for anonymous clients.
func (g *Gateway) Open(transport Transport, identity *auth.Identity) *Session {
	userID := ""
	if identity != nil {
		userID = identity.UserID
	}
	id := g.registry.Register(transport, userID)
	s := &Session{
		gateway:   g,
		id:        id,
		userID:    userID,
		transport: transport,
		state:     SessionOpen,
		tables:    make(map[string]func()),
	}
	g.registry.Send(id, NewConnectedMessage(userID))
	return s
}

type SessionState int

const (
	SessionOpen SessionState = iota
	SessionClosed
)

// Session is the protocol state of one gateway connection. It owns the legacy
// per-table change subscriptions.
type Session struct {
	gateway   *Gateway
	id        string
	userID    string
	transport Transport

	mu     sync.Mutex
	state  SessionState
	tables map[string]func()
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) UserID() string {
	return s.userID
}

func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) reply(msg Outbound) {
	s.gateway.registry.Send(s.id, msg)
}

// Handle processes one inbound frame. Malformed frames are answered with an
// error and never close the connection.
func (s *Session) Handle(data []byte) {
	if s.State() != SessionOpen {
		return
	}

	frame, err := DecodeInbound(data)
	if err != nil {
		slog.Debug("Invalid inbound frame", "connectionID", s.id, "error", err)
		s.reply(NewErrorMessage(errInvalidFormat))
		return
	}

	switch f := frame.(type) {
	case PingFrame:
		s.gateway.registry.MarkAlive(s.id)
		s.reply(NewPongMessage())
	case SubscribeFrame:
		s.subscribe(f.Target)
	case UnsubscribeFrame:
		s.unsubscribe(f.Target)
	case UnknownFrame:
		s.reply(NewErrorMessage(fmt.Sprintf("Unknown message type: %s", f.Type)))
	}
}

func (s *Session) subscribe(t Target) {
	reg := s.gateway.registry

	switch t.Kind {
	case TargetNotifications:
		if s.userID == "" {
			s.reply(NewErrorMessage(errAuthRequired))
			return
		}
		if !reg.Subscribe(s.id, NotificationChannel(s.userID)) {
			return
		}
		s.reply(NewSubscribedMessage(channelNotifications, "", ""))

	case TargetResource:
		if refusal, ok := s.authorizeResource(t.ResourceID); !ok {
			s.reply(NewErrorMessage(refusal))
			return
		}
		if !reg.Subscribe(s.id, ResourceChannel(t.ResourceID)) {
			return
		}
		s.reply(NewSubscribedMessage(t.Channel, "", t.ResourceID))

	case TargetTable:
		s.subscribeTable(t.Table)

	default:
		s.reply(NewErrorMessage(errInvalidSubscribe))
	}
}

// authorizeResource returns a user-facing refusal message when the session
// may not follow resourceID.
func (s *Session) authorizeResource(resourceID string) (string, bool) {
	a := s.gateway.authorizer
	if a == nil {
		return "", true
	}
	if s.userID == "" {
		return fmt.Sprintf("Authentication required to subscribe to receipt: %s", resourceID), false
	}

	ctx, cancel := context.WithTimeout(context.Background(), authorizeTimeout)
	defer cancel()

	ok, err := a.CanSubscribe(ctx, s.userID, resourceID)
	if err != nil {
		slog.Error("Resource authorization failed", "connectionID", s.id, "resourceID", resourceID, "error", err)
		return fmt.Sprintf("Unable to verify access to receipt: %s", resourceID), false
	}
	if !ok {
		return fmt.Sprintf("Not authorized to subscribe to receipt: %s", resourceID), false
	}
	return "", true
}

func (s *Session) subscribeTable(table string) {
	s.mu.Lock()
	if _, exists := s.tables[table]; exists {
		s.mu.Unlock()
		s.reply(NewErrorMessage(fmt.Sprintf("Already subscribed to table: %s", table)))
		return
	}
	if !s.gateway.registry.Subscribe(s.id, TableChannel(table)) {
		s.mu.Unlock()
		return
	}
	cancel := func() {}
	if src := s.gateway.changes; src != nil {
		reg, id := s.gateway.registry, s.id
		cancel = src.Subscribe(table, func(c changefeed.Change) {
			reg.Send(id, NewChangeMessage(table, c))
		})
	}
	s.tables[table] = cancel
	s.mu.Unlock()

	s.reply(NewSubscribedMessage("", table, ""))
}

func (s *Session) unsubscribe(t Target) {
	reg := s.gateway.registry

	switch t.Kind {
	case TargetNotifications:
		if s.userID != "" {
			reg.Unsubscribe(s.id, NotificationChannel(s.userID))
		}
		s.reply(NewUnsubscribedMessage(channelNotifications, "", ""))

	case TargetResource:
		reg.Unsubscribe(s.id, ResourceChannel(t.ResourceID))
		s.reply(NewUnsubscribedMessage(t.Channel, "", t.ResourceID))

	case TargetTable:
		s.mu.Lock()
		cancel, exists := s.tables[t.Table]
		delete(s.tables, t.Table)
		s.mu.Unlock()
		if !exists {
			return
		}
		cancel()
		reg.Unsubscribe(s.id, TableChannel(t.Table))
		s.reply(NewUnsubscribedMessage("", t.Table, ""))

	default:
		s.reply(NewErrorMessage(errInvalidUnsubscribe))
	}
}

// Close releases the session's table subscriptions, unregisters it and closes
// the transport. Safe to call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	if s.state == SessionClosed {
		s.mu.Unlock()
		return
	}
	s.state = SessionClosed
	tables := s.tables
	s.tables = make(map[string]func())
	s.mu.Unlock()

	for _, cancel := range tables {
		cancel()
	}
	s.gateway.registry.Unregister(s.id)
	if err := s.transport.Close(CloseNormal, ""); err != nil {
		slog.Debug("Error closing transport", "connectionID", s.id, "error", err)
	}
}

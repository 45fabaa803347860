package websocket

import (
	"context"
	"errors"

	"counsel-chat-be/internal/dto"
	"counsel-chat-be/internal/pkg/logger"
	"counsel-chat-be/internal/pkg/serverutils"
	"counsel-chat-be/internal/presence"
	"counsel-chat-be/internal/service"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

type SessionState int

const (
	StateConnecting SessionState = iota
	StateAuthenticated
	StateJoined
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateJoined:
		return "joined"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

var ErrInvalidSubject = errors.New("invalid token subject")

// Gateway accepts connections and routes their events to the dispatcher and the
// typing relay.
type Gateway struct {
	registry *presence.Registry
	chat     service.IChatService
	typing   *service.TypingRelay
	cfg      ClientConfig
	logger   logger.ILogger
}

func NewGateway(registry *presence.Registry, chat service.IChatService, typing *service.TypingRelay, cfg ClientConfig, log logger.ILogger) *Gateway {
	return &Gateway{
		registry: registry,
		chat:     chat,
		typing:   typing,
		cfg:      cfg,
		logger:   log,
	}
}

// Serve runs a verified connection until it closes. subject is the user id from the
// handshake token.
func (g *Gateway) Serve(conn *websocket.Conn, subject string) {
	ctx, cancel := context.WithCancel(context.Background())
	client := NewClient(uuid.NewString(), conn, g.cfg, g.logger)
	session := g.NewSession(client)
	writeDone := make(chan struct{})
	writing := false
	defer func() {
		cancel()
		session.Close()
		client.Close()
		// The framework releases conn once Serve returns.
		if writing {
			<-writeDone
		}
	}()

	if err := session.Authenticate(subject); err != nil {
		g.logger.Warn("GATEWAY", "Rejected connection", map[string]interface{}{"conn_id": client.ID(), "error": err.Error()})
		return
	}
	g.logger.Info("GATEWAY", "Connection opened", map[string]interface{}{"conn_id": client.ID(), "subject": subject})

	writing = true
	go func() {
		defer close(writeDone)
		client.writePump()
	}()
	client.readPump(func(raw []byte) {
		session.Handle(ctx, raw)
	})

	g.logger.Info("GATEWAY", "Connection closed", map[string]interface{}{"conn_id": client.ID(), "user_id": session.UserID()})
}

// Session is the per-connection state machine. Its methods are called from the
// connection's read loop only, so events of one connection are handled in order.
type Session struct {
	gateway *Gateway
	conn    presence.Conn
	subject string
	userID  string
	state   SessionState
}

func (g *Gateway) NewSession(conn presence.Conn) *Session {
	return &Session{gateway: g, conn: conn, state: StateConnecting}
}

func (s *Session) State() SessionState {
	return s.state
}

// UserID is empty until the session has joined.
func (s *Session) UserID() string {
	return s.userID
}

func (s *Session) Authenticate(subject string) error {
	if s.state != StateConnecting {
		return nil
	}
	if !serverutils.IsValidUserID(subject) {
		return ErrInvalidSubject
	}
	s.subject = subject
	s.state = StateAuthenticated
	return nil
}

func (s *Session) Handle(ctx context.Context, raw []byte) {
	if s.state == StateConnecting || s.state == StateClosed {
		return
	}

	log := s.gateway.logger
	eventType, event, err := DecodeEvent(raw)
	if err != nil {
		log.Debug("GATEWAY", "Rejected frame", map[string]interface{}{"conn_id": s.conn.ID(), "type": eventType, "error": err.Error()})
		if eventType == dto.WsEventSendMessage && s.state == StateJoined {
			s.reply(dto.WsEnvelope{Type: dto.WsEventMessageError, Data: "malformed message"})
		}
		return
	}

	switch e := event.(type) {
	case JoinEvent:
		s.join(e.UserId)
	case SendMessageEvent:
		if !s.isCurrent() {
			return
		}
		if e.From != s.userID {
			s.reply(dto.WsEnvelope{Type: dto.WsEventMessageError, Data: "sender does not match session"})
			return
		}
		s.gateway.chat.HandleSend(ctx, s.conn, e.From, e.To, e.Content)
	case TypingEvent:
		if !s.isCurrent() || e.From != s.userID {
			return
		}
		s.gateway.typing.SetTyping(e.From, e.To, e.IsTyping)
	}
}

func (s *Session) join(userID string) {
	log := s.gateway.logger
	if userID != s.subject {
		log.Warn("GATEWAY", "Join does not match token subject", map[string]interface{}{
			"conn_id": s.conn.ID(),
			"subject": s.subject,
			"user_id": userID,
		})
		return
	}

	previous := s.gateway.registry.Register(userID, s.conn)
	if previous != nil && previous != s.conn {
		previous.Close()
	}
	if s.state != StateJoined {
		s.userID = userID
		s.state = StateJoined
		log.Info("GATEWAY", "Session joined", map[string]interface{}{"conn_id": s.conn.ID(), "user_id": userID})
	}
}

// isCurrent reports whether the session is joined and still the user's registered
// connection. A replaced session keeps reading until its socket closes.
func (s *Session) isCurrent() bool {
	if s.state != StateJoined {
		return false
	}
	conn, ok := s.gateway.registry.Lookup(s.userID)
	return ok && conn == s.conn
}

// Close is idempotent. A session that never joined leaves presence untouched.
func (s *Session) Close() {
	if s.state == StateClosed {
		return
	}
	if s.state == StateJoined {
		s.gateway.registry.Deregister(s.userID, s.conn)
	}
	s.state = StateClosed
}

func (s *Session) reply(env dto.WsEnvelope) {
	if err := s.conn.Push(env); err != nil {
		s.gateway.logger.Debug("GATEWAY", "Reply failed", map[string]interface{}{"conn_id": s.conn.ID(), "error": err.Error()})
	}
}

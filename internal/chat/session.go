package chat

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bosar/console/internal/auth"
	"github.com/bosar/console/internal/wire"
	"github.com/bosar/console/pkg/logger"
)

// maxConnectAttempts bounds one connect cycle: one authenticated attempt,
// one anonymous fallback.
const maxConnectAttempts = 2

// Timing holds the session's timer durations. Tests compress these; prod
// uses DefaultTiming.
type Timing struct {
	// ConnectTimeout bounds how long a single connect attempt may stay
	// pending before it is treated as a connect error.
	ConnectTimeout time.Duration
	// FallbackDelay is the pause between a failed authenticated attempt and
	// the anonymous retry.
	FallbackDelay time.Duration
	// ReconnectDelay is the pause before a new connect cycle after a
	// heartbeat timeout.
	ReconnectDelay time.Duration
	// HeartbeatTimeout declares the connection dead when no heartbeat
	// arrives within it.
	HeartbeatTimeout time.Duration
}

// DefaultTiming returns the production timer durations.
func DefaultTiming() Timing {
	return Timing{
		ConnectTimeout:   10 * time.Second,
		FallbackDelay:    time.Second,
		ReconnectDelay:   2 * time.Second,
		HeartbeatTimeout: 60 * time.Second,
	}
}

// Session owns one realtime connection to the chat namespace. It runs the
// two-phase connect strategy (authenticated, then anonymous), watches
// heartbeats for silent connection death, and fans events out to
// subscribers. All methods are safe for concurrent use.
type Session struct {
	url    string
	token  string
	dial   DialFunc
	timing Timing
	now    func() time.Time

	mu       sync.Mutex
	state    State
	mode     Mode
	attempts int
	sock     Transport
	current  string
	// joinGen is the connection generation current was joined on. A join
	// for the same conversation on the same connection is a no-op; after a
	// reconnect the generations differ and the join is sent again.
	joinGen int
	// gen tags the live connection. Handlers captured by an old transport
	// carry a stale gen and are dropped, so a torn-down socket can never
	// feed events into a newer connection.
	gen            int
	lastHeartbeat  time.Time
	heartbeatTimer *time.Timer
	connectTimer   *time.Timer
	retryTimer     *time.Timer
	closed         bool

	emitter emitter
}

// NewSession creates a session and immediately starts its first connect
// cycle. The token may be empty, in which case the session goes straight to
// the anonymous path.
func NewSession(chatURL, token string, dial DialFunc, timing Timing) *Session {
	s := &Session{
		url:    chatURL,
		token:  token,
		dial:   dial,
		timing: timing,
		now:    time.Now,
		state:  StateIdle,
	}
	s.connect()
	return s
}

// Subscribe registers a callback set. Subscribers are independent; one
// view's registration never displaces another's.
func (s *Session) Subscribe(ev Events) *Subscription {
	return s.emitter.subscribe(ev)
}

// State returns the current connection state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Status returns the view-facing connection status.
func (s *Session) Status() ConnStatus {
	return s.State().ConnStatus()
}

// IsConnected reports whether the session currently holds an established
// connection.
func (s *Session) IsConnected() bool {
	return s.State() == StateConnected
}

// Mode returns the credential mode of the current or most recent attempt.
func (s *Session) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// CurrentConversation returns the joined conversation id, if any.
func (s *Session) CurrentConversation() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// LastHeartbeat returns the local receipt time of the most recent server
// heartbeat.
func (s *Session) LastHeartbeat() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastHeartbeat
}

// to moves the state machine, logging illegal transitions instead of
// applying them blindly. Callers hold s.mu.
func (s *Session) to(next State) {
	if !validTransition(s.state, next) {
		logger.Warnf("chat: illegal state transition %s -> %s", s.state, next)
	}
	logger.Tracef("chat: state %s -> %s", s.state, next)
	s.state = next
}

// connect runs one connect attempt. The first attempt of a cycle uses the
// token when one is present and not visibly expired; every later attempt,
// and any attempt without a usable token, goes anonymous. The expiry check
// is advisory only: it reads the token's exp claim locally without
// verifying the signature, and never blocks on anything.
func (s *Session) connect() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.attempts++
	attempt := s.attempts

	useAuth := attempt == 1 && s.token != ""
	if useAuth && auth.IsExpired(s.token, s.now()) {
		logger.Warnf("chat: token is expired, connecting anonymously")
		useAuth = false
	}

	token := ""
	if useAuth {
		token = s.token
		s.mode = ModeAuthenticated
		s.to(StateConnectingAuth)
	} else {
		s.mode = ModeAnonymous
		s.to(StateConnectingAnon)
	}

	s.gen++
	gen := s.gen
	s.mu.Unlock()

	logger.Debugf("chat: connection attempt %d/%d to %s (%s)",
		attempt, maxConnectAttempts, s.url, s.Mode())

	sock, err := s.dial(s.url, token)
	if err != nil {
		s.handleConnectError(gen, err.Error())
		return
	}

	s.mu.Lock()
	if s.closed || gen != s.gen {
		s.mu.Unlock()
		sock.Disconnect()
		return
	}
	s.sock = sock
	s.connectTimer = time.AfterFunc(s.timing.ConnectTimeout, func() {
		s.handleConnectError(gen, "connect timeout")
	})
	s.mu.Unlock()

	s.installHandlers(gen, sock)
}

// installHandlers wires the transport's events into the session. Every
// handler checks the connection generation so a torn-down socket cannot
// deliver into a newer connection.
func (s *Session) installHandlers(gen int, sock Transport) {
	sock.On("connect", func(args ...any) {
		s.handleConnect(gen, sock)
	})
	sock.On("disconnect", func(args ...any) {
		reason := ""
		if len(args) > 0 {
			if r, ok := args[0].(string); ok {
				reason = r
			}
		}
		s.handleDisconnect(gen, reason)
	})
	sock.On("connect_error", func(args ...any) {
		s.handleConnectError(gen, eventErrorMessage(args))
	})

	sock.On(wire.EventJoinedConversation, func(args ...any) {
		if ack, ok := decodeEvent[wire.JoinedConversation](args); ok && s.live(gen) {
			logger.Debugf("chat: joined conversation %s", ack.ConversationID)
			s.emitter.joined(ack.ConversationID)
		}
	})
	sock.On(wire.EventNewMessage, func(args ...any) {
		if msg, ok := decodeEvent[wire.Message](args); ok && s.live(gen) {
			logger.Tracef("chat: new message %s in %s", msg.ID, msg.ConversationID)
			s.emitter.message(msg)
		}
	})
	sock.On(wire.EventStatusChanged, func(args ...any) {
		if change, ok := decodeEvent[wire.StatusChange](args); ok && s.live(gen) {
			s.emitter.statusChange(change)
		}
	})
	sock.On(wire.EventChatError, func(args ...any) {
		if chatErr, ok := decodeEvent[wire.ChatError](args); ok && s.live(gen) {
			logger.Errorf("chat: server error: %s", chatErr.Message)
			s.emitter.errorMsg(chatErr.Message)
		}
	})
	sock.On(wire.EventHeartbeat, func(args ...any) {
		hb, _ := decodeEvent[wire.Heartbeat](args)
		s.handleHeartbeat(gen, hb.Timestamp)
	})
}

// live reports whether gen still tags the active connection.
func (s *Session) live(gen int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed && gen == s.gen
}

func (s *Session) handleConnect(gen int, sock Transport) {
	s.mu.Lock()
	if s.closed || gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.attempts = 0
	s.stopTimerLocked(&s.connectTimer)
	s.to(StateConnected)
	mode := s.mode
	s.mu.Unlock()

	logger.Infof("chat: connected (%s mode, id %s)", mode, sock.ID())
	s.emitter.connect(mode)
}

func (s *Session) handleDisconnect(gen int, reason string) {
	s.mu.Lock()
	if s.closed || gen != s.gen || s.state != StateConnected {
		s.mu.Unlock()
		return
	}
	s.to(StateDisconnected)
	s.mu.Unlock()

	logger.Infof("chat: disconnected: %s", reason)
	// Reconnection is driven by heartbeat loss only; a plain disconnect is
	// surfaced and left alone.
	s.emitter.disconnect(reason)
}

func (s *Session) handleConnectError(gen int, msg string) {
	s.mu.Lock()
	if s.closed || gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.stopTimerLocked(&s.connectTimer)

	if s.mode == ModeAuthenticated && s.attempts < maxConnectAttempts {
		sock := s.sock
		s.sock = nil
		s.gen++
		s.retryTimer = time.AfterFunc(s.timing.FallbackDelay, s.connect)
		s.mu.Unlock()

		logger.Infof("chat: authenticated connect failed (%s), retrying anonymously", msg)
		if sock != nil {
			sock.Disconnect()
		}
		return
	}

	sock := s.sock
	s.sock = nil
	s.gen++
	s.to(StateFailed)
	s.mu.Unlock()

	if sock != nil {
		sock.Disconnect()
	}

	out := "connection error: " + msg
	if strings.Contains(strings.ToLower(msg), "authentication") {
		out = "authentication failed: " + msg
	}
	logger.Errorf("chat: %s", out)
	s.emitter.errorMsg(out)
}

// handleHeartbeat records the receipt time, echoes both clocks back for
// skew diagnostics, and re-arms the liveness timer.
func (s *Session) handleHeartbeat(gen int, serverTimestamp int64) {
	s.mu.Lock()
	if s.closed || gen != s.gen {
		s.mu.Unlock()
		return
	}
	now := s.now()
	s.lastHeartbeat = now
	sock := s.sock
	s.stopTimerLocked(&s.heartbeatTimer)
	s.heartbeatTimer = time.AfterFunc(s.timing.HeartbeatTimeout, func() {
		s.handleConnectionLoss(gen)
	})
	s.mu.Unlock()

	if sock != nil {
		_ = sock.Emit(wire.EventHeartbeatResponse, wire.HeartbeatResponse{
			Timestamp:       now.UnixMilli(),
			ServerTimestamp: serverTimestamp,
		})
	}
}

// handleConnectionLoss fires when the heartbeat window elapses. The socket
// is torn down and a fresh connect cycle starts after a short delay, with
// the attempt counter reset so the cycle gets its full auth-then-anonymous
// budget. This is the only self-healing path; a cycle that exhausts its
// attempts surfaces a terminal error instead of looping.
func (s *Session) handleConnectionLoss(gen int) {
	s.mu.Lock()
	if s.closed || gen != s.gen {
		s.mu.Unlock()
		return
	}
	logger.Warnf("chat: heartbeat timeout, reconnecting")
	sock := s.sock
	s.sock = nil
	s.gen++
	s.stopTimerLocked(&s.heartbeatTimer)
	s.stopTimerLocked(&s.connectTimer)
	s.attempts = 0
	s.to(StateDisconnected)
	s.retryTimer = time.AfterFunc(s.timing.ReconnectDelay, s.connect)
	s.mu.Unlock()

	if sock != nil {
		sock.Disconnect()
	}
}

// JoinConversation makes the given conversation current, implicitly leaving
// any previously joined one. Joining the conversation that is already
// current on the same connection does nothing. On an anonymous connection
// joining is a local no-op: the widget protocol has no way to attach to a
// pre-existing conversation, so only ambient events arrive in fallback
// mode.
func (s *Session) JoinConversation(conversationID string) {
	s.mu.Lock()
	if s.sock == nil {
		s.mu.Unlock()
		logger.Errorf("chat: join %s: socket not connected", conversationID)
		return
	}
	prev := s.current
	rejoin := prev == conversationID && s.joinGen == s.gen
	s.current = conversationID
	s.joinGen = s.gen
	sock := s.sock
	mode := s.mode
	s.mu.Unlock()
	if rejoin {
		return
	}
	if mode != ModeAuthenticated {
		logger.Infof("chat: anonymous mode cannot join existing conversations; live updates are limited")
		return
	}
	if prev != "" && prev != conversationID {
		_ = sock.Emit(wire.EventLeaveConversation, wire.LeaveConversation{ConversationID: prev})
	}
	_ = sock.Emit(wire.EventJoinConversation, wire.JoinConversation{ConversationID: conversationID})
}

// LeaveConversation leaves the current conversation, if any. The leave
// event only exists on the authenticated protocol.
func (s *Session) LeaveConversation() {
	s.mu.Lock()
	id := s.current
	s.current = ""
	sock := s.sock
	mode := s.mode
	s.mu.Unlock()

	if id == "" || sock == nil {
		return
	}
	if mode == ModeAuthenticated {
		_ = sock.Emit(wire.EventLeaveConversation, wire.LeaveConversation{ConversationID: id})
	}
}

// SendMessage sends a chat message over the live transport. Authenticated
// connections use the agent-facing event; anonymous ones use the
// widget-style event with a synthesized customer id and a client timestamp.
// Without a socket this logs and drops: callers fall back to the REST path.
func (s *Session) SendMessage(conversationID, message string, role wire.Role) {
	s.mu.Lock()
	sock := s.sock
	mode := s.mode
	now := s.now()
	s.mu.Unlock()

	if sock == nil {
		logger.Errorf("chat: send to %s: socket not connected", conversationID)
		return
	}

	if mode == ModeAuthenticated {
		_ = sock.Emit(wire.EventSendMessage, wire.SendMessage{
			ConversationID: conversationID,
			Message:        message,
			Role:           role,
		})
		return
	}

	logger.Debugf("chat: sending via widget path (anonymous mode)")
	_ = sock.Emit(wire.EventWidgetSendMessage, wire.WidgetSendMessage{
		CustomerID:     "dashboard_user_" + uuid.NewString(),
		ConversationID: conversationID,
		Message:        message,
		Timestamp:      now.UTC().Format(time.RFC3339),
	})
}

// Disconnect tears the session down: timers cleared, current conversation
// left, transport closed. Idempotent; a timer racing a deliberate teardown
// finds the session closed and does nothing.
func (s *Session) Disconnect() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.stopTimerLocked(&s.heartbeatTimer)
	s.stopTimerLocked(&s.connectTimer)
	s.stopTimerLocked(&s.retryTimer)
	current := s.current
	s.current = ""
	sock := s.sock
	s.sock = nil
	mode := s.mode
	s.gen++
	if s.state != StateDisconnected {
		s.to(StateDisconnected)
	}
	s.mu.Unlock()

	if sock != nil {
		if current != "" && mode == ModeAuthenticated {
			_ = sock.Emit(wire.EventLeaveConversation, wire.LeaveConversation{ConversationID: current})
		}
		sock.Disconnect()
	}
}

// stopTimerLocked stops and clears a timer slot. Callers hold s.mu.
func (s *Session) stopTimerLocked(t **time.Timer) {
	if *t != nil {
		(*t).Stop()
		*t = nil
	}
}

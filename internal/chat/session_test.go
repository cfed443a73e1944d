package chat

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bosar/console/internal/wire"
)

const waitFor = 2 * time.Second
const tick = 2 * time.Millisecond

// unsigned JWT carrying the given exp; the expiry check must not care about
// the signature.
func tokenWithExp(t *testing.T, exp time.Time) string {
	t.Helper()
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`))
	payload, err := json.Marshal(map[string]any{"sub": "agent-1", "exp": exp.Unix()})
	require.NoError(t, err)
	return fmt.Sprintf("%s.%s.x", header, base64.RawURLEncoding.EncodeToString(payload))
}

func validToken(t *testing.T) string {
	return tokenWithExp(t, time.Now().Add(time.Hour))
}

// recorder collects emitted session events for assertions.
type recorder struct {
	mu          sync.Mutex
	connects    []Mode
	disconnects []string
	errors      []string
	messages    []wire.Message
}

func (r *recorder) events() Events {
	return Events{
		OnConnect: func(mode Mode) {
			r.mu.Lock()
			r.connects = append(r.connects, mode)
			r.mu.Unlock()
		},
		OnDisconnect: func(reason string) {
			r.mu.Lock()
			r.disconnects = append(r.disconnects, reason)
			r.mu.Unlock()
		},
		OnError: func(msg string) {
			r.mu.Lock()
			r.errors = append(r.errors, msg)
			r.mu.Unlock()
		},
		OnMessage: func(msg wire.Message) {
			r.mu.Lock()
			r.messages = append(r.messages, msg)
			r.mu.Unlock()
		},
	}
}

func (r *recorder) errorCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.errors)
}

func (r *recorder) lastError() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.errors) == 0 {
		return ""
	}
	return r.errors[len(r.errors)-1]
}

func (r *recorder) connectCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.connects)
}

func TestSession_ConnectsAuthenticatedFirst(t *testing.T) {
	t.Parallel()

	d := &fakeDialer{}
	token := validToken(t)
	s := NewSession("ws://test/chat", token, d.dial, testTiming())
	defer s.Disconnect()

	rec := &recorder{}
	s.Subscribe(rec.events())

	require.Equal(t, 1, d.count())
	require.Equal(t, token, d.token(0))
	require.Equal(t, StateConnectingAuth, s.State())
	require.Equal(t, StatusConnecting, s.Status())

	d.socket(0).fire("connect")

	require.Equal(t, StateConnected, s.State())
	require.Equal(t, ModeAuthenticated, s.Mode())
	require.True(t, s.IsConnected())
	require.Equal(t, 1, rec.connectCount())
}

func TestSession_ExpiredTokenGoesStraightToAnonymous(t *testing.T) {
	t.Parallel()

	d := &fakeDialer{}
	s := NewSession("ws://test/chat", tokenWithExp(t, time.Now().Add(-time.Hour)), d.dial, testTiming())
	defer s.Disconnect()

	require.Equal(t, 1, d.count())
	require.Empty(t, d.token(0), "expired token must never reach the transport")
	require.Equal(t, StateConnectingAnon, s.State())
	require.Equal(t, ModeAnonymous, s.Mode())
}

func TestSession_EmptyTokenConnectsAnonymously(t *testing.T) {
	t.Parallel()

	d := &fakeDialer{}
	s := NewSession("ws://test/chat", "", d.dial, testTiming())
	defer s.Disconnect()

	require.Equal(t, 1, d.count())
	require.Empty(t, d.token(0))
	require.Equal(t, ModeAnonymous, s.Mode())
}

func TestSession_AuthFailureRetriesAnonymouslyOnce(t *testing.T) {
	t.Parallel()

	d := &fakeDialer{}
	s := NewSession("ws://test/chat", validToken(t), d.dial, testTiming())
	defer s.Disconnect()

	rec := &recorder{}
	s.Subscribe(rec.events())

	d.socket(0).fire("connect_error", map[string]any{"message": "Authentication error"})

	require.Eventually(t, func() bool { return d.count() == 2 }, waitFor, tick)
	require.True(t, d.socket(0).wasDisconnected(), "failed auth socket must be torn down")
	require.Empty(t, d.token(1), "fallback attempt must be anonymous")
	require.Zero(t, rec.errorCount(), "fallback is not an error yet")

	d.socket(1).fire("connect")
	require.Equal(t, StateConnected, s.State())
	require.Equal(t, ModeAnonymous, s.Mode())
}

func TestSession_TerminalErrorAfterFallbackFails(t *testing.T) {
	t.Parallel()

	d := &fakeDialer{}
	s := NewSession("ws://test/chat", validToken(t), d.dial, testTiming())
	defer s.Disconnect()

	rec := &recorder{}
	s.Subscribe(rec.events())

	d.socket(0).fire("connect_error", map[string]any{"message": "Authentication error"})
	require.Eventually(t, func() bool { return d.count() == 2 }, waitFor, tick)
	d.socket(1).fire("connect_error", map[string]any{"message": "Authentication error"})

	require.Equal(t, StateFailed, s.State())
	require.Equal(t, StatusError, s.Status())
	require.Equal(t, 1, rec.errorCount())
	require.Contains(t, rec.lastError(), "authentication failed")

	// The cap is two attempts per cycle; nothing else may be dialed.
	time.Sleep(4 * testTiming().FallbackDelay)
	require.Equal(t, 2, d.count())
}

func TestSession_GenericConnectErrorMessage(t *testing.T) {
	t.Parallel()

	d := &fakeDialer{}
	s := NewSession("ws://test/chat", "", d.dial, testTiming())
	defer s.Disconnect()

	rec := &recorder{}
	s.Subscribe(rec.events())

	// Anonymous attempt, so the failure is terminal immediately.
	d.socket(0).fire("connect_error", "dial tcp: connection refused")

	require.Equal(t, 1, rec.errorCount())
	require.Contains(t, rec.lastError(), "connection error: dial tcp: connection refused")
}

func TestSession_ConnectTimeoutFallsBack(t *testing.T) {
	t.Parallel()

	timing := testTiming()
	timing.ConnectTimeout = 15 * time.Millisecond

	d := &fakeDialer{}
	s := NewSession("ws://test/chat", validToken(t), d.dial, timing)
	defer s.Disconnect()

	// No connect event ever fires on the first socket; the timeout must
	// drive the anonymous fallback.
	require.Eventually(t, func() bool { return d.count() == 2 }, waitFor, tick)
	require.Empty(t, d.token(1))
}

func TestSession_HeartbeatEchoesBothClocks(t *testing.T) {
	t.Parallel()

	d := &fakeDialer{}
	s := NewSession("ws://test/chat", validToken(t), d.dial, testTiming())
	defer s.Disconnect()

	sock := d.socket(0)
	sock.fire("connect")
	require.True(t, s.LastHeartbeat().IsZero())

	sock.fire(wire.EventHeartbeat, map[string]any{"timestamp": float64(123456)})

	responses := sock.emitsOf(wire.EventHeartbeatResponse)
	require.Len(t, responses, 1)
	resp, ok := responses[0].payload.(wire.HeartbeatResponse)
	require.True(t, ok)
	require.Equal(t, int64(123456), resp.ServerTimestamp)
	require.NotZero(t, resp.Timestamp)
	require.False(t, s.LastHeartbeat().IsZero())
}

func TestSession_HeartbeatTimeoutTriggersOneReconnectCycle(t *testing.T) {
	t.Parallel()

	d := &fakeDialer{}
	token := validToken(t)
	s := NewSession("ws://test/chat", token, d.dial, testTiming())
	defer s.Disconnect()

	sock := d.socket(0)
	sock.fire("connect")
	sock.fire(wire.EventHeartbeat, map[string]any{"timestamp": float64(1)})

	// No further heartbeats: the liveness window elapses and the session
	// tears down and re-runs the connect algorithm once.
	require.Eventually(t, func() bool { return d.count() == 2 }, waitFor, tick)
	require.True(t, sock.wasDisconnected())
	require.Equal(t, token, d.token(1), "reconnect cycle starts over with the authenticated attempt")

	d.socket(1).fire("connect")
	require.Equal(t, StateConnected, s.State())

	// One loss event, one cycle. Without new heartbeats no further timer is
	// armed, so the dial count must hold.
	time.Sleep(3 * testTiming().HeartbeatTimeout)
	require.Equal(t, 2, d.count())
}

func TestSession_StaleSocketEventsAreDropped(t *testing.T) {
	t.Parallel()

	d := &fakeDialer{}
	s := NewSession("ws://test/chat", validToken(t), d.dial, testTiming())
	defer s.Disconnect()

	rec := &recorder{}
	s.Subscribe(rec.events())

	old := d.socket(0)
	old.fire("connect")
	old.fire(wire.EventHeartbeat, map[string]any{"timestamp": float64(1)})
	require.Eventually(t, func() bool { return d.count() == 2 }, waitFor, tick)
	d.socket(1).fire("connect")

	// The replaced socket must not feed events into the new connection.
	before := len(rec.messages)
	old.fire(wire.EventNewMessage, map[string]any{"id": "m1", "conversationId": "c1"})
	require.Equal(t, before, len(rec.messages))
}

func TestSession_NoAutoReconnectOnPlainDisconnect(t *testing.T) {
	t.Parallel()

	d := &fakeDialer{}
	s := NewSession("ws://test/chat", validToken(t), d.dial, testTiming())
	defer s.Disconnect()

	rec := &recorder{}
	s.Subscribe(rec.events())

	d.socket(0).fire("connect")
	d.socket(0).fire("disconnect", "transport close")

	require.Equal(t, StateDisconnected, s.State())
	time.Sleep(3 * testTiming().ReconnectDelay)
	require.Equal(t, 1, d.count(), "disconnect alone must not reconnect")

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Equal(t, []string{"transport close"}, rec.disconnects)
}

func TestSession_JoinSwitchImplicitlyLeaves(t *testing.T) {
	t.Parallel()

	d := &fakeDialer{}
	s := NewSession("ws://test/chat", validToken(t), d.dial, testTiming())
	defer s.Disconnect()

	sock := d.socket(0)
	sock.fire("connect")

	s.JoinConversation("conv-x")
	s.JoinConversation("conv-y")

	var relevant []emitted
	for _, e := range sock.emits() {
		if e.event == wire.EventJoinConversation || e.event == wire.EventLeaveConversation {
			relevant = append(relevant, e)
		}
	}
	require.Len(t, relevant, 3)
	require.Equal(t, wire.EventJoinConversation, relevant[0].event)
	require.Equal(t, wire.JoinConversation{ConversationID: "conv-x"}, relevant[0].payload)
	require.Equal(t, wire.EventLeaveConversation, relevant[1].event)
	require.Equal(t, wire.LeaveConversation{ConversationID: "conv-x"}, relevant[1].payload)
	require.Equal(t, wire.EventJoinConversation, relevant[2].event)
	require.Equal(t, wire.JoinConversation{ConversationID: "conv-y"}, relevant[2].payload)
	require.Equal(t, "conv-y", s.CurrentConversation())
}

func TestSession_RepeatedJoinSameConversationEmitsOnce(t *testing.T) {
	t.Parallel()

	d := &fakeDialer{}
	token := validToken(t)
	s := NewSession("ws://test/chat", token, d.dial, testTiming())
	defer s.Disconnect()

	sock := d.socket(0)
	sock.fire("connect")

	s.JoinConversation("conv-x")
	s.JoinConversation("conv-x")

	require.Len(t, sock.emitsOf(wire.EventJoinConversation), 1)
	require.Empty(t, sock.emitsOf(wire.EventLeaveConversation))

	// A fresh connection forgets server-side membership, so the same join
	// must go out again after a heartbeat-driven reconnect.
	sock.fire(wire.EventHeartbeat, map[string]any{"timestamp": float64(1)})
	require.Eventually(t, func() bool { return d.count() == 2 }, waitFor, tick)
	next := d.socket(1)
	next.fire("connect")

	s.JoinConversation("conv-x")
	require.Len(t, next.emitsOf(wire.EventJoinConversation), 1)
}

func TestSession_AnonymousJoinIsLocalOnly(t *testing.T) {
	t.Parallel()

	d := &fakeDialer{}
	s := NewSession("ws://test/chat", "", d.dial, testTiming())
	defer s.Disconnect()

	sock := d.socket(0)
	sock.fire("connect")

	s.JoinConversation("conv-x")

	require.Empty(t, sock.emitsOf(wire.EventJoinConversation))
	require.Equal(t, "conv-x", s.CurrentConversation())

	// Leave in anonymous mode is local too.
	s.LeaveConversation()
	require.Empty(t, sock.emitsOf(wire.EventLeaveConversation))
	require.Empty(t, s.CurrentConversation())
}

func TestSession_SendMessageShapes(t *testing.T) {
	t.Parallel()

	t.Run("authenticated", func(t *testing.T) {
		t.Parallel()

		d := &fakeDialer{}
		s := NewSession("ws://test/chat", validToken(t), d.dial, testTiming())
		defer s.Disconnect()

		sock := d.socket(0)
		sock.fire("connect")
		s.SendMessage("conv-1", "hello", wire.RoleAgent)

		sends := sock.emitsOf(wire.EventSendMessage)
		require.Len(t, sends, 1)
		require.Equal(t, wire.SendMessage{
			ConversationID: "conv-1",
			Message:        "hello",
			Role:           wire.RoleAgent,
		}, sends[0].payload)
		require.Empty(t, sock.emitsOf(wire.EventWidgetSendMessage))
	})

	t.Run("anonymous", func(t *testing.T) {
		t.Parallel()

		d := &fakeDialer{}
		s := NewSession("ws://test/chat", "", d.dial, testTiming())
		defer s.Disconnect()

		sock := d.socket(0)
		sock.fire("connect")
		s.SendMessage("conv-1", "hello", wire.RoleAgent)

		sends := sock.emitsOf(wire.EventWidgetSendMessage)
		require.Len(t, sends, 1)
		payload, ok := sends[0].payload.(wire.WidgetSendMessage)
		require.True(t, ok)
		require.Equal(t, "conv-1", payload.ConversationID)
		require.Equal(t, "hello", payload.Message)
		require.Contains(t, payload.CustomerID, "dashboard_user_")
		_, err := time.Parse(time.RFC3339, payload.Timestamp)
		require.NoError(t, err)
		require.Empty(t, sock.emitsOf(wire.EventSendMessage))
	})
}

func TestSession_DisconnectIsIdempotentAndLeaves(t *testing.T) {
	t.Parallel()

	d := &fakeDialer{}
	s := NewSession("ws://test/chat", validToken(t), d.dial, testTiming())

	sock := d.socket(0)
	sock.fire("connect")
	s.JoinConversation("conv-1")

	s.Disconnect()
	s.Disconnect()

	require.True(t, sock.wasDisconnected())
	require.Equal(t, StateDisconnected, s.State())
	require.Empty(t, s.CurrentConversation())

	leaves := sock.emitsOf(wire.EventLeaveConversation)
	require.Len(t, leaves, 1)
	require.Equal(t, wire.LeaveConversation{ConversationID: "conv-1"}, leaves[0].payload)

	// Events from the closed socket must be ignored.
	rec := &recorder{}
	s.Subscribe(rec.events())
	sock.fire(wire.EventNewMessage, map[string]any{"id": "m1", "conversationId": "conv-1"})
	require.Empty(t, rec.messages)
}

func TestSession_InboundEventsDecodeAndFanOut(t *testing.T) {
	t.Parallel()

	d := &fakeDialer{}
	s := NewSession("ws://test/chat", validToken(t), d.dial, testTiming())
	defer s.Disconnect()

	var statuses []wire.StatusChange
	var joined []string
	var mu sync.Mutex
	rec := &recorder{}
	ev := rec.events()
	ev.OnStatusChange = func(change wire.StatusChange) {
		mu.Lock()
		statuses = append(statuses, change)
		mu.Unlock()
	}
	ev.OnJoined = func(id string) {
		mu.Lock()
		joined = append(joined, id)
		mu.Unlock()
	}
	s.Subscribe(ev)

	sock := d.socket(0)
	sock.fire("connect")
	sock.fire(wire.EventNewMessage, map[string]any{
		"id":             "m-1",
		"conversationId": "conv-1",
		"message":        "hi there",
		"role":           "user",
		"createdAt":      "2026-08-30T12:00:00Z",
	})
	sock.fire(wire.EventStatusChanged, map[string]any{
		"conversationId": "conv-1",
		"status":         "human",
		"assignedAgent":  map[string]any{"id": "u-1", "name": "Ana", "email": "ana@acgq.click"},
	})
	sock.fire(wire.EventJoinedConversation, map[string]any{"conversationId": "conv-1"})

	rec.mu.Lock()
	require.Len(t, rec.messages, 1)
	require.Equal(t, wire.Message{
		ID:             "m-1",
		ConversationID: "conv-1",
		Message:        "hi there",
		Role:           wire.RoleUser,
		CreatedAt:      "2026-08-30T12:00:00Z",
	}, rec.messages[0])
	rec.mu.Unlock()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, statuses, 1)
	require.Equal(t, wire.StatusHuman, statuses[0].Status)
	require.NotNil(t, statuses[0].AssignedAgent)
	require.Equal(t, "Ana", statuses[0].AssignedAgent.Name)
	require.Equal(t, []string{"conv-1"}, joined)
}

func TestSession_MultipleSubscribersAllReceive(t *testing.T) {
	t.Parallel()

	d := &fakeDialer{}
	s := NewSession("ws://test/chat", validToken(t), d.dial, testTiming())
	defer s.Disconnect()

	first := &recorder{}
	second := &recorder{}
	subFirst := s.Subscribe(first.events())
	s.Subscribe(second.events())

	sock := d.socket(0)
	sock.fire("connect")
	require.Equal(t, 1, first.connectCount())
	require.Equal(t, 1, second.connectCount())

	subFirst.Unsubscribe()
	sock.fire("disconnect", "bye")

	first.mu.Lock()
	require.Empty(t, first.disconnects)
	first.mu.Unlock()
	second.mu.Lock()
	require.Equal(t, []string{"bye"}, second.disconnects)
	second.mu.Unlock()
}

package chat

import (
	"errors"
	"sync"

	"github.com/bosar/console/internal/wire"
	"github.com/bosar/console/pkg/logger"
)

// ErrNoConversation is returned by SendMessage before a conversation has
// been bound. Callers are expected to take the REST path instead.
var ErrNoConversation = errors.New("no conversation joined")

// ErrNoToken is returned when a binding cannot acquire a session because no
// token is available.
var ErrNoToken = errors.New("no authentication token available")

// BindingOptions carries optional observer callbacks, already filtered to
// the bound conversation.
type BindingOptions struct {
	OnMessage      func(msg wire.Message)
	OnStatusChange func(change wire.StatusChange)
	OnError        func(message string)
}

// Binding attaches one view to the shared session for one conversation at a
// time. It keeps an ordered buffer of that conversation's live messages
// (deduplicated by id), tracks connection status, and exposes a send
// function. Events for other conversations are dropped.
type Binding struct {
	session *Session
	sub     *Subscription
	opts    BindingOptions

	mu             sync.Mutex
	conversationID string
	messages       []wire.Message
	status         ConnStatus
	errMsg         string
}

// NewBinding acquires a session from the registry and binds it to the given
// conversation. It forces a new connection so a fresh or rotated token
// always wins over a stale shared session. The conversation is joined once
// the session reports connected.
func NewBinding(reg *Registry, token, conversationID string, opts BindingOptions) (*Binding, error) {
	if token == "" {
		return nil, ErrNoToken
	}

	session := reg.Get(token, true)
	if session == nil {
		return nil, ErrNoToken
	}

	b := &Binding{
		session:        session,
		opts:           opts,
		conversationID: conversationID,
		status:         session.Status(),
	}
	b.sub = session.Subscribe(Events{
		OnConnect:      b.handleConnect,
		OnDisconnect:   b.handleDisconnect,
		OnMessage:      b.handleMessage,
		OnStatusChange: b.handleStatusChange,
		OnError:        b.handleError,
		OnJoined: func(id string) {
			logger.Debugf("chat: binding: joined %s", id)
		},
	})

	// The session connects in the background; if it already landed before
	// the subscription was in place, join now instead of waiting for an
	// OnConnect that already fired.
	if session.IsConnected() {
		b.handleConnect(session.Mode())
	}
	return b, nil
}

func (b *Binding) handleConnect(Mode) {
	b.mu.Lock()
	b.status = StatusConnected
	b.errMsg = ""
	id := b.conversationID
	b.mu.Unlock()

	if id != "" {
		b.session.JoinConversation(id)
	}
}

func (b *Binding) handleDisconnect(string) {
	b.mu.Lock()
	b.status = StatusDisconnected
	b.mu.Unlock()
}

func (b *Binding) handleMessage(msg wire.Message) {
	b.mu.Lock()
	if msg.ConversationID != b.conversationID {
		b.mu.Unlock()
		return
	}
	for _, existing := range b.messages {
		if existing.ID == msg.ID {
			b.mu.Unlock()
			return
		}
	}
	b.messages = append(b.messages, msg)
	b.mu.Unlock()

	if b.opts.OnMessage != nil {
		b.opts.OnMessage(msg)
	}
}

func (b *Binding) handleStatusChange(change wire.StatusChange) {
	b.mu.Lock()
	match := change.ConversationID == b.conversationID
	b.mu.Unlock()

	if match && b.opts.OnStatusChange != nil {
		b.opts.OnStatusChange(change)
	}
}

func (b *Binding) handleError(message string) {
	b.mu.Lock()
	b.errMsg = message
	b.status = StatusError
	b.mu.Unlock()

	if b.opts.OnError != nil {
		b.opts.OnError(message)
	}
}

// SetConversation rebinds to a different conversation: leave the old one,
// drop the buffered messages, join the new one, in that order.
func (b *Binding) SetConversation(conversationID string) {
	b.mu.Lock()
	prev := b.conversationID
	if prev == conversationID {
		b.mu.Unlock()
		return
	}
	connected := b.status == StatusConnected
	b.mu.Unlock()

	if connected && prev != "" {
		b.session.LeaveConversation()
	}

	b.mu.Lock()
	b.conversationID = conversationID
	b.messages = nil
	b.mu.Unlock()

	if connected && conversationID != "" {
		b.session.JoinConversation(conversationID)
	}
}

// Conversation returns the currently bound conversation id.
func (b *Binding) Conversation() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conversationID
}

// Messages returns a copy of the live message buffer for the bound
// conversation, in arrival order.
func (b *Binding) Messages() []wire.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]wire.Message, len(b.messages))
	copy(out, b.messages)
	return out
}

// Status returns the view-facing connection status.
func (b *Binding) Status() ConnStatus {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}

// IsConnected reports whether live sends would go over the transport.
func (b *Binding) IsConnected() bool {
	return b.Status() == StatusConnected
}

// Err returns the latest transport error message, or empty.
func (b *Binding) Err() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.errMsg
}

// SendMessage sends over the live transport, fire-and-forget. Before a
// conversation is bound it logs and returns ErrNoConversation; callers fall
// back to the REST path.
func (b *Binding) SendMessage(message string, role wire.Role) error {
	b.mu.Lock()
	id := b.conversationID
	b.mu.Unlock()

	if id == "" {
		logger.Errorf("chat: binding: send with no conversation joined")
		return ErrNoConversation
	}
	b.session.SendMessage(id, message, role)
	return nil
}

// Close detaches the binding from the session: the current conversation is
// left and the subscription removed. The shared session itself stays up for
// other views; the registry owns its lifecycle.
func (b *Binding) Close() {
	b.mu.Lock()
	id := b.conversationID
	b.conversationID = ""
	connected := b.status == StatusConnected
	b.mu.Unlock()

	if connected && id != "" {
		b.session.LeaveConversation()
	}
	b.sub.Unsubscribe()
}

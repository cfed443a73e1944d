package chat

import (
	"context"
	"sync"

	"github.com/bosar/console/internal/api"
	"github.com/bosar/console/internal/wire"
	"github.com/bosar/console/pkg/logger"
)

// ConversationView is the complete read/write surface for one conversation:
// REST history plus the binding's live buffer, merged for display, and the
// dual-path send policy. Sending never blocks on transport availability:
// the live path is used when connected, the REST path otherwise.
type ConversationView struct {
	rest    *api.Client
	binding *Binding

	mu      sync.Mutex
	history []wire.Message
}

// NewConversationView creates a view over an existing binding. Call Refresh
// to load history before the first Messages read.
func NewConversationView(rest *api.Client, binding *Binding) *ConversationView {
	return &ConversationView{rest: rest, binding: binding}
}

// Binding exposes the underlying binding for status display.
func (v *ConversationView) Binding() *Binding {
	return v.binding
}

// Refresh refetches the conversation's message history from the REST API.
func (v *ConversationView) Refresh(ctx context.Context) error {
	page, err := v.rest.Messages(ctx, v.binding.Conversation(), api.MessagesQuery{})
	if err != nil {
		return err
	}
	v.mu.Lock()
	v.history = page.Messages
	v.mu.Unlock()
	return nil
}

// Messages returns the merged, deduplicated, time-ordered view of history
// and live messages. Recomputed on every call so a history refetch or a
// live arrival is always reflected.
func (v *ConversationView) Messages() []wire.Message {
	v.mu.Lock()
	history := v.history
	v.mu.Unlock()
	return Merge(history, v.binding.Messages())
}

// Send submits a message. When the binding reports connected it goes over
// the live transport, fire-and-forget: no local echo is synthesized, the
// authoritative copy arrives as a live event. Otherwise it goes through the
// REST creation endpoint followed by a history refetch so the merged view
// picks up the authoritative record.
func (v *ConversationView) Send(ctx context.Context, message string, role wire.Role) error {
	if v.binding.IsConnected() {
		return v.binding.SendMessage(message, role)
	}

	logger.Debugf("chat: transport down, sending via REST")
	_, err := v.rest.CreateMessage(ctx, api.CreateMessageRequest{
		ConversationID: v.binding.Conversation(),
		Message:        message,
		Role:           role,
	})
	if err != nil {
		return err
	}
	return v.Refresh(ctx)
}

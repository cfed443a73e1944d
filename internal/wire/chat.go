package wire

// Role identifies who authored a chat message.
type Role string

const (
	// RoleUser is an end customer talking through the widget.
	RoleUser Role = "user"
	// RoleBot is the AI assistant.
	RoleBot Role = "bot"
	// RoleAgent is a human support agent.
	RoleAgent Role = "agent"
)

// Status is the handling state of a conversation.
type Status string

const (
	// StatusAuto means the bot is answering on its own.
	StatusAuto Status = "auto"
	// StatusHuman means an agent has taken the conversation over.
	StatusHuman Status = "human"
	// StatusPending means the conversation is waiting for an agent.
	StatusPending Status = "pending"
	// StatusClosed means the conversation is finished.
	StatusClosed Status = "closed"
)

// UserRef is the embedded user object attached to agent messages and
// takeover events.
type UserRef struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Message is a single chat message as delivered by the realtime stream or
// converted from a REST history record. Messages are immutable once
// received; identity is the ID field.
type Message struct {
	ID             string   `json:"id"`
	ConversationID string   `json:"conversationId"`
	Message        string   `json:"message"`
	Role           Role     `json:"role"`
	UserID         string   `json:"userId,omitempty"`
	User           *UserRef `json:"user,omitempty"`
	// CreatedAt is an RFC 3339 timestamp assigned by the backend.
	CreatedAt string `json:"createdAt"`
}

// StatusChange is the server -> client "conversation-status-changed" event
// payload. It is informational only and never mutates message data.
type StatusChange struct {
	ConversationID string   `json:"conversationId"`
	Status         Status   `json:"status"`
	AssignedAgent  *UserRef `json:"assignedAgent,omitempty"`
}

// JoinedConversation is the server -> client "joined-conversation" ack
// payload.
type JoinedConversation struct {
	ConversationID string `json:"conversationId"`
}

// ChatError is the server -> client "error" event payload.
type ChatError struct {
	Message string `json:"message"`
}

// Heartbeat is the server -> client "heartbeat" event payload.
type Heartbeat struct {
	// Timestamp is the server clock in Unix milliseconds.
	Timestamp int64 `json:"timestamp"`
}

// HeartbeatResponse is the client -> server "heartbeat-response" payload.
// Carrying both clocks lets the backend estimate skew per connection.
type HeartbeatResponse struct {
	// Timestamp is the local clock in Unix milliseconds at receipt time.
	Timestamp int64 `json:"timestamp"`
	// ServerTimestamp echoes the timestamp from the triggering heartbeat.
	ServerTimestamp int64 `json:"serverTimestamp"`
}

// JoinConversation is the client -> server "join-conversation" payload.
type JoinConversation struct {
	ConversationID string `json:"conversationId"`
}

// LeaveConversation is the client -> server "leave-conversation" payload.
type LeaveConversation struct {
	ConversationID string `json:"conversationId"`
}

// SendMessage is the client -> server "send-message" payload used on
// authenticated connections.
type SendMessage struct {
	ConversationID string `json:"conversationId"`
	Message        string `json:"message"`
	Role           Role   `json:"role"`
}

// WidgetSendMessage is the client -> server "widget-send-message" payload
// used on anonymous connections. The anonymous path impersonates a widget
// visitor, so it carries a synthesized customer id and a client timestamp
// instead of relying on the connection's identity.
type WidgetSendMessage struct {
	CustomerID     string `json:"customerId"`
	ConversationID string `json:"conversationId"`
	Message        string `json:"message"`
	// Timestamp is an RFC 3339 client-side send time.
	Timestamp string `json:"timestamp"`
}

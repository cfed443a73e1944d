package wire

// Client -> server event names on the chat namespace.
const (
	EventJoinConversation  = "join-conversation"
	EventLeaveConversation = "leave-conversation"
	EventSendMessage       = "send-message"
	EventWidgetSendMessage = "widget-send-message"
	EventHeartbeatResponse = "heartbeat-response"
)

// Server -> client event names on the chat namespace. The engine-level
// "connect", "disconnect" and "connect_error" events are part of the
// transport contract and not listed here.
const (
	EventJoinedConversation = "joined-conversation"
	EventNewMessage         = "new-message"
	EventStatusChanged      = "conversation-status-changed"
	EventChatError          = "error"
	EventHeartbeat          = "heartbeat"
)

package chat

import (
	"encoding/json"
	"fmt"

	socket "github.com/zishang520/socket.io/clients/socket/v3"
	"github.com/zishang520/socket.io/v3/pkg/types"
)

// Transport is the slice of a socket.io connection the session needs. Tests
// substitute a fake; production uses the socket.io client via Dial.
type Transport interface {
	// On registers a handler for a named event.
	On(event string, fn func(args ...any))
	// Emit sends an event with a single payload.
	Emit(event string, payload any) error
	// Connected reports whether the low-level connection is up.
	Connected() bool
	// Disconnect closes the connection. The transport drops its listeners
	// with it.
	Disconnect()
	// ID returns the transport's connection id, if assigned.
	ID() string
}

// DialFunc opens a transport to the chat namespace. An empty token means an
// anonymous connection.
type DialFunc func(chatURL, token string) (Transport, error)

// Dial opens a socket.io connection to the chat namespace. The connection
// multiplexes polling and websocket and upgrades when it can; credentials
// ride in the socket.io auth bag. Connecting continues in the background
// after Dial returns; the session observes the outcome via the transport's
// connect / connect_error events.
func Dial(chatURL, token string) (Transport, error) {
	sock, err := socket.Connect(chatURL, dialOptions(token))
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	return &sioTransport{sock: sock}, nil
}

// dialOptions builds the client options for one connect attempt. The
// manager's built-in retry loop defaults to on and must stay off: the
// session's heartbeat watchdog is the only reconnection path. Credentials
// are enabled so polling requests carry the load balancer's affinity
// cookie.
func dialOptions(token string) *socket.Options {
	opts := socket.DefaultOptions()
	opts.SetTransports(types.NewSet(socket.Polling, socket.WebSocket))
	opts.SetReconnection(false)
	opts.SetWithCredentials(true)
	if token != "" {
		opts.SetAuth(map[string]interface{}{"token": token})
	}
	return opts
}

type sioTransport struct {
	sock *socket.Socket
}

func (t *sioTransport) On(event string, fn func(args ...any)) {
	_ = t.sock.On(types.EventName(event), func(args ...any) {
		fn(args...)
	})
}

func (t *sioTransport) Emit(event string, payload any) error {
	t.sock.Emit(event, payload)
	return nil
}

func (t *sioTransport) Connected() bool {
	return t.sock.Connected()
}

func (t *sioTransport) Disconnect() {
	t.sock.Disconnect()
}

func (t *sioTransport) ID() string {
	return string(t.sock.Id())
}

// decodeEvent converts a socket.io event argument into a typed payload. The
// client library hands payloads over as map[string]interface{}, so decoding
// goes through a JSON round trip.
func decodeEvent[T any](args []any) (T, bool) {
	var out T
	if len(args) == 0 {
		return out, false
	}
	raw, err := json.Marshal(args[0])
	if err != nil {
		return out, false
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, false
	}
	return out, true
}

// eventErrorMessage extracts a human-readable message from a connect_error
// or error event payload, which may arrive as a string, an error, or a map
// with a message field.
func eventErrorMessage(args []any) string {
	if len(args) == 0 {
		return "unknown error"
	}
	switch v := args[0].(type) {
	case string:
		return v
	case error:
		return v.Error()
	case map[string]interface{}:
		if msg, ok := v["message"].(string); ok && msg != "" {
			return msg
		}
	}
	return fmt.Sprintf("%v", args[0])
}

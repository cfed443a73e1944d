package chat

import (
	"sync"
	"time"
)

// testTiming compresses every timer so the suite runs in milliseconds.
func testTiming() Timing {
	return Timing{
		ConnectTimeout:   500 * time.Millisecond,
		FallbackDelay:    5 * time.Millisecond,
		ReconnectDelay:   10 * time.Millisecond,
		HeartbeatTimeout: 40 * time.Millisecond,
	}
}

type emitted struct {
	event   string
	payload any
}

// fakeSocket implements Transport in memory. Tests fire server events with
// fire and inspect client emissions with emits.
type fakeSocket struct {
	mu           sync.Mutex
	handlers     map[string][]func(args ...any)
	sent         []emitted
	connected    bool
	disconnected bool
}

func newFakeSocket() *fakeSocket {
	return &fakeSocket{handlers: make(map[string][]func(args ...any))}
}

func (f *fakeSocket) On(event string, fn func(args ...any)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[event] = append(f.handlers[event], fn)
}

func (f *fakeSocket) Emit(event string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, emitted{event: event, payload: payload})
	return nil
}

func (f *fakeSocket) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeSocket) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	f.disconnected = true
}

func (f *fakeSocket) ID() string { return "fake-socket" }

// fire invokes every handler registered for the event, in order, on the
// caller's goroutine.
func (f *fakeSocket) fire(event string, args ...any) {
	f.mu.Lock()
	handlers := append([]func(args ...any){}, f.handlers[event]...)
	if event == "connect" {
		f.connected = true
	}
	f.mu.Unlock()

	for _, fn := range handlers {
		fn(args...)
	}
}

func (f *fakeSocket) emits() []emitted {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]emitted, len(f.sent))
	copy(out, f.sent)
	return out
}

func (f *fakeSocket) emitsOf(event string) []emitted {
	var out []emitted
	for _, e := range f.emits() {
		if e.event == event {
			out = append(out, e)
		}
	}
	return out
}

func (f *fakeSocket) wasDisconnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.disconnected
}

// fakeDialer records every dial and hands out fresh fake sockets.
type fakeDialer struct {
	mu     sync.Mutex
	socks  []*fakeSocket
	tokens []string
}

func (d *fakeDialer) dial(_, token string) (Transport, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	sock := newFakeSocket()
	d.socks = append(d.socks, sock)
	d.tokens = append(d.tokens, token)
	return sock, nil
}

func (d *fakeDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.socks)
}

func (d *fakeDialer) socket(i int) *fakeSocket {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.socks[i]
}

func (d *fakeDialer) token(i int) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.tokens[i]
}

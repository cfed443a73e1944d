package chat

import (
	"sync"

	"github.com/bosar/console/pkg/logger"
)

// Registry hands out the shared session so multiple views reuse one
// connection instead of each opening their own. It holds at most one live
// session; replacing it always disposes of the previous one first, so two
// sessions are never live at once. Callers must Release on full logout or
// the connection outlives the token that opened it.
type Registry struct {
	url    string
	dial   DialFunc
	timing Timing

	mu      sync.Mutex
	session *Session
}

// NewRegistry creates a registry for the given chat URL. The dial function
// and timings are passed to every session it constructs.
func NewRegistry(chatURL string, dial DialFunc, timing Timing) *Registry {
	return &Registry{url: chatURL, dial: dial, timing: timing}
}

// Get returns the shared session. An existing connected session is reused
// unless forceNew is set. Otherwise any existing session is disconnected
// and, when a token is supplied, a fresh session replaces it. Returns nil
// when there is no token to build a session from.
func (r *Registry) Get(token string, forceNew bool) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.session != nil && !forceNew && r.session.IsConnected() {
		logger.Debugf("chat: reusing existing connected session")
		return r.session
	}

	if r.session != nil {
		logger.Debugf("chat: disconnecting previous session")
		r.session.Disconnect()
		r.session = nil
	}

	if token == "" {
		return nil
	}

	logger.Debugf("chat: creating new session")
	r.session = NewSession(r.url, token, r.dial, r.timing)
	return r.session
}

// Release disconnects and drops the shared session unconditionally.
func (r *Registry) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.session != nil {
		r.session.Disconnect()
		r.session = nil
	}
}

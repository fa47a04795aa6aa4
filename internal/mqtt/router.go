// internal/mqtt/router.go
package mqtt

import (
	"sync"

	"golang.org/x/exp/slog"
)

// Action verbs.
const (
	VerbUpgrade  = "upgrade"  // check for and install a newer image
	VerbLogLevel = "loglevel" // payload 0..5 or a level name
)

// Handler receives the payload of one command. It runs on the client's
// network goroutine and must not block.
type Handler func(payload []byte)

// Router maps action verbs to handlers.
type Router struct {
	topics Topics
	log    *slog.Logger

	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewRouter(topics Topics, log *slog.Logger) *Router {
	if log == nil {
		log = slog.Default()
	}
	return &Router{
		topics:   topics,
		log:      log.With("component", "router"),
		handlers: make(map[string]Handler),
	}
}

// Handle registers h for verb, replacing any previous handler.
func (r *Router) Handle(verb string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[verb] = h
}

// Dispatch routes one inbound message. Unknown verbs are logged and ignored.
func (r *Router) Dispatch(topic string, payload []byte) {
	r.log.Debug("message arrived", "topic", topic, "bytes", len(payload))

	verb, ok := r.topics.Verb(topic)
	if !ok {
		r.log.Warn("message outside action tree ignored", "topic", topic)
		return
	}

	r.mu.RLock()
	h := r.handlers[verb]
	r.mu.RUnlock()

	if h == nil {
		r.log.Warn("unknown action", "verb", verb)
		return
	}

	r.log.Info("action received", "verb", verb)
	h(payload)
}

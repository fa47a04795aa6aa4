// internal/status/state.go
package status

import "sync/atomic"

// Connectivity is the process-wide link state.
// Written only by the connectivity supervisor; read by everyone else.
type Connectivity struct {
	Network   bool `json:"network"`
	Messaging bool `json:"messaging"`

	// Seen is set once any link has come up since boot.
	Seen bool `json:"-"`
}

// Links holds Connectivity. The zero value is both links down.
type Links struct {
	network   atomic.Bool
	messaging atomic.Bool
	seen      atomic.Bool
}

func (l *Links) SetNetwork(up bool) {
	l.network.Store(up)
	if up {
		l.seen.Store(true)
	}
}

func (l *Links) SetMessaging(up bool) {
	l.messaging.Store(up)
	if up {
		l.seen.Store(true)
	}
}

// Connectivity returns the current state. Reads are advisory: a link may
// drop right after the check.
func (l *Links) Connectivity() Connectivity {
	return Connectivity{
		Network:   l.network.Load(),
		Messaging: l.messaging.Load(),
		Seen:      l.seen.Load(),
	}
}

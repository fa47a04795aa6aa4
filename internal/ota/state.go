// internal/ota/state.go
package ota

import "fmt"

// State is the update coordinator state.
type State uint32

const (
	Dormant State = iota
	Checking
	NotNeeded
	PausingPoll
	Downloading
	Installed
	Failed
	ResumingPoll
)

func (s State) String() string {
	switch s {
	case Dormant:
		return "dormant"
	case Checking:
		return "checking"
	case NotNeeded:
		return "not_needed"
	case PausingPoll:
		return "pausing_poll"
	case Downloading:
		return "downloading"
	case Installed:
		return "installed"
	case Failed:
		return "failed"
	case ResumingPoll:
		return "resuming_poll"
	default:
		return fmt.Sprintf("state(%d)", uint32(s))
	}
}

// Active reports whether a session holds the coordinator.
func (s State) Active() bool {
	return s != Dormant
}

// internal/status/snapshot.go
package status

// ---- HEALTH CODES ----

// HealthUnknown represents the boot state, before any link came up.
const HealthUnknown = "unknown"

// HealthOK means both links are up and polling is enabled.
const HealthOK = "ok"

// HealthDegraded means a link is down; telemetry is being dropped.
const HealthDegraded = "degraded"

// HealthUpdating means polling is paused for a firmware update.
const HealthUpdating = "updating"

// Snapshot is what /healthz reports.
// It contains no logic and no memory of the past beyond current state.
type Snapshot struct {
	Version     string       `json:"version"`
	DeviceID    string       `json:"device_id"`
	Health      string       `json:"health"`
	Links       Connectivity `json:"links"`
	PollEnabled bool         `json:"poll_enabled"`
	PollRunning bool         `json:"poll_running"`
	UpdateState string       `json:"update_state"`
}

// Encode derives the health code from the snapshot fields.
// No IO. No side effects.
func Encode(s Snapshot) Snapshot {
	switch {
	case !s.PollEnabled:
		s.Health = HealthUpdating
	case s.Links.Network && s.Links.Messaging:
		s.Health = HealthOK
	case !s.Links.Network && !s.Links.Messaging && !s.Links.Seen:
		s.Health = HealthUnknown
	default:
		s.Health = HealthDegraded
	}
	return s
}

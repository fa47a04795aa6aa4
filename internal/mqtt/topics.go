// internal/mqtt/topics.go
package mqtt

import "strings"

// Topics builds the per-device topic tree: <base>/<deviceId>/...
type Topics struct {
	Base     string
	DeviceID string
}

func (t Topics) prefix() string {
	if t.Base == "" {
		return t.DeviceID
	}
	return t.Base + "/" + t.DeviceID
}

// Data is the telemetry topic.
func (t Topics) Data() string { return t.prefix() + "/data" }

// Status carries the availability marker (online, or offline as last will).
func (t Topics) Status() string { return t.prefix() + "/status" }

// Health carries the retained health snapshot.
func (t Topics) Health() string { return t.prefix() + "/health" }

// Actions is the subscription filter for inbound commands.
func (t Topics) Actions() string { return t.prefix() + "/action/#" }

// Verb extracts the command verb from an action topic.
// ok is false for topics outside this device's action tree.
func (t Topics) Verb(topic string) (verb string, ok bool) {
	p := t.prefix() + "/action/"
	if !strings.HasPrefix(topic, p) {
		return "", false
	}
	verb = topic[len(p):]
	if verb == "" {
		return "", false
	}
	return verb, true
}

// internal/publisher/status_writer.go
package publisher

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/tamzrod/modbus-mqtt-gateway/internal/status"
)

// StatusWriter publishes the health snapshot, retained, whenever it changes.
// It receives a snapshot and writes it verbatim.
type StatusWriter struct {
	topic string
	msg   Messaging

	mu       sync.Mutex
	needFull bool
	last     status.Snapshot
}

// NewStatusWriter returns nil when topic is empty (status disabled).
func NewStatusWriter(topic string, msg Messaging) *StatusWriter {
	if topic == "" || msg == nil {
		return nil
	}
	return &StatusWriter{
		topic:    topic,
		msg:      msg,
		needFull: true, // re-assert on first successful write
	}
}

// Reassert forces the next WriteStatus to publish even if nothing changed.
// Called after every broker (re)connect: a fresh session may have lost it.
func (sw *StatusWriter) Reassert() {
	if sw == nil {
		return
	}
	sw.mu.Lock()
	sw.needFull = true
	sw.mu.Unlock()
}

// WriteStatus delivers s. On any failure the next call re-asserts.
func (sw *StatusWriter) WriteStatus(s status.Snapshot) error {
	if sw == nil {
		return errors.New("status writer: disabled")
	}

	sw.mu.Lock()
	defer sw.mu.Unlock()

	if !sw.needFull && s == sw.last {
		return nil
	}
	if !sw.msg.IsConnected() {
		sw.needFull = true
		return nil
	}

	b, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("status writer: encode: %w", err)
	}
	if err := sw.msg.Publish(sw.topic, 1, true, b); err != nil {
		sw.needFull = true
		return fmt.Errorf("status writer: topic=%s: %w", sw.topic, err)
	}

	sw.needFull = false
	sw.last = s
	return nil
}

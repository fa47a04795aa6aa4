// internal/poller/types.go
package poller

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/tamzrod/modbus-mqtt-gateway/internal/registers"
)

// Field is one named telemetry value.
type Field = registers.Field

// Document is the telemetry produced by one poll cycle.
// Fields keep catalog order.
type Document struct {
	DeviceID string
	At       time.Time

	// Partial is set when the cycle was interrupted. A partial document
	// must never be published.
	Partial bool

	fields []Field
}

// NewDocument builds a complete document from already decoded fields.
func NewDocument(deviceID string, at time.Time, fields ...Field) Document {
	d := Document{DeviceID: deviceID, At: at}
	d.append(fields...)
	return d
}

func (d *Document) append(fs ...Field) {
	d.fields = append(d.fields, fs...)
}

// Len returns the number of fields.
func (d Document) Len() int { return len(d.fields) }

// Fields returns a copy of the fields in catalog order.
func (d Document) Fields() []Field {
	out := make([]Field, len(d.fields))
	copy(out, d.fields)
	return out
}

// Map returns the fields as an unordered map, for codecs without key order.
func (d Document) Map() map[string]any {
	m := make(map[string]any, len(d.fields))
	for _, f := range d.fields {
		m[f.Name] = f.Value
	}
	return m
}

// MarshalJSON writes a flat JSON object, keys in catalog order.
func (d Document) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	for i, f := range d.fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(f.Name)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(f.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

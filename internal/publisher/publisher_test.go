// internal/publisher/publisher_test.go
package publisher

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"
	"gotest.tools/v3/assert"

	"github.com/tamzrod/modbus-mqtt-gateway/internal/poller"
	"github.com/tamzrod/modbus-mqtt-gateway/internal/status"
)

type publishCall struct {
	topic   string
	qos     byte
	retain  bool
	payload []byte
}

type fakeMessaging struct {
	mu        sync.Mutex
	connected bool
	err       error
	calls     []publishCall
}

func (f *fakeMessaging) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeMessaging) Publish(topic string, qos byte, retain bool, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.calls = append(f.calls, publishCall{topic, qos, retain, payload})
	return nil
}

func sampleDoc() poller.Document {
	return poller.NewDocument("gw", time.Unix(0, 0),
		poller.Field{Name: "temperature_external", Value: 21.5},
		poller.Field{Name: "io_pump_a", Value: true},
	)
}

func TestNew_Rejects(t *testing.T) {
	msg := &fakeMessaging{}

	_, err := New(Config{}, msg, nil, nil)
	assert.ErrorContains(t, err, "topic required")

	_, err = New(Config{Topic: "t", QoS: 3}, msg, nil, nil)
	assert.ErrorContains(t, err, "invalid qos")

	_, err = New(Config{Topic: "t", Format: "xml"}, msg, nil, nil)
	assert.ErrorContains(t, err, "unknown format")

	_, err = New(Config{Topic: "t"}, nil, nil, nil)
	assert.ErrorContains(t, err, "messaging client required")
}

func TestPublish_JSONRetained(t *testing.T) {
	msg := &fakeMessaging{connected: true}
	p, err := New(Config{Topic: "diematic/gw/data", Retain: true}, msg, nil, nil)
	assert.NilError(t, err)

	assert.NilError(t, p.Publish(sampleDoc()))

	assert.Equal(t, len(msg.calls), 1)
	c := msg.calls[0]
	assert.Equal(t, c.topic, "diematic/gw/data")
	assert.Equal(t, c.qos, byte(0))
	assert.Equal(t, c.retain, true)
	assert.Equal(t, string(c.payload), `{"temperature_external":21.5,"io_pump_a":true}`)
}

func TestPublish_CBOR(t *testing.T) {
	msg := &fakeMessaging{connected: true}
	p, err := New(Config{Topic: "t", Format: FormatCBOR}, msg, nil, nil)
	assert.NilError(t, err)

	assert.NilError(t, p.Publish(sampleDoc()))
	assert.Equal(t, len(msg.calls), 1)

	var got map[string]any
	assert.NilError(t, cbor.Unmarshal(msg.calls[0].payload, &got))
	assert.Equal(t, got["temperature_external"], 21.5)
	assert.Equal(t, got["io_pump_a"], true)
}

func TestPublish_OfflineDropped(t *testing.T) {
	msg := &fakeMessaging{}
	p, err := New(Config{Topic: "t"}, msg, nil, nil)
	assert.NilError(t, err)

	assert.NilError(t, p.Publish(sampleDoc()))
	assert.Equal(t, len(msg.calls), 0)

	// no replay once the link is back
	msg.connected = true
	assert.NilError(t, p.Publish(sampleDoc()))
	assert.Equal(t, len(msg.calls), 1)
}

func TestPublish_PartialRefused(t *testing.T) {
	msg := &fakeMessaging{connected: true}
	p, err := New(Config{Topic: "t"}, msg, nil, nil)
	assert.NilError(t, err)

	doc := sampleDoc()
	doc.Partial = true

	err = p.Publish(doc)
	assert.Assert(t, errors.Is(err, ErrPartialDocument))
	assert.Equal(t, len(msg.calls), 0)
}

func TestPublish_BrokerError(t *testing.T) {
	msg := &fakeMessaging{connected: true, err: errors.New("not connected")}
	p, err := New(Config{Topic: "t"}, msg, nil, nil)
	assert.NilError(t, err)

	assert.ErrorContains(t, p.Publish(sampleDoc()), "not connected")
}

func TestStatusWriter_PublishesOnChange(t *testing.T) {
	msg := &fakeMessaging{connected: true}
	sw := NewStatusWriter("diematic/gw/health", msg)

	s := status.Encode(status.Snapshot{Version: "000.000.023", PollEnabled: true})
	assert.NilError(t, sw.WriteStatus(s))
	assert.NilError(t, sw.WriteStatus(s))
	assert.Equal(t, len(msg.calls), 1)
	assert.Equal(t, msg.calls[0].retain, true)

	s.PollEnabled = false
	assert.NilError(t, sw.WriteStatus(status.Encode(s)))
	assert.Equal(t, len(msg.calls), 2)

	sw.Reassert()
	assert.NilError(t, sw.WriteStatus(status.Encode(s)))
	assert.Equal(t, len(msg.calls), 3)
}

func TestStatusWriter_FailureReasserts(t *testing.T) {
	msg := &fakeMessaging{connected: true, err: errors.New("boom")}
	sw := NewStatusWriter("t", msg)

	s := status.Snapshot{Version: "v"}
	assert.ErrorContains(t, sw.WriteStatus(s), "boom")

	msg.err = nil
	assert.NilError(t, sw.WriteStatus(s))
	assert.Equal(t, len(msg.calls), 1)
}

func TestStatusWriter_Disabled(t *testing.T) {
	var sw *StatusWriter = NewStatusWriter("", &fakeMessaging{})
	assert.Assert(t, sw == nil)
	assert.ErrorContains(t, sw.WriteStatus(status.Snapshot{}), "disabled")
}

// internal/publisher/publisher.go

// Package publisher hands telemetry documents to the messaging link.
// There is no queue: a document produced while the broker is unreachable
// is dropped.
package publisher

import (
	"errors"
	"fmt"

	"golang.org/x/exp/slog"

	"github.com/tamzrod/modbus-mqtt-gateway/internal/metrics"
	"github.com/tamzrod/modbus-mqtt-gateway/internal/poller"
)

// ErrPartialDocument is returned for documents of an interrupted cycle.
var ErrPartialDocument = errors.New("publisher: partial document refused")

// Messaging is the exact contract the publisher uses.
type Messaging interface {
	IsConnected() bool
	Publish(topic string, qos byte, retain bool, payload []byte) error
}

// Config is the publish plan for the telemetry topic.
type Config struct {
	Topic  string
	QoS    byte
	Retain bool
	Format string
}

// Publisher implements poller.Sink.
type Publisher struct {
	cfg     Config
	msg     Messaging
	codec   Codec
	log     *slog.Logger
	metrics *metrics.Metrics
}

func New(cfg Config, msg Messaging, log *slog.Logger, m *metrics.Metrics) (*Publisher, error) {
	if cfg.Topic == "" {
		return nil, errors.New("publisher: topic required")
	}
	if cfg.QoS > 2 {
		return nil, fmt.Errorf("publisher: invalid qos %d", cfg.QoS)
	}
	if msg == nil {
		return nil, errors.New("publisher: messaging client required")
	}
	codec, err := NewCodec(cfg.Format)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}

	return &Publisher{
		cfg:     cfg,
		msg:     msg,
		codec:   codec,
		log:     log.With("component", "publisher"),
		metrics: m,
	}, nil
}

// Publish serializes doc and sends it if the broker link is up.
// Offline is not an error: the document is dropped.
func (p *Publisher) Publish(doc poller.Document) error {
	if doc.Partial {
		p.metrics.Publish("refused")
		return ErrPartialDocument
	}

	if !p.msg.IsConnected() {
		p.log.Debug("broker unreachable, dropping document", "fields", doc.Len())
		p.metrics.Publish("dropped")
		return nil
	}

	payload, err := p.codec.Encode(doc)
	if err != nil {
		p.metrics.Publish("failed")
		return fmt.Errorf("publisher: encode: %w", err)
	}

	if err := p.msg.Publish(p.cfg.Topic, p.cfg.QoS, p.cfg.Retain, payload); err != nil {
		p.metrics.Publish("failed")
		return fmt.Errorf("publisher: topic=%s: %w", p.cfg.Topic, err)
	}

	p.log.Info("publishing telemetry", "topic", p.cfg.Topic, "fields", doc.Len(), "bytes", len(payload))
	p.metrics.Publish("sent")
	return nil
}

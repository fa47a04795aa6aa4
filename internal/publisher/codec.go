// internal/publisher/codec.go
package publisher

import (
	"encoding/json"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/tamzrod/modbus-mqtt-gateway/internal/poller"
)

// Supported payload formats.
const (
	FormatJSON = "json"
	FormatCBOR = "cbor"
)

// Codec serializes one telemetry document.
type Codec interface {
	Encode(doc poller.Document) ([]byte, error)
	ContentType() string
}

// NewCodec returns the codec for format. Empty means JSON.
func NewCodec(format string) (Codec, error) {
	switch format {
	case "", FormatJSON:
		return jsonCodec{}, nil
	case FormatCBOR:
		em, err := cbor.CanonicalEncOptions().EncMode()
		if err != nil {
			return nil, fmt.Errorf("publisher: cbor: %w", err)
		}
		return cborCodec{em: em}, nil
	default:
		return nil, fmt.Errorf("publisher: unknown format %q", format)
	}
}

// jsonCodec keeps catalog order.
type jsonCodec struct{}

func (jsonCodec) Encode(doc poller.Document) ([]byte, error) { return json.Marshal(doc) }
func (jsonCodec) ContentType() string { return "application/json" }

// cborCodec writes a map; canonical mode sorts the keys.
type cborCodec struct {
	em cbor.EncMode
}

func (c cborCodec) Encode(doc poller.Document) ([]byte, error) { return c.em.Marshal(doc.Map()) }
func (cborCodec) ContentType() string { return "application/cbor" }

// internal/poller/builder.go
package poller

import (
	"time"

	"golang.org/x/exp/slog"

	"github.com/tamzrod/modbus-mqtt-gateway/internal/config"
	"github.com/tamzrod/modbus-mqtt-gateway/internal/metrics"
	pmodbus "github.com/tamzrod/modbus-mqtt-gateway/internal/poller/modbus"
	"github.com/tamzrod/modbus-mqtt-gateway/internal/registers"
)

// Build opens the field-bus port and constructs a Poller over the compiled
// register catalog. cfg must already be validated and normalized.
// The returned closer releases the serial port.
func Build(cfg *config.Config, log *slog.Logger, m *metrics.Metrics) (*Poller, func() error, error) {
	fb := cfg.Fieldbus

	mc := pmodbus.Config{
		Device:   fb.Device,
		BaudRate: fb.BaudRate,
		DataBits: fb.DataBits,
		Parity:   fb.Parity,
		StopBits: fb.StopBits,
		UnitID:   fb.UnitID,
		Timeout:  time.Duration(fb.TimeoutMs) * time.Millisecond,
		RS485:    fb.RS485,
	}
	if fb.Trace && log != nil {
		mc.Trace = log.With("component", "modbus")
	}

	// fail fast at startup when the port is missing
	client, err := pmodbus.New(mc)
	if err != nil {
		return nil, nil, err
	}

	retries := DefaultRetries
	if fb.Retries != nil {
		retries = *fb.Retries
	}

	p, err := New(
		Config{
			DeviceID: cfg.Gateway.DeviceID,
			Catalog:  registers.Catalog(),
			Retries:  retries,
		},
		client,
		log,
		m,
	)
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}

	return p, client.Close, nil
}

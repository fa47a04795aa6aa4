// internal/config/validate.go
package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/tamzrod/modbus-mqtt-gateway/internal/endpoint"
	"github.com/tamzrod/modbus-mqtt-gateway/internal/logging"
)

// Validate checks configuration correctness.
// It performs declarative validation only.
// It MUST NOT mutate configuration.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config: nil config")
	}

	// ------------------------------------------------------------
	// GATEWAY
	// ------------------------------------------------------------

	if id := cfg.Gateway.DeviceID; id != "" {
		if strings.ContainsAny(id, "/#+ ") {
			return fmt.Errorf("gateway.device_id %q: must not contain '/', '#', '+' or spaces", id)
		}
	}

	// ------------------------------------------------------------
	// FIELD BUS
	// ------------------------------------------------------------

	fb := cfg.Fieldbus
	if fb.Device == "" {
		return errors.New("fieldbus.device is required")
	}
	switch strings.ToUpper(fb.Parity) {
	case "", "N", "E", "O":
	default:
		return fmt.Errorf("fieldbus.parity %q: must be N, E or O", fb.Parity)
	}
	if fb.BaudRate < 0 || fb.TimeoutMs < 0 {
		return errors.New("fieldbus: baud_rate and timeout_ms must be >= 0")
	}
	if fb.DataBits != 0 && (fb.DataBits < 5 || fb.DataBits > 8) {
		return fmt.Errorf("fieldbus.data_bits %d: must be 5..8", fb.DataBits)
	}
	if fb.StopBits != 0 && fb.StopBits != 1 && fb.StopBits != 2 {
		return fmt.Errorf("fieldbus.stop_bits %d: must be 1 or 2", fb.StopBits)
	}
	if fb.UnitID > 247 {
		return fmt.Errorf("fieldbus.unit_id %d: must be 1..247", fb.UnitID)
	}
	if fb.Retries != nil && *fb.Retries < 0 {
		return fmt.Errorf("fieldbus.retries %d: must be >= 0", *fb.Retries)
	}

	// ------------------------------------------------------------
	// POLL
	// ------------------------------------------------------------

	if cfg.Poll.IntervalMs < 0 {
		return fmt.Errorf("poll.interval_ms %d: must be > 0", cfg.Poll.IntervalMs)
	}

	// ------------------------------------------------------------
	// MQTT
	// ------------------------------------------------------------

	if cfg.MQTT.Broker == "" {
		return errors.New("mqtt.broker is required")
	}
	if _, err := endpoint.Parse(cfg.MQTT.Broker); err != nil {
		return fmt.Errorf("mqtt.broker: %w", err)
	}
	if cfg.MQTT.Topic == "" {
		return errors.New("mqtt.topic is required")
	}
	if strings.ContainsAny(cfg.MQTT.Topic, "#+") {
		return fmt.Errorf("mqtt.topic %q: wildcards not allowed", cfg.MQTT.Topic)
	}
	switch cfg.MQTT.Format {
	case "", "json", "cbor":
	default:
		return fmt.Errorf("mqtt.format %q: must be json or cbor", cfg.MQTT.Format)
	}
	if cfg.MQTT.ReconnectMs < 0 || cfg.MQTT.ConnectMs < 0 {
		return errors.New("mqtt: reconnect_ms and connect_timeout_ms must be >= 0")
	}

	// ------------------------------------------------------------
	// NETWORK
	// ------------------------------------------------------------

	if cfg.Network.ReconnectMs < 0 || cfg.Network.WatchMs < 0 {
		return errors.New("network: reconnect_ms and watch_ms must be >= 0")
	}
	// the advertised service points at the HTTP surface
	if cfg.Network.MDNS && cfg.Metrics.Listen == "" {
		return errors.New("network.mdns requires metrics.listen")
	}

	// ------------------------------------------------------------
	// METRICS (optional)
	// ------------------------------------------------------------

	if l := cfg.Metrics.Listen; l != "" {
		_, port, err := net.SplitHostPort(l)
		if err != nil {
			return fmt.Errorf("metrics.listen %q: %w", l, err)
		}
		if n, err := strconv.Atoi(port); err != nil || n <= 0 || n > 65535 {
			return fmt.Errorf("metrics.listen %q: invalid port", l)
		}
	}

	// ------------------------------------------------------------
	// OTA (optional)
	// ------------------------------------------------------------

	if cfg.OTA.URL != "" {
		ep, err := endpoint.Parse(cfg.OTA.URL)
		if err != nil {
			return fmt.Errorf("ota.url: %w", err)
		}
		if _, err := ep.URL(); err != nil {
			return fmt.Errorf("ota.url: %w", err)
		}
	}
	if cfg.OTA.TimeoutMs < 0 {
		return fmt.Errorf("ota.timeout_ms %d: must be >= 0", cfg.OTA.TimeoutMs)
	}

	// ------------------------------------------------------------
	// LOG
	// ------------------------------------------------------------

	if _, err := logging.ParseLevel(cfg.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}

	return nil
}

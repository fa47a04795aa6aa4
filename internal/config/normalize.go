// internal/config/normalize.go
package config

import (
	"os"
	"path/filepath"
	"strings"
)

// Defaults for values left unset.
const (
	DefaultBaudRate      = 9600
	DefaultDataBits      = 8
	DefaultStopBits      = 1
	DefaultUnitID        = 10
	DefaultTimeoutMs     = 1000
	DefaultRetries       = 2
	DefaultIntervalMs    = 30000
	DefaultReconnectMs   = 2000
	DefaultConnectMs     = 10000
	DefaultWatchMs       = 1000
	DefaultNTPServer     = "pool.ntp.org"
	DefaultVersionHeader = "X-Object-Meta-Version"
	DefaultOTATimeoutMs  = 120000
)

// Normalize applies post-validation normalization.
// It is allowed to mutate configuration.
// It MUST be called only after Validate().
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}

	// ---- gateway ----

	if cfg.Gateway.DeviceID == "" {
		if h, err := os.Hostname(); err == nil && h != "" {
			cfg.Gateway.DeviceID = strings.ReplaceAll(h, ".", "-")
		} else {
			cfg.Gateway.DeviceID = "gateway"
		}
	}

	// ---- field bus ----

	fb := &cfg.Fieldbus
	if fb.BaudRate == 0 {
		fb.BaudRate = DefaultBaudRate
	}
	if fb.DataBits == 0 {
		fb.DataBits = DefaultDataBits
	}
	if fb.StopBits == 0 {
		fb.StopBits = DefaultStopBits
	}
	fb.Parity = strings.ToUpper(fb.Parity)
	if fb.Parity == "" {
		fb.Parity = "N"
	}
	if fb.UnitID == 0 {
		fb.UnitID = DefaultUnitID
	}
	if fb.TimeoutMs == 0 {
		fb.TimeoutMs = DefaultTimeoutMs
	}
	if fb.Retries == nil {
		r := DefaultRetries
		fb.Retries = &r
	}

	// ---- poll ----

	if cfg.Poll.IntervalMs == 0 {
		cfg.Poll.IntervalMs = DefaultIntervalMs
	}

	// ---- mqtt ----

	cfg.MQTT.Topic = strings.Trim(cfg.MQTT.Topic, "/")
	if cfg.MQTT.Format == "" {
		cfg.MQTT.Format = "json"
	}
	if cfg.MQTT.ReconnectMs == 0 {
		cfg.MQTT.ReconnectMs = DefaultReconnectMs
	}
	if cfg.MQTT.ConnectMs == 0 {
		cfg.MQTT.ConnectMs = DefaultConnectMs
	}

	// ---- network ----

	if cfg.Network.ReconnectMs == 0 {
		cfg.Network.ReconnectMs = DefaultReconnectMs
	}
	if cfg.Network.WatchMs == 0 {
		cfg.Network.WatchMs = DefaultWatchMs
	}
	if cfg.Network.NTPServer == "" {
		cfg.Network.NTPServer = DefaultNTPServer
	}

	// ---- ota ----

	if cfg.OTA.VersionHeader == "" {
		cfg.OTA.VersionHeader = DefaultVersionHeader
	}
	if cfg.OTA.TimeoutMs == 0 {
		cfg.OTA.TimeoutMs = DefaultOTATimeoutMs
	}
	if cfg.OTA.ImagePath == "" {
		if exe, err := os.Executable(); err == nil {
			cfg.OTA.ImagePath = exe
		}
	}
	if cfg.OTA.StagingDir == "" && cfg.OTA.ImagePath != "" {
		// same filesystem as the target so the final rename is atomic
		cfg.OTA.StagingDir = filepath.Dir(cfg.OTA.ImagePath)
	}

	// ---- log ----

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

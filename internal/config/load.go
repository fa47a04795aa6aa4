// internal/config/load.go
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment overrides, applied after the YAML file.
const (
	EnvDeviceID     = "GATEWAY_DEVICE_ID"
	EnvFieldbusDev  = "FIELDBUS_DEVICE"
	EnvMQTTBroker   = "MQTT_BROKER"
	EnvMQTTUsername = "MQTT_USERNAME"
	EnvMQTTPassword = "MQTT_PASSWORD"
	EnvOTAURL       = "OTA_URL"
	EnvLogLevel     = "LOG_LEVEL"
)

// Load reads the YAML config at path, then applies environment overrides.
// If envPath is non-empty the .env file is loaded first; a missing file is
// not an error. Variables already set in the process environment win.
func Load(path, envPath string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg, err := Parse(b)
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}

	if envPath != "" {
		if err := godotenv.Load(envPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: env file %s: %w", envPath, err)
		}
	}

	ApplyEnv(cfg, os.LookupEnv)
	return cfg, nil
}

// Parse decodes YAML. Unknown keys are rejected.
func Parse(b []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return &cfg, nil
}

// ApplyEnv overrides fields from the environment.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) {
	set := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	set(EnvDeviceID, &cfg.Gateway.DeviceID)
	set(EnvFieldbusDev, &cfg.Fieldbus.Device)
	set(EnvMQTTBroker, &cfg.MQTT.Broker)
	set(EnvMQTTUsername, &cfg.MQTT.Username)
	set(EnvMQTTPassword, &cfg.MQTT.Password)
	set(EnvOTAURL, &cfg.OTA.URL)
	set(EnvLogLevel, &cfg.Log.Level)
}

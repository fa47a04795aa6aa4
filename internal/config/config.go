// internal/config/config.go
package config

type Config struct {
	Gateway  GatewayConfig  `yaml:"gateway"`
	Fieldbus FieldbusConfig `yaml:"fieldbus"`
	Poll     PollConfig     `yaml:"poll"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Network  NetworkConfig  `yaml:"network"`
	OTA      OTAConfig      `yaml:"ota"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Log      LogConfig      `yaml:"log"`
}

// ---- GATEWAY ----

type GatewayConfig struct {
	// DeviceID names the device in topics and mDNS. Defaults to the hostname.
	DeviceID string `yaml:"device_id"`
}

// ---- FIELD BUS ----

type FieldbusConfig struct {
	Device    string `yaml:"device"`
	BaudRate  int    `yaml:"baud_rate"`
	DataBits  int    `yaml:"data_bits"`
	Parity    string `yaml:"parity"`
	StopBits  int    `yaml:"stop_bits"`
	UnitID    uint8  `yaml:"unit_id"`
	TimeoutMs int    `yaml:"timeout_ms"`
	RS485     bool   `yaml:"rs485"`

	// Retries after the first failed read of a register.
	Retries *int `yaml:"retries"`

	Trace bool `yaml:"trace"`
}

// ---- POLL ----

type PollConfig struct {
	IntervalMs int `yaml:"interval_ms"`
}

// ---- MQTT ----

type MQTTConfig struct {
	Broker      string `yaml:"broker"`
	Topic       string `yaml:"topic"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	Format      string `yaml:"format"` // json | cbor
	ReconnectMs int    `yaml:"reconnect_ms"`
	ConnectMs   int    `yaml:"connect_timeout_ms"`
}

// ---- NETWORK ----

type NetworkConfig struct {
	// Interface is watched for link state. Empty means any non-loopback interface.
	Interface   string `yaml:"interface"`
	ReconnectMs int    `yaml:"reconnect_ms"`
	WatchMs     int    `yaml:"watch_ms"`
	NTPServer   string `yaml:"ntp_server"`
	MDNS        bool   `yaml:"mdns"`
}

// ---- OTA ----

type OTAConfig struct {
	URL           string `yaml:"url"`
	CAFile        string `yaml:"ca_file"`
	VersionHeader string `yaml:"version_header"`
	TimeoutMs     int    `yaml:"timeout_ms"`

	// ImagePath is replaced by a verified download. Defaults to the running executable.
	ImagePath  string `yaml:"image_path"`
	StagingDir string `yaml:"staging_dir"`
}

// ---- METRICS ----

type MetricsConfig struct {
	// Listen enables /metrics and /healthz when non-empty, e.g. ":9100".
	Listen string `yaml:"listen"`
}

// ---- LOG ----

type LogConfig struct {
	Level string `yaml:"level"`
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the console runtime.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Device       DeviceConfig       `yaml:"device"`
	Console      ConsoleConfig      `yaml:"console"`
	Serial       SerialConfig       `yaml:"serial"`
	Shell        ShellConfig        `yaml:"shell"`
	Filesystem   FilesystemConfig   `yaml:"filesystem"`
	Settings     SettingsConfig     `yaml:"settings"`
	GPIO         GPIOConfig         `yaml:"gpio"`
	MQTT         MQTTConfig         `yaml:"mqtt"`
	Database     DatabaseConfig     `yaml:"database"`
	InfluxDB     InfluxDBConfig     `yaml:"influxdb"`
	Web          WebConfig          `yaml:"web"`
	Modbus       ModbusConfig       `yaml:"modbus"`
	Capabilities CapabilitiesConfig `yaml:"capabilities"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// DeviceConfig contains the identity the runtime advertises.
type DeviceConfig struct {
	Hostname     string `yaml:"hostname"`
	User         string `yaml:"user"`
	URL          string `yaml:"url"`
	ChipID       string `yaml:"chip_id"` // hex; derived from the hostname when empty
	Manufacturer string `yaml:"manufacturer"`
	Model        string `yaml:"model"`
}

// ConsoleConfig contains line editor settings.
type ConsoleConfig struct {
	Buffer  int    `yaml:"buffer"`
	History int    `yaml:"history"`
	ANSI    string `yaml:"ansi"` // auto, on, off
	Prompt  string `yaml:"prompt"`
	Banner  bool   `yaml:"banner"`
}

// SerialConfig contains UART console settings. An empty port uses stdin/stdout.
type SerialConfig struct {
	Port     string `yaml:"port"`
	Baud     int    `yaml:"baud"`
	DataBits int    `yaml:"data_bits"`
	Parity   string `yaml:"parity"`
	StopBits int    `yaml:"stop_bits"`
}

// ShellConfig contains remote (TCP) shell settings.
type ShellConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Listen         string `yaml:"listen"`
	OneShotTimeout int    `yaml:"oneshot_timeout_ms"`
	UploadTimeout  int    `yaml:"upload_timeout_ms"`
	Autostart      string `yaml:"autostart"`
}

// FilesystemConfig contains the on-device filesystem emulation settings.
type FilesystemConfig struct {
	Root     string `yaml:"root"`
	Capacity int64  `yaml:"capacity"`
}

// SettingsConfig contains the persistent settings document location.
type SettingsConfig struct {
	Path string `yaml:"path"`
}

// GPIOConfig contains pin backend settings.
type GPIOConfig struct {
	Chip     string `yaml:"chip"` // Linux gpiochip name; empty uses simulated pins
	PinCount int    `yaml:"pin_count"`
	Reserved []int  `yaml:"reserved"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
	Root      string              `yaml:"root"`
	Discovery string              `yaml:"discovery"`
	LogLevel  string              `yaml:"log_level"` // remote log sink level, empty disables
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// DatabaseConfig contains SQLite settings for the sensor history.
type DatabaseConfig struct {
	Path           string `yaml:"path"`
	WALMode        bool   `yaml:"wal_mode"`
	BusyTimeout    int    `yaml:"busy_timeout"`
	SampleInterval int    `yaml:"sample_interval"` // seconds
	Retention      int    `yaml:"retention"`       // samples kept per sensor, 0 keeps all
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
	Interval      int    `yaml:"interval"` // seconds between sensor exports
}

// WebConfig contains the HTTP/websocket console settings.
type WebConfig struct {
	Listen         string `yaml:"listen"`
	MaxMessageSize int    `yaml:"max_message_size"`
	CommandTimeout int    `yaml:"command_timeout"` // seconds
}

// ModbusConfig contains Modbus sensor bus settings.
type ModbusConfig struct {
	Mode      string `yaml:"mode"` // rtu or tcp
	TCPHost   string `yaml:"tcp_host"`
	TCPPort   int    `yaml:"tcp_port"`
	RTUDevice string `yaml:"rtu_device"`
	RTUBaud   int    `yaml:"rtu_baud"`
	Timeout   int    `yaml:"timeout"` // milliseconds
}

// CapabilitiesConfig lists the capabilities loaded at boot.
type CapabilitiesConfig struct {
	Autoload []string `yaml:"autoload"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // console, text, json
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// An empty path skips step 2.
// Environment variables follow the pattern: ESPCONSOLE_SECTION_KEY
// For example: ESPCONSOLE_MQTT_HOST, ESPCONSOLE_SHELL_LISTEN
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Device: DeviceConfig{
			Hostname:     "espconsole",
			User:         "esp",
			Manufacturer: "ocfu",
			Model:        "espconsole-host",
		},
		Console: ConsoleConfig{
			Buffer:  64,
			History: 10,
			ANSI:    "auto",
			Banner:  true,
		},
		Serial: SerialConfig{
			Baud:     115200,
			DataBits: 8,
			Parity:   "N",
			StopBits: 1,
		},
		Shell: ShellConfig{
			Enabled:        true,
			Listen:         ":2323",
			OneShotTimeout: 1000,
			UploadTimeout:  5000,
			Autostart:      "/autostart.bat",
		},
		Filesystem: FilesystemConfig{
			Root:     "./data/fs",
			Capacity: 1 << 20,
		},
		Settings: SettingsConfig{
			Path: "/settings.json",
		},
		GPIO: GPIOConfig{
			PinCount: 40,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host: "localhost",
				Port: 1883,
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
			Root:      "espconsole",
			Discovery: "/homeassistant",
		},
		Database: DatabaseConfig{
			Path:           "./data/history.db",
			WALMode:        true,
			BusyTimeout:    5,
			SampleInterval: 60,
			Retention:      1440,
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
			Interval:      60,
		},
		Web: WebConfig{
			Listen:         ":8080",
			MaxMessageSize: 4096,
			CommandTimeout: 5,
		},
		Modbus: ModbusConfig{
			Mode:    "tcp",
			TCPPort: 502,
			RTUBaud: 9600,
			Timeout: 1000,
		},
		Capabilities: CapabilitiesConfig{
			Autoload: []string{"fs", "gpio", "sensor"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: ESPCONSOLE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Device
	if v := os.Getenv("ESPCONSOLE_HOSTNAME"); v != "" {
		cfg.Device.Hostname = v
	}

	// Serial
	if v := os.Getenv("ESPCONSOLE_SERIAL_PORT"); v != "" {
		cfg.Serial.Port = v
	}
	if v := os.Getenv("ESPCONSOLE_SERIAL_BAUD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Serial.Baud = n
		}
	}

	// Shell
	if v := os.Getenv("ESPCONSOLE_SHELL_LISTEN"); v != "" {
		cfg.Shell.Listen = v
	}

	// Filesystem
	if v := os.Getenv("ESPCONSOLE_FS_ROOT"); v != "" {
		cfg.Filesystem.Root = v
	}

	// MQTT
	if v := os.Getenv("ESPCONSOLE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("ESPCONSOLE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("ESPCONSOLE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// Database
	if v := os.Getenv("ESPCONSOLE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// InfluxDB
	if v := os.Getenv("ESPCONSOLE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Logging
	if v := os.Getenv("ESPCONSOLE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Device.Hostname == "" {
		errs = append(errs, "device.hostname is required")
	}
	if c.Device.ChipID != "" {
		if _, err := strconv.ParseUint(c.Device.ChipID, 16, 32); err != nil {
			errs = append(errs, "device.chip_id must be a 32-bit hex number")
		}
	}

	if c.Console.Buffer < 64 || c.Console.Buffer > 1024 {
		errs = append(errs, "console.buffer must be between 64 and 1024")
	}
	if c.Console.History < 1 {
		errs = append(errs, "console.history must be at least 1")
	}
	switch strings.ToLower(c.Console.ANSI) {
	case "auto", "on", "off":
	default:
		errs = append(errs, "console.ansi must be auto, on, or off")
	}

	if c.Serial.Port != "" && c.Serial.Baud <= 0 {
		errs = append(errs, "serial.baud must be positive")
	}

	if c.Shell.OneShotTimeout <= 0 {
		errs = append(errs, "shell.oneshot_timeout_ms must be positive")
	}
	if c.Shell.UploadTimeout <= 0 {
		errs = append(errs, "shell.upload_timeout_ms must be positive")
	}

	if c.Filesystem.Root == "" {
		errs = append(errs, "filesystem.root is required")
	}
	if c.Filesystem.Capacity <= 0 {
		errs = append(errs, "filesystem.capacity must be positive")
	}
	if c.Settings.Path == "" {
		errs = append(errs, "settings.path is required")
	}

	if c.GPIO.PinCount < 1 || c.GPIO.PinCount > 100 {
		errs = append(errs, "gpio.pin_count must be between 1 and 100")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}
	if c.MQTT.Root == "" {
		errs = append(errs, "mqtt.root is required")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	switch strings.ToLower(c.Modbus.Mode) {
	case "tcp", "rtu":
	default:
		errs = append(errs, "modbus.mode must be tcp or rtu")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// OneShotTimeout returns the remote shell one-shot window as a Duration.
func (c *Config) OneShotTimeout() time.Duration {
	return time.Duration(c.Shell.OneShotTimeout) * time.Millisecond
}

// UploadTimeout returns the file upload idle timeout as a Duration.
func (c *Config) UploadTimeout() time.Duration {
	return time.Duration(c.Shell.UploadTimeout) * time.Millisecond
}

// ChipID returns the configured chip id, or a stable id derived from the hostname.
func (c *Config) ChipID() uint32 {
	if c.Device.ChipID != "" {
		if v, err := strconv.ParseUint(c.Device.ChipID, 16, 32); err == nil {
			return uint32(v)
		}
	}
	// FNV-1a over the hostname.
	h := uint32(2166136261)
	for i := 0; i < len(c.Device.Hostname); i++ {
		h ^= uint32(c.Device.Hostname[i])
		h *= 16777619
	}
	return h
}

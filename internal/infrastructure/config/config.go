package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// filePermissions is the mode used when saving the settings file.
// It may contain broker credentials, so it is owner read/write only.
const filePermissions = 0600

// Config is the root configuration structure for the EtherNet/IP bridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	MQTT         MQTTConfig      `yaml:"mqtt" json:"mqtt"`
	Device       DeviceConfig    `yaml:"device" json:"device"`
	PollInterval int             `yaml:"poll_interval" json:"poll_interval"` // seconds
	Reconnect    ReconnectConfig `yaml:"reconnect" json:"reconnect"`
	Health       HealthConfig    `yaml:"health" json:"health"`
	API          APIConfig       `yaml:"api" json:"api"`
	WebSocket    WebSocketConfig `yaml:"websocket" json:"websocket"`
	Database     DatabaseConfig  `yaml:"database" json:"database"`
	InfluxDB     InfluxDBConfig  `yaml:"influxdb" json:"influxdb"`
	Logging      LoggingConfig   `yaml:"logging" json:"logging"`
	Security     SecurityConfig  `yaml:"security" json:"security"`
}

// MQTTConfig contains MQTT broker connection and publishing settings.
type MQTTConfig struct {
	Broker      MQTTBrokerConfig `yaml:"broker" json:"broker"`
	Auth        MQTTAuthConfig   `yaml:"auth" json:"auth"`
	TopicPrefix string           `yaml:"topic_prefix" json:"topic_prefix"`
	QoS         int              `yaml:"qos" json:"qos"`
	Retain      bool             `yaml:"retain" json:"retain"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host" json:"host"`
	Port     int    `yaml:"port" json:"port"`
	TLS      bool   `yaml:"tls" json:"tls"`
	ClientID string `yaml:"client_id" json:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// DeviceConfig describes the EtherNet/IP controller and the tags to poll.
type DeviceConfig struct {
	// Address is the controller's IP address or hostname.
	Address string `yaml:"address" json:"address"`

	// Tags is the ordered list of tag names read on every cycle.
	Tags []string `yaml:"tags" json:"tags"`

	// TagTypes optionally maps a tag name to its CIP type (REAL, DINT, BOOL, ...).
	// Tags without an entry are read as REAL.
	TagTypes map[string]string `yaml:"tag_types,omitempty" json:"tag_types,omitempty"`

	// TimeoutSeconds bounds the connection attempt.
	// Default: 5
	TimeoutSeconds int `yaml:"timeout_seconds" json:"timeout_seconds"`
}

// ReconnectConfig contains the backoff bounds used for both sessions (seconds).
type ReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay" json:"initial_delay"`
	MaxDelay     int `yaml:"max_delay" json:"max_delay"`
}

// HealthConfig controls the periodic health message.
type HealthConfig struct {
	Interval int `yaml:"interval" json:"interval"` // seconds
}

// APIConfig contains HTTP control surface settings.
type APIConfig struct {
	Host     string           `yaml:"host" json:"host"`
	Port     int              `yaml:"port" json:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts" json:"timeouts"`
	CORS     CORSConfig       `yaml:"cors" json:"cors"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read" json:"read"`
	Write int `yaml:"write" json:"write"`
	Idle  int `yaml:"idle" json:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins" json:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods" json:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers" json:"allowed_headers"`
}

// WebSocketConfig contains WebSocket status stream settings.
type WebSocketConfig struct {
	Path         string `yaml:"path" json:"path"`
	PushInterval int    `yaml:"push_interval" json:"push_interval"` // seconds
	PingInterval int    `yaml:"ping_interval" json:"ping_interval"` // seconds
}

// DatabaseConfig contains SQLite database settings for the event log.
type DatabaseConfig struct {
	Path        string `yaml:"path" json:"path"`
	WALMode     bool   `yaml:"wal_mode" json:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout" json:"busy_timeout"`
}

// InfluxDBConfig contains InfluxDB historian settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled" json:"enabled"`
	URL           string `yaml:"url" json:"url"`
	Token         string `yaml:"token" json:"token"`
	Org           string `yaml:"org" json:"org"`
	Bucket        string `yaml:"bucket" json:"bucket"`
	BatchSize     int    `yaml:"batch_size" json:"batch_size"`
	FlushInterval int    `yaml:"flush_interval" json:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
	Output string `yaml:"output" json:"output"`
}

// SecurityConfig contains control surface security settings.
type SecurityConfig struct {
	// APITokenSecret signs the bearer tokens accepted by the control endpoints.
	// Empty disables authentication (local development only).
	APITokenSecret string `yaml:"api_token_secret" json:"api_token_secret"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg, err := LoadFile(path)
	if err != nil {
		return nil, err
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// LoadFile reads defaults and the YAML file only. Environment overrides are
// not applied and the result is not validated; a Store built from it
// persists exactly what the file holds.
func LoadFile(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return cfg, nil
}

// writeFile writes cfg to path as YAML, readable by the owner only.
func writeFile(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	if err := os.WriteFile(path, data, filePermissions); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "ethernetip_bridge",
			},
			TopicPrefix: "ethernetip",
			QoS:         1,
		},
		Device: DeviceConfig{
			TimeoutSeconds: 5,
		},
		PollInterval: 5,
		Reconnect: ReconnectConfig{
			InitialDelay: 5,
			MaxDelay:     60,
		},
		Health: HealthConfig{
			Interval: 30,
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 5000,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:         "/api/v1/ws",
			PushInterval: 1,
			PingInterval: 30,
		},
		Database: DatabaseConfig{
			Path:        "./data/enipbridge.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
//
// Broker address, port, credentials and the device address use the
// unprefixed names field installations already set (MQTT_BROKER, PLC_IP_ADDRESS, ...).
func applyEnvOverrides(cfg *Config) error {
	for _, o := range envOverrides {
		if v := os.Getenv(o.name); v != "" {
			*o.field(cfg) = v
		}
	}

	if v := os.Getenv("MQTT_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("MQTT_PORT: %w", err)
		}
		cfg.MQTT.Broker.Port = port
	}

	return nil
}

// envOverrides lists the string settings an environment variable replaces.
var envOverrides = []struct {
	name  string
	field func(*Config) *string
}{
	{"MQTT_BROKER", func(c *Config) *string { return &c.MQTT.Broker.Host }},
	{"MQTT_USERNAME", func(c *Config) *string { return &c.MQTT.Auth.Username }},
	{"MQTT_PASSWORD", func(c *Config) *string { return &c.MQTT.Auth.Password }},
	{"PLC_IP_ADDRESS", func(c *Config) *string { return &c.Device.Address }},
	{"ENIPBRIDGE_INFLUXDB_TOKEN", func(c *Config) *string { return &c.InfluxDB.Token }},
	{"ENIPBRIDGE_API_SECRET", func(c *Config) *string { return &c.Security.APITokenSecret }},
}

// withoutEnvOverrides returns a copy of cfg in which every field still
// holding its environment value is put back to the value from file.
func withoutEnvOverrides(cfg, file *Config) *Config {
	out := cfg.Clone()
	for _, o := range envOverrides {
		if v := os.Getenv(o.name); v != "" && *o.field(out) == v {
			*o.field(out) = *o.field(file)
		}
	}
	if v := os.Getenv("MQTT_PORT"); v != "" && strconv.Itoa(out.MQTT.Broker.Port) == v {
		out.MQTT.Broker.Port = file.MQTT.Broker.Port
	}
	return out
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// MQTT validation
	if c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required")
	}
	if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}
	if c.MQTT.Broker.ClientID == "" {
		errs = append(errs, "mqtt.broker.client_id is required")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if strings.ContainsAny(c.MQTT.TopicPrefix, "+#") {
		errs = append(errs, "mqtt.topic_prefix must not contain wildcards")
	}

	// Polling validation
	if c.PollInterval <= 0 {
		errs = append(errs, "poll_interval must be greater than 0")
	}
	if c.Device.TimeoutSeconds < 0 {
		errs = append(errs, "device.timeout_seconds must not be negative")
	}
	for i, tag := range c.Device.Tags {
		if strings.TrimSpace(tag) == "" {
			errs = append(errs, fmt.Sprintf("device.tags[%d] is empty", i))
		}
	}

	// Reconnect validation
	if c.Reconnect.InitialDelay < 0 || c.Reconnect.MaxDelay < 0 {
		errs = append(errs, "reconnect delays must not be negative")
	}
	if c.Reconnect.MaxDelay > 0 && c.Reconnect.InitialDelay > c.Reconnect.MaxDelay {
		errs = append(errs, "reconnect.initial_delay must not exceed reconnect.max_delay")
	}

	// API validation
	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetPollInterval returns the poll interval as a Duration.
func (c *Config) GetPollInterval() time.Duration {
	return time.Duration(c.PollInterval) * time.Second
}

// GetDeviceTimeout returns the device connect timeout as a Duration.
func (c *Config) GetDeviceTimeout() time.Duration {
	return time.Duration(c.Device.TimeoutSeconds) * time.Second
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

package config

import (
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Field bounds for persisted identity and addressing values.
const (
	// MaxBrokerFieldLen bounds broker host, username and password.
	MaxBrokerFieldLen = 255

	// MaxAddressFieldLen bounds each field of the static address bundle.
	MaxAddressFieldLen = 20

	// MaxDeviceNameLen bounds the device name, which doubles as MQTT client ID
	// and advertised hostname.
	MaxDeviceNameLen = 64
)

// Config is the root configuration structure for iotlink.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Device   DeviceConfig   `yaml:"device"`
	Network  NetworkConfig  `yaml:"network"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Update   UpdateConfig   `yaml:"update"`
	API      APIConfig      `yaml:"api"`
	Database DatabaseConfig `yaml:"database"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Logging  LoggingConfig  `yaml:"logging"`
	Loop     LoopConfig     `yaml:"loop"`
}

// DeviceConfig identifies the device.
type DeviceConfig struct {
	// Name is the device ("thing") name. Used as MQTT client ID and
	// advertised hostname of the update listener.
	Name string `yaml:"name"`
}

// NetworkConfig contains network association settings.
type NetworkConfig struct {
	// Interface is the OS network interface watched for association.
	Interface  string              `yaml:"interface"`
	SSID       string              `yaml:"ssid"`
	Passphrase string              `yaml:"passphrase"`
	Static     StaticAddressConfig `yaml:"static"`
}

// StaticAddressConfig is the optional static address bundle.
// Applied only when Enabled is true.
type StaticAddressConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
	Gateway string `yaml:"gateway"`
	Mask    string `yaml:"mask"`
	DNS     string `yaml:"dns"`
}

// MQTTConfig contains MQTT broker session settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`

	// KeepAlive is the keepalive interval in seconds.
	KeepAlive int `yaml:"keep_alive"`

	// ConnectTimeoutMS bounds a single connect attempt.
	ConnectTimeoutMS int `yaml:"connect_timeout_ms"`

	// BufferSize is the maximum accepted payload size in bytes.
	BufferSize int `yaml:"buffer_size"`

	// FloatPrecision is the number of fractional digits for float publishes.
	FloatPrecision int `yaml:"float_precision"`

	// Topics are subscribed, in order, on every successful connect.
	Topics []string `yaml:"topics"`

	// StatusTopic enables the retained online/offline status topic and LWT.
	StatusTopic bool `yaml:"status_topic"`
}

// MQTTBrokerConfig contains the default broker endpoint.
type MQTTBrokerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// MQTTAuthConfig contains default MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	// IntervalMS is the minimum time between failed connect attempts.
	IntervalMS int `yaml:"interval_ms"`
}

// UpdateConfig contains firmware update listener settings.
type UpdateConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Port         int    `yaml:"port"`
	PasswordHash string `yaml:"password_hash"`
	Board        string `yaml:"board"`
}

// APIConfig contains administrative HTTP server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`

	// AdminPasswordHash is an Argon2id PHC string. When empty the
	// administrative endpoints are unauthenticated.
	AdminPasswordHash string `yaml:"admin_password_hash"`

	// Stream configures the live event WebSocket.
	Stream StreamConfig `yaml:"stream"`
}

// StreamConfig contains live event stream settings.
type StreamConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// DatabaseConfig contains SQLite settings for persisted overrides.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
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
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// LoopConfig controls the poll dispatcher cadence.
type LoopConfig struct {
	PollIntervalMS int `yaml:"poll_interval_ms"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//  4. Bounded fields truncated to their limits
//
// Environment variables follow the pattern: IOTLINK_SECTION_KEY
// For example: IOTLINK_MQTT_HOST, IOTLINK_API_PORT
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)
	cfg.truncateBounded()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Device: DeviceConfig{
			Name: "iotlink",
		},
		Network: NetworkConfig{
			Interface: "wlan0",
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Port: 1883,
			},
			Reconnect: MQTTReconnectConfig{
				IntervalMS: 5000,
			},
			KeepAlive:        30,
			ConnectTimeoutMS: 2000,
			BufferSize:       512,
			FloatPrecision:   3,
		},
		Update: UpdateConfig{
			Port:  3232,
			Board: "iotlink",
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 80,
			Timeouts: APITimeoutConfig{
				Read:  10,
				Write: 10,
				Idle:  60,
			},
			Stream: StreamConfig{
				MaxMessageSize: 1024,
				PingInterval:   30,
				PongTimeout:    10,
			},
		},
		Database: DatabaseConfig{
			Path:        "./data/iotlink.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Loop: LoopConfig{
			PollIntervalMS: 10,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: IOTLINK_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("IOTLINK_DEVICE_NAME"); v != "" {
		cfg.Device.Name = v
	}

	// Network
	if v := os.Getenv("IOTLINK_NETWORK_SSID"); v != "" {
		cfg.Network.SSID = v
	}
	if v := os.Getenv("IOTLINK_NETWORK_PASSPHRASE"); v != "" {
		cfg.Network.Passphrase = v
	}

	// MQTT
	if v := os.Getenv("IOTLINK_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("IOTLINK_MQTT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.MQTT.Broker.Port = port
		}
	}
	if v := os.Getenv("IOTLINK_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("IOTLINK_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// Update listener
	if v := os.Getenv("IOTLINK_UPDATE_PASSWORD_HASH"); v != "" {
		cfg.Update.PasswordHash = v
	}

	// API
	if v := os.Getenv("IOTLINK_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("IOTLINK_API_ADMIN_PASSWORD_HASH"); v != "" {
		cfg.API.AdminPasswordHash = v
	}

	// InfluxDB
	if v := os.Getenv("IOTLINK_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// truncateBounded clips bounded string fields so that no value handed to
// the session or association layers ever exceeds its buffer bound.
func (c *Config) truncateBounded() {
	c.Device.Name = Truncate(c.Device.Name, MaxDeviceNameLen)

	c.MQTT.Broker.Host = Truncate(c.MQTT.Broker.Host, MaxBrokerFieldLen)
	c.MQTT.Auth.Username = Truncate(c.MQTT.Auth.Username, MaxBrokerFieldLen)
	c.MQTT.Auth.Password = Truncate(c.MQTT.Auth.Password, MaxBrokerFieldLen)

	c.Network.Static.Address = Truncate(c.Network.Static.Address, MaxAddressFieldLen)
	c.Network.Static.Gateway = Truncate(c.Network.Static.Gateway, MaxAddressFieldLen)
	c.Network.Static.Mask = Truncate(c.Network.Static.Mask, MaxAddressFieldLen)
	c.Network.Static.DNS = Truncate(c.Network.Static.DNS, MaxAddressFieldLen)
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Device.Name == "" {
		errs = append(errs, "device.name is required")
	}

	if c.Network.Interface == "" {
		errs = append(errs, "network.interface is required")
	}
	if c.Network.Static.Enabled {
		for name, value := range map[string]string{
			"address": c.Network.Static.Address,
			"gateway": c.Network.Static.Gateway,
			"mask":    c.Network.Static.Mask,
			"dns":     c.Network.Static.DNS,
		} {
			if _, err := netip.ParseAddr(value); err != nil {
				errs = append(errs, fmt.Sprintf("network.static.%s is not a valid address", name))
			}
		}
	}

	if c.MQTT.Enabled {
		if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
			errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
		}
		if c.MQTT.Reconnect.IntervalMS <= 0 {
			errs = append(errs, "mqtt.reconnect.interval_ms must be positive")
		}
		if c.MQTT.ConnectTimeoutMS <= 0 {
			errs = append(errs, "mqtt.connect_timeout_ms must be positive")
		}
		if c.MQTT.FloatPrecision < 0 || c.MQTT.FloatPrecision > 10 {
			errs = append(errs, "mqtt.float_precision must be between 0 and 10")
		}
		if c.MQTT.BufferSize <= 0 {
			errs = append(errs, "mqtt.buffer_size must be positive")
		}
	}

	if c.Update.Enabled {
		if c.Update.Port < 1 || c.Update.Port > 65535 {
			errs = append(errs, "update.port must be between 1 and 65535")
		}
		if c.Update.PasswordHash == "" {
			errs = append(errs, "update.password_hash is required when update is enabled")
		}
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.API.Stream.PingInterval <= 0 || c.API.Stream.PongTimeout <= 0 {
		errs = append(errs, "api.stream ping_interval and pong_timeout must be positive")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.Loop.PollIntervalMS <= 0 {
		errs = append(errs, "loop.poll_interval_ms must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
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

// ReconnectInterval returns the minimum time between failed connect attempts.
func (c MQTTConfig) ReconnectInterval() time.Duration {
	return time.Duration(c.Reconnect.IntervalMS) * time.Millisecond
}

// ConnectTimeout returns the bound on a single connect attempt.
func (c MQTTConfig) ConnectTimeout() time.Duration {
	return time.Duration(c.ConnectTimeoutMS) * time.Millisecond
}

// KeepAliveInterval returns the keepalive interval as a Duration.
func (c MQTTConfig) KeepAliveInterval() time.Duration {
	return time.Duration(c.KeepAlive) * time.Second
}

// PollInterval returns the dispatcher tick interval.
func (c LoopConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMS) * time.Millisecond
}

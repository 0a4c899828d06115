package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the Gray Logic Broadlink bridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site      SiteConfig      `yaml:"site"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Security  SecurityConfig  `yaml:"security"`
	Broadlink BroadlinkConfig `yaml:"broadlink"`
}

// SiteConfig contains site-specific information.
type SiteConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
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

// APIConfig contains the local HTTP control API settings.
type APIConfig struct {
	// Enabled starts the HTTP API alongside the MQTT bridge.
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains WebSocket event stream settings.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
}

// SecurityConfig contains API authentication settings.
type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`
}

// JWTConfig contains JWT token settings.
type JWTConfig struct {
	Secret string `yaml:"secret"`

	// AccessTokenTTL in minutes for tokens issued by the API.
	AccessTokenTTL int `yaml:"access_token_ttl"`
}

// BroadlinkConfig contains everything needed to drive RM-series devices.
type BroadlinkConfig struct {
	// BridgeID identifies this bridge in MQTT health messages.
	BridgeID string `yaml:"bridge_id"`

	// HealthInterval is how often bridge health is published.
	// Default: 30s
	HealthInterval time.Duration `yaml:"health_interval"`

	// Hosts are statically configured devices. When non-empty, the list
	// also acts as the liveness allow-list: only these devices are probed.
	Hosts []HostConfig `yaml:"hosts"`

	Discovery DiscoveryConfig `yaml:"discovery"`
	Transport TransportConfig `yaml:"transport"`
	Liveness  LivenessConfig  `yaml:"liveness"`
	Dispatch  DispatchConfig  `yaml:"dispatch"`
	Learning  LearningConfig  `yaml:"learning"`
}

// HostConfig is a single statically registered device.
type HostConfig struct {
	// Address is the device IP address.
	Address string `yaml:"address"`

	// MAC is the device MAC address ("34:ea:34:aa:bb:cc"). Optional.
	MAC string `yaml:"mac,omitempty"`

	// Type is the Broadlink device type code (e.g. 0x2737). Optional;
	// unknown or zero types are driven with RM framing and no RF support.
	Type int `yaml:"type,omitempty"`
}

// DiscoveryConfig controls broadcast discovery.
type DiscoveryConfig struct {
	Enabled bool `yaml:"enabled"`

	// Interval between discovery rounds. Zero runs discovery once at startup.
	Interval time.Duration `yaml:"interval"`

	// Timeout is how long each round collects responses.
	// Default: 5s
	Timeout time.Duration `yaml:"timeout"`

	// LocalIP is the address announced in the hello packet. Empty selects
	// the outbound interface automatically.
	LocalIP string `yaml:"local_ip,omitempty"`

	// Broadcast is the destination address for hello packets.
	// Default: "255.255.255.255"
	Broadcast string `yaml:"broadcast,omitempty"`
}

// TransportConfig controls the UDP request/response exchange.
type TransportConfig struct {
	// Timeout bounds a single request/response round trip.
	// Default: 10s
	Timeout time.Duration `yaml:"timeout"`
}

// LivenessConfig controls reachability probing.
type LivenessConfig struct {
	ProbeInterval     time.Duration `yaml:"probe_interval"`
	ProbeTimeout      time.Duration `yaml:"probe_timeout"`
	MaxRetries        int           `yaml:"max_retries"`
	KeepaliveInterval time.Duration `yaml:"keepalive_interval"`

	// PrivilegedPing uses raw ICMP sockets (CAP_NET_RAW) instead of
	// unprivileged ping sockets.
	PrivilegedPing bool `yaml:"privileged_ping"`
}

// DispatchConfig controls command dispatch.
type DispatchConfig struct {
	// DefaultTimeout applies when neither the caller nor the first step
	// supplies one.
	// Default: 60s
	DefaultTimeout time.Duration `yaml:"default_timeout"`
}

// LearningConfig controls the IR and RF learning state machines.
type LearningConfig struct {
	PollInterval   time.Duration `yaml:"poll_interval"`
	IRTimeout      time.Duration `yaml:"ir_timeout"`
	SweepTimeout   time.Duration `yaml:"sweep_timeout"`
	CaptureTimeout time.Duration `yaml:"capture_timeout"`
	LockPause      time.Duration `yaml:"lock_pause"`

	// Debug enables transport packet logging for the duration of a session.
	Debug bool `yaml:"debug"`
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
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:   "site-001",
			Name: "Gray Logic",
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "graylogic-broadlink",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8090,
			Timeouts: APITimeoutConfig{
				Read:  10,
				Write: 75,
				Idle:  120,
			},
		},
		WebSocket: WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				AccessTokenTTL: 15,
			},
		},
		Broadlink: BroadlinkConfig{
			BridgeID:       "broadlink",
			HealthInterval: 30 * time.Second,
			Discovery: DiscoveryConfig{
				Enabled:   true,
				Timeout:   5 * time.Second,
				Broadcast: "255.255.255.255",
			},
			Transport: TransportConfig{
				Timeout: 10 * time.Second,
			},
			Liveness: LivenessConfig{
				ProbeInterval:     5 * time.Second,
				ProbeTimeout:      3 * time.Second,
				MaxRetries:        2,
				KeepaliveInterval: 90 * time.Second,
			},
			Dispatch: DispatchConfig{
				DefaultTimeout: 60 * time.Second,
			},
			Learning: LearningConfig{
				PollInterval:   time.Second,
				IRTimeout:      10 * time.Second,
				SweepTimeout:   30 * time.Second,
				CaptureTimeout: 30 * time.Second,
				LockPause:      3 * time.Second,
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: GRAYLOGIC_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// MQTT
	if v := os.Getenv("GRAYLOGIC_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("GRAYLOGIC_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("GRAYLOGIC_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("GRAYLOGIC_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// API
	if v := os.Getenv("GRAYLOGIC_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("GRAYLOGIC_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}

	// Broadlink
	if v := os.Getenv("GRAYLOGIC_BROADLINK_LOCAL_IP"); v != "" {
		cfg.Broadlink.Discovery.LocalIP = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if c.API.Enabled {
		if c.API.Port < 1 || c.API.Port > 65535 {
			errs = append(errs, "api.port must be between 1 and 65535")
		}
		if c.API.TLS.Enabled && (c.API.TLS.CertFile == "" || c.API.TLS.KeyFile == "") {
			errs = append(errs, "api.tls.cert_file and api.tls.key_file are required when TLS is enabled")
		}
		const minJWTSecretLength = 32
		if c.Security.JWT.Secret == "" {
			errs = append(errs, "security.jwt.secret is required when the API is enabled (set GRAYLOGIC_JWT_SECRET)")
		} else if len(c.Security.JWT.Secret) < minJWTSecretLength {
			errs = append(errs, fmt.Sprintf("security.jwt.secret must be at least %d characters", minJWTSecretLength))
		}
	}

	bl := c.Broadlink
	for i, h := range bl.Hosts {
		if strings.TrimSpace(h.Address) == "" {
			errs = append(errs, fmt.Sprintf("broadlink.hosts[%d].address is required", i))
		}
	}

	if bl.Liveness.ProbeInterval <= 0 {
		errs = append(errs, "broadlink.liveness.probe_interval must be positive")
	}
	if bl.Liveness.ProbeTimeout <= 0 {
		errs = append(errs, "broadlink.liveness.probe_timeout must be positive")
	}
	if bl.Liveness.MaxRetries < 0 {
		errs = append(errs, "broadlink.liveness.max_retries must not be negative")
	}
	if bl.Dispatch.DefaultTimeout <= 0 {
		errs = append(errs, "broadlink.dispatch.default_timeout must be positive")
	}
	if bl.Learning.PollInterval <= 0 {
		errs = append(errs, "broadlink.learning.poll_interval must be positive")
	}
	if bl.Learning.IRTimeout <= 0 || bl.Learning.SweepTimeout <= 0 || bl.Learning.CaptureTimeout <= 0 {
		errs = append(errs, "broadlink.learning timeouts must be positive")
	}
	if bl.Learning.LockPause < 0 {
		errs = append(errs, "broadlink.learning.lock_pause must not be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// AllowList returns the set of statically configured addresses and MACs.
// An empty set means every registered device is of interest.
func (b BroadlinkConfig) AllowList() map[string]struct{} {
	allowed := make(map[string]struct{}, len(b.Hosts)*2)
	for _, h := range b.Hosts {
		if h.Address != "" {
			allowed[strings.ToLower(h.Address)] = struct{}{}
		}
		if h.MAC != "" {
			allowed[strings.ToLower(h.MAC)] = struct{}{}
		}
	}
	return allowed
}

// ReadTimeout returns the API read timeout as a Duration.
func (c *Config) ReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// WriteTimeout returns the API write timeout as a Duration.
func (c *Config) WriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// IdleTimeout returns the API idle timeout as a Duration.
func (c *Config) IdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the access node.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site        SiteConfig         `yaml:"site"`
	Database    DatabaseConfig     `yaml:"database"`
	MQTT        MQTTConfig         `yaml:"mqtt"`
	API         APIConfig          `yaml:"api"`
	WebSocket   WebSocketConfig    `yaml:"websocket"`
	InfluxDB    InfluxDBConfig     `yaml:"influxdb"`
	Logging     LoggingConfig      `yaml:"logging"`
	Security    SecurityConfig     `yaml:"security"`
	Node        NodeConfig         `yaml:"node"`
	Sensor      SensorConfig       `yaml:"sensor"`
	Chain       ChainConfig        `yaml:"chain"`
	Gateway     GatewayConfig      `yaml:"gateway"`
	Credentials []CredentialConfig `yaml:"credentials"`
}

// SiteConfig identifies the entry point this node guards.
type SiteConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
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

// MQTTReconnectConfig contains MQTT reconnection settings (seconds).
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
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

// APITimeoutConfig contains HTTP timeout settings (seconds).
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

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
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

// SecurityConfig contains operator-facing security settings.
type SecurityConfig struct {
	JWT       JWTConfig       `yaml:"jwt"`
	Operator  OperatorConfig  `yaml:"operator"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// JWTConfig contains JWT token settings.
type JWTConfig struct {
	Secret         string `yaml:"secret"`
	AccessTokenTTL int    `yaml:"access_token_ttl"` // minutes
}

// OperatorConfig holds the single operator account allowed to use the API.
// PasswordHash is an Argon2id PHC string (see `accessctl hash-password`).
type OperatorConfig struct {
	Username     string `yaml:"username"`
	PasswordHash string `yaml:"password_hash"`
	TOTPSecret   string `yaml:"totp_secret"`
}

// RateLimitConfig contains API rate limiting settings.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute"`
}

// NodeConfig holds the control loop timings. All durations are milliseconds.
type NodeConfig struct {
	PollInterval         int    `yaml:"poll_interval_ms"`
	IdleDelay            int    `yaml:"idle_delay_ms"`
	SensorSettle         int    `yaml:"sensor_settle_ms"`
	MobileConnectTimeout int    `yaml:"mobile_connect_timeout_ms"`
	MobileSettle         int    `yaml:"mobile_settle_ms"`
	MobileTeardownSettle int    `yaml:"mobile_teardown_settle_ms"`
	SuccessDelay         int    `yaml:"success_delay_ms"`
	BlockchainDelay      int    `yaml:"blockchain_delay_ms"`
	SyncCount            int    `yaml:"sync_count"`
	QueueSize            int    `yaml:"queue_size"`
	SensorPeer           string `yaml:"sensor_peer"`
}

// SensorConfig holds detection thresholds and the magnetometer calibration.
// Thresholds are decimal strings so they round-trip through the store unchanged.
type SensorConfig struct {
	UltrasonicThreshold   string         `yaml:"ultrasonic_threshold"`
	MagnetometerThreshold string         `yaml:"magnetometer_threshold"`
	Baseline              BaselineConfig `yaml:"baseline"`
	ThresholdFile         string         `yaml:"threshold_file"`
}

// BaselineConfig is the resting magnetometer vector.
type BaselineConfig struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
	Z float64 `yaml:"z"`
}

// ChainConfig locates the audit chain and controls background validation.
type ChainConfig struct {
	Path             string `yaml:"path"`
	ValidateInterval int    `yaml:"validate_interval"` // seconds
}

// GatewayConfig controls supervision of the BLE-to-MQTT gateway daemon.
// When Managed is false the gateway is expected to run on its own.
type GatewayConfig struct {
	Managed         bool     `yaml:"managed"`
	Binary          string   `yaml:"binary"`
	Args            []string `yaml:"args"`
	RestartDelay    int      `yaml:"restart_delay"`     // seconds
	MaxRestartDelay int      `yaml:"max_restart_delay"` // seconds
	MaxRestarts     int      `yaml:"max_restarts"`      // 0 = unlimited
	GracefulTimeout int      `yaml:"graceful_timeout"`  // seconds
}

// CredentialConfig is a credential seeded into the directory at boot.
type CredentialConfig struct {
	Alias    string `yaml:"alias"`
	MAC      string `yaml:"mac"`
	Passcode string `yaml:"passcode"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: GRAYLOGIC_SECTION_KEY
// For example: GRAYLOGIC_DATABASE_PATH, GRAYLOGIC_CHAIN_PATH
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

// defaultConfig returns a Config matching the reference hardware.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:   "entry-001",
			Name: "Front Entry",
		},
		Database: DatabaseConfig{
			Path:        "./data/accessnode.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "accessnode",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8090,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				AccessTokenTTL: 15,
			},
			Operator: OperatorConfig{
				Username: "operator",
			},
			RateLimit: RateLimitConfig{
				Enabled:           true,
				RequestsPerMinute: 120,
			},
		},
		Node: NodeConfig{
			PollInterval:         100,
			IdleDelay:            2500,
			SensorSettle:         1000,
			MobileConnectTimeout: 10000,
			MobileSettle:         5000,
			MobileTeardownSettle: 1000,
			SuccessDelay:         2000,
			BlockchainDelay:      5000,
			SyncCount:            5,
			QueueSize:            10,
			SensorPeer:           "DE:AD:00:BE:EF:02",
		},
		Sensor: SensorConfig{
			UltrasonicThreshold:   "0.080",
			MagnetometerThreshold: "0.050",
			Baseline: BaselineConfig{
				X: -0.845,
				Y: 0.505,
				Z: 0.200,
			},
		},
		Chain: ChainConfig{
			Path:             "./data/chain.log",
			ValidateInterval: 15,
		},
		Gateway: GatewayConfig{
			RestartDelay:    2,
			MaxRestartDelay: 60,
			GracefulTimeout: 5,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: GRAYLOGIC_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("GRAYLOGIC_SITE_ID"); v != "" {
		cfg.Site.ID = v
	}
	if v := os.Getenv("GRAYLOGIC_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	if v := os.Getenv("GRAYLOGIC_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("GRAYLOGIC_MQTT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.MQTT.Broker.Port = port
		}
	}
	if v := os.Getenv("GRAYLOGIC_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("GRAYLOGIC_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	if v := os.Getenv("GRAYLOGIC_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	if v := os.Getenv("GRAYLOGIC_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Secrets should always come from the environment in production.
	if v := os.Getenv("GRAYLOGIC_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}
	if v := os.Getenv("GRAYLOGIC_OPERATOR_PASSWORD_HASH"); v != "" {
		cfg.Security.Operator.PasswordHash = v
	}
	if v := os.Getenv("GRAYLOGIC_OPERATOR_TOTP_SECRET"); v != "" {
		cfg.Security.Operator.TOTPSecret = v
	}

	if v := os.Getenv("GRAYLOGIC_CHAIN_PATH"); v != "" {
		cfg.Chain.Path = v
	}
	if v := os.Getenv("GRAYLOGIC_SENSOR_ULTRASONIC_THRESHOLD"); v != "" {
		cfg.Sensor.UltrasonicThreshold = v
	}
	if v := os.Getenv("GRAYLOGIC_SENSOR_MAGNETOMETER_THRESHOLD"); v != "" {
		cfg.Sensor.MagnetometerThreshold = v
	}
}

// Validate checks the configuration for errors and security issues.
// Every problem found is reported in a single error.
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// A forged operator token can unlock the door.
	const minJWTSecretLength = 32
	if c.Security.JWT.Secret == "" {
		errs = append(errs, "security.jwt.secret is required (set GRAYLOGIC_JWT_SECRET environment variable)")
	} else if len(c.Security.JWT.Secret) < minJWTSecretLength {
		errs = append(errs, "security.jwt.secret must be at least 32 characters for adequate security")
	}

	errs = append(errs, c.validateNode()...)
	errs = append(errs, c.validateSensor()...)

	if c.Chain.Path == "" {
		errs = append(errs, "chain.path is required")
	}
	if c.Chain.ValidateInterval <= 0 {
		errs = append(errs, "chain.validate_interval must be positive")
	}

	if c.Gateway.Managed && c.Gateway.Binary == "" {
		errs = append(errs, "gateway.binary is required when gateway.managed is true")
	}
	if c.Gateway.MaxRestarts < 0 {
		errs = append(errs, "gateway.max_restarts must not be negative")
	}

	for i, cred := range c.Credentials {
		if cred.Alias == "" || cred.MAC == "" || cred.Passcode == "" {
			errs = append(errs, fmt.Sprintf("credentials[%d] requires alias, mac and passcode", i))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func (c *Config) validateNode() []string {
	var errs []string
	timings := []struct {
		name  string
		value int
	}{
		{"node.poll_interval_ms", c.Node.PollInterval},
		{"node.idle_delay_ms", c.Node.IdleDelay},
		{"node.sensor_settle_ms", c.Node.SensorSettle},
		{"node.mobile_connect_timeout_ms", c.Node.MobileConnectTimeout},
		{"node.mobile_settle_ms", c.Node.MobileSettle},
		{"node.mobile_teardown_settle_ms", c.Node.MobileTeardownSettle},
		{"node.success_delay_ms", c.Node.SuccessDelay},
		{"node.blockchain_delay_ms", c.Node.BlockchainDelay},
		{"node.sync_count", c.Node.SyncCount},
		{"node.queue_size", c.Node.QueueSize},
	}
	for _, t := range timings {
		if t.value <= 0 {
			errs = append(errs, t.name+" must be positive")
		}
	}
	if c.Node.SensorPeer == "" {
		errs = append(errs, "node.sensor_peer is required")
	}
	return errs
}

func (c *Config) validateSensor() []string {
	var errs []string
	thresholds := []struct {
		name  string
		value string
	}{
		{"sensor.ultrasonic_threshold", c.Sensor.UltrasonicThreshold},
		{"sensor.magnetometer_threshold", c.Sensor.MagnetometerThreshold},
	}
	for _, t := range thresholds {
		v, err := strconv.ParseFloat(t.value, 64)
		if err != nil || v < 0 {
			errs = append(errs, t.name+" must be a non-negative decimal")
		}
	}
	return errs
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

// GetValidateInterval returns the audit chain validation period.
func (c *Config) GetValidateInterval() time.Duration {
	return time.Duration(c.Chain.ValidateInterval) * time.Second
}

// GetAccessTokenTTL returns the operator token lifetime.
func (c *Config) GetAccessTokenTTL() time.Duration {
	return time.Duration(c.Security.JWT.AccessTokenTTL) * time.Minute
}

// Millis converts a millisecond config value to a Duration.
func Millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

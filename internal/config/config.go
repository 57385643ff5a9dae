package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultHTTPPort         = 8080
	DefaultSnapshotTTL      = 5 * time.Minute
	DefaultRefreshInterval  = 30 * time.Second
	DefaultWindow           = 100
	DefaultMaintenanceScale = 10.0
	DefaultFailureThreshold = 5.0
	DefaultMaxReadings      = 1000
	DefaultMetricsPath      = "/metrics"
	DefaultPrimaryField     = "airTemp"
	DefaultSecondaryField   = "processTemp"
)

// Line types accepted in lines[].type.
const (
	LineCSV        = "csv"
	LineHTTP       = "http"
	LinePrometheus = "prometheus"
	LineKafka      = "kafka"
	LineMQTT       = "mqtt"
	LineS3         = "s3"
	LineSynthetic  = "synthetic"
)

// Config is the top-level configuration. Fields map 1:1 to config.example.yaml.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Monitor MonitorConfig `yaml:"monitor"`
	Lines   []Line        `yaml:"lines"`
	Alerts  AlertsConfig  `yaml:"alerts"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	// HTTPPort is the port the REST API, WebSocket hub and metrics listen on.
	HTTPPort int `yaml:"http_port"`

	// Auth configures how the server authenticates incoming REST clients.
	Auth ServerAuthConfig `yaml:"auth"`

	// Snapshot controls in-memory result retention.
	Snapshot SnapshotConfig `yaml:"snapshot"`

	// CORSOrigins lists the origins allowed to call the API from a browser.
	// Empty disables CORS headers.
	CORSOrigins []string `yaml:"cors_origins"`

	// AccessLog writes one Apache combined log line per request to stdout.
	AccessLog bool `yaml:"access_log"`
}

// ServerAuthConfig controls client authentication on the REST API.
type ServerAuthConfig struct {
	// Mode is one of: apikey | none.
	Mode string `yaml:"mode"`

	// KeyEnv is the name of the environment variable that holds the expected API key.
	KeyEnv string `yaml:"key_env"`

	// Header is the HTTP header name to read the key from. Defaults to "x-api-key".
	Header string `yaml:"header"`
}

// Key returns the expected API key resolved from the environment.
func (a ServerAuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// EffectiveHeader returns the configured header name, or the default "x-api-key".
func (a ServerAuthConfig) EffectiveHeader() string {
	if a.Header != "" {
		return a.Header
	}
	return "x-api-key"
}

// SnapshotConfig controls in-memory result retention.
type SnapshotConfig struct {
	// TTL is how long a line's result remains in the store after its last refresh.
	TTL time.Duration `yaml:"ttl"`
}

// MonitorConfig controls which fields are analysed and how indicators are derived.
type MonitorConfig struct {
	// RefreshInterval controls how often every line is re-read and re-analysed.
	RefreshInterval time.Duration `yaml:"refresh_interval"`

	// Fields are the monitored fields: bounds are computed for each and any
	// of them leaving its bounds marks an anomaly region.
	Fields []string `yaml:"fields"`

	// PrimaryField drives volatility and the first risk term.
	PrimaryField string `yaml:"primary_field"`

	// SecondaryField drives the second risk term.
	SecondaryField string `yaml:"secondary_field"`

	// Window is the number of most recent readings used for indicators.
	Window int `yaml:"window"`

	// MaintenanceScale converts volatility to hours (observed: 10 or 70).
	MaintenanceScale float64 `yaml:"maintenance_scale"`

	// FailureThreshold is the failure probability (%) that adds one risk point.
	FailureThreshold float64 `yaml:"failure_threshold"`
}

// Line describes one monitored production line and where its readings come from.
type Line struct {
	// ID is a unique, human-readable identifier for this line.
	ID string `yaml:"id"`

	// Type is the reading source: csv | http | prometheus | kafka | mqtt | s3 | synthetic.
	Type string `yaml:"type"`

	// Path is the CSV file path (type csv).
	Path string `yaml:"path"`

	// Endpoint is the URL of a CSV document (type http), a Prometheus
	// exposition endpoint (type prometheus) or an object store (type s3).
	Endpoint string `yaml:"endpoint"`

	// Brokers and Topic configure the Kafka consumer (type kafka) or the
	// MQTT subscription (type mqtt). GroupID is the Kafka consumer group.
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
	GroupID string   `yaml:"group_id"`

	// ClientID and QoS configure the MQTT subscription (type mqtt).
	ClientID string `yaml:"client_id"`
	QoS      byte   `yaml:"qos"`

	// Bucket, Object and Region locate a CSV object (type s3). Credentials
	// are read from the environment variables named by the *_env keys.
	Bucket       string `yaml:"bucket"`
	Object       string `yaml:"object"`
	Region       string `yaml:"region"`
	AccessKeyEnv string `yaml:"access_key_env"`
	SecretKeyEnv string `yaml:"secret_key_env"`

	// Columns maps field names to CSV column headers or Prometheus metric names.
	Columns map[string]string `yaml:"columns"`

	// FailureColumn is the CSV column (or metric) whose positive value marks a failure.
	FailureColumn string `yaml:"failure_column"`

	// MaxReadings caps the rolling buffer kept by streaming sources.
	MaxReadings int `yaml:"max_readings"`

	// Seed and Count configure the synthetic generator.
	Seed  int64 `yaml:"seed"`
	Count int   `yaml:"count"`

	// Auth configures how the server authenticates to an HTTP endpoint.
	Auth AuthConfig `yaml:"auth"`

	// TLS holds optional TLS dial options.
	TLS TLSConfig `yaml:"tls"`
}

// AuthConfig specifies the authentication mode for an HTTP line source.
type AuthConfig struct {
	// Mode is one of: apikey | bearer | basic | none.
	Mode string `yaml:"mode"`

	// Header is the HTTP header name to send the API key in.
	Header string `yaml:"header"`
	// KeyEnv is the name of the environment variable that holds the key value.
	KeyEnv string `yaml:"key_env"`

	// TokenEnv is the name of the environment variable that holds the bearer token.
	TokenEnv string `yaml:"token_env"`

	// Username is the literal basic-auth username.
	Username string `yaml:"username"`
	// PasswordEnv is the name of the environment variable that holds the password.
	PasswordEnv string `yaml:"password_env"`
}

// Key returns the API key value resolved from the environment.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// Token returns the bearer token value resolved from the environment.
func (a AuthConfig) Token() string {
	if a.TokenEnv == "" {
		return ""
	}
	return os.Getenv(a.TokenEnv)
}

// Password returns the basic-auth password resolved from the environment.
func (a AuthConfig) Password() string {
	if a.PasswordEnv == "" {
		return ""
	}
	return os.Getenv(a.PasswordEnv)
}

// AccessKey returns the object store access key resolved from the environment.
func (l Line) AccessKey() string {
	if l.AccessKeyEnv == "" {
		return ""
	}
	return os.Getenv(l.AccessKeyEnv)
}

// SecretKey returns the object store secret key resolved from the environment.
func (l Line) SecretKey() string {
	if l.SecretKeyEnv == "" {
		return ""
	}
	return os.Getenv(l.SecretKeyEnv)
}

// TLSConfig holds per-line TLS dial options.
type TLSConfig struct {
	// InsecureSkipVerify disables TLS certificate verification.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`
}

// AlertsConfig holds alerting rules and webhook delivery targets.
type AlertsConfig struct {
	Rules    []AlertRule     `yaml:"rules"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// AlertRule defines one threshold-based alert condition.
type AlertRule struct {
	// Name is the human-readable alert identifier, used as the deduplication key.
	Name string `yaml:"name"`

	// Condition is a simple expression: "failure_probability > 5",
	// "time_to_maintenance < 24", "risk_level == high".
	Condition string `yaml:"condition"`

	// Severity is one of: critical | warning | info.
	Severity string `yaml:"severity"`

	// Cooldown suppresses re-fires for this duration after an alert fires.
	// Defaults to 15 minutes if zero.
	Cooldown time.Duration `yaml:"cooldown"`
}

// WebhookConfig defines one webhook delivery target.
type WebhookConfig struct {
	// Type is one of: teams | slack | http.
	Type string `yaml:"type"`

	// URLEnv is the name of the environment variable that holds the webhook URL.
	URLEnv string `yaml:"url_env"`
}

// URL returns the webhook URL resolved from the environment.
func (w WebhookConfig) URL() string {
	if w.URLEnv == "" {
		return ""
	}
	return os.Getenv(w.URLEnv)
}

// MetricsConfig controls the Prometheus exposition endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Load reads and parses the YAML config file at path.
// Missing optional fields are filled with sensible defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML data, applies defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}
	applyLineDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// Defaults returns a Config pre-populated with default values.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort: DefaultHTTPPort,
			Snapshot: SnapshotConfig{TTL: DefaultSnapshotTTL},
		},
		Monitor: MonitorConfig{
			RefreshInterval:  DefaultRefreshInterval,
			Fields:           []string{DefaultPrimaryField, DefaultSecondaryField},
			PrimaryField:     DefaultPrimaryField,
			SecondaryField:   DefaultSecondaryField,
			Window:           DefaultWindow,
			MaintenanceScale: DefaultMaintenanceScale,
			FailureThreshold: DefaultFailureThreshold,
		},
		Metrics: MetricsConfig{Enabled: true, Path: DefaultMetricsPath},
	}
}

// applyLineDefaults fills per-line defaults that yaml cannot pre-populate
// inside a slice.
func applyLineDefaults(cfg *Config) {
	for i := range cfg.Lines {
		if cfg.Lines[i].MaxReadings <= 0 {
			cfg.Lines[i].MaxReadings = DefaultMaxReadings
		}
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = DefaultMetricsPath
	}
}

// validate checks required fields and structural constraints.
func validate(cfg *Config) error {
	if cfg.Server.HTTPPort <= 0 || cfg.Server.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port %d is out of range [1, 65535]", cfg.Server.HTTPPort)
	}
	switch cfg.Server.Auth.Mode {
	case "apikey", "none", "":
	default:
		return fmt.Errorf("server.auth.mode %q unknown: want apikey|none", cfg.Server.Auth.Mode)
	}
	if cfg.Server.Snapshot.TTL < 0 {
		return fmt.Errorf("server.snapshot.ttl must not be negative")
	}

	m := cfg.Monitor
	if m.RefreshInterval <= 0 {
		return fmt.Errorf("monitor.refresh_interval must be positive")
	}
	if len(m.Fields) == 0 {
		return fmt.Errorf("monitor.fields must list at least one field")
	}
	for i, f := range m.Fields {
		if f == "" {
			return fmt.Errorf("monitor.fields[%d] is empty", i)
		}
	}
	if m.PrimaryField == "" || m.SecondaryField == "" {
		return fmt.Errorf("monitor.primary_field and monitor.secondary_field are required")
	}
	if !contains(m.Fields, m.PrimaryField) || !contains(m.Fields, m.SecondaryField) {
		return fmt.Errorf("monitor.primary_field and monitor.secondary_field must be listed in monitor.fields")
	}
	if m.Window <= 0 {
		return fmt.Errorf("monitor.window must be positive")
	}
	if m.MaintenanceScale < 0 {
		return fmt.Errorf("monitor.maintenance_scale must not be negative")
	}
	if m.FailureThreshold < 0 {
		return fmt.Errorf("monitor.failure_threshold must not be negative")
	}

	seen := make(map[string]bool, len(cfg.Lines))
	for i, l := range cfg.Lines {
		if l.ID == "" {
			return fmt.Errorf("lines[%d]: id is required", i)
		}
		if seen[l.ID] {
			return fmt.Errorf("lines[%d]: duplicate id %q", i, l.ID)
		}
		seen[l.ID] = true

		switch l.Type {
		case LineCSV:
			if l.Path == "" {
				return fmt.Errorf("lines[%d] %q: path is required", i, l.ID)
			}
		case LineHTTP, LinePrometheus:
			if l.Endpoint == "" {
				return fmt.Errorf("lines[%d] %q: endpoint is required", i, l.ID)
			}
		case LineKafka:
			if len(l.Brokers) == 0 || l.Topic == "" {
				return fmt.Errorf("lines[%d] %q: brokers and topic are required", i, l.ID)
			}
		case LineMQTT:
			if len(l.Brokers) == 0 || l.Topic == "" {
				return fmt.Errorf("lines[%d] %q: brokers and topic are required", i, l.ID)
			}
			if l.QoS > 2 {
				return fmt.Errorf("lines[%d] %q: qos %d is out of range [0, 2]", i, l.ID, l.QoS)
			}
		case LineS3:
			if l.Endpoint == "" || l.Bucket == "" || l.Object == "" {
				return fmt.Errorf("lines[%d] %q: endpoint, bucket and object are required", i, l.ID)
			}
		case LineSynthetic:
		default:
			return fmt.Errorf("lines[%d] %q: unknown type %q", i, l.ID, l.Type)
		}
		switch l.Auth.Mode {
		case "apikey", "bearer", "basic", "none", "":
		default:
			return fmt.Errorf("lines[%d] %q: unknown auth mode %q", i, l.ID, l.Auth.Mode)
		}
	}

	for i, r := range cfg.Alerts.Rules {
		if r.Name == "" || r.Condition == "" {
			return fmt.Errorf("alerts.rules[%d]: name and condition are required", i)
		}
		if err := CheckCondition(r.Condition); err != nil {
			return fmt.Errorf("alerts.rules[%d] %q: %w", i, r.Name, err)
		}
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Package config loads host-level settings for a converge binary.
//
// Per-invocation inputs (operation, resource type, desired state) arrive as
// command arguments; everything else (diagnostics, telemetry sinks, backend
// paths) comes from an optional converge.yaml, overridable through
// CONVERGE_* environment variables. A missing config file is not an error,
// the defaults describe a working local setup.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/openconverge/converge/pkg/telemetry"
)

const (
	configName = "converge"
	configType = "yaml"

	// EnvPrefix is the prefix of environment overrides, for example
	// CONVERGE_LOG_LEVEL.
	EnvPrefix = "CONVERGE"
)

// Config holds the host-level settings of a converge binary.
type Config struct {
	// Environment names the deployment environment.
	Environment string `mapstructure:"environment" validate:"required,oneof=development staging production"`

	// LogLevel is the stderr diagnostic verbosity.
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=trace debug info warn error fatal disabled"`

	// LogFormat selects json or console rendering for diagnostics.
	LogFormat string `mapstructure:"log_format" validate:"required,oneof=json console"`

	// LogOutput is stderr or a file path. Standard output is reserved for
	// result documents and rejected here.
	LogOutput string `mapstructure:"log_output" validate:"required,ne=stdout"`

	// TracingEnabled turns span export on.
	TracingEnabled bool `mapstructure:"tracing_enabled"`

	// TracingExporter selects the span exporter.
	TracingExporter string `mapstructure:"tracing_exporter" validate:"omitempty,oneof=otlp stdout none"`

	// TracingEndpoint is the OTLP collector endpoint.
	TracingEndpoint string `mapstructure:"tracing_endpoint"`

	// TracingSamplingRate is the trace sampling ratio.
	TracingSamplingRate float64 `mapstructure:"tracing_sampling_rate" validate:"gte=0,lte=1"`

	// TracingInsecure disables TLS towards the collector.
	TracingInsecure bool `mapstructure:"tracing_insecure"`

	// MetricsEnabled turns metric collection on.
	MetricsEnabled bool `mapstructure:"metrics_enabled"`

	// MetricsTextfile is a node-exporter textfile path flushed at exit.
	MetricsTextfile string `mapstructure:"metrics_textfile"`

	// MetricsPushgateway is a Pushgateway base URL flushed at exit.
	MetricsPushgateway string `mapstructure:"metrics_pushgateway" validate:"omitempty,url"`

	// MetricsPushJob is the Pushgateway job label.
	MetricsPushJob string `mapstructure:"metrics_push_job"`

	// AuthDBPath is the SQLite database backing the sql.login resource.
	AuthDBPath string `mapstructure:"auth_db_path" validate:"required"`

	// SentinelStateDir is the directory holding test.sentinel state files.
	SentinelStateDir string `mapstructure:"sentinel_state_dir" validate:"required"`

	// SSHUser is the account used when managing files on remote hosts.
	SSHUser string `mapstructure:"ssh_user" validate:"required"`

	// SSHPrivateKey is the private key for remote host authentication. Empty
	// falls back to the usual ~/.ssh key locations.
	SSHPrivateKey string `mapstructure:"ssh_private_key"`

	// SSHKnownHosts is the known_hosts file used to verify remote hosts.
	SSHKnownHosts string `mapstructure:"ssh_known_hosts"`

	// SSHConnectTimeout bounds SSH connection establishment.
	SSHConnectTimeout time.Duration `mapstructure:"ssh_connect_timeout" validate:"gte=0"`
}

// Default returns the built-in settings used when no config file exists.
func Default() *Config {
	return &Config{
		Environment:         "production",
		LogLevel:            "info",
		LogFormat:           "json",
		LogOutput:           "stderr",
		TracingEnabled:      false,
		TracingExporter:     "none",
		TracingSamplingRate: 1.0,
		TracingInsecure:     true,
		MetricsEnabled:      false,
		MetricsPushJob:      "converge",
		AuthDBPath:          "/var/lib/converge/auth.db",
		SentinelStateDir:    "/var/lib/converge/sentinel",
		SSHUser:             defaultSSHUser(),
		SSHKnownHosts:       defaultKnownHosts(),
		SSHConnectTimeout:   10 * time.Second,
	}
}

func defaultSSHUser() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "root"
}

func defaultKnownHosts() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".ssh", "known_hosts")
}

// Load reads settings from the given config file, or from the well-known
// locations when file is empty. Environment variables with the CONVERGE_
// prefix override both.
func Load(file string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
	} else {
		v.SetConfigName(configName)
		v.SetConfigType(configType)
		for _, dir := range searchDirs() {
			v.AddConfigPath(dir)
		}
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config: %w", err)
			}
			// Missing config file means defaults plus environment.
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("environment", d.Environment)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_format", d.LogFormat)
	v.SetDefault("log_output", d.LogOutput)
	v.SetDefault("tracing_enabled", d.TracingEnabled)
	v.SetDefault("tracing_exporter", d.TracingExporter)
	v.SetDefault("tracing_endpoint", d.TracingEndpoint)
	v.SetDefault("tracing_sampling_rate", d.TracingSamplingRate)
	v.SetDefault("tracing_insecure", d.TracingInsecure)
	v.SetDefault("metrics_enabled", d.MetricsEnabled)
	v.SetDefault("metrics_textfile", d.MetricsTextfile)
	v.SetDefault("metrics_pushgateway", d.MetricsPushgateway)
	v.SetDefault("metrics_push_job", d.MetricsPushJob)
	v.SetDefault("auth_db_path", d.AuthDBPath)
	v.SetDefault("sentinel_state_dir", d.SentinelStateDir)
	v.SetDefault("ssh_user", d.SSHUser)
	v.SetDefault("ssh_private_key", d.SSHPrivateKey)
	v.SetDefault("ssh_known_hosts", d.SSHKnownHosts)
	v.SetDefault("ssh_connect_timeout", d.SSHConnectTimeout)
}

// searchDirs lists the well-known config locations, most specific first.
func searchDirs() []string {
	var dirs []string
	if env := os.Getenv(EnvPrefix + "_CONFIG_DIR"); env != "" {
		dirs = append(dirs, env)
	}
	if userDir, err := os.UserConfigDir(); err == nil {
		dirs = append(dirs, filepath.Join(userDir, "converge"))
	}
	dirs = append(dirs, "/etc/converge")
	return dirs
}

// Validate checks field constraints and the cross-field rules the tags
// cannot express.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	if c.TracingEnabled && c.TracingExporter == "otlp" && c.TracingEndpoint == "" {
		return fmt.Errorf("config validation failed: tracing exporter otlp requires an endpoint")
	}
	if c.MetricsEnabled && c.MetricsTextfile == "" && c.MetricsPushgateway == "" {
		return fmt.Errorf("config validation failed: metrics need a textfile path or a pushgateway url")
	}

	return nil
}

// Telemetry builds the telemetry configuration for this host config.
func (c *Config) Telemetry(serviceVersion string) telemetry.Config {
	return telemetry.Config{
		ServiceName:    "converge",
		ServiceVersion: serviceVersion,
		Environment:    c.Environment,
		Logging: telemetry.LoggingConfig{
			Level:  c.LogLevel,
			Format: c.LogFormat,
			Output: c.LogOutput,
		},
		Tracing: telemetry.TracingConfig{
			Enabled:       c.TracingEnabled,
			Exporter:      c.TracingExporter,
			Endpoint:      c.TracingEndpoint,
			SamplingRate:  c.TracingSamplingRate,
			ExportTimeout: 10 * time.Second,
			Insecure:      c.TracingInsecure,
		},
		Metrics: telemetry.MetricsConfig{
			Enabled:        c.MetricsEnabled,
			Namespace:      "converge",
			TextfilePath:   c.MetricsTextfile,
			PushgatewayURL: c.MetricsPushgateway,
			PushJob:        c.MetricsPushJob,
		},
	}
}

// Package config provides configuration parsing and validation for echoprobe.
package config

import (
	"fmt"
	"net"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/postalsys/echoprobe/internal/icmp"
	"github.com/postalsys/echoprobe/internal/rawsock"
)

// Config represents the complete echoprobe configuration.
type Config struct {
	Probe   ProbeConfig   `yaml:"probe"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
	Watch   WatchConfig   `yaml:"watch"`
}

// ProbeConfig controls how echo requests are sent.
type ProbeConfig struct {
	Timeout          time.Duration `yaml:"timeout"`
	Identifier       int           `yaml:"identifier"`        // 0-65535
	Payload          string        `yaml:"payload"`           // echo request data
	Mode             string        `yaml:"mode"`              // dgram, raw, packetconn
	LowDelay         bool          `yaml:"low_delay"`         // set IP_TOS / IPV6_TCLASS
	ReceiveBuffer    int           `yaml:"receive_buffer"`    // bytes read per reply
	VerifyIdentifier bool          `yaml:"verify_identifier"` // require reply id == request id
	Privileged       bool          `yaml:"privileged"`        // packetconn mode: use raw ip sockets
}

// LoggingConfig defines log output.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// MetricsConfig defines the HTTP server used by watch mode.
type MetricsConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Address      string        `yaml:"address"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// WatchConfig defines the probe series run by watch mode.
type WatchConfig struct {
	Interval time.Duration `yaml:"interval"`
	Count    int           `yaml:"count"` // 0 runs until interrupted

	// ControlSocket is the Unix socket serving status queries while
	// watching. Empty disables it.
	ControlSocket string `yaml:"control_socket"`
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Probe: ProbeConfig{
			Timeout:       icmp.DefaultTimeout,
			Identifier:    0,
			Payload:       string(icmp.DefaultPayload),
			Mode:          rawsock.ModeDatagram.String(),
			ReceiveBuffer: icmp.DefaultReceiveBufferSize,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled:      false,
			Address:      "127.0.0.1:9469",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		Watch: WatchConfig{
			Interval: time.Second,
			Count:    0,
		},
	}
}

// Load reads and parses a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse parses configuration from YAML bytes.
func Parse(data []byte) (*Config, error) {
	expanded := expandEnvVars(string(data))

	cfg := Default()

	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// envVarRegex matches ${VAR} or $VAR patterns
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// expandEnvVars replaces environment variable references with their values.
func expandEnvVars(s string) string {
	return envVarRegex.ReplaceAllStringFunc(s, func(match string) string {
		var name string
		if strings.HasPrefix(match, "${") {
			name = match[2 : len(match)-1]
		} else {
			name = match[1:]
		}

		// ${VAR:-default}
		if idx := strings.Index(name, ":-"); idx != -1 {
			if val, ok := os.LookupEnv(name[:idx]); ok {
				return val
			}
			return name[idx+2:]
		}

		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		return match // Keep original if not found
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if c.Probe.Timeout <= 0 {
		errs = append(errs, "probe.timeout must be positive")
	}
	if c.Probe.Identifier < 0 || c.Probe.Identifier > 0xffff {
		errs = append(errs, fmt.Sprintf("probe.identifier must be between 0 and 65535, got %d", c.Probe.Identifier))
	}
	if _, err := rawsock.ParseMode(c.Probe.Mode); err != nil {
		errs = append(errs, fmt.Sprintf("probe.mode: %v", err))
	}
	if c.Probe.ReceiveBuffer < icmp.HeaderLen || c.Probe.ReceiveBuffer > 65535 {
		errs = append(errs, fmt.Sprintf("probe.receive_buffer must be between %d and 65535", icmp.HeaderLen))
	}
	if len(c.Probe.Payload)+icmp.HeaderLen > c.Probe.ReceiveBuffer {
		errs = append(errs, "probe.payload does not fit in probe.receive_buffer")
	}

	if !isValidLogLevel(c.Logging.Level) {
		errs = append(errs, fmt.Sprintf("invalid logging.level: %s (must be debug, info, warn, or error)", c.Logging.Level))
	}
	if !isValidLogFormat(c.Logging.Format) {
		errs = append(errs, fmt.Sprintf("invalid logging.format: %s (must be text or json)", c.Logging.Format))
	}

	if c.Metrics.Enabled {
		if _, _, err := net.SplitHostPort(c.Metrics.Address); err != nil {
			errs = append(errs, fmt.Sprintf("metrics.address: %v", err))
		}
	}

	if c.Watch.Interval <= 0 {
		errs = append(errs, "watch.interval must be positive")
	}
	if c.Watch.Count < 0 {
		errs = append(errs, "watch.count must not be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

func isValidLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	default:
		return false
	}
}

func isValidLogFormat(format string) bool {
	switch format {
	case "text", "json":
		return true
	default:
		return false
	}
}

// ProberConfig converts the probe section for icmp.NewProber.
func (c *Config) ProberConfig() icmp.Config {
	return icmp.Config{
		Timeout:           c.Probe.Timeout,
		Payload:           []byte(c.Probe.Payload),
		ReceiveBufferSize: c.Probe.ReceiveBuffer,
		VerifyIdentifier:  c.Probe.VerifyIdentifier,
	}
}

// TransportOptions converts the probe section for rawsock.New. The mode
// must have passed Validate.
func (c *Config) TransportOptions() rawsock.Options {
	mode, _ := rawsock.ParseMode(c.Probe.Mode)
	return rawsock.Options{
		Mode:       mode,
		Privileged: c.Probe.Privileged,
		LowDelay:   c.Probe.LowDelay,
	}
}

// String renders the config as YAML.
func (c *Config) String() string {
	data, _ := yaml.Marshal(c)
	return string(data)
}

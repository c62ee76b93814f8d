package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/postalsys/echoprobe/internal/rawsock"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Probe.Timeout != 3*time.Second {
		t.Errorf("Probe.Timeout = %v, want 3s", cfg.Probe.Timeout)
	}
	if cfg.Probe.Payload != "12345" {
		t.Errorf("Probe.Payload = %q, want %q", cfg.Probe.Payload, "12345")
	}
	if cfg.Probe.Mode != "dgram" {
		t.Errorf("Probe.Mode = %s, want dgram", cfg.Probe.Mode)
	}
	if cfg.Probe.ReceiveBuffer != 2048 {
		t.Errorf("Probe.ReceiveBuffer = %d, want 2048", cfg.Probe.ReceiveBuffer)
	}
	if cfg.Probe.VerifyIdentifier {
		t.Error("Probe.VerifyIdentifier should default to false")
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "text" {
		t.Errorf("Logging = %+v, want info/text", cfg.Logging)
	}
	if cfg.Watch.Interval != time.Second {
		t.Errorf("Watch.Interval = %v, want 1s", cfg.Watch.Interval)
	}
	if cfg.Metrics.Address != "127.0.0.1:9469" {
		t.Errorf("Metrics.Address = %q, want loopback only", cfg.Metrics.Address)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default().Validate() error = %v", err)
	}
}

func TestParse_ValidConfig(t *testing.T) {
	yamlConfig := `
probe:
  timeout: 500ms
  identifier: 4660
  payload: "hello"
  mode: raw
  low_delay: true
  receive_buffer: 1500
  verify_identifier: true

logging:
  level: debug
  format: json

metrics:
  enabled: true
  address: "127.0.0.1:9100"

watch:
  interval: 2s
  count: 10
  control_socket: /run/echoprobe.sock
`

	cfg, err := Parse([]byte(yamlConfig))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if cfg.Probe.Timeout != 500*time.Millisecond {
		t.Errorf("Probe.Timeout = %v, want 500ms", cfg.Probe.Timeout)
	}
	if cfg.Probe.Identifier != 0x1234 {
		t.Errorf("Probe.Identifier = %d, want 4660", cfg.Probe.Identifier)
	}
	if cfg.Probe.Payload != "hello" {
		t.Errorf("Probe.Payload = %q, want hello", cfg.Probe.Payload)
	}
	if !cfg.Probe.LowDelay || !cfg.Probe.VerifyIdentifier {
		t.Errorf("Probe flags = %+v", cfg.Probe)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.Address != "127.0.0.1:9100" {
		t.Errorf("Metrics = %+v", cfg.Metrics)
	}
	// Unset fields keep their defaults.
	if cfg.Metrics.ReadTimeout != 10*time.Second {
		t.Errorf("Metrics.ReadTimeout = %v, want 10s", cfg.Metrics.ReadTimeout)
	}
	if cfg.Watch.Interval != 2*time.Second || cfg.Watch.Count != 10 || cfg.Watch.ControlSocket != "/run/echoprobe.sock" {
		t.Errorf("Watch = %+v", cfg.Watch)
	}

	pc := cfg.ProberConfig()
	if pc.Timeout != 500*time.Millisecond || string(pc.Payload) != "hello" || pc.ReceiveBufferSize != 1500 || !pc.VerifyIdentifier {
		t.Errorf("ProberConfig() = %+v", pc)
	}

	opts := cfg.TransportOptions()
	if opts.Mode != rawsock.ModeRaw || !opts.LowDelay {
		t.Errorf("TransportOptions() = %+v", opts)
	}
}

func TestParse_EmptyPayloadKept(t *testing.T) {
	cfg, err := Parse([]byte("probe:\n  payload: \"\"\n"))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	pc := cfg.ProberConfig()
	if pc.Payload == nil || len(pc.Payload) != 0 {
		t.Errorf("Payload = %#v, want empty non-nil", pc.Payload)
	}
}

func TestParse_InvalidYAML(t *testing.T) {
	_, err := Parse([]byte("probe: [unterminated"))
	if err == nil {
		t.Fatal("expected error for invalid YAML")
	}
	if !strings.Contains(err.Error(), "failed to parse config") {
		t.Errorf("error = %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{"zero timeout", func(c *Config) { c.Probe.Timeout = 0 }, "probe.timeout"},
		{"identifier too large", func(c *Config) { c.Probe.Identifier = 70000 }, "probe.identifier"},
		{"negative identifier", func(c *Config) { c.Probe.Identifier = -1 }, "probe.identifier"},
		{"unknown mode", func(c *Config) { c.Probe.Mode = "stream" }, "probe.mode"},
		{"tiny buffer", func(c *Config) { c.Probe.ReceiveBuffer = 4 }, "probe.receive_buffer"},
		{"payload too large", func(c *Config) {
			c.Probe.ReceiveBuffer = 16
			c.Probe.Payload = strings.Repeat("x", 9)
		}, "probe.payload"},
		{"bad level", func(c *Config) { c.Logging.Level = "trace" }, "logging.level"},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"bad metrics address", func(c *Config) {
			c.Metrics.Enabled = true
			c.Metrics.Address = "localhost"
		}, "metrics.address"},
		{"zero interval", func(c *Config) { c.Watch.Interval = 0 }, "watch.interval"},
		{"negative count", func(c *Config) { c.Watch.Count = -1 }, "watch.count"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want mention of %s", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_AggregatesErrors(t *testing.T) {
	cfg := Default()
	cfg.Probe.Timeout = 0
	cfg.Logging.Level = "loud"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "probe.timeout") || !strings.Contains(err.Error(), "logging.level") {
		t.Errorf("error = %v, want both problems listed", err)
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("ECHOPROBE_TEST_MODE", "raw")
	t.Setenv("ECHOPROBE_TEST_EMPTY", "")

	tests := []struct {
		input string
		want  string
	}{
		{"mode: ${ECHOPROBE_TEST_MODE}", "mode: raw"},
		{"mode: $ECHOPROBE_TEST_MODE", "mode: raw"},
		{"mode: ${ECHOPROBE_TEST_UNSET:-packetconn}", "mode: packetconn"},
		{"mode: ${ECHOPROBE_TEST_MODE:-packetconn}", "mode: raw"},
		{"payload: '${ECHOPROBE_TEST_EMPTY:-x}'", "payload: ''"},
		{"keep: ${ECHOPROBE_TEST_UNSET}", "keep: ${ECHOPROBE_TEST_UNSET}"},
	}

	for _, tt := range tests {
		if got := expandEnvVars(tt.input); got != tt.want {
			t.Errorf("expandEnvVars(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestParse_EnvVars(t *testing.T) {
	t.Setenv("ECHOPROBE_TEST_TIMEOUT", "750ms")

	cfg, err := Parse([]byte("probe:\n  timeout: ${ECHOPROBE_TEST_TIMEOUT}\n  mode: ${ECHOPROBE_TEST_UNSET_MODE:-packetconn}\n"))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.Probe.Timeout != 750*time.Millisecond {
		t.Errorf("Probe.Timeout = %v, want 750ms", cfg.Probe.Timeout)
	}
	if cfg.Probe.Mode != "packetconn" {
		t.Errorf("Probe.Mode = %s, want packetconn", cfg.Probe.Mode)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "echoprobe.yaml")
	if err := os.WriteFile(path, []byte("watch:\n  count: 3\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Watch.Count != 3 {
		t.Errorf("Watch.Count = %d, want 3", cfg.Watch.Count)
	}

	if _, err := Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestString_RoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Probe.Identifier = 99

	parsed, err := Parse([]byte(cfg.String()))
	if err != nil {
		t.Fatalf("Parse(String()) error = %v", err)
	}
	if parsed.Probe.Identifier != 99 || parsed.Probe.Timeout != cfg.Probe.Timeout {
		t.Errorf("round trip lost values: %+v", parsed.Probe)
	}
}

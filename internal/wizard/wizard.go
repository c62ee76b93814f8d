// Package wizard provides the interactive configuration wizard behind
// echoprobe init.
package wizard

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"

	"github.com/postalsys/echoprobe/internal/config"
	"github.com/postalsys/echoprobe/internal/rawsock"
)

// Result contains the wizard output.
type Result struct {
	Config     *config.Config
	ConfigPath string

	// Capability holds the socket check outcome per family; nil means usable.
	Capability map[rawsock.Family]error
}

// Answers holds the raw form values before they are turned into a Config.
type Answers struct {
	ConfigPath       string
	Mode             string
	Timeout          string
	Identifier       string
	Payload          string
	LowDelay         bool
	VerifyIdentifier bool
	WatchInterval    string
	WatchCount       string
	MetricsEnabled   bool
	MetricsAddress   string
	LogLevel         string
}

// DefaultAnswers pre-fills the forms from config.Default.
func DefaultAnswers() Answers {
	def := config.Default()
	return Answers{
		ConfigPath:     "./echoprobe.yaml",
		Mode:           def.Probe.Mode,
		Timeout:        def.Probe.Timeout.String(),
		Identifier:     strconv.Itoa(def.Probe.Identifier),
		Payload:        def.Probe.Payload,
		WatchInterval:  def.Watch.Interval.String(),
		WatchCount:     strconv.Itoa(def.Watch.Count),
		MetricsEnabled: true,
		MetricsAddress: def.Metrics.Address,
		LogLevel:       def.Logging.Level,
	}
}

// Wizard manages the interactive setup process.
type Wizard struct {
	theme *huh.Theme

	// check is swapped out in tests.
	check func(rawsock.Options, rawsock.Family) error
}

// New creates a new setup wizard.
func New() *Wizard {
	return &Wizard{
		theme: huh.ThemeDracula(),
		check: func(opts rawsock.Options, family rawsock.Family) error {
			return rawsock.Check(rawsock.New(opts), family)
		},
	}
}

// Run executes the interactive setup wizard.
func (w *Wizard) Run() (*Result, error) {
	w.printBanner()

	a := DefaultAnswers()

	if err := w.askBasicSetup(&a); err != nil {
		return nil, err
	}
	if err := w.askProbeSettings(&a); err != nil {
		return nil, err
	}
	if err := w.askWatchSettings(&a); err != nil {
		return nil, err
	}
	if err := w.askLogging(&a); err != nil {
		return nil, err
	}

	cfg, err := BuildConfig(a)
	if err != nil {
		return nil, err
	}

	capability := w.checkCapability(cfg)

	if err := WriteConfig(cfg, a.ConfigPath); err != nil {
		return nil, err
	}

	w.printSummary(a.ConfigPath, cfg, capability)

	return &Result{
		Config:     cfg,
		ConfigPath: a.ConfigPath,
		Capability: capability,
	}, nil
}

func (w *Wizard) printBanner() {
	banner := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("212")).
		Render("\n  echoprobe")

	subtitle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241")).
		Render("  ICMP echo probe - configuration wizard\n")

	fmt.Println(banner)
	fmt.Println(subtitle)
}

func (w *Wizard) askBasicSetup(a *Answers) error {
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewNote().
				Title("Basic Setup").
				Description("Choose where the configuration is written."),

			huh.NewInput().
				Title("Config File Path").
				Placeholder("./echoprobe.yaml").
				Value(&a.ConfigPath).
				Validate(validateConfigPath),
		),
	).WithTheme(w.theme)

	return form.Run()
}

func (w *Wizard) askProbeSettings(a *Answers) error {
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewNote().
				Title("Probe").
				Description("How echo requests are sent and matched."),

			huh.NewSelect[string]().
				Title("Socket Mode").
				Options(
					huh.NewOption("Datagram ping socket (unprivileged, recommended)", rawsock.ModeDatagram.String()),
					huh.NewOption("Raw socket (needs CAP_NET_RAW or root)", rawsock.ModeRaw.String()),
					huh.NewOption("Portable packet connection", rawsock.ModePacketConn.String()),
				).
				Value(&a.Mode),

			huh.NewInput().
				Title("Timeout").
				Description("How long to wait for a reply (e.g. 3s, 500ms)").
				Value(&a.Timeout).
				Validate(validatePositiveDuration),

			huh.NewInput().
				Title("Identifier").
				Description("Echo identifier, 0-65535").
				Value(&a.Identifier).
				Validate(validateUint16),

			huh.NewInput().
				Title("Payload").
				Description("Bytes appended after the echo header").
				Value(&a.Payload),

			huh.NewConfirm().
				Title("Request low-delay traffic class?").
				Value(&a.LowDelay),

			huh.NewConfirm().
				Title("Require matching identifier in replies?").
				Description("Leave off for datagram sockets; the kernel rewrites the identifier").
				Value(&a.VerifyIdentifier),
		),
	).WithTheme(w.theme)

	return form.Run()
}

func (w *Wizard) askWatchSettings(a *Answers) error {
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewNote().
				Title("Watch Mode").
				Description("Settings for echoprobe watch."),

			huh.NewInput().
				Title("Interval").
				Value(&a.WatchInterval).
				Validate(validatePositiveDuration),

			huh.NewInput().
				Title("Count").
				Description("Probes per run, 0 for unlimited").
				Value(&a.WatchCount).
				Validate(validateCount),

			huh.NewConfirm().
				Title("Serve metrics and health endpoints?").
				Description("HTTP endpoint (/metrics, /health, /probe)").
				Value(&a.MetricsEnabled),

			huh.NewInput().
				Title("Metrics Listen Address").
				Value(&a.MetricsAddress).
				Validate(func(s string) error {
					_, _, err := net.SplitHostPort(s)
					return err
				}),
		),
	).WithTheme(w.theme)

	return form.Run()
}

func (w *Wizard) askLogging(a *Answers) error {
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Log Level").
				Options(
					huh.NewOption("Debug (verbose)", "debug"),
					huh.NewOption("Info (recommended)", "info"),
					huh.NewOption("Warning", "warn"),
					huh.NewOption("Error (quiet)", "error"),
				).
				Value(&a.LogLevel),
		),
	).WithTheme(w.theme)

	return form.Run()
}

// BuildConfig turns wizard answers into a validated Config.
func BuildConfig(a Answers) (*config.Config, error) {
	cfg := config.Default()

	timeout, err := time.ParseDuration(a.Timeout)
	if err != nil {
		return nil, fmt.Errorf("invalid timeout: %w", err)
	}
	identifier, err := strconv.Atoi(a.Identifier)
	if err != nil {
		return nil, fmt.Errorf("invalid identifier: %w", err)
	}
	interval, err := time.ParseDuration(a.WatchInterval)
	if err != nil {
		return nil, fmt.Errorf("invalid interval: %w", err)
	}
	count, err := strconv.Atoi(a.WatchCount)
	if err != nil {
		return nil, fmt.Errorf("invalid count: %w", err)
	}

	cfg.Probe.Mode = a.Mode
	cfg.Probe.Timeout = timeout
	cfg.Probe.Identifier = identifier
	cfg.Probe.Payload = a.Payload
	cfg.Probe.LowDelay = a.LowDelay
	cfg.Probe.VerifyIdentifier = a.VerifyIdentifier

	cfg.Watch.Interval = interval
	cfg.Watch.Count = count

	cfg.Metrics.Enabled = a.MetricsEnabled
	if a.MetricsAddress != "" {
		cfg.Metrics.Address = a.MetricsAddress
	}

	cfg.Logging.Level = a.LogLevel
	cfg.Logging.Format = "text"

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// checkCapability opens one socket per family with the chosen settings.
func (w *Wizard) checkCapability(cfg *config.Config) map[rawsock.Family]error {
	opts := cfg.TransportOptions()
	return map[rawsock.Family]error{
		rawsock.IPv4: w.check(opts, rawsock.IPv4),
		rawsock.IPv6: w.check(opts, rawsock.IPv6),
	}
}

// WriteConfig writes cfg to path as YAML, creating parent directories.
func WriteConfig(cfg *config.Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := `# echoprobe configuration
# Generated by echoprobe init

`
	if err := os.WriteFile(path, []byte(header+string(data)), 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

func (w *Wizard) printSummary(configPath string, cfg *config.Config, capability map[rawsock.Family]error) {
	style := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("42"))
	warn := lipgloss.NewStyle().
		Foreground(lipgloss.Color("214"))

	divider := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241")).
		Render("─────────────────────────────────────────────────")

	fmt.Println()
	fmt.Println(divider)
	fmt.Println(style.Render("✓ Setup Complete!"))
	fmt.Println(divider)
	fmt.Println()

	fmt.Printf("  Config file:  %s\n", configPath)
	fmt.Printf("  Mode:         %s\n", cfg.Probe.Mode)
	fmt.Printf("  Timeout:      %s\n", cfg.Probe.Timeout)
	for _, family := range []rawsock.Family{rawsock.IPv4, rawsock.IPv6} {
		if err := capability[family]; err != nil {
			fmt.Printf("  %-13s %s\n", family.String()+":", warn.Render("unavailable: "+err.Error()))
		} else {
			fmt.Printf("  %-13s ok\n", family.String()+":")
		}
	}
	if cfg.Metrics.Enabled {
		fmt.Printf("  Metrics:      http://%s/metrics\n", cfg.Metrics.Address)
	}

	fmt.Println()
	fmt.Println("  To start probing:")
	fmt.Printf("    echoprobe watch -c %s <address>\n", configPath)
	fmt.Println()
}

func validateConfigPath(s string) error {
	if s == "" {
		return fmt.Errorf("config path is required")
	}
	if !strings.HasSuffix(s, ".yaml") && !strings.HasSuffix(s, ".yml") {
		return fmt.Errorf("config file should have .yaml or .yml extension")
	}
	return nil
}

func validatePositiveDuration(s string) error {
	d, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	if d <= 0 {
		return fmt.Errorf("must be positive")
	}
	return nil
}

func validateUint16(s string) error {
	v, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("must be a number")
	}
	if v < 0 || v > 0xffff {
		return fmt.Errorf("must be between 0 and 65535")
	}
	return nil
}

func validateCount(s string) error {
	v, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("must be a number")
	}
	if v < 0 {
		return fmt.Errorf("must not be negative")
	}
	return nil
}

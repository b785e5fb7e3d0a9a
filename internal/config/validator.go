package config

import (
	"fmt"
	"net"
	"regexp"
	"strings"
)

var (
	// Settings module names become --settings=<name> on a command line.
	settingsRegex = regexp.MustCompile(`^[A-Za-z0-9_.]+$`)

	// Injection characters check
	injectionChars = []string{";", "'", "\"", "`", "&", "|", ">", "<", "$", " "}
)

// Validate checks the configuration for errors
func Validate(cfg *Config) error {
	if err := validateCommandParts(cfg); err != nil {
		return err
	}
	if err := validateSystems(cfg); err != nil {
		return err
	}
	if err := validateRunner(cfg); err != nil {
		return err
	}
	return validateObservability(cfg)
}

func validateCommandParts(cfg *Config) error {
	if cfg.Python == "" {
		return fmt.Errorf("python interpreter is required")
	}
	for _, name := range []string{
		cfg.Settings.Default,
		cfg.Settings.Optimized,
		cfg.Settings.OptimizedAssets,
		cfg.Settings.Worker,
	} {
		if err := ValidateSettingsName(name); err != nil {
			return err
		}
	}
	if containsInjection(cfg.ManagePath) {
		return fmt.Errorf("invalid manage_path: %s", cfg.ManagePath)
	}
	return nil
}

// ValidateSettingsName rejects settings-module names that could not be a
// Python dotted path or that smuggle shell metacharacters into argv.
func ValidateSettingsName(name string) error {
	if name == "" {
		return fmt.Errorf("settings name is required")
	}
	if !settingsRegex.MatchString(name) || containsInjection(name) {
		return fmt.Errorf("invalid settings name: %s", name)
	}
	return nil
}

// ValidateSystem checks that the system name is one the runner knows.
func ValidateSystem(system string) error {
	if system != SystemLMS && system != SystemStudio {
		return fmt.Errorf("system must be either lms or studio")
	}
	return nil
}

func containsInjection(s string) bool {
	for _, c := range injectionChars {
		if strings.Contains(s, c) {
			return true
		}
	}
	return false
}

func validateSystems(cfg *Config) error {
	seen := make(map[int]string)
	for system, sc := range cfg.Systems {
		if err := ValidateSystem(system); err != nil {
			return fmt.Errorf("unknown system %q in config", system)
		}
		if sc.Port < 1 || sc.Port > 65535 {
			return fmt.Errorf("invalid port for %s: %d", system, sc.Port)
		}
		if other, dup := seen[sc.Port]; dup {
			return fmt.Errorf("port %d assigned to both %s and %s", sc.Port, other, system)
		}
		seen[sc.Port] = system
	}
	return nil
}

func validateRunner(cfg *Config) error {
	const (
		minGraceMS = 100
		maxGraceMS = 60_000

		minProbeMS = 100
		maxProbeMS = 60_000
	)

	if cfg.Runner.ShutdownGraceMS < minGraceMS || cfg.Runner.ShutdownGraceMS > maxGraceMS {
		return fmt.Errorf("invalid shutdown_grace_ms: %d", cfg.Runner.ShutdownGraceMS)
	}

	h := cfg.Runner.Health
	if h.IntervalMS < minProbeMS || h.IntervalMS > maxProbeMS {
		return fmt.Errorf("invalid health interval_ms: %d", h.IntervalMS)
	}
	if h.TimeoutMS < 1 || h.TimeoutMS > h.IntervalMS {
		return fmt.Errorf("invalid health timeout_ms: %d", h.TimeoutMS)
	}
	if h.FailAfter < 1 {
		return fmt.Errorf("invalid health fail_after: %d", h.FailAfter)
	}
	if h.RecoverAfter < 1 {
		return fmt.Errorf("invalid health recover_after: %d", h.RecoverAfter)
	}
	return nil
}

func validateObservability(cfg *Config) error {
	level := strings.ToLower(cfg.Observability.Logging.Console.Level)
	switch level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid console log level: %s", cfg.Observability.Logging.Console.Level)
	}

	gelf := cfg.Observability.Logging.GELF
	if gelf.Enabled {
		if gelf.Host == "" {
			return fmt.Errorf("gelf host is required")
		}
		if gelf.Port < 1 || gelf.Port > 65535 {
			return fmt.Errorf("invalid gelf port: %d", gelf.Port)
		}
		if gelf.Protocol != "udp" && gelf.Protocol != "tcp" {
			return fmt.Errorf("invalid gelf protocol: %s", gelf.Protocol)
		}
	}

	prom := cfg.Observability.Metrics.Prometheus
	if prom.Enabled {
		if prom.Port < 1 || prom.Port > 65535 {
			return fmt.Errorf("invalid prometheus port: %d", prom.Port)
		}
		if prom.Bind != "" && net.ParseIP(prom.Bind) == nil {
			return fmt.Errorf("invalid prometheus bind address: %s", prom.Bind)
		}
	}

	influx := cfg.Observability.Metrics.InfluxDB
	if influx.Enabled {
		if influx.URL == "" || influx.Token == "" || influx.Org == "" || influx.Bucket == "" {
			return fmt.Errorf("influxdb url, token, org and bucket are required")
		}
		if influx.PushIntervalSeconds < 1 {
			return fmt.Errorf("invalid influxdb push_interval_seconds: %d", influx.PushIntervalSeconds)
		}
	}

	return nil
}

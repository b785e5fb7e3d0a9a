package config

// Config is the runner configuration. Everything here ends up on a command
// line or decides how spawned processes are observed, so validation is
// strict about what the string fields may contain.
type Config struct {
	Python     string                  `yaml:"python"`
	ManagePath string                  `yaml:"manage_path"`
	Settings   SettingsConfig          `yaml:"settings"`
	Systems    map[string]SystemConfig `yaml:"systems"`
	Runner     RunnerConfig            `yaml:"runner"`

	Observability ObsConfig `yaml:"observability"`
}

// SettingsConfig names the framework settings modules used by each task.
type SettingsConfig struct {
	Default         string `yaml:"default"`
	Optimized       string `yaml:"optimized"`
	OptimizedAssets string `yaml:"optimized_assets"`
	Worker          string `yaml:"worker"`
}

// SystemConfig holds per-system (lms/studio) settings.
type SystemConfig struct {
	Port int `yaml:"port"`
}

// RunnerConfig holds process-supervision settings.
type RunnerConfig struct {
	StateDir        string       `yaml:"state_dir"`
	ShutdownGraceMS int          `yaml:"shutdown_grace_ms"`
	Health          HealthConfig `yaml:"health"`
}

// HealthConfig controls readiness probing of spawned dev servers.
type HealthConfig struct {
	Enabled      bool `yaml:"enabled"`
	IntervalMS   int  `yaml:"interval_ms"`
	TimeoutMS    int  `yaml:"timeout_ms"`
	FailAfter    int  `yaml:"fail_after"`
	RecoverAfter int  `yaml:"recover_after"`
}

type ObsConfig struct {
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

type LoggingConfig struct {
	Console ConsoleLogConfig `yaml:"console"`
	GELF    GELFLogConfig    `yaml:"gelf"`
}

type ConsoleLogConfig struct {
	Enabled bool   `yaml:"enabled"`
	Level   string `yaml:"level"`
}

type GELFLogConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Protocol string `yaml:"protocol"`
	Facility string `yaml:"facility"`
}

type MetricsConfig struct {
	InfluxDB   InfluxConfig `yaml:"influxdb"`
	Prometheus PromConfig   `yaml:"prometheus"`
}

type InfluxConfig struct {
	Enabled             bool   `yaml:"enabled"`
	URL                 string `yaml:"url"`
	Token               string `yaml:"token"`
	Org                 string `yaml:"org"`
	Bucket              string `yaml:"bucket"`
	PushIntervalSeconds int    `yaml:"push_interval_seconds"`
}

type PromConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
	Bind    string `yaml:"bind"` // Bind address (default: "" = all interfaces)
}

// Known system names. The studio system answers to "cms" when addressed
// through management commands, matching the framework's app label.
const (
	SystemLMS    = "lms"
	SystemStudio = "studio"
)

// Default settings-module names used when the config file leaves them out.
const (
	DefaultSettings         = "devstack"
	OptimizedSettings       = "devstack_optimized"
	OptimizedAssetsSettings = "test_static_optimized"
	WorkerSettings          = "dev_with_worker"
)

var defaultPorts = map[string]int{
	SystemLMS:    8000,
	SystemStudio: 8001,
}

// ApplyDefaults fills in zero-valued fields.
func ApplyDefaults(cfg *Config) {
	if cfg.Python == "" {
		cfg.Python = "python"
	}
	if cfg.ManagePath == "" {
		cfg.ManagePath = "manage.py"
	}
	if cfg.Settings.Default == "" {
		cfg.Settings.Default = DefaultSettings
	}
	if cfg.Settings.Optimized == "" {
		cfg.Settings.Optimized = OptimizedSettings
	}
	if cfg.Settings.OptimizedAssets == "" {
		cfg.Settings.OptimizedAssets = OptimizedAssetsSettings
	}
	if cfg.Settings.Worker == "" {
		cfg.Settings.Worker = WorkerSettings
	}

	if cfg.Systems == nil {
		cfg.Systems = make(map[string]SystemConfig)
	}
	for system, port := range defaultPorts {
		sc := cfg.Systems[system]
		if sc.Port == 0 {
			sc.Port = port
		}
		cfg.Systems[system] = sc
	}

	if cfg.Runner.StateDir == "" {
		cfg.Runner.StateDir = ".devserve"
	}
	if cfg.Runner.ShutdownGraceMS == 0 {
		cfg.Runner.ShutdownGraceMS = 5000
	}
	if cfg.Runner.Health.IntervalMS == 0 {
		cfg.Runner.Health.IntervalMS = 2000
	}
	if cfg.Runner.Health.TimeoutMS == 0 {
		cfg.Runner.Health.TimeoutMS = 1000
	}
	if cfg.Runner.Health.FailAfter == 0 {
		cfg.Runner.Health.FailAfter = 3
	}
	if cfg.Runner.Health.RecoverAfter == 0 {
		cfg.Runner.Health.RecoverAfter = 2
	}

	if cfg.Observability.Logging.Console.Level == "" {
		cfg.Observability.Logging.Console.Level = "info"
	}
}

// Port returns the configured port for a system, or 0 for unknown systems.
func (c *Config) Port(system string) int {
	return c.Systems[system].Port
}

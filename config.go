package modsys

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/GoCodeAlone/modsys/feeders"
	"github.com/GoCodeAlone/modsys/registry"
)

// EnvPrefix prefixes every environment variable that overrides Config.
const EnvPrefix = "MODSYS"

// Config holds the system-wide settings. In a manifest it lives under the
// `system` key; every field can be overridden with MODSYS_<env tag>.
type Config struct {
	// TransitionTimeout bounds every lifecycle transition. Zero disables it.
	TransitionTimeout time.Duration `yaml:"transitionTimeout" toml:"transitionTimeout" json:"transitionTimeout" env:"TRANSITION_TIMEOUT" default:"30s"`
	LogLevel          string        `yaml:"logLevel" toml:"logLevel" json:"logLevel" env:"LOG_LEVEL" default:"info" required:"true"`
	// ReportSchedule is a cron expression for the periodic status report.
	ReportSchedule string `yaml:"reportSchedule" toml:"reportSchedule" json:"reportSchedule" env:"REPORT_SCHEDULE" default:"@every 30s"`
	AdminAddr      string `yaml:"adminAddr" toml:"adminAddr" json:"adminAddr" env:"ADMIN_ADDR" default:":8080"`
	// ConflictResolution applies to service names registered twice in one
	// module container.
	ConflictResolution string `yaml:"conflictResolution" toml:"conflictResolution" json:"conflictResolution" env:"CONFLICT_RESOLUTION" default:"error"`
}

var logLevels = []string{"debug", "info", "warn", "error"}

// Validate implements ConfigValidator.
func (c *Config) Validate() error {
	if c.TransitionTimeout < 0 {
		return fmt.Errorf("transition timeout must not be negative, got %s", c.TransitionTimeout)
	}
	if !slices.Contains(logLevels, strings.ToLower(c.LogLevel)) {
		return fmt.Errorf("log level %q is not one of %s", c.LogLevel, strings.Join(logLevels, ", "))
	}
	switch registry.ConflictResolution(c.ConflictResolution) {
	case registry.ConflictResolutionError, registry.ConflictResolutionOverwrite,
		registry.ConflictResolutionIgnore, registry.ConflictResolutionPriority:
	default:
		return fmt.Errorf("unknown conflict resolution %q", c.ConflictResolution)
	}
	return nil
}

// DefaultConfig returns a Config with every default applied.
func DefaultConfig() *Config {
	cfg := &Config{}
	_ = ProcessConfigDefaults(cfg)
	return cfg
}

// LoadConfig reads the `system` section of a YAML, TOML or JSON file, applies
// MODSYS_* environment overrides and validates the result. An empty path
// skips the file.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		feeder, err := feeders.ForFile(path)
		if err != nil {
			return nil, err
		}
		if err := feeder.FeedKey("system", cfg); err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if err := feeders.NewEnvFeeder(EnvPrefix).Feed(cfg); err != nil {
		return fmt.Errorf("failed to apply environment overrides: %w", err)
	}
	return nil
}

func (c *Config) registryConfig() *registry.Config {
	if c == nil {
		return nil
	}
	return &registry.Config{ConflictResolution: registry.ConflictResolution(c.ConflictResolution)}
}

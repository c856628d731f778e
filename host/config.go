// Copyright 2026 The OpenSeed Authors
// SPDX-License-Identifier: Apache-2.0

package host

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/openseed-dev/openseed/lib/budget"
)

// Config is the host's configuration file. It is loaded from the path
// in the OPENSEED_CONFIG environment variable or a --config flag; there
// is no automatic discovery, so configuration stays deterministic and
// auditable.
type Config struct {
	// Creature identifies and launches the supervised process.
	Creature CreatureConfig `yaml:"creature"`

	// Host configures the supervisor's own HTTP surface and state.
	Host HostConfig `yaml:"host"`

	// Health configures the promotion gate timings.
	Health HealthConfig `yaml:"health"`

	// Budget configures daily spend enforcement.
	Budget BudgetConfig `yaml:"budget"`

	// Gateway overrides upstream base URLs, mainly for self-hosted
	// or proxied endpoints. API keys come from the environment, never
	// from this file.
	Gateway GatewayConfig `yaml:"gateway"`
}

// CreatureConfig describes the supervised creature.
type CreatureConfig struct {
	// Name is the unique creature identifier, used as the directory
	// and namespace key and as the HMAC token subject.
	Name string `yaml:"name"`

	// Dir is the creature's source-control working tree.
	Dir string `yaml:"dir"`

	// Command is the argv that starts the creature, run inside Dir.
	Command []string `yaml:"command"`

	// Port is where the creature serves GET /healthz.
	Port int `yaml:"port"`

	// AutoIterate is passed through to the creature; when set, the
	// creature keeps self-modifying without operator prompts.
	AutoIterate bool `yaml:"auto_iterate"`
}

// HostConfig configures the supervisor process.
type HostConfig struct {
	// Port serves the control surface and the gateway.
	Port int `yaml:"port"`

	// StateDir holds the event log, run lock, budget snapshot, and
	// generated secret. Default: ~/.openseed.
	StateDir string `yaml:"state_dir"`
}

// HealthConfig holds the gate timings as duration strings ("10s").
// Zero values take the package defaults.
type HealthConfig struct {
	PollInterval     string `yaml:"poll_interval"`
	Gate             string `yaml:"gate"`
	RollbackDeadline string `yaml:"rollback_deadline"`
}

// BudgetConfig is the budget policy plus the optional price table file.
type BudgetConfig struct {
	budget.Config `yaml:",inline"`

	// PricesFile is a JSONC per-model price table merged over the
	// built-in defaults.
	PricesFile string `yaml:"prices_file"`
}

// GatewayConfig overrides upstream endpoints. Empty fields keep each
// provider's public URL.
type GatewayConfig struct {
	AnthropicBaseURL  string `yaml:"anthropic_base_url"`
	OpenAIBaseURL     string `yaml:"openai_base_url"`
	GeminiBaseURL     string `yaml:"gemini_base_url"`
	OpenRouterBaseURL string `yaml:"openrouter_base_url"`
}

// DefaultConfig returns the base configuration merged under the file.
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	return &Config{
		Creature: CreatureConfig{
			Port: 4610,
		},
		Host: HostConfig{
			Port:     4600,
			StateDir: filepath.Join(homeDir, ".openseed"),
		},
		Budget: BudgetConfig{
			Config: budget.Config{Action: budget.ActionWarn},
		},
	}
}

// LoadConfig reads and validates a configuration file.
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("host: reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("host: parsing config %s: %w", path, err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("host: invalid config %s: %w", path, err)
	}
	return config, nil
}

// Validate checks the fields the supervisor cannot run without.
func (config *Config) Validate() error {
	if config.Creature.Name == "" {
		return errors.New("creature.name is required")
	}
	if config.Creature.Dir == "" {
		return errors.New("creature.dir is required")
	}
	if len(config.Creature.Command) == 0 {
		return errors.New("creature.command is required")
	}
	if config.Creature.Port <= 0 || config.Host.Port <= 0 {
		return errors.New("creature.port and host.port must be positive")
	}
	if _, _, _, err := config.Health.Durations(); err != nil {
		return err
	}
	switch config.Budget.Action {
	case budget.ActionSleep, budget.ActionWarn, budget.ActionOff, "":
	default:
		return fmt.Errorf("budget.action %q is not sleep, warn, or off", config.Budget.Action)
	}
	return nil
}

// Durations parses the gate timings, substituting defaults for empty
// fields.
func (health HealthConfig) Durations() (poll, gate, deadline time.Duration, err error) {
	poll, err = parseDuration(health.PollInterval, DefaultPollInterval)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("health.poll_interval: %w", err)
	}
	gate, err = parseDuration(health.Gate, DefaultHealthGate)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("health.gate: %w", err)
	}
	deadline, err = parseDuration(health.RollbackDeadline, DefaultRollbackDeadline)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("health.rollback_deadline: %w", err)
	}
	return poll, gate, deadline, nil
}

func parseDuration(value string, fallback time.Duration) (time.Duration, error) {
	if value == "" {
		return fallback, nil
	}
	return time.ParseDuration(value)
}

// Per-creature state file locations under StateDir.

// EventLogPath is the creature's NDJSON event log.
func (config *Config) EventLogPath() string {
	return filepath.Join(config.Host.StateDir, config.Creature.Name, "events.ndjson")
}

// RunLockPath is the creature's run lock file.
func (config *Config) RunLockPath() string {
	return filepath.Join(config.Host.StateDir, config.Creature.Name, "run.lock")
}

// BudgetSnapshotPath is the creature's CBOR budget snapshot.
func (config *Config) BudgetSnapshotPath() string {
	return filepath.Join(config.Host.StateDir, config.Creature.Name, "budget.cbor")
}

// SecretPath is the host-wide generated secret file.
func (config *Config) SecretPath() string {
	return filepath.Join(config.Host.StateDir, "secret")
}

package config

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nstehr/mowbot/rules"
)

// Config is the planner daemon configuration.
type Config struct {
	Socket       string        `yaml:"socket"`       // unix socket the simulator connects to
	LogLevel     string        `yaml:"logLevel"`     // debug, info, warn or error
	Capacity     int           `yaml:"capacity"`     // battery capacity in energy units
	TickInterval time.Duration `yaml:"tickInterval"` // pause between ticks, 0 runs flat out
	CallTimeout  time.Duration `yaml:"callTimeout"`  // bound on one environment request
	MaxTicks     int           `yaml:"maxTicks"`     // stop after this many ticks, 0 = unlimited
	Telemetry    string        `yaml:"telemetry"`    // websocket listen address, empty disables
	Posture      rules.Posture `yaml:"posture"`      // compiled into the built-in refuel rules
	Rules        []*rules.Rule `yaml:"rules"`        // appended to the posture's rules
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Socket:       "/tmp/mowbot.sock",
		LogLevel:     "info",
		Capacity:     1000,
		TickInterval: 0,
		CallTimeout:  5 * time.Second,
		Posture:      rules.DefaultPosture(),
	}
}

// Load reads a YAML file over the defaults and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Socket == "" {
		return fmt.Errorf("socket cannot be empty")
	}
	if c.Capacity <= 0 {
		return fmt.Errorf("capacity must be > 0, got %d", c.Capacity)
	}
	if c.TickInterval < 0 {
		return fmt.Errorf("tickInterval must be >= 0, got %s", c.TickInterval)
	}
	if c.CallTimeout <= 0 {
		return fmt.Errorf("callTimeout must be > 0, got %s", c.CallTimeout)
	}
	if c.MaxTicks < 0 {
		return fmt.Errorf("maxTicks must be >= 0, got %d", c.MaxTicks)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	if c.Posture.Caution < 0 || c.Posture.Caution > 1 {
		return fmt.Errorf("posture.caution must be within [0, 1], got %v", c.Posture.Caution)
	}

	seen := map[string]bool{rules.BudgetRuleName: true, rules.ReserveRuleName: true}
	for i, r := range c.Rules {
		if r == nil || r.Name == "" {
			return fmt.Errorf("rules[%d]: name cannot be empty", i)
		}
		if r.ConditionSrc == "" {
			return fmt.Errorf("rule %q: condition cannot be empty", r.Name)
		}
		if seen[r.Name] {
			return fmt.Errorf("rule %q defined twice", r.Name)
		}
		seen[r.Name] = true
	}
	return nil
}

// Level parses LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo, fmt.Errorf("logLevel: %w", err)
	}
	return lvl, nil
}

// RefuelRules returns the posture's rules followed by the configured ones.
func (c *Config) RefuelRules() []*rules.Rule {
	return append(rules.CompilePosture(c.Posture), c.Rules...)
}

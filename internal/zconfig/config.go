// Package zconfig loads and persists the node's YAML configuration file,
// covering the options the node entry recognizes: identity, network
// endpoint, mining, and peer-discovery behavior.
package zconfig

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ConfigFileName is the default config file name inside Home.
const ConfigFileName = "config.yaml"

// Config holds every option the node entry recognizes.
type Config struct {
	// Invoice is the score invoice ("prefix@id"); required.
	Invoice string `yaml:"invoice"`

	// Host and Port are the advertised peer endpoint.
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// BindPort is the socket bind port, when it differs from Port.
	BindPort int `yaml:"bind_port"`

	// Home is the persistent-state root.
	Home string `yaml:"home"`

	// Network is the gossip network name (e.g. "zold", "test").
	Network string `yaml:"network"`

	// Threads is the Farm worker count; 0 disables mining.
	Threads int `yaml:"threads"`

	// Strength is the required proof-of-work strength.
	Strength int `yaml:"strength"`

	// Standalone uses an always-empty remotes registry.
	Standalone bool `yaml:"standalone"`

	// IgnoreScoreWeakness accepts sub-strength peer scores at ingress.
	IgnoreScoreWeakness bool `yaml:"ignore_score_weakness"`

	// NeverReboot disables self-exit on higher-version peer discovery.
	NeverReboot bool `yaml:"never_reboot"`

	// HaltToken, when non-empty, is the secret accepted by ?halt= to shut
	// the server down.
	HaltToken string `yaml:"halt_token"`

	Logging LoggingConfig `yaml:"logging"`
}

// LoggingConfig mirrors pkg/logging.Config in YAML-friendly form.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Default returns a Config with sensible defaults for a freshly bootstrapped
// node.
func Default() *Config {
	return &Config{
		Host:     "localhost",
		Port:     4096,
		BindPort: 4096,
		Home:     "~/.zold",
		Network:  "test",
		Threads:  4,
		Strength: 6,
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from dir/ConfigFileName, writing a default file
// first if none exists.
func Load(dir string) (*Config, error) {
	path := filepath.Join(dir, ConfigFileName)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := Default()
		cfg.Home = dir
		if err := cfg.Save(path); err != nil {
			return nil, fmt.Errorf("zconfig: create default config: %w", err)
		}
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("zconfig: read %s: %w", path, err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("zconfig: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to path as YAML.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("zconfig: mkdir: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("zconfig: marshal: %w", err)
	}
	header := []byte("# zold node configuration\n# generated automatically on first run\n\n")
	if err := os.WriteFile(path, append(header, data...), 0o600); err != nil {
		return fmt.Errorf("zconfig: write %s: %w", path, err)
	}
	return nil
}

// Validate checks the invariants the node requires before starting.
func (c *Config) Validate() error {
	if c.Invoice == "" {
		return fmt.Errorf("zconfig: invoice is required")
	}
	if c.Port <= 0 {
		return fmt.Errorf("zconfig: port must be positive")
	}
	if c.Threads < 0 {
		return fmt.Errorf("zconfig: threads must not be negative")
	}
	if c.Strength <= 0 {
		return fmt.Errorf("zconfig: strength must be positive")
	}
	return nil
}

// WalletsDir, CopiesDir, RemotesFile, and FarmFile return the conventional
// persistent-state paths under Home.
func (c *Config) WalletsDir() string   { return filepath.Join(c.Home, "zold-wallets") }
func (c *Config) CopiesDir() string    { return filepath.Join(c.Home, "zold-copies") }
func (c *Config) RemotesFile() string  { return filepath.Join(c.Home, "zold-remotes") }
func (c *Config) FarmFile() string     { return filepath.Join(c.Home, "farm") }
func (c *Config) ActualBindPort() int {
	if c.BindPort != 0 {
		return c.BindPort
	}
	return c.Port
}

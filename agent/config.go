// CLAUDE:SUMMARY Configuration structs (server, readiness, notegen) and YAML loader for the agent.
package agent

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/chartfill/notegen"
	"github.com/hazyhaar/chartfill/readiness"
)

// Config holds all agent configuration.
type Config struct {
	ListenAddr string           `yaml:"listen_addr"`
	DBPath     string           `yaml:"db_path"`
	Readiness  readiness.Config `yaml:"readiness"`
	Notegen    notegen.Config   `yaml:"notegen"`
	// NotegenEnabled gates the API-backed generator; plans fall back to
	// demo values when off.
	NotegenEnabled bool `yaml:"notegen_enabled"`
}

func (c *Config) defaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = ":8787"
	}
	if c.DBPath == "" {
		c.DBPath = "chartfill.db"
	}
}

// LoadConfigFile reads a YAML config file and applies defaults.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	cfg.defaults()
	return cfg, nil
}

// DefaultConfig returns a config with defaults applied.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.defaults()
	return cfg
}

package config

import (
	"encoding/json"
	"os"
	"path/filepath"

	"go-midiseq/hub"
	"go-midiseq/player"
	"go-midiseq/seq"
)

// BridgeConfig defines a saved hardware bridge
type BridgeConfig struct {
	Name        string `json:"name"`
	Match       string `json:"match"` // case-insensitive port name substring
	AutoConnect bool   `json:"autoConnect"`
}

// QueueConfig holds the default timing of new queues
type QueueConfig struct {
	PPQ       int `json:"ppq,omitempty"`
	Tempo     int `json:"tempo,omitempty"` // microseconds per quarter note
	Lookahead int `json:"lookahead,omitempty"`
}

// Config is the main configuration structure
type Config struct {
	ClientName   string         `json:"clientName,omitempty"`
	OutputBuffer int            `json:"outputBuffer,omitempty"` // bytes
	InputDepth   int            `json:"inputDepth,omitempty"`   // events per client
	PoolSize     int            `json:"poolSize,omitempty"`     // queued events per client
	Strict       bool           `json:"strict,omitempty"`
	Queue        QueueConfig    `json:"queue,omitempty"`
	Bridges      []BridgeConfig `json:"bridges,omitempty"`
	LogLevel     string         `json:"logLevel,omitempty"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		ClientName:   "seqmon",
		OutputBuffer: seq.DefaultOutputBuffer,
		InputDepth:   hub.DefaultInputDepth,
		PoolSize:     hub.DefaultPoolSize,
		Queue: QueueConfig{
			PPQ:       seq.DefaultPPQ,
			Tempo:     seq.DefaultTempo,
			Lookahead: player.DefaultLookahead,
		},
		LogLevel: "info",
	}
}

// ConfigDir returns the config directory path
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "go-midiseq"), nil
}

// ConfigPath returns the full path to config.json
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// Load reads the config from disk, or returns defaults if not found
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return DefaultConfig(), nil
	}
	return LoadFrom(path)
}

// LoadFrom reads the config at path. Missing fields keep their defaults.
func LoadFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, err
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the config to disk
func (c *Config) Save() error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return c.SaveTo(path)
}

func (c *Config) SaveTo(path string) error {
	// Create directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// FindBridge finds a bridge config by name
func (c *Config) FindBridge(name string) *BridgeConfig {
	for i := range c.Bridges {
		if c.Bridges[i].Name == name {
			return &c.Bridges[i]
		}
	}
	return nil
}

// AddBridge adds or updates a bridge config
func (c *Config) AddBridge(b BridgeConfig) {
	for i := range c.Bridges {
		if c.Bridges[i].Name == b.Name {
			c.Bridges[i] = b
			return
		}
	}
	c.Bridges = append(c.Bridges, b)
}

// AutoConnectBridges returns bridges with autoConnect enabled
func (c *Config) AutoConnectBridges() []BridgeConfig {
	var result []BridgeConfig
	for _, b := range c.Bridges {
		if b.AutoConnect {
			result = append(result, b)
		}
	}
	return result
}

// HubOptions maps the config onto an in-process subsystem.
func (c *Config) HubOptions() []hub.Option {
	return []hub.Option{
		hub.WithInputDepth(c.InputDepth),
		hub.WithPoolSize(c.PoolSize),
	}
}

// ClientOptions maps the config onto a client named name. An empty name
// uses ClientName.
func (c *Config) ClientOptions(name string) []seq.Option {
	if name == "" {
		name = c.ClientName
	}
	return []seq.Option{
		seq.WithName(name),
		seq.WithOutputBuffer(c.OutputBuffer),
		seq.WithStrictValidation(c.Strict),
	}
}

func (c *Config) PlayerOptions() []player.Option {
	return []player.Option{
		player.WithPPQ(c.Queue.PPQ),
		player.WithTempo(c.Queue.Tempo),
		player.WithLookahead(seq.Tick(c.Queue.Lookahead)),
	}
}

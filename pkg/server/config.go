package server

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config holds the resolved server configuration.
type Config struct {
	BindAddress       string
	Port              int
	HTTPPort          int // WebSocket bridge + metrics; 0 disables
	MaxUsers          int
	RequireEncryption bool
}

// DefaultConfig returns the default server configuration.
func DefaultConfig() Config {
	return Config{
		BindAddress:       "0.0.0.0",
		Port:              7878,
		HTTPPort:          0,
		MaxUsers:          50,
		RequireEncryption: true,
	}
}

// TOMLConfig represents the structure of the server config file.
type TOMLConfig struct {
	Server   ServerSection   `toml:"server"`
	Limits   LimitsSection   `toml:"limits"`
	Security SecuritySection `toml:"security"`
}

type ServerSection struct {
	BindAddress string `toml:"bind_address"`
	Port        int    `toml:"port"`
	HTTPPort    int    `toml:"http_port"`
}

type LimitsSection struct {
	MaxUsers int `toml:"max_users"`
}

type SecuritySection struct {
	// RequireEncryption is a pointer so an absent key keeps the default
	// (encryption required) instead of silently downgrading to plaintext.
	RequireEncryption *bool `toml:"require_encryption"`
}

// DefaultTOMLConfig returns the default TOML configuration.
func DefaultTOMLConfig() TOMLConfig {
	requireEncryption := true
	return TOMLConfig{
		Server: ServerSection{
			BindAddress: "0.0.0.0",
			Port:        7878,
			HTTPPort:    0,
		},
		Limits: LimitsSection{
			MaxUsers: 50,
		},
		Security: SecuritySection{
			RequireEncryption: &requireEncryption,
		},
	}
}

// LoadConfig loads configuration from a TOML file, creating a default file
// if none exists.
func LoadConfig(path string) (TOMLConfig, error) {
	expanded, err := expandHome(path)
	if err != nil {
		return TOMLConfig{}, err
	}

	if _, err := os.Stat(expanded); os.IsNotExist(err) {
		config := DefaultTOMLConfig()
		// Best effort: if the default file cannot be written we still run
		// with defaults.
		_ = writeDefaultConfig(expanded, config)
		return config, nil
	}

	var config TOMLConfig
	if _, err := toml.DecodeFile(expanded, &config); err != nil {
		return TOMLConfig{}, fmt.Errorf("failed to parse config file: %w", err)
	}
	return config, nil
}

// ToConfig resolves the file representation into a Config, filling defaults
// for absent keys.
func (c *TOMLConfig) ToConfig() Config {
	cfg := DefaultConfig()

	if strings.TrimSpace(c.Server.BindAddress) != "" {
		cfg.BindAddress = c.Server.BindAddress
	}
	if c.Server.Port != 0 {
		cfg.Port = c.Server.Port
	}
	if c.Server.HTTPPort != 0 {
		cfg.HTTPPort = c.Server.HTTPPort
	}
	if c.Limits.MaxUsers != 0 {
		cfg.MaxUsers = c.Limits.MaxUsers
	}
	if c.Security.RequireEncryption != nil {
		cfg.RequireEncryption = *c.Security.RequireEncryption
	}

	return cfg
}

// ApplyEnv applies environment overrides. Setting BCMP_UNENCRYPTED (to any
// value) switches the server to plaintext mode, mirroring the historical
// environment toggle.
func (c *Config) ApplyEnv() {
	if _, ok := os.LookupEnv("BCMP_UNENCRYPTED"); ok {
		c.RequireEncryption = false
	}
}

func expandHome(path string) (string, error) {
	if !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, path[2:]), nil
}

func writeDefaultConfig(path string, config TOMLConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	header := `# BCMP Server Configuration
# This file was auto-generated with default values
# Edit as needed and restart the server for changes to take effect

`
	if _, err := f.WriteString(header); err != nil {
		return err
	}

	if err := toml.NewEncoder(f).Encode(config); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

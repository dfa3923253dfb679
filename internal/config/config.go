// Package config provides deployment configuration for task-mcp.
//
// Configuration covers where data lives and operational tuning only. Workspace
// selection is deliberately NOT configurable here: every core operation takes
// an explicit workspace_path, and the old env-var workspace fallback has been
// removed.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

var v *viper.Viper

// Initialize sets up the viper configuration singleton.
// Should be called once at application startup.
func Initialize() error {
	v = viper.New()
	v.SetConfigType("yaml")

	// Precedence: ~/.config/task-mcp/config.yaml > ~/.task-mcp/config.yaml
	configFileSet := false
	if configDir, err := os.UserConfigDir(); err == nil {
		configPath := filepath.Join(configDir, "task-mcp", "config.yaml")
		if _, err := os.Stat(configPath); err == nil {
			v.SetConfigFile(configPath)
			configFileSet = true
		}
	}
	if !configFileSet {
		if homeDir, err := os.UserHomeDir(); err == nil {
			configPath := filepath.Join(homeDir, ".task-mcp", "config.yaml")
			if _, err := os.Stat(configPath); err == nil {
				v.SetConfigFile(configPath)
				configFileSet = true
			}
		}
	}

	// Environment variables take precedence over the config file.
	// E.g. TASKMCP_DATA_ROOT, TASKMCP_RETENTION_DAYS.
	v.SetEnvPrefix("TASKMCP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("data-root", "")
	v.SetDefault("retention-days", 30)
	v.SetDefault("busy-timeout", 5*time.Second)

	if configFileSet {
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}
	return nil
}

// DataRoot returns the configured data root, defaulting to ~/.task-mcp.
func DataRoot() (string, error) {
	if v != nil {
		if root := v.GetString("data-root"); root != "" {
			return root, nil
		}
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate home directory: %w", err)
	}
	return filepath.Join(home, ".task-mcp"), nil
}

// RetentionDays returns the default soft-delete retention window.
func RetentionDays() int {
	if v == nil {
		return 30
	}
	return v.GetInt("retention-days")
}

// GetString retrieves a string configuration value
func GetString(key string) string {
	if v == nil {
		return ""
	}
	return v.GetString(key)
}

// GetInt retrieves an integer configuration value
func GetInt(key string) int {
	if v == nil {
		return 0
	}
	return v.GetInt(key)
}

// GetDuration retrieves a duration configuration value
func GetDuration(key string) time.Duration {
	if v == nil {
		return 0
	}
	return v.GetDuration(key)
}

// Set sets a configuration value (primarily for tests and flag overrides)
func Set(key string, value any) {
	if v != nil {
		v.Set(key, value)
	}
}

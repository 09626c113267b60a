// Config loading for the worktrack CLI.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

const (
	configFileName = "worktrack"
	configFileType = "yaml"
	configFileExt  = "worktrack.yaml"

	cfgKeyBaseURL      = "base_url"
	cfgKeyToken        = "token"
	cfgKeyUserKey      = "user_key"
	cfgKeyWorkspace    = "workspace"
	cfgKeyWorkspaceKey = "workspace_key"
	cfgKeyItemType     = "item_type"
	cfgKeyTimeout      = "timeout_seconds"
	cfgKeyLogLevel     = "log_level"
)

const (
	defaultTimeoutSeconds = 30
	defaultLogLevel       = "info"
)

// defaultConfigYAML is written to worktrack.yaml on first run.
const defaultConfigYAML = `# worktrack CLI configuration

# Remote service endpoint and credentials.
# base_url: https://example.com
# token:
# user_key:

# Workspace and item type to operate on. The workspace may be given by
# name (workspace) or by opaque key (workspace_key).
# workspace:
# item_type: Issue

# timeout_seconds: 30
# log_level: info
`

// loadConfig reads worktrack.yaml from the resolved config directory using
// Viper. It creates the config directory and a default worktrack.yaml on
// first run. A missing config file is not an error; WORKTRACK_* environment
// variables override file values.
func loadConfig(configDir string) (*viper.Viper, error) {
	if err := ensureConfigDir(configDir); err != nil {
		return nil, fmt.Errorf("ensure config dir: %w", err)
	}

	if err := ensureDefaultConfigFile(configDir); err != nil {
		return nil, fmt.Errorf("ensure default config: %w", err)
	}

	v := viper.New()
	v.SetDefault(cfgKeyItemType, "")
	v.SetDefault(cfgKeyTimeout, defaultTimeoutSeconds)
	v.SetDefault(cfgKeyLogLevel, defaultLogLevel)
	v.SetConfigName(configFileName)
	v.SetConfigType(configFileType)
	v.AddConfigPath(configDir)
	v.SetEnvPrefix("WORKTRACK")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return v, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	return v, nil
}

// ensureConfigDir creates the config directory if it does not exist.
func ensureConfigDir(configDir string) error {
	return os.MkdirAll(configDir, 0o755)
}

// ensureDefaultConfigFile creates a default worktrack.yaml if the file does
// not exist in the config directory.
func ensureDefaultConfigFile(configDir string) error {
	path := filepath.Join(configDir, configFileExt)

	_, err := os.Stat(path)
	if err == nil {
		// File already exists.
		return nil
	}
	if !os.IsNotExist(err) {
		return fmt.Errorf("stat config file: %w", err)
	}

	return os.WriteFile(path, []byte(defaultConfigYAML), 0o600)
}

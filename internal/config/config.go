// Package config loads and persists panel settings.
// Precedence: environment variables > config file > defaults.
package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"clawpanel/pkg/logger"
)

// Config is the root settings structure.
type Config struct {
	Gateway GatewayConfig    `mapstructure:"gateway" yaml:"gateway"`
	Chat    ChatConfig       `mapstructure:"chat" yaml:"chat"`
	Log     logger.LogConfig `mapstructure:"log" yaml:"log"`
	History HistoryConfig    `mapstructure:"history" yaml:"history"`
}

// GatewayConfig identifies the gateway and its credentials.
type GatewayConfig struct {
	URL      string `mapstructure:"url" yaml:"url"`
	Token    string `mapstructure:"token" yaml:"token,omitempty"`
	Password string `mapstructure:"password" yaml:"password,omitempty"`
}

// ChatConfig selects which agent and session chat turns go to.
type ChatConfig struct {
	AgentID    string `mapstructure:"agent_id" yaml:"agent_id,omitempty"`
	SessionKey string `mapstructure:"session_key" yaml:"session_key,omitempty"`
}

// HistoryConfig controls the local transcript database.
type HistoryConfig struct {
	Path string `mapstructure:"path" yaml:"path,omitempty"`
}

var (
	globalConfig *Config
	configPath   string
	mu           sync.RWMutex
)

// SetDefaults registers the default value for every key.
func SetDefaults() {
	viper.SetDefault("gateway.url", "ws://127.0.0.1:18789/ws")
	viper.SetDefault("gateway.token", "")
	viper.SetDefault("gateway.password", "")

	viper.SetDefault("chat.agent_id", "")
	viper.SetDefault("chat.session_key", "main")

	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "console")
	viper.SetDefault("log.file", "")

	viper.SetDefault("history.path", "")
}

// Load reads the config file at path, layering environment variables with the
// CLAWPANEL_ prefix on top. A missing file is not an error; a malformed one is.
func Load(path string) (*Config, error) {
	mu.Lock()
	defer mu.Unlock()

	SetDefaults()

	viper.SetEnvPrefix("CLAWPANEL")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if path != "" {
		expandedPath, err := ExpandPath(path)
		if err != nil {
			return nil, err
		}
		configPath = expandedPath

		viper.SetConfigFile(expandedPath)
		if err := viper.ReadInConfig(); err != nil {
			if !os.IsNotExist(err) {
				if _, ok := err.(viper.ConfigParseError); ok {
					return nil, err
				}
			}
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	globalConfig = &cfg
	return &cfg, nil
}

// GetConfig returns the currently loaded config, or nil before Load.
func GetConfig() *Config {
	mu.RLock()
	defer mu.RUnlock()
	return globalConfig
}

// Get returns any setting by key.
func Get(key string) any {
	return viper.Get(key)
}

// GetString returns a string setting by key.
func GetString(key string) string {
	return viper.GetString(key)
}

// Set writes a setting and persists it when a config file is in use.
func Set(key string, value any) error {
	mu.Lock()
	defer mu.Unlock()

	viper.Set(key, value)

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return err
	}
	globalConfig = &cfg

	if configPath != "" {
		return save()
	}
	return nil
}

// Save persists the current settings to the loaded config path.
func Save() error {
	mu.Lock()
	defer mu.Unlock()
	return save()
}

func save() error {
	if configPath == "" {
		return errors.New("config path not set")
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(viper.AllSettings())
	if err != nil {
		return err
	}

	// 0600: the file may hold the gateway token.
	return os.WriteFile(configPath, data, 0600)
}

// SaveTo writes cfg to an arbitrary path, independent of the loaded file.
func SaveTo(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

// Reset clears all loaded state. Intended for tests.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	globalConfig = nil
	configPath = ""
	viper.Reset()
}

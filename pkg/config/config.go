/*
Package config manages TOML config for RxSuggest services.
*/
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/rxsuggest/rxsuggest/internal/utils"
	"github.com/rxsuggest/rxsuggest/pkg/openfda"
	"github.com/rxsuggest/rxsuggest/pkg/suggest"
)

// Config holds the entire config structure
type Config struct {
	Suggest SuggestConfig `toml:"suggest"`
	Remote  RemoteConfig  `toml:"remote"`
	Cache   CacheConfig   `toml:"cache"`
	Dict    DictConfig    `toml:"dict"`
	CLI     CliConfig     `toml:"cli"`
	Server  ServerConfig  `toml:"server"`
}

// SuggestConfig tunes the suggester core.
type SuggestConfig struct {
	MinQueryLen int `toml:"min_query_len"`
	DebounceMs  int `toml:"debounce_ms"`
	LocalLimit  int `toml:"local_limit"`
	MergedLimit int `toml:"merged_limit"`
}

// RemoteConfig holds the openFDA lookup options.
type RemoteConfig struct {
	Enabled           bool    `toml:"enabled"`
	BaseURL           string  `toml:"base_url"`
	Field             string  `toml:"field"`
	Limit             int     `toml:"limit"`
	APIKey            string  `toml:"api_key"`
	TimeoutMs         int     `toml:"timeout_ms"`
	RatePerSecond     float64 `toml:"rate_per_second"`
	Burst             int     `toml:"burst"`
	BreakerFailures   int     `toml:"breaker_failures"`
	BreakerCooldownMs int     `toml:"breaker_cooldown_ms"`
}

// CacheConfig bounds the response cache; 0 keeps every entry.
type CacheConfig struct {
	MaxEntries int `toml:"max_entries"`
}

// DictConfig holds dictionary options.
type DictConfig struct {
	// Path is a .txt or .bin file or a directory of them; empty uses the bundled list.
	Path      string `toml:"path"`
	ChunkSize int    `toml:"chunk_size"`
}

// CliConfig holds cli interface options.
type CliConfig struct {
	TypeDelayMs int  `toml:"type_delay_ms"`
	ShowSource  bool `toml:"show_source"`
}

// ServerConfig has IPC server options.
type ServerConfig struct {
	MaxSessions int    `toml:"max_sessions"`
	MaxQueryLen int    `toml:"max_query_len"`
	MetricsAddr string `toml:"metrics_addr"`
}

// GetConfigDir returns the config directory with fallback priority:
// 1. $XDG_CONFIG_HOME/rxsuggest or ~/.config/rxsuggest (%APPDATA% on windows)
// 2. ~/Library/Application Support/rxsuggest (macOS)
// 3. Current executable dir
func GetConfigDir() (string, error) {
	primaryPath, err := utils.UserConfigDir()
	if err != nil {
		log.Errorf("Failed to get home directory: %v", err)
		return utils.GetExecutableDir()
	}
	if result := utils.CheckDirStatus(primaryPath); result.Writable {
		return primaryPath, nil
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		macOSPath := filepath.Join(homeDir, "Library", "Application Support", utils.AppName)
		if result := utils.CheckDirStatus(macOSPath); result.Writable {
			return macOSPath, nil
		}
	}
	execDir, err := utils.GetExecutableDir()
	if err != nil {
		log.Errorf("Failed to get executable directory: %v", err)
		return "", err
	}
	return execDir, nil
}

// GetDefaultConfigPath returns the default path for config.toml
func GetDefaultConfigPath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "config.toml"), nil
}

// LoadConfigWithPriority loads config with priority:
// 1. Custom path from --config flag
// 2. Default path: [UserConfigDir]/rxsuggest/config.toml
// 3. Builtin defaults
func LoadConfigWithPriority(customConfigPath string) (*Config, string, error) {
	if customConfigPath != "" {
		if _, statErr := os.Stat(customConfigPath); statErr == nil {
			config, err := LoadConfig(customConfigPath)
			if err != nil {
				log.Warnf("Failed to load custom config from %s: %v. Trying default path...", customConfigPath, err)
			} else {
				log.Debugf("Loaded config from custom path: %s", customConfigPath)
				return config, customConfigPath, nil
			}
		} else {
			log.Warnf("Custom config file not found at %s: %v. Trying default path...", customConfigPath, statErr)
		}
	}
	defaultPath, err := GetDefaultConfigPath()
	if err != nil {
		log.Warnf("Failed to determine default config path: %v. Using built-in defaults...", err)
		return DefaultConfig(), "", nil
	}

	config, err := InitConfig(defaultPath)
	if err != nil {
		log.Warnf("Failed to load/create config at default path %s: %v. Using builtin defaults...", defaultPath, err)
		return DefaultConfig(), "", nil
	}
	log.Debugf("Loaded config from default path: %s", defaultPath)
	return config, defaultPath, nil
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	remote := openfda.DefaultConfig()
	return &Config{
		Suggest: SuggestConfig{
			MinQueryLen: suggest.DefaultMinQueryLen,
			DebounceMs:  int(suggest.DefaultDebounce / time.Millisecond),
			LocalLimit:  suggest.DefaultLocalLimit,
			MergedLimit: suggest.DefaultMergedLimit,
		},
		Remote: RemoteConfig{
			Enabled:           true,
			BaseURL:           remote.BaseURL,
			Field:             remote.Field,
			Limit:             remote.Limit,
			TimeoutMs:         int(remote.Timeout / time.Millisecond),
			RatePerSecond:     remote.RatePerSecond,
			Burst:             remote.Burst,
			BreakerFailures:   int(remote.BreakerFailures),
			BreakerCooldownMs: int(remote.BreakerCooldown / time.Millisecond),
		},
		Cache: CacheConfig{
			MaxEntries: 0,
		},
		Dict: DictConfig{
			Path:      "",
			ChunkSize: 10000,
		},
		CLI: CliConfig{
			TypeDelayMs: 0,
			ShowSource:  true,
		},
		Server: ServerConfig{
			MaxSessions: 64,
			MaxQueryLen: 64,
			MetricsAddr: "",
		},
	}
}

// SuggestOptions converts the [suggest] section into suggester options.
func (c *Config) SuggestOptions() suggest.Options {
	return suggest.Options{
		MinQueryLen: c.Suggest.MinQueryLen,
		Debounce:    time.Duration(c.Suggest.DebounceMs) * time.Millisecond,
		LocalLimit:  c.Suggest.LocalLimit,
		MergedLimit: c.Suggest.MergedLimit,
	}
}

// OpenFDA converts the [remote] section into client settings.
func (c *Config) OpenFDA() openfda.Config {
	r := c.Remote
	return openfda.Config{
		BaseURL:         r.BaseURL,
		Field:           r.Field,
		Limit:           r.Limit,
		APIKey:          r.APIKey,
		Timeout:         time.Duration(r.TimeoutMs) * time.Millisecond,
		RatePerSecond:   r.RatePerSecond,
		Burst:           r.Burst,
		BreakerFailures: uint32(max(r.BreakerFailures, 0)),
		BreakerCooldown: time.Duration(r.BreakerCooldownMs) * time.Millisecond,
	}
}

// InitConfig loads config from file or creates default if missing
func InitConfig(configPath string) (*Config, error) {
	configDir := filepath.Dir(configPath)

	if err := utils.EnsureDir(configDir); err != nil {
		log.Warnf("Failed to create config directory %s: %v. Using built-in defaults...", configDir, err)
		return DefaultConfig(), nil
	}

	if !utils.FileExists(configPath) {
		config := DefaultConfig()
		if err := SaveConfig(config, configPath); err != nil {
			log.Warnf("Failed to create default config file at %s: %v. Using built-in defaults...", configPath, err)
			return DefaultConfig(), nil
		}
		log.Debugf("Created default config file at: %s", configPath)
		return config, nil
	}

	config, err := LoadConfig(configPath)
	if err != nil {
		log.Warnf("Failed to load config from %s: %v. Using built-in defaults...", configPath, err)
		return DefaultConfig(), nil
	}
	return config, nil
}

// LoadConfig loads from a TOML file
func LoadConfig(configPath string) (*Config, error) {
	config := DefaultConfig()

	if err := utils.LoadTOMLFile(configPath, config); err != nil {
		return tryPartialParse(configPath)
	}
	return config, nil
}

// tryPartialParse keeps every well-typed key of a file the typed decode rejected.
func tryPartialParse(configPath string) (*Config, error) {
	config := DefaultConfig()

	tempConfig, err := utils.ParseTOMLWithRecovery(configPath)
	if err != nil {
		log.Warnf("Could not parse any valid configuration from %s: %v. Using all defaults.", configPath, err)
		return config, nil
	}

	if section, ok := utils.ExtractSection(tempConfig, "suggest"); ok {
		extractSuggestConfig(section, &config.Suggest)
	}
	if section, ok := utils.ExtractSection(tempConfig, "remote"); ok {
		extractRemoteConfig(section, &config.Remote)
	}
	if section, ok := utils.ExtractSection(tempConfig, "cache"); ok {
		if val, ok := utils.ExtractInt64(section, "max_entries"); ok {
			config.Cache.MaxEntries = val
		}
	}
	if section, ok := utils.ExtractSection(tempConfig, "dict"); ok {
		extractDictConfig(section, &config.Dict)
	}
	if section, ok := utils.ExtractSection(tempConfig, "cli"); ok {
		extractCliConfig(section, &config.CLI)
	}
	if section, ok := utils.ExtractSection(tempConfig, "server"); ok {
		extractServerConfig(section, &config.Server)
	}
	return config, nil
}

func extractSuggestConfig(data map[string]any, s *SuggestConfig) {
	if val, ok := utils.ExtractInt64(data, "min_query_len"); ok {
		s.MinQueryLen = val
	}
	if val, ok := utils.ExtractInt64(data, "debounce_ms"); ok {
		s.DebounceMs = val
	}
	if val, ok := utils.ExtractInt64(data, "local_limit"); ok {
		s.LocalLimit = val
	}
	if val, ok := utils.ExtractInt64(data, "merged_limit"); ok {
		s.MergedLimit = val
	}
}

func extractRemoteConfig(data map[string]any, r *RemoteConfig) {
	if val, ok := utils.ExtractBool(data, "enabled"); ok {
		r.Enabled = val
	}
	if val, ok := utils.ExtractString(data, "base_url"); ok {
		r.BaseURL = val
	}
	if val, ok := utils.ExtractString(data, "field"); ok {
		r.Field = val
	}
	if val, ok := utils.ExtractInt64(data, "limit"); ok {
		r.Limit = val
	}
	if val, ok := utils.ExtractString(data, "api_key"); ok {
		r.APIKey = val
	}
	if val, ok := utils.ExtractInt64(data, "timeout_ms"); ok {
		r.TimeoutMs = val
	}
	if val, ok := utils.ExtractFloat(data, "rate_per_second"); ok {
		r.RatePerSecond = val
	}
	if val, ok := utils.ExtractInt64(data, "burst"); ok {
		r.Burst = val
	}
	if val, ok := utils.ExtractInt64(data, "breaker_failures"); ok {
		r.BreakerFailures = val
	}
	if val, ok := utils.ExtractInt64(data, "breaker_cooldown_ms"); ok {
		r.BreakerCooldownMs = val
	}
}

func extractDictConfig(data map[string]any, dict *DictConfig) {
	if val, ok := utils.ExtractString(data, "path"); ok {
		dict.Path = val
	}
	if val, ok := utils.ExtractInt64(data, "chunk_size"); ok {
		dict.ChunkSize = val
	}
}

func extractCliConfig(data map[string]any, cli *CliConfig) {
	if val, ok := utils.ExtractInt64(data, "type_delay_ms"); ok {
		cli.TypeDelayMs = val
	}
	if val, ok := utils.ExtractBool(data, "show_source"); ok {
		cli.ShowSource = val
	}
}

func extractServerConfig(data map[string]any, server *ServerConfig) {
	if val, ok := utils.ExtractInt64(data, "max_sessions"); ok {
		server.MaxSessions = val
	}
	if val, ok := utils.ExtractInt64(data, "max_query_len"); ok {
		server.MaxQueryLen = val
	}
	if val, ok := utils.ExtractString(data, "metrics_addr"); ok {
		server.MetricsAddr = val
	}
}

// RebuildConfigFile force creates a new config.toml at default
func RebuildConfigFile() error {
	defaultPath, err := GetDefaultConfigPath()
	if err != nil {
		return err
	}
	if err := utils.EnsureDir(filepath.Dir(defaultPath)); err != nil {
		return err
	}
	return SaveConfig(DefaultConfig(), defaultPath)
}

// GetActiveConfigPath returns the absolute path of loaded config file
func GetActiveConfigPath(configPath string) string {
	if configPath == "" {
		if defaultPath, err := GetDefaultConfigPath(); err == nil {
			return defaultPath
		}
		return "unknown"
	}
	return utils.GetAbsolutePath(configPath)
}

// SaveConfig saves into a TOML file
func SaveConfig(config *Config, configPath string) error {
	return utils.SaveTOMLFile(config, configPath)
}

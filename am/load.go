package am

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/teranos/paysync/errors"
)

var globalConfig *Config
var viperInstance *viper.Viper

// ConfigSources records where each file-provided key came from during loading
var ConfigSources = map[string]SourceInfo{}

// dotenvKeys maps flat .env keys onto dotted configuration keys
var dotenvKeys = map[string]string{
	"client_id":     "api.client_id",
	"client_secret": "api.client_secret",
	"base_url":      "api.base_url",
	"db_driver":     "database.driver",
	"db_dsn":        "database.dsn",
}

// DotenvPath is the flat key-value credentials file read on load
var DotenvPath = ".env"

// Load reads the paysync configuration using Viper
func Load() (*Config, error) {
	if globalConfig != nil {
		return globalConfig, nil
	}

	v := initViper()

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}

	globalConfig = &config
	return globalConfig, nil
}

// GetViper returns the Viper instance for advanced configuration access
func GetViper() *viper.Viper {
	return initViper()
}

// LoadWithViper loads configuration using a provided Viper instance
func LoadWithViper(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}
	return &config, nil
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("toml")

	// Set defaults but don't bind environment variables for this specific load
	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "failed to read config file %s", configPath)
	}

	return LoadWithViper(v)
}

// Reset clears the cached configuration (useful for testing)
func Reset() {
	globalConfig = nil
	viperInstance = nil
	ConfigSources = map[string]SourceInfo{}
}

// initViper initializes Viper with configuration sources and defaults
func initViper() *viper.Viper {
	if viperInstance != nil {
		return viperInstance
	}

	v := viper.New()

	// Set up environment variable binding
	v.SetEnvPrefix("PAYSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Bind specific sensitive configuration values to environment variables
	BindSensitiveEnvVars(v)

	// Set defaults first
	SetDefaults(v)

	// Merge configs in precedence order: system -> user -> project -> .env -> env vars
	mergeConfigFiles(v)
	// A missing or malformed .env surfaces later as missing credentials in Validate
	_ = MergeDotenv(v, DotenvPath)

	viperInstance = v
	return v
}

// findProjectConfig searches for am.toml or config.toml by walking up the directory tree
// Returns the path to the first config file found, or empty string if none found
func findProjectConfig() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		amPath := filepath.Join(dir, "am.toml")
		if _, err := os.Stat(amPath); err == nil {
			return amPath
		}

		configPath := filepath.Join(dir, "config.toml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

// mergeConfigFiles merges configuration files in the correct precedence order
// Precedence (lowest to highest): system < user < project < env vars
func mergeConfigFiles(v *viper.Viper) {
	homeDir, _ := os.UserHomeDir()

	type candidate struct {
		path   string
		source ConfigSource
	}
	candidates := []candidate{
		{"/etc/paysync/config.toml", SourceSystem},
		{filepath.Join(homeDir, ".paysync", "am.toml"), SourceUser},
	}
	if projectConfig := findProjectConfig(); projectConfig != "" {
		candidates = append(candidates, candidate{projectConfig, SourceProject})
	}

	for _, c := range candidates {
		_ = MergeFile(v, c.path, c.source)
	}
}

// MergeFile merges one TOML file into v and records the source of its keys.
// Env vars still take precedence because the file lands in viper's config layer.
func MergeFile(v *viper.Viper, path string, source ConfigSource) error {
	if _, err := os.Stat(path); err != nil {
		return err
	}

	tempViper := viper.New()
	tempViper.SetConfigFile(path)
	tempViper.SetConfigType("toml")
	if err := tempViper.ReadInConfig(); err != nil {
		return errors.Wrapf(err, "failed to read config file %s", path)
	}

	if err := v.MergeConfigMap(tempViper.AllSettings()); err != nil {
		return errors.Wrapf(err, "failed to merge config file %s", path)
	}
	for _, key := range tempViper.AllKeys() {
		ConfigSources[key] = SourceInfo{Source: source, Path: path}
	}
	return nil
}

// MergeDotenv reads a flat key-value file and merges the known keys into v.
// Unknown keys are ignored so the file can be shared with other tools.
func MergeDotenv(v *viper.Viper, path string) error {
	values, err := godotenv.Read(path)
	if err != nil {
		return errors.Wrapf(err, "failed to read %s", path)
	}

	nested := map[string]interface{}{}
	for envKey, value := range values {
		key, ok := dotenvKeys[strings.ToLower(envKey)]
		if !ok || value == "" {
			continue
		}
		section, field, _ := strings.Cut(key, ".")
		m, _ := nested[section].(map[string]interface{})
		if m == nil {
			m = map[string]interface{}{}
			nested[section] = m
		}
		m[field] = value
		ConfigSources[key] = SourceInfo{Source: SourceDotenv, Path: path}
	}

	return v.MergeConfigMap(nested)
}

// Get returns a configuration value using dot notation
func Get(key string) interface{} {
	return initViper().Get(key)
}

// GetString returns a configuration value as string using dot notation
func GetString(key string) string {
	return initViper().GetString(key)
}

// GetBool returns a configuration value as bool using dot notation
func GetBool(key string) bool {
	return initViper().GetBool(key)
}

// GetInt returns a configuration value as int using dot notation
func GetInt(key string) int {
	return initViper().GetInt(key)
}

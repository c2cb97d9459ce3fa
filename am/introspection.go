package am

import (
	"os"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/teranos/paysync/errors"
)

// ConfigSource represents where a configuration value came from
type ConfigSource string

const (
	SourceDefault     ConfigSource = "default"
	SourceSystem      ConfigSource = "system"      // /etc/paysync/config.toml
	SourceUser        ConfigSource = "user"        // ~/.paysync/am.toml
	SourceProject     ConfigSource = "project"     // project am.toml
	SourceDotenv      ConfigSource = "dotenv"      // .env
	SourceEnvironment ConfigSource = "environment" // PAYSYNC_* env vars
)

// Mask replaces sensitive values in displayed configuration
const Mask = "********"

// SettingInfo contains metadata about a configuration setting
type SettingInfo struct {
	Key        string       `json:"key"`
	Value      interface{}  `json:"value"`
	Source     ConfigSource `json:"source"`
	SourcePath string       `json:"source_path,omitempty"` // File path or env var name
}

// SourceInfo tracks where a configuration value originated
type SourceInfo struct {
	Source ConfigSource
	Path   string
}

// Introspect returns every effective setting with its source, secrets masked
func Introspect() ([]SettingInfo, error) {
	v := GetViper()
	if _, err := Load(); err != nil {
		return nil, errors.Wrap(err, "failed to load config for introspection")
	}

	var settings []SettingInfo
	flattenSettingsWithSources(v.AllSettings(), "", &settings, ConfigSources)
	return settings, nil
}

// flattenSettingsWithSources flattens settings and assigns sources from sourceMap
func flattenSettingsWithSources(settings map[string]interface{}, prefix string, out *[]SettingInfo, sourceMap map[string]SourceInfo) {
	keys := make([]string, 0, len(settings))
	for k := range settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := settings[key]
		fullKey := key
		if prefix != "" {
			fullKey = prefix + "." + key
		}

		if nestedMap, ok := value.(map[string]interface{}); ok {
			flattenSettingsWithSources(nestedMap, fullKey, out, sourceMap)
			continue
		}

		sourceInfo := SourceInfo{Source: SourceDefault, Path: "built-in default"}
		if si, ok := sourceMap[fullKey]; ok {
			sourceInfo = si
		}

		envKey := "PAYSYNC_" + strings.ToUpper(strings.ReplaceAll(fullKey, ".", "_"))
		if envValue := os.Getenv(envKey); envValue != "" {
			sourceInfo = SourceInfo{Source: SourceEnvironment, Path: envKey}
		}

		if IsSensitive(fullKey) && value != "" {
			value = Mask
		}

		*out = append(*out, SettingInfo{
			Key:        fullKey,
			Value:      value,
			Source:     sourceInfo.Source,
			SourcePath: sourceInfo.Path,
		})
	}
}

// RenderTOML renders the effective configuration as TOML with secrets masked
func RenderTOML(cfg *Config) (string, error) {
	masked := *cfg
	if masked.API.ClientSecret != "" {
		masked.API.ClientSecret = Mask
	}
	if masked.Database.DSN != "" {
		masked.Database.DSN = Mask
	}

	out, err := toml.Marshal(masked)
	if err != nil {
		return "", errors.Wrap(err, "failed to render config")
	}
	return string(out), nil
}

// Package config loads zircon's settings: built-in defaults, then the
// optional <root>/config.yaml, then environment variables. Command-line
// flags are applied last by the caller.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"reflect"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds every tunable setting.
type Config struct {
	ToolchainRepo  string `yaml:"toolchain_repo"`
	SelfRepo       string `yaml:"self_repo"`
	ReleaseBaseURL string `yaml:"release_base_url"`
	BuildCommand   string `yaml:"build_command"`
	LogLevel       string `yaml:"log_level"`
	UpdateCheck    *bool  `yaml:"update_check"`

	// GitToken is only ever read from the environment.
	GitToken string `yaml:"-"`
}

// UpdateCheckEnabled reports whether the daily update reminder may run.
func (c *Config) UpdateCheckEnabled() bool {
	return c.UpdateCheck == nil || *c.UpdateCheck
}

// Load reads path (a missing file is not an error), applies defaults and
// then the environment. Unknown keys in the file are returned as warnings.
func Load(path string) (*Config, []string, error) {
	cfg := &Config{}
	var warnings []string

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		cfg, warnings, err = Parse(data)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", path, err)
		}
	}

	applyDefaults(cfg)
	ApplyEnv(cfg, os.Getenv)
	return cfg, warnings, nil
}

// Parse decodes YAML config data without applying defaults.
func Parse(data []byte) (*Config, []string, error) {
	cfg := &Config{}
	if len(bytes.TrimSpace(data)) == 0 {
		return cfg, nil, nil
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	var root yaml.Node
	if err := yaml.NewDecoder(bytes.NewReader(data)).Decode(&root); err != nil && !errors.Is(err, io.EOF) {
		return nil, nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, unknownKeys(&root), nil
}

// unknownKeys lists top-level mapping keys that no Config field claims.
func unknownKeys(root *yaml.Node) []string {
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return nil
	}
	mapping := root.Content[0]
	if mapping.Kind != yaml.MappingNode {
		return []string{"config file is not a mapping (ignored)"}
	}

	known := map[string]bool{}
	t := reflect.TypeOf(Config{})
	for i := 0; i < t.NumField(); i++ {
		tag := strings.Split(t.Field(i).Tag.Get("yaml"), ",")[0]
		if tag != "" && tag != "-" {
			known[tag] = true
		}
	}

	var warnings []string
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		key := mapping.Content[i].Value
		if !known[key] {
			warnings = append(warnings, fmt.Sprintf("unknown field %q (ignored)", key))
		}
	}
	return warnings
}

// ApplyEnv overrides cfg with ZIRCON_* environment variables read through
// getenv.
func ApplyEnv(cfg *Config, getenv func(string) string) {
	if v := strings.TrimSpace(getenv(EnvBuildCommand)); v != "" {
		cfg.BuildCommand = v
	}
	if v := strings.TrimSpace(getenv(EnvGitToken)); v != "" {
		cfg.GitToken = v
	}
	if v := strings.TrimSpace(getenv(EnvLogLevel)); v != "" {
		cfg.LogLevel = v
	}
	if v := strings.TrimSpace(getenv(EnvNoUpdateCheck)); v == "1" || strings.EqualFold(v, "true") {
		off := false
		cfg.UpdateCheck = &off
	}
}

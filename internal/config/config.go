package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	CurrentVersion = 1
	DefaultPath    = "~/.emrlift/emrlift.yaml"
)

// Config is the top-level emrlift configuration. Cluster definitions live in
// their own files (see ClusterConfig); this file carries process defaults.
type Config struct {
	Version int          `yaml:"version"`
	AWS     AWSConfig    `yaml:"aws,omitempty"`
	Logging LogConfig    `yaml:"logging,omitempty"`
	State   StateConfig  `yaml:"state,omitempty"`
	Wait    WaitConfig   `yaml:"wait,omitempty"`
	Remote  RemoteConfig `yaml:"remote,omitempty"`
	Plugin  PluginConfig `yaml:"plugin,omitempty"`
}

// AWSConfig holds defaults used when a cluster config leaves them empty.
type AWSConfig struct {
	Region  string `yaml:"region,omitempty"`
	Profile string `yaml:"profile,omitempty"`
}

// LogConfig defines logging settings.
type LogConfig struct {
	Level     string `yaml:"level,omitempty"`     // debug, info, warn, error
	Directory string `yaml:"directory,omitempty"` // default ~/.emrlift/logs/
}

// StateConfig locates the persisted cluster records.
type StateConfig struct {
	Path     string `yaml:"path,omitempty"`
	LockPath string `yaml:"lock_path,omitempty"`
}

// WaitConfig overrides the polling bounds of blocking waits.
type WaitConfig struct {
	RunningInterval time.Duration `yaml:"running_interval,omitempty"`
	RunningMaxPolls int           `yaml:"running_max_polls,omitempty"`
	ResizeSettle    time.Duration `yaml:"resize_settle,omitempty"`
	ResizeInterval  time.Duration `yaml:"resize_interval,omitempty"`
	ResizeMaxPolls  int           `yaml:"resize_max_polls,omitempty"`
}

// RemoteConfig selects how bootstrap commands reach the cluster.
type RemoteConfig struct {
	Mode    string `yaml:"mode,omitempty"` // local or ssh
	User    string `yaml:"user,omitempty"`
	KeyPath string `yaml:"key_path,omitempty"` // local path or s3://bucket/key
	Port    int    `yaml:"port,omitempty"`
}

// PluginConfig is the host-level plugin configuration shared by every cluster.
type PluginConfig struct {
	NamePrefix           string   `yaml:"name_prefix,omitempty"`
	ExcludedClusterTypes []string `yaml:"excluded_cluster_types,omitempty"`
	HomeUser             string   `yaml:"home_user,omitempty"` // HDFS home dir owner; defaults to the OS user
}

// Default returns a config with every default applied.
func Default() *Config {
	cfg := &Config{Version: CurrentVersion}
	cfg.applyDefaults()
	return cfg
}

// Load reads and parses the config file from the given path.
func Load(path string) (*Config, error) {
	if path == "" {
		path = ExpandHome(DefaultPath)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if cfg.Version != CurrentVersion {
		return nil, fmt.Errorf("unsupported config version %d (expected %d)", cfg.Version, CurrentVersion)
	}

	cfg.applyDefaults()
	return cfg, nil
}

// LoadOrDefault behaves like Load but falls back to Default when the default
// config file does not exist. An explicit path must exist.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		if _, err := os.Stat(ExpandHome(DefaultPath)); os.IsNotExist(err) {
			return Default(), nil
		}
	}
	return Load(path)
}

// Save writes the config to the given path.
func (c *Config) Save(path string) error {
	if path == "" {
		path = ExpandHome(DefaultPath)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	return os.WriteFile(path, data, 0o600)
}

func (c *Config) applyDefaults() {
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Directory == "" {
		c.Logging.Directory = ExpandHome("~/.emrlift/logs/")
	}
	if c.State.Path == "" {
		c.State.Path = ExpandHome("~/.emrlift/clusters.yaml")
	}
	if c.State.LockPath == "" {
		c.State.LockPath = ExpandHome("~/.emrlift/emrlift.lock")
	}
	if c.Wait.RunningInterval == 0 {
		c.Wait.RunningInterval = 30 * time.Second
	}
	if c.Wait.RunningMaxPolls == 0 {
		c.Wait.RunningMaxPolls = 60
	}
	if c.Wait.ResizeSettle == 0 {
		c.Wait.ResizeSettle = 60 * time.Second
	}
	if c.Wait.ResizeInterval == 0 {
		c.Wait.ResizeInterval = 30 * time.Second
	}
	if c.Wait.ResizeMaxPolls == 0 {
		c.Wait.ResizeMaxPolls = 61
	}
	if c.Remote.Mode == "" {
		c.Remote.Mode = "local"
	}
	if c.Remote.User == "" {
		c.Remote.User = "hadoop"
	}
	if c.Remote.Port == 0 {
		c.Remote.Port = 22
	}
	if c.Plugin.NamePrefix == "" {
		c.Plugin.NamePrefix = "dss-"
	}
}

var secretPattern = regexp.MustCompile(`\$\{(ENV|VAULT|AWS_SM):([^}]+)\}`)

// ResolveValue resolves secret references in a string value.
func ResolveValue(val string) (string, error) {
	matches := secretPattern.FindStringSubmatch(val)
	if matches == nil {
		return val, nil
	}

	provider := matches[1]
	ref := matches[2]

	switch provider {
	case "ENV":
		v := os.Getenv(ref)
		if v == "" {
			return "", fmt.Errorf("environment variable %s not set", ref)
		}
		return v, nil
	case "VAULT":
		return resolveVault(ref)
	case "AWS_SM":
		return resolveAWSSecretsManager(ref)
	default:
		return "", fmt.Errorf("unknown secrets provider: %s", provider)
	}
}

// ExpandHome expands ~ to the user's home directory.
func ExpandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}

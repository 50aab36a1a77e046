package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	DefaultConfigDir  = ".buildforge"
	DefaultConfigFile = "config.json"
	DefaultDBFile     = ".buildforge/buildforge.db"
	DefaultDataDir    = ".buildforge/data"
)

// Load reads the config file (falling back to defaults, without writing a
// file, if it is absent) and returns a populated Config. configPath overrides the default location.
// AGENT_PLATFORM and MTU are read directly from the environment and win
// over both the config file and BUILDFORGE_AGENT_* equivalents, matching
// the nudge RPC contract's documented precedence.
func Load(configPath string) (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("cannot determine home directory: %w", err)
	}

	v := viper.New()
	v.SetConfigType("json")
	v.SetEnvPrefix("buildforge")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(filepath.Join(home, DefaultConfigDir))
	}

	setDefaults(v, home)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			if !isNotExist(err) {
				return nil, fmt.Errorf("reading config: %w", err)
			}
		}
		// No config file yet; defaults and environment variables still apply.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if platform := os.Getenv("AGENT_PLATFORM"); platform != "" {
		cfg.Agent.Platform = platform
	}
	if mtu := os.Getenv("MTU"); mtu != "" {
		var parsed int
		if _, err := fmt.Sscanf(mtu, "%d", &parsed); err == nil && parsed > 0 {
			cfg.Agent.MTU = parsed
		}
	}

	expandPaths(&cfg, home)
	return &cfg, nil
}

// Save writes the config to disk as JSON.
func Save(cfg *Config, configPath string) error {
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("cannot determine home directory: %w", err)
	}

	if configPath == "" {
		configPath = filepath.Join(home, DefaultConfigDir, DefaultConfigFile)
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0o700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("serialising config: %w", err)
	}

	return os.WriteFile(configPath, data, 0o600)
}

// ConfigPath returns the effective config file path.
func ConfigPath(override string) (string, error) {
	if override != "" {
		return override, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, DefaultConfigDir, DefaultConfigFile), nil
}

// EnsureDir creates ~/.buildforge and its data directory if absent.
func EnsureDir() error {
	home, err := os.UserHomeDir()
	if err != nil {
		return err
	}
	dirs := []string{
		filepath.Join(home, DefaultConfigDir),
		filepath.Join(home, DefaultDataDir),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o700); err != nil {
			return fmt.Errorf("creating directory %s: %w", d, err)
		}
	}
	return nil
}

// setDefaults populates viper with sensible out-of-the-box values.
func setDefaults(v *viper.Viper, home string) {
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", filepath.Join(home, DefaultDBFile))
	v.SetDefault("database.dsn", "")

	v.SetDefault("bus.addr", "127.0.0.1:6379")
	v.SetDefault("bus.db", 0)

	v.SetDefault("agent.platform", "linux")
	v.SetDefault("agent.mtu", 1500)
	v.SetDefault("agent.poll_interval_seconds", 60)

	v.SetDefault("crawler.period_seconds", 300)
	v.SetDefault("crawler.data_dir", filepath.Join(home, DefaultDataDir))

	v.SetDefault("watchdog.period_seconds", 60)
	v.SetDefault("watchdog.stall_seconds", 60)

	v.SetDefault("server.addr", "127.0.0.1:8090")
}

// expandPaths resolves ~ in configured paths.
func expandPaths(cfg *Config, home string) {
	cfg.Database.Path = expandHome(cfg.Database.Path, home)
	cfg.Crawler.DataDir = expandHome(cfg.Crawler.DataDir, home)
}

func expandHome(path, home string) string {
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}

func isNotExist(err error) bool {
	return os.IsNotExist(err) || strings.Contains(err.Error(), "no such file")
}

package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/rochus-keller/FlowLine2/internal/controller"
)

// Config holds all flowline configuration.
// Priority: env vars > settings.yaml > defaults.
type Config struct {
	DBPath       string            `yaml:"db_path"`
	LogLevel     string            `yaml:"log_level"`
	StrictSyntax bool              `yaml:"strict_syntax"`
	ReadOnly     bool              `yaml:"read_only"`
	ListenAddr   string            `yaml:"listen_addr"`
	BaseURL      string            `yaml:"base_url"`
	Layout       LayoutConfig      `yaml:"layout"`
	Maintenance  MaintenanceConfig `yaml:"maintenance"`
	LintRules    []controller.Rule `yaml:"lint_rules"`
}

type LayoutConfig struct {
	// Engine is a graphviz layout engine name; "none" disables layout.
	Engine string `yaml:"engine"`
	Ortho  bool   `yaml:"ortho"`
}

type MaintenanceConfig struct {
	// Schedule is a cron spec for orphan sweeps; empty disables them.
	Schedule string `yaml:"schedule"`
}

func defaultConfig() Config {
	return Config{
		DBPath:     filepath.Join(flowlineDir(), "flowline.db"),
		LogLevel:   "info",
		ListenAddr: ":4200",
		Layout:     LayoutConfig{Engine: "dot"},
	}
}

func flowlineDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".flowline"
	}
	return filepath.Join(home, ".flowline")
}

func settingsPath() string {
	return filepath.Join(flowlineDir(), "settings.yaml")
}

// loadConfig layers the settings file at path (settingsPath when empty)
// and the environment over the defaults. A missing settings file is not
// an error.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	if path == "" {
		path = settingsPath()
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	case !errors.Is(err, fs.ErrNotExist):
		return cfg, fmt.Errorf("read %s: %w", path, err)
	}

	if v := os.Getenv("FLOWLINE_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("FLOWLINE_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("FLOWLINE_STRICT_SYNTAX"); v != "" {
		cfg.StrictSyntax = envBool(v)
	}
	if v := os.Getenv("FLOWLINE_READ_ONLY"); v != "" {
		cfg.ReadOnly = envBool(v)
	}
	if v := os.Getenv("FLOWLINE_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("FLOWLINE_BASE_URL"); v != "" {
		cfg.BaseURL = v
	}
	if v := os.Getenv("FLOWLINE_LAYOUT_ENGINE"); v != "" {
		cfg.Layout.Engine = v
	}
	if v := os.Getenv("FLOWLINE_LAYOUT_ORTHO"); v != "" {
		cfg.Layout.Ortho = envBool(v)
	}
	if v, ok := os.LookupEnv("FLOWLINE_MAINTENANCE_SCHEDULE"); ok {
		cfg.Maintenance.Schedule = v
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost" + cfg.ListenAddr
	}
	return cfg, nil
}

func envBool(v string) bool {
	b, err := strconv.ParseBool(v)
	return err == nil && b
}

// configDiff describes what changed between two configurations.
type configDiff struct {
	LogLevelChanged bool
	// ToolsChanged is set when the tool server must be rebuilt.
	ToolsChanged  bool
	RestartNeeded []string // fields that require a restart
}

func diffConfigs(old, new Config) configDiff {
	var d configDiff
	if old.LogLevel != new.LogLevel {
		d.LogLevelChanged = true
	}
	if old.ReadOnly != new.ReadOnly || old.StrictSyntax != new.StrictSyntax || old.Layout.Ortho != new.Layout.Ortho {
		d.ToolsChanged = true
	}
	if old.DBPath != new.DBPath {
		d.RestartNeeded = append(d.RestartNeeded, "db_path")
	}
	if old.ListenAddr != new.ListenAddr {
		d.RestartNeeded = append(d.RestartNeeded, "listen_addr")
	}
	if old.BaseURL != new.BaseURL {
		d.RestartNeeded = append(d.RestartNeeded, "base_url")
	}
	if old.Layout.Engine != new.Layout.Engine {
		d.RestartNeeded = append(d.RestartNeeded, "layout.engine")
	}
	if old.Maintenance.Schedule != new.Maintenance.Schedule {
		d.RestartNeeded = append(d.RestartNeeded, "maintenance.schedule")
	}
	return d
}

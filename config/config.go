// Copyright 2026 The Serbo Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use file except in compliance with the License.
// You may obtain a copy of the license at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config reads the configuration of the serbo command from a YAML
// file, and applies it to a Manager.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/gdamore/serbo"
	"github.com/gdamore/serbo/schedule"
)

// Config is the whole configuration.
type Config struct {
	ServerRoot  string         `yaml:"server_root"`
	VersionRoot string         `yaml:"version_root"`
	JarName     string         `yaml:"jar_name"`
	Provision   string         `yaml:"provision"` // "mkdir" or "copy"
	Launch      LaunchConfig   `yaml:"launch"`
	Restart     RestartConfig  `yaml:"restart"`
	Ports       map[string]int `yaml:"ports"`
	Logging     LoggingConfig  `yaml:"logging"`
	Database    DatabaseConfig `yaml:"database"`
	Schedules   []Schedule     `yaml:"schedules"`
	Autostart   []string       `yaml:"autostart"` // names, or "*" for all
}

// LaunchConfig controls how servers are started and stopped.
type LaunchConfig struct {
	Command      []string      `yaml:"command"`
	StopCommand  string        `yaml:"stop_command"`
	StopTime     time.Duration `yaml:"stop_time"`
	KillTime     time.Duration `yaml:"kill_time"`
	StartTimeout time.Duration `yaml:"start_timeout"`
	ReadyPattern string        `yaml:"ready_pattern"` // empty: running once alive
}

// RestartConfig controls restarting servers that crash.
type RestartConfig struct {
	Enabled    bool          `yaml:"enabled"`
	RateLimit  int           `yaml:"rate_limit"`
	RatePeriod time.Duration `yaml:"rate_period"`
}

// LoggingConfig contains logging settings.  With File set, messages are
// also written to a file that is rotated by size.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSize    int    `yaml:"max_size"` // megabytes
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"` // days
	Console    bool   `yaml:"console"` // copy server output to the log file
}

type DatabaseConfig struct {
	Path string `yaml:"path"` // empty: do not persist instances
}

// Schedule runs an action against an instance on a cron schedule.
type Schedule struct {
	Spec     string `yaml:"spec"`     // cron spec, seconds optional
	Instance string `yaml:"instance"` // instance name, or "*" for all
	Action   string `yaml:"action"`   // command, start, stop or restart
	Command  string `yaml:"command"`  // for the command action
}

// Entry converts the schedule for the scheduler.
func (s Schedule) Entry() schedule.Entry {
	return schedule.Entry{
		Spec:     s.Spec,
		Instance: s.Instance,
		Action:   s.Action,
		Command:  s.Command,
	}
}

// Default returns the configuration used when there is no file, rooted at
// root.
func Default(root string) *Config {
	return &Config{
		ServerRoot:  filepath.Join(root, "servers"),
		VersionRoot: filepath.Join(root, "versions"),
		JarName:     "server.jar",
		Provision:   "copy",
		Launch: LaunchConfig{
			Command:      []string{"java", "-Xmx1024M", "-Xms1024M", "-jar", "{jar}", "nogui", "--port", "{port}"},
			StopCommand:  serbo.DefaultStopCommand,
			StopTime:     serbo.DefaultStopTime,
			KillTime:     serbo.DefaultKillTime,
			StartTimeout: serbo.DefaultStartTimeout,
			ReadyPattern: serbo.DefaultReadyPattern.String(),
		},
		Restart: RestartConfig{
			Enabled:    false,
			RateLimit:  serbo.DefaultRateLimit,
			RatePeriod: serbo.DefaultRatePeriod,
		},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSize:    100,
			MaxBackups: 5,
			MaxAge:     30,
		},
		Database: DatabaseConfig{
			Path: filepath.Join(root, "serbo.db"),
		},
	}
}

// Load reads the configuration file at path over the defaults.  An empty
// path means SERBO_CONFIG, or serbo.yaml below the default root.  A missing
// file is not an error.  Environment variables override the file.
func Load(path string) (*Config, error) {
	root := serbo.DefaultRoot()
	cfg := Default(root)

	if path == "" {
		path = os.Getenv("SERBO_CONFIG")
	}
	if path == "" {
		path = filepath.Join(root, "serbo.yaml")
	}

	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if v := os.Getenv("SERBO_SERVER_ROOT"); v != "" {
		cfg.ServerRoot = v
	}
	if v := os.Getenv("SERBO_VERSION_ROOT"); v != "" {
		cfg.VersionRoot = v
	}
	if v := os.Getenv("SERBO_DATABASE"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("SERBO_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	cfg.normalizePaths(filepath.Dir(path))

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// normalizePaths makes relative paths relative to the directory holding
// the configuration file.
func (c *Config) normalizePaths(base string) {
	if abs, err := filepath.Abs(base); err == nil {
		base = abs
	}
	resolve := func(value string) string {
		value = strings.TrimSpace(value)
		if value == "" || filepath.IsAbs(value) {
			return value
		}
		return filepath.Join(base, value)
	}
	c.ServerRoot = resolve(c.ServerRoot)
	c.VersionRoot = resolve(c.VersionRoot)
	c.Database.Path = resolve(c.Database.Path)
	c.Logging.File = resolve(c.Logging.File)
}

// Validate checks the configuration for values that cannot work.
func (c *Config) Validate() error {
	if c.ServerRoot == "" || c.VersionRoot == "" {
		return fmt.Errorf("server_root and version_root must be set")
	}
	if c.JarName == "" || strings.ContainsAny(c.JarName, "/\\") {
		return fmt.Errorf("jar_name must be a plain file name")
	}
	switch c.Provision {
	case "mkdir", "copy":
	default:
		return fmt.Errorf("provision must be mkdir or copy, not %q", c.Provision)
	}
	if len(c.Launch.Command) == 0 {
		return fmt.Errorf("launch command must not be empty")
	}
	if c.Launch.StopTime < 0 || c.Launch.KillTime < 0 || c.Launch.StartTimeout < 0 || c.Restart.RatePeriod < 0 {
		return fmt.Errorf("durations must not be negative")
	}
	if c.Restart.RateLimit < 0 {
		return fmt.Errorf("rate_limit must not be negative")
	}
	if c.Launch.ReadyPattern != "" {
		if _, err := regexp.Compile(c.Launch.ReadyPattern); err != nil {
			return fmt.Errorf("bad ready_pattern: %w", err)
		}
	}
	for name, port := range c.Ports {
		if port <= 0 || port > 65535 {
			return fmt.Errorf("bad port %d for %s", port, name)
		}
	}
	for _, s := range c.Schedules {
		if err := s.Entry().Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Apply sets up m according to the configuration: launcher, provisioner,
// and the default instance properties.
func (c *Config) Apply(m *serbo.Manager) error {
	m.SetLauncher(serbo.NewTemplateLauncher(c.Launch.Command...))
	if c.Provision == "copy" {
		m.SetProvisioner(serbo.CopyProvisioner{
			Versions: serbo.VersionDir{Root: c.VersionRoot, JarName: c.JarName},
			JarName:  c.JarName,
		})
	} else {
		m.SetProvisioner(serbo.MkdirProvisioner{})
	}

	props := []struct {
		name  serbo.PropertyName
		value interface{}
	}{
		{serbo.PropStopCommand, c.Launch.StopCommand},
		{serbo.PropStopTime, c.Launch.StopTime},
		{serbo.PropKillTime, c.Launch.KillTime},
		{serbo.PropStartTimeout, c.Launch.StartTimeout},
		{serbo.PropReadyPattern, c.Launch.ReadyPattern},
		{serbo.PropRestart, c.Restart.Enabled},
		{serbo.PropRateLimit, c.Restart.RateLimit},
		{serbo.PropRatePeriod, c.Restart.RatePeriod},
	}
	for _, p := range props {
		if err := m.SetProperty(p.name, p.value); err != nil {
			return fmt.Errorf("property %s: %w", p.name, err)
		}
	}
	return nil
}

// ApplyPorts assigns the configured ports to the instances of m.  Instances
// without a port are left alone.
func (c *Config) ApplyPorts(m *serbo.Manager) error {
	for _, inst := range m.Instances() {
		if port, ok := c.Ports[inst.Name()]; ok {
			if err := inst.SetProperty(serbo.PropPort, port); err != nil {
				return err
			}
		}
	}
	return nil
}

// Save writes the configuration to path.
func Save(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

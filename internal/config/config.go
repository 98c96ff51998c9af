package config

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/tempobot/tempo/internal/consts"
)

type (
	Config struct {
		Discord   DiscordConfig   `yaml:"discord"`
		Scheduler SchedulerConfig `yaml:"scheduler"`
		Runner    RunnerConfig    `yaml:"runner"`
		Sync      SyncConfig      `yaml:"sync"`
		Logging   LoggingConfig   `yaml:"logging"`
		Ops       OpsConfig       `yaml:"ops"`
	}

	DiscordConfig struct {
		Token             string   `yaml:"token"`
		GuildID           string   `yaml:"guild_id"`
		ForumChannelID    string   `yaml:"forum_channel_id"`
		OperatorChannelID string   `yaml:"operator_channel_id"` // optional
		AllowedUserIDs    []string `yaml:"allowed_user_ids"`
	}

	SchedulerConfig struct {
		StatePath string `yaml:"state_path"` // run statistics file
	}

	RunnerConfig struct {
		Command    string   `yaml:"command"` // completion service CLI binary
		Model      string   `yaml:"model"`   // default model
		Models     []string `yaml:"models"`  // closed set for auto-classification
		WorkingDir string   `yaml:"working_dir"`
		TimeoutSec int      `yaml:"timeout_sec"`
		Tools      []string `yaml:"tools"`
	}

	SyncConfig struct {
		IntervalSec int               `yaml:"interval_sec"`
		OpDelayMs   int               `yaml:"op_delay_ms"` // minimum gap between platform writes
		PurposeTags []string          `yaml:"purpose_tags"`
		TagMapPath  string            `yaml:"tag_map_path"`
		TagTemplate map[string]string `yaml:"tag_template"` // seeds the tag map on first run
	}

	LoggingConfig struct {
		Level      string `yaml:"level"`  // debug, info, warn, error
		Format     string `yaml:"format"` // json, text
		Output     string `yaml:"output"` // stdout, file, both
		File       string `yaml:"file"`
		MaxSize    int    `yaml:"max_size"` // MB
		MaxBackups int    `yaml:"max_backups"`
		MaxAge     int    `yaml:"max_age"` // days
	}

	OpsConfig struct {
		Enabled bool   `yaml:"enabled"`
		Bind    string `yaml:"bind"`
	}
)

var (
	mu     sync.RWMutex
	loaded *Config
)

// Load reads, validates, and installs the process-wide config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	mu.Lock()
	loaded = cfg
	mu.Unlock()
	return cfg, nil
}

// Get returns the installed config.
func Get() (*Config, error) {
	mu.RLock()
	defer mu.RUnlock()
	if loaded == nil {
		return nil, fmt.Errorf("config is not loaded")
	}
	return loaded, nil
}

// Validate fills defaults and rejects configs the runtime cannot start with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Discord.Token) == "" {
		return fmt.Errorf("discord.token is required")
	}
	if strings.TrimSpace(c.Discord.GuildID) == "" {
		return fmt.Errorf("discord.guild_id is required")
	}
	if strings.TrimSpace(c.Discord.ForumChannelID) == "" {
		return fmt.Errorf("discord.forum_channel_id is required")
	}

	if strings.TrimSpace(c.Scheduler.StatePath) == "" {
		c.Scheduler.StatePath = consts.DefaultRunStatePath()
	}

	if strings.TrimSpace(c.Runner.Command) == "" {
		c.Runner.Command = "claude"
	}
	if c.Runner.TimeoutSec <= 0 {
		c.Runner.TimeoutSec = 300
	}
	if strings.TrimSpace(c.Runner.WorkingDir) == "" {
		c.Runner.WorkingDir = consts.DefaultWorkspaceDir()
	}

	if c.Sync.IntervalSec <= 0 {
		c.Sync.IntervalSec = 900
	}
	if c.Sync.OpDelayMs <= 0 {
		c.Sync.OpDelayMs = 500
	}
	if strings.TrimSpace(c.Sync.TagMapPath) == "" {
		c.Sync.TagMapPath = consts.DefaultTagMapPath()
	}

	if c.Ops.Enabled && strings.TrimSpace(c.Ops.Bind) == "" {
		c.Ops.Bind = "127.0.0.1:8091"
	}
	return nil
}

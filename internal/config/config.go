package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	yaml "gopkg.in/yaml.v3"
)

// AppConfig carries everything cmd/arena needs to assemble a run. Values
// come from built-in defaults, then an optional YAML file named by
// ARENA_CONFIG, then environment overrides, in that order.
type AppConfig struct {
	ManifestPath string
	AgentsDir    string

	Discipline        string // "single" or "double"
	ShuffleSeed       int64  // 0 seeds from the clock
	ReshufflePerRound bool

	MoveTimeLimitMs  int
	MoveGraceMs      int
	InterMoveDelayMs int
	AgentLoadSec     int

	RedisURL       string // empty disables live publishing
	SnapshotTTLSec int
	PublishEveryMs int
}

// fileConfig mirrors AppConfig for YAML decoding. Numeric and boolean
// fields are pointers so an absent key leaves the default alone.
type fileConfig struct {
	ManifestPath string `yaml:"manifest_path"`
	AgentsDir    string `yaml:"agents_dir"`

	Discipline        string `yaml:"discipline"`
	ShuffleSeed       *int64 `yaml:"shuffle_seed"`
	ReshufflePerRound *bool  `yaml:"reshuffle_per_round"`

	MoveTimeLimitMs  *int `yaml:"move_time_limit_ms"`
	MoveGraceMs      *int `yaml:"move_grace_ms"`
	InterMoveDelayMs *int `yaml:"inter_move_delay_ms"`
	AgentLoadSec     *int `yaml:"agent_load_timeout_sec"`

	RedisURL       string `yaml:"redis_url"`
	SnapshotTTLSec *int   `yaml:"snapshot_ttl_sec"`
	PublishEveryMs *int   `yaml:"publish_interval_ms"`
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		AgentsDir:       "agents",
		Discipline:      "single",
		MoveTimeLimitMs: 5000,
		MoveGraceMs:     1000,
		AgentLoadSec:    30,
		SnapshotTTLSec:  300,
		PublishEveryMs:  1000,
	}

	if path := strings.TrimSpace(os.Getenv("ARENA_CONFIG")); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()

	if cfg.ManifestPath == "" {
		return nil, errors.New("ARENA_MANIFEST is required")
	}
	switch cfg.Discipline {
	case "single", "double":
	default:
		return nil, fmt.Errorf("unknown discipline %q", cfg.Discipline)
	}
	if cfg.MoveTimeLimitMs <= 0 {
		return nil, errors.New("move time limit must be > 0")
	}

	return cfg, nil
}

func (c *AppConfig) applyFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var f fileConfig
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}

	if v := strings.TrimSpace(f.ManifestPath); v != "" {
		c.ManifestPath = v
	}
	if v := strings.TrimSpace(f.AgentsDir); v != "" {
		c.AgentsDir = v
	}
	if v := strings.TrimSpace(f.Discipline); v != "" {
		c.Discipline = v
	}
	if f.ShuffleSeed != nil {
		c.ShuffleSeed = *f.ShuffleSeed
	}
	if f.ReshufflePerRound != nil {
		c.ReshufflePerRound = *f.ReshufflePerRound
	}
	if f.MoveTimeLimitMs != nil && *f.MoveTimeLimitMs > 0 {
		c.MoveTimeLimitMs = *f.MoveTimeLimitMs
	}
	if f.MoveGraceMs != nil && *f.MoveGraceMs > 0 {
		c.MoveGraceMs = *f.MoveGraceMs
	}
	if f.InterMoveDelayMs != nil && *f.InterMoveDelayMs >= 0 {
		c.InterMoveDelayMs = *f.InterMoveDelayMs
	}
	if f.AgentLoadSec != nil && *f.AgentLoadSec > 0 {
		c.AgentLoadSec = *f.AgentLoadSec
	}
	if v := strings.TrimSpace(f.RedisURL); v != "" {
		c.RedisURL = v
	}
	if f.SnapshotTTLSec != nil && *f.SnapshotTTLSec > 0 {
		c.SnapshotTTLSec = *f.SnapshotTTLSec
	}
	if f.PublishEveryMs != nil && *f.PublishEveryMs > 0 {
		c.PublishEveryMs = *f.PublishEveryMs
	}
	return nil
}

func (c *AppConfig) applyEnv() {
	if v := strings.TrimSpace(os.Getenv("ARENA_MANIFEST")); v != "" {
		c.ManifestPath = v
	}
	if v := strings.TrimSpace(os.Getenv("ARENA_AGENTS_DIR")); v != "" {
		c.AgentsDir = v
	}
	if v := strings.TrimSpace(os.Getenv("ARENA_DISCIPLINE")); v != "" {
		c.Discipline = v
	}
	if v := strings.TrimSpace(os.Getenv("ARENA_SHUFFLE_SEED")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.ShuffleSeed = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("ARENA_RESHUFFLE_PER_ROUND")); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.ReshufflePerRound = b
		}
	}
	if v := strings.TrimSpace(os.Getenv("ARENA_MOVE_TIME_LIMIT_MS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.MoveTimeLimitMs = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("ARENA_MOVE_GRACE_MS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.MoveGraceMs = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("ARENA_INTER_MOVE_DELAY_MS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.InterMoveDelayMs = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("ARENA_AGENT_LOAD_TIMEOUT_SEC")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.AgentLoadSec = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("REDIS_URL")); v != "" {
		c.RedisURL = v
	}
	if v := strings.TrimSpace(os.Getenv("ARENA_SNAPSHOT_TTL_SEC")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.SnapshotTTLSec = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("ARENA_PUBLISH_INTERVAL_MS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.PublishEveryMs = n
		}
	}
}

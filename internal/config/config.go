package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/sawpanic/trendlab/internal/backtest"
	"github.com/sawpanic/trendlab/internal/errs"
	"github.com/sawpanic/trendlab/internal/infrastructure/db"
	monitor "github.com/sawpanic/trendlab/internal/interfaces/http"
	"github.com/sawpanic/trendlab/internal/leaderboard"
	"github.com/sawpanic/trendlab/internal/sweep"
	"github.com/sawpanic/trendlab/internal/telemetry"
	"github.com/sawpanic/trendlab/internal/yolo"
)

// DefaultPath is where the CLI looks for the config file.
const DefaultPath = "config/trendlab.yaml"

// Config is the application configuration.
type Config struct {
	LogLevel    string                   `yaml:"log_level"`
	Execution   backtest.ExecutionConfig `yaml:"execution"`
	Sweep       SweepSection             `yaml:"sweep"`
	Leaderboard LeaderboardSection       `yaml:"leaderboard"`
	Yolo        yolo.Config              `yaml:"yolo"`
	Database    db.Config                `yaml:"database"`
	Cache       CacheSection             `yaml:"cache"`
	Artifacts   ArtifactsSection         `yaml:"artifacts"`
	Influx      telemetry.InfluxConfig   `yaml:"influx"`
	HTTP        monitor.ServerConfig     `yaml:"http"`
}

type SweepSection struct {
	Workers int         `yaml:"workers"` // 0 = GOMAXPROCS
	Depth   sweep.Depth `yaml:"depth"`
}

type LeaderboardSection struct {
	Capacity int           `yaml:"capacity"`
	Dir      string        `yaml:"dir"`       // JSON file store directory
	Redis    bool          `yaml:"redis"`     // use the redis store instead of files
	RedisTTL time.Duration `yaml:"redis_ttl"` // 0 = no expiry
}

// CacheSection configures redis. The bar cache and the redis leaderboard
// store share the address.
type CacheSection struct {
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
}

type ArtifactsSection struct {
	Dir      string `yaml:"dir"`
	Keep     int    `yaml:"keep"` // runs kept by gc
	S3Bucket string `yaml:"s3_bucket"`
	S3Prefix string `yaml:"s3_prefix"`
	S3Region string `yaml:"s3_region"`
}

func Default() *Config {
	return &Config{
		LogLevel:  "info",
		Execution: backtest.DefaultExecutionConfig(),
		Sweep:     SweepSection{Depth: sweep.Standard},
		Leaderboard: LeaderboardSection{
			Capacity: leaderboard.DefaultCapacity,
			Dir:      "artifacts/leaderboard",
		},
		Yolo:      yolo.DefaultConfig(),
		Database:  db.DefaultConfig(),
		Artifacts: ArtifactsSection{Dir: "artifacts", Keep: 20, S3Prefix: "trendlab", S3Region: "us-east-1"},
		Influx:    telemetry.DefaultInfluxConfig(),
		HTTP:      monitor.DefaultServerConfig(),
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, errs.Wrap(errs.Configuration, "config.Load", fmt.Errorf("failed to read config file %s: %w", path, err))
		default:
			if err := yaml.Unmarshal(raw, cfg); err != nil {
				return nil, errs.Wrap(errs.Configuration, "config.Load", fmt.Errorf("failed to parse config file %s: %w", path, err))
			}
		}
	}
	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDotEnv loads a .env file into the process environment; a missing
// file is not an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return errs.Wrap(errs.Configuration, "config.LoadDotEnv", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	c.Database.ApplyEnv()
	c.Influx.ApplyEnv()
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Cache.Redis.Addr = v
	}
	if v := os.Getenv("TRENDLAB_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Sweep.Workers = n
		}
	}
	if v := os.Getenv("TRENDLAB_ARTIFACTS_DIR"); v != "" {
		c.Artifacts.Dir = v
	}
	if v := os.Getenv("TRENDLAB_S3_BUCKET"); v != "" {
		c.Artifacts.S3Bucket = v
	}
	if v := os.Getenv("HTTP_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.HTTP.Port = p
		}
	}
}

// Validate returns a configuration error naming the first bad section.
func (c *Config) Validate() error {
	const op = "config.Validate"
	if err := c.Execution.Validate(); err != nil {
		return err
	}
	if c.Sweep.Workers < 0 {
		return errs.Configf(op, "sweep.workers must not be negative")
	}
	if c.Sweep.Depth != "" {
		if _, err := sweep.ParseDepth(string(c.Sweep.Depth)); err != nil {
			return err
		}
	}
	if c.Leaderboard.Capacity < 1 {
		return errs.Configf(op, "leaderboard.capacity must be at least 1")
	}
	if c.Leaderboard.Redis && c.Cache.Redis.Addr == "" {
		return errs.Configf(op, "leaderboard.redis needs cache.redis.addr")
	}
	yc := c.Yolo
	yc.Exec = c.Execution
	if err := yc.Validate(); err != nil {
		return err
	}
	if err := c.Database.Validate(); err != nil {
		return errs.Wrap(errs.Configuration, op, err)
	}
	if c.Artifacts.Keep < 0 {
		return errs.Configf(op, "artifacts.keep must not be negative")
	}
	if c.HTTP.Port < 0 || c.HTTP.Port > 65535 {
		return errs.Configf(op, "http.port %d out of range", c.HTTP.Port)
	}
	return nil
}

package yolo

import (
	"time"

	"github.com/sawpanic/trendlab/internal/backtest"
	"github.com/sawpanic/trendlab/internal/errs"
	"github.com/sawpanic/trendlab/internal/leaderboard"
	"github.com/sawpanic/trendlab/internal/strategy"
	"github.com/sawpanic/trendlab/internal/sweep"
)

// Config controls a continuous search session.
type Config struct {
	// BaseGrids are jittered each iteration. Empty means the preset grid
	// of every strategy at Depth.
	BaseGrids     []sweep.Grid             `yaml:"base_grids" json:"base_grids"`
	Symbols       []string                 `yaml:"symbols" json:"symbols"`
	JitterPct     float64                  `yaml:"jitter_pct" json:"jitter_pct"`
	Depth         sweep.Depth              `yaml:"depth" json:"depth"`
	Seed          uint64                   `yaml:"seed" json:"seed"`
	MinInterval   time.Duration            `yaml:"min_interval" json:"min_interval"`
	MaxIterations int                      `yaml:"max_iterations" json:"max_iterations"` // 0 = unbounded
	Workers       int                      `yaml:"workers" json:"workers"`
	Profile       leaderboard.Profile      `yaml:"profile" json:"profile"`
	Capacity      int                      `yaml:"capacity" json:"capacity"`
	HistoryDir    string                   `yaml:"history_dir" json:"history_dir"`
	Exec          backtest.ExecutionConfig `yaml:"-" json:"exec"`
}

func DefaultConfig() Config {
	return Config{
		JitterPct:   0.15,
		Depth:       sweep.Quick,
		Seed:        42,
		MinInterval: time.Second,
		Profile:     leaderboard.Balanced,
		Capacity:    leaderboard.DefaultCapacity,
		HistoryDir:  "artifacts",
		Exec:        backtest.DefaultExecutionConfig(),
	}
}

// Validate checks the config.
func (c Config) Validate() error {
	const op = "yolo.Config.Validate"
	if c.JitterPct < 0 || c.JitterPct > 1 {
		return errs.Configf(op, "jitter_pct must be in [0, 1], got %g", c.JitterPct)
	}
	if c.MinInterval < 0 {
		return errs.Configf(op, "min_interval must not be negative")
	}
	if c.MaxIterations < 0 {
		return errs.Configf(op, "max_iterations must not be negative")
	}
	if _, err := leaderboard.ParseProfile(string(c.Profile)); err != nil {
		return err
	}
	return c.Exec.Validate()
}

// grids resolves the base grids.
func (c Config) grids() ([]sweep.Grid, error) {
	if len(c.BaseGrids) > 0 {
		return c.BaseGrids, nil
	}
	depth := c.Depth
	if depth == "" {
		depth = sweep.Quick
	}
	var out []sweep.Grid
	for _, k := range strategy.Kinds() {
		g, err := sweep.Preset(k, depth)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, nil
}

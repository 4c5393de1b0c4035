package sweep

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sawpanic/trendlab/internal/backtest"
	"github.com/sawpanic/trendlab/internal/data"
	"github.com/sawpanic/trendlab/internal/strategy"
)

// Config is one point of a sweep: a strategy with parameters applied to a
// symbol over a date range under a cost model.
type Config struct {
	StrategyID strategy.Kind      `json:"strategy_id"`
	Params     strategy.Params    `json:"params"`
	Symbol     string             `json:"symbol"`
	DateRange  data.DateRange     `json:"date_range"`
	Cost       backtest.CostModel `json:"cost"`
}

type canonicalConfig struct {
	Strategy    string             `json:"strategy"`
	Params      map[string]float64 `json:"params"`
	Symbol      string             `json:"symbol"`
	From        string             `json:"from"`
	To          string             `json:"to"`
	FeeBps      float64            `json:"fee_bps"`
	SlippageBps float64            `json:"slippage_bps"`
}

// ID is a stable 16 hex character identity derived from the canonical JSON
// of the config. Parameters are normalized first so omitted defaults and
// explicit defaults share an ID.
func (c Config) ID() string {
	params := c.Params
	if norm, err := strategy.Normalize(c.StrategyID, c.Params); err == nil {
		params = norm
	}
	if params == nil {
		params = strategy.Params{}
	}
	canon := canonicalConfig{
		Strategy:    string(c.StrategyID),
		Params:      params,
		Symbol:      c.Symbol,
		From:        formatBound(c.DateRange.From),
		To:          formatBound(c.DateRange.To),
		FeeBps:      c.Cost.FeeBps,
		SlippageBps: c.Cost.SlippageBps,
	}
	// map keys are emitted sorted, so the encoding is canonical
	b, _ := json.Marshal(canon)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])[:16]
}

func formatBound(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// Strategy returns the strategy selection of the config.
func (c Config) Strategy() strategy.Config {
	return strategy.Config{Kind: c.StrategyID, Params: c.Params}
}

// Validate checks the strategy parameters.
func (c Config) Validate() error {
	if _, err := strategy.Normalize(c.StrategyID, c.Params); err != nil {
		return err
	}
	return c.Cost.Validate()
}

func (c Config) String() string {
	return fmt.Sprintf("%s(%s) %s %s", c.StrategyID, c.Params, c.Symbol, c.DateRange)
}

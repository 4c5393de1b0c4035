package data

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Universe maps symbols to sectors.
type Universe struct {
	Sectors map[string][]string `yaml:"sectors"`

	bySymbol map[string]string
}

// LoadUniverse reads a universe YAML file of the form
//
//	sectors:
//	  technology: [AAPL, MSFT]
func LoadUniverse(path string) (*Universe, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read universe %s: %w", path, err)
	}
	var u Universe
	if err := yaml.Unmarshal(raw, &u); err != nil {
		return nil, fmt.Errorf("failed to parse universe %s: %w", path, err)
	}
	u.index()
	return &u, nil
}

// NewUniverse builds a universe from a sector map.
func NewUniverse(sectors map[string][]string) *Universe {
	u := &Universe{Sectors: sectors}
	u.index()
	return u
}

func (u *Universe) index() {
	u.bySymbol = make(map[string]string)
	for sector, symbols := range u.Sectors {
		for _, s := range symbols {
			u.bySymbol[s] = sector
		}
	}
}

// SectorOf returns the symbol's sector or UnknownSector.
func (u *Universe) SectorOf(symbol string) string {
	if u == nil {
		return UnknownSector
	}
	if sector, ok := u.bySymbol[symbol]; ok {
		return sector
	}
	return UnknownSector
}

// Symbols lists every symbol in the universe, sorted.
func (u *Universe) Symbols() []string {
	out := make([]string, 0, len(u.bySymbol))
	for s := range u.bySymbol {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

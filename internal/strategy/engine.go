package strategy

import (
	"github.com/sawpanic/trendlab/internal/data"
	"github.com/sawpanic/trendlab/internal/domain/indicators"
)

// Generate produces one signal per bar. The engine tracks the position the
// signals imply, so a strategy only sees exits while holding and entries
// while flat. With allowShort false short entries are emitted as Flat.
//
// A series with no more bars than the strategy warmup yields all Flat.
// Strategies keep prepared lines between calls and are not safe for
// concurrent use; build one per goroutine.
func Generate(st Strategy, s *data.Series, cache *indicators.Cache, allowShort bool) ([]Signal, error) {
	n := s.Len()
	out := make([]Signal, n)
	warmup := st.Warmup()
	if n <= warmup {
		return out, nil
	}
	if err := st.Prepare(s, cache); err != nil {
		return nil, err
	}

	pos := Neutral
	for i := warmup; i < n; i++ {
		sig := st.Signal(i, pos)
		if !allowShort && sig == EnterShort {
			sig = Flat
		}
		out[i] = sig
		pos = pos.After(sig)
	}
	return out, nil
}

// Positions replays signals into the direction held after each bar.
func Positions(signals []Signal) []Direction {
	out := make([]Direction, len(signals))
	pos := Neutral
	for i, sig := range signals {
		pos = pos.After(sig)
		out[i] = pos
	}
	return out
}

package strategy

import (
	"fmt"

	"github.com/sawpanic/trendlab/internal/data"
	"github.com/sawpanic/trendlab/internal/domain/indicators"
)

func defined(vs ...float64) bool {
	for _, v := range vs {
		if !indicators.Defined(v) {
			return false
		}
	}
	return true
}

// donchian is the Turtle channel breakout: enter on a close beyond the
// prior entry-window extreme, exit on a close beyond the prior exit-window
// extreme on the other side.
type donchian struct {
	entry, exit int

	closes                 []float64
	entryUpper, entryLower []float64
	exitUpper, exitLower   []float64
}

func (d *donchian) Kind() Kind   { return Donchian }
func (d *donchian) Name() string { return fmt.Sprintf("donchian(%d/%d)", d.entry, d.exit) }
func (d *donchian) Warmup() int {
	if d.entry > d.exit {
		return d.entry
	}
	return d.exit
}

func (d *donchian) Prepare(s *data.Series, cache *indicators.Cache) error {
	var err error
	if d.entryUpper, d.entryLower, err = cache.Donchian(s, d.entry); err != nil {
		return err
	}
	if d.exitUpper, d.exitLower, err = cache.Donchian(s, d.exit); err != nil {
		return err
	}
	d.closes = s.Closes()
	return nil
}

func (d *donchian) Signal(i int, pos Direction) Signal {
	c := d.closes[i]
	switch pos {
	case Long:
		if defined(d.exitLower[i]) && c < d.exitLower[i] {
			return ExitLong
		}
	case Short:
		if defined(d.exitUpper[i]) && c > d.exitUpper[i] {
			return ExitShort
		}
	default:
		if !defined(d.entryUpper[i], d.entryLower[i]) {
			return Flat
		}
		if c > d.entryUpper[i] {
			return EnterLong
		}
		if c < d.entryLower[i] {
			return EnterShort
		}
	}
	return Flat
}

// maCrossover trades golden and death crosses of a fast and slow average.
type maCrossover struct {
	fast, slow int
	ema        bool

	fastLine, slowLine []float64
}

func (m *maCrossover) Kind() Kind { return MACrossover }
func (m *maCrossover) Name() string {
	kind := "sma"
	if m.ema {
		kind = "ema"
	}
	return fmt.Sprintf("ma_crossover(%s %d/%d)", kind, m.fast, m.slow)
}

// Warmup leaves one defined bar before the first crossover test.
func (m *maCrossover) Warmup() int { return m.slow }

func (m *maCrossover) Prepare(s *data.Series, cache *indicators.Cache) error {
	avg := cache.SMA
	if m.ema {
		avg = cache.EMA
	}
	var err error
	if m.fastLine, err = avg(s, m.fast); err != nil {
		return err
	}
	m.slowLine, err = avg(s, m.slow)
	return err
}

func (m *maCrossover) Signal(i int, pos Direction) Signal {
	if i < 1 || !defined(m.fastLine[i], m.slowLine[i], m.fastLine[i-1], m.slowLine[i-1]) {
		return Flat
	}
	prev := m.fastLine[i-1] - m.slowLine[i-1]
	cur := m.fastLine[i] - m.slowLine[i]
	golden := prev <= 0 && cur > 0
	death := prev >= 0 && cur < 0
	switch pos {
	case Long:
		if death {
			return ExitLong
		}
	case Short:
		if golden {
			return ExitShort
		}
	default:
		if golden {
			return EnterLong
		}
		if death {
			return EnterShort
		}
	}
	return Flat
}

// tsmom is time-series momentum: long while the close is above the close
// lookback bars ago, short while below.
type tsmom struct {
	lookback int
	closes   []float64
}

func (t *tsmom) Kind() Kind   { return TSMOM }
func (t *tsmom) Name() string { return fmt.Sprintf("tsmom(%d)", t.lookback) }
func (t *tsmom) Warmup() int  { return t.lookback }

func (t *tsmom) Prepare(s *data.Series, _ *indicators.Cache) error {
	t.closes = s.Closes()
	return nil
}

func (t *tsmom) Signal(i int, pos Direction) Signal {
	if i < t.lookback {
		return Flat
	}
	ret := t.closes[i]/t.closes[i-t.lookback] - 1
	switch pos {
	case Long:
		if ret < 0 {
			return ExitLong
		}
	case Short:
		if ret > 0 {
			return ExitShort
		}
	default:
		if ret > 0 {
			return EnterLong
		}
		if ret < 0 {
			return EnterShort
		}
	}
	return Flat
}

// keltner breaks out of an EMA channel widened by a multiple of ATR and
// exits on a close back through the EMA.
type keltner struct {
	emaPeriod, atrPeriod int
	mult                 float64

	closes, mid, atr []float64
}

func (k *keltner) Kind() Kind { return Keltner }
func (k *keltner) Name() string {
	return fmt.Sprintf("keltner(%d/%d x%g)", k.emaPeriod, k.atrPeriod, k.mult)
}

func (k *keltner) Warmup() int {
	if k.emaPeriod-1 > k.atrPeriod {
		return k.emaPeriod - 1
	}
	return k.atrPeriod
}

func (k *keltner) Prepare(s *data.Series, cache *indicators.Cache) error {
	var err error
	if k.mid, err = cache.EMA(s, k.emaPeriod); err != nil {
		return err
	}
	if k.atr, err = cache.ATR(s, k.atrPeriod); err != nil {
		return err
	}
	k.closes = s.Closes()
	return nil
}

func (k *keltner) Signal(i int, pos Direction) Signal {
	if !defined(k.mid[i], k.atr[i]) {
		return Flat
	}
	c, mid := k.closes[i], k.mid[i]
	width := k.mult * k.atr[i]
	switch pos {
	case Long:
		if c < mid {
			return ExitLong
		}
	case Short:
		if c > mid {
			return ExitShort
		}
	default:
		if c > mid+width {
			return EnterLong
		}
		if c < mid-width {
			return EnterShort
		}
	}
	return Flat
}

// bollinger breaks out of the bands and exits at the middle band.
type bollinger struct {
	period int
	mult   float64

	closes []float64
	bands  indicators.Bands
}

func (b *bollinger) Kind() Kind   { return Bollinger }
func (b *bollinger) Name() string { return fmt.Sprintf("bollinger(%d x%g)", b.period, b.mult) }
func (b *bollinger) Warmup() int  { return b.period - 1 }

func (b *bollinger) Prepare(s *data.Series, cache *indicators.Cache) error {
	var err error
	if b.bands, err = cache.Bollinger(s, b.period, b.mult); err != nil {
		return err
	}
	b.closes = s.Closes()
	return nil
}

func (b *bollinger) Signal(i int, pos Direction) Signal {
	up, mid, lo := b.bands.Upper[i], b.bands.Middle[i], b.bands.Lower[i]
	if !defined(up, mid, lo) {
		return Flat
	}
	c := b.closes[i]
	switch pos {
	case Long:
		if c < mid {
			return ExitLong
		}
	case Short:
		if c > mid {
			return ExitShort
		}
	default:
		if c > up {
			return EnterLong
		}
		if c < lo {
			return EnterShort
		}
	}
	return Flat
}

// dmiADX enters with the dominant directional index once ADX confirms a
// trend and exits when the indices cross back.
type dmiADX struct {
	period    int
	threshold float64

	dmi indicators.Directional
}

func (d *dmiADX) Kind() Kind { return DMIADX }
func (d *dmiADX) Name() string {
	return fmt.Sprintf("dmi_adx(%d >%g)", d.period, d.threshold)
}
func (d *dmiADX) Warmup() int { return 2*d.period - 1 }

func (d *dmiADX) Prepare(s *data.Series, cache *indicators.Cache) error {
	var err error
	d.dmi, err = cache.DMI(s, d.period)
	return err
}

func (d *dmiADX) Signal(i int, pos Direction) Signal {
	plus, minus, adx := d.dmi.PlusDI[i], d.dmi.MinusDI[i], d.dmi.ADX[i]
	if !defined(plus, minus, adx) {
		return Flat
	}
	switch pos {
	case Long:
		if plus < minus {
			return ExitLong
		}
	case Short:
		if plus > minus {
			return ExitShort
		}
	default:
		if adx <= d.threshold {
			return Flat
		}
		if plus > minus {
			return EnterLong
		}
		if minus > plus {
			return EnterShort
		}
	}
	return Flat
}

package indicators

import (
	"math"

	"github.com/markcheno/go-talib"

	"github.com/sawpanic/trendlab/internal/errs"
)

// Every function returns one value per input bar. Leading bars without
// enough history hold NaN, the undefined marker; no output index reads an
// input with a greater index.

// Undefined is the marker for values without enough history.
func Undefined() float64 { return math.NaN() }

// Defined reports whether v carries a computed value.
func Defined(v float64) bool { return !math.IsNaN(v) }

func undefinedSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// mask replaces the first lookback values with the undefined marker.
func mask(out []float64, lookback int) []float64 {
	for i := 0; i < lookback && i < len(out); i++ {
		out[i] = math.NaN()
	}
	return out
}

func checkWindow(op string, window int) error {
	if window <= 0 {
		return errs.Configf(op, "window must be positive, got %d", window)
	}
	return nil
}

// SMA is the simple moving average over window bars ending at each index.
func SMA(x []float64, window int) ([]float64, error) {
	if err := checkWindow("indicators.SMA", window); err != nil {
		return nil, err
	}
	lookback := window - 1
	if len(x) <= lookback {
		return undefinedSlice(len(x)), nil
	}
	return mask(talib.Sma(x, window), lookback), nil
}

// EMA is the exponential moving average seeded with the SMA of the first window.
func EMA(x []float64, window int) ([]float64, error) {
	if err := checkWindow("indicators.EMA", window); err != nil {
		return nil, err
	}
	lookback := window - 1
	if len(x) <= lookback {
		return undefinedSlice(len(x)), nil
	}
	return mask(talib.Ema(x, window), lookback), nil
}

// TrueRange is max(high-low, |high-prevClose|, |low-prevClose|); bar 0 is undefined.
func TrueRange(high, low, close []float64) []float64 {
	if len(close) < 2 {
		return undefinedSlice(len(close))
	}
	return mask(talib.TRange(high, low, close), 1)
}

// ATR is Wilder's average true range.
func ATR(high, low, close []float64, window int) ([]float64, error) {
	if err := checkWindow("indicators.ATR", window); err != nil {
		return nil, err
	}
	if window == 1 {
		return TrueRange(high, low, close), nil
	}
	lookback := window
	if len(close) <= lookback {
		return undefinedSlice(len(close)), nil
	}
	return mask(talib.Atr(high, low, close, window), lookback), nil
}

// Highest is the maximum of the window bars before each index, excluding the
// current bar. Donchian upper channel.
func Highest(x []float64, window int) ([]float64, error) {
	if err := checkWindow("indicators.Highest", window); err != nil {
		return nil, err
	}
	return shiftOne(rolling(x, window, talib.Max)), nil
}

// Lowest is the minimum of the window bars before each index, excluding the
// current bar. Donchian lower channel.
func Lowest(x []float64, window int) ([]float64, error) {
	if err := checkWindow("indicators.Lowest", window); err != nil {
		return nil, err
	}
	return shiftOne(rolling(x, window, talib.Min)), nil
}

// rolling applies an inclusive rolling extreme. talib returns zeros for
// windows below 2, where the extreme is the value itself.
func rolling(x []float64, window int, fn func([]float64, int) []float64) []float64 {
	if window == 1 {
		return append([]float64(nil), x...)
	}
	lookback := window - 1
	if len(x) <= lookback {
		return undefinedSlice(len(x))
	}
	return mask(fn(x, window), lookback)
}

func shiftOne(x []float64) []float64 {
	out := make([]float64, len(x))
	if len(out) == 0 {
		return out
	}
	out[0] = math.NaN()
	copy(out[1:], x[:len(x)-1])
	return out
}

// Bands holds upper, middle and lower band values.
type Bands struct {
	Upper  []float64
	Middle []float64
	Lower  []float64
}

// Bollinger returns SMA-centered bands at mult population standard deviations.
func Bollinger(x []float64, window int, mult float64) (Bands, error) {
	const op = "indicators.Bollinger"
	if window < 2 {
		return Bands{}, errs.Configf(op, "window must be at least 2, got %d", window)
	}
	if mult <= 0 {
		return Bands{}, errs.Configf(op, "multiplier must be positive, got %g", mult)
	}
	lookback := window - 1
	if len(x) <= lookback {
		return Bands{Upper: undefinedSlice(len(x)), Middle: undefinedSlice(len(x)), Lower: undefinedSlice(len(x))}, nil
	}
	up, mid, lo := talib.BBands(x, window, mult, mult, talib.SMA)
	return Bands{Upper: mask(up, lookback), Middle: mask(mid, lookback), Lower: mask(lo, lookback)}, nil
}

// StdDev is the rolling population standard deviation.
func StdDev(x []float64, window int) ([]float64, error) {
	if err := checkWindow("indicators.StdDev", window); err != nil {
		return nil, err
	}
	lookback := window - 1
	if window < 2 || len(x) <= lookback {
		if window == 1 {
			return make([]float64, len(x)), nil
		}
		return undefinedSlice(len(x)), nil
	}
	return mask(talib.StdDev(x, window, 1.0), lookback), nil
}

// ROC is the percent change over window bars.
func ROC(x []float64, window int) ([]float64, error) {
	if err := checkWindow("indicators.ROC", window); err != nil {
		return nil, err
	}
	if len(x) <= window {
		return undefinedSlice(len(x)), nil
	}
	return mask(talib.Roc(x, window), window), nil
}

// Directional holds Wilder's directional movement system.
type Directional struct {
	PlusDI  []float64
	MinusDI []float64
	ADX     []float64
}

// DMI computes +DI, -DI and ADX for a window of at least 2.
func DMI(high, low, close []float64, window int) (Directional, error) {
	const op = "indicators.DMI"
	if window < 2 {
		return Directional{}, errs.Configf(op, "window must be at least 2, got %d", window)
	}
	n := len(close)
	out := Directional{PlusDI: undefinedSlice(n), MinusDI: undefinedSlice(n), ADX: undefinedSlice(n)}
	if n > window {
		out.PlusDI = mask(talib.PlusDI(high, low, close, window), window)
		out.MinusDI = mask(talib.MinusDI(high, low, close, window), window)
	}
	adxLookback := 2*window - 1
	if n > adxLookback {
		out.ADX = mask(talib.Adx(high, low, close, window), adxLookback)
	}
	return out, nil
}

package metrics

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
)

// Value is a metric that may be undefined. Undefined values encode as JSON
// null and as an empty CSV cell.
type Value struct {
	Val     float64
	Defined bool
}

// Of returns a defined value. Non-finite inputs are undefined.
func Of(v float64) Value {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Value{}
	}
	return Value{Val: v, Defined: true}
}

// Undefined is the value used when a metric cannot be computed.
func Undefined() Value { return Value{} }

// Or returns the value, or fallback when undefined.
func (v Value) Or(fallback float64) float64 {
	if !v.Defined {
		return fallback
	}
	return v.Val
}

func (v Value) String() string {
	if !v.Defined {
		return "n/a"
	}
	return strconv.FormatFloat(v.Val, 'f', 4, 64)
}

func (v Value) MarshalJSON() ([]byte, error) {
	if !v.Defined {
		return []byte("null"), nil
	}
	return json.Marshal(v.Val)
}

func (v *Value) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		*v = Value{}
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	*v = Of(f)
	return nil
}

// MarshalCSV implements gocsv.TypeMarshaller.
func (v Value) MarshalCSV() (string, error) {
	if !v.Defined {
		return "", nil
	}
	return strconv.FormatFloat(v.Val, 'g', 12, 64), nil
}

// UnmarshalCSV implements gocsv.TypeUnmarshaller.
func (v *Value) UnmarshalCSV(s string) error {
	if s == "" {
		*v = Value{}
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*v = Of(f)
	return nil
}

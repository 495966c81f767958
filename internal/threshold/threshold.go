// Package threshold classifies sensor values against configured min/max bounds.
package threshold

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// Classification is the outcome of comparing a value against bounds.
type Classification int

const (
	None Classification = iota
	High
	Low
)

// String returns the stored form of the classification.
func (c Classification) String() string {
	switch c {
	case High:
		return "HIGH"
	case Low:
		return "LOW"
	default:
		return "NONE"
	}
}

// ParseClassification is the inverse of String.
func ParseClassification(s string) (Classification, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "HIGH":
		return High, nil
	case "LOW":
		return Low, nil
	case "NONE", "":
		return None, nil
	default:
		return None, fmt.Errorf("unknown classification %q", s)
	}
}

// Bounds is one threshold row. The accelerometer row is shared by all three axes.
type Bounds struct {
	ID        int64
	SensorID  int
	Parameter string
	Min       decimal.Decimal
	Max       decimal.Decimal
}

// Evaluate compares value with b. A nil b means no threshold is configured and
// never raises an alarm. Evaluate holds no state.
func Evaluate(value float64, b *Bounds) Classification {
	if b == nil || math.IsNaN(value) {
		return None
	}
	if math.IsInf(value, 0) {
		if value > 0 {
			return High
		}
		return Low
	}
	v := decimal.NewFromFloat(value)
	switch {
	case v.GreaterThan(b.Max):
		return High
	case v.LessThan(b.Min):
		return Low
	default:
		return None
	}
}

// AxisMode selects how differential acceleration is compared.
type AxisMode string

const (
	// AxisMagnitude compares the absolute delta, so a swing in either
	// direction beyond Max is High. Low is reachable only when Min is
	// positive.
	AxisMagnitude AxisMode = "magnitude"
	// AxisSigned compares the signed delta directly.
	AxisSigned AxisMode = "signed"
)

// ParseAxisMode validates a configured mode.
func ParseAxisMode(s string) (AxisMode, error) {
	switch AxisMode(strings.ToLower(strings.TrimSpace(s))) {
	case AxisMagnitude, "":
		return AxisMagnitude, nil
	case AxisSigned:
		return AxisSigned, nil
	default:
		return "", fmt.Errorf("unknown acceleration mode %q", s)
	}
}

// EvaluateAxis applies Evaluate to one delta component under mode.
func EvaluateAxis(delta float64, b *Bounds, mode AxisMode) Classification {
	if mode == AxisSigned {
		return Evaluate(delta, b)
	}
	return Evaluate(math.Abs(delta), b)
}

// Label renders the operator-facing alarm text, e.g.
// "HIGH ALARM TEMPERATURE" or "LOW ALARM ACCELERATION X".
func Label(c Classification, parameter string) string {
	p := strings.ToUpper(parameter)
	if p != "TEMPERATURE" {
		p = "ACCELERATION " + p
	}
	return c.String() + " ALARM " + p
}

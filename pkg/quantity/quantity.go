package quantity

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/shopspring/decimal"
)

// ErrInvalidRecipeData is returned when serving counts or amounts violate
// the formatter's preconditions.
var ErrInvalidRecipeData = errors.New("invalid recipe data")

// DefaultDenominators are the common cooking fractions.
var DefaultDenominators = []int{1, 2, 3, 4, 6, 8}

const (
	// DefaultTolerance is the absolute distance a value may have from a fraction
	// and still render as that fraction.
	DefaultTolerance = 0.01

	// DefaultDecimalPlaces bounds the decimal fallback.
	DefaultDecimalPlaces = 2

	// maxTinyPlaces bounds how far the decimal fallback extends for amounts
	// that would otherwise round to zero.
	maxTinyPlaces = 6

	epsilon = 1e-9
)

// Formatter scales ingredient amounts and renders them for display.
// The zero value is not usable; construct it with DefaultFormatter or New.
type Formatter struct {
	denominators  []int
	tolerance     float64
	decimalPlaces int32
}

// DefaultFormatter returns a formatter using the cooking denominators
// {1,2,3,4,6,8}, a tolerance of 0.01 and two decimal places.
func DefaultFormatter() Formatter {
	f, _ := New(DefaultDenominators, DefaultTolerance, DefaultDecimalPlaces)
	return f
}

// New creates a formatter with a custom denominator set.
func New(denominators []int, tolerance float64, decimalPlaces int) (Formatter, error) {
	if len(denominators) == 0 {
		return Formatter{}, errors.New("at least one denominator is required")
	}
	if tolerance < 0 || math.IsNaN(tolerance) {
		return Formatter{}, fmt.Errorf("tolerance must be non-negative, got %v", tolerance)
	}
	if decimalPlaces < 1 || decimalPlaces > maxTinyPlaces {
		return Formatter{}, fmt.Errorf("decimal places must be between 1 and %d, got %d", maxTinyPlaces, decimalPlaces)
	}

	seen := make(map[int]bool, len(denominators))
	denoms := make([]int, 0, len(denominators))
	for _, d := range denominators {
		if d <= 0 {
			return Formatter{}, fmt.Errorf("denominators must be positive, got %d", d)
		}
		if !seen[d] {
			seen[d] = true
			denoms = append(denoms, d)
		}
	}
	sort.Ints(denoms)

	return Formatter{
		denominators:  denoms,
		tolerance:     tolerance,
		decimalPlaces: int32(decimalPlaces),
	}, nil
}

// Denominators returns the sorted denominator set.
func (f Formatter) Denominators() []int {
	out := make([]int, len(f.denominators))
	copy(out, f.denominators)
	return out
}

// Ratio returns target / reference after validating both serving counts.
func Ratio(reference, target int) (float64, error) {
	if reference <= 0 {
		return 0, fmt.Errorf("%w: reference servings must be positive, got %d", ErrInvalidRecipeData, reference)
	}
	if target <= 0 {
		return 0, fmt.Errorf("%w: target servings must be positive, got %d", ErrInvalidRecipeData, target)
	}
	return float64(target) / float64(reference), nil
}

// ScaleAndFormat scales amount from reference to target servings and
// renders the result using the default formatter.
func ScaleAndFormat(amount float64, reference, target int) (string, error) {
	return DefaultFormatter().ScaleAndFormat(amount, reference, target)
}

// ScaleAndFormat scales amount by target/reference and renders it.
func (f Formatter) ScaleAndFormat(amount float64, reference, target int) (string, error) {
	ratio, err := Ratio(reference, target)
	if err != nil {
		return "", err
	}
	scaled := amount * ratio
	if math.IsInf(scaled, 1) && !math.IsInf(amount, 0) {
		// past the float64 range; scale in decimal instead
		exact := decimal.NewFromFloat(amount).
			Mul(decimal.NewFromInt(int64(target))).
			Div(decimal.NewFromInt(int64(reference)))
		return exact.Round(f.places()).String(), nil
	}
	return f.Format(scaled)
}

// Format renders an already scaled amount as an integer, a fraction "n/d",
// a mixed number "i n/d", or a decimal when no fraction is close enough.
func (f Formatter) Format(scaled float64) (string, error) {
	if math.IsNaN(scaled) || math.IsInf(scaled, 0) {
		return "", fmt.Errorf("%w: amount is not a finite number", ErrInvalidRecipeData)
	}
	if scaled < 0 {
		return "", fmt.Errorf("%w: amount must be non-negative, got %v", ErrInvalidRecipeData, scaled)
	}
	if scaled == 0 {
		return "0", nil
	}
	if len(f.denominators) == 0 {
		f = DefaultFormatter()
	}

	whole := math.Floor(scaled)
	rem := scaled - whole

	num, den, ok := f.matchFraction(rem)
	if !ok {
		return f.formatDecimal(scaled), nil
	}
	if num == den {
		whole++
		num = 0
	}

	switch {
	case num == 0 && whole == 0:
		// Nonzero but below tolerance: widen the decimal fallback. Amounts
		// below 0.0000005 still print as "0".
		return f.formatDecimal(scaled), nil
	case num == 0:
		return strconv.FormatFloat(whole, 'f', 0, 64), nil
	case whole == 0:
		return fmt.Sprintf("%d/%d", num, den), nil
	default:
		return fmt.Sprintf("%s %d/%d", strconv.FormatFloat(whole, 'f', 0, 64), num, den), nil
	}
}

// matchFraction finds the smallest denominator whose nearest fraction lies
// within tolerance of rem, which must be in [0, 1).
func (f Formatter) matchFraction(rem float64) (num, den int, ok bool) {
	for _, d := range f.denominators {
		n := math.Round(rem * float64(d))
		if math.Abs(rem-n/float64(d)) <= f.tolerance+epsilon {
			num, den = reduce(int(n), d)
			return num, den, true
		}
	}
	return 0, 0, false
}

func (f Formatter) places() int32 {
	if f.decimalPlaces <= 0 {
		return DefaultDecimalPlaces
	}
	return f.decimalPlaces
}

func (f Formatter) formatDecimal(v float64) string {
	d := decimal.NewFromFloat(v)
	for places := f.places(); places <= maxTinyPlaces; places++ {
		rounded := d.Round(places)
		if !rounded.IsZero() {
			return rounded.String()
		}
	}
	return "0"
}

func reduce(n, d int) (int, int) {
	if n == 0 {
		return 0, d
	}
	a, b := n, d
	for b != 0 {
		a, b = b, a%b
	}
	return n / a, d / a
}

package quantity

import (
	"errors"
	"math"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScaleAndFormat(t *testing.T) {
	tests := []struct {
		name      string
		amount    float64
		reference int
		target    int
		want      string
	}{
		{"half from quarter recipe", 1, 4, 2, "1/2"},
		{"mixed number", 3, 2, 1, "1 1/2"},
		{"zero amount", 0, 4, 2, "0"},
		{"two thirds", 1, 3, 2, "2/3"},
		{"whole number", 2, 1, 2, "4"},
		{"identity keeps integer", 2, 2, 2, "2"},
		{"one third", 1, 3, 1, "1/3"},
		{"one sixth", 1, 6, 1, "1/6"},
		{"one eighth", 1, 8, 1, "1/8"},
		{"three quarters", 1.5, 2, 1, "3/4"},
		{"near eighth inside tolerance", 2.37, 1, 1, "2 3/8"},
		{"near whole rounds up", 1.995, 1, 1, "2"},
		{"twelfth falls back to decimal", 1, 12, 1, "0.08"},
		{"no fraction close enough", 1.3, 1, 1, "1.3"},
		{"per portion doubled", 0.25, 1, 2, "1/2"},
		{"large value", 1000000, 1, 1, "1000000"},
		{"tiny amount keeps precision", 0.001, 1, 1, "0.001"},
		{"below display precision", 1e-7, 1, 1, "0"},
		{"beyond float64 range", math.MaxFloat64, 1, 2, "35953862697246314" + strings.Repeat("0", 292)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ScaleAndFormat(tt.amount, tt.reference, tt.target)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestScaleAndFormatInvalidServings(t *testing.T) {
	tests := []struct {
		name      string
		reference int
		target    int
	}{
		{"zero reference", 0, 2},
		{"negative reference", -1, 2},
		{"zero target", 4, 0},
		{"negative target", 4, -3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, amount := range []float64{0, 1, 2.5} {
				_, err := ScaleAndFormat(amount, tt.reference, tt.target)
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidRecipeData), "got %v", err)
			}
		})
	}
}

func TestFormatRejectsNegativeAndNonFinite(t *testing.T) {
	f := DefaultFormatter()

	_, err := f.Format(-0.5)
	assert.ErrorIs(t, err, ErrInvalidRecipeData)

	_, err = f.ScaleAndFormat(-1, 1, 2)
	assert.ErrorIs(t, err, ErrInvalidRecipeData)
}

func TestRestrictedDenominatorsFallBackToDecimal(t *testing.T) {
	f, err := New([]int{1, 2, 4, 8}, DefaultTolerance, DefaultDecimalPlaces)
	require.NoError(t, err)

	got, err := f.ScaleAndFormat(1, 3, 2)
	require.NoError(t, err)
	assert.Equal(t, "0.67", got)
}

func TestFormatNeverShowsZeroNumerator(t *testing.T) {
	f := DefaultFormatter()
	for i := 0; i <= 2000; i++ {
		v := float64(i) / 97.0
		got, err := f.Format(v)
		require.NoError(t, err)
		assert.NotEmpty(t, got)
		assert.NotContains(t, got, "-")
		assert.False(t, strings.Contains(got, " 0/") || strings.HasPrefix(got, "0/"), "value %v rendered %q", v, got)
	}
}

func TestScaleAndFormatIdentity(t *testing.T) {
	for _, amount := range []float64{0, 0.5, 1, 1.25, 3, 7.5} {
		for _, n := range []int{1, 2, 4, 6} {
			want, err := DefaultFormatter().Format(amount)
			require.NoError(t, err)

			got, err := ScaleAndFormat(amount, n, n)
			require.NoError(t, err)
			assert.Equal(t, want, got, "amount=%v servings=%d", amount, n)
		}
	}
}

func TestScaleAndFormatDeterministic(t *testing.T) {
	f := DefaultFormatter()
	first, err := f.ScaleAndFormat(0.37, 3, 5)
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]string, 50)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = f.ScaleAndFormat(0.37, 3, 5)
		}(i)
	}
	wg.Wait()

	for _, r := range results {
		assert.Equal(t, first, r)
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		denoms  []int
		tol     float64
		places  int
		wantErr bool
	}{
		{"defaults", DefaultDenominators, DefaultTolerance, DefaultDecimalPlaces, false},
		{"unsorted with duplicates", []int{8, 2, 2, 1}, 0.01, 1, false},
		{"empty denominators", nil, 0.01, 2, true},
		{"zero denominator", []int{0, 2}, 0.01, 2, true},
		{"negative tolerance", []int{2}, -0.1, 2, true},
		{"zero places", []int{2}, 0.01, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := New(tt.denoms, tt.tol, tt.places)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			d := f.Denominators()
			assert.IsIncreasing(t, d)
		})
	}
}

func TestRatio(t *testing.T) {
	r, err := Ratio(4, 2)
	require.NoError(t, err)
	assert.Equal(t, 0.5, r)

	_, err = Ratio(0, 2)
	assert.ErrorIs(t, err, ErrInvalidRecipeData)
}

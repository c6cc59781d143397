// Package quantity scales recipe ingredient amounts between serving counts
// and renders them the way a cook would write them down.
//
// Amounts are multiplied by target/reference servings and then matched
// against a small set of kitchen fractions (halves, thirds, quarters,
// sixths, eighths by default). A match renders as "1/2", "3" or "1 1/2";
// anything farther than the tolerance from every candidate falls back to a
// decimal with at most two places.
//
//	qty, err := quantity.ScaleAndFormat(0.25, 1, 2) // "1/2"
//
//	f, _ := quantity.New([]int{1, 2, 4}, 0.01, 2)
//	qty, err = f.ScaleAndFormat(1, 3, 2) // "0.67"
//
// Formatters are immutable values and safe for concurrent use.
package quantity

package main

import (
	"errors"
	"fmt"
	"strings"

	"kptnexport/pkg/quantity"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var (
	scaleReference    int
	scaleTarget       int
	scaleDenominators []int
)

// scaleCmd represents the scale command
var scaleCmd = &cobra.Command{
	Use:   "scale <amount>",
	Short: "Scale and format a single amount",
	Long: `Scale an ingredient amount from the reference to the target serving count
and print it the way exported documents show it.

The amount may be a decimal ("0.25", "0,25"), a fraction ("1/3") or a
mixed number ("1 1/2").`,
	Example: `  # 0.25 per portion for two people
  kptnexport scale 0.25
  1/2

  # 1 1/2 for four, cooked for six
  kptnexport scale "1 1/2" --reference 4 --target 6
  2 1/4`,
	Args: cobra.ExactArgs(1),
	RunE: runScale,
}

func init() {
	rootCmd.AddCommand(scaleCmd)

	scaleCmd.Flags().IntVarP(&scaleReference, "reference", "r", 1, "servings the amount refers to")
	scaleCmd.Flags().IntVarP(&scaleTarget, "target", "t", 2, "servings to scale to")
	scaleCmd.Flags().IntSliceVar(&scaleDenominators, "denominators", quantity.DefaultDenominators, "fractions an amount may be shown as")
}

func runScale(cmd *cobra.Command, args []string) error {
	amount, err := parseAmount(args[0])
	if err != nil {
		return err
	}

	f, err := quantity.New(scaleDenominators, quantity.DefaultTolerance, quantity.DefaultDecimalPlaces)
	if err != nil {
		return err
	}

	out, err := f.ScaleAndFormat(amount.InexactFloat64(), scaleReference, scaleTarget)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), out)
	return nil
}

// parseAmount reads a decimal, a fraction or a mixed number
func parseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", "."))
	if s == "" {
		return decimal.Zero, errors.New("amount is required")
	}

	fields := strings.Fields(s)
	if len(fields) > 2 {
		return decimal.Zero, fmt.Errorf("invalid amount %q", s)
	}

	total := decimal.Zero
	for i, field := range fields {
		if i == 0 && len(fields) == 2 && strings.Contains(field, "/") {
			return decimal.Zero, fmt.Errorf("invalid amount %q", s)
		}
		v, err := parseTerm(field)
		if err != nil {
			return decimal.Zero, fmt.Errorf("invalid amount %q: %w", s, err)
		}
		total = total.Add(v)
	}
	return total, nil
}

func parseTerm(s string) (decimal.Decimal, error) {
	num, den, isFraction := strings.Cut(s, "/")
	if !isFraction {
		return decimal.NewFromString(s)
	}

	n, err := decimal.NewFromString(num)
	if err != nil {
		return decimal.Zero, err
	}
	d, err := decimal.NewFromString(den)
	if err != nil {
		return decimal.Zero, err
	}
	if d.IsZero() {
		return decimal.Zero, errors.New("division by zero")
	}
	return n.Div(d), nil
}

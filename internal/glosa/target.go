package glosa

import (
	"errors"
	"fmt"
)

// ErrNegativeTarget reports sale aggregates that add up below zero.
var ErrNegativeTarget = errors.New("sale totals add up to a negative subtotal")

// SaleAggregate is a sale chosen as basis for a quote, reduced to its line totals.
type SaleAggregate struct {
	SaleID     int64   `json:"sale_id"`
	LineTotals []int64 `json:"line_totals"`
}

// TargetFromSales sums every line total of every sale into the fixed subtotal
// the quote glosas must match.
func TargetFromSales(sales []SaleAggregate) (int64, error) {
	var target int64
	for _, s := range sales {
		for _, total := range s.LineTotals {
			target += total
		}
	}
	if target < 0 {
		return 0, fmt.Errorf("%w: %d", ErrNegativeTarget, target)
	}
	return target, nil
}

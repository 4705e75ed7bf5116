// Package costing turns labor-hour and purchase inputs into priced sale lines
// under a target margin. Every function is pure; callers re-run Recompute in
// full after each input change.
package costing

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// SaleInput groups everything that drives one recomputation.
type SaleInput struct {
	Period          Period
	Lines           []LineInput
	TargetMarginPct decimal.Decimal
	Base            MarginBase
}

// Catalogs are the lookups consulted while pricing lines.
type Catalogs struct {
	Labor      LaborLookup
	Surcharges SurchargeLookup
}

// SaleLine is a priced line after the margin multiplier.
type SaleLine struct {
	Index       int    `json:"index"`
	Mode        Mode   `json:"mode"`
	Description string `json:"description,omitempty"`
	Quantity    int64  `json:"quantity"`
	LineCost
	SaleTotal int64           `json:"sale_total"`
	Utilidad  int64           `json:"utilidad"`
	MarginPct decimal.Decimal `json:"margin_pct"`
}

// Totals are sums of the already rounded line amounts.
type Totals struct {
	DirectCost   int64           `json:"direct_cost"`
	Surcharges   int64           `json:"surcharges"`
	CostTotal    int64           `json:"cost_total"`
	SaleBaseline int64           `json:"sale_baseline"`
	SaleTotal    int64           `json:"sale_total"`
	Utilidad     int64           `json:"utilidad"`
	MarginPct    decimal.Decimal `json:"margin_pct"`
}

// SaleResult is the full output of Recompute.
type SaleResult struct {
	Lines      []SaleLine `json:"lines"`
	Totals     Totals     `json:"totals"`
	Multiplier Multiplier `json:"multiplier"`
	// Notice is set when the margin target could not be applied.
	Notice *string `json:"notice"`
}

// Recompute prices every line, solves the margin multiplier and derives the
// final per-line and aggregate figures. Line validation failures are all
// reported together as ValidationErrors; nothing is priced in that case.
func Recompute(in SaleInput, cat Catalogs) (SaleResult, error) {
	if !in.Period.Valid() {
		return SaleResult{}, fmt.Errorf("%w: %s", ErrInvalidPeriod, in.Period)
	}
	if len(in.Lines) == 0 {
		return SaleResult{}, ErrNoLines
	}
	if err := CheckMarginPct(in.TargetMarginPct); err != nil {
		return SaleResult{}, err
	}
	base := in.Base
	if base == "" {
		base = BaseSale
	}

	costs := make([]LineCost, len(in.Lines))
	var verrs ValidationErrors
	for i, line := range in.Lines {
		cost, err := ComputeLine(i, line, in.Period, cat.Labor, cat.Surcharges)
		if err != nil {
			var lerr *LineError
			if errors.As(err, &lerr) {
				verrs = append(verrs, lerr)
				continue
			}
			return SaleResult{}, err
		}
		costs[i] = cost
	}
	if len(verrs) > 0 {
		return SaleResult{}, verrs
	}

	var direct, surcharge, costBase, baseline decimal.Decimal
	for _, c := range costs {
		direct = direct.Add(decimal.NewFromInt(c.CostTotal))
		surcharge = surcharge.Add(decimal.NewFromInt(c.Surcharge))
		costBase = costBase.Add(decimal.NewFromInt(c.CostBase))
		baseline = baseline.Add(decimal.NewFromInt(c.SaleBaseline))
	}
	var totals Totals
	var err error
	if totals.DirectCost, err = totalAmount(direct); err != nil {
		return SaleResult{}, err
	}
	if totals.Surcharges, err = totalAmount(surcharge); err != nil {
		return SaleResult{}, err
	}
	if totals.CostTotal, err = totalAmount(costBase); err != nil {
		return SaleResult{}, err
	}
	if totals.SaleBaseline, err = totalAmount(baseline); err != nil {
		return SaleResult{}, err
	}

	mult, err := SolveMultiplier(totals.CostTotal, totals.SaleBaseline, in.TargetMarginPct, base)
	if err != nil {
		return SaleResult{}, err
	}

	lines := make([]SaleLine, len(costs))
	saleTotal := decimal.Zero
	for i, c := range costs {
		scaled := decimal.NewFromInt(c.SaleBaseline).Mul(mult.K)
		sale, ok := toAmount(scaled)
		if !ok {
			verrs = append(verrs, overflowError(i, "sale_total", scaled))
			continue
		}
		lines[i] = SaleLine{
			Index:       i,
			Mode:        in.Lines[i].Mode,
			Description: in.Lines[i].Description,
			Quantity:    in.Lines[i].Quantity,
			LineCost:    c,
			SaleTotal:   sale,
			Utilidad:    sale - c.CostBase,
			MarginPct:   MarginPct(c.CostBase, sale),
		}
		saleTotal = saleTotal.Add(decimal.NewFromInt(sale))
	}
	if len(verrs) > 0 {
		return SaleResult{}, verrs
	}
	if totals.SaleTotal, err = totalAmount(saleTotal); err != nil {
		return SaleResult{}, err
	}
	totals.Utilidad = totals.SaleTotal - totals.CostTotal
	totals.MarginPct = MarginPct(totals.CostTotal, totals.SaleTotal)

	res := SaleResult{Lines: lines, Totals: totals, Multiplier: mult}
	if mult.Ignored {
		reason := mult.Reason
		res.Notice = &reason
	}
	return res, nil
}

func totalAmount(sum decimal.Decimal) (int64, error) {
	v, ok := toAmount(sum)
	if !ok {
		return 0, fmt.Errorf("%w: total %s", ErrAmountOverflow, sum.String())
	}
	return v, nil
}

package costing

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// MarginBase selects the amount the target margin is reversed from.
type MarginBase string

const (
	// BaseSale reverses the margin from the aggregate baseline sale.
	BaseSale MarginBase = "sale"
	// BaseCost reverses the margin from the aggregate cost.
	BaseCost MarginBase = "cost"
)

// ErrInvalidBase reports a margin base other than sale or cost.
var ErrInvalidBase = errors.New("margin base must be sale or cost")

var one = decimal.NewFromInt(1)

// ParseMarginBase maps user input to a MarginBase, using fallback when blank.
// Matching ignores case and surrounding blanks.
func ParseMarginBase(raw string, fallback MarginBase) (MarginBase, error) {
	base := MarginBase(strings.ToLower(strings.TrimSpace(raw)))
	switch base {
	case "":
		return fallback, nil
	case BaseSale, BaseCost:
		return base, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidBase, raw)
	}
}

// Multiplier is the uniform factor applied to every line's baseline sale.
type Multiplier struct {
	K          decimal.Decimal `json:"k"`
	Base       MarginBase      `json:"base"`
	TargetPct  decimal.Decimal `json:"target_pct"`
	SaleTarget int64           `json:"sale_target"`
	// Ignored is set when the inputs were degenerate and K fell back to 1.
	Ignored bool   `json:"ignored"`
	Reason  string `json:"reason,omitempty"`
}

// SolveMultiplier computes k so that the aggregate sale reaches targetPct
// margin, where margin = (sale - cost) / sale. With u = targetPct/100 the
// required sale is base/(1-u) and k = saleTarget / totalBaseline.
//
// A target of 0 means no markup (k = 1). A non-positive baseline or base
// amount cannot be scaled; k falls back to 1 and the result is flagged Ignored.
func SolveMultiplier(totalCost, totalBaseline int64, targetPct decimal.Decimal, base MarginBase) (Multiplier, error) {
	if err := CheckMarginPct(targetPct); err != nil {
		return Multiplier{}, err
	}
	var baseAmount int64
	switch base {
	case BaseSale:
		baseAmount = totalBaseline
	case BaseCost:
		baseAmount = totalCost
	default:
		return Multiplier{}, fmt.Errorf("%w: %q", ErrInvalidBase, base)
	}

	m := Multiplier{K: one, Base: base, TargetPct: targetPct, SaleTarget: totalBaseline}
	if targetPct.IsZero() {
		return m, nil
	}
	if totalBaseline <= 0 {
		m.Ignored = true
		m.Reason = fmt.Sprintf("baseline sale total is %d; margin target %s%% ignored", totalBaseline, targetPct.String())
		return m, nil
	}
	if baseAmount <= 0 {
		m.Ignored = true
		m.Reason = fmt.Sprintf("%s base is %d; margin target %s%% ignored", base, baseAmount, targetPct.String())
		return m, nil
	}

	keep := one.Sub(targetPct.Div(hundred))
	saleTarget := decimal.NewFromInt(baseAmount).Div(keep)
	target, ok := toAmount(saleTarget)
	if !ok {
		return Multiplier{}, fmt.Errorf("%w: sale target %s", ErrAmountOverflow, saleTarget.Round(0).String())
	}
	m.SaleTarget = target
	m.K = decimal.NewFromInt(baseAmount).Div(keep.Mul(decimal.NewFromInt(totalBaseline)))
	return m, nil
}

// MarginPct returns (sale-cost)/sale as a percentage with two decimals, or
// zero when there is no sale to measure against.
func MarginPct(cost, sale int64) decimal.Decimal {
	if sale == 0 {
		return decimal.Zero
	}
	profit := decimal.NewFromInt(sale - cost)
	return profit.Mul(hundred).Div(decimal.NewFromInt(sale)).Round(2)
}

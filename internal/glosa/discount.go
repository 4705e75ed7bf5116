package glosa

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// LineSummary is the informational discount breakdown of one line.
type LineSummary struct {
	Order       int             `json:"order"`
	Gross       int64           `json:"gross"`
	DiscountPct decimal.Decimal `json:"discount_pct"`
	Discount    int64           `json:"discount"`
	Net         int64           `json:"net"`
}

// Summary rolls up gross, discount and net over all lines.
type Summary struct {
	Lines    []LineSummary `json:"lines"`
	Gross    int64         `json:"gross"`
	Discount int64         `json:"discount"`
	Net      int64         `json:"net"`
}

// Rollup computes per-line discounts as round(gross*pct/100). Allocation
// always works on gross amounts; these figures are for display only.
func Rollup(glosas []Glosa) Summary {
	s := Summary{Lines: make([]LineSummary, 0, len(glosas))}
	for _, g := range glosas {
		pct := clampPct(g.DiscountPct)
		discount := decimal.NewFromInt(g.Amount).Mul(pct).Div(hundred).Round(0).IntPart()
		line := LineSummary{
			Order:       g.Order,
			Gross:       g.Amount,
			DiscountPct: pct,
			Discount:    discount,
			Net:         g.Amount - discount,
		}
		s.Lines = append(s.Lines, line)
		s.Gross += line.Gross
		s.Discount += line.Discount
		s.Net += line.Net
	}
	return s
}

func clampPct(pct decimal.Decimal) decimal.Decimal {
	switch {
	case pct.IsNegative():
		return decimal.Zero
	case pct.GreaterThan(hundred):
		return hundred
	default:
		return pct
	}
}

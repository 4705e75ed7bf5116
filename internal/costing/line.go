package costing

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Mode selects how a line's cost is resolved.
type Mode string

const (
	ModeLabor    Mode = "LABOR"
	ModePurchase Mode = "PURCHASE"
)

// LineInput is one sale line before pricing. AlphaPct is expected to have been
// passed through NormalizeAlpha at ingestion.
type LineInput struct {
	Mode             Mode
	Description      string
	Quantity         int64
	DayTypeID        *int64
	AlphaPct         decimal.Decimal
	Employee         *Employee
	ManualUnitPrice  *int64
	CatalogUnitPrice *int64
}

// LineCost is the priced result of one line before the margin multiplier.
type LineCost struct {
	// CostTotal is hourly*qty+indirect for labor lines, unit*qty for purchases.
	CostTotal int64 `json:"cost_total"`
	// Surcharge is the day-type amount added once to the line.
	Surcharge int64 `json:"surcharge"`
	// CostBase is CostTotal plus Surcharge; margins are measured against it.
	CostBase     int64           `json:"cost_base"`
	AlphaPct     decimal.Decimal `json:"alpha_pct"`
	SaleBaseline int64           `json:"sale_baseline"`
	UnitCost     int64           `json:"unit_cost"`
	IndirectCost int64           `json:"indirect_cost"`
}

// ComputeLine prices one line for period. Labor lines need a cost record for
// their employee; purchase lines need a manual or catalog unit price.
func ComputeLine(index int, in LineInput, period Period, labor LaborLookup, surcharges SurchargeLookup) (LineCost, error) {
	if in.Quantity <= 0 {
		return LineCost{}, &LineError{Index: index, Field: "quantity", Err: fmt.Errorf("%w: got %d", ErrInvalidQuantity, in.Quantity)}
	}

	var out LineCost
	switch in.Mode {
	case ModeLabor:
		if in.Employee == nil {
			return LineCost{}, &LineError{Index: index, Field: "employee", Err: ErrEmployeeRequired}
		}
		var rec LaborCostRecord
		ok := false
		if labor != nil {
			rec, ok = labor.Lookup(*in.Employee, period)
		}
		if !ok {
			return LineCost{}, &LineError{
				Index: index,
				Field: "employee",
				Err:   fmt.Errorf("%w: employee %d, period %s", ErrLaborCostNotFound, in.Employee.ID, period),
			}
		}
		out.UnitCost = rec.HourlyCost
		out.IndirectCost = rec.IndirectCost
		total := decimal.NewFromInt(rec.HourlyCost).Mul(decimal.NewFromInt(in.Quantity)).Add(decimal.NewFromInt(rec.IndirectCost))
		if out.CostTotal, ok = toAmount(total); !ok {
			return LineCost{}, overflowError(index, "cost_total", total)
		}
	case ModePurchase:
		unit, err := purchaseUnitPrice(in)
		if err != nil {
			return LineCost{}, &LineError{Index: index, Field: "unit_price", Err: err}
		}
		out.UnitCost = unit
		total := decimal.NewFromInt(unit).Mul(decimal.NewFromInt(in.Quantity))
		var ok bool
		if out.CostTotal, ok = toAmount(total); !ok {
			return LineCost{}, overflowError(index, "cost_total", total)
		}
	default:
		return LineCost{}, &LineError{Index: index, Field: "mode", Err: fmt.Errorf("%w: %q", ErrInvalidMode, in.Mode)}
	}

	out.Surcharge = surchargeAmount(surcharges, in.DayTypeID)
	costBase := decimal.NewFromInt(out.CostTotal).Add(decimal.NewFromInt(out.Surcharge))
	var ok bool
	if out.CostBase, ok = toAmount(costBase); !ok {
		return LineCost{}, overflowError(index, "cost_base", costBase)
	}
	out.AlphaPct = in.AlphaPct
	baseline := applyAlpha(out.CostBase, in.AlphaPct)
	if out.SaleBaseline, ok = toAmount(baseline); !ok {
		return LineCost{}, overflowError(index, "alpha_pct", baseline)
	}
	return out, nil
}

func overflowError(index int, field string, v decimal.Decimal) *LineError {
	return &LineError{Index: index, Field: field, Err: fmt.Errorf("%w: %s", ErrAmountOverflow, v.Round(0).String())}
}

func purchaseUnitPrice(in LineInput) (int64, error) {
	var unit *int64
	switch {
	case in.ManualUnitPrice != nil:
		unit = in.ManualUnitPrice
	case in.CatalogUnitPrice != nil:
		unit = in.CatalogUnitPrice
	default:
		return 0, ErrUnitPriceRequired
	}
	if *unit < 0 {
		return 0, fmt.Errorf("%w: got %d", ErrNegativeUnitPrice, *unit)
	}
	return *unit, nil
}

// applyAlpha returns base * (1 + alpha/100) without rounding.
func applyAlpha(base int64, alpha decimal.Decimal) decimal.Decimal {
	factor := decimal.NewFromInt(1).Add(alpha.Div(hundred))
	return decimal.NewFromInt(base).Mul(factor)
}

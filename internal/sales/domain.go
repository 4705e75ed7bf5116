package sales

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-costing/internal/costing"
)

// ============================================================================
// SALE
// ============================================================================

type SaleStatus string

const (
	SaleStatusDraft     SaleStatus = "DRAFT"
	SaleStatusConfirmed SaleStatus = "CONFIRMED"
	SaleStatusCancelled SaleStatus = "CANCELLED"
)

// Sale is a persisted, priced sale together with the inputs it was priced from.
type Sale struct {
	ID              int64              `json:"id" db:"id"`
	DocNumber       string             `json:"doc_number" db:"doc_number"`
	ClientName      string             `json:"client_name" db:"client_name"`
	Period          costing.Period     `json:"period"`
	Status          SaleStatus         `json:"status" db:"status"`
	TargetMarginPct decimal.Decimal    `json:"target_margin_pct" db:"target_margin_pct"`
	MarginBase      costing.MarginBase `json:"margin_base" db:"margin_base"`
	Multiplier      decimal.Decimal    `json:"multiplier" db:"multiplier"`
	Notice          *string            `json:"notice" db:"notice"`
	CostTotal       int64              `json:"cost_total" db:"cost_total"`
	SaleBaseline    int64              `json:"sale_baseline" db:"sale_baseline"`
	SaleTotal       int64              `json:"sale_total" db:"sale_total"`
	Utilidad        int64              `json:"utilidad" db:"utilidad"`
	MarginPct       decimal.Decimal    `json:"margin_pct" db:"margin_pct"`
	CreatedBy       int64              `json:"created_by" db:"created_by"`
	CreatedAt       time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at" db:"updated_at"`
	Lines           []SaleLine         `json:"lines,omitempty"`
}

// SaleLine stores the line inputs next to the figures they produced, so a
// draft can be priced again when labor costs change.
type SaleLine struct {
	ID               int64           `json:"id" db:"id"`
	SaleID           int64           `json:"sale_id" db:"sale_id"`
	LineOrder        int             `json:"line_order" db:"line_order"`
	Mode             costing.Mode    `json:"mode" db:"mode"`
	Description      string          `json:"description" db:"description"`
	Quantity         int64           `json:"quantity" db:"quantity"`
	DayTypeID        *int64          `json:"day_type_id,omitempty" db:"day_type_id"`
	AlphaPct         decimal.Decimal `json:"alpha_pct" db:"alpha_pct"`
	EmployeeID       *int64          `json:"employee_id,omitempty" db:"employee_id"`
	ManualUnitPrice  *int64          `json:"manual_unit_price,omitempty" db:"manual_unit_price"`
	CatalogUnitPrice *int64          `json:"catalog_unit_price,omitempty" db:"catalog_unit_price"`
	UnitCost         int64           `json:"unit_cost" db:"unit_cost"`
	CostTotal        int64           `json:"cost_total" db:"cost_total"`
	Surcharge        int64           `json:"surcharge" db:"surcharge"`
	CostBase         int64           `json:"cost_base" db:"cost_base"`
	SaleBaseline     int64           `json:"sale_baseline" db:"sale_baseline"`
	SaleTotal        int64           `json:"sale_total" db:"sale_total"`
	Utilidad         int64           `json:"utilidad" db:"utilidad"`
	MarginPct        decimal.Decimal `json:"margin_pct" db:"margin_pct"`
}

// request rebuilds the line input a stored line was priced from.
func (l SaleLine) request() LineRequest {
	return LineRequest{
		Mode:             string(l.Mode),
		Description:      l.Description,
		Quantity:         l.Quantity,
		DayTypeID:        l.DayTypeID,
		AlphaPct:         l.AlphaPct.String(),
		EmployeeID:       l.EmployeeID,
		ManualUnitPrice:  l.ManualUnitPrice,
		CatalogUnitPrice: l.CatalogUnitPrice,
	}
}

// ============================================================================
// REQUESTS
// ============================================================================

// LineRequest is one sale line as submitted. Percentages arrive as text and
// go through the costing normalizers.
type LineRequest struct {
	Mode             string `json:"mode" validate:"required,oneof=LABOR PURCHASE labor purchase"`
	Description      string `json:"description" validate:"required,max=255"`
	Quantity         int64  `json:"quantity" validate:"required,gt=0,lte=1000000000"`
	DayTypeID        *int64 `json:"day_type_id,omitempty" validate:"omitempty,gt=0"`
	AlphaPct         string `json:"alpha_pct,omitempty" validate:"max=32"`
	EmployeeID       *int64 `json:"employee_id,omitempty" validate:"omitempty,gt=0"`
	ManualUnitPrice  *int64 `json:"manual_unit_price,omitempty" validate:"omitempty,lte=1000000000000000"`
	CatalogUnitPrice *int64 `json:"catalog_unit_price,omitempty" validate:"omitempty,lte=1000000000000000"`
}

// PreviewRequest prices a sale without persisting it.
type PreviewRequest struct {
	Period          costing.Period `json:"period"`
	TargetMarginPct string         `json:"target_margin_pct,omitempty" validate:"max=32"`
	MarginBase      string         `json:"margin_base,omitempty" validate:"omitempty,oneof=sale cost SALE COST"`
	Lines           []LineRequest  `json:"lines" validate:"required,min=1,dive"`
}

// CreateSaleRequest prices and persists a draft sale.
type CreateSaleRequest struct {
	DocNumber  string `json:"doc_number" validate:"required,max=50"`
	ClientName string `json:"client_name" validate:"required,max=200"`
	PreviewRequest
}

// RecostSummary reports a period-wide recost run.
type RecostSummary struct {
	Period   costing.Period `json:"period"`
	Recosted int            `json:"recosted"`
	Failed   []int64        `json:"failed,omitempty"`
}

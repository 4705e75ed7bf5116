package quotes

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-costing/internal/glosa"
)

// ============================================================================
// QUOTE
// ============================================================================

type QuoteStatus string

const (
	QuoteStatusDraft  QuoteStatus = "DRAFT"
	QuoteStatusIssued QuoteStatus = "ISSUED"
)

// Quote is a saved quote document. Subtotal equals the sum of its glosa
// amounts and the sale totals it was built from.
type Quote struct {
	ID         int64        `json:"id" db:"id"`
	DocNumber  string       `json:"doc_number" db:"doc_number"`
	ClientName string       `json:"client_name" db:"client_name"`
	Status     QuoteStatus  `json:"status" db:"status"`
	SaleIDs    []int64      `json:"sale_ids"`
	Subtotal   int64        `json:"subtotal" db:"subtotal"`
	Discount   int64        `json:"discount" db:"discount"`
	Net        int64        `json:"net" db:"net"`
	Notes      *string      `json:"notes,omitempty" db:"notes"`
	CreatedBy  int64        `json:"created_by" db:"created_by"`
	CreatedAt  time.Time    `json:"created_at" db:"created_at"`
	Glosas     []QuoteGlosa `json:"glosas,omitempty"`
}

// QuoteGlosa is a persisted glosa with its discount already resolved.
type QuoteGlosa struct {
	ID          int64           `json:"id" db:"id"`
	QuoteID     int64           `json:"quote_id" db:"quote_id"`
	LineOrder   int             `json:"line_order" db:"line_order"`
	Description string          `json:"description" db:"description"`
	Amount      int64           `json:"amount" db:"amount"`
	Manual      bool            `json:"manual" db:"manual"`
	DiscountPct decimal.Decimal `json:"discount_pct" db:"discount_pct"`
	Discount    int64           `json:"discount" db:"discount"`
	Net         int64           `json:"net" db:"net"`
}

// ============================================================================
// EDITING SESSION
// ============================================================================

// Conflict describes manual amounts that cannot be reconciled with the target.
type Conflict struct {
	Kind       glosa.ConflictKind `json:"kind"`
	ManualSum  int64              `json:"manual_sum"`
	Target     int64              `json:"target"`
	Difference int64              `json:"difference"`
	Message    string             `json:"message"`
}

func newConflict(err *glosa.ConflictError) *Conflict {
	return &Conflict{
		Kind:       err.Kind,
		ManualSum:  err.ManualSum,
		Target:     err.Target,
		Difference: err.Difference(),
		Message:    err.Error(),
	}
}

// Session is the transient editing state of a quote's glosas. Every edit
// replaces Glosas wholesale with a fresh allocation.
type Session struct {
	ID        string        `json:"id"`
	SaleIDs   []int64       `json:"sale_ids"`
	Target    int64         `json:"target"`
	Glosas    []glosa.Glosa `json:"glosas"`
	Conflict  *Conflict     `json:"conflict"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// View is a session as returned to callers, with its discount rollup.
type View struct {
	*Session
	Sum     int64         `json:"sum"`
	Summary glosa.Summary `json:"summary"`
}

func newView(s *Session) *View {
	return &View{Session: s, Sum: glosa.Sum(s.Glosas), Summary: glosa.Rollup(s.Glosas)}
}

// ============================================================================
// REQUESTS
// ============================================================================

// GlosaInput seeds a glosa when a session starts. A set Amount makes the line
// manual.
type GlosaInput struct {
	Description string `json:"description" validate:"required,max=255"`
	Amount      *int64 `json:"amount,omitempty" validate:"omitempty,gte=0"`
	DiscountPct string `json:"discount_pct,omitempty" validate:"max=32"`
}

type StartSessionRequest struct {
	SaleIDs []int64      `json:"sale_ids" validate:"required,min=1,dive,gt=0"`
	Glosas  []GlosaInput `json:"glosas" validate:"omitempty,dive"`
}

type AmountRequest struct {
	Amount int64 `json:"amount" validate:"gte=0"`
}

type DescriptionRequest struct {
	Description string `json:"description" validate:"required,max=255"`
}

type DiscountRequest struct {
	DiscountPct string `json:"discount_pct" validate:"required,max=32"`
}

type MoveRequest struct {
	To int `json:"to" validate:"required,gt=0"`
}

type SaveQuoteRequest struct {
	DocNumber  string  `json:"doc_number" validate:"required,max=50"`
	ClientName string  `json:"client_name" validate:"required,max=200"`
	Notes      *string `json:"notes,omitempty" validate:"omitempty,max=2000"`
}

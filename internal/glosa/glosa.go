// Package glosa distributes a fixed quote subtotal across described quote
// lines. Lines pinned by the user keep their amount; the rest share the
// remainder so the sum always equals the target exactly.
package glosa

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// MaxDescriptionLen bounds a glosa description, counted in characters.
const MaxDescriptionLen = 255

// Glosa is one described, amount-bearing quote line.
type Glosa struct {
	Description string          `json:"description"`
	Amount      int64           `json:"amount"`
	Manual      bool            `json:"manual"`
	Order       int             `json:"order"`
	DiscountPct decimal.Decimal `json:"discount_pct"`
}

var (
	// ErrInvalidGlosa is wrapped by every ValidationError.
	ErrInvalidGlosa = errors.New("invalid glosa")
	// ErrIndexOutOfRange reports an edit addressing a line that does not exist.
	ErrIndexOutOfRange = errors.New("glosa index out of range")
)

// ValidationError identifies the offending line of a rejected input.
type ValidationError struct {
	Index  int
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("glosa %d: %s", e.Index+1, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidGlosa }

// ConflictKind names the way manual amounts disagree with the target.
type ConflictKind string

const (
	// ConflictExcess means manual amounts alone exceed the target.
	ConflictExcess ConflictKind = "manual_excess"
	// ConflictMismatch means every line is manual and they do not add up to the target.
	ConflictMismatch ConflictKind = "manual_mismatch"
)

// ConflictError reports an over-constrained allocation. It is never corrected
// automatically; the user has to adjust or add a line.
type ConflictError struct {
	Kind      ConflictKind
	ManualSum int64
	Target    int64
}

// Difference is ManualSum minus Target.
func (e *ConflictError) Difference() int64 {
	return e.ManualSum - e.Target
}

func (e *ConflictError) Error() string {
	switch {
	case e.Kind == ConflictExcess:
		return fmt.Sprintf("manual glosas add up to %d, exceeding the target subtotal %d by %d", e.ManualSum, e.Target, e.Difference())
	case e.Difference() > 0:
		return fmt.Sprintf("manual glosas add up to %d, %d over the target subtotal %d; adjust an amount or add an automatic glosa", e.ManualSum, e.Difference(), e.Target)
	default:
		return fmt.Sprintf("manual glosas add up to %d, %d short of the target subtotal %d; adjust an amount or add an automatic glosa", e.ManualSum, -e.Difference(), e.Target)
	}
}

// Validate checks descriptions, manual amounts and discount percentages.
func Validate(glosas []Glosa) error {
	for i, g := range glosas {
		desc := strings.TrimSpace(g.Description)
		switch {
		case desc == "":
			return &ValidationError{Index: i, Reason: "description is required"}
		case utf8.RuneCountInString(desc) > MaxDescriptionLen:
			return &ValidationError{Index: i, Reason: fmt.Sprintf("description exceeds %d characters", MaxDescriptionLen)}
		case g.Amount < 0:
			return &ValidationError{Index: i, Reason: fmt.Sprintf("amount %d is negative", g.Amount)}
		case g.DiscountPct.IsNegative() || g.DiscountPct.GreaterThan(hundred):
			return &ValidationError{Index: i, Reason: fmt.Sprintf("discount %s%% is outside 0-100", g.DiscountPct.String())}
		}
	}
	return nil
}

// Renumber assigns contiguous 1-based orders following slice order.
func Renumber(glosas []Glosa) {
	for i := range glosas {
		glosas[i].Order = i + 1
	}
}

func clone(glosas []Glosa) []Glosa {
	out := make([]Glosa, len(glosas))
	copy(out, glosas)
	return out
}

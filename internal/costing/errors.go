package costing

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidMode reports a line mode other than LABOR or PURCHASE.
	ErrInvalidMode = errors.New("unknown line mode")
	// ErrInvalidQuantity reports a quantity that is not positive.
	ErrInvalidQuantity = errors.New("quantity must be greater than zero")
	// ErrEmployeeRequired reports a labor line without an employee.
	ErrEmployeeRequired = errors.New("employee is required for labor lines")
	// ErrLaborCostNotFound reports a missing labor cost record for the period.
	ErrLaborCostNotFound = errors.New("no labor cost record for employee in period")
	// ErrUnitPriceRequired reports a purchase line without a usable unit price.
	ErrUnitPriceRequired = errors.New("unit price is required for purchase lines")
	// ErrNegativeUnitPrice reports a purchase unit price below zero.
	ErrNegativeUnitPrice = errors.New("unit price must not be negative")
	// ErrInvalidPeriod reports a billing period outside the calendar.
	ErrInvalidPeriod = errors.New("billing period is invalid")
	// ErrNoLines reports a sale without lines.
	ErrNoLines = errors.New("sale has no lines")
	// ErrAmountOverflow reports an amount larger than the engine can represent.
	ErrAmountOverflow = errors.New("amount exceeds the supported range")
)

// LineError ties a validation failure to one sale line.
type LineError struct {
	Index int
	Field string
	Err   error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line %d: %s: %v", e.Index+1, e.Field, e.Err)
}

func (e *LineError) Unwrap() error { return e.Err }

// ValidationErrors collects every line failure found in one pass.
type ValidationErrors []*LineError

func (v ValidationErrors) Error() string {
	msgs := make([]string, 0, len(v))
	for _, e := range v {
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "; ")
}

// Unwrap exposes the individual line errors to errors.Is / errors.As.
func (v ValidationErrors) Unwrap() []error {
	errs := make([]error, 0, len(v))
	for _, e := range v {
		errs = append(errs, e)
	}
	return errs
}

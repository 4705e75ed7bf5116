package costing

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

var (
	// DefaultAlphaPct applies when a line carries no usable alpha adjustment.
	DefaultAlphaPct = decimal.NewFromInt(10)
	// MaxAlphaPct is the largest alpha adjustment a line may carry.
	MaxAlphaPct = decimal.NewFromInt(1000)
)

var (
	hundred = decimal.NewFromInt(100)

	// ErrInvalidPercent reports non-numeric percentage input.
	ErrInvalidPercent = errors.New("percentage is not a number")
	// ErrMarginOutOfRange reports a target margin outside [0, 100).
	ErrMarginOutOfRange = errors.New("target margin must be at least 0 and below 100")
	// ErrInvalidAmount reports amount text that does not hold an integer amount.
	ErrInvalidAmount = errors.New("amount is not a valid integer amount")
)

// NormalizeAlpha turns raw user input into the alpha percentage used by
// ComputeLine. Blank, non-numeric and negative input degrade to DefaultAlphaPct;
// values above MaxAlphaPct are clamped to it.
func NormalizeAlpha(raw string) decimal.Decimal {
	pct, err := ParsePercent(raw)
	if err != nil || pct.IsNegative() {
		return DefaultAlphaPct
	}
	if pct.GreaterThan(MaxAlphaPct) {
		return MaxAlphaPct
	}
	return pct
}

// ParseMarginPct validates a target margin. Blank input means no margin target.
func ParseMarginPct(raw string) (decimal.Decimal, error) {
	if strings.TrimSpace(raw) == "" {
		return decimal.Zero, nil
	}
	pct, err := ParsePercent(raw)
	if err != nil {
		return decimal.Zero, err
	}
	if err := CheckMarginPct(pct); err != nil {
		return decimal.Zero, err
	}
	return pct, nil
}

// CheckMarginPct rejects margins that would make the solver divide by zero or
// produce a negative sale.
func CheckMarginPct(pct decimal.Decimal) error {
	if pct.IsNegative() || pct.GreaterThanOrEqual(hundred) {
		return fmt.Errorf("%w: got %s", ErrMarginOutOfRange, pct.String())
	}
	return nil
}

// ParsePercent reads "12,5", "12.5" or "12.5%" as a percentage. It does not range check.
func ParsePercent(raw string) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimSuffix(s, "%")
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidPercent
	}
	// Both "12,5" and "12.5" are accepted; thousands separators are not expected here.
	s = strings.Replace(s, ",", ".", 1)
	pct, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidPercent, raw)
	}
	return pct, nil
}

// ParseAmount reads a currency-formatted integer amount such as "$ 1.234.567"
// or "1,234,567". Group separators and currency symbols are dropped; any
// fractional part is rejected since amounts carry no sub-unit precision.
func ParseAmount(raw string) (int64, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidAmount)
	}
	negative := false
	var digits strings.Builder
	for i, r := range s {
		switch {
		case unicode.IsDigit(r):
			digits.WriteRune(r)
		case r == '-' && digits.Len() == 0 && !negative:
			negative = true
		case r == '.' || r == ',' || r == '\'' || unicode.IsSpace(r):
			if isFractionSeparator(s, i) {
				return 0, fmt.Errorf("%w: %q has a fractional part", ErrInvalidAmount, raw)
			}
		case r == '$' || unicode.IsLetter(r) && digits.Len() == 0:
			// currency prefix such as "$", "CLP" or "US$"
		default:
			return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
		}
	}
	if digits.Len() == 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
	}
	amount, err := decimal.NewFromString(digits.String())
	if err != nil || !amount.IsInteger() || amount.GreaterThan(maxAmountDec) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
	}
	v := amount.IntPart()
	if negative {
		v = -v
	}
	return v, nil
}

// maxAmount is the largest absolute amount the engine produces or accepts.
const maxAmount = 1_000_000_000_000_000

var maxAmountDec = decimal.NewFromInt(maxAmount)

// toAmount rounds v and reports whether the result is within maxAmount.
func toAmount(v decimal.Decimal) (int64, bool) {
	if v.Round(0).Abs().GreaterThan(maxAmountDec) {
		return 0, false
	}
	return RoundAmount(v), true
}

// isFractionSeparator reports whether the separator at i is followed by one or
// two trailing digits only, which in "1.234,5" style input means decimals.
func isFractionSeparator(s string, i int) bool {
	if s[i] != '.' && s[i] != ',' {
		return false
	}
	tail := s[i+1:]
	if len(tail) == 0 || len(tail) > 2 {
		return false
	}
	for _, r := range tail {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// RoundAmount rounds half away from zero to an integer amount.
func RoundAmount(v decimal.Decimal) int64 {
	return v.Round(0).IntPart()
}

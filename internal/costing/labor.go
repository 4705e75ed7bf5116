package costing

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// Period identifies a billing month.
type Period struct {
	Year  int `json:"year" validate:"required,gte=2000,lte=2100"`
	Month int `json:"month" validate:"required,gte=1,lte=12"`
}

// Valid reports whether the period names a real calendar month.
func (p Period) Valid() bool {
	return p.Year > 0 && p.Month >= 1 && p.Month <= 12
}

func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, p.Month)
}

// Employee is the worker referenced by a labor line.
type Employee struct {
	ID         int64  `json:"id"`
	NationalID string `json:"national_id,omitempty"`
}

// LaborCostRecord is one employee's resolved cost for a billing period.
type LaborCostRecord struct {
	EmployeeID   *int64 `json:"employee_id,omitempty"`
	NationalID   string `json:"national_id,omitempty"`
	Period       Period `json:"period"`
	HourlyCost   int64  `json:"hourly_cost"`
	IndirectCost int64  `json:"indirect_cost"`
}

// LaborLookup resolves the cost record of an employee for a period.
type LaborLookup interface {
	Lookup(employee Employee, period Period) (LaborCostRecord, bool)
}

// Resolve finds the labor cost record for employee in period. A direct
// employee-id match wins over a normalized national-id match. The boolean is
// false when no record applies, which callers must treat as a validation
// failure rather than a zero cost.
func Resolve(employee Employee, period Period, records []LaborCostRecord) (LaborCostRecord, bool) {
	for _, rec := range records {
		if rec.Period != period || rec.EmployeeID == nil {
			continue
		}
		if *rec.EmployeeID == employee.ID {
			return rec, true
		}
	}
	want := NormalizeNationalID(employee.NationalID)
	if want == "" {
		return LaborCostRecord{}, false
	}
	for _, rec := range records {
		if rec.Period != period {
			continue
		}
		if NormalizeNationalID(rec.NationalID) == want {
			return rec, true
		}
	}
	return LaborCostRecord{}, false
}

var upper = cases.Upper(language.Und)

// NormalizeNationalID folds a national id ("12.345.678-k", "１２３４５６７８K")
// to its comparable form: compatibility-normalized, upper case, letters and
// digits only.
func NormalizeNationalID(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	s = upper.String(norm.NFKC.String(s))
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return -1
	}, s)
}

// LaborBook is a LaborLookup over an in-memory slice of records.
type LaborBook struct {
	records []LaborCostRecord
}

// NewLaborBook copies records into a lookup book.
func NewLaborBook(records []LaborCostRecord) *LaborBook {
	cp := make([]LaborCostRecord, len(records))
	copy(cp, records)
	return &LaborBook{records: cp}
}

// Lookup implements LaborLookup.
func (b *LaborBook) Lookup(employee Employee, period Period) (LaborCostRecord, bool) {
	if b == nil {
		return LaborCostRecord{}, false
	}
	return Resolve(employee, period, b.records)
}

// Len returns the number of records held.
func (b *LaborBook) Len() int {
	if b == nil {
		return 0
	}
	return len(b.records)
}

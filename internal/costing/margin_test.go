package costing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSolveMultiplierOnSaleBase(t *testing.T) {
	m, err := SolveMultiplier(60000, 80000, decimal.NewFromInt(20), BaseSale)

	require.NoError(t, err)
	assert.True(t, m.K.Equal(decimal.RequireFromString("1.25")), "k = %s", m.K)
	assert.Equal(t, int64(100000), m.SaleTarget)
	assert.False(t, m.Ignored)
}

func TestSolveMultiplierOnCostBase(t *testing.T) {
	m, err := SolveMultiplier(60000, 80000, decimal.NewFromInt(40), BaseCost)

	require.NoError(t, err)
	assert.Equal(t, int64(100000), m.SaleTarget)
	assert.True(t, m.K.Equal(decimal.RequireFromString("1.25")), "k = %s", m.K)
}

func TestSolveMultiplierZeroTargetIsIdentity(t *testing.T) {
	for _, base := range []MarginBase{BaseSale, BaseCost} {
		m, err := SolveMultiplier(50000, 80000, decimal.Zero, base)
		require.NoError(t, err)
		assert.True(t, m.K.Equal(decimal.NewFromInt(1)))
		assert.False(t, m.Ignored)
	}
}

func TestSolveMultiplierRejectsOutOfRangeTargets(t *testing.T) {
	for _, pct := range []string{"100", "150", "-0.5"} {
		_, err := SolveMultiplier(1, 1, decimal.RequireFromString(pct), BaseSale)
		assert.ErrorIs(t, err, ErrMarginOutOfRange, pct)
	}
	_, err := SolveMultiplier(1, 1, decimal.NewFromInt(10), "markup")
	assert.ErrorIs(t, err, ErrInvalidBase)
}

func TestSolveMultiplierDegenerateBaseline(t *testing.T) {
	m, err := SolveMultiplier(0, 0, decimal.NewFromInt(30), BaseSale)

	require.NoError(t, err)
	assert.True(t, m.K.Equal(decimal.NewFromInt(1)))
	assert.True(t, m.Ignored)
	assert.Contains(t, m.Reason, "ignored")
}

func TestMarginPct(t *testing.T) {
	assert.True(t, MarginPct(80000, 100000).Equal(decimal.NewFromInt(20)))
	assert.True(t, MarginPct(1, 3).Equal(decimal.RequireFromString("66.67")))
	assert.True(t, MarginPct(10, 0).IsZero())
}

func TestRecomputeMarginInverseProperty(t *testing.T) {
	book := NewLaborBook([]LaborCostRecord{
		{EmployeeID: ptr(int64(1)), Period: period, HourlyCost: 4321, IndirectCost: 17},
		{EmployeeID: ptr(int64(2)), Period: period, HourlyCost: 9876, IndirectCost: 3},
	})
	in := SaleInput{
		Period: period,
		Lines: []LineInput{
			{Mode: ModeLabor, Quantity: 7, AlphaPct: decimal.NewFromInt(10), Employee: &Employee{ID: 1}},
			{Mode: ModeLabor, Quantity: 3, AlphaPct: decimal.RequireFromString("12.5"), Employee: &Employee{ID: 2}},
			{Mode: ModePurchase, Quantity: 11, AlphaPct: decimal.NewFromInt(5), ManualUnitPrice: ptr(int64(333))},
		},
		Base: BaseSale,
	}

	for _, base := range []MarginBase{BaseSale, BaseCost} {
		for _, target := range []int64{5, 20, 35, 60, 90} {
			in.Base = base
			in.TargetMarginPct = decimal.NewFromInt(target)
			res, err := Recompute(in, Catalogs{Labor: book})
			require.NoError(t, err)

			reference := res.Totals.SaleBaseline
			if base == BaseCost {
				reference = res.Totals.CostTotal
			}
			// Each line rounds once, so the aggregate drifts at most one unit per line.
			want := decimal.NewFromInt(reference).Div(one.Sub(decimal.NewFromInt(target).Div(hundred)))
			drift := decimal.NewFromInt(res.Totals.SaleTotal).Sub(want).Abs()
			assert.True(t, drift.LessThanOrEqual(decimal.NewFromInt(int64(len(in.Lines)))), "%s target %d drift %s", base, target, drift)
			if base == BaseCost {
				got := MarginPct(res.Totals.CostTotal, res.Totals.SaleTotal)
				assert.True(t, got.Sub(decimal.NewFromInt(target)).Abs().LessThan(decimal.RequireFromString("0.1")), "margin %s", got)
			}

			var sum, utilidad int64
			for _, l := range res.Lines {
				sum += l.SaleTotal
				utilidad += l.Utilidad
			}
			assert.Equal(t, res.Totals.SaleTotal, sum)
			assert.Equal(t, res.Totals.Utilidad, utilidad)
		}
	}
}

func TestRecomputeScenarioOnSaleBase(t *testing.T) {
	in := SaleInput{
		Period: period,
		Lines: []LineInput{
			{Mode: ModePurchase, Quantity: 1, AlphaPct: decimal.Zero, ManualUnitPrice: ptr(int64(50000))},
			{Mode: ModePurchase, Quantity: 1, AlphaPct: decimal.Zero, ManualUnitPrice: ptr(int64(30000))},
		},
		TargetMarginPct: decimal.NewFromInt(20),
		Base:            BaseSale,
	}

	res, err := Recompute(in, Catalogs{})

	require.NoError(t, err)
	assert.Equal(t, int64(80000), res.Totals.SaleBaseline)
	assert.Equal(t, int64(100000), res.Totals.SaleTotal)
	assert.Equal(t, int64(62500), res.Lines[0].SaleTotal)
	assert.Equal(t, int64(37500), res.Lines[1].SaleTotal)
	assert.True(t, res.Totals.MarginPct.Equal(decimal.NewFromInt(20)))
	assert.Nil(t, res.Notice)
}

func TestRecomputeCollectsEveryLineError(t *testing.T) {
	in := SaleInput{
		Period: period,
		Lines: []LineInput{
			{Mode: ModePurchase, Quantity: 0, ManualUnitPrice: ptr(int64(1))},
			{Mode: ModePurchase, Quantity: 1, ManualUnitPrice: ptr(int64(1))},
			{Mode: ModeLabor, Quantity: 1, Employee: &Employee{ID: 5}},
		},
	}

	_, err := Recompute(in, Catalogs{Labor: NewLaborBook(nil)})

	var verrs ValidationErrors
	require.ErrorAs(t, err, &verrs)
	require.Len(t, verrs, 2)
	assert.Equal(t, 0, verrs[0].Index)
	assert.Equal(t, 2, verrs[1].Index)
	assert.ErrorIs(t, err, ErrLaborCostNotFound)
	assert.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestRecomputeReportsIgnoredMargin(t *testing.T) {
	in := SaleInput{
		Period:          period,
		Lines:           []LineInput{{Mode: ModePurchase, Quantity: 3, ManualUnitPrice: ptr(int64(0))}},
		TargetMarginPct: decimal.NewFromInt(25),
	}

	res, err := Recompute(in, Catalogs{})

	require.NoError(t, err)
	require.NotNil(t, res.Notice)
	assert.True(t, res.Multiplier.Ignored)
	assert.Equal(t, BaseSale, res.Multiplier.Base)
	assert.Equal(t, int64(0), res.Totals.SaleTotal)
}

func TestRecomputeRejectsBadInputBeforePricing(t *testing.T) {
	_, err := Recompute(SaleInput{Period: Period{Year: 2025, Month: 13}, Lines: []LineInput{{}}}, Catalogs{})
	assert.ErrorIs(t, err, ErrInvalidPeriod)

	_, err = Recompute(SaleInput{Period: period}, Catalogs{})
	assert.ErrorIs(t, err, ErrNoLines)

	_, err = Recompute(SaleInput{
		Period:          period,
		Lines:           []LineInput{{Mode: ModePurchase, Quantity: 1, ManualUnitPrice: ptr(int64(1))}},
		TargetMarginPct: decimal.NewFromInt(100),
	}, Catalogs{})
	assert.ErrorIs(t, err, ErrMarginOutOfRange)
}

func TestRecomputeIsDeterministic(t *testing.T) {
	in := SaleInput{
		Period: period,
		Lines: []LineInput{
			{Mode: ModePurchase, Quantity: 3, AlphaPct: decimal.NewFromInt(7), ManualUnitPrice: ptr(int64(1001))},
			{Mode: ModePurchase, Quantity: 9, AlphaPct: decimal.NewFromInt(13), ManualUnitPrice: ptr(int64(77))},
		},
		TargetMarginPct: decimal.RequireFromString("33.3"),
	}
	first, err := Recompute(in, Catalogs{})
	require.NoError(t, err)
	second, err := Recompute(in, Catalogs{})
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestRecomputeRejectsTotalsOutOfRange(t *testing.T) {
	big := LineInput{Mode: ModePurchase, Quantity: 1, AlphaPct: decimal.Zero, ManualUnitPrice: ptr(int64(600_000_000_000_000))}
	_, err := Recompute(SaleInput{Period: period, Lines: []LineInput{big, big}}, Catalogs{})
	assert.ErrorIs(t, err, ErrAmountOverflow)

	_, err = Recompute(SaleInput{
		Period:          period,
		Lines:           []LineInput{{Mode: ModePurchase, Quantity: 1, AlphaPct: decimal.Zero, ManualUnitPrice: ptr(int64(100_000_000_000_000))}},
		TargetMarginPct: decimal.RequireFromString("99.99"),
	}, Catalogs{})
	assert.ErrorIs(t, err, ErrAmountOverflow)
}

func TestParseMarginBase(t *testing.T) {
	tests := []struct {
		raw  string
		want MarginBase
	}{
		{"", BaseCost},
		{"sale", BaseSale},
		{"SALE", BaseSale},
		{" Cost ", BaseCost},
	}
	for _, tt := range tests {
		got, err := ParseMarginBase(tt.raw, BaseCost)
		require.NoError(t, err, tt.raw)
		assert.Equal(t, tt.want, got, tt.raw)
	}

	_, err := ParseMarginBase("markup", BaseSale)
	assert.ErrorIs(t, err, ErrInvalidBase)
}

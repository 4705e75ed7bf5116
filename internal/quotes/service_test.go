package quotes

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-costing/internal/glosa"
	"github.com/odyssey-erp/odyssey-costing/internal/sales"
)

// ============================================================================
// FAKES
// ============================================================================

type fakeSales map[int64][]int64

func (f fakeSales) Aggregates(ctx context.Context, ids []int64) ([]glosa.SaleAggregate, error) {
	out := make([]glosa.SaleAggregate, 0, len(ids))
	for _, id := range ids {
		totals, ok := f[id]
		if !ok {
			return nil, fmt.Errorf("%w: sale %d", sales.ErrNotFound, id)
		}
		out = append(out, glosa.SaleAggregate{SaleID: id, LineTotals: totals})
	}
	return out, nil
}

type mockRepository struct {
	quotes map[int64]*Quote
	links  map[int64][]int64
	nextID int64
}

func newMockRepository() *mockRepository {
	return &mockRepository{quotes: make(map[int64]*Quote), links: make(map[int64][]int64), nextID: 1}
}

func (m *mockRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, m)
}

func (m *mockRepository) GetQuote(ctx context.Context, id int64) (*Quote, error) {
	q, ok := m.quotes[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *q
	cp.SaleIDs = m.links[id]
	return &cp, nil
}

func (m *mockRepository) CreateQuote(ctx context.Context, q Quote) (int64, error) {
	for _, existing := range m.quotes {
		if existing.DocNumber == q.DocNumber {
			return 0, fmt.Errorf("%w: doc number %s", ErrAlreadyExists, q.DocNumber)
		}
	}
	q.ID = m.nextID
	q.Glosas = nil
	m.nextID++
	m.quotes[q.ID] = &q
	return q.ID, nil
}

func (m *mockRepository) InsertGlosa(ctx context.Context, g QuoteGlosa) (int64, error) {
	q, ok := m.quotes[g.QuoteID]
	if !ok {
		return 0, ErrNotFound
	}
	g.ID = int64(len(q.Glosas) + 1)
	q.Glosas = append(q.Glosas, g)
	return g.ID, nil
}

func (m *mockRepository) LinkSales(ctx context.Context, quoteID int64, saleIDs []int64) error {
	m.links[quoteID] = append([]int64(nil), saleIDs...)
	return nil
}

type countingRecorder struct {
	conflicts map[string]int
}

func (r *countingRecorder) GlosaConflict(kind string) { r.conflicts[kind]++ }

type fixture struct {
	svc      *Service
	sales    fakeSales
	repo     *mockRepository
	recorder *countingRecorder
	mr       *miniredis.Miniredis
}

func setup(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	f := &fixture{
		sales:    fakeSales{1: {60000, 40000}, 2: {50, 50}, 3: {1}},
		repo:     newMockRepository(),
		recorder: &countingRecorder{conflicts: make(map[string]int)},
		mr:       mr,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.svc = NewService(f.sales, NewSessionStore(client, 30*time.Minute), f.repo, logger, f.recorder)
	return f
}

func ptr[T any](v T) *T { return &v }

func amounts(v *View) []int64 {
	out := make([]int64, len(v.Glosas))
	for i, g := range v.Glosas {
		out[i] = g.Amount
	}
	return out
}

func descriptions(v *View) []string {
	out := make([]string, len(v.Glosas))
	for i, g := range v.Glosas {
		out[i] = g.Description
	}
	return out
}

// ============================================================================
// SESSIONS
// ============================================================================

func TestStartSeedsSingleAutomaticGlosa(t *testing.T) {
	f := setup(t)

	view, err := f.svc.Start(context.Background(), StartSessionRequest{SaleIDs: []int64{1}})
	require.NoError(t, err)

	assert.NotEmpty(t, view.ID)
	assert.Equal(t, int64(100000), view.Target)
	require.Len(t, view.Glosas, 1)
	assert.Equal(t, int64(100000), view.Glosas[0].Amount)
	assert.Equal(t, 1, view.Glosas[0].Order)
	assert.Equal(t, "Services per sale 1", view.Glosas[0].Description)
	assert.Nil(t, view.Conflict)
	assert.Equal(t, view.Target, view.Sum)
}

func TestStartKeepsManualSeeds(t *testing.T) {
	f := setup(t)

	view, err := f.svc.Start(context.Background(), StartSessionRequest{
		SaleIDs: []int64{1},
		Glosas: []GlosaInput{
			{Description: "Materiales", Amount: ptr(int64(30000))},
			{Description: "Mano de obra"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{30000, 70000}, amounts(view))
	assert.True(t, view.Glosas[0].Manual)
	assert.False(t, view.Glosas[1].Manual)
}

func TestStartRecordsConflictInsteadOfFailing(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	view, err := f.svc.Start(ctx, StartSessionRequest{
		SaleIDs: []int64{1},
		Glosas: []GlosaInput{
			{Description: "A", Amount: ptr(int64(120000))},
			{Description: "B"},
		},
	})
	require.NoError(t, err)
	require.NotNil(t, view.Conflict)
	assert.Equal(t, glosa.ConflictExcess, view.Conflict.Kind)
	assert.Equal(t, int64(20000), view.Conflict.Difference)
	assert.Equal(t, []int64{120000, 0}, amounts(view))
	assert.Equal(t, 1, f.recorder.conflicts[string(glosa.ConflictExcess)])

	_, err = f.svc.Save(ctx, view.ID, SaveQuoteRequest{DocNumber: "C-1", ClientName: "ACME"}, 1)
	assert.ErrorIs(t, err, ErrUnresolvedConflict)
}

func TestStartRejectsUnknownSalesAndBadSeeds(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.Start(ctx, StartSessionRequest{SaleIDs: []int64{404}})
	assert.ErrorIs(t, err, sales.ErrNotFound)

	_, err = f.svc.Start(ctx, StartSessionRequest{SaleIDs: []int64{1}, Glosas: []GlosaInput{{Description: "  "}}})
	assert.ErrorIs(t, err, glosa.ErrInvalidGlosa)

	_, err = f.svc.Start(ctx, StartSessionRequest{SaleIDs: []int64{1}, Glosas: []GlosaInput{{Description: "A", DiscountPct: "120"}}})
	assert.ErrorIs(t, err, ErrInvalidDiscount)
}

func TestConflictResolvesOnFollowingEdit(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	view, err := f.svc.Start(ctx, StartSessionRequest{
		SaleIDs: []int64{2},
		Glosas:  []GlosaInput{{Description: "A"}, {Description: "B"}},
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{50, 50}, amounts(view))

	view, err = f.svc.SetManual(ctx, view.ID, 0, 150)
	require.NoError(t, err)
	require.NotNil(t, view.Conflict)
	assert.Equal(t, []int64{150, 50}, amounts(view))

	view, err = f.svc.SetManual(ctx, view.ID, 0, 80)
	require.NoError(t, err)
	assert.Nil(t, view.Conflict)
	assert.Equal(t, []int64{80, 20}, amounts(view))

	view, err = f.svc.ClearManual(ctx, view.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, []int64{50, 50}, amounts(view))

	stored, err := f.svc.Get(ctx, view.ID)
	require.NoError(t, err)
	assert.Equal(t, amounts(view), amounts(stored))
	assert.Equal(t, descriptions(view), descriptions(stored))
}

func TestStructuralEditsReallocate(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	view, err := f.svc.Start(ctx, StartSessionRequest{SaleIDs: []int64{2}, Glosas: []GlosaInput{{Description: "A"}}})
	require.NoError(t, err)

	view, err = f.svc.AddGlosa(ctx, view.ID, "B")
	require.NoError(t, err)
	view, err = f.svc.AddGlosa(ctx, view.ID, "C")
	require.NoError(t, err)
	assert.Equal(t, []int64{33, 33, 34}, amounts(view))

	view, err = f.svc.MoveGlosa(ctx, view.ID, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, "C", view.Glosas[0].Description)
	assert.Equal(t, []int64{33, 33, 34}, amounts(view))
	assert.Equal(t, "B", view.Glosas[2].Description)

	view, err = f.svc.RenameGlosa(ctx, view.ID, 1, "  A2 ")
	require.NoError(t, err)
	assert.Equal(t, "A2", view.Glosas[1].Description)

	view, err = f.svc.RemoveGlosa(ctx, view.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, []int64{50, 50}, amounts(view))
	assert.Equal(t, []int{1, 2}, []int{view.Glosas[0].Order, view.Glosas[1].Order})
}

func TestRejectedEditLeavesSessionUntouched(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	view, err := f.svc.Start(ctx, StartSessionRequest{SaleIDs: []int64{2}, Glosas: []GlosaInput{{Description: "A"}, {Description: "B"}}})
	require.NoError(t, err)

	_, err = f.svc.RenameGlosa(ctx, view.ID, 0, "")
	assert.ErrorIs(t, err, glosa.ErrInvalidGlosa)
	_, err = f.svc.SetManual(ctx, view.ID, 5, 10)
	assert.ErrorIs(t, err, glosa.ErrIndexOutOfRange)
	_, err = f.svc.SetDiscount(ctx, view.ID, 0, "-5")
	assert.ErrorIs(t, err, ErrInvalidDiscount)

	stored, err := f.svc.Get(ctx, view.ID)
	require.NoError(t, err)
	assert.Equal(t, amounts(view), amounts(stored))
	assert.Equal(t, descriptions(view), descriptions(stored))
}

func TestSetDiscountOnlyAffectsSummary(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	view, err := f.svc.Start(ctx, StartSessionRequest{SaleIDs: []int64{1}, Glosas: []GlosaInput{{Description: "A"}, {Description: "B"}}})
	require.NoError(t, err)

	view, err = f.svc.SetDiscount(ctx, view.ID, 1, "12,5")
	require.NoError(t, err)
	assert.Equal(t, []int64{50000, 50000}, amounts(view))
	assert.Equal(t, int64(6250), view.Summary.Discount)
	assert.Equal(t, int64(93750), view.Summary.Net)
}

func TestUnknownAndExpiredSessions(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.Get(ctx, "not-a-uuid")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	view, err := f.svc.Start(ctx, StartSessionRequest{SaleIDs: []int64{3}})
	require.NoError(t, err)

	f.mr.FastForward(31 * time.Minute)
	_, err = f.svc.Get(ctx, view.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = f.svc.AddGlosa(ctx, view.ID, "late")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestDiscardDropsSession(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	view, err := f.svc.Start(ctx, StartSessionRequest{SaleIDs: []int64{3}})
	require.NoError(t, err)
	require.NoError(t, f.svc.Discard(ctx, view.ID))

	_, err = f.svc.Get(ctx, view.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

// ============================================================================
// SAVE
// ============================================================================

func TestSavePersistsQuoteAndClosesSession(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	view, err := f.svc.Start(ctx, StartSessionRequest{
		SaleIDs: []int64{1, 2},
		Glosas: []GlosaInput{
			{Description: "Materiales", Amount: ptr(int64(30000)), DiscountPct: "10"},
			{Description: "Servicios"},
		},
	})
	require.NoError(t, err)

	quote, err := f.svc.Save(ctx, view.ID, SaveQuoteRequest{DocNumber: " C-100 ", ClientName: "ACME"}, 9)
	require.NoError(t, err)

	assert.Equal(t, "C-100", quote.DocNumber)
	assert.Equal(t, int64(100100), quote.Subtotal)
	assert.Equal(t, int64(3000), quote.Discount)
	assert.Equal(t, int64(97100), quote.Net)
	require.Len(t, quote.Glosas, 2)
	assert.Equal(t, int64(70100), quote.Glosas[1].Amount)
	assert.Equal(t, 2, quote.Glosas[1].LineOrder)

	stored, err := f.svc.GetQuote(ctx, quote.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, stored.SaleIDs)
	assert.Len(t, stored.Glosas, 2)

	_, err = f.svc.Get(ctx, view.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSaveRefusesStaleTarget(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	view, err := f.svc.Start(ctx, StartSessionRequest{SaleIDs: []int64{2}})
	require.NoError(t, err)
	f.sales[2] = []int64{60, 50}

	_, err = f.svc.Save(ctx, view.ID, SaveQuoteRequest{DocNumber: "C-2", ClientName: "ACME"}, 1)
	assert.ErrorIs(t, err, ErrStaleTarget)
	assert.Empty(t, f.repo.quotes)
}

func TestSaveRejectsDuplicateDocNumber(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	first, err := f.svc.Start(ctx, StartSessionRequest{SaleIDs: []int64{3}})
	require.NoError(t, err)
	_, err = f.svc.Save(ctx, first.ID, SaveQuoteRequest{DocNumber: "C-3", ClientName: "ACME"}, 1)
	require.NoError(t, err)

	second, err := f.svc.Start(ctx, StartSessionRequest{SaleIDs: []int64{3}})
	require.NoError(t, err)
	_, err = f.svc.Save(ctx, second.ID, SaveQuoteRequest{DocNumber: "C-3", ClientName: "ACME"}, 1)
	assert.ErrorIs(t, err, ErrAlreadyExists)

	_, err = f.svc.Get(ctx, second.ID)
	assert.NoError(t, err)
}

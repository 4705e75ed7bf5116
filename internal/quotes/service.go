package quotes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-costing/internal/costing"
	"github.com/odyssey-erp/odyssey-costing/internal/glosa"
)

var (
	// ErrUnresolvedConflict blocks saving while manual amounts disagree with the target.
	ErrUnresolvedConflict = errors.New("glosa amounts conflict with the quote subtotal")
	// ErrUnbalanced reports glosas that do not add up to the target.
	ErrUnbalanced = errors.New("glosa amounts do not add up to the quote subtotal")
	// ErrStaleTarget reports sales whose totals changed after the session started.
	ErrStaleTarget = errors.New("sale totals changed since the quote session started")
	// ErrInvalidDiscount reports a discount outside 0..100.
	ErrInvalidDiscount = errors.New("discount must be between 0 and 100")
)

// SalesReader reduces sales to the line totals a quote is built on.
type SalesReader interface {
	Aggregates(ctx context.Context, ids []int64) ([]glosa.SaleAggregate, error)
}

// Recorder receives allocation outcomes worth counting.
type Recorder interface {
	GlosaConflict(kind string)
}

type nopRecorder struct{}

func (nopRecorder) GlosaConflict(string) {}

// Service drives quote editing sessions and saves finished quotes.
type Service struct {
	sales    SalesReader
	sessions *SessionStore
	repo     Repository
	logger   *slog.Logger
	metrics  Recorder
}

// NewService constructs the quote service. metrics may be nil.
func NewService(sales SalesReader, sessions *SessionStore, repo Repository, logger *slog.Logger, metrics Recorder) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = nopRecorder{}
	}
	return &Service{
		sales:    sales,
		sessions: sessions,
		repo:     repo,
		logger:   logger,
		metrics:  metrics,
	}
}

// ============================================================================
// SESSIONS
// ============================================================================

// Start opens an editing session over the given sales. Without seed glosas a
// single automatic line carries the whole subtotal. A conflict among the seeds
// is kept on the session for the caller to resolve.
func (s *Service) Start(ctx context.Context, req StartSessionRequest) (*View, error) {
	target, err := s.target(ctx, req.SaleIDs)
	if err != nil {
		return nil, err
	}

	seeds := make([]glosa.Glosa, 0, len(req.Glosas))
	for i, in := range req.Glosas {
		g := glosa.Glosa{Description: strings.TrimSpace(in.Description)}
		if in.Amount != nil {
			g.Amount = *in.Amount
			g.Manual = true
		}
		if strings.TrimSpace(in.DiscountPct) != "" {
			pct, err := parseDiscount(in.DiscountPct)
			if err != nil {
				return nil, fmt.Errorf("glosa %d: %w", i+1, err)
			}
			g.DiscountPct = pct
		}
		seeds = append(seeds, g)
	}
	if len(seeds) == 0 {
		seeds = append(seeds, glosa.Glosa{Description: defaultDescription(req.SaleIDs)})
	}

	sess := &Session{SaleIDs: req.SaleIDs, Target: target}
	allocated, err := glosa.Allocate(seeds, target)
	if err := s.settle(sess, allocated, err); err != nil {
		return nil, err
	}
	if err := s.sessions.Create(ctx, sess); err != nil {
		return nil, err
	}
	return newView(sess), nil
}

// Get returns the current state of a session.
func (s *Service) Get(ctx context.Context, id string) (*View, error) {
	sess, err := s.sessions.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	return newView(sess), nil
}

// Discard drops a session without saving.
func (s *Service) Discard(ctx context.Context, id string) error {
	return s.sessions.Delete(ctx, id)
}

// SetManual pins line i to amount and redistributes the rest.
func (s *Service) SetManual(ctx context.Context, id string, i int, amount int64) (*View, error) {
	return s.edit(ctx, id, func(gs []glosa.Glosa, target int64) ([]glosa.Glosa, error) {
		return glosa.SetManual(gs, i, amount, target)
	})
}

// ClearManual returns line i to automatic allocation.
func (s *Service) ClearManual(ctx context.Context, id string, i int) (*View, error) {
	return s.edit(ctx, id, func(gs []glosa.Glosa, target int64) ([]glosa.Glosa, error) {
		return glosa.ClearManual(gs, i, target)
	})
}

// AddGlosa appends an automatic line.
func (s *Service) AddGlosa(ctx context.Context, id, description string) (*View, error) {
	return s.edit(ctx, id, func(gs []glosa.Glosa, target int64) ([]glosa.Glosa, error) {
		return glosa.Add(gs, strings.TrimSpace(description), target)
	})
}

// RemoveGlosa deletes line i.
func (s *Service) RemoveGlosa(ctx context.Context, id string, i int) (*View, error) {
	return s.edit(ctx, id, func(gs []glosa.Glosa, target int64) ([]glosa.Glosa, error) {
		return glosa.Remove(gs, i, target)
	})
}

// MoveGlosa moves line from to position to.
func (s *Service) MoveGlosa(ctx context.Context, id string, from, to int) (*View, error) {
	return s.edit(ctx, id, func(gs []glosa.Glosa, target int64) ([]glosa.Glosa, error) {
		return glosa.Move(gs, from, to, target)
	})
}

// RenameGlosa replaces the description of line i.
func (s *Service) RenameGlosa(ctx context.Context, id string, i int, description string) (*View, error) {
	return s.edit(ctx, id, func(gs []glosa.Glosa, target int64) ([]glosa.Glosa, error) {
		return glosa.Rename(gs, i, strings.TrimSpace(description), target)
	})
}

// SetDiscount changes the display discount of line i. Amounts are unaffected.
func (s *Service) SetDiscount(ctx context.Context, id string, i int, raw string) (*View, error) {
	pct, err := parseDiscount(raw)
	if err != nil {
		return nil, err
	}
	return s.edit(ctx, id, func(gs []glosa.Glosa, target int64) ([]glosa.Glosa, error) {
		if i < 0 || i >= len(gs) {
			return nil, fmt.Errorf("%w: %d of %d", glosa.ErrIndexOutOfRange, i+1, len(gs))
		}
		out := append([]glosa.Glosa(nil), gs...)
		out[i].DiscountPct = pct
		return glosa.Allocate(out, target)
	})
}

func (s *Service) edit(ctx context.Context, id string, fn func([]glosa.Glosa, int64) ([]glosa.Glosa, error)) (*View, error) {
	sess, err := s.sessions.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	out, err := fn(sess.Glosas, sess.Target)
	if err := s.settle(sess, out, err); err != nil {
		return nil, err
	}
	if err := s.sessions.Save(ctx, sess); err != nil {
		return nil, err
	}
	return newView(sess), nil
}

// settle stores an allocation outcome on sess. Conflicts keep the edited lines
// so the caller sees what they typed; any other error leaves sess untouched.
func (s *Service) settle(sess *Session, out []glosa.Glosa, err error) error {
	var conflict *glosa.ConflictError
	switch {
	case err == nil:
		sess.Glosas = out
		sess.Conflict = nil
	case errors.As(err, &conflict):
		glosa.Renumber(out)
		sess.Glosas = out
		sess.Conflict = newConflict(conflict)
		s.metrics.GlosaConflict(string(conflict.Kind))
		s.logger.Warn("glosa allocation conflict",
			slog.String("session_id", sess.ID),
			slog.String("kind", string(conflict.Kind)),
			slog.Int64("manual_sum", conflict.ManualSum),
			slog.Int64("target", conflict.Target),
			slog.Int64("difference", conflict.Difference()),
		)
	default:
		return err
	}
	return nil
}

func (s *Service) target(ctx context.Context, saleIDs []int64) (int64, error) {
	aggs, err := s.sales.Aggregates(ctx, saleIDs)
	if err != nil {
		return 0, fmt.Errorf("load sale totals: %w", err)
	}
	return glosa.TargetFromSales(aggs)
}

// ============================================================================
// QUOTES
// ============================================================================

// Save persists the session as a quote and closes it. It refuses while a
// conflict is open or when the sales were repriced after the session started.
func (s *Service) Save(ctx context.Context, id string, req SaveQuoteRequest, createdBy int64) (*Quote, error) {
	sess, err := s.sessions.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.Conflict != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnresolvedConflict, sess.Conflict.Message)
	}
	if err := glosa.Validate(sess.Glosas); err != nil {
		return nil, err
	}
	if sum := glosa.Sum(sess.Glosas); sum != sess.Target {
		return nil, fmt.Errorf("%w: %d vs %d", ErrUnbalanced, sum, sess.Target)
	}
	current, err := s.target(ctx, sess.SaleIDs)
	if err != nil {
		return nil, err
	}
	if current != sess.Target {
		return nil, fmt.Errorf("%w: was %d, now %d", ErrStaleTarget, sess.Target, current)
	}

	summary := glosa.Rollup(sess.Glosas)
	quote := Quote{
		DocNumber:  strings.TrimSpace(req.DocNumber),
		ClientName: strings.TrimSpace(req.ClientName),
		Status:     QuoteStatusDraft,
		SaleIDs:    sess.SaleIDs,
		Subtotal:   sess.Target,
		Discount:   summary.Discount,
		Net:        summary.Net,
		Notes:      req.Notes,
		CreatedBy:  createdBy,
		Glosas:     make([]QuoteGlosa, len(sess.Glosas)),
	}
	for i, g := range sess.Glosas {
		line := summary.Lines[i]
		quote.Glosas[i] = QuoteGlosa{
			LineOrder:   g.Order,
			Description: g.Description,
			Amount:      g.Amount,
			Manual:      g.Manual,
			DiscountPct: line.DiscountPct,
			Discount:    line.Discount,
			Net:         line.Net,
		}
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		quoteID, err := tx.CreateQuote(ctx, quote)
		if err != nil {
			return err
		}
		quote.ID = quoteID
		for i := range quote.Glosas {
			quote.Glosas[i].QuoteID = quoteID
			glosaID, err := tx.InsertGlosa(ctx, quote.Glosas[i])
			if err != nil {
				return fmt.Errorf("insert glosa %d: %w", i+1, err)
			}
			quote.Glosas[i].ID = glosaID
		}
		return tx.LinkSales(ctx, quoteID, quote.SaleIDs)
	})
	if err != nil {
		return nil, fmt.Errorf("save quote: %w", err)
	}

	if err := s.sessions.Delete(ctx, id); err != nil {
		s.logger.Warn("drop saved quote session", slog.String("session_id", id), slog.Any("error", err))
	}
	s.logger.Info("quote saved",
		slog.Int64("quote_id", quote.ID),
		slog.String("doc_number", quote.DocNumber),
		slog.Int64("subtotal", quote.Subtotal),
	)
	return &quote, nil
}

// GetQuote retrieves a saved quote with its glosas.
func (s *Service) GetQuote(ctx context.Context, id int64) (*Quote, error) {
	return s.repo.GetQuote(ctx, id)
}

func parseDiscount(raw string) (decimal.Decimal, error) {
	pct, err := costing.ParsePercent(raw)
	if err != nil {
		return decimal.Zero, err
	}
	if pct.IsNegative() || pct.GreaterThan(decimal.NewFromInt(100)) {
		return decimal.Zero, fmt.Errorf("%w: got %s", ErrInvalidDiscount, pct.String())
	}
	return pct, nil
}

func defaultDescription(saleIDs []int64) string {
	ids := make([]string, len(saleIDs))
	for i, id := range saleIDs {
		ids[i] = strconv.FormatInt(id, 10)
	}
	return "Services per sale " + strings.Join(ids, ", ")
}

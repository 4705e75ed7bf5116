package sales

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/odyssey-erp/odyssey-costing/internal/costing"
	"github.com/odyssey-erp/odyssey-costing/internal/glosa"
)

// Recorder receives costing outcomes worth counting.
type Recorder interface {
	MarginIgnored()
	CostingRejected()
}

type nopRecorder struct{}

func (nopRecorder) MarginIgnored()   {}
func (nopRecorder) CostingRejected() {}

// ServiceConfig tunes pricing defaults.
type ServiceConfig struct {
	DefaultBase costing.MarginBase
}

// Service provides business logic for sale costing.
type Service struct {
	repo        Repository
	cache       *Cache
	logger      *slog.Logger
	metrics     Recorder
	defaultBase costing.MarginBase
}

// NewService constructs a sales service. cache and metrics may be nil.
func NewService(repo Repository, cache *Cache, logger *slog.Logger, metrics Recorder, cfg ServiceConfig) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = nopRecorder{}
	}
	base := cfg.DefaultBase
	if base == "" {
		base = costing.BaseSale
	}
	return &Service{
		repo:        repo,
		cache:       cache,
		logger:      logger,
		metrics:     metrics,
		defaultBase: base,
	}
}

// IsValidation reports whether err was caused by the submitted inputs rather
// than by storage or lookups failing.
func IsValidation(err error) bool {
	var verrs costing.ValidationErrors
	return errors.As(err, &verrs) ||
		errors.Is(err, costing.ErrInvalidPercent) ||
		errors.Is(err, costing.ErrMarginOutOfRange) ||
		errors.Is(err, costing.ErrInvalidBase) ||
		errors.Is(err, costing.ErrInvalidPeriod) ||
		errors.Is(err, costing.ErrNoLines) ||
		errors.Is(err, costing.ErrAmountOverflow)
}

// ============================================================================
// PRICING
// ============================================================================

// Preview prices req with the current labor costs and day-type catalog.
func (s *Service) Preview(ctx context.Context, req PreviewRequest) (*costing.SaleResult, error) {
	res, _, err := s.price(ctx, req)
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *Service) price(ctx context.Context, req PreviewRequest) (*costing.SaleResult, costing.SaleInput, error) {
	in, err := s.buildInput(ctx, req)
	if err != nil {
		s.rejected(err)
		return nil, in, err
	}
	cat, err := s.catalogs(ctx, in.Period)
	if err != nil {
		return nil, in, err
	}
	res, err := costing.Recompute(in, cat)
	if err != nil {
		s.rejected(err)
		return nil, in, err
	}
	if res.Notice != nil {
		s.metrics.MarginIgnored()
		s.logger.Warn("margin target ignored",
			slog.String("period", in.Period.String()),
			slog.String("target_pct", in.TargetMarginPct.String()),
			slog.Int64("cost_total", res.Totals.CostTotal),
			slog.Int64("sale_baseline", res.Totals.SaleBaseline),
			slog.String("reason", *res.Notice),
		)
	}
	return &res, in, nil
}

func (s *Service) rejected(err error) {
	if IsValidation(err) {
		s.metrics.CostingRejected()
	}
}

func (s *Service) buildInput(ctx context.Context, req PreviewRequest) (costing.SaleInput, error) {
	target, err := costing.ParseMarginPct(req.TargetMarginPct)
	if err != nil {
		return costing.SaleInput{}, err
	}
	base, err := costing.ParseMarginBase(req.MarginBase, s.defaultBase)
	if err != nil {
		return costing.SaleInput{}, err
	}

	employees, err := s.employees(ctx, req.Lines)
	if err != nil {
		return costing.SaleInput{}, err
	}

	lines := make([]costing.LineInput, len(req.Lines))
	for i, l := range req.Lines {
		line := costing.LineInput{
			Mode:             costing.Mode(strings.ToUpper(strings.TrimSpace(l.Mode))),
			Description:      strings.TrimSpace(l.Description),
			Quantity:         l.Quantity,
			DayTypeID:        l.DayTypeID,
			AlphaPct:         costing.NormalizeAlpha(l.AlphaPct),
			ManualUnitPrice:  l.ManualUnitPrice,
			CatalogUnitPrice: l.CatalogUnitPrice,
		}
		if l.EmployeeID != nil {
			emp, ok := employees[*l.EmployeeID]
			if !ok {
				emp = costing.Employee{ID: *l.EmployeeID}
			}
			line.Employee = &emp
		}
		lines[i] = line
	}

	return costing.SaleInput{
		Period:          req.Period,
		Lines:           lines,
		TargetMarginPct: target,
		Base:            base,
	}, nil
}

func (s *Service) employees(ctx context.Context, lines []LineRequest) (map[int64]costing.Employee, error) {
	seen := make(map[int64]struct{})
	var ids []int64
	for _, l := range lines {
		if l.EmployeeID == nil {
			continue
		}
		if _, ok := seen[*l.EmployeeID]; ok {
			continue
		}
		seen[*l.EmployeeID] = struct{}{}
		ids = append(ids, *l.EmployeeID)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	list, err := s.repo.Employees(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load employees: %w", err)
	}
	out := make(map[int64]costing.Employee, len(list))
	for _, e := range list {
		out[e.ID] = e
	}
	return out, nil
}

func (s *Service) catalogs(ctx context.Context, period costing.Period) (costing.Catalogs, error) {
	records, err := s.cache.LaborCosts(ctx, period, s.repo.LaborCosts)
	if err != nil {
		return costing.Catalogs{}, fmt.Errorf("load labor costs %s: %w", period, err)
	}
	dayTypes, err := s.cache.DayTypes(ctx, s.repo.DayTypes)
	if err != nil {
		return costing.Catalogs{}, fmt.Errorf("load day types: %w", err)
	}
	return costing.Catalogs{
		Labor:      costing.NewLaborBook(records),
		Surcharges: costing.NewSurchargeCatalog(dayTypes),
	}, nil
}

// InvalidateLaborCosts drops cached labor costs and day types, typically after
// an import replaced them.
func (s *Service) InvalidateLaborCosts(ctx context.Context) error {
	return s.cache.Bump(ctx)
}

// ============================================================================
// SALE OPERATIONS
// ============================================================================

// Create prices req and persists it as a draft sale. A margin target that had
// to be ignored is stored with its notice rather than rejected.
func (s *Service) Create(ctx context.Context, req CreateSaleRequest, createdBy int64) (*Sale, error) {
	res, in, err := s.price(ctx, req.PreviewRequest)
	if err != nil {
		return nil, err
	}

	sale := Sale{
		DocNumber:       strings.TrimSpace(req.DocNumber),
		ClientName:      strings.TrimSpace(req.ClientName),
		Period:          in.Period,
		Status:          SaleStatusDraft,
		TargetMarginPct: in.TargetMarginPct,
		MarginBase:      res.Multiplier.Base,
		CreatedBy:       createdBy,
	}
	applyResult(&sale, res)
	sale.Lines = saleLines(req.Lines, in.Lines, res)

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.CreateSale(ctx, sale)
		if err != nil {
			return err
		}
		sale.ID = id
		for i := range sale.Lines {
			sale.Lines[i].SaleID = id
			lineID, err := tx.InsertSaleLine(ctx, sale.Lines[i])
			if err != nil {
				return fmt.Errorf("insert line %d: %w", i+1, err)
			}
			sale.Lines[i].ID = lineID
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("create sale: %w", err)
	}

	s.logger.Info("sale created",
		slog.Int64("sale_id", sale.ID),
		slog.String("doc_number", sale.DocNumber),
		slog.Int64("sale_total", sale.SaleTotal),
	)
	return &sale, nil
}

// Get retrieves a sale with its lines.
func (s *Service) Get(ctx context.Context, id int64) (*Sale, error) {
	return s.repo.GetSale(ctx, id)
}

// Recost prices a draft sale again from its stored inputs and the labor costs
// currently on record, replacing its lines and totals.
func (s *Service) Recost(ctx context.Context, id int64) (*Sale, error) {
	sale, err := s.repo.GetSale(ctx, id)
	if err != nil {
		return nil, err
	}
	if sale.Status != SaleStatusDraft {
		return nil, fmt.Errorf("%w: sale %d is %s", ErrNotDraft, id, sale.Status)
	}

	req := PreviewRequest{
		Period:          sale.Period,
		TargetMarginPct: sale.TargetMarginPct.String(),
		MarginBase:      string(sale.MarginBase),
		Lines:           make([]LineRequest, len(sale.Lines)),
	}
	for i, l := range sale.Lines {
		req.Lines[i] = l.request()
	}

	res, in, err := s.price(ctx, req)
	if err != nil {
		return nil, err
	}
	applyResult(sale, res)
	sale.Lines = saleLines(req.Lines, in.Lines, res)

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		ids, err := tx.ReplaceSaleLines(ctx, sale.ID, sale.Lines)
		if err != nil {
			return err
		}
		for i := range sale.Lines {
			sale.Lines[i].ID = ids[i]
			sale.Lines[i].SaleID = sale.ID
		}
		return tx.UpdateSaleTotals(ctx, *sale)
	})
	if err != nil {
		return nil, fmt.Errorf("recost sale %d: %w", id, err)
	}
	return sale, nil
}

// RecostPeriod recosts every draft sale of period. Sales whose inputs no
// longer price (a labor cost was removed, say) are reported and skipped.
func (s *Service) RecostPeriod(ctx context.Context, period costing.Period) (RecostSummary, error) {
	summary := RecostSummary{Period: period}
	if !period.Valid() {
		return summary, fmt.Errorf("%w: %s", costing.ErrInvalidPeriod, period)
	}
	ids, err := s.repo.DraftSalesForPeriod(ctx, period)
	if err != nil {
		return summary, fmt.Errorf("list draft sales: %w", err)
	}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		if _, err := s.Recost(ctx, id); err != nil {
			if IsValidation(err) {
				s.logger.Warn("sale skipped during recost",
					slog.Int64("sale_id", id),
					slog.Any("error", err),
				)
				summary.Failed = append(summary.Failed, id)
				continue
			}
			return summary, err
		}
		summary.Recosted++
	}
	return summary, nil
}

// Aggregates reduces the given sales to their line totals, the basis for a
// quote's target subtotal.
func (s *Service) Aggregates(ctx context.Context, ids []int64) ([]glosa.SaleAggregate, error) {
	return s.repo.SaleAggregates(ctx, ids)
}

func applyResult(sale *Sale, res *costing.SaleResult) {
	sale.Multiplier = res.Multiplier.K
	sale.MarginBase = res.Multiplier.Base
	sale.Notice = res.Notice
	sale.CostTotal = res.Totals.CostTotal
	sale.SaleBaseline = res.Totals.SaleBaseline
	sale.SaleTotal = res.Totals.SaleTotal
	sale.Utilidad = res.Totals.Utilidad
	sale.MarginPct = res.Totals.MarginPct
}

func saleLines(reqs []LineRequest, inputs []costing.LineInput, res *costing.SaleResult) []SaleLine {
	lines := make([]SaleLine, len(res.Lines))
	for i, priced := range res.Lines {
		lines[i] = SaleLine{
			LineOrder:        i + 1,
			Mode:             priced.Mode,
			Description:      priced.Description,
			Quantity:         priced.Quantity,
			DayTypeID:        inputs[i].DayTypeID,
			AlphaPct:         priced.AlphaPct,
			EmployeeID:       reqs[i].EmployeeID,
			ManualUnitPrice:  inputs[i].ManualUnitPrice,
			CatalogUnitPrice: inputs[i].CatalogUnitPrice,
			UnitCost:         priced.UnitCost,
			CostTotal:        priced.CostTotal,
			Surcharge:        priced.Surcharge,
			CostBase:         priced.CostBase,
			SaleBaseline:     priced.SaleBaseline,
			SaleTotal:        priced.SaleTotal,
			Utilidad:         priced.Utilidad,
			MarginPct:        priced.MarginPct,
		}
	}
	return lines
}

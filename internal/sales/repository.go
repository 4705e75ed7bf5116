package sales

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-costing/internal/costing"
	"github.com/odyssey-erp/odyssey-costing/internal/glosa"
	"github.com/odyssey-erp/odyssey-costing/internal/platform/db"
)

var (
	ErrNotFound      = errors.New("record not found")
	ErrNotDraft      = errors.New("sale is not a draft")
	ErrAlreadyExists = errors.New("record already exists")
)

// Repository is the read side plus the transaction entry point used by Service.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	LaborCosts(ctx context.Context, period costing.Period) ([]costing.LaborCostRecord, error)
	DayTypes(ctx context.Context) ([]costing.DayTypeSurcharge, error)
	Employees(ctx context.Context, ids []int64) ([]costing.Employee, error)
	GetSale(ctx context.Context, id int64) (*Sale, error)
	SaleAggregates(ctx context.Context, ids []int64) ([]glosa.SaleAggregate, error)
	DraftSalesForPeriod(ctx context.Context, period costing.Period) ([]int64, error)
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	CreateSale(ctx context.Context, sale Sale) (int64, error)
	InsertSaleLine(ctx context.Context, line SaleLine) (int64, error)
	ReplaceSaleLines(ctx context.Context, saleID int64, lines []SaleLine) ([]int64, error)
	UpdateSaleTotals(ctx context.Context, sale Sale) error
}

type dbtx interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// PostgresRepository reads and writes sales through pgx.
type PostgresRepository struct {
	pool *pgxpool.Pool
	db   dbtx
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool, db: pool}
}

type txRepo struct {
	db dbtx
}

// WithTx wraps callback in repeatable-read transaction.
func (r *PostgresRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{db: tx})
	})
}

// ============================================================================
// CATALOGS
// ============================================================================

func (r *PostgresRepository) LaborCosts(ctx context.Context, period costing.Period) ([]costing.LaborCostRecord, error) {
	rows, err := r.db.Query(ctx, `
		SELECT employee_id, COALESCE(national_id, ''), period_year, period_month, hourly_cost, indirect_cost
		FROM labor_costs
		WHERE period_year = $1 AND period_month = $2
		ORDER BY id`, period.Year, period.Month)
	if err != nil {
		return nil, fmt.Errorf("query labor costs: %w", err)
	}
	defer rows.Close()

	var records []costing.LaborCostRecord
	for rows.Next() {
		var (
			rec        costing.LaborCostRecord
			employeeID pgtype.Int8
		)
		if err := rows.Scan(&employeeID, &rec.NationalID, &rec.Period.Year, &rec.Period.Month, &rec.HourlyCost, &rec.IndirectCost); err != nil {
			return nil, err
		}
		if employeeID.Valid {
			id := employeeID.Int64
			rec.EmployeeID = &id
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (r *PostgresRepository) DayTypes(ctx context.Context) ([]costing.DayTypeSurcharge, error) {
	rows, err := r.db.Query(ctx, `SELECT id, name, surcharge_amount FROM day_types ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query day types: %w", err)
	}
	defer rows.Close()

	var out []costing.DayTypeSurcharge
	for rows.Next() {
		var dt costing.DayTypeSurcharge
		if err := rows.Scan(&dt.ID, &dt.Name, &dt.FixedAmount); err != nil {
			return nil, err
		}
		out = append(out, dt)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) Employees(ctx context.Context, ids []int64) ([]costing.Employee, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.db.Query(ctx, `SELECT id, COALESCE(national_id, '') FROM employees WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("query employees: %w", err)
	}
	defer rows.Close()

	var out []costing.Employee
	for rows.Next() {
		var e costing.Employee
		if err := rows.Scan(&e.ID, &e.NationalID); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ============================================================================
// SALES
// ============================================================================

func (r *PostgresRepository) GetSale(ctx context.Context, id int64) (*Sale, error) {
	var (
		s                                Sale
		status, base                     string
		targetPct, multiplier, marginPct string
		notice                           pgtype.Text
		createdAt, updatedAt             pgtype.Timestamptz
	)
	err := r.db.QueryRow(ctx, `
		SELECT id, doc_number, client_name, period_year, period_month, status,
		       target_margin_pct::text, margin_base, multiplier::text, notice,
		       cost_total, sale_baseline, sale_total, utilidad, margin_pct::text,
		       created_by, created_at, updated_at
		FROM sales WHERE id = $1`, id).Scan(
		&s.ID, &s.DocNumber, &s.ClientName, &s.Period.Year, &s.Period.Month, &status,
		&targetPct, &base, &multiplier, &notice,
		&s.CostTotal, &s.SaleBaseline, &s.SaleTotal, &s.Utilidad, &marginPct,
		&s.CreatedBy, &createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	s.Status = SaleStatus(status)
	s.MarginBase = costing.MarginBase(base)
	if notice.Valid {
		s.Notice = &notice.String
	}
	s.CreatedAt = createdAt.Time
	s.UpdatedAt = updatedAt.Time
	if s.TargetMarginPct, err = decimal.NewFromString(targetPct); err != nil {
		return nil, fmt.Errorf("sale %d target margin: %w", id, err)
	}
	if s.Multiplier, err = decimal.NewFromString(multiplier); err != nil {
		return nil, fmt.Errorf("sale %d multiplier: %w", id, err)
	}
	if s.MarginPct, err = decimal.NewFromString(marginPct); err != nil {
		return nil, fmt.Errorf("sale %d margin: %w", id, err)
	}

	lines, err := r.saleLines(ctx, id)
	if err != nil {
		return nil, err
	}
	s.Lines = lines
	return &s, nil
}

func (r *PostgresRepository) saleLines(ctx context.Context, saleID int64) ([]SaleLine, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, sale_id, line_order, mode, description, quantity, day_type_id,
		       alpha_pct::text, employee_id, manual_unit_price, catalog_unit_price,
		       unit_cost, cost_total, surcharge, cost_base, sale_baseline, sale_total,
		       utilidad, margin_pct::text
		FROM sale_lines WHERE sale_id = $1 ORDER BY line_order`, saleID)
	if err != nil {
		return nil, fmt.Errorf("query sale lines: %w", err)
	}
	defer rows.Close()

	var lines []SaleLine
	for rows.Next() {
		var (
			l                SaleLine
			mode             string
			alpha, marginPct string
		)
		if err := rows.Scan(
			&l.ID, &l.SaleID, &l.LineOrder, &mode, &l.Description, &l.Quantity, &l.DayTypeID,
			&alpha, &l.EmployeeID, &l.ManualUnitPrice, &l.CatalogUnitPrice,
			&l.UnitCost, &l.CostTotal, &l.Surcharge, &l.CostBase, &l.SaleBaseline, &l.SaleTotal,
			&l.Utilidad, &marginPct,
		); err != nil {
			return nil, err
		}
		l.Mode = costing.Mode(mode)
		if l.AlphaPct, err = decimal.NewFromString(alpha); err != nil {
			return nil, fmt.Errorf("sale line %d alpha: %w", l.ID, err)
		}
		if l.MarginPct, err = decimal.NewFromString(marginPct); err != nil {
			return nil, fmt.Errorf("sale line %d margin: %w", l.ID, err)
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

// SaleAggregates returns the line totals of every requested sale, in request
// order. A missing id yields ErrNotFound.
func (r *PostgresRepository) SaleAggregates(ctx context.Context, ids []int64) ([]glosa.SaleAggregate, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.db.Query(ctx, `
		SELECT s.id, COALESCE(array_agg(l.sale_total ORDER BY l.line_order) FILTER (WHERE l.id IS NOT NULL), '{}')
		FROM sales s
		LEFT JOIN sale_lines l ON l.sale_id = s.id
		WHERE s.id = ANY($1)
		GROUP BY s.id`, ids)
	if err != nil {
		return nil, fmt.Errorf("query sale aggregates: %w", err)
	}
	defer rows.Close()

	found := make(map[int64][]int64, len(ids))
	for rows.Next() {
		var (
			id     int64
			totals []int64
		)
		if err := rows.Scan(&id, &totals); err != nil {
			return nil, err
		}
		found[id] = totals
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]glosa.SaleAggregate, 0, len(ids))
	for _, id := range ids {
		totals, ok := found[id]
		if !ok {
			return nil, fmt.Errorf("%w: sale %d", ErrNotFound, id)
		}
		out = append(out, glosa.SaleAggregate{SaleID: id, LineTotals: totals})
	}
	return out, nil
}

func (r *PostgresRepository) DraftSalesForPeriod(ctx context.Context, period costing.Period) ([]int64, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id FROM sales
		WHERE period_year = $1 AND period_month = $2 AND status = $3
		ORDER BY id`, period.Year, period.Month, string(SaleStatusDraft))
	if err != nil {
		return nil, fmt.Errorf("query draft sales: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ============================================================================
// TRANSACTIONAL WRITES
// ============================================================================

func (t *txRepo) CreateSale(ctx context.Context, s Sale) (int64, error) {
	var id int64
	err := t.db.QueryRow(ctx, `
		INSERT INTO sales (doc_number, client_name, period_year, period_month, status,
		                   target_margin_pct, margin_base, multiplier, notice,
		                   cost_total, sale_baseline, sale_total, utilidad, margin_pct,
		                   created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6::numeric, $7, $8::numeric, $9, $10, $11, $12, $13, $14::numeric, $15, NOW(), NOW())
		RETURNING id`,
		s.DocNumber, s.ClientName, s.Period.Year, s.Period.Month, string(s.Status),
		s.TargetMarginPct.String(), string(s.MarginBase), s.Multiplier.String(), noticeText(s.Notice),
		s.CostTotal, s.SaleBaseline, s.SaleTotal, s.Utilidad, s.MarginPct.String(),
		s.CreatedBy,
	).Scan(&id)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return 0, fmt.Errorf("%w: doc number %s", ErrAlreadyExists, s.DocNumber)
		}
		return 0, err
	}
	return id, nil
}

func (t *txRepo) InsertSaleLine(ctx context.Context, l SaleLine) (int64, error) {
	var id int64
	err := t.db.QueryRow(ctx, `
		INSERT INTO sale_lines (sale_id, line_order, mode, description, quantity, day_type_id,
		                        alpha_pct, employee_id, manual_unit_price, catalog_unit_price,
		                        unit_cost, cost_total, surcharge, cost_base, sale_baseline,
		                        sale_total, utilidad, margin_pct)
		VALUES ($1, $2, $3, $4, $5, $6, $7::numeric, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18::numeric)
		RETURNING id`,
		l.SaleID, l.LineOrder, string(l.Mode), l.Description, l.Quantity, l.DayTypeID,
		l.AlphaPct.String(), l.EmployeeID, l.ManualUnitPrice, l.CatalogUnitPrice,
		l.UnitCost, l.CostTotal, l.Surcharge, l.CostBase, l.SaleBaseline,
		l.SaleTotal, l.Utilidad, l.MarginPct.String(),
	).Scan(&id)
	return id, err
}

// ReplaceSaleLines swaps every line of a sale and returns the new line IDs in
// input order.
func (t *txRepo) ReplaceSaleLines(ctx context.Context, saleID int64, lines []SaleLine) ([]int64, error) {
	if _, err := t.db.Exec(ctx, `DELETE FROM sale_lines WHERE sale_id = $1`, saleID); err != nil {
		return nil, fmt.Errorf("delete sale lines: %w", err)
	}
	ids := make([]int64, 0, len(lines))
	for _, l := range lines {
		l.SaleID = saleID
		id, err := t.InsertSaleLine(ctx, l)
		if err != nil {
			return nil, fmt.Errorf("insert sale line %d: %w", l.LineOrder, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (t *txRepo) UpdateSaleTotals(ctx context.Context, s Sale) error {
	tag, err := t.db.Exec(ctx, `
		UPDATE sales
		SET multiplier = $2::numeric, notice = $3, cost_total = $4, sale_baseline = $5,
		    sale_total = $6, utilidad = $7, margin_pct = $8::numeric, updated_at = NOW()
		WHERE id = $1`,
		s.ID, s.Multiplier.String(), noticeText(s.Notice), s.CostTotal, s.SaleBaseline,
		s.SaleTotal, s.Utilidad, s.MarginPct.String(),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func noticeText(notice *string) pgtype.Text {
	if notice == nil {
		return pgtype.Text{}
	}
	return pgtype.Text{String: *notice, Valid: true}
}

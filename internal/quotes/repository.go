package quotes

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-costing/internal/platform/db"
)

var (
	ErrNotFound      = errors.New("record not found")
	ErrAlreadyExists = errors.New("record already exists")
)

type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetQuote(ctx context.Context, id int64) (*Quote, error)
}

type TxRepository interface {
	CreateQuote(ctx context.Context, quote Quote) (int64, error)
	InsertGlosa(ctx context.Context, line QuoteGlosa) (int64, error)
	LinkSales(ctx context.Context, quoteID int64, saleIDs []int64) error
}

type dbtx interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

type repository struct {
	db   dbtx
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool, pool: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &repository{db: tx, pool: r.pool})
	})
}

func (r *repository) GetQuote(ctx context.Context, id int64) (*Quote, error) {
	var (
		q         Quote
		status    string
		notes     pgtype.Text
		createdAt pgtype.Timestamptz
	)
	err := r.db.QueryRow(ctx, `
		SELECT q.id, q.doc_number, q.client_name, q.status, q.subtotal, q.discount, q.net,
		       q.notes, q.created_by, q.created_at,
		       COALESCE((SELECT array_agg(qs.sale_id ORDER BY qs.sale_id) FROM quote_sales qs WHERE qs.quote_id = q.id), '{}')
		FROM quotes q WHERE q.id = $1`, id).Scan(
		&q.ID, &q.DocNumber, &q.ClientName, &status, &q.Subtotal, &q.Discount, &q.Net,
		&notes, &q.CreatedBy, &createdAt, &q.SaleIDs,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	q.Status = QuoteStatus(status)
	if notes.Valid {
		q.Notes = &notes.String
	}
	q.CreatedAt = createdAt.Time

	rows, err := r.db.Query(ctx, `
		SELECT id, quote_id, line_order, description, amount, manual, discount_pct::text, discount, net
		FROM quote_glosas WHERE quote_id = $1 ORDER BY line_order`, id)
	if err != nil {
		return nil, fmt.Errorf("query quote glosas: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			g   QuoteGlosa
			pct string
		)
		if err := rows.Scan(&g.ID, &g.QuoteID, &g.LineOrder, &g.Description, &g.Amount, &g.Manual, &pct, &g.Discount, &g.Net); err != nil {
			return nil, err
		}
		if g.DiscountPct, err = decimal.NewFromString(pct); err != nil {
			return nil, fmt.Errorf("quote glosa %d discount: %w", g.ID, err)
		}
		q.Glosas = append(q.Glosas, g)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &q, nil
}

func (r *repository) CreateQuote(ctx context.Context, q Quote) (int64, error) {
	var notes pgtype.Text
	if q.Notes != nil {
		notes = pgtype.Text{String: *q.Notes, Valid: true}
	}
	var id int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO quotes (doc_number, client_name, status, subtotal, discount, net, notes, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		RETURNING id`,
		q.DocNumber, q.ClientName, string(q.Status), q.Subtotal, q.Discount, q.Net, notes, q.CreatedBy,
	).Scan(&id)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return 0, fmt.Errorf("%w: doc number %s", ErrAlreadyExists, q.DocNumber)
		}
		return 0, err
	}
	return id, nil
}

func (r *repository) InsertGlosa(ctx context.Context, g QuoteGlosa) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO quote_glosas (quote_id, line_order, description, amount, manual, discount_pct, discount, net)
		VALUES ($1, $2, $3, $4, $5, $6::numeric, $7, $8)
		RETURNING id`,
		g.QuoteID, g.LineOrder, g.Description, g.Amount, g.Manual, g.DiscountPct.String(), g.Discount, g.Net,
	).Scan(&id)
	return id, err
}

func (r *repository) LinkSales(ctx context.Context, quoteID int64, saleIDs []int64) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO quote_sales (quote_id, sale_id)
		SELECT $1, unnest($2::bigint[])`, quoteID, saleIDs)
	return err
}

package purchasing

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brasato/brasato/internal/inventory"
	"github.com/brasato/brasato/internal/ledger"
	"github.com/brasato/brasato/internal/platform/db"
)

// RepositoryPort is the storage surface the purchase coordinator needs.
type RepositoryPort interface {
	WithSettlementTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error
	GetInvoice(ctx context.Context, id int64) (PurchaseInvoice, []InvoiceLine, error)
	ListInvoices(ctx context.Context, f ListFilter) ([]PurchaseInvoice, error)
}

// TxRepository is the write surface inside one purchase settlement.
type TxRepository interface {
	InsertInvoice(ctx context.Context, inv PurchaseInvoice) (PurchaseInvoice, error)
	InsertLine(ctx context.Context, line InvoiceLine) (InvoiceLine, error)
	IncrementStock(ctx context.Context, ingredientID int64, qty float64) (inventory.Ingredient, error)
	InsertMovement(ctx context.Context, m ledger.Movement) (ledger.Movement, error)
}

// Repository is the Postgres-backed implementation.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) WithSettlementTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error {
	return db.WithSerializableTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{q: tx})
	})
}

const invoiceColumns = `id, supplier_name, invoice_number, total_value,
	purchase_date, payment_status, payment_method, payment_date, expected_date,
	notes, created_by, created_at`

func scanInvoice(row pgx.Row) (PurchaseInvoice, error) {
	var inv PurchaseInvoice
	err := row.Scan(&inv.ID, &inv.SupplierName, &inv.InvoiceNumber,
		&inv.TotalValue, &inv.PurchaseDate, &inv.PaymentStatus,
		&inv.PaymentMethod, &inv.PaymentDate, &inv.ExpectedDate, &inv.Notes,
		&inv.CreatedBy, &inv.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return PurchaseInvoice{}, ErrInvoiceNotFound
	}
	return inv, err
}

func (r *Repository) GetInvoice(ctx context.Context, id int64) (PurchaseInvoice, []InvoiceLine, error) {
	inv, err := scanInvoice(r.pool.QueryRow(ctx,
		`SELECT `+invoiceColumns+` FROM purchase_invoices WHERE id = $1`, id))
	if err != nil {
		return PurchaseInvoice{}, nil, err
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, invoice_id, ingredient_id, quantity, unit_cost, line_total
		FROM purchase_invoice_items
		WHERE invoice_id = $1
		ORDER BY id`, id)
	if err != nil {
		return PurchaseInvoice{}, nil, err
	}
	defer rows.Close()
	lines := []InvoiceLine{}
	for rows.Next() {
		var l InvoiceLine
		if err := rows.Scan(&l.ID, &l.InvoiceID, &l.IngredientID, &l.Quantity,
			&l.UnitCost, &l.LineTotal); err != nil {
			return PurchaseInvoice{}, nil, err
		}
		lines = append(lines, l)
	}
	return inv, lines, rows.Err()
}

func (r *Repository) ListInvoices(ctx context.Context, f ListFilter) ([]PurchaseInvoice, error) {
	sql := `SELECT ` + invoiceColumns + ` FROM purchase_invoices WHERE 1=1`
	args := []any{}
	add := func(clause string, v any) {
		args = append(args, v)
		sql += " AND " + clause + "$" + strconv.Itoa(len(args))
	}
	if !f.From.IsZero() {
		add("purchase_date >= ", f.From)
	}
	if !f.To.IsZero() {
		add("purchase_date < ", f.To)
	}
	if f.SupplierName != "" {
		add("supplier_name ILIKE ", "%"+f.SupplierName+"%")
	}
	if f.PaymentStatus != "" {
		add("payment_status = ", f.PaymentStatus)
	}
	sql += " ORDER BY purchase_date DESC, id DESC"
	if f.Limit > 0 {
		sql += " LIMIT " + strconv.Itoa(f.Limit) + " OFFSET " + strconv.Itoa(f.Offset)
	}

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []PurchaseInvoice{}
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

type txRepo struct {
	q db.Queryer
}

func (t *txRepo) InsertInvoice(ctx context.Context, inv PurchaseInvoice) (PurchaseInvoice, error) {
	return scanInvoice(t.q.QueryRow(ctx, `
		INSERT INTO purchase_invoices (
			supplier_name, invoice_number, total_value, purchase_date,
			payment_status, payment_method, payment_date, expected_date,
			notes, created_by
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING `+invoiceColumns,
		inv.SupplierName, inv.InvoiceNumber, inv.TotalValue, inv.PurchaseDate,
		inv.PaymentStatus, inv.PaymentMethod, inv.PaymentDate, inv.ExpectedDate,
		inv.Notes, inv.CreatedBy))
}

func (t *txRepo) InsertLine(ctx context.Context, line InvoiceLine) (InvoiceLine, error) {
	err := t.q.QueryRow(ctx, `
		INSERT INTO purchase_invoice_items (
			invoice_id, ingredient_id, quantity, unit_cost, line_total
		) VALUES ($1,$2,$3,$4,$5)
		RETURNING id`,
		line.InvoiceID, line.IngredientID, line.Quantity, line.UnitCost,
		line.LineTotal).Scan(&line.ID)
	return line, err
}

func (t *txRepo) IncrementStock(ctx context.Context, ingredientID int64, qty float64) (inventory.Ingredient, error) {
	return inventory.IncrementStock(ctx, t.q, ingredientID, qty)
}

func (t *txRepo) InsertMovement(ctx context.Context, m ledger.Movement) (ledger.Movement, error) {
	return ledger.InsertMovement(ctx, t.q, m)
}

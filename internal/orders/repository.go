package orders

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brasato/brasato/internal/inventory"
	"github.com/brasato/brasato/internal/ledger"
	"github.com/brasato/brasato/internal/platform/db"
)

// RepositoryPort is the storage surface the settlement coordinator needs.
type RepositoryPort interface {
	WithSettlementTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error
	GetOrder(ctx context.Context, id int64) (Order, error)
	ListOrders(ctx context.Context, status OrderStatus, limit, offset int) ([]Order, error)
}

// TxRepository is the write surface inside one settlement transaction. Every
// method runs against the same serializable transaction, so the stock
// deduction, the movements and the status flip land together or not at all.
type TxRepository interface {
	GetOrderForSettlement(ctx context.Context, id int64) (Order, []OrderItem, error)
	UpdateOrderStatus(ctx context.Context, id int64, status OrderStatus, completedAt time.Time) error
	DeductStock(ctx context.Context, ingredientID int64, qty float64) (inventory.Ingredient, error)
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

const orderColumns = `id, customer_name, payment_method, status, total_value, created_at, completed_at`

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.CustomerName, &o.PaymentMethod, &o.Status,
		&o.TotalValue, &o.CreatedAt, &o.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrOrderNotFound
	}
	return o, err
}

func (r *Repository) GetOrder(ctx context.Context, id int64) (Order, error) {
	return scanOrder(r.pool.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
}

func (r *Repository) ListOrders(ctx context.Context, status OrderStatus, limit, offset int) ([]Order, error) {
	sql := `SELECT ` + orderColumns + ` FROM orders`
	args := []any{}
	if status != "" {
		sql += ` WHERE status = $1`
		args = append(args, status)
	}
	sql += ` ORDER BY created_at DESC, id DESC`
	if limit > 0 {
		args = append(args, limit, offset)
		sql += ` LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))
	}
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

type txRepo struct {
	q db.Queryer
}

func (t *txRepo) GetOrderForSettlement(ctx context.Context, id int64) (Order, []OrderItem, error) {
	order, err := scanOrder(t.q.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return Order{}, nil, err
	}

	rows, err := t.q.Query(ctx, `
		SELECT oi.id, oi.order_id, oi.product_id, p.name, oi.quantity,
		       oi.unit_price, COALESCE(p.cost_price, 0)
		FROM order_items oi
		JOIN products p ON p.id = oi.product_id
		WHERE oi.order_id = $1
		ORDER BY oi.id`, id)
	if err != nil {
		return Order{}, nil, err
	}
	defer rows.Close()
	items := []OrderItem{}
	for rows.Next() {
		var it OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.ProductName,
			&it.Quantity, &it.UnitPrice, &it.CostPrice); err != nil {
			return Order{}, nil, err
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return Order{}, nil, err
	}

	for i := range items {
		recipe, err := t.loadRecipe(ctx, items[i].ProductID)
		if err != nil {
			return Order{}, nil, err
		}
		items[i].Recipe = recipe
	}
	return order, items, nil
}

func (t *txRepo) loadRecipe(ctx context.Context, productID int64) ([]RecipeLine, error) {
	rows, err := t.q.Query(ctx, `
		SELECT ingredient_id, quantity
		FROM product_recipes
		WHERE product_id = $1
		ORDER BY ingredient_id`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	lines := []RecipeLine{}
	for rows.Next() {
		var rl RecipeLine
		if err := rows.Scan(&rl.IngredientID, &rl.Quantity); err != nil {
			return nil, err
		}
		lines = append(lines, rl)
	}
	return lines, rows.Err()
}

func (t *txRepo) UpdateOrderStatus(ctx context.Context, id int64, status OrderStatus, completedAt time.Time) error {
	tag, err := t.q.Exec(ctx, `
		UPDATE orders SET status = $2, completed_at = $3, updated_at = NOW()
		WHERE id = $1`, id, status, completedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func (t *txRepo) DeductStock(ctx context.Context, ingredientID int64, qty float64) (inventory.Ingredient, error) {
	return inventory.DeductStock(ctx, t.q, ingredientID, qty)
}

func (t *txRepo) InsertMovement(ctx context.Context, m ledger.Movement) (ledger.Movement, error) {
	return ledger.InsertMovement(ctx, t.q, m)
}

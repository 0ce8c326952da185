package inventory

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/brasato/brasato/internal/platform/db"
)

const ingredientColumns = `id, name, unit, quantity_in_stock, min_stock_level,
	cost_price, stock_status, updated_at`

func scanIngredient(row pgx.Row) (Ingredient, error) {
	var ing Ingredient
	err := row.Scan(&ing.ID, &ing.Name, &ing.Unit, &ing.QuantityInStock,
		&ing.MinStockLevel, &ing.CostPrice, &ing.StockStatus, &ing.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Ingredient{}, ErrIngredientNotFound
	}
	return ing, err
}

// GetIngredient loads one ingredient without locking.
func GetIngredient(ctx context.Context, q db.Queryer, id int64) (Ingredient, error) {
	return scanIngredient(q.QueryRow(ctx,
		`SELECT `+ingredientColumns+` FROM ingredients WHERE id = $1`, id))
}

// GetIngredientForUpdate locks the ingredient row for the duration of the
// enclosing transaction. Stock mutations go through this lock so concurrent
// settlements serialize per ingredient.
func GetIngredientForUpdate(ctx context.Context, q db.Queryer, id int64) (Ingredient, error) {
	return scanIngredient(q.QueryRow(ctx,
		`SELECT `+ingredientColumns+` FROM ingredients WHERE id = $1 FOR UPDATE`, id))
}

// DeductStock subtracts qty from the locked ingredient row, refusing to go
// negative, and recomputes the stock status.
func DeductStock(ctx context.Context, q db.Queryer, id int64, qty float64) (Ingredient, error) {
	if qty <= 0 {
		return Ingredient{}, ErrInvalidQuantity
	}
	ing, err := GetIngredientForUpdate(ctx, q, id)
	if err != nil {
		return Ingredient{}, err
	}
	if ing.QuantityInStock < qty {
		return Ingredient{}, ErrInsufficientStock
	}
	return applyStock(ctx, q, ing, ing.QuantityInStock-qty)
}

// IncrementStock adds qty to the locked ingredient row and recomputes the
// stock status.
func IncrementStock(ctx context.Context, q db.Queryer, id int64, qty float64) (Ingredient, error) {
	if qty <= 0 {
		return Ingredient{}, ErrInvalidQuantity
	}
	ing, err := GetIngredientForUpdate(ctx, q, id)
	if err != nil {
		return Ingredient{}, err
	}
	return applyStock(ctx, q, ing, ing.QuantityInStock+qty)
}

func applyStock(ctx context.Context, q db.Queryer, ing Ingredient, newQty float64) (Ingredient, error) {
	ing.QuantityInStock = newQty
	ing.StockStatus = StatusFor(newQty, ing.MinStockLevel)
	_, err := q.Exec(ctx, `
		UPDATE ingredients
		SET quantity_in_stock = $2, stock_status = $3, updated_at = NOW()
		WHERE id = $1`,
		ing.ID, ing.QuantityInStock, ing.StockStatus)
	if err != nil {
		return Ingredient{}, err
	}
	return ing, nil
}

// ListBelowMinimum returns ingredients at or below their minimum level,
// the restock worklist for purchasing.
func ListBelowMinimum(ctx context.Context, q db.Queryer) ([]Ingredient, error) {
	rows, err := q.Query(ctx, `
		SELECT `+ingredientColumns+`
		FROM ingredients
		WHERE quantity_in_stock <= min_stock_level
		ORDER BY quantity_in_stock / NULLIF(min_stock_level, 0) NULLS FIRST, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Ingredient{}
	for rows.Next() {
		ing, err := scanIngredient(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ing)
	}
	return out, rows.Err()
}

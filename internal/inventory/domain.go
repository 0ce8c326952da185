package inventory

import (
	"time"

	"github.com/brasato/brasato/internal/shared"
)

// StockStatus is derived from quantity against the minimum stock level.
type StockStatus string

const (
	StockOK  StockStatus = "ok"
	StockLow StockStatus = "low"
	StockOut StockStatus = "out_of_stock"
)

// StatusFor derives the stock status for a quantity and threshold.
func StatusFor(qty, minLevel float64) StockStatus {
	switch {
	case qty <= 0:
		return StockOut
	case qty <= minLevel:
		return StockLow
	default:
		return StockOK
	}
}

// Ingredient is a stock-tracked raw input.
type Ingredient struct {
	ID              int64
	Name            string
	Unit            string
	QuantityInStock float64
	MinStockLevel   float64
	CostPrice       float64
	StockStatus     StockStatus
	UpdatedAt       time.Time
}

var (
	ErrIngredientNotFound = shared.NewNotFoundError("INGREDIENT_NOT_FOUND", "inventory: ingredient not found")
	ErrInsufficientStock  = shared.NewConflictError("INSUFFICIENT_STOCK", "inventory: insufficient stock for deduction")
	ErrInvalidQuantity    = shared.NewValidationError("INVALID_QUANTITY", "inventory: quantity must be greater than zero")
)

package orders

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/brasato/brasato/internal/ledger"
	"github.com/brasato/brasato/internal/shared"
)

// OrderStatus tracks an order through the kitchen to settlement.
type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusPreparing OrderStatus = "preparing"
	StatusDelivered OrderStatus = "delivered"
	StatusCompleted OrderStatus = "completed"
	StatusCancelled OrderStatus = "cancelled"
)

// Order is the sale being settled. TotalValue is fixed at order taking;
// settlement records it as revenue verbatim.
type Order struct {
	ID            int64
	CustomerName  string
	PaymentMethod string
	Status        OrderStatus
	TotalValue    float64
	CreatedAt     time.Time
	CompletedAt   *time.Time
}

// OrderItem is one order line. CostPrice is the product's registered unit
// cost; zero means unregistered, and costing falls back to the recipe.
type OrderItem struct {
	ID          int64
	OrderID     int64
	ProductID   int64
	ProductName string
	Quantity    float64
	UnitPrice   float64
	CostPrice   float64
	Recipe      []RecipeLine
}

// RecipeLine is an ingredient requirement per single unit of the product.
type RecipeLine struct {
	IngredientID int64
	Quantity     float64
}

// SettlementResult reports the movements a completed settlement produced.
// CMV and Fee are nil when the respective amount was zero. Reference is
// derived from the order id, so retries of the same settlement carry the
// same reference.
type SettlementResult struct {
	OrderID   int64
	Reference uuid.UUID
	Revenue   ledger.Movement
	CMV       *ledger.Movement
	Fee       *ledger.Movement
	CMVTotal  float64
	FeeValue  float64
}

// SettlementReference returns the stable reference for an order settlement.
func SettlementReference(orderID int64) uuid.UUID {
	return uuid.NewSHA1(uuid.Nil, []byte(fmt.Sprintf("ORDER:%d", orderID)))
}

var (
	ErrOrderNotFound     = shared.NewNotFoundError("ORDER_NOT_FOUND", "orders: order not found")
	ErrAlreadyCompleted  = shared.NewConflictError("ORDER_ALREADY_COMPLETED", "orders: order has already been settled")
	ErrOrderCancelled    = shared.NewConflictError("ORDER_CANCELLED", "orders: cancelled orders cannot be settled")
	ErrInvalidOrderTotal = shared.NewValidationError("INVALID_ORDER_TOTAL", "orders: order total must be greater than zero")
	ErrMovementCreation  = shared.NewTransactionError("MOVEMENT_CREATION_FAILED", "orders: movement creation failed, settlement rolled back")
)

// paymentLabel renders the human subcategory for a payment method.
func paymentLabel(method string) string {
	switch method {
	case "credit", "credit_card", "cartao_credito":
		return "Cartão de Crédito"
	case "debit", "debit_card", "cartao_debito":
		return "Cartão de Débito"
	case "pix":
		return "Pix"
	case "ifood":
		return "iFood"
	case "uber_eats", "uber eats", "uber":
		return "Uber Eats"
	case "cash", "money", "dinheiro":
		return "Dinheiro"
	default:
		return "Outros"
	}
}

package ledger

import (
	"time"

	"github.com/brasato/brasato/internal/shared"
)

// MovementType enumerates supported financial movement types.
type MovementType string

const (
	// TypeRevenue records money received from sales.
	TypeRevenue MovementType = "REVENUE"
	// TypeExpense records money paid out.
	TypeExpense MovementType = "EXPENSE"
	// TypeCMV records cost of goods sold for an order.
	TypeCMV MovementType = "CMV"
	// TypeTax records tax obligations.
	TypeTax MovementType = "TAX"
)

// ValidType reports whether t is one of the supported movement types.
func ValidType(t MovementType) bool {
	switch t {
	case TypeRevenue, TypeExpense, TypeCMV, TypeTax:
		return true
	}
	return false
}

// PaymentStatus of a movement: realized cash or an expected event.
type PaymentStatus string

const (
	// StatusPending marks an expected but not yet realized cash event.
	StatusPending PaymentStatus = "Pending"
	// StatusPaid marks cash that has actually moved.
	StatusPaid PaymentStatus = "Paid"
)

// EntityType names the record a movement originated from.
type EntityType string

const (
	EntityOrder           EntityType = "order"
	EntityPurchaseInvoice EntityType = "purchase_invoice"
	EntityRecurringTax    EntityType = "recurring_tax"
	EntityRecurrenceRule  EntityType = "recurrence_rule"
	EntityNone            EntityType = ""
)

// Default categories mirroring the back-office chart.
const (
	CategorySales          = "Vendas"
	CategoryVariableCosts  = "Custos Variáveis"
	CategoryFixedCosts     = "Custos Fixos"
	CategoryTaxes          = "Tributos"
	CategoryStockPurchases = "Compras de Estoque"
)

// Movement is one recorded financial event. Movements are append-mostly audit
// records: created by a settlement coordinator or the recurring generator,
// mutated only through status transition, reconciliation toggle, or gateway
// patch, never deleted.
type Movement struct {
	ID                int64
	Type              MovementType
	Value             float64
	Category          string
	Subcategory       string
	Description       string
	MovementDate      *time.Time
	PaymentStatus     PaymentStatus
	PaymentMethod     string
	SenderReceiver    string
	RelatedEntityType EntityType
	RelatedEntityID   int64
	RecurrencePeriod  string
	Notes             string
	GatewayID         string
	TransactionID     string
	BankAccount       string
	Reconciled        bool
	ReconciledAt      *time.Time
	CreatedBy         int64
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// CreateInput carries the caller-supplied fields for a new movement.
type CreateInput struct {
	Type              MovementType
	Value             float64
	Category          string
	Subcategory       string
	Description       string
	MovementDate      *time.Time
	PaymentStatus     PaymentStatus
	PaymentMethod     string
	SenderReceiver    string
	RelatedEntityType EntityType
	RelatedEntityID   int64
	Notes             string
	GatewayID         string
	TransactionID     string
	BankAccount       string
}

// UpdateInput is a partial patch for back-office edits. Nil fields are left
// untouched.
type UpdateInput struct {
	Type           *MovementType
	Value          *float64
	Category       *string
	Subcategory    *string
	Description    *string
	MovementDate   *time.Time
	PaymentMethod  *string
	SenderReceiver *string
	Notes          *string
}

// GatewayPatch merges gateway reconciliation fields only.
type GatewayPatch struct {
	GatewayID     *string
	TransactionID *string
	BankAccount   *string
}

// ListFilter narrows movement listings. Zero values mean "no filter".
type ListFilter struct {
	From              time.Time
	To                time.Time
	Type              MovementType
	Category          string
	PaymentStatus     PaymentStatus
	RelatedEntityType EntityType
	RelatedEntityID   int64
	GatewayID         string
	TransactionID     string
	BankAccount       string
	Reconciled        *bool
	SortBy            string // "date" (default) or "value"
	SortDir           string // "asc" or "desc"
	Limit             int
	Offset            int
}

// Summary aggregates realized figures for a window, with pending amounts kept
// strictly apart.
type Summary struct {
	TotalRevenue float64
	TotalExpense float64
	TotalCMV     float64
	TotalTax     float64
	GrossProfit  float64
	NetProfit    float64
	CashFlow     float64
	Pending      *PendingSummary
}

// PendingSummary buckets Pending amounts by expected date within the window.
type PendingSummary struct {
	ByType map[MovementType]float64
	// OutflowTotal sums pending EXPENSE and TAX, the figure the payables
	// view reports.
	OutflowTotal float64
}

// ReconciliationFilter narrows the reconciliation report. The report itself is
// always restricted to Paid movements.
type ReconciliationFilter struct {
	From       time.Time
	To         time.Time
	Reconciled *bool
	GatewayID  string
}

// ReconciliationReport counts and sums reconciled versus unreconciled Paid
// movements. TotalMovements = ReconciledCount + UnreconciledCount always.
type ReconciliationReport struct {
	TotalMovements     int
	ReconciledCount    int
	UnreconciledCount  int
	ReconciledAmount   float64
	UnreconciledAmount float64
	Movements          []Movement
}

// Validation and state errors with stable kinds and codes.
var (
	ErrInvalidType         = shared.NewValidationError("INVALID_TYPE", "ledger: type must be REVENUE, EXPENSE, CMV or TAX")
	ErrInvalidValue        = shared.NewValidationError("INVALID_VALUE", "ledger: value must be greater than zero")
	ErrInvalidStatus       = shared.NewValidationError("INVALID_STATUS", "ledger: payment status must be Pending or Paid")
	ErrInvalidCategory     = shared.NewValidationError("INVALID_CATEGORY", "ledger: category is required")
	ErrInvalidDescription  = shared.NewValidationError("INVALID_DESCRIPTION", "ledger: description is required")
	ErrMissingMovementDate = shared.NewValidationError("MISSING_MOVEMENT_DATE_FOR_PAID", "ledger: a Paid movement requires an explicit movement date")
	ErrNoUpdates           = shared.NewValidationError("NO_UPDATES", "ledger: no fields to update")
	ErrNotReconcilable     = shared.NewValidationError("RECONCILE_REQUIRES_PAID", "ledger: only Paid movements can be reconciled")
	ErrReconciledMovement  = shared.NewConflictError("MOVEMENT_RECONCILED", "ledger: reconciled movements cannot return to Pending")
	ErrMovementNotFound    = shared.NewNotFoundError("NOT_FOUND", "ledger: movement not found")
	ErrDuplicateRecurrence = shared.NewConflictError("DUPLICATE_RECURRENCE", "ledger: a movement already exists for this rule and period")
)

// ValidateNew checks the invariants every new movement must satisfy.
func ValidateNew(in CreateInput) error {
	if !ValidType(in.Type) {
		return ErrInvalidType
	}
	if in.Value <= 0 {
		return ErrInvalidValue
	}
	if in.Category == "" {
		return ErrInvalidCategory
	}
	if in.Description == "" {
		return ErrInvalidDescription
	}
	switch in.PaymentStatus {
	case StatusPending:
	case StatusPaid:
		if in.MovementDate == nil {
			return ErrMissingMovementDate
		}
	default:
		return ErrInvalidStatus
	}
	return nil
}

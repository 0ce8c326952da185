package purchasing

import (
	"time"

	"github.com/brasato/brasato/internal/ledger"
	"github.com/brasato/brasato/internal/shared"
)

// PurchaseInvoice is a supplier stock purchase. Settling one increments
// ingredient stock and books a single EXPENSE movement for the total.
type PurchaseInvoice struct {
	ID            int64
	SupplierName  string
	InvoiceNumber string
	TotalValue    float64
	PurchaseDate  time.Time
	PaymentStatus ledger.PaymentStatus
	PaymentMethod string
	PaymentDate   *time.Time
	ExpectedDate  *time.Time
	Notes         string
	CreatedBy     int64
	CreatedAt     time.Time
}

// InvoiceLine is one purchased ingredient quantity.
type InvoiceLine struct {
	ID           int64
	InvoiceID    int64
	IngredientID int64
	Quantity     float64
	UnitCost     float64
	LineTotal    float64
}

// CreateInput carries a new invoice with its lines. PaymentDate is when a
// Paid invoice was actually settled, defaulting to PurchaseDate when absent;
// ExpectedDate is when a Pending invoice is due.
type CreateInput struct {
	SupplierName  string
	InvoiceNumber string
	PurchaseDate  time.Time
	PaymentStatus ledger.PaymentStatus
	PaymentMethod string
	PaymentDate   *time.Time
	ExpectedDate  *time.Time
	Notes         string
	Lines         []LineInput
}

// movementDate resolves the date the EXPENSE movement carries: the actual
// payment date for a Paid invoice, the expected due date for a Pending one,
// nil when no due date was supplied.
func (in CreateInput) movementDate() *time.Time {
	if in.PaymentStatus == ledger.StatusPaid {
		d := in.PurchaseDate
		if in.PaymentDate != nil {
			d = *in.PaymentDate
		}
		return &d
	}
	if in.ExpectedDate != nil {
		d := *in.ExpectedDate
		return &d
	}
	return nil
}

// LineInput is one requested invoice line.
type LineInput struct {
	IngredientID int64
	Quantity     float64
	UnitCost     float64
}

// SettlementResult reports what the purchase settlement produced.
type SettlementResult struct {
	Invoice  PurchaseInvoice
	Lines    []InvoiceLine
	Movement ledger.Movement
}

// ListFilter narrows invoice listings.
type ListFilter struct {
	From          time.Time
	To            time.Time
	SupplierName  string
	PaymentStatus ledger.PaymentStatus
	Limit         int
	Offset        int
}

var (
	ErrInvoiceNotFound = shared.NewNotFoundError("INVOICE_NOT_FOUND", "purchasing: invoice not found")
	ErrMissingSupplier = shared.NewValidationError("MISSING_SUPPLIER", "purchasing: supplier name is required")
	ErrMissingDate     = shared.NewValidationError("MISSING_PURCHASE_DATE", "purchasing: purchase date is required")
	ErrEmptyInvoice    = shared.NewValidationError("EMPTY_INVOICE", "purchasing: an invoice needs at least one line")
	ErrInvalidLine     = shared.NewValidationError("INVALID_LINE", "purchasing: line quantity and unit cost must be positive")
	ErrInvalidStatus   = shared.NewValidationError("INVALID_STATUS", "purchasing: payment status must be Pending or Paid")
)

func validateCreate(in CreateInput) error {
	if in.SupplierName == "" {
		return ErrMissingSupplier
	}
	if in.PurchaseDate.IsZero() {
		return ErrMissingDate
	}
	if in.PaymentStatus != ledger.StatusPending && in.PaymentStatus != ledger.StatusPaid {
		return ErrInvalidStatus
	}
	if len(in.Lines) == 0 {
		return ErrEmptyInvoice
	}
	for _, l := range in.Lines {
		if l.IngredientID == 0 || l.Quantity <= 0 || l.UnitCost <= 0 {
			return ErrInvalidLine
		}
	}
	return nil
}

package purchasing

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/brasato/brasato/internal/ledger"
	"github.com/brasato/brasato/internal/shared"
)

// Service coordinates purchase settlement: one transaction that records the
// invoice with its lines, increments ingredient stock, and books an EXPENSE
// movement for the invoice total.
type Service struct {
	repo       RepositoryPort
	audit      shared.AuditPort
	logger     *slog.Logger
	invalidate ledger.Invalidator
}

func NewService(repo RepositoryPort, audit shared.AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, logger: logger}
}

// SetInvalidator wires the cash-flow cache bump hook. Optional.
func (s *Service) SetInvalidator(inv ledger.Invalidator) { s.invalidate = inv }

// Create settles a new purchase invoice. The invoice total is derived from
// the lines, never taken from the caller, so the EXPENSE movement always
// matches what was actually purchased.
func (s *Service) Create(ctx context.Context, in CreateInput, actorID int64) (SettlementResult, error) {
	if err := validateCreate(in); err != nil {
		return SettlementResult{}, err
	}

	var total float64
	for _, l := range in.Lines {
		total += shared.Round2(l.Quantity * l.UnitCost)
	}
	total = shared.Round2(total)

	var result SettlementResult
	err := s.repo.WithSettlementTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.InsertInvoice(ctx, PurchaseInvoice{
			SupplierName:  in.SupplierName,
			InvoiceNumber: in.InvoiceNumber,
			TotalValue:    total,
			PurchaseDate:  in.PurchaseDate,
			PaymentStatus: in.PaymentStatus,
			PaymentMethod: in.PaymentMethod,
			PaymentDate:   in.PaymentDate,
			ExpectedDate:  in.ExpectedDate,
			Notes:         in.Notes,
			CreatedBy:     actorID,
		})
		if err != nil {
			return err
		}
		result.Invoice = inv

		for _, l := range in.Lines {
			line, err := tx.InsertLine(ctx, InvoiceLine{
				InvoiceID:    inv.ID,
				IngredientID: l.IngredientID,
				Quantity:     l.Quantity,
				UnitCost:     l.UnitCost,
				LineTotal:    shared.Round2(l.Quantity * l.UnitCost),
			})
			if err != nil {
				return err
			}
			if _, err := tx.IncrementStock(ctx, l.IngredientID, l.Quantity); err != nil {
				return err
			}
			result.Lines = append(result.Lines, line)
		}

		desc := fmt.Sprintf("Compra - %s", in.SupplierName)
		if in.InvoiceNumber != "" {
			desc = fmt.Sprintf("Compra - NF %s - %s", in.InvoiceNumber, in.SupplierName)
		}
		m, err := tx.InsertMovement(ctx, ledger.Movement{
			Type:              ledger.TypeExpense,
			Value:             total,
			Category:          ledger.CategoryStockPurchases,
			Description:       desc,
			MovementDate:      in.movementDate(),
			PaymentStatus:     in.PaymentStatus,
			PaymentMethod:     in.PaymentMethod,
			SenderReceiver:    in.SupplierName,
			RelatedEntityType: ledger.EntityPurchaseInvoice,
			RelatedEntityID:   inv.ID,
			Notes:             in.Notes,
			CreatedBy:         actorID,
		})
		if err != nil {
			return err
		}
		result.Movement = m
		return nil
	})
	if err != nil {
		return SettlementResult{}, err
	}

	s.logger.Info("purchase settled",
		"invoice_id", result.Invoice.ID,
		"supplier", result.Invoice.SupplierName,
		"total", result.Invoice.TotalValue,
		"status", string(result.Invoice.PaymentStatus))
	if s.audit != nil {
		if err := s.audit.Record(ctx, shared.AuditLog{
			ActorID:  actorID,
			Action:   "purchase.settle",
			Entity:   "purchase_invoice",
			EntityID: strconv.FormatInt(result.Invoice.ID, 10),
			Meta: map[string]any{
				"total":       result.Invoice.TotalValue,
				"movement_id": result.Movement.ID,
			},
		}); err != nil {
			s.logger.Warn("audit record failed", "invoice_id", result.Invoice.ID, "error", err)
		}
	}
	if s.invalidate != nil {
		s.invalidate.Bump(ctx)
	}
	return result, nil
}

// Get loads an invoice with its lines.
func (s *Service) Get(ctx context.Context, id int64) (PurchaseInvoice, []InvoiceLine, error) {
	return s.repo.GetInvoice(ctx, id)
}

// List returns invoices matching the filter, newest first.
func (s *Service) List(ctx context.Context, f ListFilter) ([]PurchaseInvoice, error) {
	return s.repo.ListInvoices(ctx, f)
}

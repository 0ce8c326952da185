package ledger

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/brasato/brasato/internal/shared"
)

// Invalidator bumps downstream read caches after a ledger write.
type Invalidator interface {
	Bump(ctx context.Context)
}

// Service implements the movement store operations.
type Service struct {
	repo       RepositoryPort
	audit      shared.AuditPort
	logger     *slog.Logger
	invalidate Invalidator
	now        func() time.Time
}

func NewService(repo RepositoryPort, audit shared.AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, logger: logger, now: time.Now}
}

// SetInvalidator wires the cash-flow cache bump hook. Optional.
func (s *Service) SetInvalidator(inv Invalidator) { s.invalidate = inv }

func (s *Service) bump(ctx context.Context) {
	if s.invalidate != nil {
		s.invalidate.Bump(ctx)
	}
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, movementID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "financial_movement",
		EntityID: strconv.FormatInt(movementID, 10),
		Meta:     meta,
	}); err != nil {
		s.logger.Warn("audit record failed", "action", action, "movement_id", movementID, "error", err)
	}
}

// Create validates and persists a manual movement.
func (s *Service) Create(ctx context.Context, in CreateInput, actorID int64) (Movement, error) {
	if err := ValidateNew(in); err != nil {
		return Movement{}, err
	}
	m := Movement{
		Type:              in.Type,
		Value:             shared.Round2(in.Value),
		Category:          in.Category,
		Subcategory:       in.Subcategory,
		Description:       in.Description,
		MovementDate:      in.MovementDate,
		PaymentStatus:     in.PaymentStatus,
		PaymentMethod:     in.PaymentMethod,
		SenderReceiver:    in.SenderReceiver,
		RelatedEntityType: in.RelatedEntityType,
		RelatedEntityID:   in.RelatedEntityID,
		Notes:             in.Notes,
		GatewayID:         in.GatewayID,
		TransactionID:     in.TransactionID,
		BankAccount:       in.BankAccount,
		CreatedBy:         actorID,
	}
	var stored Movement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		stored, err = tx.Insert(ctx, m)
		return err
	})
	if err != nil {
		return Movement{}, err
	}
	s.recordAudit(ctx, actorID, "movement.create", stored.ID, map[string]any{
		"type": string(stored.Type), "value": stored.Value,
	})
	s.bump(ctx)
	return stored, nil
}

// Get loads a single movement.
func (s *Service) Get(ctx context.Context, id int64) (Movement, error) {
	return s.repo.Get(ctx, id)
}

// List returns movements matching the filter, newest first unless overridden.
func (s *Service) List(ctx context.Context, f ListFilter) ([]Movement, error) {
	return s.repo.List(ctx, f)
}

// Update applies a partial back-office edit. Invariants of the full row are
// re-checked after the merge, so a patch can never produce an invalid movement.
func (s *Service) Update(ctx context.Context, id int64, in UpdateInput, actorID int64) (Movement, error) {
	if in == (UpdateInput{}) {
		return Movement{}, ErrNoUpdates
	}
	var updated Movement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		m, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if in.Type != nil {
			m.Type = *in.Type
		}
		if in.Value != nil {
			m.Value = shared.Round2(*in.Value)
		}
		if in.Category != nil {
			m.Category = *in.Category
		}
		if in.Subcategory != nil {
			m.Subcategory = *in.Subcategory
		}
		if in.Description != nil {
			m.Description = *in.Description
		}
		if in.MovementDate != nil {
			d := *in.MovementDate
			m.MovementDate = &d
		}
		if in.PaymentMethod != nil {
			m.PaymentMethod = *in.PaymentMethod
		}
		if in.SenderReceiver != nil {
			m.SenderReceiver = *in.SenderReceiver
		}
		if in.Notes != nil {
			m.Notes = *in.Notes
		}
		if err := s.validateRow(m); err != nil {
			return err
		}
		if err := tx.Update(ctx, m); err != nil {
			return err
		}
		updated = m
		return nil
	})
	if err != nil {
		return Movement{}, err
	}
	s.recordAudit(ctx, actorID, "movement.update", id, nil)
	s.bump(ctx)
	return updated, nil
}

// UpdatePaymentStatus transitions a movement between Pending and Paid.
// Moving to Paid requires an explicit paidAt; the service never fills one in.
// Moving back to Pending clears the movement date and is refused once the
// movement has been reconciled.
func (s *Service) UpdatePaymentStatus(ctx context.Context, id int64, status PaymentStatus, paidAt *time.Time, actorID int64) (Movement, error) {
	if status != StatusPending && status != StatusPaid {
		return Movement{}, ErrInvalidStatus
	}
	if status == StatusPaid && paidAt == nil {
		return Movement{}, ErrMissingMovementDate
	}
	var updated Movement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		m, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		switch status {
		case StatusPaid:
			m.PaymentStatus = StatusPaid
			d := *paidAt
			m.MovementDate = &d
		case StatusPending:
			if m.Reconciled {
				return ErrReconciledMovement
			}
			m.PaymentStatus = StatusPending
			m.MovementDate = nil
		}
		if err := tx.Update(ctx, m); err != nil {
			return err
		}
		updated = m
		return nil
	})
	if err != nil {
		return Movement{}, err
	}
	s.recordAudit(ctx, actorID, "movement.status", id, map[string]any{"status": string(status)})
	s.bump(ctx)
	return updated, nil
}

// Reconcile toggles the bank-reconciliation flag. Only Paid movements can be
// reconciled; clearing the flag also clears the reconciliation timestamp.
func (s *Service) Reconcile(ctx context.Context, id int64, reconciled bool, actorID int64) (Movement, error) {
	var updated Movement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		m, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if reconciled && m.PaymentStatus != StatusPaid {
			return ErrNotReconcilable
		}
		m.Reconciled = reconciled
		if reconciled {
			at := s.now().UTC()
			m.ReconciledAt = &at
		} else {
			m.ReconciledAt = nil
		}
		if err := tx.Update(ctx, m); err != nil {
			return err
		}
		updated = m
		return nil
	})
	if err != nil {
		return Movement{}, err
	}
	s.recordAudit(ctx, actorID, "movement.reconcile", id, map[string]any{"reconciled": reconciled})
	return updated, nil
}

// UpdateGatewayInfo merges gateway identifiers without touching other fields.
func (s *Service) UpdateGatewayInfo(ctx context.Context, id int64, patch GatewayPatch, actorID int64) (Movement, error) {
	if patch == (GatewayPatch{}) {
		return Movement{}, ErrNoUpdates
	}
	var updated Movement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		m, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if patch.GatewayID != nil {
			m.GatewayID = *patch.GatewayID
		}
		if patch.TransactionID != nil {
			m.TransactionID = *patch.TransactionID
		}
		if patch.BankAccount != nil {
			m.BankAccount = *patch.BankAccount
		}
		if err := tx.Update(ctx, m); err != nil {
			return err
		}
		updated = m
		return nil
	})
	if err != nil {
		return Movement{}, err
	}
	s.recordAudit(ctx, actorID, "movement.gateway", id, nil)
	return updated, nil
}

// Summary computes realized totals for the window. Only Paid movements count
// toward the figures; pending amounts are reported apart when requested.
func (s *Service) Summary(ctx context.Context, win shared.Window, includePending bool) (Summary, error) {
	paid, err := s.repo.SumByType(ctx, win.From, win.To, StatusPaid)
	if err != nil {
		return Summary{}, err
	}
	sum := Summary{
		TotalRevenue: shared.Round2(paid[TypeRevenue]),
		TotalExpense: shared.Round2(paid[TypeExpense]),
		TotalCMV:     shared.Round2(paid[TypeCMV]),
		TotalTax:     shared.Round2(paid[TypeTax]),
	}
	sum.GrossProfit = shared.Round2(sum.TotalRevenue - sum.TotalCMV)
	sum.NetProfit = shared.Round2(sum.GrossProfit - sum.TotalExpense - sum.TotalTax)
	sum.CashFlow = shared.Round2(sum.TotalRevenue - sum.TotalExpense - sum.TotalCMV - sum.TotalTax)
	if includePending {
		pending, err := s.repo.SumByType(ctx, win.From, win.To, StatusPending)
		if err != nil {
			return Summary{}, err
		}
		ps := &PendingSummary{ByType: map[MovementType]float64{}}
		for t, v := range pending {
			ps.ByType[t] = shared.Round2(v)
		}
		ps.OutflowTotal = shared.Round2(ps.ByType[TypeExpense] + ps.ByType[TypeTax])
		sum.Pending = ps
	}
	return sum, nil
}

// ReconciliationReport tallies reconciled versus unreconciled Paid movements.
func (s *Service) ReconciliationReport(ctx context.Context, f ReconciliationFilter) (ReconciliationReport, error) {
	rows, err := s.repo.ReconciliationRows(ctx, f)
	if err != nil {
		return ReconciliationReport{}, err
	}
	rep := ReconciliationReport{Movements: rows}
	for _, m := range rows {
		rep.TotalMovements++
		if m.Reconciled {
			rep.ReconciledCount++
			rep.ReconciledAmount += m.Value
		} else {
			rep.UnreconciledCount++
			rep.UnreconciledAmount += m.Value
		}
	}
	rep.ReconciledAmount = shared.Round2(rep.ReconciledAmount)
	rep.UnreconciledAmount = shared.Round2(rep.UnreconciledAmount)
	return rep, nil
}

// ListPending returns Pending movements ordered by expected date, a payables
// and receivables view for the back office.
func (s *Service) ListPending(ctx context.Context, f ListFilter) ([]Movement, error) {
	f.PaymentStatus = StatusPending
	if f.SortDir == "" {
		f.SortDir = "asc"
	}
	return s.repo.List(ctx, f)
}

func (s *Service) validateRow(m Movement) error {
	in := CreateInput{
		Type:          m.Type,
		Value:         m.Value,
		Category:      m.Category,
		Description:   m.Description,
		MovementDate:  m.MovementDate,
		PaymentStatus: m.PaymentStatus,
	}
	return ValidateNew(in)
}

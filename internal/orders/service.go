package orders

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/brasato/brasato/internal/ledger"
	"github.com/brasato/brasato/internal/settings"
	"github.com/brasato/brasato/internal/shared"
)

// FeePort supplies the fee schedule snapshot used to price gateway fees.
type FeePort interface {
	FeeSchedule(ctx context.Context) (settings.FeeSchedule, error)
}

// Service coordinates order settlement: one serializable transaction that
// deducts ingredient stock, writes the revenue, CMV and fee movements, and
// flips the order to completed.
type Service struct {
	repo       RepositoryPort
	fees       FeePort
	audit      shared.AuditPort
	logger     *slog.Logger
	invalidate ledger.Invalidator
	now        func() time.Time
}

func NewService(repo RepositoryPort, fees FeePort, audit shared.AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, fees: fees, audit: audit, logger: logger, now: time.Now}
}

// SetInvalidator wires the cash-flow cache bump hook. Optional.
func (s *Service) SetInvalidator(inv ledger.Invalidator) { s.invalidate = inv }

// Get loads one order.
func (s *Service) Get(ctx context.Context, id int64) (Order, error) {
	return s.repo.GetOrder(ctx, id)
}

// List returns orders, optionally filtered by status.
func (s *Service) List(ctx context.Context, status OrderStatus, limit, offset int) ([]Order, error) {
	return s.repo.ListOrders(ctx, status, limit, offset)
}

// Complete settles the order. The fee schedule is snapshotted before the
// transaction begins so a concurrent fee change cannot split one settlement
// across two schedules. Calling Complete on an already-completed order is a
// conflict, which makes the operation safe to retry.
func (s *Service) Complete(ctx context.Context, orderID, actorID int64) (SettlementResult, error) {
	fees, err := s.fees.FeeSchedule(ctx)
	if err != nil {
		return SettlementResult{}, fmt.Errorf("orders: load fee schedule: %w", err)
	}

	var result SettlementResult
	err = s.repo.WithSettlementTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, items, err := tx.GetOrderForSettlement(ctx, orderID)
		if err != nil {
			return err
		}
		switch order.Status {
		case StatusCompleted:
			return ErrAlreadyCompleted
		case StatusCancelled:
			return ErrOrderCancelled
		}
		if order.TotalValue <= 0 {
			return ErrInvalidOrderTotal
		}

		ingredientCost, err := s.deductIngredients(ctx, tx, items)
		if err != nil {
			return err
		}

		now := s.now().UTC()
		result = SettlementResult{OrderID: order.ID, Reference: SettlementReference(order.ID)}

		revenue, err := tx.InsertMovement(ctx, ledger.Movement{
			Type:              ledger.TypeRevenue,
			Value:             shared.Round2(order.TotalValue),
			Category:          ledger.CategorySales,
			Subcategory:       paymentLabel(order.PaymentMethod),
			Description:       fmt.Sprintf("Venda - Pedido #%d", order.ID),
			MovementDate:      &now,
			PaymentStatus:     ledger.StatusPaid,
			PaymentMethod:     order.PaymentMethod,
			SenderReceiver:    order.CustomerName,
			RelatedEntityType: ledger.EntityOrder,
			RelatedEntityID:   order.ID,
			CreatedBy:         actorID,
		})
		if err != nil {
			return movementCreationFailed(err)
		}
		result.Revenue = revenue

		cmv := orderCMV(items, ingredientCost)
		result.CMVTotal = cmv
		if cmv > 0 {
			m, err := tx.InsertMovement(ctx, ledger.Movement{
				Type:              ledger.TypeCMV,
				Value:             cmv,
				Category:          ledger.CategoryVariableCosts,
				Subcategory:       "Ingredientes Consumidos",
				Description:       fmt.Sprintf("CMV - Pedido #%d", order.ID),
				MovementDate:      &now,
				PaymentStatus:     ledger.StatusPaid,
				RelatedEntityType: ledger.EntityOrder,
				RelatedEntityID:   order.ID,
				CreatedBy:         actorID,
			})
			if err != nil {
				return movementCreationFailed(err)
			}
			result.CMV = &m
		}

		pct := fees.FeeFor(order.PaymentMethod)
		fee := shared.Round2(order.TotalValue * pct / 100)
		result.FeeValue = fee
		if fee > 0 {
			m, err := tx.InsertMovement(ctx, ledger.Movement{
				Type:              ledger.TypeExpense,
				Value:             fee,
				Category:          ledger.CategoryVariableCosts,
				Subcategory:       "Taxas de Pagamento",
				Description:       fmt.Sprintf("Taxa %s - Pedido #%d", paymentLabel(order.PaymentMethod), order.ID),
				MovementDate:      &now,
				PaymentStatus:     ledger.StatusPaid,
				PaymentMethod:     order.PaymentMethod,
				RelatedEntityType: ledger.EntityOrder,
				RelatedEntityID:   order.ID,
				CreatedBy:         actorID,
			})
			if err != nil {
				return movementCreationFailed(err)
			}
			result.Fee = &m
		}

		return tx.UpdateOrderStatus(ctx, order.ID, StatusCompleted, now)
	})
	if err != nil {
		return SettlementResult{}, err
	}

	s.logger.Info("order settled",
		"order_id", result.OrderID,
		"revenue", result.Revenue.Value,
		"cmv", result.CMVTotal,
		"fee", result.FeeValue)
	s.recordAudit(ctx, actorID, result)
	if s.invalidate != nil {
		s.invalidate.Bump(ctx)
	}
	return result, nil
}

// movementCreationFailed tags a storage failure on a movement insert with its
// stable code while keeping the cause inspectable.
func movementCreationFailed(err error) error {
	return fmt.Errorf("%w: %v", ErrMovementCreation, err)
}

// deductIngredients aggregates recipe needs across items, deducts stock in a
// deterministic ingredient order, and returns the unit cost of each deducted
// ingredient for recipe costing.
func (s *Service) deductIngredients(ctx context.Context, tx TxRepository, items []OrderItem) (map[int64]float64, error) {
	needs := map[int64]float64{}
	for _, it := range items {
		for _, rl := range it.Recipe {
			needs[rl.IngredientID] += rl.Quantity * it.Quantity
		}
	}
	ids := make([]int64, 0, len(needs))
	for id := range needs {
		ids = append(ids, id)
	}
	// Ascending id order keeps row locks ordered across concurrent settlements.
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	cost := map[int64]float64{}
	for _, id := range ids {
		ing, err := tx.DeductStock(ctx, id, needs[id])
		if err != nil {
			return nil, err
		}
		cost[id] = ing.CostPrice
	}
	return cost, nil
}

// orderCMV prices the goods sold. A registered product cost wins; otherwise
// the recipe is priced from ingredient costs. Items with neither cost nothing.
func orderCMV(items []OrderItem, ingredientCost map[int64]float64) float64 {
	var total float64
	for _, it := range items {
		unit := it.CostPrice
		if unit <= 0 {
			for _, rl := range it.Recipe {
				unit += rl.Quantity * ingredientCost[rl.IngredientID]
			}
		}
		total += unit * it.Quantity
	}
	return shared.Round2(total)
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, result SettlementResult) {
	if s.audit == nil {
		return
	}
	meta := map[string]any{
		"reference":           result.Reference.String(),
		"revenue_movement_id": result.Revenue.ID,
		"cmv":                 result.CMVTotal,
		"fee":                 result.FeeValue,
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   "order.settle",
		Entity:   "order",
		EntityID: strconv.FormatInt(result.OrderID, 10),
		Meta:     meta,
	}); err != nil {
		s.logger.Warn("audit record failed", "order_id", result.OrderID, "error", err)
	}
}

package orders

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/brasato/brasato/internal/inventory"
	"github.com/brasato/brasato/internal/ledger"
	"github.com/brasato/brasato/internal/settings"
	"github.com/brasato/brasato/internal/shared"
)

type memoryState struct {
	orders        map[int64]Order
	items         map[int64][]OrderItem
	ingredients   map[int64]inventory.Ingredient
	movements     []ledger.Movement
	movementsFail error
}

func (s *memoryState) clone() *memoryState {
	cp := &memoryState{
		orders:        map[int64]Order{},
		items:         map[int64][]OrderItem{},
		ingredients:   map[int64]inventory.Ingredient{},
		movements:     append([]ledger.Movement{}, s.movements...),
		movementsFail: s.movementsFail,
	}
	for k, v := range s.orders {
		cp.orders[k] = v
	}
	for k, v := range s.items {
		cp.items[k] = v
	}
	for k, v := range s.ingredients {
		cp.ingredients[k] = v
	}
	return cp
}

type memoryRepo struct {
	state *memoryState
}

func (r *memoryRepo) WithSettlementTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error {
	staged := r.state.clone()
	if err := fn(ctx, &memoryTx{state: staged}); err != nil {
		return err
	}
	r.state = staged
	return nil
}

func (r *memoryRepo) GetOrder(_ context.Context, id int64) (Order, error) {
	o, ok := r.state.orders[id]
	if !ok {
		return Order{}, ErrOrderNotFound
	}
	return o, nil
}

func (r *memoryRepo) ListOrders(_ context.Context, status OrderStatus, _, _ int) ([]Order, error) {
	out := []Order{}
	for _, o := range r.state.orders {
		if status == "" || o.Status == status {
			out = append(out, o)
		}
	}
	return out, nil
}

type memoryTx struct {
	state *memoryState
}

func (t *memoryTx) GetOrderForSettlement(_ context.Context, id int64) (Order, []OrderItem, error) {
	o, ok := t.state.orders[id]
	if !ok {
		return Order{}, nil, ErrOrderNotFound
	}
	return o, t.state.items[id], nil
}

func (t *memoryTx) UpdateOrderStatus(_ context.Context, id int64, status OrderStatus, completedAt time.Time) error {
	o, ok := t.state.orders[id]
	if !ok {
		return ErrOrderNotFound
	}
	o.Status = status
	o.CompletedAt = &completedAt
	t.state.orders[id] = o
	return nil
}

func (t *memoryTx) DeductStock(_ context.Context, ingredientID int64, qty float64) (inventory.Ingredient, error) {
	ing, ok := t.state.ingredients[ingredientID]
	if !ok {
		return inventory.Ingredient{}, inventory.ErrIngredientNotFound
	}
	if ing.QuantityInStock < qty {
		return inventory.Ingredient{}, inventory.ErrInsufficientStock
	}
	ing.QuantityInStock -= qty
	ing.StockStatus = inventory.StatusFor(ing.QuantityInStock, ing.MinStockLevel)
	t.state.ingredients[ingredientID] = ing
	return ing, nil
}

func (t *memoryTx) InsertMovement(_ context.Context, m ledger.Movement) (ledger.Movement, error) {
	if t.state.movementsFail != nil {
		return ledger.Movement{}, t.state.movementsFail
	}
	m.ID = int64(len(t.state.movements) + 1)
	t.state.movements = append(t.state.movements, m)
	return m, nil
}

type staticFees struct {
	fees settings.FeeSchedule
}

func (f staticFees) FeeSchedule(_ context.Context) (settings.FeeSchedule, error) {
	return f.fees, nil
}

func fixedClock() time.Time {
	return time.Date(2024, time.March, 15, 20, 30, 0, 0, time.UTC)
}

func newSettlementFixture() (*Service, *memoryRepo) {
	repo := &memoryRepo{state: &memoryState{
		orders: map[int64]Order{
			7: {ID: 7, CustomerName: "Mesa 4", PaymentMethod: "credit_card", Status: StatusDelivered, TotalValue: 100},
		},
		items: map[int64][]OrderItem{
			7: {{
				ID: 1, OrderID: 7, ProductID: 21, ProductName: "Nhoque ao sugo",
				Quantity: 2, UnitPrice: 50,
				Recipe: []RecipeLine{
					{IngredientID: 1, Quantity: 0.3},
					{IngredientID: 2, Quantity: 0.15},
				},
			}},
		},
		ingredients: map[int64]inventory.Ingredient{
			1: {ID: 1, Name: "Batata", QuantityInStock: 10, MinStockLevel: 2, CostPrice: 10},
			2: {ID: 2, Name: "Molho de tomate", QuantityInStock: 5, MinStockLevel: 1, CostPrice: 30},
		},
	}}
	svc := NewService(repo, staticFees{settings.FeeSchedule{CreditCard: 2.5}}, nil, nil)
	svc.now = fixedClock
	return svc, repo
}

func TestCompleteSettlesOrder(t *testing.T) {
	svc, repo := newSettlementFixture()
	ctx := context.Background()

	// unit cost: 0.3*10 + 0.15*30 = 7.50; two units -> 15.00 CMV
	result, err := svc.Complete(ctx, 7, 1)
	require.NoError(t, err)

	require.Equal(t, ledger.TypeRevenue, result.Revenue.Type)
	require.InDelta(t, 100, result.Revenue.Value, 1e-9)
	require.Equal(t, ledger.CategorySales, result.Revenue.Category)
	require.Equal(t, "Cartão de Crédito", result.Revenue.Subcategory)
	require.Equal(t, ledger.StatusPaid, result.Revenue.PaymentStatus)
	require.NotNil(t, result.Revenue.MovementDate)

	require.NotNil(t, result.CMV)
	require.InDelta(t, 15, result.CMV.Value, 1e-9)
	require.Equal(t, ledger.TypeCMV, result.CMV.Type)
	require.Equal(t, "Ingredientes Consumidos", result.CMV.Subcategory)

	require.NotNil(t, result.Fee)
	require.InDelta(t, 2.5, result.Fee.Value, 1e-9)
	require.Equal(t, ledger.TypeExpense, result.Fee.Type)
	require.Equal(t, "Taxas de Pagamento", result.Fee.Subcategory)

	require.Equal(t, SettlementReference(result.OrderID), result.Reference)
	require.NotEqual(t, SettlementReference(result.OrderID+1), result.Reference)

	require.Len(t, repo.state.movements, 3)
	for _, m := range repo.state.movements {
		require.Equal(t, ledger.EntityOrder, m.RelatedEntityType)
		require.Equal(t, int64(7), m.RelatedEntityID)
	}

	order := repo.state.orders[7]
	require.Equal(t, StatusCompleted, order.Status)
	require.NotNil(t, order.CompletedAt)

	// 2 units consumed: 0.6 batata, 0.3 molho
	require.InDelta(t, 9.4, repo.state.ingredients[1].QuantityInStock, 1e-9)
	require.InDelta(t, 4.7, repo.state.ingredients[2].QuantityInStock, 1e-9)
}

func TestCompleteUsesRegisteredCostPrice(t *testing.T) {
	svc, repo := newSettlementFixture()
	items := repo.state.items[7]
	items[0].CostPrice = 9 // wins over the recipe costing
	repo.state.items[7] = items

	result, err := svc.Complete(context.Background(), 7, 1)
	require.NoError(t, err)
	require.NotNil(t, result.CMV)
	require.InDelta(t, 18, result.CMV.Value, 1e-9)
	// stock is still consumed even when costing skips the recipe
	require.InDelta(t, 9.4, repo.state.ingredients[1].QuantityInStock, 1e-9)
}

func TestCompleteSkipsZeroFeeAndZeroCMV(t *testing.T) {
	svc, repo := newSettlementFixture()
	order := repo.state.orders[7]
	order.PaymentMethod = "cash"
	repo.state.orders[7] = order
	repo.state.items[7] = []OrderItem{{
		ID: 1, OrderID: 7, ProductID: 30, ProductName: "Refrigerante lata",
		Quantity: 2, UnitPrice: 50,
	}}

	result, err := svc.Complete(context.Background(), 7, 1)
	require.NoError(t, err)
	require.Nil(t, result.CMV)
	require.Nil(t, result.Fee)
	require.Zero(t, result.FeeValue)
	require.Len(t, repo.state.movements, 1)
	require.Equal(t, ledger.TypeRevenue, repo.state.movements[0].Type)
}

func TestCompleteInsufficientStockRollsBackEverything(t *testing.T) {
	svc, repo := newSettlementFixture()
	ing := repo.state.ingredients[2]
	ing.QuantityInStock = 0.1
	repo.state.ingredients[2] = ing

	_, err := svc.Complete(context.Background(), 7, 1)
	require.ErrorIs(t, err, inventory.ErrInsufficientStock)
	require.Equal(t, shared.KindConflict, shared.Kind(err))

	// nothing moved: no movements, status untouched, first ingredient intact
	require.Empty(t, repo.state.movements)
	require.Equal(t, StatusDelivered, repo.state.orders[7].Status)
	require.InDelta(t, 10, repo.state.ingredients[1].QuantityInStock, 1e-9)
}

func TestCompleteMovementFailureRollsBackEverything(t *testing.T) {
	svc, repo := newSettlementFixture()
	repo.state.movementsFail = errors.New("connection reset")

	_, err := svc.Complete(context.Background(), 7, 1)
	require.ErrorIs(t, err, ErrMovementCreation)
	require.Equal(t, shared.KindTransaction, shared.Kind(err))
	require.Equal(t, "MOVEMENT_CREATION_FAILED", shared.Code(err))

	// stock already deducted inside the tx must come back with the rollback
	require.Empty(t, repo.state.movements)
	require.Equal(t, StatusDelivered, repo.state.orders[7].Status)
	require.InDelta(t, 10, repo.state.ingredients[1].QuantityInStock, 1e-9)
	require.InDelta(t, 5, repo.state.ingredients[2].QuantityInStock, 1e-9)
}

func TestCompleteAlreadyCompletedIsConflict(t *testing.T) {
	svc, repo := newSettlementFixture()
	ctx := context.Background()

	_, err := svc.Complete(ctx, 7, 1)
	require.NoError(t, err)

	_, err = svc.Complete(ctx, 7, 1)
	require.ErrorIs(t, err, ErrAlreadyCompleted)
	require.Equal(t, shared.KindConflict, shared.Kind(err))
	// the retry must not double-book
	require.Len(t, repo.state.movements, 3)
}

func TestCompleteCancelledOrder(t *testing.T) {
	svc, repo := newSettlementFixture()
	order := repo.state.orders[7]
	order.Status = StatusCancelled
	repo.state.orders[7] = order

	_, err := svc.Complete(context.Background(), 7, 1)
	require.ErrorIs(t, err, ErrOrderCancelled)
	require.Empty(t, repo.state.movements)
}

func TestCompleteUnknownOrder(t *testing.T) {
	svc, _ := newSettlementFixture()
	_, err := svc.Complete(context.Background(), 404, 1)
	require.ErrorIs(t, err, ErrOrderNotFound)
	require.Equal(t, shared.KindNotFound, shared.Kind(err))
}

func TestStockStatusRecomputedOnDeduction(t *testing.T) {
	svc, repo := newSettlementFixture()
	ing := repo.state.ingredients[1]
	ing.QuantityInStock = 0.6
	ing.MinStockLevel = 2
	repo.state.ingredients[1] = ing

	_, err := svc.Complete(context.Background(), 7, 1)
	require.NoError(t, err)
	require.Equal(t, inventory.StockOut, repo.state.ingredients[1].StockStatus)
	require.Equal(t, inventory.StockOK, repo.state.ingredients[2].StockStatus)
}

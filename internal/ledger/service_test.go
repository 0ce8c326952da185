package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/brasato/brasato/internal/shared"
)

type memoryRepo struct {
	seq       int64
	movements map[int64]Movement
	lastList  ListFilter
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{movements: map[int64]Movement{}}
}

func (r *memoryRepo) snapshot() map[int64]Movement {
	cp := make(map[int64]Movement, len(r.movements))
	for id, m := range r.movements {
		cp[id] = m
	}
	return cp
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error {
	before, seq := r.snapshot(), r.seq
	if err := fn(ctx, &memoryTx{repo: r}); err != nil {
		r.movements, r.seq = before, seq
		return err
	}
	return nil
}

func (r *memoryRepo) Get(_ context.Context, id int64) (Movement, error) {
	m, ok := r.movements[id]
	if !ok {
		return Movement{}, ErrMovementNotFound
	}
	return m, nil
}

func (r *memoryRepo) List(_ context.Context, f ListFilter) ([]Movement, error) {
	r.lastList = f
	out := []Movement{}
	for _, m := range r.movements {
		if f.PaymentStatus != "" && m.PaymentStatus != f.PaymentStatus {
			continue
		}
		if f.Type != "" && m.Type != f.Type {
			continue
		}
		if f.GatewayID != "" && m.GatewayID != f.GatewayID {
			continue
		}
		if f.Reconciled != nil && m.Reconciled != *f.Reconciled {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func (r *memoryRepo) SumByType(_ context.Context, from, to time.Time, status PaymentStatus) (map[MovementType]float64, error) {
	totals := map[MovementType]float64{}
	for _, m := range r.movements {
		if m.PaymentStatus != status {
			continue
		}
		at := m.CreatedAt
		if m.MovementDate != nil {
			at = *m.MovementDate
		}
		if at.Before(from) || !at.Before(to) {
			continue
		}
		totals[m.Type] += m.Value
	}
	return totals, nil
}

func (r *memoryRepo) ReconciliationRows(_ context.Context, f ReconciliationFilter) ([]Movement, error) {
	out := []Movement{}
	for _, m := range r.movements {
		if m.PaymentStatus != StatusPaid {
			continue
		}
		if f.Reconciled != nil && m.Reconciled != *f.Reconciled {
			continue
		}
		if f.GatewayID != "" && m.GatewayID != f.GatewayID {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

type memoryTx struct {
	repo *memoryRepo
}

func (t *memoryTx) Insert(_ context.Context, m Movement) (Movement, error) {
	if m.RecurrencePeriod != "" {
		for _, existing := range t.repo.movements {
			if existing.RelatedEntityType == m.RelatedEntityType &&
				existing.RelatedEntityID == m.RelatedEntityID &&
				existing.RecurrencePeriod == m.RecurrencePeriod {
				return Movement{}, ErrDuplicateRecurrence
			}
		}
	}
	t.repo.seq++
	m.ID = t.repo.seq
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	m.UpdatedAt = m.CreatedAt
	t.repo.movements[m.ID] = m
	return m, nil
}

func (t *memoryTx) GetForUpdate(ctx context.Context, id int64) (Movement, error) {
	return t.repo.Get(ctx, id)
}

func (t *memoryTx) Update(_ context.Context, m Movement) error {
	if _, ok := t.repo.movements[m.ID]; !ok {
		return ErrMovementNotFound
	}
	m.UpdatedAt = time.Now().UTC()
	t.repo.movements[m.ID] = m
	return nil
}

func newTestService(repo *memoryRepo) *Service {
	return NewService(repo, nil, nil)
}

func datePtr(y int, mo time.Month, d int) *time.Time {
	t := time.Date(y, mo, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func TestCreateValidation(t *testing.T) {
	svc := newTestService(newMemoryRepo())
	ctx := context.Background()

	base := CreateInput{
		Type:          TypeRevenue,
		Value:         50,
		Category:      CategorySales,
		Description:   "venda balcão",
		PaymentStatus: StatusPending,
	}

	cases := []struct {
		name    string
		mutate  func(*CreateInput)
		wantErr error
	}{
		{"bad type", func(in *CreateInput) { in.Type = "TRANSFER" }, ErrInvalidType},
		{"zero value", func(in *CreateInput) { in.Value = 0 }, ErrInvalidValue},
		{"negative value", func(in *CreateInput) { in.Value = -10 }, ErrInvalidValue},
		{"bad status", func(in *CreateInput) { in.PaymentStatus = "Settled" }, ErrInvalidStatus},
		{"empty category", func(in *CreateInput) { in.Category = "" }, ErrInvalidCategory},
		{"empty description", func(in *CreateInput) { in.Description = "" }, ErrInvalidDescription},
		{"paid without date", func(in *CreateInput) { in.PaymentStatus = StatusPaid }, ErrMissingMovementDate},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := base
			tc.mutate(&in)
			_, err := svc.Create(ctx, in, 1)
			require.ErrorIs(t, err, tc.wantErr)
			require.Equal(t, shared.KindValidation, shared.Kind(err))
		})
	}
}

func TestCreateRoundsValue(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)

	m, err := svc.Create(context.Background(), CreateInput{
		Type:          TypeExpense,
		Value:         10.005,
		Category:      CategoryFixedCosts,
		Description:   "aluguel",
		PaymentStatus: StatusPending,
	}, 1)
	require.NoError(t, err)
	require.InDelta(t, 10.01, m.Value, 1e-9)
}

func TestUpdatePaymentStatusToPaid(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	m, err := svc.Create(ctx, CreateInput{
		Type:          TypeExpense,
		Value:         120,
		Category:      CategoryFixedCosts,
		Description:   "energia",
		PaymentStatus: StatusPending,
	}, 1)
	require.NoError(t, err)
	require.Nil(t, m.MovementDate)

	_, err = svc.UpdatePaymentStatus(ctx, m.ID, StatusPaid, nil, 1)
	require.ErrorIs(t, err, ErrMissingMovementDate)

	paidAt := datePtr(2024, time.March, 10)
	updated, err := svc.UpdatePaymentStatus(ctx, m.ID, StatusPaid, paidAt, 1)
	require.NoError(t, err)
	require.Equal(t, StatusPaid, updated.PaymentStatus)
	require.NotNil(t, updated.MovementDate)
	require.True(t, updated.MovementDate.Equal(*paidAt))
}

func TestUpdatePaymentStatusBackToPendingClearsDate(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	m, err := svc.Create(ctx, CreateInput{
		Type:          TypeTax,
		Value:         300,
		Category:      CategoryTaxes,
		Description:   "simples nacional",
		MovementDate:  datePtr(2024, time.February, 20),
		PaymentStatus: StatusPaid,
	}, 1)
	require.NoError(t, err)

	updated, err := svc.UpdatePaymentStatus(ctx, m.ID, StatusPending, nil, 1)
	require.NoError(t, err)
	require.Equal(t, StatusPending, updated.PaymentStatus)
	require.Nil(t, updated.MovementDate)
}

func TestReconcileRequiresPaid(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	pending, err := svc.Create(ctx, CreateInput{
		Type:          TypeRevenue,
		Value:         80,
		Category:      CategorySales,
		Description:   "venda ifood",
		PaymentStatus: StatusPending,
	}, 1)
	require.NoError(t, err)

	_, err = svc.Reconcile(ctx, pending.ID, true, 1)
	require.ErrorIs(t, err, ErrNotReconcilable)

	paid, err := svc.Create(ctx, CreateInput{
		Type:          TypeRevenue,
		Value:         80,
		Category:      CategorySales,
		Description:   "venda ifood",
		MovementDate:  datePtr(2024, time.March, 5),
		PaymentStatus: StatusPaid,
	}, 1)
	require.NoError(t, err)

	rec, err := svc.Reconcile(ctx, paid.ID, true, 1)
	require.NoError(t, err)
	require.True(t, rec.Reconciled)
	require.NotNil(t, rec.ReconciledAt)

	cleared, err := svc.Reconcile(ctx, paid.ID, false, 1)
	require.NoError(t, err)
	require.False(t, cleared.Reconciled)
	require.Nil(t, cleared.ReconciledAt)
}

func TestReconciledMovementCannotReturnToPending(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	m, err := svc.Create(ctx, CreateInput{
		Type:          TypeRevenue,
		Value:         55,
		Category:      CategorySales,
		Description:   "venda cartão",
		MovementDate:  datePtr(2024, time.March, 8),
		PaymentStatus: StatusPaid,
	}, 1)
	require.NoError(t, err)
	_, err = svc.Reconcile(ctx, m.ID, true, 1)
	require.NoError(t, err)

	_, err = svc.UpdatePaymentStatus(ctx, m.ID, StatusPending, nil, 1)
	require.ErrorIs(t, err, ErrReconciledMovement)
	require.Equal(t, shared.KindConflict, shared.Kind(err))

	got, err := svc.Get(ctx, m.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPaid, got.PaymentStatus)
}

func TestUpdateGatewayInfoMergesOnly(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	m, err := svc.Create(ctx, CreateInput{
		Type:          TypeRevenue,
		Value:         42,
		Category:      CategorySales,
		Description:   "venda pix",
		MovementDate:  datePtr(2024, time.March, 9),
		PaymentStatus: StatusPaid,
		GatewayID:     "stone",
	}, 1)
	require.NoError(t, err)

	_, err = svc.UpdateGatewayInfo(ctx, m.ID, GatewayPatch{}, 1)
	require.ErrorIs(t, err, ErrNoUpdates)

	txn := "TXN-991"
	updated, err := svc.UpdateGatewayInfo(ctx, m.ID, GatewayPatch{TransactionID: &txn}, 1)
	require.NoError(t, err)
	require.Equal(t, "stone", updated.GatewayID)
	require.Equal(t, "TXN-991", updated.TransactionID)
	require.Equal(t, StatusPaid, updated.PaymentStatus)
}

func TestUpdateRejectsInvalidMerge(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	m, err := svc.Create(ctx, CreateInput{
		Type:          TypeExpense,
		Value:         75,
		Category:      CategoryStockPurchases,
		Description:   "compra de insumos",
		PaymentStatus: StatusPending,
	}, 1)
	require.NoError(t, err)

	bad := -1.0
	_, err = svc.Update(ctx, m.ID, UpdateInput{Value: &bad}, 1)
	require.ErrorIs(t, err, ErrInvalidValue)

	got, err := svc.Get(ctx, m.ID)
	require.NoError(t, err)
	require.InDelta(t, 75, got.Value, 1e-9)
}

func TestSummaryFormulas(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	day := datePtr(2024, time.March, 15)
	seed := []CreateInput{
		{Type: TypeRevenue, Value: 100, Category: CategorySales, Description: "pedido 7", MovementDate: day, PaymentStatus: StatusPaid},
		{Type: TypeCMV, Value: 15, Category: CategoryVariableCosts, Description: "cmv pedido 7", MovementDate: day, PaymentStatus: StatusPaid},
		{Type: TypeExpense, Value: 2.5, Category: CategoryVariableCosts, Description: "taxa cartão", MovementDate: day, PaymentStatus: StatusPaid},
		// pending rows must not leak into realized totals
		{Type: TypeExpense, Value: 40, Category: CategoryFixedCosts, Description: "internet", MovementDate: datePtr(2024, time.March, 28), PaymentStatus: StatusPending},
		{Type: TypeTax, Value: 10, Category: CategoryTaxes, Description: "das", MovementDate: datePtr(2024, time.March, 20), PaymentStatus: StatusPending},
	}
	for _, in := range seed {
		_, err := svc.Create(ctx, in, 1)
		require.NoError(t, err)
	}

	win := shared.MonthWindow(2024, time.March, time.UTC)
	sum, err := svc.Summary(ctx, win, true)
	require.NoError(t, err)

	require.InDelta(t, 100, sum.TotalRevenue, 1e-9)
	require.InDelta(t, 15, sum.TotalCMV, 1e-9)
	require.InDelta(t, 2.5, sum.TotalExpense, 1e-9)
	require.InDelta(t, 0, sum.TotalTax, 1e-9)
	require.InDelta(t, 85, sum.GrossProfit, 1e-9)
	require.InDelta(t, 82.5, sum.NetProfit, 1e-9)
	require.InDelta(t, 82.5, sum.CashFlow, 1e-9)

	require.NotNil(t, sum.Pending)
	require.InDelta(t, 40, sum.Pending.ByType[TypeExpense], 1e-9)
	require.InDelta(t, 10, sum.Pending.ByType[TypeTax], 1e-9)
	require.InDelta(t, 50, sum.Pending.OutflowTotal, 1e-9)

	bare, err := svc.Summary(ctx, win, false)
	require.NoError(t, err)
	require.Nil(t, bare.Pending)
}

func TestReconciliationReportTotals(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	day := datePtr(2024, time.March, 12)
	ids := []int64{}
	for _, v := range []float64{30, 45, 25} {
		m, err := svc.Create(ctx, CreateInput{
			Type:          TypeRevenue,
			Value:         v,
			Category:      CategorySales,
			Description:   "venda",
			MovementDate:  day,
			PaymentStatus: StatusPaid,
		}, 1)
		require.NoError(t, err)
		ids = append(ids, m.ID)
	}
	_, err := svc.Reconcile(ctx, ids[0], true, 1)
	require.NoError(t, err)

	rep, err := svc.ReconciliationReport(ctx, ReconciliationFilter{})
	require.NoError(t, err)
	require.Equal(t, 3, rep.TotalMovements)
	require.Equal(t, 1, rep.ReconciledCount)
	require.Equal(t, 2, rep.UnreconciledCount)
	require.Equal(t, rep.TotalMovements, rep.ReconciledCount+rep.UnreconciledCount)
	require.InDelta(t, 30, rep.ReconciledAmount, 1e-9)
	require.InDelta(t, 70, rep.UnreconciledAmount, 1e-9)
}

func TestListPendingForcesStatus(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)

	_, err := svc.ListPending(context.Background(), ListFilter{Type: TypeExpense})
	require.NoError(t, err)
	require.Equal(t, StatusPending, repo.lastList.PaymentStatus)
	require.Equal(t, "asc", repo.lastList.SortDir)
}

func TestCreateRollsBackOnInsertFailure(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	period := "2024-03"
	in := CreateInput{
		Type:          TypeExpense,
		Value:         1500,
		Category:      CategoryFixedCosts,
		Description:   "aluguel março",
		PaymentStatus: StatusPending,
	}
	first, err := svc.Create(ctx, in, 1)
	require.NoError(t, err)

	// Simulate the generator path hitting the recurrence guard.
	err = repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		m := repo.movements[first.ID]
		m.ID = 0
		m.RelatedEntityType = EntityRecurrenceRule
		m.RelatedEntityID = 9
		m.RecurrencePeriod = period
		if _, err := tx.Insert(ctx, m); err != nil {
			return err
		}
		m.ID = 0
		_, err := tx.Insert(ctx, m)
		return err
	})
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrDuplicateRecurrence))
	// The whole transaction rolled back, including the first insert.
	require.Len(t, repo.movements, 1)
}

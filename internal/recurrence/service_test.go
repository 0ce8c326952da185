package recurrence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/brasato/brasato/internal/ledger"
	"github.com/brasato/brasato/internal/shared"
)

type memoryRepo struct {
	seq       int64
	rules     map[int64]Rule
	movements []ledger.Movement
	failRule  int64 // InsertMovement for this rule id returns an error
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{rules: map[int64]Rule{}}
}

func (r *memoryRepo) InsertRule(_ context.Context, rule Rule) (Rule, error) {
	r.seq++
	rule.ID = r.seq
	rule.IsActive = true
	rule.CreatedAt = time.Now().UTC()
	rule.UpdatedAt = rule.CreatedAt
	r.rules[rule.ID] = rule
	return rule, nil
}

func (r *memoryRepo) UpdateRule(_ context.Context, rule Rule) error {
	if _, ok := r.rules[rule.ID]; !ok {
		return ErrRuleNotFound
	}
	r.rules[rule.ID] = rule
	return nil
}

func (r *memoryRepo) SoftDeleteRule(_ context.Context, id int64) error {
	rule, ok := r.rules[id]
	if !ok || !rule.IsActive {
		return ErrRuleNotFound
	}
	rule.IsActive = false
	r.rules[id] = rule
	return nil
}

func (r *memoryRepo) GetRule(_ context.Context, id int64) (Rule, error) {
	rule, ok := r.rules[id]
	if !ok {
		return Rule{}, ErrRuleNotFound
	}
	return rule, nil
}

func (r *memoryRepo) ListRules(_ context.Context, includeInactive bool) ([]Rule, error) {
	out := []Rule{}
	for i := int64(1); i <= r.seq; i++ {
		rule, ok := r.rules[i]
		if !ok {
			continue
		}
		if !includeInactive && !rule.IsActive {
			continue
		}
		out = append(out, rule)
	}
	return out, nil
}

func (r *memoryRepo) InsertMovement(_ context.Context, m ledger.Movement) (ledger.Movement, error) {
	if r.failRule != 0 && m.RelatedEntityID == r.failRule {
		return ledger.Movement{}, errors.New("storage unavailable")
	}
	for _, existing := range r.movements {
		if existing.RelatedEntityType == m.RelatedEntityType &&
			existing.RelatedEntityID == m.RelatedEntityID &&
			existing.RecurrencePeriod == m.RecurrencePeriod {
			return ledger.Movement{}, ledger.ErrDuplicateRecurrence
		}
	}
	m.ID = int64(len(r.movements) + 1)
	r.movements = append(r.movements, m)
	return m, nil
}

func monthlyRent() CreateInput {
	return CreateInput{
		Kind:           KindExpense,
		Name:           "Aluguel",
		Value:          2000,
		Schedule:       ScheduleMonthly,
		DayOfMonth:     5,
		SenderReceiver: "Imobiliária Santos",
	}
}

func TestCreateRuleDefaults(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)

	rule, err := svc.CreateRule(context.Background(), monthlyRent(), 1)
	require.NoError(t, err)
	require.True(t, rule.IsActive)
	require.Equal(t, ledger.CategoryFixedCosts, rule.Category)
	require.Equal(t, ledger.TypeExpense, rule.MovementType())

	tax, err := svc.CreateRule(context.Background(), CreateInput{
		Kind: KindTax, Name: "Simples Nacional", Value: 800,
		Schedule: ScheduleMonthly, DayOfMonth: 20,
	}, 1)
	require.NoError(t, err)
	require.Equal(t, ledger.CategoryTaxes, tax.Category)
	require.Equal(t, ledger.TypeTax, tax.MovementType())
	require.Equal(t, ledger.EntityRecurringTax, tax.EntityType())
}

func TestCreateRuleValidation(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil)
	ctx := context.Background()

	cases := []struct {
		name   string
		mutate func(*CreateInput)
	}{
		{"empty name", func(in *CreateInput) { in.Name = "" }},
		{"zero value", func(in *CreateInput) { in.Value = 0 }},
		{"bad kind", func(in *CreateInput) { in.Kind = "subscription" }},
		{"bad schedule", func(in *CreateInput) { in.Schedule = "DAILY" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := monthlyRent()
			tc.mutate(&in)
			_, err := svc.CreateRule(ctx, in, 1)
			require.Error(t, err)
			require.Equal(t, shared.KindValidation, shared.Kind(err))
		})
	}

	in := monthlyRent()
	in.DayOfMonth = 0
	_, err := svc.CreateRule(ctx, in, 1)
	require.ErrorIs(t, err, ErrInvalidSchedule)

	in = monthlyRent()
	in.Schedule = ScheduleYearly
	in.Month = 0
	_, err = svc.CreateRule(ctx, in, 1)
	require.ErrorIs(t, err, ErrInvalidSchedule)
}

func TestGenerateMonthly(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	rule, err := svc.CreateRule(ctx, monthlyRent(), 1)
	require.NoError(t, err)

	result, err := svc.Generate(ctx, 2024, time.January)
	require.NoError(t, err)
	require.Equal(t, 1, result.Generated)
	require.Zero(t, result.Skipped)
	require.Empty(t, result.Failures)

	require.Len(t, repo.movements, 1)
	m := repo.movements[0]
	require.Equal(t, ledger.TypeExpense, m.Type)
	require.InDelta(t, 2000, m.Value, 1e-9)
	require.Equal(t, ledger.StatusPending, m.PaymentStatus)
	require.NotNil(t, m.MovementDate)
	require.Equal(t, time.Date(2024, time.January, 5, 0, 0, 0, 0, time.UTC), *m.MovementDate)
	require.Equal(t, ledger.EntityRecurrenceRule, m.RelatedEntityType)
	require.Equal(t, rule.ID, m.RelatedEntityID)
	require.Equal(t, "2024-01", m.RecurrencePeriod)
}

func TestGenerateIsIdempotent(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	_, err := svc.CreateRule(ctx, monthlyRent(), 1)
	require.NoError(t, err)

	first, err := svc.Generate(ctx, 2024, time.January)
	require.NoError(t, err)
	require.Equal(t, 1, first.Generated)

	second, err := svc.Generate(ctx, 2024, time.January)
	require.NoError(t, err)
	require.Zero(t, second.Generated)
	require.Equal(t, 1, second.Skipped)
	require.Len(t, repo.movements, 1)

	// a different month generates fresh
	third, err := svc.Generate(ctx, 2024, time.February)
	require.NoError(t, err)
	require.Equal(t, 1, third.Generated)
	require.Len(t, repo.movements, 2)
}

func TestGenerateIsolatesFailingRules(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	broken, err := svc.CreateRule(ctx, CreateInput{
		Kind: KindExpense, Name: "Energia", Value: 600,
		Schedule: ScheduleMonthly, DayOfMonth: 10,
	}, 1)
	require.NoError(t, err)
	_, err = svc.CreateRule(ctx, monthlyRent(), 1)
	require.NoError(t, err)

	repo.failRule = broken.ID
	result, err := svc.Generate(ctx, 2024, time.March)
	require.NoError(t, err)
	require.Equal(t, 1, result.Generated)
	require.Len(t, result.Failures, 1)
	require.Equal(t, broken.ID, result.Failures[0].RuleID)

	// retry after the failure clears only fills the gap
	repo.failRule = 0
	retry, err := svc.Generate(ctx, 2024, time.March)
	require.NoError(t, err)
	require.Equal(t, 1, retry.Generated)
	require.Equal(t, 1, retry.Skipped)
}

func TestGenerateSkipsInactiveRules(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	rule, err := svc.CreateRule(ctx, monthlyRent(), 1)
	require.NoError(t, err)
	require.NoError(t, svc.DeactivateRule(ctx, rule.ID, 1))

	result, err := svc.Generate(ctx, 2024, time.January)
	require.NoError(t, err)
	require.Zero(t, result.Generated)
	require.Empty(t, repo.movements)
}

func TestGenerateWeeklyTax(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	_, err := svc.CreateRule(ctx, CreateInput{
		Kind: KindTax, Name: "Taxa feira", Value: 50,
		Schedule: ScheduleWeekly, Weekday: int(time.Monday),
	}, 1)
	require.NoError(t, err)

	result, err := svc.Generate(ctx, 2024, time.March)
	require.NoError(t, err)
	require.Equal(t, 4, result.Generated)
	for _, m := range repo.movements {
		require.Equal(t, ledger.TypeTax, m.Type)
		require.Equal(t, ledger.EntityRecurringTax, m.RelatedEntityType)
	}
}

func TestUpdateRule(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	rule, err := svc.CreateRule(ctx, monthlyRent(), 1)
	require.NoError(t, err)

	_, err = svc.UpdateRule(ctx, rule.ID, UpdateInput{}, 1)
	require.ErrorIs(t, err, ErrNoUpdates)

	newValue := 2200.0
	updated, err := svc.UpdateRule(ctx, rule.ID, UpdateInput{Value: &newValue}, 1)
	require.NoError(t, err)
	require.InDelta(t, 2200, updated.Value, 1e-9)

	require.NoError(t, svc.DeactivateRule(ctx, rule.ID, 1))
	_, err = svc.UpdateRule(ctx, rule.ID, UpdateInput{Value: &newValue}, 1)
	require.ErrorIs(t, err, ErrRuleInactive)
}

func TestUpdateRuleSchedule(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	yearly, err := svc.CreateRule(ctx, CreateInput{
		Kind: KindTax, Name: "IPTU", Value: 1200,
		Schedule: ScheduleYearly, DayOfMonth: 10, Month: time.March,
	}, 1)
	require.NoError(t, err)

	month := time.July
	updated, err := svc.UpdateRule(ctx, yearly.ID, UpdateInput{Month: &month}, 1)
	require.NoError(t, err)
	require.Equal(t, time.July, updated.Month)
	require.Equal(t, time.July, repo.rules[yearly.ID].Month)

	bad := time.Month(13)
	_, err = svc.UpdateRule(ctx, yearly.ID, UpdateInput{Month: &bad}, 1)
	require.ErrorIs(t, err, ErrInvalidSchedule)

	weekly, err := svc.CreateRule(ctx, CreateInput{
		Kind: KindExpense, Name: "Feira", Value: 300,
		Schedule: ScheduleWeekly, Weekday: int(time.Monday),
	}, 1)
	require.NoError(t, err)

	day := time.Thursday
	updated, err = svc.UpdateRule(ctx, weekly.ID, UpdateInput{Weekday: &day}, 1)
	require.NoError(t, err)
	require.Equal(t, time.Thursday, updated.Weekday)
	require.Equal(t, time.Thursday, repo.rules[weekly.ID].Weekday)

	badDay := time.Weekday(7)
	_, err = svc.UpdateRule(ctx, weekly.ID, UpdateInput{Weekday: &badDay}, 1)
	require.ErrorIs(t, err, ErrInvalidSchedule)
}

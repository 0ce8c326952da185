package ledger

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brasato/brasato/internal/platform/db"
)

// RepositoryPort is the storage surface the movement service needs.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error
	Get(ctx context.Context, id int64) (Movement, error)
	List(ctx context.Context, f ListFilter) ([]Movement, error)
	SumByType(ctx context.Context, from, to time.Time, status PaymentStatus) (map[MovementType]float64, error)
	ReconciliationRows(ctx context.Context, f ReconciliationFilter) ([]Movement, error)
}

// TxRepository exposes movement writes inside one transaction.
type TxRepository interface {
	Insert(ctx context.Context, m Movement) (Movement, error)
	GetForUpdate(ctx context.Context, id int64) (Movement, error)
	Update(ctx context.Context, m Movement) error
}

// Repository is the Postgres-backed implementation.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{q: tx})
	})
}

func (r *Repository) Get(ctx context.Context, id int64) (Movement, error) {
	return GetMovement(ctx, r.pool, id)
}

func (r *Repository) List(ctx context.Context, f ListFilter) ([]Movement, error) {
	return listMovements(ctx, r.pool, f)
}

func (r *Repository) SumByType(ctx context.Context, from, to time.Time, status PaymentStatus) (map[MovementType]float64, error) {
	return sumByType(ctx, r.pool, from, to, status)
}

func (r *Repository) ReconciliationRows(ctx context.Context, f ReconciliationFilter) ([]Movement, error) {
	return reconciliationRows(ctx, r.pool, f)
}

type txRepo struct {
	q db.Queryer
}

func (t *txRepo) Insert(ctx context.Context, m Movement) (Movement, error) {
	return InsertMovement(ctx, t.q, m)
}

func (t *txRepo) GetForUpdate(ctx context.Context, id int64) (Movement, error) {
	return getMovementForUpdate(ctx, t.q, id)
}

func (t *txRepo) Update(ctx context.Context, m Movement) error {
	return updateMovement(ctx, t.q, m)
}

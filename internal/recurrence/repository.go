package recurrence

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brasato/brasato/internal/ledger"
)

// RepositoryPort is the storage surface the recurrence service needs.
type RepositoryPort interface {
	InsertRule(ctx context.Context, r Rule) (Rule, error)
	UpdateRule(ctx context.Context, r Rule) error
	SoftDeleteRule(ctx context.Context, id int64) error
	GetRule(ctx context.Context, id int64) (Rule, error)
	ListRules(ctx context.Context, includeInactive bool) ([]Rule, error)
	InsertMovement(ctx context.Context, m ledger.Movement) (ledger.Movement, error)
}

// Repository is the Postgres-backed implementation. Generated movements go
// through the shared movements table; the recurrence guard index there is
// what makes generation idempotent.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const ruleColumns = `id, kind, name, description, category, subcategory, value,
	schedule, day_of_month, month, weekday, sender_receiver, notes, is_active,
	created_at, updated_at`

func scanRule(row pgx.Row) (Rule, error) {
	var r Rule
	var month, weekday int
	err := row.Scan(&r.ID, &r.Kind, &r.Name, &r.Description, &r.Category,
		&r.Subcategory, &r.Value, &r.Schedule, &r.DayOfMonth, &month, &weekday,
		&r.SenderReceiver, &r.Notes, &r.IsActive, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Rule{}, ErrRuleNotFound
	}
	r.Month = time.Month(month)
	r.Weekday = time.Weekday(weekday)
	return r, err
}

func (r *Repository) InsertRule(ctx context.Context, rule Rule) (Rule, error) {
	return scanRule(r.pool.QueryRow(ctx, `
		INSERT INTO recurrence_rules (
			kind, name, description, category, subcategory, value,
			schedule, day_of_month, month, weekday, sender_receiver, notes, is_active
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,TRUE)
		RETURNING `+ruleColumns,
		rule.Kind, rule.Name, rule.Description, rule.Category, rule.Subcategory,
		rule.Value, rule.Schedule, rule.DayOfMonth, int(rule.Month),
		int(rule.Weekday), rule.SenderReceiver, rule.Notes))
}

func (r *Repository) UpdateRule(ctx context.Context, rule Rule) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE recurrence_rules SET
			name = $2, description = $3, category = $4, subcategory = $5,
			value = $6, day_of_month = $7, month = $8, weekday = $9,
			sender_receiver = $10, notes = $11, updated_at = NOW()
		WHERE id = $1`,
		rule.ID, rule.Name, rule.Description, rule.Category, rule.Subcategory,
		rule.Value, rule.DayOfMonth, int(rule.Month), int(rule.Weekday),
		rule.SenderReceiver, rule.Notes)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRuleNotFound
	}
	return nil
}

func (r *Repository) SoftDeleteRule(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE recurrence_rules SET is_active = FALSE, updated_at = NOW()
		WHERE id = $1 AND is_active`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRuleNotFound
	}
	return nil
}

func (r *Repository) GetRule(ctx context.Context, id int64) (Rule, error) {
	return scanRule(r.pool.QueryRow(ctx,
		`SELECT `+ruleColumns+` FROM recurrence_rules WHERE id = $1`, id))
}

func (r *Repository) ListRules(ctx context.Context, includeInactive bool) ([]Rule, error) {
	sql := `SELECT ` + ruleColumns + ` FROM recurrence_rules`
	if !includeInactive {
		sql += ` WHERE is_active`
	}
	sql += ` ORDER BY name, id`
	rows, err := r.pool.Query(ctx, sql)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Rule{}
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rule)
	}
	return out, rows.Err()
}

func (r *Repository) InsertMovement(ctx context.Context, m ledger.Movement) (ledger.Movement, error) {
	return ledger.InsertMovement(ctx, r.pool, m)
}

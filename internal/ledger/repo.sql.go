package ledger

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/brasato/brasato/internal/platform/db"
)

const movementColumns = `id, type, value, category, subcategory, description,
	movement_date, payment_status, payment_method, sender_receiver,
	related_entity_type, related_entity_id, recurrence_period, notes,
	gateway_id, transaction_id, bank_account, reconciled, reconciled_at,
	created_by, created_at, updated_at`

func scanMovement(row pgx.Row) (Movement, error) {
	var m Movement
	err := row.Scan(&m.ID, &m.Type, &m.Value, &m.Category, &m.Subcategory,
		&m.Description, &m.MovementDate, &m.PaymentStatus, &m.PaymentMethod,
		&m.SenderReceiver, &m.RelatedEntityType, &m.RelatedEntityID,
		&m.RecurrencePeriod, &m.Notes, &m.GatewayID, &m.TransactionID,
		&m.BankAccount, &m.Reconciled, &m.ReconciledAt, &m.CreatedBy,
		&m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Movement{}, ErrMovementNotFound
	}
	return m, err
}

// InsertMovement persists m and returns the stored row. A unique violation on
// the recurrence guard index maps to ErrDuplicateRecurrence so generators can
// treat regeneration as a no-op.
func InsertMovement(ctx context.Context, q db.Queryer, m Movement) (Movement, error) {
	row := q.QueryRow(ctx, `
		INSERT INTO financial_movements (
			type, value, category, subcategory, description,
			movement_date, payment_status, payment_method, sender_receiver,
			related_entity_type, related_entity_id, recurrence_period, notes,
			gateway_id, transaction_id, bank_account, created_by
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
		RETURNING `+movementColumns,
		m.Type, m.Value, m.Category, m.Subcategory, m.Description,
		m.MovementDate, m.PaymentStatus, m.PaymentMethod, m.SenderReceiver,
		m.RelatedEntityType, m.RelatedEntityID, m.RecurrencePeriod, m.Notes,
		m.GatewayID, m.TransactionID, m.BankAccount, m.CreatedBy)
	stored, err := scanMovement(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == "uq_movements_recurrence" {
			return Movement{}, ErrDuplicateRecurrence
		}
		return Movement{}, err
	}
	return stored, nil
}

// GetMovement loads one movement by id.
func GetMovement(ctx context.Context, q db.Queryer, id int64) (Movement, error) {
	return scanMovement(q.QueryRow(ctx,
		`SELECT `+movementColumns+` FROM financial_movements WHERE id = $1`, id))
}

func getMovementForUpdate(ctx context.Context, q db.Queryer, id int64) (Movement, error) {
	return scanMovement(q.QueryRow(ctx,
		`SELECT `+movementColumns+` FROM financial_movements WHERE id = $1 FOR UPDATE`, id))
}

func updateMovement(ctx context.Context, q db.Queryer, m Movement) error {
	tag, err := q.Exec(ctx, `
		UPDATE financial_movements SET
			type = $2, value = $3, category = $4, subcategory = $5,
			description = $6, movement_date = $7, payment_status = $8,
			payment_method = $9, sender_receiver = $10, notes = $11,
			gateway_id = $12, transaction_id = $13, bank_account = $14,
			reconciled = $15, reconciled_at = $16, updated_at = NOW()
		WHERE id = $1`,
		m.ID, m.Type, m.Value, m.Category, m.Subcategory, m.Description,
		m.MovementDate, m.PaymentStatus, m.PaymentMethod, m.SenderReceiver,
		m.Notes, m.GatewayID, m.TransactionID, m.BankAccount,
		m.Reconciled, m.ReconciledAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrMovementNotFound
	}
	return nil
}

func listMovements(ctx context.Context, q db.Queryer, f ListFilter) ([]Movement, error) {
	sql := `SELECT ` + movementColumns + ` FROM financial_movements WHERE 1=1`
	args := []any{}
	add := func(clause string, v any) {
		args = append(args, v)
		sql += " AND " + clause + "$" + strconv.Itoa(len(args))
	}
	if !f.From.IsZero() {
		add("COALESCE(movement_date, created_at) >= ", f.From)
	}
	if !f.To.IsZero() {
		add("COALESCE(movement_date, created_at) < ", f.To)
	}
	if f.Type != "" {
		add("type = ", f.Type)
	}
	if f.Category != "" {
		add("category = ", f.Category)
	}
	if f.PaymentStatus != "" {
		add("payment_status = ", f.PaymentStatus)
	}
	if f.RelatedEntityType != "" {
		add("related_entity_type = ", f.RelatedEntityType)
	}
	if f.RelatedEntityID != 0 {
		add("related_entity_id = ", f.RelatedEntityID)
	}
	if f.GatewayID != "" {
		add("gateway_id = ", f.GatewayID)
	}
	if f.TransactionID != "" {
		add("transaction_id = ", f.TransactionID)
	}
	if f.BankAccount != "" {
		add("bank_account = ", f.BankAccount)
	}
	if f.Reconciled != nil {
		add("reconciled = ", *f.Reconciled)
	}

	orderCol := "COALESCE(movement_date, created_at)"
	if f.SortBy == "value" {
		orderCol = "value"
	}
	dir := "DESC"
	if f.SortDir == "asc" {
		dir = "ASC"
	}
	sql += " ORDER BY " + orderCol + " " + dir + ", id " + dir
	if f.Limit > 0 {
		sql += " LIMIT " + strconv.Itoa(f.Limit) + " OFFSET " + strconv.Itoa(f.Offset)
	}

	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Movement{}
	for rows.Next() {
		m, err := scanMovement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func sumByType(ctx context.Context, q db.Queryer, from, to time.Time, status PaymentStatus) (map[MovementType]float64, error) {
	rows, err := q.Query(ctx, `
		SELECT type, COALESCE(SUM(value), 0)
		FROM financial_movements
		WHERE payment_status = $1
		  AND COALESCE(movement_date, created_at) >= $2
		  AND COALESCE(movement_date, created_at) < $3
		GROUP BY type`, status, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	totals := map[MovementType]float64{}
	for rows.Next() {
		var t MovementType
		var v float64
		if err := rows.Scan(&t, &v); err != nil {
			return nil, err
		}
		totals[t] = v
	}
	return totals, rows.Err()
}

func reconciliationRows(ctx context.Context, q db.Queryer, f ReconciliationFilter) ([]Movement, error) {
	lf := ListFilter{
		From:          f.From,
		To:            f.To,
		PaymentStatus: StatusPaid,
		Reconciled:    f.Reconciled,
		GatewayID:     f.GatewayID,
		SortDir:       "asc",
	}
	return listMovements(ctx, q, lf)
}

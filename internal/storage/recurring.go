package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"gastos/internal/core"
)

const recurringColumns = `id, name, amount_cents, periodicity, category, fund_id, prorate, billing_month, active, last_applied_year, last_applied_month`

func scanRecurring(row interface{ Scan(...any) error }) (core.RecurringExpense, error) {
	var (
		re          core.RecurringExpense
		periodicity string
		category    string
		fundID      sql.NullInt64
	)
	if err := row.Scan(&re.ID, &re.Name, &re.Amount.Cents, &periodicity, &category, &fundID,
		&re.Prorate, &re.BillingMonth, &re.Active, &re.LastApplied.Year, &re.LastApplied.Month); err != nil {
		return core.RecurringExpense{}, err
	}
	re.Periodicity = core.Periodicity(periodicity)
	re.Category = core.Category(category)
	re.FundID = idPtr(fundID)
	return re, nil
}

// CreateRecurringExpense stores a template. New templates have never been applied.
func (s *Store) CreateRecurringExpense(ctx context.Context, re *core.RecurringExpense) error {
	if re.BillingMonth == 0 {
		re.BillingMonth = 1
	}
	if err := re.Validate(); err != nil {
		return err
	}
	re.LastApplied = core.YearMonth{}

	id, err := insertReturningID(ctx, s.db, s.d,
		`INSERT INTO recurring_expenses (name, amount_cents, periodicity, category, fund_id, prorate, billing_month, active)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		re.Name, re.Amount.Cents, string(re.Periodicity), string(re.Category), nullableID(re.FundID),
		re.Prorate, re.BillingMonth, re.Active,
	)
	if err != nil {
		return fmt.Errorf("insert recurring expense: %w", err)
	}
	re.ID = id
	return nil
}

// ListRecurringExpenses returns templates ordered by id.
func (s *Store) ListRecurringExpenses(ctx context.Context, activeOnly bool) ([]core.RecurringExpense, error) {
	query := `SELECT ` + recurringColumns + ` FROM recurring_expenses`
	var args []any
	if activeOnly {
		query += ` WHERE active = ?`
		args = append(args, true)
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, s.d.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list recurring expenses: %w", err)
	}
	defer rows.Close()

	var out []core.RecurringExpense
	for rows.Next() {
		re, err := scanRecurring(rows)
		if err != nil {
			return nil, fmt.Errorf("scan recurring expense: %w", err)
		}
		out = append(out, re)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recurring expenses: %w", err)
	}
	return out, nil
}

func (s *Store) SetRecurringActive(ctx context.Context, id int64, active bool) error {
	res, err := s.exec(ctx, `UPDATE recurring_expenses SET active = ? WHERE id = ?`, active, id)
	if err != nil {
		return fmt.Errorf("update recurring expense: %w", err)
	}
	return expectRow(res, core.NotFound("recurring expense", id))
}

// LockRecurringExpense re-reads a template inside the transaction so its
// marker can be checked and advanced atomically.
func (t *Tx) LockRecurringExpense(ctx context.Context, id int64) (core.RecurringExpense, error) {
	re, err := scanRecurring(t.tx.QueryRowContext(ctx,
		t.d.rebind(t.d.lock(`SELECT `+recurringColumns+` FROM recurring_expenses WHERE id = ?`)), id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.RecurringExpense{}, core.NotFound("recurring expense", id)
	}
	if err != nil {
		return core.RecurringExpense{}, fmt.Errorf("lock recurring expense: %w", err)
	}
	return re, nil
}

// MarkRecurringApplied advances the idempotency marker.
func (t *Tx) MarkRecurringApplied(ctx context.Context, id int64, ym core.YearMonth) error {
	res, err := t.exec(ctx,
		`UPDATE recurring_expenses SET last_applied_year = ?, last_applied_month = ? WHERE id = ?`,
		ym.Year, ym.Month, id,
	)
	if err != nil {
		return fmt.Errorf("mark recurring expense applied: %w", err)
	}
	return expectRow(res, core.NotFound("recurring expense", id))
}

package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"gastos/internal/core"
)

const expenseColumns = `id, description, amount_cents, date, category, paid_by, fund_id, recurring_expense_id, created_at`

// ExpenseFilter narrows ListExpenses. Zero fields do not filter.
type ExpenseFilter struct {
	Category     core.Category
	FundID       int64
	PersonalOnly bool
	PaidBy       int64
	From         core.Date // inclusive
	To           core.Date // exclusive
}

func scanExpense(row interface{ Scan(...any) error }) (core.Expense, error) {
	var (
		e         core.Expense
		date      dbDate
		category  string
		fundID    sql.NullInt64
		recurring sql.NullInt64
		createdAt int64
	)
	if err := row.Scan(&e.ID, &e.Description, &e.Amount.Cents, &date, &category, &e.PaidBy, &fundID, &recurring, &createdAt); err != nil {
		return core.Expense{}, err
	}
	e.Date = date.Date
	e.Category = core.Category(category)
	e.FundID = idPtr(fundID)
	e.RecurringExpenseID = idPtr(recurring)
	e.CreatedAt = time.Unix(createdAt, 0)
	return e, nil
}

// InsertExpense stores the expense row only. Fund balances are the caller's
// responsibility within the same transaction.
func (t *Tx) InsertExpense(ctx context.Context, e *core.Expense) error {
	if err := e.Validate(); err != nil {
		return err
	}
	now := unixNow()
	id, err := insertReturningID(ctx, t.tx, t.d,
		`INSERT INTO expenses (description, amount_cents, date, category, paid_by, fund_id, recurring_expense_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Description, e.Amount.Cents, t.d.dateArg(e.Date), string(e.Category), e.PaidBy,
		nullableID(e.FundID), nullableID(e.RecurringExpenseID), now,
	)
	if err != nil {
		return fmt.Errorf("insert expense: %w", err)
	}
	e.ID = id
	e.CreatedAt = time.Unix(now, 0)
	return nil
}

// ListExpenses returns matching expenses, newest first.
func (s *Store) ListExpenses(ctx context.Context, f ExpenseFilter) ([]core.Expense, error) {
	var (
		conds []string
		args  []any
	)
	if f.Category != "" {
		conds = append(conds, "category = ?")
		args = append(args, string(f.Category))
	}
	if f.FundID != 0 {
		conds = append(conds, "fund_id = ?")
		args = append(args, f.FundID)
	}
	if f.PersonalOnly {
		conds = append(conds, "fund_id IS NULL")
	}
	if f.PaidBy != 0 {
		conds = append(conds, "paid_by = ?")
		args = append(args, f.PaidBy)
	}
	if !f.From.IsZero() {
		conds = append(conds, "date >= ?")
		args = append(args, s.d.dateArg(f.From))
	}
	if !f.To.IsZero() {
		conds = append(conds, "date < ?")
		args = append(args, s.d.dateArg(f.To))
	}

	query := `SELECT ` + expenseColumns + ` FROM expenses`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY date DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, s.d.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	defer rows.Close()

	var expenses []core.Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		expenses = append(expenses, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expenses: %w", err)
	}
	return expenses, nil
}

// CategoryTotal is the sum of expenses of one category in a period.
type CategoryTotal struct {
	Category core.Category
	Total    core.Money
	Count    int
}

// CategoryTotals aggregates expenses in [from, to) by category.
func (s *Store) CategoryTotals(ctx context.Context, from, to core.Date) ([]CategoryTotal, error) {
	rows, err := s.db.QueryContext(ctx, s.d.rebind(
		`SELECT category, COALESCE(CAST(SUM(amount_cents) AS BIGINT), 0), COUNT(*)
		 FROM expenses WHERE date >= ? AND date < ?
		 GROUP BY category ORDER BY category`),
		s.d.dateArg(from), s.d.dateArg(to),
	)
	if err != nil {
		return nil, fmt.Errorf("category totals: %w", err)
	}
	defer rows.Close()

	var totals []CategoryTotal
	for rows.Next() {
		var (
			ct       CategoryTotal
			category string
		)
		if err := rows.Scan(&category, &ct.Total.Cents, &ct.Count); err != nil {
			return nil, fmt.Errorf("scan category total: %w", err)
		}
		ct.Category = core.Category(category)
		totals = append(totals, ct)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate category totals: %w", err)
	}
	return totals, nil
}

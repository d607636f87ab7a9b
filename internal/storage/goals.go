package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"gastos/internal/core"
)

const goalColumns = `id, name, target_amount_cents, monthly_contribution_cents, destination_fund_id, active, last_applied_year, last_applied_month`

func scanGoal(row interface{ Scan(...any) error }) (core.SavingsGoal, error) {
	var g core.SavingsGoal
	if err := row.Scan(&g.ID, &g.Name, &g.TargetAmount.Cents, &g.MonthlyContribution.Cents,
		&g.DestinationFundID, &g.Active, &g.LastApplied.Year, &g.LastApplied.Month); err != nil {
		return core.SavingsGoal{}, err
	}
	return g, nil
}

// CreateSavingsGoal stores a goal. The destination fund must exist.
func (s *Store) CreateSavingsGoal(ctx context.Context, g *core.SavingsGoal) error {
	if err := g.Validate(); err != nil {
		return err
	}
	if _, err := s.GetFund(ctx, g.DestinationFundID); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return core.Invalid("destination_fund", core.ErrNotFound)
		}
		return err
	}
	g.LastApplied = core.YearMonth{}

	id, err := insertReturningID(ctx, s.db, s.d,
		`INSERT INTO savings_goals (name, target_amount_cents, monthly_contribution_cents, destination_fund_id, active)
		 VALUES (?, ?, ?, ?, ?)`,
		g.Name, g.TargetAmount.Cents, g.MonthlyContribution.Cents, g.DestinationFundID, g.Active,
	)
	if err != nil {
		return fmt.Errorf("insert savings goal: %w", err)
	}
	g.ID = id
	return nil
}

// ListSavingsGoals returns goals ordered by id.
func (s *Store) ListSavingsGoals(ctx context.Context, activeOnly bool) ([]core.SavingsGoal, error) {
	query := `SELECT ` + goalColumns + ` FROM savings_goals`
	var args []any
	if activeOnly {
		query += ` WHERE active = ?`
		args = append(args, true)
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, s.d.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list savings goals: %w", err)
	}
	defer rows.Close()

	var out []core.SavingsGoal
	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan savings goal: %w", err)
		}
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate savings goals: %w", err)
	}
	return out, nil
}

func (s *Store) SetGoalActive(ctx context.Context, id int64, active bool) error {
	res, err := s.exec(ctx, `UPDATE savings_goals SET active = ? WHERE id = ?`, active, id)
	if err != nil {
		return fmt.Errorf("update savings goal: %w", err)
	}
	return expectRow(res, core.NotFound("savings goal", id))
}

func (t *Tx) LockSavingsGoal(ctx context.Context, id int64) (core.SavingsGoal, error) {
	g, err := scanGoal(t.tx.QueryRowContext(ctx,
		t.d.rebind(t.d.lock(`SELECT `+goalColumns+` FROM savings_goals WHERE id = ?`)), id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.SavingsGoal{}, core.NotFound("savings goal", id)
	}
	if err != nil {
		return core.SavingsGoal{}, fmt.Errorf("lock savings goal: %w", err)
	}
	return g, nil
}

func (t *Tx) MarkGoalApplied(ctx context.Context, id int64, ym core.YearMonth) error {
	res, err := t.exec(ctx,
		`UPDATE savings_goals SET last_applied_year = ?, last_applied_month = ? WHERE id = ?`,
		ym.Year, ym.Month, id,
	)
	if err != nil {
		return fmt.Errorf("mark savings goal applied: %w", err)
	}
	return expectRow(res, core.NotFound("savings goal", id))
}

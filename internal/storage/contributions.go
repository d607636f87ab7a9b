package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"gastos/internal/core"
)

const contributionColumns = `id, fund_id, date, amount_cents, contributor_id, is_automatic, savings_goal_id, created_at`

func scanContribution(row interface{ Scan(...any) error }) (core.Contribution, error) {
	var (
		c           core.Contribution
		date        dbDate
		contributor sql.NullInt64
		goal        sql.NullInt64
		createdAt   int64
	)
	if err := row.Scan(&c.ID, &c.FundID, &date, &c.Amount.Cents, &contributor, &c.IsAutomatic, &goal, &createdAt); err != nil {
		return core.Contribution{}, err
	}
	c.Date = date.Date
	c.ContributorID = idPtr(contributor)
	c.SavingsGoalID = idPtr(goal)
	c.CreatedAt = time.Unix(createdAt, 0)
	return c, nil
}

// InsertContribution stores the contribution and credits the owning fund by
// the same amount. This is the only way contributions are created, so the
// balance increment can never be skipped or applied twice.
func (t *Tx) InsertContribution(ctx context.Context, c *core.Contribution) error {
	if err := c.Validate(); err != nil {
		return err
	}
	now := unixNow()
	id, err := insertReturningID(ctx, t.tx, t.d,
		`INSERT INTO contributions (fund_id, date, amount_cents, contributor_id, is_automatic, savings_goal_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.FundID, t.d.dateArg(c.Date), c.Amount.Cents, nullableID(c.ContributorID), c.IsAutomatic,
		nullableID(c.SavingsGoalID), now,
	)
	if err != nil {
		return fmt.Errorf("insert contribution: %w", err)
	}

	if err := t.AdjustFundBalance(ctx, c.FundID, c.Amount, c.Date); err != nil {
		return fmt.Errorf("credit fund: %w", err)
	}

	c.ID = id
	c.CreatedAt = time.Unix(now, 0)
	return nil
}

// ContributionsBetween returns contributions dated in [from, to), oldest first.
func (s *Store) ContributionsBetween(ctx context.Context, from, to core.Date) ([]core.Contribution, error) {
	rows, err := s.db.QueryContext(ctx, s.d.rebind(
		`SELECT `+contributionColumns+` FROM contributions WHERE date >= ? AND date < ? ORDER BY date, id`),
		s.d.dateArg(from), s.d.dateArg(to),
	)
	if err != nil {
		return nil, fmt.Errorf("list contributions: %w", err)
	}
	defer rows.Close()

	var out []core.Contribution
	for rows.Next() {
		c, err := scanContribution(rows)
		if err != nil {
			return nil, fmt.Errorf("scan contribution: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate contributions: %w", err)
	}
	return out, nil
}

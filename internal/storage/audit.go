package storage

import (
	"context"
	"fmt"

	"gastos/internal/core"
)

// LedgerTotals are the ledger-derived movements of one fund since creation.
type LedgerTotals struct {
	Contributions core.Money
	Expenses      core.Money
	// Adjustments is the net effect of manual overrides, new minus previous.
	Adjustments core.Money
}

// FundLedgerTotals aggregates contributions, fund-backed expenses and manual
// adjustments per fund id. Funds without movements are absent from the map.
// The three sums run as separate statements; use Tx.FundLedgerTotals inside
// InReadTx when they must agree with a fund read.
func (s *Store) FundLedgerTotals(ctx context.Context) (map[int64]LedgerTotals, error) {
	return fundLedgerTotals(ctx, s.db)
}

// FundLedgerTotals aggregates the ledger inside the transaction's snapshot.
func (t *Tx) FundLedgerTotals(ctx context.Context) (map[int64]LedgerTotals, error) {
	return fundLedgerTotals(ctx, t.tx)
}

func fundLedgerTotals(ctx context.Context, db querier) (map[int64]LedgerTotals, error) {
	totals := make(map[int64]LedgerTotals)

	queries := []struct {
		name  string
		query string
		apply func(*LedgerTotals, int64)
	}{
		{
			name:  "contributions",
			query: `SELECT fund_id, COALESCE(CAST(SUM(amount_cents) AS BIGINT), 0) FROM contributions GROUP BY fund_id`,
			apply: func(t *LedgerTotals, c int64) { t.Contributions.Cents = c },
		},
		{
			name:  "expenses",
			query: `SELECT fund_id, COALESCE(CAST(SUM(amount_cents) AS BIGINT), 0) FROM expenses WHERE fund_id IS NOT NULL GROUP BY fund_id`,
			apply: func(t *LedgerTotals, c int64) { t.Expenses.Cents = c },
		},
		{
			name:  "adjustments",
			query: `SELECT fund_id, COALESCE(CAST(SUM(new_cents - previous_cents) AS BIGINT), 0) FROM fund_adjustments GROUP BY fund_id`,
			apply: func(t *LedgerTotals, c int64) { t.Adjustments.Cents = c },
		},
	}

	for _, q := range queries {
		if err := sumByFund(ctx, db, q.query, func(fundID, cents int64) {
			t := totals[fundID]
			q.apply(&t, cents)
			totals[fundID] = t
		}); err != nil {
			return nil, fmt.Errorf("sum %s: %w", q.name, err)
		}
	}
	return totals, nil
}

func sumByFund(ctx context.Context, db querier, query string, fn func(fundID, cents int64)) error {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var fundID, cents int64
		if err := rows.Scan(&fundID, &cents); err != nil {
			return err
		}
		fn(fundID, cents)
	}
	return rows.Err()
}

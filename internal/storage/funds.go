package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"gastos/internal/core"
)

const fundColumns = `id, kind, name, balance_cents, initial_balance_cents, last_updated`

func scanFund(row interface{ Scan(...any) error }) (core.Fund, error) {
	var (
		f       core.Fund
		kind    string
		updated dbDate
	)
	if err := row.Scan(&f.ID, &kind, &f.Name, &f.Balance.Cents, &f.InitialBalance.Cents, &updated); err != nil {
		return core.Fund{}, err
	}
	f.Kind = core.FundKind(kind)
	f.LastUpdated = updated.Date
	return f, nil
}

func getFund(ctx context.Context, q querier, d dialect, where string, lock bool, arg any) (core.Fund, error) {
	query := `SELECT ` + fundColumns + ` FROM funds WHERE ` + where
	if lock {
		query = d.lock(query)
	}
	return scanFund(q.QueryRowContext(ctx, d.rebind(query), arg))
}

// CreateFund inserts a fund; its starting balance doubles as the audit baseline.
func (s *Store) CreateFund(ctx context.Context, f *core.Fund) error {
	if !f.Kind.Valid() {
		return core.Invalid("kind", core.ErrInvalidFundKind)
	}
	if f.Name == "" {
		f.Name = string(f.Kind)
	}
	if f.LastUpdated.IsZero() {
		f.LastUpdated = core.DateOf(time.Now())
	}
	f.InitialBalance = f.Balance

	id, err := insertReturningID(ctx, s.db, s.d,
		`INSERT INTO funds (kind, name, balance_cents, initial_balance_cents, last_updated) VALUES (?, ?, ?, ?, ?)`,
		string(f.Kind), f.Name, f.Balance.Cents, f.InitialBalance.Cents, s.d.dateArg(f.LastUpdated),
	)
	if err != nil {
		return fmt.Errorf("insert fund: %w", err)
	}
	f.ID = id
	return nil
}

// GetFund returns ErrNotFound when the fund does not exist.
func (s *Store) GetFund(ctx context.Context, id int64) (core.Fund, error) {
	f, err := getFund(ctx, s.db, s.d, `id = ?`, false, id)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Fund{}, core.NotFound("fund", id)
	}
	if err != nil {
		return core.Fund{}, fmt.Errorf("get fund: %w", err)
	}
	return f, nil
}

// ListFunds returns every fund ordered by id.
func (s *Store) ListFunds(ctx context.Context) ([]core.Fund, error) {
	return listFunds(ctx, s.db)
}

// ListFunds reads every fund inside the transaction without locking.
func (t *Tx) ListFunds(ctx context.Context) ([]core.Fund, error) {
	return listFunds(ctx, t.tx)
}

// GetFund reads a fund inside the transaction without locking it.
func (t *Tx) GetFund(ctx context.Context, id int64) (core.Fund, error) {
	f, err := getFund(ctx, t.tx, t.d, `id = ?`, false, id)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Fund{}, core.NotFound("fund", id)
	}
	if err != nil {
		return core.Fund{}, fmt.Errorf("get fund: %w", err)
	}
	return f, nil
}

func listFunds(ctx context.Context, q querier) ([]core.Fund, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+fundColumns+` FROM funds ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list funds: %w", err)
	}
	defer rows.Close()

	var funds []core.Fund
	for rows.Next() {
		f, err := scanFund(rows)
		if err != nil {
			return nil, fmt.Errorf("scan fund: %w", err)
		}
		funds = append(funds, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate funds: %w", err)
	}
	return funds, nil
}

// LockFund reads a fund with a row lock held until the transaction ends.
func (t *Tx) LockFund(ctx context.Context, id int64) (core.Fund, error) {
	f, err := getFund(ctx, t.tx, t.d, `id = ?`, true, id)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Fund{}, core.NotFound("fund", id)
	}
	if err != nil {
		return core.Fund{}, fmt.Errorf("lock fund: %w", err)
	}
	return f, nil
}

// LockFundByKind is LockFund keyed by kind. At most one fund exists per kind.
func (t *Tx) LockFundByKind(ctx context.Context, kind core.FundKind) (core.Fund, error) {
	f, err := getFund(ctx, t.tx, t.d, `kind = ?`, true, string(kind))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Fund{}, fmt.Errorf("fund of kind %s: %w", kind, core.ErrNotFound)
	}
	if err != nil {
		return core.Fund{}, fmt.Errorf("lock fund by kind: %w", err)
	}
	return f, nil
}

// AdjustFundBalance adds delta to the fund balance. Callers must pair it with
// the ledger row that explains the change in the same transaction.
func (t *Tx) AdjustFundBalance(ctx context.Context, fundID int64, delta core.Money, on core.Date) error {
	res, err := t.exec(ctx,
		`UPDATE funds SET balance_cents = balance_cents + ?, last_updated = ? WHERE id = ?`,
		delta.Cents, t.d.dateArg(on), fundID,
	)
	if err != nil {
		return fmt.Errorf("adjust fund balance: %w", err)
	}
	return expectRow(res, core.NotFound("fund", fundID))
}

// SetFundBalance overrides the balance and records the override in
// fund_adjustments so the drift audit can account for it.
func (t *Tx) SetFundBalance(ctx context.Context, fundID int64, balance core.Money, note string, on core.Date) (core.FundAdjustment, error) {
	f, err := t.LockFund(ctx, fundID)
	if err != nil {
		return core.FundAdjustment{}, err
	}

	adj := core.FundAdjustment{
		FundID:   fundID,
		Previous: f.Balance,
		New:      balance,
		Note:     note,
	}
	now := unixNow()
	adj.ID, err = insertReturningID(ctx, t.tx, t.d,
		`INSERT INTO fund_adjustments (fund_id, previous_cents, new_cents, note, created_at) VALUES (?, ?, ?, ?, ?)`,
		fundID, adj.Previous.Cents, adj.New.Cents, note, now,
	)
	if err != nil {
		return core.FundAdjustment{}, fmt.Errorf("insert fund adjustment: %w", err)
	}
	adj.CreatedAt = time.Unix(now, 0)

	if _, err := t.exec(ctx,
		`UPDATE funds SET balance_cents = ?, last_updated = ? WHERE id = ?`,
		balance.Cents, t.d.dateArg(on), fundID,
	); err != nil {
		return core.FundAdjustment{}, fmt.Errorf("set fund balance: %w", err)
	}
	return adj, nil
}

package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"gastos/internal/core"
	"gastos/internal/storage"
)

// NewExpense is a user submission before fund attribution.
type NewExpense struct {
	Description string
	Amount      core.Money
	Date        core.Date
	Category    core.Category
	PaidBy      int64
	// FundID is the fund the submitter picked explicitly, if any.
	FundID *int64
}

// ExpenseResult is a persisted expense together with the fund it was
// charged to (nil when personal) and any non-blocking warnings.
type ExpenseResult struct {
	Expense  core.Expense
	Fund     *core.Fund
	Warnings []core.Warning
}

// Router attributes new expenses to a fund or to personal debt and
// persists them.
type Router struct {
	store *storage.Store
}

func NewRouter(store *storage.Store) *Router {
	return &Router{store: store}
}

// Create validates the submission, resolves its fund and writes the expense
// and the fund debit in one transaction.
func (r *Router) Create(ctx context.Context, pair core.Pair, in NewExpense) (ExpenseResult, error) {
	if !pair.Has(in.PaidBy) {
		return ExpenseResult{}, core.Invalid("paid_by", core.ErrUnknownUser)
	}

	e := core.Expense{
		Description: in.Description,
		Amount:      in.Amount,
		Date:        in.Date,
		Category:    in.Category,
		PaidBy:      in.PaidBy,
	}
	if err := e.Validate(); err != nil {
		return ExpenseResult{}, err
	}

	var result ExpenseResult
	err := r.store.InTx(ctx, func(tx *storage.Tx) error {
		result = ExpenseResult{}
		e.ID, e.FundID = 0, nil

		fund, warnings, err := resolveFund(ctx, tx, in)
		if err != nil {
			return err
		}
		result.Warnings = warnings

		if fund != nil {
			if fund.Balance.Cents < e.Amount.Cents {
				result.Warnings = append(result.Warnings, core.Warning{
					Code: core.WarnInsufficientFunds,
					Message: fmt.Sprintf("fund %s will go negative: balance %s, expense %s",
						fund.Name, fund.Balance, e.Amount),
				})
			}
			e.FundID = core.Int64Ptr(fund.ID)
		}

		if err := tx.InsertExpense(ctx, &e); err != nil {
			return err
		}

		if fund != nil {
			if err := tx.AdjustFundBalance(ctx, fund.ID, e.Amount.Neg(), e.Date); err != nil {
				return err
			}
			fund.Balance = fund.Balance.Sub(e.Amount)
			fund.LastUpdated = e.Date
			result.Fund = fund
		}
		return nil
	})
	if err != nil {
		return ExpenseResult{}, fmt.Errorf("create expense: %w", err)
	}

	result.Expense = e
	return result, nil
}

// resolveFund applies the attribution rules: an explicit fund wins, then the
// category mapping. A missing explicit fund degrades to personal with a
// warning; a mapped kind without a fund is silently personal. The returned
// fund is locked until the transaction ends.
func resolveFund(ctx context.Context, tx *storage.Tx, in NewExpense) (*core.Fund, []core.Warning, error) {
	if in.FundID != nil {
		f, err := tx.LockFund(ctx, *in.FundID)
		if errors.Is(err, core.ErrNotFound) {
			slog.WarnContext(ctx, "Explicit fund not found, recording as personal expense",
				"fund_id", *in.FundID)
			return nil, []core.Warning{{
				Code:    core.WarnFundNotFound,
				Message: fmt.Sprintf("fund %d does not exist; the expense was recorded as shared debt", *in.FundID),
			}}, nil
		}
		if err != nil {
			return nil, nil, err
		}
		return &f, nil, nil
	}

	kind, ok := in.Category.FundKind()
	if !ok {
		return nil, nil, nil
	}
	f, err := tx.LockFundByKind(ctx, kind)
	if errors.Is(err, core.ErrNotFound) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	return &f, nil, nil
}

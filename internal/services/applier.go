package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"gastos/internal/core"
	"gastos/internal/log"
	"gastos/internal/metrics"
	"gastos/internal/storage"
)

// Applier item kinds, used in reports and metrics.
const (
	ItemRecurring = "recurring"
	ItemGoal      = "goal"
)

// DefaultRecurringMarker prefixes the description of applied recurring expenses.
const DefaultRecurringMarker = "[Recurring]"

// ApplierOptions configure how recurring expenses are booked.
type ApplierOptions struct {
	Marker string
	// DefaultPayer is the username recorded as payer of recurring expenses.
	DefaultPayer string
}

// SkippedItem is a recurring expense or goal left pending for this month.
// It is retried on the next pass.
type SkippedItem struct {
	Kind   string `json:"kind"`
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// ApplyReport summarizes one pass of the monthly applier.
type ApplyReport struct {
	Month         core.YearMonth
	Expenses      []core.Expense
	Contributions []core.Contribution
	Skipped       []SkippedItem
}

// Created reports whether the pass wrote anything.
func (r ApplyReport) Created() bool {
	return len(r.Expenses) > 0 || len(r.Contributions) > 0
}

// skipError marks an item that cannot be applied because a referenced row
// is missing. It is reported, not treated as a failure.
type skipError struct{ reason string }

func (e *skipError) Error() string { return e.reason }

// Applier materializes recurring expenses and savings-goal contributions once
// per calendar month.
//
// Each item commits in its own transaction together with its idempotency
// marker, so a failing item never rolls back the others. The marker is
// re-read under a lock inside that transaction, which makes concurrent passes
// from several processes safe; passes within one process are additionally
// collapsed per month.
type Applier struct {
	store   *storage.Store
	opts    ApplierOptions
	metrics *metrics.Metrics
	group   singleflight.Group

	// OnApplied runs once per pass that wrote rows, before callers sharing
	// the pass are released.
	OnApplied func(ctx context.Context, report ApplyReport)
}

func NewApplier(store *storage.Store, opts ApplierOptions, m *metrics.Metrics) *Applier {
	if strings.TrimSpace(opts.Marker) == "" {
		opts.Marker = DefaultRecurringMarker
	}
	return &Applier{store: store, opts: opts, metrics: m}
}

// EnsureMonthApplied applies everything pending for the month containing now.
// Calling it again in the same month is a no-op.
func (a *Applier) EnsureMonthApplied(ctx context.Context, now time.Time) (ApplyReport, error) {
	ym := core.MonthOf(now)
	today := core.DateOf(now)

	v, err, _ := a.group.Do(ym.String(), func() (any, error) {
		// Shared callers must not be cancelled by whichever request arrived first.
		return a.apply(context.WithoutCancel(ctx), ym, today)
	})
	if err != nil {
		return ApplyReport{Month: ym}, err
	}
	return v.(ApplyReport), nil
}

func (a *Applier) apply(ctx context.Context, ym core.YearMonth, today core.Date) (ApplyReport, error) {
	report := ApplyReport{Month: ym}

	recurring, err := a.store.ListRecurringExpenses(ctx, true)
	if err != nil {
		return report, fmt.Errorf("load recurring expenses: %w", err)
	}
	goals, err := a.store.ListSavingsGoals(ctx, true)
	if err != nil {
		return report, fmt.Errorf("load savings goals: %w", err)
	}

	payerID, payerErr := a.resolvePayer(ctx)

	for _, re := range recurring {
		checker, err := GetDuenessChecker(ScheduleOf(re))
		if err != nil {
			a.skip(ctx, &report, ItemRecurring, re.ID, re.Name, err)
			continue
		}
		if !checker.IsDue(re.LastApplied, ym, re.BillingMonth) {
			continue
		}
		if payerErr != nil {
			a.skip(ctx, &report, ItemRecurring, re.ID, re.Name, &skipError{reason: payerErr.Error()})
			continue
		}

		e, err := a.applyRecurring(ctx, re.ID, ym, today, payerID)
		if err != nil {
			a.skip(ctx, &report, ItemRecurring, re.ID, re.Name, err)
			continue
		}
		if e != nil {
			report.Expenses = append(report.Expenses, *e)
			a.metrics.ApplierItem(ItemRecurring, metrics.ResultCreated)
		}
	}

	for _, g := range goals {
		if g.LastApplied == ym {
			continue
		}
		c, err := a.applyGoal(ctx, g.ID, ym, today)
		if err != nil {
			a.skip(ctx, &report, ItemGoal, g.ID, g.Name, err)
			continue
		}
		if c != nil {
			report.Contributions = append(report.Contributions, *c)
			a.metrics.ApplierItem(ItemGoal, metrics.ResultCreated)
		}
	}

	if report.Created() && a.OnApplied != nil {
		a.OnApplied(ctx, report)
	}

	if report.Created() || len(report.Skipped) > 0 {
		slog.InfoContext(ctx, "Monthly application pass complete",
			log.FieldComponent, log.ComponentApplier,
			log.FieldOperation, log.OpApply,
			log.FieldYearMonth, ym.String(),
			"expenses_created", len(report.Expenses),
			"contributions_created", len(report.Contributions),
			"skipped", len(report.Skipped))
	}
	return report, nil
}

func (a *Applier) resolvePayer(ctx context.Context) (int64, error) {
	participants, err := a.store.Participants(ctx)
	if err != nil {
		return 0, err
	}
	pair, err := core.NewPair(participants)
	if err != nil {
		return 0, err
	}
	p, ok := pair.ByUsername(a.opts.DefaultPayer)
	if !ok {
		return 0, fmt.Errorf("default payer %q is not a ledger participant", a.opts.DefaultPayer)
	}
	return p.ID, nil
}

func (a *Applier) skip(ctx context.Context, report *ApplyReport, kind string, id int64, name string, err error) {
	result := metrics.ResultFailed
	var se *skipError
	if errors.As(err, &se) {
		result = metrics.ResultSkipped
		slog.WarnContext(ctx, "Monthly item skipped",
			log.FieldComponent, log.ComponentApplier,
			log.FieldOperation, log.OpApply,
			"kind", kind, "id", id, "name", name, "reason", se.reason)
	} else {
		slog.ErrorContext(ctx, "Monthly item failed",
			log.FieldComponent, log.ComponentApplier,
			log.FieldOperation, log.OpApply,
			"kind", kind, "id", id, "name", name, log.FieldError, err)
	}
	a.metrics.ApplierItem(kind, result)
	report.Skipped = append(report.Skipped, SkippedItem{Kind: kind, ID: id, Name: name, Reason: err.Error()})
}

// applyRecurring books one recurring expense. It returns nil when another
// pass applied it first or it is no longer due.
func (a *Applier) applyRecurring(ctx context.Context, id int64, ym core.YearMonth, today core.Date, payerID int64) (*core.Expense, error) {
	var created *core.Expense
	err := a.store.InTx(ctx, func(tx *storage.Tx) error {
		created = nil

		re, err := tx.LockRecurringExpense(ctx, id)
		if err != nil {
			return err
		}
		checker, err := GetDuenessChecker(ScheduleOf(re))
		if err != nil {
			return err
		}
		if !re.Active || !checker.IsDue(re.LastApplied, ym, re.BillingMonth) {
			return nil
		}

		charge := checker.Charge(re.Amount)
		if charge.Cents <= 0 {
			// Too small to prorate; the month still counts as applied.
			return tx.MarkRecurringApplied(ctx, re.ID, ym)
		}

		e := core.Expense{
			Description:        a.opts.Marker + " " + re.Name,
			Amount:             charge,
			Date:               today,
			Category:           re.Category,
			PaidBy:             payerID,
			RecurringExpenseID: core.Int64Ptr(re.ID),
		}
		if re.FundID != nil {
			f, err := tx.LockFund(ctx, *re.FundID)
			if errors.Is(err, core.ErrNotFound) {
				return &skipError{reason: fmt.Sprintf("fund %d not found", *re.FundID)}
			}
			if err != nil {
				return err
			}
			e.FundID = core.Int64Ptr(f.ID)
		}

		if err := tx.InsertExpense(ctx, &e); err != nil {
			return err
		}
		if e.FundID != nil {
			if err := tx.AdjustFundBalance(ctx, *e.FundID, charge.Neg(), today); err != nil {
				return err
			}
		}
		if err := tx.MarkRecurringApplied(ctx, re.ID, ym); err != nil {
			return err
		}
		created = &e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// applyGoal books one automatic contribution of the goal's monthly amount.
// The target amount is informational and never limits the contribution.
func (a *Applier) applyGoal(ctx context.Context, id int64, ym core.YearMonth, today core.Date) (*core.Contribution, error) {
	var created *core.Contribution
	err := a.store.InTx(ctx, func(tx *storage.Tx) error {
		created = nil

		g, err := tx.LockSavingsGoal(ctx, id)
		if err != nil {
			return err
		}
		if !g.Active || g.LastApplied == ym {
			return nil
		}

		if _, err := tx.LockFund(ctx, g.DestinationFundID); err != nil {
			if errors.Is(err, core.ErrNotFound) {
				return &skipError{reason: fmt.Sprintf("destination fund %d not found", g.DestinationFundID)}
			}
			return err
		}

		c := core.Contribution{
			FundID:        g.DestinationFundID,
			Date:          today,
			Amount:        g.MonthlyContribution,
			IsAutomatic:   true,
			SavingsGoalID: core.Int64Ptr(g.ID),
		}
		if err := tx.InsertContribution(ctx, &c); err != nil {
			return err
		}
		if err := tx.MarkGoalApplied(ctx, g.ID, ym); err != nil {
			return err
		}
		created = &c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// Package services holds the ledger's business logic: the contribution
// router, the debt calculator, the monthly applier and the drift auditor,
// tied together by LedgerService.
//
// This file implements the Strategy Pattern for recurring expense dueness.
// Each schedule decides when a template is due and how much it charges.
package services

import (
	"fmt"

	"github.com/shopspring/decimal"

	"gastos/internal/core"
)

// Schedule identifies a dueness strategy.
type Schedule string

const (
	ScheduleMonthly        Schedule = "MONTHLY"
	ScheduleAnnual         Schedule = "ANNUAL"
	ScheduleAnnualProrated Schedule = "ANNUAL_PRORATED"
)

// ScheduleOf picks the schedule of a recurring expense.
func ScheduleOf(re core.RecurringExpense) Schedule {
	switch {
	case re.Periodicity == core.Annual && re.Prorate:
		return ScheduleAnnualProrated
	case re.Periodicity == core.Annual:
		return ScheduleAnnual
	default:
		return ScheduleMonthly
	}
}

// DuenessChecker is the strategy interface for recurring expenses.
type DuenessChecker interface {
	// IsDue reports whether a template last applied in lastApplied must be
	// applied in current.
	IsDue(lastApplied, current core.YearMonth, billingMonth int) bool
	// Charge is the amount booked when the template is applied.
	Charge(amount core.Money) core.Money
}

// MonthlyChecker charges the full amount once per calendar month.
type MonthlyChecker struct{}

func (MonthlyChecker) IsDue(lastApplied, current core.YearMonth, _ int) bool {
	return lastApplied != current
}

func (MonthlyChecker) Charge(amount core.Money) core.Money { return amount }

// ProratedAnnualChecker spreads an annual amount over twelve monthly charges.
type ProratedAnnualChecker struct{}

var twelve = decimal.NewFromInt(12)

func (ProratedAnnualChecker) IsDue(lastApplied, current core.YearMonth, _ int) bool {
	return lastApplied != current
}

// Charge returns amount/12 rounded half-up to cents.
func (ProratedAnnualChecker) Charge(amount core.Money) core.Money {
	return core.MoneyFromDecimal(amount.Decimal().Div(twelve))
}

// AnnualChecker charges the full amount once per year, in or after the
// billing month.
type AnnualChecker struct{}

func (AnnualChecker) IsDue(lastApplied, current core.YearMonth, billingMonth int) bool {
	if lastApplied.Year >= current.Year {
		return false
	}
	return current.Month >= billingMonth
}

func (AnnualChecker) Charge(amount core.Money) core.Money { return amount }

// duenessStrategies maps schedules to their checkers.
var duenessStrategies = map[Schedule]DuenessChecker{
	ScheduleMonthly:        MonthlyChecker{},
	ScheduleAnnual:         AnnualChecker{},
	ScheduleAnnualProrated: ProratedAnnualChecker{},
}

// GetDuenessChecker returns the checker for a schedule.
func GetDuenessChecker(schedule Schedule) (DuenessChecker, error) {
	checker, ok := duenessStrategies[schedule]
	if !ok {
		return nil, fmt.Errorf("unknown schedule: %s", schedule)
	}
	return checker, nil
}

// RegisterDuenessChecker installs or replaces the checker for a schedule.
func RegisterDuenessChecker(schedule Schedule, checker DuenessChecker) {
	duenessStrategies[schedule] = checker
}

package services

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"gastos/internal/core"
)

// Attribution labels shown next to each debt line.
const (
	AttributionSharedDebt = "shared debt"
	AttributionCommonFund = "common fund"
)

// DebtFilter restricts the lines and monthly aggregates of a debt view. The
// headline balance always covers the whole history.
type DebtFilter struct {
	Category core.Category
	FundID   int64
	Year     int
	Month    int
}

func (f DebtFilter) Validate() error {
	if f.Category != "" && !f.Category.Valid() {
		return core.Invalid("category", core.ErrInvalidCategory)
	}
	if f.Month != 0 {
		if f.Year == 0 || f.Month < 1 || f.Month > 12 {
			return core.Invalid("month", core.ErrInvalidMonth)
		}
	}
	if f.Year < 0 {
		return core.Invalid("year", core.ErrInvalidMonth)
	}
	return nil
}

func (f DebtFilter) matches(e core.Expense) bool {
	if f.Category != "" && e.Category != f.Category {
		return false
	}
	if f.FundID != 0 && (e.FundID == nil || *e.FundID != f.FundID) {
		return false
	}
	if f.Year != 0 && e.Date.Year() != f.Year {
		return false
	}
	if f.Month != 0 && int(e.Date.Month()) != f.Month {
		return false
	}
	return true
}

// key identifies the filter in the debt view cache.
func (f DebtFilter) key() string {
	return fmt.Sprintf("%s|%d|%d|%d", f.Category, f.FundID, f.Year, f.Month)
}

// DebtLine is one expense as seen by the viewer. Shares are unrounded.
type DebtLine struct {
	ExpenseID   int64
	Date        core.Date
	Description string
	Amount      core.Money
	Category    core.Category
	PaidBy      int64
	ViewerShare decimal.Decimal
	OtherShare  decimal.Decimal
	Attribution string
	FundKind    core.FundKind
	// Effect is the signed change to the viewer's balance: positive when
	// the other participant owes the viewer. Fund-backed lines have none.
	Effect decimal.Decimal
}

// MonthBalance is the quantized sum of effects within one month.
type MonthBalance struct {
	Month   core.YearMonth
	Balance decimal.Decimal
}

// DebtView is the net position of Viewer against Other.
type DebtView struct {
	Viewer  core.Participant
	Other   core.Participant
	Balance decimal.Decimal
	Months  []MonthBalance
	Lines   []DebtLine
}

// ComputeDebt derives the viewer's debt view from the expense history.
//
// Only personal expenses move the balance. For each one the payer's partner
// owes their percentage share of the amount: when the viewer paid, the
// other's share is added; otherwise the viewer's own share is subtracted.
// Monthly sums are quantized to cents and the balance is the sum of the
// quantized months, so it can differ from the sum of line effects by a few
// cents.
func ComputeDebt(pair core.Pair, viewerID int64, expenses []core.Expense, fundKinds map[int64]core.FundKind, filter DebtFilter) (DebtView, error) {
	viewer, ok := pair.Get(viewerID)
	if !ok {
		return DebtView{}, core.Invalid("viewer", core.ErrUnknownUser)
	}
	other, _ := pair.Other(viewerID)

	view := DebtView{
		Viewer:  viewer,
		Other:   other,
		Balance: decimal.Zero,
	}

	allMonths := make(map[core.YearMonth]decimal.Decimal)
	filteredMonths := make(map[core.YearMonth]decimal.Decimal)

	for _, e := range expenses {
		amount := e.Amount.Decimal()
		line := DebtLine{
			ExpenseID:   e.ID,
			Date:        e.Date,
			Description: e.Description,
			Amount:      e.Amount,
			Category:    e.Category,
			PaidBy:      e.PaidBy,
			ViewerShare: core.Percent(amount, viewer.Percentage),
			OtherShare:  core.Percent(amount, other.Percentage),
			Attribution: AttributionSharedDebt,
			Effect:      decimal.Zero,
		}

		if e.IsPersonal() {
			if e.PaidBy == viewer.ID {
				line.Effect = line.OtherShare
			} else {
				line.Effect = line.ViewerShare.Neg()
			}
			ym := e.Date.YearMonth()
			allMonths[ym] = allMonths[ym].Add(line.Effect)
		} else {
			line.Attribution = AttributionCommonFund
			line.FundKind = fundKinds[*e.FundID]
		}

		if !filter.matches(e) {
			continue
		}
		view.Lines = append(view.Lines, line)
		if e.IsPersonal() {
			ym := e.Date.YearMonth()
			filteredMonths[ym] = filteredMonths[ym].Add(line.Effect)
		}
	}

	for _, sum := range allMonths {
		view.Balance = view.Balance.Add(sum.Round(2))
	}
	view.Months = sortedMonths(filteredMonths)
	return view, nil
}

func sortedMonths(sums map[core.YearMonth]decimal.Decimal) []MonthBalance {
	months := make([]MonthBalance, 0, len(sums))
	for ym, sum := range sums {
		months = append(months, MonthBalance{Month: ym, Balance: sum.Round(2)})
	}
	sort.Slice(months, func(i, j int) bool {
		a, b := months[i].Month, months[j].Month
		if a.Year != b.Year {
			return a.Year > b.Year
		}
		return a.Month > b.Month
	})
	return months
}

package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"

	"gastos/internal/core"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), Options{
		Driver: DriverSQLite,
		DSN:    filepath.Join(t.TempDir(), "ledger.db"),
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func seedPair(t *testing.T, s *Store) core.Pair {
	t.Helper()
	ctx := context.Background()
	if _, err := s.SeedParticipant(ctx, "sara", decimal.NewFromInt(63)); err != nil {
		t.Fatalf("seed sara: %v", err)
	}
	if _, err := s.SeedParticipant(ctx, "adri", decimal.NewFromInt(37)); err != nil {
		t.Fatalf("seed adri: %v", err)
	}
	ps, err := s.Participants(ctx)
	if err != nil {
		t.Fatalf("Participants: %v", err)
	}
	pair, err := core.NewPair(ps)
	if err != nil {
		t.Fatalf("NewPair: %v", err)
	}
	return pair
}

func createFund(t *testing.T, s *Store, kind core.FundKind, cents int64) core.Fund {
	t.Helper()
	f := core.Fund{Kind: kind, Balance: core.Money{Cents: cents}}
	if err := s.CreateFund(context.Background(), &f); err != nil {
		t.Fatalf("CreateFund(%s): %v", kind, err)
	}
	return f
}

func TestOpen_RejectsUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), Options{Driver: "mysql", DSN: "x"})
	if err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}

func TestRebind(t *testing.T) {
	pg, _ := dialectFor(DriverPostgres)
	lite, _ := dialectFor(DriverSQLite)

	q := `UPDATE funds SET balance_cents = ? WHERE id = ?`
	if got := lite.rebind(q); got != q {
		t.Errorf("sqlite rebind changed query: %q", got)
	}
	want := `UPDATE funds SET balance_cents = $1 WHERE id = $2`
	if got := pg.rebind(q); got != want {
		t.Errorf("postgres rebind = %q, want %q", got, want)
	}
	if got := pg.lock("SELECT 1"); got != "SELECT 1 FOR UPDATE" {
		t.Errorf("postgres lock = %q", got)
	}
}

func TestSeedParticipant_KeepsExistingPercentage(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	pair := seedPair(t, s)

	p, err := s.SeedParticipant(ctx, "sara", decimal.NewFromInt(50))
	if err != nil {
		t.Fatalf("SeedParticipant: %v", err)
	}
	if p.ID != pair.A.ID || !p.Percentage.Equal(decimal.NewFromInt(63)) {
		t.Errorf("reseed changed participant: %+v", p)
	}
}

func TestSetPercentages(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	pair := seedPair(t, s)

	pair.A.Percentage = decimal.NewFromInt(70)
	pair.B.Percentage = decimal.NewFromInt(20)
	if err := s.SetPercentages(ctx, pair); !errors.Is(err, core.ErrInvalidPercentage) {
		t.Fatalf("expected ErrInvalidPercentage, got %v", err)
	}

	pair.B.Percentage = decimal.NewFromInt(30)
	if err := s.SetPercentages(ctx, pair); err != nil {
		t.Fatalf("SetPercentages: %v", err)
	}
	ps, _ := s.Participants(ctx)
	got, err := core.NewPair(ps)
	if err != nil {
		t.Fatalf("NewPair: %v", err)
	}
	if !got.A.Percentage.Equal(decimal.NewFromInt(70)) || !got.B.Percentage.Equal(decimal.NewFromInt(30)) {
		t.Errorf("percentages = %s/%s, want 70/30", got.A.Percentage, got.B.Percentage)
	}
}

func TestFunds(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	f := createFund(t, s, core.FundGroceries, 5000)
	if f.Name != string(core.FundGroceries) || f.InitialBalance.Cents != 5000 {
		t.Errorf("unexpected fund defaults: %+v", f)
	}

	dup := core.Fund{Kind: core.FundGroceries}
	if err := s.CreateFund(ctx, &dup); err == nil {
		t.Error("expected unique violation for a second fund of the same kind")
	}

	if _, err := s.GetFund(ctx, 999); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("GetFund(999) = %v, want ErrNotFound", err)
	}

	err := s.InTx(ctx, func(tx *Tx) error {
		locked, err := tx.LockFundByKind(ctx, core.FundGroceries)
		if err != nil {
			return err
		}
		return tx.AdjustFundBalance(ctx, locked.ID, core.Money{Cents: -3000}, core.NewDate(2024, 3, 1))
	})
	if err != nil {
		t.Fatalf("InTx: %v", err)
	}

	got, err := s.GetFund(ctx, f.ID)
	if err != nil {
		t.Fatalf("GetFund: %v", err)
	}
	if got.Balance.Cents != 2000 {
		t.Errorf("balance = %d, want 2000", got.Balance.Cents)
	}
	if !got.LastUpdated.Equal(core.NewDate(2024, 3, 1).Time) {
		t.Errorf("last_updated = %s, want 2024-03-01", got.LastUpdated)
	}
}

func TestInTx_RollsBackOnError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	f := createFund(t, s, core.FundTravel, 1000)

	boom := errors.New("boom")
	err := s.InTx(ctx, func(tx *Tx) error {
		if err := tx.AdjustFundBalance(ctx, f.ID, core.Money{Cents: 500}, core.NewDate(2024, 1, 1)); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("InTx error = %v, want boom", err)
	}

	got, _ := s.GetFund(ctx, f.ID)
	if got.Balance.Cents != 1000 {
		t.Errorf("balance = %d after rollback, want 1000", got.Balance.Cents)
	}
}

func TestInsertContribution_CreditsFund(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	pair := seedPair(t, s)
	f := createFund(t, s, core.FundCoupleSavings, 0)

	c := core.Contribution{
		FundID:        f.ID,
		Date:          core.NewDate(2024, 5, 10),
		Amount:        core.Money{Cents: 15000},
		ContributorID: core.Int64Ptr(pair.A.ID),
	}
	if err := s.InTx(ctx, func(tx *Tx) error { return tx.InsertContribution(ctx, &c) }); err != nil {
		t.Fatalf("InsertContribution: %v", err)
	}
	if c.ID == 0 {
		t.Error("contribution id not set")
	}

	got, _ := s.GetFund(ctx, f.ID)
	if got.Balance.Cents != 15000 {
		t.Errorf("balance = %d, want 15000", got.Balance.Cents)
	}

	list, err := s.ContributionsBetween(ctx, core.NewDate(2024, 5, 1), core.NewDate(2024, 6, 1))
	if err != nil {
		t.Fatalf("ContributionsBetween: %v", err)
	}
	if len(list) != 1 || list[0].ContributorID == nil || *list[0].ContributorID != pair.A.ID {
		t.Errorf("unexpected contributions: %+v", list)
	}
}

func TestListExpenses_Filters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	pair := seedPair(t, s)
	f := createFund(t, s, core.FundGroceries, 0)

	expenses := []core.Expense{
		{Description: "Dinner", Amount: core.Money{Cents: 4000}, Date: core.NewDate(2024, 1, 5), Category: core.CategoryLeisure, PaidBy: pair.A.ID},
		{Description: "Market", Amount: core.Money{Cents: 2500}, Date: core.NewDate(2024, 1, 20), Category: core.CategoryGroceries, PaidBy: pair.B.ID, FundID: &f.ID},
		{Description: "Cinema", Amount: core.Money{Cents: 1800}, Date: core.NewDate(2024, 2, 3), Category: core.CategoryLeisure, PaidBy: pair.B.ID},
	}
	err := s.InTx(ctx, func(tx *Tx) error {
		for i := range expenses {
			if err := tx.InsertExpense(ctx, &expenses[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("insert expenses: %v", err)
	}

	tests := []struct {
		name   string
		filter ExpenseFilter
		want   []string
	}{
		{"all newest first", ExpenseFilter{}, []string{"Cinema", "Market", "Dinner"}},
		{"personal only", ExpenseFilter{PersonalOnly: true}, []string{"Cinema", "Dinner"}},
		{"by fund", ExpenseFilter{FundID: f.ID}, []string{"Market"}},
		{"by category", ExpenseFilter{Category: core.CategoryLeisure}, []string{"Cinema", "Dinner"}},
		{"by payer", ExpenseFilter{PaidBy: pair.B.ID}, []string{"Cinema", "Market"}},
		{"january", ExpenseFilter{From: core.NewDate(2024, 1, 1), To: core.NewDate(2024, 2, 1)}, []string{"Market", "Dinner"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ListExpenses(ctx, tt.filter)
			if err != nil {
				t.Fatalf("ListExpenses: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d expenses, want %d", len(got), len(tt.want))
			}
			for i, e := range got {
				if e.Description != tt.want[i] {
					t.Errorf("expense[%d] = %q, want %q", i, e.Description, tt.want[i])
				}
			}
		})
	}

	totals, err := s.CategoryTotals(ctx, core.NewDate(2024, 1, 1), core.NewDate(2024, 2, 1))
	if err != nil {
		t.Fatalf("CategoryTotals: %v", err)
	}
	if len(totals) != 2 {
		t.Fatalf("got %d category totals, want 2", len(totals))
	}
	if totals[0].Category != core.CategoryGroceries || totals[0].Total.Cents != 2500 {
		t.Errorf("groceries total = %+v", totals[0])
	}
}

func TestInsertExpense_Validates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	e := core.Expense{Description: "  ", Amount: core.Money{Cents: 100}, Date: core.NewDate(2024, 1, 1), Category: core.CategoryOther, PaidBy: 1}
	err := s.InTx(ctx, func(tx *Tx) error { return tx.InsertExpense(ctx, &e) })
	if !core.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestRecurringExpenses(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	re := core.RecurringExpense{
		Name:        "Insurance",
		Amount:      core.Money{Cents: 12000},
		Periodicity: core.Annual,
		Category:    core.CategoryHouseholdBills,
		Prorate:     true,
		Active:      true,
	}
	if err := s.CreateRecurringExpense(ctx, &re); err != nil {
		t.Fatalf("CreateRecurringExpense: %v", err)
	}
	if re.BillingMonth != 1 {
		t.Errorf("billing month default = %d, want 1", re.BillingMonth)
	}

	ym := core.YearMonth{Year: 2024, Month: 3}
	err := s.InTx(ctx, func(tx *Tx) error {
		locked, err := tx.LockRecurringExpense(ctx, re.ID)
		if err != nil {
			return err
		}
		if !locked.LastApplied.IsZero() {
			t.Errorf("new template marker = %s, want zero", locked.LastApplied)
		}
		return tx.MarkRecurringApplied(ctx, re.ID, ym)
	})
	if err != nil {
		t.Fatalf("mark applied: %v", err)
	}

	if err := s.SetRecurringActive(ctx, re.ID, false); err != nil {
		t.Fatalf("SetRecurringActive: %v", err)
	}
	active, err := s.ListRecurringExpenses(ctx, true)
	if err != nil {
		t.Fatalf("ListRecurringExpenses: %v", err)
	}
	if len(active) != 0 {
		t.Errorf("got %d active templates, want 0", len(active))
	}
	all, _ := s.ListRecurringExpenses(ctx, false)
	if len(all) != 1 || all[0].LastApplied != ym || !all[0].Prorate {
		t.Errorf("unexpected templates: %+v", all)
	}

	if err := s.SetRecurringActive(ctx, 999, true); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("SetRecurringActive(999) = %v, want ErrNotFound", err)
	}
}

func TestSavingsGoals(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	missing := core.SavingsGoal{Name: "Trip", MonthlyContribution: core.Money{Cents: 100}, DestinationFundID: 42, Active: true}
	if err := s.CreateSavingsGoal(ctx, &missing); !core.IsValidation(err) {
		t.Fatalf("expected validation error for missing fund, got %v", err)
	}

	f := createFund(t, s, core.FundTravel, 0)
	g := core.SavingsGoal{Name: "Trip", MonthlyContribution: core.Money{Cents: 15000}, DestinationFundID: f.ID, Active: true}
	if err := s.CreateSavingsGoal(ctx, &g); err != nil {
		t.Fatalf("CreateSavingsGoal: %v", err)
	}

	err := s.InTx(ctx, func(tx *Tx) error {
		c := core.Contribution{FundID: f.ID, Date: core.NewDate(2024, 4, 1), Amount: g.MonthlyContribution, IsAutomatic: true, SavingsGoalID: &g.ID}
		if err := tx.InsertContribution(ctx, &c); err != nil {
			return err
		}
		return tx.MarkGoalApplied(ctx, g.ID, core.YearMonth{Year: 2024, Month: 4})
	})
	if err != nil {
		t.Fatalf("apply goal: %v", err)
	}

	goals, err := s.ListSavingsGoals(ctx, true)
	if err != nil {
		t.Fatalf("ListSavingsGoals: %v", err)
	}
	if len(goals) != 1 || goals[0].LastApplied != (core.YearMonth{Year: 2024, Month: 4}) {
		t.Errorf("unexpected goals: %+v", goals)
	}
}

func TestFundLedgerTotals(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	pair := seedPair(t, s)
	f := createFund(t, s, core.FundHouseholdBills, 10000)
	day := core.NewDate(2024, 6, 1)

	err := s.InTx(ctx, func(tx *Tx) error {
		c := core.Contribution{FundID: f.ID, Date: day, Amount: core.Money{Cents: 5000}, ContributorID: &pair.B.ID}
		if err := tx.InsertContribution(ctx, &c); err != nil {
			return err
		}
		e := core.Expense{Description: "Power", Amount: core.Money{Cents: 3000}, Date: day, Category: core.CategoryHouseholdBills, PaidBy: pair.A.ID, FundID: &f.ID}
		if err := tx.InsertExpense(ctx, &e); err != nil {
			return err
		}
		if err := tx.AdjustFundBalance(ctx, f.ID, e.Amount.Neg(), day); err != nil {
			return err
		}
		_, err := tx.SetFundBalance(ctx, f.ID, core.Money{Cents: 11000}, "bank statement", day)
		return err
	})
	if err != nil {
		t.Fatalf("seed ledger: %v", err)
	}

	totals, err := s.FundLedgerTotals(ctx)
	if err != nil {
		t.Fatalf("FundLedgerTotals: %v", err)
	}
	got := totals[f.ID]
	if got.Contributions.Cents != 5000 || got.Expenses.Cents != 3000 || got.Adjustments.Cents != -1000 {
		t.Errorf("totals = %+v", got)
	}

	fund, _ := s.GetFund(ctx, f.ID)
	derived := fund.InitialBalance.Add(got.Contributions).Sub(got.Expenses).Add(got.Adjustments)
	if derived != fund.Balance {
		t.Errorf("derived %s != stored %s", derived, fund.Balance)
	}

	err = s.InReadTx(ctx, func(tx *Tx) error {
		funds, err := tx.ListFunds(ctx)
		if err != nil {
			return err
		}
		if len(funds) != 1 || funds[0].Balance != fund.Balance {
			t.Errorf("ListFunds in snapshot = %+v", funds)
		}
		if _, err := tx.GetFund(ctx, 999); !errors.Is(err, core.ErrNotFound) {
			t.Errorf("GetFund(999) in snapshot = %v, want ErrNotFound", err)
		}
		snap, err := tx.FundLedgerTotals(ctx)
		if err != nil {
			return err
		}
		if snap[f.ID] != got {
			t.Errorf("snapshot totals = %+v, want %+v", snap[f.ID], got)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("InReadTx: %v", err)
	}
}

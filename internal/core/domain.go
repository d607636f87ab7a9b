package core

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	Monthly Periodicity = "MONTHLY"
	Annual  Periodicity = "ANNUAL"
)

const (
	FundHouseholdBills     FundKind = "HOUSEHOLD_BILLS"
	FundHouseholdPurchases FundKind = "HOUSEHOLD_PURCHASES"
	FundTravel             FundKind = "TRAVEL"
	FundCoupleSavings      FundKind = "COUPLE_SAVINGS"
	FundGroceries          FundKind = "GROCERIES"
)

// FundKinds lists every fund kind in display order.
var FundKinds = []FundKind{
	FundHouseholdBills,
	FundHouseholdPurchases,
	FundTravel,
	FundCoupleSavings,
	FundGroceries,
}

type (
	Periodicity string
	FundKind    string

	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	// YearMonth is the idempotency marker of the monthly applier.
	// The zero value means "never applied".
	YearMonth struct {
		Year  int
		Month int
	}

	Fund struct {
		ID             int64
		Kind           FundKind
		Name           string
		Balance        Money
		InitialBalance Money
		LastUpdated    Date
	}

	Contribution struct {
		ID            int64
		FundID        int64
		Date          Date
		Amount        Money
		ContributorID *int64 // nil for automatic contributions
		IsAutomatic   bool
		SavingsGoalID *int64
		CreatedAt     time.Time
	}

	Expense struct {
		ID                 int64
		Description        string
		Amount             Money
		Date               Date
		Category           Category
		PaidBy             int64
		FundID             *int64 // nil means personal / shared-debt expense
		RecurringExpenseID *int64
		CreatedAt          time.Time
	}

	RecurringExpense struct {
		ID           int64
		Name         string
		Amount       Money
		Periodicity  Periodicity
		Category     Category
		FundID       *int64
		Prorate      bool
		BillingMonth int // month an unprorated annual charge falls due
		Active       bool
		LastApplied  YearMonth
	}

	SavingsGoal struct {
		ID                  int64
		Name                string
		TargetAmount        Money // zero means open-ended
		MonthlyContribution Money
		DestinationFundID   int64
		Active              bool
		LastApplied         YearMonth
	}

	// FundAdjustment records a manual balance override.
	FundAdjustment struct {
		ID        int64
		FundID    int64
		Previous  Money
		New       Money
		Note      string
		CreatedAt time.Time
	}
)

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar day in UTC.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), int(t.Month()), t.Day())
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

// YearMonth returns the calendar month of the date.
func (d Date) YearMonth() YearMonth {
	return YearMonth{Year: d.Year(), Month: int(d.Month())}
}

// String formats the date as YYYY-MM-DD.
func (d Date) String() string {
	return d.Format("2006-01-02")
}

// MonthOf returns the calendar month containing t.
func MonthOf(t time.Time) YearMonth {
	return YearMonth{Year: t.Year(), Month: int(t.Month())}
}

func (ym YearMonth) IsZero() bool { return ym.Year == 0 && ym.Month == 0 }

func (ym YearMonth) Validate() error {
	if ym.Month < 1 || ym.Month > 12 || ym.Year < 1 {
		return ErrInvalidMonth
	}
	return nil
}

// Start returns the first day of the month.
func (ym YearMonth) Start() Date { return NewDate(ym.Year, ym.Month, 1) }

// Next returns the following calendar month.
func (ym YearMonth) Next() YearMonth {
	if ym.Month == 12 {
		return YearMonth{Year: ym.Year + 1, Month: 1}
	}
	return YearMonth{Year: ym.Year, Month: ym.Month + 1}
}

func (ym YearMonth) String() string {
	return fmt.Sprintf("%04d-%02d", ym.Year, ym.Month)
}

func (k FundKind) Valid() bool {
	for _, v := range FundKinds {
		if k == v {
			return true
		}
	}
	return false
}

// ParseFundKind accepts a fund kind code case-insensitively.
func ParseFundKind(s string) (FundKind, error) {
	k := FundKind(strings.ToUpper(strings.TrimSpace(s)))
	if !k.Valid() {
		return "", ErrInvalidFundKind
	}
	return k, nil
}

func (p Periodicity) Valid() bool {
	return p == Monthly || p == Annual
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func validateDescription(field, s string) error {
	if len(strings.TrimSpace(s)) == 0 {
		return Invalid(field, ErrEmptyDescription)
	}
	if utf8.RuneCountInString(s) > 200 {
		return Invalid(field, ErrDescriptionLength)
	}
	return nil
}

func (e Expense) Validate() error {
	if err := validateDescription("description", e.Description); err != nil {
		return err
	}
	if err := e.Amount.Validate(); err != nil {
		return Invalid("amount", err)
	}
	if err := e.Date.Validate(); err != nil {
		return Invalid("date", err)
	}
	if !e.Category.Valid() {
		return Invalid("category", ErrInvalidCategory)
	}
	if e.PaidBy <= 0 {
		return Invalid("paid_by", ErrUnknownUser)
	}
	return nil
}

func (re RecurringExpense) Validate() error {
	if strings.TrimSpace(re.Name) == "" {
		return Invalid("name", ErrEmptyName)
	}
	if err := re.Amount.Validate(); err != nil {
		return Invalid("amount", err)
	}
	if !re.Periodicity.Valid() {
		return Invalid("periodicity", ErrInvalidPeriod)
	}
	if !re.Category.Valid() {
		return Invalid("category", ErrInvalidCategory)
	}
	if re.BillingMonth < 1 || re.BillingMonth > 12 {
		return Invalid("billing_month", ErrInvalidMonth)
	}
	return nil
}

func (g SavingsGoal) Validate() error {
	if strings.TrimSpace(g.Name) == "" {
		return Invalid("name", ErrEmptyName)
	}
	if err := g.MonthlyContribution.Validate(); err != nil {
		return Invalid("monthly_contribution", err)
	}
	if g.TargetAmount.Cents < 0 {
		return Invalid("target_amount", ErrInvalidAmount)
	}
	if g.DestinationFundID <= 0 {
		return Invalid("destination_fund", ErrNotFound)
	}
	return nil
}

func (c Contribution) Validate() error {
	if err := c.Amount.Validate(); err != nil {
		return Invalid("amount", err)
	}
	if err := c.Date.Validate(); err != nil {
		return Invalid("date", err)
	}
	if c.FundID <= 0 {
		return Invalid("fund", ErrNotFound)
	}
	return nil
}

// IsPersonal reports whether the expense is split as debt between the pair.
func (e Expense) IsPersonal() bool { return e.FundID == nil }

// Int64Ptr is a helper for optional references.
func Int64Ptr(v int64) *int64 { return &v }

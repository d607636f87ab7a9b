package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"gastos/internal/amqp"
	"gastos/internal/cache"
	"gastos/internal/core"
	"gastos/internal/log"
	"gastos/internal/metrics"
	"gastos/internal/storage"
)

// Publisher delivers ledger events. *amqp.Client implements it.
type Publisher interface {
	PublishLedgerEvent(ctx context.Context, evt *amqp.LedgerEvent) error
}

// Options configure a LedgerService.
type Options struct {
	Applier   ApplierOptions
	CacheSize int
	CacheTTL  time.Duration
	// Now is the clock; tests pin it. Defaults to time.Now.
	Now func() time.Time
}

// LedgerService is the entry point for every ledger operation. It wires the
// router, the debt calculator, the applier and the auditor to the store,
// keeps the debt view cache coherent and announces writes on the bus.
type LedgerService struct {
	store     *storage.Store
	router    *Router
	applier   *Applier
	auditor   *Auditor
	publisher Publisher
	metrics   *metrics.Metrics
	debtViews *cache.LRUCache[DebtView]
	now       func() time.Time
}

// NewLedgerService builds the service. publisher and m may be nil.
func NewLedgerService(store *storage.Store, publisher Publisher, m *metrics.Metrics, opts Options) *LedgerService {
	if opts.CacheSize <= 0 {
		opts.CacheSize = 64
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 5 * time.Minute
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	s := &LedgerService{
		store:     store,
		router:    NewRouter(store),
		applier:   NewApplier(store, opts.Applier, m),
		auditor:   NewAuditor(store, m),
		publisher: publisher,
		metrics:   m,
		debtViews: cache.NewLRUCache[DebtView](opts.CacheSize, opts.CacheTTL),
		now:       opts.Now,
	}
	s.applier.OnApplied = s.monthApplied
	return s
}

// DebtViewCache exposes the cache so callers can register it for cleanup.
func (s *LedgerService) DebtViewCache() *cache.LRUCache[DebtView] {
	return s.debtViews
}

// Pair loads the configured participant pair.
func (s *LedgerService) Pair(ctx context.Context) (core.Pair, error) {
	participants, err := s.store.Participants(ctx)
	if err != nil {
		return core.Pair{}, err
	}
	return core.NewPair(participants)
}

// CreateExpense routes and stores a new expense.
func (s *LedgerService) CreateExpense(ctx context.Context, in NewExpense) (ExpenseResult, error) {
	pair, err := s.Pair(ctx)
	if err != nil {
		return ExpenseResult{}, err
	}

	result, err := s.router.Create(ctx, pair, in)
	if err != nil {
		return ExpenseResult{}, err
	}
	s.debtViews.Clear()

	attribution := "personal"
	fields := log.NewFields().
		WithComponent(log.ComponentLedger).
		WithOperation(log.OpCreate).
		WithExpense(result.Expense.ID, result.Expense.Amount.Cents, string(result.Expense.Category))
	if result.Fund != nil {
		attribution = "fund"
		fields.WithFund(result.Fund.ID, string(result.Fund.Kind))
	}
	fields[log.FieldAttribution] = attribution
	s.metrics.ExpenseCreated(attribution)

	for _, w := range result.Warnings {
		if w.Code == core.WarnInsufficientFunds {
			s.metrics.InsufficientFunds()
		}
	}
	slog.InfoContext(ctx, "Expense created", fields.ToSlice()...)

	evt := amqp.NewLedgerEvent(amqp.EventExpenseCreated)
	evt.ExpenseID = result.Expense.ID
	evt.FundID = result.Expense.FundID
	evt.AmountCents = result.Expense.Amount.Cents
	s.publish(ctx, evt)

	return result, nil
}

// EnsureMonthApplied runs the monthly applier for the current month.
func (s *LedgerService) EnsureMonthApplied(ctx context.Context) (ApplyReport, error) {
	return s.applier.EnsureMonthApplied(ctx, s.now())
}

// ensureApplied is the read-path trigger: failures are logged and the
// caller renders with whatever is already in the ledger.
func (s *LedgerService) ensureApplied(ctx context.Context) ApplyReport {
	report, err := s.EnsureMonthApplied(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "Monthly application failed, serving current ledger",
			log.FieldComponent, log.ComponentApplier,
			log.FieldError, err)
	}
	return report
}

func (s *LedgerService) monthApplied(ctx context.Context, report ApplyReport) {
	s.debtViews.Clear()

	evt := amqp.NewLedgerEvent(amqp.EventMonthApplied)
	evt.Year, evt.Month = report.Month.Year, report.Month.Month
	for _, e := range report.Expenses {
		evt.AmountCents += e.Amount.Cents
	}
	s.publish(ctx, evt)

	for _, c := range report.Contributions {
		s.publishContribution(ctx, c)
	}
}

func (s *LedgerService) publishContribution(ctx context.Context, c core.Contribution) {
	evt := amqp.NewLedgerEvent(amqp.EventContributionCreated)
	evt.ContributionID = c.ID
	evt.FundID = core.Int64Ptr(c.FundID)
	evt.AmountCents = c.Amount.Cents
	s.publish(ctx, evt)
}

// ComputeDebtView returns the viewer's balance against the other participant.
func (s *LedgerService) ComputeDebtView(ctx context.Context, viewerID int64, filter DebtFilter) (DebtView, error) {
	if err := filter.Validate(); err != nil {
		return DebtView{}, err
	}
	s.ensureApplied(ctx)

	key := fmt.Sprintf("%d|%s", viewerID, filter.key())
	if view, ok := s.debtViews.Get(key); ok {
		s.metrics.DebtViewCache(true)
		return view, nil
	}
	s.metrics.DebtViewCache(false)
	gen := s.debtViews.Generation()

	var (
		pair     core.Pair
		expenses []core.Expense
		funds    []core.Fund
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		pair, err = s.Pair(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		expenses, err = s.store.ListExpenses(gctx, storage.ExpenseFilter{})
		return err
	})
	g.Go(func() error {
		var err error
		funds, err = s.store.ListFunds(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return DebtView{}, fmt.Errorf("load debt view: %w", err)
	}

	kinds := make(map[int64]core.FundKind, len(funds))
	for _, f := range funds {
		kinds[f.ID] = f.Kind
	}

	view, err := ComputeDebt(pair, viewerID, expenses, kinds, filter)
	if err != nil {
		return DebtView{}, err
	}
	s.debtViews.SetIfGeneration(key, view, gen)
	return view, nil
}

// ContributorTotal is what one contributor put into a fund this month.
// ContributorID is nil for automatic contributions.
type ContributorTotal struct {
	ContributorID *int64
	Username      string
	Total         core.Money
}

// AutomaticContributor labels contributions made by savings goals.
const AutomaticContributor = "automatic"

// FundSummary is a fund with its contributions in the current month.
type FundSummary struct {
	Fund               core.Fund
	MonthContributions core.Money
	ByContributor      []ContributorTotal
}

// FundsView lists every fund with this month's contributions. Skipped holds
// monthly items that could not be applied yet.
type FundsView struct {
	Month        core.YearMonth
	Funds        []FundSummary
	TotalBalance core.Money
	Skipped      []SkippedItem
}

// ComputeFundsView applies the month if needed and aggregates the current
// month's contributions per fund and per contributor.
func (s *LedgerService) ComputeFundsView(ctx context.Context) (FundsView, error) {
	report := s.ensureApplied(ctx)
	ym := core.MonthOf(s.now())

	var (
		funds         []core.Fund
		contributions []core.Contribution
		participants  []core.Participant
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		funds, err = s.store.ListFunds(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		contributions, err = s.store.ContributionsBetween(gctx, ym.Start(), ym.Next().Start())
		return err
	})
	g.Go(func() error {
		var err error
		participants, err = s.store.Participants(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return FundsView{}, fmt.Errorf("load funds view: %w", err)
	}

	names := make(map[int64]string, len(participants))
	for _, p := range participants {
		names[p.ID] = p.Username
	}

	type bucket struct {
		total         core.Money
		byContributor map[int64]core.Money // 0 is the automatic bucket
	}
	buckets := make(map[int64]*bucket)
	for _, c := range contributions {
		b, ok := buckets[c.FundID]
		if !ok {
			b = &bucket{byContributor: make(map[int64]core.Money)}
			buckets[c.FundID] = b
		}
		var who int64
		if c.ContributorID != nil {
			who = *c.ContributorID
		}
		b.total = b.total.Add(c.Amount)
		b.byContributor[who] = b.byContributor[who].Add(c.Amount)
	}

	view := FundsView{Month: ym, Skipped: report.Skipped}
	for _, f := range funds {
		summary := FundSummary{Fund: f}
		if b, ok := buckets[f.ID]; ok {
			summary.MonthContributions = b.total
			for who, total := range b.byContributor {
				ct := ContributorTotal{Username: AutomaticContributor, Total: total}
				if who != 0 {
					ct.ContributorID = core.Int64Ptr(who)
					ct.Username = names[who]
				}
				summary.ByContributor = append(summary.ByContributor, ct)
			}
			sort.Slice(summary.ByContributor, func(i, j int) bool {
				return summary.ByContributor[i].Username < summary.ByContributor[j].Username
			})
		}
		view.TotalBalance = view.TotalBalance.Add(f.Balance)
		view.Funds = append(view.Funds, summary)
	}
	return view, nil
}

// SetFundBalance overrides a fund balance. The override is recorded as a
// fund adjustment so the drift audit keeps balancing.
func (s *LedgerService) SetFundBalance(ctx context.Context, fundID int64, balance core.Money, note string) (core.Fund, error) {
	var adj core.FundAdjustment
	err := s.store.InTx(ctx, func(tx *storage.Tx) error {
		var err error
		adj, err = tx.SetFundBalance(ctx, fundID, balance, strings.TrimSpace(note), core.DateOf(s.now()))
		return err
	})
	if err != nil {
		return core.Fund{}, fmt.Errorf("set fund balance: %w", err)
	}

	f, err := s.store.GetFund(ctx, fundID)
	if err != nil {
		return core.Fund{}, err
	}

	slog.WarnContext(ctx, "Fund balance overridden",
		log.FieldComponent, log.ComponentLedger,
		log.FieldOperation, log.OpUpdate,
		log.FieldFundID, f.ID,
		log.FieldFundKind, f.Kind,
		"previous", adj.Previous.String(),
		"new", adj.New.String(),
		"note", adj.Note)

	evt := amqp.NewLedgerEvent(amqp.EventFundBalanceSet)
	evt.FundID = core.Int64Ptr(f.ID)
	evt.AmountCents = adj.New.Cents - adj.Previous.Cents
	s.publish(ctx, evt)

	return f, nil
}

// CreateFund registers a fund with its opening balance.
func (s *LedgerService) CreateFund(ctx context.Context, f core.Fund) (core.Fund, error) {
	if err := s.store.CreateFund(ctx, &f); err != nil {
		return core.Fund{}, err
	}
	slog.InfoContext(ctx, "Fund created",
		log.FieldComponent, log.ComponentLedger,
		log.FieldOperation, log.OpCreate,
		log.FieldFundID, f.ID,
		log.FieldFundKind, f.Kind,
		"balance", f.Balance.String())
	return f, nil
}

func (s *LedgerService) ListFunds(ctx context.Context) ([]core.Fund, error) {
	return s.store.ListFunds(ctx)
}

// NewContribution is a user-initiated credit to a fund.
type NewContribution struct {
	FundID        int64
	ContributorID int64
	Amount        core.Money
	Date          core.Date
}

// AddContribution credits a fund on behalf of a participant.
func (s *LedgerService) AddContribution(ctx context.Context, in NewContribution) (core.Contribution, error) {
	pair, err := s.Pair(ctx)
	if err != nil {
		return core.Contribution{}, err
	}
	if !pair.Has(in.ContributorID) {
		return core.Contribution{}, core.Invalid("contributor", core.ErrUnknownUser)
	}

	c := core.Contribution{
		FundID:        in.FundID,
		Date:          in.Date,
		Amount:        in.Amount,
		ContributorID: core.Int64Ptr(in.ContributorID),
	}
	if err := c.Validate(); err != nil {
		return core.Contribution{}, err
	}

	err = s.store.InTx(ctx, func(tx *storage.Tx) error {
		if _, err := tx.LockFund(ctx, in.FundID); err != nil {
			return err
		}
		return tx.InsertContribution(ctx, &c)
	})
	if err != nil {
		return core.Contribution{}, fmt.Errorf("add contribution: %w", err)
	}

	slog.InfoContext(ctx, "Contribution added",
		log.FieldComponent, log.ComponentLedger,
		log.FieldOperation, log.OpCreate,
		log.FieldFundID, c.FundID,
		log.FieldParticipant, in.ContributorID,
		log.FieldAmountCents, c.Amount.Cents)
	s.publishContribution(ctx, c)
	return c, nil
}

// CreateRecurringExpense registers a recurring expense template.
func (s *LedgerService) CreateRecurringExpense(ctx context.Context, re core.RecurringExpense) (core.RecurringExpense, error) {
	if re.FundID != nil {
		if err := s.requireFund(ctx, "fund", *re.FundID); err != nil {
			return core.RecurringExpense{}, err
		}
	}
	if err := s.store.CreateRecurringExpense(ctx, &re); err != nil {
		return core.RecurringExpense{}, err
	}
	return re, nil
}

func (s *LedgerService) SetRecurringActive(ctx context.Context, id int64, active bool) error {
	return s.store.SetRecurringActive(ctx, id, active)
}

func (s *LedgerService) ListRecurring(ctx context.Context) ([]core.RecurringExpense, error) {
	return s.store.ListRecurringExpenses(ctx, false)
}

// CreateSavingsGoal registers a savings goal.
func (s *LedgerService) CreateSavingsGoal(ctx context.Context, g core.SavingsGoal) (core.SavingsGoal, error) {
	if err := s.store.CreateSavingsGoal(ctx, &g); err != nil {
		return core.SavingsGoal{}, err
	}
	return g, nil
}

func (s *LedgerService) SetGoalActive(ctx context.Context, id int64, active bool) error {
	return s.store.SetGoalActive(ctx, id, active)
}

func (s *LedgerService) ListGoals(ctx context.Context) ([]core.SavingsGoal, error) {
	return s.store.ListSavingsGoals(ctx, false)
}

// ListExpenses returns expenses newest first, optionally only those paid by
// one participant.
func (s *LedgerService) ListExpenses(ctx context.Context, paidBy int64) ([]core.Expense, error) {
	return s.store.ListExpenses(ctx, storage.ExpenseFilter{PaidBy: paidBy})
}

// CategorySummary is one category's share of a month.
type CategorySummary struct {
	Category core.Category
	Name     string
	Total    core.Money
	Count    int
}

// MonthSummary totals a month's expenses per category.
type MonthSummary struct {
	Month      core.YearMonth
	Categories []CategorySummary
	Total      core.Money
}

func (s *LedgerService) MonthSummary(ctx context.Context, ym core.YearMonth) (MonthSummary, error) {
	if err := ym.Validate(); err != nil {
		return MonthSummary{}, core.Invalid("month", err)
	}
	totals, err := s.store.CategoryTotals(ctx, ym.Start(), ym.Next().Start())
	if err != nil {
		return MonthSummary{}, err
	}

	summary := MonthSummary{Month: ym}
	for _, t := range totals {
		summary.Categories = append(summary.Categories, CategorySummary{
			Category: t.Category,
			Name:     t.Category.Name(),
			Total:    t.Total,
			Count:    t.Count,
		})
		summary.Total = summary.Total.Add(t.Total)
	}
	return summary, nil
}

func (s *LedgerService) Participants(ctx context.Context) ([]core.Participant, error) {
	return s.store.Participants(ctx)
}

// UpdateParticipantPercentages sets one participant's share; the partner
// receives the remainder so the pair keeps adding up to 100.
func (s *LedgerService) UpdateParticipantPercentages(ctx context.Context, participantID int64, pct decimal.Decimal) (core.Pair, error) {
	pair, err := s.Pair(ctx)
	if err != nil {
		return core.Pair{}, err
	}
	if !pair.Has(participantID) {
		return core.Pair{}, core.Invalid("participant", core.ErrUnknownUser)
	}
	// Stored shares hold two decimal places.
	if pct.IsNegative() || pct.GreaterThan(decimal.NewFromInt(100)) || !pct.Equal(pct.Round(2)) {
		return core.Pair{}, core.Invalid("percentage", core.ErrInvalidPercentage)
	}

	rest := decimal.NewFromInt(100).Sub(pct)
	if pair.A.ID == participantID {
		pair.A.Percentage, pair.B.Percentage = pct, rest
	} else {
		pair.A.Percentage, pair.B.Percentage = rest, pct
	}
	if err := s.store.SetPercentages(ctx, pair); err != nil {
		return core.Pair{}, err
	}
	s.debtViews.Clear()

	slog.InfoContext(ctx, "Participant percentages updated",
		log.FieldComponent, log.ComponentLedger,
		log.FieldOperation, log.OpUpdate,
		pair.A.Username, pair.A.Percentage.String(),
		pair.B.Username, pair.B.Percentage.String())
	return pair, nil
}

// AuditFunds recomputes every fund balance from the ledger.
func (s *LedgerService) AuditFunds(ctx context.Context) ([]FundAudit, error) {
	return s.auditor.AuditFunds(ctx)
}

func (s *LedgerService) AuditFund(ctx context.Context, fundID int64) (FundAudit, error) {
	return s.auditor.AuditFund(ctx, fundID)
}

// Ping reports whether the store is reachable.
func (s *LedgerService) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *LedgerService) requireFund(ctx context.Context, field string, id int64) error {
	if _, err := s.store.GetFund(ctx, id); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return core.Invalid(field, core.ErrNotFound)
		}
		return err
	}
	return nil
}

// publish is best effort: the write already committed.
func (s *LedgerService) publish(ctx context.Context, evt *amqp.LedgerEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishLedgerEvent(ctx, evt); err != nil {
		s.metrics.EventPublished(string(evt.Type), metrics.ResultFailed)
		slog.ErrorContext(ctx, "Failed to publish ledger event",
			log.FieldComponent, log.ComponentAMQP,
			log.FieldOperation, log.OpPublish,
			"type", evt.Type,
			log.FieldError, err)
		return
	}
	s.metrics.EventPublished(string(evt.Type), metrics.ResultOK)
}

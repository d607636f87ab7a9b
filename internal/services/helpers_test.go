package services

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"gastos/internal/amqp"
	"gastos/internal/core"
	"gastos/internal/metrics"
	"gastos/internal/storage"
)

type fakePublisher struct {
	mu     sync.Mutex
	events []*amqp.LedgerEvent
	err    error
}

func (p *fakePublisher) PublishLedgerEvent(_ context.Context, evt *amqp.LedgerEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, evt)
	return nil
}

func (p *fakePublisher) count(t amqp.EventType) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

type fixture struct {
	store *storage.Store
	svc   *LedgerService
	pair  core.Pair
	pub   *fakePublisher
	now   time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	store, err := storage.Open(ctx, storage.Options{
		Driver: storage.DriverSQLite,
		DSN:    filepath.Join(t.TempDir(), "ledger.db"),
	})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	for _, p := range []struct {
		name string
		pct  int64
	}{{"sara", 63}, {"adri", 37}} {
		if _, err := store.SeedParticipant(ctx, p.name, decimal.NewFromInt(p.pct)); err != nil {
			t.Fatalf("seed %s: %v", p.name, err)
		}
	}

	fx := &fixture{
		store: store,
		pub:   &fakePublisher{},
		now:   time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC),
	}
	fx.svc = NewLedgerService(store, fx.pub, metrics.New(), Options{
		Applier: ApplierOptions{Marker: DefaultRecurringMarker, DefaultPayer: "sara"},
		Now:     func() time.Time { return fx.now },
	})

	fx.pair, err = fx.svc.Pair(ctx)
	if err != nil {
		t.Fatalf("pair: %v", err)
	}
	return fx
}

func (fx *fixture) sara() core.Participant { p, _ := fx.pair.ByUsername("sara"); return p }
func (fx *fixture) adri() core.Participant { p, _ := fx.pair.ByUsername("adri"); return p }

func (fx *fixture) fund(t *testing.T, kind core.FundKind, cents int64) core.Fund {
	t.Helper()
	f, err := fx.svc.CreateFund(context.Background(), core.Fund{Kind: kind, Balance: core.Money{Cents: cents}})
	if err != nil {
		t.Fatalf("create fund %s: %v", kind, err)
	}
	return f
}

func (fx *fixture) balance(t *testing.T, fundID int64) int64 {
	t.Helper()
	f, err := fx.store.GetFund(context.Background(), fundID)
	if err != nil {
		t.Fatalf("get fund: %v", err)
	}
	return f.Balance.Cents
}

func (fx *fixture) assertNoDrift(t *testing.T) {
	t.Helper()
	audits, err := fx.svc.AuditFunds(context.Background())
	if err != nil {
		t.Fatalf("AuditFunds: %v", err)
	}
	for _, a := range audits {
		if a.Drifted() {
			t.Errorf("fund %s drifted: stored %s, derived %s", a.Fund.Kind, a.Fund.Balance, a.Derived)
		}
	}
}

func (fx *fixture) expense(desc string, cents int64, cat core.Category, paidBy int64) NewExpense {
	return NewExpense{
		Description: desc,
		Amount:      core.Money{Cents: cents},
		Date:        core.DateOf(fx.now),
		Category:    cat,
		PaidBy:      paidBy,
	}
}

func money(cents int64) core.Money { return core.Money{Cents: cents} }

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

package services

import (
	"context"
	"fmt"
	"log/slog"

	"gastos/internal/core"
	"gastos/internal/log"
	"gastos/internal/metrics"
	"gastos/internal/storage"
)

// FundAudit compares a stored fund balance with the balance derived from
// its ledger rows.
type FundAudit struct {
	Fund    core.Fund
	Totals  storage.LedgerTotals
	Derived core.Money
	// Drift is the stored balance minus the derived one.
	Drift core.Money
}

func (a FundAudit) Drifted() bool { return a.Drift.Cents != 0 }

// Auditor recomputes fund balances from the ledger.
type Auditor struct {
	store   *storage.Store
	metrics *metrics.Metrics
}

func NewAuditor(store *storage.Store, m *metrics.Metrics) *Auditor {
	return &Auditor{store: store, metrics: m}
}

// AuditFunds audits every fund. Drift is logged and exported; it is never
// corrected automatically. Funds and ledger sums are read from one snapshot
// so concurrent writes cannot show up as drift.
func (a *Auditor) AuditFunds(ctx context.Context) ([]FundAudit, error) {
	var (
		funds  []core.Fund
		totals map[int64]storage.LedgerTotals
	)
	err := a.store.InReadTx(ctx, func(tx *storage.Tx) error {
		var err error
		if funds, err = tx.ListFunds(ctx); err != nil {
			return err
		}
		totals, err = tx.FundLedgerTotals(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("audit funds: %w", err)
	}

	audits := make([]FundAudit, 0, len(funds))
	drifted := 0
	for _, f := range funds {
		audit := a.record(ctx, f, totals[f.ID])
		if audit.Drifted() {
			drifted++
		}
		audits = append(audits, audit)
	}

	slog.InfoContext(ctx, "Fund audit complete",
		log.FieldComponent, log.ComponentAudit,
		log.FieldOperation, log.OpAudit,
		"funds", len(audits),
		"drifted", drifted)
	return audits, nil
}

// AuditFund audits a single fund.
func (a *Auditor) AuditFund(ctx context.Context, fundID int64) (FundAudit, error) {
	var (
		f      core.Fund
		totals map[int64]storage.LedgerTotals
	)
	err := a.store.InReadTx(ctx, func(tx *storage.Tx) error {
		var err error
		if f, err = tx.GetFund(ctx, fundID); err != nil {
			return err
		}
		if totals, err = tx.FundLedgerTotals(ctx); err != nil {
			return fmt.Errorf("audit fund: %w", err)
		}
		return nil
	})
	if err != nil {
		return FundAudit{}, err
	}
	return a.record(ctx, f, totals[f.ID]), nil
}

func (a *Auditor) record(ctx context.Context, f core.Fund, t storage.LedgerTotals) FundAudit {
	derived := DeriveBalance(f.InitialBalance, t)
	audit := FundAudit{
		Fund:    f,
		Totals:  t,
		Derived: derived,
		Drift:   f.Balance.Sub(derived),
	}

	a.metrics.FundAudited(string(f.Kind), f.Balance.Cents, audit.Drift.Cents)
	if audit.Drifted() {
		slog.WarnContext(ctx, "Fund balance drift detected",
			log.FieldComponent, log.ComponentAudit,
			log.FieldOperation, log.OpAudit,
			log.FieldFundID, f.ID,
			log.FieldFundKind, f.Kind,
			"stored", f.Balance.String(),
			"derived", derived.String(),
			"drift", audit.Drift.String())
	}
	return audit
}

// DeriveBalance is initial + contributions - fund expenses + manual adjustments.
func DeriveBalance(initial core.Money, t storage.LedgerTotals) core.Money {
	return initial.Add(t.Contributions).Sub(t.Expenses).Add(t.Adjustments)
}

package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gastos/internal/amqp"
	"gastos/internal/core"
	"gastos/internal/log"
	"gastos/internal/services"
)

// Ledger is the part of the ledger service the worker drives.
type Ledger interface {
	AuditFunds(ctx context.Context) ([]services.FundAudit, error)
	AuditFund(ctx context.Context, fundID int64) (services.FundAudit, error)
}

// LedgerWorker audits fund balances on a timer and in response to ledger
// events. It never applies the month; that stays on the read path.
type LedgerWorker struct {
	ledger   Ledger
	interval time.Duration
}

func NewLedgerWorker(ledger Ledger, interval time.Duration) *LedgerWorker {
	if interval <= 0 {
		interval = time.Hour
	}
	return &LedgerWorker{ledger: ledger, interval: interval}
}

// HandleEvent re-audits the fund an event touched. Month events audit every
// fund; events without a fund are acknowledged without work.
func (w *LedgerWorker) HandleEvent(ctx context.Context, evt *amqp.LedgerEvent) error {
	slog.DebugContext(ctx, "Processing ledger event",
		log.FieldComponent, log.ComponentWorker,
		"event_id", evt.ID,
		"type", evt.Type)

	if evt.FundID == nil {
		if evt.Type != amqp.EventMonthApplied {
			return nil
		}
		if _, err := w.ledger.AuditFunds(ctx); err != nil {
			return fmt.Errorf("audit funds: %w", err)
		}
		return nil
	}

	_, err := w.ledger.AuditFund(ctx, *evt.FundID)
	if errors.Is(err, core.ErrNotFound) {
		// Requeueing would loop forever.
		slog.WarnContext(ctx, "Event references a missing fund",
			log.FieldComponent, log.ComponentWorker,
			log.FieldFundID, *evt.FundID,
			"event_id", evt.ID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("audit fund %d: %w", *evt.FundID, err)
	}
	return nil
}

// Tick audits every fund once and returns how many drifted.
func (w *LedgerWorker) Tick(ctx context.Context) (drifted int, err error) {
	audits, err := w.ledger.AuditFunds(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "Fund audit failed",
			log.FieldComponent, log.ComponentWorker,
			log.FieldError, err)
		return 0, fmt.Errorf("audit funds: %w", err)
	}
	for _, a := range audits {
		if a.Drifted() {
			drifted++
		}
	}
	slog.InfoContext(ctx, "Fund audit completed",
		log.FieldComponent, log.ComponentWorker,
		"funds", len(audits),
		"drifted", drifted)
	return drifted, nil
}

// Run ticks immediately and then on every interval until ctx is cancelled.
func (w *LedgerWorker) Run(ctx context.Context) {
	_, _ = w.Tick(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = w.Tick(ctx)
		}
	}
}

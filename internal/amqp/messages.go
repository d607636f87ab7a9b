package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType names a ledger change announced on the bus.
type EventType string

const (
	EventExpenseCreated      EventType = "expense.created"
	EventContributionCreated EventType = "contribution.created"
	EventMonthApplied        EventType = "month.applied"
	EventFundBalanceSet      EventType = "fund.balance_set"
)

func (t EventType) Valid() bool {
	switch t {
	case EventExpenseCreated, EventContributionCreated, EventMonthApplied, EventFundBalanceSet:
		return true
	}
	return false
}

// LedgerEvent is a lightweight notification; consumers re-read the ledger
// for anything beyond the ids carried here.
type LedgerEvent struct {
	ID             uuid.UUID `json:"id"`
	Type           EventType `json:"type"`
	FundID         *int64    `json:"fund_id,omitempty"`
	ExpenseID      int64     `json:"expense_id,omitempty"`
	ContributionID int64     `json:"contribution_id,omitempty"`
	Year           int       `json:"year,omitempty"`
	Month          int       `json:"month,omitempty"`
	AmountCents    int64     `json:"amount_cents"`
	Timestamp      time.Time `json:"timestamp"`
}

// NewLedgerEvent stamps a new event with a fresh id and the current time.
func NewLedgerEvent(t EventType) *LedgerEvent {
	return &LedgerEvent{
		ID:        uuid.New(),
		Type:      t,
		Timestamp: time.Now().UTC(),
	}
}

// ToJSON converts the message to JSON bytes
func (e *LedgerEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// LedgerEventFromJSON decodes an event and rejects unknown types.
func LedgerEventFromJSON(data []byte) (*LedgerEvent, error) {
	var evt LedgerEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		return nil, err
	}
	if !evt.Type.Valid() {
		return nil, fmt.Errorf("unknown event type %q", evt.Type)
	}
	return &evt, nil
}

package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Participant is one of the two ledger users together with the share of
// every personal expense they carry.
type Participant struct {
	ID         int64
	Username   string
	Percentage decimal.Decimal // 0..100
	Active     bool
}

// Pair is the configured couple. Every personal expense is split between A
// and B by their percentages, which must add up to exactly 100.
type Pair struct {
	A Participant
	B Participant
}

// NewPair builds a pair from the active participants, which must be exactly two.
func NewPair(participants []Participant) (Pair, error) {
	var active []Participant
	for _, p := range participants {
		if p.Active {
			active = append(active, p)
		}
	}
	if len(active) != 2 {
		return Pair{}, ErrNoParticipantPair
	}
	pair := Pair{A: active[0], B: active[1]}
	if err := pair.Validate(); err != nil {
		return Pair{}, err
	}
	return pair, nil
}

func (p Pair) Validate() error {
	if p.A.ID == p.B.ID || strings.EqualFold(p.A.Username, p.B.Username) {
		return ErrNoParticipantPair
	}
	for _, pt := range []Participant{p.A, p.B} {
		if pt.Percentage.IsNegative() || pt.Percentage.GreaterThan(hundred) {
			return Invalid(pt.Username, ErrInvalidPercentage)
		}
	}
	if !p.A.Percentage.Add(p.B.Percentage).Equal(hundred) {
		return Invalid("percentage", ErrInvalidPercentage)
	}
	return nil
}

// Has reports whether id belongs to the pair.
func (p Pair) Has(id int64) bool {
	return id == p.A.ID || id == p.B.ID
}

// Get returns the participant with id.
func (p Pair) Get(id int64) (Participant, bool) {
	switch id {
	case p.A.ID:
		return p.A, true
	case p.B.ID:
		return p.B, true
	}
	return Participant{}, false
}

// Other returns the partner of id.
func (p Pair) Other(id int64) (Participant, bool) {
	switch id {
	case p.A.ID:
		return p.B, true
	case p.B.ID:
		return p.A, true
	}
	return Participant{}, false
}

// ByUsername looks a participant up by username, case-insensitively.
func (p Pair) ByUsername(username string) (Participant, bool) {
	for _, pt := range []Participant{p.A, p.B} {
		if strings.EqualFold(pt.Username, username) {
			return pt, true
		}
	}
	return Participant{}, false
}

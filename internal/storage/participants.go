package storage

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"gastos/internal/core"
)

const participantColumns = `id, username, contribution_percentage, active`

func scanParticipant(row interface{ Scan(...any) error }) (core.Participant, error) {
	var (
		p   core.Participant
		pct float64
	)
	if err := row.Scan(&p.ID, &p.Username, &pct, &p.Active); err != nil {
		return core.Participant{}, err
	}
	p.Percentage = decimal.NewFromFloat(pct).Round(2)
	return p, nil
}

// Participants lists every participant, active or not, ordered by id.
func (s *Store) Participants(ctx context.Context) ([]core.Participant, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+participantColumns+` FROM participants ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	defer rows.Close()

	var out []core.Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate participants: %w", err)
	}
	return out, nil
}

// SeedParticipant inserts a participant unless the username already exists.
// Existing rows keep their stored percentage.
func (s *Store) SeedParticipant(ctx context.Context, username string, pct decimal.Decimal) (core.Participant, error) {
	_, err := s.exec(ctx,
		`INSERT INTO participants (username, contribution_percentage, active) VALUES (?, ?, ?)
		 ON CONFLICT (username) DO NOTHING`,
		username, pct.InexactFloat64(), true,
	)
	if err != nil {
		return core.Participant{}, fmt.Errorf("seed participant %s: %w", username, err)
	}

	p, err := scanParticipant(s.db.QueryRowContext(ctx,
		s.d.rebind(`SELECT `+participantColumns+` FROM participants WHERE username = ?`), username))
	if err != nil {
		return core.Participant{}, fmt.Errorf("get participant %s: %w", username, err)
	}
	return p, nil
}

// SetPercentages stores both percentages of the pair in one transaction.
func (s *Store) SetPercentages(ctx context.Context, pair core.Pair) error {
	if err := pair.Validate(); err != nil {
		return err
	}
	return s.InTx(ctx, func(tx *Tx) error {
		for _, p := range []core.Participant{pair.A, pair.B} {
			res, err := tx.exec(ctx,
				`UPDATE participants SET contribution_percentage = ? WHERE id = ?`,
				p.Percentage.InexactFloat64(), p.ID,
			)
			if err != nil {
				return fmt.Errorf("update participant %d: %w", p.ID, err)
			}
			if err := expectRow(res, core.NotFound("participant", p.ID)); err != nil {
				return err
			}
		}
		return nil
	})
}

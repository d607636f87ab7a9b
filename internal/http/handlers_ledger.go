package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"gastos/internal/core"
)

type categorySummaryJSON struct {
	Category core.Category `json:"category"`
	Name     string        `json:"name"`
	Total    string        `json:"total"`
	Count    int           `json:"count"`
}

type monthSummaryResponse struct {
	Month      string                `json:"month"`
	Total      string                `json:"total"`
	Categories []categorySummaryJSON `json:"categories"`
}

// handleMonthSummary totals a month per category; without year and month it
// reports the current month.
func (s *Server) handleMonthSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	ym := core.MonthOf(time.Now())
	year, err := queryInt(r, "year")
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	month, err := queryInt(r, "month")
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	if year != 0 {
		ym.Year = year
	}
	if month != 0 {
		ym.Month = month
	}

	summary, err := s.svc.MonthSummary(ctx, ym)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	resp := monthSummaryResponse{
		Month:      summary.Month.String(),
		Total:      summary.Total.String(),
		Categories: make([]categorySummaryJSON, 0, len(summary.Categories)),
	}
	for _, c := range summary.Categories {
		resp.Categories = append(resp.Categories, categorySummaryJSON{
			Category: c.Category,
			Name:     c.Name,
			Total:    c.Total.String(),
			Count:    c.Count,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListParticipants(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	participants, err := s.svc.Participants(ctx)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	out := make([]participantJSON, 0, len(participants))
	for _, p := range participants {
		out = append(out, toParticipantJSON(p))
	}
	writeJSON(w, http.StatusOK, map[string]any{"participants": out})
}

type updateParticipantsRequest struct {
	// Participant is an id or username; the partner gets the remainder.
	Participant string `json:"participant"`
	Percentage  string `json:"percentage"`
}

func (s *Server) handleUpdateParticipants(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req updateParticipantsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(ctx, w, err)
		return
	}
	pair, err := s.svc.Pair(ctx)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	p, err := resolveParticipant(pair, "participant", req.Participant)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	pct, err := decimal.NewFromString(strings.TrimSpace(req.Percentage))
	if err != nil {
		writeError(ctx, w, core.Invalid("percentage", core.ErrInvalidPercentage))
		return
	}

	pair, err = s.svc.UpdateParticipantPercentages(ctx, p.ID, pct)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"participants": []participantJSON{toParticipantJSON(pair.A), toParticipantJSON(pair.B)},
	})
}

type fundAuditJSON struct {
	FundID  int64         `json:"fund_id"`
	Kind    core.FundKind `json:"kind"`
	Balance string        `json:"balance"`
	Derived string        `json:"derived"`
	Drift   string        `json:"drift"`
	Drifted bool          `json:"drifted"`
}

// handleAudit reports stored versus derived balances. It never corrects them.
func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	audits, err := s.svc.AuditFunds(ctx)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	out := make([]fundAuditJSON, 0, len(audits))
	for _, a := range audits {
		out = append(out, fundAuditJSON{
			FundID:  a.Fund.ID,
			Kind:    a.Fund.Kind,
			Balance: a.Fund.Balance.String(),
			Derived: a.Derived.String(),
			Drift:   a.Drift.String(),
			Drifted: a.Drifted(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"funds": out})
}

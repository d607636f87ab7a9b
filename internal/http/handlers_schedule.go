package http

import (
	"context"
	"net/http"
	"strings"

	"gastos/internal/core"
)

type recurringRequest struct {
	Name         string `json:"name"`
	Amount       string `json:"amount"`
	Periodicity  string `json:"periodicity"`
	Category     string `json:"category"`
	FundID       *int64 `json:"fund_id"`
	Prorate      bool   `json:"prorate"`
	BillingMonth int    `json:"billing_month"`
}

type recurringJSON struct {
	ID           int64            `json:"id"`
	Name         string           `json:"name"`
	Amount       string           `json:"amount"`
	Periodicity  core.Periodicity `json:"periodicity"`
	Category     core.Category    `json:"category"`
	FundID       *int64           `json:"fund_id,omitempty"`
	Prorate      bool             `json:"prorate"`
	BillingMonth int              `json:"billing_month"`
	Active       bool             `json:"active"`
	LastApplied  string           `json:"last_applied,omitempty"`
}

func toRecurringJSON(re core.RecurringExpense) recurringJSON {
	return recurringJSON{
		ID:           re.ID,
		Name:         re.Name,
		Amount:       re.Amount.String(),
		Periodicity:  re.Periodicity,
		Category:     re.Category,
		FundID:       re.FundID,
		Prorate:      re.Prorate,
		BillingMonth: re.BillingMonth,
		Active:       re.Active,
		LastApplied:  monthString(re.LastApplied),
	}
}

func (s *Server) handleListRecurring(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	items, err := s.svc.ListRecurring(ctx)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	out := make([]recurringJSON, 0, len(items))
	for _, re := range items {
		out = append(out, toRecurringJSON(re))
	}
	writeJSON(w, http.StatusOK, map[string]any{"recurring": out})
}

func (s *Server) handleCreateRecurring(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req recurringRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(ctx, w, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	category, err := core.ParseCategory(req.Category)
	if err != nil {
		writeError(ctx, w, core.Invalid("category", err))
		return
	}

	re, err := s.svc.CreateRecurringExpense(ctx, core.RecurringExpense{
		Name:         sanitizeInput(req.Name),
		Amount:       amount,
		Periodicity:  core.Periodicity(strings.ToUpper(strings.TrimSpace(req.Periodicity))),
		Category:     category,
		FundID:       req.FundID,
		Prorate:      req.Prorate,
		BillingMonth: req.BillingMonth,
		Active:       true,
	})
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRecurringJSON(re))
}

type activeRequest struct {
	Active bool `json:"active"`
}

func (s *Server) handleSetRecurringActive(w http.ResponseWriter, r *http.Request) {
	s.setActive(w, r, s.svc.SetRecurringActive)
}

func (s *Server) handleSetGoalActive(w http.ResponseWriter, r *http.Request) {
	s.setActive(w, r, s.svc.SetGoalActive)
}

func (s *Server) setActive(w http.ResponseWriter, r *http.Request, set func(ctx context.Context, id int64, active bool) error) {
	ctx := r.Context()

	id, err := pathID(r)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	var req activeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(ctx, w, err)
		return
	}
	if err := set(ctx, id, req.Active); err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "active": req.Active})
}

type goalRequest struct {
	Name                string `json:"name"`
	TargetAmount        string `json:"target_amount"`
	MonthlyContribution string `json:"monthly_contribution"`
	DestinationFundID   int64  `json:"destination_fund_id"`
}

type goalJSON struct {
	ID                  int64  `json:"id"`
	Name                string `json:"name"`
	TargetAmount        string `json:"target_amount,omitempty"`
	MonthlyContribution string `json:"monthly_contribution"`
	DestinationFundID   int64  `json:"destination_fund_id"`
	Active              bool   `json:"active"`
	LastApplied         string `json:"last_applied,omitempty"`
}

func toGoalJSON(g core.SavingsGoal) goalJSON {
	out := goalJSON{
		ID:                  g.ID,
		Name:                g.Name,
		MonthlyContribution: g.MonthlyContribution.String(),
		DestinationFundID:   g.DestinationFundID,
		Active:              g.Active,
		LastApplied:         monthString(g.LastApplied),
	}
	if g.TargetAmount.Cents > 0 {
		out.TargetAmount = g.TargetAmount.String()
	}
	return out
}

func (s *Server) handleListGoals(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	goals, err := s.svc.ListGoals(ctx)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	out := make([]goalJSON, 0, len(goals))
	for _, g := range goals {
		out = append(out, toGoalJSON(g))
	}
	writeJSON(w, http.StatusOK, map[string]any{"goals": out})
}

func (s *Server) handleCreateGoal(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req goalRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(ctx, w, err)
		return
	}
	monthly, err := parseAmount("monthly_contribution", req.MonthlyContribution)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	var target core.Money
	if strings.TrimSpace(req.TargetAmount) != "" {
		if target, err = parseAmount("target_amount", req.TargetAmount); err != nil {
			writeError(ctx, w, err)
			return
		}
	}

	g, err := s.svc.CreateSavingsGoal(ctx, core.SavingsGoal{
		Name:                sanitizeInput(req.Name),
		TargetAmount:        target,
		MonthlyContribution: monthly,
		DestinationFundID:   req.DestinationFundID,
		Active:              true,
	})
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toGoalJSON(g))
}

package http

import (
	"net/http"
	"strings"

	"gastos/internal/core"
	"gastos/internal/log"
	"gastos/internal/services"
)

type createExpenseRequest struct {
	Description string `json:"description"`
	Amount      string `json:"amount"`
	Date        string `json:"date"`
	Category    string `json:"category"`
	// PaidBy is a participant id or username.
	PaidBy string `json:"paid_by"`
	FundID *int64 `json:"fund_id"`
}

type createExpenseResponse struct {
	Expense  expenseJSON    `json:"expense"`
	Fund     *fundJSON      `json:"fund,omitempty"`
	Warnings []core.Warning `json:"warnings"`
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req createExpenseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(ctx, w, err)
		return
	}

	in, err := s.parseNewExpense(r, req)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	result, err := s.svc.CreateExpense(ctx, in)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	resp := createExpenseResponse{
		Expense:  toExpenseJSON(result.Expense),
		Warnings: result.Warnings,
	}
	if resp.Warnings == nil {
		resp.Warnings = []core.Warning{}
	}
	if result.Fund != nil {
		f := toFundJSON(*result.Fund)
		resp.Fund = &f
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) parseNewExpense(r *http.Request, req createExpenseRequest) (services.NewExpense, error) {
	pair, err := s.svc.Pair(r.Context())
	if err != nil {
		return services.NewExpense{}, err
	}
	payer, err := resolveParticipant(pair, "paid_by", req.PaidBy)
	if err != nil {
		return services.NewExpense{}, err
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		return services.NewExpense{}, err
	}
	date, err := parseDate("date", req.Date)
	if err != nil {
		return services.NewExpense{}, err
	}
	category, err := core.ParseCategory(req.Category)
	if err != nil {
		return services.NewExpense{}, core.Invalid("category", err)
	}

	return services.NewExpense{
		Description: sanitizeInput(req.Description),
		Amount:      amount,
		Date:        date,
		Category:    category,
		PaidBy:      payer.ID,
		FundID:      req.FundID,
	}, nil
}

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var paidBy int64
	if v := strings.TrimSpace(r.URL.Query().Get("paid_by")); v != "" {
		pair, err := s.svc.Pair(ctx)
		if err != nil {
			writeError(ctx, w, err)
			return
		}
		p, err := resolveParticipant(pair, "paid_by", v)
		if err != nil {
			writeError(ctx, w, err)
			return
		}
		paidBy = p.ID
	}

	expenses, err := s.svc.ListExpenses(ctx, paidBy)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	out := make([]expenseJSON, 0, len(expenses))
	for _, e := range expenses {
		out = append(out, toExpenseJSON(e))
	}
	writeJSON(w, http.StatusOK, map[string]any{"expenses": out})
}

type debtLineJSON struct {
	ExpenseID   int64         `json:"expense_id"`
	Date        string        `json:"date"`
	Description string        `json:"description"`
	Amount      string        `json:"amount"`
	Category    core.Category `json:"category"`
	PaidBy      int64         `json:"paid_by"`
	ViewerShare string        `json:"viewer_share"`
	OtherShare  string        `json:"other_share"`
	Attribution string        `json:"attribution"`
	FundKind    core.FundKind `json:"fund_kind,omitempty"`
	Effect      string        `json:"effect"`
}

type monthBalanceJSON struct {
	Month   string `json:"month"`
	Balance string `json:"balance"`
}

type debtViewResponse struct {
	Viewer  participantJSON    `json:"viewer"`
	Other   participantJSON    `json:"other"`
	Balance string             `json:"balance"`
	Months  []monthBalanceJSON `json:"months"`
	Lines   []debtLineJSON     `json:"lines"`
}

func (s *Server) handleDebtView(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	pair, err := s.svc.Pair(ctx)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	viewer, err := resolveParticipant(pair, "viewer", q.Get("viewer"))
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	var filter services.DebtFilter
	if v := q.Get("category"); v != "" {
		if filter.Category, err = core.ParseCategory(v); err != nil {
			writeError(ctx, w, core.Invalid("category", err))
			return
		}
	}
	fund, err := queryInt(r, "fund")
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	filter.FundID = int64(fund)
	if filter.Year, err = queryInt(r, "year"); err != nil {
		writeError(ctx, w, err)
		return
	}
	if filter.Month, err = queryInt(r, "month"); err != nil {
		writeError(ctx, w, err)
		return
	}

	view, err := s.svc.ComputeDebtView(ctx, viewer.ID, filter)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	resp := debtViewResponse{
		Viewer:  toParticipantJSON(view.Viewer),
		Other:   toParticipantJSON(view.Other),
		Balance: view.Balance.StringFixed(2),
		Months:  make([]monthBalanceJSON, 0, len(view.Months)),
		Lines:   make([]debtLineJSON, 0, len(view.Lines)),
	}
	for _, m := range view.Months {
		resp.Months = append(resp.Months, monthBalanceJSON{Month: m.Month.String(), Balance: m.Balance.StringFixed(2)})
	}
	for _, l := range view.Lines {
		resp.Lines = append(resp.Lines, debtLineJSON{
			ExpenseID:   l.ExpenseID,
			Date:        l.Date.String(),
			Description: l.Description,
			Amount:      l.Amount.String(),
			Category:    l.Category,
			PaidBy:      l.PaidBy,
			ViewerShare: l.ViewerShare.String(),
			OtherShare:  l.OtherShare.String(),
			Attribution: l.Attribution,
			FundKind:    l.FundKind,
			Effect:      l.Effect.String(),
		})
	}

	log.FromContext(ctx).DebugContext(ctx, "Debt view computed",
		log.FieldParticipant, viewer.Username,
		"lines", len(resp.Lines),
		"balance", resp.Balance)
	writeJSON(w, http.StatusOK, resp)
}

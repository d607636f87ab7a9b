package http

import (
	"net/http"

	"gastos/internal/core"
	"gastos/internal/services"
)

type contributorJSON struct {
	ContributorID *int64 `json:"contributor_id"`
	Username      string `json:"username"`
	Total         string `json:"total"`
}

type fundSummaryJSON struct {
	fundJSON
	MonthContributions string            `json:"month_contributions"`
	ByContributor      []contributorJSON `json:"by_contributor"`
}

type fundsViewResponse struct {
	Month        string                 `json:"month"`
	TotalBalance string                 `json:"total_balance"`
	Funds        []fundSummaryJSON      `json:"funds"`
	Skipped      []services.SkippedItem `json:"skipped"`
}

func (s *Server) handleFundsView(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	view, err := s.svc.ComputeFundsView(ctx)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	resp := fundsViewResponse{
		Month:        view.Month.String(),
		TotalBalance: view.TotalBalance.String(),
		Funds:        make([]fundSummaryJSON, 0, len(view.Funds)),
		Skipped:      view.Skipped,
	}
	if resp.Skipped == nil {
		resp.Skipped = []services.SkippedItem{}
	}
	for _, f := range view.Funds {
		summary := fundSummaryJSON{
			fundJSON:           toFundJSON(f.Fund),
			MonthContributions: f.MonthContributions.String(),
			ByContributor:      make([]contributorJSON, 0, len(f.ByContributor)),
		}
		for _, c := range f.ByContributor {
			summary.ByContributor = append(summary.ByContributor, contributorJSON{
				ContributorID: c.ContributorID,
				Username:      c.Username,
				Total:         c.Total.String(),
			})
		}
		resp.Funds = append(resp.Funds, summary)
	}
	writeJSON(w, http.StatusOK, resp)
}

type createFundRequest struct {
	Kind    string `json:"kind"`
	Name    string `json:"name"`
	Balance string `json:"balance"`
}

func (s *Server) handleCreateFund(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req createFundRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(ctx, w, err)
		return
	}
	kind, err := core.ParseFundKind(req.Kind)
	if err != nil {
		writeError(ctx, w, core.Invalid("kind", err))
		return
	}
	var balance core.Money
	if req.Balance != "" {
		cents, err := core.ParseSignedDecimalToCents(req.Balance)
		if err != nil {
			writeError(ctx, w, core.Invalid("balance", err))
			return
		}
		balance.Cents = cents
	}

	f, err := s.svc.CreateFund(ctx, core.Fund{Kind: kind, Name: sanitizeInput(req.Name), Balance: balance})
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toFundJSON(f))
}

type setBalanceRequest struct {
	Balance string `json:"balance"`
	Note    string `json:"note"`
}

func (s *Server) handleSetFundBalance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := pathID(r)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	var req setBalanceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(ctx, w, err)
		return
	}
	cents, err := core.ParseSignedDecimalToCents(req.Balance)
	if err != nil {
		writeError(ctx, w, core.Invalid("balance", err))
		return
	}

	f, err := s.svc.SetFundBalance(ctx, id, core.Money{Cents: cents}, sanitizeInput(req.Note))
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, toFundJSON(f))
}

type contributionRequest struct {
	// Contributor is a participant id or username.
	Contributor string `json:"contributor"`
	Amount      string `json:"amount"`
	Date        string `json:"date"`
}

type contributionJSON struct {
	ID            int64  `json:"id"`
	FundID        int64  `json:"fund_id"`
	Date          string `json:"date"`
	Amount        string `json:"amount"`
	ContributorID *int64 `json:"contributor_id"`
	IsAutomatic   bool   `json:"is_automatic"`
}

func (s *Server) handleAddContribution(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	fundID, err := pathID(r)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	var req contributionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(ctx, w, err)
		return
	}

	pair, err := s.svc.Pair(ctx)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	contributor, err := resolveParticipant(pair, "contributor", req.Contributor)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	date, err := parseDate("date", req.Date)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	c, err := s.svc.AddContribution(ctx, services.NewContribution{
		FundID:        fundID,
		ContributorID: contributor.ID,
		Amount:        amount,
		Date:          date,
	})
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusCreated, contributionJSON{
		ID:            c.ID,
		FundID:        c.FundID,
		Date:          c.Date.String(),
		Amount:        c.Amount.String(),
		ContributorID: c.ContributorID,
		IsAutomatic:   c.IsAutomatic,
	})
}

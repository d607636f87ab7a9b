package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"gastos/internal/core"
	"gastos/internal/log"
)

const maxBodyBytes = 1 << 20

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors to status codes. Validation failures are
// 422, missing rows 404 and everything else a generic 500 whose cause is
// only logged.
func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	var ve *core.ValidationError
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: ve.Err.Error(), Field: ve.Field})
	case errors.Is(err, core.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not found"})
	case errors.Is(err, errBadRequest):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	default:
		log.FromContext(ctx).ErrorContext(ctx, "Request failed", log.FieldError, err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

var errBadRequest = errors.New("bad request")

// decodeJSON reads a single JSON object, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: invalid JSON body: %v", errBadRequest, err)
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return fmt.Errorf("%w: body must contain a single JSON object", errBadRequest)
	}
	return nil
}

// pathID parses the {id} URL parameter.
func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, core.Invalid("id", core.ErrNotFound)
	}
	return id, nil
}

// queryInt parses an optional integer query parameter; empty means zero.
func queryInt(r *http.Request, key string) (int, error) {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, core.Invalid(key, fmt.Errorf("%q is not a number", v))
	}
	return n, nil
}

// parseAmount converts a positive decimal string to Money.
func parseAmount(field, s string) (core.Money, error) {
	cents, err := core.ParseDecimalToCents(s)
	if err != nil {
		return core.Money{}, core.Invalid(field, err)
	}
	return core.Money{Cents: cents}, nil
}

// parseDate parses a date string in YYYY-MM-DD format. Empty means today.
func parseDate(field, s string) (core.Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return core.DateOf(time.Now()), nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return core.Date{}, core.Invalid(field, core.ErrInvalidDate)
	}
	return core.DateOf(t), nil
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' {
			return -1
		}
		return r
	}, strings.TrimSpace(s))
}

// resolveParticipant accepts either a numeric id or a username.
func resolveParticipant(pair core.Pair, field, s string) (core.Participant, error) {
	s = strings.TrimSpace(s)
	if id, err := strconv.ParseInt(s, 10, 64); err == nil {
		if p, ok := pair.Get(id); ok {
			return p, nil
		}
	}
	// Usernames may be numeric.
	if p, ok := pair.ByUsername(s); ok {
		return p, nil
	}
	return core.Participant{}, core.Invalid(field, core.ErrUnknownUser)
}

type fundJSON struct {
	ID             int64         `json:"id"`
	Kind           core.FundKind `json:"kind"`
	Name           string        `json:"name"`
	Balance        string        `json:"balance"`
	InitialBalance string        `json:"initial_balance"`
	LastUpdated    string        `json:"last_updated,omitempty"`
}

func toFundJSON(f core.Fund) fundJSON {
	out := fundJSON{
		ID:             f.ID,
		Kind:           f.Kind,
		Name:           f.Name,
		Balance:        f.Balance.String(),
		InitialBalance: f.InitialBalance.String(),
	}
	if !f.LastUpdated.IsZero() {
		out.LastUpdated = f.LastUpdated.String()
	}
	return out
}

type expenseJSON struct {
	ID                 int64         `json:"id"`
	Description        string        `json:"description"`
	Amount             string        `json:"amount"`
	Date               string        `json:"date"`
	Category           core.Category `json:"category"`
	CategoryName       string        `json:"category_name"`
	PaidBy             int64         `json:"paid_by"`
	FundID             *int64        `json:"fund_id,omitempty"`
	RecurringExpenseID *int64        `json:"recurring_expense_id,omitempty"`
}

func toExpenseJSON(e core.Expense) expenseJSON {
	return expenseJSON{
		ID:                 e.ID,
		Description:        e.Description,
		Amount:             e.Amount.String(),
		Date:               e.Date.String(),
		Category:           e.Category,
		CategoryName:       e.Category.Name(),
		PaidBy:             e.PaidBy,
		FundID:             e.FundID,
		RecurringExpenseID: e.RecurringExpenseID,
	}
}

type participantJSON struct {
	ID         int64  `json:"id"`
	Username   string `json:"username"`
	Percentage string `json:"percentage"`
	Active     bool   `json:"active"`
}

func toParticipantJSON(p core.Participant) participantJSON {
	return participantJSON{
		ID:         p.ID,
		Username:   p.Username,
		Percentage: p.Percentage.String(),
		Active:     p.Active,
	}
}

func monthString(ym core.YearMonth) string {
	if ym.IsZero() {
		return ""
	}
	return ym.String()
}

package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"gastos/internal/metrics"
	"gastos/internal/services"
	"gastos/internal/storage"
)

func newTestServer(t *testing.T, opts Options) *Server {
	t.Helper()
	ctx := context.Background()

	store, err := storage.Open(ctx, storage.Options{
		Driver: storage.DriverSQLite,
		DSN:    filepath.Join(t.TempDir(), "api.db"),
	})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	if _, err := store.SeedParticipant(ctx, "sara", decimal.NewFromInt(63)); err != nil {
		t.Fatalf("seed sara: %v", err)
	}
	if _, err := store.SeedParticipant(ctx, "adri", decimal.NewFromInt(37)); err != nil {
		t.Fatalf("seed adri: %v", err)
	}

	m := metrics.New()
	svc := services.NewLedgerService(store, nil, m, services.Options{
		Applier: services.ApplierOptions{Marker: services.DefaultRecurringMarker, DefaultPayer: "sara"},
	})
	if opts.WritesPerMinute == 0 {
		opts.WritesPerMinute = 1000
	}
	srv := NewServer(":0", svc, m, opts)
	t.Cleanup(func() { srv.Shutdown(context.Background()) })
	return srv
}

func do(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return v
}

func TestHealthAndReady(t *testing.T) {
	srv := newTestServer(t, Options{})
	for _, path := range []string{"/healthz", "/readyz"} {
		rr := do(t, srv, http.MethodGet, path, "")
		if rr.Code != http.StatusOK {
			t.Fatalf("%s status=%d", path, rr.Code)
		}
	}
}

func TestCreateExpense(t *testing.T) {
	srv := newTestServer(t, Options{})

	rr := do(t, srv, http.MethodPost, "/api/expenses",
		`{"description":"Dinner","amount":"100","date":"2024-03-10","category":"LEISURE","paid_by":"sara"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	resp := decode[createExpenseResponse](t, rr)
	if resp.Expense.Amount != "100.00" || resp.Expense.Date != "2024-03-10" {
		t.Errorf("expense = %+v", resp.Expense)
	}
	if resp.Fund != nil {
		t.Errorf("leisure expense should be personal, got fund %+v", resp.Fund)
	}
	if !strings.Contains(rr.Body.String(), `"warnings":[]`) {
		t.Errorf("warnings should be an empty list: %s", rr.Body.String())
	}
}

func TestCreateExpenseWithMissingFundWarns(t *testing.T) {
	srv := newTestServer(t, Options{})

	rr := do(t, srv, http.MethodPost, "/api/expenses",
		`{"description":"Hotel","amount":"80","category":"TRAVEL","paid_by":"adri","fund_id":999}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	resp := decode[createExpenseResponse](t, rr)
	if len(resp.Warnings) != 1 || resp.Warnings[0].Code != "fund_not_found" {
		t.Errorf("warnings = %+v", resp.Warnings)
	}
	if resp.Expense.FundID != nil {
		t.Errorf("expense should be personal, got fund %d", *resp.Expense.FundID)
	}
}

func TestCreateExpenseValidation(t *testing.T) {
	srv := newTestServer(t, Options{})

	tests := []struct {
		name   string
		body   string
		status int
		field  string
	}{
		{"bad amount", `{"description":"x","amount":"abc","category":"OTHER","paid_by":"sara"}`, http.StatusUnprocessableEntity, "amount"},
		{"zero amount", `{"description":"x","amount":"0","category":"OTHER","paid_by":"sara"}`, http.StatusUnprocessableEntity, "amount"},
		{"unknown payer", `{"description":"x","amount":"1","category":"OTHER","paid_by":"nobody"}`, http.StatusUnprocessableEntity, "paid_by"},
		{"bad category", `{"description":"x","amount":"1","category":"PETS","paid_by":"sara"}`, http.StatusUnprocessableEntity, "category"},
		{"bad date", `{"description":"x","amount":"1","category":"OTHER","paid_by":"sara","date":"10/03/2024"}`, http.StatusUnprocessableEntity, "date"},
		{"unknown field", `{"description":"x","amount":"1","colour":"red"}`, http.StatusBadRequest, ""},
		{"malformed", `{"description":`, http.StatusBadRequest, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, srv, http.MethodPost, "/api/expenses", tt.body)
			if rr.Code != tt.status {
				t.Fatalf("status=%d want %d body=%s", rr.Code, tt.status, rr.Body.String())
			}
			if tt.field != "" {
				if got := decode[errorResponse](t, rr).Field; got != tt.field {
					t.Errorf("field = %q, want %q", got, tt.field)
				}
			}
		})
	}
}

func TestDebtView(t *testing.T) {
	srv := newTestServer(t, Options{})

	for _, body := range []string{
		`{"description":"Dinner","amount":"100","date":"2024-03-10","category":"LEISURE","paid_by":"sara"}`,
		`{"description":"Cinema","amount":"20","date":"2024-04-02","category":"LEISURE","paid_by":"adri"}`,
	} {
		if rr := do(t, srv, http.MethodPost, "/api/expenses", body); rr.Code != http.StatusCreated {
			t.Fatalf("create status=%d body=%s", rr.Code, rr.Body.String())
		}
	}

	rr := do(t, srv, http.MethodGet, "/api/debt?viewer=sara", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	view := decode[debtViewResponse](t, rr)
	// 37.00 owed to sara minus 12.60 owed to adri.
	if view.Balance != "24.40" {
		t.Errorf("balance = %s, want 24.40", view.Balance)
	}
	if len(view.Lines) != 2 || len(view.Months) != 2 {
		t.Errorf("lines=%d months=%d", len(view.Lines), len(view.Months))
	}

	rr = do(t, srv, http.MethodGet, "/api/debt?viewer=adri", "")
	if got := decode[debtViewResponse](t, rr).Balance; got != "-24.40" {
		t.Errorf("adri balance = %s, want -24.40", got)
	}

	rr = do(t, srv, http.MethodGet, "/api/debt?viewer=ghost", "")
	if rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("unknown viewer status=%d", rr.Code)
	}
	rr = do(t, srv, http.MethodGet, "/api/debt?viewer=sara&month=13", "")
	if rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("bad month status=%d", rr.Code)
	}
}

func TestFundsFlow(t *testing.T) {
	srv := newTestServer(t, Options{})

	rr := do(t, srv, http.MethodPost, "/api/funds", `{"kind":"TRAVEL","name":"Trips","balance":"50"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create fund status=%d body=%s", rr.Code, rr.Body.String())
	}
	fund := decode[fundJSON](t, rr)

	rr = do(t, srv, http.MethodPost, "/api/expenses",
		`{"description":"Train","amount":"80","category":"TRAVEL","paid_by":"adri"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create expense status=%d body=%s", rr.Code, rr.Body.String())
	}
	resp := decode[createExpenseResponse](t, rr)
	if resp.Fund == nil || resp.Fund.Balance != "-30.00" {
		t.Fatalf("fund after expense = %+v", resp.Fund)
	}
	if len(resp.Warnings) != 1 || resp.Warnings[0].Code != "insufficient_funds" {
		t.Errorf("warnings = %+v", resp.Warnings)
	}

	rr = do(t, srv, http.MethodPost, "/api/funds/"+itoa(fund.ID)+"/contributions",
		`{"contributor":"sara","amount":"30"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("contribution status=%d body=%s", rr.Code, rr.Body.String())
	}

	rr = do(t, srv, http.MethodGet, "/api/funds", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("funds view status=%d", rr.Code)
	}
	view := decode[fundsViewResponse](t, rr)
	if len(view.Funds) != 1 || view.Funds[0].Balance != "0.00" || view.TotalBalance != "0.00" {
		t.Errorf("funds view = %+v", view)
	}

	rr = do(t, srv, http.MethodPut, "/api/funds/"+itoa(fund.ID)+"/balance", `{"balance":"120.50","note":"recount"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("set balance status=%d body=%s", rr.Code, rr.Body.String())
	}
	if got := decode[fundJSON](t, rr).Balance; got != "120.50" {
		t.Errorf("balance = %s, want 120.50", got)
	}

	rr = do(t, srv, http.MethodGet, "/api/audit", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("audit status=%d", rr.Code)
	}
	audit := decode[map[string][]fundAuditJSON](t, rr)["funds"]
	if len(audit) != 1 || audit[0].Drifted {
		t.Errorf("audit = %+v", audit)
	}

	rr = do(t, srv, http.MethodPut, "/api/funds/999/balance", `{"balance":"1"}`)
	if rr.Code != http.StatusNotFound {
		t.Errorf("unknown fund status=%d", rr.Code)
	}
}

func TestUpdateParticipants(t *testing.T) {
	srv := newTestServer(t, Options{})

	rr := do(t, srv, http.MethodPut, "/api/participants", `{"participant":"adri","percentage":"40"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	got := decode[map[string][]participantJSON](t, rr)["participants"]
	if len(got) != 2 || got[0].Percentage != "60" || got[1].Percentage != "40" {
		t.Errorf("participants = %+v", got)
	}

	rr = do(t, srv, http.MethodPut, "/api/participants", `{"participant":"adri","percentage":"abc"}`)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("bad percentage status=%d", rr.Code)
	}
}

func TestMonthSummaryEndpoint(t *testing.T) {
	srv := newTestServer(t, Options{})
	do(t, srv, http.MethodPost, "/api/expenses",
		`{"description":"Dinner","amount":"12.50","date":"2024-03-10","category":"LEISURE","paid_by":"sara"}`)

	rr := do(t, srv, http.MethodGet, "/api/summary?year=2024&month=3", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	s := decode[monthSummaryResponse](t, rr)
	if s.Month != "2024-03" || s.Total != "12.50" || len(s.Categories) != 1 {
		t.Errorf("summary = %+v", s)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, Options{})
	rr := do(t, srv, http.MethodGet, "/metrics", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "gastos_http_rate_limited_total") {
		t.Errorf("metrics output missing ledger collectors")
	}
}

func TestWriteRateLimit(t *testing.T) {
	srv := newTestServer(t, Options{WritesPerMinute: 2})
	body := `{"description":"x","amount":"1","category":"OTHER","paid_by":"sara"}`

	for i := 0; i < 2; i++ {
		if rr := do(t, srv, http.MethodPost, "/api/expenses", body); rr.Code != http.StatusCreated {
			t.Fatalf("request %d status=%d", i, rr.Code)
		}
	}
	rr := do(t, srv, http.MethodPost, "/api/expenses", body)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("status=%d, want 429", rr.Code)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Errorf("missing Retry-After")
	}
	// Reads are never limited.
	if rr := do(t, srv, http.MethodGet, "/api/expenses", ""); rr.Code != http.StatusOK {
		t.Errorf("read status=%d", rr.Code)
	}
}

func TestSecurityHeaders(t *testing.T) {
	srv := newTestServer(t, Options{})
	rr := do(t, srv, http.MethodGet, "/healthz", "")
	for _, h := range []string{"Content-Security-Policy", "X-Frame-Options", "X-Content-Type-Options"} {
		if rr.Header().Get(h) == "" {
			t.Errorf("missing %s", h)
		}
	}
	if rr.Header().Get("Strict-Transport-Security") != "" {
		t.Errorf("HSTS must only be sent over TLS")
	}
}

func TestUnsupportedContentType(t *testing.T) {
	srv := newTestServer(t, Options{})
	req := httptest.NewRequest(http.MethodPost, "/api/expenses", strings.NewReader("amount=1"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("status=%d, want 415", rr.Code)
	}
}

func itoa(n int64) string {
	b, _ := json.Marshal(n)
	return string(b)
}

package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"famfin-server/src/db"
	"famfin-server/src/middleware"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These handlers reject the request before touching the database, so a nil
// pool is never dereferenced.

func authed(req *http.Request, userID int64) *http.Request {
	return req.WithContext(middleware.WithUser(req.Context(), userID, "jane", false))
}

func do(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRegister_RejectsBeforeDatabase(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantBody string
	}{
		{"malformed", `{`, "invalid request"},
		{"missing fields", `{"username":"jane"}`, "invalid fields"},
		{"bad email", `{"first_name":"J","last_name":"D","username":"jane","email":"nope","password":"Passw0rd!"}`, "invalid email format"},
		{"short username", `{"first_name":"J","last_name":"D","username":"jd","email":"j@example.com","password":"Passw0rd!"}`, "username must be"},
		{"weak password", `{"first_name":"J","last_name":"D","username":"jane","email":"j@example.com","password":"password"}`, "password must be"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(Register(nil, AuthConfig{}), httptest.NewRequest(http.MethodPost, "/api/register", strings.NewReader(tt.body)))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.wantBody)
		})
	}
}

func TestLogin_RejectsMalformedBody(t *testing.T) {
	rec := do(Login(nil, AuthConfig{}), httptest.NewRequest(http.MethodPost, "/api/login", strings.NewReader(`{"username":"jane"}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlers_RequireUser(t *testing.T) {
	handlers := map[string]http.Handler{
		"create transaction": CreateTransaction(nil),
		"create rule":        CreateTransactionRule(nil),
		"preview":            PreviewTransactionRules(nil),
		"enroll":             EnrollTwoFactor(nil, AuthConfig{}),
		"verify":             VerifyTwoFactor(nil),
	}
	for name, h := range handlers {
		t.Run(name, func(t *testing.T) {
			rec := do(h, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`)))
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

func TestVerifyTwoFactor_RequiresCode(t *testing.T) {
	req := authed(httptest.NewRequest(http.MethodPost, "/api/2fa/verify", strings.NewReader(`{}`)), 1)
	rec := do(VerifyTwoFactor(nil), req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateTransaction_Validation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing merchant", `{"amount":"-4.50","booked_at":"2025-03-14","currency":"USD"}`},
		{"bad date", `{"merchant":"A","amount":"1","booked_at":"14.03.2025","currency":"USD"}`},
		{"bad currency", `{"merchant":"A","amount":"1","booked_at":"2025-03-14","currency":"US1"}`},
		{"bad source", `{"merchant":"A","amount":"1","booked_at":"2025-03-14","currency":"USD","source":"bank_sync"}`},
		{"bad amount", `{"merchant":"A","amount":"abc","booked_at":"2025-03-14","currency":"USD"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := authed(httptest.NewRequest(http.MethodPost, "/api/transactions", strings.NewReader(tt.body)), 1)
			assert.Equal(t, http.StatusBadRequest, do(CreateTransaction(nil), req).Code)
		})
	}
}

func TestImportTransactions_BadCSV(t *testing.T) {
	req := authed(httptest.NewRequest(http.MethodPost, "/api/transactions/import", strings.NewReader("merchant,amount\nA,1\n")), 1)
	rec := do(ImportTransactions(nil), req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "booked_at")
}

func TestCreateTransactionRule_Validation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"malformed", `{`},
		{"missing name", `{"trigger":{"field":"merchant","operator":"contains","value":"x"},"action":{"field":"category","value":"C"}}`},
		{"unknown operator", `{"name":"r","trigger":{"field":"merchant","operator":"starts_with","value":"x"},"action":{"field":"category","value":"C"}}`},
		{"amount contains", `{"name":"r","trigger":{"field":"amount","operator":"contains","value":"5"},"action":{"field":"category","value":"C"}}`},
		{"merchant number", `{"name":"r","trigger":{"field":"merchant","operator":"equals","value":5},"action":{"field":"category","value":"C"}}`},
		{"unknown action", `{"name":"r","trigger":{"field":"merchant","operator":"equals","value":"x"},"action":{"field":"merchant","value":"C"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := authed(httptest.NewRequest(http.MethodPost, "/api/transaction-rules", strings.NewReader(tt.body)), 1)
			assert.Equal(t, http.StatusBadRequest, do(CreateTransactionRule(nil), req).Code)
		})
	}
}

func TestRuleIDParam_RejectsNonUUID(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/rules/{rule_id}", GetTransactionRuleByID(nil))
	r.Delete("/rules/{rule_id}", DeleteTransactionRule(nil))

	for _, method := range []string{http.MethodGet, http.MethodDelete} {
		req := authed(httptest.NewRequest(method, "/rules/42", nil), 1)
		assert.Equal(t, http.StatusBadRequest, do(r, req).Code, method)
	}
}

type previewResult struct {
	Matched bool `json:"matched"`
	Rule    *struct {
		Name     string `json:"name"`
		Priority int    `json:"priority"`
	} `json:"rule"`
	Transaction struct {
		Merchant string `json:"merchant"`
		Amount   string `json:"amount"`
		Category struct {
			Major string `json:"major"`
			Minor string `json:"minor"`
		} `json:"category"`
	} `json:"transaction"`
}

func preview(t *testing.T, body string) (int, previewResult) {
	t.Helper()
	req := authed(httptest.NewRequest(http.MethodPost, "/api/transaction-rules/preview", strings.NewReader(body)), 1)
	rec := do(PreviewTransactionRules(nil), req)
	var out previewResult
	if rec.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec.Code, out
}

func TestPreviewTransactionRules(t *testing.T) {
	body := `{
		"rules": [
			{"name":"Big spend","priority":20,"trigger":{"field":"amount","operator":"less_than","value":"-100"},"action":{"field":"category","value":"Large"}},
			{"name":"Coffee","priority":5,"trigger":{"field":"merchant","operator":"contains","value":"starbucks"},"action":{"field":"category","value":"Coffee"}},
			{"name":"Any negative","priority":10,"trigger":{"field":"amount","operator":"less_than","value":0},"action":{"field":"category","value":"Expense"}}
		],
		"transaction": {"merchant":"STARBUCKS #1234","amount":"-4.50","booked_at":"2025-03-14","currency":"usd","category":"Shopping"}
	}`

	code, out := preview(t, body)
	require.Equal(t, http.StatusOK, code)
	assert.True(t, out.Matched)
	require.NotNil(t, out.Rule)
	assert.Equal(t, "Coffee", out.Rule.Name)
	assert.Equal(t, 5, out.Rule.Priority)
	assert.Equal(t, "Coffee", out.Transaction.Category.Major)
	assert.Equal(t, "STARBUCKS #1234", out.Transaction.Merchant)
}

func TestPreviewTransactionRules_NoMatch(t *testing.T) {
	body := `{
		"rules": [
			{"name":"Coffee","trigger":{"field":"merchant","operator":"equals","value":"starbucks"},"action":{"field":"category","value":"Coffee"}}
		],
		"transaction": {"merchant":"STARBUCKS #1234","amount":"-4.50","booked_at":"2025-03-14","currency":"USD","category":"Shopping"}
	}`

	code, out := preview(t, body)
	require.Equal(t, http.StatusOK, code)
	assert.False(t, out.Matched)
	assert.Nil(t, out.Rule)
	assert.Equal(t, "Shopping", out.Transaction.Category.Major)
}

func TestPreviewTransactionRules_EmptyRuleSet(t *testing.T) {
	code, out := preview(t, `{"rules":[],"transaction":{"merchant":"A","amount":1,"booked_at":"2025-03-14","currency":"USD"}}`)
	require.Equal(t, http.StatusOK, code)
	assert.False(t, out.Matched)
}

func TestPreviewTransactionRules_InvalidRule(t *testing.T) {
	code, _ := preview(t, `{
		"rules": [{"name":"r","trigger":{"field":"amount","operator":"greater_than","value":"ten"},"action":{"field":"category","value":"C"}}],
		"transaction": {"merchant":"A","amount":1,"booked_at":"2025-03-14","currency":"USD"}
	}`)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestClearCache(t *testing.T) {
	require.NoError(t, db.InitCache(100))
	db.SetRuleCache(1, "x")

	r := chi.NewRouter()
	r.Post("/cache/{cache_name}", ClearCache())

	rec := do(r, httptest.NewRequest(http.MethodPost, "/cache/rules", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	_, ok := db.GetRuleCache(1)
	assert.False(t, ok)

	rec = do(r, httptest.NewRequest(http.MethodPost, "/cache/nope", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

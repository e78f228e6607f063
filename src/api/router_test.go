package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"famfin-server/src/config"
	"famfin-server/src/db"
	"famfin-server/src/plaid"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRouter(t *testing.T, demo bool) http.Handler {
	t.Helper()
	client, err := plaid.NewPlaidClient("id", "secret", "sandbox")
	require.NoError(t, err)
	require.NoError(t, db.InitCache(100))

	cfg := config.Config{
		JWTSecret:      "router-secret",
		JWTExpiry:      time.Hour,
		TOTPIssuer:     "Famfin",
		DemoMode:       demo,
		AllowedOrigins: []string{"https://famfin.app"},
	}
	return NewRouter(nil, client, cfg, nil)
}

func bearer(t *testing.T, userID int64, superAdmin bool) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id":     userID,
		"username":    "jane",
		"super_admin": superAdmin,
		"exp":         time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("router-secret"))
	require.NoError(t, err)
	return "Bearer " + token
}

func serve(h http.Handler, method, path, auth, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRouter_Health(t *testing.T) {
	rec := serve(testRouter(t, false), http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestRouter_ProtectedRoutesNeedToken(t *testing.T) {
	r := testRouter(t, false)
	for _, path := range []string{"/api/transactions", "/api/transaction-rules", "/api/plaid/items"} {
		assert.Equal(t, http.StatusUnauthorized, serve(r, http.MethodGet, path, "", "").Code, path)
	}
	assert.Equal(t, http.StatusUnauthorized, serve(r, http.MethodPost, "/api/2fa/enroll", "", "").Code)
}

func TestRouter_Preview(t *testing.T) {
	body := `{
		"rules": [{"name":"Coffee","trigger":{"field":"merchant","operator":"contains","value":"coffee"},"action":{"field":"category","value":"Coffee"}}],
		"transaction": {"merchant":"Blue Bottle Coffee","amount":"-6","booked_at":"2025-03-14","currency":"USD"}
	}`
	rec := serve(testRouter(t, false), http.MethodPost, "/api/transaction-rules/preview", bearer(t, 1, false), body)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"matched":true`)
}

func TestRouter_AdminRoutes(t *testing.T) {
	r := testRouter(t, false)

	rec := serve(r, http.MethodPost, "/api/admin/cache/clear/all", bearer(t, 1, false), "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = serve(r, http.MethodPost, "/api/admin/cache/clear/all", bearer(t, 1, true), "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_DemoMode(t *testing.T) {
	r := testRouter(t, true)
	body := `{"rules":[],"transaction":{"merchant":"A","amount":1,"booked_at":"2025-03-14","currency":"USD"}}`

	rec := serve(r, http.MethodPost, "/api/transaction-rules/preview", bearer(t, 1, false), body)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = serve(r, http.MethodPost, "/api/transaction-rules/preview", bearer(t, 1, true), body)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_WebhookRejectsUnsigned(t *testing.T) {
	rec := serve(testRouter(t, false), http.MethodPost, "/api/plaid/webhook", "", `{"webhook_type":"TRANSACTIONS"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

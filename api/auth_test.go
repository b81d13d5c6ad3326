/*
auth_test.go - Bearer token checks on /api routes

Tests for:
- Public health endpoint
- 401 for missing, foreign, expired and subject-less tokens
- 403 for roles outside the console
- Actor propagation into records and the audit log
*/
package api

import (
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-secret")

func newAuthServer(t *testing.T) *testServer {
	t.Helper()
	return newTestServer(t, RouterOptions{
		JWTSecret:  string(testSecret),
		AdminRoles: []string{"finance", "compliance"},
	})
}

func mustToken(t *testing.T, secret []byte, subject, role string, ttl time.Duration) string {
	t.Helper()
	token, err := IssueToken(secret, subject, role, ttl)
	require.NoError(t, err)
	return token
}

func TestAuth_HealthIsPublic(t *testing.T) {
	s := newAuthServer(t)

	rec, _ := s.do(http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuth_Rejections(t *testing.T) {
	noSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Role: "finance",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString(testSecret)
	require.NoError(t, err)

	tests := []struct {
		name   string
		token  string
		status int
		error  string
	}{
		{"no token", "", http.StatusUnauthorized, "missing bearer token"},
		{"wrong secret", mustToken(t, []byte("other"), "u-1", "finance", time.Hour), http.StatusUnauthorized, "invalid token"},
		{"expired", mustToken(t, testSecret, "u-1", "finance", -time.Minute), http.StatusUnauthorized, "invalid token"},
		{"garbage", "not-a-jwt", http.StatusUnauthorized, "invalid token"},
		{"no subject", noSubject, http.StatusUnauthorized, "token has no subject"},
		{"driver role", mustToken(t, testSecret, "drv-001", "driver", time.Hour), http.StatusForbidden, `role "driver" may not use the console`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newAuthServer(t)
			s.token = tt.token

			rec, env := s.do(http.MethodGet, "/api/payments/transactions", nil)

			assert.Equal(t, tt.status, rec.Code)
			assert.False(t, env.Success)
			assert.Equal(t, tt.error, env.Error)
		})
	}
}

func TestAuth_ActorFromToken(t *testing.T) {
	// GIVEN: a finance user signed in
	s := newAuthServer(t)
	s.token = mustToken(t, testSecret, "finance-marco", "finance", time.Hour)

	// WHEN: they record a payment and ask for a refund
	s.recordTransaction("txn-1", 200)
	rec, env := s.do(http.MethodPost, "/api/payments/refunds", RequestRefundRequest{
		TransactionID: "txn-1", Amount: 50, Reason: "Overcharge",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// THEN: both the refund and the audit log name them
	assert.Equal(t, "finance-marco", decodeData[RefundDTO](t, env).RequestedBy)

	rec, env = s.do(http.MethodGet, "/api/audit?actor=finance-marco", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	entries := decodeData[[]AuditEntryDTO](t, env)
	require.Len(t, entries, 1)
	assert.Equal(t, "refund_requested", entries[0].Action)
}

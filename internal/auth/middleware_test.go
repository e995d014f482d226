package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testVerifier() *Verifier {
	return &Verifier{Secret: []byte("s3cret"), Issuer: "marketplace-auth"}
}

func protected(v *Verifier, caps ...Capability) (http.Handler, *Identity) {
	var seen Identity
	h := v.Require(caps...)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = FromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))
	return h, &seen
}

func TestRequire_BuyerCanCheckout(t *testing.T) {
	v := testVerifier()
	tok, err := v.Sign(Identity{UserID: "u-1", Email: "b@example.com", Role: RoleBuyer}, time.Hour)
	require.NoError(t, err)

	h, seen := protected(v, CapCheckout)
	req := httptest.NewRequest(http.MethodPost, "/orders", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, Identity{UserID: "u-1", Email: "b@example.com", Role: RoleBuyer}, *seen)
}

func TestRequire_SellerForbidden(t *testing.T) {
	v := testVerifier()
	tok, err := v.Sign(Identity{UserID: "s-1", Role: RoleSeller}, time.Hour)
	require.NoError(t, err)

	h, _ := protected(v, CapCheckout)
	req := httptest.NewRequest(http.MethodPost, "/orders", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRequire_Rejects(t *testing.T) {
	v := testVerifier()
	expired, err := v.Sign(Identity{UserID: "u-1", Role: RoleBuyer}, -time.Hour)
	require.NoError(t, err)
	other, err := (&Verifier{Secret: []byte("other"), Issuer: "marketplace-auth"}).Sign(Identity{UserID: "u-1", Role: RoleBuyer}, time.Hour)
	require.NoError(t, err)
	badRole, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Role:             "admin",
		RegisteredClaims: jwt.RegisteredClaims{Subject: "u-1", Issuer: "marketplace-auth"},
	}).SignedString(v.Secret)
	require.NoError(t, err)

	cases := map[string]string{
		"missing":   "",
		"malformed": "Bearer nope",
		"expired":   "Bearer " + expired,
		"signature": "Bearer " + other,
		"role":      "Bearer " + badRole,
	}
	h, _ := protected(v)
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/orders", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Bearer")
		})
	}
}

func TestRoleCapabilities(t *testing.T) {
	_, err := ParseRole("admin")
	assert.Error(t, err)
	assert.True(t, RoleBuyer.Can(CapManageCart))
	assert.False(t, RoleSeller.Can(CapViewOrders))
}

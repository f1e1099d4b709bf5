package auth

import (
	"context"
	"net/http"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	raw, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return raw
}

func TestDevVerifier_ParsesClaims(t *testing.T) {
	v, err := NewVerifier(context.Background(), "")
	require.NoError(t, err)

	raw := signedToken(t, jwt.MapClaims{"sub": "user-123", "role": RoleScanner})

	principal, err := v.Principal(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, "user-123", principal.UserID)
	assert.Equal(t, RoleScanner, principal.Role)
}

func TestDevVerifier_MissingSubject(t *testing.T) {
	v, err := NewVerifier(context.Background(), "")
	require.NoError(t, err)

	raw := signedToken(t, jwt.MapClaims{"role": RolePromoter})

	_, err = v.Principal(context.Background(), raw)
	assert.Error(t, err)
}

func TestDevVerifier_MalformedToken(t *testing.T) {
	v, err := NewVerifier(context.Background(), "")
	require.NoError(t, err)

	_, err = v.Principal(context.Background(), "not.a.jwt")
	assert.Error(t, err)

	_, err = v.Principal(context.Background(), "")
	assert.Error(t, err)
}

func TestExtractTokenFromRequest(t *testing.T) {
	req, _ := http.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer abc123")

	token, err := ExtractTokenFromRequest(req)
	require.NoError(t, err)
	assert.Equal(t, "abc123", token)

	req.Header.Set("Authorization", "Basic abc123")
	_, err = ExtractTokenFromRequest(req)
	assert.Error(t, err)

	req.Header.Del("Authorization")
	_, err = ExtractTokenFromRequest(req)
	assert.Error(t, err)
}

func TestPrincipalContextRoundTrip(t *testing.T) {
	ctx := WithPrincipal(context.Background(), Principal{UserID: "u1", Role: RoleManager})

	principal, ok := PrincipalFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "u1", principal.UserID)
	assert.Equal(t, RoleManager, principal.Role)

	_, ok = PrincipalFromContext(context.Background())
	assert.False(t, ok)
}

package authz

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRoles(t *testing.T) {
	roles := ParseRoles([]string{"logística", "PRODUCCION", "Admin", "LOGISTICA", "janitor", ""})
	assert.Equal(t, []Role{RoleLogistica, RoleProduccion, RoleAdmin}, roles)
}

func TestCapabilities(t *testing.T) {
	testCases := []struct {
		role Role
		cap  Capability
		want bool
	}{
		{RoleLogistica, CapCompleteCall, true},
		{RoleLogistica, CapDeleteCall, true},
		{RoleProduccion, CapCompleteCall, false},
		{RoleProduccion, CapDeleteCall, false},
		{RoleProduccion, CapCreateCall, true},
		{RoleAdmin, CapCompleteCall, false},
		{RoleUser, CapCreateCall, false},
		{RoleUser, CapViewCalls, true},
		{Role("GHOST"), CapViewCalls, false},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.want, HasCapability(tc.role, tc.cap), "%s/%s", tc.role, tc.cap)
	}
}

func TestCreatorTag(t *testing.T) {
	assert.Equal(t, RoleLogistica, CreatorTag([]Role{RoleAdmin, RoleLogistica}))
	assert.Equal(t, RoleProduccion, CreatorTag([]Role{RoleAdmin}))
	assert.Equal(t, RoleProduccion, CreatorTag(nil))
}

func TestIdentityContext(t *testing.T) {
	_, ok := FromContext(context.Background())
	assert.False(t, ok)

	ctx := WithIdentity(context.Background(), Identity{Subject: "L-1", Roles: []Role{RoleLogistica}})
	id, ok := FromContext(ctx)
	require.True(t, ok)
	assert.True(t, id.Can(CapCompleteCall))
}

func sign(t *testing.T, secret string, claims Claims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return tok
}

func TestVerifier(t *testing.T) {
	now := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	v, err := NewVerifier("s3cret", "")
	require.NoError(t, err)

	valid := Claims{
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour))},
		License:          "L-42",
		Roles:            []string{"Logistica"},
	}

	t.Run("valid token", func(t *testing.T) {
		id, err := v.Verify(sign(t, "s3cret", valid), now)
		require.NoError(t, err)
		assert.Equal(t, "L-42", id.Subject)
		assert.Equal(t, []Role{RoleLogistica}, id.Roles)
	})

	t.Run("wrong secret", func(t *testing.T) {
		_, err := v.Verify(sign(t, "other", valid), now)
		assert.Error(t, err)
	})

	t.Run("expired", func(t *testing.T) {
		_, err := v.Verify(sign(t, "s3cret", valid), now.Add(2*time.Hour))
		assert.Error(t, err)
	})

	t.Run("no known role", func(t *testing.T) {
		c := valid
		c.Roles = []string{"guest"}
		_, err := v.Verify(sign(t, "s3cret", c), now)
		assert.Error(t, err)
	})

	t.Run("empty secret rejected", func(t *testing.T) {
		_, err := NewVerifier("", "")
		assert.Error(t, err)
	})
}

package auth

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shiva/medride/internal/model"
	"github.com/shiva/medride/internal/repository"
	"github.com/shiva/medride/internal/service"
)

func TestIssuer_RoundTrip(t *testing.T) {
	iss := NewIssuer("secret", "medride", time.Hour)
	u := model.User{ID: uuid.New(), Role: model.RoleDriver}

	raw, err := iss.Sign(u)
	require.NoError(t, err)

	claims, err := iss.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, u.ID.String(), claims.Subject)
	assert.Equal(t, model.RoleDriver, claims.Role)
	assert.Equal(t, "medride", claims.Issuer)
}

func TestIssuer_Rejects(t *testing.T) {
	u := model.User{ID: uuid.New(), Role: model.RolePatient}
	iss := NewIssuer("secret", "medride", time.Hour)

	t.Run("wrong secret", func(t *testing.T) {
		raw, err := NewIssuer("other", "medride", time.Hour).Sign(u)
		require.NoError(t, err)
		_, err = iss.Parse(raw)
		assert.Error(t, err)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		raw, err := NewIssuer("secret", "someone-else", time.Hour).Sign(u)
		require.NoError(t, err)
		_, err = iss.Parse(raw)
		assert.Error(t, err)
	})

	t.Run("expired", func(t *testing.T) {
		old := NewIssuer("secret", "medride", time.Minute)
		old.now = func() time.Time { return time.Now().Add(-time.Hour) }
		raw, err := old.Sign(u)
		require.NoError(t, err)
		_, err = iss.Parse(raw)
		assert.ErrorIs(t, err, jwt.ErrTokenExpired)
	})

	t.Run("unsigned", func(t *testing.T) {
		raw, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{Role: model.RoleAdmin}).
			SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)
		_, err = iss.Parse(raw)
		assert.Error(t, err)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := iss.Parse("not.a.token")
		assert.Error(t, err)
	})
}

func TestAuthenticator(t *testing.T) {
	ctx := context.Background()
	iss := NewIssuer("secret", "", 0)
	u := model.User{ID: uuid.New(), Role: model.RoleFacility}
	users := repository.NewMemoryUserDirectory(u)
	a := NewAuthenticator(iss, users)

	raw, err := iss.Sign(u)
	require.NoError(t, err)

	got, err := a.Authenticate(ctx, raw)
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.Equal(t, model.RoleFacility, got.Role)

	_, err = a.Authenticate(ctx, "")
	assert.ErrorIs(t, err, service.ErrAuth)

	_, err = a.Authenticate(ctx, "junk")
	assert.ErrorIs(t, err, service.ErrAuth)

	users.Remove(u.ID)
	_, err = a.Authenticate(ctx, raw)
	assert.ErrorIs(t, err, service.ErrAuth)
}

func TestBearerFromRequest(t *testing.T) {
	r := httptest.NewRequest("GET", "/rides", nil)
	r.Header.Set("Authorization", "Bearer abc.def")
	assert.Equal(t, "abc.def", BearerFromRequest(r))

	r = httptest.NewRequest("GET", "/rides", nil)
	r.Header.Set("Authorization", "Basic Zm9vOmJhcg==")
	assert.Empty(t, BearerFromRequest(r))

	r = httptest.NewRequest("GET", "/ws?token=xyz", nil)
	assert.Equal(t, "xyz", BearerFromRequest(r))
}

func TestContext(t *testing.T) {
	_, ok := ActorFrom(context.Background())
	assert.False(t, ok)

	u := &model.User{ID: uuid.New(), Role: model.RoleAdmin}
	actor, ok := ActorFrom(WithUser(context.Background(), u))
	require.True(t, ok)
	assert.Equal(t, service.Actor{ID: u.ID, Role: model.RoleAdmin}, actor)
}

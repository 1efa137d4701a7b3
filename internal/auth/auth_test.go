package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/filevault/internal/model"
	"github.com/dharsanguruparan/filevault/internal/repository"
)

const secret = "0123456789abcdef0123"

func newService(t *testing.T, cacheTTL time.Duration) (*Service, repository.UserRepository, *model.User) {
	t.Helper()
	users := repository.NewMemoryDirectory().Users()
	hash, err := HashPassword("user123")
	require.NoError(t, err)
	u := &model.User{Email: "user@example.com", PasswordHash: hash, Role: model.RoleUser, DepartmentID: 3, Active: true}
	require.NoError(t, users.Create(context.Background(), u))
	return NewService(users, secret, time.Hour, 16, cacheTTL), users, u
}

func TestLogin(t *testing.T) {
	t.Parallel()

	svc, _, u := newService(t, 0)
	ctx := context.Background()

	token, got, err := svc.Login(ctx, "  USER@example.com ", "user123")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	var claims Claims
	_, err = jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) { return []byte(secret), nil })
	require.NoError(t, err)
	assert.Equal(t, "1", claims.Subject)
	assert.Equal(t, "USER", claims.Role)
	assert.Equal(t, int64(3), claims.Dept)

	_, _, err = svc.Login(ctx, "user@example.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, _, err = svc.Login(ctx, "nobody@example.com", "user123")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAuthenticate(t *testing.T) {
	t.Parallel()

	svc, _, u := newService(t, 0)
	token, err := svc.IssueToken(u)
	require.NoError(t, err)

	got, err := svc.Authenticate(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, u.Actor(), got.Actor())
}

func TestAuthenticate_Rejects(t *testing.T) {
	t.Parallel()

	svc, _, u := newService(t, 0)
	ctx := context.Background()

	other := NewService(nil, "another-secret-value!", time.Hour, 1, 0)
	forged, err := other.IssueToken(u)
	require.NoError(t, err)

	expiredSvc := NewService(nil, secret, time.Hour, 1, 0)
	expiredSvc.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expired, err := expiredSvc.IssueToken(u)
	require.NoError(t, err)

	ghost, err := svc.IssueToken(&model.User{ID: 404, Role: model.RoleAdmin})
	require.NoError(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "1", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	for name, token := range map[string]string{
		"garbage":      "not-a-token",
		"wrong secret": forged,
		"expired":      expired,
		"unknown user": ghost,
		"alg none":     none,
	} {
		_, err := svc.Authenticate(ctx, token)
		assert.ErrorIs(t, err, ErrUnauthenticated, name)
	}
}

func TestAuthenticate_InactiveUser(t *testing.T) {
	t.Parallel()

	svc, users, _ := newService(t, 0)
	inactive := &model.User{Email: "gone@example.com", Role: model.RoleUser, DepartmentID: 3}
	require.NoError(t, users.Create(context.Background(), inactive))
	token, err := svc.IssueToken(inactive)
	require.NoError(t, err)

	_, err = svc.Authenticate(context.Background(), token)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestAuthenticate_RoleComesFromStore(t *testing.T) {
	t.Parallel()

	svc, users, u := newService(t, time.Minute)
	ctx := context.Background()
	token, err := svc.IssueToken(u)
	require.NoError(t, err)

	_, err = svc.Authenticate(ctx, token)
	require.NoError(t, err)

	require.NoError(t, users.UpdateRole(ctx, u.ID, model.RoleManager))
	cached, err := svc.Authenticate(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, model.RoleUser, cached.Role, "cached until forgotten")

	svc.Forget(u.ID)
	fresh, err := svc.Authenticate(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, model.RoleManager, fresh.Role)
}

func TestUserContext(t *testing.T) {
	t.Parallel()

	_, ok := UserFrom(context.Background())
	assert.False(t, ok)

	u := &model.User{ID: 9}
	got, ok := UserFrom(WithUser(context.Background(), u))
	require.True(t, ok)
	assert.Same(t, u, got)
}

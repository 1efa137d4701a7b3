// Package auth issues and verifies bearer tokens and resolves them to the
// stored user behind each request.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/crypto/bcrypt"

	"github.com/dharsanguruparan/filevault/internal/model"
	"github.com/dharsanguruparan/filevault/internal/repository"
)

var (
	// ErrInvalidCredentials is returned by Login for a bad email or password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUnauthenticated is returned when a token is missing, invalid or
	// names a user that no longer exists or is inactive.
	ErrUnauthenticated = errors.New("not authenticated")
)

// Claims is the token body: sub is the user id.
type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
	Dept int64  `json:"dept"`
}

// Service authenticates users.
type Service struct {
	users  repository.UserRepository
	secret []byte
	ttl    time.Duration
	cache  *expirable.LRU[int64, *model.User]
	now    func() time.Time
}

// NewService builds a Service. Resolved users are cached for cacheTTL; a
// zero cacheTTL disables caching.
func NewService(users repository.UserRepository, secret string, ttl time.Duration, cacheSize int, cacheTTL time.Duration) *Service {
	s := &Service{
		users:  users,
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
	if cacheTTL > 0 {
		s.cache = expirable.NewLRU[int64, *model.User](cacheSize, nil, cacheTTL)
	}
	return s
}

// HashPassword hashes password with bcrypt.
func HashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hashed), nil
}

// ComparePassword checks password against a bcrypt hash.
func ComparePassword(password, hash string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}

// Login verifies credentials and returns a signed token for the user.
func (s *Service) Login(ctx context.Context, email, password string) (string, *model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	u, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		return "", nil, ErrInvalidCredentials
	}
	if err != nil {
		return "", nil, fmt.Errorf("load user: %w", err)
	}
	if !u.Active || ComparePassword(password, u.PasswordHash) != nil {
		return "", nil, ErrInvalidCredentials
	}
	token, err := s.IssueToken(u)
	if err != nil {
		return "", nil, err
	}
	return token, u, nil
}

// IssueToken signs an HS256 token for u.
func (s *Service) IssueToken(u *model.User) (string, error) {
	now := s.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(u.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
		Role: string(u.Role),
		Dept: u.DepartmentID,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Authenticate verifies token and loads its user. Role and department come
// from the stored user, not the token.
func (s *Service) Authenticate(ctx context.Context, token string) (*model.User, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: bad subject", ErrUnauthenticated)
	}

	u, err := s.lookup(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: user %d not found", ErrUnauthenticated, id)
	}
	if err != nil {
		return nil, err
	}
	if !u.Active {
		return nil, fmt.Errorf("%w: user %d inactive", ErrUnauthenticated, id)
	}
	return u, nil
}

// Forget drops a cached user so the next request reloads it.
func (s *Service) Forget(id int64) {
	if s.cache != nil {
		s.cache.Remove(id)
	}
}

func (s *Service) lookup(ctx context.Context, id int64) (*model.User, error) {
	if s.cache != nil {
		if u, ok := s.cache.Get(id); ok {
			cp := *u
			return &cp, nil
		}
	}
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		cp := *u
		s.cache.Add(id, &cp)
	}
	return u, nil
}

type ctxKey struct{}

// WithUser stores u in ctx.
func WithUser(ctx context.Context, u *model.User) context.Context {
	return context.WithValue(ctx, ctxKey{}, u)
}

// UserFrom returns the authenticated user stored in ctx.
func UserFrom(ctx context.Context) (*model.User, bool) {
	u, ok := ctx.Value(ctxKey{}).(*model.User)
	return u, ok && u != nil
}

// Package auth issues and verifies the bearer tokens used by both the HTTP API
// and the realtime socket.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/shiva/medride/internal/model"
	"github.com/shiva/medride/internal/repository"
	"github.com/shiva/medride/internal/service"
)

// Claims are the registered claims plus the role the token was minted for.
// The subject is the user id.
type Claims struct {
	Role model.Role `json:"role"`
	jwt.RegisteredClaims
}

// ─── Issuer ─────────────────────────────────────────────────

// Issuer signs and verifies HS256 tokens.
type Issuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewIssuer creates an issuer. A non-positive ttl mints tokens without expiry.
func NewIssuer(secret, issuer string, ttl time.Duration) *Issuer {
	return &Issuer{secret: []byte(secret), issuer: issuer, ttl: ttl, now: time.Now}
}

// Sign mints a token for the user.
func (i *Issuer) Sign(u model.User) (string, error) {
	now := i.now()
	claims := Claims{
		Role: u.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  u.ID.String(),
			Issuer:   i.issuer,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if i.ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(i.ttl))
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Parse verifies the signature, expiry and issuer of raw and returns its claims.
func (i *Issuer) Parse(raw string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.now),
	}
	if i.issuer != "" {
		opts = append(opts, jwt.WithIssuer(i.issuer))
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return i.secret, nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// ─── Authenticator ──────────────────────────────────────────

// Authenticator resolves a bearer token to a live user.
type Authenticator struct {
	issuer *Issuer
	users  service.IdentityLookup
}

// NewAuthenticator creates an authenticator.
func NewAuthenticator(issuer *Issuer, users service.IdentityLookup) *Authenticator {
	return &Authenticator{issuer: issuer, users: users}
}

// Authenticate verifies raw and loads its subject. Every failure, including a
// valid token whose user has since been deleted, wraps service.ErrAuth. The
// role comes from the identity store, not from the token.
func (a *Authenticator) Authenticate(ctx context.Context, raw string) (*model.User, error) {
	if raw == "" {
		return nil, fmt.Errorf("%w: missing token", service.ErrAuth)
	}
	claims, err := a.issuer.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", service.ErrAuth, err)
	}
	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed subject", service.ErrAuth)
	}

	u, err := a.users.Lookup(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: user no longer exists", service.ErrAuth)
	}
	if err != nil {
		return nil, fmt.Errorf("load user %s: %w", id, err)
	}
	return u, nil
}

// BearerFromRequest extracts the token from the Authorization header, falling
// back to the `token` query parameter used by browser websocket clients.
func BearerFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return r.URL.Query().Get("token")
}

// ─── Context ────────────────────────────────────────────────

type ctxKey struct{}

// WithUser stores the authenticated user on ctx.
func WithUser(ctx context.Context, u *model.User) context.Context {
	return context.WithValue(ctx, ctxKey{}, u)
}

// UserFrom returns the authenticated user stored on ctx.
func UserFrom(ctx context.Context) (*model.User, bool) {
	u, ok := ctx.Value(ctxKey{}).(*model.User)
	return u, ok && u != nil
}

// ActorFrom returns the caller as a service.Actor.
func ActorFrom(ctx context.Context) (service.Actor, bool) {
	u, ok := UserFrom(ctx)
	if !ok {
		return service.Actor{}, false
	}
	return service.ActorFromUser(u), true
}

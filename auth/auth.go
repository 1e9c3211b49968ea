// Package auth verifies the identity tokens issued by the sign-in provider
// and decides admin access.
package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("auth: invalid token")
	ErrExpiredToken = errors.New("auth: token expired")
	ErrNoSecret     = errors.New("auth: no signing secret configured")
)

// Claims is the identity token payload.
type Claims struct {
	jwt.RegisteredClaims
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Admin bool   `json:"admin,omitempty"`
}

// Identity is a signed-in user.
type Identity struct {
	UID        string `json:"uid"`
	Name       string `json:"name,omitempty"`
	Email      string `json:"email,omitempty"`
	AdminClaim bool   `json:"admin,omitempty"`
}

// DisplayName is the name shown next to comments: the profile name, else the
// local part of the email, else "User".
func (id Identity) DisplayName() string {
	if id.Name != "" {
		return id.Name
	}
	if local, _, ok := strings.Cut(id.Email, "@"); ok && local != "" {
		return local
	}
	return "User"
}

// Verifier checks HMAC-signed identity tokens.
type Verifier struct {
	secret   []byte
	issuer   string
	audience string
}

// NewVerifier creates a Verifier. Empty issuer or audience skips that check.
func NewVerifier(secret, issuer, audience string) *Verifier {
	return &Verifier{secret: []byte(secret), issuer: issuer, audience: audience}
}

// Verify parses and validates token.
func (v *Verifier) Verify(token string) (Identity, error) {
	if len(v.secret) == 0 {
		return Identity{}, ErrNoSecret
	}
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return v.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, ErrExpiredToken
		}
		return Identity{}, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return Identity{}, ErrInvalidToken
	}
	return Identity{UID: claims.Subject, Name: claims.Name, Email: claims.Email, AdminClaim: claims.Admin}, nil
}

// Issue signs a token for id valid for ttl. Used by the token command and tests.
func (v *Verifier) Issue(id Identity, ttl time.Duration) (string, error) {
	if len(v.secret) == 0 {
		return "", ErrNoSecret
	}
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UID,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Name:  id.Name,
		Email: id.Email,
		Admin: id.AdminClaim,
	}
	if v.audience != "" {
		claims.Audience = jwt.ClaimStrings{v.audience}
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// AdminList looks up the admin allow-list. *gallery.Repo implements it.
type AdminList interface {
	IsAdmin(ctx context.Context, uid string) (bool, error)
}

// IsAdmin grants admin to a token carrying the admin claim, otherwise to a
// uid on the allow-list.
func IsAdmin(ctx context.Context, id Identity, list AdminList) (bool, error) {
	if id.UID == "" {
		return false, nil
	}
	if id.AdminClaim {
		return true, nil
	}
	if list == nil {
		return false, nil
	}
	return list.IsAdmin(ctx, id.UID)
}

package rbac

import (
	"sort"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// JWTSettings configures token issuance and verification.
type JWTSettings struct {
	Issuer          string
	Audience        string
	SecretKey       string
	ExpirationHours int
}

func (s JWTSettings) expiry() time.Duration {
	hours := s.ExpirationHours
	if hours <= 0 {
		hours = 1
	}
	return time.Duration(hours) * time.Hour
}

// TokenClaims is the JWT payload carried by issued access tokens.
type TokenClaims struct {
	UserName    string   `json:"user_name"`
	Permissions []string `json:"permissions,omitempty"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies access tokens with HS256.
type TokenIssuer struct {
	settings JWTSettings
	now      func() time.Time
}

// NewTokenIssuer constructs a TokenIssuer; the clock override is used by tests.
func NewTokenIssuer(settings JWTSettings, now func() time.Time) (*TokenIssuer, error) {
	if strings.TrimSpace(settings.SecretKey) == "" {
		return nil, ErrInvalidInput
	}
	if now == nil {
		now = time.Now
	}
	return &TokenIssuer{settings: settings, now: now}, nil
}

// Issue builds a signed token carrying the account's user name plus the
// permission keys derived from its grants.
func (t *TokenIssuer) Issue(account Account, grants []Grant) (Token, error) {
	now := t.now().UTC()
	expiresAt := now.Add(t.settings.expiry())

	claims := TokenClaims{
		UserName:    account.UserName,
		Permissions: permissionKeys(grants),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.settings.Issuer,
			Subject:   account.UserName,
			Audience:  jwt.ClaimStrings{t.settings.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).
		SignedString([]byte(t.settings.SecretKey))
	if err != nil {
		return Token{}, err
	}
	return Token{
		AccessToken: signed,
		ExpiresAt:   expiresAt,
		UserName:    account.UserName,
	}, nil
}

// Verify checks the signature and registered claims of a token issued by Issue.
func (t *TokenIssuer) Verify(token string) (*TokenClaims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	}
	if t.settings.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(t.settings.Issuer))
	}
	if t.settings.Audience != "" {
		opts = append(opts, jwt.WithAudience(t.settings.Audience))
	}
	parsed, err := jwt.ParseWithClaims(token, &TokenClaims{}, func(*jwt.Token) (any, error) {
		return []byte(t.settings.SecretKey), nil
	}, opts...)
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*TokenClaims)
	if !ok || !parsed.Valid || strings.TrimSpace(claims.UserName) == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func permissionKeys(grants []Grant) []string {
	seen := make(map[string]struct{}, len(grants))
	var keys []string
	for _, g := range grants {
		key := g.PermissionKey()
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

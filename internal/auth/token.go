// Package auth verifies the bearer tokens issued by the storefront auth service.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/jewelhouse/jewelhouse/internal/models"
)

var (
	ErrMissingToken = errors.New("missing token")
	ErrInvalidToken = errors.New("invalid token")
	ErrMissingKey   = errors.New("token signing secret is required")
)

// Claims mirrors the payload signed at login: {id, email, role}.
type Claims struct {
	UserID string `json:"id"`
	Email  string `json:"email,omitempty"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

type TokenVerifier struct {
	secret []byte
	parser *jwt.Parser
}

func NewTokenVerifier(secret string) (*TokenVerifier, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, ErrMissingKey
	}
	return &TokenVerifier{
		secret: []byte(secret),
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithLeeway(5*time.Second),
		),
	}, nil
}

// Verify checks the signature and expiry and returns the caller identity.
// Role is not enforced here; callers decide what capability they require.
func (v *TokenVerifier) Verify(token string) (*models.Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrMissingToken
	}
	if v == nil {
		return nil, ErrInvalidToken
	}

	claims := &Claims{}
	parsed, err := v.parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return nil, ErrInvalidToken
	}

	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		return nil, fmt.Errorf("%w: subject is not a valid id", ErrInvalidToken)
	}

	role := models.Role(claims.Role)
	if role == "" {
		role = models.RoleUser
	}

	return &models.Identity{
		UserID: userID,
		Email:  claims.Email,
		Role:   role,
	}, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", ErrMissingToken
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", ErrMissingToken
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrMissingToken
	}
	return token, nil
}

type TokenIssuer struct {
	secret []byte
	now    func() time.Time
}

func NewTokenIssuer(secret string) (*TokenIssuer, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, ErrMissingKey
	}
	return &TokenIssuer{secret: []byte(secret), now: time.Now}, nil
}

// Issue signs a token in the same shape the storefront auth service uses.
func (i *TokenIssuer) Issue(identity models.Identity, ttl time.Duration) (string, error) {
	now := i.now()
	claims := Claims{
		UserID: identity.UserID.String(),
		Email:  identity.Email,
		Role:   string(identity.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(i.secret)
}

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Role is resolved exactly once, when the token is verified; handlers never
// re-derive it from the shape of the user record.
type Role string

const (
	RoleClient    Role = "client"
	RoleChauffeur Role = "chauffeur"
	RoleAdmin     Role = "admin"
)

// Identity is the authenticated principal attached to a request or
// websocket session.
type Identity struct {
	UserID    string
	Role      Role
	Telephone string
}

var ErrInvalidToken = errors.New("invalid token")

type Verifier struct {
	secret []byte
	ttl    time.Duration
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret), ttl: 24 * time.Hour}
}

type claims struct {
	Role      string `json:"role"`
	Telephone string `json:"telephone,omitempty"`
	jwt.RegisteredClaims
}

// Sign issues a token for an identity. Used by tooling and tests; token
// issuance for end users lives outside this service.
func (v *Verifier) Sign(id Identity) (string, error) {
	now := time.Now()
	c := claims{
		Role:      string(id.Role),
		Telephone: id.Telephone,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(v.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(v.secret)
}

// Verify parses and validates a bearer token, resolving the role enum.
func (v *Verifier) Verify(token string) (Identity, error) {
	var c claims
	parsed, err := jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || !parsed.Valid {
		return Identity{}, ErrInvalidToken
	}
	role := Role(c.Role)
	switch role {
	case RoleClient, RoleChauffeur, RoleAdmin:
	default:
		return Identity{}, fmt.Errorf("unknown role %q: %w", c.Role, ErrInvalidToken)
	}
	if c.Subject == "" {
		return Identity{}, ErrInvalidToken
	}
	return Identity{UserID: c.Subject, Role: role, Telephone: c.Telephone}, nil
}

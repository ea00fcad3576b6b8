package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the payload of a portal access token
type Claims struct {
	jwt.RegisteredClaims
	Username string   `json:"username,omitempty"`
	Roles    []string `json:"roles,omitempty"`
	Role     string   `json:"role,omitempty"` // older tokens carry a single role
}

// AllRoles returns the roles claim, falling back to the single role claim
func (c *Claims) AllRoles() []string {
	if len(c.Roles) > 0 {
		return append([]string(nil), c.Roles...)
	}
	if c.Role != "" {
		return []string{c.Role}
	}
	return []string{}
}

// DecodeToken reads the token payload without checking the signature: the client does not hold the signing key,
// the API verifies the token on every request.
func DecodeToken(token string) (*Claims, error) {
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	claims := &Claims{}

	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("decoding access token: %w", err)
	}
	return claims, nil
}

// AccessTokenStatus represents the state of the stored access token
type AccessTokenStatus int

const (
	TokenMissing AccessTokenStatus = iota
	TokenInvalid
	TokenExpired
	TokenValid
)

var tokenStatusNames = []string{"TokenMissing", "TokenInvalid", "TokenExpired", "TokenValid"}

func (t AccessTokenStatus) String() string {
	if t < 0 || int(t) >= len(tokenStatusNames) {
		return fmt.Sprintf("TokenStatus(%d)", int(t))
	}
	return tokenStatusNames[t]
}

// tokenStatus classifies a token at time now. A token without an expiry claim is treated as invalid.
func tokenStatus(token string, now time.Time) AccessTokenStatus {
	if strings.TrimSpace(token) == "" {
		return TokenMissing
	}

	claims, err := DecodeToken(token)
	if err != nil {
		return TokenInvalid
	}

	if claims.ExpiresAt == nil {
		return TokenInvalid
	}

	if !claims.ExpiresAt.After(now) {
		return TokenExpired
	}

	return TokenValid
}

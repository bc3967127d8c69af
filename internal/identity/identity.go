// Package identity extracts the payer context from the portal's access
// tokens. Token issuance lives with the main backend; this side only
// validates and reads claims to prefill payer info.
package identity

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Identity is the authenticated payer a wizard can be opened with.
type Identity struct {
	FullName string
	Email    string
	Phone    string
}

type Verifier struct {
	secret string
	iss    string
	aud    string
}

func NewVerifier(secret, iss, aud string) *Verifier {
	return &Verifier{secret: secret, iss: iss, aud: aud}
}

// FromToken validates an access token and pulls the profile claims. A
// token without a usable name or email yields an error; the caller then
// falls back to user-entered payer info.
func (v *Verifier) FromToken(token string) (*Identity, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(v.secret), nil
	},
		jwt.WithExpirationRequired(),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithIssuer(v.iss),
		jwt.WithAudience(v.aud),
	)
	if err != nil {
		return nil, fmt.Errorf("identity: validate token: %w", err)
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("identity: unexpected claims type %T", parsed.Claims)
	}

	id := &Identity{
		FullName: stringClaim(claims, "name"),
		Email:    stringClaim(claims, "email"),
		Phone:    stringClaim(claims, "phone"),
	}
	if id.FullName == "" || id.Email == "" {
		return nil, fmt.Errorf("identity: token has no usable profile claims")
	}
	return id, nil
}

func stringClaim(claims jwt.MapClaims, key string) string {
	if v, ok := claims[key].(string); ok {
		return v
	}
	return ""
}

package iap

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the claim set used for both vendors' server-to-server tokens.
type Claims struct {
	Issuer    string           `json:"iss"`
	IssuedAt  *jwt.NumericDate `json:"iat"`
	Scope     string           `json:"scope,omitempty"`
	Audience  string           `json:"aud"`
	Nonce     string           `json:"nonce"`
	BundleID  string           `json:"bid"`
	ExpiresAt *jwt.NumericDate `json:"exp"`
}

// NewClaims normalizes iat/exp to whole seconds. JWT timestamps are UNIX
// seconds; without the truncation, re-serializing the same logical claim set
// would yield different byte strings.
func NewClaims(iss string, iat time.Time, scope, aud, nonce, bid string, exp time.Time) Claims {
	return Claims{
		Issuer:    iss,
		IssuedAt:  jwt.NewNumericDate(iat.Truncate(time.Second)),
		Scope:     scope,
		Audience:  aud,
		Nonce:     nonce,
		BundleID:  bid,
		ExpiresAt: jwt.NewNumericDate(exp.Truncate(time.Second)),
	}
}

var _ jwt.Claims = Claims{}

func (c Claims) GetExpirationTime() (*jwt.NumericDate, error) { return c.ExpiresAt, nil }
func (c Claims) GetIssuedAt() (*jwt.NumericDate, error)       { return c.IssuedAt, nil }
func (c Claims) GetNotBefore() (*jwt.NumericDate, error)      { return nil, nil }
func (c Claims) GetIssuer() (string, error)                   { return c.Issuer, nil }
func (c Claims) GetSubject() (string, error)                  { return c.BundleID, nil }
func (c Claims) GetAudience() (jwt.ClaimStrings, error) {
	return jwt.ClaimStrings{c.Audience}, nil
}

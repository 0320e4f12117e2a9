package enroll

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenInfo is what can be learned from an enrollment token without
// verifying it. The controller remains the only authority on validity.
type TokenInfo struct {
	IsJWT     bool
	Issuer    string
	ExpiresAt time.Time
	Expired   bool
}

// InspectToken decodes the token as an unverified JWT. Opaque tokens yield a
// zero TokenInfo.
func InspectToken(token string, now time.Time) TokenInfo {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return TokenInfo{}
	}

	info := TokenInfo{IsJWT: true}
	if iss, err := claims.GetIssuer(); err == nil {
		info.Issuer = iss
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		info.ExpiresAt = exp.Time
		info.Expired = now.After(exp.Time)
	}
	return info
}

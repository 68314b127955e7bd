package identity

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SessionClaims are the JWT claims for Wild Command sessions. The role and
// outfitter scope are a snapshot taken at issue time; ClaimsVersion records
// which version of the account's claims the snapshot reflects.
type SessionClaims struct {
	AccountID     uuid.UUID `json:"account_id"`
	Email         string    `json:"email"`
	Role          Role      `json:"role,omitempty"`
	OutfitterID   uuid.UUID `json:"outfitter_id,omitempty"`
	ClaimsVersion int       `json:"claims_version"`
	jwt.RegisteredClaims
}

// CreateSessionToken creates a signed JWT for the session.
// The token is signed with HS256 and expires after sessionDays.
func CreateSessionToken(session *Session, secret string, sessionDays int) (string, error) {
	expiresAt := time.Now().Add(time.Duration(sessionDays) * 24 * time.Hour)

	claims := &SessionClaims{
		AccountID:     session.AccountID,
		Email:         session.Email,
		Role:          session.Claims.Role,
		OutfitterID:   session.Claims.OutfitterID,
		ClaimsVersion: session.Claims.Version,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   session.AccountID.String(),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	tokenString, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, nil
}

// ValidateSessionToken validates a JWT and reconstructs the session it was
// issued for. Returns an error if the token is invalid, expired, or malformed.
func ValidateSessionToken(tokenString, secret string) (*Session, error) {
	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}

	return &Session{
		AccountID: claims.AccountID,
		Email:     claims.Email,
		Claims: Claims{
			Role:        claims.Role,
			OutfitterID: claims.OutfitterID,
			Version:     claims.ClaimsVersion,
		},
	}, nil
}

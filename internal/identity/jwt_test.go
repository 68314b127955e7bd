package identity

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestCreateSessionToken_AndValidate(t *testing.T) {
	outfitterID := uuid.New()
	session := &Session{
		AccountID: uuid.New(),
		Email:     "guide@example.com",
		Claims:    Claims{Role: RoleGuide, OutfitterID: outfitterID, Version: 3},
	}
	secret := "test-secret"

	token, err := CreateSessionToken(session, secret, 7)
	require.NoError(t, err)

	parsed, err := ValidateSessionToken(token, secret)
	require.NoError(t, err)
	require.Equal(t, session.AccountID, parsed.AccountID)
	require.Equal(t, session.Email, parsed.Email)
	require.Equal(t, RoleGuide, parsed.Claims.Role)
	require.Equal(t, outfitterID, parsed.Claims.OutfitterID)
	require.Equal(t, 3, parsed.Claims.Version)
}

func TestCreateSessionToken_NoClaimsYet(t *testing.T) {
	session := &Session{
		AccountID: uuid.New(),
		Email:     "new@example.com",
	}

	token, err := CreateSessionToken(session, "secret", 7)
	require.NoError(t, err)

	parsed, err := ValidateSessionToken(token, "secret")
	require.NoError(t, err)
	require.True(t, parsed.Claims.IsZero())
}

func TestValidateSessionToken_WrongSecret(t *testing.T) {
	session := &Session{AccountID: uuid.New(), Email: "a@example.com"}
	token, err := CreateSessionToken(session, "secret-a", 7)
	require.NoError(t, err)

	_, err = ValidateSessionToken(token, "secret-b")
	require.Error(t, err)
}

func TestValidateSessionToken_Expired(t *testing.T) {
	session := &Session{AccountID: uuid.New(), Email: "a@example.com"}
	token, err := CreateSessionToken(session, "secret", -1)
	require.NoError(t, err)

	_, err = ValidateSessionToken(token, "secret")
	require.Error(t, err)
}

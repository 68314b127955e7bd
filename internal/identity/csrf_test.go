package identity

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateCSRF_HeaderMatch(t *testing.T) {
	token, err := GenerateCSRFToken()
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodPost, "/api/v1/outfitters", nil)
	r.AddCookie(&http.Cookie{Name: CSRFCookieName, Value: token})
	r.Header.Set("X-CSRF-Token", token)

	require.NoError(t, ValidateCSRF(r))
}

func TestValidateCSRF_MissingCookie(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/api/v1/outfitters", nil)
	r.Header.Set("X-CSRF-Token", "anything")

	require.Error(t, ValidateCSRF(r))
}

func TestValidateCSRF_Mismatch(t *testing.T) {
	token, err := GenerateCSRFToken()
	require.NoError(t, err)
	other, err := GenerateCSRFToken()
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodDelete, "/api/v1/outfitters/x", nil)
	r.AddCookie(&http.Cookie{Name: CSRFCookieName, Value: token})
	r.Header.Set("X-CSRF-Token", other)

	require.Error(t, ValidateCSRF(r))
}

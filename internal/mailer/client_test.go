package mailer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClient_Send(t *testing.T) {
	var received relayPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	client := NewClient(server.URL, "noreply@wildcommand.test", 2000)
	err := client.Send(context.Background(), "jane@example.com", "Welcome", "<p>Hello</p>")
	require.NoError(t, err)

	require.Equal(t, "noreply@wildcommand.test", received.From)
	require.Equal(t, "jane@example.com", received.To)
	require.Equal(t, "Welcome", received.Subject)
	require.Equal(t, "<p>Hello</p>", received.HTMLBody)
}

func TestClient_SendRelayRejection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(server.URL, "noreply@wildcommand.test", 2000)
	err := client.Send(context.Background(), "jane@example.com", "Welcome", "<p>Hello</p>")
	require.ErrorIs(t, err, ErrDeliveryFailed)
}

func TestClient_SendUnreachableRelay(t *testing.T) {
	client := NewClient("http://127.0.0.1:1", "noreply@wildcommand.test", 500)
	err := client.Send(context.Background(), "jane@example.com", "Welcome", "<p>Hello</p>")
	require.ErrorIs(t, err, ErrDeliveryFailed)
}

func TestWelcomeMessage_EscapesAndLinks(t *testing.T) {
	subject, body := WelcomeMessage("Jane <script>", "Big Sky & Co", "https://app.example.com/redeem?token=wcl_abc")
	require.NotEmpty(t, subject)
	require.Contains(t, body, "https://app.example.com/redeem?token=wcl_abc")
	require.NotContains(t, body, "<script>")
	require.Contains(t, body, "Big Sky &amp; Co")
}

package mailer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aliuyar1234/inviteguard/internal/apperrors"
	"github.com/aliuyar1234/inviteguard/internal/invitations"
	"github.com/stretchr/testify/require"
)

func testMessage() invitations.Message {
	return invitations.Message{
		ToEmail:     "bob@x.io",
		RawToken:    strings.Repeat("ab", 32),
		InviterName: "Alice",
		TenantName:  "Acme",
		ExpiresAt:   time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC),
	}
}

func TestRelayClient_SendInvitation(t *testing.T) {
	var got relayPayload
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	t.Cleanup(srv.Close)

	c := NewRelayClient(RelayConfig{
		URL:       srv.URL,
		Token:     "relay-secret",
		From:      "noreply@inviteguard.dev",
		BaseURL:   "https://app.example.com/",
		TimeoutMS: 1000,
	})

	require.NoError(t, c.SendInvitation(context.Background(), testMessage()))
	require.Equal(t, "Bearer relay-secret", auth)
	require.Equal(t, "noreply@inviteguard.dev", got.From)
	require.Equal(t, "bob@x.io", got.To)
	require.Equal(t, "You have been invited to join Acme", got.Subject)
	require.Contains(t, got.Text, "https://app.example.com/invitations/accept?token="+strings.Repeat("ab", 32))
	require.Contains(t, got.Text, "Alice invited you to join Acme.")
}

func TestRelayClient_NonSuccessStatusIsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	c := NewRelayClient(RelayConfig{URL: srv.URL, TimeoutMS: 1000})
	err := c.SendInvitation(context.Background(), testMessage())
	require.Error(t, err)
	require.Equal(t, apperrors.KindTransport, apperrors.KindOf(err))
	require.Contains(t, err.Error(), "503")
}

func TestRelayClient_TimeoutIsTransportError(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	c := NewRelayClient(RelayConfig{URL: srv.URL, TimeoutMS: 50})
	err := c.SendInvitation(context.Background(), testMessage())
	require.Error(t, err)
	require.Equal(t, apperrors.KindTransport, apperrors.KindOf(err))
	require.True(t, isTimeoutError(err))
}

func TestRelayClient_UnreachableIsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewRelayClient(RelayConfig{URL: url, TimeoutMS: 1000})
	err := c.SendInvitation(context.Background(), testMessage())
	require.Equal(t, apperrors.KindTransport, apperrors.KindOf(err))
}

func TestAcceptURL_EscapesToken(t *testing.T) {
	require.Equal(t, "https://x.io/invitations/accept?token=a%2Bb", AcceptURL("https://x.io/", "a+b"))
}

func TestLogNotifier_NeverFails(t *testing.T) {
	require.NoError(t, LogNotifier{BaseURL: "http://localhost:8080"}.SendInvitation(context.Background(), testMessage()))
}

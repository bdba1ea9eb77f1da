package invitations

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aliuyar1234/inviteguard/internal/apperrors"
	"github.com/aliuyar1234/inviteguard/internal/audit"
	"github.com/aliuyar1234/inviteguard/internal/auth"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

type auditSink struct {
	entries []audit.Entry
}

func (s *auditSink) AppendAudit(_ context.Context, e audit.Entry) error {
	s.entries = append(s.entries, e)
	return nil
}

func (s *auditSink) actions() []string {
	out := make([]string, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e.Action)
	}
	return out
}

func newTestRouter(f *fixture, sink *auditSink) http.Handler {
	auditor := audit.NewWriter(sink)
	principal := auth.Principal{UserID: f.inviter, TenantID: f.tenantID, Name: "Alice"}

	r := chi.NewRouter()
	r.Post("/api/v1/invitations/accept", HandleAccept(f.svc, auditor))
	r.Group(func(r chi.Router) {
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
				next.ServeHTTP(w, req.WithContext(auth.WithPrincipal(req.Context(), principal)))
			})
		})
		r.Post("/api/v1/invitations", HandleCreate(f.svc, auditor))
		r.Get("/api/v1/invitations", HandleList(f.svc))
		r.Get("/api/v1/invitations/{invitation_id}", HandleGet(f.svc))
		r.Post("/api/v1/invitations/{invitation_id}/resend", HandleResend(f.svc, auditor))
		r.Delete("/api/v1/invitations/{invitation_id}", HandleRevoke(f.svc, auditor))
	})
	return r
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeInvitation(t *testing.T, rec *httptest.ResponseRecorder) PublicInvitation {
	t.Helper()

	var env struct {
		Data struct {
			Invitation PublicInvitation `json:"invitation"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env.Data.Invitation
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()

	var env apperrors.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env.Error.Code
}

func TestHandlers_InvitationLifecycle(t *testing.T) {
	f := newFixture(t)
	sink := &auditSink{}
	h := newTestRouter(f, sink)

	rec := doJSON(t, h, http.MethodPost, "/api/v1/invitations", CreateRequest{Email: "bob@x.io", Role: "viewer", Name: "Bob"})
	require.Equal(t, http.StatusCreated, rec.Code)
	require.NotContains(t, rec.Body.String(), "token")
	inv := decodeInvitation(t, rec)
	require.Equal(t, RoleViewer, inv.Role)
	require.Equal(t, f.inviter, inv.InvitedBy)
	require.Equal(t, "Alice", inv.InviterName)

	rec = doJSON(t, h, http.MethodGet, "/api/v1/invitations/"+inv.ID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, inv.ID, decodeInvitation(t, rec).ID)

	rec = doJSON(t, h, http.MethodPost, "/api/v1/invitations/"+inv.ID.String()+"/resend", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	raw := f.notifier.last().RawToken
	rec = doJSON(t, h, http.MethodPost, "/api/v1/invitations/accept", AcceptRequest{Token: raw, Password: "Pw123!"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/api/v1/invitations/accept", AcceptRequest{Token: raw, Password: "Pw123!"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, h, http.MethodDelete, "/api/v1/invitations/"+inv.ID.String(), nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	require.Equal(t, []string{
		audit.EventInvitationCreated,
		audit.EventInvitationResent,
		audit.EventInvitationAccepted,
	}, sink.actions())
}

func TestHandlers_CreateErrors(t *testing.T) {
	f := newFixture(t)
	h := newTestRouter(f, &auditSink{})

	rec := doJSON(t, h, http.MethodPost, "/api/v1/invitations", CreateRequest{Email: "bob@x.io", Role: "owner"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/api/v1/invitations", CreateRequest{Role: "viewer"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	f.store.addAccount("bob@x.io")
	rec = doJSON(t, h, http.MethodPost, "/api/v1/invitations", CreateRequest{Email: "bob@x.io", Role: "viewer"})
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "conflict", errorCode(t, rec))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/invitations", bytes.NewBufferString("{"))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlers_NotifierFailureIsBadGateway(t *testing.T) {
	f := newFixture(t)
	sink := &auditSink{}
	h := newTestRouter(f, sink)
	f.notifier.err = apperrors.Transport("failed to deliver invitation email", errRelayDown)

	rec := doJSON(t, h, http.MethodPost, "/api/v1/invitations", CreateRequest{Email: "bob@x.io", Role: "viewer"})
	require.Equal(t, http.StatusBadGateway, rec.Code)
	require.Equal(t, "notification_failed", errorCode(t, rec))
	require.Zero(t, f.store.count())
	require.Empty(t, sink.entries)
}

func TestHandlers_ListFilterAndNotFound(t *testing.T) {
	f := newFixture(t)
	h := newTestRouter(f, &auditSink{})
	f.create(t, "a@x.io")

	rec := doJSON(t, h, http.MethodGet, "/api/v1/invitations?status=pending", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var env struct {
		Data struct {
			Invitations []PublicInvitation `json:"invitations"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.Len(t, env.Data.Invitations, 1)

	rec = doJSON(t, h, http.MethodGet, "/api/v1/invitations?status=bogus", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/api/v1/invitations/not-a-uuid", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/api/v1/invitations/00000000-0000-0000-0000-000000000001", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

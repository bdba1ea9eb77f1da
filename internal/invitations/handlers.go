package invitations

import (
	"encoding/json"
	"net/http"

	"github.com/aliuyar1234/inviteguard/internal/apperrors"
	"github.com/aliuyar1234/inviteguard/internal/audit"
	"github.com/aliuyar1234/inviteguard/internal/auth"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const maxRequestBodyBytes = 16 << 10

// CreateRequest represents the request to invite someone into the caller's tenant
type CreateRequest struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	Name  string `json:"name"`
}

// AcceptRequest represents the public accept call
type AcceptRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

// HandleCreate handles POST /api/v1/invitations
func HandleCreate(svc *Service, auditor *audit.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		caller, _ := auth.GetPrincipal(ctx)

		var req CreateRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if req.Email == "" {
			apperrors.WriteBadRequest(w, r, "Email is required")
			return
		}

		inv, err := svc.Create(ctx, CreateInput{
			Email:       req.Email,
			Role:        req.Role,
			Name:        req.Name,
			TenantID:    caller.TenantID,
			InviterID:   caller.UserID,
			InviterName: caller.Name,
		})
		if err != nil {
			logServiceError(err, "Failed to create invitation")
			apperrors.WriteServiceError(w, r, err, "Failed to create invitation")
			return
		}

		if err := auditor.LogInvitationCreated(ctx, caller.TenantID, caller.UserID, inv.ID, inv.Email, string(inv.Role)); err != nil {
			log.Error().Err(err).Msg("Failed to log audit event")
		}

		apperrors.WriteSuccess(w, r, http.StatusCreated, map[string]any{
			"invitation": inv,
		})
	}
}

// HandleList handles GET /api/v1/invitations
func HandleList(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		caller, _ := auth.GetPrincipal(ctx)

		var filter ListFilter
		if raw := r.URL.Query().Get("status"); raw != "" {
			status, err := ParseStatus(raw)
			if err != nil {
				apperrors.WriteBadRequest(w, r, "Invalid status filter")
				return
			}
			filter.Status = &status
		}

		items, err := svc.List(ctx, caller.TenantID, filter)
		if err != nil {
			log.Error().Err(err).Msg("Failed to list invitations")
			apperrors.WriteInternalError(w, r, "Failed to list invitations")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"invitations": items,
		})
	}
}

// HandleGet handles GET /api/v1/invitations/{invitation_id}
func HandleGet(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		caller, _ := auth.GetPrincipal(ctx)

		invitationID, ok := invitationIDParam(w, r)
		if !ok {
			return
		}

		inv, err := svc.Get(ctx, invitationID, caller.TenantID)
		if err != nil {
			logServiceError(err, "Failed to get invitation")
			apperrors.WriteServiceError(w, r, err, "Failed to get invitation")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"invitation": inv,
		})
	}
}

// HandleResend handles POST /api/v1/invitations/{invitation_id}/resend
func HandleResend(svc *Service, auditor *audit.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		caller, _ := auth.GetPrincipal(ctx)

		invitationID, ok := invitationIDParam(w, r)
		if !ok {
			return
		}

		inv, err := svc.Resend(ctx, invitationID, caller.TenantID)
		if err != nil {
			logServiceError(err, "Failed to resend invitation")
			apperrors.WriteServiceError(w, r, err, "Failed to resend invitation")
			return
		}

		if err := auditor.LogInvitationResent(ctx, caller.TenantID, caller.UserID, inv.ID); err != nil {
			log.Error().Err(err).Msg("Failed to log audit event")
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"invitation": inv,
		})
	}
}

// HandleRevoke handles DELETE /api/v1/invitations/{invitation_id}
func HandleRevoke(svc *Service, auditor *audit.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		caller, _ := auth.GetPrincipal(ctx)

		invitationID, ok := invitationIDParam(w, r)
		if !ok {
			return
		}

		if err := svc.Revoke(ctx, invitationID, caller.TenantID); err != nil {
			logServiceError(err, "Failed to revoke invitation")
			apperrors.WriteServiceError(w, r, err, "Failed to revoke invitation")
			return
		}

		if err := auditor.LogInvitationRevoked(ctx, caller.TenantID, caller.UserID, invitationID); err != nil {
			log.Error().Err(err).Msg("Failed to log audit event")
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"revoked": true,
		})
	}
}

// HandleAccept handles POST /api/v1/invitations/accept. It is public; the
// token is the credential.
func HandleAccept(svc *Service, auditor *audit.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req AcceptRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		if err := svc.Accept(ctx, req.Token, req.Password); err != nil {
			logServiceError(err, "Failed to accept invitation")
			apperrors.WriteServiceError(w, r, err, "Failed to accept invitation")
			return
		}

		prefix, _ := TokenPrefix(req.Token)
		if err := auditor.LogInvitationAccepted(ctx, prefix); err != nil {
			log.Error().Err(err).Msg("Failed to log audit event")
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"accepted": true,
		})
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		apperrors.WriteBadRequest(w, r, "Invalid request body")
		return false
	}
	return true
}

func invitationIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "invitation_id"))
	if err != nil {
		apperrors.WriteBadRequest(w, r, "Invalid invitation ID")
		return uuid.Nil, false
	}
	return id, true
}

// logServiceError logs unexpected failures; typed domain errors are part of
// normal traffic.
func logServiceError(err error, msg string) {
	switch apperrors.KindOf(err) {
	case "":
		log.Error().Err(err).Msg(msg)
	case apperrors.KindTransport:
		log.Warn().Err(err).Msg(msg)
	}
}

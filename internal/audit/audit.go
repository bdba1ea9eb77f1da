package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	EventInvitationCreated  = "invitation.created"
	EventInvitationAccepted = "invitation.accepted"
	EventInvitationResent   = "invitation.resent"
	EventInvitationRevoked  = "invitation.revoked"
	EventInvitationExpired  = "invitation.expired"
)

// Entry represents an audit log entry.
type Entry struct {
	ID           uuid.UUID     `db:"id"`
	TenantID     uuid.NullUUID `db:"tenant_id"`
	InvitationID uuid.NullUUID `db:"invitation_id"`
	ActorUserID  uuid.NullUUID `db:"actor_user_id"`
	Action       string        `db:"action"`
	Meta         []byte        `db:"meta"`
	CreatedAt    time.Time     `db:"created_at"`
}

// Sink persists audit entries. Both storage drivers implement it.
type Sink interface {
	AppendAudit(ctx context.Context, entry Entry) error
}

// Writer provides methods to write audit log entries.
type Writer struct {
	sink Sink
	now  func() time.Time
}

func NewWriter(sink Sink) *Writer {
	return &Writer{sink: sink, now: time.Now}
}

// LogParams contains parameters for logging an audit event.
type LogParams struct {
	TenantID     *uuid.UUID
	InvitationID *uuid.UUID
	ActorUserID  *uuid.UUID
	Action       string
	Meta         map[string]interface{}
}

func (w *Writer) Log(ctx context.Context, params LogParams) error {
	metaJSON := []byte("{}")
	if params.Meta != nil {
		b, err := json.Marshal(params.Meta)
		if err != nil {
			log.Error().Err(err).Msg("Failed to marshal audit meta")
			return err
		}
		metaJSON = b
	}

	entry := Entry{
		ID:           uuid.New(),
		TenantID:     toNullUUID(params.TenantID),
		InvitationID: toNullUUID(params.InvitationID),
		ActorUserID:  toNullUUID(params.ActorUserID),
		Action:       params.Action,
		Meta:         metaJSON,
		CreatedAt:    w.now().UTC(),
	}

	if err := w.sink.AppendAudit(ctx, entry); err != nil {
		log.Error().Err(err).Str("action", params.Action).Msg("Failed to write audit log")
		return fmt.Errorf("failed to write audit log: %w", err)
	}

	log.Info().
		Str("action", params.Action).
		Interface("tenant_id", params.TenantID).
		Interface("invitation_id", params.InvitationID).
		Interface("actor_user_id", params.ActorUserID).
		Msg("Audit event logged")

	return nil
}

func toNullUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}

func (w *Writer) LogInvitationCreated(ctx context.Context, tenantID, actorUserID, invitationID uuid.UUID, email, role string) error {
	return w.Log(ctx, LogParams{
		TenantID:     &tenantID,
		InvitationID: &invitationID,
		ActorUserID:  &actorUserID,
		Action:       EventInvitationCreated,
		Meta: map[string]interface{}{
			"email": email,
			"role":  role,
		},
	})
}

// LogInvitationAccepted records an acceptance. The invitee has no identity
// before accepting, so there is no actor.
func (w *Writer) LogInvitationAccepted(ctx context.Context, tokenPrefix string) error {
	return w.Log(ctx, LogParams{
		Action: EventInvitationAccepted,
		Meta: map[string]interface{}{
			"token_prefix": tokenPrefix,
		},
	})
}

func (w *Writer) LogInvitationResent(ctx context.Context, tenantID, actorUserID, invitationID uuid.UUID) error {
	return w.Log(ctx, LogParams{
		TenantID:     &tenantID,
		InvitationID: &invitationID,
		ActorUserID:  &actorUserID,
		Action:       EventInvitationResent,
	})
}

func (w *Writer) LogInvitationRevoked(ctx context.Context, tenantID, actorUserID, invitationID uuid.UUID) error {
	return w.Log(ctx, LogParams{
		TenantID:     &tenantID,
		InvitationID: &invitationID,
		ActorUserID:  &actorUserID,
		Action:       EventInvitationRevoked,
	})
}

// LogInvitationsExpired records one sweep run that expired count rows.
func (w *Writer) LogInvitationsExpired(ctx context.Context, count int64) error {
	return w.Log(ctx, LogParams{
		Action: EventInvitationExpired,
		Meta: map[string]interface{}{
			"count": count,
		},
	})
}

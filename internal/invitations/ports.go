package invitations

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store persists invitations and answers the uniqueness questions the saga
// asks. Every lookup is tenant-scoped except EmailExists, which is global.
//
// Drivers report store.ErrNotFound, store.ErrDuplicate and store.ErrNotPending.
type Store interface {
	// EmailExists reports whether any user in any tenant has this email.
	EmailExists(ctx context.Context, email string) (bool, error)

	// HasPendingInvitation reports whether a PENDING row exists for the pair.
	HasPendingInvitation(ctx context.Context, email string, tenantID uuid.UUID) (bool, error)

	// TenantName returns the display name of a tenant.
	TenantName(ctx context.Context, tenantID uuid.UUID) (string, error)

	InsertInvitation(ctx context.Context, inv *Invitation) error
	FindInvitation(ctx context.Context, tenantID, id uuid.UUID) (*Invitation, error)

	// FindPendingByPrefix returns every PENDING row carrying this token prefix.
	FindPendingByPrefix(ctx context.Context, prefix string) ([]Invitation, error)

	ListInvitations(ctx context.Context, tenantID uuid.UUID, filter ListFilter) ([]Invitation, error)

	// UpdatePending writes status, token hash/prefix and expiry of a row that
	// is still PENDING and, when expectHash is not AnyTokenHash, still carries
	// expectHash. It returns store.ErrNotPending otherwise.
	UpdatePending(ctx context.Context, inv *Invitation, expectHash string) error

	// DeleteInvitation physically removes a row. Only used to compensate a
	// failed Create.
	DeleteInvitation(ctx context.Context, id uuid.UUID) error

	// ExpireOverdue moves PENDING rows whose deadline is before now to EXPIRED.
	ExpireOverdue(ctx context.Context, now time.Time) (int64, error)

	// WithTx runs fn in a single read-committed (or stronger) transaction.
	WithTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the transactional view used by Accept.
type Tx interface {
	AccountMaterializer
	UpdatePending(ctx context.Context, inv *Invitation, expectHash string) error
}

// AnyTokenHash makes UpdatePending match a PENDING row whatever its token.
const AnyTokenHash = ""

// AccountMaterializer creates the invitee's account. It is only ever called
// inside the Accept transaction.
type AccountMaterializer interface {
	CreateAccount(ctx context.Context, account Account) (uuid.UUID, error)
}

// Message is what a Notifier delivers to the invitee.
type Message struct {
	ToEmail     string
	RawToken    string
	InviterName string
	TenantName  string
	ExpiresAt   time.Time
}

// Notifier delivers the raw token. A non-nil error means nothing was sent.
type Notifier interface {
	SendInvitation(ctx context.Context, msg Message) error
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, msg Message) error

func (f NotifierFunc) SendInvitation(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}

// Package mailer delivers invitation tokens to invitees.
package mailer

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/aliuyar1234/inviteguard/internal/invitations"
)

// AcceptURL builds the link the invitee follows to accept.
func AcceptURL(baseURL, rawToken string) string {
	return strings.TrimRight(baseURL, "/") + "/invitations/accept?token=" + url.QueryEscape(rawToken)
}

// Subject returns the email subject line.
func Subject(msg invitations.Message) string {
	return fmt.Sprintf("You have been invited to join %s", msg.TenantName)
}

// Body returns the plain-text email body.
func Body(baseURL string, msg invitations.Message) string {
	inviter := msg.InviterName
	if inviter == "" {
		inviter = "A teammate"
	}

	return fmt.Sprintf(
		"%s invited you to join %s.\n\n"+
			"Accept the invitation and choose a password:\n%s\n\n"+
			"This link expires on %s.\n",
		inviter,
		msg.TenantName,
		AcceptURL(baseURL, msg.RawToken),
		msg.ExpiresAt.UTC().Format(time.RFC1123),
	)
}

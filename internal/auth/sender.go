// internal/auth/sender.go
//
// Delivery of sign-in links. The link is a bearer credential for the
// address it was issued to, so it only ever goes to that mailbox (or the
// operator's log), never back to whoever asked for it.

package auth

import (
	"context"

	"github.com/rs/zerolog/log"
)

// LinkSender delivers a sign-in link to the owner of email.
type LinkSender interface {
	SendMagicLink(ctx context.Context, email, link string) error
}

// LogSender writes sign-in links to the debug log. It is the default when
// no mailer is configured.
type LogSender struct{}

func (LogSender) SendMagicLink(_ context.Context, email, link string) error {
	log.Debug().Str("email", email).Str("link", link).Msg("sign-in link (log only)")
	return nil
}

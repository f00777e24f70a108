// Package mailer is the seam for outbound email. Actual delivery is an
// external collaborator; the default implementation only logs, which keeps
// the password-reset flow testable without an SMTP relay.
package mailer

import (
	"context"

	"github.com/rs/zerolog"
)

// LogMailer records outbound mail in the service log instead of sending it.
type LogMailer struct {
	log zerolog.Logger
}

func NewLogMailer(log zerolog.Logger) *LogMailer {
	return &LogMailer{log: log}
}

func (m *LogMailer) SendPasswordReset(ctx context.Context, email, token string) error {
	m.log.Info().Str("email", email).Str("reset_token", token).Msg("password reset mail queued")
	return nil
}

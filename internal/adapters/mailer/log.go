// Package mailer delivers verification codes. Only a logging transport ships
// here; real delivery is handled by the outbound mail relay.
package mailer

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type LogMailer struct {
	l      zerolog.Logger
	reveal bool // include the code itself; dev only
}

func NewLogMailer(l zerolog.Logger, reveal bool) *LogMailer {
	return &LogMailer{l: l, reveal: reveal}
}

func (m *LogMailer) SendVerificationCode(_ context.Context, email, code string, expiresAt time.Time) error {
	ev := m.l.Info().
		Str("to", maskEmail(email)).
		Time("expires_at", expiresAt)
	if m.reveal {
		ev = ev.Str("code", code)
	}
	ev.Msg("verification_code_sent")
	return nil
}

// maskEmail keeps the first character of the local part and the domain.
func maskEmail(email string) string {
	at := strings.LastIndexByte(email, '@')
	if at <= 0 {
		return "***"
	}
	return email[:1] + "***" + email[at:]
}

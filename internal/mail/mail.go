// Package mail dispatches setup-token notification email. Delivery itself
// is out of band: the package hands a composed message to an external
// Transport with at-least-once semantics and records the request — not the
// delivery — in the audit log. A transport failure is surfaced to the
// caller but never undoes the token creation that triggered the send.
package mail

import (
	"context"
	"fmt"
	"time"

	"github.com/sunrayhq/control-plane/internal/apierrors"
	"github.com/sunrayhq/control-plane/internal/audit"
	"github.com/sunrayhq/control-plane/internal/config"
	"github.com/sunrayhq/control-plane/internal/models"
)

// Transport is the outbound email boundary. Implementations live outside
// this module (SMTP relay, provider API); tests inject a fake.
type Transport interface {
	Send(ctx context.Context, to, subject, body string) error
}

// templates maps the sunray.setup_token_mail_template config value to a
// subject line and body format. The body receives the recipient's username,
// the host domain, the plain token, and the expiry timestamp.
var templates = map[string]struct {
	subject string
	body    string
}{
	"default": {
		subject: "Your Sunray setup token",
		body: "Hello %s,\n\nA setup token has been issued for your account on %s:\n\n    %s\n\n" +
			"It expires at %s and can be used once to register a passkey.\n",
	},
	"plain": {
		subject: "Setup token",
		body:    "User: %s\nHost: %s\nToken: %s\nExpires: %s\n",
	},
}

// Mailer composes and dispatches setup-token email.
type Mailer struct {
	cfg       *config.Provider
	audit     *audit.Logger
	transport Transport
}

func NewMailer(cfg *config.Provider, a *audit.Logger, t Transport) *Mailer {
	return &Mailer{cfg: cfg, audit: a, transport: t}
}

// SendSetupToken emails a freshly generated plain token to its owner. Every
// outcome — sent, no template, no recipient, transport error — writes
// exactly one token.email.* audit entry.
func (m *Mailer) SendSetupToken(ctx context.Context, user *models.User, host *models.Host, plainToken string, expiresAt time.Time) error {
	templateName := m.cfg.Get(ctx, config.KeySetupTokenMailTemplate)
	tmpl, ok := templates[templateName]
	if !ok {
		m.audit.Record(ctx, audit.EventTokenEmailNoTemplate, models.SeverityWarning, audit.Fields{
			SunrayUserID: user.ID,
			Details:      map[string]any{"template": templateName, "host_id": host.ID},
		})
		return apierrors.NewValidationError(fmt.Sprintf("no mail template named %q", templateName), nil)
	}

	if user.Email == "" {
		m.audit.Record(ctx, audit.EventTokenEmailNoRecipient, models.SeverityWarning, audit.Fields{
			SunrayUserID: user.ID,
			Username:     user.Username,
			Details:      map[string]any{"host_id": host.ID},
		})
		return apierrors.NewValidationError("user has no email address", nil)
	}

	body := fmt.Sprintf(tmpl.body, user.Username, host.Domain, plainToken, expiresAt.UTC().Format(time.RFC3339))
	if err := m.transport.Send(ctx, user.Email, tmpl.subject, body); err != nil {
		m.audit.Record(ctx, audit.EventTokenEmailError, models.SeverityError, audit.Fields{
			SunrayUserID: user.ID,
			Username:     user.Username,
			Details:      map[string]any{"host_id": host.ID, "error": err.Error()},
		})
		return apierrors.NewUpstreamUnavailableError("send setup token email", err)
	}

	m.audit.Record(ctx, audit.EventTokenEmailSent, models.SeverityInfo, audit.Fields{
		SunrayUserID: user.ID,
		Username:     user.Username,
		Details:      map[string]any{"host_id": host.ID, "template": templateName},
	})
	return nil
}

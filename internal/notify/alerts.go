package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/donorlink/callops/pkg/logging"
)

// AdminAlerter emails the configured administrator about operational
// failures. It never returns an error; alert delivery is best effort and
// callers are already on a failure path.
type AdminAlerter struct {
	email   EmailSender
	to      string
	orgName string
	logger  *logging.Logger
}

// NewAdminAlerter creates an alerter, or nil when no sender or recipient is
// configured.
func NewAdminAlerter(email EmailSender, to, orgName string, logger *logging.Logger) *AdminAlerter {
	if email == nil || to == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if orgName == "" {
		orgName = "DonorLink"
	}
	return &AdminAlerter{email: email, to: to, orgName: orgName, logger: logger}
}

// SendFailureAlert emails the administrator about a failed operation. A nil
// alerter is a no-op.
func (a *AdminAlerter) SendFailureAlert(ctx context.Context, subject, detail string) {
	if a == nil {
		return
	}
	body := fmt.Sprintf("%s\n\nTime: %s\nOrganisation: %s\n",
		detail, time.Now().UTC().Format(time.RFC3339), a.orgName)
	msg := EmailMessage{
		To:      a.to,
		Subject: fmt.Sprintf("[callops] %s", subject),
		Body:    body,
	}
	if err := a.email.Send(ctx, msg); err != nil {
		a.logger.Error("admin alert delivery failed", "error", err, "subject", subject)
	}
}

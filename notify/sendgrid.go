package notify

import (
	"context"
	"net/http"
	"net/mail"

	"github.com/pkg/errors"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/escuelademusica/liquidaciones/internal/logger"
)

var (
	sendGridHost     = "https://api.sendgrid.com"
	sendGridEndpoint = "/v3/mail/send"
)

// Subject is the e-mail subject line.
const Subject = "Recibo de honorarios"

// EmailDispatcher sends messages through the SendGrid v3 API.
type EmailDispatcher struct {
	key  string
	host string
	from *sgmail.Email
}

// NewEmailDispatcher creates an EmailDispatcher sending as fromName <fromEmail>.
func NewEmailDispatcher(key, fromName, fromEmail string) *EmailDispatcher {
	return &EmailDispatcher{
		key:  key,
		host: sendGridHost,
		from: sgmail.NewEmail(fromName, fromEmail),
	}
}

// Send mails message to the recipient. The session is passed through.
func (d *EmailDispatcher) Send(ctx context.Context, to Recipient, message string, s *Session) (*Session, bool) {
	addr, err := mail.ParseAddress(to.Email)
	if err != nil {
		logger.LogWarn("invalid e-mail address", "name", to.Name, "email", to.Email)
		return s, false
	}
	if err := ctx.Err(); err != nil {
		return s, false
	}
	if err := d.send(ctx, d.prepare(to.Name, addr.Address, message)); err != nil {
		logger.LogError("sendgrid delivery failed", err, "name", to.Name)
		return s, false
	}
	return s, true
}

func (d *EmailDispatcher) prepare(name, address, message string) *sgmail.SGMailV3 {
	p := sgmail.NewPersonalization()
	p.Subject = Subject
	p.AddTos(sgmail.NewEmail(name, address))

	m := sgmail.NewV3Mail()
	m.SetFrom(d.from)
	m.AddPersonalizations(p)
	m.AddContent(sgmail.NewContent("text/plain", message))
	return m
}

// send posts m. The request is bound to ctx, so canceling a batch aborts
// the round trip in flight.
func (d *EmailDispatcher) send(ctx context.Context, m *sgmail.SGMailV3) error {
	req := sendgrid.GetRequest(d.key, sendGridEndpoint, d.host)
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(m)

	res, err := sendgrid.MakeRequestWithContext(ctx, req)
	if err != nil {
		return errors.Wrap(err, "calling sendgrid")
	}
	if res.StatusCode >= http.StatusBadRequest {
		return errors.Errorf("sendgrid status %d: %s", res.StatusCode, res.Body)
	}
	return nil
}

package notify

import (
	"context"
	"fmt"
	"net/http"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
)

const (
	sendgridHost     = "https://api.sendgrid.com"
	sendgridEndpoint = "/v3/mail/send"
)

// EmailChannel sends messages through SendGrid, one personalization per recipient
// so addresses are not disclosed to each other.
type EmailChannel struct {
	key        string
	from       *sgmail.Email
	subjPrefix string
}

func NewEmailChannel(apiKey, fromName, fromAddress, appName string) *EmailChannel {
	return &EmailChannel{
		key:        apiKey,
		from:       sgmail.NewEmail(fromName, fromAddress),
		subjPrefix: "[" + appName + "] ",
	}
}

func (e *EmailChannel) Name() string { return "email" }

func (e *EmailChannel) Deliver(ctx context.Context, msg Message) error {
	m := e.prepare(msg)
	if m == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	req := sendgrid.GetRequest(e.key, sendgridEndpoint, sendgridHost)
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(m)

	res, err := sendgrid.API(req)
	if err != nil {
		return fmt.Errorf("sendgrid: %w", err)
	}
	if res.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("sendgrid: status %d: %s", res.StatusCode, res.Body)
	}
	return nil
}

// prepare returns nil when no recipient has an address.
func (e *EmailChannel) prepare(msg Message) *sgmail.SGMailV3 {
	m := sgmail.NewV3Mail()
	m.SetFrom(e.from)
	m.Subject = e.subjPrefix + msg.Title

	for _, r := range msg.Recipients {
		if r.Email == "" {
			continue
		}
		p := sgmail.NewPersonalization()
		p.AddTos(sgmail.NewEmail(r.Name, r.Email))
		m.AddPersonalizations(p)
	}
	if len(m.Personalizations) == 0 {
		return nil
	}

	m.AddContent(sgmail.NewContent("text/plain", msg.Body))
	return m
}

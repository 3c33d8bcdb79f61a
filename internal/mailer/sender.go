package mailer

import (
	"context"
	"fmt"

	"github.com/resend/resend-go/v2"
)

// Sender delivers a single rendered email.
type Sender interface {
	Send(ctx context.Context, to []string, subject, html string) error
}

// ResendSender delivers mail through the Resend API.
type ResendSender struct {
	client *resend.Client
	from   string
}

// NewResendSender builds a sender for the given API key and from address.
func NewResendSender(apiKey, from string) *ResendSender {
	return &ResendSender{client: resend.NewClient(apiKey), from: from}
}

func (s *ResendSender) Send(ctx context.Context, to []string, subject, html string) error {
	resp, err := s.client.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    s.from,
		To:      to,
		Subject: subject,
		Html:    html,
	})
	if err != nil {
		return fmt.Errorf("resend: %w", err)
	}
	if resp == nil || resp.Id == "" {
		return fmt.Errorf("resend: empty response for %q", subject)
	}
	return nil
}

var _ Sender = (*ResendSender)(nil)

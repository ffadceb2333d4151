package email

import (
	"context"
	"fmt"

	"github.com/resend/resend-go/v2"
	"github.com/rs/zerolog/log"

	"github.com/developiq/northstar/internal/domain"
)

// ResendSender delivers reminders through the Resend API. Used when the
// deployment has no Microsoft mailbox to send from.
type ResendSender struct {
	client *resend.Client
	from   string
}

func NewResendSender(apiKey, from string) (*ResendSender, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("resend API key is required")
	}
	if from == "" {
		return nil, fmt.Errorf("resend sender address is required")
	}

	return &ResendSender{
		client: resend.NewClient(apiKey),
		from:   from,
	}, nil
}

func (s *ResendSender) Send(ctx context.Context, email domain.OutgoingEmail) error {
	if email.To == "" {
		return &domain.EmailSendError{Recipient: email.To, Err: fmt.Errorf("recipient address is empty")}
	}

	request := &resend.SendEmailRequest{
		From:    s.from,
		To:      []string{email.To},
		Subject: email.Subject,
		Html:    email.HTMLBody,
	}

	sent, err := s.client.Emails.SendWithContext(ctx, request)
	if err != nil {
		return &domain.EmailSendError{Recipient: email.To, Err: err}
	}

	log.Info().
		Str("to", email.To).
		Str("message_id", sent.Id).
		Msg("Email sent via Resend")

	return nil
}

package mail

import (
	"context"
	"errors"
	"time"
)

// ErrNoVerificationMail is returned when the poll budget is exhausted
// without a usable confirmation link.
var ErrNoVerificationMail = errors.New("no verification mail received")

// Poller repeatedly lists the mailbox until a verification mail with a
// confirmation link shows up.
type Poller struct {
	Client      *Client
	Interval    time.Duration
	MaxAttempts int
}

// WaitForConfirmationLink polls the mailbox. Already inspected messages
// are skipped on later rounds. Listing errors are logged and retried
// rather than aborting the poll; only ctx cancellation or an exhausted
// budget end it.
func (p *Poller) WaitForConfirmationLink(ctx context.Context) (string, error) {
	seen := make(map[string]bool)

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		messages, err := p.Client.Messages(ctx)
		if err != nil {
			p.Client.log.Warn().Err(err).Int("attempt", attempt).Msg("mailbox poll failed")
		}
		for _, msg := range messages {
			if seen[msg.ID] {
				continue
			}
			seen[msg.ID] = true
			if !p.Client.IsVerification(msg) {
				continue
			}
			p.Client.log.Info().Str("message_id", msg.ID).Str("subject", msg.Subject).
				Msg("verification mail received")

			detail, err := p.Client.Message(ctx, msg.ID)
			if err != nil {
				p.Client.log.Warn().Err(err).Str("message_id", msg.ID).Msg("failed to fetch mail body")
				continue
			}
			if link := ExtractConfirmationLink(*detail); link != "" {
				return link, nil
			}
			p.Client.log.Warn().Str("message_id", msg.ID).Msg("verification mail carried no usable link")
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(p.Interval):
		}
	}
	return "", ErrNoVerificationMail
}

package mailer

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"golang.org/x/time/rate"

	"gatekeep.dev/internal/obs"
)

// Processor executes email tasks pulled off the queue. A rate limiter keeps
// delivery under the provider's request ceiling.
type Processor struct {
	sender  Sender
	baseURL string
	limiter *rate.Limiter
}

// NewProcessor builds the task processor. baseURL is the public origin used
// in email links.
func NewProcessor(sender Sender, baseURL string) *Processor {
	return &Processor{
		sender:  sender,
		baseURL: baseURL,
		// Resend allows short bursts; 2 rps matches the queue's pace.
		limiter: rate.NewLimiter(rate.Limit(2), 2),
	}
}

// ProcessTask routes a task by type. Unknown types are dropped without retry.
func (p *Processor) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload EmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		obs.ObserveEmailJob(t.Type(), "malformed")
		return fmt.Errorf("decode %s payload: %w: %w", t.Type(), err, asynq.SkipRetry)
	}

	var (
		subject string
		html    string
		err     error
	)
	switch t.Type() {
	case TaskSendVerificationEmail:
		subject = "Email Verification"
		html, err = renderVerificationEmail(p.baseURL, payload.Token)
	case TaskSendResetPasswordEmail:
		subject = "Reset Password"
		html, err = renderResetPasswordEmail(p.baseURL, payload.Token)
	default:
		obs.Warn("unknown email task", map[string]any{"type": t.Type()})
		obs.ObserveEmailJob(t.Type(), "unknown")
		return nil
	}
	if err != nil {
		obs.ObserveEmailJob(t.Type(), "error")
		return err
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return err
	}
	if err := p.sender.Send(ctx, payload.Emails, subject, html); err != nil {
		obs.Error("email delivery failed", map[string]any{"type": t.Type(), "error": err.Error()})
		obs.ObserveEmailJob(t.Type(), "error")
		return err
	}
	obs.Info("email sent", map[string]any{"type": t.Type(), "recipients": len(payload.Emails)})
	obs.ObserveEmailJob(t.Type(), "ok")
	return nil
}

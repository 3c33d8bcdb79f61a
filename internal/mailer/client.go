package mailer

import (
	"context"
	"time"

	"github.com/hibiken/asynq"

	"gatekeep.dev/internal/auth"
)

var _ auth.Mailer = (*Client)(nil)

// Client enqueues email tasks. It satisfies auth.Mailer so the auth service
// never touches the queue directly.
type Client struct {
	inner *asynq.Client
}

// NewClient connects an enqueue-only asynq client to Redis.
func NewClient(opt asynq.RedisClientOpt) *Client {
	return &Client{inner: asynq.NewClient(opt)}
}

func (c *Client) Close() error { return c.inner.Close() }

func (c *Client) enqueue(ctx context.Context, taskType string, p EmailPayload) error {
	body, err := p.marshal()
	if err != nil {
		return err
	}
	task := asynq.NewTask(taskType, body)
	_, err = c.inner.EnqueueContext(ctx, task,
		asynq.Queue(queueEmail),
		asynq.MaxRetry(5),
		asynq.Timeout(30*time.Second),
	)
	return err
}

func (c *Client) EnqueueVerificationEmail(ctx context.Context, emails []string, token string) error {
	return c.enqueue(ctx, TaskSendVerificationEmail, EmailPayload{Emails: emails, Token: token})
}

func (c *Client) EnqueueResetPasswordEmail(ctx context.Context, emails []string, token string) error {
	return c.enqueue(ctx, TaskSendResetPasswordEmail, EmailPayload{Emails: emails, Token: token})
}

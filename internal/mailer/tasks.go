// Package mailer queues outbound email on Redis via asynq and delivers it
// through the Resend API on a background worker.
package mailer

import "encoding/json"

// Task type names routed by the worker mux.
const (
	TaskSendVerificationEmail  = "email:send_verification_email"
	TaskSendResetPasswordEmail = "email:send_reset_password_email"
)

// queueEmail is the asynq queue dedicated to email delivery.
const queueEmail = "email"

// EmailPayload is the wire body of both email task types.
type EmailPayload struct {
	Emails []string `json:"emails"`
	Token  string   `json:"token"`
}

func (p EmailPayload) marshal() ([]byte, error) {
	return json.Marshal(p)
}

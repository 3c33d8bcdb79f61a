package mailer

import (
	"fmt"
	"html/template"
	"strings"
)

var verificationTemplate = template.Must(template.New("verification").Parse(`<!doctype html>
<html>
  <body style="font-family: sans-serif; color: #1a1a1a;">
    <h2>Verify your email</h2>
    <p>Confirm your email address to activate your account. The link expires in 48 hours.</p>
    <p><a href="{{.Link}}" style="background:#2563eb;color:#fff;padding:10px 18px;border-radius:6px;text-decoration:none;">Verify Email</a></p>
    <p>If the button does not work, open this link:</p>
    <p>{{.Link}}</p>
  </body>
</html>`))

var resetPasswordTemplate = template.Must(template.New("reset").Parse(`<!doctype html>
<html>
  <body style="font-family: sans-serif; color: #1a1a1a;">
    <h2>Reset your password</h2>
    <p>We received a request to reset your password. The link expires in 5 minutes.</p>
    <p><a href="{{.Link}}" style="background:#2563eb;color:#fff;padding:10px 18px;border-radius:6px;text-decoration:none;">Reset Password</a></p>
    <p>If you did not request this, you can ignore this email.</p>
    <p>{{.Link}}</p>
  </body>
</html>`))

func renderVerificationEmail(baseURL, token string) (string, error) {
	return render(verificationTemplate, verifyLink(baseURL, token))
}

func renderResetPasswordEmail(baseURL, token string) (string, error) {
	return render(resetPasswordTemplate, resetLink(baseURL, token))
}

func render(t *template.Template, link string) (string, error) {
	var sb strings.Builder
	if err := t.Execute(&sb, struct{ Link string }{Link: link}); err != nil {
		return "", err
	}
	return sb.String(), nil
}

func verifyLink(baseURL, token string) string {
	return fmt.Sprintf("%s/api/auth/verify-email?token=%s", strings.TrimRight(baseURL, "/"), token)
}

func resetLink(baseURL, token string) string {
	return fmt.Sprintf("%s/reset-password?token=%s", strings.TrimRight(baseURL, "/"), token)
}

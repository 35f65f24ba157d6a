package mail

import (
	"bytes"
	"html/template"
	"strings"
	texttemplate "text/template"
)

type linkData struct {
	Name   string
	Link   string
	Expiry string
}

var (
	verifyHTML = template.Must(template.New("verify").Parse(`<h1>Welcome{{if .Name}}, {{.Name}}{{end}}!</h1>
<p>Please verify your email address by clicking the link below:</p>
<p><a href="{{.Link}}">Verify Email</a></p>
<p>This link will expire in {{.Expiry}}.</p>
<p>If you did not create an account, you can ignore this email.</p>`))

	verifyText = texttemplate.Must(texttemplate.New("verify").Parse(`Welcome{{if .Name}}, {{.Name}}{{end}}!

Verify your email address by opening this link:
{{.Link}}

This link will expire in {{.Expiry}}.
`))

	resetHTML = template.Must(template.New("reset").Parse(`<h1>Password Reset Request</h1>
<p>Hi{{if .Name}} {{.Name}}{{end}}, you requested to reset your password. Click the link below:</p>
<p><a href="{{.Link}}">Reset Password</a></p>
<p>This link will expire in {{.Expiry}}.</p>
<p>If you did not request a password reset, please ignore this email.</p>`))

	resetText = texttemplate.Must(texttemplate.New("reset").Parse(`Hi{{if .Name}} {{.Name}}{{end}},

Reset your password by opening this link:
{{.Link}}

This link will expire in {{.Expiry}}. If you did not request a reset, ignore this email.
`))
)

// VerificationEmail builds the message carrying an email verification link.
func VerificationEmail(to, name, baseURL, token, expiry string) (Message, error) {
	return render(to, "Verify your email address", verifyHTML, verifyText, linkData{
		Name:   name,
		Link:   joinURL(baseURL, "/v1/auth/verify-email/"+token),
		Expiry: expiry,
	})
}

// PasswordResetEmail builds the message carrying a password reset link.
func PasswordResetEmail(to, name, baseURL, token, expiry string) (Message, error) {
	return render(to, "Password Reset Request", resetHTML, resetText, linkData{
		Name:   name,
		Link:   joinURL(baseURL, "/v1/auth/reset-password/"+token),
		Expiry: expiry,
	})
}

func render(to, subject string, h *template.Template, t *texttemplate.Template, data linkData) (Message, error) {
	var hb, tb bytes.Buffer
	if err := h.Execute(&hb, data); err != nil {
		return Message{}, err
	}
	if err := t.Execute(&tb, data); err != nil {
		return Message{}, err
	}
	return Message{To: to, Subject: subject, HTML: hb.String(), Text: tb.String()}, nil
}

func joinURL(base, path string) string {
	return strings.TrimRight(base, "/") + path
}

// Package email provides email sending functionality
package email

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"html/template"
	"net"
	"net/smtp"
	"strings"
	texttemplate "text/template"

	"github.com/Marga-Ghale/grove-backend/internal/service"
	"github.com/rs/zerolog"
)

// Config holds email configuration
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
	FromName string
	UseTLS   bool
}

// Service handles email sending
type Service struct {
	config    *Config
	templates map[string]*template.Template
	subjects  map[string]*texttemplate.Template
	log       zerolog.Logger
}

// NewService creates a new email service
func NewService(config *Config, log zerolog.Logger) *Service {
	s := &Service{
		config:    config,
		templates: make(map[string]*template.Template),
		subjects:  make(map[string]*texttemplate.Template),
		log:       log,
	}
	s.loadTemplates()
	return s
}

// Email represents an email message
type Email struct {
	To       []string
	Subject  string
	Body     string
	HTMLBody string
}

const layoutStart = `
<!DOCTYPE html>
<html>
<head>
    <style>
        body { font-family: Georgia, 'Times New Roman', serif; line-height: 1.6; color: #2f3b2f; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { background: #3f6b4a; color: white; padding: 24px; border-radius: 8px 8px 0 0; }
        .content { background: #f6f8f4; padding: 24px; border-radius: 0 0 8px 8px; }
        .message { border-left: 3px solid #3f6b4a; padding-left: 12px; font-style: italic; }
        .btn { display: inline-block; background: #3f6b4a; color: white; padding: 12px 20px; text-decoration: none; border-radius: 6px; margin-top: 16px; }
        .footer { margin-top: 24px; font-size: 12px; color: #6b7280; text-align: center; }
    </style>
</head>
<body>
<div class="container">`

const layoutEnd = `
    <div class="footer">
        Grove • Keeping family memories together
    </div>
</div>
</body>
</html>
`

// loadTemplates loads all email templates
func (s *Service) loadTemplates() {
	s.add(service.TemplateTransferInvitation,
		`{{if .SenderName}}{{.SenderName}}{{else}}Someone{{end}} wants you to care for {{.PersonName}}'s tree`, `
    <div class="header">
        <h2>A family tree is being passed to you</h2>
    </div>
    <div class="content">
        <p>Hello,</p>
        <p><strong>{{if .SenderName}}{{.SenderName}}{{else}}Someone{{end}}</strong> would like you to become the caretaker of <strong>{{.PersonName}}</strong>'s memorial.</p>
        {{if .Message}}<p class="message">{{.Message}}</p>{{end}}

        <a href="{{.AcceptURL}}" class="btn">Review the invitation</a>

        <p style="margin-top: 16px; font-size: 14px; color: #6b7280;">
            This invitation expires on {{.ExpiresAt}}. If you were not expecting it, you can ignore this email.
        </p>
    </div>`)

	s.add(service.TemplateTransferCompletedSender,
		`{{.PersonName}}'s tree has a new caretaker`, `
    <div class="header">
        <h2>Your transfer was accepted</h2>
    </div>
    <div class="content">
        <p><strong>{{if .RecipientName}}{{.RecipientName}}{{else}}The recipient{{end}}</strong> accepted the care of <strong>{{.PersonName}}</strong>'s memorial.</p>
        <p>You keep contributor access to the memories you shared.</p>
    </div>`)

	s.add(service.TemplateTransferCompletedReceiver,
		`You are now caring for {{.PersonName}}'s tree`, `
    <div class="header">
        <h2>Welcome to {{.PersonName}}'s tree</h2>
    </div>
    <div class="content">
        <p>You are now the owner of <strong>{{.PersonName}}</strong>'s memorial.</p>
        <p>You can invite family members, approve contributions and name heirs from the tree settings.</p>
    </div>`)
}

func (s *Service) add(kind, subject, body string) {
	s.subjects[kind] = texttemplate.Must(texttemplate.New(kind + "_subject").Parse(subject))
	s.templates[kind] = template.Must(template.New(kind).Parse(layoutStart + body + layoutEnd))
}

// Render returns the subject and HTML body for a template kind.
func (s *Service) Render(kind string, data any) (string, string, error) {
	tmpl, ok := s.templates[kind]
	if !ok {
		return "", "", fmt.Errorf("template not found: %s", kind)
	}

	var subject, body bytes.Buffer
	if err := s.subjects[kind].Execute(&subject, data); err != nil {
		return "", "", fmt.Errorf("subject execution error: %w", err)
	}
	if err := tmpl.Execute(&body, data); err != nil {
		return "", "", fmt.Errorf("template execution error: %w", err)
	}
	// Subjects are headers, so line breaks in user data are dropped.
	return strings.Join(strings.Fields(subject.String()), " "), body.String(), nil
}

// SendWithTemplate sends an email using a template
func (s *Service) SendWithTemplate(ctx context.Context, to []string, kind string, data any) error {
	subject, body, err := s.Render(kind, data)
	if err != nil {
		return err
	}
	return s.Send(ctx, &Email{
		To:       to,
		Subject:  subject,
		HTMLBody: body,
	})
}

// Send sends an email
func (s *Service) Send(ctx context.Context, email *Email) error {
	if s.config.Host == "" {
		s.log.Info().Strs("to", email.To).Msg("email not configured, skipping send")
		return nil
	}

	var msg bytes.Buffer
	msg.WriteString(fmt.Sprintf("From: %s <%s>\r\n", s.config.FromName, s.config.From))
	msg.WriteString(fmt.Sprintf("To: %s\r\n", strings.Join(email.To, ", ")))
	msg.WriteString(fmt.Sprintf("Subject: %s\r\n", email.Subject))
	msg.WriteString("MIME-Version: 1.0\r\n")

	if email.HTMLBody != "" {
		msg.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
		msg.WriteString("\r\n")
		msg.WriteString(email.HTMLBody)
	} else {
		msg.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
		msg.WriteString("\r\n")
		msg.WriteString(email.Body)
	}

	auth := smtp.PlainAuth("", s.config.User, s.config.Password, s.config.Host)
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	if !s.config.UseTLS {
		return smtp.SendMail(addr, auth, s.config.From, email.To, msg.Bytes())
	}

	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{},
		Config:    &tls.Config{ServerName: s.config.Host},
	}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("TLS dial error: %w", err)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, s.config.Host)
	if err != nil {
		return fmt.Errorf("SMTP client error: %w", err)
	}
	defer client.Close()

	if err = client.Auth(auth); err != nil {
		return fmt.Errorf("auth error: %w", err)
	}
	if err = client.Mail(s.config.From); err != nil {
		return fmt.Errorf("mail error: %w", err)
	}
	for _, rcpt := range email.To {
		if err = client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("rcpt error: %w", err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("data error: %w", err)
	}
	if _, err = w.Write(msg.Bytes()); err != nil {
		return fmt.Errorf("write error: %w", err)
	}
	if err = w.Close(); err != nil {
		return fmt.Errorf("close error: %w", err)
	}
	return client.Quit()
}

// Dispatcher adapts the email service to the lifecycle engine's
// notification boundary.
type Dispatcher struct {
	svc *Service
}

func NewDispatcher(svc *Service) *Dispatcher {
	return &Dispatcher{svc: svc}
}

func (d *Dispatcher) Send(ctx context.Context, recipient, templateKind string, data map[string]any) error {
	return d.svc.SendWithTemplate(ctx, []string{recipient}, templateKind, data)
}

package service

import (
	"context"
	"fmt"
	"html"
	"time"

	"solarmarket/verify-api/config"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"
)

type Mailer interface {
	SendQuestionnaireVerification(ctx context.Context, to, name, link string) error
	SendRegistrationVerification(ctx context.Context, to, name, link string) error
}

// NewMailer returns an SMTP mailer, or a mailer that only logs the links
// when no SMTP host is configured.
func NewMailer(cfg config.MailConfig, tokenTTL time.Duration, log *zap.Logger) Mailer {
	if cfg.Host == "" {
		return &LogMailer{log: log}
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultMailTimeout
	}

	return &SMTPMailer{
		dialer:   gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:     cfg.Sender,
		tokenTTL: tokenTTL,
		timeout:  timeout,
	}
}

const defaultMailTimeout = 10 * time.Second

type SMTPMailer struct {
	dialer   *gomail.Dialer
	from     string
	tokenTTL time.Duration
	timeout  time.Duration
}

func (m *SMTPMailer) SendQuestionnaireVerification(ctx context.Context, to, name, link string) error {
	body := fmt.Sprintf(`
		<h2>Hi %s,</h2>
		<p>Thanks for telling us about your property. Confirm your email so solar installers can start sending you proposals.</p>
		<p><a href='%s'>Verify my questionnaire</a></p>
		<p>This link will expire in %s.</p>
	`, html.EscapeString(greeting(name)), html.EscapeString(link), m.tokenTTL)

	return m.send(ctx, to, "Confirm your solar questionnaire", body)
}

func (m *SMTPMailer) SendRegistrationVerification(ctx context.Context, to, name, link string) error {
	body := fmt.Sprintf(`
		<h2>Welcome, %s!</h2>
		<p>Click <a href='%s'>here</a> to confirm your email address, then log in to your account.</p>
		<p>This link will expire in %s.</p>
	`, html.EscapeString(greeting(name)), html.EscapeString(link), m.tokenTTL)

	return m.send(ctx, to, "Confirm your email address", body)
}

// send gives up once ctx is done or the mailer timeout passes. gomail has no
// context support, so an abandoned hand-over finishes in the background.
func (m *SMTPMailer) send(ctx context.Context, to, subject, body string) error {
	if to == m.from {
		return fmt.Errorf("%w, refusing to mail the sender address", ErrMalformedInput)
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", body)

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- m.dialer.DialAndSend(msg)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("%w, failed to send mail: %w", ErrDownstream, err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w, failed to send mail: %w", ErrDownstream, ctx.Err())
	}
}

type LogMailer struct {
	log *zap.Logger
}

func (m *LogMailer) SendQuestionnaireVerification(_ context.Context, to, _, link string) error {
	m.log.Info("Questionnaire verification mail", zap.String("to", to), zap.String("link", link))
	return nil
}

func (m *LogMailer) SendRegistrationVerification(_ context.Context, to, _, link string) error {
	m.log.Info("Registration verification mail", zap.String("to", to), zap.String("link", link))
	return nil
}

func greeting(name string) string {
	if name == "" {
		return "there"
	}

	return name
}

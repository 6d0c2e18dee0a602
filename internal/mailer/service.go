// Package mailer renders and delivers contact form notifications.
package mailer

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"swish-forms/internal/dispatch"
	"swish-forms/internal/forms"
	"swish-forms/internal/secrets"
	"swish-forms/internal/settings"

	"go.uber.org/zap"
)

var ErrNoRecipient = errors.New("no notification recipient configured")

// Options carries the environment level mail defaults.
type Options struct {
	SiteName   string
	AdminEmail string
	MailHost   string
	MailPort   int
	Timeout    time.Duration
}

// Service turns contact events into notification emails.
type Service struct {
	opts    Options
	keyring *secrets.Keyring
	log     *zap.Logger

	// Dial builds the transport for one send.
	Dial func(SMTPConfig) Transport
	now  func() time.Time
}

func NewService(opts Options, keyring *secrets.Keyring, log *zap.Logger) *Service {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	return &Service{
		opts:    opts,
		keyring: keyring,
		log:     log,
		Dial:    NewSMTPTransport,
		now:     time.Now,
	}
}

// Register subscribes the service to contact submissions.
func (s *Service) Register(bus *dispatch.Bus) {
	bus.OnContactSubmitted(s.HandleContact)
}

// HandleContact sends the notification for one stored contact entry.
func (s *Service) HandleContact(ctx context.Context, ev dispatch.ContactSubmitted) error {
	to := firstNonEmpty(ev.RecipientEmail, ev.Settings.Email.ToEmail, s.opts.AdminEmail)
	if to == "" {
		return ErrNoRecipient
	}
	subject := strings.TrimSpace(ev.Subject)
	if subject == "" {
		subject = "New form submission from " + s.opts.SiteName
	}

	now := s.now()
	body, err := renderNotification(notificationData{
		Heading:     subject,
		SiteName:    s.opts.SiteName,
		EntryID:     ev.EntryID,
		SubmittedAt: now.Format("January 2, 2006 3:04 pm"),
		Rows:        buildRows(ev.FieldDefinitions, ev.Fields),
	})
	if err != nil {
		return err
	}

	msg := Message{
		From:     s.sender(ev.Settings.Email),
		To:       []string{to},
		Subject:  subject,
		HTMLBody: body,
	}
	if forms.IsEmail(ev.SenderEmail) {
		msg.ReplyTo = ev.SenderEmail
	}

	if err := s.Dial(s.smtpConfig(ev.Settings.Email)).Send(ctx, msg); err != nil {
		s.log.Error("Failed to send notification email",
			zap.Uint("entry_id", ev.EntryID), zap.String("to", to), zap.Error(err))
		return fmt.Errorf("send notification for entry %d: %w", ev.EntryID, err)
	}

	s.log.Info("Notification email sent", zap.Uint("entry_id", ev.EntryID), zap.String("to", to))
	return nil
}

// SendTestEmail delivers a canned message using the given settings.
func (s *Service) SendTestEmail(ctx context.Context, snap settings.Snapshot, to string) error {
	to = strings.TrimSpace(to)
	if !forms.IsEmail(to) {
		return forms.ValidationErrors{"email": "Please enter a valid email address."}
	}

	body, err := renderNotification(notificationData{
		Heading:     "Test email from " + s.opts.SiteName,
		SiteName:    s.opts.SiteName,
		SubmittedAt: s.now().Format("January 2, 2006 3:04 pm"),
		Rows: []emailRow{{
			Label: "Status",
			Lines: []string{"Your email settings are working."},
		}},
	})
	if err != nil {
		return err
	}

	msg := Message{
		From:     s.sender(snap.Email),
		To:       []string{to},
		Subject:  "Test email from " + s.opts.SiteName,
		HTMLBody: body,
	}
	return s.Dial(s.smtpConfig(snap.Email)).Send(ctx, msg)
}

func (s *Service) sender(email settings.EmailSettings) mail.Address {
	from := firstNonEmpty(email.FromEmail, s.opts.AdminEmail)
	if from == "" {
		from = "wordpress@localhost"
	}
	return mail.Address{Name: firstNonEmpty(email.FromName, s.opts.SiteName), Address: from}
}

func (s *Service) smtpConfig(email settings.EmailSettings) SMTPConfig {
	if !email.SMTPEnabled || email.SMTPHost == "" {
		return SMTPConfig{
			Host:       s.opts.MailHost,
			Port:       s.opts.MailPort,
			Encryption: "none",
			Timeout:    s.opts.Timeout,
		}
	}

	cfg := SMTPConfig{
		Host:       email.SMTPHost,
		Port:       email.SMTPPort,
		Encryption: email.SMTPEncryption,
		Timeout:    s.opts.Timeout,
	}
	if cfg.Port == 0 {
		cfg.Port = defaultPort(cfg.Encryption)
	}
	if email.SMTPAuth {
		cfg.Username = email.SMTPUsername
		cfg.Password = s.keyring.Reveal(settings.SMTPScope, email.SMTPPassword)
		if cfg.Password == "" && email.SMTPPassword != "" {
			s.log.Warn("Stored SMTP password could not be decrypted")
		}
	}
	return cfg
}

func defaultPort(encryption string) int {
	switch encryption {
	case "ssl":
		return 465
	case "tls":
		return 587
	default:
		return 25
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

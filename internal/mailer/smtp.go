package mailer

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"
)

// Transport delivers a built message.
type Transport interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPConfig describes how to reach the mail server.
type SMTPConfig struct {
	Host       string
	Port       int
	Encryption string // none, ssl or tls (STARTTLS)
	Username   string
	Password   string
	Timeout    time.Duration
}

// SMTPTransport sends mail over one SMTP connection per message.
type SMTPTransport struct {
	cfg SMTPConfig
	now func() time.Time
}

func NewSMTPTransport(cfg SMTPConfig) Transport {
	return &SMTPTransport{cfg: cfg, now: time.Now}
}

func (t *SMTPTransport) Send(ctx context.Context, msg Message) error {
	body, err := msg.Build(t.now())
	if err != nil {
		return err
	}

	client, err := t.dial(ctx)
	if err != nil {
		return fmt.Errorf("smtp connect %s: %w", t.cfg.Host, err)
	}
	defer client.Close()

	if t.cfg.Encryption == "tls" {
		if ok, _ := client.Extension("STARTTLS"); !ok {
			return errors.New("smtp server does not support STARTTLS")
		}
		if err := client.StartTLS(&tls.Config{ServerName: t.cfg.Host}); err != nil {
			return fmt.Errorf("smtp starttls: %w", err)
		}
	}

	if t.cfg.Username != "" {
		auth, err := t.auth(client)
		if err != nil {
			return err
		}
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}

	if err := client.Mail(msg.From.Address); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	for _, rcpt := range msg.To {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("smtp rcpt %s: %w", rcpt, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	return client.Quit()
}

func (t *SMTPTransport) dial(ctx context.Context) (*smtp.Client, error) {
	addr := net.JoinHostPort(t.cfg.Host, strconv.Itoa(t.cfg.Port))
	dialer := &net.Dialer{Timeout: t.cfg.Timeout}

	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	} else if t.cfg.Timeout > 0 {
		conn.SetDeadline(time.Now().Add(t.cfg.Timeout))
	}

	if t.cfg.Encryption == "ssl" {
		tlsConn := tls.Client(conn, &tls.Config{ServerName: t.cfg.Host})
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			conn.Close()
			return nil, err
		}
		conn = tlsConn
	}

	client, err := smtp.NewClient(conn, t.cfg.Host)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return client, nil
}

// auth picks PLAIN or LOGIN from the server's advertised mechanisms.
func (t *SMTPTransport) auth(client *smtp.Client) (smtp.Auth, error) {
	ok, mechanisms := client.Extension("AUTH")
	if !ok {
		return nil, errors.New("smtp server does not support AUTH")
	}
	upper := strings.ToUpper(mechanisms)
	switch {
	case strings.Contains(upper, "PLAIN"):
		return smtp.PlainAuth("", t.cfg.Username, t.cfg.Password, t.cfg.Host), nil
	case strings.Contains(upper, "LOGIN"):
		return &loginAuth{username: t.cfg.Username, password: t.cfg.Password}, nil
	default:
		return nil, fmt.Errorf("unsupported smtp auth mechanisms %q", mechanisms)
	}
}

// loginAuth implements the LOGIN SMTP auth mechanism.
type loginAuth struct {
	username string
	password string
}

func (a *loginAuth) Start(_ *smtp.ServerInfo) (string, []byte, error) {
	return "LOGIN", nil, nil
}

func (a *loginAuth) Next(fromServer []byte, more bool) ([]byte, error) {
	if !more {
		return nil, nil
	}
	switch strings.ToLower(strings.TrimSpace(string(fromServer))) {
	case "username:", "user:":
		return []byte(a.username), nil
	case "password:", "pass:":
		return []byte(a.password), nil
	default:
		return nil, fmt.Errorf("unexpected login challenge: %s", string(fromServer))
	}
}

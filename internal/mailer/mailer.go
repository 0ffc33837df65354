package mailer

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strconv"
	"time"

	"github.com/illegalcall/inquiry-relay/internal/config"
	"github.com/illegalcall/inquiry-relay/internal/models"
)

var (
	ErrMissingCredentials = errors.New("mail relay credentials not configured")
	ErrMissingRecipient   = errors.New("mail recipient not configured")
)

// implicitTLSPort is the SMTPS port, where TLS starts before the greeting.
const implicitTLSPort = 465

// Mailer delivers a single outbound email. Send either hands the whole
// message to the relay or returns an error; there is no partial delivery.
type Mailer interface {
	Send(ctx context.Context, email models.OutboundEmail) error
}

// SMTPMailer sends through an authenticated SMTP relay.
type SMTPMailer struct {
	cfg    config.MailConfig
	logger *slog.Logger
	now    func() time.Time
}

func NewSMTPMailer(cfg config.MailConfig, logger *slog.Logger) *SMTPMailer {
	return &SMTPMailer{
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

func (m *SMTPMailer) Send(ctx context.Context, email models.OutboundEmail) error {
	if !m.cfg.HasCredentials() || email.From == "" {
		return ErrMissingCredentials
	}
	if email.To == "" {
		return ErrMissingRecipient
	}

	msg, err := buildMessage(email, m.now())
	if err != nil {
		return fmt.Errorf("failed to build message: %w", err)
	}

	if m.cfg.SendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.SendTimeout)
		defer cancel()
	}

	if err := m.deliver(ctx, email.From, email.To, msg); err != nil {
		return err
	}

	m.logger.Info("Email sent successfully",
		"recipient", email.To,
		"subject", email.Subject,
		"attachments", len(email.Attachments),
		"bytes", len(msg),
	)
	return nil
}

func (m *SMTPMailer) deliver(ctx context.Context, from, to string, msg []byte) error {
	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	// Unblock any pending read or write once the caller gives up.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	if m.cfg.Port == implicitTLSPort {
		tlsConn := tls.Client(conn, &tls.Config{ServerName: m.cfg.Host})
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			_ = conn.Close()
			return fmt.Errorf("tls handshake failed: %w", err)
		}
		conn = tlsConn
	}

	client, err := smtp.NewClient(conn, m.cfg.Host)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to start smtp session: %w", err)
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok && m.cfg.Port != implicitTLSPort {
		if err := client.StartTLS(&tls.Config{ServerName: m.cfg.Host}); err != nil {
			return fmt.Errorf("starttls failed: %w", err)
		}
	}

	if ok, _ := client.Extension("AUTH"); !ok {
		return errors.New("smtp server does not support AUTH")
	}
	auth := smtp.PlainAuth("", m.cfg.User, m.cfg.Password, m.cfg.Host)
	if err := client.Auth(auth); err != nil {
		return fmt.Errorf("smtp auth failed: %w", err)
	}

	if err := client.Mail(from); err != nil {
		return fmt.Errorf("smtp MAIL FROM rejected: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("smtp RCPT TO rejected: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp DATA rejected: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("relay refused message: %w", err)
	}

	if err := client.Quit(); err != nil {
		m.logger.Warn("SMTP QUIT failed after delivery", "error", err)
	}
	return nil
}

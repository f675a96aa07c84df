// Package smtp sends email notifications through a plain SMTP relay.
package smtp

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"mime/multipart"
	"net/mail"
	"net/smtp"
	"net/textproto"
	"time"

	"github.com/reevlo/reevlo-backend/notifications"
)

// Config represents the configuration for the SMTP email service. TestAPIPort
// is the HTTP port of a catch-all server (MailHog) used to read the messages
// back in tests.
type Config struct {
	FromName     string
	FromAddress  string
	SMTPUsername string
	SMTPPassword string
	SMTPServer   string
	SMTPPort     int
	TestAPIPort  int
}

// Email implements notifications.NotificationService over net/smtp.
type Email struct {
	config *Config
	auth   smtp.Auth
}

var _ notifications.NotificationService = (*Email)(nil)

// New initializes the service. SMTP auth is only used when both the username
// and the password are set.
func (se *Email) New(rawConfig any) error {
	config, ok := rawConfig.(*Config)
	if !ok {
		return fmt.Errorf("invalid SMTP configuration")
	}
	if _, err := mail.ParseAddress(config.FromAddress); err != nil {
		return fmt.Errorf("could not parse from email: %v", err)
	}
	if config.SMTPServer == "" || config.SMTPPort == 0 {
		return fmt.Errorf("missing SMTP server or port")
	}
	se.config = config
	if config.SMTPUsername != "" && config.SMTPPassword != "" {
		se.auth = smtp.PlainAuth("", config.SMTPUsername, config.SMTPPassword, config.SMTPServer)
	}
	return nil
}

// SendNotification composes a multipart message and hands it to the SMTP
// server, returning early if the context is done first.
func (se *Email) SendNotification(ctx context.Context, notification *notifications.Notification) error {
	body, err := se.composeBody(notification)
	if err != nil {
		return fmt.Errorf("could not compose email body: %v", err)
	}
	server := fmt.Sprintf("%s:%d", se.config.SMTPServer, se.config.SMTPPort)
	errCh := make(chan error, 1)
	go func() {
		errCh <- smtp.SendMail(server, se.auth, se.config.FromAddress, []string{notification.ToAddress}, body)
		close(errCh)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// composeBody builds a multipart/alternative message with a plain text part
// and, when present, an HTML part.
func (se *Email) composeBody(notification *notifications.Notification) ([]byte, error) {
	to, err := mail.ParseAddress(notification.ToAddress)
	if err != nil {
		return nil, fmt.Errorf("could not parse to email: %v", err)
	}
	if notification.ToName != "" {
		to.Name = notification.ToName
	}
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	from := mail.Address{Name: se.config.FromName, Address: se.config.FromAddress}
	var headers bytes.Buffer
	fmt.Fprintf(&headers, "From: %s\r\n", from.String())
	fmt.Fprintf(&headers, "To: %s\r\n", to.String())
	fmt.Fprintf(&headers, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", notification.Subject))
	fmt.Fprintf(&headers, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	headers.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&headers, "Content-Type: multipart/alternative; boundary=\"%s\"\r\n", writer.Boundary())
	headers.WriteString("\r\n")

	textPart, err := writer.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {"text/plain; charset=\"UTF-8\""},
		"Content-Transfer-Encoding": {"8bit"},
	})
	if err != nil {
		return nil, err
	}
	if _, err := textPart.Write([]byte(notification.Text())); err != nil {
		return nil, fmt.Errorf("could not write plain text part: %v", err)
	}
	if notification.Body != "" {
		htmlPart, err := writer.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {"text/html; charset=\"UTF-8\""},
			"Content-Transfer-Encoding": {"8bit"},
		})
		if err != nil {
			return nil, err
		}
		if _, err := htmlPart.Write([]byte(notification.Body)); err != nil {
			return nil, fmt.Errorf("could not write HTML part: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("could not close writer: %v", err)
	}
	return append(headers.Bytes(), body.Bytes()...), nil
}

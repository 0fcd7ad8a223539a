package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/dreschagin/telemetry-pipeline/internal/application/dto"
	"github.com/dreschagin/telemetry-pipeline/internal/domain/entity"
)

const defaultSMTPPort = "587"

// SendMailFunc matches smtp.SendMail, which upgrades with STARTTLS when offered.
type SendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Email delivers alerts over SMTP.
type Email struct {
	host     string
	addr     string
	user     string
	password string
	from     string
	to       []string
	sendMail SendMailFunc
}

func NewEmail(cfg entity.ChannelConfig, sendMail SendMailFunc) *Email {
	if sendMail == nil {
		sendMail = smtp.SendMail
	}
	host := cfg.Param("smtp_host", "")
	var to []string
	for _, addr := range strings.Split(cfg.Param("to", ""), ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			to = append(to, addr)
		}
	}
	return &Email{
		host:     host,
		addr:     net.JoinHostPort(host, cfg.Param("smtp_port", defaultSMTPPort)),
		user:     cfg.Param("smtp_user", ""),
		password: cfg.Param("smtp_password", ""),
		from:     cfg.Param("from", ""),
		to:       to,
		sendMail: sendMail,
	}
}

func (e *Email) Kind() entity.ChannelKind { return entity.ChannelEmail }

// Send runs the SMTP exchange in the background so ctx can abandon it.
func (e *Email) Send(ctx context.Context, alert *dto.AlertDTO) error {
	if len(e.to) == 0 {
		return fmt.Errorf("email: no recipients")
	}

	msg, err := e.buildMessage(alert)
	if err != nil {
		return err
	}

	var auth smtp.Auth
	if e.user != "" {
		auth = smtp.PlainAuth("", e.user, e.password, e.host)
	}

	done := make(chan error, 1)
	go func() {
		done <- e.sendMail(e.addr, auth, e.from, e.to, msg)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("email: send via %s: %w", e.addr, err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func emailSubject(alert *dto.AlertDTO) string {
	return fmt.Sprintf("[%s] %s", strings.ToUpper(alert.Severity), alert.Title)
}

func (e *Email) buildMessage(alert *dto.AlertDTO) ([]byte, error) {
	metadata, err := json.MarshalIndent(alert.Metadata, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("email: marshal metadata: %w", err)
	}

	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", e.from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(e.to, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", emailSubject(alert)))
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().UTC().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	b.WriteString("\r\n")

	fmt.Fprintf(&b, "An alert has been raised.\r\n\r\n")
	fmt.Fprintf(&b, "Severity: %s\r\n", strings.ToUpper(alert.Severity))
	fmt.Fprintf(&b, "Title: %s\r\n", alert.Title)
	fmt.Fprintf(&b, "Message: %s\r\n", alert.Message)
	fmt.Fprintf(&b, "Source: %s\r\n", alert.Source)
	fmt.Fprintf(&b, "Time: %s\r\n\r\n", alert.Timestamp.UTC().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "Details:\r\n%s\r\n", strings.ReplaceAll(string(metadata), "\n", "\r\n"))

	return b.Bytes(), nil
}

package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"html/template"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net"
	"net/smtp"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/alghanim/agentpulse/config"
)

var alertHTML = template.Must(template.New("alert").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: sans-serif; color: #1f2933;">
  <h2 style="color: #c0392b;">{{.Subject}}</h2>
  <p><strong>Agent:</strong> #{{.AgentID}}</p>
  <p><strong>Message:</strong></p>
  <pre style="background: #f4f5f7; padding: 8px;">{{.Message}}</pre>
  {{if .Error}}<p><strong>Error:</strong></p>
  <pre style="background: #fdecea; padding: 8px;">{{.Error}}</pre>{{end}}
  <p><small>Detected on {{.Detected}}</small></p>
</body>
</html>`))

// Mailer sends alerts through SMTP, over implicit TLS or STARTTLS.
type Mailer struct {
	cfg config.SMTPConfig
}

func NewMailer(cfg config.SMTPConfig) *Mailer {
	return &Mailer{cfg: cfg}
}

func detectedLabel(t time.Time) string {
	return t.Format("02/01/2006 at 15:04:05")
}

// Compose renders the full RFC 5322 message for alert.
func (m *Mailer) Compose(alert Alert) ([]byte, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	text := fmt.Sprintf("%s\n\nAgent: #%d\nMessage: %s\n", alert.Subject, alert.AgentID, alert.Message)
	if alert.Error != "" {
		text += "Error: " + alert.Error + "\n"
	}
	text += "Detected on " + detectedLabel(alert.DetectedAt) + "\n"

	if err := writePart(mw, "text/plain", []byte(text)); err != nil {
		return nil, err
	}

	var html bytes.Buffer
	err := alertHTML.Execute(&html, struct {
		Alert
		Detected string
	}{alert, detectedLabel(alert.DetectedAt)})
	if err != nil {
		return nil, fmt.Errorf("render alert html: %w", err)
	}
	if err := writePart(mw, "text/html", html.Bytes()); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s\r\n", m.cfg.From)
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(m.cfg.To, ", "))
	fmt.Fprintf(&msg, "Subject: %s\r\n", mime.QEncoding.Encode("UTF-8", alert.Subject))
	fmt.Fprintf(&msg, "Date: %s\r\n", alert.DetectedAt.Format(time.RFC1123Z))
	msg.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: multipart/alternative; boundary=%q\r\n\r\n", mw.Boundary())
	msg.Write(body.Bytes())
	return msg.Bytes(), nil
}

// writePart adds a quoted-printable UTF-8 part so non-ASCII messages survive
// 7-bit relays.
func writePart(mw *multipart.Writer, contentType string, body []byte) error {
	part, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {contentType + "; charset=UTF-8"},
		"Content-Transfer-Encoding": {"quoted-printable"},
	})
	if err != nil {
		return err
	}
	qp := quotedprintable.NewWriter(part)
	if _, err := qp.Write(body); err != nil {
		return err
	}
	return qp.Close()
}

func (m *Mailer) Notify(ctx context.Context, alert Alert) error {
	msg, err := m.Compose(alert)
	if err != nil {
		return err
	}
	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))

	dialer := &net.Dialer{}
	var conn net.Conn
	if m.cfg.ImplicitTLS {
		conn, err = (&tls.Dialer{NetDialer: dialer, Config: &tls.Config{ServerName: m.cfg.Host}}).DialContext(ctx, "tcp", addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return fmt.Errorf("dial smtp %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	c, err := smtp.NewClient(conn, m.cfg.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer c.Close()

	if !m.cfg.ImplicitTLS {
		if ok, _ := c.Extension("STARTTLS"); ok {
			if err := c.StartTLS(&tls.Config{ServerName: m.cfg.Host}); err != nil {
				return fmt.Errorf("starttls: %w", err)
			}
		}
	}
	if m.cfg.Username != "" {
		if err := c.Auth(smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}
	if err := c.Mail(m.cfg.From); err != nil {
		return fmt.Errorf("smtp MAIL FROM: %w", err)
	}
	for _, rcpt := range m.cfg.To {
		if err := c.Rcpt(rcpt); err != nil {
			return fmt.Errorf("smtp RCPT TO %s: %w", rcpt, err)
		}
	}
	wc, err := c.Data()
	if err != nil {
		return fmt.Errorf("smtp DATA: %w", err)
	}
	if _, err := wc.Write(msg); err != nil {
		wc.Close()
		return fmt.Errorf("write message: %w", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("finish message: %w", err)
	}
	return c.Quit()
}

// Package mailer sends outbound email over SMTP.
package mailer

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"html"
	"io"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	gomail "github.com/emersion/go-message/mail"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"

	"github.com/fte-hq/fte-connectors/internal/apperrors"
	"github.com/fte-hq/fte-connectors/internal/config"
)

const dialTimeout = 30 * time.Second

type Message struct {
	To      string
	Subject string
	Body    string
	HTML    bool
}

// Receipt identifies a message accepted by the SMTP server.
type Receipt struct {
	MessageID string
}

type Provider interface {
	Send(ctx context.Context, msg Message) (Receipt, error)
}

type SMTPProvider struct {
	cfg *config.EmailConfig
	now func() time.Time
}

func NewSMTPProvider(cfg *config.EmailConfig) *SMTPProvider {
	return &SMTPProvider{cfg: cfg, now: time.Now}
}

func (s *SMTPProvider) Send(ctx context.Context, msg Message) (Receipt, error) {
	recipients, err := gomail.ParseAddressList(msg.To)
	if err != nil {
		return Receipt{}, apperrors.Wrap(apperrors.KindValidation, err, "invalid recipient address")
	}
	if len(recipients) == 0 {
		return Receipt{}, apperrors.New(apperrors.KindValidation, "no recipients specified")
	}

	sender := s.cfg.Sender()
	if sender == "" {
		sender = "noreply@localhost"
	}

	raw, messageID, err := buildMessage(sender, s.cfg.FromName, recipients, msg, s.now())
	if err != nil {
		return Receipt{}, err
	}

	client, err := s.dialSMTPClient(ctx)
	if err != nil {
		return Receipt{}, err
	}
	defer client.Close()

	if err := s.authenticate(client); err != nil {
		return Receipt{}, err
	}

	if err := client.Mail(sender); err != nil {
		return Receipt{}, fmt.Errorf("failed to set sender: %w", err)
	}
	for _, rcpt := range recipients {
		if err := client.Rcpt(rcpt.Address); err != nil {
			return Receipt{}, fmt.Errorf("failed to set recipient %s: %w", rcpt.Address, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return Receipt{}, fmt.Errorf("failed to initiate data transfer: %w", err)
	}
	if _, err := w.Write(raw); err != nil {
		return Receipt{}, fmt.Errorf("failed to write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return Receipt{}, fmt.Errorf("failed to close data transfer: %w", err)
	}

	if err := client.Quit(); err != nil {
		return Receipt{}, fmt.Errorf("failed to quit SMTP session: %w", err)
	}

	return Receipt{MessageID: messageID}, nil
}

// Verify opens a session and authenticates without sending anything.
func (s *SMTPProvider) Verify(ctx context.Context) error {
	client, err := s.dialSMTPClient(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	if err := s.authenticate(client); err != nil {
		return err
	}
	return client.Quit()
}

// buildMessage renders the RFC 5322 message. HTML bodies are sent as
// multipart/alternative with a plain-text rendition first.
func buildMessage(from, fromName string, to []*gomail.Address, msg Message, now time.Time) ([]byte, string, error) {
	messageID := uuid.NewString() + "@" + senderDomain(from)

	var h gomail.Header
	h.SetDate(now)
	h.SetAddressList("From", []*gomail.Address{{Name: fromName, Address: from}})
	h.SetAddressList("To", to)
	h.SetSubject(msg.Subject)
	h.SetMessageID(messageID)

	var buf bytes.Buffer
	if !msg.HTML {
		h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
		w, err := gomail.CreateSingleInlineWriter(&buf, h)
		if err != nil {
			return nil, "", fmt.Errorf("failed to create message writer: %w", err)
		}
		if _, err := io.WriteString(w, msg.Body); err != nil {
			return nil, "", fmt.Errorf("failed to write body: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, "", fmt.Errorf("failed to close message writer: %w", err)
		}
		return buf.Bytes(), "<" + messageID + ">", nil
	}

	iw, err := gomail.CreateInlineWriter(&buf, h)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create message writer: %w", err)
	}
	parts := []struct {
		contentType string
		body        string
	}{
		{"text/plain", htmlToText(msg.Body)},
		{"text/html", msg.Body},
	}
	for _, p := range parts {
		var ph gomail.InlineHeader
		ph.SetContentType(p.contentType, map[string]string{"charset": "utf-8"})
		pw, err := iw.CreatePart(ph)
		if err != nil {
			return nil, "", fmt.Errorf("failed to create %s part: %w", p.contentType, err)
		}
		if _, err := io.WriteString(pw, p.body); err != nil {
			return nil, "", fmt.Errorf("failed to write %s part: %w", p.contentType, err)
		}
		if err := pw.Close(); err != nil {
			return nil, "", fmt.Errorf("failed to close %s part: %w", p.contentType, err)
		}
	}
	if err := iw.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close message writer: %w", err)
	}
	return buf.Bytes(), "<" + messageID + ">", nil
}

var textPolicy = bluemonday.StrictPolicy()

func htmlToText(body string) string {
	replacer := strings.NewReplacer("<br>", "\n", "<br/>", "\n", "<br />", "\n", "</p>", "</p>\n")
	text := textPolicy.Sanitize(replacer.Replace(body))
	return strings.TrimSpace(html.UnescapeString(text))
}

func senderDomain(addr string) string {
	if i := strings.LastIndex(addr, "@"); i >= 0 && i < len(addr)-1 {
		return addr[i+1:]
	}
	return "localhost"
}

func (s *SMTPProvider) dialSMTPClient(ctx context.Context) (*smtp.Client, error) {
	mode := s.cfg.EffectiveTLSMode()
	addr := net.JoinHostPort(s.cfg.SMTP.Host, strconv.Itoa(s.cfg.SMTP.Port))
	tlsConfig := &tls.Config{
		ServerName:         s.cfg.SMTP.Host,
		InsecureSkipVerify: s.cfg.SMTP.SkipVerify,
	}

	dialer := &net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	if mode == "smtps" {
		tlsConn := tls.Client(conn, tlsConfig)
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to connect via SMTPS: %w", err)
		}
		conn = tlsConn
	}

	client, err := smtp.NewClient(conn, s.cfg.SMTP.Host)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create SMTP client: %w", err)
	}

	if mode == "starttls" {
		if err := client.StartTLS(tlsConfig); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to start TLS: %w", err)
		}
	}
	return client, nil
}

func (s *SMTPProvider) authenticate(client *smtp.Client) error {
	if s.cfg.SMTP.User == "" || s.cfg.SMTP.Password == "" {
		return nil
	}

	var auth smtp.Auth
	switch strings.ToLower(strings.TrimSpace(s.cfg.SMTP.AuthType)) {
	case "login":
		auth = &loginAuth{username: s.cfg.SMTP.User, password: s.cfg.SMTP.Password}
	default:
		auth = smtp.PlainAuth("", s.cfg.SMTP.User, s.cfg.SMTP.Password, s.cfg.SMTP.Host)
	}

	if err := client.Auth(auth); err != nil {
		return fmt.Errorf("SMTP authentication failed: %w", err)
	}
	return nil
}

// loginAuth implements SMTP LOGIN authentication
type loginAuth struct {
	username, password string
}

func (a *loginAuth) Start(_ *smtp.ServerInfo) (string, []byte, error) {
	return "LOGIN", []byte{}, nil
}

func (a *loginAuth) Next(fromServer []byte, more bool) ([]byte, error) {
	if more {
		switch string(fromServer) {
		case "Username:":
			return []byte(a.username), nil
		case "Password:":
			return []byte(a.password), nil
		default:
			return nil, fmt.Errorf("unexpected server challenge: %s", fromServer)
		}
	}
	return nil, nil
}

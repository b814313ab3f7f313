package mailer

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	gomail "github.com/emersion/go-message/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fte-hq/fte-connectors/internal/apperrors"
	"github.com/fte-hq/fte-connectors/internal/config"
)

// fakeSMTPServer accepts a single session and records the envelope.
type fakeSMTPServer struct {
	ln   net.Listener
	mu   sync.Mutex
	from string
	rcpt []string
	data string
	done chan struct{}
}

func startFakeSMTPServer(t *testing.T) *fakeSMTPServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := &fakeSMTPServer{ln: ln, done: make(chan struct{})}
	go s.serve()
	t.Cleanup(func() { ln.Close() })
	return s
}

func (s *fakeSMTPServer) port() int {
	return s.ln.Addr().(*net.TCPAddr).Port
}

func (s *fakeSMTPServer) serve() {
	defer close(s.done)
	conn, err := s.ln.Accept()
	if err != nil {
		return
	}
	defer conn.Close()

	r := bufio.NewReader(conn)
	reply := func(line string) { _, _ = io.WriteString(conn, line+"\r\n") }
	reply("220 fake ESMTP ready")

	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\r\n")
		cmd := strings.ToUpper(line)
		switch {
		case strings.HasPrefix(cmd, "EHLO"), strings.HasPrefix(cmd, "HELO"):
			reply("250 fake")
		case strings.HasPrefix(cmd, "MAIL FROM:"):
			s.mu.Lock()
			s.from = strings.Trim(line[len("MAIL FROM:"):], "<> ")
			s.mu.Unlock()
			reply("250 OK")
		case strings.HasPrefix(cmd, "RCPT TO:"):
			s.mu.Lock()
			s.rcpt = append(s.rcpt, strings.Trim(line[len("RCPT TO:"):], "<> "))
			s.mu.Unlock()
			reply("250 OK")
		case cmd == "DATA":
			reply("354 go ahead")
			var data strings.Builder
			for {
				l, err := r.ReadString('\n')
				if err != nil {
					return
				}
				if l == ".\r\n" {
					break
				}
				data.WriteString(l)
			}
			s.mu.Lock()
			s.data = data.String()
			s.mu.Unlock()
			reply("250 queued")
		case cmd == "QUIT":
			reply("221 bye")
			return
		default:
			reply("502 not implemented")
		}
	}
}

func testEmailConfig(port int) *config.EmailConfig {
	cfg := &config.EmailConfig{From: "agent@example.com", FromName: "AI Employee"}
	cfg.SMTP.Host = "127.0.0.1"
	cfg.SMTP.Port = port
	cfg.SMTP.TLSMode = "none"
	return cfg
}

func TestSMTPProvider_Send(t *testing.T) {
	server := startFakeSMTPServer(t)
	provider := NewSMTPProvider(testEmailConfig(server.port()))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	receipt, err := provider.Send(ctx, Message{
		To:      "alice@example.com, Bob <bob@example.com>",
		Subject: "Quarterly report",
		Body:    "See attached summary.",
	})
	require.NoError(t, err)
	<-server.done

	assert.True(t, strings.HasPrefix(receipt.MessageID, "<"))
	assert.True(t, strings.HasSuffix(receipt.MessageID, "@example.com>"))

	server.mu.Lock()
	defer server.mu.Unlock()
	assert.Equal(t, "agent@example.com", server.from)
	assert.Equal(t, []string{"alice@example.com", "bob@example.com"}, server.rcpt)
	assert.Contains(t, server.data, "Subject: Quarterly report")
	assert.Contains(t, server.data, "See attached summary.")
}

func TestSMTPProvider_SendRejectsBadRecipient(t *testing.T) {
	provider := NewSMTPProvider(testEmailConfig(1))

	_, err := provider.Send(context.Background(), Message{To: "not an address", Subject: "s", Body: "b"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrValidation))
}

func TestSMTPProvider_SendConnectionFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	provider := NewSMTPProvider(testEmailConfig(port))
	_, err = provider.Send(context.Background(), Message{To: "alice@example.com", Subject: "s", Body: "b"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect to SMTP server")
}

func TestBuildMessage_PlainText(t *testing.T) {
	to, err := gomail.ParseAddressList("alice@example.com")
	require.NoError(t, err)

	raw, id, err := buildMessage("agent@example.com", "", to, Message{Subject: "Hello", Body: "plain body"}, time.Unix(0, 0))
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	mr, err := gomail.CreateReader(bytes.NewReader(raw))
	require.NoError(t, err)

	subject, err := mr.Header.Subject()
	require.NoError(t, err)
	assert.Equal(t, "Hello", subject)

	part, err := mr.NextPart()
	require.NoError(t, err)
	body, err := io.ReadAll(part.Body)
	require.NoError(t, err)
	assert.Equal(t, "plain body", string(body))
}

func TestBuildMessage_HTMLHasTextAlternative(t *testing.T) {
	to, err := gomail.ParseAddressList("alice@example.com")
	require.NoError(t, err)

	htmlBody := "<p>Hi &amp; welcome</p><p><b>Agenda</b></p>"
	raw, _, err := buildMessage("agent@example.com", "Agent", to, Message{Subject: "Hi", Body: htmlBody, HTML: true}, time.Now())
	require.NoError(t, err)

	mr, err := gomail.CreateReader(bytes.NewReader(raw))
	require.NoError(t, err)

	bodies := map[string]string{}
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		h, ok := part.Header.(*gomail.InlineHeader)
		require.True(t, ok)
		ct, _, err := h.ContentType()
		require.NoError(t, err)
		b, err := io.ReadAll(part.Body)
		require.NoError(t, err)
		bodies[ct] = string(b)
	}

	assert.Equal(t, htmlBody, bodies["text/html"])
	assert.Contains(t, bodies["text/plain"], "Hi & welcome")
	assert.Contains(t, bodies["text/plain"], "Agenda")
	assert.NotContains(t, bodies["text/plain"], "<p>")
}

func TestSenderDomain(t *testing.T) {
	assert.Equal(t, "example.com", senderDomain("agent@example.com"))
	assert.Equal(t, "localhost", senderDomain("agent"))
	assert.Equal(t, "localhost", senderDomain("agent@"))
}

func TestLoginAuth(t *testing.T) {
	auth := &loginAuth{username: "user", password: "pass"}

	mech, _, err := auth.Start(nil)
	require.NoError(t, err)
	assert.Equal(t, "LOGIN", mech)

	resp, err := auth.Next([]byte("Username:"), true)
	require.NoError(t, err)
	assert.Equal(t, "user", string(resp))

	resp, err = auth.Next([]byte("Password:"), true)
	require.NoError(t, err)
	assert.Equal(t, "pass", string(resp))

	_, err = auth.Next([]byte("Other:"), true)
	assert.Error(t, err)
	assert.Empty(t, mustNext(t, auth))
}

func mustNext(t *testing.T, a *loginAuth) []byte {
	t.Helper()
	resp, err := a.Next(nil, false)
	require.NoError(t, err)
	return resp
}

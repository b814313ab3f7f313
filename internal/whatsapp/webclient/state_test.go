package webclient

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fte-hq/fte-connectors/internal/config"
	"github.com/fte-hq/fte-connectors/internal/whatsapp"
)

type recorder struct {
	events []string
}

func (r *recorder) hooks() whatsapp.Events {
	return whatsapp.Events{
		OnQR:            func(code string) { r.events = append(r.events, "qr:"+code) },
		OnAuthenticated: func() { r.events = append(r.events, "authenticated") },
		OnReady:         func() { r.events = append(r.events, "ready") },
		OnAuthFailure:   func(reason string) { r.events = append(r.events, "auth_failure") },
		OnDisconnected:  func(reason string) { r.events = append(r.events, "disconnected:"+reason) },
	}
}

func TestTrackerPairingFlow(t *testing.T) {
	var rec recorder
	var tr tracker
	events := rec.hooks()

	assert.False(t, tr.step(probe{QR: "ref-1"}, events))
	assert.False(t, tr.step(probe{QR: "ref-1"}, events))
	assert.False(t, tr.step(probe{QR: "ref-2"}, events))
	assert.False(t, tr.step(probe{Loading: true}, events))
	assert.True(t, tr.step(probe{Ready: true}, events))
	assert.False(t, tr.step(probe{Ready: true}, events))

	assert.Equal(t, []string{"qr:ref-1", "qr:ref-2", "authenticated", "ready"}, rec.events)
}

func TestTrackerRestoredSession(t *testing.T) {
	var rec recorder
	var tr tracker

	assert.False(t, tr.step(probe{Loading: true}, rec.hooks()))
	assert.True(t, tr.step(probe{Ready: true}, rec.hooks()))
	assert.Equal(t, []string{"authenticated", "ready"}, rec.events)
}

func TestTrackerLogoutAndFailedPairing(t *testing.T) {
	var rec recorder
	var tr tracker
	events := rec.hooks()

	tr.step(probe{Ready: true}, events)
	tr.step(probe{QR: "ref-9"}, events)
	assert.Equal(t, []string{"authenticated", "ready", "disconnected:LOGOUT", "qr:ref-9"}, rec.events)

	rec.events = nil
	tr.step(probe{Loading: true}, events)
	tr.step(probe{QR: "ref-10"}, events)
	assert.Equal(t, []string{"authenticated", "auth_failure", "qr:ref-10"}, rec.events)
}

func TestTrackerNilHooks(t *testing.T) {
	var tr tracker
	assert.NotPanics(t, func() {
		tr.step(probe{QR: "x"}, whatsapp.Events{})
		tr.step(probe{Ready: true}, whatsapp.Events{})
	})
}

func TestParseProbe(t *testing.T) {
	p := parseProbe(map[string]any{"qr": "abc", "loading": false, "ready": true})
	assert.Equal(t, probe{QR: "abc", Ready: true}, p)
	assert.Equal(t, probe{}, parseProbe(nil))
}

func TestParseChats(t *testing.T) {
	chats := parseChats([]any{
		map[string]any{"name": "Alice Smith", "unread": float64(3), "group": false},
		map[string]any{"name": "Team", "unread": 0, "group": true},
		map[string]any{"name": "  "},
		"garbage",
	})

	require.Len(t, chats, 2)
	assert.Equal(t, whatsapp.Conversation{ID: "Alice Smith", Name: "Alice Smith", UnreadCount: 3}, chats[0])
	assert.Equal(t, whatsapp.Conversation{ID: "Team", Name: "Team", IsGroup: true}, chats[1])
	assert.Empty(t, parseChats(nil))
}

func TestParseIncoming(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	msg, ok := parseIncoming([]any{map[string]any{
		"author": "Alice",
		"chat":   "Alice",
		"body":   "ping about the llm",
		"ts":     float64(1772355600000),
	}}, now)
	require.True(t, ok)
	assert.Equal(t, "Alice", msg.ContactName)
	assert.Equal(t, "ping about the llm", msg.Body)
	assert.Equal(t, time.UnixMilli(1772355600000).UTC(), msg.Timestamp)

	msg, ok = parseIncoming([]any{map[string]any{"pushName": "Bob", "body": "hi"}}, now)
	require.True(t, ok)
	assert.Equal(t, now, msg.Timestamp)
	assert.Equal(t, "Bob", whatsapp.SenderLabel(msg))

	_, ok = parseIncoming([]any{map[string]any{"body": ""}}, now)
	assert.False(t, ok)
	_, ok = parseIncoming(nil, now)
	assert.False(t, ok)
}

func TestSplitLines(t *testing.T) {
	assert.Equal(t, []string{"one"}, splitLines("one"))
	assert.Equal(t, []string{"one", "", "three"}, splitLines("one\r\n\nthree"))
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := &config.WhatsAppConfig{
		SessionDir:  "/tmp/wa",
		Headless:    true,
		BrowserArgs: []string{"--no-sandbox"},
	}
	opts := OptionsFromConfig(cfg)
	assert.Equal(t, "/tmp/wa", opts.SessionDir)
	assert.True(t, opts.Headless)
	assert.Equal(t, []string{"--no-sandbox"}, opts.Args)

	client := New(opts, whatsapp.Events{})
	assert.Equal(t, defaultURL, client.opts.URL)
	assert.Equal(t, time.Second, client.opts.PollInterval)
}

func TestClientNotStarted(t *testing.T) {
	client := New(Options{}, whatsapp.Events{})

	_, err := client.Chats(context.Background())
	assert.Error(t, err)
	assert.Error(t, client.SendText(context.Background(), "Alice", "hi"))
	assert.NoError(t, client.Close())
}

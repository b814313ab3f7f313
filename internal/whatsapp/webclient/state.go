package webclient

import (
	"strings"
	"time"

	"github.com/fte-hq/fte-connectors/internal/whatsapp"
)

// probe is a snapshot of the WhatsApp Web page.
type probe struct {
	QR      string
	Loading bool
	Ready   bool
}

func parseProbe(v any) probe {
	m, _ := v.(map[string]any)
	return probe{
		QR:      stringField(m, "qr"),
		Loading: boolField(m, "loading"),
		Ready:   boolField(m, "ready"),
	}
}

// tracker turns successive probes into lifecycle events.
type tracker struct {
	lastQR        string
	authenticated bool
	ready         bool
}

// step fires events for p and reports whether the page just became ready.
func (t *tracker) step(p probe, events whatsapp.Events) bool {
	if p.QR != "" && p.QR != t.lastQR {
		switch {
		case t.ready:
			t.ready = false
			t.authenticated = false
			fire1(events.OnDisconnected, "LOGOUT")
		case t.authenticated:
			t.authenticated = false
			fire1(events.OnAuthFailure, "pairing was not completed")
		}
		t.lastQR = p.QR
		fire1(events.OnQR, p.QR)
		return false
	}

	if p.Loading && !t.authenticated && t.lastQR != "" {
		t.authenticated = true
		fire(events.OnAuthenticated)
	}

	if p.Ready && !t.ready {
		if !t.authenticated {
			t.authenticated = true
			fire(events.OnAuthenticated)
		}
		t.ready = true
		fire(events.OnReady)
		return true
	}
	return false
}

func fire(fn func()) {
	if fn != nil {
		fn()
	}
}

func fire1(fn func(string), arg string) {
	if fn != nil {
		fn(arg)
	}
}

// parseChats converts the chat-list script result.
func parseChats(v any) []whatsapp.Conversation {
	rows, _ := v.([]any)
	chats := make([]whatsapp.Conversation, 0, len(rows))
	for _, row := range rows {
		m, ok := row.(map[string]any)
		if !ok {
			continue
		}
		name := strings.TrimSpace(stringField(m, "name"))
		if name == "" {
			continue
		}
		chats = append(chats, whatsapp.Conversation{
			ID:          name,
			Name:        name,
			IsGroup:     boolField(m, "group"),
			UnreadCount: intField(m, "unread"),
		})
	}
	return chats
}

// parseIncoming converts the payload pushed by the message observer.
func parseIncoming(args []any, now time.Time) (whatsapp.RawMessage, bool) {
	if len(args) == 0 {
		return whatsapp.RawMessage{}, false
	}
	m, ok := args[0].(map[string]any)
	if !ok {
		return whatsapp.RawMessage{}, false
	}
	body := stringField(m, "body")
	if body == "" {
		return whatsapp.RawMessage{}, false
	}

	ts := now
	if ms := intField(m, "ts"); ms > 0 {
		ts = time.UnixMilli(int64(ms))
	}
	return whatsapp.RawMessage{
		ContactName: stringField(m, "author"),
		PushName:    stringField(m, "pushName"),
		Number:      stringField(m, "number"),
		Body:        body,
		Timestamp:   ts.UTC(),
		IsGroup:     boolField(m, "group"),
		ChatName:    stringField(m, "chat"),
	}, true
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func boolField(m map[string]any, key string) bool {
	b, _ := m[key].(bool)
	return b
}

func intField(m map[string]any, key string) int {
	switch n := m[key].(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}

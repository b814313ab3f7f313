// Package whatsapp manages a single WhatsApp Web session: client lifecycle,
// readiness, contact resolution and keyword-filtered message monitoring.
package whatsapp

import (
	"context"
	"time"
)

// Conversation is a chat thread visible to the session.
type Conversation struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	IsGroup     bool   `json:"isGroup"`
	UnreadCount int    `json:"unreadCount"`
}

// RawMessage is a message event as delivered by the underlying client.
type RawMessage struct {
	ContactName string
	PushName    string
	Number      string
	Body        string
	Timestamp   time.Time
	IsGroup     bool
	ChatName    string
}

// IncomingMessage is a keyword-matched message handed to monitors.
type IncomingMessage struct {
	From      string    `json:"from"`
	Body      string    `json:"body"`
	Timestamp time.Time `json:"timestamp"`
	IsGroup   bool      `json:"isGroup"`
	ChatName  string    `json:"chatName"`
}

// Events are the callbacks a client fires during its lifetime. Any field
// may be nil.
type Events struct {
	OnQR            func(code string)
	OnAuthenticated func()
	OnReady         func()
	OnAuthFailure   func(reason string)
	OnDisconnected  func(reason string)
	OnMessage       func(msg RawMessage)
}

// Client is the underlying messaging client.
type Client interface {
	// Start launches the client. It must return once the client is running;
	// readiness is reported later through Events.OnReady.
	Start(ctx context.Context) error
	Chats(ctx context.Context) ([]Conversation, error)
	SendText(ctx context.Context, chatID, body string) error
	Close() error
}

// ClientFactory constructs a client wired to the given events.
type ClientFactory func(events Events) (Client, error)

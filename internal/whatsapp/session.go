package whatsapp

import (
	"context"
	"errors"
	"log"
	"os"
	"sync"
	"time"

	"github.com/fte-hq/fte-connectors/internal/apperrors"
	"github.com/fte-hq/fte-connectors/internal/config"
	"github.com/fte-hq/fte-connectors/internal/metrics"
)

// DefaultReadyTimeout bounds how long Initialize waits for the client.
const DefaultReadyTimeout = 120 * time.Second

// MessageHandler receives keyword-matched messages.
type MessageHandler func(msg IncomingMessage)

// Status is a non-blocking snapshot of the session.
type Status struct {
	Initialized bool `json:"initialized"`
	Ready       bool `json:"ready"`
}

// SendResult describes a delivered message.
type SendResult struct {
	Contact   string    `json:"contact"`
	ChatID    string    `json:"-"`
	Timestamp time.Time `json:"timestamp"`
}

// Options configure a Session.
type Options struct {
	ReadyTimeout time.Duration
	Keywords     []string
	Logger       *log.Logger
	// OnQR is called with every pairing code, typically to render it.
	OnQR func(code string)
}

// startAttempt tracks one call to Client.Start shared by all waiters.
type startAttempt struct {
	done chan struct{}
	err  error
}

// Session owns at most one underlying client and its readiness state.
type Session struct {
	factory ClientFactory
	timeout time.Duration
	filter  *KeywordFilter
	logger  *log.Logger
	onQR    func(string)
	now     func() time.Time

	// clientCtx outlives any request so the client keeps running after an
	// Initialize caller gives up.
	clientCtx    context.Context
	cancelClient context.CancelFunc

	mu        sync.Mutex
	client    Client
	attempt   *startAttempt
	ready     bool
	readyCh   chan struct{}
	readyOnce sync.Once

	deliverMu sync.Mutex
	handlers  []MessageHandler
}

// NewSession creates an uninitialized session.
func NewSession(factory ClientFactory, opts Options) *Session {
	if opts.ReadyTimeout <= 0 {
		opts.ReadyTimeout = DefaultReadyTimeout
	}
	if len(opts.Keywords) == 0 {
		opts.Keywords = config.DefaultKeywords
	}
	if opts.Logger == nil {
		opts.Logger = log.New(os.Stderr, "[WHATSAPP] ", log.LstdFlags)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		factory:      factory,
		timeout:      opts.ReadyTimeout,
		filter:       NewKeywordFilter(opts.Keywords),
		logger:       opts.Logger,
		onQR:         opts.OnQR,
		now:          time.Now,
		clientCtx:    ctx,
		cancelClient: cancel,
		readyCh:      make(chan struct{}),
	}
}

// Initialize constructs and starts the client on first use, then waits for
// readiness. It returns immediately once the session is ready. Concurrent
// callers share the same client and wait on the same readiness signal. The
// client starts in the background, so every caller is bounded by the ready
// timeout and ctx. On Timeout the client is left running.
func (s *Session) Initialize(ctx context.Context) (bool, error) {
	s.mu.Lock()
	if s.ready {
		s.mu.Unlock()
		return true, nil
	}
	if s.clientCtx.Err() != nil {
		s.mu.Unlock()
		return false, apperrors.New(apperrors.KindNotReady, "session is shut down")
	}

	attempt := s.attempt
	if s.client == nil {
		client, err := s.factory(s.events())
		if err != nil {
			s.mu.Unlock()
			return false, apperrors.Wrap(apperrors.KindTransport, err, "failed to create client")
		}
		s.client = client
		attempt = &startAttempt{done: make(chan struct{})}
		s.attempt = attempt
		s.mu.Unlock()

		s.logger.Println("Starting WhatsApp client...")
		go s.start(client, attempt)
	} else {
		s.mu.Unlock()
	}

	return s.waitReady(ctx, attempt)
}

func (s *Session) start(client Client, attempt *startAttempt) {
	err := client.Start(s.clientCtx)

	s.mu.Lock()
	if err != nil {
		// Let a later Initialize try again with a fresh client.
		s.client = nil
		s.attempt = nil
	}
	attempt.err = err
	s.mu.Unlock()
	close(attempt.done)

	if err != nil {
		s.logger.Printf("Client failed to start: %v", err)
		_ = client.Close()
	}
}

func (s *Session) waitReady(ctx context.Context, attempt *startAttempt) (bool, error) {
	timer := time.NewTimer(s.timeout)
	defer timer.Stop()

	select {
	case <-attempt.done:
		if attempt.err != nil {
			return false, apperrors.Wrap(apperrors.KindTransport, attempt.err, "failed to start client")
		}
	case <-s.readyCh:
		return true, nil
	case <-timer.C:
		return false, s.timeoutError()
	case <-ctx.Done():
		return false, ctx.Err()
	}

	select {
	case <-s.readyCh:
		return true, nil
	case <-timer.C:
		return false, s.timeoutError()
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

func (s *Session) timeoutError() error {
	s.logger.Printf("Client not ready after %v; leaving it running", s.timeout)
	return apperrors.New(apperrors.KindTimeout, "Timeout waiting for WhatsApp to be ready")
}

func (s *Session) events() Events {
	return Events{
		OnQR: func(code string) {
			metrics.SessionEvents.WithLabelValues("qr").Inc()
			s.logger.Println("Scan QR code with WhatsApp on your phone")
			if s.onQR != nil {
				s.onQR(code)
			}
		},
		OnAuthenticated: func() {
			metrics.SessionEvents.WithLabelValues("authenticated").Inc()
			s.logger.Println("WhatsApp authenticated")
		},
		OnReady: s.markReady,
		OnAuthFailure: func(reason string) {
			metrics.SessionEvents.WithLabelValues("auth_failure").Inc()
			s.logger.Printf("Authentication failed: %s", reason)
		},
		OnDisconnected: func(reason string) {
			metrics.SessionEvents.WithLabelValues("disconnected").Inc()
			s.logger.Printf("WhatsApp disconnected: %s", reason)
		},
		OnMessage: s.deliver,
	}
}

func (s *Session) markReady() {
	metrics.SessionEvents.WithLabelValues("ready").Inc()
	s.mu.Lock()
	if s.clientCtx.Err() != nil {
		s.mu.Unlock()
		s.logger.Println("Ignoring ready event after shutdown")
		return
	}
	s.ready = true
	s.mu.Unlock()
	s.readyOnce.Do(func() {
		metrics.SessionReady.Set(1)
		s.logger.Println("WhatsApp client is ready")
		close(s.readyCh)
	})
}

// readyClient returns the client when the session is ready.
func (s *Session) readyClient() (Client, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ready || s.client == nil {
		return nil, false
	}
	return s.client, true
}

// SendMessage delivers body to the first chat whose name contains
// contactFragment, ignoring case.
func (s *Session) SendMessage(ctx context.Context, contactFragment, body string) (SendResult, error) {
	client, ok := s.readyClient()
	if !ok {
		return SendResult{}, apperrors.New(apperrors.KindNotReady, "WhatsApp not ready. Call /api/whatsapp/initialize first")
	}
	if contactFragment == "" {
		return SendResult{}, apperrors.New(apperrors.KindValidation, "contact is required")
	}

	chats, err := client.Chats(ctx)
	if err != nil {
		metrics.MessagesSent.WithLabelValues("error").Inc()
		return SendResult{}, apperrors.Wrap(apperrors.KindTransport, err, "failed to load chats")
	}

	chat, found := findConversation(chats, contactFragment)
	if !found {
		metrics.MessagesSent.WithLabelValues("not_found").Inc()
		return SendResult{}, apperrors.New(apperrors.KindContactNotFound, "Contact not found: %s", contactFragment)
	}

	if err := client.SendText(ctx, chat.ID, body); err != nil {
		metrics.MessagesSent.WithLabelValues("error").Inc()
		return SendResult{}, apperrors.Wrap(apperrors.KindTransport, err, "failed to send message")
	}

	metrics.MessagesSent.WithLabelValues("sent").Inc()
	s.logger.Printf("Message sent to %s", chat.Name)
	return SendResult{
		Contact:   chat.Name,
		ChatID:    chat.ID,
		Timestamp: s.now().UTC(),
	}, nil
}

// ListConversations returns the current chats, or nil when the session is
// not ready or the client fails.
func (s *Session) ListConversations(ctx context.Context) []Conversation {
	client, ok := s.readyClient()
	if !ok {
		return nil
	}
	chats, err := client.Chats(ctx)
	if err != nil {
		s.logger.Printf("Failed to list chats: %v", err)
		return nil
	}
	return chats
}

// SetKeywords replaces the keyword set used to pick messages. An empty set
// restores the defaults.
func (s *Session) SetKeywords(keywords []string) {
	if len(keywords) == 0 {
		keywords = config.DefaultKeywords
	}
	filter := NewKeywordFilter(keywords)
	s.mu.Lock()
	s.filter = filter
	s.mu.Unlock()
	s.logger.Printf("Keyword filter updated: %v", filter.Keywords())
}

// OnMessage subscribes handler to keyword-matched messages.
func (s *Session) OnMessage(handler MessageHandler) {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()
	s.handlers = append(s.handlers, handler)
}

// deliver filters a raw message and hands it to every handler in
// registration order. Deliveries are serialized.
func (s *Session) deliver(raw RawMessage) {
	s.mu.Lock()
	filter := s.filter
	s.mu.Unlock()
	if !filter.Match(raw.Body) {
		metrics.MessagesReceived.WithLabelValues("false").Inc()
		return
	}
	metrics.MessagesReceived.WithLabelValues("true").Inc()

	ts := raw.Timestamp
	if ts.IsZero() {
		ts = s.now()
	}
	msg := IncomingMessage{
		From:      SenderLabel(raw),
		Body:      raw.Body,
		Timestamp: ts.UTC(),
		IsGroup:   raw.IsGroup,
		ChatName:  raw.ChatName,
	}
	s.logger.Printf("Important message from %s", msg.From)

	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()
	for _, handler := range s.handlers {
		s.safeCall(handler, msg)
	}
}

func (s *Session) safeCall(handler MessageHandler, msg IncomingMessage) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Printf("Message handler panicked: %v", r)
		}
	}()
	handler(msg)
}

// Status reports whether a client exists and whether it is ready.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{Initialized: s.client != nil, Ready: s.ready}
}

// Ready returns a channel closed once the session becomes ready.
func (s *Session) Ready() <-chan struct{} {
	return s.readyCh
}

// Shutdown closes the underlying client, if any. The session cannot be
// initialized again afterwards.
func (s *Session) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	client := s.client
	s.client = nil
	s.ready = false
	s.cancelClient()
	s.mu.Unlock()

	metrics.SessionReady.Set(0)
	if client == nil {
		return nil
	}

	done := make(chan error, 1)
	go func() { done <- client.Close() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return errors.Join(ctx.Err(), errors.New("client close did not finish"))
	}
}

// Package webclient drives WhatsApp Web in a persistent Chromium profile
// through Playwright. The profile directory keeps the paired session across
// restarts.
package webclient

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/fte-hq/fte-connectors/internal/config"
	"github.com/fte-hq/fte-connectors/internal/whatsapp"
)

const (
	defaultURL  = "https://web.whatsapp.com"
	bindingName = "fteOnMessage"

	composeSelector = `footer div[contenteditable="true"]`
)

// Options configure the browser.
type Options struct {
	URL          string
	SessionDir   string
	Headless     bool
	Args         []string
	PollInterval time.Duration
	// SkipInstall assumes the driver and browsers are already present.
	SkipInstall bool
	Logger      *log.Logger
}

// OptionsFromConfig maps the WhatsApp section of the app config.
func OptionsFromConfig(cfg *config.WhatsAppConfig) Options {
	return Options{
		SessionDir:  cfg.SessionDir,
		Headless:    cfg.Headless,
		Args:        cfg.BrowserArgs,
		SkipInstall: os.Getenv("PLAYWRIGHT_PREINSTALLED") == "1",
	}
}

// Client implements whatsapp.Client on top of a Playwright page.
type Client struct {
	opts   Options
	events whatsapp.Events
	logger *log.Logger

	// mu serializes page interaction; the page is not safe for concurrent
	// navigation.
	mu      sync.Mutex
	pw      *playwright.Playwright
	context playwright.BrowserContext
	page    playwright.Page
	stop    context.CancelFunc
	done    chan struct{}
}

// Factory returns a whatsapp.ClientFactory building browser clients.
func Factory(opts Options) whatsapp.ClientFactory {
	return func(events whatsapp.Events) (whatsapp.Client, error) {
		return New(opts, events), nil
	}
}

// New creates an unstarted client.
func New(opts Options, events whatsapp.Events) *Client {
	if opts.URL == "" {
		opts.URL = defaultURL
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	if opts.Logger == nil {
		opts.Logger = log.New(os.Stderr, "[BROWSER] ", log.LstdFlags)
	}
	return &Client{opts: opts, events: events, logger: opts.Logger}
}

// Start launches Chromium, opens WhatsApp Web and begins watching the page.
func (c *Client) Start(ctx context.Context) error {
	if !c.opts.SkipInstall {
		if err := playwright.Install(&playwright.RunOptions{Browsers: []string{"chromium"}}); err != nil {
			return fmt.Errorf("could not install playwright browsers: %w", err)
		}
	}

	pw, err := playwright.Run()
	if err != nil {
		return fmt.Errorf("could not start playwright: %w", err)
	}

	if err := os.MkdirAll(c.opts.SessionDir, 0o700); err != nil {
		_ = pw.Stop()
		return fmt.Errorf("could not create session directory: %w", err)
	}

	bctx, err := pw.Chromium.LaunchPersistentContext(c.opts.SessionDir, playwright.BrowserTypeLaunchPersistentContextOptions{
		Headless: playwright.Bool(c.opts.Headless),
		Args:     c.opts.Args,
		Viewport: &playwright.Size{Width: 1280, Height: 900},
	})
	if err != nil {
		_ = pw.Stop()
		return fmt.Errorf("could not launch browser: %w", err)
	}

	var page playwright.Page
	if pages := bctx.Pages(); len(pages) > 0 {
		page = pages[0]
	} else if page, err = bctx.NewPage(); err != nil {
		_ = bctx.Close()
		_ = pw.Stop()
		return fmt.Errorf("could not create page: %w", err)
	}

	err = page.ExposeFunction(bindingName, func(args ...any) any {
		if msg, ok := parseIncoming(args, time.Now()); ok && c.events.OnMessage != nil {
			c.events.OnMessage(msg)
		}
		return nil
	})
	if err != nil {
		_ = bctx.Close()
		_ = pw.Stop()
		return fmt.Errorf("could not expose message binding: %w", err)
	}

	page.OnClose(func(playwright.Page) {
		fire1(c.events.OnDisconnected, "page closed")
	})

	if _, err := page.Goto(c.opts.URL, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	}); err != nil {
		_ = bctx.Close()
		_ = pw.Stop()
		return fmt.Errorf("could not open %s: %w", c.opts.URL, err)
	}

	watchCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.pw, c.context, c.page = pw, bctx, page
	c.stop = cancel
	c.done = make(chan struct{})
	c.mu.Unlock()

	go c.watch(watchCtx)
	return nil
}

// watch probes the page until ctx ends, translating state changes into
// events.
func (c *Client) watch(ctx context.Context) {
	defer close(c.done)
	ticker := time.NewTicker(c.opts.PollInterval)
	defer ticker.Stop()

	var t tracker
	for {
		c.mu.Lock()
		page := c.page
		c.mu.Unlock()
		if page == nil {
			return
		}

		result, err := page.Evaluate(probeScript)
		if err != nil {
			if page.IsClosed() {
				return
			}
			c.logger.Printf("Page probe failed: %v", err)
		} else if t.step(parseProbe(result), c.events) {
			if _, err := page.Evaluate(observerScript); err != nil {
				c.logger.Printf("Failed to install message observer: %v", err)
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (c *Client) currentPage() (playwright.Page, error) {
	if c.page == nil {
		return nil, errors.New("browser not started")
	}
	return c.page, nil
}

// Chats lists the conversations shown in the chat pane.
func (c *Client) Chats(ctx context.Context) ([]whatsapp.Conversation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	page, err := c.currentPage()
	if err != nil {
		return nil, err
	}

	result, err := page.Evaluate(chatsScript)
	if err != nil {
		return nil, fmt.Errorf("failed to read chat list: %w", err)
	}
	return parseChats(result), nil
}

// SendText opens the chat titled chatID and sends body.
func (c *Client) SendText(ctx context.Context, chatID, body string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	page, err := c.currentPage()
	if err != nil {
		return err
	}

	opened, err := page.Evaluate(openChatScript, chatID)
	if err != nil {
		return fmt.Errorf("failed to open chat %s: %w", chatID, err)
	}
	if ok, _ := opened.(bool); !ok {
		return fmt.Errorf("chat %s is not in the chat list", chatID)
	}

	compose := page.Locator(composeSelector).Last()
	if err := compose.WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: playwright.Float(15000),
	}); err != nil {
		return fmt.Errorf("compose box did not appear: %w", err)
	}
	if err := compose.Click(); err != nil {
		return fmt.Errorf("failed to focus compose box: %w", err)
	}

	// Newlines would send early; Shift+Enter keeps them inside one message.
	for i, line := range splitLines(body) {
		if i > 0 {
			if err := page.Keyboard().Press("Shift+Enter"); err != nil {
				return fmt.Errorf("failed to type message: %w", err)
			}
		}
		if line == "" {
			continue
		}
		if err := page.Keyboard().InsertText(line); err != nil {
			return fmt.Errorf("failed to type message: %w", err)
		}
	}
	if err := page.Keyboard().Press("Enter"); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// Close stops watching and shuts the browser down.
func (c *Client) Close() error {
	c.mu.Lock()
	stop, done := c.stop, c.done
	bctx, pw := c.context, c.pw
	c.page, c.context, c.pw, c.stop = nil, nil, nil, nil
	c.mu.Unlock()

	if stop != nil {
		stop()
		<-done
	}

	var errs []error
	if bctx != nil {
		if err := bctx.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close browser: %w", err))
		}
	}
	if pw != nil {
		if err := pw.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop playwright: %w", err))
		}
	}
	return errors.Join(errs...)
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			lines = append(lines, trimCR(s[start:i]))
			start = i + 1
		}
	}
	return append(lines, trimCR(s[start:]))
}

func trimCR(s string) string {
	if len(s) > 0 && s[len(s)-1] == '\r' {
		return s[:len(s)-1]
	}
	return s
}

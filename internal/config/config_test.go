package config

import (
	"bytes"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Run("missing config file falls back to defaults", func(t *testing.T) {
		cfg, err := Load(t.TempDir())
		require.NoError(t, err)

		assert.Equal(t, 3001, cfg.WhatsApp.Port)
		assert.Equal(t, 120*time.Second, cfg.WhatsApp.ReadyTimeout)
		assert.Equal(t, DefaultKeywords, cfg.WhatsApp.Keywords)
		assert.Equal(t, "AI_Employee_Vault/Needs_Action", cfg.Actions.Dir)
		assert.Equal(t, "smtp.gmail.com", cfg.Email.SMTP.Host)
		assert.Equal(t, 587, cfg.Email.SMTP.Port)
		assert.Same(t, cfg, Get())
	})
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fte.yaml")
	content := `
whatsapp:
  port: 4010
  ready_timeout: 30s
  keywords: ["invoice"]
actions:
  dir: /tmp/vault/Needs_Action
email:
  smtp:
    host: mail.example.com
    port: 465
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, 4010, cfg.WhatsApp.Port)
	assert.Equal(t, 30*time.Second, cfg.WhatsApp.ReadyTimeout)
	assert.Equal(t, []string{"invoice"}, cfg.WhatsApp.Keywords)
	assert.Equal(t, "/tmp/vault/Needs_Action", cfg.Actions.Dir)
	assert.Equal(t, "mail.example.com", cfg.Email.SMTP.Host)
	assert.Equal(t, "smtps", cfg.Email.EffectiveTLSMode())
}

func TestLegacyEnvironmentVariables(t *testing.T) {
	t.Setenv("WHATSAPP_PORT", "3555")
	t.Setenv("GMAIL_EMAIL", "me@example.com")
	t.Setenv("GMAIL_PASSWORD", "app-password")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 3555, cfg.WhatsApp.Port)
	assert.Equal(t, "me@example.com", cfg.Email.SMTP.User)
	assert.Equal(t, "app-password", cfg.Email.SMTP.Password)
	assert.Equal(t, "me@example.com", cfg.Email.Sender())
}

func TestPrefixedEnvironmentOverride(t *testing.T) {
	t.Setenv("FTE_ACTIONS_DIR", "/srv/vault/inbox")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "/srv/vault/inbox", cfg.Actions.Dir)
}

func TestEffectiveTLSMode(t *testing.T) {
	tests := []struct {
		name string
		mode string
		port int
		want string
	}{
		{"explicit starttls", "starttls", 465, "starttls"},
		{"explicit ssl", "ssl", 587, "smtps"},
		{"explicit none", "none", 587, "none"},
		{"implicit smtps port", "", 465, "smtps"},
		{"implicit submission port", "", 587, "starttls"},
		{"mail sink port", "", 1025, "none"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var c EmailConfig
			c.SMTP.TLSMode = tt.mode
			c.SMTP.Port = tt.port
			assert.Equal(t, tt.want, c.EffectiveTLSMode())
		})
	}
}

func TestListenAddr(t *testing.T) {
	c := WhatsAppConfig{Port: 3001}
	assert.Equal(t, ":3001", c.ListenAddr())

	c.Host = "127.0.0.1"
	assert.Equal(t, "127.0.0.1:3001", c.ListenAddr())
}

func TestHotReloadNotifiesAndKeepsStdoutClean(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fte.yaml")
	require.NoError(t, os.WriteFile(path, []byte("whatsapp:\n  keywords: [\"invoice\"]\n"), 0o644))

	logs := &lockedBuffer{}
	SetLogger(log.New(logs, "", 0))
	t.Cleanup(func() { SetLogger(log.New(os.Stderr, "[CONFIG] ", log.LstdFlags)) })

	stdout := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = w
	t.Cleanup(func() { os.Stdout = stdout })

	changed := make(chan []string, 4)
	OnChange(func(c *Config) { changed <- c.WhatsApp.Keywords })

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"invoice"}, cfg.WhatsApp.Keywords)

	require.NoError(t, os.WriteFile(path, []byte("whatsapp:\n  keywords: [\"refund\"]\n"), 0o644))

	var keywords []string
	require.Eventually(t, func() bool {
		select {
		case keywords = <-changed:
		default:
		}
		return len(keywords) == 1 && keywords[0] == "refund"
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, []string{"refund"}, Get().WhatsApp.Keywords)

	os.Stdout = stdout
	require.NoError(t, w.Close())
	captured, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Empty(t, string(captured))
	assert.Contains(t, logs.String(), "Config file changed")
}

// lockedBuffer is written by the watcher goroutine and read by the test.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

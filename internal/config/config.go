package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

var (
	cfg       *Config
	mu        sync.RWMutex
	listeners []func(*Config)

	// logger writes to stderr: stdout is the protocol channel of email-mcp.
	logger = log.New(os.Stderr, "[CONFIG] ", log.LstdFlags)
)

// Config represents the application configuration
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	WhatsApp WhatsAppConfig `mapstructure:"whatsapp"`
	Actions  ActionsConfig  `mapstructure:"actions"`
	Email    EmailConfig    `mapstructure:"email"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Runner   RunnerConfig   `mapstructure:"runner"`
}

type AppConfig struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
}

type WhatsAppConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	SessionDir      string        `mapstructure:"session_dir"`
	ReadyTimeout    time.Duration `mapstructure:"ready_timeout"`
	Headless        bool          `mapstructure:"headless"`
	BrowserArgs     []string      `mapstructure:"browser_args"`
	Keywords        []string      `mapstructure:"keywords"`
	AutoInitialize  bool          `mapstructure:"auto_initialize"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type ActionsConfig struct {
	Dir    string `mapstructure:"dir"`
	Notify struct {
		Enabled bool   `mapstructure:"enabled"`
		Channel string `mapstructure:"channel"`
	} `mapstructure:"notify"`
}

type EmailConfig struct {
	From     string `mapstructure:"from"`
	FromName string `mapstructure:"from_name"`
	SMTP     struct {
		Host       string `mapstructure:"host"`
		Port       int    `mapstructure:"port"`
		User       string `mapstructure:"user"`
		Password   string `mapstructure:"password"`
		AuthType   string `mapstructure:"auth_type"`
		TLSMode    string `mapstructure:"tls_mode"`
		SkipVerify bool   `mapstructure:"skip_verify"`
	} `mapstructure:"smtp"`
	Keyring struct {
		Enabled bool   `mapstructure:"enabled"`
		Service string `mapstructure:"service"`
		FileDir string `mapstructure:"file_dir"`
	} `mapstructure:"keyring"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type LoggingConfig struct {
	// Output is "stderr", "stdout" or a file path.
	Output string `mapstructure:"output"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

type RunnerConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	HeartbeatSchedule string `mapstructure:"heartbeat_schedule"`
}

// DefaultKeywords is the keyword set used to pick incoming WhatsApp messages
// that need follow-up.
var DefaultKeywords = []string{
	"agentic",
	"ai agent",
	"autonomous ai",
	"llm",
	"claude",
	"gpt",
	"automation",
	"artificial intelligence",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "fte-connectors")
	v.SetDefault("app.env", "development")

	v.SetDefault("whatsapp.host", "")
	v.SetDefault("whatsapp.port", 3001)
	v.SetDefault("whatsapp.session_dir", "./browser_data/whatsapp")
	v.SetDefault("whatsapp.ready_timeout", 120*time.Second)
	v.SetDefault("whatsapp.headless", false)
	v.SetDefault("whatsapp.browser_args", []string{"--no-sandbox", "--disable-setuid-sandbox"})
	v.SetDefault("whatsapp.keywords", DefaultKeywords)
	v.SetDefault("whatsapp.auto_initialize", true)
	v.SetDefault("whatsapp.shutdown_timeout", 10*time.Second)

	v.SetDefault("actions.dir", "AI_Employee_Vault/Needs_Action")
	v.SetDefault("actions.notify.enabled", false)
	v.SetDefault("actions.notify.channel", "fte:actions")

	v.SetDefault("email.from", "")
	v.SetDefault("email.from_name", "")
	v.SetDefault("email.smtp.host", "smtp.gmail.com")
	v.SetDefault("email.smtp.port", 587)
	v.SetDefault("email.smtp.user", "")
	v.SetDefault("email.smtp.password", "")
	v.SetDefault("email.smtp.auth_type", "plain")
	v.SetDefault("email.smtp.tls_mode", "")
	v.SetDefault("email.smtp.skip_verify", false)
	v.SetDefault("email.keyring.enabled", true)
	v.SetDefault("email.keyring.service", "fte-email")
	v.SetDefault("email.keyring.file_dir", "~/.config/fte/credentials")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("logging.output", "stderr")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("runner.enabled", true)
	v.SetDefault("runner.heartbeat_schedule", "0 * * * * *")
}

// bindLegacyEnv keeps the environment variable names the Node and Python
// scripts used working alongside the FTE_ prefixed ones.
func bindLegacyEnv(v *viper.Viper) error {
	bindings := map[string][]string{
		"whatsapp.port":       {"FTE_WHATSAPP_PORT", "WHATSAPP_PORT"},
		"email.smtp.user":     {"FTE_EMAIL_SMTP_USER", "GMAIL_EMAIL"},
		"email.smtp.password": {"FTE_EMAIL_SMTP_PASSWORD", "GMAIL_PASSWORD"},
		"email.from":          {"FTE_EMAIL_FROM", "GMAIL_EMAIL"},
	}
	for key, envs := range bindings {
		args := append([]string{key}, envs...)
		if err := v.BindEnv(args...); err != nil {
			return fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}
	return nil
}

func newViper() (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	v.SetEnvPrefix("FTE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := bindLegacyEnv(v); err != nil {
		return nil, err
	}
	return v, nil
}

// Load reads fte.yaml from configDir (optional), applies environment
// overrides and stores the result for Get. When a file was read it is
// watched and the stored configuration is swapped on change.
func Load(configDir string) (*Config, error) {
	v, err := newViper()
	if err != nil {
		return nil, err
	}

	fileUsed := false
	if configDir != "" {
		v.SetConfigName("fte")
		v.AddConfigPath(configDir)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		} else {
			fileUsed = true
		}
	}

	loaded := &Config{}
	if err := v.Unmarshal(loaded); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	mu.Lock()
	cfg = loaded
	mu.Unlock()

	if fileUsed {
		v.WatchConfig()
		v.OnConfigChange(func(e fsnotify.Event) {
			reload(v, e.Name)
		})
	}

	return loaded, nil
}

// reload swaps in the changed file and hands it to every OnChange listener.
func reload(v *viper.Viper, name string) {
	mu.RLock()
	l := logger
	mu.RUnlock()
	l.Printf("Config file changed: %s", name)

	newCfg := &Config{}
	if err := v.Unmarshal(newCfg); err != nil {
		l.Printf("Failed to reload config: %v", err)
		return
	}

	mu.Lock()
	cfg = newCfg
	notify := append([]func(*Config){}, listeners...)
	mu.Unlock()

	for _, fn := range notify {
		fn(newCfg)
	}
	l.Println("Configuration reloaded successfully")
}

// SetLogger replaces the reload logger.
func SetLogger(l *log.Logger) {
	mu.Lock()
	defer mu.Unlock()
	logger = l
}

// OnChange registers fn to run after each successful hot reload.
func OnChange(fn func(*Config)) {
	mu.Lock()
	defer mu.Unlock()
	listeners = append(listeners, fn)
}

// LoadFromFile loads configuration from a specific file without watching it
// (useful for testing)
func LoadFromFile(configFile string) (*Config, error) {
	v, err := newViper()
	if err != nil {
		return nil, err
	}
	v.SetConfigFile(configFile)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	loaded := &Config{}
	if err := v.Unmarshal(loaded); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	mu.Lock()
	cfg = loaded
	mu.Unlock()
	return loaded, nil
}

// Get returns the current configuration (thread-safe)
func Get() *Config {
	mu.RLock()
	defer mu.RUnlock()
	return cfg
}

// ListenAddr returns the HTTP listen address for the WhatsApp API.
func (c *WhatsAppConfig) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Addr returns the Redis server address
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// EffectiveTLSMode resolves the SMTP TLS mode: "smtps" (implicit TLS),
// "starttls" or "none". An empty mode is derived from the port.
func (c *EmailConfig) EffectiveTLSMode() string {
	mode := strings.ToLower(strings.TrimSpace(c.SMTP.TLSMode))
	switch mode {
	case "smtps", "ssl", "tls":
		return "smtps"
	case "starttls":
		return "starttls"
	case "none", "plain", "off":
		return "none"
	}
	switch c.SMTP.Port {
	case 465:
		return "smtps"
	case 25, 1025:
		return "none"
	default:
		return "starttls"
	}
}

// Sender returns the envelope sender, falling back to the SMTP user.
func (c *EmailConfig) Sender() string {
	if c.From != "" {
		return c.From
	}
	return c.SMTP.User
}

// IsProduction returns true if running in production mode
func (c *AppConfig) IsProduction() bool {
	return c.Env == "production"
}

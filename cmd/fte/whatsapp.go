package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/fte-hq/fte-connectors/internal/actions"
	"github.com/fte-hq/fte-connectors/internal/api"
	"github.com/fte-hq/fte-connectors/internal/config"
	"github.com/fte-hq/fte-connectors/internal/runner"
	"github.com/fte-hq/fte-connectors/internal/runner/tasks"
	"github.com/fte-hq/fte-connectors/internal/whatsapp"
	"github.com/fte-hq/fte-connectors/internal/whatsapp/qrterm"
	"github.com/fte-hq/fte-connectors/internal/whatsapp/webclient"
)

// writeSlack is added to the ready timeout so a blocked initialize request
// can still write its response.
const writeSlack = 30 * time.Second

var whatsappCmd = &cobra.Command{
	Use:   "whatsapp",
	Short: "WhatsApp bridge commands",
}

var whatsappServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the WhatsApp HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if port, _ := cmd.Flags().GetInt("port"); port > 0 {
			cfg.WhatsApp.Port = port
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serveWhatsApp(ctx, cfg)
	},
}

func init() {
	whatsappServeCmd.Flags().Int("port", 0, "listen port (overrides whatsapp.port)")
	whatsappCmd.AddCommand(whatsappServeCmd)
}

func serveWhatsApp(ctx context.Context, cfg *config.Config) error {
	out, closeLog, err := logOutput(&cfg.Logging, true)
	if err != nil {
		return err
	}
	defer closeLog()

	if cfg.App.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	clientOpts := webclient.OptionsFromConfig(&cfg.WhatsApp)
	clientOpts.Logger = newLogger(out, "BROWSER")
	sessionLog := newLogger(out, "WHATSAPP")
	session := whatsapp.NewSession(webclient.Factory(clientOpts), whatsapp.Options{
		ReadyTimeout: cfg.WhatsApp.ReadyTimeout,
		Keywords:     cfg.WhatsApp.Keywords,
		Logger:       sessionLog,
		OnQR: func(code string) {
			fmt.Fprintln(os.Stderr, "Scan this QR code with WhatsApp:")
			if err := qrterm.Render(os.Stderr, code); err != nil {
				fmt.Fprintf(os.Stderr, "failed to render QR code: %v\n", err)
			}
		},
	})

	config.SetLogger(newLogger(out, "CONFIG"))
	config.OnChange(func(c *config.Config) {
		session.SetKeywords(c.WhatsApp.Keywords)
	})

	actionLog := newLogger(out, "ACTIONS")
	var notifier actions.Notifier
	if cfg.Actions.Notify.Enabled {
		redisNotifier, client, err := actions.NewRedisNotifier(ctx, &cfg.Redis, cfg.Actions.Notify.Channel)
		if err != nil {
			actionLog.Printf("Redis notifications disabled: %v", err)
		} else {
			defer client.Close()
			notifier = redisNotifier
		}
	}
	sink := actions.NewSink(cfg.Actions.Dir, notifier, actionLog)
	session.OnMessage(sink.Handle)

	httpLog := newLogger(out, "HTTP")
	router := api.NewRouter(session, api.RouterOptions{
		MetricsEnabled: cfg.Metrics.Enabled,
		MetricsPath:    cfg.Metrics.Path,
		Logger:         httpLog,
	})
	writeTimeout := cfg.WhatsApp.ReadyTimeout + writeSlack
	server := api.NewServer(cfg.WhatsApp.ListenAddr(), router, writeTimeout, cfg.WhatsApp.ShutdownTimeout, httpLog)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.ListenAndRun(gctx) })

	if cfg.Runner.Enabled {
		registry := runner.NewTaskRegistry()
		if err := registry.Register(tasks.NewHeartbeatTask(session, sink, cfg.Runner.HeartbeatSchedule)); err != nil {
			return err
		}
		taskRunner := runner.NewRunner(registry, newLogger(out, "RUNNER"))
		g.Go(func() error { return taskRunner.Run(gctx) })
	}

	if cfg.WhatsApp.AutoInitialize {
		g.Go(func() error {
			if _, err := session.Initialize(gctx); err != nil && !errors.Is(err, context.Canceled) {
				sessionLog.Printf("Auto initialize failed: %v", err)
			}
			return nil
		})
	}

	err = g.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.WhatsApp.ShutdownTimeout)
	defer cancel()
	if shutdownErr := session.Shutdown(shutdownCtx); shutdownErr != nil {
		httpLog.Printf("Session shutdown: %v", shutdownErr)
	}
	return err
}

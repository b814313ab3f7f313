package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fte-hq/fte-connectors/internal/config"
	"github.com/fte-hq/fte-connectors/internal/credential"
	"github.com/fte-hq/fte-connectors/internal/mailer"
	"github.com/fte-hq/fte-connectors/internal/mcp"
)

var emailMCPCmd = &cobra.Command{
	Use:   "email-mcp",
	Short: "Run the email MCP server on stdin/stdout",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		out, closeLog, err := logOutput(&cfg.Logging, false)
		if err != nil {
			return err
		}
		defer closeLog()
		logger := newLogger(out, "EMAIL-MCP")
		config.SetLogger(newLogger(out, "CONFIG"))

		provider, err := newSMTPProvider(cfg)
		if err != nil {
			return err
		}

		if verify, _ := cmd.Flags().GetBool("verify"); verify {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			if err := provider.Verify(ctx); err != nil {
				return fmt.Errorf("SMTP verification failed: %w", err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "SMTP login to %s as %s succeeded\n", cfg.Email.SMTP.Host, cfg.Email.SMTP.User)
			return nil
		}

		server, err := mcp.NewServer(provider, logger)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		logger.Println("Email MCP server running on stdio")
		if err := server.Serve(ctx, cmd.InOrStdin(), cmd.OutOrStdout()); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

var emailSetPasswordCmd = &cobra.Command{
	Use:   "set-password",
	Short: "Store the SMTP password in the OS keyring (read from stdin)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Email.SMTP.User == "" {
			return errors.New("email.smtp.user is not set")
		}

		fmt.Fprintf(cmd.ErrOrStderr(), "Password for %s: ", cfg.Email.SMTP.User)
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("failed to read password: %w", err)
		}
		password := strings.TrimRight(line, "\r\n")
		if password == "" {
			return errors.New("empty password")
		}

		if err := keyringStore(&cfg.Email).Set(cfg.Email.SMTP.User, password); err != nil {
			return err
		}
		fmt.Fprintln(cmd.ErrOrStderr(), "Password stored")
		return nil
	},
}

func init() {
	emailMCPCmd.Flags().Bool("verify", false, "check the SMTP login and exit")
	emailMCPCmd.AddCommand(emailSetPasswordCmd)
}

// newSMTPProvider fills an empty SMTP password from the keyring, keyed by
// the SMTP user.
func newSMTPProvider(cfg *config.Config) (*mailer.SMTPProvider, error) {
	if cfg.Email.Keyring.Enabled && cfg.Email.SMTP.User != "" {
		password, err := credential.Resolve(keyringStore(&cfg.Email), cfg.Email.SMTP.User, cfg.Email.SMTP.Password)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve SMTP password: %w", err)
		}
		cfg.Email.SMTP.Password = password
	}
	return mailer.NewSMTPProvider(&cfg.Email), nil
}

func keyringStore(cfg *config.EmailConfig) *credential.KeyringStore {
	return credential.NewKeyringStore(cfg.Keyring.Service, expandHome(cfg.Keyring.FileDir))
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}

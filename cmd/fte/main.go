package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/fte-hq/fte-connectors/internal/config"
	"github.com/fte-hq/fte-connectors/internal/version"
)

var (
	configDir string
	envFile   string
)

var rootCmd = &cobra.Command{
	Use:   "fte",
	Short: "FTE connectors: WhatsApp bridge, email MCP server and process config tools",
	Long: `fte runs the connectors of the personal assistant:

  whatsapp serve    HTTP facade over a WhatsApp Web session, writing action files
  email-mcp         Model Context Protocol server for sending email over stdio
  processes check   validate the process supervision file`,
	Version:       version.String(),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadDotEnv(envFile)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "fte %s\n", rootCmd.Version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config", os.Getenv("FTE_CONFIG_DIR"), "directory containing fte.yaml")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before configuration")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(whatsappCmd)
	rootCmd.AddCommand(emailMCPCmd)
	rootCmd.AddCommand(processesCmd)
}

// loadDotEnv loads path when it exists. Variables already set win.
func loadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

func loadConfig() (*config.Config, error) {
	dir := configDir
	if dir == "" {
		dir = "."
	}
	return config.Load(dir)
}

// logOutput resolves logging.output. Only the email MCP server forbids
// stdout, since stdout carries the protocol.
func logOutput(cfg *config.LoggingConfig, allowStdout bool) (io.Writer, func(), error) {
	switch cfg.Output {
	case "", "stderr":
		return os.Stderr, func() {}, nil
	case "stdout":
		if !allowStdout {
			return os.Stderr, func() {}, nil
		}
		return os.Stdout, func() {}, nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Output), 0o755); err != nil {
		return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}

func newLogger(w io.Writer, prefix string) *log.Logger {
	return log.New(w, "["+prefix+"] ", log.LstdFlags)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

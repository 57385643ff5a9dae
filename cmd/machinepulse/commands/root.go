// Package commands defines the machinepulse command line.
package commands

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	logLevel  string
	logFormat string
	envFile   string
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "machinepulse",
		Short: "Predictive maintenance analytics for production lines",
		Long: `machinepulse reads sensor readings from production lines (CSV files,
HTTP endpoints, Prometheus exporters, Kafka topics), flags extreme regions
and estimates failure probability, risk level and time to maintenance.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := loadEnv(opts.envFile); err != nil {
				return err
			}
			return setupLogging(cmd.ErrOrStderr(), opts.logLevel, opts.logFormat)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "log level: debug|info|warn|error")
	cmd.PersistentFlags().StringVar(&opts.logFormat, "log-format", "json", "log format: json|text (text is colourised, set NO_COLOR to disable)")
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file with secrets referenced by *_env config keys")

	cmd.AddCommand(newServeCmd(), newAnalyzeCmd(), newVersionCmd())
	return cmd
}

// Execute runs the root command and exits non-zero on error.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// loadEnv loads path into the process environment. A missing file is not
// an error; variables already set take precedence.
func loadEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// setupLogging installs the default slog logger.
func setupLogging(w io.Writer, level, format string) error {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return fmt.Errorf("invalid --log-level %q", level)
	}
	hopts := &slog.HandlerOptions{Level: lvl}

	var h slog.Handler
	switch strings.ToLower(format) {
	case "json":
		h = slog.NewJSONHandler(w, hopts)
	case "text":
		h = tint.NewHandler(w, &tint.Options{Level: lvl, NoColor: os.Getenv("NO_COLOR") != ""})
	default:
		return fmt.Errorf("invalid --log-format %q: want json|text", format)
	}
	slog.SetDefault(slog.New(h))
	return nil
}

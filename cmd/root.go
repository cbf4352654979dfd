package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const defaultAPIURL = "http://localhost:8000"

func NewRootCmd() *cobra.Command {
	var logLevel string

	cmd := &cobra.Command{
		Use:   "ecosort",
		Short: "Waste image classification client and server",
		Long: `Ecosort classifies photos of household waste into recycling categories.

The client commands upload an image to a classification service and show the
predicted category with its confidence. The serve command runs that service.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()

			level, err := parseLogLevel(logLevel)
			if err != nil {
				return err
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
			return nil
		},
	}

	cmd.PersistentFlags().String("api-url", "", "Base URL of the classification service (env API_URL, default "+defaultAPIURL+")")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level: debug, info, warn or error")

	// Add subcommands
	cmd.AddCommand(newClassifyCmd())
	cmd.AddCommand(newSessionCmd())
	cmd.AddCommand(newServeCmd())

	return cmd
}

// apiURL resolves the service URL: flag, then API_URL, then the default.
func apiURL(cmd *cobra.Command) string {
	if u, _ := cmd.Flags().GetString("api-url"); u != "" {
		return u
	}
	if u := os.Getenv("API_URL"); u != "" {
		return u
	}
	return defaultAPIURL
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"planbridge/internal/config"
	"planbridge/internal/server"
)

var (
	version    = "0.3.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag

	flagTransport string
	flagHost      string
	flagPort      int
)

func main() {
	// Logs go to stderr: on the stdio transport, stdout belongs to the MCP
	// protocol stream.
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	root := &cobra.Command{
		Use:   "planbridge",
		Short: "MCP bridge for a retirement-planning computation service",
		Long: "Planbridge exposes retirement-planning tools to AI agents over the Model\n" +
			"Context Protocol and translates them into calls against a remote\n" +
			"tax-aware computation service. Running it bare is equivalent to 'serve'.",
		RunE: runServe,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.yaml (default: ~/.planbridge/config.yaml)")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve tool calls on the configured transport",
		RunE:  runServe,
	}
	addServeFlags(root)
	addServeFlags(serveCmd)

	root.AddCommand(serveCmd)
	root.AddCommand(doctorCmd())
	root.AddCommand(versionCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func addServeFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&flagTransport, "transport", "", "transport mode: stdio (default), http, or sse")
	cmd.Flags().StringVar(&flagHost, "host", "", "host to bind to (http/sse only)")
	cmd.Flags().IntVar(&flagPort, "port", 0, "port to bind to (http/sse only)")
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return nil, err
	}
	if flagTransport != "" {
		cfg.Transport.Mode = flagTransport
	}
	if flagHost != "" {
		cfg.Transport.Host = flagHost
	}
	if flagPort != 0 {
		cfg.Transport.Port = flagPort
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel(cfg.General.LogLevel)}))

	// A missing or malformed key is a fatal configuration error, reported
	// before any tool call is served.
	if err := config.ValidateCredentials(cfg); err != nil {
		logger.Error("startup aborted", "err", err)
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s := server.New(cfg, version, logger)
	return server.Serve(ctx, cfg, s, logger)
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("planbridge v%s\n", version)
		},
	}
}

func logLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

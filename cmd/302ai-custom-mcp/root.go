package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/302ai/302-custom-mcp/pkg/bridge"
	"github.com/302ai/302-custom-mcp/pkg/config"
	"github.com/302ai/302-custom-mcp/pkg/credentials"
	"github.com/302ai/302-custom-mcp/pkg/logging"
	"github.com/302ai/302-custom-mcp/pkg/upstream"
)

var (
	flagAPIKey          string
	flagLanguage        string
	flagMode            string
	flagPort            int
	flagEndpoint        string
	flagStreamablePath  string
	flagBaseURL         string
	flagUpstreamTimeout time.Duration
	flagAllowedOrigins  []string
	flagLogFormat       string
	flagLogLevel        string
	flagLogJSONRPC      bool
	flagEnvFile         string
	flagConfigFile      string
)

var rootCmd = &cobra.Command{
	Use:   "302ai-custom-mcp",
	Short: "MCP server for 302.AI custom tools",
	Long: `302ai-custom-mcp lists and calls the tools configured in a 302.AI account
through the Model Context Protocol.

The API key is taken from, in order: a bearer token or per-message header,
the --302ai_api_key flag, the request's _meta.auth, the Streamable HTTP
session, and the 302AI_API_KEY environment variable.`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	f := rootCmd.Flags()
	f.StringVar(&flagAPIKey, "302ai_api_key", credentials.PlaceholderAPIKey, "302.AI API key used when a request carries none")
	f.StringVar(&flagLanguage, "language", credentials.PlaceholderLanguage, "language for tool descriptions")
	f.StringVar(&flagMode, "mode", config.DefaultMode, "transport: stdio, sse, http, or rest")
	f.IntVar(&flagPort, "port", config.DefaultPort, "listen port for HTTP modes")
	f.StringVar(&flagEndpoint, "endpoint", config.DefaultEndpoint, "REST endpoint path")
	f.StringVar(&flagStreamablePath, "streamable-path", config.DefaultStreamablePath, "Streamable HTTP endpoint path")
	f.StringVar(&flagBaseURL, "base-url", config.DefaultBaseURL, "upstream API base URL")
	f.DurationVar(&flagUpstreamTimeout, "upstream-timeout", config.DefaultUpstreamTimeout, "timeout for each upstream request")
	f.StringSliceVar(&flagAllowedOrigins, "allowed-origin", []string{"*"}, "CORS allowed origin (repeatable)")
	f.StringVar(&flagLogFormat, "log-format", "auto", "log format: auto, text, or json")
	f.StringVar(&flagLogLevel, "log-level", "info", "log level: debug, info, warn, or error")
	f.BoolVar(&flagLogJSONRPC, "log-jsonrpc", false, "log every JSON-RPC message at debug level")
	f.StringVar(&flagEnvFile, "env-file", config.DefaultEnvFile, "dotenv file loaded before reading the environment")
	f.StringVar(&flagConfigFile, "config", "", "YAML config file")

	rootCmd.AddCommand(versionCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	kind, err := cfg.TransportKind()
	if err != nil {
		return err
	}

	logger := logging.Setup(cfg.LogFormat, cfg.LogLevel, os.Stderr)

	resolver := credentials.NewResolver(credentials.NewStore(), credentials.Settings{
		APIKey:    cfg.APIKey,
		Language:  cfg.Language,
		LookupEnv: os.LookupEnv,
		Logger:    logger,
	})
	clients := upstream.NewCache(&upstream.Options{
		BaseURL:   cfg.BaseURL,
		Timeout:   cfg.UpstreamTimeout,
		UserAgent: bridge.ServerName + "/" + bridge.ServerVersion,
		Logger:    logger,
	})

	b, err := bridge.New(resolver, clients, &bridge.Options{
		Kind:           kind,
		Addr:           cfg.Addr(),
		RESTPath:       cfg.Endpoint,
		StreamablePath: cfg.StreamablePath,
		AllowedOrigins: cfg.AllowedOrigins,
		LogJSONRPC:     cfg.LogJSONRPC,
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	attrs := []any{"name", bridge.ServerName, "version", bridge.ServerVersion, "mode", kind, logging.SecretAttrKey, cfg.APIKey}
	if kind.IsHTTP() {
		attrs = append(attrs, "addr", b.Options().Addr)
	}
	logger.Info("starting", attrs...)
	if err := b.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("stopped")
	return nil
}

// loadConfig layers explicitly set flags over config.Load.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(flagConfigFile, flagEnvFile, os.LookupEnv)
	if err != nil {
		return nil, err
	}
	applyFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	changed := cmd.Flags().Changed
	if changed("302ai_api_key") {
		cfg.APIKey = flagAPIKey
	}
	if changed("language") {
		cfg.Language = flagLanguage
	}
	if changed("mode") {
		cfg.Mode = flagMode
	}
	if changed("port") {
		cfg.Port = flagPort
	}
	if changed("endpoint") {
		cfg.Endpoint = flagEndpoint
	}
	if changed("streamable-path") {
		cfg.StreamablePath = flagStreamablePath
	}
	if changed("base-url") {
		cfg.BaseURL = flagBaseURL
	}
	if changed("upstream-timeout") {
		cfg.UpstreamTimeout = flagUpstreamTimeout
	}
	if changed("allowed-origin") {
		cfg.AllowedOrigins = flagAllowedOrigins
	}
	if changed("log-format") {
		cfg.LogFormat = flagLogFormat
	}
	if changed("log-level") {
		cfg.LogLevel = flagLogLevel
	}
	if changed("log-jsonrpc") {
		cfg.LogJSONRPC = flagLogJSONRPC
	}
}

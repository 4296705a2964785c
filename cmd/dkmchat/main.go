// Command dkmchat is a terminal client for the knowledge chat backend.
package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mrhollen/KnowledgeChat/internal/chat"
	"github.com/mrhollen/KnowledgeChat/internal/cli"
	"github.com/mrhollen/KnowledgeChat/internal/config"
	"github.com/mrhollen/KnowledgeChat/internal/feedback"
	"github.com/mrhollen/KnowledgeChat/internal/gateway"
	"github.com/mrhollen/KnowledgeChat/internal/markup"
	"github.com/mrhollen/KnowledgeChat/pkg/utils"
)

const (
	Version = "0.1.0"
	appName = "dkmchat"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type flags struct {
	configPath string
	envPath    string
	endpoint   string
	debug      bool
}

func rootCmd() *cobra.Command {
	var f flags

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Chat with your documents",
		Long: `dkmchat asks questions against the knowledge chat backend and rates
the answers. Type /help inside the session for the list of commands.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			session, logger, err := newSession(f, cmd)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return session.Run(ctx, cmd.InOrStdin())
		},
	}

	cmd.PersistentFlags().StringVarP(&f.configPath, "config", "c", "", "Config file path (YAML)")
	cmd.PersistentFlags().StringVar(&f.envPath, "env", ".env", "Path to a .env file")
	cmd.PersistentFlags().StringVar(&f.endpoint, "endpoint", "", "Backend URL, overrides the config")
	cmd.PersistentFlags().BoolVar(&f.debug, "debug", false, "Enable debug logging")

	cmd.AddCommand(&cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a single question and print the answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			session, logger, err := newSession(f, cmd)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			return session.Handle(cmd.Context(), strings.Join(args, " "))
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s version %s\n", appName, Version)
		},
	})

	return cmd
}

func newSession(f flags, cmd *cobra.Command) (*cli.Session, *zap.Logger, error) {
	cfg, err := config.Load(f.configPath, f.envPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := utils.NewLogger(f.debug || cfg.Debug)
	if err != nil {
		return nil, nil, fmt.Errorf("create logger: %w", err)
	}

	endpoint := cfg.Client.APIEndpoint
	if f.endpoint != "" {
		endpoint = f.endpoint
	}
	gw := gateway.New(endpoint,
		gateway.WithHTTPClient(&http.Client{Timeout: cfg.Client.Timeout}),
		gateway.WithBearerToken(cfg.Client.AccessToken),
		gateway.WithLogger(logger.Named("gateway")),
	)

	orch := chat.New(chat.NewHTTPCompletion(gw), markup.NewHTMLRenderer(),
		chat.WithOptions(cfg.Client.DefaultOptions),
		chat.WithLogger(logger.Named("chat")),
	)
	attr := feedback.New(orch, feedback.NewHTTPSubmitter(gw), feedback.WithLogger(logger.Named("feedback")))

	return cli.NewSession(orch, attr, gw, cmd.OutOrStdout(), logger), logger, nil
}

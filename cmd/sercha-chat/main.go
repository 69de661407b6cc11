// @title           Sercha Chat API
// @version         1.0
// @description     Chat over your own documents. Upload files to a conversation, then ask questions answered from their content.
//
// @contact.name   Sercha OSS
// @contact.url    https://github.com/custodia-labs/sercha-chat/issues
//
// @license.name  Apache 2.0
// @license.url   http://www.apache.org/licenses/LICENSE-2.0.html
//
// @host      localhost:8080
// @BasePath  /api/v1
// @schemes   http https
//
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
// @description                 JWT Bearer token. Format: "Bearer {token}"
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	_ "github.com/custodia-labs/sercha-chat/docs"
	"github.com/custodia-labs/sercha-chat/internal/adapters/driven/auth"
	"github.com/custodia-labs/sercha-chat/internal/config"
	"github.com/custodia-labs/sercha-chat/internal/core/domain"
)

var version = "dev"

var (
	cfg    config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "sercha-chat",
	Short: "Document chat backend",
	Long: `sercha-chat ingests uploaded documents into a vector index and answers
chat turns, optionally grounded on a conversation's documents.

Without a subcommand it runs in RUN_MODE (default: all).`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}
		logger = cfg.Logger()
		slog.SetDefault(logger)
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context(), cfg.RunMode)
	},
}

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Serve the HTTP API only",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context(), "api")
	},
}

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Process ingestion and maintenance tasks only",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context(), "worker")
	},
}

var allCmd = &cobra.Command{
	Use:   "all",
	Short: "Serve the HTTP API and process tasks in one process",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context(), "all")
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the database schema and prepare the vector index",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()
		return a.migrate(cmd.Context(), true)
	},
}

var (
	tokenUser string
	tokenTTL  time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a bearer token for a user (development)",
	RunE: func(cmd *cobra.Command, args []string) error {
		now := time.Now()
		token, err := auth.NewAdapter(cfg.JWTSecret).GenerateToken(&domain.TokenClaims{
			UserID:    tokenUser,
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(tokenTTL).Unix(),
		})
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenUser, "user", "", "user id to put in the token subject")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")
	_ = tokenCmd.MarkFlagRequired("user")

	rootCmd.AddCommand(apiCmd, workerCmd, allCmd, migrateCmd, tokenCmd)
}

func run(ctx context.Context, mode string) error {
	logger.Info("sercha-chat starting", "version", version, "mode", mode)

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	// Initialize schema (idempotent). Vespa deploys only via migrate.
	if err := a.migrate(ctx, false); err != nil {
		return err
	}

	switch mode {
	case "api":
		err = a.runAPI(ctx)
	case "worker":
		err = a.runWorker(ctx)
	case "all":
		err = a.runAll(ctx)
	default:
		err = fmt.Errorf("unknown mode: %s (use: api, worker, or all)", mode)
	}
	if err != nil {
		return err
	}
	logger.Info("sercha-chat stopped")
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

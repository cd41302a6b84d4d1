package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/ShahafRSeza/feed-social/internal/app"
	"github.com/ShahafRSeza/feed-social/internal/archive"
	"github.com/ShahafRSeza/feed-social/internal/assets"
	"github.com/ShahafRSeza/feed-social/internal/auth"
	"github.com/ShahafRSeza/feed-social/internal/config"
	"github.com/ShahafRSeza/feed-social/internal/directory"
	"github.com/ShahafRSeza/feed-social/internal/drafts"
	"github.com/ShahafRSeza/feed-social/internal/gif"
	"github.com/ShahafRSeza/feed-social/internal/logger"
	"github.com/ShahafRSeza/feed-social/internal/metrics"
	"github.com/ShahafRSeza/feed-social/internal/sanitize"
	"github.com/ShahafRSeza/feed-social/internal/store"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var envFile string
	cmd := &cobra.Command{
		Use:           "feed-api",
		Short:         "Rich post authoring API",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return loadEnvFile(envFile)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Environment file loaded before reading configuration")
	cmd.AddCommand(newServeCommand())
	cmd.AddCommand(newMigrateCommand())
	cmd.AddCommand(newSanitizeCommand())
	cmd.AddCommand(newTokenCommand())
	return cmd
}

// loadEnvFile applies path when it exists. Variables already set win.
func loadEnvFile(path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
}

func newMigrateCommand() *cobra.Command {
	var down int
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations, or roll back with --down",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.Load()
			log := newLogger(cfg)
			ctx := cmd.Context()

			db, err := store.Open(ctx, cfg.DatabaseURL, poolOptions(cfg))
			if err != nil {
				return fmt.Errorf("database connection failed: %w", err)
			}
			defer db.Close()

			if down > 0 {
				if err := store.RollbackMigrations(ctx, db, cfg.MigrationsDir, down); err != nil {
					return err
				}
				log.Info("migrations rolled back", "steps", down)
				return nil
			}
			if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
				return err
			}
			log.Info("migrations applied", "dir", cfg.MigrationsDir)
			return nil
		},
	}
	cmd.Flags().IntVar(&down, "down", 0, "Number of migrations to roll back")
	return cmd
}

func newSanitizeCommand() *cobra.Command {
	var report bool
	cmd := &cobra.Command{
		Use:   "sanitize [file]",
		Short: "Render stored post content to safe markup",
		Long:  "Reads post content from file, or stdin when no file is given, and prints the markup the API would serve for it.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				raw []byte
				err error
			)
			if len(args) == 1 {
				raw, err = os.ReadFile(args[0])
			} else {
				raw, err = io.ReadAll(cmd.InOrStdin())
			}
			if err != nil {
				return fmt.Errorf("read content: %w", err)
			}
			rendered, rep := sanitize.Render(string(raw))
			fmt.Fprintln(cmd.OutOrStdout(), rendered)
			if report {
				enc := json.NewEncoder(cmd.ErrOrStderr())
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]any{
					"rich":    sanitize.IsRich(string(raw)),
					"removed": rep,
					"total":   rep.Total(),
					"summary": sanitize.Inspect(rendered),
				})
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&report, "report", false, "Print what was removed to stderr as JSON")
	return cmd
}

func newTokenCommand() *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token <user-id> <username>",
		Short: "Sign a bearer token for local development",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			token, claims, err := auth.IssueSession([]byte(cfg.JWTSecret), args[0], args[1], ttl, time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", time.Unix(claims.Exp, 0).Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	return cmd
}

func poolOptions(cfg config.Config) store.PoolOptions {
	return store.PoolOptions{MaxOpen: cfg.DBMaxConns, ConnectWait: cfg.DBConnectWait}
}

func newLogger(cfg config.Config) logger.Logger {
	log := logger.NewLogger(&logger.Config{
		Level:      logger.ParseLevel(cfg.LogLevel),
		Output:     os.Stdout,
		JSON:       cfg.LogJSON,
		TimeFormat: time.RFC3339,
	})
	logger.SetDefault(log)
	return log
}

func runServe(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()
	log := newLogger(cfg)

	db, err := store.Open(ctx, cfg.DatabaseURL, poolOptions(cfg))
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		return fmt.Errorf("migrations failed: %w", err)
	}

	if err := os.MkdirAll(cfg.ArchiveDir, 0o755); err != nil {
		return fmt.Errorf("failed to create archive dir: %w", err)
	}

	m := metrics.New()
	dataStore := store.NewPostgresStore(db)

	pgDirectory := directory.NewPostgres(dataStore)
	var primary directory.Backend
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliDirectory := directory.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, log)
		defer meiliDirectory.Close()
		primary = meiliDirectory
	}
	profiles := directory.NewService(primary, pgDirectory, log, m)
	go profiles.Reindex(ctx, pgDirectory)

	deps := app.Deps{
		Store:     dataStore,
		Directory: profiles,
		Archive:   archive.New(cfg.ArchiveDir),
		Metrics:   m,
		Logger:    log,
	}

	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		objectStore, err := assets.NewMinioStore(assets.Options{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			UseSSL:    cfg.MinioUseSSL,
			PublicURL: cfg.AssetPublicURL,
		})
		if err != nil {
			log.Warn("assets: object storage disabled", "err", err)
		} else if err := objectStore.EnsureBucket(ctx, cfg.AssetBucket); err != nil {
			log.Warn("assets: bucket unavailable, uploads disabled", "bucket", cfg.AssetBucket, "err", err)
		} else {
			deps.Assets = objectStore
		}
	}

	giphy := gif.NewGiphy(gif.Options{BaseURL: cfg.GiphyBaseURL, APIKey: cfg.GiphyAPIKey})
	if giphy.Enabled() {
		deps.GIFs = giphy
	} else {
		log.Info("gifs: no API key, picker disabled")
	}

	if strings.TrimSpace(cfg.RedisURL) != "" {
		draftStore, err := drafts.NewRedisStore(cfg.RedisURL, cfg.DraftTTL)
		if err != nil {
			log.Warn("drafts: redis unavailable, autosave disabled", "err", err)
		} else {
			defer draftStore.Close()
			deps.Drafts = draftStore
		}
	}

	service := app.New(cfg, deps)
	defer service.Close()

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      90 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("feed API listening", "addr", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", "err", err)
	}
	log.Info("feed API stopped")
	return nil
}

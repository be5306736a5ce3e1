package cli

import (
	"context"
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/verdiyev/caremate/internal/chat"
	"github.com/verdiyev/caremate/internal/config"
	"github.com/verdiyev/caremate/internal/instruction"
	"github.com/verdiyev/caremate/internal/llm"
	"github.com/verdiyev/caremate/internal/server"
	"github.com/verdiyev/caremate/internal/session"
	"github.com/verdiyev/caremate/internal/store"
)

func newServeCmd() *cobra.Command {
	var (
		port int
		bind string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the chat server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(paths.Config)
			if err != nil {
				return err
			}

			if port != 0 {
				cfg.Server.Port = port
			}
			if bind != "" {
				cfg.Server.Bind = bind
			}

			issues := config.Validate(&cfg)
			if len(issues) > 0 {
				for _, issue := range issues {
					log.Error().Str("path", issue.Path).Msg(issue.Message)
				}
				return fmt.Errorf("config validation failed with %d issue(s)", len(issues))
			}

			// Session store: SQLite survives restarts, memory does not.
			var sessions session.Store
			if cfg.Session.Store == "sqlite" {
				if err := paths.EnsureDirs(); err != nil {
					return fmt.Errorf("creating data directories: %w", err)
				}
				dbPath := filepath.Join(paths.Data, "caremate.db")
				db, err := store.Open(dbPath, log)
				if err != nil {
					return fmt.Errorf("opening database: %w", err)
				}
				defer db.Close()
				sessions = store.NewSQLiteSessionStore(db)
				log.Info().Str("path", dbPath).Msg("using SQLite session store")
			} else {
				sessions = session.NewMemoryStore()
				log.Info().Msg("using in-memory session store")
			}

			registry := llm.NewRegistryFromConfig(cfg.LLM, log)
			client, err := registry.Resolve(cfg.LLM.Provider)
			if err != nil {
				return fmt.Errorf("no usable LLM provider: %w", err)
			}
			log.Info().Strs("providers", registry.List()).Str("model", cfg.LLM.Model).Msg("LLM provider ready")

			orch := chat.NewOrchestrator(
				chat.Config{
					Model:           cfg.LLM.Model,
					MaxTokens:       cfg.LLM.MaxTokens,
					Temperature:     cfg.LLM.Temperature,
					MaxMessages:     cfg.Session.MaxMessages,
					GenerateTimeout: time.Duration(cfg.LLM.TimeoutSeconds) * time.Second,
				},
				client,
				sessions,
				instruction.Build,
				log,
			)

			// Block until SIGINT/SIGTERM
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			srv := server.New(cfg.Server, orch, log)
			return srv.Start(ctx)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "override server port")
	cmd.Flags().StringVar(&bind, "bind", "", "override bind mode (loopback, lan, custom)")

	return cmd
}

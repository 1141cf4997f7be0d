package main

import (
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ddanialb/Film/internal/daemon"
	"github.com/ddanialb/Film/internal/logging"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var bind string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			orch, err := ctx.orchestrator()
			if err != nil {
				return err
			}
			tokens, err := ctx.tokenManager()
			if err != nil {
				return err
			}
			cache, err := ctx.playlistCache()
			if err != nil {
				return err
			}
			logger := ctx.log()

			deps := daemon.Dependencies{
				Resolver: orch,
				Tokens:   tokens,
				Cache:    cache,
				CodePath: cfg.CodePath(),
				Logger:   logger,
			}
			if session, err := ctx.telegramSession(); err == nil {
				deps.Telegram = session
				defer ctx.closeSession()
			} else {
				logging.WarnWithContext(logger, "telegram not configured", "telegram_disabled",
					logging.Error(err),
					logging.String(logging.FieldImpact, "bot fallback and /api/telegram endpoints are disabled"))
			}

			if strings.TrimSpace(bind) == "" {
				bind = cfg.API.Bind
			}
			d, err := daemon.New(daemon.Options{
				Bind:           bind,
				Token:          cfg.API.Token,
				LockPath:       cfg.LockPath(),
				ResolveTimeout: orch.Budget(),
			}, deps)
			if err != nil {
				return err
			}
			if err := d.Start(signalCtx); err != nil {
				return err
			}
			defer d.Stop()

			if cfg.API.Token == "" {
				logging.WarnWithContext(logger, "api token not set", "api_unauthenticated",
					logging.String(logging.FieldErrorHint, "set api.token or FILM_API_TOKEN"),
					logging.String(logging.FieldImpact, "any local client can drive the API"))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Listening on http://%s\n", d.Address())

			<-signalCtx.Done()
			logger.Info("film server shutting down")
			return nil
		},
	}
	cmd.Flags().StringVar(&bind, "bind", "", "Listen address (defaults to api.bind)")
	return cmd
}

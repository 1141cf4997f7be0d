package main

import (
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/ddanialb/Film/internal/services/streamwide"
)

type statusReport struct {
	Tokens       streamwide.TokenStatus `json:"tokens"`
	Telegram     telegramStatus         `json:"telegram"`
	CacheEntries int                    `json:"cacheEntries"`
	CachePath    string                 `json:"cachePath"`
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var connect bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show token, session, and cache status",
		RunE: func(cmd *cobra.Command, args []string) error {
			tokens, err := ctx.tokenManager()
			if err != nil {
				return err
			}
			cache, err := ctx.playlistCache()
			if err != nil {
				return err
			}
			report := statusReport{
				Tokens:       tokens.Status(),
				Telegram:     ctx.telegramStatus(cmd.Context(), connect),
				CacheEntries: cache.Count(),
				CachePath:    cache.Path(),
			}
			defer ctx.closeSession()

			return ctx.emit(cmd, report, func(w io.Writer) error {
				colorize := shouldColorize(w)
				writeStatusSection(w, "Tokens", tokenStatusLines(report.Tokens, time.Now()), colorize)
				writeStatusSection(w, "Telegram", sessionStatusLines(report.Telegram), colorize)
				writeStatusSection(w, "Cache", []statusLine{cacheStatusLine(report.CacheEntries, report.CachePath)}, colorize)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&connect, "connect", false, "Connect to Telegram to verify the session")
	return cmd
}

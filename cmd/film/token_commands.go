package main

import (
	"errors"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ddanialb/Film/internal/services/streamwide"
)

func newTokenCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage StreamWide catalog tokens",
	}
	cmd.AddCommand(newTokenSetCommand(ctx))
	cmd.AddCommand(newTokenRefreshCommand(ctx))
	cmd.AddCommand(newTokenStatusCommand(ctx))
	return cmd
}

func newTokenSetCommand(ctx *commandContext) *cobra.Command {
	var access, refresh, initData string

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Install tokens manually or exchange Telegram initData for them",
		RunE: func(cmd *cobra.Command, args []string) error {
			access = strings.TrimSpace(access)
			refresh = strings.TrimSpace(refresh)
			initData = strings.TrimSpace(initData)
			if access == "" && refresh == "" && initData == "" {
				return errors.New("one of --access, --refresh, or --init-data is required")
			}
			tokens, err := ctx.tokenManager()
			if err != nil {
				return err
			}
			if access != "" || refresh != "" {
				if err := tokens.SetTokens(access, refresh); err != nil {
					return err
				}
			}
			if initData != "" {
				if _, err := tokens.ExchangeInitData(cmd.Context(), initData); err != nil {
					return err
				}
			}
			return ctx.emitTokenStatus(cmd, tokens.Status())
		},
	}
	cmd.Flags().StringVar(&access, "access", "", "Access token")
	cmd.Flags().StringVar(&refresh, "refresh", "", "Refresh token")
	cmd.Flags().StringVar(&initData, "init-data", "", "Telegram WebApp initData to exchange")
	return cmd
}

func newTokenRefreshCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Force an access token refresh",
		RunE: func(cmd *cobra.Command, args []string) error {
			tokens, err := ctx.tokenManager()
			if err != nil {
				return err
			}
			if _, err := tokens.Refresh(cmd.Context()); err != nil {
				return err
			}
			return ctx.emitTokenStatus(cmd, tokens.Status())
		},
	}
}

func newTokenStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show which tokens are held",
		RunE: func(cmd *cobra.Command, args []string) error {
			tokens, err := ctx.tokenManager()
			if err != nil {
				return err
			}
			return ctx.emitTokenStatus(cmd, tokens.Status())
		},
	}
}

func (c *commandContext) emitTokenStatus(cmd *cobra.Command, status streamwide.TokenStatus) error {
	return c.emit(cmd, status, func(w io.Writer) error {
		writeStatusSection(w, "Tokens", tokenStatusLines(status, time.Now()), shouldColorize(w))
		return nil
	})
}

package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ddanialb/Film/internal/services/telegram"
	"github.com/ddanialb/Film/internal/textutil"
)

type telegramStatus struct {
	Configured    bool   `json:"configured"`
	SessionStored bool   `json:"sessionStored"`
	State         string `json:"state,omitempty"`
	Authorized    bool   `json:"authorized"`
	Error         string `json:"error,omitempty"`
}

func newTelegramCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "telegram",
		Short: "Manage the Telegram bot session",
	}
	cmd.AddCommand(newTelegramLoginCommand(ctx))
	cmd.AddCommand(newTelegramCodeCommand(ctx))
	cmd.AddCommand(newTelegramStatusCommand(ctx))
	return cmd
}

func newTelegramLoginCommand(ctx *commandContext) *cobra.Command {
	var phone string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log the bot session in, waiting for the code file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			session, err := ctx.telegramSession()
			if err != nil {
				return err
			}
			defer ctx.closeSession()

			signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			out := cmd.OutOrStdout()
			target := textutil.Ternary(phone != "", phone, cfg.Telegram.Phone)
			fmt.Fprintf(out, "Requesting a login code from Telegram for %s.\n", textutil.Mask(target))
			fmt.Fprintf(out, "When it arrives run `film telegram code <code>` or write it to %s\n", cfg.CodePath())
			if err := session.Login(signalCtx, phone, nil, nil); err != nil {
				return fmt.Errorf("telegram login: %w", err)
			}
			fmt.Fprintln(out, "Telegram session authorized")
			return nil
		},
	}
	cmd.Flags().StringVar(&phone, "phone", "", "Phone number (defaults to telegram.phone)")
	return cmd
}

func newTelegramCodeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "code <code>",
		Short: "Submit the login code to a waiting login",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if err := telegram.WriteCode(cfg.CodePath(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Code written to %s\n", cfg.CodePath())
			return nil
		},
	}
}

func newTelegramStatusCommand(ctx *commandContext) *cobra.Command {
	var offline bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the bot session state",
		RunE: func(cmd *cobra.Command, args []string) error {
			status := ctx.telegramStatus(cmd.Context(), !offline)
			defer ctx.closeSession()
			return ctx.emit(cmd, status, func(w io.Writer) error {
				writeStatusSection(w, "Telegram", sessionStatusLines(status), shouldColorize(w))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&offline, "offline", false, "Report stored state without connecting")
	return cmd
}

// telegramStatus reports the session. With connect set it dials Telegram to
// learn whether the stored session is still authorized.
func (c *commandContext) telegramStatus(ctx context.Context, connect bool) telegramStatus {
	status := telegramStatus{SessionStored: c.storedSession()}
	session, err := c.telegramSession()
	if err != nil {
		return status
	}
	status.Configured = true
	if connect {
		cfg, _ := c.ensureConfig()
		connectCtx, cancel := context.WithTimeout(ctx, seconds(cfg.Timeouts.BotConnectSeconds))
		defer cancel()
		if err := session.EnsureConnected(connectCtx); err != nil {
			status.Error = err.Error()
		}
	}
	status.State = string(session.State())
	status.Authorized = session.IsAuthorized()
	return status
}

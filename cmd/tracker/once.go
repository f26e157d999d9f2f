package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/tavvarez/whatsapp-bot-resonance/internal/app"
	"go.uber.org/zap"
)

// onceCmd builds a command that runs a single job cycle and exits.
func onceCmd(use, short string, pick func(a *app.App) func(ctx context.Context) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := app.New(ctx, cfg)
			if err != nil {
				return eris.Wrapf(err, "%s: init", use)
			}
			defer a.Close(context.WithoutCancel(ctx))

			if err := pick(a)(ctx); err != nil {
				return eris.Wrap(err, use)
			}
			zap.L().Info("cycle complete", zap.String("job", use))
			return nil
		},
	}
}

func init() {
	rootCmd.AddCommand(
		onceCmd("deaths", "Fetch deaths for every watched guild once", func(a *app.App) func(context.Context) error {
			return a.DeathJob().Execute
		}),
		onceCmd("levelups", "Check every watched guild for level-ups once", func(a *app.App) func(context.Context) error {
			return a.LevelUpJob().Execute
		}),
		onceCmd("notify", "Send pending death alerts once", func(a *app.App) func(context.Context) error {
			return a.NotifyJob().Execute
		}),
	)
}

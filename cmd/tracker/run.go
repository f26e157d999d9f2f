package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/tavvarez/whatsapp-bot-resonance/internal/app"
	"github.com/tavvarez/whatsapp-bot-resonance/internal/infra/httpapi"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the death, level-up and notify jobs on their schedules",
	Long:  "Runs every job forever with jittered intervals. A permanent block pauses all jobs for jobs.block_cooldown. When server.addr is set, /healthz and /stats are served there.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := app.New(ctx, cfg)
		if err != nil {
			return eris.Wrap(err, "run: init")
		}
		defer a.Close(context.WithoutCancel(ctx))

		g, gctx := errgroup.WithContext(ctx)
		if cfg.Server.Addr != "" {
			g.Go(func() error {
				return httpapi.Serve(gctx, cfg.Server.Addr, httpapi.NewRouter(a.Pool))
			})
		}
		g.Go(func() error {
			a.Scheduler().Run(gctx)
			return nil
		})

		zap.L().Info("run: started", zap.Int("targets", len(cfg.Targets)))
		if err := g.Wait(); err != nil {
			return eris.Wrap(err, "run")
		}
		zap.L().Info("run: stopped")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}

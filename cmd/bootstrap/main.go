// Command bootstrap opens a visible browser, runs one death cycle and keeps
// the resulting cookies so the headless tracker starts with a trusted
// session. Solve any challenge shown in the window.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/tavvarez/whatsapp-bot-resonance/internal/app"
	"github.com/tavvarez/whatsapp-bot-resonance/internal/config"
	"go.uber.org/zap"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:          "bootstrap",
	Short:        "Seed the browser session by hand",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
			return eris.Wrap(err, "load .env")
		}
		cfg, err := config.Load(configPath)
		if err != nil {
			return eris.Wrap(err, "load config")
		}
		if err := config.InitLogger(cfg.Log); err != nil {
			return eris.Wrap(err, "init logger")
		}
		defer zap.L().Sync() //nolint:errcheck

		cfg.Browser.Headless = false
		cfg.Scraper.Bootstrap = true

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := app.New(ctx, cfg)
		if err != nil {
			return eris.Wrap(err, "bootstrap: init")
		}
		defer a.Close(context.WithoutCancel(ctx))

		zap.L().Info("bootstrap: browser opening, solve any challenge in the window",
			zap.Duration("wait", cfg.Scraper.BootstrapWait),
			zap.String("cookies", cfg.Pool.CookieFile))
		if err := a.DeathJob().Execute(ctx); err != nil {
			return eris.Wrap(err, "bootstrap")
		}
		zap.L().Info("bootstrap: session saved")
		return nil
	},
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "config file (json or yaml), defaults to ./config.*")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

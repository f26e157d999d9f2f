package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/tavvarez/whatsapp-bot-resonance/internal/app"
	"github.com/tavvarez/whatsapp-bot-resonance/internal/domain/model"
	"github.com/tavvarez/whatsapp-bot-resonance/internal/infra/persistence/es"
	"go.uber.org/zap"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the schema, seed configured targets and create the search index",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		store, err := app.OpenStore(ctx, cfg)
		if err != nil {
			return eris.Wrap(err, "migrate")
		}
		defer store.Close()

		if err := app.SeedTargets(ctx, store, cfg.Targets); err != nil {
			return eris.Wrap(err, "migrate")
		}

		if cfg.Elasticsearch.Address != "" {
			client, err := es.InitTypedEsClient[*model.DeathDoc](cfg)
			if err != nil {
				return eris.Wrap(err, "migrate")
			}
			if err := client.CreateIndexWithMapping(ctx); err != nil {
				return eris.Wrap(err, "migrate")
			}
		}

		zap.L().Info("schema applied", zap.Int("targets", len(cfg.Targets)))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

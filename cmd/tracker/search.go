package main

import (
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/tavvarez/whatsapp-bot-resonance/internal/domain/model"
	"github.com/tavvarez/whatsapp-bot-resonance/internal/infra/persistence/es"
)

var searchSize int

var searchCmd = &cobra.Command{
	Use:   "search <player>",
	Short: "Search the death archive for a player",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Elasticsearch.Address == "" {
			return eris.New("search: elasticsearch.address is not configured")
		}
		client, err := es.InitTypedEsClient[*model.DeathDoc](cfg)
		if err != nil {
			return eris.Wrap(err, "search")
		}

		archive := es.NewDeathArchive(client)
		docs, total, err := archive.SearchPlayer(cmd.Context(), args[0], searchSize)
		if err != nil {
			return eris.Wrap(err, "search")
		}
		archived, err := archive.Count(cmd.Context())
		if err != nil {
			return eris.Wrap(err, "search")
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%d of %d archived deaths match\n", total, archived)
		for _, d := range docs {
			fmt.Fprintf(out, "%s  %-20s lvl %-5d %s  [%s/%s]\n",
				d.OccurredAt.Format(time.DateTime), d.PlayerName, d.Level, d.Cause, d.World, d.Guild)
		}
		return nil
	},
}

func init() {
	searchCmd.Flags().IntVarP(&searchSize, "size", "n", 20, "maximum hits to print")
	rootCmd.AddCommand(searchCmd)
}

package es

import (
	"context"

	"github.com/elastic/go-elasticsearch/v9/typedapi/types"
	"github.com/tavvarez/whatsapp-bot-resonance/internal/domain/entity"
	"github.com/tavvarez/whatsapp-bot-resonance/internal/domain/model"
)

// DeathArchive keeps a searchable copy of every ingested death.
type DeathArchive struct {
	client TypedEsClient[*model.DeathDoc]
}

func NewDeathArchive(client TypedEsClient[*model.DeathDoc]) *DeathArchive {
	return &DeathArchive{client: client}
}

// ArchiveDeaths indexes events keyed by their hash.
func (a *DeathArchive) ArchiveDeaths(ctx context.Context, events []entity.DeathEvent) error {
	docs := make([]*model.DeathDoc, 0, len(events))
	for _, e := range events {
		docs = append(docs, e.ToDocument())
	}
	return a.client.BulkIndexDocsWithID(ctx, docs)
}

// SearchPlayer returns the archived deaths matching player.
func (a *DeathArchive) SearchPlayer(ctx context.Context, player string, size int) ([]*model.DeathDoc, int64, error) {
	query := &types.Query{
		Match: map[string]types.MatchQuery{
			"player_name": {Query: player},
		},
	}
	return a.client.SearchDoc(ctx, query, 0, size)
}

// Count reports how many deaths the archive holds.
func (a *DeathArchive) Count(ctx context.Context) (int64, error) {
	return a.client.CountDocs(ctx)
}

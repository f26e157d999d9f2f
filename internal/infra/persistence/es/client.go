package es

import (
	"context"

	"github.com/elastic/go-elasticsearch/v9/typedapi/types"
	"github.com/tavvarez/whatsapp-bot-resonance/internal/domain/model"
)

// TypedEsClient stores documents of one kind in their index.
type TypedEsClient[D model.Document] interface {
	Index() string
	CreateIndexWithMapping(ctx context.Context) error
	// BulkIndexDocsWithID indexes docs under their own IDs, so re-archiving
	// a document overwrites it.
	BulkIndexDocsWithID(ctx context.Context, docs []D) error
	CountDocs(ctx context.Context) (int64, error)
	SearchDoc(ctx context.Context, query *types.Query, from, size int) ([]D, int64, error)
}

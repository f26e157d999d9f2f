package es

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/elastic/go-elasticsearch/v9"
	"github.com/elastic/go-elasticsearch/v9/esutil"
	"github.com/elastic/go-elasticsearch/v9/typedapi/types"
	"github.com/rotisserie/eris"
	"github.com/tavvarez/whatsapp-bot-resonance/internal/config"
	"github.com/tavvarez/whatsapp-bot-resonance/internal/domain/model"
	"go.uber.org/zap"
)

type typedEsClient[D model.Document] struct {
	client *elasticsearch.TypedClient
	index  string
	// schemaDoc only answers GetIndex and GetTypeMapping; it holds no data.
	schemaDoc D
}

// InitTypedEsClient connects to the cluster in cfg.Elasticsearch. The
// index defaults to the document's own when the configuration names none.
func InitTypedEsClient[D model.Document](cfg *config.Config) (TypedEsClient[D], error) {
	typedClient, err := elasticsearch.NewTypedClient(elasticsearch.Config{
		Username:  cfg.Elasticsearch.Username,
		Password:  cfg.Elasticsearch.Password,
		Addresses: []string{cfg.Elasticsearch.Address},
		Transport: &http.Transport{
			MaxIdleConnsPerHost:   10,
			ResponseHeaderTimeout: 30 * time.Second,
			IdleConnTimeout:       90 * time.Second,
		},
	})
	if err != nil {
		return nil, eris.Wrap(err, "es: init client")
	}

	tec := &typedEsClient[D]{client: typedClient}
	tec.index = cfg.Elasticsearch.Index
	if tec.index == "" {
		tec.index = tec.schemaDoc.GetIndex()
	}
	return tec, nil
}

func (tec *typedEsClient[D]) Index() string {
	return tec.index
}

func (tec *typedEsClient[D]) CreateIndexWithMapping(ctx context.Context) error {
	exists, err := tec.client.Indices.Exists(tec.index).Do(ctx)
	if err != nil {
		return eris.Wrapf(err, "es: check index %s", tec.index)
	}
	if exists {
		zap.L().Debug("es: index already exists", zap.String("index", tec.index))
		return nil
	}

	create := tec.client.Indices.Create(tec.index)
	if mapping := tec.schemaDoc.GetTypeMapping(); mapping != nil {
		create = create.Mappings(mapping)
	}
	if _, err := create.Do(ctx); err != nil {
		return eris.Wrapf(err, "es: create index %s", tec.index)
	}
	zap.L().Info("es: index created", zap.String("index", tec.index))
	return nil
}

func (tec *typedEsClient[D]) BulkIndexDocsWithID(ctx context.Context, docs []D) error {
	if len(docs) == 0 {
		return nil
	}
	var failed atomic.Int64
	bi, err := esutil.NewBulkIndexer(esutil.BulkIndexerConfig{
		Index:      tec.index,
		Client:     tec.client,
		NumWorkers: 1,
		FlushBytes: 5 * 1024 * 1024,
		OnError: func(ctx context.Context, err error) {
			zap.L().Error("es: bulk indexer", zap.Error(err))
		},
	})
	if err != nil {
		return eris.Wrap(err, "es: create bulk indexer")
	}

	for _, doc := range docs {
		data, err := json.Marshal(doc)
		if err != nil {
			bi.Close(ctx) //nolint:errcheck
			return eris.Wrapf(err, "es: marshal doc %s", doc.GetID())
		}
		err = bi.Add(ctx, esutil.BulkIndexerItem{
			Action:     "index",
			DocumentID: doc.GetID(),
			Body:       bytes.NewReader(data),
			OnFailure: func(ctx context.Context, item esutil.BulkIndexerItem, res esutil.BulkIndexerResponseItem, err error) {
				failed.Add(1)
				reason := res.Error.Reason
				if err != nil {
					reason = err.Error()
				}
				zap.L().Warn("es: doc not indexed", zap.String("id", item.DocumentID), zap.String("reason", reason))
			},
		})
		if err != nil {
			bi.Close(ctx) //nolint:errcheck
			return eris.Wrapf(err, "es: queue doc %s", doc.GetID())
		}
	}

	if err := bi.Close(ctx); err != nil {
		return eris.Wrap(err, "es: flush bulk indexer")
	}
	stats := bi.Stats()
	if n := failed.Load(); n > 0 || stats.NumFailed > 0 {
		return eris.Errorf("es: %d of %d docs failed to index", max(n, int64(stats.NumFailed)), len(docs))
	}
	zap.L().Debug("es: bulk indexed", zap.String("index", tec.index), zap.Uint64("indexed", stats.NumIndexed))
	return nil
}

func (tec *typedEsClient[D]) CountDocs(ctx context.Context) (int64, error) {
	resp, err := tec.client.Count().Index(tec.index).Do(ctx)
	if err != nil {
		return 0, eris.Wrapf(err, "es: count %s", tec.index)
	}
	return resp.Count, nil
}

func (tec *typedEsClient[D]) SearchDoc(ctx context.Context, query *types.Query, from, size int) ([]D, int64, error) {
	resp, err := tec.client.Search().
		Index(tec.index).
		Query(query).
		From(from).
		Size(size).
		Do(ctx)
	if err != nil {
		return nil, 0, eris.Wrapf(err, "es: search %s", tec.index)
	}

	results := make([]D, 0, len(resp.Hits.Hits))
	for _, hit := range resp.Hits.Hits {
		var doc D
		if err := json.Unmarshal(hit.Source_, &doc); err != nil {
			zap.L().Warn("es: skipping undecodable hit", zap.Error(err))
			continue
		}
		results = append(results, doc)
	}

	var total int64
	if resp.Hits.Total != nil {
		total = resp.Hits.Total.Value
	}
	return results, total, nil
}

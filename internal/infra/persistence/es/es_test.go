package es

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tavvarez/whatsapp-bot-resonance/internal/config"
	"github.com/tavvarez/whatsapp-bot-resonance/internal/domain/entity"
	"github.com/tavvarez/whatsapp-bot-resonance/internal/domain/model"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	zap.ReplaceGlobals(zap.NewNop())
	m.Run()
}

// fakeCluster answers the handful of endpoints the client uses.
type fakeCluster struct {
	mu          sync.Mutex
	indexExists bool
	created     string
	bulkIDs     []string
	failBulk    bool
	docs        map[string]model.DeathDoc
}

func (f *fakeCluster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	w.Header().Set("X-Elastic-Product", "Elasticsearch")
	w.Header().Set("Content-Type", "application/json")

	switch {
	case r.Method == http.MethodHead && r.URL.Path == "/guild_deaths":
		if !f.indexExists {
			w.WriteHeader(http.StatusNotFound)
		}
	case r.Method == http.MethodPut && r.URL.Path == "/guild_deaths":
		body, _ := io.ReadAll(r.Body)
		f.created = string(body)
		f.indexExists = true
		fmt.Fprint(w, `{"acknowledged":true,"shards_acknowledged":true,"index":"guild_deaths"}`)
	case strings.HasSuffix(r.URL.Path, "/_bulk"):
		f.bulk(w, r)
	case strings.HasSuffix(r.URL.Path, "/_count"):
		fmt.Fprintf(w, `{"count":%d,"_shards":{"total":1,"successful":1,"skipped":0,"failed":0}}`, len(f.docs))
	case strings.HasSuffix(r.URL.Path, "/_search"):
		var hits []string
		for id, d := range f.docs {
			src, _ := json.Marshal(d)
			hits = append(hits, fmt.Sprintf(`{"_index":"guild_deaths","_id":%q,"_score":1.0,"_source":%s}`, id, src))
		}
		fmt.Fprintf(w, `{"took":1,"timed_out":false,"_shards":{"total":1,"successful":1,"skipped":0,"failed":0},"hits":{"total":{"value":%d,"relation":"eq"},"max_score":1.0,"hits":[%s]}}`,
			len(hits), strings.Join(hits, ","))
	default:
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"error":{"type":"not_found","reason":"unexpected request"},"status":404}`)
	}
}

func (f *fakeCluster) bulk(w http.ResponseWriter, r *http.Request) {
	var items []string
	sc := bufio.NewScanner(r.Body)
	sc.Buffer(make([]byte, 1024*1024), 1024*1024)
	action := true
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		if action {
			var meta struct {
				Index struct {
					ID string `json:"_id"`
				} `json:"index"`
			}
			_ = json.Unmarshal(line, &meta)
			f.bulkIDs = append(f.bulkIDs, meta.Index.ID)
			if f.failBulk {
				items = append(items, fmt.Sprintf(`{"index":{"_index":"guild_deaths","_id":%q,"status":400,"error":{"type":"mapper_parsing_exception","reason":"bad level"}}}`, meta.Index.ID))
			} else {
				items = append(items, fmt.Sprintf(`{"index":{"_index":"guild_deaths","_id":%q,"status":201,"result":"created"}}`, meta.Index.ID))
			}
		}
		action = !action
	}
	fmt.Fprintf(w, `{"took":1,"errors":%t,"items":[%s]}`, f.failBulk, strings.Join(items, ","))
}

func newTestClient(t *testing.T, cluster *fakeCluster, index string) TypedEsClient[*model.DeathDoc] {
	t.Helper()
	srv := httptest.NewServer(cluster)
	t.Cleanup(srv.Close)

	raw := fmt.Sprintf(`{"elasticsearch":{"address":%q,"index":%q},"pool":{"cookie_file":"/tmp/s.json"},"store":{"dsn":"/tmp/t.db"}}`, srv.URL, index)
	cfg, err := config.ParseConfig([]byte(raw))
	require.NoError(t, err)

	client, err := InitTypedEsClient[*model.DeathDoc](cfg)
	require.NoError(t, err)
	return client
}

func deaths() []entity.DeathEvent {
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	return []entity.DeathEvent{
		entity.NewDeathEvent("Elysian", "Resonance", "Knight", 300, at, "02.01.2024, 00:04:05 Knight died at level 300 by a dragon lord."),
		entity.NewDeathEvent("Elysian", "Resonance", "Druid", 120, at.Add(time.Minute), "02.01.2024, 00:05:05 Druid died at level 120 by a hydra."),
	}
}

func TestCreateIndexWithMapping(t *testing.T) {
	cluster := &fakeCluster{}
	client := newTestClient(t, cluster, "guild_deaths")
	ctx := context.Background()

	require.NoError(t, client.CreateIndexWithMapping(ctx))
	assert.Contains(t, cluster.created, `"player_name"`)
	assert.Contains(t, cluster.created, `"occurred_at"`)

	cluster.created = ""
	require.NoError(t, client.CreateIndexWithMapping(ctx))
	assert.Empty(t, cluster.created, "existing index is left alone")
}

func TestIndexDefaultsToDocumentIndex(t *testing.T) {
	client := newTestClient(t, &fakeCluster{}, "")
	assert.Equal(t, model.DeathIndex, client.Index())
}

func TestArchiveDeathsUsesHashAsID(t *testing.T) {
	cluster := &fakeCluster{}
	archive := NewDeathArchive(newTestClient(t, cluster, "guild_deaths"))

	events := deaths()
	require.NoError(t, archive.ArchiveDeaths(context.Background(), events))
	assert.Equal(t, []string{events[0].Hash, events[1].Hash}, cluster.bulkIDs)

	require.NoError(t, archive.ArchiveDeaths(context.Background(), nil))
	assert.Len(t, cluster.bulkIDs, 2)
}

func TestArchiveDeathsReportsFailures(t *testing.T) {
	cluster := &fakeCluster{failBulk: true}
	archive := NewDeathArchive(newTestClient(t, cluster, "guild_deaths"))

	err := archive.ArchiveDeaths(context.Background(), deaths())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 of 2 docs failed")
}

func TestCountAndSearch(t *testing.T) {
	events := deaths()
	doc := events[0].ToDocument()
	cluster := &fakeCluster{docs: map[string]model.DeathDoc{doc.ID: *doc}}
	archive := NewDeathArchive(newTestClient(t, cluster, "guild_deaths"))
	ctx := context.Background()

	n, err := archive.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	found, total, err := archive.SearchPlayer(ctx, "knight", 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, found, 1)
	assert.Equal(t, "Knight", found[0].PlayerName)
	assert.Equal(t, "by a dragon lord.", found[0].Cause)
	assert.True(t, found[0].OccurredAt.Equal(doc.OccurredAt))
}

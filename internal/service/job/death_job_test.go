package job

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tavvarez/whatsapp-bot-resonance/internal/domain/entity"
	"github.com/tavvarez/whatsapp-bot-resonance/internal/infra/crawler/types"
)

var t0 = time.Date(2024, 3, 10, 14, 0, 0, 0, time.UTC)

func TestIngestStopsAfterDuplicateRun(t *testing.T) {
	a := death("G", "A", 100, t0.Add(4*time.Minute))
	b := death("G", "B", 100, t0.Add(3*time.Minute))
	c := death("G", "C", 100, t0.Add(2*time.Minute))
	d := death("G", "D", 100, t0.Add(time.Minute))
	repo := newMemDeaths(b, c)

	res, err := IngestDeaths(context.Background(), repo, []entity.DeathEvent{a, b, c, d}, 2)
	require.NoError(t, err)
	assert.Equal(t, 4, res.Fetched)
	assert.Equal(t, 2, res.Duplicates)
	assert.True(t, res.StoppedEarly)
	require.Len(t, res.Saved, 1)
	assert.Equal(t, "A", res.Saved[0].PlayerName)
	assert.NotEmpty(t, res.Saved[0].ID)
	// D sits below the duplicate run and is not looked at.
	assert.Equal(t, []string{"B", "C", "A"}, repo.savedNames())
}

func TestIngestResetsRunOnNewEvent(t *testing.T) {
	a := death("G", "A", 100, t0.Add(4*time.Minute))
	b := death("G", "B", 100, t0.Add(3*time.Minute))
	c := death("G", "C", 100, t0.Add(2*time.Minute))
	d := death("G", "D", 100, t0.Add(time.Minute))
	repo := newMemDeaths(a, c)

	res, err := IngestDeaths(context.Background(), repo, []entity.DeathEvent{a, b, c, d}, 2)
	require.NoError(t, err)
	assert.False(t, res.StoppedEarly)
	assert.Equal(t, []string{"A", "C", "B", "D"}, repo.savedNames())
}

func TestIngestNewEventBelowDuplicateRunIsMissed(t *testing.T) {
	d1 := death("G", "D1", 100, t0.Add(5*time.Minute))
	d2 := death("G", "D2", 100, t0.Add(4*time.Minute))
	n := death("G", "N", 100, t0.Add(3*time.Minute))
	d3 := death("G", "D3", 100, t0.Add(2*time.Minute))
	d4 := death("G", "D4", 100, t0.Add(time.Minute))
	repo := newMemDeaths(d1, d2, d3, d4)
	repo.lookups = 0

	res, err := IngestDeaths(context.Background(), repo, []entity.DeathEvent{d1, d2, n, d3, d4}, 2)
	require.NoError(t, err)
	assert.Empty(t, res.Saved)
	assert.Equal(t, 2, res.Duplicates)
	assert.Equal(t, 2, repo.lookups)
	assert.True(t, res.StoppedEarly)
	assert.Equal(t, []string{"D1", "D2", "D3", "D4"}, repo.savedNames())
}

func TestIngestIsIdempotent(t *testing.T) {
	events := []entity.DeathEvent{
		death("G", "A", 100, t0.Add(2*time.Minute)),
		death("G", "B", 90, t0.Add(time.Minute)),
		death("G", "C", 80, t0),
	}
	repo := newMemDeaths()
	ctx := context.Background()

	first, err := IngestDeaths(ctx, repo, events, 0)
	require.NoError(t, err)
	assert.Len(t, first.Saved, 3)

	second, err := IngestDeaths(ctx, repo, events, 0)
	require.NoError(t, err)
	assert.Empty(t, second.Saved)
	assert.Len(t, repo.savedNames(), 3)
}

func TestIngestSaveError(t *testing.T) {
	repo := newMemDeaths()
	repo.saveErr = errors.New("disk full")
	_, err := IngestDeaths(context.Background(), repo, []entity.DeathEvent{death("G", "A", 1, t0)}, 2)
	assert.Error(t, err)
}

type recordingArchive struct {
	events []entity.DeathEvent
	err    error
}

func (a *recordingArchive) ArchiveDeaths(_ context.Context, events []entity.DeathEvent) error {
	a.events = append(a.events, events...)
	return a.err
}

func TestDeathJobExecute(t *testing.T) {
	quiet := hunted("Quiet Guild", "chat-1")
	quiet.NotifyDeaths = false
	repos := testRepos(newMemDeaths(), newMemPlayers(), hunted("Alpha", "chat-1"), hunted("Beta", "chat-2"), quiet)
	s := &fakeScraper{
		deaths: map[string][]entity.DeathEvent{
			"Alpha": {death("Alpha", "A1", 100, t0)},
			"Beta":  {death("Beta", "B1", 200, t0), death("Beta", "B2", 210, t0.Add(-time.Hour))},
		},
	}
	factory := &fakeFactory{scraper: s}
	archive := &recordingArchive{err: errors.New("es down")}

	err := InitDeathJob(repos, factory, archive, 2).Execute(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"rubinot"}, factory.built, "one scraper per world")
	require.Len(t, s.deathCalls, 2)
	assert.Equal(t, "Elysian", s.deathCalls[0].World)
	assert.Equal(t, "12", s.deathCalls[0].WorldIdentifier)
	assert.Equal(t, []string{"A1", "B1", "B2"}, repos.Deaths.(*memDeaths).savedNames())
	assert.Len(t, archive.events, 3, "archive failures do not fail ingestion")
}

func TestDeathJobSkipsFailingGuild(t *testing.T) {
	repos := testRepos(newMemDeaths(), newMemPlayers(), hunted("Alpha", "c"), hunted("Beta", "c"))
	s := &fakeScraper{
		deaths: map[string][]entity.DeathEvent{"Beta": {death("Beta", "B1", 200, t0)}},
		errs:   map[string]error{"Alpha": &types.RetriesExhaustedError{Attempts: 3, Err: &types.ChallengeBlockedError{URL: "u"}}},
	}
	err := InitDeathJob(repos, &fakeFactory{scraper: s}, nil, 2).Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"B1"}, repos.Deaths.(*memDeaths).savedNames())
}

func TestDeathJobStopsOnPermanentBlock(t *testing.T) {
	repos := testRepos(newMemDeaths(), newMemPlayers(), hunted("Alpha", "c"), hunted("Beta", "c"))
	s := &fakeScraper{errs: map[string]error{"Alpha": &types.PermanentBlockError{URL: "u", Marker: "error 1020"}}}

	err := InitDeathJob(repos, &fakeFactory{scraper: s}, nil, 2).Execute(context.Background())
	assert.True(t, types.IsPermanentBlock(err))
	assert.Len(t, s.deathCalls, 1)
}

func TestDeathJobSkipsUnresolvableWorld(t *testing.T) {
	lost := hunted("Lost", "c")
	lost.WorldID = "missing"
	repos := testRepos(newMemDeaths(), newMemPlayers(), lost, hunted("Alpha", "c"))
	s := &fakeScraper{deaths: map[string][]entity.DeathEvent{"Alpha": {death("Alpha", "A1", 100, t0)}}}

	require.NoError(t, InitDeathJob(repos, &fakeFactory{scraper: s}, nil, 2).Execute(context.Background()))
	assert.Len(t, s.deathCalls, 1)
}

func TestDeathJobUnsupportedServer(t *testing.T) {
	repos := testRepos(newMemDeaths(), newMemPlayers(), hunted("Alpha", "c"))
	factory := &fakeFactory{err: errors.New("unsupported")}
	require.NoError(t, InitDeathJob(repos, factory, nil, 2).Execute(context.Background()))
}

package job

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/tavvarez/whatsapp-bot-resonance/internal/domain/entity"
	"github.com/tavvarez/whatsapp-bot-resonance/internal/domain/message"
	"github.com/tavvarez/whatsapp-bot-resonance/internal/domain/repository"
	"github.com/tavvarez/whatsapp-bot-resonance/internal/service/scraper"
	"github.com/tavvarez/whatsapp-bot-resonance/param"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	zap.ReplaceGlobals(zap.NewNop())
	m.Run()
}

type memDeaths struct {
	mu       sync.Mutex
	byHash   map[string]*entity.DeathEvent
	order    []string
	saveErr  error
	notified []string
	lookups  int
}

func newMemDeaths(known ...entity.DeathEvent) *memDeaths {
	d := &memDeaths{byHash: map[string]*entity.DeathEvent{}}
	for i := range known {
		_ = d.Save(context.Background(), &known[i])
	}
	return d
}

func (d *memDeaths) ExistsByHash(_ context.Context, hash string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lookups++
	_, ok := d.byHash[hash]
	return ok, nil
}

func (d *memDeaths) Save(_ context.Context, e *entity.DeathEvent) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.saveErr != nil {
		return d.saveErr
	}
	e.ID = fmt.Sprintf("d%d", len(d.order)+1)
	e.CreatedAt = time.Now()
	cp := *e
	d.byHash[e.Hash] = &cp
	d.order = append(d.order, e.Hash)
	return nil
}

func (d *memDeaths) FindUnnotified(_ context.Context, limit int, guilds ...string) ([]entity.DeathEvent, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []entity.DeathEvent
	for _, h := range d.order {
		e := d.byHash[h]
		if e.NotifiedAt != nil || (len(guilds) > 0 && !slices.Contains(guilds, e.Guild)) {
			continue
		}
		out = append(out, *e)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].OccurredAt.Before(out[j].OccurredAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (d *memDeaths) MarkAsNotified(_ context.Context, ids []string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := time.Now()
	for _, e := range d.byHash {
		if slices.Contains(ids, e.ID) {
			e.NotifiedAt = &now
		}
	}
	d.notified = append(d.notified, ids...)
	return nil
}

func (d *memDeaths) savedNames() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []string
	for _, h := range d.order {
		out = append(out, d.byHash[h].PlayerName)
	}
	return out
}

type memPlayers struct {
	mu          sync.Mutex
	byName      map[string]*entity.TrackedPlayer
	chunks      []int
	inFlight    int
	maxInFlight int
}

func newMemPlayers(players ...entity.TrackedPlayer) *memPlayers {
	p := &memPlayers{byName: map[string]*entity.TrackedPlayer{}}
	for i := range players {
		pl := players[i]
		if pl.NormalizedName == "" {
			pl.NormalizedName = entity.NormalizeName(pl.PlayerName)
		}
		pl.IsActive = true
		p.byName[pl.NormalizedName] = &pl
	}
	return p
}

func (p *memPlayers) FindActiveByGuild(_ context.Context, guild string) ([]entity.TrackedPlayer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []entity.TrackedPlayer
	for _, pl := range p.byName {
		if pl.Guild == guild && pl.IsActive {
			out = append(out, *pl)
		}
	}
	return out, nil
}

func (p *memPlayers) ExistsByName(_ context.Context, name string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.byName[name]
	return ok, nil
}

func (p *memPlayers) Save(_ context.Context, in repository.CreateTrackedPlayerInput) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := entity.NormalizeName(in.PlayerName)
	p.byName[n] = &entity.TrackedPlayer{
		PlayerName:     in.PlayerName,
		NormalizedName: n,
		LastKnownLevel: in.Level,
		Vocation:       in.Vocation,
		Guild:          in.Guild,
		IsActive:       true,
	}
	return nil
}

func (p *memPlayers) BatchUpdateLevels(_ context.Context, updates []repository.LevelUpdate) error {
	p.mu.Lock()
	p.inFlight++
	p.maxInFlight = max(p.maxInFlight, p.inFlight)
	p.chunks = append(p.chunks, len(updates))
	for _, u := range updates {
		if pl, ok := p.byName[u.NormalizedName]; ok {
			day := u.Day
			pl.LastKnownLevel = u.NewLevel
			pl.LevelGainToday = u.TotalGainToday
			pl.LastLevelUpDate = &day
		}
	}
	p.mu.Unlock()

	time.Sleep(5 * time.Millisecond)

	p.mu.Lock()
	p.inFlight--
	p.mu.Unlock()
	return nil
}

func (p *memPlayers) Deactivate(_ context.Context, name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if pl, ok := p.byName[name]; ok {
		pl.IsActive = false
	}
	return nil
}

func (p *memPlayers) get(name string) entity.TrackedPlayer {
	p.mu.Lock()
	defer p.mu.Unlock()
	return *p.byName[entity.NormalizeName(name)]
}

type memGuilds []entity.HuntedGuild

func (g memGuilds) ListAllActive(context.Context) ([]entity.HuntedGuild, error) {
	return g, nil
}

type memWorlds map[string]entity.GameWorld

func (w memWorlds) FindByID(_ context.Context, id string) (*entity.GameWorld, error) {
	world, ok := w[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &world, nil
}

type memServers map[string]entity.GameServer

func (s memServers) FindByID(_ context.Context, id string) (*entity.GameServer, error) {
	server, ok := s[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &server, nil
}

type fakeScraper struct {
	mu          sync.Mutex
	deaths      map[string][]entity.DeathEvent
	roster      map[string][]entity.GuildMember
	errs        map[string]error
	deathCalls  []param.DeathTarget
	rosterCalls []string
}

var _ scraper.Scraper = (*fakeScraper)(nil)

func (f *fakeScraper) FetchDeaths(_ context.Context, target param.DeathTarget) ([]entity.DeathEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deathCalls = append(f.deathCalls, target)
	if err := f.errs[target.Guild]; err != nil {
		return nil, err
	}
	return f.deaths[target.Guild], nil
}

func (f *fakeScraper) FetchRoster(_ context.Context, target param.RosterTarget) ([]entity.GuildMember, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rosterCalls = append(f.rosterCalls, target.Guild)
	if err := f.errs[target.Guild]; err != nil {
		return nil, err
	}
	return f.roster[target.Guild], nil
}

type fakeFactory struct {
	scraper *fakeScraper
	err     error
	built   []string
}

func (f *fakeFactory) New(server entity.GameServer) (scraper.Scraper, error) {
	f.built = append(f.built, server.Name)
	if f.err != nil {
		return nil, f.err
	}
	return f.scraper, nil
}

type sentMessage struct {
	chatID string
	text   string
}

type recordingSender struct {
	mu       sync.Mutex
	messages []sentMessage
	failFrom int
	err      error
}

func (s *recordingSender) SendMessage(_ context.Context, chatID string, content message.Content) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil && len(s.messages) >= s.failFrom {
		return s.err
	}
	s.messages = append(s.messages, sentMessage{chatID: chatID, text: content.Text})
	return nil
}

var (
	testServer = entity.GameServer{ID: "s1", Name: "rubinot", DisplayName: "RubinOT", BaseURL: "https://rubinot.com.br", ScraperType: entity.ScraperRubinot, IsActive: true}
	testWorld  = entity.GameWorld{ID: "w1", ServerID: "s1", Name: "Elysian", Identifier: "12", IsActive: true}
)

func testRepos(deaths *memDeaths, players *memPlayers, guilds ...entity.HuntedGuild) Repos {
	return Repos{
		Deaths:  deaths,
		Players: players,
		Guilds:  memGuilds(guilds),
		Worlds:  memWorlds{testWorld.ID: testWorld},
		Servers: memServers{testServer.ID: testServer},
	}
}

func hunted(name, chat string) entity.HuntedGuild {
	return entity.HuntedGuild{
		ID:                  "g-" + name,
		TenantID:            "t1",
		ChatID:              chat,
		WorldID:             testWorld.ID,
		GuildName:           name,
		GuildNameNormalized: entity.NormalizeName(name),
		NotifyDeaths:        true,
		NotifyLevelUps:      true,
		IsActive:            true,
	}
}

func death(guild, player string, level int, at time.Time) entity.DeathEvent {
	return entity.NewDeathEvent(testWorld.Name, guild, player, level, at,
		fmt.Sprintf("%s %s died at level %d by a dragon.", at.Format("2.1.2006, 15:04:05"), player, level))
}

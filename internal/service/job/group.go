package job

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"github.com/tavvarez/whatsapp-bot-resonance/internal/domain/entity"
	"github.com/tavvarez/whatsapp-bot-resonance/internal/domain/repository"
	"github.com/tavvarez/whatsapp-bot-resonance/internal/infra/crawler/types"
	"github.com/tavvarez/whatsapp-bot-resonance/internal/service/scraper"
	"go.uber.org/zap"
)

// ScraperFactory builds the scraper a server needs.
type ScraperFactory interface {
	New(server entity.GameServer) (scraper.Scraper, error)
}

// Repos are the stores the jobs read and write.
type Repos struct {
	Deaths  repository.DeathRepository
	Players repository.TrackedPlayerRepository
	Guilds  repository.HuntedGuildRepository
	Worlds  repository.GameWorldRepository
	Servers repository.GameServerRepository
}

func ReposFrom(s repository.Store) Repos {
	return Repos{
		Deaths:  s.Deaths(),
		Players: s.Players(),
		Guilds:  s.Guilds(),
		Worlds:  s.Worlds(),
		Servers: s.Servers(),
	}
}

// worldGroup is the guilds of one world with the world and server resolved.
type worldGroup struct {
	world   entity.GameWorld
	server  entity.GameServer
	guilds  []entity.HuntedGuild
	scraper scraper.Scraper
}

// activeGuilds lists the active guilds keep accepts.
func activeGuilds(ctx context.Context, repo repository.HuntedGuildRepository, keep func(entity.HuntedGuild) bool) ([]entity.HuntedGuild, error) {
	all, err := repo.ListAllActive(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "job: list hunted guilds")
	}
	var out []entity.HuntedGuild
	for _, g := range all {
		if keep(g) {
			out = append(out, g)
		}
	}
	return out, nil
}

// groupByWorld resolves each world and its server once and builds the
// scraper for it. Worlds that cannot be resolved are logged and left out.
func groupByWorld(ctx context.Context, repos Repos, factory ScraperFactory, guilds []entity.HuntedGuild) []*worldGroup {
	var (
		order  []*worldGroup
		byID   = map[string]*worldGroup{}
		failed = map[string]bool{}
	)
	for _, g := range guilds {
		if failed[g.WorldID] {
			continue
		}
		if wg, ok := byID[g.WorldID]; ok {
			wg.guilds = append(wg.guilds, g)
			continue
		}
		wg, err := resolveWorld(ctx, repos, factory, g.WorldID)
		if err != nil {
			zap.L().Warn("job: skipping world", zap.String("world_id", g.WorldID), zap.Error(err))
			failed[g.WorldID] = true
			continue
		}
		wg.guilds = append(wg.guilds, g)
		byID[g.WorldID] = wg
		order = append(order, wg)
	}
	return order
}

func resolveWorld(ctx context.Context, repos Repos, factory ScraperFactory, worldID string) (*worldGroup, error) {
	world, err := repos.Worlds.FindByID(ctx, worldID)
	if err != nil {
		return nil, eris.Wrap(err, "job: find world")
	}
	if !world.IsActive {
		return nil, eris.Errorf("job: world %s is inactive", world.Name)
	}
	server, err := repos.Servers.FindByID(ctx, world.ServerID)
	if err != nil {
		return nil, eris.Wrapf(err, "job: find server of world %s", world.Name)
	}
	if !server.IsActive {
		return nil, eris.Errorf("job: server %s is inactive", server.Name)
	}
	s, err := factory.New(*server)
	if err != nil {
		return nil, err
	}
	zap.L().Info("job: processing world",
		zap.String("world", world.Name),
		zap.String("server", server.DisplayName))
	return &worldGroup{world: *world, server: *server, scraper: s}, nil
}

// groupByChat groups guilds by the chat their alerts go to, in first-seen
// order. Guilds without a chat are dropped.
func groupByChat(guilds []entity.HuntedGuild) ([]string, map[string][]entity.HuntedGuild) {
	var order []string
	byChat := map[string][]entity.HuntedGuild{}
	for _, g := range guilds {
		if g.ChatID == "" {
			zap.L().Warn("job: guild has no chat", zap.String("guild", g.GuildName))
			continue
		}
		if _, ok := byChat[g.ChatID]; !ok {
			order = append(order, g.ChatID)
		}
		byChat[g.ChatID] = append(byChat[g.ChatID], g)
	}
	return order, byChat
}

// stopsCycle reports whether err should end the whole run rather than one
// guild.
func stopsCycle(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.Is(err, context.Canceled) || types.IsPermanentBlock(err)
}

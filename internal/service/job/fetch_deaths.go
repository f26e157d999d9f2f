package job

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tavvarez/whatsapp-bot-resonance/internal/domain/entity"
	"github.com/tavvarez/whatsapp-bot-resonance/internal/service/scraper"
	"github.com/tavvarez/whatsapp-bot-resonance/param"
	"go.uber.org/zap"
)

// DeathArchive receives newly saved deaths for search. Failures there never
// fail ingestion.
type DeathArchive interface {
	ArchiveDeaths(ctx context.Context, events []entity.DeathEvent) error
}

type DeathJob interface {
	Execute(ctx context.Context) error
	ProcessGuild(ctx context.Context, s scraper.DeathScraper, world entity.GameWorld, guild entity.HuntedGuild) (IngestResult, error)
}

type deathJob struct {
	repos     Repos
	factory   ScraperFactory
	archive   DeathArchive
	threshold int
}

// InitDeathJob wires the death ingestion job. archive may be nil.
func InitDeathJob(repos Repos, factory ScraperFactory, archive DeathArchive, duplicateThreshold int) DeathJob {
	return &deathJob{
		repos:     repos,
		factory:   factory,
		archive:   archive,
		threshold: duplicateThreshold,
	}
}

// Execute ingests deaths for every active guild that wants death alerts,
// world by world. One guild failing does not stop the others; a permanent
// block does, and is returned.
func (j *deathJob) Execute(ctx context.Context) error {
	start := time.Now()
	guilds, err := activeGuilds(ctx, j.repos.Guilds, func(g entity.HuntedGuild) bool { return g.NotifyDeaths })
	if err != nil {
		return err
	}
	if len(guilds) == 0 {
		zap.L().Info("job: no guilds watch deaths")
		return nil
	}

	saved := 0
	for _, wg := range groupByWorld(ctx, j.repos, j.factory, guilds) {
		for _, g := range wg.guilds {
			res, err := j.ProcessGuild(ctx, wg.scraper, wg.world, g)
			if err != nil {
				if stopsCycle(ctx, err) {
					return eris.Wrap(err, "job: death cycle stopped")
				}
				zap.L().Error("job: death ingestion failed", zap.String("guild", g.GuildName), zap.Error(err))
				continue
			}
			saved += len(res.Saved)
		}
	}
	zap.L().Info("job: death cycle done",
		zap.Int("guilds", len(guilds)),
		zap.Int("saved", saved),
		zap.Duration("took", time.Since(start)))
	return nil
}

func (j *deathJob) ProcessGuild(ctx context.Context, s scraper.DeathScraper, world entity.GameWorld, guild entity.HuntedGuild) (IngestResult, error) {
	events, err := s.FetchDeaths(ctx, param.DeathTarget{
		World:           world.Name,
		WorldIdentifier: world.Identifier,
		Guild:           guild.GuildName,
	})
	if err != nil {
		return IngestResult{}, err
	}

	res, err := IngestDeaths(ctx, j.repos.Deaths, events, j.threshold)
	if err != nil {
		return res, err
	}
	zap.L().Info("job: deaths ingested",
		zap.String("guild", guild.GuildName),
		zap.Int("fetched", res.Fetched),
		zap.Int("saved", len(res.Saved)),
		zap.Int("duplicates", res.Duplicates))

	if j.archive != nil && len(res.Saved) > 0 {
		if err := j.archive.ArchiveDeaths(ctx, res.Saved); err != nil {
			zap.L().Warn("job: archive deaths", zap.String("guild", guild.GuildName), zap.Error(err))
		}
	}
	return res, nil
}

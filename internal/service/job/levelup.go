package job

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tavvarez/whatsapp-bot-resonance/internal/domain/entity"
	"github.com/tavvarez/whatsapp-bot-resonance/internal/domain/message"
	"github.com/tavvarez/whatsapp-bot-resonance/internal/domain/repository"
	"github.com/tavvarez/whatsapp-bot-resonance/internal/service/scraper"
	"github.com/tavvarez/whatsapp-bot-resonance/param"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultBotLevelThreshold = 4
	DefaultUpdateChunkSize   = 10
	DefaultUpdateParallelism = 3
)

type LevelUpConfig struct {
	// Location decides where a calendar day starts and ends.
	Location          *time.Location
	BotLevelThreshold int
	UpdateChunkSize   int
	UpdateParallelism int
	Now               func() time.Time
}

func (c *LevelUpConfig) defaults() {
	if c.Location == nil {
		c.Location = time.UTC
	}
	if c.BotLevelThreshold <= 0 {
		c.BotLevelThreshold = DefaultBotLevelThreshold
	}
	if c.UpdateChunkSize <= 0 {
		c.UpdateChunkSize = DefaultUpdateChunkSize
	}
	if c.UpdateParallelism <= 0 {
		c.UpdateParallelism = DefaultUpdateParallelism
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

type LevelUpJob interface {
	Execute(ctx context.Context) error
	ProcessGuild(ctx context.Context, s scraper.GuildScraper, guild entity.HuntedGuild) ([]entity.LevelUpEvent, error)
}

type levelUpJob struct {
	repos   Repos
	factory ScraperFactory
	sender  message.Sender
	cfg     LevelUpConfig
}

func InitLevelUpJob(repos Repos, factory ScraperFactory, sender message.Sender, cfg LevelUpConfig) LevelUpJob {
	cfg.defaults()
	return &levelUpJob{repos: repos, factory: factory, sender: sender, cfg: cfg}
}

// DetectLevelUps compares the roster against the stored baseline. Members
// without a baseline and levels that did not rise are ignored. The day's
// gain keeps accumulating while now falls on the same day in loc as the
// last level-up, and starts over otherwise.
func DetectLevelUps(members []entity.GuildMember, saved []entity.TrackedPlayer, now time.Time, loc *time.Location) []entity.LevelUpEvent {
	baseline := make(map[string]entity.TrackedPlayer, len(saved))
	for _, p := range saved {
		baseline[p.NormalizedName] = p
	}

	var events []entity.LevelUpEvent
	for _, m := range members {
		prev, ok := baseline[entity.NormalizeName(m.PlayerName)]
		if !ok || m.Level <= prev.LastKnownLevel {
			continue
		}
		gained := m.Level - prev.LastKnownLevel
		total := gained
		if prev.LastLevelUpDate != nil && entity.SameDay(*prev.LastLevelUpDate, now, loc) {
			total += prev.LevelGainToday
		}
		events = append(events, entity.LevelUpEvent{
			PlayerName:     m.PlayerName,
			OldLevel:       prev.LastKnownLevel,
			NewLevel:       m.Level,
			LevelsGained:   gained,
			TotalGainToday: total,
			Vocation:       m.Vocation,
		})
	}
	return events
}

func (j *levelUpJob) Execute(ctx context.Context) error {
	start := time.Now()
	guilds, err := activeGuilds(ctx, j.repos.Guilds, func(g entity.HuntedGuild) bool { return g.NotifyLevelUps })
	if err != nil {
		return err
	}
	if len(guilds) == 0 {
		zap.L().Info("job: no guilds watch level ups")
		return nil
	}

	detected := 0
	for _, wg := range groupByWorld(ctx, j.repos, j.factory, guilds) {
		for _, g := range wg.guilds {
			events, err := j.ProcessGuild(ctx, wg.scraper, g)
			if err != nil {
				if stopsCycle(ctx, err) {
					return eris.Wrap(err, "job: level up cycle stopped")
				}
				zap.L().Error("job: level up check failed", zap.String("guild", g.GuildName), zap.Error(err))
				continue
			}
			detected += len(events)
		}
	}
	zap.L().Info("job: level up cycle done",
		zap.Int("guilds", len(guilds)),
		zap.Int("level_ups", detected),
		zap.Duration("took", time.Since(start)))
	return nil
}

// ProcessGuild fetches the roster and reconciles it with the baseline. An
// empty baseline is seeded from the roster without any notification.
func (j *levelUpJob) ProcessGuild(ctx context.Context, s scraper.GuildScraper, guild entity.HuntedGuild) ([]entity.LevelUpEvent, error) {
	members, err := s.FetchRoster(ctx, param.RosterTarget{Guild: guild.GuildName})
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		zap.L().Warn("job: roster is empty", zap.String("guild", guild.GuildName))
		return nil, nil
	}

	saved, err := j.repos.Players.FindActiveByGuild(ctx, guild.GuildName)
	if err != nil {
		return nil, eris.Wrapf(err, "job: load baseline of %s", guild.GuildName)
	}
	if len(saved) == 0 {
		return nil, j.seedBaseline(ctx, guild, members)
	}

	now := j.cfg.Now()
	events := DetectLevelUps(members, saved, now, j.cfg.Location)
	if len(events) == 0 {
		zap.L().Info("job: no level ups", zap.String("guild", guild.GuildName))
		return nil, nil
	}

	updates := make([]repository.LevelUpdate, 0, len(events))
	for _, e := range events {
		updates = append(updates, repository.LevelUpdate{
			NormalizedName: entity.NormalizeName(e.PlayerName),
			NewLevel:       e.NewLevel,
			LevelsGained:   e.LevelsGained,
			TotalGainToday: e.TotalGainToday,
			Day:            now,
		})
	}
	if err := j.persist(ctx, updates); err != nil {
		return nil, eris.Wrapf(err, "job: update levels of %s", guild.GuildName)
	}

	j.notify(ctx, guild, events, now)
	return events, nil
}

func (j *levelUpJob) seedBaseline(ctx context.Context, guild entity.HuntedGuild, members []entity.GuildMember) error {
	added := 0
	for _, m := range members {
		exists, err := j.repos.Players.ExistsByName(ctx, entity.NormalizeName(m.PlayerName))
		if err != nil {
			return eris.Wrapf(err, "job: check player %s", m.PlayerName)
		}
		if exists {
			continue
		}
		if err := j.repos.Players.Save(ctx, repository.CreateTrackedPlayerInput{
			PlayerName: m.PlayerName,
			Level:      m.Level,
			Vocation:   m.Vocation,
			Guild:      guild.GuildName,
		}); err != nil {
			return eris.Wrapf(err, "job: save player %s", m.PlayerName)
		}
		added++
	}
	zap.L().Info("job: baseline seeded", zap.String("guild", guild.GuildName), zap.Int("players", added))
	return nil
}

// persist writes updates in chunks, a bounded number at a time.
func (j *levelUpJob) persist(ctx context.Context, updates []repository.LevelUpdate) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(j.cfg.UpdateParallelism)
	for start := 0; start < len(updates); start += j.cfg.UpdateChunkSize {
		chunk := updates[start:min(start+j.cfg.UpdateChunkSize, len(updates))]
		g.Go(func() error {
			return j.repos.Players.BatchUpdateLevels(gctx, chunk)
		})
	}
	return g.Wait()
}

func (j *levelUpJob) notify(ctx context.Context, guild entity.HuntedGuild, events []entity.LevelUpEvent, now time.Time) {
	var notable []entity.LevelUpEvent
	for _, e := range events {
		if e.NewLevel >= guild.MinLevelNotify {
			notable = append(notable, e)
		}
	}
	if len(notable) == 0 {
		zap.L().Info("job: level ups below notify threshold",
			zap.String("guild", guild.GuildName),
			zap.Int("level_ups", len(events)),
			zap.Int("min_level", guild.MinLevelNotify))
		return
	}
	if guild.ChatID == "" {
		zap.L().Warn("job: guild has no chat", zap.String("guild", guild.GuildName))
		return
	}

	text := message.FormatLevelUps(guild.GuildName, notable, now, j.cfg.Location, j.cfg.BotLevelThreshold)
	if err := j.sender.SendMessage(ctx, guild.ChatID, message.Content{Text: text}); err != nil {
		zap.L().Error("job: send level ups", zap.String("guild", guild.GuildName), zap.Error(err))
		return
	}
	zap.L().Info("job: level ups notified", zap.String("guild", guild.GuildName), zap.Int("count", len(notable)))
}

package app

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tavvarez/whatsapp-bot-resonance/internal/config"
	"github.com/tavvarez/whatsapp-bot-resonance/internal/domain/entity"
	"github.com/tavvarez/whatsapp-bot-resonance/internal/domain/message"
	"github.com/tavvarez/whatsapp-bot-resonance/internal/domain/model"
	"github.com/tavvarez/whatsapp-bot-resonance/internal/domain/repository"
	"github.com/tavvarez/whatsapp-bot-resonance/internal/infra/crawler/chrome"
	"github.com/tavvarez/whatsapp-bot-resonance/internal/infra/crawler/collector"
	"github.com/tavvarez/whatsapp-bot-resonance/internal/infra/crawler/evasion"
	"github.com/tavvarez/whatsapp-bot-resonance/internal/infra/crawler/pool"
	"github.com/tavvarez/whatsapp-bot-resonance/internal/infra/messaging/discord"
	"github.com/tavvarez/whatsapp-bot-resonance/internal/infra/persistence/es"
	"github.com/tavvarez/whatsapp-bot-resonance/internal/infra/persistence/postgres"
	"github.com/tavvarez/whatsapp-bot-resonance/internal/infra/persistence/sqlite"
	"github.com/tavvarez/whatsapp-bot-resonance/internal/service/job"
	"github.com/tavvarez/whatsapp-bot-resonance/internal/service/scraper"
	"go.uber.org/zap"
)

// App holds the long-lived components of one tracker process.
type App struct {
	Config  *config.Config
	Store   repository.Store
	Pool    *pool.Pool
	Factory *scraper.Factory
	Sender  message.Sender
	// Archive is nil when no Elasticsearch address is configured.
	Archive *es.DeathArchive

	SiteLocation *time.Location
	DayLocation  *time.Location

	closers []func() error
}

// New opens the store, seeds the configured targets and builds the
// scraping stack. The browser itself starts on first use.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg}

	var err error
	if a.SiteLocation, err = time.LoadLocation(cfg.Scraper.SiteTimezone); err != nil {
		return nil, eris.Wrap(err, "app: site timezone")
	}
	if a.DayLocation, err = time.LoadLocation(cfg.Jobs.LevelUpTimezone); err != nil {
		return nil, eris.Wrap(err, "app: level-up timezone")
	}

	store, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.Store = store
	a.closers = append(a.closers, store.Close)

	if err := SeedTargets(ctx, store, cfg.Targets); err != nil {
		a.Close(ctx)
		return nil, err
	}

	if err := a.buildScrapers(cfg); err != nil {
		a.Close(ctx)
		return nil, err
	}

	if err := a.buildSender(cfg); err != nil {
		a.Close(ctx)
		return nil, err
	}

	if cfg.Elasticsearch.Address != "" {
		client, err := es.InitTypedEsClient[*model.DeathDoc](cfg)
		if err != nil {
			a.Close(ctx)
			return nil, err
		}
		if err := client.CreateIndexWithMapping(ctx); err != nil {
			zap.L().Warn("app: death archive unavailable", zap.Error(err))
		} else {
			a.Archive = es.NewDeathArchive(client)
		}
	}
	return a, nil
}

// OpenStore opens and migrates the configured backend.
func OpenStore(ctx context.Context, cfg *config.Config) (repository.Store, error) {
	var store repository.Store
	switch cfg.Store.Driver {
	case "postgres":
		pg, err := postgres.New(ctx, cfg.Store.DSN, cfg.Store.MaxConns)
		if err != nil {
			return nil, err
		}
		store = pg
	default:
		lite, err := sqlite.Open(cfg.Store.DSN)
		if err != nil {
			return nil, err
		}
		store = lite
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close() //nolint:errcheck
		return nil, err
	}
	zap.L().Info("app: store ready", zap.String("driver", cfg.Store.Driver))
	return store, nil
}

// SeedTargets upserts every configured target.
func SeedTargets(ctx context.Context, seeder repository.Seeder, targets []config.Target) error {
	for _, t := range targets {
		scraperType, err := entity.ParseScraperType(t.ServerType)
		if err != nil {
			return eris.Wrapf(err, "app: target %s/%s", t.World, t.Guild)
		}
		g, err := seeder.SeedTarget(ctx, repository.SeedTarget{
			ServerName:      t.Server,
			ScraperType:     scraperType,
			BaseURL:         t.BaseURL,
			WorldName:       t.World,
			WorldIdentifier: t.WorldIdentifier,
			GuildName:       t.Guild,
			TenantID:        t.TenantID,
			ChatID:          t.ChatID,
			NotifyDeaths:    t.NotifyDeaths,
			NotifyLevelUps:  t.NotifyLevelUps,
			MinLevelNotify:  t.MinLevelNotify,
		})
		if err != nil {
			return eris.Wrapf(err, "app: seed %s/%s", t.World, t.Guild)
		}
		zap.L().Info("app: target seeded", zap.String("world", t.World), zap.String("guild", g.GuildName), zap.String("id", g.ID))
	}
	return nil
}

func (a *App) buildScrapers(cfg *config.Config) error {
	session := evasion.NewSession(cfg)
	driver, err := chrome.NewDriver(cfg.Browser.Driver, session.DriverConfig(cfg))
	if err != nil {
		return err
	}
	a.Pool = pool.New(driver, pool.NewCookieStore(cfg.Pool.CookieFile), pool.Config{
		MaxPages:    cfg.Pool.MaxPages,
		MaxLifetime: cfg.Pool.MaxLifetime,
	})

	rtCfg, err := evasion.RuntimeConfigFrom(cfg)
	if err != nil {
		return err
	}
	detector := evasion.NewChallengeDetector(cfg.Scraper.ChallengeMarkers, cfg.Scraper.BlockMarkers)
	rt := evasion.NewRuntime(a.Pool, detector, evasion.NewPacer(cfg.Scraper.HumanDelayMin, cfg.Scraper.HumanDelayMax), rtCfg)

	opts := collector.Options{
		UserAgent:      cfg.Browser.UserAgent,
		AcceptLanguage: cfg.Browser.AcceptLanguage,
		Timeout:        cfg.Scraper.HTTPTimeout,
		Delay:          cfg.Scraper.HumanDelayMin,
		RandomDelay:    cfg.Scraper.HumanDelayMax - cfg.Scraper.HumanDelayMin,
	}
	if session.Proxy != nil {
		opts.Proxy = session.Proxy.URL()
	}
	coll, err := collector.InitCollyCollector(opts)
	if err != nil {
		return err
	}

	a.Factory = scraper.NewFactory(rt, coll, detector, rtCfg.Retry, a.SiteLocation)
	return nil
}

func (a *App) buildSender(cfg *config.Config) error {
	if cfg.Discord.Token == "" {
		zap.L().Warn("app: no chat token, messages go to the log")
		a.Sender = message.LogSender{}
		return nil
	}
	s, err := discord.NewSender(cfg.Discord.Token)
	if err != nil {
		return err
	}
	a.Sender = s
	a.closers = append(a.closers, s.Close)
	return nil
}

func (a *App) repos() job.Repos {
	return job.ReposFrom(a.Store)
}

func (a *App) DeathJob() job.DeathJob {
	var archive job.DeathArchive
	if a.Archive != nil {
		archive = a.Archive
	}
	return job.InitDeathJob(a.repos(), a.Factory, archive, a.Config.Jobs.DuplicateThreshold)
}

func (a *App) LevelUpJob() job.LevelUpJob {
	return job.InitLevelUpJob(a.repos(), a.Factory, a.Sender, job.LevelUpConfig{
		Location:          a.DayLocation,
		BotLevelThreshold: a.Config.Jobs.BotLevelThreshold,
		UpdateChunkSize:   a.Config.Jobs.UpdateChunkSize,
		UpdateParallelism: a.Config.Jobs.UpdateParallelism,
	})
}

func (a *App) NotifyJob() job.NotifyJob {
	return job.InitNotifyJob(a.repos(), a.Sender, job.NotifyConfig{
		Limit:      a.Config.Jobs.NotifyLimit,
		BatchSize:  a.Config.Jobs.NotifyBatchSize,
		BatchDelay: a.Config.Jobs.NotifyBatchDelay,
		Location:   a.SiteLocation,
	})
}

// Scheduler registers the three periodic jobs. Level-ups start after the
// first death run has had time to use the browser.
func (a *App) Scheduler(opts ...job.SchedulerOption) *job.Scheduler {
	jobs := a.Config.Jobs
	s := job.NewScheduler(jobs.JitterMax, jobs.BlockCooldown, opts...)
	s.Add(job.Task{Name: "deaths", Interval: jobs.DeathInterval, Run: a.DeathJob().Execute})
	s.Add(job.Task{Name: "levelups", Interval: jobs.LevelUpInterval, StartDelay: jobs.LevelUpStartDelay, Run: a.LevelUpJob().Execute})
	s.Add(job.Task{Name: "notify", Interval: jobs.NotifyInterval, Run: a.NotifyJob().Execute})
	return s
}

// Close shuts the browser down and releases every resource, last opened
// first.
func (a *App) Close(ctx context.Context) {
	if a.Pool != nil {
		a.Pool.Shutdown(ctx)
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			zap.L().Warn("app: close", zap.Error(err))
		}
	}
	a.closers = nil
}

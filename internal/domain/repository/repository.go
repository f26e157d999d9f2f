package repository

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tavvarez/whatsapp-bot-resonance/internal/domain/entity"
)

var ErrNotFound = eris.New("repository: not found")

type DeathRepository interface {
	ExistsByHash(ctx context.Context, hash string) (bool, error)
	// Save stores e and fills in its ID and CreatedAt.
	Save(ctx context.Context, e *entity.DeathEvent) error
	// FindUnnotified returns the oldest unnotified deaths of the given
	// guilds, or of every guild when none are given.
	FindUnnotified(ctx context.Context, limit int, guilds ...string) ([]entity.DeathEvent, error)
	MarkAsNotified(ctx context.Context, ids []string) error
}

// CreateTrackedPlayerInput adds a guild member to the baseline with no gain.
type CreateTrackedPlayerInput struct {
	PlayerName string
	Level      int
	Vocation   string
	Guild      string
}

// LevelUpdate is the new baseline of one player after a level-up.
type LevelUpdate struct {
	NormalizedName string
	NewLevel       int
	LevelsGained   int
	TotalGainToday int
	Day            time.Time
}

type TrackedPlayerRepository interface {
	FindActiveByGuild(ctx context.Context, guild string) ([]entity.TrackedPlayer, error)
	ExistsByName(ctx context.Context, normalizedName string) (bool, error)
	Save(ctx context.Context, in CreateTrackedPlayerInput) error
	BatchUpdateLevels(ctx context.Context, updates []LevelUpdate) error
	Deactivate(ctx context.Context, normalizedName string) error
}

type HuntedGuildRepository interface {
	ListAllActive(ctx context.Context) ([]entity.HuntedGuild, error)
}

type GameWorldRepository interface {
	FindByID(ctx context.Context, id string) (*entity.GameWorld, error)
}

type GameServerRepository interface {
	FindByID(ctx context.Context, id string) (*entity.GameServer, error)
}

// SeedTarget describes one watched guild with its world and server, as
// written in the configuration file.
type SeedTarget struct {
	ServerName      string
	ScraperType     entity.ScraperType
	BaseURL         string
	WorldName       string
	WorldIdentifier string
	GuildName       string
	TenantID        string
	ChatID          string
	NotifyDeaths    bool
	NotifyLevelUps  bool
	MinLevelNotify  int
}

// Seeder upserts configured targets so the jobs can find them.
type Seeder interface {
	SeedTarget(ctx context.Context, t SeedTarget) (*entity.HuntedGuild, error)
}

// Store bundles every repository a backend provides.
type Store interface {
	Deaths() DeathRepository
	Players() TrackedPlayerRepository
	Guilds() HuntedGuildRepository
	Worlds() GameWorldRepository
	Servers() GameServerRepository
	Seeder
	Migrate(ctx context.Context) error
	Close() error
}

package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"github.com/tavvarez/whatsapp-bot-resonance/internal/domain/repository"
)

// Pool is the part of pgxpool.Pool the store uses. pgxmock.PgxPoolIface
// satisfies it in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// Store implements repository.Store on PostgreSQL.
type Store struct {
	pool Pool
}

var _ repository.Store = (*Store)(nil)

// New creates a Store with a connection pool of at most maxConns.
func New(ctx context.Context, connString string, maxConns int32) (*Store, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	if maxConns > 0 {
		pgxCfg.MaxConns = maxConns
	}
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &Store{pool: pool}, nil
}

// NewWithPool wraps an existing pool.
func NewWithPool(pool Pool) *Store {
	return &Store{pool: pool}
}

const migration = `
CREATE TABLE IF NOT EXISTS game_servers (
	id           TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	name         TEXT NOT NULL UNIQUE,
	display_name TEXT NOT NULL,
	base_url     TEXT NOT NULL,
	scraper_type TEXT NOT NULL,
	is_active    BOOLEAN NOT NULL DEFAULT true
);

CREATE TABLE IF NOT EXISTS game_worlds (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	server_id  TEXT NOT NULL REFERENCES game_servers(id),
	name       TEXT NOT NULL,
	identifier TEXT NOT NULL,
	is_active  BOOLEAN NOT NULL DEFAULT true,
	UNIQUE (server_id, name)
);

CREATE TABLE IF NOT EXISTS hunted_guilds (
	id                    TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	tenant_id             TEXT NOT NULL DEFAULT '',
	tenant_name           TEXT NOT NULL DEFAULT '',
	chat_id               TEXT NOT NULL DEFAULT '',
	world_id              TEXT NOT NULL REFERENCES game_worlds(id),
	guild_name            TEXT NOT NULL,
	guild_name_normalized TEXT NOT NULL,
	notify_deaths         BOOLEAN NOT NULL DEFAULT true,
	notify_level_ups      BOOLEAN NOT NULL DEFAULT true,
	min_level_notify      INTEGER NOT NULL DEFAULT 0,
	is_active             BOOLEAN NOT NULL DEFAULT true,
	UNIQUE (world_id, guild_name_normalized, chat_id)
);

CREATE TABLE IF NOT EXISTS deaths (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	world       TEXT NOT NULL,
	guild       TEXT NOT NULL,
	player_name TEXT NOT NULL,
	level       INTEGER NOT NULL,
	occurred_at TIMESTAMPTZ NOT NULL,
	raw_text    TEXT NOT NULL,
	hash        TEXT NOT NULL UNIQUE,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	notified_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS tracked_players (
	id                 TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	player_name        TEXT NOT NULL,
	normalized_name    TEXT NOT NULL UNIQUE,
	last_known_level   INTEGER NOT NULL,
	vocation           TEXT NOT NULL DEFAULT '',
	guild              TEXT NOT NULL,
	is_active          BOOLEAN NOT NULL DEFAULT true,
	level_gain_today   INTEGER NOT NULL DEFAULT 0,
	last_level_up_date TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_deaths_unnotified ON deaths(occurred_at) WHERE notified_at IS NULL;
CREATE INDEX IF NOT EXISTS idx_tracked_players_guild ON tracked_players(guild) WHERE is_active;
`

func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, migration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) Deaths() repository.DeathRepository         { return deathRepo{pool: s.pool} }
func (s *Store) Players() repository.TrackedPlayerRepository { return playerRepo{pool: s.pool} }
func (s *Store) Guilds() repository.HuntedGuildRepository    { return guildRepo{pool: s.pool} }
func (s *Store) Worlds() repository.GameWorldRepository      { return worldRepo{pool: s.pool} }
func (s *Store) Servers() repository.GameServerRepository    { return serverRepo{pool: s.pool} }

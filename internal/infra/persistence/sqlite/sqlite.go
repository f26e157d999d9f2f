package sqlite

import (
	"context"
	"database/sql"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tavvarez/whatsapp-bot-resonance/internal/domain/repository"
	_ "modernc.org/sqlite"
)

// Store implements repository.Store on a local SQLite file.
type Store struct {
	db *sql.DB
}

var _ repository.Store = (*Store)(nil)

// Open opens the database at dsn and configures WAL mode. Writers are
// serialized on one connection.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &Store{db: db}, nil
}

const migration = `
CREATE TABLE IF NOT EXISTS game_servers (
	id           TEXT PRIMARY KEY,
	name         TEXT NOT NULL UNIQUE,
	display_name TEXT NOT NULL,
	base_url     TEXT NOT NULL,
	scraper_type TEXT NOT NULL,
	is_active    INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS game_worlds (
	id         TEXT PRIMARY KEY,
	server_id  TEXT NOT NULL REFERENCES game_servers(id),
	name       TEXT NOT NULL,
	identifier TEXT NOT NULL,
	is_active  INTEGER NOT NULL DEFAULT 1,
	UNIQUE (server_id, name)
);

CREATE TABLE IF NOT EXISTS hunted_guilds (
	id                    TEXT PRIMARY KEY,
	tenant_id             TEXT NOT NULL DEFAULT '',
	tenant_name           TEXT NOT NULL DEFAULT '',
	chat_id               TEXT NOT NULL DEFAULT '',
	world_id              TEXT NOT NULL REFERENCES game_worlds(id),
	guild_name            TEXT NOT NULL,
	guild_name_normalized TEXT NOT NULL,
	notify_deaths         INTEGER NOT NULL DEFAULT 1,
	notify_level_ups      INTEGER NOT NULL DEFAULT 1,
	min_level_notify      INTEGER NOT NULL DEFAULT 0,
	is_active             INTEGER NOT NULL DEFAULT 1,
	UNIQUE (world_id, guild_name_normalized, chat_id)
);

CREATE TABLE IF NOT EXISTS deaths (
	id          TEXT PRIMARY KEY,
	world       TEXT NOT NULL,
	guild       TEXT NOT NULL,
	player_name TEXT NOT NULL,
	level       INTEGER NOT NULL,
	occurred_at DATETIME NOT NULL,
	raw_text    TEXT NOT NULL,
	hash        TEXT NOT NULL UNIQUE,
	created_at  DATETIME NOT NULL,
	notified_at DATETIME
);

CREATE TABLE IF NOT EXISTS tracked_players (
	id                 TEXT PRIMARY KEY,
	player_name        TEXT NOT NULL,
	normalized_name    TEXT NOT NULL UNIQUE,
	last_known_level   INTEGER NOT NULL,
	vocation           TEXT NOT NULL DEFAULT '',
	guild              TEXT NOT NULL,
	is_active          INTEGER NOT NULL DEFAULT 1,
	level_gain_today   INTEGER NOT NULL DEFAULT 0,
	last_level_up_date DATETIME
);

CREATE INDEX IF NOT EXISTS idx_deaths_unnotified ON deaths(notified_at, occurred_at);
CREATE INDEX IF NOT EXISTS idx_deaths_guild ON deaths(guild);
CREATE INDEX IF NOT EXISTS idx_tracked_players_guild ON tracked_players(guild, is_active);
CREATE INDEX IF NOT EXISTS idx_hunted_guilds_active ON hunted_guilds(is_active);
`

func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, migration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Deaths() repository.DeathRepository         { return deathRepo{db: s.db} }
func (s *Store) Players() repository.TrackedPlayerRepository { return playerRepo{db: s.db} }
func (s *Store) Guilds() repository.HuntedGuildRepository    { return guildRepo{db: s.db} }
func (s *Store) Worlds() repository.GameWorldRepository      { return worldRepo{db: s.db} }
func (s *Store) Servers() repository.GameServerRepository    { return serverRepo{db: s.db} }

// placeholders returns "?, ?, ?" for n arguments.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrapf(err, "sqlite: rows affected for %s %s", entity, id)
	}
	if n == 0 {
		return eris.Wrapf(repository.ErrNotFound, "sqlite: %s %s", entity, id)
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

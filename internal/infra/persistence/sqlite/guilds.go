package sqlite

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/tavvarez/whatsapp-bot-resonance/internal/domain/entity"
	"github.com/tavvarez/whatsapp-bot-resonance/internal/domain/repository"
)

type guildRepo struct {
	db *sql.DB
}

func (r guildRepo) ListAllActive(ctx context.Context) ([]entity.HuntedGuild, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, tenant_id, tenant_name, chat_id, world_id, guild_name, guild_name_normalized,
		        notify_deaths, notify_level_ups, min_level_notify, is_active
		 FROM hunted_guilds WHERE is_active = 1 ORDER BY world_id, guild_name_normalized, chat_id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list hunted guilds")
	}
	defer rows.Close()

	var out []entity.HuntedGuild
	for rows.Next() {
		var g entity.HuntedGuild
		if err := rows.Scan(&g.ID, &g.TenantID, &g.TenantName, &g.ChatID, &g.WorldID, &g.GuildName,
			&g.GuildNameNormalized, &g.NotifyDeaths, &g.NotifyLevelUps, &g.MinLevelNotify, &g.IsActive); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan hunted guild")
		}
		out = append(out, g)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list hunted guilds iterate")
}

type worldRepo struct {
	db *sql.DB
}

func (r worldRepo) FindByID(ctx context.Context, id string) (*entity.GameWorld, error) {
	var w entity.GameWorld
	err := r.db.QueryRowContext(ctx,
		`SELECT id, server_id, name, identifier, is_active FROM game_worlds WHERE id = ?`, id,
	).Scan(&w.ID, &w.ServerID, &w.Name, &w.Identifier, &w.IsActive)
	if eris.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(repository.ErrNotFound, "sqlite: world %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get world %s", id)
	}
	return &w, nil
}

type serverRepo struct {
	db *sql.DB
}

func (r serverRepo) FindByID(ctx context.Context, id string) (*entity.GameServer, error) {
	var s entity.GameServer
	var scraperType string
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, display_name, base_url, scraper_type, is_active FROM game_servers WHERE id = ?`, id,
	).Scan(&s.ID, &s.Name, &s.DisplayName, &s.BaseURL, &scraperType, &s.IsActive)
	if eris.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(repository.ErrNotFound, "sqlite: server %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get server %s", id)
	}
	s.ScraperType = entity.ScraperType(scraperType)
	return &s, nil
}

// SeedTarget upserts the server, world and hunted guild of t in one
// transaction and returns the stored guild.
func (s *Store) SeedTarget(ctx context.Context, t repository.SeedTarget) (*entity.HuntedGuild, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin seed")
	}
	defer tx.Rollback() //nolint:errcheck

	var serverID string
	err = tx.QueryRowContext(ctx,
		`INSERT INTO game_servers (id, name, display_name, base_url, scraper_type, is_active)
		 VALUES (?, ?, ?, ?, ?, 1)
		 ON CONFLICT (name) DO UPDATE SET
			base_url = excluded.base_url,
			scraper_type = excluded.scraper_type,
			is_active = 1
		 RETURNING id`,
		uuid.New().String(), t.ServerName, t.ServerName, t.BaseURL, string(t.ScraperType),
	).Scan(&serverID)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: seed server %s", t.ServerName)
	}

	identifier := t.WorldIdentifier
	if identifier == "" {
		identifier = t.WorldName
	}
	var worldID string
	err = tx.QueryRowContext(ctx,
		`INSERT INTO game_worlds (id, server_id, name, identifier, is_active)
		 VALUES (?, ?, ?, ?, 1)
		 ON CONFLICT (server_id, name) DO UPDATE SET
			identifier = excluded.identifier,
			is_active = 1
		 RETURNING id`,
		uuid.New().String(), serverID, t.WorldName, identifier,
	).Scan(&worldID)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: seed world %s", t.WorldName)
	}

	g := entity.HuntedGuild{
		TenantID:            t.TenantID,
		ChatID:              t.ChatID,
		WorldID:             worldID,
		GuildName:           t.GuildName,
		GuildNameNormalized: entity.NormalizeName(t.GuildName),
		NotifyDeaths:        t.NotifyDeaths,
		NotifyLevelUps:      t.NotifyLevelUps,
		MinLevelNotify:      t.MinLevelNotify,
		IsActive:            true,
	}
	err = tx.QueryRowContext(ctx,
		`INSERT INTO hunted_guilds (id, tenant_id, chat_id, world_id, guild_name, guild_name_normalized,
			notify_deaths, notify_level_ups, min_level_notify, is_active)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 1)
		 ON CONFLICT (world_id, guild_name_normalized, chat_id) DO UPDATE SET
			tenant_id = excluded.tenant_id,
			guild_name = excluded.guild_name,
			notify_deaths = excluded.notify_deaths,
			notify_level_ups = excluded.notify_level_ups,
			min_level_notify = excluded.min_level_notify,
			is_active = 1
		 RETURNING id`,
		uuid.New().String(), g.TenantID, g.ChatID, g.WorldID, g.GuildName, g.GuildNameNormalized,
		boolInt(g.NotifyDeaths), boolInt(g.NotifyLevelUps), g.MinLevelNotify,
	).Scan(&g.ID)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: seed guild %s", t.GuildName)
	}

	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: commit seed")
	}
	return &g, nil
}

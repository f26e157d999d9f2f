package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"github.com/tavvarez/whatsapp-bot-resonance/internal/domain/entity"
	"github.com/tavvarez/whatsapp-bot-resonance/internal/domain/repository"
)

type guildRepo struct {
	pool Pool
}

func (r guildRepo) ListAllActive(ctx context.Context) ([]entity.HuntedGuild, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, tenant_id, tenant_name, chat_id, world_id, guild_name, guild_name_normalized,
		        notify_deaths, notify_level_ups, min_level_notify, is_active
		 FROM hunted_guilds WHERE is_active ORDER BY world_id, guild_name_normalized, chat_id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list hunted guilds")
	}
	defer rows.Close()

	var out []entity.HuntedGuild
	for rows.Next() {
		var g entity.HuntedGuild
		if err := rows.Scan(&g.ID, &g.TenantID, &g.TenantName, &g.ChatID, &g.WorldID, &g.GuildName,
			&g.GuildNameNormalized, &g.NotifyDeaths, &g.NotifyLevelUps, &g.MinLevelNotify, &g.IsActive); err != nil {
			return nil, eris.Wrap(err, "postgres: scan hunted guild")
		}
		out = append(out, g)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list hunted guilds iterate")
}

type worldRepo struct {
	pool Pool
}

func (r worldRepo) FindByID(ctx context.Context, id string) (*entity.GameWorld, error) {
	var w entity.GameWorld
	err := r.pool.QueryRow(ctx,
		`SELECT id, server_id, name, identifier, is_active FROM game_worlds WHERE id = $1`, id,
	).Scan(&w.ID, &w.ServerID, &w.Name, &w.Identifier, &w.IsActive)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(repository.ErrNotFound, "postgres: world %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get world %s", id)
	}
	return &w, nil
}

type serverRepo struct {
	pool Pool
}

func (r serverRepo) FindByID(ctx context.Context, id string) (*entity.GameServer, error) {
	var s entity.GameServer
	var scraperType string
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, display_name, base_url, scraper_type, is_active FROM game_servers WHERE id = $1`, id,
	).Scan(&s.ID, &s.Name, &s.DisplayName, &s.BaseURL, &scraperType, &s.IsActive)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(repository.ErrNotFound, "postgres: server %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get server %s", id)
	}
	s.ScraperType = entity.ScraperType(scraperType)
	return &s, nil
}

const (
	seedServerSQL = `INSERT INTO game_servers (name, display_name, base_url, scraper_type)
		VALUES ($1, $1, $2, $3)
		ON CONFLICT (name) DO UPDATE SET base_url = EXCLUDED.base_url, scraper_type = EXCLUDED.scraper_type, is_active = true
		RETURNING id`
	seedWorldSQL = `INSERT INTO game_worlds (server_id, name, identifier)
		VALUES ($1, $2, $3)
		ON CONFLICT (server_id, name) DO UPDATE SET identifier = EXCLUDED.identifier, is_active = true
		RETURNING id`
	seedGuildSQL = `INSERT INTO hunted_guilds (tenant_id, chat_id, world_id, guild_name, guild_name_normalized,
			notify_deaths, notify_level_ups, min_level_notify)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (world_id, guild_name_normalized, chat_id) DO UPDATE SET
			tenant_id = EXCLUDED.tenant_id,
			guild_name = EXCLUDED.guild_name,
			notify_deaths = EXCLUDED.notify_deaths,
			notify_level_ups = EXCLUDED.notify_level_ups,
			min_level_notify = EXCLUDED.min_level_notify,
			is_active = true
		RETURNING id`
)

// SeedTarget upserts the server, world and hunted guild of t in one
// transaction and returns the stored guild.
func (s *Store) SeedTarget(ctx context.Context, t repository.SeedTarget) (*entity.HuntedGuild, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: begin seed")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var serverID string
	if err := tx.QueryRow(ctx, seedServerSQL, t.ServerName, t.BaseURL, string(t.ScraperType)).Scan(&serverID); err != nil {
		return nil, eris.Wrapf(err, "postgres: seed server %s", t.ServerName)
	}

	identifier := t.WorldIdentifier
	if identifier == "" {
		identifier = t.WorldName
	}
	var worldID string
	if err := tx.QueryRow(ctx, seedWorldSQL, serverID, t.WorldName, identifier).Scan(&worldID); err != nil {
		return nil, eris.Wrapf(err, "postgres: seed world %s", t.WorldName)
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
	err = tx.QueryRow(ctx, seedGuildSQL, g.TenantID, g.ChatID, g.WorldID, g.GuildName, g.GuildNameNormalized,
		g.NotifyDeaths, g.NotifyLevelUps, g.MinLevelNotify).Scan(&g.ID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: seed guild %s", t.GuildName)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, eris.Wrap(err, "postgres: commit seed")
	}
	return &g, nil
}

package postgres

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/tavvarez/whatsapp-bot-resonance/internal/domain/entity"
	"github.com/tavvarez/whatsapp-bot-resonance/internal/domain/repository"
)

type playerRepo struct {
	pool Pool
}

func (r playerRepo) FindActiveByGuild(ctx context.Context, guild string) ([]entity.TrackedPlayer, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, player_name, normalized_name, last_known_level, vocation, guild, is_active,
		        level_gain_today, last_level_up_date
		 FROM tracked_players WHERE guild = $1 AND is_active ORDER BY normalized_name`,
		guild,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: find players of %s", guild)
	}
	defer rows.Close()

	var out []entity.TrackedPlayer
	for rows.Next() {
		var p entity.TrackedPlayer
		if err := rows.Scan(&p.ID, &p.PlayerName, &p.NormalizedName, &p.LastKnownLevel, &p.Vocation,
			&p.Guild, &p.IsActive, &p.LevelGainToday, &p.LastLevelUpDate); err != nil {
			return nil, eris.Wrap(err, "postgres: scan player")
		}
		out = append(out, p)
	}
	return out, eris.Wrap(rows.Err(), "postgres: find players iterate")
}

func (r playerRepo) ExistsByName(ctx context.Context, normalizedName string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM tracked_players WHERE normalized_name = $1)`, normalizedName,
	).Scan(&exists)
	return exists, eris.Wrap(err, "postgres: player exists")
}

// Save inserts the player, or reactivates and rebaselines a known one.
func (r playerRepo) Save(ctx context.Context, in repository.CreateTrackedPlayerInput) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO tracked_players (player_name, normalized_name, last_known_level, vocation, guild)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (normalized_name) DO UPDATE SET
			player_name = EXCLUDED.player_name,
			last_known_level = EXCLUDED.last_known_level,
			vocation = EXCLUDED.vocation,
			guild = EXCLUDED.guild,
			is_active = true`,
		in.PlayerName, entity.NormalizeName(in.PlayerName), in.Level, in.Vocation, in.Guild,
	)
	return eris.Wrapf(err, "postgres: save player %s", in.PlayerName)
}

const updateLevelSQL = `UPDATE tracked_players
	SET last_known_level = $1, level_gain_today = $2, last_level_up_date = $3
	WHERE normalized_name = $4`

func (r playerRepo) BatchUpdateLevels(ctx context.Context, updates []repository.LevelUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin level update")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for _, u := range updates {
		if _, err := tx.Exec(ctx, updateLevelSQL, u.NewLevel, u.TotalGainToday, u.Day.UTC(), u.NormalizedName); err != nil {
			return eris.Wrapf(err, "postgres: update level of %s", u.NormalizedName)
		}
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit level update")
}

func (r playerRepo) Deactivate(ctx context.Context, normalizedName string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE tracked_players SET is_active = false WHERE normalized_name = $1`, normalizedName)
	if err != nil {
		return eris.Wrapf(err, "postgres: deactivate player %s", normalizedName)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(repository.ErrNotFound, "postgres: player %s", normalizedName)
	}
	return nil
}

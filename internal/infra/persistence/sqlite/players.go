package sqlite

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/tavvarez/whatsapp-bot-resonance/internal/domain/entity"
	"github.com/tavvarez/whatsapp-bot-resonance/internal/domain/repository"
)

type playerRepo struct {
	db *sql.DB
}

func (r playerRepo) FindActiveByGuild(ctx context.Context, guild string) ([]entity.TrackedPlayer, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, player_name, normalized_name, last_known_level, vocation, guild, is_active,
		        level_gain_today, last_level_up_date
		 FROM tracked_players WHERE guild = ? AND is_active = 1 ORDER BY normalized_name`,
		guild,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: find players of %s", guild)
	}
	defer rows.Close()

	var out []entity.TrackedPlayer
	for rows.Next() {
		var p entity.TrackedPlayer
		var day sql.NullTime
		if err := rows.Scan(&p.ID, &p.PlayerName, &p.NormalizedName, &p.LastKnownLevel, &p.Vocation,
			&p.Guild, &p.IsActive, &p.LevelGainToday, &day); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan player")
		}
		if day.Valid {
			p.LastLevelUpDate = &day.Time
		}
		out = append(out, p)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: find players iterate")
}

func (r playerRepo) ExistsByName(ctx context.Context, normalizedName string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx, `SELECT 1 FROM tracked_players WHERE normalized_name = ?`, normalizedName).Scan(&one)
	if eris.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, eris.Wrap(err, "sqlite: player exists")
	}
	return true, nil
}

// Save inserts the player, or reactivates and rebaselines a known one.
func (r playerRepo) Save(ctx context.Context, in repository.CreateTrackedPlayerInput) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO tracked_players (id, player_name, normalized_name, last_known_level, vocation, guild)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (normalized_name) DO UPDATE SET
			player_name = excluded.player_name,
			last_known_level = excluded.last_known_level,
			vocation = excluded.vocation,
			guild = excluded.guild,
			is_active = 1`,
		uuid.New().String(), in.PlayerName, entity.NormalizeName(in.PlayerName), in.Level, in.Vocation, in.Guild,
	)
	return eris.Wrapf(err, "sqlite: save player %s", in.PlayerName)
}

func (r playerRepo) BatchUpdateLevels(ctx context.Context, updates []repository.LevelUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin level update")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`UPDATE tracked_players SET last_known_level = ?, level_gain_today = ?, last_level_up_date = ?
		 WHERE normalized_name = ?`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare level update")
	}
	defer stmt.Close()

	for _, u := range updates {
		if _, err := stmt.ExecContext(ctx, u.NewLevel, u.TotalGainToday, u.Day.UTC(), u.NormalizedName); err != nil {
			return eris.Wrapf(err, "sqlite: update level of %s", u.NormalizedName)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit level update")
}

func (r playerRepo) Deactivate(ctx context.Context, normalizedName string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE tracked_players SET is_active = 0 WHERE normalized_name = ?`, normalizedName)
	if err != nil {
		return eris.Wrapf(err, "sqlite: deactivate player %s", normalizedName)
	}
	return checkRowsAffected(res, "player", normalizedName)
}

package postgres

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/tavvarez/whatsapp-bot-resonance/internal/domain/entity"
)

type deathRepo struct {
	pool Pool
}

func (r deathRepo) ExistsByHash(ctx context.Context, hash string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM deaths WHERE hash = $1)`, hash).Scan(&exists)
	return exists, eris.Wrap(err, "postgres: death exists")
}

func (r deathRepo) Save(ctx context.Context, e *entity.DeathEvent) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO deaths (world, guild, player_name, level, occurred_at, raw_text, hash)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, created_at`,
		e.World, e.Guild, e.PlayerName, e.Level, e.OccurredAt.UTC(), e.RawText, e.Hash,
	).Scan(&e.ID, &e.CreatedAt)
	return eris.Wrapf(err, "postgres: save death %s", e.Hash)
}

func (r deathRepo) FindUnnotified(ctx context.Context, limit int, guilds ...string) ([]entity.DeathEvent, error) {
	query := `SELECT id, world, guild, player_name, level, occurred_at, raw_text, hash, created_at, notified_at
		FROM deaths WHERE notified_at IS NULL`
	var args []any
	if len(guilds) > 0 {
		args = append(args, guilds)
		query += ` AND guild = ANY($1)`
	}
	query += ` ORDER BY occurred_at ASC`
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: find unnotified deaths")
	}
	defer rows.Close()

	var out []entity.DeathEvent
	for rows.Next() {
		var e entity.DeathEvent
		if err := rows.Scan(&e.ID, &e.World, &e.Guild, &e.PlayerName, &e.Level,
			&e.OccurredAt, &e.RawText, &e.Hash, &e.CreatedAt, &e.NotifiedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan death")
		}
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "postgres: find unnotified deaths iterate")
}

func (r deathRepo) MarkAsNotified(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.pool.Exec(ctx, `UPDATE deaths SET notified_at = now() WHERE id = ANY($1)`, ids)
	return eris.Wrap(err, "postgres: mark deaths notified")
}

package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/tavvarez/whatsapp-bot-resonance/internal/domain/entity"
)

type deathRepo struct {
	db *sql.DB
}

func (r deathRepo) ExistsByHash(ctx context.Context, hash string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx, `SELECT 1 FROM deaths WHERE hash = ?`, hash).Scan(&one)
	if eris.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, eris.Wrap(err, "sqlite: death exists")
	}
	return true, nil
}

func (r deathRepo) Save(ctx context.Context, e *entity.DeathEvent) error {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO deaths (id, world, guild, player_name, level, occurred_at, raw_text, hash, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, e.World, e.Guild, e.PlayerName, e.Level, e.OccurredAt.UTC(), e.RawText, e.Hash, now,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: save death %s", e.Hash)
	}
	e.ID = id
	e.CreatedAt = now
	return nil
}

func (r deathRepo) FindUnnotified(ctx context.Context, limit int, guilds ...string) ([]entity.DeathEvent, error) {
	query := `SELECT id, world, guild, player_name, level, occurred_at, raw_text, hash, created_at, notified_at
		FROM deaths WHERE notified_at IS NULL`
	var args []any
	if len(guilds) > 0 {
		query += ` AND guild IN (` + placeholders(len(guilds)) + `)`
		for _, g := range guilds {
			args = append(args, g)
		}
	}
	query += ` ORDER BY occurred_at ASC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: find unnotified deaths")
	}
	defer rows.Close()

	var out []entity.DeathEvent
	for rows.Next() {
		var e entity.DeathEvent
		var notified sql.NullTime
		if err := rows.Scan(&e.ID, &e.World, &e.Guild, &e.PlayerName, &e.Level,
			&e.OccurredAt, &e.RawText, &e.Hash, &e.CreatedAt, &notified); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan death")
		}
		if notified.Valid {
			e.NotifiedAt = &notified.Time
		}
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: find unnotified deaths iterate")
}

func (r deathRepo) MarkAsNotified(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	args := []any{time.Now().UTC()}
	for _, id := range ids {
		args = append(args, id)
	}
	_, err := r.db.ExecContext(ctx,
		`UPDATE deaths SET notified_at = ? WHERE id IN (`+placeholders(len(ids))+`)`, args...)
	return eris.Wrap(err, "sqlite: mark deaths notified")
}

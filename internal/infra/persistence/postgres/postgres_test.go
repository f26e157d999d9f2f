package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tavvarez/whatsapp-bot-resonance/internal/domain/entity"
	"github.com/tavvarez/whatsapp-bot-resonance/internal/domain/repository"
)

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })
	return NewWithPool(mock), mock
}

var deathColumns = []string{"id", "world", "guild", "player_name", "level", "occurred_at", "raw_text", "hash", "created_at", "notified_at"}

func TestMigrate(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS game_servers`).WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeathExistsByHash(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM deaths WHERE hash = \$1\)`).
		WithArgs("abc").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := s.Deaths().ExistsByHash(context.Background(), "abc")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeathSaveFillsIDAndCreatedAt(t *testing.T) {
	s, mock := newMockStore(t)
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	created := time.Date(2024, 1, 2, 3, 10, 0, 0, time.UTC)
	e := entity.NewDeathEvent("Elysian", "Resonance", "Knight", 300, at, "raw")

	mock.ExpectQuery(`INSERT INTO deaths .* RETURNING id, created_at`).
		WithArgs("Elysian", "Resonance", "Knight", 300, at, "raw", e.Hash).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}).AddRow("d-1", created))

	require.NoError(t, s.Deaths().Save(context.Background(), &e))
	assert.Equal(t, "d-1", e.ID)
	assert.Equal(t, created, e.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeathSaveConflict(t *testing.T) {
	s, mock := newMockStore(t)
	e := entity.NewDeathEvent("Elysian", "Resonance", "Knight", 300, time.Now(), "raw")

	mock.ExpectQuery(`INSERT INTO deaths`).WillReturnError(errors.New("duplicate key value violates unique constraint"))

	err := s.Deaths().Save(context.Background(), &e)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "save death")
	assert.Empty(t, e.ID)
}

func TestFindUnnotifiedFiltersByGuild(t *testing.T) {
	s, mock := newMockStore(t)
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`WHERE notified_at IS NULL AND guild = ANY\(\$1\) ORDER BY occurred_at ASC LIMIT \$2`).
		WithArgs([]string{"Resonance"}, 6).
		WillReturnRows(pgxmock.NewRows(deathColumns).
			AddRow("d-1", "Elysian", "Resonance", "Early", 200, at, "raw", "h1", at, (*time.Time)(nil)))

	out, err := s.Deaths().FindUnnotified(context.Background(), 6, "Resonance")
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "Early", out[0].PlayerName)
	assert.Equal(t, 200, out[0].Level)
	assert.Nil(t, out[0].NotifiedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindUnnotifiedAllGuilds(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`WHERE notified_at IS NULL ORDER BY occurred_at ASC LIMIT \$1`).
		WithArgs(10).
		WillReturnRows(pgxmock.NewRows(deathColumns))

	out, err := s.Deaths().FindUnnotified(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkAsNotified(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE deaths SET notified_at = now\(\) WHERE id = ANY\(\$1\)`).
		WithArgs([]string{"d-1", "d-2"}).
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))

	require.NoError(t, s.Deaths().MarkAsNotified(context.Background(), []string{"d-1", "d-2"}))
	require.NoError(t, s.Deaths().MarkAsNotified(context.Background(), nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindActiveByGuild(t *testing.T) {
	s, mock := newMockStore(t)
	day := time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`FROM tracked_players WHERE guild = \$1 AND is_active`).
		WithArgs("Resonance").
		WillReturnRows(pgxmock.NewRows([]string{"id", "player_name", "normalized_name", "last_known_level",
			"vocation", "guild", "is_active", "level_gain_today", "last_level_up_date"}).
			AddRow("p-1", "Druid", "druid", 50, "Druid", "Resonance", true, 0, (*time.Time)(nil)).
			AddRow("p-2", "Knight", "knight", 103, "Elite Knight", "Resonance", true, 5, &day))

	players, err := s.Players().FindActiveByGuild(context.Background(), "Resonance")
	require.NoError(t, err)
	require.Len(t, players, 2)
	assert.Nil(t, players[0].LastLevelUpDate)
	require.NotNil(t, players[1].LastLevelUpDate)
	assert.Equal(t, day, *players[1].LastLevelUpDate)
	assert.Equal(t, 5, players[1].LevelGainToday)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSavePlayerUpserts(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`INSERT INTO tracked_players .* ON CONFLICT \(normalized_name\) DO UPDATE`).
		WithArgs("Jöão Knight", "joao knight", 100, "Elite Knight", "Resonance").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.Players().Save(context.Background(), repository.CreateTrackedPlayerInput{
		PlayerName: "Jöão Knight", Level: 100, Vocation: "Elite Knight", Guild: "Resonance",
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBatchUpdateLevelsCommits(t *testing.T) {
	s, mock := newMockStore(t)
	day := time.Date(2024, 5, 6, 15, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE tracked_players`).WithArgs(103, 5, day, "knight").WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE tracked_players`).WithArgs(51, 1, day, "druid").WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	err := s.Players().BatchUpdateLevels(context.Background(), []repository.LevelUpdate{
		{NormalizedName: "knight", NewLevel: 103, LevelsGained: 3, TotalGainToday: 5, Day: day},
		{NormalizedName: "druid", NewLevel: 51, LevelsGained: 1, TotalGainToday: 1, Day: day},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBatchUpdateLevelsRollsBack(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE tracked_players`).
		WithArgs(2, 0, pgxmock.AnyArg(), "knight").
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	err := s.Players().BatchUpdateLevels(context.Background(), []repository.LevelUpdate{{NormalizedName: "knight", NewLevel: 2}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "update level of knight")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeactivateMissingPlayer(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE tracked_players SET is_active = false`).
		WithArgs("nobody").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.Players().Deactivate(context.Background(), "nobody")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWorldAndServerNotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`FROM game_worlds WHERE id = \$1`).WithArgs("w-x").WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery(`FROM game_servers WHERE id = \$1`).WithArgs("s-x").WillReturnError(pgx.ErrNoRows)

	_, err := s.Worlds().FindByID(context.Background(), "w-x")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = s.Servers().FindByID(context.Background(), "s-x")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestServerFindByID(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`FROM game_servers WHERE id = \$1`).
		WithArgs("s-1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "display_name", "base_url", "scraper_type", "is_active"}).
			AddRow("s-1", "rubinot", "RubinOT", "https://rubinot.com.br", "rubinot", true))

	server, err := s.Servers().FindByID(context.Background(), "s-1")
	require.NoError(t, err)
	assert.Equal(t, entity.ScraperRubinot, server.ScraperType)
	assert.True(t, server.IsActive)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListAllActive(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`FROM hunted_guilds WHERE is_active`).
		WillReturnRows(pgxmock.NewRows([]string{"id", "tenant_id", "tenant_name", "chat_id", "world_id", "guild_name",
			"guild_name_normalized", "notify_deaths", "notify_level_ups", "min_level_notify", "is_active"}).
			AddRow("g-1", "t-1", "Resonance Hunters", "chat-1", "w-1", "Resonance", "resonance", true, false, 200, true))

	guilds, err := s.Guilds().ListAllActive(context.Background())
	require.NoError(t, err)
	require.Len(t, guilds, 1)
	assert.Equal(t, "chat-1", guilds[0].ChatID)
	assert.False(t, guilds[0].NotifyLevelUps)
	assert.Equal(t, 200, guilds[0].MinLevelNotify)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSeedTarget(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO game_servers`).
		WithArgs("rubinot", "https://rubinot.com.br", "rubinot").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("s-1"))
	mock.ExpectQuery(`INSERT INTO game_worlds`).
		WithArgs("s-1", "Elysian", "Elysian").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("w-1"))
	mock.ExpectQuery(`INSERT INTO hunted_guilds`).
		WithArgs("", "chat-1", "w-1", "Resonance", "resonance", true, false, 0).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("g-1"))
	mock.ExpectCommit()

	g, err := s.SeedTarget(context.Background(), repository.SeedTarget{
		ServerName:   "rubinot",
		ScraperType:  entity.ScraperRubinot,
		BaseURL:      "https://rubinot.com.br",
		WorldName:    "Elysian",
		GuildName:    "Resonance",
		ChatID:       "chat-1",
		NotifyDeaths: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "g-1", g.ID)
	assert.Equal(t, "w-1", g.WorldID)
	assert.True(t, g.IsActive)
	assert.NoError(t, mock.ExpectationsWereMet())
}

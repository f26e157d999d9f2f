package message

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tavvarez/whatsapp-bot-resonance/internal/domain/entity"
	"go.uber.org/zap"
)

func saoPaulo(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/Sao_Paulo")
	require.NoError(t, err)
	return loc
}

func TestFormatDeathBatch(t *testing.T) {
	loc := saoPaulo(t)
	events := []entity.DeathEvent{
		entity.NewDeathEvent("Elysian", "G", "Knight Alpha", 250,
			time.Date(2024, 3, 10, 14, 5, 9, 0, loc),
			"10.03.2024, 14:05:09 Knight Alpha died at level 250 by a dragon lord."),
		entity.NewDeathEvent("Elysian", "G", "Druid Beta", 180,
			time.Date(2024, 3, 10, 13, 0, 0, 0, loc),
			"10.03.2024, 13:00:00 Druid Beta died at level 180"),
	}

	want := "🔴 *HUNTED DEATHS* (2)\n" +
		"────────────\n" +
		" 14:05 — *Knight Alpha* died at level (250) by a dragon lord.\n" +
		" 13:00 — *Druid Beta* died at level (180)"
	assert.Equal(t, want, FormatDeathBatch(events, loc))
	assert.Empty(t, FormatDeathBatch(nil, loc))
}

func TestFormatLevelUps(t *testing.T) {
	loc := saoPaulo(t)
	at := time.Date(2024, 3, 10, 21, 7, 0, 0, time.UTC)
	events := []entity.LevelUpEvent{
		{PlayerName: "Knight Alpha", OldLevel: 250, NewLevel: 251, LevelsGained: 1, TotalGainToday: 1, Vocation: "Elite Knight"},
		{PlayerName: "Druid Beta", OldLevel: 180, NewLevel: 183, LevelsGained: 3, TotalGainToday: 5, Vocation: "Elder Druid"},
	}

	want := "*LEVEL UP - HUNTED GUILD*\n" +
		"*Hora:* 18:07\n" +
		"\n" +
		"⬆️ *Knight Alpha* upou -> *251*\n" +
		"   └ Elite Knight (+1 levels hoje)\n" +
		"⚠️ *Druid Beta* upou -> *183*\n" +
		"   └ Elder Druid (+5 levels hoje) _(possivelmente PT)_"
	assert.Equal(t, want, FormatLevelUps("Hunted Guild", events, at, loc, 4))
	assert.Empty(t, FormatLevelUps("G", nil, at, loc, 4))
}

func TestLogSender(t *testing.T) {
	zap.ReplaceGlobals(zap.NewNop())
	assert.NoError(t, LogSender{}.SendMessage(context.Background(), "chat", Content{Text: "hi"}))
}

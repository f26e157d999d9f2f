package entity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeathHashIgnoresRawText(t *testing.T) {
	at := time.Date(2024, 3, 10, 14, 5, 9, 0, time.UTC)
	a := NewDeathEvent("Elysian", "Hunted Guild", "Knight Alpha", 250, at, "10.03.2024, 14:05:09 Knight Alpha died at level 250 by a dragon.")
	b := NewDeathEvent("Elysian", "Hunted Guild", "Knight Alpha", 250, at, "Knight Alpha died at level 250 by a dragon lord.")
	assert.Equal(t, a.Hash, b.Hash)
	assert.Len(t, a.Hash, 40)

	c := NewDeathEvent("Elysian", "Hunted Guild", "Knight Alpha", 251, at, "")
	assert.NotEqual(t, a.Hash, c.Hash)
	d := NewDeathEvent("Elysian", "Hunted Guild", "Knight Alpha", 250, at.Add(time.Second), "")
	assert.NotEqual(t, a.Hash, d.Hash)
}

func TestDeathHashUsesInstantNotZone(t *testing.T) {
	sp, err := time.LoadLocation("America/Sao_Paulo")
	require.NoError(t, err)
	local := time.Date(2024, 3, 10, 11, 5, 9, 0, sp)
	utc := local.UTC()
	assert.Equal(t,
		DeathHash("Elysian", "G", "P", local, 100),
		DeathHash("Elysian", "G", "P", utc, 100))
}

func TestDeathHashKnownValue(t *testing.T) {
	// sha1("W|G|P|2024-01-02T03:04:05.000Z|7")
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	assert.Equal(t, "2740858736efb624758b2f932b1bd804fb886f72", DeathHash("W", "G", "P", at, 7))
}

func TestCause(t *testing.T) {
	e := DeathEvent{RawText: "10.03.2024, 14:05:09 Knight Alpha died at level 250 by a dragon lord and Bob."}
	assert.Equal(t, "by a dragon lord and Bob.", e.Cause())
	assert.Empty(t, DeathEvent{RawText: "garbage"}.Cause())
}

func TestToDocument(t *testing.T) {
	at := time.Date(2024, 3, 10, 14, 5, 9, 0, time.UTC)
	e := NewDeathEvent("Elysian", "G", "P", 99, at, "P died at level 99 by a rat.")
	doc := e.ToDocument()
	assert.Equal(t, e.Hash, doc.GetID())
	assert.Equal(t, "by a rat.", doc.Cause)
	assert.NotNil(t, doc.GetTypeMapping())
}

func TestNormalizeName(t *testing.T) {
	cases := map[string]string{
		"Knight Alpha":        "knight alpha",
		"  Jõão   Dä  Silva ": "joao da silva",
		"ÉLITE\tKnight":       "elite knight",
		"":                    "",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeName(in), in)
	}
}

func TestParseScraperType(t *testing.T) {
	st, err := ParseScraperType(" RubinOT ")
	require.NoError(t, err)
	assert.Equal(t, ScraperRubinot, st)

	st, err = ParseScraperType("generic_ots")
	require.NoError(t, err)
	assert.Equal(t, ScraperGenericOTS, st)

	_, err = ParseScraperType("otserv")
	assert.Error(t, err)
}

func TestSameDay(t *testing.T) {
	sp, err := time.LoadLocation("America/Sao_Paulo")
	require.NoError(t, err)
	// 02:30 UTC is still the previous evening in Sao Paulo.
	a := time.Date(2024, 3, 11, 2, 30, 0, 0, time.UTC)
	b := time.Date(2024, 3, 10, 20, 0, 0, 0, time.UTC)
	assert.True(t, SameDay(a, b, sp))
	assert.False(t, SameDay(a, b, time.UTC))
}

func TestPossibleBotLeveling(t *testing.T) {
	assert.True(t, LevelUpEvent{TotalGainToday: 4}.PossibleBotLeveling(4))
	assert.False(t, LevelUpEvent{TotalGainToday: 3}.PossibleBotLeveling(4))
	assert.False(t, LevelUpEvent{TotalGainToday: 9}.PossibleBotLeveling(0))
}

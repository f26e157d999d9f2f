package entity

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/tavvarez/whatsapp-bot-resonance/internal/domain/model"
)

const hashTimeLayout = "2006-01-02T15:04:05.000Z"

// DeathEvent is one row of a guild's latest-deaths list.
type DeathEvent struct {
	ID         string
	World      string
	Guild      string
	PlayerName string
	Level      int
	OccurredAt time.Time
	RawText    string
	Hash       string
	CreatedAt  time.Time
	NotifiedAt *time.Time
}

// NewDeathEvent builds an event and computes its dedup hash.
func NewDeathEvent(world, guild, player string, level int, occurredAt time.Time, raw string) DeathEvent {
	return DeathEvent{
		World:      world,
		Guild:      guild,
		PlayerName: player,
		Level:      level,
		OccurredAt: occurredAt,
		RawText:    raw,
		Hash:       DeathHash(world, guild, player, occurredAt, level),
	}
}

// DeathHash identifies a death by world, guild, player, instant and level.
// The raw row text is left out so markup changes on the site do not create
// duplicates.
func DeathHash(world, guild, player string, occurredAt time.Time, level int) string {
	key := fmt.Sprintf("%s|%s|%s|%s|%d", world, guild, player, occurredAt.UTC().Format(hashTimeLayout), level)
	sum := sha1.Sum([]byte(key))
	return hex.EncodeToString(sum[:])
}

var causePattern = regexp.MustCompile(`died at level \d+ (.+)`)

// Cause returns what killed the player, e.g. "by a dragon lord.", or "" when
// the raw text carries none.
func (e DeathEvent) Cause() string {
	m := causePattern.FindStringSubmatch(e.RawText)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// ToDocument maps the event to its search archive document.
func (e DeathEvent) ToDocument() *model.DeathDoc {
	return &model.DeathDoc{
		ID:         e.Hash,
		World:      e.World,
		Guild:      e.Guild,
		PlayerName: e.PlayerName,
		Level:      e.Level,
		OccurredAt: e.OccurredAt.UTC(),
		Cause:      e.Cause(),
		RawText:    e.RawText,
	}
}

package entity

import "time"

// GuildMember is one roster row as seen on the guild page.
type GuildMember struct {
	PlayerName string
	Level      int
	Vocation   string
	IsOnline   bool
}

// TrackedPlayer is the stored baseline for a guild member.
type TrackedPlayer struct {
	ID             string
	PlayerName     string
	NormalizedName string
	LastKnownLevel int
	Vocation       string
	Guild          string
	IsActive       bool
	// LevelGainToday counts levels gained on LastLevelUpDate.
	LevelGainToday  int
	LastLevelUpDate *time.Time
}

// LevelUpEvent is produced when a member's level rose since the last run.
type LevelUpEvent struct {
	PlayerName     string
	OldLevel       int
	NewLevel       int
	LevelsGained   int
	TotalGainToday int
	Vocation       string
}

// PossibleBotLeveling reports whether the day's gain reached threshold.
func (e LevelUpEvent) PossibleBotLeveling(threshold int) bool {
	return threshold > 0 && e.TotalGainToday >= threshold
}

// SameDay reports whether a and b fall on the same calendar day in loc.
func SameDay(a, b time.Time, loc *time.Location) bool {
	if loc == nil {
		loc = time.UTC
	}
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.In(loc).Date()
	return ay == by && am == bm && ad == bd
}

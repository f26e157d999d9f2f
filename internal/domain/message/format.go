package message

import (
	"fmt"
	"strings"
	"time"

	"github.com/tavvarez/whatsapp-bot-resonance/internal/domain/entity"
)

const clockLayout = "15:04"

// FormatDeathBatch renders deaths as one chat message, times shown in loc.
func FormatDeathBatch(events []entity.DeathEvent, loc *time.Location) string {
	if len(events) == 0 {
		return ""
	}
	if loc == nil {
		loc = time.UTC
	}

	var b strings.Builder
	fmt.Fprintf(&b, "🔴 *HUNTED DEATHS* (%d)\n%s\n", len(events), strings.Repeat("─", 12))
	for i, e := range events {
		if i > 0 {
			b.WriteByte('\n')
		}
		line := fmt.Sprintf(" %s — *%s* died at level (%d)", e.OccurredAt.In(loc).Format(clockLayout), e.PlayerName, e.Level)
		if cause := e.Cause(); cause != "" {
			line += " " + cause
		}
		b.WriteString(line)
	}
	return b.String()
}

// FormatLevelUps renders a guild's level-ups. Players whose gain for the
// day reached botThreshold are flagged.
func FormatLevelUps(guild string, events []entity.LevelUpEvent, at time.Time, loc *time.Location, botThreshold int) string {
	if len(events) == 0 {
		return ""
	}
	if loc == nil {
		loc = time.UTC
	}

	lines := []string{
		fmt.Sprintf("*LEVEL UP - %s*", strings.ToUpper(guild)),
		fmt.Sprintf("*Hora:* %s", at.In(loc).Format(clockLayout)),
		"",
	}
	for _, e := range events {
		icon, note := "⬆️", ""
		if e.PossibleBotLeveling(botThreshold) {
			icon, note = "⚠️", " _(possivelmente PT)_"
		}
		lines = append(lines,
			fmt.Sprintf("%s *%s* upou -> *%d*", icon, e.PlayerName, e.NewLevel),
			fmt.Sprintf("   └ %s (+%d levels hoje)%s", e.Vocation, e.TotalGainToday, note))
	}
	return strings.Join(lines, "\n")
}

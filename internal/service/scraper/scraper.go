package scraper

import (
	"context"
	"net/url"
	"strings"

	"github.com/tavvarez/whatsapp-bot-resonance/internal/domain/entity"
	"github.com/tavvarez/whatsapp-bot-resonance/param"
)

// DeathScraper lists the latest deaths of a guild, newest first.
type DeathScraper interface {
	FetchDeaths(ctx context.Context, target param.DeathTarget) ([]entity.DeathEvent, error)
}

// GuildScraper lists the current members of a guild.
type GuildScraper interface {
	FetchRoster(ctx context.Context, target param.RosterTarget) ([]entity.GuildMember, error)
}

type Scraper interface {
	DeathScraper
	GuildScraper
}

func rosterURL(baseURL, guild string) string {
	return strings.TrimRight(baseURL, "/") + "/?subtopic=guilds&page=view&GuildName=" + escape(guild)
}

func latestDeathsURL(baseURL string) string {
	return strings.TrimRight(baseURL, "/") + "/?subtopic=latestdeaths"
}

// escape encodes a query value with %20 for spaces, as the sites' own
// links do.
func escape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

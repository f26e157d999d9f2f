package entity

import (
	"strings"

	"github.com/rotisserie/eris"
)

// ScraperType tags which extractor family a game server needs.
type ScraperType string

const (
	ScraperRubinot       ScraperType = "rubinot"
	ScraperTibiaOfficial ScraperType = "tibia_official"
	ScraperGenericOTS    ScraperType = "generic_ots"
)

// ParseScraperType accepts the known tags case-insensitively.
func ParseScraperType(s string) (ScraperType, error) {
	switch t := ScraperType(strings.ToLower(strings.TrimSpace(s))); t {
	case ScraperRubinot, ScraperTibiaOfficial, ScraperGenericOTS:
		return t, nil
	default:
		return "", eris.Errorf("entity: unknown scraper type %q", s)
	}
}

type GameServer struct {
	ID          string
	Name        string
	DisplayName string
	BaseURL     string
	ScraperType ScraperType
	IsActive    bool
}

type GameWorld struct {
	ID       string
	ServerID string
	Name     string
	// Identifier is the value the site's world selector expects.
	Identifier string
	IsActive   bool
}

// HuntedGuild is a guild one tenant watches, and where its alerts go.
type HuntedGuild struct {
	ID                  string
	TenantID            string
	TenantName          string
	ChatID              string
	WorldID             string
	GuildName           string
	GuildNameNormalized string
	NotifyDeaths        bool
	NotifyLevelUps      bool
	MinLevelNotify      int
	IsActive            bool
}

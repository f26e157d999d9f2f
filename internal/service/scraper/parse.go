package scraper

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"github.com/tavvarez/whatsapp-bot-resonance/internal/domain/entity"
	"github.com/tavvarez/whatsapp-bot-resonance/internal/infra/crawler/types"
)

const (
	TableSelector = "table.TableContent"

	deathMarker     = " died at level "
	deathTimeLayout = "2.1.2006 15:04:05"
)

var deathPattern = regexp.MustCompile(`(\d{1,2}\.\d{1,2}\.\d{4}),\s*(\d{1,2}:\d{2}:\d{2})\s+(.+?)\s+died at level\s+(\d+)`)

// ParseDeathRows extracts the death rows of a latest-deaths page, newest
// first as the site lists them. Timestamps are read as wall clock in loc.
// A death row that does not match the expected shape fails the whole page.
func ParseDeathRows(html, world, guild string, loc *time.Location) ([]entity.DeathEvent, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, eris.Wrap(err, "scraper: parse deaths page")
	}
	table := doc.Find(TableSelector)
	if table.Length() == 0 {
		return nil, &types.ParseError{Msg: "deaths table not found"}
	}

	var (
		events   []entity.DeathEvent
		parseErr error
	)
	table.Find("tr").EachWithBreak(func(_ int, row *goquery.Selection) bool {
		text := rowText(row)
		if !strings.Contains(text, deathMarker) {
			return true
		}
		e, err := parseDeathRow(text, world, guild, loc)
		if err != nil {
			parseErr = err
			return false
		}
		events = append(events, e)
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}
	return events, nil
}

func parseDeathRow(text, world, guild string, loc *time.Location) (entity.DeathEvent, error) {
	m := deathPattern.FindStringSubmatch(text)
	if m == nil {
		return entity.DeathEvent{}, &types.ParseError{Msg: "unexpected death row", Raw: text}
	}
	occurredAt, err := time.ParseInLocation(deathTimeLayout, m[1]+" "+m[2], loc)
	if err != nil {
		return entity.DeathEvent{}, &types.ParseError{Msg: "bad death timestamp", Raw: text}
	}
	level, err := strconv.Atoi(m[4])
	if err != nil {
		return entity.DeathEvent{}, &types.ParseError{Msg: "bad death level", Raw: text}
	}
	return entity.NewDeathEvent(world, guild, m[3], level, occurredAt, text), nil
}

// ParseRoster extracts the members of a guild page. Rows that do not look
// like member rows are skipped.
func ParseRoster(html string) ([]entity.GuildMember, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, eris.Wrap(err, "scraper: parse guild page")
	}
	table := doc.Find(TableSelector)
	if table.Length() == 0 {
		return nil, &types.ParseError{Msg: "guild table not found"}
	}

	var members []entity.GuildMember
	table.Find("tr").Each(func(_ int, row *goquery.Selection) {
		if row.HasClass("LabelH") {
			return
		}
		cells := row.Find("td")
		if cells.Length() < 6 {
			return
		}
		name := strings.TrimSpace(cells.Eq(1).Find("a").First().Text())
		if name == "" {
			return
		}
		level, err := strconv.Atoi(strings.TrimSpace(cells.Eq(3).Text()))
		if err != nil {
			return
		}
		members = append(members, entity.GuildMember{
			PlayerName: collapse(name),
			Level:      level,
			Vocation:   strings.TrimSpace(cells.Eq(2).Text()),
			IsOnline:   strings.Contains(strings.ToLower(cells.Eq(5).Text()), "online"),
		})
	})
	return members, nil
}

// rowText joins the cell texts of a row with spaces and collapses
// whitespace.
func rowText(row *goquery.Selection) string {
	cells := row.Find("td")
	if cells.Length() == 0 {
		return collapse(row.Text())
	}
	parts := make([]string, 0, cells.Length())
	cells.Each(func(_ int, c *goquery.Selection) {
		parts = append(parts, c.Text())
	})
	return collapse(strings.Join(parts, " "))
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

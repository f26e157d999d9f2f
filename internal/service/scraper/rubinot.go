package scraper

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tavvarez/whatsapp-bot-resonance/internal/domain/entity"
	"github.com/tavvarez/whatsapp-bot-resonance/internal/infra/crawler/evasion"
	"github.com/tavvarez/whatsapp-bot-resonance/internal/infra/crawler/pool"
	"github.com/tavvarez/whatsapp-bot-resonance/param"
	"go.uber.org/zap"
)

const (
	WorldSelector  = `select[name="world"]`
	GuildSelector  = `select[name="guild"]`
	SubmitSelector = `input.BigButtonText[type="submit"]`
)

// RubinotScraper drives a real browser through the pooled runtime. The
// site sits behind an anti-bot layer, so every request goes through the
// challenge handling in evasion.Runtime.
type RubinotScraper struct {
	baseURL string
	rt      *evasion.Runtime
	loc     *time.Location
}

func NewRubinotScraper(baseURL string, rt *evasion.Runtime, loc *time.Location) *RubinotScraper {
	if loc == nil {
		loc = time.UTC
	}
	return &RubinotScraper{baseURL: baseURL, rt: rt, loc: loc}
}

// FetchDeaths walks the two-step latest-deaths form: world first, then
// guild. The form page is always navigated to, a reload would resubmit.
func (s *RubinotScraper) FetchDeaths(ctx context.Context, target param.DeathTarget) ([]entity.DeathEvent, error) {
	if !target.IsValid() {
		return nil, eris.Errorf("scraper: invalid death target %+v", target)
	}
	zap.L().Info("scraper: fetching deaths",
		zap.String("world", target.World),
		zap.String("guild", target.Guild))

	events, err := evasion.Run(ctx, s.rt, "deaths", true, func(ctx context.Context, pg *pool.PooledPage) ([]entity.DeathEvent, error) {
		if err := s.rt.Open(ctx, pg, latestDeathsURL(s.baseURL), evasion.AlwaysNavigate); err != nil {
			return nil, err
		}
		if err := s.submitSelect(ctx, pg, WorldSelector, target.SelectValue()); err != nil {
			return nil, err
		}
		if err := s.submitSelect(ctx, pg, GuildSelector, target.Guild); err != nil {
			return nil, err
		}
		if err := s.rt.WaitVisible(ctx, pg, TableSelector); err != nil {
			return nil, err
		}
		html, err := s.rt.HTML(ctx, pg)
		if err != nil {
			return nil, err
		}
		return ParseDeathRows(html, target.World, target.Guild, s.loc)
	})
	if err != nil {
		return nil, eris.Wrapf(err, "scraper: fetch deaths of %s", target.Guild)
	}
	zap.L().Info("scraper: deaths fetched", zap.String("guild", target.Guild), zap.Int("count", len(events)))
	return events, nil
}

func (s *RubinotScraper) submitSelect(ctx context.Context, pg *pool.PooledPage, selector, value string) error {
	if err := s.rt.WaitVisible(ctx, pg, selector); err != nil {
		return err
	}
	if err := s.rt.Select(ctx, pg, selector, value); err != nil {
		return err
	}
	if err := s.rt.Submit(ctx, pg, SubmitSelector); err != nil {
		return err
	}
	// The form post can land on a fresh challenge.
	return s.rt.EnsureClear(ctx, pg)
}

// FetchRoster reads the guild page, reloading it when the page is already
// there.
func (s *RubinotScraper) FetchRoster(ctx context.Context, target param.RosterTarget) ([]entity.GuildMember, error) {
	if !target.IsValid() {
		return nil, eris.New("scraper: empty guild name")
	}
	url := rosterURL(s.baseURL, target.Guild)
	zap.L().Info("scraper: fetching roster", zap.String("guild", target.Guild))

	members, err := evasion.Run(ctx, s.rt, "roster", true, func(ctx context.Context, pg *pool.PooledPage) ([]entity.GuildMember, error) {
		if err := s.rt.Open(ctx, pg, url, evasion.NavigateOrRefresh); err != nil {
			return nil, err
		}
		if err := s.rt.WaitVisible(ctx, pg, TableSelector); err != nil {
			return nil, err
		}
		html, err := s.rt.HTML(ctx, pg)
		if err != nil {
			return nil, err
		}
		return ParseRoster(html)
	})
	if err != nil {
		return nil, eris.Wrapf(err, "scraper: fetch roster of %s", target.Guild)
	}
	zap.L().Info("scraper: roster fetched", zap.String("guild", target.Guild), zap.Int("members", len(members)))
	return members, nil
}

package scraper

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tavvarez/whatsapp-bot-resonance/internal/domain/entity"
	"github.com/tavvarez/whatsapp-bot-resonance/internal/infra/crawler/collector"
	"github.com/tavvarez/whatsapp-bot-resonance/internal/infra/crawler/evasion"
	"github.com/tavvarez/whatsapp-bot-resonance/internal/infra/crawler/types"
	"github.com/tavvarez/whatsapp-bot-resonance/param"
	"go.uber.org/zap"
)

// GenericOTSScraper reads Gesior and ZnoteAAC style sites over plain HTTP.
// Those sites share the TableContent markup but need no browser; the death
// list is filtered through query parameters instead of a form.
type GenericOTSScraper struct {
	baseURL   string
	collector collector.Collector
	detector  *evasion.ChallengeDetector
	retry     evasion.RetryPolicy
	loc       *time.Location
}

func NewGenericOTSScraper(baseURL string, c collector.Collector, detector *evasion.ChallengeDetector, retry evasion.RetryPolicy, loc *time.Location) *GenericOTSScraper {
	if loc == nil {
		loc = time.UTC
	}
	retry.Session = evasion.NeverInvalidate
	retry.OnInvalidate = nil
	return &GenericOTSScraper{baseURL: baseURL, collector: c, detector: detector, retry: retry, loc: loc}
}

func (s *GenericOTSScraper) FetchDeaths(ctx context.Context, target param.DeathTarget) ([]entity.DeathEvent, error) {
	if !target.IsValid() {
		return nil, eris.Errorf("scraper: invalid death target %+v", target)
	}
	url := fmt.Sprintf("%s&world=%s&guild=%s", latestDeathsURL(s.baseURL), escape(target.SelectValue()), escape(target.Guild))

	events, err := evasion.Retry(ctx, "deaths", s.retry, func(ctx context.Context) ([]entity.DeathEvent, error) {
		html, err := s.get(ctx, url)
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

func (s *GenericOTSScraper) FetchRoster(ctx context.Context, target param.RosterTarget) ([]entity.GuildMember, error) {
	if !target.IsValid() {
		return nil, eris.New("scraper: empty guild name")
	}
	url := rosterURL(s.baseURL, target.Guild)

	members, err := evasion.Retry(ctx, "roster", s.retry, func(ctx context.Context) ([]entity.GuildMember, error) {
		html, err := s.get(ctx, url)
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

// get fetches url and sorts failures into the scrape error kinds.
func (s *GenericOTSScraper) get(ctx context.Context, url string) (string, error) {
	resp, err := s.collector.Fetch(ctx, url)
	if err != nil {
		return "", &types.TransientScrapeError{Op: "fetch", Err: err}
	}
	html := string(resp.Body)
	switch verdict, marker := s.detector.Classify("", html); verdict {
	case evasion.Blocked:
		return "", &types.PermanentBlockError{URL: url, Marker: marker}
	case evasion.Challenge:
		return "", &types.ChallengeBlockedError{URL: url}
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return "", &types.TransientScrapeError{Op: "fetch", Err: eris.Errorf("status %d", resp.StatusCode)}
	}
	return html, nil
}

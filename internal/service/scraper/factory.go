package scraper

import (
	"time"

	"github.com/rotisserie/eris"
	"github.com/tavvarez/whatsapp-bot-resonance/internal/domain/entity"
	"github.com/tavvarez/whatsapp-bot-resonance/internal/infra/crawler/collector"
	"github.com/tavvarez/whatsapp-bot-resonance/internal/infra/crawler/evasion"
	"go.uber.org/zap"
)

var ErrUnsupportedServer = eris.New("scraper: unsupported server")

// Factory builds the scraper a game server needs from its scraper type.
type Factory struct {
	runtime   *evasion.Runtime
	collector collector.Collector
	detector  *evasion.ChallengeDetector
	retry     evasion.RetryPolicy
	loc       *time.Location
}

func NewFactory(rt *evasion.Runtime, c collector.Collector, detector *evasion.ChallengeDetector, retry evasion.RetryPolicy, loc *time.Location) *Factory {
	return &Factory{runtime: rt, collector: c, detector: detector, retry: retry, loc: loc}
}

func (f *Factory) New(server entity.GameServer) (Scraper, error) {
	zap.L().Debug("scraper: building scraper",
		zap.String("server", server.DisplayName),
		zap.String("type", string(server.ScraperType)))

	switch server.ScraperType {
	case entity.ScraperRubinot:
		if f.runtime == nil {
			return nil, eris.Wrapf(ErrUnsupportedServer, "%s needs a browser runtime", server.Name)
		}
		return NewRubinotScraper(server.BaseURL, f.runtime, f.loc), nil
	case entity.ScraperGenericOTS:
		if f.collector == nil {
			return nil, eris.Wrapf(ErrUnsupportedServer, "%s needs an http collector", server.Name)
		}
		return NewGenericOTSScraper(server.BaseURL, f.collector, f.detector, f.retry, f.loc), nil
	default:
		return nil, eris.Wrapf(ErrUnsupportedServer, "scraper type %q of %s", server.ScraperType, server.Name)
	}
}

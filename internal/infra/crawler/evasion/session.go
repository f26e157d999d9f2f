package evasion

import (
	"github.com/tavvarez/whatsapp-bot-resonance/internal/config"
	"github.com/tavvarez/whatsapp-bot-resonance/internal/infra/crawler/chrome"
	"go.uber.org/zap"
)

// Session is the identity the scraper presents: proxy plus browser
// emulation. It is derived from configuration and never stored.
type Session struct {
	Proxy     *ProxyConfig
	Emulation chrome.Emulation
}

// NewSession builds the session from cfg. A bad proxy string is logged and
// the session runs without a proxy.
func NewSession(cfg *config.Config) Session {
	proxy, err := ParseProxy(cfg.Scraper.Proxy)
	switch {
	case err != nil:
		zap.L().Error("evasion: invalid proxy, running without one", zap.Error(err))
		proxy = nil
	case proxy != nil:
		zap.L().Info("evasion: using proxy",
			zap.String("server", proxy.Server),
			zap.String("user", proxy.MaskedUser()))
	default:
		zap.L().Info("evasion: running without proxy")
	}

	return Session{
		Proxy: proxy,
		Emulation: chrome.Emulation{
			UserAgent:      cfg.Browser.UserAgent,
			AcceptLanguage: cfg.Browser.AcceptLanguage,
			Platform:       "Win32",
			Locale:         cfg.Browser.Locale,
			Timezone:       cfg.Browser.Timezone,
			Latitude:       cfg.Browser.Latitude,
			Longitude:      cfg.Browser.Longitude,
			ViewportWidth:  cfg.Browser.ViewportWidth,
			ViewportHeight: cfg.Browser.ViewportHeight,
		},
	}
}

// DriverConfig combines the session with the browser launch settings.
// Bootstrap mode always runs headful so a human can solve challenges.
func (s Session) DriverConfig(cfg *config.Config) chrome.DriverConfig {
	return chrome.DriverConfig{
		Bin:         cfg.Browser.Bin,
		UserDataDir: cfg.Browser.UserDataDir,
		Headless:    cfg.Browser.Headless && !cfg.Scraper.Bootstrap,
		NoSandbox:   cfg.Browser.NoSandbox,
		Leakless:    cfg.Browser.Leakless,
		Proxy:       s.Proxy.Chrome(),
		Emulation:   s.Emulation,
	}
}

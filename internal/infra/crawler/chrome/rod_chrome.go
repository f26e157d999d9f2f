package chrome

import (
	"context"
	"fmt"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/rotisserie/eris"
	"github.com/tavvarez/whatsapp-bot-resonance/internal/infra/crawler/options"
	"github.com/tavvarez/whatsapp-bot-resonance/internal/infra/crawler/types"
	"go.uber.org/zap"
)

type rodDriver struct {
	cfg DriverConfig
}

func NewRodDriver(cfg DriverConfig) Driver {
	return &rodDriver{cfg: cfg}
}

func (d *rodDriver) launcherOptions() []options.LauncherOption {
	opts := []options.LauncherOption{
		options.WithBin(d.cfg.Bin),
		options.WithUserDataDir(d.cfg.UserDataDir),
		options.WithHeadless(d.cfg.Headless),
		options.WithNoSandbox(d.cfg.NoSandbox),
		options.WithDisableDevShmUsage(true),
		options.WithLeakless(d.cfg.Leakless),
		options.WithUserAgent(d.cfg.Emulation.UserAgent),
		options.WithWindowSize(d.cfg.Emulation.ViewportWidth, d.cfg.Emulation.ViewportHeight),
		options.WithLang(d.cfg.Emulation.Locale),
	}
	if d.cfg.Proxy != nil {
		opts = append(opts, options.WithProxy(d.cfg.Proxy.Server))
	}
	return opts
}

func (d *rodDriver) Launch(ctx context.Context) (Browser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l := options.CreateLauncher(false, d.launcherOptions()...)
	controlURL, err := l.Launch()
	if err != nil {
		return nil, eris.Wrap(err, "chrome: launch browser")
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, eris.Wrap(err, "chrome: connect browser")
	}

	if d.cfg.Proxy.HasAuth() {
		answerProxyAuth(browser, d.cfg.Proxy)
	}

	err = proto.BrowserGrantPermissions{
		Permissions: []proto.BrowserPermissionType{proto.BrowserPermissionTypeGeolocation},
	}.Call(browser)
	if err != nil {
		zap.L().Warn("chrome: grant geolocation permission", zap.Error(err))
	}

	zap.L().Info("chrome: rod browser connected",
		zap.Bool("headless", d.cfg.Headless),
		zap.Bool("proxy", d.cfg.Proxy != nil))

	return &rodBrowser{browser: browser, launcher: l, emulation: d.cfg.Emulation}, nil
}

// answerProxyAuth keeps answering proxy auth challenges for the lifetime of
// the browser. With the fetch domain enabled every request pauses, so paused
// requests are continued as they come.
func answerProxyAuth(browser *rod.Browser, proxy *Proxy) {
	wait := browser.EachEvent(
		func(e *proto.FetchRequestPaused) {
			_ = proto.FetchContinueRequest{RequestID: e.RequestID}.Call(browser)
		},
		func(e *proto.FetchAuthRequired) {
			_ = proto.FetchContinueWithAuth{
				RequestID: e.RequestID,
				AuthChallengeResponse: &proto.FetchAuthChallengeResponse{
					Response: proto.FetchAuthChallengeResponseResponseProvideCredentials,
					Username: proxy.Username,
					Password: proxy.Password,
				},
			}.Call(browser)
		},
	)
	if err := (proto.FetchEnable{HandleAuthRequests: true}).Call(browser); err != nil {
		zap.L().Warn("chrome: enable proxy auth handling", zap.Error(err))
	}
	go wait()
}

type rodBrowser struct {
	browser   *rod.Browser
	launcher  *launcher.Launcher
	emulation Emulation
}

func (b *rodBrowser) NewPage(ctx context.Context) (Page, error) {
	page, err := stealth.Page(b.browser.Context(ctx))
	if err != nil {
		return nil, eris.Wrap(err, "chrome: open stealth page")
	}
	if err := applyRodEmulation(page, b.emulation); err != nil {
		_ = page.Close()
		return nil, err
	}
	// Detach from the creation context; each call passes its own.
	return &rodPage{page: page.Context(context.Background())}, nil
}

func applyRodEmulation(page *rod.Page, emu Emulation) error {
	if emu.UserAgent != "" {
		err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
			UserAgent:      emu.UserAgent,
			AcceptLanguage: emu.AcceptLanguage,
			Platform:       emu.Platform,
		})
		if err != nil {
			return eris.Wrap(err, "chrome: override user agent")
		}
	}
	if emu.ViewportWidth > 0 && emu.ViewportHeight > 0 {
		err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
			Width:             emu.ViewportWidth,
			Height:            emu.ViewportHeight,
			DeviceScaleFactor: 1,
		})
		if err != nil {
			return eris.Wrap(err, "chrome: override viewport")
		}
	}
	if emu.Timezone != "" {
		if err := (proto.EmulationSetTimezoneOverride{TimezoneID: emu.Timezone}).Call(page); err != nil {
			return eris.Wrap(err, "chrome: override timezone")
		}
	}
	if emu.Locale != "" {
		if err := (proto.EmulationSetLocaleOverride{Locale: emu.Locale}).Call(page); err != nil {
			return eris.Wrap(err, "chrome: override locale")
		}
	}
	if emu.Latitude != 0 || emu.Longitude != 0 {
		lat, lon, acc := emu.Latitude, emu.Longitude, 100.0
		err := proto.EmulationSetGeolocationOverride{
			Latitude:  &lat,
			Longitude: &lon,
			Accuracy:  &acc,
		}.Call(page)
		if err != nil {
			return eris.Wrap(err, "chrome: override geolocation")
		}
	}
	return nil
}

func (b *rodBrowser) Cookies(ctx context.Context) ([]Cookie, error) {
	raw, err := b.browser.Context(ctx).GetCookies()
	if err != nil {
		return nil, eris.Wrap(err, "chrome: read cookies")
	}
	cookies := make([]Cookie, 0, len(raw))
	for _, c := range raw {
		cookie := Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: string(c.SameSite),
		}
		if !c.Session {
			cookie.Expires = float64(c.Expires)
		}
		cookies = append(cookies, cookie)
	}
	return cookies, nil
}

func (b *rodBrowser) SetCookies(ctx context.Context, cookies []Cookie) error {
	if len(cookies) == 0 {
		return nil
	}
	params := make([]*proto.NetworkCookieParam, 0, len(cookies))
	for _, c := range cookies {
		params = append(params, &proto.NetworkCookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  proto.TimeSinceEpoch(c.Expires),
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: proto.NetworkCookieSameSite(c.SameSite),
		})
	}
	if err := b.browser.Context(ctx).SetCookies(params); err != nil {
		return eris.Wrap(err, "chrome: write cookies")
	}
	return nil
}

func (b *rodBrowser) ClearCookies(ctx context.Context) error {
	if err := b.browser.Context(ctx).SetCookies(nil); err != nil {
		return eris.Wrap(err, "chrome: clear cookies")
	}
	return nil
}

func (b *rodBrowser) Close() error {
	err := b.browser.Close()
	b.launcher.Kill()
	if err != nil {
		return eris.Wrap(err, "chrome: close browser")
	}
	return nil
}

type rodPage struct {
	page *rod.Page
}

func (p *rodPage) Navigate(ctx context.Context, url string) error {
	page := p.page.Context(ctx)
	if err := page.Navigate(url); err != nil {
		return eris.Wrapf(err, "chrome: navigate to %s", url)
	}
	return p.waitLoad(ctx)
}

func (p *rodPage) Reload(ctx context.Context) error {
	if err := p.page.Context(ctx).Reload(); err != nil {
		return eris.Wrap(err, "chrome: reload")
	}
	return p.waitLoad(ctx)
}

func (p *rodPage) waitLoad(ctx context.Context) error {
	if err := p.page.Context(ctx).WaitLoad(); err != nil {
		return eris.Wrap(err, "chrome: wait load")
	}
	return nil
}

func (p *rodPage) Snapshot(ctx context.Context) (types.PageSnapshot, error) {
	page := p.page.Context(ctx)
	info, err := page.Info()
	if err != nil {
		return types.PageSnapshot{}, eris.Wrap(err, "chrome: page info")
	}
	html, err := page.HTML()
	if err != nil {
		return types.PageSnapshot{}, eris.Wrap(err, "chrome: page html")
	}
	return types.PageSnapshot{URL: info.URL, Title: info.Title, HTML: html}, nil
}

func (p *rodPage) WaitVisible(ctx context.Context, selector string) error {
	el, err := p.page.Context(ctx).Element(selector)
	if err != nil {
		return eris.Wrapf(err, "chrome: find %s", selector)
	}
	if err := el.WaitVisible(); err != nil {
		return eris.Wrapf(err, "chrome: wait visible %s", selector)
	}
	return nil
}

func (p *rodPage) SelectOption(ctx context.Context, selector, value string) error {
	el, err := p.page.Context(ctx).Element(selector)
	if err != nil {
		return eris.Wrapf(err, "chrome: find %s", selector)
	}
	err = el.Select([]string{fmt.Sprintf("[value=%q]", value)}, true, rod.SelectorTypeCSSSector)
	if err != nil {
		return eris.Wrapf(err, "chrome: select %q in %s", value, selector)
	}
	return nil
}

func (p *rodPage) ClickNavigate(ctx context.Context, selector string) error {
	page := p.page.Context(ctx)
	el, err := page.Element(selector)
	if err != nil {
		return eris.Wrapf(err, "chrome: find %s", selector)
	}
	wait := page.WaitNavigation(proto.PageLifecycleEventNameLoad)
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return eris.Wrapf(err, "chrome: click %s", selector)
	}
	wait()
	if err := ctx.Err(); err != nil {
		return eris.Wrapf(err, "chrome: wait navigation after %s", selector)
	}
	return nil
}

func (p *rodPage) Close() error {
	if err := p.page.Close(); err != nil {
		return eris.Wrap(err, "chrome: close page")
	}
	return nil
}

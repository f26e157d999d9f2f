package chrome

import (
	"context"
	"time"

	"github.com/chromedp/cdproto/cdp"
	cdpbrowser "github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	cdppage "github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
	"github.com/go-rod/stealth"
	"github.com/rotisserie/eris"
	"github.com/tavvarez/whatsapp-bot-resonance/internal/infra/crawler/types"
	"go.uber.org/zap"
)

type chromedpDriver struct {
	cfg DriverConfig
}

func NewChromedpDriver(cfg DriverConfig) Driver {
	return &chromedpDriver{cfg: cfg}
}

func (d *chromedpDriver) allocatorOptions() []chromedp.ExecAllocatorOption {
	emu := d.cfg.Emulation
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", d.cfg.Headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("no-sandbox", d.cfg.NoSandbox),
	)
	if d.cfg.Bin != "" {
		opts = append(opts, chromedp.ExecPath(d.cfg.Bin))
	}
	if d.cfg.UserDataDir != "" {
		opts = append(opts, chromedp.UserDataDir(d.cfg.UserDataDir))
	}
	if emu.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(emu.UserAgent))
	}
	if emu.ViewportWidth > 0 && emu.ViewportHeight > 0 {
		opts = append(opts, chromedp.WindowSize(emu.ViewportWidth, emu.ViewportHeight))
	}
	if emu.Locale != "" {
		opts = append(opts, chromedp.Flag("lang", emu.Locale))
	}
	if d.cfg.Proxy != nil {
		opts = append(opts, chromedp.ProxyServer(d.cfg.Proxy.Server))
	}
	return opts
}

func (d *chromedpDriver) Launch(ctx context.Context) (Browser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// The browser outlives the launching call, so it hangs off its own root.
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), d.allocatorOptions()...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)

	if err := chromedp.Run(browserCtx); err != nil {
		cancelBrowser()
		cancelAlloc()
		return nil, eris.Wrap(err, "chrome: launch chromedp browser")
	}

	err := chromedp.Run(browserCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		return cdpbrowser.GrantPermissions([]cdpbrowser.PermissionType{cdpbrowser.PermissionTypeGeolocation}).Do(ctx)
	}))
	if err != nil {
		zap.L().Warn("chrome: grant geolocation permission", zap.Error(err))
	}

	zap.L().Info("chrome: chromedp browser started",
		zap.Bool("headless", d.cfg.Headless),
		zap.Bool("proxy", d.cfg.Proxy != nil))

	return &chromedpBrowser{
		ctx:           browserCtx,
		cancelBrowser: cancelBrowser,
		cancelAlloc:   cancelAlloc,
		cfg:           d.cfg,
	}, nil
}

type chromedpBrowser struct {
	ctx           context.Context
	cancelBrowser context.CancelFunc
	cancelAlloc   context.CancelFunc
	cfg           DriverConfig
}

func (b *chromedpBrowser) NewPage(ctx context.Context) (Page, error) {
	pageCtx, cancel := chromedp.NewContext(b.ctx)
	p := &chromedpPage{ctx: pageCtx, cancel: cancel}

	if b.cfg.Proxy.HasAuth() {
		listenProxyAuth(pageCtx, b.cfg.Proxy)
	}

	if err := p.run(ctx, b.setupActions()...); err != nil {
		cancel()
		return nil, eris.Wrap(err, "chrome: prepare chromedp page")
	}
	return p, nil
}

func (b *chromedpBrowser) setupActions() []chromedp.Action {
	emu := b.cfg.Emulation
	actions := []chromedp.Action{
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := cdppage.AddScriptToEvaluateOnNewDocument(stealth.JS).Do(ctx)
			return err
		}),
	}
	if b.cfg.Proxy.HasAuth() {
		actions = append(actions, fetch.Enable().WithHandleAuthRequests(true))
	}
	if emu.UserAgent != "" {
		actions = append(actions, emulation.SetUserAgentOverride(emu.UserAgent).
			WithAcceptLanguage(emu.AcceptLanguage).
			WithPlatform(emu.Platform))
	}
	if emu.ViewportWidth > 0 && emu.ViewportHeight > 0 {
		actions = append(actions, emulation.SetDeviceMetricsOverride(int64(emu.ViewportWidth), int64(emu.ViewportHeight), 1, false))
	}
	if emu.Timezone != "" {
		actions = append(actions, emulation.SetTimezoneOverride(emu.Timezone))
	}
	if emu.Locale != "" {
		actions = append(actions, emulation.SetLocaleOverride().WithLocale(emu.Locale))
	}
	if emu.Latitude != 0 || emu.Longitude != 0 {
		actions = append(actions, emulation.SetGeolocationOverride().
			WithLatitude(emu.Latitude).
			WithLongitude(emu.Longitude).
			WithAccuracy(100))
	}
	return actions
}

// listenProxyAuth continues paused requests and answers auth challenges on
// the page target.
func listenProxyAuth(pageCtx context.Context, proxy *Proxy) {
	chromedp.ListenTarget(pageCtx, func(ev interface{}) {
		switch ev := ev.(type) {
		case *fetch.EventRequestPaused:
			go func() {
				execCtx := cdp.WithExecutor(pageCtx, chromedp.FromContext(pageCtx).Target)
				_ = fetch.ContinueRequest(ev.RequestID).Do(execCtx)
			}()
		case *fetch.EventAuthRequired:
			go func() {
				execCtx := cdp.WithExecutor(pageCtx, chromedp.FromContext(pageCtx).Target)
				_ = fetch.ContinueWithAuth(ev.RequestID, &fetch.AuthChallengeResponse{
					Response: fetch.AuthChallengeResponseResponseProvideCredentials,
					Username: proxy.Username,
					Password: proxy.Password,
				}).Do(execCtx)
			}()
		}
	})
}

func (b *chromedpBrowser) Cookies(ctx context.Context) ([]Cookie, error) {
	var raw []*network.Cookie
	err := runWith(ctx, b.ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		raw, err = storage.GetCookies().Do(ctx)
		return err
	}))
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
			SameSite: c.SameSite.String(),
		}
		if !c.Session {
			cookie.Expires = c.Expires
		}
		cookies = append(cookies, cookie)
	}
	return cookies, nil
}

func (b *chromedpBrowser) SetCookies(ctx context.Context, cookies []Cookie) error {
	if len(cookies) == 0 {
		return nil
	}
	params := make([]*network.CookieParam, 0, len(cookies))
	for _, c := range cookies {
		param := &network.CookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: network.CookieSameSite(c.SameSite),
		}
		if c.Expires > 0 {
			expires := cdp.TimeSinceEpoch(time.Unix(int64(c.Expires), 0))
			param.Expires = &expires
		}
		params = append(params, param)
	}
	if err := runWith(ctx, b.ctx, storage.SetCookies(params)); err != nil {
		return eris.Wrap(err, "chrome: write cookies")
	}
	return nil
}

func (b *chromedpBrowser) ClearCookies(ctx context.Context) error {
	if err := runWith(ctx, b.ctx, storage.ClearCookies()); err != nil {
		return eris.Wrap(err, "chrome: clear cookies")
	}
	return nil
}

func (b *chromedpBrowser) Close() error {
	b.cancelBrowser()
	b.cancelAlloc()
	return nil
}

type chromedpPage struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// runWith executes actions on the target bound to target while honouring
// the cancellation of ctx. Cancelling a derived context leaves the tab open.
func runWith(ctx, target context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(target)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (p *chromedpPage) run(ctx context.Context, actions ...chromedp.Action) error {
	return runWith(ctx, p.ctx, actions...)
}

func (p *chromedpPage) Navigate(ctx context.Context, url string) error {
	if err := p.run(ctx, chromedp.Navigate(url)); err != nil {
		return eris.Wrapf(err, "chrome: navigate to %s", url)
	}
	return nil
}

func (p *chromedpPage) Reload(ctx context.Context) error {
	if err := p.run(ctx, chromedp.Reload()); err != nil {
		return eris.Wrap(err, "chrome: reload")
	}
	return nil
}

func (p *chromedpPage) Snapshot(ctx context.Context) (types.PageSnapshot, error) {
	var snap types.PageSnapshot
	err := p.run(ctx,
		chromedp.Location(&snap.URL),
		chromedp.Title(&snap.Title),
		chromedp.OuterHTML("html", &snap.HTML, chromedp.ByQuery),
	)
	if err != nil {
		return types.PageSnapshot{}, eris.Wrap(err, "chrome: snapshot")
	}
	return snap, nil
}

func (p *chromedpPage) WaitVisible(ctx context.Context, selector string) error {
	if err := p.run(ctx, chromedp.WaitVisible(selector, chromedp.ByQuery)); err != nil {
		return eris.Wrapf(err, "chrome: wait visible %s", selector)
	}
	return nil
}

func (p *chromedpPage) SelectOption(ctx context.Context, selector, value string) error {
	if err := p.run(ctx, chromedp.SetValue(selector, value, chromedp.ByQuery)); err != nil {
		return eris.Wrapf(err, "chrome: select %q in %s", value, selector)
	}
	return nil
}

// ClickNavigate relies on RunResponse, which listens for the main frame
// navigation before running the click.
func (p *chromedpPage) ClickNavigate(ctx context.Context, selector string) error {
	runCtx, cancel := context.WithCancel(p.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if _, err := chromedp.RunResponse(runCtx, chromedp.Click(selector, chromedp.ByQuery)); err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		return eris.Wrapf(err, "chrome: submit %s", selector)
	}
	return nil
}

func (p *chromedpPage) Close() error {
	p.cancel()
	return nil
}

// Package chrometest provides in-memory chrome drivers for tests.
package chrometest

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
	"github.com/tavvarez/whatsapp-bot-resonance/internal/infra/crawler/chrome"
	"github.com/tavvarez/whatsapp-bot-resonance/internal/infra/crawler/types"
)

// Driver hands out fake browsers. PreparePage, when set, runs on every page
// a launched browser creates.
type Driver struct {
	mu          sync.Mutex
	LaunchErr   error
	PreparePage func(*Page)
	Browsers    []*Browser
}

func (d *Driver) Launch(ctx context.Context) (chrome.Browser, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.LaunchErr != nil {
		return nil, d.LaunchErr
	}
	b := &Browser{preparePage: d.PreparePage}
	d.Browsers = append(d.Browsers, b)
	return b, nil
}

func (d *Driver) Launches() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.Browsers)
}

// Last returns the most recently launched browser.
func (d *Driver) Last() *Browser {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.Browsers) == 0 {
		return nil
	}
	return d.Browsers[len(d.Browsers)-1]
}

type Browser struct {
	mu          sync.Mutex
	preparePage func(*Page)
	jar         []chrome.Cookie
	closed      bool
	Pages       []*Page
	NewPageErr  error
	CookiesErr  error
}

func (b *Browser) NewPage(ctx context.Context) (chrome.Page, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, eris.New("chrometest: browser closed")
	}
	if b.NewPageErr != nil {
		return nil, b.NewPageErr
	}
	p := &Page{Current: types.PageSnapshot{URL: "about:blank"}}
	if b.preparePage != nil {
		b.preparePage(p)
	}
	b.Pages = append(b.Pages, p)
	return p, nil
}

func (b *Browser) Cookies(ctx context.Context) ([]chrome.Cookie, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.CookiesErr != nil {
		return nil, b.CookiesErr
	}
	return append([]chrome.Cookie(nil), b.jar...), nil
}

func (b *Browser) SetCookies(ctx context.Context, cookies []chrome.Cookie) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.jar = append(b.jar, cookies...)
	return nil
}

func (b *Browser) ClearCookies(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.jar = nil
	return nil
}

func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

func (b *Browser) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

func (b *Browser) PageCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.Pages)
}

// Page is a scripted tab. Snapshot serves Queue first, one entry per call,
// then sticks to Current. Errs is keyed by "navigate", "reload",
// "visible:<selector>", "select:<selector>", "click:<selector>" or
// "navigation:<selector>" (the click lands but the next page never loads).
type Page struct {
	mu          sync.Mutex
	Current     types.PageSnapshot
	Queue       []types.PageSnapshot
	Routes      map[string]types.PageSnapshot
	Errs        map[string]error
	OnClick     func(p *Page, selector string)
	Navigations []string
	Reloads     int
	Selected    map[string]string
	Clicks      []string
	closed      bool
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Navigations = append(p.Navigations, url)
	if err := p.Errs["navigate"]; err != nil {
		return err
	}
	if snap, ok := p.Routes[url]; ok {
		p.Current = snap
	} else {
		p.Current.URL = url
	}
	return ctx.Err()
}

func (p *Page) Reload(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Reloads++
	if err := p.Errs["reload"]; err != nil {
		return err
	}
	return ctx.Err()
}

func (p *Page) Snapshot(ctx context.Context) (types.PageSnapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.Queue) > 0 {
		p.Current = p.Queue[0]
		p.Queue = p.Queue[1:]
	}
	return p.Current, nil
}

func (p *Page) WaitVisible(ctx context.Context, selector string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Errs["visible:"+selector]
}

func (p *Page) SelectOption(ctx context.Context, selector, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.Errs["select:"+selector]; err != nil {
		return err
	}
	if p.Selected == nil {
		p.Selected = map[string]string{}
	}
	p.Selected[selector] = value
	return nil
}

func (p *Page) ClickNavigate(ctx context.Context, selector string) error {
	p.mu.Lock()
	if err := p.Errs["click:"+selector]; err != nil {
		p.mu.Unlock()
		return err
	}
	p.Clicks = append(p.Clicks, selector)
	onClick := p.OnClick
	navErr := p.Errs["navigation:"+selector]
	p.mu.Unlock()
	if navErr != nil {
		return navErr
	}
	if onClick != nil {
		onClick(p, selector)
	}
	return ctx.Err()
}

func (p *Page) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *Page) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// SetCurrent replaces the page content, for use from OnClick.
func (p *Page) SetCurrent(snap types.PageSnapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Current = snap
}

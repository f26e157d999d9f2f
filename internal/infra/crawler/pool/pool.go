// Package pool keeps one long-lived browser and a small free list of warm
// pages, so the anti-bot clearance earned by one scrape is reused by the next.
package pool

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tavvarez/whatsapp-bot-resonance/internal/infra/crawler/chrome"
	"github.com/tavvarez/whatsapp-bot-resonance/internal/infra/crawler/types"
	"go.uber.org/zap"
)

const (
	DefaultMaxPages    = 3
	DefaultMaxLifetime = 24 * time.Hour
)

type Config struct {
	// MaxPages caps the free list, not the number of pages in use.
	MaxPages    int
	MaxLifetime time.Duration
}

// PooledPage is a page handed out by the pool. The page keeps its cookies
// and history between uses.
type PooledPage struct {
	chrome.Page

	gen          uint64
	lastKnownURL string
	busy         bool
}

// LastKnownURL is the URL the page was last sent to, empty for a fresh page.
func (p *PooledPage) LastKnownURL() string {
	return p.lastKnownURL
}

func (p *PooledPage) SetLastKnownURL(url string) {
	p.lastKnownURL = url
}

// InUse reports whether the page is checked out.
func (p *PooledPage) InUse() bool {
	return p.busy
}

type Stats struct {
	Initialized       bool          `json:"initialized"`
	Healthy           bool          `json:"healthy"`
	PagesInPool       int           `json:"pages_in_pool"`
	MaxPages          int           `json:"max_pages"`
	BrowserAge        time.Duration `json:"-"`
	BrowserAgeSeconds float64       `json:"browser_age_seconds"`
	ShouldRenew       bool          `json:"should_renew"`
}

type Option func(*Pool)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(p *Pool) {
		p.now = now
	}
}

// Pool owns the browser. All state sits behind mu; browser launch and page
// creation happen while holding it, which serialises acquisitions.
type Pool struct {
	mu      sync.Mutex
	driver  chrome.Driver
	cookies *CookieStore
	cfg     Config
	now     func() time.Time

	browser chrome.Browser
	startAt time.Time
	gen     uint64
	free    []*PooledPage
	healthy bool
	closed  bool
}

func New(driver chrome.Driver, cookies *CookieStore, cfg Config, opts ...Option) *Pool {
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = DefaultMaxPages
	}
	if cfg.MaxLifetime <= 0 {
		cfg.MaxLifetime = DefaultMaxLifetime
	}
	p := &Pool{
		driver:  driver,
		cookies: cookies,
		cfg:     cfg,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Initialize launches the browser and restores the saved session.
// Calling it again is a no-op.
func (p *Pool) Initialize(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return types.ErrPoolShuttingDown
	}
	if p.browser != nil {
		zap.L().Warn("pool: already initialized")
		return nil
	}
	return p.launchLocked(ctx)
}

func (p *Pool) launchLocked(ctx context.Context) error {
	browser, err := p.driver.Launch(ctx)
	if err != nil {
		p.healthy = false
		return eris.Wrap(err, "pool: launch browser")
	}
	p.browser = browser
	p.startAt = p.now()
	p.gen++
	p.healthy = true

	cookies, err := p.cookies.Load()
	switch {
	case err != nil:
		zap.L().Warn("pool: restore session, starting fresh", zap.Error(err))
	case len(cookies) > 0:
		if err := browser.SetCookies(ctx, cookies); err != nil {
			zap.L().Warn("pool: apply saved cookies", zap.Error(err))
		} else {
			zap.L().Info("pool: session restored", zap.Int("cookies", len(cookies)))
		}
	}

	zap.L().Info("pool: browser ready", zap.Uint64("generation", p.gen))
	return nil
}

func (p *Pool) shouldRenewLocked() bool {
	return p.browser != nil && p.now().Sub(p.startAt) >= p.cfg.MaxLifetime
}

// probeLocked opens and closes a throwaway page.
func (p *Pool) probeLocked(ctx context.Context) bool {
	page, err := p.browser.NewPage(ctx)
	if err != nil {
		zap.L().Warn("pool: health probe failed", zap.Error(err))
		p.healthy = false
		return false
	}
	if err := page.Close(); err != nil {
		zap.L().Debug("pool: close probe page", zap.Error(err))
	}
	p.healthy = true
	return true
}

func (p *Pool) renewLocked(ctx context.Context) error {
	zap.L().Info("pool: renewing browser",
		zap.Duration("age", p.now().Sub(p.startAt)),
		zap.Bool("healthy", p.healthy))
	p.teardownLocked()
	return p.launchLocked(ctx)
}

func (p *Pool) teardownLocked() {
	for _, pg := range p.free {
		if err := pg.Close(); err != nil {
			zap.L().Debug("pool: close pooled page", zap.Error(err))
		}
	}
	p.free = nil
	if p.browser != nil {
		if err := p.browser.Close(); err != nil {
			zap.L().Debug("pool: close browser", zap.Error(err))
		}
		p.browser = nil
	}
	p.healthy = false
}

// AcquirePage hands out a pooled page, or a new one when the free list is
// empty. The browser is renewed first when it is too old or unhealthy.
func (p *Pool) AcquirePage(ctx context.Context) (*PooledPage, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, types.ErrPoolShuttingDown
	}

	switch {
	case p.browser == nil:
		if err := p.launchLocked(ctx); err != nil {
			return nil, err
		}
	case p.shouldRenewLocked() || !p.probeLocked(ctx):
		if err := p.renewLocked(ctx); err != nil {
			return nil, err
		}
	}

	if n := len(p.free); n > 0 {
		pg := p.free[n-1]
		p.free = p.free[:n-1]
		pg.busy = true
		return pg, nil
	}

	page, err := p.browser.NewPage(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "pool: open page")
	}
	return &PooledPage{Page: page, gen: p.gen, busy: true}, nil
}

// ReleasePage returns pg to the free list, or closes it when the list is
// full or the page belongs to a replaced browser. Failures are logged.
func (p *Pool) ReleasePage(ctx context.Context, pg *PooledPage, persistSession bool) {
	if pg == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	pg.busy = false
	if p.closed || p.browser == nil || pg.gen != p.gen {
		p.closePage(pg)
		return
	}
	if persistSession {
		p.persistLocked(ctx)
	}
	if len(p.free) < p.cfg.MaxPages {
		p.free = append(p.free, pg)
		return
	}
	p.closePage(pg)
}

// Discard closes pg without returning it to the pool.
func (p *Pool) Discard(pg *PooledPage) {
	if pg == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	pg.busy = false
	p.closePage(pg)
}

func (p *Pool) closePage(pg *PooledPage) {
	if err := pg.Close(); err != nil {
		zap.L().Debug("pool: close page", zap.Error(err))
	}
}

func (p *Pool) persistLocked(ctx context.Context) {
	cookies, err := p.browser.Cookies(ctx)
	if err != nil {
		zap.L().Warn("pool: read session cookies", zap.Error(err))
		return
	}
	if err := p.cookies.Save(cookies, p.now()); err != nil {
		zap.L().Warn("pool: persist session", zap.Error(err))
		return
	}
	zap.L().Debug("pool: session persisted", zap.Int("cookies", len(cookies)))
}

// WithPage runs fn on an acquired page. The page goes back to the pool when
// fn succeeds and is closed otherwise, panics included.
func (p *Pool) WithPage(ctx context.Context, persistSession bool, fn func(*PooledPage) error) error {
	pg, err := p.AcquirePage(ctx)
	if err != nil {
		return err
	}

	released := false
	defer func() {
		if !released {
			p.Discard(pg)
		}
	}()

	if err := fn(pg); err != nil {
		return err
	}
	released = true
	p.ReleasePage(ctx, pg, persistSession)
	return nil
}

// InvalidateSession drops the stored clearance: browser cookies, the cookie
// jar file and the warm pages that carry the old history.
func (p *Pool) InvalidateSession(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.browser != nil {
		if err := p.browser.ClearCookies(ctx); err != nil {
			zap.L().Warn("pool: clear browser cookies", zap.Error(err))
		}
	}
	if err := p.cookies.Remove(); err != nil {
		zap.L().Warn("pool: remove cookie jar", zap.Error(err))
	}
	for _, pg := range p.free {
		p.closePage(pg)
	}
	p.free = nil
	zap.L().Info("pool: session invalidated")
}

// Shutdown closes every page and the browser. It is idempotent; new
// acquisitions fail from the moment it is called.
func (p *Pool) Shutdown(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.closed = true
	p.teardownLocked()
	zap.L().Info("pool: shut down")
}

func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := Stats{
		Initialized: p.browser != nil,
		Healthy:     p.browser != nil && p.healthy,
		PagesInPool: len(p.free),
		MaxPages:    p.cfg.MaxPages,
		ShouldRenew: p.shouldRenewLocked(),
	}
	if p.browser != nil {
		s.BrowserAge = p.now().Sub(p.startAt)
		s.BrowserAgeSeconds = s.BrowserAge.Seconds()
	}
	return s
}

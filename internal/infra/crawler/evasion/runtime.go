package evasion

import (
	"context"
	"time"

	"github.com/tavvarez/whatsapp-bot-resonance/internal/config"
	"github.com/tavvarez/whatsapp-bot-resonance/internal/infra/crawler/pool"
	"github.com/tavvarez/whatsapp-bot-resonance/internal/infra/crawler/types"
	"go.uber.org/zap"
)

// PagePool is the part of pool.Pool the runtime drives.
type PagePool interface {
	WithPage(ctx context.Context, persistSession bool, fn func(*pool.PooledPage) error) error
	InvalidateSession(ctx context.Context)
}

// NavigationStrategy decides how Open reaches a URL.
type NavigationStrategy int

const (
	// NavigateOrRefresh reloads when the page already sits on the URL,
	// which keeps the request pattern close to a user pressing F5.
	NavigateOrRefresh NavigationStrategy = iota
	// AlwaysNavigate is for pages reached through form posts, where a
	// reload would resubmit.
	AlwaysNavigate
)

type RuntimeConfig struct {
	Retry             RetryPolicy
	ChallengeTimeout  time.Duration
	ChallengePoll     time.Duration
	NavigationTimeout time.Duration
	SelectorTimeout   time.Duration
	Bootstrap         bool
	BootstrapWait     time.Duration
}

// RuntimeConfigFrom maps the scraper section of the configuration.
func RuntimeConfigFrom(cfg *config.Config) (RuntimeConfig, error) {
	backoff, err := NewBackoffPolicy(cfg.Scraper.Backoff)
	if err != nil {
		return RuntimeConfig{}, err
	}
	return RuntimeConfig{
		Retry: RetryPolicy{
			MaxRetries: cfg.Scraper.MaxRetries,
			BaseDelay:  cfg.Scraper.RetryDelay,
			Backoff:    backoff,
			Session:    InvalidateOnChallenge,
		},
		ChallengeTimeout:  cfg.Scraper.ChallengeTimeout,
		ChallengePoll:     cfg.Scraper.ChallengePoll,
		NavigationTimeout: cfg.Scraper.NavigationTimeout,
		SelectorTimeout:   cfg.Scraper.SelectorTimeout,
		Bootstrap:         cfg.Scraper.Bootstrap,
		BootstrapWait:     cfg.Scraper.BootstrapWait,
	}, nil
}

func (c *RuntimeConfig) defaults() {
	if c.ChallengeTimeout <= 0 {
		c.ChallengeTimeout = 45 * time.Second
	}
	if c.ChallengePoll <= 0 {
		c.ChallengePoll = 2 * time.Second
	}
	if c.NavigationTimeout <= 0 {
		c.NavigationTimeout = 60 * time.Second
	}
	if c.SelectorTimeout <= 0 {
		c.SelectorTimeout = 30 * time.Second
	}
	if c.BootstrapWait <= 0 {
		c.BootstrapWait = 2 * time.Minute
	}
	if c.Retry.Session == nil {
		c.Retry.Session = InvalidateOnChallenge
	}
	if c.Retry.Sleep == nil {
		c.Retry.Sleep = Sleep
	}
}

// Runtime runs scrape attempts on pooled pages with challenge handling and
// retries. Scrapers share one Runtime.
type Runtime struct {
	pool     PagePool
	detector *ChallengeDetector
	pacer    *Pacer
	cfg      RuntimeConfig
}

func NewRuntime(pagePool PagePool, detector *ChallengeDetector, pacer *Pacer, cfg RuntimeConfig) *Runtime {
	cfg.defaults()
	rt := &Runtime{
		pool:     pagePool,
		detector: detector,
		pacer:    pacer,
		cfg:      cfg,
	}
	if rt.cfg.Retry.OnInvalidate == nil {
		rt.cfg.Retry.OnInvalidate = pagePool.InvalidateSession
	}
	return rt
}

// Run executes attempt on a pooled page under the retry policy. The page
// is recycled after a successful attempt and closed after a failed one.
func Run[T any](ctx context.Context, rt *Runtime, op string, persistSession bool, attempt func(ctx context.Context, pg *pool.PooledPage) (T, error)) (T, error) {
	return Retry(ctx, op, rt.cfg.Retry, func(ctx context.Context) (T, error) {
		var out T
		err := rt.pool.WithPage(ctx, persistSession, func(pg *pool.PooledPage) error {
			v, err := attempt(ctx, pg)
			if err != nil {
				return err
			}
			out = v
			return nil
		})
		return out, err
	})
}

// Open brings pg to url and makes sure no challenge stands in the way.
func (rt *Runtime) Open(ctx context.Context, pg *pool.PooledPage, url string, strategy NavigationStrategy) error {
	navCtx, cancel := context.WithTimeout(ctx, rt.cfg.NavigationTimeout)
	defer cancel()

	var err error
	if strategy == NavigateOrRefresh && pg.LastKnownURL() == url {
		zap.L().Debug("evasion: refreshing page", zap.String("url", url))
		err = pg.Reload(navCtx)
	} else {
		zap.L().Debug("evasion: navigating", zap.String("url", url))
		err = pg.Navigate(navCtx, url)
	}
	if err != nil {
		return &types.TransientScrapeError{Op: "navigate", Err: err}
	}

	if err := rt.pacer.Pause(ctx); err != nil {
		return err
	}
	if err := rt.EnsureClear(ctx, pg); err != nil {
		return err
	}
	pg.SetLastKnownURL(url)
	return nil
}

// EnsureClear inspects the current page. A challenge is waited out; a
// block marker fails at once with PermanentBlockError. In bootstrap mode a
// human gets BootstrapWait to deal with either before the verdict stands.
func (rt *Runtime) EnsureClear(ctx context.Context, pg *pool.PooledPage) error {
	snap, verdict, marker, err := rt.inspect(ctx, pg)
	if err != nil {
		return err
	}
	if verdict == Clear {
		return nil
	}

	if rt.cfg.Bootstrap {
		zap.L().Warn("evasion: challenge detected, solve it in the browser window",
			zap.String("verdict", verdict.String()),
			zap.Duration("wait", rt.cfg.BootstrapWait))
		snap, verdict, marker, err = rt.poll(ctx, pg, rt.cfg.BootstrapWait, func(v Verdict) bool { return v == Clear })
		if err != nil {
			return err
		}
		if verdict == Clear {
			return nil
		}
	}

	if verdict == Blocked {
		return &types.PermanentBlockError{URL: snap.URL, Marker: marker}
	}
	return rt.WaitForClear(ctx, pg)
}

// WaitForClear polls until the challenge goes away, a block shows up or
// ChallengeTimeout passes.
func (rt *Runtime) WaitForClear(ctx context.Context, pg *pool.PooledPage) error {
	zap.L().Info("evasion: waiting for challenge to clear", zap.Duration("timeout", rt.cfg.ChallengeTimeout))
	snap, verdict, marker, err := rt.poll(ctx, pg, rt.cfg.ChallengeTimeout, func(v Verdict) bool { return v != Challenge })
	if err != nil {
		return err
	}
	switch verdict {
	case Clear:
		zap.L().Info("evasion: challenge cleared")
		return nil
	case Blocked:
		return &types.PermanentBlockError{URL: snap.URL, Marker: marker}
	default:
		return &types.ChallengeBlockedError{URL: snap.URL, Waited: rt.cfg.ChallengeTimeout}
	}
}

func (rt *Runtime) inspect(ctx context.Context, pg *pool.PooledPage) (types.PageSnapshot, Verdict, string, error) {
	snapCtx, cancel := context.WithTimeout(ctx, rt.cfg.SelectorTimeout)
	defer cancel()
	snap, err := pg.Snapshot(snapCtx)
	if err != nil {
		return types.PageSnapshot{}, Clear, "", &types.TransientScrapeError{Op: "inspect page", Err: err}
	}
	verdict, marker := rt.detector.Classify(snap.Title, snap.HTML)
	return snap, verdict, marker, nil
}

// poll re-inspects the page every ChallengePoll until done accepts the
// verdict or the time budget runs out. The last observation is returned.
func (rt *Runtime) poll(ctx context.Context, pg *pool.PooledPage, budget time.Duration, done func(Verdict) bool) (types.PageSnapshot, Verdict, string, error) {
	polls := int(budget / rt.cfg.ChallengePoll)
	for i := 0; ; i++ {
		snap, verdict, marker, err := rt.inspect(ctx, pg)
		if err != nil {
			return snap, verdict, marker, err
		}
		if done(verdict) || i >= polls {
			return snap, verdict, marker, nil
		}
		if err := rt.cfg.Retry.Sleep(ctx, rt.cfg.ChallengePoll); err != nil {
			return snap, verdict, marker, err
		}
	}
}

// WaitVisible waits for selector under the selector timeout.
func (rt *Runtime) WaitVisible(ctx context.Context, pg *pool.PooledPage, selector string) error {
	waitCtx, cancel := context.WithTimeout(ctx, rt.cfg.SelectorTimeout)
	defer cancel()
	if err := pg.WaitVisible(waitCtx, selector); err != nil {
		return &types.TransientScrapeError{Op: "wait for " + selector, Err: err}
	}
	return nil
}

// Select picks value in the select element after a human pause.
func (rt *Runtime) Select(ctx context.Context, pg *pool.PooledPage, selector, value string) error {
	if err := rt.pacer.Pause(ctx); err != nil {
		return err
	}
	selCtx, cancel := context.WithTimeout(ctx, rt.cfg.SelectorTimeout)
	defer cancel()
	if err := pg.SelectOption(selCtx, selector, value); err != nil {
		return &types.TransientScrapeError{Op: "select " + selector, Err: err}
	}
	return nil
}

// Submit clicks selector and waits for the page the click navigates to.
// The page is no longer at a URL a reload could reach afterwards.
func (rt *Runtime) Submit(ctx context.Context, pg *pool.PooledPage, selector string) error {
	if err := rt.pacer.Pause(ctx); err != nil {
		return err
	}
	pg.SetLastKnownURL("")
	navCtx, cancel := context.WithTimeout(ctx, rt.cfg.NavigationTimeout)
	defer cancel()
	if err := pg.ClickNavigate(navCtx, selector); err != nil {
		return &types.TransientScrapeError{Op: "submit " + selector, Err: err}
	}
	return nil
}

// HTML returns the markup of the current page.
func (rt *Runtime) HTML(ctx context.Context, pg *pool.PooledPage) (string, error) {
	snapCtx, cancel := context.WithTimeout(ctx, rt.cfg.SelectorTimeout)
	defer cancel()
	snap, err := pg.Snapshot(snapCtx)
	if err != nil {
		return "", &types.TransientScrapeError{Op: "read page", Err: err}
	}
	return snap.HTML, nil
}

func (rt *Runtime) Pause(ctx context.Context) error {
	return rt.pacer.Pause(ctx)
}

package evasion

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tavvarez/whatsapp-bot-resonance/internal/config"
	"github.com/tavvarez/whatsapp-bot-resonance/internal/infra/crawler/chrome/chrometest"
	"github.com/tavvarez/whatsapp-bot-resonance/internal/infra/crawler/pool"
	"github.com/tavvarez/whatsapp-bot-resonance/internal/infra/crawler/types"
)

const deathsURL = "https://rubinot.com.br/?subtopic=latestdeaths"

var (
	challengePage = types.PageSnapshot{URL: deathsURL, Title: "Just a moment...", HTML: "<div class='cf-turnstile'></div>"}
	clearPage     = types.PageSnapshot{URL: deathsURL, Title: "RubinOT", HTML: "<table class='TableContent'></table>"}
	blockedPage   = types.PageSnapshot{URL: deathsURL, Title: "Attention Required!", HTML: "<h1>Sorry, you have been blocked</h1>"}
)

type countingPool struct {
	*pool.Pool
	invalidations int
}

func (c *countingPool) InvalidateSession(ctx context.Context) {
	c.invalidations++
	c.Pool.InvalidateSession(ctx)
}

func newTestRuntime(t *testing.T, driver *chrometest.Driver, mutate func(*RuntimeConfig)) (*Runtime, *countingPool) {
	t.Helper()
	p := &countingPool{Pool: pool.New(driver, pool.NewCookieStore(""), pool.Config{})}
	t.Cleanup(func() { p.Shutdown(context.Background()) })

	cfg := RuntimeConfig{
		Retry: RetryPolicy{
			MaxRetries: 3,
			BaseDelay:  time.Second,
			Backoff:    LinearBackoff{},
			Sleep:      noSleep,
		},
		ChallengeTimeout: 10 * time.Second,
		ChallengePoll:    2 * time.Second,
		BootstrapWait:    20 * time.Second,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	detector := NewChallengeDetector(config.DefaultChallengeMarkers, config.DefaultBlockMarkers)
	return NewRuntime(p, detector, NewPacer(0, 0), cfg), p
}

func openOnce(rt *Runtime, strategy NavigationStrategy) func(ctx context.Context, pg *pool.PooledPage) (*pool.PooledPage, error) {
	return func(ctx context.Context, pg *pool.PooledPage) (*pool.PooledPage, error) {
		if err := rt.Open(ctx, pg, deathsURL, strategy); err != nil {
			return nil, err
		}
		return pg, nil
	}
}

func TestOpenNavigatesThenRefreshes(t *testing.T) {
	driver := &chrometest.Driver{PreparePage: func(p *chrometest.Page) { p.Current = clearPage }}
	rt, _ := newTestRuntime(t, driver, nil)
	ctx := context.Background()

	first, err := Run(ctx, rt, "deaths", true, openOnce(rt, NavigateOrRefresh))
	require.NoError(t, err)
	second, err := Run(ctx, rt, "deaths", true, openOnce(rt, NavigateOrRefresh))
	require.NoError(t, err)

	require.Same(t, first, second)
	page := first.Page.(*chrometest.Page)
	assert.Equal(t, []string{deathsURL}, page.Navigations)
	assert.Equal(t, 1, page.Reloads)
}

func TestOpenAlwaysNavigate(t *testing.T) {
	driver := &chrometest.Driver{PreparePage: func(p *chrometest.Page) { p.Current = clearPage }}
	rt, _ := newTestRuntime(t, driver, nil)
	ctx := context.Background()

	pg, err := Run(ctx, rt, "deaths", false, openOnce(rt, AlwaysNavigate))
	require.NoError(t, err)
	_, err = Run(ctx, rt, "deaths", false, openOnce(rt, AlwaysNavigate))
	require.NoError(t, err)

	page := pg.Page.(*chrometest.Page)
	assert.Len(t, page.Navigations, 2)
	assert.Zero(t, page.Reloads)
}

func TestChallengeClearsWhileWaiting(t *testing.T) {
	driver := &chrometest.Driver{PreparePage: func(p *chrometest.Page) {
		p.Queue = []types.PageSnapshot{challengePage, challengePage, clearPage}
	}}
	rt, p := newTestRuntime(t, driver, nil)

	_, err := Run(context.Background(), rt, "deaths", true, openOnce(rt, NavigateOrRefresh))
	require.NoError(t, err)
	assert.Zero(t, p.invalidations)
}

func TestChallengeNeverClears(t *testing.T) {
	driver := &chrometest.Driver{PreparePage: func(p *chrometest.Page) { p.Current = challengePage }}
	rt, p := newTestRuntime(t, driver, nil)

	attempts := 0
	_, err := Run(context.Background(), rt, "deaths", true, func(ctx context.Context, pg *pool.PooledPage) (int, error) {
		attempts++
		return 0, rt.Open(ctx, pg, deathsURL, NavigateOrRefresh)
	})

	var exhausted *types.RetriesExhaustedError
	require.ErrorAs(t, err, &exhausted)
	var challenge *types.ChallengeBlockedError
	require.ErrorAs(t, err, &challenge)
	assert.Equal(t, 10*time.Second, challenge.Waited)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, 3, p.invalidations)
	assert.Zero(t, p.Stats().PagesInPool, "failed pages are not pooled")
}

func TestPermanentBlockSingleAttempt(t *testing.T) {
	driver := &chrometest.Driver{PreparePage: func(p *chrometest.Page) { p.Current = blockedPage }}
	rt, p := newTestRuntime(t, driver, nil)

	attempts := 0
	_, err := Run(context.Background(), rt, "deaths", true, func(ctx context.Context, pg *pool.PooledPage) (int, error) {
		attempts++
		return 0, rt.Open(ctx, pg, deathsURL, NavigateOrRefresh)
	})

	assert.Equal(t, 1, attempts)
	var block *types.PermanentBlockError
	require.ErrorAs(t, err, &block)
	assert.Equal(t, "sorry, you have been blocked", block.Marker)
	assert.Zero(t, p.invalidations)
}

func TestBlockAppearsWhileWaiting(t *testing.T) {
	driver := &chrometest.Driver{PreparePage: func(p *chrometest.Page) {
		p.Queue = []types.PageSnapshot{challengePage, blockedPage}
	}}
	rt, _ := newTestRuntime(t, driver, nil)

	_, err := Run(context.Background(), rt, "deaths", true, openOnce(rt, NavigateOrRefresh))
	assert.True(t, types.IsPermanentBlock(err))
}

func TestBootstrapWaitsForHuman(t *testing.T) {
	driver := &chrometest.Driver{PreparePage: func(p *chrometest.Page) {
		p.Queue = []types.PageSnapshot{blockedPage, blockedPage, blockedPage, clearPage}
	}}
	rt, _ := newTestRuntime(t, driver, func(c *RuntimeConfig) { c.Bootstrap = true })

	_, err := Run(context.Background(), rt, "deaths", true, openOnce(rt, NavigateOrRefresh))
	assert.NoError(t, err)
}

func TestBootstrapGivesUp(t *testing.T) {
	driver := &chrometest.Driver{PreparePage: func(p *chrometest.Page) { p.Current = blockedPage }}
	rt, _ := newTestRuntime(t, driver, func(c *RuntimeConfig) { c.Bootstrap = true })

	_, err := Run(context.Background(), rt, "deaths", true, openOnce(rt, NavigateOrRefresh))
	assert.True(t, types.IsPermanentBlock(err))
}

func TestNavigationFailureIsTransient(t *testing.T) {
	driver := &chrometest.Driver{PreparePage: func(p *chrometest.Page) {
		p.Errs = map[string]error{"navigate": errors.New("net::ERR_TIMED_OUT")}
	}}
	rt, _ := newTestRuntime(t, driver, nil)

	_, err := Run(context.Background(), rt, "deaths", true, openOnce(rt, NavigateOrRefresh))
	var transient *types.TransientScrapeError
	require.ErrorAs(t, err, &transient)
	assert.Equal(t, "navigate", transient.Op)
	assert.Equal(t, 5, driver.Last().PageCount(), "three attempt pages plus two health probes")
}

func TestFormHelpers(t *testing.T) {
	driver := &chrometest.Driver{PreparePage: func(p *chrometest.Page) {
		p.Current = clearPage
		p.Errs = map[string]error{"visible:select[name=\"guild\"]": errors.New("timeout")}
	}}
	rt, _ := newTestRuntime(t, driver, nil)

	_, err := Run(context.Background(), rt, "deaths", false, func(ctx context.Context, pg *pool.PooledPage) (string, error) {
		require.NoError(t, rt.Open(ctx, pg, deathsURL, AlwaysNavigate))
		require.NoError(t, rt.WaitVisible(ctx, pg, `select[name="world"]`))
		require.NoError(t, rt.Select(ctx, pg, `select[name="world"]`, "Elysian"))
		require.NoError(t, rt.Submit(ctx, pg, `input.BigButtonText[type="submit"]`))
		html, err := rt.HTML(ctx, pg)
		require.NoError(t, err)
		assert.Contains(t, html, "TableContent")

		page := pg.Page.(*chrometest.Page)
		assert.Equal(t, "Elysian", page.Selected[`select[name="world"]`])
		assert.Equal(t, []string{`input.BigButtonText[type="submit"]`}, page.Clicks)

		return "", rt.WaitVisible(ctx, pg, `select[name="guild"]`)
	})
	assert.True(t, types.IsRetryable(err))
	var transient *types.TransientScrapeError
	require.ErrorAs(t, err, &transient)
}

func TestSubmitFailsWhenNextPageNeverLoads(t *testing.T) {
	const submit = `input.BigButtonText[type="submit"]`
	driver := &chrometest.Driver{PreparePage: func(p *chrometest.Page) {
		p.Current = clearPage
		p.Errs = map[string]error{"navigation:" + submit: context.DeadlineExceeded}
	}}
	rt, _ := newTestRuntime(t, driver, func(c *RuntimeConfig) { c.Retry.MaxRetries = 1 })

	_, err := Run(context.Background(), rt, "deaths", false, func(ctx context.Context, pg *pool.PooledPage) (string, error) {
		require.NoError(t, rt.Open(ctx, pg, deathsURL, AlwaysNavigate))
		err := rt.Submit(ctx, pg, submit)
		assert.Empty(t, pg.LastKnownURL())
		assert.Equal(t, []string{submit}, pg.Page.(*chrometest.Page).Clicks)
		return "", err
	})
	assert.True(t, types.IsRetryable(err))
	var transient *types.TransientScrapeError
	require.ErrorAs(t, err, &transient)
	assert.Equal(t, "submit "+submit, transient.Op)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

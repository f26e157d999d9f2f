package collector

import (
	"context"
	"net/http/cookiejar"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

type Options struct {
	UserAgent      string
	AcceptLanguage string
	// Proxy is a full proxy URL including credentials.
	Proxy       string
	Timeout     time.Duration
	Delay       time.Duration
	RandomDelay time.Duration
}

type collyCollector struct {
	base *colly.Collector
	opts Options
}

func InitCollyCollector(opts Options) (Collector, error) {
	var collyOpts []colly.CollectorOption
	collyOpts = append(collyOpts,
		colly.IgnoreRobotsTxt(),
		colly.AllowURLRevisit(),
		colly.ParseHTTPErrorResponse(),
	)
	if opts.UserAgent != "" {
		collyOpts = append(collyOpts, colly.UserAgent(opts.UserAgent))
	}
	c := colly.NewCollector(collyOpts...)
	if err := c.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Delay:       opts.Delay,
		RandomDelay: opts.RandomDelay,
	}); err != nil {
		return nil, eris.Wrap(err, "collector: set limit rule")
	}
	if opts.Timeout > 0 {
		c.SetRequestTimeout(opts.Timeout)
	}
	if opts.Proxy != "" {
		if err := c.SetProxy(opts.Proxy); err != nil {
			return nil, eris.Wrap(err, "collector: set proxy")
		}
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, eris.Wrap(err, "collector: create cookie jar")
	}
	c.SetCookieJar(jar)

	zap.L().Info("collector: initialized",
		zap.Duration("timeout", opts.Timeout),
		zap.Duration("delay", opts.Delay),
		zap.Bool("proxy", opts.Proxy != ""))
	return &collyCollector{base: c, opts: opts}, nil
}

// Fetch visits url on a clone of the base collector so concurrent fetches
// do not share callbacks.
func (c *collyCollector) Fetch(ctx context.Context, url string) (*Response, error) {
	clone := c.base.Clone()
	clone.Context = ctx

	var (
		resp   *Response
		reqErr error
	)
	clone.OnRequest(func(r *colly.Request) {
		if c.opts.AcceptLanguage != "" {
			r.Headers.Set("Accept-Language", c.opts.AcceptLanguage)
		}
	})
	clone.OnResponse(func(r *colly.Response) {
		resp = &Response{URL: r.Request.URL.String(), StatusCode: r.StatusCode, Body: r.Body}
	})
	clone.OnError(func(r *colly.Response, err error) {
		reqErr = err
	})

	if err := clone.Visit(url); err != nil && reqErr == nil {
		reqErr = err
	}
	if resp == nil {
		if reqErr == nil {
			reqErr = eris.New("no response")
		}
		return nil, eris.Wrapf(reqErr, "collector: fetch %s", url)
	}
	zap.L().Debug("collector: fetched", zap.String("url", url), zap.Int("status", resp.StatusCode))
	return resp, nil
}

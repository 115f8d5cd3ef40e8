package crawler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"sjsage522/metricworker/helpers"
	"sjsage522/metricworker/internal/retry"
	"sjsage522/metricworker/logger"
	"sjsage522/metricworker/pkg/errors"
)

const (
	scrollPause = 300 * time.Millisecond
	clickPause  = 400 * time.Millisecond
	pollPause   = 500 * time.Millisecond
)

// ChromeOptions configures the headless browser
type ChromeOptions struct {
	Headless  bool
	ExecPath  string
	Proxy     string
	UserAgent string
	// Timeout bounds a single navigation when Navigation.Timeout is unset
	Timeout time.Duration
	Retry   retry.Config
}

// ChromeBrowser drives one Chrome instance through chromedp. Tabs are used
// sequentially; concurrent calls are not supported.
type ChromeBrowser struct {
	opts        ChromeOptions
	allocCancel context.CancelFunc
	ctx         context.Context
	cancel      context.CancelFunc
	log         *logger.Logger
}

// NewChromeBrowser starts a browser. The returned browser must be closed.
func NewChromeBrowser(ctx context.Context, opts ChromeOptions) (*ChromeBrowser, error) {
	if opts.UserAgent == "" {
		opts.UserAgent = helpers.UserAgent()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("lang", "sv-SE"),
		chromedp.WindowSize(1600, 900),
		chromedp.UserAgent(opts.UserAgent),
	)
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}
	if opts.Proxy != "" {
		allocOpts = append(allocOpts, chromedp.ProxyServer(opts.Proxy))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.WithoutCancel(ctx), allocOpts...)
	browserCtx, cancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(string, ...interface{}) {}))

	// Start the browser up front so a missing binary fails here
	if err := chromedp.Run(browserCtx, chromedp.Navigate("about:blank")); err != nil {
		cancel()
		allocCancel()
		return nil, errors.NewConfiguration("start chrome", err)
	}

	return &ChromeBrowser{
		opts:        opts,
		allocCancel: allocCancel,
		ctx:         browserCtx,
		cancel:      cancel,
		log:         logger.ForFetcher("chrome"),
	}, nil
}

// Close shuts the browser down
func (b *ChromeBrowser) Close() {
	b.cancel()
	b.allocCancel()
}

// run executes actions in the browser tab, bounded by timeout and by ctx
func (b *ChromeBrowser) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	if timeout <= 0 {
		timeout = b.opts.Timeout
	}
	tabCtx, cancel := context.WithTimeout(b.ctx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(tabCtx, actions...)
}

// Open navigates to url and returns the rendered HTML after nav has been
// applied. Navigation failures are retried.
func (b *ChromeBrowser) Open(ctx context.Context, url string, nav Navigation) (string, error) {
	host := hostOf(url)
	return retry.WithRetry(ctx, b.opts.Retry, func(ctx context.Context) (string, error) {
		var html string
		err := b.run(ctx, nav.Timeout,
			chromedp.Navigate(url),
			chromedp.WaitReady("body", chromedp.ByQuery),
			b.settle(nav),
			chromedp.OuterHTML("html", &html, chromedp.ByQuery),
		)
		if err != nil {
			return "", errors.NewNavigation(host, "open "+url, err)
		}
		return html, nil
	})
}

// settle dismisses popups, waits for content, scrolls and clicks "load more"
func (b *ChromeBrowser) settle(nav Navigation) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if len(nav.Dismiss) > 0 {
			if _, err := clickText(ctx, nav.Dismiss); err != nil {
				b.log.Debug().Err(err).Msg("Dismiss popups")
			}
		}
		if nav.WaitSelector != "" {
			if err := chromedp.WaitVisible(nav.WaitSelector, chromedp.ByQuery).Do(ctx); err != nil {
				return fmt.Errorf("wait for %s: %w", nav.WaitSelector, err)
			}
		}
		if err := scroll(ctx, nav.Scrolls); err != nil {
			return err
		}

		for clicks := 0; nav.LoadMore != "" && clicks < nav.LoadMoreClicks; clicks++ {
			if nav.CountSelector != "" && nav.Until > 0 {
				n, err := count(ctx, nav.CountSelector)
				if err != nil {
					return err
				}
				if n >= nav.Until {
					break
				}
			}
			clicked, err := clickText(ctx, []string{nav.LoadMore})
			if err != nil {
				return err
			}
			if !clicked {
				break
			}
			if err := chromedp.Sleep(clickPause).Do(ctx); err != nil {
				return err
			}
			if err := scroll(ctx, max(nav.Scrolls, 1)); err != nil {
				return err
			}
		}
		return nil
	})
}

// Paginate opens url and follows the next control until it is missing or
// disabled, returning the HTML of every page. Only the first page load is
// required to succeed.
func (b *ChromeBrowser) Paginate(ctx context.Context, url string, nav Navigation, next NextPage) ([]string, error) {
	first, err := b.Open(ctx, url, nav)
	if err != nil {
		return nil, err
	}
	pages := []string{first}

	maxPages := next.MaxPages
	if maxPages <= 0 {
		maxPages = 50
	}
	for len(pages) < maxPages {
		var clicked bool
		var html string
		err := b.run(ctx, nav.Timeout,
			chromedp.Evaluate(nextScript(next.Selector), &clicked),
			chromedp.ActionFunc(func(ctx context.Context) error {
				if !clicked {
					return nil
				}
				if err := chromedp.Sleep(clickPause).Do(ctx); err != nil {
					return err
				}
				if next.WaitSelector != "" {
					if err := chromedp.WaitReady(next.WaitSelector, chromedp.ByQuery).Do(ctx); err != nil {
						return err
					}
				}
				return chromedp.OuterHTML("html", &html, chromedp.ByQuery).Do(ctx)
			}),
		)
		if err != nil {
			b.log.Warn().Err(err).Str("url", url).Int("page", len(pages)+1).Msg("Stopping pagination")
			break
		}
		if !clicked {
			break
		}
		pages = append(pages, html)
	}
	return pages, nil
}

// Login fills and submits the form, then waits until the location matches
// SuccessURL
func (b *ChromeBrowser) Login(ctx context.Context, login Login, username, password string) error {
	if username == "" || password == "" {
		return errors.NewConfiguration("login credentials are not set", nil)
	}
	success, err := regexp.Compile(login.SuccessURL)
	if err != nil {
		return errors.NewConfiguration("invalid login success pattern", err)
	}

	host := hostOf(login.URL)
	err = b.run(ctx, b.opts.Timeout,
		chromedp.Navigate(login.URL),
		chromedp.WaitVisible(login.UserSelector, chromedp.ByQuery),
		chromedp.SendKeys(login.UserSelector, username, chromedp.ByQuery),
		chromedp.SendKeys(login.PassSelector, password, chromedp.ByQuery),
		chromedp.Click(login.Submit, chromedp.ByQuery),
		chromedp.ActionFunc(func(ctx context.Context) error {
			for {
				var location string
				if err := chromedp.Location(&location).Do(ctx); err != nil {
					return err
				}
				if success.MatchString(location) {
					return nil
				}
				if err := chromedp.Sleep(pollPause).Do(ctx); err != nil {
					return err
				}
			}
		}),
	)
	if err != nil {
		return errors.NewNavigation(host, "login", err)
	}
	b.log.Info().Str("host", host).Msg("Logged in")
	return nil
}

func scroll(ctx context.Context, times int) error {
	for i := 0; i < times; i++ {
		if err := chromedp.Evaluate("window.scrollBy(0, 2000)", nil).Do(ctx); err != nil {
			return err
		}
		if err := chromedp.Sleep(scrollPause).Do(ctx); err != nil {
			return err
		}
	}
	return nil
}

func count(ctx context.Context, selector string) (int, error) {
	var n int
	js := fmt.Sprintf("document.querySelectorAll(%s).length", jsString(selector))
	err := chromedp.Evaluate(js, &n).Do(ctx)
	return n, err
}

// clickText clicks the first button or link whose text contains one of texts
func clickText(ctx context.Context, texts []string) (bool, error) {
	wanted := make([]string, len(texts))
	for i, t := range texts {
		wanted[i] = strings.ToLower(t)
	}
	raw, err := json.Marshal(wanted)
	if err != nil {
		return false, err
	}
	js := fmt.Sprintf(`(() => {
  const wanted = %s;
  const els = Array.from(document.querySelectorAll('button, a, [role="button"]'));
  for (const el of els) {
    const t = (el.innerText || el.textContent || '').trim().toLowerCase();
    if (t && wanted.some(w => t.includes(w))) { el.click(); return true; }
  }
  return false;
})()`, raw)

	var clicked bool
	err = chromedp.Evaluate(js, &clicked).Do(ctx)
	return clicked, err
}

func nextScript(selector string) string {
	return fmt.Sprintf(`(() => {
  const el = document.querySelector(%s);
  if (!el || el.classList.contains('disabled') || el.getAttribute('aria-disabled') === 'true') return false;
  el.click();
  return true;
})()`, jsString(selector))
}

func jsString(s string) string {
	raw, _ := json.Marshal(s)
	return string(raw)
}

// BrowserFetcher adapts a Browser to the Fetcher interface
type BrowserFetcher struct {
	Browser    Browser
	Navigation Navigation
}

// Fetch opens url in the browser and returns the rendered HTML
func (f BrowserFetcher) Fetch(ctx context.Context, url string) (io.Reader, error) {
	html, err := f.Browser.Open(ctx, url, f.Navigation)
	if err != nil {
		return nil, err
	}
	return strings.NewReader(html), nil
}

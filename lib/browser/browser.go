package browser

import (
	"baypd-scraper/lib/htmlutil"
	"context"
	"fmt"
	"os"
	"time"

	"github.com/chromedp/chromedp"
)

// Options configures the browsers a Launcher starts.
type Options struct {
	// Visible runs the browser with a window instead of headless.
	Visible bool
	// Timeout bounds a single Run, zero means 2 minutes.
	Timeout time.Duration
	// ExecPath overrides the browser binary discovered on PATH.
	ExecPath string
}

// VisibleFromEnv reports whether FIREFOX_VISIBLE is set to any value.
func VisibleFromEnv() bool {
	_, ok := os.LookupEnv("FIREFOX_VISIBLE")
	return ok
}

type Launcher struct {
	opts Options
}

func New(opts Options) Launcher {
	if opts.Timeout == 0 {
		opts.Timeout = 2 * time.Minute
	}
	return Launcher{opts: opts}
}

func (l Launcher) allocatorOptions() []chromedp.ExecAllocatorOption {
	allocOpts := append(
		[]chromedp.ExecAllocatorOption{},
		chromedp.DefaultExecAllocatorOptions[:]...,
	)
	allocOpts = append(
		allocOpts,
		chromedp.Flag("headless", !l.opts.Visible),
		chromedp.WindowSize(1280, 1024),
	)
	if l.opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(l.opts.ExecPath))
	}
	return allocOpts
}

// Run starts an isolated browser, passes a context bound to it to `fn` and
// shuts the browser down once `fn` returns, whether or not it failed.
func (l Launcher) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancelTimeout := context.WithTimeout(ctx, l.opts.Timeout)
	defer cancelTimeout()

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, l.allocatorOptions()...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	// starts the browser eagerly so launch failures are reported as such
	err := chromedp.Run(browserCtx)
	if err != nil {
		return err
	}
	return fn(browserCtx)
}

// RenderedHTML navigates to `url`, waits for `readySelector` to be visible
// and returns the page's outer html.
func RenderedHTML(ctx context.Context, url, readySelector string) (string, error) {
	var html string
	err := chromedp.Run(
		ctx,
		chromedp.Navigate(url),
		chromedp.WaitVisible(readySelector, chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	return html, err
}

// Fetch is Run followed by RenderedHTML.
func (l Launcher) Fetch(ctx context.Context, url, readySelector string) (string, error) {
	var html string
	err := l.Run(ctx, func(ctx context.Context) error {
		var err error
		html, err = RenderedHTML(ctx, url, readySelector)
		return err
	})
	return html, err
}

// FrameSource waits for the iframe matching `selector` and returns its src
// resolved against the current page.
func FrameSource(ctx context.Context, selector string) (string, error) {
	var src, location string
	var ok bool
	err := chromedp.Run(
		ctx,
		chromedp.WaitReady(selector, chromedp.ByQuery),
		chromedp.AttributeValue(selector, "src", &src, &ok, chromedp.ByQuery),
		chromedp.Location(&location),
	)
	if err != nil {
		return "", err
	}
	if !ok || src == "" {
		return "", fmt.Errorf("iframe %s has no src", selector)
	}
	return htmlutil.ResolveURL(location, src), nil
}

// InFrame opens a frame's document in a new tab of the same browser and
// runs `fn` against it, the tab is closed afterwards. Charts are embedded
// cross-origin, so their documents cannot be reached through the parent.
func InFrame(ctx context.Context, frameSrc string, fn func(ctx context.Context) error) error {
	tabCtx, cancel := chromedp.NewContext(ctx)
	defer cancel()

	err := chromedp.Run(tabCtx, chromedp.Navigate(frameSrc))
	if err != nil {
		return err
	}
	return fn(tabCtx)
}

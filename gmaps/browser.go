package gmaps

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/playwright-community/playwright-go"
)

// Page is a navigated browser page owned by a single scrape.
type Page interface {
	Goto(ctx context.Context, url string) error
	// ClickIfPresent clicks the first element matching selector if it becomes
	// visible within timeout. It reports false, nil when nothing showed up.
	ClickIfPresent(ctx context.Context, selector string, timeout time.Duration) (bool, error)
	// WaitForElement blocks until an element matching selector is attached.
	WaitForElement(ctx context.Context, selector string, timeout time.Duration) (Element, error)
	// Element returns the first element matching selector without waiting.
	Element(ctx context.Context, selector string) (Element, error)
	Close() error
}

// Element is a page element that can be scrolled and serialized.
type Element interface {
	ScrollTarget
	OuterHTML(ctx context.Context) (string, error)
}

// Launcher opens a new browser session with a blank page.
type Launcher func(ctx context.Context) (Page, error)

type BrowserOptions struct {
	Headfull          bool
	DisableImages     bool
	NavigationTimeout time.Duration
}

// PlaywrightLauncher launches chromium through playwright. Every call starts
// its own driver and browser, both released by Page.Close.
func PlaywrightLauncher(opts BrowserOptions) Launcher {
	return func(ctx context.Context) (Page, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		pw, err := playwright.Run()
		if err != nil {
			return nil, fmt.Errorf("could not start playwright: %w", err)
		}

		args := []string{
			"--disable-blink-features=AutomationControlled",
			"--no-sandbox",
			"--disable-dev-shm-usage",
		}

		if opts.DisableImages {
			args = append(args, "--blink-settings=imagesEnabled=false")
		}

		browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
			Headless: playwright.Bool(!opts.Headfull),
			Args:     args,
		})
		if err != nil {
			_ = pw.Stop()

			return nil, fmt.Errorf("could not launch browser: %w", err)
		}

		page, err := browser.NewPage()
		if err != nil {
			_ = browser.Close()
			_ = pw.Stop()

			return nil, fmt.Errorf("could not create page: %w", err)
		}

		navTimeout := opts.NavigationTimeout
		if navTimeout <= 0 {
			navTimeout = 60 * time.Second
		}

		return &playwrightPage{
			pw:         pw,
			browser:    browser,
			page:       page,
			navTimeout: navTimeout,
		}, nil
	}
}

type playwrightPage struct {
	pw         *playwright.Playwright
	browser    playwright.Browser
	page       playwright.Page
	navTimeout time.Duration
}

func (p *playwrightPage) Goto(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	_, err := p.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   millis(p.navTimeout),
	})

	return err
}

func (p *playwrightPage) ClickIfPresent(ctx context.Context, selector string, timeout time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	loc := p.page.Locator(selector).First()

	err := loc.WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: millis(timeout),
	})
	if err != nil {
		if errors.Is(err, playwright.ErrTimeout) {
			return false, nil
		}

		return false, err
	}

	if err := loc.Click(playwright.LocatorClickOptions{Timeout: millis(timeout)}); err != nil {
		return false, err
	}

	return true, nil
}

func (p *playwrightPage) WaitForElement(ctx context.Context, selector string, timeout time.Duration) (Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	loc := p.page.Locator(selector).First()

	err := loc.WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateAttached,
		Timeout: millis(timeout),
	})
	if err != nil {
		return nil, err
	}

	return &playwrightElement{loc: loc}, nil
}

func (p *playwrightPage) Element(ctx context.Context, selector string) (Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	loc := p.page.Locator(selector).First()

	n, err := loc.Count()
	if err != nil {
		return nil, err
	}

	if n == 0 {
		return nil, fmt.Errorf("element %q not found", selector)
	}

	return &playwrightElement{loc: loc}, nil
}

func (p *playwrightPage) Close() error {
	return errors.Join(p.browser.Close(), p.pw.Stop())
}

type playwrightElement struct {
	loc playwright.Locator
}

func (e *playwrightElement) ScrollHeight(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	v, err := e.loc.Evaluate(`el => el.scrollHeight`, nil)
	if err != nil {
		return 0, err
	}

	return toInt(v)
}

func (e *playwrightElement) ScrollToBottom(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	_, err := e.loc.Evaluate(`el => el.scrollTo(0, el.scrollHeight)`, nil)

	return err
}

func (e *playwrightElement) OuterHTML(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	v, err := e.loc.Evaluate(`el => el.outerHTML`, nil)
	if err != nil {
		return "", err
	}

	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("outerHTML is not a string: %T", v)
	}

	return s, nil
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	default:
		return 0, fmt.Errorf("scrollHeight is not a number: %v", v)
	}
}

func millis(d time.Duration) *float64 {
	return playwright.Float(float64(d.Milliseconds()))
}

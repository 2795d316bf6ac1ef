package browser

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
)

type Options struct {
	Headless bool
	Proxy    string
}

// Playwright drives Chromium through playwright-go.
type Playwright struct {
	mu      sync.Mutex
	pw      *playwright.Playwright
	browser playwright.Browser
}

// Launch starts the Playwright driver and a Chromium instance. Failures are
// wrapped in ErrUnavailable.
func Launch(opts Options) (*Playwright, error) {
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("%w: start playwright: %v", ErrUnavailable, err)
	}

	launch := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
		Args: []string{
			"--disable-blink-features=AutomationControlled",
			"--disable-dev-shm-usage",
			"--no-sandbox",
		},
	}
	if opts.Proxy != "" {
		launch.Proxy = &playwright.Proxy{Server: opts.Proxy}
	}

	b, err := pw.Chromium.Launch(launch)
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("%w: launch chromium: %v", ErrUnavailable, err)
	}
	return &Playwright{pw: pw, browser: b}, nil
}

func (p *Playwright) NewPage() (Page, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.browser == nil {
		return nil, ErrUnavailable
	}
	bctx, err := p.browser.NewContext()
	if err != nil {
		return nil, fmt.Errorf("failed to create context: %w", err)
	}
	page, err := bctx.NewPage()
	if err != nil {
		bctx.Close()
		return nil, fmt.Errorf("failed to create page: %w", err)
	}
	return &pwPage{page: page, bctx: bctx}, nil
}

func (p *Playwright) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error
	if p.browser != nil {
		firstErr = p.browser.Close()
		p.browser = nil
	}
	if p.pw != nil {
		if err := p.pw.Stop(); err != nil && firstErr == nil {
			firstErr = err
		}
		p.pw = nil
	}
	return firstErr
}

type pwPage struct {
	page playwright.Page
	bctx playwright.BrowserContext
}

func ms(d time.Duration) *float64 {
	return playwright.Float(float64(d.Milliseconds()))
}

func (p *pwPage) Goto(url string, timeout time.Duration) error {
	_, err := p.page.Goto(url, playwright.PageGotoOptions{
		Timeout:   ms(timeout),
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	})
	return err
}

func (p *pwPage) WaitFor(selector string, timeout time.Duration) error {
	_, err := p.page.WaitForSelector(selector, playwright.PageWaitForSelectorOptions{
		Timeout: ms(timeout),
	})
	return err
}

func (p *pwPage) Scroll(steps int, pause time.Duration) {
	for i := 0; i < steps; i++ {
		if _, err := p.page.Evaluate(`window.scrollBy(0, document.body.scrollHeight)`); err != nil {
			return
		}
		p.page.WaitForTimeout(float64(pause.Milliseconds()))
	}
}

func (p *pwPage) ClickText(text string, timeout time.Duration) error {
	return p.page.Locator("text=" + text).First().Click(playwright.LocatorClickOptions{
		Timeout: ms(timeout),
	})
}

func (p *pwPage) Attr(selector, name string) (string, bool) {
	loc := p.page.Locator(selector).First()
	if n, err := loc.Count(); err != nil || n == 0 {
		return "", false
	}
	v, err := loc.GetAttribute(name, playwright.LocatorGetAttributeOptions{Timeout: playwright.Float(1000)})
	if err != nil || v == "" {
		return "", false
	}
	return v, true
}

func (p *pwPage) Content() (string, error) {
	return p.page.Content()
}

func (p *pwPage) Pause(d time.Duration) {
	p.page.WaitForTimeout(float64(d.Milliseconds()))
}

// OnResponse hands each matching response body to fn on its own goroutine
// so the page keeps rendering while bodies are read.
func (p *pwPage) OnResponse(match func(url string) bool, fn ResponseFunc) {
	p.page.OnResponse(func(response playwright.Response) {
		url := response.URL()
		if !match(url) {
			return
		}
		go func() {
			body, err := response.Text()
			if err != nil || body == "" {
				return
			}
			defer func() {
				if r := recover(); r != nil {
					log.Printf("response handler panic for %s: %v", url, r)
				}
			}()
			fn(url, body)
		}()
	})
}

func (p *pwPage) Close() error {
	err := p.page.Close()
	if cerr := p.bctx.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

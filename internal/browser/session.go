package browser

import (
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/soteldo/umbra/pkg/schema"
)

// PageDriver is the surface node executors use to drive a page.
// Implemented by pwPage over a real Playwright page; tests substitute fakes.
type PageDriver interface {
	Goto(url string, waitUntil string, timeoutMs float64) error
	Reload() error
	GoBack() error
	GoForward() error
	URL() string
	Title() (string, error)

	Click(selector string, button string, clickCount int, timeoutMs float64) error
	Hover(selector string, timeoutMs float64) error
	Focus(selector string) error
	Fill(selector, value string, timeoutMs float64) error
	Type(selector, text string, delayMs float64) error
	Clear(selector string) error
	SelectOption(selector, value string) error
	Press(selector, key string) error
	Scroll(dx, dy float64) error
	ScrollToElement(selector string) error
	DragAndDrop(source, target string) error
	SetFiles(selector string, files []string) error

	GetAttribute(selector, name string) (string, error)
	GetText(selector string) (string, error)
	Screenshot(path string, fullPage bool) error

	WaitForSelector(selector string, state string, timeoutMs float64) error
	WaitForLoadState(state string, timeoutMs float64) error
}

// TabSession is the tab-level surface node executors use. Session implements
// it over a real browser context; tests substitute fakes.
type TabSession interface {
	Driver() PageDriver
	NewTab() (int, error)
	SwitchTab(index int) error
	CloseTab(index int) error
	TabCount() int
}

// Session is one live browser context bound to a profile.
// It tracks open tabs and which one is active; node executors always
// operate on the active tab's driver.
type Session struct {
	ProfileID string
	ID        string
	// OwnerUserID is the opaque identity of the caller the session was
	// opened for. The launcher leaves it empty; the orchestrator stamps it.
	OwnerUserID string
	Headless    bool
	CreatedAt   time.Time

	context playwright.BrowserContext
	browser playwright.Browser // set only for ephemeral sessions

	mu     sync.Mutex
	pages  []playwright.Page
	active int
}

func newSession(profileID, id string, bctx playwright.BrowserContext, headless bool) (*Session, error) {
	s := &Session{
		ProfileID: profileID,
		ID:        id,
		Headless:  headless,
		CreatedAt: time.Now().UTC(),
		context:   bctx,
		pages:     bctx.Pages(),
	}
	if len(s.pages) == 0 {
		page, err := bctx.NewPage()
		if err != nil {
			return nil, schema.NewError(schema.ErrCodeLaunch, "failed to open initial page").WithCause(err)
		}
		s.pages = append(s.pages, page)
	}
	return s, nil
}

// Context exposes the underlying browser context for lifecycle hooks.
func (s *Session) Context() playwright.BrowserContext { return s.context }

// Driver returns a PageDriver for the active tab.
func (s *Session) Driver() PageDriver {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &pwPage{page: s.pages[s.active]}
}

// TabCount returns the number of open tabs.
func (s *Session) TabCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pages)
}

// NewTab opens a new tab, makes it active, and returns its index.
func (s *Session) NewTab() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	page, err := s.context.NewPage()
	if err != nil {
		return 0, schema.NewError(schema.ErrCodeExecution, "failed to open tab").WithCause(err)
	}
	s.pages = append(s.pages, page)
	s.active = len(s.pages) - 1
	return s.active, nil
}

// SwitchTab makes the tab at index active and brings it to front.
func (s *Session) SwitchTab(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if index < 0 || index >= len(s.pages) {
		return schema.NewErrorf(schema.ErrCodeExecution,
			"tab index %d out of range (have %d tabs)", index, len(s.pages))
	}
	s.active = index
	if err := s.pages[index].BringToFront(); err != nil {
		return schema.NewError(schema.ErrCodeExecution, "failed to focus tab").WithCause(err)
	}
	return nil
}

// CloseTab closes the tab at index. Closing the last remaining tab is
// rejected; close the session instead. A negative index closes the
// active tab.
func (s *Session) CloseTab(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if index < 0 {
		index = s.active
	}
	if index >= len(s.pages) {
		return schema.NewErrorf(schema.ErrCodeExecution,
			"tab index %d out of range (have %d tabs)", index, len(s.pages))
	}
	if len(s.pages) == 1 {
		return schema.NewError(schema.ErrCodeExecution, "cannot close the last tab of a session")
	}

	page := s.pages[index]
	s.pages = append(s.pages[:index], s.pages[index+1:]...)
	if s.active >= len(s.pages) {
		s.active = len(s.pages) - 1
	}
	if err := page.Close(); err != nil {
		return schema.NewError(schema.ErrCodeExecution, "failed to close tab").WithCause(err)
	}
	return nil
}

// Close tears down the context (and browser, for ephemeral sessions).
func (s *Session) Close() error {
	var err error
	if s.context != nil {
		err = s.context.Close()
	}
	if s.browser != nil {
		if berr := s.browser.Close(); err == nil {
			err = berr
		}
	}
	return err
}

var _ TabSession = (*Session)(nil)

// --- Playwright-backed PageDriver ---

type pwPage struct {
	page playwright.Page
}

func (p *pwPage) Goto(url string, waitUntil string, timeoutMs float64) error {
	opts := playwright.PageGotoOptions{}
	if waitUntil != "" {
		state := playwright.WaitUntilState(waitUntil)
		opts.WaitUntil = &state
	}
	if timeoutMs > 0 {
		opts.Timeout = playwright.Float(timeoutMs)
	}
	_, err := p.page.Goto(url, opts)
	return err
}

func (p *pwPage) Reload() error {
	_, err := p.page.Reload()
	return err
}

func (p *pwPage) GoBack() error {
	_, err := p.page.GoBack()
	return err
}

func (p *pwPage) GoForward() error {
	_, err := p.page.GoForward()
	return err
}

func (p *pwPage) URL() string { return p.page.URL() }

func (p *pwPage) Title() (string, error) { return p.page.Title() }

func (p *pwPage) Click(selector string, button string, clickCount int, timeoutMs float64) error {
	opts := playwright.PageClickOptions{}
	if button != "" {
		b := playwright.MouseButton(button)
		opts.Button = &b
	}
	if clickCount > 0 {
		opts.ClickCount = playwright.Int(clickCount)
	}
	if timeoutMs > 0 {
		opts.Timeout = playwright.Float(timeoutMs)
	}
	return p.page.Click(selector, opts)
}

func (p *pwPage) Hover(selector string, timeoutMs float64) error {
	opts := playwright.PageHoverOptions{}
	if timeoutMs > 0 {
		opts.Timeout = playwright.Float(timeoutMs)
	}
	return p.page.Hover(selector, opts)
}

func (p *pwPage) Focus(selector string) error {
	return p.page.Focus(selector)
}

func (p *pwPage) Fill(selector, value string, timeoutMs float64) error {
	opts := playwright.PageFillOptions{}
	if timeoutMs > 0 {
		opts.Timeout = playwright.Float(timeoutMs)
	}
	return p.page.Fill(selector, value, opts)
}

func (p *pwPage) Type(selector, text string, delayMs float64) error {
	opts := playwright.PageTypeOptions{}
	if delayMs > 0 {
		opts.Delay = playwright.Float(delayMs)
	}
	return p.page.Type(selector, text, opts)
}

func (p *pwPage) Clear(selector string) error {
	return p.page.Fill(selector, "")
}

func (p *pwPage) SelectOption(selector, value string) error {
	_, err := p.page.SelectOption(selector, playwright.SelectOptionValues{
		Values: &[]string{value},
	})
	return err
}

func (p *pwPage) Press(selector, key string) error {
	if selector == "" {
		return p.page.Keyboard().Press(key)
	}
	return p.page.Press(selector, key)
}

func (p *pwPage) Scroll(dx, dy float64) error {
	return p.page.Mouse().Wheel(dx, dy)
}

func (p *pwPage) ScrollToElement(selector string) error {
	handle, err := p.page.QuerySelector(selector)
	if err != nil {
		return err
	}
	if handle == nil {
		return schema.NewErrorf(schema.ErrCodeExecution, "no element matches selector %q", selector)
	}
	return handle.ScrollIntoViewIfNeeded()
}

func (p *pwPage) DragAndDrop(source, target string) error {
	return p.page.DragAndDrop(source, target)
}

func (p *pwPage) SetFiles(selector string, files []string) error {
	return p.page.SetInputFiles(selector, files)
}

func (p *pwPage) GetAttribute(selector, name string) (string, error) {
	return p.page.GetAttribute(selector, name)
}

func (p *pwPage) GetText(selector string) (string, error) {
	return p.page.TextContent(selector)
}

func (p *pwPage) Screenshot(path string, fullPage bool) error {
	_, err := p.page.Screenshot(playwright.PageScreenshotOptions{
		Path:     playwright.String(path),
		FullPage: playwright.Bool(fullPage),
	})
	return err
}

func (p *pwPage) WaitForSelector(selector string, state string, timeoutMs float64) error {
	opts := playwright.PageWaitForSelectorOptions{}
	if state != "" {
		st := playwright.WaitForSelectorState(state)
		opts.State = &st
	}
	if timeoutMs > 0 {
		opts.Timeout = playwright.Float(timeoutMs)
	}
	_, err := p.page.WaitForSelector(selector, opts)
	return err
}

func (p *pwPage) WaitForLoadState(state string, timeoutMs float64) error {
	opts := playwright.PageWaitForLoadStateOptions{}
	if state != "" {
		st := playwright.LoadState(state)
		opts.State = &st
	}
	if timeoutMs > 0 {
		opts.Timeout = playwright.Float(timeoutMs)
	}
	return p.page.WaitForLoadState(opts)
}

var _ PageDriver = (*pwPage)(nil)

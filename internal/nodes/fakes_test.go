package nodes

import (
	"fmt"

	"github.com/soteldo/umbra/internal/browser"
	"github.com/soteldo/umbra/internal/expressions"
	"github.com/soteldo/umbra/pkg/schema"
)

// fakeDriver records every call as a formatted string and serves canned
// attribute/text lookups.
type fakeDriver struct {
	calls []string
	url   string
	attrs map[string]string
	texts map[string]string
	err   error
}

func (d *fakeDriver) record(format string, args ...any) error {
	d.calls = append(d.calls, fmt.Sprintf(format, args...))
	return d.err
}

func (d *fakeDriver) Goto(url, waitUntil string, timeoutMs float64) error {
	d.url = url
	return d.record("goto %s", url)
}
func (d *fakeDriver) Reload() error    { return d.record("reload") }
func (d *fakeDriver) GoBack() error    { return d.record("goBack") }
func (d *fakeDriver) GoForward() error { return d.record("goForward") }
func (d *fakeDriver) URL() string      { return d.url }
func (d *fakeDriver) Title() (string, error) {
	return "", d.record("title")
}

func (d *fakeDriver) Click(selector, button string, clickCount int, timeoutMs float64) error {
	return d.record("click %s button=%s count=%d", selector, button, clickCount)
}
func (d *fakeDriver) Hover(selector string, timeoutMs float64) error {
	return d.record("hover %s", selector)
}
func (d *fakeDriver) Focus(selector string) error { return d.record("focus %s", selector) }
func (d *fakeDriver) Fill(selector, value string, timeoutMs float64) error {
	return d.record("fill %s value=%s", selector, value)
}
func (d *fakeDriver) Type(selector, text string, delayMs float64) error {
	return d.record("type %s text=%s delay=%g", selector, text, delayMs)
}
func (d *fakeDriver) Clear(selector string) error { return d.record("clear %s", selector) }
func (d *fakeDriver) SelectOption(selector, value string) error {
	return d.record("select %s value=%s", selector, value)
}
func (d *fakeDriver) Press(selector, key string) error {
	return d.record("press %s key=%s", selector, key)
}
func (d *fakeDriver) Scroll(dx, dy float64) error {
	return d.record("scroll dx=%g dy=%g", dx, dy)
}
func (d *fakeDriver) ScrollToElement(selector string) error {
	return d.record("scrollTo %s", selector)
}
func (d *fakeDriver) DragAndDrop(source, target string) error {
	return d.record("drag %s -> %s", source, target)
}
func (d *fakeDriver) SetFiles(selector string, files []string) error {
	return d.record("setFiles %s files=%v", selector, files)
}

func (d *fakeDriver) GetAttribute(selector, name string) (string, error) {
	err := d.record("getAttribute %s %s", selector, name)
	return d.attrs[selector+"/"+name], err
}
func (d *fakeDriver) GetText(selector string) (string, error) {
	err := d.record("getText %s", selector)
	return d.texts[selector], err
}
func (d *fakeDriver) Screenshot(path string, fullPage bool) error {
	return d.record("screenshot %s fullPage=%t", path, fullPage)
}

func (d *fakeDriver) WaitForSelector(selector, state string, timeoutMs float64) error {
	return d.record("waitForSelector %s state=%s", selector, state)
}
func (d *fakeDriver) WaitForLoadState(state string, timeoutMs float64) error {
	return d.record("waitForLoadState %s", state)
}

var _ browser.PageDriver = (*fakeDriver)(nil)

// fakeSession tracks tab bookkeeping without any browser behind it.
type fakeSession struct {
	driver *fakeDriver
	tabs   int
	active int
}

func newFakeSession() *fakeSession {
	return &fakeSession{driver: &fakeDriver{}, tabs: 1}
}

func (s *fakeSession) Driver() browser.PageDriver { return s.driver }

func (s *fakeSession) NewTab() (int, error) {
	s.tabs++
	s.active = s.tabs - 1
	return s.active, nil
}

func (s *fakeSession) SwitchTab(index int) error {
	if index < 0 || index >= s.tabs {
		return schema.NewErrorf(schema.ErrCodeExecution, "tab index %d out of range", index)
	}
	s.active = index
	return nil
}

func (s *fakeSession) CloseTab(index int) error {
	if s.tabs == 1 {
		return schema.NewError(schema.ErrCodeExecution, "cannot close the last tab of a session")
	}
	s.tabs--
	if s.active >= s.tabs {
		s.active = s.tabs - 1
	}
	return nil
}

func (s *fakeSession) TabCount() int { return s.tabs }

var _ browser.TabSession = (*fakeSession)(nil)

// fakeRuntime backs executor tests with an in-memory variable map and the
// real expression engines.
type fakeRuntime struct {
	session *fakeSession
	vars    map[string]any
	expr    *expressions.ExprEngine
	jq      *expressions.GoJQEngine
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{
		session: newFakeSession(),
		vars:    make(map[string]any),
		expr:    expressions.NewExprEngine(),
		jq:      expressions.NewGoJQEngine(),
	}
}

func (r *fakeRuntime) Session() (browser.TabSession, error) {
	if r.session == nil {
		return nil, schema.NewError(schema.ErrCodeBrowserUnavailable, "no session for this run")
	}
	return r.session, nil
}

func (r *fakeRuntime) Driver() (browser.PageDriver, error) {
	if r.session == nil {
		return nil, schema.NewError(schema.ErrCodeBrowserUnavailable, "no session for this run")
	}
	return r.session.driver, nil
}

func (r *fakeRuntime) GetVar(name string) (any, bool) {
	v, ok := r.vars[name]
	return v, ok
}

func (r *fakeRuntime) SetVar(name string, value any) { r.vars[name] = value }

func (r *fakeRuntime) Vars() map[string]any {
	cp := make(map[string]any, len(r.vars))
	for k, v := range r.vars {
		cp[k] = v
	}
	return cp
}

func (r *fakeRuntime) Expr() *expressions.ExprEngine { return r.expr }
func (r *fakeRuntime) JQ() *expressions.GoJQEngine   { return r.jq }

var _ Runtime = (*fakeRuntime)(nil)

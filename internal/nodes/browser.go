package nodes

import (
	"context"
	"encoding/json"
	"time"

	"github.com/soteldo/umbra/pkg/schema"
)

// --- Navigation ---

type openURLExecutor struct{}

func (e *openURLExecutor) Kind() schema.NodeKind { return schema.KindOpenURL }

func (e *openURLExecutor) Execute(ctx context.Context, rt Runtime, params json.RawMessage) error {
	var p schema.OpenURLParams
	if err := decodeParams(params, &p); err != nil {
		return err
	}
	if p.URL == "" {
		return schema.NewError(schema.ErrCodeValidation, "openURL requires a url")
	}
	driver, err := rt.Driver()
	if err != nil {
		return err
	}
	return driver.Goto(p.URL, "load", float64(p.Timeout))
}

type newTabExecutor struct{}

func (e *newTabExecutor) Kind() schema.NodeKind { return schema.KindNewTab }

func (e *newTabExecutor) Execute(ctx context.Context, rt Runtime, params json.RawMessage) error {
	session, err := rt.Session()
	if err != nil {
		return err
	}
	_, err = session.NewTab()
	return err
}

type switchTabExecutor struct{}

func (e *switchTabExecutor) Kind() schema.NodeKind { return schema.KindSwitchTab }

func (e *switchTabExecutor) Execute(ctx context.Context, rt Runtime, params json.RawMessage) error {
	var p schema.SwitchTabParams
	if err := decodeParams(params, &p); err != nil {
		return err
	}
	session, err := rt.Session()
	if err != nil {
		return err
	}
	return session.SwitchTab(p.TabIndex)
}

type closeTabExecutor struct{}

func (e *closeTabExecutor) Kind() schema.NodeKind { return schema.KindCloseTab }

func (e *closeTabExecutor) Execute(ctx context.Context, rt Runtime, params json.RawMessage) error {
	session, err := rt.Session()
	if err != nil {
		return err
	}
	return session.CloseTab(-1)
}

type goBackExecutor struct{}

func (e *goBackExecutor) Kind() schema.NodeKind { return schema.KindGoBack }

func (e *goBackExecutor) Execute(ctx context.Context, rt Runtime, params json.RawMessage) error {
	driver, err := rt.Driver()
	if err != nil {
		return err
	}
	return driver.GoBack()
}

type goForwardExecutor struct{}

func (e *goForwardExecutor) Kind() schema.NodeKind { return schema.KindGoForward }

func (e *goForwardExecutor) Execute(ctx context.Context, rt Runtime, params json.RawMessage) error {
	driver, err := rt.Driver()
	if err != nil {
		return err
	}
	return driver.GoForward()
}

type reloadPageExecutor struct{}

func (e *reloadPageExecutor) Kind() schema.NodeKind { return schema.KindReloadPage }

func (e *reloadPageExecutor) Execute(ctx context.Context, rt Runtime, params json.RawMessage) error {
	driver, err := rt.Driver()
	if err != nil {
		return err
	}
	return driver.Reload()
}

type getURLExecutor struct{}

func (e *getURLExecutor) Kind() schema.NodeKind { return schema.KindGetURL }

func (e *getURLExecutor) Execute(ctx context.Context, rt Runtime, params json.RawMessage) error {
	var p schema.GetURLParams
	if err := decodeParams(params, &p); err != nil {
		return err
	}
	if p.ResultVar == "" {
		return schema.NewError(schema.ErrCodeValidation, "getURL requires a resultVar")
	}
	driver, err := rt.Driver()
	if err != nil {
		return err
	}
	rt.SetVar(p.ResultVar, driver.URL())
	return nil
}

type screenshotExecutor struct{}

func (e *screenshotExecutor) Kind() schema.NodeKind { return schema.KindScreenshot }

func (e *screenshotExecutor) Execute(ctx context.Context, rt Runtime, params json.RawMessage) error {
	var p schema.ScreenshotParams
	if err := decodeParams(params, &p); err != nil {
		return err
	}
	if p.Path == "" {
		return schema.NewError(schema.ErrCodeValidation, "screenshot requires a path")
	}
	driver, err := rt.Driver()
	if err != nil {
		return err
	}
	return driver.Screenshot(p.Path, p.FullPage)
}

// --- Interaction ---

// clickExecutor backs click, doubleClick and rightClick.
type clickExecutor struct {
	kind schema.NodeKind
}

func (e *clickExecutor) Kind() schema.NodeKind { return e.kind }

func (e *clickExecutor) Execute(ctx context.Context, rt Runtime, params json.RawMessage) error {
	var p schema.ClickParams
	if err := decodeParams(params, &p); err != nil {
		return err
	}
	selector, err := buildSelector(p.Selector)
	if err != nil {
		return err
	}
	driver, err := rt.Driver()
	if err != nil {
		return err
	}

	button := p.ClickType
	count := 1
	switch e.kind {
	case schema.KindDoubleClick:
		count = 2
	case schema.KindRightClick:
		button = "right"
	}
	return driver.Click(selector, button, count, float64(p.Timeout))
}

type hoverExecutor struct{}

func (e *hoverExecutor) Kind() schema.NodeKind { return schema.KindHover }

func (e *hoverExecutor) Execute(ctx context.Context, rt Runtime, params json.RawMessage) error {
	var p schema.HoverParams
	if err := decodeParams(params, &p); err != nil {
		return err
	}
	selector, err := buildSelector(p.Selector)
	if err != nil {
		return err
	}
	driver, err := rt.Driver()
	if err != nil {
		return err
	}
	return driver.Hover(selector, float64(p.Timeout))
}

type focusExecutor struct{}

func (e *focusExecutor) Kind() schema.NodeKind { return schema.KindFocus }

func (e *focusExecutor) Execute(ctx context.Context, rt Runtime, params json.RawMessage) error {
	var p schema.HoverParams
	if err := decodeParams(params, &p); err != nil {
		return err
	}
	selector, err := buildSelector(p.Selector)
	if err != nil {
		return err
	}
	driver, err := rt.Driver()
	if err != nil {
		return err
	}
	return driver.Focus(selector)
}

type typeExecutor struct{}

func (e *typeExecutor) Kind() schema.NodeKind { return schema.KindType }

func (e *typeExecutor) Execute(ctx context.Context, rt Runtime, params json.RawMessage) error {
	var p schema.TypeParams
	if err := decodeParams(params, &p); err != nil {
		return err
	}
	selector, err := buildSelector(p.Selector)
	if err != nil {
		return err
	}
	driver, err := rt.Driver()
	if err != nil {
		return err
	}
	// A per-keystroke delay means simulated typing; otherwise fill at once.
	if p.Delay > 0 {
		return driver.Type(selector, p.Text, float64(p.Delay))
	}
	return driver.Fill(selector, p.Text, float64(p.Timeout))
}

type clearInputExecutor struct{}

func (e *clearInputExecutor) Kind() schema.NodeKind { return schema.KindClearInput }

func (e *clearInputExecutor) Execute(ctx context.Context, rt Runtime, params json.RawMessage) error {
	var p schema.HoverParams
	if err := decodeParams(params, &p); err != nil {
		return err
	}
	selector, err := buildSelector(p.Selector)
	if err != nil {
		return err
	}
	driver, err := rt.Driver()
	if err != nil {
		return err
	}
	return driver.Clear(selector)
}

type selectOptionExecutor struct{}

func (e *selectOptionExecutor) Kind() schema.NodeKind { return schema.KindSelectOption }

func (e *selectOptionExecutor) Execute(ctx context.Context, rt Runtime, params json.RawMessage) error {
	var p schema.SelectOptionParams
	if err := decodeParams(params, &p); err != nil {
		return err
	}
	selector, err := buildSelector(p.Selector)
	if err != nil {
		return err
	}
	driver, err := rt.Driver()
	if err != nil {
		return err
	}
	return driver.SelectOption(selector, p.Value)
}

type pressKeyExecutor struct{}

func (e *pressKeyExecutor) Kind() schema.NodeKind { return schema.KindPressKey }

func (e *pressKeyExecutor) Execute(ctx context.Context, rt Runtime, params json.RawMessage) error {
	var p schema.PressKeyParams
	if err := decodeParams(params, &p); err != nil {
		return err
	}
	if p.Key == "" {
		return schema.NewError(schema.ErrCodeValidation, "pressKey requires a key")
	}
	driver, err := rt.Driver()
	if err != nil {
		return err
	}
	key := p.Key
	if p.Modifier != "" {
		key = p.Modifier + "+" + key
	}
	return driver.Press("", key)
}

type scrollExecutor struct{}

func (e *scrollExecutor) Kind() schema.NodeKind { return schema.KindScroll }

func (e *scrollExecutor) Execute(ctx context.Context, rt Runtime, params json.RawMessage) error {
	var p schema.ScrollParams
	if err := decodeParams(params, &p); err != nil {
		return err
	}
	driver, err := rt.Driver()
	if err != nil {
		return err
	}
	amount := p.Amount
	if amount == 0 {
		amount = 500
	}
	dy := float64(amount)
	if p.Direction == "up" {
		dy = -dy
	}
	return driver.Scroll(0, dy)
}

type scrollToElementExecutor struct{}

func (e *scrollToElementExecutor) Kind() schema.NodeKind { return schema.KindScrollToElement }

func (e *scrollToElementExecutor) Execute(ctx context.Context, rt Runtime, params json.RawMessage) error {
	var p schema.HoverParams
	if err := decodeParams(params, &p); err != nil {
		return err
	}
	selector, err := buildSelector(p.Selector)
	if err != nil {
		return err
	}
	driver, err := rt.Driver()
	if err != nil {
		return err
	}
	return driver.ScrollToElement(selector)
}

type dragAndDropExecutor struct{}

func (e *dragAndDropExecutor) Kind() schema.NodeKind { return schema.KindDragAndDrop }

func (e *dragAndDropExecutor) Execute(ctx context.Context, rt Runtime, params json.RawMessage) error {
	var p schema.DragAndDropParams
	if err := decodeParams(params, &p); err != nil {
		return err
	}
	if p.SourceSelectorValue == "" || p.TargetSelectorValue == "" {
		return schema.NewError(schema.ErrCodeValidation, "dragAndDrop requires source and target selectors")
	}
	driver, err := rt.Driver()
	if err != nil {
		return err
	}
	return driver.DragAndDrop(p.SourceSelectorValue, p.TargetSelectorValue)
}

type getAttributeExecutor struct{}

func (e *getAttributeExecutor) Kind() schema.NodeKind { return schema.KindGetAttribute }

func (e *getAttributeExecutor) Execute(ctx context.Context, rt Runtime, params json.RawMessage) error {
	var p schema.GetAttributeParams
	if err := decodeParams(params, &p); err != nil {
		return err
	}
	if p.Attribute == "" || p.ResultVar == "" {
		return schema.NewError(schema.ErrCodeValidation, "getAttribute requires attribute and resultVar")
	}
	selector, err := buildSelector(p.Selector)
	if err != nil {
		return err
	}
	driver, err := rt.Driver()
	if err != nil {
		return err
	}
	val, err := driver.GetAttribute(selector, p.Attribute)
	if err != nil {
		return err
	}
	rt.SetVar(p.ResultVar, val)
	return nil
}

type getTextExecutor struct{}

func (e *getTextExecutor) Kind() schema.NodeKind { return schema.KindGetText }

func (e *getTextExecutor) Execute(ctx context.Context, rt Runtime, params json.RawMessage) error {
	var p schema.GetTextParams
	if err := decodeParams(params, &p); err != nil {
		return err
	}
	if p.ResultVar == "" {
		return schema.NewError(schema.ErrCodeValidation, "getText requires a resultVar")
	}
	selector, err := buildSelector(p.Selector)
	if err != nil {
		return err
	}
	driver, err := rt.Driver()
	if err != nil {
		return err
	}
	text, err := driver.GetText(selector)
	if err != nil {
		return err
	}
	rt.SetVar(p.ResultVar, text)
	return nil
}

type uploadExecutor struct{}

func (e *uploadExecutor) Kind() schema.NodeKind { return schema.KindUpload }

func (e *uploadExecutor) Execute(ctx context.Context, rt Runtime, params json.RawMessage) error {
	var p schema.UploadParams
	if err := decodeParams(params, &p); err != nil {
		return err
	}
	if p.FilePath == "" {
		return schema.NewError(schema.ErrCodeValidation, "upload requires a filePath")
	}
	selector, err := buildSelector(p.Selector)
	if err != nil {
		return err
	}
	driver, err := rt.Driver()
	if err != nil {
		return err
	}
	return driver.SetFiles(selector, []string{p.FilePath})
}

// --- Waits ---

type delayExecutor struct{}

func (e *delayExecutor) Kind() schema.NodeKind { return schema.KindDelay }

func (e *delayExecutor) Execute(ctx context.Context, rt Runtime, params json.RawMessage) error {
	var p schema.DelayParams
	if err := decodeParams(params, &p); err != nil {
		return err
	}
	if p.Duration <= 0 {
		return nil
	}
	timer := time.NewTimer(time.Duration(p.Duration) * time.Millisecond)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return schema.NewError(schema.ErrCodeCancelled, "delay interrupted").WithCause(ctx.Err())
	}
}

type waitForSelectorExecutor struct{}

func (e *waitForSelectorExecutor) Kind() schema.NodeKind { return schema.KindWaitForSelector }

func (e *waitForSelectorExecutor) Execute(ctx context.Context, rt Runtime, params json.RawMessage) error {
	var p schema.WaitForSelectorParams
	if err := decodeParams(params, &p); err != nil {
		return err
	}
	selector, err := buildSelector(p.Selector)
	if err != nil {
		return err
	}
	driver, err := rt.Driver()
	if err != nil {
		return err
	}
	if err := driver.WaitForSelector(selector, "visible", float64(p.Timeout)); err != nil {
		return schema.NewErrorf(schema.ErrCodeTimeout, "element %q did not appear", selector).WithCause(err)
	}
	return nil
}

type waitForPageLoadExecutor struct{}

func (e *waitForPageLoadExecutor) Kind() schema.NodeKind { return schema.KindWaitForPageLoad }

func (e *waitForPageLoadExecutor) Execute(ctx context.Context, rt Runtime, params json.RawMessage) error {
	var p schema.WaitForPageLoadParams
	if err := decodeParams(params, &p); err != nil {
		return err
	}
	driver, err := rt.Driver()
	if err != nil {
		return err
	}
	if err := driver.WaitForLoadState("load", float64(p.Timeout)); err != nil {
		return schema.NewError(schema.ErrCodeTimeout, "page did not finish loading").WithCause(err)
	}
	return nil
}

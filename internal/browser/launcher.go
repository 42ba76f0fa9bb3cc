package browser

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/playwright-community/playwright-go"

	"github.com/soteldo/umbra/internal/store"
	"github.com/soteldo/umbra/pkg/schema"
)

// Launcher owns the Playwright driver and launches browser contexts.
// Each profile gets a persistent context bound to its own user data
// directory so cookies and sessions survive restarts.
type Launcher struct {
	mu          sync.Mutex
	pw          *playwright.Playwright
	initialized bool

	baseDataDir string
	defaultExec string
	headless    bool
}

// NewLauncher creates a launcher. baseDataDir is where per-profile user data
// directories are created for profiles that do not set their own.
// defaultExec, when non-empty, is the Chromium binary used by profiles
// without a custom path of their own.
func NewLauncher(baseDataDir, defaultExec string, headless bool) *Launcher {
	return &Launcher{
		baseDataDir: baseDataDir,
		defaultExec: defaultExec,
		headless:    headless,
	}
}

// Initialize installs the Playwright driver if needed and starts it.
// Driver output is discarded so it does not pollute structured logs.
func (l *Launcher) Initialize() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.initialized {
		return nil
	}

	opts := &playwright.RunOptions{
		Verbose: false,
		Stdout:  io.Discard,
		Stderr:  io.Discard,
	}

	if err := playwright.Install(opts); err != nil {
		return schema.NewError(schema.ErrCodeBrowserUnavailable, "failed to install playwright driver").WithCause(err)
	}

	pw, err := playwright.Run(opts)
	if err != nil {
		return schema.NewError(schema.ErrCodeBrowserUnavailable, "failed to start playwright driver").WithCause(err)
	}

	l.pw = pw
	l.initialized = true
	return nil
}

// Stop shuts down the Playwright driver.
func (l *Launcher) Stop() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.initialized || l.pw == nil {
		return nil
	}
	err := l.pw.Stop()
	l.pw = nil
	l.initialized = false
	return err
}

// driver snapshots the running Playwright handle. The lock guards only the
// handle read so concurrent launches do not serialize on the launcher.
func (l *Launcher) driver() (*playwright.Playwright, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.initialized || l.pw == nil {
		return nil, schema.NewError(schema.ErrCodeBrowserUnavailable, "launcher not initialized")
	}
	return l.pw, nil
}

// resolveExecutable picks the Chromium binary for a profile.
// Order: the profile's custom path, the launcher-wide default, then the
// Playwright-managed install. Returning "" means Playwright uses its
// default binary.
func (l *Launcher) resolveExecutable(pw *playwright.Playwright, customPath string) (string, error) {
	if customPath == "" {
		customPath = l.defaultExec
	}
	if customPath != "" {
		if _, err := os.Stat(customPath); err != nil {
			return "", schema.NewErrorf(schema.ErrCodeLaunch,
				"custom chromium binary not found at %s", customPath).WithCause(err)
		}
		return customPath, nil
	}

	if pw != nil {
		managed := pw.Chromium.ExecutablePath()
		if managed != "" {
			if _, err := os.Stat(managed); err == nil {
				return managed, nil
			}
		}
	}
	return "", nil
}

// fingerprint is the shape of the JSON blob stored per profile. Every field
// is optional; absent fields fall back to Playwright defaults.
type fingerprint struct {
	UserAgent string   `json:"userAgent,omitempty"`
	Locale    string   `json:"locale,omitempty"`
	Timezone  string   `json:"timezone,omitempty"`
	Args      []string `json:"args,omitempty"`
	Viewport  *struct {
		Width  int `json:"width"`
		Height int `json:"height"`
	} `json:"viewport,omitempty"`
}

// applyFingerprint decodes the profile's stored fingerprint into launch options.
func applyFingerprint(raw json.RawMessage, opts *playwright.BrowserTypeLaunchPersistentContextOptions) error {
	if len(raw) == 0 {
		return nil
	}
	var fp fingerprint
	if err := json.Unmarshal(raw, &fp); err != nil {
		return schema.NewError(schema.ErrCodeLaunch, "invalid profile fingerprint").WithCause(err)
	}

	if fp.UserAgent != "" {
		opts.UserAgent = playwright.String(fp.UserAgent)
	}
	if fp.Locale != "" {
		opts.Locale = playwright.String(fp.Locale)
	}
	if fp.Timezone != "" {
		opts.TimezoneId = playwright.String(fp.Timezone)
	}
	if len(fp.Args) > 0 {
		opts.Args = fp.Args
	}
	if fp.Viewport != nil && fp.Viewport.Width > 0 && fp.Viewport.Height > 0 {
		opts.Viewport = &playwright.Size{Width: fp.Viewport.Width, Height: fp.Viewport.Height}
	}
	return nil
}

// dataDir returns the profile's user data directory, creating it if missing.
func (l *Launcher) dataDir(p *store.Profile) (string, error) {
	dir := p.DataDir
	if dir == "" {
		dir = filepath.Join(l.baseDataDir, p.ID)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", schema.NewErrorf(schema.ErrCodeLaunch,
			"cannot create profile data dir %s", dir).WithCause(err)
	}
	return dir, nil
}

// LaunchPersistent launches a persistent browser context for the profile.
// The proxy, when given, is applied at the context level so every page
// in the session goes through it. Launches run without the launcher lock
// so N profiles really start N browsers in parallel.
func (l *Launcher) LaunchPersistent(ctx context.Context, profile *store.Profile, proxy *store.Proxy) (*Session, error) {
	if profile == nil || profile.ID == "" {
		// An empty ID would also collapse the data dir onto baseDataDir.
		return nil, schema.NewError(schema.ErrCodeValidation, "profile id is required")
	}

	pw, err := l.driver()
	if err != nil {
		return nil, err
	}

	execPath, err := l.resolveExecutable(pw, profile.ChromiumPath)
	if err != nil {
		return nil, err
	}

	dir, err := l.dataDir(profile)
	if err != nil {
		return nil, err
	}

	opts := playwright.BrowserTypeLaunchPersistentContextOptions{
		Headless: playwright.Bool(l.headless),
	}
	if execPath != "" {
		opts.ExecutablePath = playwright.String(execPath)
	}
	if err := applyFingerprint(profile.Fingerprint, &opts); err != nil {
		return nil, err
	}
	if proxy != nil {
		pwProxy := &playwright.Proxy{Server: proxy.Server}
		if proxy.Username != "" {
			pwProxy.Username = playwright.String(proxy.Username)
			pwProxy.Password = playwright.String(proxy.Password)
		}
		opts.Proxy = pwProxy
	}

	bctx, err := pw.Chromium.LaunchPersistentContext(dir, opts)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeLaunch,
			"failed to launch browser for profile %s", profile.ID).WithCause(err)
	}

	session, err := newSession(profile.ID, uuid.New().String(), bctx, l.headless)
	if err != nil {
		_ = bctx.Close()
		return nil, err
	}
	return session, nil
}

// LaunchEphemeral launches a throwaway context with no profile directory.
// Used for workflow test runs that should not touch any profile state.
func (l *Launcher) LaunchEphemeral(ctx context.Context) (*Session, error) {
	pw, err := l.driver()
	if err != nil {
		return nil, err
	}

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(l.headless),
	})
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeLaunch, "failed to launch ephemeral browser").WithCause(err)
	}

	bctx, err := browser.NewContext()
	if err != nil {
		_ = browser.Close()
		return nil, schema.NewError(schema.ErrCodeLaunch, "failed to create ephemeral context").WithCause(err)
	}

	session, err := newSession("", uuid.New().String(), bctx, l.headless)
	if err != nil {
		_ = bctx.Close()
		_ = browser.Close()
		return nil, err
	}
	session.browser = browser
	session.CreatedAt = time.Now().UTC()
	return session, nil
}

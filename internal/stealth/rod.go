package stealth

import (
	"context"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// RodOptions configures the Chromium driver.
type RodOptions struct {
	Profile ProfileOptions
	// ControlURL connects to an already running browser. Empty launches one.
	ControlURL string
	// Bin overrides the browser binary used by the launcher.
	Bin      string
	Headless bool
}

// RodOpener drives a shared Chromium instance and gives every session its own
// incognito context.
type RodOpener struct {
	opts RodOptions

	mu       sync.Mutex
	browser  *rod.Browser
	launcher *launcher.Launcher
}

// NewRodOpener creates a RodOpener. The browser starts on the first Open.
func NewRodOpener(opts RodOptions) *RodOpener {
	return &RodOpener{opts: opts}
}

func (o *RodOpener) Name() string { return "rod" }

// connect starts or attaches to the shared browser. The browser outlives
// any single Open call, so it is not bound to the caller's context.
func (o *RodOpener) connect() (*rod.Browser, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.browser != nil {
		return o.browser, nil
	}

	u := o.opts.ControlURL
	if u == "" {
		l := launcher.New().
			Headless(o.opts.Headless).
			Set("disable-blink-features", "AutomationControlled").
			Set("disable-dev-shm-usage").
			Set("no-first-run").
			Set("no-default-browser-check").
			NoSandbox(os.Geteuid() == 0)
		if o.opts.Bin != "" {
			l = l.Bin(o.opts.Bin)
		}
		launched, err := l.Launch()
		if err != nil {
			return nil, eris.Wrap(err, "stealth: launch browser")
		}
		o.launcher = l
		u = launched
	}

	b := rod.New().ControlURL(u)
	if err := b.Connect(); err != nil {
		return nil, eris.Wrap(err, "stealth: connect browser")
	}
	zap.L().Debug("stealth: browser connected", zap.Bool("launched", o.launcher != nil))
	o.browser = b
	return b, nil
}

// Open creates an incognito context and a page with the profile applied.
func (o *RodOpener) Open(ctx context.Context) (Session, error) {
	b, err := o.connect()
	if err != nil {
		return nil, err
	}

	incognito, err := b.Incognito()
	if err != nil {
		return nil, eris.Wrap(err, "stealth: incognito context")
	}

	s := &rodSession{browser: incognito, profile: NewProfile(o.opts.Profile), done: make(chan struct{})}
	if err := s.init(); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// Close shuts the shared browser down. Sessions must be closed first.
func (o *RodOpener) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	var err error
	if o.browser != nil {
		err = o.browser.Close()
		o.browser = nil
	}
	if o.launcher != nil {
		o.launcher.Cleanup()
		o.launcher = nil
	}
	if err != nil {
		return eris.Wrap(err, "stealth: close browser")
	}
	return nil
}

type rodSession struct {
	browser   *rod.Browser
	page      *rod.Page
	profile   Profile
	done      chan struct{}
	closeOnce sync.Once
}

func (s *rodSession) init() error {
	page, err := s.browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return eris.Wrap(err, "stealth: create page")
	}
	s.page = page

	if _, err := page.EvalOnNewDocument(OverrideScript(s.profile)); err != nil {
		return eris.Wrap(err, "stealth: inject overrides")
	}
	if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
		UserAgent:      s.profile.UserAgent,
		AcceptLanguage: s.profile.AcceptLanguage,
		Platform:       s.profile.Platform,
	}); err != nil {
		return eris.Wrap(err, "stealth: user agent override")
	}
	if _, err := page.SetExtraHeaders([]string{"Accept-Language", s.profile.AcceptLanguage}); err != nil {
		return eris.Wrap(err, "stealth: extra headers")
	}
	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             s.profile.ViewportWidth,
		Height:            s.profile.ViewportHeight,
		DeviceScaleFactor: 1,
	}); err != nil {
		return eris.Wrap(err, "stealth: viewport")
	}
	return nil
}

func (s *rodSession) Profile() Profile { return s.profile }

func (s *rodSession) closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (s *rodSession) Navigate(ctx context.Context, url string, timeout time.Duration) (Document, error) {
	if s.closed() {
		return nil, ErrClosed
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	p := s.page.Context(ctx)
	if err := p.Navigate(url); err != nil {
		return nil, s.navErr(ctx, url, err)
	}
	if err := p.WaitLoad(); err != nil {
		return nil, s.navErr(ctx, url, err)
	}

	html, err := p.HTML()
	if err != nil {
		return nil, s.navErr(ctx, url, err)
	}
	if bt := Detect(0, nil, []byte(html)); bt != BlockNone {
		return nil, eris.Wrapf(ErrBlocked, "stealth: %s (%s)", url, bt)
	}

	final := url
	if info, err := p.Info(); err == nil && info.URL != "" {
		final = info.URL
	}
	return &rodDocument{page: s.page, url: final}, nil
}

func (s *rodSession) navErr(ctx context.Context, url string, err error) error {
	if s.closed() {
		return ErrClosed
	}
	if ctx.Err() != nil {
		return eris.Wrapf(ctx.Err(), "stealth: navigate %s", url)
	}
	return eris.Wrapf(err, "stealth: navigate %s", url)
}

func (s *rodSession) Wait(ctx context.Context, min, max time.Duration) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-s.done:
			cancel()
		case <-ctx.Done():
		}
	}()
	return Delay(ctx, min, max)
}

// Close disposes the incognito context, which aborts any in-flight
// navigation on its page. Only the first call can return an error.
func (s *rodSession) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		if cerr := s.browser.Close(); cerr != nil {
			err = eris.Wrap(cerr, "stealth: close context")
		}
	})
	return err
}

type rodDocument struct {
	page *rod.Page
	url  string
}

func (d *rodDocument) URL() string { return d.url }

func (d *rodDocument) Raw(ctx context.Context) (string, error) {
	html, err := d.page.Context(ctx).HTML()
	if err != nil {
		return "", eris.Wrap(err, "stealth: read html")
	}
	return html, nil
}

func (d *rodDocument) Snapshot(ctx context.Context) (*goquery.Document, error) {
	html, err := d.Raw(ctx)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, eris.Wrap(err, "stealth: parse document")
	}
	return doc, nil
}

func (d *rodDocument) Click(ctx context.Context, selector string, timeout time.Duration) error {
	p := d.page.Context(ctx).Timeout(timeout)
	defer p.CancelTimeout()

	el, err := p.Element(selector)
	if err != nil {
		return eris.Wrapf(err, "stealth: find %s", selector)
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return eris.Wrapf(err, "stealth: click %s", selector)
	}
	return nil
}

package stealth

import (
	"context"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
)

var (
	// ErrClosed is returned by Navigate on a closed session.
	ErrClosed = eris.New("stealth: session closed")
	// ErrNotInteractive is returned by Click on drivers without a live DOM.
	ErrNotInteractive = eris.New("stealth: document is not interactive")
	// ErrBlocked is returned when the page is an anti-bot challenge.
	ErrBlocked = eris.New("stealth: blocked by bot protection")
)

// Opener creates sessions. Implementations must be safe for concurrent use;
// every source opens its own session.
type Opener interface {
	Open(ctx context.Context) (Session, error)
	Name() string
}

// Session is one isolated browsing context. Close is idempotent and may be
// called from another goroutine to abort an in-flight navigation.
type Session interface {
	Navigate(ctx context.Context, url string, timeout time.Duration) (Document, error)
	Wait(ctx context.Context, min, max time.Duration) error
	Profile() Profile
	Close() error
}

// Document is a loaded page.
type Document interface {
	URL() string
	// Raw returns the current markup.
	Raw(ctx context.Context) (string, error)
	// Snapshot parses the current markup.
	Snapshot(ctx context.Context) (*goquery.Document, error)
	// Click clicks the first element matching selector within timeout.
	Click(ctx context.Context, selector string, timeout time.Duration) error
}

// Drivers understood by NewOpener.
const (
	DriverRod  = "rod"
	DriverHTTP = "http"
)

// Options selects and configures a driver.
type Options struct {
	Driver     string
	Profile    ProfileOptions
	ControlURL string
	Bin        string
	Headless   bool
}

// NewOpener returns the Opener for opts.Driver.
func NewOpener(opts Options) (Opener, error) {
	switch opts.Driver {
	case DriverRod:
		return NewRodOpener(RodOptions{
			Profile:    opts.Profile,
			ControlURL: opts.ControlURL,
			Bin:        opts.Bin,
			Headless:   opts.Headless,
		}), nil
	case DriverHTTP, "":
		return NewHTTPOpener(HTTPOptions{Profile: opts.Profile}), nil
	default:
		return nil, eris.Errorf("stealth: unknown driver %q", opts.Driver)
	}
}

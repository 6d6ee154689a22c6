package stealth

import (
	"context"
	"io"
	"mime"
	"net"
	"net/http"
	"net/http/cookiejar"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/htmlindex"
)

const defaultMaxBody = 4 << 20

// HTTPOptions configures the plain HTTP driver.
type HTTPOptions struct {
	Profile      ProfileOptions
	Transport    http.RoundTripper
	MaxBodyBytes int64
}

// HTTPOpener opens cookie-isolated HTTP sessions. It cannot run page
// scripts, so it only suits sources that render their quote server-side.
type HTTPOpener struct {
	opts      HTTPOptions
	transport http.RoundTripper
}

// NewHTTPOpener creates an HTTPOpener.
func NewHTTPOpener(opts HTTPOptions) *HTTPOpener {
	tr := opts.Transport
	if tr == nil {
		tr = &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout: 10 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout: 10 * time.Second,
			ForceAttemptHTTP2:   true,
			MaxIdleConnsPerHost: 2,
		}
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaultMaxBody
	}
	return &HTTPOpener{opts: opts, transport: tr}
}

func (o *HTTPOpener) Name() string { return "http" }

// Open starts a session with a fresh cookie jar and a freshly drawn profile.
func (o *HTTPOpener) Open(ctx context.Context) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "stealth: open http session")
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, eris.Wrap(err, "stealth: cookie jar")
	}
	return &httpSession{
		client:  &http.Client{Jar: jar, Transport: o.transport},
		profile: NewProfile(o.opts.Profile),
		maxBody: o.opts.MaxBodyBytes,
		done:    make(chan struct{}),
	}, nil
}

type httpSession struct {
	client    *http.Client
	profile   Profile
	maxBody   int64
	done      chan struct{}
	closeOnce sync.Once
}

func (s *httpSession) Profile() Profile { return s.profile }

func (s *httpSession) closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// bind returns a context cancelled when parent ends, timeout elapses or the
// session is closed.
func (s *httpSession) bind(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	var ctx context.Context
	var cancel context.CancelFunc
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(parent, timeout)
	} else {
		ctx, cancel = context.WithCancel(parent)
	}
	go func() {
		select {
		case <-s.done:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

func (s *httpSession) Navigate(ctx context.Context, url string, timeout time.Duration) (Document, error) {
	if s.closed() {
		return nil, ErrClosed
	}
	navCtx, cancel := s.bind(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(navCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, eris.Wrap(err, "stealth: create request")
	}
	for k, v := range s.profile.Headers() {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		if s.closed() {
			return nil, ErrClosed
		}
		return nil, eris.Wrapf(err, "stealth: fetch %s", url)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, s.maxBody))
	if err != nil {
		return nil, eris.Wrap(err, "stealth: read body")
	}

	if blocked, bt := DetectBlock(resp, body); blocked {
		zap.L().Debug("stealth: block detected",
			zap.String("url", url),
			zap.String("block_type", string(bt)),
			zap.Int("status", resp.StatusCode),
		)
		return nil, eris.Wrapf(ErrBlocked, "stealth: %s (%s)", url, bt)
	}
	if resp.StatusCode >= 400 {
		return nil, eris.Errorf("stealth: %s status %d", url, resp.StatusCode)
	}

	final := url
	if resp.Request != nil && resp.Request.URL != nil {
		final = resp.Request.URL.String()
	}
	return &staticDocument{url: final, raw: decodeBody(resp.Header.Get("Content-Type"), body)}, nil
}

func (s *httpSession) Wait(ctx context.Context, min, max time.Duration) error {
	waitCtx, cancel := s.bind(ctx, 0)
	defer cancel()
	return Delay(waitCtx, min, max)
}

func (s *httpSession) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		s.client.CloseIdleConnections()
	})
	return nil
}

var metaCharsetRe = regexp.MustCompile(`(?i)<meta[^>]+charset=["']?([a-zA-Z0-9_\-]+)`)

// decodeBody converts body to UTF-8 using the Content-Type charset, then a
// <meta charset> declaration. Unknown charsets are passed through.
func decodeBody(contentType string, body []byte) string {
	label := ""
	if _, params, err := mime.ParseMediaType(contentType); err == nil {
		label = params["charset"]
	}
	if label == "" {
		head := body
		if len(head) > 1024 {
			head = head[:1024]
		}
		if m := metaCharsetRe.FindSubmatch(head); m != nil {
			label = string(m[1])
		}
	}
	label = strings.ToLower(strings.TrimSpace(label))
	if label == "" || label == "utf-8" || label == "utf8" {
		return string(body)
	}
	enc, err := htmlindex.Get(label)
	if err != nil {
		return string(body)
	}
	out, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		return string(body)
	}
	return string(out)
}

// staticDocument is a fetched page with no live DOM.
type staticDocument struct {
	url string
	raw string
}

// NewStaticDocument wraps already-fetched markup as a Document.
func NewStaticDocument(url, raw string) Document {
	return &staticDocument{url: url, raw: raw}
}

func (d *staticDocument) URL() string { return d.url }

func (d *staticDocument) Raw(_ context.Context) (string, error) { return d.raw, nil }

func (d *staticDocument) Snapshot(_ context.Context) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(d.raw))
	if err != nil {
		return nil, eris.Wrap(err, "stealth: parse document")
	}
	return doc, nil
}

func (d *staticDocument) Click(_ context.Context, _ string, _ time.Duration) error {
	return ErrNotInteractive
}

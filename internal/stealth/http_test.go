package stealth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPSession_SendsProfileHeaders(t *testing.T) {
	t.Parallel()

	var gotUA, gotLang string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotLang = r.Header.Get("Accept-Language")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(`<html><body><span id="q">18.42</span></body></html>`))
	}))
	defer srv.Close()

	opener := NewHTTPOpener(HTTPOptions{Profile: ProfileOptions{AcceptLanguage: "en-GB,en;q=0.8"}})
	sess, err := opener.Open(context.Background())
	require.NoError(t, err)
	defer func() { _ = sess.Close() }()

	doc, err := sess.Navigate(context.Background(), srv.URL, 5*time.Second)
	require.NoError(t, err)

	assert.Equal(t, sess.Profile().UserAgent, gotUA)
	assert.Contains(t, DefaultUserAgents, gotUA)
	assert.Equal(t, "en-GB,en;q=0.8", gotLang)

	snap, err := doc.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "18.42", snap.Find("#q").Text())
	assert.ErrorIs(t, doc.Click(context.Background(), "#q", time.Second), ErrNotInteractive)
}

func TestHTTPSession_CookiesIsolatedPerSession(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := r.Cookie("consent"); err == nil {
			_, _ = w.Write([]byte("<html><body>returning</body></html>"))
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "consent", Value: "yes", Path: "/"})
		_, _ = w.Write([]byte("<html><body>first</body></html>"))
	}))
	defer srv.Close()

	opener := NewHTTPOpener(HTTPOptions{})
	ctx := context.Background()

	a, err := opener.Open(ctx)
	require.NoError(t, err)
	defer func() { _ = a.Close() }()

	_, err = a.Navigate(ctx, srv.URL, time.Second)
	require.NoError(t, err)
	doc, err := a.Navigate(ctx, srv.URL, time.Second)
	require.NoError(t, err)
	raw, _ := doc.Raw(ctx)
	assert.Contains(t, raw, "returning")

	b, err := opener.Open(ctx)
	require.NoError(t, err)
	defer func() { _ = b.Close() }()

	doc, err = b.Navigate(ctx, srv.URL, time.Second)
	require.NoError(t, err)
	raw, _ = doc.Raw(ctx)
	assert.Contains(t, raw, "first")
}

func TestHTTPSession_DecodesCharset(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=windows-1252")
		// "Indice de volatilit\xe9" in windows-1252.
		_, _ = w.Write([]byte("<html><body><h1>Indice de volatilit\xe9</h1></body></html>"))
	}))
	defer srv.Close()

	sess, err := NewHTTPOpener(HTTPOptions{}).Open(context.Background())
	require.NoError(t, err)
	defer func() { _ = sess.Close() }()

	doc, err := sess.Navigate(context.Background(), srv.URL, time.Second)
	require.NoError(t, err)
	snap, err := doc.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Indice de volatilité", snap.Find("h1").Text())
}

func TestDecodeBody_MetaCharset(t *testing.T) {
	t.Parallel()

	body := []byte("<html><head><meta charset=\"iso-8859-1\"></head><body>caf\xe9</body></html>")
	assert.Contains(t, decodeBody("text/html", body), "café")
	assert.Equal(t, "plain", decodeBody("text/html; charset=unknown-x", []byte("plain")))
}

func TestHTTPSession_BlockedIsError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Cf-Ray", "8a1b")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte("<html>Attention Required</html>"))
	}))
	defer srv.Close()

	sess, err := NewHTTPOpener(HTTPOptions{}).Open(context.Background())
	require.NoError(t, err)
	defer func() { _ = sess.Close() }()

	_, err = sess.Navigate(context.Background(), srv.URL, time.Second)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBlocked)
}

func TestHTTPSession_StatusError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	sess, err := NewHTTPOpener(HTTPOptions{}).Open(context.Background())
	require.NoError(t, err)
	defer func() { _ = sess.Close() }()

	_, err = sess.Navigate(context.Background(), srv.URL, time.Second)
	assert.Error(t, err)
}

func TestHTTPSession_Timeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	sess, err := NewHTTPOpener(HTTPOptions{}).Open(context.Background())
	require.NoError(t, err)
	defer func() { _ = sess.Close() }()

	start := time.Now()
	_, err = sess.Navigate(context.Background(), srv.URL, 100*time.Millisecond)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestHTTPSession_CloseAbortsNavigation(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	sess, err := NewHTTPOpener(HTTPOptions{}).Open(context.Background())
	require.NoError(t, err)

	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = sess.Close()
	}()

	_, err = sess.Navigate(context.Background(), srv.URL, 10*time.Second)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestHTTPSession_CloseIdempotent(t *testing.T) {
	t.Parallel()

	sess, err := NewHTTPOpener(HTTPOptions{}).Open(context.Background())
	require.NoError(t, err)

	assert.NoError(t, sess.Close())
	assert.NoError(t, sess.Close())

	_, err = sess.Navigate(context.Background(), "http://127.0.0.1:1", time.Second)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestNewOpener(t *testing.T) {
	t.Parallel()

	o, err := NewOpener(Options{Driver: DriverHTTP})
	require.NoError(t, err)
	assert.Equal(t, "http", o.Name())

	o, err = NewOpener(Options{Driver: DriverRod, Headless: true})
	require.NoError(t, err)
	assert.Equal(t, "rod", o.Name())

	_, err = NewOpener(Options{Driver: "selenium"})
	assert.Error(t, err)
}

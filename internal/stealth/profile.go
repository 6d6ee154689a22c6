// Package stealth opens isolated browsing sessions that look like an ordinary
// desktop browser: realistic user agent, Accept-Language, navigator overrides
// and human-paced delays between actions.
package stealth

import (
	"math/rand/v2"
	"strings"
)

// DefaultUserAgents is the pool drawn from when a profile has no fixed agent.
var DefaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/128.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/128.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/127.0.0.0 Safari/537.36 Edg/127.0.0.0",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/128.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 14_6) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.6 Safari/605.1.15",
}

// Profile is the browser identity a session presents.
type Profile struct {
	UserAgent      string
	AcceptLanguage string
	Languages      []string
	Platform       string
	PluginCount    int
	ViewportWidth  int
	ViewportHeight int
}

// ProfileOptions configures NewProfile. Zero fields fall back to defaults.
type ProfileOptions struct {
	UserAgents     []string
	AcceptLanguage string
}

// NewProfile draws a user agent from the pool and derives the matching
// platform and language signals.
func NewProfile(opts ProfileOptions) Profile {
	pool := opts.UserAgents
	if len(pool) == 0 {
		pool = DefaultUserAgents
	}
	ua := pool[rand.IntN(len(pool))]

	al := opts.AcceptLanguage
	if al == "" {
		al = "en-US,en;q=0.9"
	}

	viewports := [][2]int{{1920, 1080}, {1536, 864}, {1440, 900}, {1366, 768}}
	vp := viewports[rand.IntN(len(viewports))]

	return Profile{
		UserAgent:      ua,
		AcceptLanguage: al,
		Languages:      languagesFromHeader(al),
		Platform:       platformFor(ua),
		PluginCount:    5,
		ViewportWidth:  vp[0],
		ViewportHeight: vp[1],
	}
}

// Headers returns the request headers a real browser would send for a
// top-level navigation.
func (p Profile) Headers() map[string]string {
	return map[string]string{
		"User-Agent":                p.UserAgent,
		"Accept-Language":           p.AcceptLanguage,
		"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
		"Upgrade-Insecure-Requests": "1",
		"Sec-Fetch-Dest":            "document",
		"Sec-Fetch-Mode":            "navigate",
		"Sec-Fetch-Site":            "none",
		"Sec-Fetch-User":            "?1",
	}
}

// languagesFromHeader turns "en-US,en;q=0.9" into ["en-US", "en"].
func languagesFromHeader(h string) []string {
	var out []string
	for _, part := range strings.Split(h, ",") {
		tag, _, _ := strings.Cut(strings.TrimSpace(part), ";")
		if tag != "" && tag != "*" {
			out = append(out, tag)
		}
	}
	if len(out) == 0 {
		return []string{"en-US", "en"}
	}
	return out
}

func platformFor(ua string) string {
	switch {
	case strings.Contains(ua, "Windows"):
		return "Win32"
	case strings.Contains(ua, "Macintosh"):
		return "MacIntel"
	default:
		return "Linux x86_64"
	}
}

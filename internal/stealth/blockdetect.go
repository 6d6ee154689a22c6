package stealth

import (
	"net/http"
	"strings"
)

// BlockType describes the kind of anti-bot block detected.
type BlockType string

const (
	BlockNone        BlockType = ""
	BlockCloudflare  BlockType = "cloudflare"
	BlockCaptcha     BlockType = "captcha"
	BlockJSShell     BlockType = "js_shell"
	BlockRateLimited BlockType = "rate_limited"
	BlockBotManager  BlockType = "bot_manager"
)

// Challenge pages are small. Full quote pages routinely embed recaptcha
// scripts for login widgets, so body markers only count below this size.
const challengeBodyLimit = 64 * 1024

// DetectBlock checks an HTTP response for signs of anti-bot protection.
func DetectBlock(resp *http.Response, body []byte) (bool, BlockType) {
	if resp == nil {
		return false, BlockNone
	}
	bt := Detect(resp.StatusCode, resp.Header, body)
	return bt != BlockNone, bt
}

// Detect classifies a page from its status, headers and body. A zero status
// and nil header are accepted for drivers that only see rendered markup.
func Detect(status int, header http.Header, body []byte) BlockType {
	if status == http.StatusTooManyRequests {
		return BlockRateLimited
	}

	// Cloudflare: 403/503 with cf-* headers.
	if header != nil && (status == http.StatusForbidden || status == http.StatusServiceUnavailable) {
		if header.Get("cf-ray") != "" || header.Get("cf-cache-status") != "" ||
			strings.EqualFold(header.Get("server"), "cloudflare") {
			return BlockCloudflare
		}
		if header.Get("x-datadome") != "" || header.Get("x-px-blocked") != "" {
			return BlockBotManager
		}
	}

	if len(body) > challengeBodyLimit {
		return BlockNone
	}
	lower := strings.ToLower(string(body))

	if strings.Contains(lower, "checking your browser") ||
		strings.Contains(lower, "cf-browser-verification") ||
		strings.Contains(lower, "cf-challenge") ||
		strings.Contains(lower, "cloudflare") && strings.Contains(lower, "challenge") {
		return BlockCloudflare
	}

	if strings.Contains(lower, "px-captcha") ||
		strings.Contains(lower, "captcha-delivery.com") ||
		strings.Contains(lower, "access denied") && strings.Contains(lower, "reference #") {
		return BlockBotManager
	}

	if strings.Contains(lower, "captcha") {
		return BlockCaptcha
	}

	// JS-only shell: very small body with noscript or meta refresh.
	if len(body) < 2000 {
		if strings.Contains(lower, "<noscript") && strings.Contains(lower, "javascript") {
			return BlockJSShell
		}
		if strings.Contains(lower, `meta http-equiv="refresh"`) {
			return BlockJSShell
		}
	}

	return BlockNone
}

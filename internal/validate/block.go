package validate

import (
	"strings"

	"github.com/sells-group/tender-intel/internal/fetcher"
)

// BlockType describes the kind of anti-bot wall detected.
type BlockType string

const (
	BlockNone       BlockType = ""
	BlockCloudflare BlockType = "cloudflare"
	BlockCaptcha    BlockType = "captcha"
	BlockJSShell    BlockType = "js_shell"
)

const challengePageMax = 32 << 10

// DetectBlock checks a response for signs of anti-bot protection or a page
// that only renders with JavaScript.
func DetectBlock(resp *fetcher.Response) BlockType {
	if resp == nil {
		return BlockNone
	}

	if resp.StatusCode == 403 || resp.StatusCode == 503 {
		if resp.Header.Get("cf-ray") != "" || resp.Header.Get("cf-cache-status") != "" {
			return BlockCloudflare
		}
		if strings.EqualFold(resp.Header.Get("server"), "cloudflare") {
			return BlockCloudflare
		}
	}

	lower := strings.ToLower(string(resp.Body))

	if strings.Contains(lower, "checking your browser") ||
		strings.Contains(lower, "cf-browser-verification") ||
		strings.Contains(lower, "cloudflare") && strings.Contains(lower, "challenge") {
		return BlockCloudflare
	}

	// Large pages that embed a captcha widget on a form are not walls.
	if len(resp.Body) < challengePageMax && strings.Contains(lower, "captcha") {
		return BlockCaptcha
	}

	// Small HTML shell that needs a browser to render anything.
	if len(resp.Body) < 2000 {
		if strings.Contains(lower, "<noscript") && strings.Contains(lower, "javascript") {
			return BlockJSShell
		}
		if strings.Contains(lower, `http-equiv="refresh"`) {
			return BlockJSShell
		}
	}
	return BlockNone
}

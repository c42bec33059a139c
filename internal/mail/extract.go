package mail

import (
	"net/url"
	"regexp"
	"strings"
)

var (
	hrefRe = regexp.MustCompile(`(?i)href=["']([^"']+)["']`)
	urlRe  = regexp.MustCompile(`https?://[^\s<>"']+`)

	staticAssetExts = []string{".png", ".jpg", ".gif", ".css", ".js"}
)

// ExtractConfirmationLink pulls the account confirmation URL out of a
// verification mail. Links are taken from the html parts first, the
// plain text body as fallback, filtered by the verification-link rules,
// and ccUrl-wrapped button links are unwrapped once.
func ExtractConfirmationLink(detail MessageDetail) string {
	var urls []string
	for _, html := range detail.HTML {
		for _, m := range hrefRe.FindAllStringSubmatch(html, -1) {
			urls = append(urls, m[1])
		}
	}
	if len(urls) == 0 {
		urls = urlRe.FindAllString(detail.Text, -1)
	}
	if len(urls) == 0 {
		return ""
	}

	candidates := filter(urls, isVerificationLink)
	if len(candidates) == 0 {
		// Nothing matched the whitelist; fall back to any non-asset link.
		candidates = filter(urls, func(u string) bool {
			if !strings.HasPrefix(u, "http") {
				return false
			}
			lower := strings.ToLower(u)
			for _, ext := range staticAssetExts {
				if strings.Contains(lower, ext) {
					return false
				}
			}
			return true
		})
	}
	if len(candidates) == 0 {
		return ""
	}

	link := candidates[0]
	if cc := extractCCURL(link); cc != "" && strings.HasPrefix(cc, "http") {
		return cc
	}
	return link
}

// extractCCURL unwraps mail button links of the form
// https://host?tappAction=cc&ccUrl=<urlencoded target>, returning the
// decoded target or "".
func extractCCURL(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	q := parsed.Query()
	cc := q.Get("ccUrl")
	if cc == "" {
		cc = q.Get("ccurl")
	}
	if cc == "" {
		return ""
	}
	decoded, err := url.QueryUnescape(cc)
	if err != nil {
		return cc
	}
	return decoded
}

// isVerificationLink applies the confirmation-link whitelist: a
// ccUrl-wrapped button link, a chayns.cc/login1 short link, or a
// code-carrying chayns login link.
func isVerificationLink(u string) bool {
	lower := strings.ToLower(u)
	if strings.Contains(lower, "tappaction=cc") && strings.Contains(lower, "ccurl=") {
		return true
	}
	if strings.Contains(lower, "chayns.cc/login1") {
		return true
	}
	if strings.Contains(lower, "code=") &&
		(strings.Contains(lower, "chayns") || strings.Contains(lower, "login")) {
		return true
	}
	return false
}

func filter(urls []string, keep func(string) bool) []string {
	var out []string
	for _, u := range urls {
		if keep(u) {
			out = append(out, u)
		}
	}
	return out
}

package pipeline

import (
	"net/url"
	"regexp"
	"strings"
)

var linkPattern = regexp.MustCompile(`https?://[^\s]+`)

// extractURL returns the first http(s) link in text with a host, or "".
func extractURL(text string) string {
	raw := linkPattern.FindString(strings.TrimSpace(text))
	if raw == "" {
		return ""
	}
	raw = strings.TrimRight(raw, ".,;:!?)]}>\"'")
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || !strings.Contains(u.Hostname(), ".") {
		return ""
	}
	return raw
}

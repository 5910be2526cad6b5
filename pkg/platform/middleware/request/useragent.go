package request

import (
	"strings"

	"github.com/mssola/useragent"
)

const unknownClient = "Unknown Device"

// ParseUserAgent renders a User-Agent header as "Browser on OS" for access
// logs.
func ParseUserAgent(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return unknownClient
	}
	ua := useragent.New(header)
	browser, _ := ua.Browser()
	if browser == "" {
		browser = "Unknown Browser"
	}
	platform := ua.OS()
	if platform == "" {
		platform = ua.Platform()
	}
	if platform == "" {
		platform = "Unknown OS"
	}
	return strings.Join(strings.Fields(browser+" on "+platform), " ")
}

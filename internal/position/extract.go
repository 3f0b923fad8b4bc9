// Package position locates a tracked domain inside an ordered result list.
package position

import (
	"net/url"
	"strings"

	"github.com/JakeFAU/serp-rank-tracker/internal/tracker"
)

// Match is the first result belonging to the tracked domain.
type Match struct {
	Rank int
	URL  string
}

// Extract scans items in order and returns the first one whose host equals domain or
// is a subdomain of it. Rank is the 1-based index within items.
func Extract(items []tracker.ResultItem, domain string) (Match, bool) {
	target := NormalizeHost(domain)
	if target == "" {
		return Match{}, false
	}
	for i, item := range items {
		if HostMatches(NormalizeHost(item.URL), target) {
			return Match{Rank: i + 1, URL: item.URL}, true
		}
	}
	return Match{}, false
}

// HostMatches reports whether host is target or one of its subdomains.
func HostMatches(host, target string) bool {
	if host == "" || target == "" {
		return false
	}
	return host == target || strings.HasSuffix(host, "."+target)
}

// NormalizeHost reduces a URL or bare domain to a lowercase host without scheme,
// port, path or leading "www.".
func NormalizeHost(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + strings.TrimPrefix(raw, "//")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	host := strings.ToLower(strings.TrimSuffix(u.Hostname(), "."))
	return strings.TrimPrefix(host, "www.")
}

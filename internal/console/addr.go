package console

import (
	"fmt"
	"net/url"
	"strings"
)

// normalizeDomain validates a backend domain flag. An empty domain is kept
// empty so the dispatcher falls back to its default.
func normalizeDomain(domain string) (string, error) {
	domain = strings.TrimSpace(domain)
	if domain == "" {
		return "", nil
	}
	u, err := url.Parse(domain)
	if err != nil {
		return "", fmt.Errorf("invalid domain %q: %w", domain, err)
	}
	switch u.Scheme {
	case "http", "https":
	default:
		return "", fmt.Errorf("domain %q must use http or https, got scheme %q", domain, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("domain %q has no host", domain)
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return "", fmt.Errorf("domain %q must not carry a query or fragment", domain)
	}
	return domain, nil
}

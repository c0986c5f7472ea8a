package botframework

import (
	"net/url"
	"strings"

	"flowbridge/pkg/config"
)

// serviceHosts decides which serviceUrl hosts may receive the connector token.
type serviceHosts struct {
	exact    map[string]struct{}
	suffixes []string
}

func newServiceHosts(patterns []string) serviceHosts {
	if len(patterns) == 0 {
		patterns = config.DefaultTrustedServiceHosts
	}

	hosts := serviceHosts{exact: make(map[string]struct{}, len(patterns))}
	for _, pattern := range patterns {
		pattern = strings.ToLower(strings.TrimSpace(pattern))
		switch {
		case pattern == "":
		case strings.HasPrefix(pattern, "*."):
			hosts.suffixes = append(hosts.suffixes, pattern[1:])
		default:
			hosts.exact[pattern] = struct{}{}
		}
	}
	return hosts
}

// allows reports whether serviceURL is on a trusted host. Wildcard matches
// require https; exact hosts may also use http.
func (h serviceHosts) allows(serviceURL string) bool {
	parsed, err := url.Parse(strings.TrimSpace(serviceURL))
	if err != nil {
		return false
	}

	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		return false
	}
	if _, ok := h.exact[host]; ok {
		return parsed.Scheme == "https" || parsed.Scheme == "http"
	}
	if parsed.Scheme != "https" {
		return false
	}
	for _, suffix := range h.suffixes {
		if strings.HasSuffix(host, suffix) {
			return true
		}
	}
	return false
}

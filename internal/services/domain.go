package services

import "strings"

var domainPrefixes = []string{"https://", "http://", "www."}

// NormalizeDomain reduces a URL or host to the canonical website key: lowercased with
// scheme, leading "www.", path and port removed. Prefixes are stripped repeatedly so the
// result is a fixed point: NormalizeDomain(NormalizeDomain(x)) == NormalizeDomain(x).
func NormalizeDomain(raw string) string {
	domain := strings.ToLower(strings.TrimSpace(raw))

	for {
		stripped := domain
		for _, prefix := range domainPrefixes {
			stripped = strings.TrimSpace(strings.TrimPrefix(stripped, prefix))
		}
		if stripped == domain {
			break
		}
		domain = stripped
	}

	if idx := strings.IndexByte(domain, '/'); idx != -1 {
		domain = domain[:idx]
	}
	if idx := strings.IndexByte(domain, ':'); idx != -1 {
		domain = domain[:idx]
	}
	return strings.TrimSpace(domain)
}

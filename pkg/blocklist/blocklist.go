// Package blocklist turns free-text blocklist input into a validated set
// of normalized domains and answers host-membership queries against it.
//
// Entries are domain-shaped only (label(.label)+); anything that smells
// like a script injection, a loopback address, or a private-range host is
// rejected. Matching is suffix-based: a listed domain blocks itself and
// every subdomain, but never a lookalike suffix such as notexample.com.
package blocklist

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/vanderheijden86/attnguard/pkg/model"
)

var (
	htmlTagPattern      = regexp.MustCompile(`<[^>]*>`)
	protoPattern        = regexp.MustCompile(`(?i)(javascript|data|vbscript):`)
	eventHandlerPattern = regexp.MustCompile(`(?i)on\w+\s*=`)
	controlPattern      = regexp.MustCompile(`[\x00-\x1f\x7f-\x9f]`)
	dangerousPattern    = regexp.MustCompile(`[<>'"&]`)
	whitespacePattern   = regexp.MustCompile(`\s+`)
	splitPattern        = regexp.MustCompile(`[\n,]+`)

	domainPattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9\-]{0,61}[a-z0-9])?(\.[a-z0-9]([a-z0-9\-]{0,61}[a-z0-9])?)*$`)
)

// forbiddenHostParts mark loopback and private-range hosts that are never
// valid blocklist entries and never matched as page hosts.
var forbiddenHostParts = []string{
	"localhost",
	"127.0.0.1",
	"0.0.0.0",
	"192.168.",
	"10.",
	"172.16.", "172.17.", "172.18.", "172.19.",
	"172.20.", "172.21.", "172.22.", "172.23.",
	"172.24.", "172.25.", "172.26.", "172.27.",
	"172.28.", "172.29.", "172.30.", "172.31.",
}

// Sanitize strips markup, script protocols, event handlers, control
// characters, and whitespace from a single raw entry, lowercases it, and
// truncates to the maximum domain length. The result may still be
// invalid; run it through Valid.
func Sanitize(raw string) string {
	s := htmlTagPattern.ReplaceAllString(raw, "")
	s = protoPattern.ReplaceAllString(s, "")
	s = eventHandlerPattern.ReplaceAllString(s, "")
	s = controlPattern.ReplaceAllString(s, "")
	s = dangerousPattern.ReplaceAllString(s, "")
	s = whitespacePattern.ReplaceAllString(s, "")
	s = strings.ToLower(s)
	if len(s) > model.MaxDomainLength {
		s = s[:model.MaxDomainLength]
	}
	return s
}

// Normalize reduces an entry to its bare domain: scheme, www prefix, and
// path are dropped, the rest lowercased. Idempotent:
// Normalize(Normalize(u)) == Normalize(u).
func Normalize(raw string) string {
	s := strings.TrimSpace(strings.ToLower(raw))
	// Trim to a fixed point so stacked prefixes ("www.www.x") reduce fully.
	for {
		prev := s
		s = strings.TrimPrefix(s, "https://")
		s = strings.TrimPrefix(s, "http://")
		s = strings.TrimPrefix(s, "www.")
		if s == prev {
			break
		}
	}
	if i := strings.IndexByte(s, '/'); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}
	return s
}

// Valid reports whether a sanitized entry is a blockable public domain:
// domain-shaped, carrying at least one dot, within length bounds, and not
// a loopback or private-range host.
func Valid(entry string) bool {
	if len(entry) < 3 || len(entry) > model.MaxDomainLength {
		return false
	}
	domain := Normalize(entry)
	if !domainPattern.MatchString(domain) {
		return false
	}
	if !strings.Contains(domain, ".") {
		return false
	}
	return !forbiddenHost(domain)
}

func forbiddenHost(host string) bool {
	for _, part := range forbiddenHostParts {
		if strings.Contains(host, part) {
			return true
		}
	}
	return false
}

// Parse converts free-text input (one entry per line, or comma separated)
// into the validated, normalized, deduplicated blocklist, capped at the
// maximum entry count. Invalid entries are dropped silently; the caller
// can diff input count against output count for user feedback.
func Parse(text string) []string {
	parts := splitPattern.Split(text, -1)
	out := make([]string, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))
	for _, part := range parts {
		entry := Sanitize(strings.TrimSpace(part))
		if entry == "" || !Valid(entry) {
			continue
		}
		normalized := Normalize(entry)
		if _, dup := seen[normalized]; dup {
			continue
		}
		seen[normalized] = struct{}{}
		if len(out) < model.MaxBlockedURLs {
			out = append(out, normalized)
		}
	}
	return out
}

// HostMatches reports whether a page host is covered by any blocklist
// entry: an exact match or a subdomain of it. Entries are re-sanitized
// and re-validated before comparison so a corrupted store value can never
// widen the match.
func HostMatches(host string, entries []string) bool {
	host = strings.ToLower(strings.TrimSpace(host))
	if host == "" || forbiddenHost(host) {
		return false
	}
	for _, entry := range entries {
		clean := Sanitize(entry)
		if !Valid(clean) {
			continue
		}
		domain := Normalize(clean)
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return true
		}
	}
	return false
}

// URLMatches applies the page-eligibility rule before host matching:
// only http and https pages can be blocked. Anything unparsable is never
// matched.
func URLMatches(rawURL string, entries []string) bool {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return HostMatches(u.Hostname(), entries)
}

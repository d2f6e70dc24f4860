// Package urlparse extracts conversation references from pasted app URLs
// and runtime identifiers from runtime URLs.
package urlparse

import (
	"net/url"
	"strings"
)

// ConversationRef extracts a conversation reference from the input. It
// accepts a web app URL like
//
//	https://app.all-hands.dev/conversations/0a1b2c3d-...
//
// and returns the path segment after "conversations". Anything that isn't
// an http(s) URL is returned unchanged, so plain ids, prefixes, and
// position numbers pass through.
func ConversationRef(input string) string {
	trimmed := strings.TrimSpace(input)
	if !strings.HasPrefix(trimmed, "http://") && !strings.HasPrefix(trimmed, "https://") {
		return trimmed
	}

	parsed, err := url.Parse(trimmed)
	if err != nil {
		return trimmed
	}

	segments := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	for i, seg := range segments {
		if seg == "conversations" && i+1 < len(segments) && segments[i+1] != "" {
			return segments[i+1]
		}
	}
	return trimmed
}

// RuntimeID returns the first hostname label of a runtime URL, e.g.
// "abc123" for "https://abc123.prod-runtime.example.dev". Returns "" when
// the input isn't a URL with a hostname.
func RuntimeID(runtimeURL string) string {
	if runtimeURL == "" {
		return ""
	}
	parsed, err := url.Parse(runtimeURL)
	if err != nil {
		return ""
	}
	host := parsed.Hostname()
	if host == "" {
		return ""
	}
	if i := strings.IndexByte(host, '.'); i > 0 {
		return host[:i]
	}
	return host
}

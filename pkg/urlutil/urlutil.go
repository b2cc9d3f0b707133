// Package urlutil builds the client-facing chat URLs embedded in outbound
// messages.
package urlutil

import (
	"net/url"
	"strings"
)

// ChatURL composes the chat entry URL for a public identifier and token value.
// The shape is <base>/c/<publicID>?t=<token>; both path segments are already
// URL-safe by construction, the token is query-escaped anyway.
func ChatURL(baseURL, publicID, tokenValue string) string {
	base := strings.TrimRight(baseURL, "/")
	return base + "/c/" + publicID + "?t=" + url.QueryEscape(tokenValue)
}

// ParseChatURL extracts the public identifier and token value from a chat URL.
// It returns ok=false when the URL does not match the expected shape.
func ParseChatURL(raw string) (publicID, tokenValue string, ok bool) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", false
	}
	const prefix = "/c/"
	idx := strings.Index(u.Path, prefix)
	if idx < 0 {
		return "", "", false
	}
	publicID = u.Path[idx+len(prefix):]
	if publicID == "" || strings.Contains(publicID, "/") {
		return "", "", false
	}
	tokenValue = u.Query().Get("t")
	if tokenValue == "" {
		return "", "", false
	}
	return publicID, tokenValue, true
}

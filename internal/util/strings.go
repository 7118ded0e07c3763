package util

import "strings"

// SafeTruncate returns at most maxLen bytes of s without panicking.
// It is used to log a recognizable prefix of a token instead of the token itself.
// A negative maxLen yields an empty string.
//
//	SafeTruncate("1000.abcdef.token", 8) // "1000.abc"
func SafeTruncate(s string, maxLen int) string {
	if maxLen < 0 {
		return ""
	}
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}

// NormalizeURL removes trailing slashes so base URLs compare and join cleanly
func NormalizeURL(url string) string {
	return strings.TrimRight(url, "/")
}

// JoinURL appends path to base with exactly one slash between them
//
//	JoinURL("http://localhost:8000/", "integrations/callback/zoho")
//	// "http://localhost:8000/integrations/callback/zoho"
func JoinURL(base, path string) string {
	if path == "" {
		return NormalizeURL(base)
	}
	return NormalizeURL(base) + "/" + strings.TrimLeft(path, "/")
}

// Package link normalises and validates URLs typed into the link dialog.
package link

import (
	"net/url"
	"regexp"
	"strings"
)

var (
	hasScheme = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.\-]*://`)
	stripped  = strings.NewReplacer("\t", "", "\n", "", "\r", "")
)

// Normalize trims raw, rejects javascript: targets and prefixes https://
// when no scheme is present. It returns "" for unusable input.
func Normalize(raw string) string {
	u := strings.TrimSpace(stripped.Replace(raw))
	if u == "" {
		return ""
	}
	if strings.HasPrefix(strings.ToLower(u), "javascript:") {
		return ""
	}
	if !hasScheme.MatchString(u) {
		u = "https://" + u
	}
	return u
}

// IsValid reports whether u is an absolute http(s) URL with a host and no
// userinfo, so a normalised "mailto:a@b.c" is refused.
func IsValid(u string) bool {
	if u == "" {
		return false
	}
	parsed, err := url.Parse(u)
	if err != nil {
		return false
	}
	switch strings.ToLower(parsed.Scheme) {
	case "http", "https":
	default:
		return false
	}
	if parsed.User != nil {
		return false
	}
	return parsed.Host != "" && parsed.Hostname() != ""
}

package downloader

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var recognizedHosts = map[string]bool{
	"youtube.com":       true,
	"youtu.be":          true,
	"m.youtube.com":     true,
	"music.youtube.com": true,
}

// IsValidReference reports whether s looks like a playlist reference:
// optional http(s) scheme, optional "www.", a recognized host and a non-empty path.
func IsValidReference(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	raw := s
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return false
	}
	switch strings.ToLower(parsed.Scheme) {
	case "http", "https":
	default:
		return false
	}
	if parsed.User != nil || parsed.Port() != "" {
		return false
	}
	if !recognizedHosts[normalizeHostname(parsed)] {
		return false
	}
	if !strings.HasPrefix(parsed.Path, "/") {
		return false
	}
	return len(parsed.Path) > 1 || parsed.RawQuery != "" || parsed.Fragment != ""
}

// ValidateReference is IsValidReference with a categorized error for callers
// that need to abort and surface a message.
func ValidateReference(s string) error {
	if strings.TrimSpace(s) == "" {
		return wrapCategory(CategoryValidation, errors.New("please enter a YouTube playlist URL"))
	}
	if !IsValidReference(s) {
		return wrapCategory(CategoryValidation, fmt.Errorf("not a valid YouTube playlist URL: %q", s))
	}
	return nil
}

// ExtractPlaylistID returns the "list" query parameter of a youtube.com or
// youtu.be URL.
func ExtractPlaylistID(raw string) (string, bool) {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", false
	}
	host := strings.ToLower(parsed.Hostname())
	if !strings.Contains(host, "youtube.com") && !strings.Contains(host, "youtu.be") {
		return "", false
	}
	id := parsed.Query().Get("list")
	return id, id != ""
}

// WatchURL returns the canonical watch page for a video id.
func WatchURL(id string) string {
	if id == "" {
		return ""
	}
	return "https://www.youtube.com/watch?v=" + id
}

// normalizeHostname returns the normalized hostname from a URL:
// lowercase, with "www." prefix removed, and port stripped.
func normalizeHostname(parsed *url.URL) string {
	host := strings.ToLower(parsed.Hostname())
	return strings.TrimPrefix(host, "www.")
}

package web

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Backend produces playlist listings and media files for the HTTP handlers.
type Backend interface {
	Playlist(ctx context.Context, playlistURL string) (Playlist, error)
	Produce(ctx context.Context, req ProduceRequest, report func(percent float64)) (Product, error)
}

// Playlist is a backend's view of a remote playlist.
type Playlist struct {
	Title   string
	Author  string
	Entries []Entry
}

// Entry is one playlist item.
type Entry struct {
	ID        string
	Title     string
	Author    string
	Duration  time.Duration
	Thumbnail string // overrides the default still URL when set
}

// ProduceRequest asks the backend to create a file for one video in Dir.
type ProduceRequest struct {
	VideoID string
	Quality string
	Format  string
	Dir     string
}

// Product describes a produced file.
type Product struct {
	Filename     string
	Title        string
	Author       string
	Size         int64
	TagsEmbedded bool
	TagError     string
}

// thumbnailURL returns the medium-quality still for a video id.
func thumbnailURL(id string) string {
	return fmt.Sprintf("https://i.ytimg.com/vi/%s/mqdefault.jpg", id)
}

// formatDuration renders M:SS, or N/A for zero.
func formatDuration(d time.Duration) string {
	seconds := int64(d / time.Second)
	if seconds <= 0 {
		return "N/A"
	}
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}

var invalidNameChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1F]`)

func sanitize(name string) string {
	clean := strings.TrimSpace(invalidNameChars.ReplaceAllString(name, "-"))
	if clean == "" || clean == "." || clean == ".." {
		return "video"
	}
	return clean
}

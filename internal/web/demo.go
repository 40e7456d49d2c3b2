package web

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	demoCount     = 10
	demoAuthor    = "Demo Channel"
	demoThumbnail = "https://via.placeholder.com/320x180/000000/e50914?text=Demo+Video"
)

// DemoBackend serves canned playlist data and writes placeholder files. It
// lets the client run end to end without reaching YouTube.
type DemoBackend struct{}

func (DemoBackend) Playlist(ctx context.Context, _ string) (Playlist, error) {
	if err := ctx.Err(); err != nil {
		return Playlist{}, err
	}
	entries := make([]Entry, 0, demoCount)
	for i := 1; i <= demoCount; i++ {
		entries = append(entries, Entry{
			ID:        fmt.Sprintf("demo_id_%d", i),
			Title:     fmt.Sprintf("Demo Video %d - Sample Content", i),
			Author:    demoAuthor,
			Duration:  time.Duration(i)*time.Minute + time.Duration((i*13)%60)*time.Second,
			Thumbnail: demoThumbnail,
		})
	}
	return Playlist{Title: "Demo Playlist", Author: demoAuthor, Entries: entries}, nil
}

func (DemoBackend) Produce(ctx context.Context, req ProduceRequest, report func(float64)) (Product, error) {
	if err := ctx.Err(); err != nil {
		return Product{}, err
	}
	name := sanitize("demo_video_" + req.VideoID + ".mp4")
	body := []byte(fmt.Sprintf("demo placeholder for %s (%s, %s)\n", req.VideoID, req.Quality, req.Format))
	if err := os.WriteFile(filepath.Join(req.Dir, name), body, 0o644); err != nil {
		return Product{}, fmt.Errorf("writing placeholder: %w", err)
	}
	if report != nil {
		report(100)
	}
	return Product{Filename: name, Title: req.VideoID, Author: demoAuthor, Size: int64(len(body))}, nil
}

var _ Backend = DemoBackend{}

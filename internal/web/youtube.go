package web

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/kkdai/youtube/v2"
	"github.com/rs/zerolog"

	"github.com/lvcoi/ytdl-playlist/internal/downloader"
)

// youtubeClient is the part of *youtube.Client the backend uses.
type youtubeClient interface {
	GetPlaylistContext(ctx context.Context, url string) (*youtube.Playlist, error)
	GetVideoContext(ctx context.Context, url string) (*youtube.Video, error)
	GetStreamContext(ctx context.Context, video *youtube.Video, format *youtube.Format) (io.ReadCloser, int64, error)
}

// YouTubeBackend resolves playlists and downloads streams with kkdai/youtube.
type YouTubeBackend struct {
	client       youtubeClient
	log          zerolog.Logger
	extractAudio func(inputPath, outputPath string) error
	embedTags    func(path, title, artist string) error
}

// NewYouTubeBackend builds a backend on httpClient (nil uses http.DefaultClient).
func NewYouTubeBackend(httpClient *http.Client, log zerolog.Logger) *YouTubeBackend {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &YouTubeBackend{
		client:       &youtube.Client{HTTPClient: httpClient},
		log:          log,
		extractAudio: extractAudio,
		embedTags:    embedID3Tags,
	}
}

func (b *YouTubeBackend) Playlist(ctx context.Context, playlistURL string) (Playlist, error) {
	pl, err := b.client.GetPlaylistContext(ctx, playlistURL)
	if err != nil {
		return Playlist{}, err
	}
	out := Playlist{Title: pl.Title, Author: pl.Author, Entries: make([]Entry, 0, len(pl.Videos))}
	for _, v := range pl.Videos {
		if v == nil || v.ID == "" {
			continue
		}
		out.Entries = append(out.Entries, Entry{
			ID:       v.ID,
			Title:    v.Title,
			Author:   v.Author,
			Duration: v.Duration,
		})
	}
	return out, nil
}

func (b *YouTubeBackend) Produce(ctx context.Context, req ProduceRequest, report func(float64)) (Product, error) {
	video, err := b.client.GetVideoContext(ctx, downloader.WatchURL(req.VideoID))
	if err != nil {
		return Product{}, fmt.Errorf("fetching video info: %w", err)
	}
	audioOnly := req.Format == "mp3"
	format, err := selectFormat(video, req.Quality, audioOnly)
	if err != nil {
		return Product{}, err
	}

	title := sanitize(video.Title)
	ext := mimeToExt(format.MimeType)
	log := b.log.With().Str("video", req.VideoID).Int("itag", format.ItagNo).Logger()
	log.Debug().Str("mime", format.MimeType).Int("height", format.Height).Msg("format selected")

	stream, size, err := b.client.GetStreamContext(ctx, video, format)
	if err != nil {
		return Product{}, fmt.Errorf("opening stream: %w", err)
	}
	defer stream.Close()

	if !audioOnly {
		// One file per quality.
		name := fmt.Sprintf("%s [%s].%s", title, req.Quality, ext)
		written, err := writeAtomic(ctx, req.Dir, name, stream, size, report)
		if err != nil {
			return Product{}, err
		}
		return Product{Filename: name, Title: video.Title, Author: video.Author, Size: written}, nil
	}

	tmpName := ".src-" + sanitize(req.VideoID) + "." + ext
	if _, err := writeAtomic(ctx, req.Dir, tmpName, stream, size, report); err != nil {
		return Product{}, err
	}
	tmpPath := filepath.Join(req.Dir, tmpName)
	defer os.Remove(tmpPath)

	name := title + ".mp3"
	outPath := filepath.Join(req.Dir, name)
	if err := b.extractAudio(tmpPath, outPath); err != nil {
		return Product{}, fmt.Errorf("converting to mp3: %w", err)
	}
	product := Product{Filename: name, Title: video.Title, Author: video.Author}
	if err := b.embedTags(outPath, video.Title, video.Author); err != nil {
		log.Warn().Err(err).Msg("metadata tag embedding failed")
		product.TagError = err.Error()
	} else {
		product.TagsEmbedded = true
	}
	if info, err := os.Stat(outPath); err == nil {
		product.Size = info.Size()
	}
	return product, nil
}

// writeAtomic streams src into dir/name through a temporary file.
func writeAtomic(ctx context.Context, dir, name string, src io.Reader, size int64, report func(float64)) (int64, error) {
	if strings.ContainsAny(name, `/\`) {
		return 0, errors.New("invalid output name")
	}
	tmp, err := os.CreateTemp(dir, ".part-*")
	if err != nil {
		return 0, fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	pw := newProgressWriter(size, report)
	written, copyErr := copyWithContext(ctx, io.MultiWriter(tmp, pw), src)
	closeErr := tmp.Close()
	if copyErr != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("downloading stream: %w", copyErr)
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("closing temp file: %w", closeErr)
	}
	pw.Finish()
	if err := os.Rename(tmpPath, filepath.Join(dir, name)); err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("renaming output: %w", err)
	}
	return written, nil
}

var _ Backend = (*YouTubeBackend)(nil)

package web

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kkdai/youtube/v2"
	"github.com/rs/zerolog"
)

type fakeYouTube struct {
	playlist  *youtube.Playlist
	video     *youtube.Video
	stream    []byte
	streamErr error
	gotFormat *youtube.Format
}

func (f *fakeYouTube) GetPlaylistContext(context.Context, string) (*youtube.Playlist, error) {
	return f.playlist, nil
}

func (f *fakeYouTube) GetVideoContext(context.Context, string) (*youtube.Video, error) {
	if f.video == nil {
		return nil, errors.New("video unavailable")
	}
	return f.video, nil
}

func (f *fakeYouTube) GetStreamContext(_ context.Context, _ *youtube.Video, format *youtube.Format) (io.ReadCloser, int64, error) {
	f.gotFormat = format
	if f.streamErr != nil {
		return nil, 0, f.streamErr
	}
	return io.NopCloser(bytes.NewReader(f.stream)), int64(len(f.stream)), nil
}

func testVideo() *youtube.Video {
	return &youtube.Video{
		ID:     "vid",
		Title:  "My: Video",
		Author: "Channel",
		Formats: youtube.FormatList{
			{ItagNo: 18, MimeType: `video/mp4; codecs="avc1"`, Height: 360, Width: 640, AudioChannels: 2, Bitrate: 500},
			{ItagNo: 22, MimeType: `video/mp4; codecs="avc1"`, Height: 720, Width: 1280, AudioChannels: 2, Bitrate: 1500},
			{ItagNo: 137, MimeType: `video/mp4; codecs="avc1"`, Height: 1080, Width: 1920, Bitrate: 4000},
			{ItagNo: 140, MimeType: `audio/mp4; codecs="mp4a"`, AudioChannels: 2, Bitrate: 128},
			{ItagNo: 251, MimeType: `audio/webm; codecs="opus"`, AudioChannels: 2, Bitrate: 160},
		},
	}
}

func newFakeBackend(yt *fakeYouTube) *YouTubeBackend {
	return &YouTubeBackend{
		client:       yt,
		log:          zerolog.Nop(),
		extractAudio: extractAudio,
		embedTags:    embedID3Tags,
	}
}

func TestYouTubePlaylistSkipsEmptyEntries(t *testing.T) {
	yt := &fakeYouTube{playlist: &youtube.Playlist{
		Title:  "List",
		Author: "Owner",
		Videos: []*youtube.PlaylistEntry{
			{ID: "a", Title: "A", Duration: 61 * time.Second},
			nil,
			{ID: ""},
			{ID: "b", Title: "B"},
		},
	}}
	pl, err := newFakeBackend(yt).Playlist(context.Background(), "https://www.youtube.com/playlist?list=PL")
	if err != nil {
		t.Fatalf("Playlist: %v", err)
	}
	if pl.Title != "List" || len(pl.Entries) != 2 || pl.Entries[1].ID != "b" {
		t.Fatalf("unexpected playlist: %+v", pl)
	}
}

func TestYouTubeProduceVideo(t *testing.T) {
	yt := &fakeYouTube{video: testVideo(), stream: bytes.Repeat([]byte("x"), 4096)}
	dir := t.TempDir()

	var last float64
	product, err := newFakeBackend(yt).Produce(context.Background(), ProduceRequest{VideoID: "vid", Quality: "720p", Format: "mp4", Dir: dir},
		func(p float64) { last = p })
	if err != nil {
		t.Fatalf("Produce: %v", err)
	}
	if yt.gotFormat.ItagNo != 22 {
		t.Fatalf("expected itag 22, got %d", yt.gotFormat.ItagNo)
	}
	if product.Filename != "My- Video [720p].mp4" || product.Size != 4096 {
		t.Fatalf("unexpected product: %+v", product)
	}
	if last != 100 {
		t.Fatalf("expected final progress 100, got %v", last)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Fatalf("expected only the output file, got %d entries", len(entries))
	}
}

func TestYouTubeProduceKeepsQualitiesApart(t *testing.T) {
	yt := &fakeYouTube{video: testVideo(), stream: []byte("data")}
	dir := t.TempDir()
	b := newFakeBackend(yt)

	names := make(map[string]bool)
	for _, quality := range []string{"720p", "360p"} {
		product, err := b.Produce(context.Background(), ProduceRequest{VideoID: "vid", Quality: quality, Format: "mp4", Dir: dir}, nil)
		if err != nil {
			t.Fatalf("Produce %s: %v", quality, err)
		}
		names[product.Filename] = true
	}
	if len(names) != 2 || !names["My- Video [360p].mp4"] {
		t.Fatalf("expected one file per quality, got %v", names)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 2 {
		t.Fatalf("expected 2 files, got %d", len(entries))
	}
}

func TestYouTubeProduceAudio(t *testing.T) {
	yt := &fakeYouTube{video: testVideo(), stream: []byte("audio")}
	dir := t.TempDir()
	b := newFakeBackend(yt)

	var converted, tagged string
	b.extractAudio = func(in, out string) error {
		converted = filepath.Base(in)
		return os.WriteFile(out, []byte("mp3"), 0o644)
	}
	b.embedTags = func(path, title, artist string) error {
		tagged = title + "/" + artist
		return nil
	}

	product, err := b.Produce(context.Background(), ProduceRequest{VideoID: "vid", Format: "mp3", Dir: dir}, nil)
	if err != nil {
		t.Fatalf("Produce: %v", err)
	}
	if yt.gotFormat.ItagNo != 251 {
		t.Fatalf("expected highest-bitrate audio itag 251, got %d", yt.gotFormat.ItagNo)
	}
	if !strings.HasSuffix(converted, ".webm") {
		t.Fatalf("expected conversion from the webm stream, got %q", converted)
	}
	if product.Filename != "My- Video.mp3" || !product.TagsEmbedded || tagged != "My: Video/Channel" {
		t.Fatalf("unexpected product: %+v tagged=%q", product, tagged)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Fatalf("expected intermediate stream removed, got %d entries", len(entries))
	}
}

func TestYouTubeProduceTagFailureIsRecorded(t *testing.T) {
	yt := &fakeYouTube{video: testVideo(), stream: []byte("audio")}
	b := newFakeBackend(yt)
	b.extractAudio = func(_, out string) error { return os.WriteFile(out, []byte("mp3"), 0o644) }
	b.embedTags = func(string, string, string) error { return errors.New("bad frame") }

	product, err := b.Produce(context.Background(), ProduceRequest{VideoID: "vid", Format: "mp3", Dir: t.TempDir()}, nil)
	if err != nil {
		t.Fatalf("Produce: %v", err)
	}
	if product.TagsEmbedded || product.TagError != "bad frame" {
		t.Fatalf("expected tag error recorded, got %+v", product)
	}
}

func TestYouTubeProduceStreamError(t *testing.T) {
	yt := &fakeYouTube{video: testVideo(), streamErr: errors.New("403")}
	_, err := newFakeBackend(yt).Produce(context.Background(), ProduceRequest{VideoID: "vid", Quality: "360p", Format: "mp4", Dir: t.TempDir()}, nil)
	if err == nil || !strings.Contains(err.Error(), "403") {
		t.Fatalf("expected stream error, got %v", err)
	}
}

func TestWriteAtomicCancelled(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := writeAtomic(ctx, dir, "out.mp4", strings.NewReader("data"), 4, nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Fatalf("expected no files left behind, got %d", len(entries))
	}
}

package downloader

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDirSaverNeverOverwrites(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "Downloads")
	s := &DirSaver{Dir: dir}

	first, err := s.Save("clip.mp4", []byte("one"))
	if err != nil {
		t.Fatalf("first save: %v", err)
	}
	second, err := s.Save("clip.mp4", []byte("two"))
	if err != nil {
		t.Fatalf("second save: %v", err)
	}
	if first != filepath.Join(dir, "clip.mp4") {
		t.Fatalf("unexpected first path %q", first)
	}
	if second != filepath.Join(dir, "clip (1).mp4") {
		t.Fatalf("unexpected second path %q", second)
	}
	data, _ := os.ReadFile(first)
	if string(data) != "one" {
		t.Fatalf("first file overwritten: %q", data)
	}
}

func TestDirSaverWithoutDir(t *testing.T) {
	s := &DirSaver{}
	if _, err := s.Save("a.mp4", nil); CategoryOf(err) != CategoryWrite {
		t.Fatalf("expected write error, got %v", err)
	}
}

func TestSafeFilename(t *testing.T) {
	cases := map[string]string{
		"song.mp3":          "song.mp3",
		"a/b/c.mp4":         "c.mp4",
		`..\..\evil.mp4`:    "evil.mp4",
		"what?: <yes>.mp4":  "what-- -yes-.mp4",
		"":                  "video",
		"..":                "video",
	}
	for in, want := range cases {
		if got := safeFilename(in); got != want {
			t.Fatalf("safeFilename(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFallbackFilename(t *testing.T) {
	if got := fallbackFilename("", "mp3"); got != "video.mp3" {
		t.Fatalf("got %q", got)
	}
	if got := fallbackFilename("  ", ""); got != "video.mp4" {
		t.Fatalf("got %q", got)
	}
	if got := fallbackFilename("x.mp4", "mp3"); got != "x.mp4" {
		t.Fatalf("got %q", got)
	}
}

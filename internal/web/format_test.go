package web

import (
	"testing"
	"time"
)

func TestSelectFormatByQuality(t *testing.T) {
	video := testVideo()
	tests := []struct {
		quality string
		want    int
	}{
		{quality: "1080p", want: 22},
		{quality: "720p", want: 22},
		{quality: "480p", want: 18},
		{quality: "360p", want: 18},
		{quality: "144p", want: 18}, // closest above
		{quality: "best", want: 22},
	}
	for _, tt := range tests {
		f, err := selectFormat(video, tt.quality, false)
		if err != nil {
			t.Fatalf("selectFormat(%q): %v", tt.quality, err)
		}
		if f.ItagNo != tt.want {
			t.Fatalf("selectFormat(%q) = itag %d, want %d", tt.quality, f.ItagNo, tt.want)
		}
	}
	if _, err := selectFormat(video, "tall", false); err == nil {
		t.Fatalf("expected error for invalid quality")
	}
}

func TestMimeToExt(t *testing.T) {
	tests := map[string]string{
		`video/mp4; codecs="avc1"`: "mp4",
		`audio/mp4; codecs="mp4a"`: "m4a",
		`audio/webm`:               "webm",
		`video/3gpp`:               "3gp",
		`garbage`:                  "bin",
	}
	for in, want := range tests {
		if got := mimeToExt(in); got != want {
			t.Fatalf("mimeToExt(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "N/A"},
		{5 * time.Second, "0:05"},
		{125 * time.Second, "2:05"},
		{75 * time.Minute, "75:00"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.in); got != tt.want {
			t.Fatalf("formatDuration(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSanitize(t *testing.T) {
	tests := map[string]string{
		"a/b:c":    "a-b-c",
		"  ":       "video",
		"..":       "video",
		"ok title": "ok title",
	}
	for in, want := range tests {
		if got := sanitize(in); got != want {
			t.Fatalf("sanitize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestProgressWriterReportsFinal(t *testing.T) {
	var got []float64
	pw := newProgressWriter(10, func(p float64) { got = append(got, p) })
	pw.Write([]byte("12345"))
	pw.Write([]byte("6789012345"))
	pw.Finish()
	if len(got) == 0 || got[len(got)-1] != 100 {
		t.Fatalf("expected final report of 100, got %v", got)
	}
}

package db

import "testing"

func TestClassifyMediaType(t *testing.T) {
	tests := []struct {
		name   string
		format string
		author string
		want   string
	}{
		{name: "mp3 product", format: "mp3", author: "Someone", want: "music"},
		{name: "upper case format", format: "MP3", want: "music"},
		{name: "topic channel", format: "mp4", author: "Band - Topic", want: "music"},
		{name: "plain video", format: "mp4", author: "Vlogger", want: "video"},
		{name: "empty", want: "video"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyMediaType(tt.format, tt.author); got != tt.want {
				t.Fatalf("ClassifyMediaType(%q, %q) = %q, want %q", tt.format, tt.author, got, tt.want)
			}
		})
	}
}

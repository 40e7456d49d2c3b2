package web

import (
	"path/filepath"
	"strings"

	id3v2 "github.com/bogem/id3v2/v2"
	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// extractAudio converts inputPath to an audio file whose codec follows the
// output extension.
func extractAudio(inputPath, outputPath string) error {
	ext := strings.ToLower(filepath.Ext(outputPath))
	kwargs := ffmpeg.KwArgs{"vn": ""}

	switch ext {
	case ".mp3":
		kwargs["acodec"] = "libmp3lame"
		kwargs["q:a"] = "2"
	case ".m4a", ".aac":
		kwargs["acodec"] = "aac"
		kwargs["b:a"] = "192k"
	default:
		kwargs["acodec"] = "copy"
	}

	return ffmpeg.Input(inputPath).
		Output(outputPath, kwargs).
		OverWriteOutput().
		Silent(true).
		Run()
}

// embedID3Tags writes title and artist frames into an mp3.
func embedID3Tags(path, title, artist string) error {
	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return err
	}
	defer tag.Close()

	if title != "" {
		tag.SetTitle(title)
	}
	if artist != "" {
		tag.SetArtist(artist)
	}
	return tag.Save()
}

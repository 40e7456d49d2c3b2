package db

import "strings"

// ClassifyMediaType labels a product "music" or "video".
//
//   - Music: an mp3 product, or an author channel ending in " - Topic"
//   - Video: everything else
func ClassifyMediaType(format, author string) string {
	if strings.EqualFold(strings.TrimSpace(format), "mp3") {
		return "music"
	}
	if strings.HasSuffix(author, " - Topic") {
		return "music"
	}
	return "video"
}

package web

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/kkdai/youtube/v2"
)

// selectFormat picks the stream for a request. Video requests want the best
// progressive (audio+video) stream at or below the target height, falling back
// to the closest one above it. Audio requests want the highest-bitrate
// audio-only stream, then any stream with audio.
func selectFormat(video *youtube.Video, quality string, audioOnly bool) (*youtube.Format, error) {
	if audioOnly {
		return pickAudioFormat(video.Formats)
	}
	target, err := parseVideoQuality(quality)
	if err != nil {
		return nil, err
	}

	candidates := make([]*youtube.Format, 0, len(video.Formats))
	for i := range video.Formats {
		f := &video.Formats[i]
		if f.AudioChannels == 0 || f.Width == 0 || f.Height == 0 {
			continue
		}
		candidates = append(candidates, f)
	}
	if len(candidates) == 0 {
		return nil, errors.New("no progressive (audio+video) formats available")
	}

	var best *youtube.Format
	if target > 0 {
		for _, f := range candidates {
			if f.Height > target {
				continue
			}
			if best == nil || betterVideoFormat(f, best) {
				best = f
			}
		}
	}
	if best == nil {
		// Nothing under the target: closest above it.
		for _, f := range candidates {
			if target == 0 {
				if best == nil || betterVideoFormat(f, best) {
					best = f
				}
				continue
			}
			if best == nil || f.Height < best.Height || (f.Height == best.Height && bitrateForFormat(f) > bitrateForFormat(best)) {
				best = f
			}
		}
	}
	return best, nil
}

func pickAudioFormat(formats youtube.FormatList) (*youtube.Format, error) {
	var best, fallback *youtube.Format
	for i := range formats {
		f := &formats[i]
		if f.AudioChannels == 0 {
			continue
		}
		if f.Width == 0 && f.Height == 0 {
			if best == nil || bitrateForFormat(f) > bitrateForFormat(best) {
				best = f
			}
			continue
		}
		if fallback == nil || bitrateForFormat(f) > bitrateForFormat(fallback) {
			fallback = f
		}
	}
	if best != nil {
		return best, nil
	}
	if fallback != nil {
		return fallback, nil
	}
	return nil, errors.New("no audio formats available")
}

func parseVideoQuality(q string) (int, error) {
	q = strings.TrimSpace(strings.ToLower(q))
	if q == "" || q == "best" {
		return 0, nil
	}
	value, err := strconv.Atoi(strings.TrimSuffix(q, "p"))
	if err != nil || value <= 0 {
		return 0, fmt.Errorf("invalid quality value %q (expected like 720p)", q)
	}
	return value, nil
}

func betterVideoFormat(candidate, current *youtube.Format) bool {
	if candidate.Height != current.Height {
		return candidate.Height > current.Height
	}
	return bitrateForFormat(candidate) > bitrateForFormat(current)
}

func bitrateForFormat(f *youtube.Format) int {
	if f.Bitrate > 0 {
		return f.Bitrate
	}
	return f.AverageBitrate
}

func mimeToExt(mime string) string {
	if i := strings.Index(mime, ";"); i >= 0 {
		mime = mime[:i]
	}
	parts := strings.Split(strings.TrimSpace(mime), "/")
	if len(parts) == 2 {
		switch parts[1] {
		case "3gpp":
			return "3gp"
		case "mp4":
			if parts[0] == "audio" {
				return "m4a"
			}
			return "mp4"
		default:
			return parts[1]
		}
	}
	return "bin"
}

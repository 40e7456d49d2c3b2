package downloader

import (
	"fmt"
	"strings"
)

// ItemDescriptor describes one downloadable entry of a playlist.
type ItemDescriptor struct {
	ID           string `json:"video_id"`
	Title        string `json:"title"`
	ThumbnailURL string `json:"thumbnail"`
	Duration     string `json:"duration,omitempty"`
	Author       string `json:"author,omitempty"`
}

// PlaylistResult is a resolved playlist. Items keep the service's order.
type PlaylistResult struct {
	Title string
	Items []ItemDescriptor
}

// TransferRequest asks the service to prepare one item.
type TransferRequest struct {
	ItemID  string `json:"video_id"`
	Quality string `json:"quality"`
	Format  string `json:"format"`
}

// Ticket is the service's answer to a successful TransferRequest.
type Ticket struct {
	DownloadURL string
	Filename    string
	Message     string
}

// TransferOutcome is the result of driving one item to a terminal state.
// State is Done or Failed for items that ran and Idle for items a cancelled
// batch never started.
type TransferOutcome struct {
	ItemID      string
	State       TaskState
	DownloadURL string
	Filename    string
	// Location is where the bytes were written.
	Location string
	// Fallback is set when the granted destination refused the write and the
	// default saver was used instead.
	Fallback bool
	Err      error
}

// Succeeded reports whether the item reached Done.
func (o TransferOutcome) Succeeded() bool {
	return o.State == StateDone && o.Err == nil
}

// Message returns the failure reason, or "" on success.
func (o TransferOutcome) Message() string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Error()
}

// TaskState is the per-item download state.
type TaskState string

const (
	StateIdle         TaskState = "idle"
	StateRequesting   TaskState = "requesting"
	StateProcessing   TaskState = "processing"
	StateTransferring TaskState = "transferring"
	StateWriting      TaskState = "writing"
	StateDone         TaskState = "done"
	StateFailed       TaskState = "failed"
)

func (s TaskState) String() string {
	return string(s)
}

// IsActive returns true between Idle and a terminal state.
func (s TaskState) IsActive() bool {
	switch s {
	case StateRequesting, StateProcessing, StateTransferring, StateWriting:
		return true
	}
	return false
}

// IsTerminal returns true for Done and Failed.
func (s TaskState) IsTerminal() bool {
	return s == StateDone || s == StateFailed
}

var transitions = map[TaskState][]TaskState{
	StateIdle:         {StateRequesting},
	StateRequesting:   {StateProcessing, StateFailed},
	StateProcessing:   {StateTransferring, StateFailed},
	StateTransferring: {StateWriting, StateFailed},
	StateWriting:      {StateDone, StateFailed},
}

// CanTransition reports whether next may follow s.
func (s TaskState) CanTransition(next TaskState) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Supported qualities and formats.
var (
	Qualities = []string{"1080p", "720p", "480p", "360p"}
	Formats   = []string{"mp4", "mp3"}
)

const (
	DefaultQuality = "720p"
	DefaultFormat  = "mp4"
)

// NormalizeQuality lowercases q and checks it against Qualities. Empty means DefaultQuality.
func NormalizeQuality(q string) (string, error) {
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		return DefaultQuality, nil
	}
	if !strings.HasSuffix(q, "p") {
		q += "p"
	}
	for _, known := range Qualities {
		if q == known {
			return q, nil
		}
	}
	return "", wrapCategory(CategoryValidation, fmt.Errorf("unsupported quality %q (expected one of %s)", q, strings.Join(Qualities, ", ")))
}

// NormalizeFormat lowercases f and checks it against Formats. Empty means DefaultFormat.
func NormalizeFormat(f string) (string, error) {
	f = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(f)), ".")
	if f == "" {
		return DefaultFormat, nil
	}
	for _, known := range Formats {
		if f == known {
			return f, nil
		}
	}
	return "", wrapCategory(CategoryValidation, fmt.Errorf("unsupported format %q (expected one of %s)", f, strings.Join(Formats, ", ")))
}

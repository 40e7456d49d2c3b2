package downloader

import (
	"time"
)

// EventType names the kinds of Event.
type EventType string

const (
	EventBatchStarted   EventType = "batch_started"
	EventItemState      EventType = "item_state"
	EventItemProgress   EventType = "item_progress"
	EventItemDone       EventType = "item_done"
	EventItemFailed     EventType = "item_failed"
	EventBatchCompleted EventType = "batch_completed"
	EventNotice         EventType = "notice"
)

// Notice levels.
const (
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

const criticalEventTimeout = 2 * time.Second

// Event is a structured progress or outcome notification for the rendering layer.
type Event struct {
	Type     EventType `json:"type"`
	BatchID  string    `json:"batch_id,omitempty"`
	Index    int       `json:"index"`
	ItemID   string    `json:"item_id,omitempty"`
	Title    string    `json:"title,omitempty"`
	State    TaskState `json:"state,omitempty"`
	Percent  float64   `json:"percent"`
	Total    int       `json:"total,omitempty"`
	Filename string    `json:"filename,omitempty"`
	Location string    `json:"location,omitempty"`
	Level    string    `json:"level,omitempty"`
	Message  string    `json:"message,omitempty"`
}

// Emitter delivers events to a single consumer channel. A nil *Emitter drops
// everything.
type Emitter struct {
	ch      chan<- Event
	maxWait time.Duration
}

// NewEmitter sends to ch. Progress events are dropped when ch is full; other
// events wait up to maxWait (2s when zero).
func NewEmitter(ch chan<- Event, maxWait time.Duration) *Emitter {
	if ch == nil {
		return nil
	}
	if maxWait <= 0 {
		maxWait = criticalEventTimeout
	}
	return &Emitter{ch: ch, maxWait: maxWait}
}

func (e *Emitter) progress(evt Event) {
	if e == nil {
		return
	}
	select {
	case e.ch <- evt:
	default:
	}
}

func (e *Emitter) critical(evt Event) bool {
	if e == nil {
		return false
	}
	timer := time.NewTimer(e.maxWait)
	defer timer.Stop()
	select {
	case e.ch <- evt:
		return true
	case <-timer.C:
		return false
	}
}

func (e *Emitter) notice(level, message string) {
	e.critical(Event{Type: EventNotice, Index: -1, Level: level, Message: message})
}

package tui

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/lvcoi/ytdl-playlist/internal/downloader"
)

// Plain writes line-oriented output with one progress bar per active item.
type Plain struct {
	Out io.Writer

	bar   *progressbar.ProgressBar
	total int
}

func (p *Plain) Render(ctx context.Context, events <-chan downloader.Event) error {
	for {
		select {
		case <-ctx.Done():
			p.closeBar()
			go drain(events)
			return nil
		case evt, ok := <-events:
			if !ok {
				p.closeBar()
				return nil
			}
			if p.handle(evt) {
				go drain(events)
				return nil
			}
		}
	}
}

// handle renders evt and reports whether the batch is complete.
func (p *Plain) handle(evt downloader.Event) bool {
	switch evt.Type {
	case downloader.EventBatchStarted:
		p.total = evt.Total
		fmt.Fprintln(p.Out, evt.Message)
	case downloader.EventBatchCompleted:
		p.closeBar()
		fmt.Fprintln(p.Out, evt.Message)
		return true
	case downloader.EventNotice:
		p.closeBar()
		fmt.Fprintf(p.Out, "[%s] %s\n", evt.Level, evt.Message)
	case downloader.EventItemState:
		if evt.State == downloader.StateRequesting {
			p.closeBar()
			p.bar = p.newBar(evt)
		}
		if p.bar != nil {
			p.bar.Describe(p.describe(evt, evt.State.String()))
		}
	case downloader.EventItemProgress:
		if p.bar != nil {
			_ = p.bar.Set(int(evt.Percent))
		}
	case downloader.EventItemDone:
		if p.bar != nil {
			_ = p.bar.Finish()
			p.bar = nil
		}
		fmt.Fprintf(p.Out, "%s saved to %s\n", p.label(evt), evt.Location)
	case downloader.EventItemFailed:
		p.closeBar()
		fmt.Fprintf(p.Out, "%s failed: %s\n", p.label(evt), evt.Message)
	}
	return false
}

func (p *Plain) newBar(evt downloader.Event) *progressbar.ProgressBar {
	return progressbar.NewOptions(100,
		progressbar.OptionSetDescription(p.describe(evt, evt.State.String())),
		progressbar.OptionSetWriter(p.Out),
		progressbar.OptionSetWidth(30),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionShowCount(),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(p.Out, "\n")
		}),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func (p *Plain) closeBar() {
	if p.bar == nil {
		return
	}
	_ = p.bar.Exit()
	fmt.Fprint(p.Out, "\n")
	p.bar = nil
}

func (p *Plain) label(evt downloader.Event) string {
	title := evt.Title
	if title == "" {
		title = evt.ItemID
	}
	if evt.Index >= 0 && p.total > 0 {
		return fmt.Sprintf("[%d/%d] %s", evt.Index+1, p.total, truncate(title, 40))
	}
	return truncate(title, 40)
}

func (p *Plain) describe(evt downloader.Event, state string) string {
	return fmt.Sprintf("%s (%s)", p.label(evt), state)
}

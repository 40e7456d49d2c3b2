// Package tui renders downloader events for a terminal: a bubbletea view on
// interactive terminals and progress bars otherwise.
package tui

import (
	"context"
	"io"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/lvcoi/ytdl-playlist/internal/downloader"
)

// Renderer consumes events until the channel is closed or the batch completes.
type Renderer interface {
	Render(ctx context.Context, events <-chan downloader.Event) error
}

// Program is the interactive renderer.
type Program struct {
	Titles []string
	Out    io.Writer
	In     io.Reader
	// Cancel is invoked when the user asks to stop.
	Cancel func()
}

func (p *Program) Render(ctx context.Context, events <-chan downloader.Event) error {
	m := newModel(p.Titles, p.Cancel)
	opts := []tea.ProgramOption{tea.WithContext(ctx)}
	if p.Out != nil {
		opts = append(opts, tea.WithOutput(p.Out))
	}
	if p.In != nil {
		opts = append(opts, tea.WithInput(p.In))
	}
	prog := tea.NewProgram(m, opts...)

	stop := make(chan struct{})
	go func() {
		for {
			select {
			case evt, ok := <-events:
				if !ok {
					prog.Send(streamClosedMsg{})
					return
				}
				prog.Send(eventMsg(evt))
			case <-stop:
				return
			}
		}
	}()

	_, err := prog.Run()
	close(stop)
	// Keep the producer from waiting on a renderer that is gone.
	go drain(events)
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}

func drain(events <-chan downloader.Event) {
	for range events {
	}
}

package tui

import (
	"fmt"
	"strings"

	progressbar "github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/lvcoi/ytdl-playlist/internal/downloader"
)

const (
	maxNotices  = 5
	minBarWidth = 10
	maxBarWidth = 40
)

// eventMsg carries one downloader event into the program.
type eventMsg downloader.Event

// streamClosedMsg reports that the event channel was closed.
type streamClosedMsg struct{}

type row struct {
	title    string
	state    downloader.TaskState
	percent  float64
	message  string
	location string
	started  bool
}

// model renders a batch: one row per item plus a short notice log.
type model struct {
	rows      []row
	header    string
	notices   []downloader.Event
	spin      spinner.Model
	bar       progressbar.Model
	width     int
	done      bool
	cancelled bool
	cancel    func()
}

func newModel(titles []string, cancel func()) *model {
	spin := spinner.New()
	spin.Spinner = spinner.MiniDot
	spin.Style = spinnerStyle

	rows := make([]row, len(titles))
	for i, t := range titles {
		rows[i] = row{title: t}
	}
	return &model{
		rows:   rows,
		spin:   spin,
		bar:    progressbar.New(progressbar.WithGradient("#FF006E", "#00F5FF"), progressbar.WithoutPercentage(), progressbar.WithWidth(maxBarWidth)),
		cancel: cancel,
	}
}

func (m *model) Init() tea.Cmd {
	return m.spin.Tick
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			// The batch finishes on its own once cancelled; keep rendering until then.
			if !m.cancelled && m.cancel != nil {
				m.cancelled = true
				m.cancel()
				return m, nil
			}
			if m.cancelled {
				return m, tea.Quit
			}
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.bar.Width = barWidth(msg.Width)
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	case streamClosedMsg:
		m.done = true
		return m, tea.Quit
	case eventMsg:
		return m, m.apply(downloader.Event(msg))
	}
	return m, nil
}

func (m *model) apply(evt downloader.Event) tea.Cmd {
	switch evt.Type {
	case downloader.EventBatchStarted:
		m.header = evt.Message
		if evt.Total > len(m.rows) {
			m.rows = append(m.rows, make([]row, evt.Total-len(m.rows))...)
		}
	case downloader.EventBatchCompleted:
		m.header = evt.Message
		m.done = true
		return tea.Quit
	case downloader.EventNotice:
		m.notices = append(m.notices, evt)
		if len(m.notices) > maxNotices {
			m.notices = m.notices[len(m.notices)-maxNotices:]
		}
	default:
		r := m.rowFor(evt)
		if r == nil {
			return nil
		}
		r.started = true
		if evt.Title != "" {
			r.title = evt.Title
		}
		r.state = evt.State
		switch evt.Type {
		case downloader.EventItemProgress:
			r.percent = evt.Percent
		case downloader.EventItemDone:
			r.state = downloader.StateDone
			r.percent = evt.Percent
			r.location = evt.Location
		case downloader.EventItemFailed:
			r.state = downloader.StateFailed
			r.percent = 0
			r.message = evt.Message
		}
	}
	return nil
}

// rowFor returns the row for evt. Single-item runs use index -1 and get one row.
func (m *model) rowFor(evt downloader.Event) *row {
	idx := evt.Index
	if idx < 0 {
		idx = 0
	}
	for len(m.rows) <= idx {
		m.rows = append(m.rows, row{})
	}
	return &m.rows[idx]
}

func (m *model) View() string {
	var b strings.Builder
	if m.header != "" {
		b.WriteString(headerStyle.Render(m.header))
		b.WriteString("\n\n")
	}
	for i, r := range m.rows {
		b.WriteString(m.renderRow(i, r))
		b.WriteByte('\n')
	}
	if len(m.notices) > 0 {
		b.WriteByte('\n')
		for _, n := range m.notices {
			b.WriteString(noticeStyle(n.Level).Render(n.Message))
			b.WriteByte('\n')
		}
	}
	if m.cancelled && !m.done {
		b.WriteString(stateStyle.Render("cancelling..."))
		b.WriteByte('\n')
	}
	return b.String()
}

func (m *model) renderRow(i int, r row) string {
	title := r.title
	if title == "" {
		title = fmt.Sprintf("item %d", i+1)
	}
	label := labelStyle.Render(truncate(title, 40))

	switch {
	case r.state == downloader.StateDone:
		return fmt.Sprintf("%s %s %s", doneStyle.Render("✓"), label, stateStyle.Render(r.location))
	case r.state == downloader.StateFailed:
		return fmt.Sprintf("%s %s %s", logErrorStyle.Render("✗"), label, logErrorStyle.Render(r.message))
	case !r.started:
		return fmt.Sprintf("  %s %s", label, stateStyle.Render("waiting"))
	default:
		return fmt.Sprintf("%s %s %s %3.0f%% %s",
			m.spin.View(), label, m.bar.ViewAs(r.percent/100), r.percent, stateStyle.Render(r.state.String()))
	}
}

func barWidth(termWidth int) int {
	w := termWidth - 60
	if w < minBarWidth {
		return minBarWidth
	}
	if w > maxBarWidth {
		return maxBarWidth
	}
	return w
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}

package downloader

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Ticker is the processing-phase clock. *time.Ticker satisfies it through realTicker.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

func newRealTicker(d time.Duration) Ticker {
	return realTicker{t: time.NewTicker(d)}
}

const (
	DefaultTickInterval = 300 * time.Millisecond
	DefaultItemDelay    = 2 * time.Second
)

// Options configures a Downloader.
type Options struct {
	// TickInterval paces synthetic progress during processing.
	TickInterval time.Duration
	// ItemDelay is the quiescent period between batch items.
	ItemDelay time.Duration
	// Increment draws synthetic progress steps. Nil uses math/rand.
	Increment Increment
	// Feed, when set, supplies real processing progress.
	Feed ProgressFeed
	// NewTicker overrides the processing clock.
	NewTicker func(time.Duration) Ticker
	// Sleep overrides the quiescent wait.
	Sleep func(ctx context.Context, d time.Duration) error
	// NewBatchID overrides batch id generation.
	NewBatchID func() string
}

// Downloader drives items through request, processing, transfer and write.
type Downloader struct {
	service Service
	dest    DestinationProvider
	saver   Saver
	events  *Emitter
	log     zerolog.Logger
	opts    Options
}

// New returns a Downloader. dest may be nil (always default-save); events may be nil.
func New(service Service, dest DestinationProvider, saver Saver, events *Emitter, log zerolog.Logger, opts Options) *Downloader {
	if opts.TickInterval <= 0 {
		opts.TickInterval = DefaultTickInterval
	}
	if opts.ItemDelay < 0 {
		opts.ItemDelay = 0
	}
	if opts.Increment == nil {
		opts.Increment = RandomIncrement(nil)
	}
	if opts.NewTicker == nil {
		opts.NewTicker = newRealTicker
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepWithContext
	}
	if opts.NewBatchID == nil {
		opts.NewBatchID = newBatchID
	}
	if dest == nil {
		dest = Destination{}
	}
	return &Downloader{service: service, dest: dest, saver: saver, events: events, log: log, opts: opts}
}

// DownloadItem runs a single item outside of a batch.
func (d *Downloader) DownloadItem(ctx context.Context, req TransferRequest) TransferOutcome {
	return d.downloadItem(ctx, itemRun{index: -1, req: req})
}

type itemRun struct {
	batchID string
	index   int
	title   string
	req     TransferRequest
}

type itemMachine struct {
	run   itemRun
	state TaskState
	d     *Downloader
	log   zerolog.Logger
}

func (m *itemMachine) event(t EventType) Event {
	return Event{
		Type:    t,
		BatchID: m.run.batchID,
		Index:   m.run.index,
		ItemID:  m.run.req.ItemID,
		Title:   m.run.title,
		State:   m.state,
	}
}

func (m *itemMachine) enter(next TaskState) {
	if !m.state.CanTransition(next) {
		m.log.Error().Str("from", m.state.String()).Str("to", next.String()).Msg("invalid state transition")
	}
	m.state = next
	m.log.Debug().Str("state", next.String()).Msg("item state")
	if !next.IsTerminal() {
		m.d.events.critical(m.event(EventItemState))
	}
}

func (m *itemMachine) fail(err error) TransferOutcome {
	m.enter(StateFailed)
	m.log.Warn().Err(err).Msg("item failed")
	evt := m.event(EventItemFailed)
	evt.Message = err.Error()
	m.d.events.critical(evt)
	return TransferOutcome{ItemID: m.run.req.ItemID, State: StateFailed, Err: err}
}

func (d *Downloader) downloadItem(ctx context.Context, run itemRun) TransferOutcome {
	m := &itemMachine{
		run:   run,
		state: StateIdle,
		d:     d,
		log:   d.log.With().Str("item", run.req.ItemID).Int("index", run.index).Logger(),
	}
	if err := ctx.Err(); err != nil {
		return TransferOutcome{ItemID: run.req.ItemID, State: StateIdle, Err: err}
	}

	m.enter(StateRequesting)
	ticket, err := d.awaitTicket(ctx, m)
	if err != nil {
		return m.fail(err)
	}

	m.enter(StateTransferring)
	data, err := d.service.FetchBytes(ctx, ticket.DownloadURL)
	if err != nil {
		return m.fail(wrapCategory(CategoryTransfer, err))
	}

	m.enter(StateWriting)
	filename := fallbackFilename(ticket.Filename, run.req.Format)
	location, fellBack, err := d.write(m, filename, data)
	if err != nil {
		return m.fail(err)
	}

	m.enter(StateDone)
	evt := m.event(EventItemDone)
	evt.Percent = CompletePercent
	evt.Filename = filename
	evt.Location = location
	d.events.critical(evt)
	m.log.Info().Str("file", location).Bool("fallback", fellBack).Msg("item saved")
	return TransferOutcome{
		ItemID:      run.req.ItemID,
		State:       StateDone,
		DownloadURL: ticket.DownloadURL,
		Filename:    filename,
		Location:    location,
		Fallback:    fellBack,
	}
}

type ticketResult struct {
	ticket Ticket
	err    error
}

// awaitTicket issues the request and ticks synthetic progress until the
// service answers. The ticker is stopped on every return path.
func (d *Downloader) awaitTicket(ctx context.Context, m *itemMachine) (Ticket, error) {
	reqCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if d.opts.Feed != nil {
		d.opts.Feed.Forget(m.run.req.ItemID)
	}
	results := make(chan ticketResult, 1)
	go func() {
		t, err := d.service.RequestItem(reqCtx, m.run.req)
		results <- ticketResult{ticket: t, err: err}
	}()

	m.enter(StateProcessing)
	ticker := d.opts.NewTicker(d.opts.TickInterval)
	defer ticker.Stop()
	progress := NewSyntheticProgress(d.opts.Increment)

	for {
		select {
		case res := <-results:
			if res.err != nil {
				return Ticket{}, wrapCategory(CategoryTransfer, res.err)
			}
			return res.ticket, nil
		case <-ticker.C():
			value := progress.Next()
			if d.opts.Feed != nil {
				if real, ok := d.opts.Feed.Latest(m.run.req.ItemID); ok {
					value = progress.Observe(real)
				}
			}
			evt := m.event(EventItemProgress)
			evt.Percent = value
			d.events.progress(evt)
		case <-ctx.Done():
			return Ticket{}, wrapCategory(CategoryTransfer, fmt.Errorf("waiting for %s: %w", m.run.req.ItemID, ctx.Err()))
		}
	}
}

// write tries the granted destination first and falls back to the default
// saver. The grant is left untouched when it refuses a write.
func (d *Downloader) write(m *itemMachine, filename string, data []byte) (string, bool, error) {
	dest := d.dest.Current()
	if dest.Granted() {
		path, err := WriteIfGranted(dest, filename, data)
		if err == nil {
			return path, false, nil
		}
		m.log.Warn().Err(err).Str("dest", dest.DisplayName()).Msg("write to selected location failed, using default location")
		d.events.notice(LevelWarn, fmt.Sprintf("Could not save %s to %s, using default location", filename, dest.DisplayName()))
		if d.saver == nil {
			return "", true, wrapCategory(CategoryWrite, err)
		}
		path, saveErr := d.saver.Save(filename, data)
		if saveErr != nil {
			return "", true, wrapCategory(CategoryWrite, saveErr)
		}
		return path, true, nil
	}
	if d.saver == nil {
		return "", false, wrapCategory(CategoryWrite, errors.New("no save location available"))
	}
	path, err := d.saver.Save(filename, data)
	if err != nil {
		return "", false, wrapCategory(CategoryWrite, err)
	}
	return path, false, nil
}

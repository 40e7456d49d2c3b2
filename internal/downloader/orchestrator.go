package downloader

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// BatchOutcome holds one TransferOutcome per input item, in input order.
type BatchOutcome struct {
	ID       string
	Outcomes []TransferOutcome
}

// Done counts items that reached Done.
func (b BatchOutcome) Done() int {
	n := 0
	for _, o := range b.Outcomes {
		if o.State == StateDone {
			n++
		}
	}
	return n
}

// Failed counts items that reached Failed.
func (b BatchOutcome) Failed() int {
	n := 0
	for _, o := range b.Outcomes {
		if o.State == StateFailed {
			n++
		}
	}
	return n
}

// Err returns the failure with the highest exit code, or nil.
func (b BatchOutcome) Err() error {
	var worst error
	for _, o := range b.Outcomes {
		if o.Err != nil && ExitCode(o.Err) > ExitCode(worst) {
			worst = o.Err
		}
	}
	return worst
}

// DownloadAll downloads items one at a time in order. A failed item does not
// stop the batch. Items are separated by the configured quiescent period. When
// ctx is cancelled, items not yet started are returned in Idle.
func (d *Downloader) DownloadAll(ctx context.Context, items []ItemDescriptor, quality, format string) BatchOutcome {
	batch := BatchOutcome{ID: d.opts.NewBatchID(), Outcomes: make([]TransferOutcome, len(items))}
	log := d.log.With().Str("batch", batch.ID).Logger()

	d.events.critical(Event{
		Type:    EventBatchStarted,
		BatchID: batch.ID,
		Index:   -1,
		Total:   len(items),
		Message: fmt.Sprintf("Starting download of %d videos in %s format...", len(items), strings.ToUpper(format)),
	})
	log.Info().Int("items", len(items)).Str("quality", quality).Str("format", format).Msg("batch started")

	for i, item := range items {
		if i > 0 && d.opts.ItemDelay > 0 {
			if err := d.opts.Sleep(ctx, d.opts.ItemDelay); err != nil {
				markIdle(batch.Outcomes[i:], items[i:], err)
				break
			}
		}
		if err := ctx.Err(); err != nil {
			markIdle(batch.Outcomes[i:], items[i:], err)
			break
		}
		batch.Outcomes[i] = d.downloadItem(ctx, itemRun{
			batchID: batch.ID,
			index:   i,
			title:   item.Title,
			req:     TransferRequest{ItemID: item.ID, Quality: quality, Format: format},
		})
	}

	done, failed := batch.Done(), batch.Failed()
	d.events.critical(Event{
		Type:    EventBatchCompleted,
		BatchID: batch.ID,
		Index:   -1,
		Total:   len(items),
		Message: "All downloads completed!",
	})
	log.Info().Int("done", done).Int("failed", failed).Msg("batch completed")
	return batch
}

func markIdle(outcomes []TransferOutcome, items []ItemDescriptor, err error) {
	for i := range outcomes {
		outcomes[i] = TransferOutcome{ItemID: items[i].ID, State: StateIdle, Err: err}
	}
}

func newBatchID() string {
	return uuid.NewString()
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

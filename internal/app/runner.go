// Package app wires the downloader, destination handling and rendering into
// the playlist and single-item flows used by the CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/lvcoi/ytdl-playlist/internal/downloader"
	"github.com/lvcoi/ytdl-playlist/internal/tui"
)

const eventBuffer = 256

// RendererFactory builds the view for a run. cancel stops the run.
type RendererFactory func(titles []string, cancel context.CancelFunc) tui.Renderer

// Runner holds the collaborators shared by every flow.
type Runner struct {
	Service downloader.Service
	Saver   downloader.Saver
	// Capability backs --pick; nil means Unavailable.
	Capability  downloader.StorageCapability
	Feed        downloader.ProgressFeed
	NewRenderer RendererFactory
	Options     downloader.Options
	Log         zerolog.Logger
}

// Request describes a playlist download.
type Request struct {
	Reference string
	// Items selects 1-based positions, e.g. "1,3-5". Empty selects all.
	Items   string
	Quality string
	Format  string
	// Dest grants a directory up front; Pick prompts for one.
	Dest string
	Pick bool
}

// ItemRequest describes a single-video download.
type ItemRequest struct {
	VideoID string
	Title   string
	Quality string
	Format  string
	Dest    string
	Pick    bool
}

// Resolve validates reference and lists its items.
func (r *Runner) Resolve(ctx context.Context, reference string) (downloader.PlaylistResult, error) {
	if err := downloader.ValidateReference(reference); err != nil {
		return downloader.PlaylistResult{}, err
	}
	result, err := r.Service.ResolvePlaylist(ctx, strings.TrimSpace(reference), downloader.DefaultMode)
	if err != nil {
		return downloader.PlaylistResult{}, err
	}
	r.Log.Debug().Str("title", result.Title).Int("items", len(result.Items)).Msg("playlist resolved")
	return result, nil
}

// Download resolves the playlist and downloads the selected items in order.
func (r *Runner) Download(ctx context.Context, req Request) (downloader.BatchOutcome, error) {
	quality, format, err := normalize(req.Quality, req.Format)
	if err != nil {
		return downloader.BatchOutcome{}, err
	}
	result, err := r.Resolve(ctx, req.Reference)
	if err != nil {
		return downloader.BatchOutcome{}, err
	}
	if len(result.Items) == 0 {
		return downloader.BatchOutcome{}, downloader.CategorizedError{
			Category: downloader.CategoryResolve,
			Err:      errors.New("playlist has no videos"),
		}
	}
	items, err := SelectItems(result.Items, req.Items)
	if err != nil {
		return downloader.BatchOutcome{}, err
	}

	titles := make([]string, len(items))
	for i, it := range items {
		titles[i] = it.Title
	}

	var batch downloader.BatchOutcome
	err = r.session(ctx, titles, req.Dest, req.Pick, func(ctx context.Context, d *downloader.Downloader) {
		batch = d.DownloadAll(ctx, items, quality, format)
	})
	if err != nil {
		return batch, err
	}
	return batch, batch.Err()
}

// DownloadOne downloads a single video with per-item overrides.
func (r *Runner) DownloadOne(ctx context.Context, req ItemRequest) (downloader.TransferOutcome, error) {
	videoID := strings.TrimSpace(req.VideoID)
	if videoID == "" {
		return downloader.TransferOutcome{}, downloader.CategorizedError{
			Category: downloader.CategoryValidation,
			Err:      errors.New("video id is required"),
		}
	}
	quality, format, err := normalize(req.Quality, req.Format)
	if err != nil {
		return downloader.TransferOutcome{}, err
	}
	title := req.Title
	if title == "" {
		title = videoID
	}

	var outcome downloader.TransferOutcome
	err = r.session(ctx, []string{title}, req.Dest, req.Pick, func(ctx context.Context, d *downloader.Downloader) {
		outcome = d.DownloadItem(ctx, downloader.TransferRequest{ItemID: videoID, Quality: quality, Format: format})
	})
	if err != nil {
		return outcome, err
	}
	return outcome, outcome.Err
}

// session sets up the destination, downloader and renderer around run.
func (r *Runner) session(ctx context.Context, titles []string, dest string, pick bool, run func(context.Context, *downloader.Downloader)) error {
	events := make(chan downloader.Event, eventBuffer)
	emitter := downloader.NewEmitter(events, 0)

	var capability downloader.StorageCapability
	switch {
	case strings.TrimSpace(dest) != "":
		capability = downloader.Available{Picker: downloader.PathPicker{Path: dest}}
	case pick:
		capability = r.Capability
		if capability == nil {
			capability = downloader.Unavailable{Reason: "no directory picker configured"}
		}
	}
	resolver := downloader.NewDestinationResolver(capability, emitter, r.Log)
	if capability != nil {
		// A failed selection is reported as a notice; the run falls back to the default location.
		if _, err := resolver.Request(ctx); err != nil {
			r.Log.Warn().Err(err).Msg("continuing without a download location")
		}
	}

	opts := r.Options
	if r.Feed != nil {
		opts.Feed = r.Feed
	}
	d := downloader.New(r.Service, resolver, r.Saver, emitter, r.Log, opts)

	g, gctx := errgroup.WithContext(ctx)
	runCtx, cancel := context.WithCancel(gctx)
	defer cancel()

	var renderer tui.Renderer
	if r.NewRenderer != nil {
		renderer = r.NewRenderer(titles, cancel)
	}
	g.Go(func() error {
		if renderer == nil {
			for range events {
			}
			return nil
		}
		if err := renderer.Render(gctx, events); err != nil {
			return fmt.Errorf("rendering progress: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		defer close(events)
		defer resolver.Close()
		run(runCtx, d)
		return nil
	})
	return g.Wait()
}

func normalize(quality, format string) (string, string, error) {
	q, err := downloader.NormalizeQuality(quality)
	if err != nil {
		return "", "", err
	}
	f, err := downloader.NormalizeFormat(format)
	if err != nil {
		return "", "", err
	}
	return q, f, nil
}

// SelectItems picks items by a 1-based selection such as "1,3-5". The result
// keeps playlist order and contains each item once.
func SelectItems(items []downloader.ItemDescriptor, selection string) ([]downloader.ItemDescriptor, error) {
	selection = strings.TrimSpace(selection)
	if selection == "" {
		return items, nil
	}
	indexes, err := ParseSelection(selection, len(items))
	if err != nil {
		return nil, err
	}
	out := make([]downloader.ItemDescriptor, 0, len(indexes))
	for _, i := range indexes {
		out = append(out, items[i])
	}
	return out, nil
}

// ParseSelection turns "1,3-5" into sorted zero-based indexes below n.
func ParseSelection(selection string, n int) ([]int, error) {
	invalid := func(format string, args ...any) error {
		return downloader.CategorizedError{Category: downloader.CategoryValidation, Err: fmt.Errorf(format, args...)}
	}

	seen := make(map[int]bool)
	for _, part := range strings.Split(selection, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		lo, hi := part, part
		if i := strings.Index(part, "-"); i >= 0 {
			lo, hi = strings.TrimSpace(part[:i]), strings.TrimSpace(part[i+1:])
		}
		start, err := strconv.Atoi(lo)
		if err != nil {
			return nil, invalid("invalid item selection %q", part)
		}
		end, err := strconv.Atoi(hi)
		if err != nil {
			return nil, invalid("invalid item selection %q", part)
		}
		if start < 1 || end < start || end > n {
			return nil, invalid("item selection %q is outside 1-%d", part, n)
		}
		for i := start; i <= end; i++ {
			seen[i-1] = true
		}
	}
	if len(seen) == 0 {
		return nil, invalid("empty item selection")
	}
	out := make([]int, 0, len(seen))
	for i := range seen {
		out = append(out, i)
	}
	sort.Ints(out)
	return out, nil
}

package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/lvcoi/ytdl-playlist/internal/app"
	"github.com/lvcoi/ytdl-playlist/internal/config"
	"github.com/lvcoi/ytdl-playlist/internal/downloader"
	"github.com/lvcoi/ytdl-playlist/internal/tui"
	"github.com/lvcoi/ytdl-playlist/internal/ws"
)

func newListCmd(st *state) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list <playlist-url>",
		Short: "List the videos of a playlist",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runner, err := st.runner(cmd.Context(), nil)
			if err != nil {
				return err
			}
			result, err := runner.Resolve(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(st.stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(struct {
					Title string                      `json:"title"`
					Items []downloader.ItemDescriptor `json:"items"`
				}{result.Title, result.Items})
			}
			return printItems(st, result)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the playlist as JSON")
	return cmd
}

func printItems(st *state, result downloader.PlaylistResult) error {
	fmt.Fprintf(st.stdout, "%s (%d videos)\n", result.Title, len(result.Items))
	tw := tabwriter.NewWriter(st.stdout, 0, 4, 2, ' ', 0)
	for i, it := range result.Items {
		fmt.Fprintf(tw, "%d.\t%s\t%s\t%s\n", i+1, it.Title, it.Duration, it.Author)
	}
	return tw.Flush()
}

func newGetCmd(st *state) *cobra.Command {
	var items string
	var pick bool
	cmd := &cobra.Command{
		Use:         "get <playlist-url>",
		Short:       "Download a playlist, one video at a time",
		Args:        exactArgs(1),
		Annotations: map[string]string{annotationRenderer: ""},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			feed, stop := st.subscribe(ctx)
			defer stop()
			runner, err := st.runner(ctx, feed)
			if err != nil {
				return err
			}
			batch, err := runner.Download(ctx, app.Request{
				Reference: args[0],
				Items:     items,
				Quality:   st.cfg.Quality,
				Format:    st.cfg.Format,
				Dest:      st.cfg.Dest,
				Pick:      pick,
			})
			if len(batch.Outcomes) > 0 {
				fmt.Fprintf(st.stdout, "%d of %d saved, %d failed\n", batch.Done(), len(batch.Outcomes), batch.Failed())
			}
			return err
		},
	}
	cmd.Flags().StringVar(&items, "items", "", "download only these 1-based items, e.g. 1,3-5")
	cmd.Flags().String(config.KeyDest, "", "save into this directory")
	cmd.Flags().BoolVar(&pick, "pick", false, "ask for a download directory first")
	return cmd
}

func newItemCmd(st *state) *cobra.Command {
	var title string
	var pick bool
	cmd := &cobra.Command{
		Use:         "item <video-id>",
		Short:       "Download a single video",
		Args:        exactArgs(1),
		Annotations: map[string]string{annotationRenderer: ""},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			feed, stop := st.subscribe(ctx)
			defer stop()
			runner, err := st.runner(ctx, feed)
			if err != nil {
				return err
			}
			_, err = runner.DownloadOne(ctx, app.ItemRequest{
				VideoID: args[0],
				Title:   title,
				Quality: st.cfg.Quality,
				Format:  st.cfg.Format,
				Dest:    st.cfg.Dest,
				Pick:    pick,
			})
			return err
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "label shown while downloading")
	cmd.Flags().String(config.KeyDest, "", "save into this directory")
	cmd.Flags().BoolVar(&pick, "pick", false, "ask for a download directory first")
	return cmd
}

// runner wires the service client and renderer for the current config.
// feed may be nil.
func (s *state) runner(ctx context.Context, feed downloader.ProgressFeed) (*app.Runner, error) {
	client, err := downloader.NewHTTPClient(s.cfg.Server, downloader.ClientOptions{
		Timeout:   s.cfg.Timeout,
		RetryMax:  s.cfg.Retries,
		UserAgent: "ytdl-playlist/" + Version,
		Logger:    s.log,
	})
	if err != nil {
		return nil, usageError(err)
	}
	interactive := s.interactive()
	return &app.Runner{
		Service:    client,
		Saver:      &downloader.DirSaver{Dir: s.cfg.SaveDir},
		Capability: downloader.DetectCapability(s.stdin, s.stderr),
		Feed:       feed,
		NewRenderer: func(titles []string, cancel context.CancelFunc) tui.Renderer {
			if interactive {
				return &tui.Program{Titles: titles, Cancel: cancel}
			}
			return &tui.Plain{Out: s.stdout}
		},
		Options: downloader.Options{
			TickInterval: s.cfg.Tick,
			ItemDelay:    s.cfg.ItemDelay,
		},
		Log: s.log,
	}, nil
}

// subscribe follows the service's progress stream. The stream is optional:
// without it progress stays synthetic.
func (s *state) subscribe(ctx context.Context) (downloader.ProgressFeed, func()) {
	sub, err := ws.Subscribe(ctx, s.cfg.Server, s.log)
	if err != nil {
		s.log.Debug().Err(err).Msg("progress stream unavailable")
		return nil, func() {}
	}
	return sub, func() { _ = sub.Close() }
}

package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/lvcoi/ytdl-playlist/internal/config"
	"github.com/lvcoi/ytdl-playlist/internal/db"
	"github.com/lvcoi/ytdl-playlist/internal/web"
	"github.com/lvcoi/ytdl-playlist/internal/ws"
)

func newServeCmd(st *state) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the playlist service",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			srv, cleanup, err := st.server()
			if err != nil {
				return err
			}
			defer cleanup()
			err = srv.ListenAndServe(cmd.Context(), st.cfg.Listen)
			if errors.Is(err, context.Canceled) {
				st.log.Info().Msg("service stopped")
				return nil
			}
			return err
		},
	}
	f := cmd.Flags()
	f.String(config.KeyListen, "", "listen address")
	f.String(config.KeyMediaDir, "", "directory for produced files")
	f.String(config.KeyDB, "", "catalog database path")
	f.Float64(config.KeyRate, 0, "download requests per second (0 disables the limit)")
	f.Bool(config.KeyDemo, false, "serve demo data instead of YouTube")
	return cmd
}

// server assembles the service from config. cleanup closes the catalog.
func (s *state) server() (*web.Server, func(), error) {
	var backend web.Backend = web.DemoBackend{}
	if !s.cfg.Demo {
		backend = web.NewYouTubeBackend(cleanhttp.DefaultPooledClient(), s.log)
	}

	if err := os.MkdirAll(filepath.Dir(s.cfg.DB), 0o755); err != nil {
		return nil, nil, fmt.Errorf("creating catalog directory: %w", err)
	}
	catalog, err := db.Open(s.cfg.DB)
	if err != nil {
		return nil, nil, err
	}

	var limiter *rate.Limiter
	if s.cfg.Rate > 0 {
		limiter = rate.NewLimiter(rate.Limit(s.cfg.Rate), 1)
	}

	srv, err := web.NewServer(web.Options{
		Backend:  backend,
		Catalog:  catalog,
		Hub:      ws.NewHub(s.log),
		Limiter:  limiter,
		MediaDir: s.cfg.MediaDir,
		Log:      s.log,
	})
	if err != nil {
		catalog.Close()
		return nil, nil, err
	}
	s.log.Info().Bool("demo", s.cfg.Demo).Str("db", s.cfg.DB).Msg("service configured")
	return srv, func() { catalog.Close() }, nil
}

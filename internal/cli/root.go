// Package cli provides the ytdl-playlist command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/lvcoi/ytdl-playlist/internal/config"
	"github.com/lvcoi/ytdl-playlist/internal/downloader"
	"github.com/lvcoi/ytdl-playlist/internal/logging"
)

// Version is overridden at build time.
var Version = "dev"

// annotationRenderer marks commands that draw progress on stdout.
const annotationRenderer = "renderer"

// state is shared by every command of one invocation.
type state struct {
	v       *viper.Viper
	cfgFile string
	cfg     config.Config
	log     zerolog.Logger
	closer  io.Closer

	stdin  *os.File
	stdout io.Writer
	stderr io.Writer
}

// interactive reports whether the full-screen view can own the terminal.
func (s *state) interactive() bool {
	if s.cfg.Plain {
		return false
	}
	return isTerminal(s.stdout) && s.stdin != nil && term.IsTerminal(int(s.stdin.Fd()))
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// NewRootCmd builds the command tree writing to stdout and stderr.
func NewRootCmd(stdout, stderr io.Writer) *cobra.Command {
	root, _ := newRoot(stdout, stderr)
	return root
}

func newRoot(stdout, stderr io.Writer) (*cobra.Command, *state) {
	st := &state{v: viper.New(), stdin: os.Stdin, stdout: stdout, stderr: stderr, log: zerolog.Nop()}
	config.SetDefaults(st.v)
	config.BindEnv(st.v)

	root := &cobra.Command{
		Use:           "ytdl-playlist",
		Short:         "Download YouTube playlists through a playlist service",
		Version:       Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return st.setup(cmd)
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return usageError(err)
	})

	pf := root.PersistentFlags()
	pf.StringVarP(&st.cfgFile, "config", "c", "", "config file (default "+config.DefaultFile()+")")
	pf.String(config.KeyServer, "", "playlist service base URL")
	pf.StringP(config.KeyQuality, "q", "", "video quality: 1080p, 720p, 480p, 360p")
	pf.StringP(config.KeyFormat, "f", "", "output format: mp4, mp3")
	pf.Duration(config.KeyItemDelay, 0, "pause between playlist items")
	pf.Duration(config.KeyTick, 0, "progress tick while the service is processing")
	pf.Duration(config.KeyTimeout, 0, "per-request timeout")
	pf.Int(config.KeyRetries, 0, "transport retries per request")
	pf.String(config.KeySaveDir, "", "default save directory")
	pf.String(config.KeyLogLevel, "", "log level: debug, info, warn, error")
	pf.String(config.KeyLogFile, "", "write a rotating JSON log to this file")
	pf.Bool(config.KeyPlain, false, "use plain progress output even on a terminal")

	root.AddCommand(
		newListCmd(st),
		newGetCmd(st),
		newItemCmd(st),
		newServeCmd(st),
	)
	return root, st
}

// setup binds the executing command's flags, reads config and builds the logger.
func (s *state) setup(cmd *cobra.Command) error {
	if err := s.v.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("binding flags: %w", err)
	}
	path, explicit := s.cfgFile, s.cfgFile != ""
	if !explicit {
		path = config.DefaultFile()
	}
	if err := config.ReadFile(s.v, path, explicit); err != nil {
		return usageError(err)
	}
	cfg, err := config.Load(s.v)
	if err != nil {
		return usageError(err)
	}
	s.cfg = cfg

	_, draws := cmd.Annotations[annotationRenderer]
	log, closer, err := logging.New(logging.Options{
		Level:     cfg.LogLevel,
		File:      cfg.LogFile,
		Console:   s.stderr,
		NoConsole: draws && s.interactive(),
	})
	if err != nil {
		return usageError(err)
	}
	s.log, s.closer = log, closer
	s.log.Debug().Str("command", cmd.Name()).Str("server", cfg.Server).Msg("configured")
	return nil
}

func usageError(err error) error {
	return downloader.CategorizedError{Category: downloader.CategoryValidation, Err: err}
}

// exactArgs is cobra.ExactArgs with a validation category.
func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(n)(cmd, args); err != nil {
			return usageError(err)
		}
		return nil
	}
}

// Run executes args and returns the process exit status.
func Run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root, st := newRoot(stdout, stderr)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if st.closer != nil {
		_ = st.closer.Close()
	}
	if err == nil {
		return 0
	}
	if errors.Is(err, context.Canceled) {
		fmt.Fprintln(stderr, "cancelled")
	} else {
		fmt.Fprintf(stderr, "error: %v\n", err)
	}
	return downloader.ExitCode(err)
}

// Execute runs the command line against the process arguments.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return Run(ctx, os.Args[1:], os.Stdout, os.Stderr)
}

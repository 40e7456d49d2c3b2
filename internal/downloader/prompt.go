package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/term"
)

// TerminalPicker asks for a directory on a line-oriented terminal.
// An empty answer cancels.
type TerminalPicker struct {
	In  io.Reader
	Out io.Writer
}

func (p TerminalPicker) PickDirectory(ctx context.Context) (string, error) {
	type answer struct {
		line string
		err  error
	}
	stop := make(chan struct{})
	answers := make(chan answer, 1)
	go func() {
		fmt.Fprint(p.Out, "Save files to directory (empty to cancel): ")
		line, err := readLine(p.In, stop)
		answers <- answer{line: line, err: err}
	}()

	select {
	case <-ctx.Done():
		close(stop)
		return "", ErrCancelled
	case a := <-answers:
		line := strings.TrimSpace(a.line)
		if a.err != nil && !errors.Is(a.err, io.EOF) {
			return "", fmt.Errorf("reading answer: %w", a.err)
		}
		if line == "" {
			return "", ErrCancelled
		}
		return checkDirectory(ExpandHome(line))
	}
}

// PathPicker grants a directory chosen ahead of time, for example by a flag.
type PathPicker struct {
	Path string
}

func (p PathPicker) PickDirectory(ctx context.Context) (string, error) {
	if strings.TrimSpace(p.Path) == "" {
		return "", ErrCancelled
	}
	return checkDirectory(ExpandHome(p.Path))
}

// DetectCapability returns Available with a TerminalPicker when in is an
// interactive terminal and Unavailable otherwise.
func DetectCapability(in *os.File, out io.Writer) StorageCapability {
	if in == nil || !term.IsTerminal(int(in.Fd())) {
		return Unavailable{Reason: "stdin is not a terminal"}
	}
	return Available{Picker: TerminalPicker{In: in, Out: out}}
}

func checkDirectory(dir string) (string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return "", fmt.Errorf("checking %s: %w", dir, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%s is not a directory", dir)
	}
	return dir, nil
}

// readLine reads up to and including '\n' one byte at a time, so nothing
// past the answer is taken from in. Once stop is closed it returns after the
// read in flight: at most one byte of later input is consumed.
func readLine(in io.Reader, stop <-chan struct{}) (string, error) {
	var line []byte
	buf := make([]byte, 1)
	for {
		n, err := in.Read(buf)
		if n > 0 {
			if buf[0] == '\n' {
				return string(line), nil
			}
			line = append(line, buf[0])
		}
		if err != nil {
			return string(line), err
		}
		select {
		case <-stop:
			return "", ErrCancelled
		default:
		}
	}
}

// ExpandHome replaces a leading "~" with the user's home directory.
func ExpandHome(path string) string {
	path = strings.TrimSpace(path)
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

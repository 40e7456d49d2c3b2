package downloader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
)

// Destination is either None (the zero value) or a granted directory.
// A granted Destination writes only inside its root.
type Destination struct {
	root *os.Root
	name string
}

// GrantDirectory opens dir as a write target.
func GrantDirectory(dir string) (Destination, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return Destination{}, fmt.Errorf("resolving %s: %w", dir, err)
	}
	root, err := os.OpenRoot(abs)
	if err != nil {
		return Destination{}, fmt.Errorf("opening %s: %w", abs, err)
	}
	return Destination{root: root, name: filepath.Base(abs)}, nil
}

// Granted reports whether d holds a write grant.
func (d Destination) Granted() bool {
	return d.root != nil
}

// DisplayName is the directory's base name, or "" for None.
func (d Destination) DisplayName() string {
	return d.name
}

// Path is the granted directory, or "" for None.
func (d Destination) Path() string {
	if d.root == nil {
		return ""
	}
	return d.root.Name()
}

// Current lets a fixed Destination act as a DestinationProvider.
func (d Destination) Current() Destination {
	return d
}

func (d Destination) close() error {
	if d.root == nil {
		return nil
	}
	return d.root.Close()
}

// DestinationProvider returns the destination to use for the next write.
type DestinationProvider interface {
	Current() Destination
}

// WriteIfGranted writes data to filename inside dest. The file is closed on
// every path; a failed write leaves the grant in place.
func WriteIfGranted(dest Destination, filename string, data []byte) (path string, err error) {
	if !dest.Granted() {
		return "", ErrNoGrant
	}
	name := safeFilename(filename)
	f, err := dest.root.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return "", wrapCategory(CategoryWrite, fmt.Errorf("creating %s in %s: %w", name, dest.name, err))
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			path = ""
			err = wrapCategory(CategoryWrite, fmt.Errorf("closing %s: %w", name, closeErr))
		}
	}()
	if _, err := f.Write(data); err != nil {
		return "", wrapCategory(CategoryWrite, fmt.Errorf("writing %s: %w", name, err))
	}
	return filepath.Join(dest.root.Name(), name), nil
}

// Picker asks the user for a directory. It returns ErrCancelled when the user
// declines.
type Picker interface {
	PickDirectory(ctx context.Context) (string, error)
}

// StorageCapability is Available or Unavailable.
type StorageCapability interface {
	storageCapability()
}

// Available carries a working Picker.
type Available struct {
	Picker Picker
}

// Unavailable means the platform cannot grant a directory; every file goes to
// the default saver.
type Unavailable struct {
	Reason string
}

func (Available) storageCapability()   {}
func (Unavailable) storageCapability() {}

// DestinationResolver owns the session's destination grant.
type DestinationResolver struct {
	mu         sync.Mutex
	capability StorageCapability
	current    Destination
	events     *Emitter
	log        zerolog.Logger
}

func NewDestinationResolver(capability StorageCapability, events *Emitter, log zerolog.Logger) *DestinationResolver {
	if capability == nil {
		capability = Unavailable{}
	}
	return &DestinationResolver{capability: capability, events: events, log: log}
}

// Request prompts for a destination. Unavailable and cancelled prompts
// return None with a nil error; any other prompt failure returns None and a
// non-fatal error. A new grant replaces the previous one.
func (r *DestinationResolver) Request(ctx context.Context) (Destination, error) {
	switch c := r.capability.(type) {
	case Unavailable:
		r.log.Debug().Str("reason", c.Reason).Msg("directory selection unavailable")
		r.events.notice(LevelWarn, "Each file will be saved to the default location")
		return Destination{}, nil
	case Available:
		dir, err := c.Picker.PickDirectory(ctx)
		if err != nil {
			if errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled) {
				r.log.Debug().Msg("directory selection cancelled")
				return Destination{}, nil
			}
			r.log.Warn().Err(err).Msg("could not select directory")
			r.events.notice(LevelError, "Could not select directory")
			return Destination{}, fmt.Errorf("selecting directory: %w", err)
		}
		dest, err := GrantDirectory(dir)
		if err != nil {
			r.log.Warn().Err(err).Str("dir", dir).Msg("could not open directory")
			r.events.notice(LevelError, "Could not select directory")
			return Destination{}, fmt.Errorf("selecting directory: %w", err)
		}
		r.mu.Lock()
		previous := r.current
		r.current = dest
		r.mu.Unlock()
		_ = previous.close()
		r.log.Info().Str("dir", dest.Path()).Msg("download location set")
		r.events.notice(LevelInfo, "Download location set to: "+dest.DisplayName())
		return dest, nil
	default:
		return Destination{}, nil
	}
}

// Clear drops the grant. Calling it with no grant is a no-op.
func (r *DestinationResolver) Clear() {
	r.mu.Lock()
	previous := r.current
	r.current = Destination{}
	r.mu.Unlock()
	if !previous.Granted() {
		return
	}
	_ = previous.close()
	r.log.Info().Msg("download location cleared")
	r.events.notice(LevelInfo, "Download location cleared. Using default location.")
}

// Current returns the active destination.
func (r *DestinationResolver) Current() Destination {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Close releases the grant silently at the end of a session.
func (r *DestinationResolver) Close() error {
	r.mu.Lock()
	previous := r.current
	r.current = Destination{}
	r.mu.Unlock()
	return previous.close()
}

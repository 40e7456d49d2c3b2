package downloader

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
)

// Saver is the default save behavior used when no grant exists or a granted
// write fails.
type Saver interface {
	Save(filename string, data []byte) (string, error)
}

// DirSaver saves into a fixed directory and never overwrites: a clashing name
// gets a " (n)" suffix.
type DirSaver struct {
	Dir string

	mu sync.Mutex
}

// DefaultSaveDir returns ~/Downloads.
func DefaultSaveDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(home, "Downloads"), nil
}

func (s *DirSaver) Save(filename string, data []byte) (string, error) {
	if s.Dir == "" {
		return "", wrapCategory(CategoryWrite, errors.New("no default save directory configured"))
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return "", wrapCategory(CategoryWrite, fmt.Errorf("creating %s: %w", s.Dir, err))
	}
	root, err := os.OpenRoot(s.Dir)
	if err != nil {
		return "", wrapCategory(CategoryWrite, fmt.Errorf("opening %s: %w", s.Dir, err))
	}
	defer root.Close()

	base := safeFilename(filename)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	for n := 0; n < 1000; n++ {
		name := base
		if n > 0 {
			name = fmt.Sprintf("%s (%d)%s", stem, n, ext)
		}
		f, err := root.OpenFile(name, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", wrapCategory(CategoryWrite, fmt.Errorf("creating %s: %w", name, err))
		}
		if _, err := f.Write(data); err != nil {
			_ = f.Close()
			_ = root.Remove(name)
			return "", wrapCategory(CategoryWrite, fmt.Errorf("writing %s: %w", name, err))
		}
		if err := f.Close(); err != nil {
			return "", wrapCategory(CategoryWrite, fmt.Errorf("closing %s: %w", name, err))
		}
		return filepath.Join(s.Dir, name), nil
	}
	return "", wrapCategory(CategoryWrite, fmt.Errorf("too many files named like %s", base))
}

var invalidFilenameChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1F]`)

// safeFilename strips directories and characters that are invalid on common
// filesystems.
func safeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	clean := strings.TrimSpace(invalidFilenameChars.ReplaceAllString(name, "-"))
	if clean == "" || clean == "." || clean == ".." {
		return "video"
	}
	return clean
}

// fallbackFilename mirrors the service's naming when it omits one.
func fallbackFilename(filename, format string) string {
	if strings.TrimSpace(filename) != "" {
		return filename
	}
	if format == "" {
		format = DefaultFormat
	}
	return "video." + format
}

package downloader

import (
	"context"
	"errors"
)

// Category classifies a failure by the stage that produced it.
type Category string

const (
	CategoryValidation Category = "validation"
	CategoryResolve    Category = "resolve"
	CategoryTransfer   Category = "transfer"
	CategoryWrite      Category = "write"
	CategoryUnknown    Category = "unknown"
)

// CategorizedError attaches a Category to an underlying error.
type CategorizedError struct {
	Category Category
	Err      error
}

func (e CategorizedError) Error() string {
	if e.Err == nil {
		return string(e.Category)
	}
	return e.Err.Error()
}

func (e CategorizedError) Unwrap() error {
	return e.Err
}

var (
	// ErrCapabilityUnavailable reports that no directory picker exists on this platform.
	// It is a normal branch, never surfaced as an error-level notice.
	ErrCapabilityUnavailable = errors.New("directory selection is not available")
	// ErrCancelled reports that the user dismissed the directory picker.
	ErrCancelled = errors.New("directory selection cancelled")
	// ErrNoGrant is returned by WriteIfGranted when the destination is None.
	ErrNoGrant = errors.New("no destination granted")
)

func wrapCategory(category Category, err error) error {
	if err == nil {
		return nil
	}
	var existing CategorizedError
	if errors.As(err, &existing) && existing.Category == category {
		return err
	}
	return CategorizedError{Category: category, Err: err}
}

// CategoryOf returns the outermost category attached to err.
func CategoryOf(err error) Category {
	if err == nil {
		return ""
	}
	var ce CategorizedError
	if errors.As(err, &ce) {
		return ce.Category
	}
	return CategoryUnknown
}

// ExitCode maps an error to a process exit status.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	if errors.Is(err, context.Canceled) {
		return 130
	}
	switch CategoryOf(err) {
	case CategoryValidation:
		return 2
	case CategoryResolve:
		return 3
	case CategoryTransfer:
		return 4
	case CategoryWrite:
		return 5
	default:
		return 1
	}
}

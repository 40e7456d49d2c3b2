package downloader

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestExitCode(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{name: "nil", err: nil, want: 0},
		{name: "validation", err: wrapCategory(CategoryValidation, errors.New("bad")), want: 2},
		{name: "resolve", err: wrapCategory(CategoryResolve, errors.New("bad")), want: 3},
		{name: "transfer", err: wrapCategory(CategoryTransfer, errors.New("bad")), want: 4},
		{name: "write", err: wrapCategory(CategoryWrite, errors.New("bad")), want: 5},
		{name: "wrapped", err: fmt.Errorf("outer: %w", wrapCategory(CategoryWrite, errors.New("bad"))), want: 5},
		{name: "cancelled", err: wrapCategory(CategoryTransfer, context.Canceled), want: 130},
		{name: "plain", err: errors.New("bad"), want: 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ExitCode(tc.err); got != tc.want {
				t.Fatalf("ExitCode = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestWrapCategoryKeepsSameCategory(t *testing.T) {
	inner := wrapCategory(CategoryTransfer, errors.New("boom"))
	outer := wrapCategory(CategoryTransfer, inner)
	if outer != inner {
		t.Fatalf("expected rewrap with the same category to be a no-op")
	}
	if wrapCategory(CategoryWrite, nil) != nil {
		t.Fatalf("expected nil for nil error")
	}
	if got := CategoryOf(wrapCategory(CategoryWrite, inner)); got != CategoryWrite {
		t.Fatalf("expected outermost category write, got %q", got)
	}
	if CategoryOf(nil) != "" {
		t.Fatalf("expected empty category for nil")
	}
}

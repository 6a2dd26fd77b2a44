package repository

import (
	"errors"
	"strings"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrQueueEmpty       = errors.New("task queue is empty")
	ErrFetchTimeout     = errors.New("fetch timed out")
	ErrTooManyRedirects = errors.New("too many redirects")
	ErrFetchFailed      = errors.New("fetch failed")
	ErrInvalidSeed      = errors.New("invalid seed url")
	ErrProbeUnavailable = errors.New("performance probe unavailable")
)

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), substr)
}

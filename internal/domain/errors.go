package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrConstraint is returned when an insert collides with an existing (title, date) pair.
	ErrConstraint = errors.New("article already exists")
	// ErrPipelineBusy is returned when a run is requested while another is active.
	ErrPipelineBusy = errors.New("pipeline run already in progress")
	// ErrNotFound is returned by lookups that match nothing.
	ErrNotFound = errors.New("article not found")
)

// FetchError reports an unreachable or unusable listing or article page.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ExtractionError reports a required field missing from an article page.
type ExtractionError struct {
	URL   string
	Field string
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s: missing %s", e.URL, e.Field)
}

// ImageArchiveError reports a single image that could not be archived.
type ImageArchiveError struct {
	URL string
	Err error
}

func (e *ImageArchiveError) Error() string {
	return fmt.Sprintf("archive image %s: %v", e.URL, e.Err)
}

func (e *ImageArchiveError) Unwrap() error { return e.Err }

// TranslationError reports a failed chunk; it aborts the whole article's translation.
type TranslationError struct {
	Chunk int
	Err   error
}

func (e *TranslationError) Error() string {
	return fmt.Sprintf("translate chunk %d: %v", e.Chunk, e.Err)
}

func (e *TranslationError) Unwrap() error { return e.Err }

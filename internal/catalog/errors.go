package catalog

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	KindExtractionGap        ErrorKind = "extraction_gap"
	KindNormalizationFailure ErrorKind = "normalization_failure"
	KindIdentityFailure      ErrorKind = "identity_failure"
	KindFetchFailure         ErrorKind = "fetch_failure"
	KindImageFailure         ErrorKind = "image_failure"
	KindSinkWriteFailure     ErrorKind = "sink_write_failure"
	KindCacheInconsistency   ErrorKind = "cache_inconsistency"
	KindStateFailure         ErrorKind = "state_failure"
)

var ErrMissingSourceURL = errors.New("source url is missing")

// Error attaches a failure kind and the product it concerns to an error.
type Error struct {
	Kind       ErrorKind
	ProductURL string
	Err        error
}

func NewError(kind ErrorKind, productURL string, err error) *Error {
	return &Error{Kind: kind, ProductURL: productURL, Err: err}
}

func (e *Error) Error() string {
	if e.ProductURL == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s (%s): %v", e.Kind, e.ProductURL, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) (ErrorKind, bool) {
	var catalogErr *Error
	if errors.As(err, &catalogErr) {
		return catalogErr.Kind, true
	}
	return "", false
}

// IsRunFatal reports whether err should stop the whole run instead of only
// the product it happened on.
func IsRunFatal(err error) bool {
	kind, ok := KindOf(err)
	return ok && kind == KindStateFailure
}

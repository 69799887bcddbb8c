package pagebackup

import (
	"fmt"
)

// FatalError marks a condition that must abort the whole run with a
// non-zero exit code (spec.md §7), matching the teacher's named-error-
// type shape (TarSizeError, ForbiddenActionError).
type FatalError struct {
	Message string
}

func NewFatalError(format string, args ...interface{}) FatalError {
	return FatalError{Message: fmt.Sprintf(format, args...)}
}

func (e FatalError) Error() string {
	return e.Message
}

// PageFormatError marks a page that failed the validity predicate
// (spec.md §3). During backup it triggers per-file fall-back; during
// restore it is fatal, since an inconsistent artifact cannot be trusted.
type PageFormatError struct {
	Path  string
	Block int
}

func (e PageFormatError) Error() string {
	return fmt.Sprintf("incorrect page %d in %s", e.Block, e.Path)
}

// ShortReadError marks a non-zero, less-than-block-size read, the other
// backup-time fall-back trigger and, on restore, a hard failure
// (spec.md §4.5 step 4, §4.6 step 3).
type ShortReadError struct {
	Path  string
	Block int
	Got   int
}

func (e ShortReadError) Error() string {
	return fmt.Sprintf("unable to read page %d in %s: got %d bytes", e.Block, e.Path, e.Got)
}

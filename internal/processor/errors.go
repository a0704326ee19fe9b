package processor

import (
	"fmt"
	"strings"
)

// EmailError means the email itself was invalid: unreadable, or missing the
// From, Delivered-To, or Subject headers.
type EmailError struct {
	Msg string
}

func (e *EmailError) Error() string { return e.Msg }

// UnknownFormatError means a file could not be matched to exactly one matrix
// format. Files with this error are skipped; other files in the same email
// still process.
type UnknownFormatError struct {
	Msg string
}

func (e *UnknownFormatError) Error() string { return e.Msg }

// NoFilesError means there were no files in the email, or all of them were
// skipped.
type NoFilesError struct {
	Msg string
}

func (e *NoFilesError) Error() string { return e.Msg }

// NoQuotesError means files were read but contained no quotes.
type NoQuotesError struct {
	Msg string
}

func (e *NoQuotesError) Error() string { return e.Msg }

// MultipleErrors reports the errors from processing an email's files. A
// failing file is skipped and the rest still process, so errors accumulate
// and are reported together at the end.
type MultipleErrors struct {
	FileCount int
	Errors    []error
}

func (e *MultipleErrors) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("%d files processed, %d errors:\n\n%s",
		e.FileCount, len(e.Errors), strings.Join(msgs, "\n"))
}

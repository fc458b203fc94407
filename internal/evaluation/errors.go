package evaluation

import (
	"errors"
	"fmt"
)

// Kind classifies why an admission or a pipeline run failed.
type Kind string

const (
	KindValidation      Kind = "validation"
	KindExtraction      Kind = "extraction"
	KindAdapter         Kind = "adapter"
	KindTransientRemote Kind = "transient_remote"
	KindPersistence     Kind = "persistence"
	KindUnknownJob      Kind = "unknown_job"
	KindTimeout         Kind = "timeout"
	KindCanceled        Kind = "canceled"
)

var (
	ErrJobNotFound      = errors.New("job not found")
	ErrDuplicateJob     = errors.New("job already exists")
	// ErrJobFinalized is returned when a completed or failed job is updated.
	ErrJobFinalized     = errors.New("job already finished")
	ErrInvalidDocuments = errors.New("CV ID or Report ID not valid")
)

// Error carries a Kind and, for pipeline failures, the stage that was running.
// Its message is the wrapped error's message, unchanged.
type Error struct {
	Kind  Kind
	Stage Stage
	Err   error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, stage Stage, err error) *Error {
	return &Error{Kind: kind, Stage: stage, Err: err}
}

func errorf(kind Kind, stage Stage, format string, args ...any) *Error {
	return newError(kind, stage, fmt.Errorf(format, args...))
}

// KindOf returns the classification of err, or "" when it carries none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err is classified as kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

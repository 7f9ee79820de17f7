package sinkerrors

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrBadRequest marks messages that are incomplete for the requested
	// operation. They are never retried.
	ErrBadRequest = errors.New("bad request")
	// ErrContent marks content that cannot be read as its declared type.
	ErrContent = errors.New("content exception")
	// ErrBadState marks store or reconciliation failures that survived the
	// allowed retries. The transport redelivers these.
	ErrBadState = errors.New("bad state")
)

type BadRequestError struct {
	Missing []string
	Reason  string
}

func (e *BadRequestError) Error() string {
	if len(e.Missing) > 0 {
		return fmt.Sprintf("missing required fields: %s", strings.Join(e.Missing, ", "))
	}
	return e.Reason
}

func (e *BadRequestError) Is(target error) bool {
	return target == ErrBadRequest
}

func BadRequest(reason string) error {
	return &BadRequestError{Reason: reason}
}

type ContentError struct {
	ContentType string
	Err         error
}

func (e *ContentError) Error() string {
	return fmt.Sprintf("content does not match content type %q: %v", e.ContentType, e.Err)
}

func (e *ContentError) Is(target error) bool {
	return target == ErrContent
}

func (e *ContentError) Unwrap() error {
	return e.Err
}

type BadStateError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *BadStateError) Error() string {
	switch {
	case e.Attempts > 0 && e.Err == nil:
		return fmt.Sprintf("failed to %s after %d attempts", e.Op, e.Attempts)
	case e.Attempts > 0:
		return fmt.Sprintf("failed to %s after %d attempts: %v", e.Op, e.Attempts, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("failed to %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("failed to %s", e.Op)
}

func (e *BadStateError) Is(target error) bool {
	return target == ErrBadState
}

func (e *BadStateError) Unwrap() error {
	return e.Err
}

func BadState(op string, err error) error {
	return &BadStateError{Op: op, Err: err}
}

// Quarantinable reports whether err means the message itself is at fault and
// belongs in the dead-letter store rather than back on the transport.
func Quarantinable(err error) bool {
	return errors.Is(err, ErrBadRequest) || errors.Is(err, ErrContent)
}
